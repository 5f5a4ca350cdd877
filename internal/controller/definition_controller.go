package controller

import (
	"frubric_backend/internal/model"
	"frubric_backend/internal/service"
	"frubric_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type DefinitionController struct {
	DefinitionService *service.DefinitionService
}

func NewDefinitionController(definitionService *service.DefinitionService) *DefinitionController {
	return &DefinitionController{DefinitionService: definitionService}
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=draft ready"`
}

// @Summary 创建评分区域
// @Description 同一上下文、组件、区域名只会创建一次
// @Tags 评分定义
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateAreaRequest true "评分区域"
// @Success 201 {object} util.Response
// @Router /api/teacher/areas [post]
func (c *DefinitionController) CreateArea(ctx *gin.Context) {
	var req service.CreateAreaRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	area, err := c.DefinitionService.CreateArea(req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, area)
}

// @Summary 获取评分区域及其定义
// @Tags 评分定义
// @Produce json
// @Security BearerAuth
// @Param id path int true "区域ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/areas/{id} [get]
func (c *DefinitionController) GetArea(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	area, err := c.DefinitionService.GetArea(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	defs, err := c.DefinitionService.ListByArea(id)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"area": area, "definitions": defs})
}

// @Summary 在区域下创建评分定义
// @Description 新定义为草稿状态，评分树通过编辑会话填写
// @Tags 评分定义
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "区域ID"
// @Param body body service.CreateDefinitionRequest true "定义"
// @Success 201 {object} util.Response
// @Router /api/teacher/areas/{id}/definitions [post]
func (c *DefinitionController) CreateDefinition(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	areaID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.CreateDefinitionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	def, err := c.DefinitionService.CreateDefinition(areaID, user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, def)
}

// @Summary 获取评分定义
// @Description 返回定义、评分树以及总分上下界
// @Tags 评分定义
// @Produce json
// @Security BearerAuth
// @Param id path int true "定义ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/definitions/{id} [get]
func (c *DefinitionController) GetDefinition(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	view, err := c.DefinitionService.GetDefinition(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 切换定义状态
// @Description 切换为 ready 前会对已保存的评分树做完整校验
// @Tags 评分定义
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "定义ID"
// @Param body body SetStatusRequest true "状态 draft/ready"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /api/teacher/definitions/{id}/status [post]
func (c *DefinitionController) SetStatus(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req SetStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	status := model.DefinitionDraft
	if req.Status == "ready" {
		status = model.DefinitionReady
	}
	if err := c.DefinitionService.SetStatus(ctx.Request.Context(), id, user.UserID, status); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"definitionId": id, "status": status})
}

// @Summary 复制评分定义
// @Description 以已有定义为模板复制到另一个区域，复制结果为草稿
// @Tags 评分定义
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "源定义ID"
// @Param body body service.CopyDefinitionRequest true "目标区域"
// @Success 201 {object} util.Response
// @Router /api/teacher/definitions/{id}/copy [post]
func (c *DefinitionController) CopyDefinition(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.CopyDefinitionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	res, err := c.DefinitionService.CopyDefinition(ctx.Request.Context(), id, user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, res)
}
