package controller

import (
	"net/http"

	"frubric_backend/internal/rubric"
	"frubric_backend/internal/service"
	"frubric_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type EditorController struct {
	EditorService *service.EditorService
}

func NewEditorController(editorService *service.EditorService) *EditorController {
	return &EditorController{EditorService: editorService}
}

type OpenSessionRequest struct {
	DefinitionID uint `json:"definitionId" binding:"required"`
}

func nodeParam(ctx *gin.Context, name string) rubric.NodeID {
	return rubric.NodeID(ctx.Param(name))
}

// respond 统一输出编辑会话视图
func respond(ctx *gin.Context, view *service.EditorView, err error) {
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 打开编辑会话
// @Description 定义已有评分树时以编辑模式打开，否则为新建模式
// @Tags 评分编辑器
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body OpenSessionRequest true "定义ID"
// @Success 201 {object} util.Response
// @Router /api/teacher/editor/sessions [post]
func (c *EditorController) Open(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req OpenSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	view, err := c.EditorService.Open(ctx.Request.Context(), req.DefinitionID, user.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, view)
}

// @Summary 获取编辑会话
// @Tags 评分编辑器
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid} [get]
func (c *EditorController) Get(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	view, err := c.EditorService.Get(ctx.Request.Context(), ctx.Param("sid"), user.UserID)
	respond(ctx, view, err)
}

// @Summary 关闭编辑会话
// @Tags 评分编辑器
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid} [delete]
func (c *EditorController) Close(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	if err := c.EditorService.Close(ctx.Request.Context(), ctx.Param("sid"), user.UserID); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"closed": true})
}

// @Summary 新增评价标准
// @Tags 评分编辑器
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Param body body service.AddCriterionRequest true "描述"
// @Success 200 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid}/criteria [post]
func (c *EditorController) AddCriterion(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.AddCriterionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	view, err := c.EditorService.AddCriterion(ctx.Request.Context(), ctx.Param("sid"), user.UserID, req)
	respond(ctx, view, err)
}

// @Summary 修改评价标准
// @Description 修改描述或学习成果关联
// @Tags 评分编辑器
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Param cid path string true "评价标准ID（数字或 NEWID 占位）"
// @Param body body service.EditCriterionRequest true "修改内容"
// @Success 200 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid}/criteria/{cid} [put]
func (c *EditorController) EditCriterion(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.EditCriterionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	view, err := c.EditorService.EditCriterion(ctx.Request.Context(), ctx.Param("sid"), user.UserID, nodeParam(ctx, "cid"), req)
	respond(ctx, view, err)
}

// @Summary 删除评价标准
// @Tags 评分编辑器
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Param cid path string true "评价标准ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid}/criteria/{cid} [delete]
func (c *EditorController) RemoveCriterion(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	view, err := c.EditorService.RemoveCriterion(ctx.Request.Context(), ctx.Param("sid"), user.UserID, nodeParam(ctx, "cid"))
	respond(ctx, view, err)
}

// @Summary 新增等级
// @Tags 评分编辑器
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Param cid path string true "评价标准ID"
// @Param body body service.LevelRequest true "分数区间与说明"
// @Success 200 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid}/criteria/{cid}/levels [post]
func (c *EditorController) AddLevel(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.LevelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	view, err := c.EditorService.AddLevel(ctx.Request.Context(), ctx.Param("sid"), user.UserID, nodeParam(ctx, "cid"), req)
	respond(ctx, view, err)
}

// @Summary 修改等级
// @Tags 评分编辑器
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Param cid path string true "评价标准ID"
// @Param lid path string true "等级ID"
// @Param body body service.LevelRequest true "分数区间与说明"
// @Success 200 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid}/criteria/{cid}/levels/{lid} [put]
func (c *EditorController) EditLevel(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.LevelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	view, err := c.EditorService.EditLevel(ctx.Request.Context(), ctx.Param("sid"), user.UserID,
		nodeParam(ctx, "cid"), nodeParam(ctx, "lid"), req)
	respond(ctx, view, err)
}

// @Summary 删除等级
// @Tags 评分编辑器
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Param cid path string true "评价标准ID"
// @Param lid path string true "等级ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid}/criteria/{cid}/levels/{lid} [delete]
func (c *EditorController) DeleteLevel(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	view, err := c.EditorService.DeleteLevel(ctx.Request.Context(), ctx.Param("sid"), user.UserID,
		nodeParam(ctx, "cid"), nodeParam(ctx, "lid"))
	respond(ctx, view, err)
}

// @Summary 新增描述项
// @Tags 评分编辑器
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Param cid path string true "评价标准ID"
// @Param lid path string true "等级ID"
// @Param body body service.DescriptorRequest true "描述文字"
// @Success 200 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid}/criteria/{cid}/levels/{lid}/descriptors [post]
func (c *EditorController) AddDescriptor(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.DescriptorRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	view, err := c.EditorService.AddDescriptor(ctx.Request.Context(), ctx.Param("sid"), user.UserID,
		nodeParam(ctx, "cid"), nodeParam(ctx, "lid"), req)
	respond(ctx, view, err)
}

// @Summary 修改描述项
// @Tags 评分编辑器
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Param cid path string true "评价标准ID"
// @Param lid path string true "等级ID"
// @Param did path string true "描述项ID"
// @Param body body service.DescriptorRequest true "描述文字"
// @Success 200 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid}/criteria/{cid}/levels/{lid}/descriptors/{did} [put]
func (c *EditorController) EditDescriptor(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.DescriptorRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	view, err := c.EditorService.EditDescriptor(ctx.Request.Context(), ctx.Param("sid"), user.UserID,
		nodeParam(ctx, "cid"), nodeParam(ctx, "lid"), nodeParam(ctx, "did"), req)
	respond(ctx, view, err)
}

// @Summary 删除描述项
// @Tags 评分编辑器
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Param cid path string true "评价标准ID"
// @Param lid path string true "等级ID"
// @Param did path string true "描述项ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid}/criteria/{cid}/levels/{lid}/descriptors/{did} [delete]
func (c *EditorController) DeleteDescriptor(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	view, err := c.EditorService.DeleteDescriptor(ctx.Request.Context(), ctx.Param("sid"), user.UserID,
		nodeParam(ctx, "cid"), nodeParam(ctx, "lid"), nodeParam(ctx, "did"))
	respond(ctx, view, err)
}

// @Summary 检查评价标准总分输入
// @Description 只做提示，不修改会话
// @Tags 评分编辑器
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Param cid path string true "评价标准ID"
// @Param body body service.TotalCheckRequest true "输入的总分"
// @Success 200 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid}/criteria/{cid}/total-check [post]
func (c *EditorController) CheckTotal(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.TotalCheckRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	violation, err := c.EditorService.CheckTotal(ctx.Request.Context(), ctx.Param("sid"), user.UserID, nodeParam(ctx, "cid"), req.Value)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"valid": violation == nil, "violation": violation})
}

// @Summary 提交编辑会话
// @Description 校验并保存评分树；校验失败返回 400，data 中包含字段错误和可重新渲染的会话
// @Tags 评分编辑器
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sid path string true "会话ID"
// @Param body body service.SubmitRequest false "draft 为 true 时保存为草稿"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /api/teacher/editor/sessions/{sid}/submit [post]
func (c *EditorController) Submit(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.SubmitRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}
	res, err := c.EditorService.Submit(ctx.Request.Context(), ctx.Param("sid"), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if !res.Errors.Empty() {
		ctx.JSON(http.StatusBadRequest, util.Response{
			Code:    http.StatusBadRequest,
			Message: "validation failed",
			Data:    res,
		})
		return
	}
	util.Success(ctx, res)
}
