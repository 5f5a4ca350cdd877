package controller

import (
	"strconv"

	"frubric_backend/internal/service"
	"frubric_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type GradingController struct {
	GradingService *service.GradingService
}

func NewGradingController(gradingService *service.GradingService) *GradingController {
	return &GradingController{GradingService: gradingService}
}

// @Summary 创建评分实例
// @Description 定义必须为 ready；同一评分人对同一对象未完成的实例会被复用
// @Tags 评分
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "定义ID"
// @Param body body service.CreateInstanceRequest true "评分对象"
// @Success 201 {object} util.Response
// @Router /api/grader/definitions/{id}/instances [post]
func (c *GradingController) CreateInstance(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	defID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.CreateInstanceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	inst, err := c.GradingService.CreateInstance(ctx.Request.Context(), defID, user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, inst)
}

// @Summary 提交评分
// @Description 每个评价标准选择一个等级，未给出分数时按勾选的描述项推算
// @Tags 评分
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "实例ID"
// @Param body body service.FillRequest true "评分内容"
// @Success 200 {object} util.Response
// @Router /api/grader/instances/{id}/fill [post]
func (c *GradingController) Fill(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.FillRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	view, err := c.GradingService.Fill(ctx.Request.Context(), id, user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 获取评分实例
// @Tags 评分
// @Produce json
// @Security BearerAuth
// @Param id path int true "实例ID"
// @Success 200 {object} util.Response
// @Router /api/grader/instances/{id} [get]
func (c *GradingController) GetInstance(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	view, err := c.GradingService.GetInstance(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 学生查看成绩
// @Description 展示内容由定义选项控制
// @Tags 评分
// @Produce json
// @Security BearerAuth
// @Param itemId path int true "评分对象ID"
// @Param definitionId query int true "定义ID"
// @Success 200 {object} util.Response
// @Router /api/student/items/{itemId}/grade [get]
func (c *GradingController) StudentGrade(ctx *gin.Context) {
	itemID, ok := pathID(ctx, "itemId")
	if !ok {
		return
	}
	defID, err := strconv.ParseUint(ctx.Query("definitionId"), 10, 64)
	if err != nil || defID == 0 {
		util.BadRequest(ctx, "invalid definitionId")
		return
	}
	view, err := c.GradingService.GradeForItem(ctx.Request.Context(), uint(defID), itemID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}
