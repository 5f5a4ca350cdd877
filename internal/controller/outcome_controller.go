package controller

import (
	"frubric_backend/internal/service"
	"frubric_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type OutcomeController struct {
	OutcomeService *service.OutcomeService
}

func NewOutcomeController(outcomeService *service.OutcomeService) *OutcomeController {
	return &OutcomeController{OutcomeService: outcomeService}
}

// @Summary 创建学习成果
// @Tags 学习成果
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateOutcomeRequest true "学习成果"
// @Success 201 {object} util.Response
// @Router /api/teacher/outcomes [post]
func (c *OutcomeController) Create(ctx *gin.Context) {
	var req service.CreateOutcomeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	o, err := c.OutcomeService.Create(req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, o)
}

// @Summary 学习成果列表
// @Tags 学习成果
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/teacher/outcomes [get]
func (c *OutcomeController) List(ctx *gin.Context) {
	list, err := c.OutcomeService.List()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// @Summary 评分对象的学习成果成绩
// @Tags 学习成果
// @Produce json
// @Security BearerAuth
// @Param itemId path int true "评分对象ID"
// @Success 200 {object} util.Response
// @Router /api/grader/items/{itemId}/outcomes [get]
func (c *OutcomeController) ItemGrades(ctx *gin.Context) {
	itemID, ok := pathID(ctx, "itemId")
	if !ok {
		return
	}
	grades, err := c.OutcomeService.GradesForItem(itemID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, grades)
}
