package controller

import (
	"errors"
	"math_practice_backend/internal/service"
	"math_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type PracticeController struct {
	PracticeService *service.PracticeService
}

func NewPracticeController(practiceService *service.PracticeService) *PracticeController {
	return &PracticeController{PracticeService: practiceService}
}

// GeneratePracticeRequest 出题请求
// swagger:model GeneratePracticeRequest
type GeneratePracticeRequest struct {
	Prompt           string `json:"prompt" binding:"required"`
	ChoiceCount      int    `json:"choice_count" binding:"omitempty,min=0,max=20"`
	CalculationCount int    `json:"calculation_count" binding:"omitempty,min=0,max=20"`
}

// @Summary 生成练习
// @Description 从出题要求提取知识点并组卷，创建一个新的练习会话
// @Tags 练习
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body GeneratePracticeRequest true "出题要求"
// @Success 201 {object} util.Response{data=service.GenerateResult}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/practice/generate [post]
func (c *PracticeController) Generate(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req GeneratePracticeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.PracticeService.Generate(ctx.Request.Context(), claims.UserID, req.Prompt, req.ChoiceCount, req.CalculationCount)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrEmptyPrompt):
			util.BadRequest(ctx, err.Error())
		case errors.Is(err, util.ErrNoQuestionsMatched):
			util.Error(ctx, 404, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, result)
}

// @Summary 生成针对性练习
// @Description 分析指定会话的批改结果，针对错误最多的知识点重新组卷并创建新会话
// @Tags 练习
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 201 {object} util.Response{data=service.GenerateResult}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/practice/{id}/regenerate [post]
func (c *PracticeController) Regenerate(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.PracticeService.Regenerate(ctx.Request.Context(), claims.UserID, ctx.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, util.ErrSessionNotFound):
			util.Error(ctx, 404, err.Error())
		case errors.Is(err, util.ErrNoGradingResults):
			util.BadRequest(ctx, err.Error())
		case errors.Is(err, util.ErrNoQuestionsMatched):
			util.Error(ctx, 404, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	// 没有明显错误模式时不创建会话，返回提示
	if result.Session == nil {
		util.Success(ctx, result)
		return
	}

	util.Created(ctx, result)
}
