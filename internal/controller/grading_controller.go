package controller

import (
	"errors"
	"io"
	"math_practice_backend/internal/service"
	"math_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type GradingController struct {
	GradingService *service.GradingService
	Hub            *service.ProgressHub
}

func NewGradingController(gradingService *service.GradingService, hub *service.ProgressHub) *GradingController {
	return &GradingController{
		GradingService: gradingService,
		Hub:            hub,
	}
}

// @Summary 批改学生答题图片
// @Description 上传一批学生答题图片，依次执行OCR、答案解析、逐题批改与标记绘制，返回批改报告
// @Tags 批改
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param images formData file true "学生答题图片（可多张）"
// @Success 200 {object} util.Response{data=service.ProcessOutcome}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/grading/{id}/images [post]
func (c *GradingController) ProcessImages(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	files := form.File["images"]
	images := make([]service.SheetImage, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			util.BadRequest(ctx, "读取上传文件失败: "+err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			util.BadRequest(ctx, "读取上传文件失败: "+err.Error())
			return
		}
		images = append(images, service.SheetImage{Filename: fh.Filename, Data: data})
	}

	outcome, err := c.GradingService.ProcessImages(ctx.Request.Context(), claims.UserID, ctx.Param("id"), images)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrNoImages):
			util.BadRequest(ctx, err.Error())
		case errors.Is(err, util.ErrSessionNotFound):
			util.Error(ctx, 404, err.Error())
		case errors.Is(err, util.ErrPracticeNotReady):
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, outcome)
}

// @Summary 分析错误知识点
// @Description 统计会话批改结果中的错误知识点并生成教学建议
// @Tags 批改
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.AnalysisOutcome}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/grading/{id}/analysis [post]
func (c *GradingController) AnalyzeErrors(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	outcome, err := c.GradingService.AnalyzeErrors(claims.UserID, ctx.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, util.ErrSessionNotFound):
			util.Error(ctx, 404, err.Error())
		case errors.Is(err, util.ErrNoGradingResults):
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, outcome)
}

// HandleWS godoc
// @Summary 批改进度 WebSocket
// @Description 建立 WebSocket 连接以接收批改进度事件
// @Tags 批改
// @Produce json
// @Security BearerAuth
// @Param token query string true "JWT Token"
// @Success 101 {string} string "Switching Protocols"
// @Router /api/grading/progress/ws [get]
func (c *GradingController) HandleWS(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	service.ServeProgressWS(c.Hub, ctx.Writer, ctx.Request, claims.UserID)
}
