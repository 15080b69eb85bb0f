package controller

import (
	"errors"
	"math_practice_backend/internal/service"
	"math_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	SessionService *service.SessionService
}

func NewSessionController(sessionService *service.SessionService) *SessionController {
	return &SessionController{SessionService: sessionService}
}

// @Summary 会话列表
// @Description 分页列出当前用户的练习会话，新会话在前
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码，默认1"
// @Param limit query int false "每页数量，默认10"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/sessions [get]
func (c *SessionController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page := util.ParseIntDefault(ctx.DefaultQuery("page", "1"), 1)
	limit := util.ParseIntDefault(ctx.DefaultQuery("limit", "10"), 10)

	sessions, total, err := c.SessionService.List(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  sessions,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// @Summary 会话详情
// @Description 返回会话的完整数据：试卷、学生答案、批改结果、错误分析与图片地址
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.PracticeSession}
// @Failure 404 {object} util.Response
// @Router /api/sessions/{id} [get]
func (c *SessionController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	session, err := c.SessionService.Get(claims.UserID, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			util.Error(ctx, 404, err.Error())
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, session)
}

// @Summary 删除会话
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 404 {object} util.Response
// @Router /api/sessions/{id} [delete]
func (c *SessionController) Delete(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	id := ctx.Param("id")
	if err := c.SessionService.Delete(claims.UserID, id); err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			util.Error(ctx, 404, err.Error())
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"deleted": id})
}

// @Summary 试卷 Markdown
// @Description 重新渲染会话中试卷的 Markdown 文本
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/sessions/{id}/markdown [get]
func (c *SessionController) Markdown(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	sheet, markdown, err := c.SessionService.RenderPractice(claims.UserID, ctx.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, util.ErrSessionNotFound):
			util.Error(ctx, 404, err.Error())
		case errors.Is(err, util.ErrPracticeNotReady):
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{
		"title":    sheet.Title,
		"markdown": markdown,
	})
}

// @Summary 批改报告
// @Description 基于会话中已有的批改结果重新生成批改报告
// @Tags 会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/sessions/{id}/report [get]
func (c *SessionController) Report(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	report, err := c.SessionService.Report(claims.UserID, ctx.Param("id"))
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

	util.Success(ctx, gin.H{"report": report})
}
