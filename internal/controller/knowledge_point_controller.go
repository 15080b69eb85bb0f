package controller

import (
	"math_practice_backend/internal/knowledge"
	"math_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// KnowledgePointController 知识点目录查询。目录在编译期固定，
// 不提供增删改。
type KnowledgePointController struct{}

func NewKnowledgePointController() *KnowledgePointController {
	return &KnowledgePointController{}
}

// @Summary 获取知识点目录
// @Tags 知识点
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]knowledge.KnowledgePoint}
// @Router /api/knowledge-points [get]
func (c *KnowledgePointController) List(ctx *gin.Context) {
	util.Success(ctx, knowledge.All())
}

// MatchRequest 知识点关键词匹配请求
// swagger:model MatchRequest
type MatchRequest struct {
	Text string `json:"text" binding:"required"`
}

// @Summary 按关键词匹配知识点
// @Description 对输入文本做关键词子串匹配，按目录顺序返回命中的知识点
// @Tags 知识点
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body MatchRequest true "待匹配文本"
// @Success 200 {object} util.Response{data=[]knowledge.KnowledgePoint}
// @Failure 400 {object} util.Response
// @Router /api/knowledge-points/match [post]
func (c *KnowledgePointController) Match(ctx *gin.Context) {
	var req MatchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	util.Success(ctx, knowledge.FindMatching(req.Text))
}
