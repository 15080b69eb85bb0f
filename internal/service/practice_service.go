package service

import (
	"context"
	"encoding/json"
	"math/rand"
	"math_practice_backend/internal/config"
	"math_practice_backend/internal/grading"
	"math_practice_backend/internal/knowledge"
	"math_practice_backend/internal/model"
	"math_practice_backend/internal/practice"
	"math_practice_backend/internal/repository"
	"math_practice_backend/internal/util"
	"math_practice_backend/pkg/logger"
	"math_practice_backend/pkg/monitoring"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PracticeService 负责组卷：提取知识点、从题库选题、创建练习会话。
// 随机源由构造方注入，同一种子下组卷结果可复现。
type PracticeService struct {
	Assembler   *practice.Assembler
	AI          *AIService
	SessionRepo *repository.SessionRepository
	Cfg         *config.Config

	randMu sync.Mutex
	rng    *rand.Rand
}

func NewPracticeService(assembler *practice.Assembler, ai *AIService, sessionRepo *repository.SessionRepository, cfg *config.Config, rng *rand.Rand) *PracticeService {
	return &PracticeService{
		Assembler:   assembler,
		AI:          ai,
		SessionRepo: sessionRepo,
		Cfg:         cfg,
		rng:         rng,
	}
}

// GenerateResult 一次组卷的完整产物。Notice 非空表示本次没有生成
// 新练习（例如批改结果中没有明显的错误模式），此时 Session 为空。
type GenerateResult struct {
	Session         *model.PracticeSession `json:"session,omitempty"`
	Sheet           practice.Sheet         `json:"practice"`
	Markdown        string                 `json:"markdown,omitempty"`
	KnowledgePoints []string               `json:"knowledge_points,omitempty"`
	Notice          string                 `json:"notice,omitempty"`
}

// Generate 根据出题要求生成练习并创建新会话。知识点提取失败时
// AI 层已退回关键词匹配，这里拿到空列表也继续组卷（随机补题）。
func (s *PracticeService) Generate(ctx context.Context, userID uint, prompt string, choiceCount, calculationCount int) (*GenerateResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, util.ErrEmptyPrompt
	}
	if choiceCount <= 0 {
		choiceCount = s.Cfg.Practice.ChoiceCount
	}
	if calculationCount <= 0 {
		calculationCount = s.Cfg.Practice.CalculationCount
	}

	points := s.AI.ExtractKnowledgePoints(ctx, prompt)
	outlines := outlinesOfPoints(points)

	sheet, err := s.assemble("练习试题", outlines, choiceCount, calculationCount)
	if err != nil {
		return nil, err
	}

	session, markdown, err := s.createSession(userID, sheet, prompt, outlines, nil, "")
	if err != nil {
		return nil, err
	}

	logger.Log.Info("生成练习成功",
		zap.Uint("userId", userID),
		zap.String("sessionId", session.ID),
		zap.Strings("knowledgePoints", outlines),
		zap.Int("questionCount", sheet.QuestionCount()))

	return &GenerateResult{
		Session:         session,
		Sheet:           sheet,
		Markdown:        markdown,
		KnowledgePoints: outlines,
	}, nil
}

// Regenerate 基于指定会话的批改结果分析错误知识点，针对错误最多的
// 知识点创建一个新会话并出卷，新会话记录父会话ID。没有明显错误
// 模式时不创建会话，只返回提示。
func (s *PracticeService) Regenerate(ctx context.Context, userID uint, sessionID string) (*GenerateResult, error) {
	parent, err := s.SessionRepo.FindByID(userID, sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	if len(parent.GradingResults) == 0 {
		return nil, util.ErrNoGradingResults
	}

	var results []grading.Result
	if err := json.Unmarshal(parent.GradingResults, &results); err != nil {
		return nil, err
	}

	analysis := grading.AnalyzeErrors(results)
	outlines := analysis.TopOutlines()
	if len(outlines) == 0 {
		return &GenerateResult{Notice: "未发现明显的错误模式"}, nil
	}

	sheet, err := s.assemble(practice.TitleForRegeneration(outlines), outlines, s.Cfg.Practice.ChoiceCount, s.Cfg.Practice.CalculationCount)
	if err != nil {
		return nil, err
	}

	prompt := "基于错误知识点的针对性练习: " + strings.Join(outlines, ", ")
	session, markdown, err := s.createSession(userID, sheet, prompt, outlines, &analysis, parent.ID)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("生成针对性练习成功",
		zap.Uint("userId", userID),
		zap.String("sessionId", session.ID),
		zap.String("parentSessionId", parent.ID),
		zap.Strings("errorKnowledgePoints", outlines))

	return &GenerateResult{
		Session:         session,
		Sheet:           sheet,
		Markdown:        markdown,
		KnowledgePoints: outlines,
	}, nil
}

func (s *PracticeService) assemble(title string, outlines []string, choiceCount, calculationCount int) (practice.Sheet, error) {
	s.randMu.Lock()
	p := s.Assembler.Build(s.rng, title, outlines, choiceCount, calculationCount)
	s.randMu.Unlock()

	sheet := s.Assembler.Snapshot(p)
	if sheet.QuestionCount() == 0 {
		return practice.Sheet{}, util.ErrNoQuestionsMatched
	}
	return sheet, nil
}

func (s *PracticeService) createSession(userID uint, sheet practice.Sheet, prompt string, outlines []string, analysis *grading.ErrorAnalysis, parentID string) (*model.PracticeSession, string, error) {
	markdown, err := practice.RenderMarkdown(sheet)
	if err != nil {
		return nil, "", err
	}

	pointsJSON, err := json.Marshal(outlines)
	if err != nil {
		return nil, "", err
	}
	practiceJSON, err := json.Marshal(sheet)
	if err != nil {
		return nil, "", err
	}

	session := &model.PracticeSession{
		UserID:          userID,
		Title:           sheet.Title,
		Prompt:          prompt,
		KnowledgePoints: pointsJSON,
		PracticeData:    practiceJSON,
		ParentSessionID: parentID,
	}
	if analysis != nil {
		analysisJSON, err := json.Marshal(analysis)
		if err != nil {
			return nil, "", err
		}
		session.ErrorAnalysis = analysisJSON
	}

	if err := s.SessionRepo.Create(session); err != nil {
		return nil, "", err
	}
	monitoring.PracticesGenerated.Inc()
	return session, markdown, nil
}

func outlinesOfPoints(points []knowledge.KnowledgePoint) []string {
	outlines := make([]string, 0, len(points))
	for _, kp := range points {
		outlines = append(outlines, kp.Outline)
	}
	return outlines
}
