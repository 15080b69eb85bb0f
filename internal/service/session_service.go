package service

import (
	"encoding/json"
	"math_practice_backend/internal/answer"
	"math_practice_backend/internal/grading"
	"math_practice_backend/internal/model"
	"math_practice_backend/internal/practice"
	"math_practice_backend/internal/repository"
	"math_practice_backend/internal/util"
	"time"

	"gorm.io/gorm"
)

// SessionSummary 会话列表项，不携带练习与批改的完整数据。
type SessionSummary struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Prompt            string    `json:"prompt"`
	ParentSessionID   string    `json:"parent_session_id,omitempty"`
	HasGradingResults bool      `json:"has_grading_results"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SessionService 练习会话的查询、删除与报告再生成。
type SessionService struct {
	SessionRepo *repository.SessionRepository
}

func NewSessionService(sessionRepo *repository.SessionRepository) *SessionService {
	return &SessionService{SessionRepo: sessionRepo}
}

// List 分页列出用户的会话，新会话在前。
func (s *SessionService) List(userID uint, page, pageSize int) ([]SessionSummary, int64, error) {
	sessions, total, err := s.SessionRepo.List(userID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, SessionSummary{
			ID:                sess.ID,
			Title:             sess.Title,
			Prompt:            sess.Prompt,
			ParentSessionID:   sess.ParentSessionID,
			HasGradingResults: len(sess.GradingResults) > 0,
			CreatedAt:         sess.CreatedAt,
			UpdatedAt:         sess.UpdatedAt,
		})
	}
	return summaries, total, nil
}

// Get 返回会话完整数据。
func (s *SessionService) Get(userID uint, sessionID string) (*model.PracticeSession, error) {
	session, err := s.SessionRepo.FindByID(userID, sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// Delete 删除会话（软删除）。
func (s *SessionService) Delete(userID uint, sessionID string) error {
	if err := s.SessionRepo.Delete(userID, sessionID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return util.ErrSessionNotFound
		}
		return err
	}
	return nil
}

// RenderPractice 重新渲染会话中试卷的 Markdown。
func (s *SessionService) RenderPractice(userID uint, sessionID string) (practice.Sheet, string, error) {
	session, err := s.Get(userID, sessionID)
	if err != nil {
		return practice.Sheet{}, "", err
	}
	if len(session.PracticeData) == 0 {
		return practice.Sheet{}, "", util.ErrPracticeNotReady
	}

	var sheet practice.Sheet
	if err := json.Unmarshal(session.PracticeData, &sheet); err != nil {
		return practice.Sheet{}, "", err
	}

	markdown, err := practice.RenderMarkdown(sheet)
	if err != nil {
		return practice.Sheet{}, "", err
	}
	return sheet, markdown, nil
}

// Report 基于会话中已有的批改结果重新生成批改报告。
func (s *SessionService) Report(userID uint, sessionID string) (string, error) {
	session, err := s.Get(userID, sessionID)
	if err != nil {
		return "", err
	}
	if len(session.GradingResults) == 0 {
		return "", util.ErrNoGradingResults
	}

	var results []grading.Result
	if err := json.Unmarshal(session.GradingResults, &results); err != nil {
		return "", err
	}

	var studentAnswers []answer.Sheet
	if len(session.StudentAnswers) > 0 {
		if err := json.Unmarshal(session.StudentAnswers, &studentAnswers); err != nil {
			return "", err
		}
	}

	return grading.GenerateReport(results, studentAnswers, time.Now()), nil
}
