package model

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PracticeSession 一次出题/批改会话的完整快照。练习卷、学生作答、
// 批改结果等字段整体以 JSON 读写，不做列级迁移。
// swagger:model
type PracticeSession struct {
	ID        string         `gorm:"primaryKey;type:varchar(40)" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID uint   `gorm:"index" json:"userId"`
	Title  string `gorm:"size:200" json:"title"`
	Prompt string `gorm:"type:text" json:"prompt"`

	KnowledgePoints json.RawMessage `gorm:"type:json" json:"knowledgePoints"` // 大纲条目数组
	PracticeData    json.RawMessage `gorm:"type:json" json:"practiceData"`    // 练习卷快照
	StudentAnswers  json.RawMessage `gorm:"type:json" json:"studentAnswers"`  // 每张图片一份答卷
	GradingResults  json.RawMessage `gorm:"type:json" json:"gradingResults"`
	ErrorAnalysis   json.RawMessage `gorm:"type:json" json:"errorAnalysis"`
	SheetImages     json.RawMessage `gorm:"type:json" json:"sheetImages"`  // 上传的答题图片地址
	MarkedImages    json.RawMessage `gorm:"type:json" json:"markedImages"` // 批改标记后的图片地址

	TeachingSuggestions string `gorm:"type:text" json:"teachingSuggestions"`

	// 针对性练习会话指向它所依据的批改会话
	ParentSessionID string `gorm:"size:40;index;default:''" json:"parentSessionId"`
}

func (PracticeSession) TableName() string {
	return "practice_sessions"
}

func (s *PracticeSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = NewSessionID(time.Now())
	}
	return
}

// NewSessionID 生成形如 1a2b3c4d_20250315_103000 的会话ID。
func NewSessionID(now time.Time) string {
	u := uuid.New()
	return hex.EncodeToString(u[:4]) + "_" + now.Format("20060102_150405")
}
