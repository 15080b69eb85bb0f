package repository

import (
	"math_practice_backend/internal/model"

	"gorm.io/gorm"
)

type SessionRepository struct {
	DB *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) Create(session *model.PracticeSession) error {
	return r.DB.Create(session).Error
}

func (r *SessionRepository) Save(session *model.PracticeSession) error {
	return r.DB.Save(session).Error
}

// FindByID 只返回属主自己的会话。
func (r *SessionRepository) FindByID(userID uint, id string) (*model.PracticeSession, error) {
	var session model.PracticeSession
	err := r.DB.Where("user_id = ?", userID).First(&session, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// List 按属主分页列出会话，新的在前。
func (r *SessionRepository) List(userID uint, page, pageSize int) ([]model.PracticeSession, int64, error) {
	var sessions []model.PracticeSession
	var total int64

	query := r.DB.Model(&model.PracticeSession{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&sessions).Error
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

func (r *SessionRepository) Delete(userID uint, id string) error {
	result := r.DB.Where("user_id = ?", userID).Delete(&model.PracticeSession{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
