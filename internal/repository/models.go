package repository

import (
	"time"

	"github.com/kursadbilgin/push-broadcast/internal/domain"
)

// PushTokenModel is the persistence model for the push_tokens table.
type PushTokenModel struct {
	ID        string          `gorm:"type:uuid;primaryKey"`
	Token     string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_push_tokens_token"`
	Platform  domain.Platform `gorm:"type:varchar(10);not null"`
	CreatedAt time.Time       `gorm:"type:timestamptz;not null"`
	UpdatedAt time.Time       `gorm:"type:timestamptz;not null"`
}

func (PushTokenModel) TableName() string {
	return "push_tokens"
}

func pushTokenModelFromDomain(t *domain.PushToken) *PushTokenModel {
	if t == nil {
		return nil
	}

	return &PushTokenModel{
		ID:        t.ID,
		Token:     t.Token,
		Platform:  t.Platform,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func pushTokenModelToDomain(m *PushTokenModel) *domain.PushToken {
	if m == nil {
		return nil
	}

	return &domain.PushToken{
		ID:        m.ID,
		Token:     m.Token,
		Platform:  m.Platform,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
