package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/push-broadcast/internal/domain"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

type ListParams struct {
	Platform *domain.Platform
	Page     int
	PageSize int
}

type PushTokenRepository interface {
	Create(ctx context.Context, t *domain.PushToken) error
	GetByToken(ctx context.Context, token string) (*domain.PushToken, error)
	UpdatePlatform(ctx context.Context, id string, platform domain.Platform, updatedAt time.Time) error
	DeleteByID(ctx context.Context, id string) error
	List(ctx context.Context, params ListParams) ([]domain.PushToken, int64, error)
	ListAddresses(ctx context.Context) ([]string, error)
}

type GormPushTokenRepo struct {
	db *gorm.DB
}

func NewGormPushTokenRepo(db *gorm.DB) *GormPushTokenRepo {
	return &GormPushTokenRepo{db: db}
}

func (r *GormPushTokenRepo) Create(ctx context.Context, t *domain.PushToken) error {
	model := pushTokenModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return err
	}
	if t != nil {
		*t = *pushTokenModelToDomain(model)
	}
	return nil
}

func (r *GormPushTokenRepo) GetByToken(ctx context.Context, token string) (*domain.PushToken, error) {
	var model PushTokenModel
	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return pushTokenModelToDomain(&model), nil
}

func (r *GormPushTokenRepo) UpdatePlatform(ctx context.Context, id string, platform domain.Platform, updatedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&PushTokenModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"platform":   platform,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormPushTokenRepo) DeleteByID(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&PushTokenModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormPushTokenRepo) List(ctx context.Context, params ListParams) ([]domain.PushToken, int64, error) {
	query := r.db.WithContext(ctx).Model(&PushTokenModel{})

	if params.Platform != nil {
		query = query.Where("platform = ?", *params.Platform)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	var models []PushTokenModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	tokens := make([]domain.PushToken, 0, len(models))
	for i := range models {
		tokens = append(tokens, *pushTokenModelToDomain(&models[i]))
	}

	return tokens, total, nil
}

// ListAddresses returns every registered token, oldest registration first.
func (r *GormPushTokenRepo) ListAddresses(ctx context.Context) ([]string, error) {
	var addresses []string
	err := r.db.WithContext(ctx).
		Model(&PushTokenModel{}).
		Order("created_at ASC").
		Order("id ASC").
		Pluck("token", &addresses).Error
	if err != nil {
		return nil, err
	}
	return addresses, nil
}
