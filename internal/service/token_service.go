package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/push-broadcast/internal/domain"
	"github.com/kursadbilgin/push-broadcast/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TokenService owns push token registration on top of the token repository.
type TokenService struct {
	tokens repository.PushTokenRepository
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewTokenService(tokens repository.PushTokenRepository, logger *zap.Logger) (*TokenService, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TokenService{
		tokens: tokens,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Register creates the token or, when it is already known, updates its
// platform. created reports which of the two happened.
func (s *TokenService) Register(
	ctx context.Context,
	token string,
	platform string,
	timestamp string,
) (*domain.PushToken, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false, fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	parsedPlatform, err := domain.ParsePlatformFromString(platform)
	if err != nil {
		return nil, false, err
	}
	at, err := s.parseTimestamp(timestamp)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.tokens.GetByToken(ctx, token)
	switch {
	case err == nil:
		updated, err := s.update(ctx, existing, parsedPlatform, at)
		return updated, false, err
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, fmt.Errorf("failed to look up push token: %w", err)
	}

	record := &domain.PushToken{
		ID:        s.newID(),
		Token:     token,
		Platform:  parsedPlatform,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := record.Validate(); err != nil {
		return nil, false, err
	}

	if err := s.tokens.Create(ctx, record); err != nil {
		if !isUniqueViolationError(err) {
			return nil, false, fmt.Errorf("failed to create push token: %w", err)
		}

		// Lost a race with a concurrent registration of the same token.
		existing, getErr := s.tokens.GetByToken(ctx, token)
		if getErr != nil {
			return nil, false, fmt.Errorf("failed to load push token after conflict: %w", getErr)
		}
		updated, err := s.update(ctx, existing, parsedPlatform, at)
		return updated, false, err
	}

	s.logger.Info("push token registered",
		zap.String("id", record.ID),
		zap.String("platform", record.Platform.String()),
	)
	return record, true, nil
}

func (s *TokenService) List(ctx context.Context, params repository.ListParams) ([]domain.PushToken, int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.tokens.List(ctx, params)
}

func (s *TokenService) Delete(ctx context.Context, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", domain.ErrValidation)
	}
	if err := uuid.Validate(id); err != nil {
		return domain.ErrNotFound
	}

	if err := s.tokens.DeleteByID(ctx, id); err != nil {
		return err
	}

	s.logger.Info("push token deleted", zap.String("id", id))
	return nil
}

func (s *TokenService) update(
	ctx context.Context,
	existing *domain.PushToken,
	platform domain.Platform,
	at time.Time,
) (*domain.PushToken, error) {
	if err := s.tokens.UpdatePlatform(ctx, existing.ID, platform, at); err != nil {
		return nil, fmt.Errorf("failed to update push token: %w", err)
	}

	existing.Platform = platform
	existing.UpdatedAt = at

	s.logger.Info("push token updated",
		zap.String("id", existing.ID),
		zap.String("platform", platform.String()),
	)
	return existing, nil
}

func (s *TokenService) parseTimestamp(timestamp string) (time.Time, error) {
	trimmed := strings.TrimSpace(timestamp)
	if trimmed == "" {
		return s.now().UTC(), nil
	}

	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp must be RFC3339", domain.ErrValidation)
	}
	return parsed.UTC(), nil
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrConflict) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
