package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/push-broadcast/internal/domain"
	"github.com/kursadbilgin/push-broadcast/internal/repository"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AddressesKey holds the JSON encoded address snapshot.
const AddressesKey = "push:tokens:addresses"

var _ repository.PushTokenRepository = (*CachedTokenRepository)(nil)

// CachedTokenRepository adds a read-aside cache of the address list to a
// PushTokenRepository. Every write through it drops the cached snapshot.
type CachedTokenRepository struct {
	repository.PushTokenRepository

	client goredis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedTokenRepository(
	store repository.PushTokenRepository,
	client goredis.Cmdable,
	ttl time.Duration,
	logger *zap.Logger,
) (*CachedTokenRepository, error) {
	if store == nil {
		return nil, fmt.Errorf("token repository is required")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CachedTokenRepository{
		PushTokenRepository: store,
		client:              client,
		ttl:                 ttl,
		logger:              logger,
	}, nil
}

// ListAddresses serves the snapshot from Redis and falls back to the store on
// a miss or any Redis failure.
func (r *CachedTokenRepository) ListAddresses(ctx context.Context) ([]string, error) {
	raw, err := r.client.Get(ctx, AddressesKey).Bytes()
	switch {
	case err == nil:
		var addresses []string
		decodeErr := json.Unmarshal(raw, &addresses)
		if decodeErr == nil {
			return addresses, nil
		}
		r.logger.Warn("discarding undecodable address cache", zap.Error(decodeErr))
	case errors.Is(err, goredis.Nil):
	default:
		r.logger.Warn("address cache read failed", zap.Error(err))
	}

	addresses, err := r.PushTokenRepository.ListAddresses(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(addresses)
	if err != nil {
		return addresses, nil
	}
	if err := r.client.Set(ctx, AddressesKey, encoded, r.ttl).Err(); err != nil {
		r.logger.Warn("address cache write failed", zap.Error(err))
	}

	return addresses, nil
}

func (r *CachedTokenRepository) Create(ctx context.Context, t *domain.PushToken) error {
	if err := r.PushTokenRepository.Create(ctx, t); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *CachedTokenRepository) UpdatePlatform(ctx context.Context, id string, platform domain.Platform, updatedAt time.Time) error {
	if err := r.PushTokenRepository.UpdatePlatform(ctx, id, platform, updatedAt); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *CachedTokenRepository) DeleteByID(ctx context.Context, id string) error {
	if err := r.PushTokenRepository.DeleteByID(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

// A failed delete leaves a stale snapshot for at most one TTL.
func (r *CachedTokenRepository) invalidate(ctx context.Context) {
	if err := r.client.Del(ctx, AddressesKey).Err(); err != nil {
		r.logger.Warn("address cache invalidation failed", zap.Error(err))
	}
}
