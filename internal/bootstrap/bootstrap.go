// Package bootstrap builds the dependency graph shared by the API and the worker.
package bootstrap

import (
	"fmt"

	"github.com/kursadbilgin/push-broadcast/internal/broadcast"
	"github.com/kursadbilgin/push-broadcast/internal/cache"
	"github.com/kursadbilgin/push-broadcast/internal/config"
	infraredis "github.com/kursadbilgin/push-broadcast/internal/infra/redis"
	"github.com/kursadbilgin/push-broadcast/internal/observability"
	"github.com/kursadbilgin/push-broadcast/internal/provider"
	"github.com/kursadbilgin/push-broadcast/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewTokenRepository returns the GORM token store, wrapped in the Redis
// address cache unless TOKEN_CACHE_TTL_SECONDS is 0.
func NewTokenRepository(
	cfg *config.Config,
	db *gorm.DB,
	rdb *redis.Client,
	logger *zap.Logger,
) (repository.PushTokenRepository, error) {
	store := repository.NewGormPushTokenRepo(db)
	if cfg.TokenCacheTTL() <= 0 {
		logger.Info("push token address cache disabled")
		return store, nil
	}

	cached, err := cache.NewCachedTokenRepository(store, rdb, cfg.TokenCacheTTL(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build token cache: %w", err)
	}
	return cached, nil
}

// NewDispatcher wires the Expo provider and the Redis batch limiter into a
// broadcast dispatcher.
func NewDispatcher(
	cfg *config.Config,
	registry broadcast.Registry,
	rdb *redis.Client,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*broadcast.Dispatcher, error) {
	expo, err := provider.NewExpoProvider(cfg.ExpoPushURL, cfg.ExpoAccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to build expo provider: %w", err)
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.PushRateLimitPerSec)
	if err != nil {
		return nil, fmt.Errorf("failed to build rate limiter: %w", err)
	}

	return broadcast.NewDispatcher(registry, expo, logger,
		broadcast.WithConcurrency(cfg.BroadcastConcurrency),
		broadcast.WithRateLimiter(limiter),
		broadcast.WithMetrics(metrics),
	)
}
