package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN          string `env:"DATABASE_DSN,required=true"`
	RedisURL             string `env:"REDIS_URL,required=true"`
	RabbitMQURL          string `env:"RABBITMQ_URL"`
	ExpoPushURL          string `env:"EXPO_PUSH_URL,default=https://exp.host/--/api/v2/push/send"`
	ExpoAccessToken      string `env:"EXPO_ACCESS_TOKEN"`
	AdminAPIKey          string `env:"ADMIN_API_KEY"`
	PushRateLimitPerSec  int    `env:"PUSH_RATE_LIMIT_PER_SEC,default=6"`
	BroadcastConcurrency int    `env:"BROADCAST_CONCURRENCY,default=1"`
	TokenCacheTTLSeconds int    `env:"TOKEN_CACHE_TTL_SECONDS,default=300"`
	WorkerConcurrency    int    `env:"WORKER_CONCURRENCY,default=1"`
	WorkerPrefetch       int    `env:"WORKER_PREFETCH,default=1"`
	APIPort              int    `env:"API_PORT,default=8080"`
	LogLevel             string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.PushRateLimitPerSec < 1 {
		return fmt.Errorf("PUSH_RATE_LIMIT_PER_SEC must be >= 1")
	}
	if c.BroadcastConcurrency < 1 {
		return fmt.Errorf("BROADCAST_CONCURRENCY must be >= 1")
	}
	if c.TokenCacheTTLSeconds < 0 {
		return fmt.Errorf("TOKEN_CACHE_TTL_SECONDS must be >= 0")
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be >= 1")
	}
	if c.WorkerPrefetch < 1 {
		return fmt.Errorf("WORKER_PREFETCH must be >= 1")
	}
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT must be between 1 and 65535")
	}
	return nil
}

// TokenCacheTTL is zero when the address cache is disabled.
func (c *Config) TokenCacheTTL() time.Duration {
	return time.Duration(c.TokenCacheTTLSeconds) * time.Second
}

// AsyncEnabled reports whether a broker is configured.
func (c *Config) AsyncEnabled() bool {
	return strings.TrimSpace(c.RabbitMQURL) != ""
}
