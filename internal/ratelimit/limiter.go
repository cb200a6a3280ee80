package ratelimit

import "context"

// RateLimiter bounds how many provider requests may start per second for a scope.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}

// ScopePush is the scope shared by every outbound push batch.
const ScopePush = "push"
