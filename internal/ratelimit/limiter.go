package ratelimit

import "context"

// RateLimiter throttles deliveries per bridge instance.
type RateLimiter interface {
	Allow(ctx context.Context, instance string) (bool, error)
	Wait(ctx context.Context, instance string) error
}
