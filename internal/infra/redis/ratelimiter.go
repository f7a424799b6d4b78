package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultSendsPerSec int64 = 5
	minWaitStep              = 10 * time.Millisecond
	window                   = time.Second
)

// KEYS[1] is the per-instance window key, ARGV[1] the window budget and
// ARGV[2] the key lifetime in milliseconds.
var takeTokenScript = goredis.NewScript(`
local used = redis.call("INCR", KEYS[1])
if used == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if used > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter caps sends per bridge instance in one-second windows. The
// window counter lives in redis so every relay process shares the budget.
type RedisRateLimiter struct {
	client      *goredis.Client
	sendsPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, sendsPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(sendsPerSec), time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	sendsPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if sendsPerSec <= 0 {
		sendsPerSec = defaultSendsPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:      client,
		sendsPerSec: sendsPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, instance string) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	key, err := windowKey(instance, r.now())
	if err != nil {
		return false, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	taken, err := takeTokenScript.Run(ctx, r.client, []string{key}, r.sendsPerSec, window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	return taken == 1, nil
}

// Wait blocks until instance has budget in the current window or ctx is done.
// A denied caller sleeps until the next window opens.
func (r *RedisRateLimiter) Wait(ctx context.Context, instance string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		allowed, err := r.Allow(ctx, instance)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, untilNextWindow(r.now())); err != nil {
			return err
		}
	}
}

func windowKey(instance string, now time.Time) (string, error) {
	name := strings.ToLower(strings.TrimSpace(instance))
	if name == "" {
		return "", fmt.Errorf("instance is required")
	}
	return fmt.Sprintf("ratelimit:bridge:%s:%d", name, now.UTC().Unix()), nil
}

func untilNextWindow(now time.Time) time.Duration {
	elapsed := time.Duration(now.UnixNano() % int64(window))
	d := window - elapsed
	if d < minWaitStep {
		d = minWaitStep
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
