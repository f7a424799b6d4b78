package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestRedisRateLimiterAllow(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_000, 0)
	limiter, err := newRedisRateLimiter(
		rdb,
		2,
		func() time.Time { return now },
		sleepWithContext,
	)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	allowed, err := limiter.Allow(context.Background(), "genie")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("first call should be allowed")
	}

	allowed, err = limiter.Allow(context.Background(), "genie")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("second call should be allowed")
	}

	allowed, err = limiter.Allow(context.Background(), "genie")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Fatal("third call should be rejected by rate limit")
	}

	now = now.Add(time.Second)
	allowed, err = limiter.Allow(context.Background(), "genie")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("new second window should allow call")
	}
}

func TestRedisRateLimiterAllowPerInstance(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_100, 0)
	limiter, err := newRedisRateLimiter(
		rdb,
		1,
		func() time.Time { return now },
		sleepWithContext,
	)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	allowed, err := limiter.Allow(context.Background(), "genie")
	if err != nil {
		t.Fatalf("Allow(genie) error = %v", err)
	}
	if !allowed {
		t.Fatal("genie should be allowed on first request")
	}

	allowed, err = limiter.Allow(context.Background(), "support-line")
	if err != nil {
		t.Fatalf("Allow(support-line) error = %v", err)
	}
	if !allowed {
		t.Fatal("support-line should be allowed on first request")
	}

	allowed, err = limiter.Allow(context.Background(), "genie")
	if err != nil {
		t.Fatalf("Allow(genie) error = %v", err)
	}
	if allowed {
		t.Fatal("genie second request should be rejected")
	}
}

func TestRedisRateLimiterWait(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_200, int64(800*time.Millisecond))
	var slept []time.Duration
	limiter, err := newRedisRateLimiter(
		rdb,
		1,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			now = now.Add(d)
			return nil
		},
	)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	allowed, err := limiter.Allow(context.Background(), "genie")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("expected first call to be allowed")
	}

	if err := limiter.Wait(context.Background(), "genie"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(slept) != 1 {
		t.Fatalf("sleeps = %v, want exactly one", slept)
	}
	if slept[0] != 200*time.Millisecond {
		t.Fatalf("slept %s, want the 200ms left in the window", slept[0])
	}
}

func TestRedisRateLimiterWaitContextDeadline(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_300, 0)
	limiter, err := newRedisRateLimiter(
		rdb,
		1,
		func() time.Time { return now },
		sleepWithContext,
	)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	allowed, err := limiter.Allow(context.Background(), "genie")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("expected first call to be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err = limiter.Wait(ctx, "genie")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb
}

func TestRedisRateLimiterNormalizesInstanceName(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_400, 0)
	limiter, err := newRedisRateLimiter(rdb, 1, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if allowed, err := limiter.Allow(context.Background(), " Genie "); err != nil || !allowed {
		t.Fatalf("Allow() = %v, %v; want true, nil", allowed, err)
	}
	if allowed, err := limiter.Allow(context.Background(), "genie"); err != nil || allowed {
		t.Fatalf("Allow() = %v, %v; want false, nil", allowed, err)
	}
	if _, err := limiter.Allow(context.Background(), "  "); err == nil {
		t.Fatal("Allow() with blank instance should fail")
	}
}

func TestUntilNextWindow(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{name: "window start", now: time.Unix(100, 0), want: time.Second},
		{name: "mid window", now: time.Unix(100, int64(250*time.Millisecond)), want: 750 * time.Millisecond},
		{name: "clamped near boundary", now: time.Unix(100, int64(999*time.Millisecond)), want: minWaitStep},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := untilNextWindow(tc.now); got != tc.want {
				t.Fatalf("untilNextWindow() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestNewRedis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	client, err := NewRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if _, err := NewRedis(context.Background(), "not-a-url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}
