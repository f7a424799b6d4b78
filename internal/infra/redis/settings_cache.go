package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/repository"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultSettingsTTL = 30 * time.Second

var _ repository.SettingsRepository = (*CachedSettingsRepo)(nil)

// CachedSettingsRepo is a read-through cache in front of a SettingsRepository.
// Redis failures fall back to the underlying store.
type CachedSettingsRepo struct {
	client *goredis.Client
	next   repository.SettingsRepository
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSettingsRepo(
	client *goredis.Client,
	next repository.SettingsRepository,
	ttl time.Duration,
	logger *zap.Logger,
) (*CachedSettingsRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if next == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if ttl <= 0 {
		ttl = defaultSettingsTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CachedSettingsRepo{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (c *CachedSettingsRepo) Get(ctx context.Context, key string) ([]byte, error) {
	cacheKey := settingsCacheKey(key)

	cached, err := c.client.Get(ctx, cacheKey).Bytes()
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, goredis.Nil):
		c.logger.Warn("settings cache read failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	value, err := c.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, cacheKey, value, c.ttl).Err(); err != nil {
		c.logger.Warn("settings cache write failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	return value, nil
}

// Set writes through to the store and drops the cached copy.
func (c *CachedSettingsRepo) Set(ctx context.Context, key string, value []byte) error {
	if err := c.next.Set(ctx, key, value); err != nil {
		return err
	}
	c.Invalidate(ctx, key)
	return nil
}

func (c *CachedSettingsRepo) Invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, settingsCacheKey(key)).Err(); err != nil {
		c.logger.Warn("settings cache invalidation failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func settingsCacheKey(key string) string {
	return "settings:" + key
}
