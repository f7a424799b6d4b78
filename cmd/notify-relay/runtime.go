package main

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notify-relay/internal/config"
	"github.com/kursadbilgin/notify-relay/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/notify-relay/internal/infra/redis"
	"github.com/kursadbilgin/notify-relay/internal/observability"
	"github.com/kursadbilgin/notify-relay/internal/provider"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"github.com/kursadbilgin/notify-relay/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime holds the process-wide dependencies a command opens. Closers run
// in reverse order.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	rdb     *redis.Client
	closers []func()
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, func() { _ = logger.Sync() })
	return rt, nil
}

func (rt *runtime) openPostgres() error {
	db, err := postgresql.NewPostgres(rt.cfg.DatabaseDSN, postgresql.PoolOptions{})
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}

	rt.db = db
	rt.closers = append(rt.closers, func() { _ = sqlDB.Close() })
	return nil
}

func (rt *runtime) openRedis(ctx context.Context) error {
	rdb, err := infraredis.NewRedis(ctx, rt.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}

	rt.rdb = rdb
	rt.closers = append(rt.closers, func() { _ = rdb.Close() })
	return nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func (rt *runtime) clientFactory() provider.BridgeClientFactory {
	return provider.BridgeClientFactory{Timeout: rt.cfg.DeliveryTimeout}
}

// configResolver reads settings through the redis cache when redis is open.
func (rt *runtime) configResolver() (*service.ConfigResolver, error) {
	var settings repository.SettingsRepository = repository.NewGormSettingsRepo(rt.db)
	if rt.rdb != nil {
		cached, err := infraredis.NewCachedSettingsRepo(rt.rdb, settings, rt.cfg.SettingsCacheTTL, rt.logger)
		if err != nil {
			return nil, err
		}
		settings = cached
	}
	return service.NewConfigResolver(settings, rt.logger)
}

func (rt *runtime) notificationService(resolver *service.ConfigResolver) (*service.NotificationService, error) {
	return service.NewNotificationService(
		repository.NewGormNotificationRepo(rt.db),
		resolver,
		rt.clientFactory(),
		rt.cfg.ListRetention,
		rt.logger,
	)
}

func (rt *runtime) staleClaimSweeper(metrics *observability.Metrics) (*service.StaleClaimSweeper, error) {
	sweeper, err := service.NewStaleClaimSweeper(
		repository.NewGormNotificationRepo(rt.db),
		rt.cfg.SweepInterval,
		rt.cfg.StaleClaimAfter,
		rt.cfg.StaleSweepLimit,
		observability.ForComponent(rt.logger, "sweeper"),
	)
	if err != nil {
		return nil, err
	}
	sweeper.SetMetrics(metrics)
	return sweeper, nil
}
