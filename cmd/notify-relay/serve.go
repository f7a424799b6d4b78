package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kursadbilgin/notify-relay/internal/handler"
	"github.com/kursadbilgin/notify-relay/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notify-relay/internal/infra/redis"
	"github.com/kursadbilgin/notify-relay/internal/observability"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"github.com/kursadbilgin/notify-relay/internal/service"
	"github.com/kursadbilgin/notify-relay/internal/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API, the queue worker and the stale claim sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			return serve(ctx, rt, skipMigrate)
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not apply database migrations on startup")
	return cmd
}

func serve(ctx context.Context, rt *runtime, skipMigrate bool) error {
	logger := rt.logger
	cfg := rt.cfg

	if err := rt.openPostgres(); err != nil {
		return err
	}
	if !skipMigrate {
		if err := migrations.Migrate(rt.db); err != nil {
			return fmt.Errorf("database migrations failed: %w", err)
		}
	}
	if err := rt.openRedis(ctx); err != nil {
		return err
	}

	sqlDB, err := rt.db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}

	metrics := observability.NewMetrics()

	resolver, err := rt.configResolver()
	if err != nil {
		return err
	}
	notifications, err := rt.notificationService(resolver)
	if err != nil {
		return err
	}

	rateLimiter, err := infraredis.NewRedisRateLimiter(rt.rdb, cfg.DeliveryRatePerSec)
	if err != nil {
		return err
	}

	formatter := service.NewMessageFormatter(service.BaseURLSettings{
		PublicBaseURL: cfg.PublicBaseURL,
		Host:          cfg.Host,
		BackendPort:   cfg.BackendPort,
		Port:          cfg.Port,
	}.BaseURL())

	worker, err := service.NewQueueWorker(
		repository.NewGormNotificationRepo(rt.db),
		repository.NewGormExecutionRepo(rt.db),
		resolver,
		rt.clientFactory(),
		rateLimiter,
		formatter,
		service.WorkerOptions{
			IdleInterval: cfg.WorkerIdleInterval,
			ErrorBackoff: cfg.WorkerErrorBackoff,
		},
		observability.ForComponent(logger, "worker"),
	)
	if err != nil {
		return err
	}
	worker.SetMetrics(metrics)

	sweeper, err := rt.staleClaimSweeper(metrics)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:               "notify-relay",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(observability.ForComponent(logger, "api")),
	})
	app.Use(recover.New())
	app.Use(transport.RequestID())
	app.Use(transport.RequestContext())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rt.rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterNotificationRoutes(app, notifications); err != nil {
		return err
	}
	if err := handler.RegisterSettingsRoutes(app, resolver); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("notify-relay api started", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	g.Go(func() error {
		return worker.Start(gctx)
	})

	g.Go(func() error {
		return sweeper.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("notify-relay stopped with error", zap.Error(err))
		return err
	}

	logger.Info("notify-relay stopped")
	return nil
}
