package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	// Base URL inputs for task links in delivered messages.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	Host          string `env:"HOST"`
	BackendPort   string `env:"BACKEND_PORT"`
	Port          string `env:"PORT"`

	DeliveryRatePerSec int `env:"DELIVERY_RATE_PER_SEC,default=5"`
	StaleSweepLimit    int `env:"STALE_SWEEP_LIMIT,default=100"`

	RawDeliveryTimeout    string `env:"DELIVERY_TIMEOUT,default=10s"`
	RawWorkerIdleInterval string `env:"WORKER_IDLE_INTERVAL,default=10s"`
	RawWorkerErrorBackoff string `env:"WORKER_ERROR_BACKOFF,default=15s"`
	RawStaleClaimAfter    string `env:"STALE_CLAIM_AFTER,default=10m"`
	RawSweepInterval      string `env:"SWEEP_INTERVAL,default=1m"`
	RawSettingsCacheTTL   string `env:"SETTINGS_CACHE_TTL,default=30s"`
	RawListRetention      string `env:"LIST_RETENTION,default=168h"`

	DeliveryTimeout    time.Duration
	WorkerIdleInterval time.Duration
	WorkerErrorBackoff time.Duration
	StaleClaimAfter    time.Duration
	SweepInterval      time.Duration
	SettingsCacheTTL   time.Duration
	ListRetention      time.Duration
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"DELIVERY_TIMEOUT", cfg.RawDeliveryTimeout, &cfg.DeliveryTimeout},
		{"WORKER_IDLE_INTERVAL", cfg.RawWorkerIdleInterval, &cfg.WorkerIdleInterval},
		{"WORKER_ERROR_BACKOFF", cfg.RawWorkerErrorBackoff, &cfg.WorkerErrorBackoff},
		{"STALE_CLAIM_AFTER", cfg.RawStaleClaimAfter, &cfg.StaleClaimAfter},
		{"SWEEP_INTERVAL", cfg.RawSweepInterval, &cfg.SweepInterval},
		{"SETTINGS_CACHE_TTL", cfg.RawSettingsCacheTTL, &cfg.SettingsCacheTTL},
		{"LIST_RETENTION", cfg.RawListRetention, &cfg.ListRetention},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %s: %w", d.name, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("failed to load config: %s must be positive", d.name)
		}
		*d.dst = parsed
	}

	// A claim younger than one delivery timeout may still be mid-send.
	if cfg.StaleClaimAfter <= cfg.DeliveryTimeout {
		return nil, fmt.Errorf("failed to load config: STALE_CLAIM_AFTER (%s) must exceed DELIVERY_TIMEOUT (%s)",
			cfg.StaleClaimAfter, cfg.DeliveryTimeout)
	}

	if cfg.DeliveryRatePerSec <= 0 {
		return nil, fmt.Errorf("failed to load config: DELIVERY_RATE_PER_SEC must be positive")
	}

	return &cfg, nil
}
