package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"go.uber.org/zap"
)

const (
	globalSettingsKey      = "notifications.global"
	scopeSettingsKeyPrefix = "notifications.scope."
)

func scopeSettingsKey(scopeID string) string {
	return scopeSettingsKeyPrefix + scopeID
}

// ConfigResolver reads and writes notification settings and produces the
// effective configuration for a scope.
type ConfigResolver struct {
	settings repository.SettingsRepository
	logger   *zap.Logger
}

func NewConfigResolver(settings repository.SettingsRepository, logger *zap.Logger) (*ConfigResolver, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ConfigResolver{
		settings: settings,
		logger:   logger,
	}, nil
}

// GetGlobal returns the stored global configuration. A missing entry yields
// the zero value, which is disabled.
func (r *ConfigResolver) GetGlobal(ctx context.Context) (domain.NotifyConfig, error) {
	var cfg domain.NotifyConfig

	found, err := r.load(ctx, globalSettingsKey, &cfg)
	if err != nil || !found {
		return domain.NotifyConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return domain.NotifyConfig{}, fmt.Errorf("global notification settings: %w", err)
	}
	return cfg, nil
}

// GetScope returns the stored override for scopeID; missing means empty.
func (r *ConfigResolver) GetScope(ctx context.Context, scopeID string) (domain.ScopeOverride, error) {
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return domain.ScopeOverride{}, fmt.Errorf("%w: scope id is required", domain.ErrValidation)
	}

	var override domain.ScopeOverride
	found, err := r.load(ctx, scopeSettingsKey(scopeID), &override)
	if err != nil || !found {
		return domain.ScopeOverride{}, err
	}
	if err := override.Validate(); err != nil {
		return domain.ScopeOverride{}, fmt.Errorf("scope %s notification settings: %w", scopeID, err)
	}
	return override, nil
}

// Resolve merges the scope override over the global configuration field by
// field. An empty scopeID resolves to the global configuration.
func (r *ConfigResolver) Resolve(ctx context.Context, scopeID string) (domain.NotifyConfig, error) {
	global, err := r.GetGlobal(ctx)
	if err != nil {
		return domain.NotifyConfig{}, err
	}

	if strings.TrimSpace(scopeID) == "" {
		return global, nil
	}

	override, err := r.GetScope(ctx, scopeID)
	if err != nil {
		return domain.NotifyConfig{}, err
	}
	if override.IsEmpty() {
		return global, nil
	}

	return override.Merge(global), nil
}

func (r *ConfigResolver) SaveGlobal(ctx context.Context, cfg domain.NotifyConfig) error {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Instance = strings.TrimSpace(cfg.Instance)
	cfg.Recipient = strings.TrimSpace(cfg.Recipient)
	if err := cfg.Validate(); err != nil {
		return err
	}
	return r.store(ctx, globalSettingsKey, cfg)
}

func (r *ConfigResolver) SaveScope(ctx context.Context, scopeID string, override domain.ScopeOverride) error {
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return fmt.Errorf("%w: scope id is required", domain.ErrValidation)
	}
	if err := override.Validate(); err != nil {
		return err
	}
	return r.store(ctx, scopeSettingsKey(scopeID), override)
}

func (r *ConfigResolver) load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.settings.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		return false, nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		r.logger.Warn("malformed notification setting",
			zap.String("key", key),
			zap.Error(err),
		)
		return false, fmt.Errorf("%w: setting %s is not valid JSON: %v", domain.ErrInvalidConfig, key, err)
	}
	return true, nil
}

func (r *ConfigResolver) store(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	if err := r.settings.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}
