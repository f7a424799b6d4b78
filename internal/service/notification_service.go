package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/provider"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultListRetention = 7 * 24 * time.Hour
	defaultTestMessage   = "Test notification from notify-relay"
)

// ConnectionCheck is the outcome of probing a bridge with candidate
// credentials. A failed probe is reported in Error, not as a call error.
type ConnectionCheck struct {
	Valid     bool                `json:"valid"`
	Instances []provider.Instance `json:"instances,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type NotificationService struct {
	notifications repository.NotificationRepository
	configs       ConfigSource
	clients       provider.ClientFactory
	retention     time.Duration
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	configs ConfigSource,
	clients provider.ClientFactory,
	retention time.Duration,
	logger *zap.Logger,
) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("config source is required")
	}
	if clients == nil {
		return nil, fmt.Errorf("delivery client factory is required")
	}
	if retention <= 0 {
		retention = defaultListRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		configs:       configs,
		clients:       clients,
		retention:     retention,
		logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
	}, nil
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, strings.TrimSpace(id))
}

// List pages through recent notifications. Without an explicit lower bound
// only the retention window is shown.
func (s *NotificationService) List(
	ctx context.Context,
	params repository.ListParams,
) ([]domain.Notification, int64, error) {
	if params.From == nil {
		from := s.now().UTC().Add(-s.retention)
		params.From = &from
	}
	if params.From != nil && params.To != nil && params.To.Before(*params.From) {
		return nil, 0, fmt.Errorf("%w: to must not be before from", domain.ErrValidation)
	}
	return s.notifications.List(ctx, params)
}

// Replay enqueues a new pending record carrying the payload of a failed one.
// The failed record itself is never modified.
func (s *NotificationService) Replay(ctx context.Context, id string) (*domain.Notification, error) {
	original, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if original.Status != domain.StatusFailed {
		return nil, fmt.Errorf("%w: only failed notifications can be replayed, %s is %s",
			domain.ErrConflict, original.ID, original.Status)
	}

	payload, err := domain.ParsePayload(original.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: notification %s has an unusable payload", domain.ErrConflict, original.ID)
	}
	payload.ReplayOf = original.ID

	raw, err := payload.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode replay payload: %w", err)
	}

	replay := &domain.Notification{
		ID:        s.newID(),
		SubjectID: original.SubjectID,
		Kind:      domain.KindExecutionReplay,
		Status:    domain.StatusPending,
		Payload:   raw,
		CreatedAt: s.now().UTC(),
	}
	if err := replay.Validate(); err != nil {
		return nil, err
	}
	if err := s.notifications.Create(ctx, replay); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: notification %s has already been replayed", domain.ErrConflict, original.ID)
		}
		return nil, fmt.Errorf("failed to enqueue replay: %w", err)
	}

	s.logger.Info("notification replay enqueued",
		zap.String("notificationId", replay.ID),
		zap.String("replayOf", original.ID),
	)
	return replay, nil
}

// SendTest delivers a message synchronously with the effective configuration
// for scopeID. Nothing is written to the queue.
func (s *NotificationService) SendTest(ctx context.Context, scopeID string, message string) (*provider.SendResult, error) {
	cfg, err := s.configs.Resolve(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: notifications are not enabled", domain.ErrValidation)
	}
	if missing := cfg.MissingField(); missing != "" {
		return nil, fmt.Errorf("%w: %s is not configured", domain.ErrValidation, missing)
	}

	client, err := s.clients.New(cfg.Host, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(message)
	if text == "" {
		text = defaultTestMessage
	}

	result, err := client.SendText(ctx, cfg.Instance, provider.Recipient{
		Type:  cfg.RecipientType.OrDefault(),
		Value: cfg.Recipient,
	}, text)
	if err != nil {
		return nil, fmt.Errorf("failed to send test notification: %w", err)
	}
	return result, nil
}

// ListInstances lists bridge instances using the effective configuration.
func (s *NotificationService) ListInstances(ctx context.Context, scopeID string) ([]provider.Instance, error) {
	cfg, err := s.configs.Resolve(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("%w: bridge host is not configured", domain.ErrValidation)
	}

	client, err := s.clients.New(cfg.Host, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	instances, err := client.ListInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return instances, nil
}

// ValidateConnection probes host with apiKey by listing its instances.
func (s *NotificationService) ValidateConnection(ctx context.Context, host, apiKey string) (*ConnectionCheck, error) {
	client, err := s.clients.New(host, apiKey)
	if err != nil {
		return nil, err
	}

	instances, err := client.ListInstances(ctx)
	if err != nil {
		return &ConnectionCheck{
			Valid: false,
			Error: fmt.Sprintf("configuration validation failed: %v", err),
		}, nil
	}
	return &ConnectionCheck{Valid: true, Instances: instances}, nil
}
