package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/observability"
	"github.com/kursadbilgin/notify-relay/internal/provider"
	"github.com/kursadbilgin/notify-relay/internal/ratelimit"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultIdleInterval = 10 * time.Second
	defaultErrorBackoff = 15 * time.Second
)

// ConfigSource resolves the effective delivery configuration for a scope.
type ConfigSource interface {
	Resolve(ctx context.Context, scopeID string) (domain.NotifyConfig, error)
}

type WorkerOptions struct {
	IdleInterval time.Duration
	ErrorBackoff time.Duration
}

// QueueWorker drains the notification queue one record at a time. Only the
// composition root should start it.
type QueueWorker struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptReader
	configs       ConfigSource
	clients       provider.ClientFactory
	rateLimiter   ratelimit.RateLimiter
	formatter     *MessageFormatter
	logger        *zap.Logger
	metrics       *observability.Metrics
	idleInterval  time.Duration
	errorBackoff  time.Duration
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
}

func NewQueueWorker(
	notifications repository.NotificationRepository,
	attempts repository.AttemptReader,
	configs ConfigSource,
	clients provider.ClientFactory,
	rateLimiter ratelimit.RateLimiter,
	formatter *MessageFormatter,
	opts WorkerOptions,
	logger *zap.Logger,
) (*QueueWorker, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt reader is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("config source is required")
	}
	if clients == nil {
		return nil, fmt.Errorf("delivery client factory is required")
	}
	if formatter == nil {
		formatter = NewMessageFormatter(BaseURLSettings{}.BaseURL())
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = defaultIdleInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = defaultErrorBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueueWorker{
		notifications: notifications,
		attempts:      attempts,
		configs:       configs,
		clients:       clients,
		rateLimiter:   rateLimiter,
		formatter:     formatter,
		logger:        logger,
		idleInterval:  opts.IdleInterval,
		errorBackoff:  opts.ErrorBackoff,
		now:           time.Now,
		sleep:         sleepWithContext,
	}, nil
}

func (w *QueueWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start runs the worker loop until ctx is cancelled. A processed record is
// followed immediately by the next, an empty queue waits IdleInterval, and a
// store error waits ErrorBackoff.
func (w *QueueWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	w.logger.Info("queue worker started",
		zap.Duration("idleInterval", w.idleInterval),
		zap.Duration("errorBackoff", w.errorBackoff),
	)
	defer w.logger.Info("queue worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		processed, err := w.ProcessNext(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("queue worker iteration failed", zap.Error(err))
			if w.sleep(ctx, w.errorBackoff) != nil {
				return nil
			}
		case processed:
			continue
		default:
			if w.sleep(ctx, w.idleInterval) != nil {
				return nil
			}
		}
	}
}

// ProcessNext handles at most one pending record. It reports false when the
// queue was empty. Losing a claim race counts as handled.
func (w *QueueWorker) ProcessNext(ctx context.Context) (bool, error) {
	notification, err := w.notifications.NextPending(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch pending notification: %w", err)
	}

	// A claim must always be finalized, so no new work is taken once shutdown
	// has begun.
	if err := ctx.Err(); err != nil {
		return false, err
	}

	claimed, err := w.notifications.Claim(ctx, notification.ID, w.now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim notification %s: %w", notification.ID, err)
	}
	if !claimed {
		w.metrics.IncClaimRace()
		observability.ForNotification(w.logger, notification.ID, notification.Kind.String()).
			Debug("notification claimed by another worker")
		return true, nil
	}

	// A claimed record runs to a terminal status even if shutdown starts
	// mid-delivery. Only the rate limit wait observes cancellation.
	claimedCtx := context.WithoutCancel(ctx)
	result := w.deliver(claimedCtx, ctx, notification)

	if err := w.finalize(claimedCtx, notification, result); err != nil {
		return false, err
	}
	return true, nil
}

type deliveryResult struct {
	status domain.Status
	reason string
	sent   repository.SentUpdate
}

func skipped(format string, args ...any) deliveryResult {
	return deliveryResult{status: domain.StatusSkipped, reason: fmt.Sprintf(format, args...)}
}

func failed(format string, args ...any) deliveryResult {
	return deliveryResult{status: domain.StatusFailed, reason: fmt.Sprintf(format, args...)}
}

func (w *QueueWorker) deliver(ctx, waitCtx context.Context, notification *domain.Notification) deliveryResult {
	logger := observability.ForNotification(w.logger, notification.ID, notification.Kind.String())

	switch notification.Kind {
	case domain.KindExecutionCompleted, domain.KindExecutionReplay:
	default:
		return failed("unsupported notification kind %q", notification.Kind)
	}

	payload, err := domain.ParsePayload(notification.Payload)
	if err != nil {
		logger.Warn("malformed notification payload", zap.Error(err))
		return failed("unusable payload: %v", err)
	}

	attempt, err := w.attempts.AttemptContext(ctx, payload.TaskAttemptID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Warn("task attempt not found, sending with payload fields only",
			zap.String("taskAttemptId", payload.TaskAttemptID),
		)
		attempt = &domain.AttemptContext{}
	case err != nil:
		return failed("failed to load task attempt %s: %v", payload.TaskAttemptID, err)
	}

	scopeID := firstNonEmpty(payload.ProjectID, attempt.ProjectID)
	cfg, err := w.configs.Resolve(ctx, scopeID)
	if err != nil {
		logger.Warn("notification settings could not be resolved",
			zap.String("scopeId", scopeID),
			zap.Error(err),
		)
		return skipped("notification settings invalid: %v", err)
	}
	if !cfg.Enabled {
		return skipped("notifications disabled for scope")
	}
	if missing := cfg.MissingField(); missing != "" {
		return skipped("notifications enabled but %s is not configured", missing)
	}

	taskID := attempt.TaskID
	if taskID == "" && notification.SubjectID != nil {
		taskID = *notification.SubjectID
	}
	message := w.formatter.Format(CompletionMessage{
		Title:     attempt.Title,
		Status:    payload.Status,
		Branch:    firstNonEmpty(payload.Branch, attempt.Branch),
		Executor:  firstNonEmpty(payload.Executor, attempt.Executor),
		ProjectID: scopeID,
		TaskID:    taskID,
	})

	client, err := w.clients.New(cfg.Host, cfg.APIKey)
	if err != nil {
		return failed("failed to build delivery client: %v", err)
	}

	w.throttle(waitCtx, cfg.Instance, logger)

	sendStart := w.now()
	result, err := client.SendText(ctx, cfg.Instance, provider.Recipient{
		Type:  cfg.RecipientType.OrDefault(),
		Value: cfg.Recipient,
	}, message)
	w.metrics.ObserveDeliveryDuration(deliveryOutcome(err), w.now().Sub(sendStart))
	if err != nil {
		logger.Error("notification delivery failed",
			zap.String("instance", cfg.Instance),
			zap.Bool("transient", provider.IsTransient(err)),
			zap.Error(err),
		)
		return failed("%v", err)
	}

	update := repository.SentUpdate{
		Recipient: cfg.Recipient,
		Message:   message,
		SentAt:    w.now().UTC(),
	}
	if result != nil {
		update.ProviderMessageID = result.MessageID
	}
	return deliveryResult{status: domain.StatusSent, sent: update}
}

// throttle waits for a send slot on instance. A limiter error or a shutdown
// during the wait drops the throttle, not the send.
func (w *QueueWorker) throttle(ctx context.Context, instance string, logger *zap.Logger) {
	if w.rateLimiter == nil {
		return
	}

	err := w.rateLimiter.Wait(ctx, instance)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		logger.Info("shutdown during rate limit wait, sending unthrottled",
			zap.String("instance", instance),
		)
	default:
		logger.Warn("rate limiter unavailable, sending unthrottled",
			zap.String("instance", instance),
			zap.Error(err),
		)
	}
}

func (w *QueueWorker) finalize(ctx context.Context, notification *domain.Notification, result deliveryResult) error {
	var err error
	switch result.status {
	case domain.StatusSent:
		err = w.notifications.MarkSent(ctx, notification.ID, result.sent)
	case domain.StatusSkipped:
		err = w.notifications.MarkSkipped(ctx, notification.ID, result.reason)
	default:
		err = w.notifications.MarkFailed(ctx, notification.ID, result.reason)
	}
	if err != nil {
		return fmt.Errorf("failed to mark notification %s as %s: %w", notification.ID, result.status, err)
	}

	w.metrics.IncNotificationFinalized(notification.Kind.String(), result.status.String())
	observability.ForNotification(w.logger, notification.ID, notification.Kind.String()).Info("notification finalized",
		zap.String("status", result.status.String()),
		zap.String("reason", result.reason),
	)
	return nil
}

func deliveryOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	return provider.ErrorClass(err)
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
