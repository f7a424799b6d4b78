package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/observability"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval   = time.Minute
	defaultStaleClaimAfter = 10 * time.Minute
	defaultSweepLimit      = 100
)

// StaleClaimSweeper finalizes records left in processing by a worker that
// stopped before writing an outcome. It also refreshes the queue depth gauge.
type StaleClaimSweeper struct {
	notifications repository.NotificationRepository
	logger        *zap.Logger
	metrics       *observability.Metrics
	interval      time.Duration
	staleAfter    time.Duration
	limit         int
	now           func() time.Time
}

func NewStaleClaimSweeper(
	notifications repository.NotificationRepository,
	interval time.Duration,
	staleAfter time.Duration,
	limit int,
	logger *zap.Logger,
) (*StaleClaimSweeper, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleClaimAfter
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StaleClaimSweeper{
		notifications: notifications,
		logger:        logger,
		interval:      interval,
		staleAfter:    staleAfter,
		limit:         limit,
		now:           time.Now,
	}, nil
}

func (s *StaleClaimSweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *StaleClaimSweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Sweep once up front so claims abandoned by a crashed process are not
	// held until the first tick.
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("stale claim sweeper initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("stale claim sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep fails stale claims in batches until none remain and returns how many
// records it finalized.
func (s *StaleClaimSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.staleAfter)

	var total int64
	for {
		n, err := s.notifications.FailStaleClaims(ctx, cutoff, s.limit)
		if err != nil {
			return total, fmt.Errorf("failed to finalize stale claims: %w", err)
		}
		total += n
		if n < int64(s.limit) {
			break
		}
	}

	if total > 0 {
		s.metrics.AddStaleClaimsFailed(total)
		s.logger.Warn("finalized stale claims as failed",
			zap.Int64("count", total),
			zap.Time("claimedBefore", cutoff),
		)
	}

	s.refreshQueueDepth(ctx)
	return total, nil
}

func (s *StaleClaimSweeper) refreshQueueDepth(ctx context.Context) {
	if s.metrics == nil {
		return
	}

	counts, err := s.notifications.CountByStatus(ctx)
	if err != nil {
		s.logger.Warn("failed to count notifications by status", zap.Error(err))
		return
	}

	depth := make(map[string]int64, len(counts))
	for _, c := range counts {
		depth[c.Status.String()] = c.Count
	}
	s.metrics.SetQueueDepth(depth)
}
