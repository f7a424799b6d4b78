package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/domain"
	"gorm.io/gorm"
)

// StaleClaimReason is stored on records whose claim was abandoned by a worker
// that never finalized them.
const StaleClaimReason = "claim abandoned: worker did not finalize the notification"

type ListParams struct {
	Status   *domain.Status
	Kind     *domain.Kind
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type StatusCount struct {
	Status domain.Status `gorm:"column:status"`
	Count  int64         `gorm:"column:count"`
}

// SentUpdate carries the fields written when a notification is delivered.
type SentUpdate struct {
	Recipient         string
	Message           string
	ProviderMessageID string
	SentAt            time.Time
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error)
	NextPending(ctx context.Context) (*domain.Notification, error)
	Claim(ctx context.Context, id string, claimedAt time.Time) (bool, error)
	MarkSent(ctx context.Context, id string, update SentUpdate) error
	MarkSkipped(ctx context.Context, id string, reason string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	FailStaleClaims(ctx context.Context, claimedBefore time.Time, limit int) (int64, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if model == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return createError(err)
	}
	*n = *notificationModelToDomain(model)
	return nil
}

// createError reports a unique index hit, such as a second replay of the same
// record, as a conflict.
func createError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&NotificationModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Kind != nil {
		query = query.Where("kind = ?", *params.Kind)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []NotificationModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, total, nil
}

// NextPending returns the oldest pending notification or domain.ErrNotFound.
func (r *GormNotificationRepo) NextPending(ctx context.Context) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.StatusPending).
		Order("created_at ASC, id ASC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

// Claim moves a pending notification to processing in one conditional UPDATE.
// It reports false when another worker got there first.
func (r *GormNotificationRepo) Claim(ctx context.Context, id string, claimedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":     domain.StatusProcessing,
			"claimed_at": claimedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormNotificationRepo) MarkSent(ctx context.Context, id string, update SentUpdate) error {
	values := map[string]any{
		"status":    domain.StatusSent,
		"recipient": update.Recipient,
		"message":   update.Message,
		"sent_at":   update.SentAt,
	}
	if update.ProviderMessageID != "" {
		values["provider_message_id"] = update.ProviderMessageID
	}
	return r.finalize(ctx, id, values)
}

func (r *GormNotificationRepo) MarkSkipped(ctx context.Context, id string, reason string) error {
	return r.finalize(ctx, id, map[string]any{
		"status": domain.StatusSkipped,
		"error":  reason,
	})
}

func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.finalize(ctx, id, map[string]any{
		"status": domain.StatusFailed,
		"error":  reason,
	})
}

// finalize only touches rows that are still processing, so a terminal row can
// never be rewritten.
func (r *GormNotificationRepo) finalize(ctx context.Context, id string, values map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: notification %s is not processing", domain.ErrConflict, id)
	}
	return nil
}

// FailStaleClaims finalizes processing rows claimed before claimedBefore as failed.
func (r *GormNotificationRepo) FailStaleClaims(ctx context.Context, claimedBefore time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 100
	}

	stale := r.db.
		Model(&NotificationModel{}).
		Select("id").
		Where("status = ? AND claimed_at < ?", domain.StatusProcessing, claimedBefore).
		Order("claimed_at ASC").
		Limit(limit)

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id IN (?) AND status = ?", stale, domain.StatusProcessing).
		Updates(map[string]any{
			"status": domain.StatusFailed,
			"error":  StaleClaimReason,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormNotificationRepo) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}
