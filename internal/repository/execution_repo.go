package repository

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notify-relay/internal/domain"
	"gorm.io/gorm"
)

const queryAttemptContext = `
SELECT t.id::text         AS task_id,
       t.title            AS title,
       t.project_id::text AS project_id,
       COALESCE(ta.branch, '')   AS branch,
       COALESCE(ta.executor, '') AS executor
  FROM task_attempts ta
  JOIN tasks t ON t.id = ta.task_id
 WHERE ta.id = ?`

// AttemptReader is the relay's read-only view of the orchestration engine's
// rows. The queue worker only ever reads.
type AttemptReader interface {
	AttemptContext(ctx context.Context, attemptID string) (*domain.AttemptContext, error)
}

// ExecutionWriter is the engine-side write path: status changes made through
// it fire the capture trigger. The relay never calls it in production.
type ExecutionWriter interface {
	Transition(ctx context.Context, executionID string, status domain.ExecutionStatus, exitCode *int64) error
}

var (
	_ AttemptReader   = (*GormExecutionRepo)(nil)
	_ ExecutionWriter = (*GormExecutionRepo)(nil)
)

type GormExecutionRepo struct {
	db *gorm.DB
}

func NewGormExecutionRepo(db *gorm.DB) *GormExecutionRepo {
	return &GormExecutionRepo{db: db}
}

type attemptContextRow struct {
	TaskID    string `gorm:"column:task_id"`
	Title     string `gorm:"column:title"`
	ProjectID string `gorm:"column:project_id"`
	Branch    string `gorm:"column:branch"`
	Executor  string `gorm:"column:executor"`
}

// AttemptContext returns the task attempt's denormalized fields or domain.ErrNotFound.
func (r *GormExecutionRepo) AttemptContext(ctx context.Context, attemptID string) (*domain.AttemptContext, error) {
	var row attemptContextRow
	result := r.db.WithContext(ctx).Raw(queryAttemptContext, attemptID).Scan(&row)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, domain.ErrNotFound
	}

	return &domain.AttemptContext{
		TaskID:    row.TaskID,
		Title:     row.Title,
		ProjectID: row.ProjectID,
		Branch:    row.Branch,
		Executor:  row.Executor,
	}, nil
}

// Transition writes an execution status change in its own transaction. The
// capture trigger enqueues the notification inside the same transaction, so
// a failed capture rolls the status change back.
func (r *GormExecutionRepo) Transition(ctx context.Context, executionID string, status domain.ExecutionStatus, exitCode *int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		values := map[string]any{"status": string(status)}
		if exitCode != nil {
			values["exit_code"] = *exitCode
		}

		result := tx.Model(&ExecutionProcessModel{}).
			Where("id = ?", executionID).
			Updates(values)
		if result.Error != nil {
			return fmt.Errorf("failed to update execution status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}
