package repository

import (
	"encoding/json"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/domain"
	"gorm.io/datatypes"
)

// NotificationModel is the persistence model for the notification_queue table.
type NotificationModel struct {
	ID                string         `gorm:"type:uuid;primaryKey"`
	SubjectID         *string        `gorm:"type:uuid"`
	Kind              domain.Kind    `gorm:"type:varchar(40);not null"`
	Recipient         string         `gorm:"type:varchar(255);not null;default:''"`
	Message           string         `gorm:"type:text;not null;default:''"`
	Status            domain.Status  `gorm:"type:varchar(20);not null"`
	Error             *string        `gorm:"type:text"`
	ProviderMessageID *string        `gorm:"type:varchar(255)"`
	Payload           datatypes.JSON `gorm:"type:jsonb;not null"`
	ClaimedAt         *time.Time     `gorm:"type:timestamptz"`
	SentAt            *time.Time     `gorm:"type:timestamptz"`
	CreatedAt         time.Time      `gorm:"type:timestamptz;not null"`
}

func (NotificationModel) TableName() string {
	return "notification_queue"
}

// SettingModel is the persistence model for the generic key/value settings table.
type SettingModel struct {
	Key       string         `gorm:"type:text;primaryKey"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

func (SettingModel) TableName() string {
	return "settings"
}

// The orchestration engine owns the tables below. They are declared here so a
// fresh database has the columns the capture trigger joins against.

// TaskModel mirrors the engine's tasks table.
type TaskModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	ProjectID string `gorm:"type:uuid;not null"`
	Title     string `gorm:"type:text;not null"`
	Status    string `gorm:"type:varchar(20);not null;default:'todo'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TaskModel) TableName() string {
	return "tasks"
}

// TaskAttemptModel mirrors the engine's task_attempts table.
type TaskAttemptModel struct {
	ID        string  `gorm:"type:uuid;primaryKey"`
	TaskID    string  `gorm:"type:uuid;not null;index"`
	Executor  *string `gorm:"type:varchar(100)"`
	Branch    *string `gorm:"type:varchar(255)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TaskAttemptModel) TableName() string {
	return "task_attempts"
}

// ExecutionProcessModel mirrors the engine's execution_processes table.
type ExecutionProcessModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	TaskAttemptID string `gorm:"type:uuid;not null;index"`
	Status        string `gorm:"type:varchar(20);not null"`
	ExitCode      *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (ExecutionProcessModel) TableName() string {
	return "execution_processes"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:                n.ID,
		SubjectID:         n.SubjectID,
		Kind:              n.Kind,
		Recipient:         n.Recipient,
		Message:           n.Message,
		Status:            n.Status,
		Error:             n.Error,
		ProviderMessageID: n.ProviderMessageID,
		Payload:           datatypes.JSON(n.Payload),
		ClaimedAt:         n.ClaimedAt,
		SentAt:            n.SentAt,
		CreatedAt:         n.CreatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:                m.ID,
		SubjectID:         m.SubjectID,
		Kind:              m.Kind,
		Recipient:         m.Recipient,
		Message:           m.Message,
		Status:            m.Status,
		Error:             m.Error,
		ProviderMessageID: m.ProviderMessageID,
		Payload:           json.RawMessage(m.Payload),
		ClaimedAt:         m.ClaimedAt,
		SentAt:            m.SentAt,
		CreatedAt:         m.CreatedAt,
	}
}
