package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository is the generic key/value settings contract.
type SettingsRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type GormSettingsRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormSettingsRepo(db *gorm.DB) *GormSettingsRepo {
	return &GormSettingsRepo{db: db, now: time.Now}
}

// Get returns the raw JSON stored under key or domain.ErrNotFound.
func (r *GormSettingsRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var model SettingModel
	err := r.db.WithContext(ctx).Where("key = ?", key).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(model.Value), nil
}

func (r *GormSettingsRepo) Set(ctx context.Context, key string, value []byte) error {
	model := SettingModel{
		Key:       key,
		Value:     datatypes.JSON(value),
		UpdatedAt: r.now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&model).Error
}
