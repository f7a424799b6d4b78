package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"gorm.io/gorm"
)

// The engine normally owns these tables; AutoMigrate only adds what is missing.
func createExecutionTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_execution_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&repository.TaskModel{},
				&repository.TaskAttemptModel{},
				&repository.ExecutionProcessModel{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return nil
		},
	}
}
