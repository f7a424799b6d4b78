package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify-relay/internal/repository"
	"gorm.io/gorm"
)

func createNotificationQueueTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_notification_queue",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`ALTER TABLE notification_queue DROP CONSTRAINT IF EXISTS chk_notification_queue_status`,
				`ALTER TABLE notification_queue ADD CONSTRAINT chk_notification_queue_status CHECK (status IN ('pending', 'processing', 'sent', 'skipped', 'failed'))`,
				`CREATE INDEX IF NOT EXISTS idx_notification_queue_status_created ON notification_queue (status, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_notification_queue_claimed ON notification_queue (claimed_at) WHERE status = 'processing'`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_notification_queue_execution_event ON notification_queue ((payload->>'execution_process_id')) WHERE kind = 'execution_completed'`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationModel{})
		},
	}
}
