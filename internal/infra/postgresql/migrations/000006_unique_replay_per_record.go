package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// ReplayIndexSQL allows at most one replay record per replayed notification.
const ReplayIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_notification_queue_replay_of ON notification_queue ((payload->>'replay_of')) WHERE kind = 'execution_replay'`

func uniqueReplayPerRecord() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_unique_replay_per_record",
		Migrate: func(tx *gorm.DB) error {
			return execAll(tx, []string{ReplayIndexSQL})
		},
		Rollback: func(tx *gorm.DB) error {
			return execAll(tx, []string{`DROP INDEX IF EXISTS idx_notification_queue_replay_of`})
		},
	}
}
