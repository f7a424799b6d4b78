package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// StatusGuardFunctionSQL rejects any status change that does not move the
// record forward along pending -> processing -> {sent, skipped, failed}.
const StatusGuardFunctionSQL = `
CREATE OR REPLACE FUNCTION guard_notification_status() RETURNS trigger AS $$
BEGIN
    IF NEW.status = OLD.status THEN
        RETURN NEW;
    END IF;
    IF OLD.status = 'pending' AND NEW.status = 'processing' THEN
        RETURN NEW;
    END IF;
    IF OLD.status = 'processing' AND NEW.status IN ('sent', 'skipped', 'failed') THEN
        RETURN NEW;
    END IF;
    RAISE EXCEPTION 'notification % cannot move from % to %', OLD.id, OLD.status, NEW.status
        USING ERRCODE = 'check_violation';
END;
$$ LANGUAGE plpgsql`

func guardStatusTransitions() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_guard_status_transitions",
		Migrate: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				StatusGuardFunctionSQL,
				`DROP TRIGGER IF EXISTS notification_status_guard ON notification_queue`,
				`CREATE TRIGGER notification_status_guard BEFORE UPDATE OF status ON notification_queue FOR EACH ROW EXECUTE FUNCTION guard_notification_status()`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`DROP TRIGGER IF EXISTS notification_status_guard ON notification_queue`,
				`DROP FUNCTION IF EXISTS guard_notification_status()`,
			})
		},
	}
}
