package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// CaptureFunctionSQL inserts one pending notification for the execution row
// that just reached a terminal status. It has no EXCEPTION block, so a failed
// insert aborts the status update that fired it.
const CaptureFunctionSQL = `
CREATE OR REPLACE FUNCTION capture_execution_completed() RETURNS trigger AS $$
BEGIN
    INSERT INTO notification_queue (id, subject_id, kind, recipient, message, status, payload, created_at)
    SELECT gen_random_uuid(),
           t.id,
           'execution_completed',
           '',
           '',
           'pending',
           jsonb_build_object(
               'execution_process_id', NEW.id::text,
               'task_attempt_id',      NEW.task_attempt_id::text,
               'status',               NEW.status,
               'executor',             COALESCE(ta.executor, ''),
               'branch',               COALESCE(ta.branch, ''),
               'project_id',           COALESCE(t.project_id::text, ''),
               'exit_code',            COALESCE(NEW.exit_code, 0)
           ),
           NOW()
      FROM (SELECT 1) AS one
      LEFT JOIN task_attempts ta ON ta.id = NEW.task_attempt_id
      LEFT JOIN tasks t ON t.id = ta.task_id
    ON CONFLICT DO NOTHING;
    RETURN NULL;
END;
$$ LANGUAGE plpgsql`

// CaptureTriggerSQL fires only on the first move into a terminal status.
const CaptureTriggerSQL = `
CREATE TRIGGER execution_completed_capture
AFTER UPDATE OF status ON execution_processes
FOR EACH ROW
WHEN (NEW.status IN ('completed', 'failed', 'killed')
      AND OLD.status NOT IN ('completed', 'failed', 'killed'))
EXECUTE FUNCTION capture_execution_completed()`

func installCaptureTrigger() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_install_capture_trigger",
		Migrate: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				CaptureFunctionSQL,
				`DROP TRIGGER IF EXISTS execution_completed_capture ON execution_processes`,
				CaptureTriggerSQL,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`DROP TRIGGER IF EXISTS execution_completed_capture ON execution_processes`,
				`DROP FUNCTION IF EXISTS capture_execution_completed()`,
			})
		},
	}
}
