package migrations

import (
	"strings"
	"testing"
)

func TestMigrationIDsAreUniqueAndOrdered(t *testing.T) {
	t.Parallel()

	all := All()
	if len(all) == 0 {
		t.Fatal("All() returned no migrations")
	}

	seen := make(map[string]struct{}, len(all))
	prev := ""
	for _, m := range all {
		if _, ok := seen[m.ID]; ok {
			t.Fatalf("duplicate migration id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
		if m.ID <= prev {
			t.Fatalf("migration %q is out of order after %q", m.ID, prev)
		}
		prev = m.ID
		if m.Migrate == nil || m.Rollback == nil {
			t.Fatalf("migration %q must define Migrate and Rollback", m.ID)
		}
	}
}

func TestCaptureTriggerFiresOnlyOnFirstTerminalTransition(t *testing.T) {
	t.Parallel()

	for _, fragment := range []string{
		"AFTER UPDATE OF status ON execution_processes",
		"NEW.status IN ('completed', 'failed', 'killed')",
		"OLD.status NOT IN ('completed', 'failed', 'killed')",
	} {
		if !strings.Contains(CaptureTriggerSQL, fragment) {
			t.Errorf("CaptureTriggerSQL missing %q", fragment)
		}
	}
}

func TestCaptureFunctionStoresDedupKeyAndIgnoresConflicts(t *testing.T) {
	t.Parallel()

	for _, fragment := range []string{
		"'execution_process_id', NEW.id::text",
		"'pending'",
		"'execution_completed'",
		"ON CONFLICT DO NOTHING",
	} {
		if !strings.Contains(CaptureFunctionSQL, fragment) {
			t.Errorf("CaptureFunctionSQL missing %q", fragment)
		}
	}
	if strings.Contains(CaptureFunctionSQL, "EXCEPTION") {
		t.Error("CaptureFunctionSQL must not swallow insert errors")
	}
}

func TestReplayIndexAllowsOneReplayPerRecord(t *testing.T) {
	t.Parallel()

	for _, fragment := range []string{
		"CREATE UNIQUE INDEX",
		"(payload->>'replay_of')",
		"WHERE kind = 'execution_replay'",
	} {
		if !strings.Contains(ReplayIndexSQL, fragment) {
			t.Errorf("ReplayIndexSQL missing %q", fragment)
		}
	}
}
