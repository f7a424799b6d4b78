package domain

// ExecutionStatus is the upstream execution process status written by the
// orchestration engine.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionKilled    ExecutionStatus = "killed"
)

func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionKilled:
		return true
	}
	return false
}

// AttemptContext is the denormalized view of a task attempt used for message
// rendering. Every field may be empty if the attempt has since disappeared.
type AttemptContext struct {
	TaskID    string
	Title     string
	ProjectID string
	Branch    string
	Executor  string
}
