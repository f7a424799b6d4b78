package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the structured fact captured together with the status transition.
// It is immutable once the queue row exists.
type Payload struct {
	ExecutionProcessID string `json:"execution_process_id,omitempty"`
	TaskAttemptID      string `json:"task_attempt_id"`
	Status             string `json:"status"`
	Executor           string `json:"executor,omitempty"`
	Branch             string `json:"branch,omitempty"`
	ProjectID          string `json:"project_id,omitempty"`
	ExitCode           int64  `json:"exit_code,omitempty"`
	ReplayOf           string `json:"replay_of,omitempty"`
}

func ParsePayload(raw []byte) (Payload, error) {
	var p Payload
	if len(raw) == 0 {
		return p, fmt.Errorf("%w: payload is empty", ErrValidation)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: malformed payload: %v", ErrValidation, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func (p Payload) Validate() error {
	if strings.TrimSpace(p.TaskAttemptID) == "" {
		return fmt.Errorf("%w: payload missing task_attempt_id", ErrValidation)
	}
	if strings.TrimSpace(p.Status) == "" {
		return fmt.Errorf("%w: payload missing status", ErrValidation)
	}
	return nil
}

func (p Payload) Marshal() (json.RawMessage, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return raw, nil
}
