package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a queued notification.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSent, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo enforces pending -> processing -> {sent, skipped, failed}.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next.IsTerminal()
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Kind tags why a notification exists.
type Kind string

const (
	KindExecutionCompleted Kind = "execution_completed"
	KindExecutionReplay    Kind = "execution_replay"
)

func (k Kind) String() string { return string(k) }

func (k Kind) IsValid() bool {
	switch k {
	case KindExecutionCompleted, KindExecutionReplay:
		return true
	}
	return false
}

func ParseKindFromString(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid kind %q", ErrValidation, s)
	}
	return k, nil
}

// Notification is one row of the durable notification queue.
type Notification struct {
	ID                string
	SubjectID         *string
	Kind              Kind
	Recipient         string
	Message           string
	Status            Status
	Error             *string
	ProviderMessageID *string
	Payload           json.RawMessage
	ClaimedAt         *time.Time
	SentAt            *time.Time
	CreatedAt         time.Time
}

func (n *Notification) Validate() error {
	if !n.Kind.IsValid() {
		return fmt.Errorf("%w: invalid kind %q", ErrValidation, n.Kind)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, n.Status)
	}
	if len(n.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if _, err := ParsePayload(n.Payload); err != nil {
		return err
	}
	return nil
}
