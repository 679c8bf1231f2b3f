package attendance

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names a session lifecycle event.
type EventKind string

const (
	EventSessionStarted   EventKind = "session.started"
	EventSessionPaused    EventKind = "session.paused"
	EventSessionResumed   EventKind = "session.resumed"
	EventSessionCompleted EventKind = "session.completed"
	EventSessionAborted   EventKind = "session.aborted"
	EventSessionCommitted EventKind = "session.committed"
	EventFeedback         EventKind = "feedback.submitted"
)

// SessionEvent is one entry of the audit trail.
type SessionEvent struct {
	ID        string          `json:"id"`
	Kind      EventKind       `json:"kind"`
	ClassID   string          `json:"class_id,omitempty"`
	ClassName string          `json:"class_name,omitempty"`
	State     SessionState    `json:"state,omitempty"`
	StudentID string          `json:"student_id,omitempty"`
	Verdict   Verdict         `json:"verdict,omitempty"`
	Message   string          `json:"message,omitempty"`
	Records   []StudentRecord `json:"records,omitempty"`
	At        time.Time       `json:"at"`
}

// NewEvent stamps a fresh event with an id and the current time.
func NewEvent(kind EventKind, classID, className string) SessionEvent {
	return SessionEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		ClassID:   classID,
		ClassName: className,
		At:        time.Now().UTC(),
	}
}
