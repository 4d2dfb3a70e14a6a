package model

import "time"

// SessionStatus is the lifecycle state of a SessionRecord.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "SCHEDULED"
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionFailed    SessionStatus = "FAILED"
	SessionCancelled SessionStatus = "CANCELLED"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionScheduled: {SessionActive, SessionCancelled, SessionFailed},
	SessionActive:    {SessionCompleted, SessionFailed, SessionCancelled},
}

func (s SessionStatus) CanTransition(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s SessionStatus) Terminal() bool {
	return len(sessionTransitions[s]) == 0
}

// SessionRecord is created by the orchestrator once a platform has been
// selected and a handle obtained. It carries a copy of the original intent
// for audit and is retained as reputation-engine input.
type SessionRecord struct {
	ID        string        `json:"id"`
	RequestID string        `json:"request_id"`
	Platform  string        `json:"platform"`
	Handle    string        `json:"handle"`
	Link      string        `json:"link,omitempty"`
	Status    SessionStatus `json:"status"`

	Intent       Intent   `json:"intent"`
	Participants []string `json:"participants"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`
}
