package model

import "time"

// OutcomeResult classifies how an engagement ended for one participant.
type OutcomeResult string

const (
	OutcomeCompleted OutcomeResult = "COMPLETED"
	OutcomeFailed    OutcomeResult = "FAILED"
	OutcomeCancelled OutcomeResult = "CANCELLED"
	// OutcomeCounterpartyCancelled marks the party who did not cancel; it is
	// excluded from their success-rate denominator while their rating still
	// feeds variance.
	OutcomeCounterpartyCancelled OutcomeResult = "COUNTERPARTY_CANCELLED"
)

// Outcome is one entry in a user's append-only engagement log. Credibility
// is always recomputed from this log, never mutated in place.
type Outcome struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	RequestID string `json:"request_id"`
	// Rating is the importance rating this user gave for the meeting, 0 when
	// none was recorded.
	Rating     int           `json:"rating,omitempty"`
	Result     OutcomeResult `json:"result"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// AuditEntry is one line of the append-only audit trail. Every rejection and
// every terminal state writes exactly one.
type AuditEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	RequestID string    `json:"request_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	// TraceID correlates the entry with the API call that caused it.
	TraceID string `json:"trace_id,omitempty"`
}

// Audit entry kinds.
const (
	AuditRequestRejected     = "request_rejected"
	AuditRequestAdmitted     = "request_admitted"
	AuditRequestDeclined     = "request_declined"
	AuditRequestCancelled    = "request_cancelled"
	AuditOrchestrationFailed = "orchestration_failed"
	AuditSessionCreated      = "session_created"
	AuditSessionActive       = "session_active"
	AuditSessionCompleted    = "session_completed"
	AuditSessionFailed       = "session_failed"
)
