package model

import "time"

// RequestStatus is the lifecycle state of a MeetingRequest.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestAccepted  RequestStatus = "ACCEPTED"
	RequestDeclined  RequestStatus = "DECLINED"
	RequestCompleted RequestStatus = "COMPLETED"
	RequestCancelled RequestStatus = "CANCELLED"
	RequestFailed    RequestStatus = "FAILED"
)

// requestTransitions is the only legal transition table. Anything outside it
// is a stale transition and fails the single operation.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:  {RequestAccepted, RequestDeclined, RequestCancelled},
	RequestAccepted: {RequestCompleted, RequestCancelled, RequestFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return len(requestTransitions[s]) == 0
}

// Intent is the structured purpose of a meeting request.
type Intent struct {
	Purpose         string `json:"purpose"`
	ExpectedOutcome string `json:"expected_outcome"`
	DurationMinutes int    `json:"duration_minutes"`
}

// ValidationResult records the admission decision for audit.
type ValidationResult struct {
	Admitted     bool      `json:"admitted"`
	Reason       string    `json:"reason,omitempty"`
	QualityScore float64   `json:"quality_score"`
	Threshold    float64   `json:"threshold"`
	CheckedAt    time.Time `json:"checked_at"`
}

// MeetingRequest is immutable once created except for Status, the recipient
// response fields, and the terminal outcome set by the orchestrator. It is
// retained indefinitely as reputation history.
type MeetingRequest struct {
	ID              string        `json:"id"`
	RequesterID     string        `json:"requester_id"`
	RecipientID     string        `json:"recipient_id"`
	Intent          Intent        `json:"intent"`
	RequesterRating int           `json:"requester_rating"`
	Status          RequestStatus `json:"status"`

	Validation *ValidationResult        `json:"validation,omitempty"`
	Importance *BiDirectionalImportance `json:"importance,omitempty"`
	SessionID  string                   `json:"session_id,omitempty"`

	// CancelledBy identifies which party cancelled, when Status is CANCELLED.
	CancelledBy string `json:"cancelled_by,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// BiDirectionalImportance is created at acceptance time and immutable
// thereafter; no retroactive rating changes.
type BiDirectionalImportance struct {
	RequesterRating int       `json:"requester_rating"`
	RecipientRating int       `json:"recipient_rating"`
	RequesterWeight float64   `json:"requester_weight"`
	RecipientWeight float64   `json:"recipient_weight"`
	MutualScore     float64   `json:"mutual_score"`
	RatedAt         time.Time `json:"rated_at"`
}
