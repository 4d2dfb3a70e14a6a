package adapter

import (
	"context"

	"github.com/kairoshq/kairos/internal/model"
)

// SessionEventHandler receives asynchronous join/leave callbacks from a
// platform. This avoids circular dependencies between adapters and the
// orchestrator.
type SessionEventHandler func(ctx context.Context, platform, handle, platformUserID, event string) error

// Session event names passed to SessionEventHandler.
const (
	EventJoin  = "join"
	EventLeave = "leave"
)

// PresenceAdapter fetches the live presence of a user on one platform. It
// must return within the caller's deadline; callers treat a timeout as
// (UNKNOWN, 0.0) rather than omitting the platform.
type PresenceAdapter interface {
	// Platform returns the platform id (e.g. "slack", "zoom").
	Platform() string

	// FetchPresence resolves the user's status and a confidence in [0,1]
	// reflecting how reliable this platform's signal is.
	FetchPresence(ctx context.Context, platformUserID string) (model.PresenceStatus, float64, error)
}

// SessionHandle identifies a created meeting on its platform.
type SessionHandle struct {
	Handle string
	Link   string
}

// SessionMetadata carries the intent copy a platform may surface to
// participants.
type SessionMetadata struct {
	RequestID       string
	Purpose         string
	DurationMinutes int
}

// SessionAdapter opens meetings on one platform.
type SessionAdapter interface {
	// Platform returns the platform id.
	Platform() string

	// CreateSession opens a meeting for the given platform user ids.
	CreateSession(ctx context.Context, participants []string, meta SessionMetadata) (SessionHandle, error)

	// Health checks if the adapter is connected and usable.
	Health(ctx context.Context) error
}

// ContactVerifier answers contacts-scope eligibility checks. It is an
// external collaborator; the store-backed implementation is the default.
type ContactVerifier interface {
	IsContact(ctx context.Context, userA, userB string) (bool, error)
}
