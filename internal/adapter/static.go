package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/kairoshq/kairos/internal/model"

	"github.com/oklog/ulid/v2"
)

// StaticAdapter is an in-memory platform for development and tests. Presence
// is whatever was last set; sessions are handles with no backing service.
// Join/leave events are emitted manually via EmitJoin/EmitLeave.
type StaticAdapter struct {
	platform string
	handler  SessionEventHandler

	mu       sync.RWMutex
	presence map[string]staticPresence
	sessions map[string][]string // handle -> participants
}

type staticPresence struct {
	status     model.PresenceStatus
	confidence float64
}

func NewStaticAdapter(platform string, handler SessionEventHandler) *StaticAdapter {
	if platform == "" {
		platform = "static"
	}
	return &StaticAdapter{
		platform: platform,
		handler:  handler,
		presence: make(map[string]staticPresence),
		sessions: make(map[string][]string),
	}
}

func (a *StaticAdapter) Platform() string {
	return a.platform
}

// SetPresence seeds the presence a subsequent FetchPresence returns.
func (a *StaticAdapter) SetPresence(platformUserID string, status model.PresenceStatus, confidence float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.presence[platformUserID] = staticPresence{status: status, confidence: confidence}
}

func (a *StaticAdapter) FetchPresence(ctx context.Context, platformUserID string) (model.PresenceStatus, float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.presence[platformUserID]
	if !ok {
		return model.PresenceUnknown, 0.0, nil
	}
	return p.status, p.confidence, nil
}

func (a *StaticAdapter) CreateSession(ctx context.Context, participants []string, meta SessionMetadata) (SessionHandle, error) {
	handle := ulid.Make().String()

	a.mu.Lock()
	a.sessions[handle] = append([]string(nil), participants...)
	a.mu.Unlock()

	return SessionHandle{
		Handle: handle,
		Link:   fmt.Sprintf("static://%s/%s", a.platform, handle),
	}, nil
}

func (a *StaticAdapter) Health(ctx context.Context) error {
	return nil
}

// EmitJoin reports a participant joining the session to the registered
// handler.
func (a *StaticAdapter) EmitJoin(ctx context.Context, handle, platformUserID string) error {
	if a.handler == nil {
		return nil
	}
	return a.handler(ctx, a.platform, handle, platformUserID, EventJoin)
}

// EmitLeave reports a participant leaving the session.
func (a *StaticAdapter) EmitLeave(ctx context.Context, handle, platformUserID string) error {
	if a.handler == nil {
		return nil
	}
	return a.handler(ctx, a.platform, handle, platformUserID, EventLeave)
}

// SetEventHandler wires the orchestrator callback after construction.
func (a *StaticAdapter) SetEventHandler(handler SessionEventHandler) {
	a.handler = handler
}
