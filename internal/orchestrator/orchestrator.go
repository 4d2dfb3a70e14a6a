package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kairoshq/kairos/internal/adapter"
	"github.com/kairoshq/kairos/internal/config"
	"github.com/kairoshq/kairos/internal/errors"
	"github.com/kairoshq/kairos/internal/model"
	"github.com/kairoshq/kairos/internal/presence"
	"github.com/kairoshq/kairos/internal/reputation"
	"github.com/kairoshq/kairos/internal/store"

	"github.com/oklog/ulid/v2"
)

// Orchestrator takes an accepted, assessed request, picks the best common
// platform, and opens the session. Session start/end transitions are driven
// by adapter join/leave callbacks, not computed internally. Completion and
// failure are the only paths that change credibility.
type Orchestrator struct {
	store      *store.Worker
	aggregator *presence.Aggregator
	reputation *reputation.Engine
	sessions   map[string]adapter.SessionAdapter

	timeout    time.Duration
	backoff    time.Duration
	maxRetries int

	mu       sync.Mutex
	joined   map[string]map[string]bool // session id -> platform user ids present
	byHandle map[string]string          // platform|handle -> session id
}

func New(s *store.Worker, aggregator *presence.Aggregator, rep *reputation.Engine, sessionAdapters []adapter.SessionAdapter, cfg config.OrchestratorConfig) (*Orchestrator, error) {
	timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultOrchestratorTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse orchestrator timeout: %w", err)
	}
	backoff, err := config.DurationOrDefault(cfg.RetryBackoff, config.DefaultOrchestratorRetryBackoff)
	if err != nil {
		return nil, fmt.Errorf("parse orchestrator retry backoff: %w", err)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = config.DefaultOrchestratorMaxRetries
	}

	byPlatform := make(map[string]adapter.SessionAdapter, len(sessionAdapters))
	for _, a := range sessionAdapters {
		byPlatform[a.Platform()] = a
	}

	return &Orchestrator{
		store:      s,
		aggregator: aggregator,
		reputation: rep,
		sessions:   byPlatform,
		timeout:    timeout,
		backoff:    backoff,
		maxRetries: maxRetries,
		joined:     make(map[string]map[string]bool),
		byHandle:   make(map[string]string),
	}, nil
}

// Orchestrate selects a platform and creates the session for an accepted
// request. On failure no SessionRecord is persisted; the caller owns the
// request's terminal bookkeeping.
func (o *Orchestrator) Orchestrate(ctx context.Context, req *model.MeetingRequest, requester, recipient *model.User) (*model.SessionRecord, error) {
	if req.Status != model.RequestAccepted {
		return nil, errors.StaleTransition(fmt.Sprintf("request %s is %s, not ACCEPTED", req.ID, req.Status))
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	// Warm the recipient's presence so selection sees live per-platform
	// signals.
	if _, err := o.aggregator.Unified(ctx, recipient); err != nil {
		slog.Warn("Presence refresh before selection failed", "request", req.ID, "error", err)
	}

	available := make(map[string]bool, len(o.sessions))
	for platform := range o.sessions {
		available[platform] = true
	}

	chosen, ok := selectPlatform(requester, recipient, o.aggregator.Snapshot(recipient.ID), available)
	if !ok {
		return nil, fmt.Errorf("requester %s and recipient %s share no eligible platform: %w", requester.ID, recipient.ID, errors.ErrNoCommonPlatform)
	}

	handle, err := o.createWithRetry(ctx, chosen.Platform, req, requester, recipient)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &model.SessionRecord{
		ID:           ulid.Make().String(),
		RequestID:    req.ID,
		Platform:     chosen.Platform,
		Handle:       handle.Handle,
		Link:         handle.Link,
		Status:       model.SessionScheduled,
		Intent:       req.Intent,
		Participants: []string{req.RequesterID, req.RecipientID},
		ScheduledAt:  now,
	}

	if err := o.store.SaveSession(session); err != nil {
		return nil, errors.Wrap(err, "persist session")
	}

	o.mu.Lock()
	o.byHandle[handleKey(chosen.Platform, handle.Handle)] = session.ID
	o.mu.Unlock()

	if err := o.store.AppendAudit(model.AuditEntry{
		Kind:      model.AuditSessionCreated,
		RequestID: req.ID,
		SessionID: session.ID,
		Detail:    fmt.Sprintf("platform=%s score=%.2f", chosen.Platform, chosen.Score),
	}); err != nil {
		slog.Error("Failed to audit session creation", "session", session.ID, "error", err)
	}

	slog.Info("Session created",
		"request", req.ID,
		"session", session.ID,
		"platform", chosen.Platform,
		"link", handle.Link)

	return session, nil
}

// createWithRetry calls the platform adapter, retrying adapter timeouts and
// failures once with backoff before giving up.
func (o *Orchestrator) createWithRetry(ctx context.Context, platform string, req *model.MeetingRequest, requester, recipient *model.User) (adapter.SessionHandle, error) {
	ad := o.sessions[platform]
	participants := []string{
		platformUserID(requester, platform),
		platformUserID(recipient, platform),
	}
	meta := adapter.SessionMetadata{
		RequestID:       req.ID,
		Purpose:         req.Intent.Purpose,
		DurationMinutes: req.Intent.DurationMinutes,
	}

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return adapter.SessionHandle{}, fmt.Errorf("orchestration timed out: %w", errors.ErrAdapterTimeout)
			case <-time.After(o.backoff):
			}
			slog.Info("Retrying session creation", "request", req.ID, "platform", platform, "attempt", attempt)
		}

		handle, err := ad.CreateSession(ctx, participants, meta)
		if err == nil {
			return handle, nil
		}

		lastErr = errors.MapAdapterError(err)
		if !errors.IsRetryable(lastErr) {
			break
		}
	}

	return adapter.SessionHandle{}, errors.Wrap(lastErr, "create session on "+platform)
}

// HandleSessionEvent consumes asynchronous join/leave callbacks from
// platform adapters and drives the session state machine. An event arriving
// in the wrong state is a stale transition: logged, never retried.
func (o *Orchestrator) HandleSessionEvent(ctx context.Context, platform, handle, platformUserID, event string) error {
	o.mu.Lock()
	sessionID, ok := o.byHandle[handleKey(platform, handle)]
	o.mu.Unlock()
	if !ok {
		return errors.NotFound(fmt.Sprintf("no session for %s handle %s", platform, handle))
	}

	session, err := o.store.GetSession(sessionID)
	if err != nil {
		return err
	}

	switch event {
	case adapter.EventJoin:
		return o.handleJoin(ctx, session, platformUserID)
	case adapter.EventLeave:
		return o.handleLeave(ctx, session, platformUserID)
	default:
		return errors.InvalidInput("unknown session event " + event)
	}
}

func (o *Orchestrator) handleJoin(ctx context.Context, session *model.SessionRecord, platformUserID string) error {
	o.mu.Lock()
	if o.joined[session.ID] == nil {
		o.joined[session.ID] = make(map[string]bool)
	}
	o.joined[session.ID][platformUserID] = true
	o.mu.Unlock()

	if session.Status == model.SessionActive {
		return nil
	}
	if !session.Status.CanTransition(model.SessionActive) {
		return errors.StaleTransition(fmt.Sprintf("join event for %s session %s", session.Status, session.ID))
	}

	now := time.Now()
	session.Status = model.SessionActive
	session.StartedAt = &now
	if err := o.store.SaveSession(session); err != nil {
		return err
	}

	return o.store.AppendAudit(model.AuditEntry{
		Kind:      model.AuditSessionActive,
		RequestID: session.RequestID,
		SessionID: session.ID,
	})
}

func (o *Orchestrator) handleLeave(ctx context.Context, session *model.SessionRecord, platformUserID string) error {
	o.mu.Lock()
	if o.joined[session.ID] != nil {
		delete(o.joined[session.ID], platformUserID)
	}
	empty := len(o.joined[session.ID]) == 0
	o.mu.Unlock()

	if !empty {
		return nil
	}

	if !session.Status.CanTransition(model.SessionCompleted) {
		return errors.StaleTransition(fmt.Sprintf("leave event for %s session %s", session.Status, session.ID))
	}

	return o.complete(ctx, session)
}

// complete finishes the session and the request, writes the single terminal
// audit entry, and records one outcome per participant. This is the only
// path by which meeting behavior (as opposed to rating behavior) reaches
// the reputation engine.
func (o *Orchestrator) complete(ctx context.Context, session *model.SessionRecord) error {
	now := time.Now()
	session.Status = model.SessionCompleted
	session.EndedAt = &now
	if err := o.store.SaveSession(session); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.joined, session.ID)
	delete(o.byHandle, handleKey(session.Platform, session.Handle))
	o.mu.Unlock()

	req, err := o.store.GetRequest(session.RequestID)
	if err != nil {
		return err
	}
	if req.Status.CanTransition(model.RequestCompleted) {
		req.Status = model.RequestCompleted
		req.ClosedAt = &now
		if err := o.store.SaveRequest(req); err != nil {
			return err
		}
	}

	if err := o.store.AppendAudit(model.AuditEntry{
		Kind:      model.AuditSessionCompleted,
		RequestID: req.ID,
		SessionID: session.ID,
	}); err != nil {
		slog.Error("Failed to audit session completion", "session", session.ID, "error", err)
	}

	o.recordOutcomes(ctx, req, model.OutcomeCompleted, model.OutcomeCompleted)

	slog.Info("Session completed", "session", session.ID, "request", req.ID)
	return nil
}

// FailSession marks a scheduled or active session failed, for adapter-driven
// failure callbacks.
func (o *Orchestrator) FailSession(ctx context.Context, sessionID, reason string) error {
	session, err := o.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if !session.Status.CanTransition(model.SessionFailed) {
		return errors.StaleTransition(fmt.Sprintf("fail event for %s session %s", session.Status, sessionID))
	}

	now := time.Now()
	session.Status = model.SessionFailed
	session.EndedAt = &now
	session.FailureReason = reason
	if err := o.store.SaveSession(session); err != nil {
		return err
	}

	req, err := o.store.GetRequest(session.RequestID)
	if err != nil {
		return err
	}
	if req.Status.CanTransition(model.RequestFailed) {
		req.Status = model.RequestFailed
		req.ClosedAt = &now
		if err := o.store.SaveRequest(req); err != nil {
			return err
		}
	}

	if err := o.store.AppendAudit(model.AuditEntry{
		Kind:      model.AuditSessionFailed,
		RequestID: req.ID,
		SessionID: sessionID,
		Reason:    reason,
	}); err != nil {
		slog.Error("Failed to audit session failure", "session", sessionID, "error", err)
	}

	o.recordOutcomes(ctx, req, model.OutcomeFailed, model.OutcomeFailed)
	return nil
}

// CancelSession transitions a not-yet-completed session to CANCELLED. The
// caller owns the request-side bookkeeping and audit entry.
func (o *Orchestrator) CancelSession(ctx context.Context, sessionID string) error {
	session, err := o.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if !session.Status.CanTransition(model.SessionCancelled) {
		return errors.StaleTransition(fmt.Sprintf("cancel of %s session %s", session.Status, sessionID))
	}

	now := time.Now()
	session.Status = model.SessionCancelled
	session.EndedAt = &now
	if err := o.store.SaveSession(session); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.joined, session.ID)
	delete(o.byHandle, handleKey(session.Platform, session.Handle))
	o.mu.Unlock()

	return nil
}

// recordOutcomes writes exactly one reputation update per participant,
// carrying the rating each gave for this meeting.
func (o *Orchestrator) recordOutcomes(ctx context.Context, req *model.MeetingRequest, requesterResult, recipientResult model.OutcomeResult) {
	requesterRating := req.RequesterRating
	recipientRating := 0
	if req.Importance != nil {
		requesterRating = req.Importance.RequesterRating
		recipientRating = req.Importance.RecipientRating
	}

	if err := o.reputation.RecordOutcome(ctx, req.RequesterID, requesterRating, requesterResult, req.ID); err != nil {
		slog.Error("Failed to record requester outcome", "request", req.ID, "error", err)
	}
	if err := o.reputation.RecordOutcome(ctx, req.RecipientID, recipientRating, recipientResult, req.ID); err != nil {
		slog.Error("Failed to record recipient outcome", "request", req.ID, "error", err)
	}
}

func platformUserID(u *model.User, platform string) string {
	if h, ok := u.PlatformHandles[platform]; ok && h != "" {
		return h
	}
	return u.ID
}

func handleKey(platform, handle string) string {
	return platform + "|" + handle
}
