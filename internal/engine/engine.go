package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kairoshq/kairos/internal/concurrency"
	"github.com/kairoshq/kairos/internal/errors"
	"github.com/kairoshq/kairos/internal/importance"
	"github.com/kairoshq/kairos/internal/intent"
	"github.com/kairoshq/kairos/internal/logger"
	"github.com/kairoshq/kairos/internal/model"
	"github.com/kairoshq/kairos/internal/orchestrator"
	"github.com/kairoshq/kairos/internal/presence"
	"github.com/kairoshq/kairos/internal/reputation"
	"github.com/kairoshq/kairos/internal/store"

	"github.com/oklog/ulid/v2"
)

// Engine drives the request lifecycle: validate, await the recipient's
// response, assess mutual importance, orchestrate the session. Each request
// is processed independently; lifecycle operations on one request are
// serialized by a per-request lock, never a global one.
type Engine struct {
	store      *store.Worker
	validator  *intent.Validator
	reputation *reputation.Engine
	assessor   *importance.Assessor
	aggregator *presence.Aggregator
	orch       *orchestrator.Orchestrator
	locks      *concurrency.RequestLockManager
}

func New(s *store.Worker, v *intent.Validator, rep *reputation.Engine, a *importance.Assessor, agg *presence.Aggregator, orch *orchestrator.Orchestrator) *Engine {
	return &Engine{
		store:      s,
		validator:  v,
		reputation: rep,
		assessor:   a,
		aggregator: agg,
		orch:       orch,
		locks:      concurrency.NewRequestLockManager(),
	}
}

// SubmitInput is a requester's meeting request before admission.
type SubmitInput struct {
	RequesterID      string
	RecipientID      string
	Intent           model.Intent
	ImportanceRating int
}

// Submit runs the admission gate. Admitted requests are persisted PENDING
// and become visible to the recipient; rejected ones are audited with their
// reason code and returned as an error. Rejections never touch credibility.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (*model.MeetingRequest, error) {
	if in.RequesterID == "" || in.RecipientID == "" {
		return nil, errors.InvalidInput("requester and recipient are required")
	}
	if in.RequesterID == in.RecipientID {
		return nil, errors.InvalidInput("cannot request a meeting with yourself")
	}

	if _, err := e.ensureUser(in.RequesterID); err != nil {
		return nil, err
	}
	recipient, err := e.store.GetUser(in.RecipientID)
	if err != nil {
		return nil, err
	}

	req := &model.MeetingRequest{
		ID:              ulid.Make().String(),
		RequesterID:     in.RequesterID,
		RecipientID:     in.RecipientID,
		Intent:          in.Intent,
		RequesterRating: in.ImportanceRating,
		Status:          model.RequestPending,
		CreatedAt:       time.Now(),
	}

	cred, err := e.reputation.Credibility(ctx, in.RequesterID)
	if err != nil {
		return nil, errors.Wrap(err, "requester credibility")
	}

	result, verr := e.validator.Validate(ctx, req, recipient, cred)
	req.Validation = &result

	if verr != nil {
		if err := e.store.AppendAudit(model.AuditEntry{
			Kind:      model.AuditRequestRejected,
			RequestID: req.ID,
			UserID:    in.RequesterID,
			Reason:    errors.Reason(verr),
			Detail:    verr.Error(),
			TraceID:   logger.GetTraceID(ctx),
		}); err != nil {
			slog.Error("Failed to audit rejection", "request", req.ID, "error", err)
		}
		slog.Info("Request rejected",
			"request", req.ID,
			"requester", in.RequesterID,
			"reason", errors.Reason(verr))
		return nil, verr
	}

	if err := e.store.SaveRequest(req); err != nil {
		return nil, errors.Wrap(err, "persist request")
	}

	if err := e.store.AppendAudit(model.AuditEntry{
		Kind:      model.AuditRequestAdmitted,
		RequestID: req.ID,
		UserID:    in.RequesterID,
		Detail:    fmt.Sprintf("quality=%.2f threshold=%.2f", result.QualityScore, result.Threshold),
		TraceID:   logger.GetTraceID(ctx),
	}); err != nil {
		slog.Error("Failed to audit admission", "request", req.ID, "error", err)
	}

	slog.Info("Request admitted",
		"request", req.ID,
		"requester", in.RequesterID,
		"recipient", in.RecipientID,
		"quality", result.QualityScore)

	return req, nil
}

// Accept records the recipient's response and importance rating, assesses
// mutual importance, and orchestrates the session. Exactly one concurrent
// accept/decline/cancel wins per request.
func (e *Engine) Accept(ctx context.Context, requestID string, recipientRating int) (*model.MeetingRequest, error) {
	if recipientRating < 1 || recipientRating > 10 {
		return nil, errors.InvalidInput("importance rating outside 1-10")
	}

	e.locks.Lock(requestID)
	defer e.locks.Unlock(requestID)

	req, err := e.store.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.CanTransition(model.RequestAccepted) {
		return nil, errors.StaleTransition(fmt.Sprintf("accept of %s request %s", req.Status, requestID))
	}

	requester, err := e.store.GetUser(req.RequesterID)
	if err != nil {
		return nil, err
	}
	recipient, err := e.store.GetUser(req.RecipientID)
	if err != nil {
		return nil, err
	}

	requesterWeight, err := e.reputation.RatingWeight(ctx, req.RequesterID)
	if err != nil {
		return nil, errors.Wrap(err, "requester rating weight")
	}
	recipientWeight, err := e.reputation.RatingWeight(ctx, req.RecipientID)
	if err != nil {
		return nil, errors.Wrap(err, "recipient rating weight")
	}

	now := time.Now()
	mutual := e.assessor.Mutual(req.RequesterRating, recipientRating, requesterWeight, recipientWeight)
	req.Status = model.RequestAccepted
	req.RespondedAt = &now
	req.Importance = &mutual
	if err := e.store.SaveRequest(req); err != nil {
		return nil, errors.Wrap(err, "persist acceptance")
	}

	slog.Info("Request accepted",
		"request", requestID,
		"mutual_importance", mutual.MutualScore)

	session, oerr := e.orch.Orchestrate(ctx, req, requester, recipient)
	if oerr != nil {
		return nil, e.failRequest(ctx, req, oerr)
	}

	req.SessionID = session.ID
	if err := e.store.SaveRequest(req); err != nil {
		return nil, errors.Wrap(err, "persist session link")
	}

	return req, nil
}

// failRequest is the terminal path for orchestration failures: one audit
// entry, one reputation update per participant.
func (e *Engine) failRequest(ctx context.Context, req *model.MeetingRequest, cause error) error {
	now := time.Now()
	if req.Status.CanTransition(model.RequestFailed) {
		req.Status = model.RequestFailed
		req.ClosedAt = &now
		if err := e.store.SaveRequest(req); err != nil {
			slog.Error("Failed to persist request failure", "request", req.ID, "error", err)
		}
	}

	if err := e.store.AppendAudit(model.AuditEntry{
		Kind:      model.AuditOrchestrationFailed,
		RequestID: req.ID,
		Reason:    errors.Reason(cause),
		Detail:    cause.Error(),
		TraceID:   logger.GetTraceID(ctx),
	}); err != nil {
		slog.Error("Failed to audit orchestration failure", "request", req.ID, "error", err)
	}

	recipientRating := 0
	if req.Importance != nil {
		recipientRating = req.Importance.RecipientRating
	}
	if err := e.reputation.RecordOutcome(ctx, req.RequesterID, req.RequesterRating, model.OutcomeFailed, req.ID); err != nil {
		slog.Error("Failed to record requester outcome", "request", req.ID, "error", err)
	}
	if err := e.reputation.RecordOutcome(ctx, req.RecipientID, recipientRating, model.OutcomeFailed, req.ID); err != nil {
		slog.Error("Failed to record recipient outcome", "request", req.ID, "error", err)
	}

	return cause
}

// Decline records the recipient's refusal. Declines are terminal but do not
// affect either party's credibility.
func (e *Engine) Decline(ctx context.Context, requestID string) error {
	e.locks.Lock(requestID)
	defer e.locks.Unlock(requestID)

	req, err := e.store.GetRequest(requestID)
	if err != nil {
		return err
	}
	if !req.Status.CanTransition(model.RequestDeclined) {
		return errors.StaleTransition(fmt.Sprintf("decline of %s request %s", req.Status, requestID))
	}

	now := time.Now()
	req.Status = model.RequestDeclined
	req.RespondedAt = &now
	req.ClosedAt = &now
	if err := e.store.SaveRequest(req); err != nil {
		return errors.Wrap(err, "persist decline")
	}

	return e.store.AppendAudit(model.AuditEntry{
		Kind:      model.AuditRequestDeclined,
		RequestID: requestID,
		UserID:    req.RecipientID,
		TraceID:   logger.GetTraceID(ctx),
	})
}

// Cancel withdraws a request. A PENDING cancel (requester only) has no
// reputation impact. Cancelling an ACCEPTED request counts as a
// non-completion for whichever party cancelled; habitual last-minute
// cancellation reduces credibility.
func (e *Engine) Cancel(ctx context.Context, requestID, byUserID string) error {
	e.locks.Lock(requestID)
	defer e.locks.Unlock(requestID)

	req, err := e.store.GetRequest(requestID)
	if err != nil {
		return err
	}
	if byUserID != req.RequesterID && byUserID != req.RecipientID {
		return errors.InvalidInput("only a participant may cancel")
	}

	wasPending := req.Status == model.RequestPending
	if wasPending && byUserID != req.RequesterID {
		return errors.InvalidInput("only the requester may cancel a pending request")
	}
	if !req.Status.CanTransition(model.RequestCancelled) {
		return errors.StaleTransition(fmt.Sprintf("cancel of %s request %s", req.Status, requestID))
	}

	if req.SessionID != "" {
		if err := e.orch.CancelSession(ctx, req.SessionID); err != nil && !errors.IsCategory(err, errors.ErrNotFound) {
			slog.Warn("Session cancel during request cancel failed", "request", requestID, "error", err)
		}
	}

	now := time.Now()
	req.Status = model.RequestCancelled
	req.CancelledBy = byUserID
	req.ClosedAt = &now
	if err := e.store.SaveRequest(req); err != nil {
		return errors.Wrap(err, "persist cancel")
	}

	if err := e.store.AppendAudit(model.AuditEntry{
		Kind:      model.AuditRequestCancelled,
		RequestID: requestID,
		UserID:    byUserID,
		TraceID:   logger.GetTraceID(ctx),
	}); err != nil {
		slog.Error("Failed to audit cancellation", "request", requestID, "error", err)
	}

	if wasPending {
		return nil
	}

	cancellerRating, otherRating := req.RequesterRating, 0
	other := req.RecipientID
	if req.Importance != nil {
		otherRating = req.Importance.RecipientRating
	}
	if byUserID == req.RecipientID {
		cancellerRating, otherRating = otherRating, cancellerRating
		other = req.RequesterID
	}

	if err := e.reputation.RecordOutcome(ctx, byUserID, cancellerRating, model.OutcomeCancelled, requestID); err != nil {
		slog.Error("Failed to record canceller outcome", "request", requestID, "error", err)
	}
	if err := e.reputation.RecordOutcome(ctx, other, otherRating, model.OutcomeCounterpartyCancelled, requestID); err != nil {
		slog.Error("Failed to record counterparty outcome", "request", requestID, "error", err)
	}

	return nil
}

// Get returns a request. Before the recipient responds it carries only the
// requester's unweighted rating, which the recipient sees before deciding.
func (e *Engine) Get(ctx context.Context, requestID string) (*model.MeetingRequest, error) {
	return e.store.GetRequest(requestID)
}

// Presence returns the user's unified presence across all platforms.
func (e *Engine) Presence(ctx context.Context, userID string) (model.UnifiedPresence, error) {
	user, err := e.store.GetUser(userID)
	if err != nil {
		return model.UnifiedPresence{}, err
	}
	return e.aggregator.Unified(ctx, user)
}

// CredibilityOf exposes the reputation engine's derived score with its
// terms, for explainability.
func (e *Engine) CredibilityOf(ctx context.Context, userID string) (reputation.Credibility, error) {
	return e.reputation.Credibility(ctx, userID)
}

// UpsertUser registers or updates a user profile.
func (e *Engine) UpsertUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		return errors.InvalidInput("user id is required")
	}
	if u.AvailabilityScope == "" {
		u.AvailabilityScope = model.ScopePublic
	}
	if !u.AvailabilityScope.Valid() {
		return errors.InvalidInput("invalid availability scope " + string(u.AvailabilityScope))
	}

	existing, err := e.store.GetUser(u.ID)
	if err == nil {
		u.CreatedAt = existing.CreatedAt
	} else {
		u.CreatedAt = time.Now()
	}
	u.UpdatedAt = time.Now()

	return e.store.SaveUser(u)
}

// ensureUser creates a requester profile on first contact with public
// defaults. Users are never deleted; they are retained for audit.
func (e *Engine) ensureUser(userID string) (*model.User, error) {
	u, err := e.store.GetUser(userID)
	if err == nil {
		return u, nil
	}
	if !errors.IsCategory(err, errors.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	u = &model.User{
		ID:                userID,
		AvailabilityScope: model.ScopePublic,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.store.SaveUser(u); err != nil {
		return nil, err
	}
	return u, nil
}
