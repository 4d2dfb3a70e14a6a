package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/kairoshq/kairos/internal/adapter"
	"github.com/kairoshq/kairos/internal/config"
	kairosErrors "github.com/kairoshq/kairos/internal/errors"
	"github.com/kairoshq/kairos/internal/importance"
	"github.com/kairoshq/kairos/internal/intent"
	"github.com/kairoshq/kairos/internal/model"
	"github.com/kairoshq/kairos/internal/orchestrator"
	"github.com/kairoshq/kairos/internal/presence"
	"github.com/kairoshq/kairos/internal/reputation"
	"github.com/kairoshq/kairos/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	engine *Engine
	store  *store.Worker
	static *adapter.StaticAdapter
	orch   *orchestrator.Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	worker, err := store.NewWorker(t.TempDir(), store.RuntimeConfig{})
	require.NoError(t, err)
	worker.Start()
	t.Cleanup(worker.Stop)

	static := adapter.NewStaticAdapter("static", nil)

	aggregator, err := presence.NewAggregator(
		[]adapter.PresenceAdapter{static},
		config.PresenceConfig{AdapterTimeout: "100ms", CacheTTL: "1ms"},
	)
	require.NoError(t, err)

	rep := reputation.NewEngine(worker, config.ReputationConfig{})
	validator := intent.NewValidator(config.IntentConfig{}, adapter.NewStoreContactVerifier(worker), intent.HeuristicScorer{})

	orch, err := orchestrator.New(worker, aggregator, rep,
		[]adapter.SessionAdapter{static},
		config.OrchestratorConfig{Timeout: "2s", RetryBackoff: "10ms"})
	require.NoError(t, err)
	static.SetEventHandler(orch.HandleSessionEvent)

	eng := New(worker, validator, rep, importance.NewAssessor(), aggregator, orch)

	return &harness{engine: eng, store: worker, static: static, orch: orch}
}

func (h *harness) addUser(t *testing.T, id string, scope model.AvailabilityScope, platforms ...string) {
	t.Helper()
	require.NoError(t, h.engine.UpsertUser(context.Background(), &model.User{
		ID:                  id,
		AvailabilityScope:   scope,
		PlatformPreferences: platforms,
	}))
}

func goodIntent() model.Intent {
	return model.Intent{
		Purpose:         "Review the quarterly latency regression in the ingest pipeline",
		ExpectedOutcome: "Agreed remediation plan with 3 owners assigned",
		DurationMinutes: 30,
	}
}

func (h *harness) submit(t *testing.T, requester, recipient string) *model.MeetingRequest {
	t.Helper()
	req, err := h.engine.Submit(context.Background(), SubmitInput{
		RequesterID:      requester,
		RecipientID:      recipient,
		Intent:           goodIntent(),
		ImportanceRating: 7,
	})
	require.NoError(t, err)
	return req
}

func (h *harness) auditKinds(t *testing.T) map[string]int {
	t.Helper()
	entries, err := h.store.ReadAudit(0)
	require.NoError(t, err)
	kinds := make(map[string]int)
	for _, e := range entries {
		kinds[e.Kind]++
	}
	return kinds
}

func TestSubmitAdmitsAndPersists(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "bob", model.ScopePublic, "static")

	req := h.submit(t, "alice", "bob")

	assert.Equal(t, model.RequestPending, req.Status)
	require.NotNil(t, req.Validation)
	assert.True(t, req.Validation.Admitted)

	stored, err := h.engine.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, stored.Status)
	assert.Equal(t, 7, stored.RequesterRating)

	// The requester was auto-created with public defaults.
	requester, err := h.store.GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, model.ScopePublic, requester.AvailabilityScope)

	assert.Equal(t, 1, h.auditKinds(t)[model.AuditRequestAdmitted])
}

func TestSubmitRejectsMalformedIntentWithAudit(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "bob", model.ScopePublic, "static")

	_, err := h.engine.Submit(context.Background(), SubmitInput{
		RequesterID:      "alice",
		RecipientID:      "bob",
		Intent:           model.Intent{Purpose: "", ExpectedOutcome: "x", DurationMinutes: 30},
		ImportanceRating: 7,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, kairosErrors.ErrMalformedIntent)

	kinds := h.auditKinds(t)
	assert.Equal(t, 1, kinds[model.AuditRequestRejected])
	assert.Zero(t, kinds[model.AuditRequestAdmitted])

	// Rejected requests are never visible as pending work.
	live, err := h.store.ListLiveRequests()
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestSubmitUnknownRecipient(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Submit(context.Background(), SubmitInput{
		RequesterID:      "alice",
		RecipientID:      "ghost",
		Intent:           goodIntent(),
		ImportanceRating: 5,
	})
	assert.ErrorIs(t, err, kairosErrors.ErrNotFound)
}

func TestSubmitSelfMeeting(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Submit(context.Background(), SubmitInput{
		RequesterID:      "alice",
		RecipientID:      "alice",
		Intent:           goodIntent(),
		ImportanceRating: 5,
	})
	assert.ErrorIs(t, err, kairosErrors.ErrInvalidInput)
}

func TestAcceptOrchestratesSession(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice", model.ScopePublic, "static")
	h.addUser(t, "bob", model.ScopePublic, "static")
	h.static.SetPresence("alice", model.PresenceOnline, 0.9)
	h.static.SetPresence("bob", model.PresenceOnline, 0.9)

	req := h.submit(t, "alice", "bob")

	accepted, err := h.engine.Accept(context.Background(), req.ID, 8)
	require.NoError(t, err)

	assert.Equal(t, model.RequestAccepted, accepted.Status)
	require.NotEmpty(t, accepted.SessionID)
	require.NotNil(t, accepted.Importance)
	// Cold-start parties rate at full weight: sqrt(7*8).
	assert.InDelta(t, 7.4833, accepted.Importance.MutualScore, 1e-3)
	require.NotNil(t, accepted.RespondedAt)

	session, err := h.store.GetSession(accepted.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionScheduled, session.Status)
	assert.Equal(t, "static", session.Platform)
	assert.Equal(t, []string{"alice", "bob"}, session.Participants)

	assert.Equal(t, 1, h.auditKinds(t)[model.AuditSessionCreated])
}

func TestSessionJoinLeaveLifecycle(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice", model.ScopePublic, "static")
	h.addUser(t, "bob", model.ScopePublic, "static")
	h.static.SetPresence("bob", model.PresenceOnline, 0.9)

	req := h.submit(t, "alice", "bob")
	accepted, err := h.engine.Accept(context.Background(), req.ID, 8)
	require.NoError(t, err)

	session, err := h.store.GetSession(accepted.SessionID)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, h.static.EmitJoin(ctx, session.Handle, "alice"))
	require.NoError(t, h.static.EmitJoin(ctx, session.Handle, "bob"))

	active, err := h.store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, active.Status)
	require.NotNil(t, active.StartedAt)

	require.NoError(t, h.static.EmitLeave(ctx, session.Handle, "alice"))

	// One participant still present: nothing ends yet.
	stillActive, err := h.store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, stillActive.Status)

	require.NoError(t, h.static.EmitLeave(ctx, session.Handle, "bob"))

	completed, err := h.store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, completed.Status)
	require.NotNil(t, completed.EndedAt)

	final, err := h.engine.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestCompleted, final.Status)

	kinds := h.auditKinds(t)
	assert.Equal(t, 1, kinds[model.AuditSessionActive])
	assert.Equal(t, 1, kinds[model.AuditSessionCompleted])

	// Exactly one outcome per participant, carrying each party's rating.
	aliceOutcomes, err := h.store.ReadOutcomes("alice", 0)
	require.NoError(t, err)
	require.Len(t, aliceOutcomes, 1)
	assert.Equal(t, model.OutcomeCompleted, aliceOutcomes[0].Result)
	assert.Equal(t, 7, aliceOutcomes[0].Rating)

	bobOutcomes, err := h.store.ReadOutcomes("bob", 0)
	require.NoError(t, err)
	require.Len(t, bobOutcomes, 1)
	assert.Equal(t, 8, bobOutcomes[0].Rating)
}

func TestDeclineLeavesReputationUntouched(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "bob", model.ScopePublic, "static")

	req := h.submit(t, "alice", "bob")
	require.NoError(t, h.engine.Decline(context.Background(), req.ID))

	declined, err := h.engine.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestDeclined, declined.Status)
	require.NotNil(t, declined.ClosedAt)

	assert.Equal(t, 1, h.auditKinds(t)[model.AuditRequestDeclined])

	for _, id := range []string{"alice", "bob"} {
		outcomes, err := h.store.ReadOutcomes(id, 0)
		require.NoError(t, err)
		assert.Empty(t, outcomes, "decline must not record outcomes for %s", id)
	}
}

func TestCancelPendingByRequesterOnly(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "bob", model.ScopePublic, "static")

	req := h.submit(t, "alice", "bob")

	err := h.engine.Cancel(context.Background(), req.ID, "bob")
	assert.ErrorIs(t, err, kairosErrors.ErrInvalidInput)

	require.NoError(t, h.engine.Cancel(context.Background(), req.ID, "alice"))

	cancelled, err := h.engine.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestCancelled, cancelled.Status)
	assert.Equal(t, "alice", cancelled.CancelledBy)

	// Pending cancels have no reputation impact.
	outcomes, err := h.store.ReadOutcomes("alice", 0)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestCancelAcceptedChargesTheCanceller(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice", model.ScopePublic, "static")
	h.addUser(t, "bob", model.ScopePublic, "static")
	h.static.SetPresence("bob", model.PresenceOnline, 0.9)

	req := h.submit(t, "alice", "bob")
	accepted, err := h.engine.Accept(context.Background(), req.ID, 8)
	require.NoError(t, err)

	require.NoError(t, h.engine.Cancel(context.Background(), req.ID, "bob"))

	cancelled, err := h.engine.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestCancelled, cancelled.Status)
	assert.Equal(t, "bob", cancelled.CancelledBy)

	session, err := h.store.GetSession(accepted.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCancelled, session.Status)

	bobOutcomes, err := h.store.ReadOutcomes("bob", 0)
	require.NoError(t, err)
	require.Len(t, bobOutcomes, 1)
	assert.Equal(t, model.OutcomeCancelled, bobOutcomes[0].Result)

	aliceOutcomes, err := h.store.ReadOutcomes("alice", 0)
	require.NoError(t, err)
	require.Len(t, aliceOutcomes, 1)
	assert.Equal(t, model.OutcomeCounterpartyCancelled, aliceOutcomes[0].Result)

	assert.Equal(t, 1, h.auditKinds(t)[model.AuditRequestCancelled])
}

func TestAcceptNoCommonPlatformFailsRequest(t *testing.T) {
	h := newHarness(t)
	// Bob prefers a platform no adapter serves; alice only knows static.
	h.addUser(t, "alice", model.ScopePublic, "static")
	h.addUser(t, "bob", model.ScopePublic, "zoom")

	req := h.submit(t, "alice", "bob")

	_, err := h.engine.Accept(context.Background(), req.ID, 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, kairosErrors.ErrNoCommonPlatform)

	failed, getErr := h.engine.Get(context.Background(), req.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.RequestFailed, failed.Status)
	assert.Empty(t, failed.SessionID, "no session record on failed orchestration")

	kinds := h.auditKinds(t)
	assert.Equal(t, 1, kinds[model.AuditOrchestrationFailed])
	assert.Zero(t, kinds[model.AuditSessionCreated])

	// Both parties carry a FAILED outcome.
	for _, id := range []string{"alice", "bob"} {
		outcomes, err := h.store.ReadOutcomes(id, 0)
		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		assert.Equal(t, model.OutcomeFailed, outcomes[0].Result)
	}
}

func TestConcurrentAcceptDeclineOneWins(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "alice", model.ScopePublic, "static")
	h.addUser(t, "bob", model.ScopePublic, "static")
	h.static.SetPresence("bob", model.PresenceOnline, 0.9)

	req := h.submit(t, "alice", "bob")

	var wg sync.WaitGroup
	results := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := h.engine.Accept(context.Background(), req.ID, 8)
		results <- err
	}()
	go func() {
		defer wg.Done()
		results <- h.engine.Decline(context.Background(), req.ID)
	}()
	wg.Wait()
	close(results)

	var wins, stale int
	for err := range results {
		if err == nil {
			wins++
		} else if kairosErrors.IsCategory(err, kairosErrors.ErrStaleTransition) {
			stale++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one racer must win")
	assert.Equal(t, 1, stale, "the loser must see a stale transition")
}

func TestAcceptRejectsBadRating(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "bob", model.ScopePublic, "static")
	req := h.submit(t, "alice", "bob")

	_, err := h.engine.Accept(context.Background(), req.ID, 0)
	assert.ErrorIs(t, err, kairosErrors.ErrInvalidInput)

	_, err = h.engine.Accept(context.Background(), req.ID, 11)
	assert.ErrorIs(t, err, kairosErrors.ErrInvalidInput)
}

func TestUpsertUserValidatesScope(t *testing.T) {
	h := newHarness(t)

	err := h.engine.UpsertUser(context.Background(), &model.User{ID: "x", AvailabilityScope: "SOMETIMES"})
	assert.ErrorIs(t, err, kairosErrors.ErrInvalidInput)

	require.NoError(t, h.engine.UpsertUser(context.Background(), &model.User{ID: "x"}))
	u, err := h.store.GetUser("x")
	require.NoError(t, err)
	assert.Equal(t, model.ScopePublic, u.AvailabilityScope, "scope defaults to public")
}
