package scheduler

import (
	"context"
	"testing"

	"github.com/kairoshq/kairos/internal/adapter"
	"github.com/kairoshq/kairos/internal/config"
	kairosErrors "github.com/kairoshq/kairos/internal/errors"
	"github.com/kairoshq/kairos/internal/model"
	"github.com/kairoshq/kairos/internal/presence"
)

type fakeStore struct {
	requests []model.MeetingRequest
	users    map[string]*model.User
}

func (f *fakeStore) ListLiveRequests() ([]model.MeetingRequest, error) {
	return f.requests, nil
}

func (f *fakeStore) GetUser(userID string) (*model.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, kairosErrors.NotFound("user " + userID)
	}
	return u, nil
}

func newTestAggregator(t *testing.T, static *adapter.StaticAdapter) *presence.Aggregator {
	t.Helper()
	agg, err := presence.NewAggregator(
		[]adapter.PresenceAdapter{static},
		config.PresenceConfig{AdapterTimeout: "100ms", CacheTTL: "1h"},
	)
	if err != nil {
		t.Fatalf("NewAggregator failed: %v", err)
	}
	return agg
}

func TestNewRefresherRejectsBadSpec(t *testing.T) {
	static := adapter.NewStaticAdapter("static", nil)
	agg := newTestAggregator(t, static)

	if _, err := NewRefresher(&fakeStore{}, agg, config.SchedulerConfig{RefreshSpec: "not a schedule"}); err == nil {
		t.Error("invalid cron spec should be rejected")
	}

	if _, err := NewRefresher(&fakeStore{}, agg, config.SchedulerConfig{RefreshSpec: "@every 30s"}); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}

	// Empty spec falls back to the default.
	if _, err := NewRefresher(&fakeStore{}, agg, config.SchedulerConfig{}); err != nil {
		t.Errorf("default spec rejected: %v", err)
	}
}

func TestRefresherLifecycle(t *testing.T) {
	static := adapter.NewStaticAdapter("static", nil)
	agg := newTestAggregator(t, static)

	r, err := NewRefresher(&fakeStore{}, agg, config.SchedulerConfig{RefreshSpec: "@every 1h"})
	if err != nil {
		t.Fatalf("NewRefresher failed: %v", err)
	}

	ctx := context.Background()

	if err := r.Health(ctx); err == nil {
		t.Error("health should fail before Init")
	}

	if err := r.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := r.Health(ctx); err == nil {
		t.Error("health should fail before Start")
	}

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !r.IsRunning() {
		t.Error("refresher should be running after Start")
	}
	if err := r.Health(ctx); err != nil {
		t.Errorf("health failed while running: %v", err)
	}

	// Starting twice is a no-op.
	if err := r.Start(ctx); err != nil {
		t.Errorf("second Start failed: %v", err)
	}

	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if r.IsRunning() {
		t.Error("refresher should not be running after Stop")
	}
	if err := r.Stop(ctx); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestRefreshLiveParticipants(t *testing.T) {
	static := adapter.NewStaticAdapter("static", nil)
	static.SetPresence("alice", model.PresenceOnline, 0.9)
	static.SetPresence("bob", model.PresenceBusy, 0.8)
	agg := newTestAggregator(t, static)

	store := &fakeStore{
		requests: []model.MeetingRequest{
			{ID: "r1", RequesterID: "alice", RecipientID: "bob", Status: model.RequestPending},
			{ID: "r2", RequesterID: "alice", RecipientID: "ghost", Status: model.RequestAccepted},
		},
		users: map[string]*model.User{
			"alice": {ID: "alice", AvailabilityScope: model.ScopePublic},
			"bob":   {ID: "bob", AvailabilityScope: model.ScopePublic},
		},
	}

	r, err := NewRefresher(store, agg, config.SchedulerConfig{})
	if err != nil {
		t.Fatalf("NewRefresher failed: %v", err)
	}

	r.RefreshLiveParticipants(context.Background())

	aliceSnap := agg.Snapshot("alice")
	if rec, ok := aliceSnap["static"]; !ok || rec.Status != model.PresenceOnline {
		t.Errorf("alice not refreshed: %+v", aliceSnap)
	}
	bobSnap := agg.Snapshot("bob")
	if rec, ok := bobSnap["static"]; !ok || rec.Status != model.PresenceBusy {
		t.Errorf("bob not refreshed: %+v", bobSnap)
	}

	// Unknown participants are skipped, never fatal.
	if len(agg.Snapshot("ghost")) != 0 {
		t.Error("unknown user should not be polled")
	}
}

func TestRefreshForcesStaleCache(t *testing.T) {
	static := adapter.NewStaticAdapter("static", nil)
	static.SetPresence("alice", model.PresenceOffline, 0.9)
	agg := newTestAggregator(t, static)

	store := &fakeStore{
		requests: []model.MeetingRequest{
			{ID: "r1", RequesterID: "alice", RecipientID: "alice-2", Status: model.RequestPending},
		},
		users: map[string]*model.User{
			"alice": {ID: "alice", AvailabilityScope: model.ScopePublic},
		},
	}

	r, err := NewRefresher(store, agg, config.SchedulerConfig{})
	if err != nil {
		t.Fatalf("NewRefresher failed: %v", err)
	}

	r.RefreshLiveParticipants(context.Background())

	// The TTL is an hour, so only a forced refresh can pick this up.
	static.SetPresence("alice", model.PresenceOnline, 0.9)
	r.RefreshLiveParticipants(context.Background())

	snap := agg.Snapshot("alice")
	if rec := snap["static"]; rec.Status != model.PresenceOnline {
		t.Errorf("forced refresh did not bypass the cache: %+v", rec)
	}
}
