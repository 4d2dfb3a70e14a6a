package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kairoshq/kairos/internal/concurrency"
	"github.com/kairoshq/kairos/internal/config"
	kairosErrors "github.com/kairoshq/kairos/internal/errors"
	"github.com/kairoshq/kairos/internal/model"
	"github.com/kairoshq/kairos/internal/presence"

	"github.com/robfig/cron/v3"
)

// LiveRequestLister yields the requests whose participants still need fresh
// presence: everything PENDING or ACCEPTED.
type LiveRequestLister interface {
	ListLiveRequests() ([]model.MeetingRequest, error)
	GetUser(userID string) (*model.User, error)
}

// Refresher keeps the presence cache warm for every participant of a live
// request, so that accept-time platform selection works from recent data
// instead of paying the full adapter fan-out on the hot path.
type Refresher struct {
	store      LiveRequestLister
	aggregator *presence.Aggregator
	schedule   cron.Schedule

	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

func NewRefresher(store LiveRequestLister, aggregator *presence.Aggregator, cfg config.SchedulerConfig) (*Refresher, error) {
	spec := cfg.RefreshSpec
	if spec == "" {
		spec = config.DefaultSchedulerRefreshSpec
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	return &Refresher{
		store:      store,
		aggregator: aggregator,
		schedule:   schedule,
	}, nil
}

func (r *Refresher) Init(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	slog.Info("Presence refresher initialized")
	return nil
}

func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	// A panicking sweep must not take the daemon down; the next Start
	// can relaunch the loop.
	concurrency.SafeGo(r.run, func(interface{}) {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	})

	slog.Info("Presence refresher started")
	return nil
}

func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	slog.Info("Presence refresher stopped")
	return nil
}

func (r *Refresher) Health(ctx context.Context) error {
	if r.ctx == nil {
		return kairosErrors.Internal("refresher not initialized")
	}
	if !r.IsRunning() {
		return kairosErrors.Internal("refresher not running")
	}
	return nil
}

func (r *Refresher) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Refresher) run() {
	for {
		next := r.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			r.RefreshLiveParticipants(r.ctx)
		case <-r.ctx.Done():
			timer.Stop()
			slog.Info("Presence refresher loop stopped")
			return
		}
	}
}

// RefreshLiveParticipants forces one presence poll per distinct participant
// of a live request. Adapter failures degrade that platform's record, they
// never abort the sweep.
func (r *Refresher) RefreshLiveParticipants(ctx context.Context) {
	requests, err := r.store.ListLiveRequests()
	if err != nil {
		slog.Error("Failed to list live requests", "error", err)
		return
	}

	seen := make(map[string]bool)
	for _, req := range requests {
		seen[req.RequesterID] = true
		seen[req.RecipientID] = true
	}

	refreshed := 0
	for userID := range seen {
		user, err := r.store.GetUser(userID)
		if err != nil {
			slog.Warn("Skipping presence refresh for unknown user", "user", userID)
			continue
		}

		r.aggregator.Refresh(ctx, user)
		refreshed++

		select {
		case <-ctx.Done():
			return
		default:
		}
	}

	if refreshed > 0 {
		slog.Debug("Presence refreshed", "users", refreshed, "live_requests", len(requests))
	}
}
