package presence

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/kairoshq/kairos/internal/adapter"
	"github.com/kairoshq/kairos/internal/config"
	"github.com/kairoshq/kairos/internal/model"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Aggregator fuses per-platform presence signals into one confidence-weighted
// status. Platform fetches fan out concurrently, each under its own timeout,
// so one slow platform never stalls the rest. Concurrent callers for the
// same (user, platform) pair share a single in-flight poll.
type Aggregator struct {
	adapters map[string]adapter.PresenceAdapter
	timeout  time.Duration
	ttl      time.Duration

	mu    sync.RWMutex
	cache map[string]model.PresenceRecord

	flight singleflight.Group
}

func NewAggregator(adapters []adapter.PresenceAdapter, cfg config.PresenceConfig) (*Aggregator, error) {
	timeout, err := config.DurationOrDefault(cfg.AdapterTimeout, config.DefaultPresenceAdapterTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse presence adapter timeout: %w", err)
	}
	ttl, err := config.DurationOrDefault(cfg.CacheTTL, config.DefaultPresenceCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("parse presence cache ttl: %w", err)
	}

	byPlatform := make(map[string]adapter.PresenceAdapter, len(adapters))
	for _, a := range adapters {
		byPlatform[a.Platform()] = a
	}

	return &Aggregator{
		adapters: byPlatform,
		timeout:  timeout,
		ttl:      ttl,
		cache:    make(map[string]model.PresenceRecord),
	}, nil
}

// Unified computes the user's presence across every configured platform.
func (a *Aggregator) Unified(ctx context.Context, user *model.User) (model.UnifiedPresence, error) {
	records := a.collect(ctx, user, false)
	return Aggregate(records), nil
}

// Refresh re-polls every platform ignoring cache freshness. Used by the
// periodic refresher to keep the cache warm for live requests.
func (a *Aggregator) Refresh(ctx context.Context, user *model.User) {
	a.collect(ctx, user, true)
}

// Snapshot returns the cached record per platform for a user, without
// triggering any poll. Missing platforms are absent from the map.
func (a *Aggregator) Snapshot(userID string) map[string]model.PresenceRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]model.PresenceRecord)
	for platform := range a.adapters {
		if rec, ok := a.cache[cacheKey(userID, platform)]; ok {
			out[platform] = rec
		}
	}
	return out
}

func (a *Aggregator) collect(ctx context.Context, user *model.User, force bool) []model.PresenceRecord {
	platforms := make([]string, 0, len(a.adapters))
	for p := range a.adapters {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	records := make([]model.PresenceRecord, len(platforms))
	g, ctx := errgroup.WithContext(ctx)
	for i, platform := range platforms {
		g.Go(func() error {
			records[i] = a.fetch(ctx, user, platform, force)
			return nil
		})
	}
	// Workers never return errors: a failed platform contributes
	// (UNKNOWN, 0.0) instead of being omitted.
	_ = g.Wait()

	return records
}

func (a *Aggregator) fetch(ctx context.Context, user *model.User, platform string, force bool) model.PresenceRecord {
	key := cacheKey(user.ID, platform)

	if !force {
		a.mu.RLock()
		rec, ok := a.cache[key]
		a.mu.RUnlock()
		if ok && time.Since(rec.LastUpdated) < a.ttl {
			return rec
		}
	}

	// Callers racing on the same key await the one in-flight poll.
	result, _, _ := a.flight.Do(key, func() (interface{}, error) {
		return a.poll(ctx, user, platform), nil
	})
	return result.(model.PresenceRecord)
}

func (a *Aggregator) poll(ctx context.Context, user *model.User, platform string) model.PresenceRecord {
	ad := a.adapters[platform]

	platformUserID := user.ID
	if h, ok := user.PlatformHandles[platform]; ok && h != "" {
		platformUserID = h
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	status, confidence, err := ad.FetchPresence(fetchCtx, platformUserID)
	if err != nil {
		slog.Debug("Presence fetch failed", "platform", platform, "user", user.ID, "error", err)
		status, confidence = model.PresenceUnknown, 0.0
	}

	rec := model.PresenceRecord{
		UserID:      user.ID,
		Platform:    platform,
		Status:      status,
		Confidence:  confidence,
		LastUpdated: time.Now(),
	}

	a.mu.Lock()
	a.cache[key(rec)] = rec
	a.mu.Unlock()

	return rec
}

func key(rec model.PresenceRecord) string {
	return cacheKey(rec.UserID, rec.Platform)
}

func cacheKey(userID, platform string) string {
	return userID + "|" + platform
}

// Aggregate fuses a fixed set of presence records deterministically. The
// weighted availability score is the confidence-weighted mean of the status
// ordinals; rounding ties break toward the more available state, so a
// perfect ONLINE/OFFLINE split resolves to IDLE rather than BUSY. That
// tie-break deliberately favors availability over conservatism and raises
// session-scheduling rates accordingly.
func Aggregate(records []model.PresenceRecord) model.UnifiedPresence {
	var weighted, sumConfidence float64
	missProduct := 1.0
	for _, rec := range records {
		weighted += float64(rec.Status.Priority()) * rec.Confidence
		sumConfidence += rec.Confidence
		missProduct *= 1.0 - rec.Confidence
	}

	if sumConfidence == 0 {
		return model.UnifiedPresence{
			Status:     model.PresenceUnknown,
			Score:      0.0,
			Confidence: 0.0,
			Records:    records,
		}
	}

	score := weighted / sumConfidence
	ordinal := int(math.Floor(score + 0.5))

	return model.UnifiedPresence{
		Status: model.StatusFromPriority(ordinal),
		Score:  score,
		// Noisy-or combination: adding signals never lowers confidence
		// below what any single record would give alone.
		Confidence: 1.0 - missProduct,
		Records:    records,
	}
}
