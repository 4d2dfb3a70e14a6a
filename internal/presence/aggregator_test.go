package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kairoshq/kairos/internal/adapter"
	"github.com/kairoshq/kairos/internal/config"
	"github.com/kairoshq/kairos/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(status model.PresenceStatus, confidence float64) model.PresenceRecord {
	return model.PresenceRecord{Status: status, Confidence: confidence}
}

func TestAggregateTieBreaksTowardAvailability(t *testing.T) {
	// ONLINE at 0.9 and OFFLINE at 0.9 average to 2.5 exactly; the tie must
	// resolve upward to IDLE, not down to BUSY. The dead platform at zero
	// confidence contributes nothing.
	unified := Aggregate([]model.PresenceRecord{
		rec(model.PresenceOnline, 0.9),
		rec(model.PresenceOffline, 0.9),
		rec(model.PresenceUnknown, 0.0),
	})

	assert.InDelta(t, 2.5, unified.Score, 1e-9)
	assert.Equal(t, model.PresenceIdle, unified.Status)
	assert.InDelta(t, 0.99, unified.Confidence, 1e-9)
}

func TestAggregateAllSignalsDead(t *testing.T) {
	unified := Aggregate([]model.PresenceRecord{
		rec(model.PresenceUnknown, 0.0),
		rec(model.PresenceUnknown, 0.0),
	})

	assert.Equal(t, model.PresenceUnknown, unified.Status)
	assert.Zero(t, unified.Score)
	assert.Zero(t, unified.Confidence)
}

func TestAggregateNoRecords(t *testing.T) {
	unified := Aggregate(nil)
	assert.Equal(t, model.PresenceUnknown, unified.Status)
	assert.Zero(t, unified.Confidence)
}

func TestAggregateSingleStrongSignal(t *testing.T) {
	unified := Aggregate([]model.PresenceRecord{
		rec(model.PresenceOnline, 0.9),
	})

	assert.Equal(t, model.PresenceOnline, unified.Status)
	assert.InDelta(t, 4.0, unified.Score, 1e-9)
	assert.InDelta(t, 0.9, unified.Confidence, 1e-9)
}

func TestAggregateConfidenceNeverDropsWithMoreSignals(t *testing.T) {
	base := Aggregate([]model.PresenceRecord{
		rec(model.PresenceOnline, 0.6),
	})
	more := Aggregate([]model.PresenceRecord{
		rec(model.PresenceOnline, 0.6),
		rec(model.PresenceBusy, 0.3),
	})

	assert.GreaterOrEqual(t, more.Confidence, base.Confidence)
}

func TestAggregateDeterministic(t *testing.T) {
	records := []model.PresenceRecord{
		rec(model.PresenceOnline, 0.7),
		rec(model.PresenceBusy, 0.5),
		rec(model.PresenceOffline, 0.2),
	}

	first := Aggregate(records)
	for i := 0; i < 10; i++ {
		again := Aggregate(records)
		assert.Equal(t, first.Status, again.Status)
		assert.Equal(t, first.Score, again.Score)
		assert.Equal(t, first.Confidence, again.Confidence)
	}
}

// failingAdapter always errors, standing in for an unreachable platform.
type failingAdapter struct {
	platform string
}

func (f *failingAdapter) Platform() string { return f.platform }

func (f *failingAdapter) FetchPresence(ctx context.Context, platformUserID string) (model.PresenceStatus, float64, error) {
	return "", 0, errors.New("connection refused")
}

func TestUnifiedDegradesFailedPlatform(t *testing.T) {
	static := adapter.NewStaticAdapter("static", nil)
	static.SetPresence("alice", model.PresenceOnline, 0.9)

	agg, err := NewAggregator([]adapter.PresenceAdapter{
		static,
		&failingAdapter{platform: "zoom"},
	}, config.PresenceConfig{AdapterTimeout: "100ms", CacheTTL: "1s"})
	require.NoError(t, err)

	unified, err := agg.Unified(context.Background(), &model.User{ID: "alice"})
	require.NoError(t, err)

	// The failed platform contributes (UNKNOWN, 0.0) rather than being
	// omitted, so the healthy signal still decides.
	require.Len(t, unified.Records, 2)
	assert.Equal(t, model.PresenceOnline, unified.Status)
	assert.InDelta(t, 0.9, unified.Confidence, 1e-9)
}

func TestUnifiedAllPlatformsFail(t *testing.T) {
	agg, err := NewAggregator([]adapter.PresenceAdapter{
		&failingAdapter{platform: "zoom"},
		&failingAdapter{platform: "meet"},
	}, config.PresenceConfig{AdapterTimeout: "100ms", CacheTTL: "1s"})
	require.NoError(t, err)

	unified, err := agg.Unified(context.Background(), &model.User{ID: "bob"})
	require.NoError(t, err)

	assert.Equal(t, model.PresenceUnknown, unified.Status)
	assert.Zero(t, unified.Confidence)
}

func TestSnapshotServesCachedRecords(t *testing.T) {
	static := adapter.NewStaticAdapter("static", nil)
	static.SetPresence("carol", model.PresenceBusy, 0.8)

	agg, err := NewAggregator([]adapter.PresenceAdapter{static},
		config.PresenceConfig{AdapterTimeout: "100ms", CacheTTL: "1m"})
	require.NoError(t, err)

	user := &model.User{ID: "carol"}
	_, err = agg.Unified(context.Background(), user)
	require.NoError(t, err)

	snap := agg.Snapshot("carol")
	require.Contains(t, snap, "static")
	assert.Equal(t, model.PresenceBusy, snap["static"].Status)
	assert.WithinDuration(t, time.Now(), snap["static"].LastUpdated, time.Minute)

	// A later change is not visible until the TTL lapses or Refresh forces
	// a poll.
	static.SetPresence("carol", model.PresenceOnline, 0.9)
	_, err = agg.Unified(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, model.PresenceBusy, agg.Snapshot("carol")["static"].Status)

	agg.Refresh(context.Background(), user)
	assert.Equal(t, model.PresenceOnline, agg.Snapshot("carol")["static"].Status)
}

func TestPollUsesPlatformHandle(t *testing.T) {
	static := adapter.NewStaticAdapter("static", nil)
	static.SetPresence("U12345", model.PresenceOnline, 0.9)

	agg, err := NewAggregator([]adapter.PresenceAdapter{static},
		config.PresenceConfig{AdapterTimeout: "100ms", CacheTTL: "1s"})
	require.NoError(t, err)

	user := &model.User{
		ID:              "dave",
		PlatformHandles: map[string]string{"static": "U12345"},
	}
	unified, err := agg.Unified(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, model.PresenceOnline, unified.Status)
}
