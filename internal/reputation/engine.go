package reputation

import (
	"context"
	"fmt"
	"time"

	"github.com/kairoshq/kairos/internal/config"
	"github.com/kairoshq/kairos/internal/model"
)

// OutcomeLog is the append-only engagement history the engine reads from and
// writes to. Credibility is recomputed from the log on every query; nothing
// is incrementally mutated, so concurrent session completions cannot lose
// updates.
type OutcomeLog interface {
	AppendOutcome(o model.Outcome) error
	ReadOutcomes(userID string, limit int) ([]model.Outcome, error)
}

// Credibility is the derived trust value plus the terms that produced it, so
// the decision stays auditable.
type Credibility struct {
	Score         float64 `json:"score"`
	VarianceTerm  float64 `json:"variance_term"`
	SuccessTerm   float64 `json:"success_term"`
	Observations  int     `json:"observations"`
	AlwaysMaximum bool    `json:"always_maximum"`
	ColdStart     bool    `json:"cold_start"`
}

// Engine computes credibility = rating_variance × engagement_success_rate
// over a trailing window. Rating variance is the anti-gaming term: a user
// who rates everything 10 has near-zero variance and is down-weighted.
type Engine struct {
	log     OutcomeLog
	window  int
	epsilon float64
	minCred float64
	maxCred float64
}

// maxRatingVariance is the largest possible variance of values in [1,10],
// reached by an even split between the extremes: ((10-1)/2)^2.
const maxRatingVariance = 20.25

func NewEngine(log OutcomeLog, cfg config.ReputationConfig) *Engine {
	window := cfg.Window
	if window <= 0 {
		window = config.DefaultReputationWindow
	}
	epsilon := cfg.VarianceEpsilon
	if epsilon <= 0 {
		epsilon = config.DefaultReputationVarianceEpsilon
	}
	minCred := cfg.MinCredibility
	if minCred <= 0 {
		minCred = config.DefaultReputationMinCredibility
	}
	maxCred := cfg.MaxCredibility
	if maxCred <= 0 {
		maxCred = config.DefaultReputationMaxCredibility
	}

	return &Engine{
		log:     log,
		window:  window,
		epsilon: epsilon,
		minCred: minCred,
		maxCred: maxCred,
	}
}

// RecordOutcome appends one engagement result to the user's history. This is
// the only path by which credibility changes.
func (e *Engine) RecordOutcome(ctx context.Context, userID string, ratingGiven int, result model.OutcomeResult, requestID string) error {
	if userID == "" {
		return fmt.Errorf("user id is empty")
	}

	return e.log.AppendOutcome(model.Outcome{
		UserID:     userID,
		RequestID:  requestID,
		Rating:     ratingGiven,
		Result:     result,
		RecordedAt: time.Now(),
	})
}

// Credibility recomputes the user's trust value from the trailing window of
// their outcome log. Users with fewer than the window size of observations
// get the neutral 1.0: new users are not penalized for lack of history.
func (e *Engine) Credibility(ctx context.Context, userID string) (Credibility, error) {
	outcomes, err := e.log.ReadOutcomes(userID, e.window)
	if err != nil {
		return Credibility{}, fmt.Errorf("read outcomes for %s: %w", userID, err)
	}

	obs := len(outcomes)
	if obs < e.window {
		return Credibility{
			Score:        1.0,
			VarianceTerm: 1.0,
			SuccessTerm:  1.0,
			Observations: obs,
			ColdStart:    true,
		}, nil
	}

	varianceTerm := e.varianceTerm(outcomes)
	successTerm := e.successTerm(outcomes)

	score := clamp(varianceTerm*successTerm, e.minCred, e.maxCred)

	return Credibility{
		Score:         score,
		VarianceTerm:  varianceTerm,
		SuccessTerm:   successTerm,
		Observations:  obs,
		AlwaysMaximum: varianceTerm < e.epsilon,
	}, nil
}

// RatingWeight is the influence of this user's ratings on other users'
// mutual-importance scores. ALWAYS_MAXIMUM raters have it halved on top of
// the variance down-weighting; their own requests are unaffected.
func (e *Engine) RatingWeight(ctx context.Context, userID string) (float64, error) {
	cred, err := e.Credibility(ctx, userID)
	if err != nil {
		return 0, err
	}

	weight := cred.Score
	if cred.AlwaysMaximum {
		weight /= 2
	}
	return weight, nil
}

func (e *Engine) varianceTerm(outcomes []model.Outcome) float64 {
	var ratings []float64
	for _, o := range outcomes {
		if o.Rating > 0 {
			ratings = append(ratings, float64(o.Rating))
		}
	}
	if len(ratings) == 0 {
		return 0
	}

	var sum float64
	for _, r := range ratings {
		sum += r
	}
	mean := sum / float64(len(ratings))

	var variance float64
	for _, r := range ratings {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(ratings))

	return clamp(variance/maxRatingVariance, 0, 1)
}

func (e *Engine) successTerm(outcomes []model.Outcome) float64 {
	var completed, responded int
	for _, o := range outcomes {
		switch o.Result {
		case model.OutcomeCompleted:
			completed++
			responded++
		case model.OutcomeFailed, model.OutcomeCancelled:
			responded++
		case model.OutcomeCounterpartyCancelled:
			// Not this party's fault; excluded from their denominator.
		}
	}
	if responded == 0 {
		return 1.0
	}
	return clamp(float64(completed)/float64(responded), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
