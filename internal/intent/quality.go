package intent

import (
	"strings"
	"unicode"

	"github.com/kairoshq/kairos/internal/model"
)

// QualityScore holds the three sub-scores, each in [0,1].
type QualityScore struct {
	Clarity     float64
	Specificity float64
	Realism     float64
}

// Average is the quality score compared against the admission bar.
func (q QualityScore) Average() float64 {
	return (q.Clarity + q.Specificity + q.Realism) / 3
}

// QualityScorer rates a structurally valid intent. Implementations must be
// deterministic: identical intents always score identically.
type QualityScorer interface {
	Score(intent model.Intent, importanceRating int) QualityScore
}

// HeuristicScorer scores intents from surface features alone. It is the
// default scorer; nothing here consults history or identity.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(intent model.Intent, importanceRating int) QualityScore {
	return QualityScore{
		Clarity:     clarityOf(intent.Purpose),
		Specificity: specificityOf(intent.ExpectedOutcome),
		Realism:     realismOf(intent.Purpose, intent.DurationMinutes),
	}
}

// clarityOf rewards purposes long enough to actually say something. Twelve
// words saturate the score.
func clarityOf(purpose string) float64 {
	words := len(strings.Fields(purpose))
	score := float64(words) / 12.0
	if score > 1 {
		score = 1
	}
	return score
}

// specificityOf rewards outcomes that are concrete: eight words saturate,
// and a measurable detail (any digit) earns a bonus.
func specificityOf(outcome string) float64 {
	words := len(strings.Fields(outcome))
	score := float64(words) / 8.0
	if score > 1 {
		score = 1
	}

	if strings.IndexFunc(outcome, unicode.IsDigit) >= 0 {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

// realismOf compares the requested duration against a plausible duration
// for a purpose of that scope: short asks deserve short meetings.
func realismOf(purpose string, durationMinutes int) float64 {
	words := len(strings.Fields(purpose))

	expected := 10 + 3*words
	if expected < 15 {
		expected = 15
	}
	if expected > 120 {
		expected = 120
	}

	lo, hi := float64(durationMinutes), float64(expected)
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == 0 {
		return 0
	}
	return lo / hi
}
