package importance

import (
	"math"
	"time"

	"github.com/kairoshq/kairos/internal/model"
)

// Assessor combines both parties' importance ratings into one mutual score.
// Ratings are scaled by each rater's credibility weight, clipped back into
// [1,10], then combined by geometric mean. The geometric mean is deliberate:
// it penalizes asymmetric interest (a 10 against a 2) harder than an average
// would, because a meeting is only mutually important if both sides value it.
type Assessor struct{}

func NewAssessor() *Assessor {
	return &Assessor{}
}

// Mutual is only computed once both ratings exist; the result is immutable.
func (a *Assessor) Mutual(requesterRating, recipientRating int, requesterWeight, recipientWeight float64) model.BiDirectionalImportance {
	weightedRequester := clip(float64(requesterRating)*requesterWeight, 1, 10)
	weightedRecipient := clip(float64(recipientRating)*recipientWeight, 1, 10)

	return model.BiDirectionalImportance{
		RequesterRating: requesterRating,
		RecipientRating: recipientRating,
		RequesterWeight: requesterWeight,
		RecipientWeight: recipientWeight,
		MutualScore:     math.Sqrt(weightedRequester * weightedRecipient),
		RatedAt:         time.Now(),
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
