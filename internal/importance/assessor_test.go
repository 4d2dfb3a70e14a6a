package importance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMutualSymmetricRatings(t *testing.T) {
	a := NewAssessor()

	got := a.Mutual(9, 9, 1.0, 1.0)

	assert.InDelta(t, 9.0, got.MutualScore, 1e-9)
	assert.Equal(t, 9, got.RequesterRating)
	assert.Equal(t, 9, got.RecipientRating)
	assert.False(t, got.RatedAt.IsZero())
}

func TestMutualPenalizesAsymmetry(t *testing.T) {
	a := NewAssessor()

	asymmetric := a.Mutual(10, 2, 1.0, 1.0)
	arithmetic := (10.0 + 2.0) / 2.0

	assert.InDelta(t, math.Sqrt(20), asymmetric.MutualScore, 1e-9)
	assert.Less(t, asymmetric.MutualScore, arithmetic)
}

func TestMutualWeightsClippedIntoRange(t *testing.T) {
	a := NewAssessor()

	// A down-weighted rater cannot push the weighted rating below 1.
	floor := a.Mutual(10, 10, 0.05, 1.0)
	assert.InDelta(t, math.Sqrt(1.0*10.0), floor.MutualScore, 1e-9)

	// A high-credibility rater cannot push it above 10.
	ceil := a.Mutual(8, 8, 2.0, 2.0)
	assert.InDelta(t, 10.0, ceil.MutualScore, 1e-9)
}

func TestMutualScoreRange(t *testing.T) {
	a := NewAssessor()

	for r1 := 1; r1 <= 10; r1 += 3 {
		for r2 := 1; r2 <= 10; r2 += 3 {
			got := a.Mutual(r1, r2, 1.0, 1.0)
			assert.GreaterOrEqual(t, got.MutualScore, 1.0)
			assert.LessOrEqual(t, got.MutualScore, 10.0)
		}
	}
}
