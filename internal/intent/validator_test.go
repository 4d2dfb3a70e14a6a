package intent

import (
	"context"
	"testing"

	"github.com/kairoshq/kairos/internal/config"
	kairosErrors "github.com/kairoshq/kairos/internal/errors"
	"github.com/kairoshq/kairos/internal/model"
	"github.com/kairoshq/kairos/internal/reputation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContacts struct {
	contacts map[string]bool
}

func (s *stubContacts) IsContact(ctx context.Context, userA, userB string) (bool, error) {
	return s.contacts[userA+"|"+userB], nil
}

// fixedScorer returns the same quality for every intent.
type fixedScorer struct {
	score float64
}

func (f fixedScorer) Score(intent model.Intent, importanceRating int) QualityScore {
	return QualityScore{Clarity: f.score, Specificity: f.score, Realism: f.score}
}

func neutralCred() reputation.Credibility {
	return reputation.Credibility{Score: 1.0, ColdStart: true}
}

func validRequest() *model.MeetingRequest {
	return &model.MeetingRequest{
		ID:          "req-1",
		RequesterID: "alice",
		RecipientID: "bob",
		Intent: model.Intent{
			Purpose:         "Review the quarterly latency regression in the ingest pipeline",
			ExpectedOutcome: "Agreed remediation plan with 3 owners assigned",
			DurationMinutes: 30,
		},
		RequesterRating: 7,
		Status:          model.RequestPending,
	}
}

func publicUser(id string) *model.User {
	return &model.User{ID: id, AvailabilityScope: model.ScopePublic}
}

func TestValidateAdmitsWellFormedRequest(t *testing.T) {
	v := NewValidator(config.IntentConfig{}, &stubContacts{}, nil)

	result, err := v.Validate(context.Background(), validRequest(), publicUser("bob"), neutralCred())
	require.NoError(t, err)

	assert.True(t, result.Admitted)
	assert.Empty(t, result.Reason)
	assert.Greater(t, result.QualityScore, result.Threshold)
}

func TestValidateRejectsMalformedIntent(t *testing.T) {
	v := NewValidator(config.IntentConfig{}, &stubContacts{}, nil)

	cases := []struct {
		name   string
		mutate func(*model.MeetingRequest)
	}{
		{"empty purpose", func(r *model.MeetingRequest) { r.Intent.Purpose = "" }},
		{"whitespace purpose", func(r *model.MeetingRequest) { r.Intent.Purpose = "   " }},
		{"purpose too short", func(r *model.MeetingRequest) { r.Intent.Purpose = "hi there" }},
		{"empty outcome", func(r *model.MeetingRequest) { r.Intent.ExpectedOutcome = "" }},
		{"zero duration", func(r *model.MeetingRequest) { r.Intent.DurationMinutes = 0 }},
		{"negative duration", func(r *model.MeetingRequest) { r.Intent.DurationMinutes = -15 }},
		{"absurd duration", func(r *model.MeetingRequest) { r.Intent.DurationMinutes = 1000 }},
		{"rating too low", func(r *model.MeetingRequest) { r.RequesterRating = 0 }},
		{"rating too high", func(r *model.MeetingRequest) { r.RequesterRating = 11 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(req)

			result, err := v.Validate(context.Background(), req, publicUser("bob"), neutralCred())
			require.Error(t, err)
			assert.ErrorIs(t, err, kairosErrors.ErrMalformedIntent)
			assert.Equal(t, "MALFORMED_INTENT", result.Reason)
			assert.False(t, result.Admitted)
		})
	}
}

func TestValidatePrivateRecipient(t *testing.T) {
	v := NewValidator(config.IntentConfig{}, &stubContacts{}, nil)

	recipient := &model.User{ID: "bob", AvailabilityScope: model.ScopePrivate}
	result, err := v.Validate(context.Background(), validRequest(), recipient, neutralCred())

	require.Error(t, err)
	assert.ErrorIs(t, err, kairosErrors.ErrRecipientUnavailable)
	assert.Equal(t, "RECIPIENT_UNAVAILABLE", result.Reason)
}

func TestValidateContactsOnlyRecipient(t *testing.T) {
	contacts := &stubContacts{contacts: map[string]bool{"carol|bob": true}}
	v := NewValidator(config.IntentConfig{}, contacts, nil)

	recipient := &model.User{ID: "bob", AvailabilityScope: model.ScopeContacts}

	_, err := v.Validate(context.Background(), validRequest(), recipient, neutralCred())
	require.Error(t, err)
	assert.ErrorIs(t, err, kairosErrors.ErrNotAContact)

	req := validRequest()
	req.RequesterID = "carol"
	result, err := v.Validate(context.Background(), req, recipient, neutralCred())
	require.NoError(t, err)
	assert.True(t, result.Admitted)
}

func TestValidateQualityBarScalesWithCredibility(t *testing.T) {
	// Slope 3/14 puts the bar at 0.65 for credibility 0.3; a 0.55-quality
	// intent fails there but clears the neutral bar of 0.5.
	v := NewValidator(config.IntentConfig{AdmissionSlope: 3.0 / 14.0}, &stubContacts{}, fixedScorer{score: 0.55})

	lowCred := reputation.Credibility{Score: 0.3}
	result, err := v.Validate(context.Background(), validRequest(), publicUser("bob"), lowCred)
	require.Error(t, err)
	assert.ErrorIs(t, err, kairosErrors.ErrLowQuality)
	assert.Equal(t, "LOW_QUALITY", result.Reason)
	assert.InDelta(t, 0.65, result.Threshold, 1e-9)
	assert.InDelta(t, 0.55, result.QualityScore, 1e-9)

	result, err = v.Validate(context.Background(), validRequest(), publicUser("bob"), neutralCred())
	require.NoError(t, err)
	assert.True(t, result.Admitted)
	assert.InDelta(t, 0.5, result.Threshold, 1e-9)
}

func TestThresholdForClamped(t *testing.T) {
	v := NewValidator(config.IntentConfig{}, &stubContacts{}, nil)

	assert.InDelta(t, 0.5, v.ThresholdFor(1.0), 1e-9)
	assert.Greater(t, v.ThresholdFor(0.1), v.ThresholdFor(1.0), "low credibility raises the bar")
	assert.Less(t, v.ThresholdFor(2.0), v.ThresholdFor(1.0), "high credibility lowers the bar")
	assert.LessOrEqual(t, v.ThresholdFor(-100), 0.9)
	assert.GreaterOrEqual(t, v.ThresholdFor(100), 0.3)
}

func TestHeuristicScorerDeterministic(t *testing.T) {
	scorer := HeuristicScorer{}
	intent := model.Intent{
		Purpose:         "Plan the migration of the billing service to the new cluster",
		ExpectedOutcome: "Migration checklist with 5 dated milestones",
		DurationMinutes: 45,
	}

	first := scorer.Score(intent, 7)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, scorer.Score(intent, 7))
	}

	assert.GreaterOrEqual(t, first.Clarity, 0.0)
	assert.LessOrEqual(t, first.Clarity, 1.0)
	assert.GreaterOrEqual(t, first.Specificity, 0.0)
	assert.LessOrEqual(t, first.Specificity, 1.0)
	assert.GreaterOrEqual(t, first.Realism, 0.0)
	assert.LessOrEqual(t, first.Realism, 1.0)
}
