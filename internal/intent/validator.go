package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kairoshq/kairos/internal/adapter"
	"github.com/kairoshq/kairos/internal/config"
	"github.com/kairoshq/kairos/internal/errors"
	"github.com/kairoshq/kairos/internal/model"
	"github.com/kairoshq/kairos/internal/reputation"
)

// Validator is the admission gate: structural completeness, recipient
// eligibility, then a reputation-adjusted quality bar. Rejections never
// touch credibility; only completed or failed sessions do.
type Validator struct {
	minPurposeLength   int
	maxDurationMinutes int
	baseThreshold      float64
	admissionSlope     float64
	minThreshold       float64
	maxThreshold       float64

	contacts adapter.ContactVerifier
	scorer   QualityScorer
}

func NewValidator(cfg config.IntentConfig, contacts adapter.ContactVerifier, scorer QualityScorer) *Validator {
	if cfg.MinPurposeLength <= 0 {
		cfg.MinPurposeLength = config.DefaultIntentMinPurposeLength
	}
	if cfg.MaxDurationMinutes <= 0 {
		cfg.MaxDurationMinutes = config.DefaultIntentMaxDurationMinutes
	}
	if cfg.BaseThreshold <= 0 {
		cfg.BaseThreshold = config.DefaultIntentBaseThreshold
	}
	if cfg.AdmissionSlope <= 0 {
		cfg.AdmissionSlope = config.DefaultIntentAdmissionSlope
	}
	if cfg.MinThreshold <= 0 {
		cfg.MinThreshold = config.DefaultIntentMinThreshold
	}
	if cfg.MaxThreshold <= 0 {
		cfg.MaxThreshold = config.DefaultIntentMaxThreshold
	}
	if scorer == nil {
		scorer = HeuristicScorer{}
	}

	return &Validator{
		minPurposeLength:   cfg.MinPurposeLength,
		maxDurationMinutes: cfg.MaxDurationMinutes,
		baseThreshold:      cfg.BaseThreshold,
		admissionSlope:     cfg.AdmissionSlope,
		minThreshold:       cfg.MinThreshold,
		maxThreshold:       cfg.MaxThreshold,
		contacts:           contacts,
		scorer:             scorer,
	}
}

// Validate admits or rejects a meeting request. A nil error means ADMIT; a
// rejection returns the taxonomy error carrying the reason code, with the
// same code recorded in the result.
func (v *Validator) Validate(ctx context.Context, req *model.MeetingRequest, recipient *model.User, cred reputation.Credibility) (model.ValidationResult, error) {
	result := model.ValidationResult{CheckedAt: time.Now()}

	if err := v.checkStructure(req); err != nil {
		result.Reason = errors.Reason(err)
		return result, err
	}

	// Eligibility before quality scoring: cheap check first.
	switch recipient.AvailabilityScope {
	case model.ScopePrivate:
		err := fmt.Errorf("recipient %s accepts no requests: %w", recipient.ID, errors.ErrRecipientUnavailable)
		result.Reason = errors.Reason(err)
		return result, err
	case model.ScopeContacts:
		ok, err := v.contacts.IsContact(ctx, req.RequesterID, req.RecipientID)
		if err != nil {
			return result, errors.Wrap(err, "contact verification")
		}
		if !ok {
			err := fmt.Errorf("requester %s is not a verified contact of %s: %w", req.RequesterID, recipient.ID, errors.ErrNotAContact)
			result.Reason = errors.Reason(err)
			return result, err
		}
	}

	quality := v.scorer.Score(req.Intent, req.RequesterRating)
	threshold := v.ThresholdFor(cred.Score)

	result.QualityScore = quality.Average()
	result.Threshold = threshold

	if result.QualityScore < threshold {
		err := fmt.Errorf("quality %.2f below admission bar %.2f: %w", result.QualityScore, threshold, errors.ErrLowQuality)
		result.Reason = errors.Reason(err)
		return result, err
	}

	result.Admitted = true
	return result, nil
}

func (v *Validator) checkStructure(req *model.MeetingRequest) error {
	purpose := strings.TrimSpace(req.Intent.Purpose)
	if purpose == "" {
		return fmt.Errorf("purpose is empty: %w", errors.ErrMalformedIntent)
	}
	if len(purpose) < v.minPurposeLength {
		return fmt.Errorf("purpose shorter than %d chars: %w", v.minPurposeLength, errors.ErrMalformedIntent)
	}
	if strings.TrimSpace(req.Intent.ExpectedOutcome) == "" {
		return fmt.Errorf("expected outcome is empty: %w", errors.ErrMalformedIntent)
	}
	if req.Intent.DurationMinutes <= 0 {
		return fmt.Errorf("duration must be positive: %w", errors.ErrMalformedIntent)
	}
	if req.Intent.DurationMinutes > v.maxDurationMinutes {
		return fmt.Errorf("duration exceeds %d minutes: %w", v.maxDurationMinutes, errors.ErrMalformedIntent)
	}
	if req.RequesterRating < 1 || req.RequesterRating > 10 {
		return fmt.Errorf("importance rating outside 1-10: %w", errors.ErrMalformedIntent)
	}
	return nil
}

// ThresholdFor is the reputation-adjusted admission bar: lowered for
// high-credibility requesters, raised for low-credibility ones. Linear in
// credibility around the neutral 1.0 and clamped to the configured bounds.
func (v *Validator) ThresholdFor(credibility float64) float64 {
	threshold := v.baseThreshold + v.admissionSlope*(1.0-credibility)
	if threshold < v.minThreshold {
		return v.minThreshold
	}
	if threshold > v.maxThreshold {
		return v.maxThreshold
	}
	return threshold
}
