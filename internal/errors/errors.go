package errors

import (
	"errors"
)

// Sentinel errors for the coordination taxonomy. Reason codes are stable and
// surfaced to callers; see Reason.
var (
	// ErrMalformedIntent - a required intent field is missing or out of range
	ErrMalformedIntent = errors.New("malformed intent")

	// ErrLowQuality - intent is structurally valid but below the admission bar
	ErrLowQuality = errors.New("low quality intent")

	// ErrRecipientUnavailable - recipient's availability scope is private
	ErrRecipientUnavailable = errors.New("recipient unavailable")

	// ErrNotAContact - recipient is contacts-only and the requester is not verified
	ErrNotAContact = errors.New("not a contact")

	// ErrNoCommonPlatform - no platform is shared and eligible for both parties
	ErrNoCommonPlatform = errors.New("no common platform")

	// ErrAdapterTimeout - a platform adapter did not answer within its deadline
	ErrAdapterTimeout = errors.New("adapter timeout")

	// ErrAdapterError - a platform adapter answered with a failure
	ErrAdapterError = errors.New("adapter error")

	// ErrStaleTransition - attempted transition from an invalid lifecycle state.
	// Always fatal to the single operation, never retried.
	ErrStaleTransition = errors.New("stale state transition")

	// ErrNotFound - resource not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput - invalid caller input outside the intent taxonomy
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict - concurrent update conflict
	ErrConflict = errors.New("conflict")

	// ErrTransient - transient error, safe to retry with backoff
	ErrTransient = errors.New("transient error")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)

// Reason returns the machine-readable reason code for an error, or "" for
// nil. Rejections and failures always surface one of these codes.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedIntent):
		return "MALFORMED_INTENT"
	case errors.Is(err, ErrLowQuality):
		return "LOW_QUALITY"
	case errors.Is(err, ErrRecipientUnavailable):
		return "RECIPIENT_UNAVAILABLE"
	case errors.Is(err, ErrNotAContact):
		return "NOT_A_CONTACT"
	case errors.Is(err, ErrNoCommonPlatform):
		return "NO_COMMON_PLATFORM"
	case errors.Is(err, ErrAdapterTimeout):
		return "ADAPTER_TIMEOUT"
	case errors.Is(err, ErrAdapterError):
		return "ADAPTER_ERROR"
	case errors.Is(err, ErrStaleTransition):
		return "STALE_STATE_TRANSITION"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrTransient):
		return "TRANSIENT"
	default:
		return "INTERNAL"
	}
}
