package model

import "testing"

func TestSessionTransitions(t *testing.T) {
	cases := []struct {
		from    SessionStatus
		to      SessionStatus
		allowed bool
	}{
		{SessionScheduled, SessionActive, true},
		{SessionScheduled, SessionCancelled, true},
		{SessionScheduled, SessionFailed, true},
		{SessionScheduled, SessionCompleted, false},
		{SessionActive, SessionCompleted, true},
		{SessionActive, SessionFailed, true},
		{SessionActive, SessionCancelled, true},
		{SessionActive, SessionScheduled, false},
		{SessionCompleted, SessionActive, false},
		{SessionCancelled, SessionActive, false},
		{SessionFailed, SessionScheduled, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestPresencePriorityRoundTrip(t *testing.T) {
	statuses := []PresenceStatus{PresenceOnline, PresenceIdle, PresenceBusy, PresenceOffline, PresenceUnknown}
	for _, s := range statuses {
		if got := StatusFromPriority(s.Priority()); got != s {
			t.Errorf("round trip of %s gave %s", s, got)
		}
	}
}
