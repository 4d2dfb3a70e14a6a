package model

import "testing"

func TestRequestTransitions(t *testing.T) {
	cases := []struct {
		from    RequestStatus
		to      RequestStatus
		allowed bool
	}{
		{RequestPending, RequestAccepted, true},
		{RequestPending, RequestDeclined, true},
		{RequestPending, RequestCancelled, true},
		{RequestPending, RequestCompleted, false},
		{RequestPending, RequestFailed, false},
		{RequestAccepted, RequestCompleted, true},
		{RequestAccepted, RequestCancelled, true},
		{RequestAccepted, RequestFailed, true},
		{RequestAccepted, RequestDeclined, false},
		{RequestAccepted, RequestPending, false},
		{RequestDeclined, RequestAccepted, false},
		{RequestCompleted, RequestCancelled, false},
		{RequestCancelled, RequestAccepted, false},
		{RequestFailed, RequestPending, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestRequestTerminal(t *testing.T) {
	terminal := []RequestStatus{RequestDeclined, RequestCompleted, RequestCancelled, RequestFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	for _, s := range []RequestStatus{RequestPending, RequestAccepted} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
