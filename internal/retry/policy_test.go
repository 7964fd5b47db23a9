package retry

import (
	"testing"
	"time"
)

func TestDelayForAttempt(t *testing.T) {
	p := Policy{
		MaxRetries:        5,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{20, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := p.DelayForAttempt(tc.attempt); got != tc.want {
			t.Errorf("DelayForAttempt(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayForAttemptNegative(t *testing.T) {
	p := DefaultPolicy()
	if got := p.DelayForAttempt(-1); got != 0 {
		t.Fatalf("DelayForAttempt(-1) = %v, want 0", got)
	}
}
