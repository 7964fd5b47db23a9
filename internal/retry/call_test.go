package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"autopilot/internal/provider"
)

func fastPolicy() Policy {
	return Policy{
		MaxRetries:        2,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestCallSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := Call(context.Background(), fastPolicy(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &provider.StatusError{Code: http.StatusInternalServerError}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("got = %q after %d calls", got, calls)
	}
}

func TestCallFatalShortCircuits(t *testing.T) {
	calls := 0
	_, err := Call(context.Background(), fastPolicy(), func(ctx context.Context) (int, error) {
		calls++
		return 0, &provider.StatusError{Code: http.StatusUnauthorized}
	})
	if calls != 1 {
		t.Fatalf("fatal error retried: %d calls", calls)
	}
	var statusErr *provider.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Fatal("fatal error must not be wrapped as exhausted")
	}
}

func TestCallExhaustionWrapsLastError(t *testing.T) {
	calls := 0
	boom := errors.New("connection reset by peer")
	_, err := Call(context.Background(), fastPolicy(), func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	if calls != 3 {
		t.Fatalf("calls = %d, want MaxRetries+1 = 3", calls)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want ExhaustedError", err)
	}
	if exhausted.Attempts != 3 || !errors.Is(err, boom) {
		t.Fatalf("exhausted = %+v", exhausted)
	}
}

func TestCallHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Call(ctx, fastPolicy(), func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("timeout awaiting response")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d after cancellation", calls)
	}
}
