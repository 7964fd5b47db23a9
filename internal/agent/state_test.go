package agent

import (
	"context"
	"testing"
	"time"
)

func TestStartResetsState(t *testing.T) {
	m := NewManager(30)
	m.BeginIteration()
	m.SetLastAction("click left at (1,2)")
	m.Fail(context.DeadlineExceeded)

	m.Start("new task")
	s := m.Snapshot()
	if s.Status != StatusRunning || s.Iteration != 0 || s.LastAction != "" || s.LastError != "" {
		t.Fatalf("state = %+v", s)
	}
	if s.CurrentInstruction != "new task" || s.MaxIterations != 30 {
		t.Fatalf("state = %+v", s)
	}
}

func TestStopFlagClearedOnStart(t *testing.T) {
	m := NewManager(10)
	m.RequestStop()
	if !m.StopRequested() {
		t.Fatal("stop flag not set")
	}
	m.Start("task")
	if m.StopRequested() {
		t.Fatal("stop flag survived Start")
	}
}

func TestConfirmationHandshake(t *testing.T) {
	m := NewManager(10)
	m.Start("task")

	done := make(chan bool, 1)
	go func() {
		confirmed, err := m.AwaitConfirmation(context.Background(), "press cmd+q")
		if err != nil {
			t.Errorf("AwaitConfirmation: %v", err)
		}
		done <- confirmed
	}()

	// Wait until the request is visible.
	deadline := time.After(2 * time.Second)
	for m.Snapshot().Status != StatusAwaitingConfirmation {
		select {
		case <-deadline:
			t.Fatal("confirmation request never surfaced")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if m.Snapshot().PendingConfirmation != "press cmd+q" {
		t.Fatalf("PendingConfirmation = %q", m.Snapshot().PendingConfirmation)
	}

	if err := m.Resolve(true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !<-done {
		t.Fatal("confirmation answer lost")
	}
	s := m.Snapshot()
	if s.Status != StatusRunning || s.PendingConfirmation != "" {
		t.Fatalf("state after resolve = %+v", s)
	}
}

func TestSecondConfirmationRejected(t *testing.T) {
	m := NewManager(10)
	m.Start("task")

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = m.AwaitConfirmation(context.Background(), "first")
	}()
	<-started
	deadline := time.After(2 * time.Second)
	for m.Snapshot().Status != StatusAwaitingConfirmation {
		select {
		case <-deadline:
			t.Fatal("first request never surfaced")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := m.AwaitConfirmation(context.Background(), "second"); err == nil {
		t.Fatal("second pending confirmation must be rejected")
	}
	_ = m.Resolve(false)
}

func TestResolveWithoutPending(t *testing.T) {
	m := NewManager(10)
	if err := m.Resolve(true); err == nil {
		t.Fatal("Resolve with no pending request must error")
	}
}

func TestRequestStopDeniesPendingConfirmation(t *testing.T) {
	m := NewManager(10)
	m.Start("task")

	answer := make(chan bool, 1)
	go func() {
		confirmed, _ := m.AwaitConfirmation(context.Background(), "press cmd+q")
		answer <- confirmed
	}()
	deadline := time.After(2 * time.Second)
	for m.Snapshot().Status != StatusAwaitingConfirmation {
		select {
		case <-deadline:
			t.Fatal("request never surfaced")
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.RequestStop()
	select {
	case confirmed := <-answer:
		if confirmed {
			t.Fatal("stop must resolve a pending confirmation as denied")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation wait not released by stop")
	}
}

func TestAwaitConfirmationContextCancel(t *testing.T) {
	m := NewManager(10)
	m.Start("task")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.AwaitConfirmation(ctx, "x"); err == nil {
		t.Fatal("expected context error")
	}
	// The slot must be free again.
	if err := m.Resolve(true); err == nil {
		t.Fatal("slot should be empty after a cancelled wait")
	}
}

func TestRecordUsageAccumulates(t *testing.T) {
	m := NewManager(10)
	m.Start("task")
	m.RecordUsage(100, 50, time.Second)
	m.RecordUsage(120, 25, 500*time.Millisecond)

	s := m.Snapshot()
	if s.TotalInputTokens != 220 || s.TotalOutputTokens != 75 {
		t.Fatalf("totals = %d/%d", s.TotalInputTokens, s.TotalOutputTokens)
	}
	if s.TokensPerSecond != 50 {
		t.Fatalf("TokensPerSecond = %v, want rate of the latest call", s.TokensPerSecond)
	}
}

func TestObserverSeesEveryTransition(t *testing.T) {
	m := NewManager(10)
	var statuses []Status
	m.SetObserver(func(s State) { statuses = append(statuses, s.Status) })

	m.Start("task")
	m.BeginIteration()
	m.Complete()

	want := []Status{StatusRunning, StatusRunning, StatusCompleted}
	if len(statuses) != len(want) {
		t.Fatalf("observer fired %d times, want %d", len(statuses), len(want))
	}
	for i, s := range want {
		if statuses[i] != s {
			t.Fatalf("statuses = %v", statuses)
		}
	}
}
