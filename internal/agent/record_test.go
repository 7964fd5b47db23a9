package agent

import (
	"fmt"
	"testing"

	"autopilot/internal/automation"
)

func TestActionHistoryEvictsOldest(t *testing.T) {
	h := NewActionHistory()
	for i := 0; i < maxActionRecords+10; i++ {
		h.Add(NewActionRecord(Action{Kind: KindClick, X: i, Y: 0}))
	}
	if h.Len() != maxActionRecords {
		t.Fatalf("Len = %d, want %d", h.Len(), maxActionRecords)
	}
}

func TestPopLastReversible(t *testing.T) {
	h := NewActionHistory()
	h.Add(NewActionRecord(Action{Kind: KindScroll, X: 1, Y: 1, Direction: automation.ScrollDown, Amount: 2}))
	h.Add(NewActionRecord(Action{Kind: KindClick, X: 2, Y: 2}))
	h.Add(NewActionRecord(Action{Kind: KindScroll, X: 3, Y: 3, Direction: automation.ScrollLeft, Amount: 5}))
	h.Add(NewActionRecord(Action{Kind: KindType, Text: "hello"}))

	rec, ok := h.PopLastReversible()
	if !ok {
		t.Fatal("expected a reversible record")
	}
	if rec.Action.X != 3 || rec.Inverse.Direction != automation.ScrollRight {
		t.Fatalf("rec = %+v", rec)
	}
	if h.Len() != 3 {
		t.Fatalf("Len = %d after pop, want 3", h.Len())
	}

	// Next pop reaches the older scroll.
	rec, ok = h.PopLastReversible()
	if !ok || rec.Action.X != 1 {
		t.Fatalf("rec = %+v, %v", rec, ok)
	}
	if _, ok := h.PopLastReversible(); ok {
		t.Fatal("no reversible records should remain")
	}
	if h.Len() != 2 {
		t.Fatalf("irreversible records must survive pops, Len = %d", h.Len())
	}
}

func TestNewActionRecordDescription(t *testing.T) {
	rec := NewActionRecord(Action{Kind: KindClick, X: 7, Y: 8, Button: automation.ButtonRight})
	want := fmt.Sprintf("click %s at (7,8)", automation.ButtonRight)
	if rec.Description != want {
		t.Fatalf("Description = %q, want %q", rec.Description, want)
	}
	if rec.Reversible {
		t.Fatal("click recorded as reversible")
	}
	if rec.Timestamp.IsZero() {
		t.Fatal("timestamp not set")
	}
}
