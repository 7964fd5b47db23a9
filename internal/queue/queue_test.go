package queue

import "testing"

func TestAddAndNextPending(t *testing.T) {
	q := New()
	idA := q.Add("A")
	idB := q.Add("B")
	if idA == idB {
		t.Fatal("duplicate instruction ids")
	}

	item, ok := q.NextPending()
	if !ok || item.Text != "A" {
		t.Fatalf("NextPending = %+v, %v; want A", item, ok)
	}
	// Cursor stays until explicitly advanced.
	item, ok = q.NextPending()
	if !ok || item.Text != "A" {
		t.Fatalf("NextPending after re-read = %+v, %v; want A again", item, ok)
	}
}

func TestLifecycleAndCounters(t *testing.T) {
	q := New()
	q.AddMany([]string{"A", "B"})

	if _, ok := q.NextPending(); !ok {
		t.Fatal("expected pending instruction A")
	}
	if err := q.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if !q.Processing() {
		t.Fatal("Processing should be true while running")
	}
	if err := q.MarkCompleted("done"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if q.Processing() {
		t.Fatal("Processing should clear after completion")
	}
	if _, completed, _ := q.Counts(); completed != 1 {
		t.Fatalf("completed = %d, want 1", completed)
	}

	// Advancing is explicit, never implicit on completion.
	item, ok := q.NextPending()
	if !ok || item.Text != "B" {
		t.Fatalf("NextPending = %+v, %v; want B", item, ok)
	}
	if err := q.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning B: %v", err)
	}
	if err := q.MarkFailed("boom"); err != nil {
		t.Fatalf("MarkFailed B: %v", err)
	}
	if _, ok := q.NextPending(); ok {
		t.Fatal("queue should be drained")
	}
	pending, completed, failed := q.Counts()
	if pending != 0 || completed != 1 || failed != 1 {
		t.Fatalf("Counts = %d,%d,%d; want 0,1,1", pending, completed, failed)
	}
}

func TestRemoveRunningSoftFails(t *testing.T) {
	q := New()
	id := q.Add("A")
	q.NextPending()
	if err := q.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if q.Remove(id) {
		t.Fatal("removing a running instruction must fail softly")
	}
	if q.Len() != 1 {
		t.Fatal("queue was mutated by a failed Remove")
	}
}

func TestRemoveSettledAdjustsCounter(t *testing.T) {
	q := New()
	id := q.Add("A")
	q.Add("B")
	q.NextPending()
	q.MarkRunning()
	q.MarkCompleted("ok")

	if !q.Remove(id) {
		t.Fatal("removing a settled instruction should succeed")
	}
	_, completed, _ := q.Counts()
	if completed != 0 {
		t.Fatalf("completed = %d after removal, want 0", completed)
	}
	if q.Remove("no-such-id") {
		t.Fatal("unknown id must soft-fail")
	}
	// Cursor shifted down with the removal; B is still reachable.
	item, ok := q.NextPending()
	if !ok || item.Text != "B" {
		t.Fatalf("NextPending = %+v, %v; want B", item, ok)
	}
}

func TestReorderPermutation(t *testing.T) {
	q := New()
	idA := q.Add("A")
	idB := q.Add("B")
	idC := q.Add("C")

	// Settle A so only B and C are pending.
	q.NextPending()
	q.MarkRunning()
	q.MarkCompleted("ok")
	q.Advance()

	if err := q.Reorder([]string{idC, idB}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	items := q.Items()
	if items[0].ID != idA || items[1].ID != idC || items[2].ID != idB {
		t.Fatalf("order after reorder = %s,%s,%s", items[0].Text, items[1].Text, items[2].Text)
	}
	if items[0].Status != StatusCompleted {
		t.Fatal("settled instruction moved during reorder")
	}
}

func TestReorderRejectsMismatch(t *testing.T) {
	q := New()
	idA := q.Add("A")
	idB := q.Add("B")

	cases := []struct {
		name string
		ids  []string
	}{
		{"missing id", []string{idA}},
		{"unknown id", []string{idA, "bogus"}},
		{"duplicate id", []string{idA, idA}},
		{"extra id", []string{idA, idB, idA}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := q.Reorder(tc.ids); err == nil {
				t.Fatal("expected reorder to fail")
			}
			items := q.Items()
			if items[0].ID != idA || items[1].ID != idB {
				t.Fatal("queue changed by a rejected reorder")
			}
		})
	}
}

func TestResetRunning(t *testing.T) {
	q := New()
	q.Add("A")
	if q.ResetRunning() {
		t.Fatal("nothing running to reset")
	}
	q.NextPending()
	q.MarkRunning()
	if !q.ResetRunning() {
		t.Fatal("ResetRunning should succeed for a running instruction")
	}
	if q.Processing() {
		t.Fatal("processing flag survived reset")
	}
	item, ok := q.NextPending()
	if !ok || item.Status != StatusPending {
		t.Fatalf("item = %+v, want pending again", item)
	}
}

func TestFailureMode(t *testing.T) {
	q := New()
	if q.FailureMode() != FailureStop {
		t.Fatalf("default failure mode = %s, want stop", q.FailureMode())
	}
	q.SetFailureMode(FailureContinue)
	if q.FailureMode() != FailureContinue {
		t.Fatal("SetFailureMode did not take")
	}
}
