package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"autopilot/internal/automation"
	"autopilot/internal/chat"
	"autopilot/internal/history"
	"autopilot/internal/provider"
	"autopilot/internal/queue"
	"autopilot/internal/retry"
)

// scriptedProvider 按脚本逐次返回回复，支持注入错误。
// scriptedProvider returns scripted replies call by call, with optional
// injected errors.
type scriptedProvider struct {
	replies []string
	errs    map[int]error
	calls   int
}

func (p *scriptedProvider) SendHistory(_ context.Context, _ []chat.Message, _, _ int, onChunk provider.ChunkFunc) (provider.Reply, error) {
	idx := p.calls
	p.calls++
	if err := p.errs[idx]; err != nil {
		return provider.Reply{}, err
	}
	reply := p.replies[len(p.replies)-1]
	if idx < len(p.replies) {
		reply = p.replies[idx]
	}
	if onChunk != nil {
		onChunk(reply)
	}
	return provider.Reply{
		Text:  reply,
		Usage: provider.Usage{InputTokens: 10, OutputTokens: 5, Duration: 10 * time.Millisecond},
	}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

type loopFixture struct {
	loop  *Loop
	sim   *automation.Simulator
	state *Manager
	queue *queue.Queue
}

func newLoopFixture(t *testing.T, prov provider.Provider, cfg Config) *loopFixture {
	t.Helper()
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 10
	}
	if cfg.SpeedMultiplier == 0 {
		cfg.SpeedMultiplier = 1
	}
	sim := automation.NewSimulator(800, 600)
	state := NewManager(cfg.MaxIterations)
	q := queue.New()
	loop := NewLoop(LoopOptions{
		Capturer: sim,
		Injector: sim,
		Provider: prov,
		State:    state,
		History:  history.New(),
		Queue:    q,
		Executor: retry.NewExecutor(sim, retry.EffectPolicy{MaxRetries: 1, Verify: true}),
		CallPolicy: retry.Policy{
			MaxRetries:        2,
			InitialDelay:      time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffMultiplier: 2,
		},
		Config: cfg,
	})
	return &loopFixture{loop: loop, sim: sim, state: state, queue: q}
}

func TestLoopRunsInstructionToCompletion(t *testing.T) {
	prov := &scriptedProvider{replies: []string{
		`{"action":"click","x":100,"y":200}`,
		`{"action":"complete","message":"settings opened"}`,
	}}
	f := newLoopFixture(t, prov, Config{})
	f.queue.Add("open settings")

	var chunks []string
	f.loop.SetOnChunk(func(c string) { chunks = append(chunks, c) })

	if err := f.loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := f.state.Snapshot().Status; got != StatusCompleted {
		t.Fatalf("status = %s", got)
	}
	_, completed, failed := f.queue.Counts()
	if completed != 1 || failed != 0 {
		t.Fatalf("counts = %d completed, %d failed", completed, failed)
	}
	items := f.queue.Items()
	if items[0].Result != "settings opened" {
		t.Fatalf("result = %q", items[0].Result)
	}

	actions := f.sim.Actions()
	found := false
	for _, a := range actions {
		if strings.Contains(a, "click left 100,200") {
			found = true
		}
	}
	if !found {
		t.Fatalf("click not injected: %v", actions)
	}
	if len(chunks) == 0 {
		t.Fatal("no streamed chunks observed")
	}
}

func TestLoopFailureModeStop(t *testing.T) {
	prov := &scriptedProvider{replies: []string{
		`{"action":"error","message":"window not found"}`,
		`{"action":"complete","message":"done"}`,
	}}
	f := newLoopFixture(t, prov, Config{})
	f.queue.AddMany([]string{"A", "B"})
	f.queue.SetFailureMode(queue.FailureStop)

	if err := f.loop.Run(context.Background()); err == nil {
		t.Fatal("expected the first instruction's failure to surface")
	}

	pending, completed, failed := f.queue.Counts()
	if pending != 1 || completed != 0 || failed != 1 {
		t.Fatalf("counts = %d/%d/%d, want B still pending", pending, completed, failed)
	}
	if got := f.state.Snapshot().Status; got != StatusError {
		t.Fatalf("status = %s", got)
	}
}

func TestLoopFailureModeContinue(t *testing.T) {
	prov := &scriptedProvider{replies: []string{
		`{"action":"error","message":"nope"}`,
		`{"action":"complete","message":"done"}`,
	}}
	f := newLoopFixture(t, prov, Config{})
	f.queue.AddMany([]string{"A", "B"})
	f.queue.SetFailureMode(queue.FailureContinue)

	if err := f.loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	pending, completed, failed := f.queue.Counts()
	if pending != 0 || completed != 1 || failed != 1 {
		t.Fatalf("counts = %d/%d/%d", pending, completed, failed)
	}
}

func TestLoopIterationCapIsFatal(t *testing.T) {
	prov := &scriptedProvider{replies: []string{
		`{"action":"click","x":1,"y":2}`,
	}}
	f := newLoopFixture(t, prov, Config{MaxIterations: 3})
	f.queue.Add("never finishes")

	err := f.loop.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "iteration cap") {
		t.Fatalf("err = %v", err)
	}
	if got := f.state.Snapshot().Status; got != StatusError {
		t.Fatalf("status = %s", got)
	}
	if prov.calls != 3 {
		t.Fatalf("provider calls = %d, want 3", prov.calls)
	}
}

func TestLoopRetriesUnparseableReply(t *testing.T) {
	prov := &scriptedProvider{replies: []string{
		"I think I should click somewhere on the screen.",
		`{"action":"complete","message":"done"}`,
	}}
	f := newLoopFixture(t, prov, Config{})
	f.queue.Add("task")

	if err := f.loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if prov.calls != 2 {
		t.Fatalf("provider calls = %d, want a retry after the parse failure", prov.calls)
	}
	if got := f.state.Snapshot().Status; got != StatusCompleted {
		t.Fatalf("status = %s", got)
	}
}

func TestLoopDangerousKeyConfirmed(t *testing.T) {
	prov := &scriptedProvider{replies: []string{
		`{"action":"key","key":"q","modifiers":["cmd"]}`,
		`{"action":"complete","message":"quit"}`,
	}}
	f := newLoopFixture(t, prov, Config{RequireConfirmation: true})
	f.queue.Add("quit the app")

	f.state.SetObserver(func(s State) {
		if s.Status == StatusAwaitingConfirmation {
			go func() { _ = f.state.Resolve(true) }()
		}
	})

	if err := f.loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	injected := false
	for _, a := range f.sim.Actions() {
		if strings.Contains(a, "key q") {
			injected = true
		}
	}
	if !injected {
		t.Fatal("confirmed dangerous key was not injected")
	}
}

func TestLoopDangerousKeyDenied(t *testing.T) {
	prov := &scriptedProvider{replies: []string{
		`{"action":"key","key":"q","modifiers":["cmd"]}`,
		`{"action":"complete","message":"left the app open"}`,
	}}
	f := newLoopFixture(t, prov, Config{RequireConfirmation: true})
	f.queue.Add("quit the app")

	f.state.SetObserver(func(s State) {
		if s.Status == StatusAwaitingConfirmation {
			go func() { _ = f.state.Resolve(false) }()
		}
	})

	if err := f.loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, a := range f.sim.Actions() {
		if strings.Contains(a, "key q") {
			t.Fatalf("denied key was injected: %v", f.sim.Actions())
		}
	}
	if got := f.state.Snapshot().Status; got != StatusCompleted {
		t.Fatalf("status = %s", got)
	}
}

func TestLoopStopLeavesInstructionPending(t *testing.T) {
	prov := &scriptedProvider{replies: []string{
		`{"action":"complete","message":"done"}`,
	}}
	f := newLoopFixture(t, prov, Config{})
	f.queue.Add("task")
	f.state.Start("task")
	f.state.RequestStop()

	if err := f.loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if prov.calls != 0 {
		t.Fatalf("provider called %d times after stop", prov.calls)
	}
	pending, _, _ := f.queue.Counts()
	if pending != 1 {
		t.Fatalf("pending = %d, instruction must stay queued", pending)
	}
	if got := f.state.Snapshot().Status; got != StatusIdle {
		t.Fatalf("status = %s", got)
	}
}

func TestLoopUndoLastScroll(t *testing.T) {
	prov := &scriptedProvider{replies: []string{
		`{"action":"scroll","x":50,"y":60,"direction":"down","amount":4}`,
		`{"action":"complete","message":"scrolled"}`,
	}}
	f := newLoopFixture(t, prov, Config{})
	f.queue.Add("scroll the page")

	if err := f.loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := f.loop.UndoLast(context.Background()); err != nil {
		t.Fatalf("UndoLast: %v", err)
	}

	undone := false
	for _, a := range f.sim.Actions() {
		if strings.Contains(a, "scroll up 4 at 50,60") {
			undone = true
		}
	}
	if !undone {
		t.Fatalf("inverse scroll not injected: %v", f.sim.Actions())
	}
	if err := f.loop.UndoLast(context.Background()); err == nil {
		t.Fatal("second undo must fail, nothing reversible remains")
	}
}

func TestLoopProviderExhaustionSurfaces(t *testing.T) {
	transient := &provider.StatusError{Code: 500, Body: "overloaded"}
	prov := &scriptedProvider{
		replies: []string{`{"action":"complete","message":"x"}`},
		errs:    map[int]error{0: transient, 1: transient, 2: transient},
	}
	f := newLoopFixture(t, prov, Config{})
	f.queue.Add("task")

	err := f.loop.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "exhausted") {
		t.Fatalf("err = %v, want exhausted marker", err)
	}
	if got := f.state.Snapshot().Status; got != StatusError {
		t.Fatalf("status = %s", got)
	}
}
