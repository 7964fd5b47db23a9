package automation

import (
	"context"
	"fmt"
	"sync"
)

// Simulator 进程内模拟后端，实现 Capturer 与 Injector，用于 dry-run 与测试。
// Simulator is an in-process backend implementing Capturer and Injector,
// used for dry-run mode and tests.
//
// Every injected action bumps a generation counter so the next capture
// produces different encoded bytes, which makes effect verification observable
// without a real display.
type Simulator struct {
	mu         sync.Mutex
	width      int
	height     int
	generation int
	cursorX    int
	cursorY    int
	actions    []string
}

func NewSimulator(width, height int) *Simulator {
	if width <= 0 {
		width = 1440
	}
	if height <= 0 {
		height = 900
	}
	return &Simulator{width: width, height: height}
}

func (s *Simulator) Capture(_ context.Context) (*Screenshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := fmt.Appendf(nil, "sim-frame generation=%d cursor=%d,%d", s.generation, s.cursorX, s.cursorY)
	return &Screenshot{Width: s.width, Height: s.height, Data: data}, nil
}

func (s *Simulator) Move(_ context.Context, x, y int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Pointer movement alone leaves the frame untouched.
	s.cursorX, s.cursorY = x, y
	s.actions = append(s.actions, fmt.Sprintf("move %d,%d", x, y))
	return nil
}

func (s *Simulator) Click(_ context.Context, x, y int, button Button) error {
	s.record(fmt.Sprintf("click %s %d,%d", button, x, y))
	return nil
}

func (s *Simulator) DoubleClick(_ context.Context, x, y int) error {
	s.record(fmt.Sprintf("double_click %d,%d", x, y))
	return nil
}

func (s *Simulator) Type(_ context.Context, text string) error {
	s.record(fmt.Sprintf("type %q", text))
	return nil
}

func (s *Simulator) Key(_ context.Context, name string, modifiers []string) error {
	s.record(fmt.Sprintf("key %s %v", name, modifiers))
	return nil
}

func (s *Simulator) Scroll(_ context.Context, x, y int, direction ScrollDirection, amount int) error {
	s.record(fmt.Sprintf("scroll %s %d at %d,%d", direction, amount, x, y))
	return nil
}

// Actions 返回已注入动作的记录副本。
// Actions returns a copy of the injected action log.
func (s *Simulator) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.actions...)
}

func (s *Simulator) record(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.actions = append(s.actions, entry)
}
