package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status 运行状态
// Status is the run status.
type Status string

const (
	StatusIdle                 Status = "idle"
	StatusRunning              Status = "running"
	StatusPaused               Status = "paused"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusCompleted            Status = "completed"
	StatusError                Status = "error"
)

// State 一次运行的可观测快照
// State is the observable snapshot of one run.
type State struct {
	Status              Status
	CurrentInstruction  string
	Iteration           int
	MaxIterations       int
	LastAction          string
	LastError           string
	PendingConfirmation string
	TokensPerSecond     float64
	TotalInputTokens    int
	TotalOutputTokens   int
}

// Manager 独占持有 AgentState：协作式停止标志、单槽确认握手、状态发布。
// Manager exclusively owns the agent state: the cooperative stop flag, the
// single-slot confirmation handshake, and state publication.
//
// The stop flag is advisory. Check-then-act windows exist and are accepted;
// a stop request never preempts an in-flight action.
type Manager struct {
	mu        sync.RWMutex
	state     State
	stop      bool
	paused    bool
	confirmCh chan bool
	observer  func(State)
}

func NewManager(maxIterations int) *Manager {
	return &Manager{state: State{Status: StatusIdle, MaxIterations: maxIterations}}
}

// SetObserver 注册状态观察者；每次可见变更后同步调用。
// SetObserver registers the state observer, called synchronously after every
// visible change.
func (m *Manager) SetObserver(fn func(State)) {
	m.mu.Lock()
	m.observer = fn
	m.mu.Unlock()
}

// Snapshot 当前状态副本
// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) publishLocked() func() {
	observer := m.observer
	state := m.state
	return func() {
		if observer != nil {
			observer(state)
		}
	}
}

func (m *Manager) mutate(fn func(s *State)) {
	m.mu.Lock()
	fn(&m.state)
	notify := m.publishLocked()
	m.mu.Unlock()
	notify()
}

// Start 开启新的一次运行，重置上一轮的全部痕迹。
// Start begins a fresh run, resetting every trace of the previous one.
func (m *Manager) Start(instruction string) {
	m.mu.Lock()
	maxIterations := m.state.MaxIterations
	m.state = State{
		Status:             StatusRunning,
		CurrentInstruction: instruction,
		MaxIterations:      maxIterations,
	}
	m.stop = false
	m.paused = false
	notify := m.publishLocked()
	m.mu.Unlock()
	notify()
}

// RequestStop 任意时刻可调用；在迭代边界与确认等待后被观察到。
// RequestStop may be called at any time; the loop observes it at iteration
// boundaries and after confirmation waits. A pending confirmation resolves
// as denied.
func (m *Manager) RequestStop() {
	m.mu.Lock()
	m.stop = true
	if m.confirmCh != nil {
		select {
		case m.confirmCh <- false:
		default:
		}
	}
	m.mu.Unlock()
}

// StopRequested 停止标志是否已置位。
// StopRequested reports whether the stop flag is set.
func (m *Manager) StopRequested() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stop
}

// Pause 请求在下一个迭代边界暂停。
// Pause asks the loop to hold at the next iteration boundary.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

// Resume 解除暂停。
// Resume lifts the pause.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
}

// Paused 暂停标志是否置位。
// Paused reports whether the pause flag is set.
func (m *Manager) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// BeginIteration 递增迭代计数并发布。
// BeginIteration bumps the iteration counter and publishes.
func (m *Manager) BeginIteration() int {
	var iteration int
	m.mutate(func(s *State) {
		s.Iteration++
		iteration = s.Iteration
	})
	return iteration
}

// SetLastAction 记录最近执行的动作描述。
// SetLastAction records the latest executed action.
func (m *Manager) SetLastAction(description string) {
	m.mutate(func(s *State) { s.LastAction = description })
}

// SetStatus 切换状态。
// SetStatus switches the status.
func (m *Manager) SetStatus(status Status) {
	m.mutate(func(s *State) { s.Status = status })
}

// Fail 终结为 Error 状态并记录错误，恰好一次。
// Fail terminates with Error status, recording the error exactly once.
func (m *Manager) Fail(err error) {
	m.mutate(func(s *State) {
		s.Status = StatusError
		if err != nil {
			s.LastError = err.Error()
		}
	})
}

// Complete 终结为 Completed 状态。
// Complete terminates with Completed status.
func (m *Manager) Complete() {
	m.mutate(func(s *State) { s.Status = StatusCompleted })
}

// RecordUsage 累计 token 计数并更新速率（输出 token / 本次耗时）。
// RecordUsage accumulates token counts and updates the rate (output tokens
// over this call's duration).
func (m *Manager) RecordUsage(input, output int, duration time.Duration) {
	m.mutate(func(s *State) {
		s.TotalInputTokens += input
		s.TotalOutputTokens += output
		if duration > 0 && output > 0 {
			s.TokensPerSecond = float64(output) / duration.Seconds()
		}
	})
}

// AwaitConfirmation 发起单槽确认握手并阻塞等待回应。已有待决请求时直接
// 拒绝，避免悄悄覆盖。
// AwaitConfirmation opens the single-slot confirmation handshake and blocks
// for the answer. A second request while one is pending is rejected rather
// than silently replacing it.
func (m *Manager) AwaitConfirmation(ctx context.Context, actionText string) (bool, error) {
	m.mu.Lock()
	if m.confirmCh != nil {
		m.mu.Unlock()
		return false, fmt.Errorf("confirmation already pending")
	}
	// One-shot channel per request; a stale response can never leak into
	// the next handshake.
	ch := make(chan bool, 1)
	m.confirmCh = ch
	m.state.Status = StatusAwaitingConfirmation
	m.state.PendingConfirmation = actionText
	notify := m.publishLocked()
	m.mu.Unlock()
	notify()

	var (
		confirmed bool
		err       error
	)
	select {
	case <-ctx.Done():
		confirmed, err = false, ctx.Err()
	case answer := <-ch:
		confirmed = answer
	}

	m.mu.Lock()
	m.confirmCh = nil
	m.state.PendingConfirmation = ""
	if m.state.Status == StatusAwaitingConfirmation {
		m.state.Status = StatusRunning
	}
	notify = m.publishLocked()
	m.mu.Unlock()
	notify()
	return confirmed, err
}

// Resolve 回应当前待决确认；无待决请求时报错。
// Resolve answers the pending confirmation; it errors when none is pending.
func (m *Manager) Resolve(confirmed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confirmCh == nil {
		return fmt.Errorf("no confirmation pending")
	}
	select {
	case m.confirmCh <- confirmed:
		return nil
	default:
		return fmt.Errorf("confirmation already answered")
	}
}
