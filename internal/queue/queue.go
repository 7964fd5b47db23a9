package queue

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Status 队列指令的生命周期状态
// Status is the lifecycle state of a queued instruction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// FailureMode 指令失败后的队列行为
// FailureMode selects how the queue behaves after an instruction fails.
type FailureMode string

const (
	// FailureStop 失败即停，余下指令保持 pending。
	// FailureStop halts processing; remaining instructions stay pending.
	FailureStop FailureMode = "stop"
	// FailureContinue 跳过失败指令继续。
	// FailureContinue records the failure and moves on.
	FailureContinue FailureMode = "continue"
)

// Instruction 一条排队的用户指令
// Instruction is one queued user instruction.
type Instruction struct {
	ID     string
	Text   string
	Status Status
	Result string
	Err    string
}

// Queue 顺序指令队列；游标指向下一条待取指令。
// Queue is an ordered instruction queue; the cursor marks the next
// instruction to hand out.
//
// One RWMutex guards everything; readers may run concurrently. Counters are
// cached but always recomputable from the item statuses.
type Queue struct {
	mu          sync.RWMutex
	items       []Instruction
	cursor      int
	processing  bool
	failureMode FailureMode

	completed int
	failed    int
}

func New() *Queue {
	return &Queue{failureMode: FailureStop}
}

// Add 追加一条指令并返回其 ID。
// Add appends one instruction and returns its ID.
func (q *Queue) Add(text string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := uuid.NewString()
	q.items = append(q.items, Instruction{ID: id, Text: text, Status: StatusPending})
	return id
}

// AddMany 批量追加。
// AddMany appends several instructions in order.
func (q *Queue) AddMany(texts []string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(texts))
	for _, text := range texts {
		id := uuid.NewString()
		q.items = append(q.items, Instruction{ID: id, Text: text, Status: StatusPending})
		ids = append(ids, id)
	}
	return ids
}

// Remove 按 ID 移除；未知 ID 或游标处正在运行的指令则静默失败返回 false。
// Remove deletes by ID. Unknown IDs and the running instruction at the
// cursor are soft failures: the queue is untouched and Remove returns false.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.ID != id {
			continue
		}
		if item.Status == StatusRunning {
			return false
		}
		switch item.Status {
		case StatusCompleted:
			q.completed--
		case StatusFailed:
			q.failed--
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		if i < q.cursor {
			q.cursor--
		}
		return true
	}
	return false
}

// NextPending 返回游标处的下一条 pending 指令；游标跳过非 pending 项。
// NextPending returns the next pending instruction at the cursor, skipping
// anything already settled. ok is false when the queue is drained.
func (q *Queue) NextPending() (Instruction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.cursor < len(q.items) {
		if q.items[q.cursor].Status == StatusPending {
			return q.items[q.cursor], true
		}
		q.cursor++
	}
	return Instruction{}, false
}

// MarkRunning 将游标处指令置为 running。
// MarkRunning flips the cursor instruction to running.
func (q *Queue) MarkRunning() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor >= len(q.items) {
		return fmt.Errorf("queue: no instruction at cursor")
	}
	item := &q.items[q.cursor]
	if item.Status != StatusPending {
		return fmt.Errorf("queue: instruction %s is %s, not pending", item.ID, item.Status)
	}
	item.Status = StatusRunning
	q.processing = true
	return nil
}

// MarkCompleted 将游标处指令置为 completed 并记录结果。
// MarkCompleted settles the cursor instruction as completed with its result.
func (q *Queue) MarkCompleted(result string) error {
	return q.settle(StatusCompleted, result, "")
}

// MarkFailed 将游标处指令置为 failed 并记录错误。
// MarkFailed settles the cursor instruction as failed with its error text.
func (q *Queue) MarkFailed(errText string) error {
	return q.settle(StatusFailed, "", errText)
}

func (q *Queue) settle(status Status, result, errText string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor >= len(q.items) {
		return fmt.Errorf("queue: no instruction at cursor")
	}
	item := &q.items[q.cursor]
	if item.Status != StatusRunning {
		return fmt.Errorf("queue: instruction %s is %s, not running", item.ID, item.Status)
	}
	item.Status = status
	item.Result = result
	item.Err = errText
	if status == StatusCompleted {
		q.completed++
	} else {
		q.failed++
	}
	q.processing = false
	return nil
}

// ResetRunning 将游标处 running 的指令退回 pending，用于用户中途停止后
// 下次启动继续。
// ResetRunning flips the running instruction at the cursor back to pending,
// so a user-stopped instruction resumes on the next start.
func (q *Queue) ResetRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor >= len(q.items) || q.items[q.cursor].Status != StatusRunning {
		return false
	}
	q.items[q.cursor].Status = StatusPending
	q.processing = false
	return true
}

// Advance 游标前移一格。
// Advance moves the cursor past the current instruction.
func (q *Queue) Advance() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cursor < len(q.items) {
		q.cursor++
	}
}

// Reorder 重排 pending 指令；ids 必须恰好是当前 pending 集合的一个排列，
// 否则整体拒绝，队列不变。
// Reorder permutes the pending instructions. ids must be exactly a
// permutation of the current pending set; otherwise the whole call is
// rejected and the queue is unchanged.
func (q *Queue) Reorder(ids []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pendingAt := make(map[string]int)
	var slots []int
	for i, item := range q.items {
		if item.Status == StatusPending {
			pendingAt[item.ID] = i
			slots = append(slots, i)
		}
	}
	if len(ids) != len(slots) {
		return fmt.Errorf("queue: reorder needs %d ids, got %d", len(slots), len(ids))
	}
	seen := make(map[string]bool, len(ids))
	ordered := make([]Instruction, 0, len(ids))
	for _, id := range ids {
		idx, ok := pendingAt[id]
		if !ok {
			return fmt.Errorf("queue: reorder id %s is not a pending instruction", id)
		}
		if seen[id] {
			return fmt.Errorf("queue: reorder id %s listed twice", id)
		}
		seen[id] = true
		ordered = append(ordered, q.items[idx])
	}
	// Settled and running instructions keep their positions; only the
	// pending slots are rewritten.
	for i, slot := range slots {
		q.items[slot] = ordered[i]
	}
	return nil
}

// SetFailureMode 设置失败模式。
// SetFailureMode selects the failure mode.
func (q *Queue) SetFailureMode(mode FailureMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failureMode = mode
}

func (q *Queue) FailureMode() FailureMode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.failureMode
}

// Processing 是否有指令正在运行。
// Processing reports whether an instruction is currently running.
func (q *Queue) Processing() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.processing
}

// Counts 返回 (pending, completed, failed)。
// Counts returns the pending, completed, and failed totals.
func (q *Queue) Counts() (pending, completed, failed int) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, item := range q.items {
		if item.Status == StatusPending {
			pending++
		}
	}
	return pending, q.completed, q.failed
}

// Items 返回全部指令的副本。
// Items returns a copy of every instruction.
func (q *Queue) Items() []Instruction {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]Instruction(nil), q.items...)
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}
