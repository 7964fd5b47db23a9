package storage

import "time"

// RunMeta 一次运行的元数据
// RunMeta describes one recorded run.
type RunMeta struct {
	ID          string
	Instruction string
	Status      string
	Error       string
	CreatedAt   time.Time
	FinishedAt  time.Time
}

// ActionEntry 一次已执行动作的日志条目
// ActionEntry records a single executed action.
type ActionEntry struct {
	RunID       string
	Iteration   int
	Description string
	Success     bool
	Warning     string
}

// InstructionEntry 队列指令的持久化形态
// InstructionEntry is the persisted form of a queued instruction.
type InstructionEntry struct {
	ID     string
	RunID  string
	Text   string
	Status string
	Result string
	Error  string
}

// Store 运行历史持久化接口
// Store is the run-history persistence interface.
type Store interface {
	// Run 操作 / Run operations
	CreateRun(meta RunMeta) error
	FinishRun(id, status, errText string) error
	ListRuns(limit int) ([]RunMeta, error)

	// 指令与动作日志 / Instruction and action logs
	SaveInstruction(entry InstructionEntry) error
	LogAction(entry ActionEntry) error
	ListActions(runID string) ([]ActionEntry, error)

	// 生命周期 / Lifecycle
	Close() error
}
