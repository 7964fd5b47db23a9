package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autopilot/internal/automation"
	"autopilot/internal/chat"
	"autopilot/internal/history"
	"autopilot/internal/provider"
	"autopilot/internal/queue"
	"autopilot/internal/retry"
	"autopilot/internal/security"
	"autopilot/internal/storage"
	"autopilot/internal/tokens"
)

// continuePrompt 第二轮起的用户消息文本。
// continuePrompt is the user message text from the second iteration on.
const continuePrompt = "Continue with the task. The latest screenshot is attached."

// Config 循环运行参数
// Config holds the loop runtime parameters.
type Config struct {
	MaxIterations       int
	IterationDelay      time.Duration
	SpeedMultiplier     float64
	RequireConfirmation bool
}

// LoopOptions 循环依赖注入
// LoopOptions wires the loop dependencies.
type LoopOptions struct {
	Capturer   automation.Capturer
	Injector   automation.Injector
	Provider   provider.Provider
	State      *Manager
	History    *history.History
	Queue      *queue.Queue
	Executor   *retry.Executor
	CallPolicy retry.Policy
	Estimator  *tokens.Estimator
	Store      storage.Store
	Logger     *zap.Logger
	Config     Config
	OnChunk    provider.ChunkFunc
}

// Loop 迭代-采集-询问-执行的主循环，将各组件组合为一次完整运行。
// Loop is the iterate-capture-ask-act cycle, composing every component into
// one run. Iterations are strictly sequential; the loop is the sole writer
// of the conversation history.
type Loop struct {
	capturer   automation.Capturer
	injector   automation.Injector
	prov       provider.Provider
	state      *Manager
	hist       *history.History
	queue      *queue.Queue
	exec       *retry.Executor
	callPolicy retry.Policy
	estimator  *tokens.Estimator
	store      storage.Store
	log        *zap.Logger
	cfg        Config
	records    *ActionHistory
	onChunk    provider.ChunkFunc

	runID string
}

func NewLoop(opts LoopOptions) *Loop {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Estimator == nil {
		opts.Estimator = tokens.Default()
	}
	if opts.Config.SpeedMultiplier <= 0 {
		opts.Config.SpeedMultiplier = 1
	}
	if opts.Config.MaxIterations <= 0 {
		opts.Config.MaxIterations = 30
	}
	return &Loop{
		capturer:   opts.Capturer,
		injector:   opts.Injector,
		prov:       opts.Provider,
		state:      opts.State,
		hist:       opts.History,
		queue:      opts.Queue,
		exec:       opts.Executor,
		callPolicy: opts.CallPolicy,
		estimator:  opts.Estimator,
		store:      opts.Store,
		log:        opts.Logger,
		cfg:        opts.Config,
		records:    NewActionHistory(),
	}
}

// SetOnChunk 注册流式文本观察者。
// SetOnChunk registers the streaming text observer.
func (l *Loop) SetOnChunk(fn provider.ChunkFunc) {
	l.onChunk = fn
}

// Run 顺序消费指令队列直到耗尽；按失败模式决定失败后是否继续。
// Run drains the instruction queue sequentially; the failure mode decides
// whether processing continues past a failed instruction.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if l.state.StopRequested() || ctx.Err() != nil {
			l.state.SetStatus(StatusIdle)
			return ctx.Err()
		}
		item, ok := l.queue.NextPending()
		if !ok {
			return nil
		}
		if err := l.queue.MarkRunning(); err != nil {
			return err
		}

		result, err := l.RunInstruction(ctx, item.Text)
		if err != nil {
			_ = l.queue.MarkFailed(err.Error())
			l.persistInstruction(item, queue.StatusFailed, "", err.Error())
			l.queue.Advance()
			if l.queue.FailureMode() == queue.FailureStop {
				return err
			}
			l.log.Warn("instruction failed, continuing",
				zap.String("instruction", item.Text),
				zap.Error(err))
			continue
		}
		if l.state.Snapshot().Status != StatusCompleted {
			// Stopped mid-instruction: put it back so the next start
			// resumes it.
			_ = l.queue.ResetRunning()
			l.persistInstruction(item, queue.StatusPending, "", "")
			return nil
		}
		_ = l.queue.MarkCompleted(result)
		l.persistInstruction(item, queue.StatusCompleted, result, "")
		l.queue.Advance()
	}
}

// RunInstruction 驱动单条指令直至完成或失败，返回完成消息。
// RunInstruction drives one instruction to completion or failure, returning
// the completion message.
func (l *Loop) RunInstruction(ctx context.Context, instruction string) (string, error) {
	l.state.Start(instruction)
	l.hist.Clear()
	l.hist.SetOriginalInstruction(instruction)

	l.runID = uuid.NewString()
	if l.store != nil {
		if err := l.store.CreateRun(storage.RunMeta{ID: l.runID, Instruction: instruction}); err != nil {
			l.log.Warn("record run", zap.Error(err))
		}
	}
	result, err := l.iterate(ctx, instruction)
	if l.store != nil {
		snapshot := l.state.Snapshot()
		if ferr := l.store.FinishRun(l.runID, string(snapshot.Status), snapshot.LastError); ferr != nil {
			l.log.Warn("finish run", zap.Error(ferr))
		}
	}
	return result, err
}

func (l *Loop) iterate(ctx context.Context, instruction string) (string, error) {
	userText := instruction
	for {
		if stopped, err := l.checkStop(ctx); stopped {
			return "", err
		}
		if err := l.waitWhilePaused(ctx); err != nil {
			l.state.SetStatus(StatusIdle)
			return "", err
		}
		if stopped, err := l.checkStop(ctx); stopped {
			return "", err
		}

		iteration := l.state.BeginIteration()
		if iteration > l.cfg.MaxIterations {
			err := fmt.Errorf("iteration cap %d exceeded", l.cfg.MaxIterations)
			l.state.Fail(err)
			return "", err
		}
		l.log.Debug("iteration", zap.Int("n", iteration))

		shot, err := retry.Call(ctx, l.callPolicy, func(ctx context.Context) (*automation.Screenshot, error) {
			return l.capturer.Capture(ctx)
		})
		if err != nil {
			l.state.Fail(err)
			return "", err
		}

		l.hist.Append(chat.UserMessage(userText, shot))

		res, err := retry.Call(ctx, l.callPolicy, func(ctx context.Context) (turnResult, error) {
			reply, err := l.prov.SendHistory(ctx, l.hist.Messages(), shot.Width, shot.Height, l.onChunk)
			if err != nil {
				return turnResult{}, err
			}
			// A malformed reply retries the provider call: the model may
			// produce better output on a fresh attempt.
			action, err := ParseAction(reply.Text)
			if err != nil {
				return turnResult{}, fmt.Errorf("parse model reply: %w", err)
			}
			return turnResult{reply: reply, action: action}, nil
		})
		if err != nil {
			l.state.Fail(err)
			return "", err
		}

		l.recordUsage(res.reply)
		l.hist.Append(chat.AssistantMessage(res.reply.Text))
		action := res.action

		switch action.Kind {
		case KindComplete:
			l.log.Info("task complete", zap.String("message", action.Message))
			l.state.Complete()
			return action.Message, nil
		case KindError:
			err := fmt.Errorf("model reported failure: %s", action.Message)
			l.state.Fail(err)
			return "", err
		}

		if l.needsConfirmation(action) {
			confirmed, err := l.state.AwaitConfirmation(ctx, action.Describe())
			if err != nil {
				l.state.SetStatus(StatusIdle)
				return "", err
			}
			if stopped, err := l.checkStop(ctx); stopped {
				return "", err
			}
			if !confirmed {
				l.log.Info("action denied", zap.String("action", action.Describe()))
				l.hist.Append(chat.ToolResultMessage(false, "", "action denied by user: "+action.Describe()))
				if err := l.interIterationDelay(ctx); err != nil {
					l.state.SetStatus(StatusIdle)
					return "", err
				}
				userText = continuePrompt
				continue
			}
		}

		outcome, err := l.exec.Execute(ctx, action.Effectful(), func(ctx context.Context) error {
			return l.inject(ctx, action)
		})
		l.state.SetLastAction(action.Describe())
		if err != nil {
			l.hist.Append(chat.ToolResultMessage(false, "", err.Error()))
			l.logAction(iteration, action, false, "")
			l.state.Fail(err)
			return "", err
		}

		message := "executed: " + action.Describe()
		if outcome.Warning != "" {
			message += " (" + outcome.Warning + ")"
			l.log.Warn("action effect unconfirmed",
				zap.String("action", action.Describe()),
				zap.Int("attempts", outcome.Attempts))
		}
		l.hist.Append(chat.ToolResultMessage(true, message, ""))
		l.records.Add(NewActionRecord(action))
		l.logAction(iteration, action, true, outcome.Warning)

		if err := l.interIterationDelay(ctx); err != nil {
			l.state.SetStatus(StatusIdle)
			return "", err
		}
		userText = continuePrompt
	}
}

type turnResult struct {
	reply  provider.Reply
	action Action
}

// UndoLast 撤销最近一个可逆动作。
// UndoLast reverses the most recent reversible action.
func (l *Loop) UndoLast(ctx context.Context) error {
	rec, ok := l.records.PopLastReversible()
	if !ok {
		return fmt.Errorf("no reversible action to undo")
	}
	if err := l.inject(ctx, rec.Inverse); err != nil {
		return fmt.Errorf("undo %s: %w", rec.Description, err)
	}
	l.log.Info("undid action", zap.String("action", rec.Description))
	return nil
}

// Records 动作历史（撤销支撑）。
// Records exposes the action history backing undo.
func (l *Loop) Records() *ActionHistory {
	return l.records
}

func (l *Loop) needsConfirmation(a Action) bool {
	return l.cfg.RequireConfirmation && a.Kind == KindKey && security.IsDangerousKey(a.Key, a.Modifiers)
}

func (l *Loop) checkStop(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		l.state.SetStatus(StatusIdle)
		return true, ctx.Err()
	}
	if l.state.StopRequested() {
		l.log.Info("stop requested")
		l.state.SetStatus(StatusIdle)
		return true, nil
	}
	return false, nil
}

// waitWhilePaused 在迭代边界阻塞，直至恢复或停止。
// waitWhilePaused holds at the iteration boundary until resumed or stopped.
func (l *Loop) waitWhilePaused(ctx context.Context) error {
	paused := false
	for l.state.Paused() && !l.state.StopRequested() {
		if !paused {
			l.state.SetStatus(StatusPaused)
			paused = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	if paused {
		l.state.SetStatus(StatusRunning)
	}
	return nil
}

func (l *Loop) recordUsage(reply provider.Reply) {
	in, out := reply.Usage.InputTokens, reply.Usage.OutputTokens
	if in == 0 && out == 0 {
		// Some backends stream no usage at all; estimate so the rate
		// metrics stay populated.
		in = l.estimator.CountHistory(l.hist.Messages())
		out = l.estimator.CountText(reply.Text)
	}
	l.state.RecordUsage(in, out, reply.Usage.Duration)
}

func (l *Loop) interIterationDelay(ctx context.Context) error {
	delay := time.Duration(float64(l.cfg.IterationDelay) / l.cfg.SpeedMultiplier)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (l *Loop) inject(ctx context.Context, a Action) error {
	switch a.Kind {
	case KindMove:
		return l.injector.Move(ctx, a.X, a.Y)
	case KindClick:
		return l.injector.Click(ctx, a.X, a.Y, a.Button)
	case KindDoubleClick:
		return l.injector.DoubleClick(ctx, a.X, a.Y)
	case KindType:
		return l.injector.Type(ctx, a.Text)
	case KindKey:
		return l.injector.Key(ctx, a.Key, a.Modifiers)
	case KindScroll:
		return l.injector.Scroll(ctx, a.X, a.Y, a.Direction, a.Amount)
	}
	return fmt.Errorf("action %s is not injectable", a.Kind)
}

func (l *Loop) persistInstruction(item queue.Instruction, status queue.Status, result, errText string) {
	if l.store == nil {
		return
	}
	err := l.store.SaveInstruction(storage.InstructionEntry{
		ID:     item.ID,
		RunID:  l.runID,
		Text:   item.Text,
		Status: string(status),
		Result: result,
		Error:  errText,
	})
	if err != nil {
		l.log.Warn("persist instruction", zap.Error(err))
	}
}

func (l *Loop) logAction(iteration int, action Action, success bool, warning string) {
	if l.store == nil {
		return
	}
	err := l.store.LogAction(storage.ActionEntry{
		RunID:       l.runID,
		Iteration:   iteration,
		Description: action.Describe(),
		Success:     success,
		Warning:     warning,
	})
	if err != nil {
		l.log.Warn("persist action", zap.Error(err))
	}
}
