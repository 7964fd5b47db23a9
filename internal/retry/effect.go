package retry

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"autopilot/internal/automation"
)

// ScreenChanged 判断动作是否产生可见效果：尺寸与编码字节完全一致才算未变；
// 校验关闭时恒为 true。
// ScreenChanged reports whether an action had a visible effect. The screen
// counts as unchanged only when dimensions match AND encoded bytes are
// identical; with verification disabled it is always true.
func ScreenChanged(before, after *automation.Screenshot, enabled bool) bool {
	if !enabled {
		return true
	}
	if before == nil || after == nil {
		return true
	}
	if before.Width != after.Width || before.Height != after.Height {
		return true
	}
	return !bytes.Equal(before.Data, after.Data)
}

// EffectPolicy 动作效果重试参数
// EffectPolicy holds the action-effect retry parameters.
type EffectPolicy struct {
	MaxRetries  int
	RetryDelay  time.Duration
	SettleDelay time.Duration
	Verify      bool
}

// Outcome 一次动作执行的结果
// Outcome reports one executed action.
type Outcome struct {
	Attempts int
	// EffectConfirmed 屏幕确实发生了可见变化。
	// EffectConfirmed means a visible screen change was observed.
	EffectConfirmed bool
	// Warning 动作成功但效果未被确认时置位。
	// Warning is set when the action succeeded without a confirmed effect.
	Warning string
}

// Executor 以前后截图对比驱动动作效果重试。每个动作使用全新的计数器，
// 与 provider 调用重试互不相干。
// Executor drives action-effect retries around before/after screenshot
// comparison. Each action gets a fresh counter, independent of the
// provider-call retry.
type Executor struct {
	capturer automation.Capturer
	policy   EffectPolicy
}

func NewExecutor(capturer automation.Capturer, policy EffectPolicy) *Executor {
	return &Executor{capturer: capturer, policy: policy}
}

// Execute 执行一个动作。失败则等待固定时长后整体重试（重采 before）；
// 成功则待 UI 稳定后采集 after 并对比；用尽重试仍无可见效果时接受结果但
// 打上告警，绝不判失败。
// Execute runs one action. A failed injection waits the fixed delay and
// retries from scratch, re-capturing the before frame. On success it waits
// for the UI to settle, captures the after frame, and compares. Exhausting
// retries without a visible effect accepts the result with a warning, never
// a hard failure.
func (e *Executor) Execute(ctx context.Context, effectful bool, inject func(ctx context.Context) error) (Outcome, error) {
	var lastErr error
	for attempt := 0; attempt <= e.policy.MaxRetries; attempt++ {
		if attempt > 0 && e.policy.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return Outcome{Attempts: attempt}, ctx.Err()
			case <-time.After(e.policy.RetryDelay):
			}
		}

		var before *automation.Screenshot
		if effectful && e.policy.Verify {
			shot, err := e.capturer.Capture(ctx)
			if err != nil {
				lastErr = fmt.Errorf("capture before frame: %w", err)
				continue
			}
			before = shot
		}

		if err := inject(ctx); err != nil {
			lastErr = err
			continue
		}

		if !effectful {
			return Outcome{Attempts: attempt + 1, EffectConfirmed: true}, nil
		}
		if !e.policy.Verify {
			return Outcome{Attempts: attempt + 1, EffectConfirmed: true}, nil
		}

		if e.policy.SettleDelay > 0 {
			select {
			case <-ctx.Done():
				return Outcome{Attempts: attempt + 1}, ctx.Err()
			case <-time.After(e.policy.SettleDelay):
			}
		}
		after, err := e.capturer.Capture(ctx)
		if err != nil {
			// The action itself succeeded; treat a lost after frame as
			// an unconfirmed effect rather than a failure.
			return Outcome{
				Attempts: attempt + 1,
				Warning:  fmt.Sprintf("effect not confirmed: capture after frame: %v", err),
			}, nil
		}
		if ScreenChanged(before, after, true) {
			return Outcome{Attempts: attempt + 1, EffectConfirmed: true}, nil
		}
		lastErr = nil
		if attempt == e.policy.MaxRetries {
			return Outcome{
				Attempts: attempt + 1,
				Warning:  "effect not confirmed: screen unchanged after action",
			}, nil
		}
	}
	if lastErr != nil {
		return Outcome{Attempts: e.policy.MaxRetries + 1}, lastErr
	}
	return Outcome{
		Attempts: e.policy.MaxRetries + 1,
		Warning:  "effect not confirmed: screen unchanged after action",
	}, nil
}
