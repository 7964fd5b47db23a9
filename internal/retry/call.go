package retry

import (
	"context"
	"fmt"
	"time"
)

// ExhaustedError 重试次数用尽，包装最后一次错误以区别于立即致命错误。
// ExhaustedError wraps the last error after retries run out, distinguishing
// exhaustion from an immediately fatal failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Call 按策略执行 fn：Fatal 立即返回，RateLimited 等待其固定时长，
// 其余按几何退避重试。
// Call runs fn under the policy: Fatal returns immediately, RateLimited
// waits its fixed interval, everything else backs off geometrically.
func Call[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := policy.DelayForAttempt(attempt)
			if c := Classify(lastErr); c.Kind == RateLimited {
				wait = c.Wait
			}
			if wait > 0 {
				select {
				case <-ctx.Done():
					return zero, ctx.Err()
				case <-time.After(wait):
				}
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if Classify(err).Kind == Fatal {
			return zero, err
		}
		lastErr = err
	}
	return zero, &ExhaustedError{Attempts: policy.MaxRetries + 1, Err: lastErr}
}
