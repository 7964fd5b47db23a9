package retry

import "time"

// Policy 指数退避重试策略
// Policy is the geometric backoff retry policy.
type Policy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultPolicy 默认策略
// DefaultPolicy returns the default policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
	}
}

// DelayForAttempt 第 attempt 次重试前的等待；attempt 0 不等待，
// 之后按乘数几何增长，封顶 MaxDelay。
// DelayForAttempt is the wait before retry number attempt. Attempt 0 waits
// nothing; later attempts grow geometrically, clamped at MaxDelay.
func (p Policy) DelayForAttempt(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.BackoffMultiplier
		if time.Duration(delay) >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	d := time.Duration(delay)
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
