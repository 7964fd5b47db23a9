package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"autopilot/internal/automation"
	"autopilot/internal/provider"
)

// Kind 错误分类
// Kind classifies a provider-call failure.
type Kind int

const (
	// Retryable 瞬时失败，按退避策略重试。
	// Retryable is a transient failure, retried per the backoff policy.
	Retryable Kind = iota
	// RateLimited 限流，等待固定时长后重试。
	// RateLimited waits a fixed interval before retrying.
	RateLimited
	// Fatal 重试无益，立即短路。
	// Fatal short-circuits immediately; no retry can help.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Retryable:
		return "retryable"
	case RateLimited:
		return "rate_limited"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Classification 一次失败的分类结果；Wait 仅对 RateLimited 有意义。
// Classification is the verdict for one failure; Wait is meaningful only for
// RateLimited.
type Classification struct {
	Kind Kind
	Wait time.Duration
}

// Classify 对一次 provider 调用失败分类。
// Classify sorts one provider-call failure into a retry verdict:
// timeouts, connection drops, 5xx, parse and stream failures retry; 429 and
// rate-limit phrasing wait 30-60s; auth failures, other 4xx, and missing
// configuration are fatal.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: Retryable}
	}

	if errors.Is(err, provider.ErrNotConfigured) {
		return Classification{Kind: Fatal}
	}
	if errors.Is(err, automation.ErrNoDisplay) {
		return Classification{Kind: Fatal}
	}

	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusTooManyRequests:
			return Classification{Kind: RateLimited, Wait: 30 * time.Second}
		case statusErr.Code >= 500:
			return Classification{Kind: Retryable}
		case statusErr.Code == http.StatusUnauthorized, statusErr.Code == http.StatusForbidden:
			return Classification{Kind: Fatal}
		case statusErr.Code >= 400:
			return Classification{Kind: Fatal}
		}
		return Classification{Kind: Retryable}
	}

	if containsRateLimitPhrase(err.Error()) {
		return Classification{Kind: RateLimited, Wait: 60 * time.Second}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Kind: Retryable}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Classification{Kind: Retryable}
	}
	if errors.Is(err, provider.ErrMalformedStream) {
		return Classification{Kind: Retryable}
	}
	var captureErr *automation.CaptureError
	if errors.As(err, &captureErr) {
		return Classification{Kind: Retryable}
	}

	// Connection-level failures surface as wrapped transport errors.
	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{"connection refused", "connection reset", "timeout", "timed out", "broken pipe", "eof"} {
		if strings.Contains(msg, phrase) {
			return Classification{Kind: Retryable}
		}
	}

	return Classification{Kind: Retryable}
}

func containsRateLimitPhrase(msg string) bool {
	msg = strings.ToLower(msg)
	for _, phrase := range []string{"rate limit", "rate_limit", "too many requests", "quota exceeded"} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
