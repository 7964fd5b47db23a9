package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autopilot/internal/chat"
)

// ChunkFunc 每当有新的增量文本到达时同步调用。
// ChunkFunc is invoked synchronously as partial text arrives.
type ChunkFunc func(chunk string)

// Usage token 用量统计；流中的数值为累计快照，后到覆盖先到。
// Usage reports token consumption. Streamed values are cumulative snapshots;
// the latest observed values replace earlier ones.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// Reply 一次完整的模型回复
// Reply is one completed model response.
type Reply struct {
	Text  string
	Usage Usage
}

// Provider 模型后端接口：发送完整会话历史，流式返回单条回复。
// Provider is the model backend interface: send the full conversation history
// and stream back a single reply.
//
// Implementations never retry; classification and retry belong to the caller.
type Provider interface {
	// SendHistory 发送历史与屏幕尺寸，onChunk 在返回前按到达顺序回调。
	// SendHistory sends the history plus screen dimensions; onChunk fires
	// in arrival order before the aggregate returns.
	SendHistory(ctx context.Context, messages []chat.Message, width, height int, onChunk ChunkFunc) (Reply, error)

	// Name 返回 provider 名称
	// Name returns the provider name.
	Name() string
}

// ErrNotConfigured 后端缺少必要配置；不可重试。
// ErrNotConfigured means the backend lacks required configuration; no retry
// can help.
var ErrNotConfigured = errors.New("provider not configured")

// StatusError 非 2xx 响应，携带响应体作为错误上下文。
// StatusError is a non-2xx response carrying the body as error context.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// Options 后端连接配置
// Options is the backend connection configuration.
type Options struct {
	BaseURL   string
	APIKey    string
	Model     string
	TimeoutMS int
}

// New 按 kind 构造后端（openai | ollama）。
// New builds a backend by kind (openai | ollama).
func New(kind string, opts Options) (Provider, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("%w: model is empty", ErrNotConfigured)
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "openai", "":
		if strings.TrimSpace(opts.BaseURL) == "" {
			return nil, fmt.Errorf("%w: base_url is empty", ErrNotConfigured)
		}
		return NewOpenAIProvider(opts), nil
	case "ollama":
		if strings.TrimSpace(opts.BaseURL) == "" {
			opts.BaseURL = "http://127.0.0.1:11434"
		}
		return NewOllamaProvider(opts), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider kind %q", ErrNotConfigured, kind)
	}
}
