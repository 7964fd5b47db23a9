package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"autopilot/internal/chat"
)

// ErrMalformedStream 流式负载无法解析；新的一次请求可能得到更好的输出。
// ErrMalformedStream marks an unparseable streamed payload; a fresh attempt
// may yield better output.
var ErrMalformedStream = errors.New("malformed stream payload")

// OpenAIProvider OpenAI 兼容后端：优先手写 SSE 路径，失败时回退 go-openai SDK。
// OpenAIProvider talks to OpenAI-compatible backends: the hand-rolled SSE path
// first, falling back to the go-openai SDK when the compat stream fails.
type OpenAIProvider struct {
	opts       Options
	httpClient *http.Client
	sdk        *openai.Client
}

// NewOpenAIProvider 创建 OpenAI 兼容 provider
// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(opts Options) *OpenAIProvider {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")

	httpClient := &http.Client{}
	if opts.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(opts.TimeoutMS) * time.Millisecond
	}

	sdkCfg := openai.DefaultConfig(opts.APIKey)
	sdkCfg.BaseURL = opts.BaseURL
	sdkCfg.HTTPClient = httpClient

	return &OpenAIProvider{
		opts:       opts,
		httpClient: httpClient,
		sdk:        openai.NewClientWithConfig(sdkCfg),
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) SendHistory(ctx context.Context, messages []chat.Message, width, height int, onChunk ChunkFunc) (Reply, error) {
	started := time.Now()
	reply, err := p.sendCompat(ctx, messages, width, height, onChunk)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Reply{}, err
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			// The server answered; the SDK would get the same status.
			return Reply{}, err
		}
		// 兼容流失败时回退到 SDK 实现。
		// Fall back to the SDK stream when the compat stream fails.
		sdkReply, sdkErr := p.sendSDK(ctx, messages, width, height, onChunk)
		if sdkErr == nil {
			sdkReply.Usage.Duration = time.Since(started)
			return sdkReply, nil
		}
		return Reply{}, err
	}
	reply.Usage.Duration = time.Since(started)
	return reply, nil
}

// --- hand-rolled OpenAI-compatible SSE path ---

type compatImageURL struct {
	URL string `json:"url"`
}

type compatContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *compatImageURL `json:"image_url,omitempty"`
}

type compatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type compatRequest struct {
	Model         string          `json:"model"`
	Messages      []compatMessage `json:"messages"`
	Stream        bool            `json:"stream"`
	StreamOptions map[string]any  `json:"stream_options,omitempty"`
}

type compatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

func (p *OpenAIProvider) sendCompat(ctx context.Context, messages []chat.Message, width, height int, onChunk ChunkFunc) (Reply, error) {
	payload := compatRequest{
		Model:         p.opts.Model,
		Messages:      buildCompatMessages(messages, width, height),
		Stream:        true,
		StreamOptions: map[string]any{"include_usage": true},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(p.opts.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(p.opts.APIKey))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return Reply{}, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	var (
		text    strings.Builder
		usage   Usage
		decoder sseDecoder
		done    bool
		buf     = make([]byte, 4096)
	)

	processEvent := func(payload string) error {
		if payload == "" {
			return nil
		}
		if payload == "[DONE]" {
			done = true
			return nil
		}
		var chunk compatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedStream, err)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				if onChunk != nil {
					onChunk(choice.Delta.Content)
				}
			}
		}
		if chunk.Usage != nil {
			// Cumulative snapshot: replace, never add.
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}
		return nil
	}

	for !done {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, event := range decoder.Feed(buf[:n]) {
				if err := processEvent(event); err != nil {
					return Reply{}, err
				}
				if done {
					break
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Reply{}, fmt.Errorf("read chat stream: %w", readErr)
		}
	}
	if !done {
		if event, ok := decoder.Flush(); ok {
			if err := processEvent(event); err != nil {
				return Reply{}, err
			}
		}
	}

	return Reply{Text: text.String(), Usage: usage}, nil
}

// buildCompatMessages 将会话历史翻译为 content-block 形态的消息列表。
// buildCompatMessages translates the history into content-block messages:
// one multipart user message per image+text pair, image as a data URL.
func buildCompatMessages(messages []chat.Message, width, height int) []compatMessage {
	out := make([]compatMessage, 0, len(messages)+1)
	out = append(out, compatMessage{Role: "system", Content: SystemPrompt(width, height)})
	for _, m := range messages {
		switch m.Role {
		case chat.RoleUser:
			if m.Screenshot != nil {
				out = append(out, compatMessage{Role: "user", Content: []compatContentPart{
					{Type: "text", Text: m.Text},
					{Type: "image_url", ImageURL: &compatImageURL{URL: dataURL(m.Screenshot.Data)}},
				}})
			} else {
				out = append(out, compatMessage{Role: "user", Content: m.Text})
			}
		case chat.RoleAssistant:
			out = append(out, compatMessage{Role: "assistant", Content: m.Text})
		case chat.RoleTool:
			out = append(out, compatMessage{Role: "user", Content: renderToolResult(m.Result)})
		}
	}
	return out
}

func dataURL(encoded []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(encoded)
}

func renderToolResult(r *chat.ToolResult) string {
	if r == nil {
		return "[action result] unknown"
	}
	if r.OK {
		if r.Message != "" {
			return "[action result] success: " + r.Message
		}
		return "[action result] success"
	}
	if r.Err != "" {
		return "[action result] failed: " + r.Err
	}
	return "[action result] failed"
}

// --- go-openai SDK fallback path ---

func (p *OpenAIProvider) sendSDK(ctx context.Context, messages []chat.Message, width, height int, onChunk ChunkFunc) (Reply, error) {
	req := openai.ChatCompletionRequest{
		Model:         p.opts.Model,
		Messages:      buildSDKMessages(messages, width, height),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	stream, err := p.sdk.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return Reply{}, fmt.Errorf("create sdk stream: %w", err)
	}
	defer stream.Close()

	var (
		text  strings.Builder
		usage Usage
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if text.Len() > 0 {
				// Partial content already streamed; keep it.
				break
			}
			return Reply{}, fmt.Errorf("recv sdk stream: %w", err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				if onChunk != nil {
					onChunk(choice.Delta.Content)
				}
			}
		}
		if resp.Usage != nil {
			usage.InputTokens = resp.Usage.PromptTokens
			usage.OutputTokens = resp.Usage.CompletionTokens
		}
	}
	return Reply{Text: text.String(), Usage: usage}, nil
}

func buildSDKMessages(messages []chat.Message, width, height int) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt(width, height),
	})
	for _, m := range messages {
		switch m.Role {
		case chat.RoleUser:
			if m.Screenshot != nil {
				out = append(out, openai.ChatCompletionMessage{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{Type: openai.ChatMessagePartTypeText, Text: m.Text},
						{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL(m.Screenshot.Data)}},
					},
				})
			} else {
				out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text})
			}
		case chat.RoleAssistant:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text})
		case chat.RoleTool:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: renderToolResult(m.Result)})
		}
	}
	return out
}
