package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autopilot/internal/chat"
)

// OllamaProvider 本地 Ollama 后端：单条拼接提示词 + 带外 base64 图片，
// 响应为带显式 done 标志的换行分隔 JSON 记录。
// OllamaProvider talks to a local Ollama backend: a single concatenated
// prompt with out-of-band base64 images, answered as newline-delimited JSON
// records carrying an explicit done flag.
type OllamaProvider struct {
	opts       Options
	httpClient *http.Client
}

func NewOllamaProvider(opts Options) *OllamaProvider {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := &http.Client{}
	if opts.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(opts.TimeoutMS) * time.Millisecond
	}
	return &OllamaProvider{opts: opts, httpClient: httpClient}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	System string   `json:"system"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type ollamaRecord struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (p *OllamaProvider) SendHistory(ctx context.Context, messages []chat.Message, width, height int, onChunk ChunkFunc) (Reply, error) {
	started := time.Now()

	prompt, images := buildOllamaPrompt(messages)
	payload := ollamaRequest{
		Model:  p.opts.Model,
		Prompt: prompt,
		System: SystemPrompt(width, height),
		Images: images,
		Stream: true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("send generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return Reply{}, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	var (
		text    strings.Builder
		usage   Usage
		decoder ndjsonDecoder
		done    bool
		buf     = make([]byte, 4096)
	)
	for !done {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range decoder.Feed(buf[:n]) {
				var rec ollamaRecord
				if err := json.Unmarshal([]byte(line), &rec); err != nil {
					return Reply{}, fmt.Errorf("%w: %v", ErrMalformedStream, err)
				}
				if rec.Response != "" {
					text.WriteString(rec.Response)
					if onChunk != nil {
						onChunk(rec.Response)
					}
				}
				if rec.Done {
					// Counts arrive only on the final record.
					usage.InputTokens = rec.PromptEvalCount
					usage.OutputTokens = rec.EvalCount
					done = true
					break
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Reply{}, fmt.Errorf("read generate stream: %w", readErr)
		}
	}

	usage.Duration = time.Since(started)
	return Reply{Text: text.String(), Usage: usage}, nil
}

// buildOllamaPrompt 将会话历史压平为单条自然语言提示词，图片带外传递。
// buildOllamaPrompt flattens the history into one natural-language prompt;
// screenshots travel out-of-band as base64 strings.
func buildOllamaPrompt(messages []chat.Message) (string, []string) {
	var (
		b      strings.Builder
		images []string
	)
	for _, m := range messages {
		switch m.Role {
		case chat.RoleUser:
			b.WriteString("User: ")
			b.WriteString(m.Text)
			if m.Screenshot != nil {
				b.WriteString(" [screenshot attached]")
				images = append(images, base64.StdEncoding.EncodeToString(m.Screenshot.Data))
			}
			b.WriteString("\n")
		case chat.RoleAssistant:
			b.WriteString("Assistant: ")
			b.WriteString(m.Text)
			b.WriteString("\n")
		case chat.RoleTool:
			b.WriteString(renderToolResult(m.Result))
			b.WriteString("\n")
		}
	}
	b.WriteString("Assistant:")
	return b.String(), images
}
