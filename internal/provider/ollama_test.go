package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"autopilot/internal/automation"
	"autopilot/internal/chat"
)

func TestOllamaSendHistory(t *testing.T) {
	var gotReq ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(
			`{"response":"{\"action\":\"move\",","done":false}` + "\n" +
				`{"response":"\"x\":5,\"y\":6}","done":false}` + "\n" +
				`{"response":"","done":true,"prompt_eval_count":200,"eval_count":14}` + "\n",
		))
	}))
	defer server.Close()

	p := NewOllamaProvider(Options{BaseURL: server.URL, Model: "llava"})
	shot := &automation.Screenshot{Width: 640, Height: 480, Data: []byte("frame")}
	var chunks []string
	reply, err := p.SendHistory(context.Background(), []chat.Message{
		chat.UserMessage("move the mouse", shot),
		chat.AssistantMessage("ok"),
		chat.ToolResultMessage(true, "moved", ""),
	}, 640, 480, func(c string) { chunks = append(chunks, c) })
	if err != nil {
		t.Fatalf("SendHistory: %v", err)
	}
	if reply.Text != `{"action":"move","x":5,"y":6}` {
		t.Fatalf("Text = %q", reply.Text)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %q", chunks)
	}
	if reply.Usage.InputTokens != 200 || reply.Usage.OutputTokens != 14 {
		t.Fatalf("Usage = %+v", reply.Usage)
	}

	// The prompt is a single flattened transcript; images travel out-of-band.
	if !strings.Contains(gotReq.Prompt, "User: move the mouse") {
		t.Fatalf("Prompt = %q", gotReq.Prompt)
	}
	if !strings.Contains(gotReq.Prompt, "Assistant: ok") {
		t.Fatalf("Prompt missing assistant turn: %q", gotReq.Prompt)
	}
	if len(gotReq.Images) != 1 {
		t.Fatalf("Images = %d, want 1", len(gotReq.Images))
	}
	if !strings.Contains(gotReq.System, "640x480") {
		t.Fatal("system prompt missing screen dimensions")
	}
}

func TestOllamaStopsAtDoneRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(
			`{"response":"x","done":true,"prompt_eval_count":1,"eval_count":1}` + "\n" +
				`{"response":"ignored","done":false}` + "\n",
		))
	}))
	defer server.Close()

	p := NewOllamaProvider(Options{BaseURL: server.URL, Model: "llava"})
	reply, err := p.SendHistory(context.Background(), []chat.Message{chat.UserMessage("hi", nil)}, 100, 100, nil)
	if err != nil {
		t.Fatalf("SendHistory: %v", err)
	}
	if reply.Text != "x" {
		t.Fatalf("Text = %q, records after done must be ignored", reply.Text)
	}
}
