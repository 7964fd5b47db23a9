package tui

import (
	"strings"
	"testing"
)

func TestRenderMarkdownPlainText(t *testing.T) {
	out := RenderMarkdown("opened the **settings** panel", 60)
	if !strings.Contains(out, "settings") {
		t.Fatalf("rendered output lost content: %q", out)
	}
}

func TestRenderMarkdownEmpty(t *testing.T) {
	if out := RenderMarkdown("   \n", 60); out != "" {
		t.Fatalf("blank input should render empty, got %q", out)
	}
}

func TestRenderMarkdownZeroWidth(t *testing.T) {
	out := RenderMarkdown("hello", 0)
	if !strings.Contains(out, "hello") {
		t.Fatalf("rendered output lost content: %q", out)
	}
}
