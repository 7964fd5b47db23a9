package history

import "autopilot/internal/chat"

// maxMessages 会话日志上限；超限时保留首条，丢弃其后最旧的一条。
// maxMessages caps the log; when exceeded the oldest entry after the first is
// dropped — the first message anchors the task context for the model.
const maxMessages = 20

// History 有界有序的会话日志。单 goroutine 持有（Agent Loop），不加锁。
// History is the bounded, ordered conversation log. It is owned by a single
// goroutine (the agent loop) and is not safe for concurrent use.
//
// All operations are total: none can fail. Truncation silently discards data,
// so callers must not assume the full history survives many iterations.
type History struct {
	messages    []chat.Message
	original    string
	originalSet bool
}

func New() *History {
	return &History{messages: make([]chat.Message, 0, maxMessages)}
}

// Append 追加消息并按上限截断。
// Append adds a message and truncates per the cap invariant.
func (h *History) Append(msg chat.Message) {
	h.messages = append(h.messages, msg)
	if len(h.messages) > maxMessages {
		// Drop index 1, never index 0.
		h.messages = append(h.messages[:1], h.messages[2:]...)
	}
}

// SetOriginalInstruction 一次性写入原始指令；之后的调用被忽略。
// SetOriginalInstruction is a one-time write; later calls are ignored.
func (h *History) SetOriginalInstruction(instruction string) {
	if h.originalSet {
		return
	}
	h.original = instruction
	h.originalSet = true
}

func (h *History) OriginalInstruction() string {
	return h.original
}

// LastAssistantMessage 从新到旧扫描，跳过其他变体，返回最近的助手文本。
// LastAssistantMessage scans newest-to-oldest, skipping other variants, and
// returns the most recent assistant text.
func (h *History) LastAssistantMessage() (string, bool) {
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Role == chat.RoleAssistant {
			return h.messages[i].Text, true
		}
	}
	return "", false
}

// Clear 清空日志与原始指令。
// Clear empties the log and the original instruction.
func (h *History) Clear() {
	h.messages = h.messages[:0]
	h.original = ""
	h.originalSet = false
}

func (h *History) Len() int {
	return len(h.messages)
}

// Messages 返回日志副本；截图仍按指针共享。
// Messages returns a copy of the log; screenshots stay shared by pointer.
func (h *History) Messages() []chat.Message {
	return append([]chat.Message(nil), h.messages...)
}
