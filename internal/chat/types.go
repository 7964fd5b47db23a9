package chat

import "autopilot/internal/automation"

// Role 消息变体标签
// Role is the message variant tag.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolResult 一次动作执行的结果回报
// ToolResult reports the outcome of one executed action.
type ToolResult struct {
	OK      bool
	Message string
	Err     string
}

// Message 会话消息（User | Assistant | ToolResult 三种变体，按 Role 区分）。
// Message is one conversation entry; Role selects the variant.
//
// Screenshot is shared by pointer across messages and providers — encoded
// frames are megabyte-scale and must never be duplicated per message.
type Message struct {
	Role       Role
	Text       string
	Screenshot *automation.Screenshot // user variant only
	Width      int                    // screen dimensions, user variant only
	Height     int
	Result     *ToolResult // tool variant only
}

// UserMessage 构造带截图的用户消息
// UserMessage builds a user message carrying an optional screenshot.
func UserMessage(text string, shot *automation.Screenshot) Message {
	msg := Message{Role: RoleUser, Text: text, Screenshot: shot}
	if shot != nil {
		msg.Width = shot.Width
		msg.Height = shot.Height
	}
	return msg
}

// AssistantMessage 构造助手消息
// AssistantMessage builds an assistant message with raw model text.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

// ToolResultMessage 构造动作结果消息
// ToolResultMessage builds a tool-result message.
func ToolResultMessage(ok bool, message, errText string) Message {
	return Message{Role: RoleTool, Result: &ToolResult{OK: ok, Message: message, Err: errText}}
}
