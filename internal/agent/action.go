package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"autopilot/internal/automation"
)

// Kind 动作类别，闭集。
// Kind is the action kind; the set is closed.
type Kind string

const (
	KindClick       Kind = "click"
	KindDoubleClick Kind = "double_click"
	KindMove        Kind = "move"
	KindType        Kind = "type"
	KindKey         Kind = "key"
	KindScroll      Kind = "scroll"
	KindComplete    Kind = "complete"
	KindError       Kind = "error"
)

// Action 从模型回复中解析出的单个结构化命令。
// Action is one structured command parsed from a model reply.
type Action struct {
	Kind      Kind
	X         int
	Y         int
	Button    automation.Button
	Text      string
	Key       string
	Modifiers []string
	Direction automation.ScrollDirection
	Amount    int
	Message   string
}

// Effectful 该动作是否预期产生可见的屏幕变化。
// Effectful reports whether the action is expected to visibly change the
// screen. Move only repositions the pointer; complete and error touch
// nothing.
func (a Action) Effectful() bool {
	switch a.Kind {
	case KindClick, KindDoubleClick, KindType, KindKey, KindScroll:
		return true
	}
	return false
}

// Describe 人类可读的动作描述。
// Describe renders a human-readable description.
func (a Action) Describe() string {
	switch a.Kind {
	case KindClick:
		return fmt.Sprintf("click %s at (%d,%d)", a.Button, a.X, a.Y)
	case KindDoubleClick:
		return fmt.Sprintf("double-click at (%d,%d)", a.X, a.Y)
	case KindMove:
		return fmt.Sprintf("move to (%d,%d)", a.X, a.Y)
	case KindType:
		return fmt.Sprintf("type %q", a.Text)
	case KindKey:
		if len(a.Modifiers) > 0 {
			return fmt.Sprintf("press %s+%s", strings.Join(a.Modifiers, "+"), a.Key)
		}
		return fmt.Sprintf("press %s", a.Key)
	case KindScroll:
		return fmt.Sprintf("scroll %s by %d at (%d,%d)", a.Direction, a.Amount, a.X, a.Y)
	case KindComplete:
		return "complete: " + a.Message
	case KindError:
		return "error: " + a.Message
	}
	return string(a.Kind)
}

// Inverse 计算可逆动作的逆动作；目前仅滚动可逆（反向等量滚动）。
// Inverse computes the inverse of a reversible action. Only scroll is
// reversible today: the opposite direction, same amount.
func (a Action) Inverse() (Action, bool) {
	if a.Kind != KindScroll {
		return Action{}, false
	}
	opposite := map[automation.ScrollDirection]automation.ScrollDirection{
		automation.ScrollUp:    automation.ScrollDown,
		automation.ScrollDown:  automation.ScrollUp,
		automation.ScrollLeft:  automation.ScrollRight,
		automation.ScrollRight: automation.ScrollLeft,
	}
	dir, ok := opposite[a.Direction]
	if !ok {
		return Action{}, false
	}
	inv := a
	inv.Direction = dir
	return inv, true
}

// ErrNoActionJSON 回复中找不到任何 `{`。
// ErrNoActionJSON means the reply contains no `{` at all.
var ErrNoActionJSON = errors.New("no action JSON object in reply")

// ErrUnbalancedJSON 花括号不配对。
// ErrUnbalancedJSON means the braces never balance.
var ErrUnbalancedJSON = errors.New("unbalanced braces in reply")

// extractJSONObject 取出首个花括号配平的 JSON 对象。按深度计数配对，
// 刻意忽略字符串转义：动作语法是扁平的，括号配平在实践中已经足够。
// extractJSONObject pulls the first balanced brace-delimited object. Depth
// counting deliberately ignores string escapes; the action grammar is flat
// and brace balance suffices in practice.
func extractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoActionJSON
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", ErrUnbalancedJSON
}

// rawAction 解码中间层；指针字段区分缺省与零值。
// rawAction is the decode intermediate; pointer fields distinguish absent
// from zero.
type rawAction struct {
	Action    string   `json:"action"`
	X         *int     `json:"x"`
	Y         *int     `json:"y"`
	Button    *string  `json:"button"`
	Text      *string  `json:"text"`
	Key       *string  `json:"key"`
	Modifiers []string `json:"modifiers"`
	Direction *string  `json:"direction"`
	Amount    *int     `json:"amount"`
	Message   *string  `json:"message"`
}

// ParseAction 从自由文本回复中解析出恰好一个 Action。未知类别或字段缺失
// 返回描述性错误，绝不静默降级。
// ParseAction parses exactly one Action from a free-text reply. Unknown
// kinds and malformed fields fail with a descriptive error, never a silent
// default.
func ParseAction(text string) (Action, error) {
	obj, err := extractJSONObject(text)
	if err != nil {
		return Action{}, err
	}
	var raw rawAction
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return Action{}, fmt.Errorf("decode action JSON: %w", err)
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(raw.Action)))
	switch kind {
	case KindClick:
		if raw.X == nil || raw.Y == nil {
			return Action{}, fmt.Errorf("click action missing x or y")
		}
		button := automation.ButtonLeft
		if raw.Button != nil {
			switch b := automation.Button(strings.ToLower(*raw.Button)); b {
			case automation.ButtonLeft, automation.ButtonRight, automation.ButtonMiddle:
				button = b
			default:
				return Action{}, fmt.Errorf("click action has unknown button %q", *raw.Button)
			}
		}
		return Action{Kind: kind, X: *raw.X, Y: *raw.Y, Button: button}, nil

	case KindDoubleClick, KindMove:
		if raw.X == nil || raw.Y == nil {
			return Action{}, fmt.Errorf("%s action missing x or y", kind)
		}
		return Action{Kind: kind, X: *raw.X, Y: *raw.Y}, nil

	case KindType:
		if raw.Text == nil {
			return Action{}, fmt.Errorf("type action missing text")
		}
		return Action{Kind: kind, Text: *raw.Text}, nil

	case KindKey:
		if raw.Key == nil || strings.TrimSpace(*raw.Key) == "" {
			return Action{}, fmt.Errorf("key action missing key")
		}
		return Action{Kind: kind, Key: *raw.Key, Modifiers: raw.Modifiers}, nil

	case KindScroll:
		if raw.X == nil || raw.Y == nil {
			return Action{}, fmt.Errorf("scroll action missing x or y")
		}
		if raw.Direction == nil {
			return Action{}, fmt.Errorf("scroll action missing direction")
		}
		dir := automation.ScrollDirection(strings.ToLower(*raw.Direction))
		switch dir {
		case automation.ScrollUp, automation.ScrollDown, automation.ScrollLeft, automation.ScrollRight:
		default:
			return Action{}, fmt.Errorf("scroll action has unknown direction %q", *raw.Direction)
		}
		amount := 3
		if raw.Amount != nil {
			if *raw.Amount <= 0 {
				return Action{}, fmt.Errorf("scroll action amount must be positive, got %d", *raw.Amount)
			}
			amount = *raw.Amount
		}
		return Action{Kind: kind, X: *raw.X, Y: *raw.Y, Direction: dir, Amount: amount}, nil

	case KindComplete, KindError:
		msg := ""
		if raw.Message != nil {
			msg = *raw.Message
		}
		return Action{Kind: kind, Message: msg}, nil

	case "":
		return Action{}, fmt.Errorf("action object missing the action field")
	default:
		return Action{}, fmt.Errorf("unknown action kind %q", raw.Action)
	}
}
