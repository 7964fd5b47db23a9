package automation

import (
	"context"
	"errors"
	"fmt"
)

// Screenshot 一帧编码后的屏幕截图；Data 为编码后的图像字节（PNG）。
// Screenshot is one encoded frame of the display; Data holds the encoded image bytes (PNG).
//
// Screenshots are megabyte-scale; share them by pointer and never copy Data.
type Screenshot struct {
	Width  int
	Height int
	Data   []byte
}

// Capturer 屏幕采集方接口（由 OS 桥接层实现）
// Capturer is the screen capture collaborator (implemented by an OS bridge).
type Capturer interface {
	Capture(ctx context.Context) (*Screenshot, error)
}

// Button 鼠标按键
// Button identifies a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// ScrollDirection 滚动方向
// ScrollDirection is a scroll direction.
type ScrollDirection string

const (
	ScrollUp    ScrollDirection = "up"
	ScrollDown  ScrollDirection = "down"
	ScrollLeft  ScrollDirection = "left"
	ScrollRight ScrollDirection = "right"
)

// Injector 输入注入方接口（由 OS 桥接层实现）
// Injector is the input injection collaborator (implemented by an OS bridge).
type Injector interface {
	Move(ctx context.Context, x, y int) error
	Click(ctx context.Context, x, y int, button Button) error
	DoubleClick(ctx context.Context, x, y int) error
	Type(ctx context.Context, text string) error
	Key(ctx context.Context, name string, modifiers []string) error
	Scroll(ctx context.Context, x, y int, direction ScrollDirection, amount int) error
}

// ErrNoDisplay 无可用显示器；不可重试。
// ErrNoDisplay means no displays are available; not retryable.
var ErrNoDisplay = errors.New("no displays found")

// CaptureError 一次采集或编码失败；视为瞬时错误。
// CaptureError is a transient capture or encoding failure.
type CaptureError struct {
	Stage string // "capture" or "encode"
	Err   error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("screen %s failed: %v", e.Stage, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// InjectError 一次输入注入失败。
// InjectError is a failed input injection.
type InjectError struct {
	Action string
	Err    error
}

func (e *InjectError) Error() string {
	return fmt.Sprintf("inject %s failed: %v", e.Action, e.Err)
}

func (e *InjectError) Unwrap() error { return e.Err }
