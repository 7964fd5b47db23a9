package tokens

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"autopilot/internal/chat"
)

// imageTokenCost 每张截图按固定成本计入（视觉模型对缩放图块的常见开销）。
// imageTokenCost charges a fixed amount per screenshot, matching the common
// vision-model cost for a downscaled image tile.
const imageTokenCost = 765

// Estimator token 估算器：provider 未上报用量时兜底，保持速率指标有值。
// Estimator estimates token counts, the fallback that keeps rate metrics
// populated when a provider stream reports no usage.
type Estimator struct {
	encoder      *tiktoken.Tiktoken
	encodingName string
	fallback     bool
	mu           sync.RWMutex
}

var (
	defaultEstimator     *Estimator
	defaultEstimatorOnce sync.Once
)

// Default 返回全局默认估算器。
// Default returns the global default estimator.
func Default() *Estimator {
	defaultEstimatorOnce.Do(func() {
		defaultEstimator = NewEstimator("cl100k_base")
	})
	return defaultEstimator
}

// NewEstimator 创建估算器；tiktoken 初始化失败时回退到启发式。
// NewEstimator creates an estimator, falling back to the heuristic when
// tiktoken cannot initialize.
func NewEstimator(encodingName string) *Estimator {
	e := &Estimator{encodingName: encodingName}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		// 离线环境可能没有 BPE 缓存，回退到启发式
		// Offline environments may lack BPE cache, fall back to heuristic.
		e.fallback = true
		return e
	}
	e.encoder = enc
	return e
}

// NewEstimatorForModel 根据模型名自动选择编码。
// NewEstimatorForModel auto-selects the encoding by model name.
func NewEstimatorForModel(model string) *Estimator {
	return NewEstimator(modelToEncoding(model))
}

// CountText 计算单段文本的 token 数。
// CountText counts tokens for one text string.
func (e *Estimator) CountText(text string) int {
	if text == "" {
		return 0
	}
	if e.fallback {
		return heuristicTokenCount(text)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.encoder.Encode(text, nil, nil))
}

// CountHistory 估算整段会话历史的输入 token，截图按固定成本计入。
// CountHistory estimates the input tokens for a whole history; screenshots
// count at the fixed per-image cost.
func (e *Estimator) CountHistory(messages []chat.Message) int {
	total := 0
	for _, msg := range messages {
		// ~4 tokens of per-message structure overhead.
		total += 4
		total += e.CountText(msg.Text)
		if msg.Screenshot != nil {
			total += imageTokenCost
		}
		if msg.Result != nil {
			total += e.CountText(msg.Result.Message)
			total += e.CountText(msg.Result.Err)
		}
	}
	return total
}

// IsPrecise 是否使用精确计数。
// IsPrecise reports whether precise counting is available.
func (e *Estimator) IsPrecise() bool {
	return !e.fallback
}

// heuristicTokenCount 启发式估算：CJK 约 1.5 token/字，ASCII 约 4 字符/token。
// heuristicTokenCount estimates: CJK runs ~1.5 tokens per character, ASCII
// ~4 characters per token.
func heuristicTokenCount(text string) int {
	if text == "" {
		return 0
	}
	cjkCount := 0
	asciiCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		} else {
			asciiCount++
		}
	}
	estimate := int(float64(cjkCount)*1.5 + float64(asciiCount)*0.25)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols
		(r >= 0xFF00 && r <= 0xFFEF) || // Fullwidth Forms
		(r >= 0xAC00 && r <= 0xD7AF) // Korean Hangul
}

func modelToEncoding(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return "cl100k_base"
	}
	if strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") {
		return "o200k_base"
	}
	if strings.HasPrefix(m, "gpt-4o") || strings.HasPrefix(m, "chatgpt-4o") {
		return "o200k_base"
	}
	return "cl100k_base"
}
