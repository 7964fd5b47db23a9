package i18n

// ZhCNMessages 简体中文文案
// ZhCNMessages holds Simplified Chinese messages
var ZhCNMessages = map[string]string{
	// Sidebar
	"sidebar.title":  "Autopilot",
	"sidebar.queue":  "指令队列",
	"sidebar.model":  "模型",
	"sidebar.tokens": "Token 用量",
	"queue.empty":    "（空）",
	"tokens.totals":  "输入 %d / 输出 %d",
	"tokens.rate":    "%.1f tok/s",

	// Status bar
	"status.step":  "第 %d/%d 步",
	"status.done":  "完成",
	"status.hints": "s 停止 · p 暂停 · u 撤销 · q 退出",

	// Confirmation
	"confirm.prompt": "危险动作：%s  是否执行？[y/n]",

	// Transcript log lines
	"log.stop_requested": "已请求停止，当前步骤完成后停下",
	"log.paused":         "已暂停，下一步前保持等待",
	"log.resumed":        "已继续",
	"log.undo_done":      "已撤销上一次滚动",
	"log.undo_failed":    "撤销失败：%s",
	"log.queue_drained":  "队列已清空",
}
