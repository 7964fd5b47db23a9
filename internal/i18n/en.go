package i18n

// EnMessages 英文文案（fallback）
// EnMessages holds English messages (the fallback catalog)
var EnMessages = map[string]string{
	// Sidebar
	"sidebar.title":  "Autopilot",
	"sidebar.queue":  "Queue",
	"sidebar.model":  "Model",
	"sidebar.tokens": "Tokens",
	"queue.empty":    "(empty)",
	"tokens.totals":  "in %d / out %d",
	"tokens.rate":    "%.1f tok/s",

	// Status bar
	"status.step":  "step %d/%d",
	"status.done":  "done",
	"status.hints": "s stop · p pause · u undo · q quit",

	// Confirmation
	"confirm.prompt": "dangerous action: %s  confirm? [y/n]",

	// Transcript log lines
	"log.stop_requested": "stop requested, finishing current step",
	"log.paused":         "paused, will hold before the next step",
	"log.resumed":        "resumed",
	"log.undo_done":      "undid last scroll",
	"log.undo_failed":    "undo: %s",
	"log.queue_drained":  "queue drained",
}
