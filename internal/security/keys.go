package security

import (
	"sort"
	"strings"
)

// IsDangerousKey 纯判定函数：该组合键是否会触发破坏性的系统级操作
// （退出、强制退出、清除数据、任务管理器），需要人工确认。
// IsDangerousKey is a pure predicate: does this key combination trigger a
// destructive OS-level operation (quit, force-quit, clear-data, task
// manager) that needs human confirmation.
func IsDangerousKey(key string, modifiers []string) bool {
	combo := normalizeCombo(key, modifiers)
	_, dangerous := dangerousCombos[combo]
	return dangerous
}

// dangerousCombos 规范化后的危险组合键集合。
// dangerousCombos holds the normalized dangerous combinations.
var dangerousCombos = map[string]struct{}{
	"cmd+q":           {}, // quit frontmost app (macOS)
	"cmd+shift+q":     {}, // log out (macOS)
	"alt+cmd+esc":     {}, // force quit dialog (macOS)
	"cmd+shift+del":   {}, // clear browsing data
	"alt+f4":          {}, // close window (Windows)
	"alt+ctrl+del":    {}, // secure attention sequence
	"ctrl+shift+esc":  {}, // task manager (Windows)
	"ctrl+shift+del":  {}, // clear browsing data
	"alt+ctrl+f4":     {}, // close window variant
	"alt+cmd+shift+q": {}, // log out without confirmation (macOS)
}

// normalizeCombo 统一修饰键别名与顺序，生成规范形式 "mod+...+key"。
// normalizeCombo canonicalizes modifier aliases and ordering into
// "mod+...+key" form.
func normalizeCombo(key string, modifiers []string) string {
	mods := make([]string, 0, len(modifiers))
	seen := map[string]bool{}
	for _, m := range modifiers {
		norm := normalizeModifier(m)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		mods = append(mods, norm)
	}
	sort.Strings(mods)
	parts := append(mods, normalizeKey(key))
	return strings.Join(parts, "+")
}

func normalizeModifier(m string) string {
	switch strings.ToLower(strings.TrimSpace(m)) {
	case "cmd", "command", "meta", "super", "win":
		return "cmd"
	case "ctrl", "control":
		return "ctrl"
	case "alt", "option", "opt":
		return "alt"
	case "shift":
		return "shift"
	}
	return ""
}

func normalizeKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	switch k {
	case "escape":
		return "esc"
	case "delete", "backspace":
		return "del"
	}
	return k
}
