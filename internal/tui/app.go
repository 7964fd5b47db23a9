package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"autopilot/internal/agent"
	"autopilot/internal/i18n"
	"autopilot/internal/queue"
)

// Controller 是 TUI 对 agent 状态机的控制面。
// Controller is the TUI's control surface over the agent state machine.
// *agent.Manager satisfies it.
type Controller interface {
	RequestStop()
	Pause()
	Resume()
	Paused() bool
	Resolve(confirmed bool) error
}

// --- Tea Messages ---

// StateMsg 携带最新的 agent 状态快照
// StateMsg carries the latest agent state snapshot
type StateMsg struct{ State agent.State }

// ChunkMsg 流式模型文本块
// ChunkMsg is a streamed model text chunk
type ChunkMsg struct{ Text string }

// ActionMsg 一次动作执行的结果
// ActionMsg reports one executed action
type ActionMsg struct {
	Description string
	Warning     string
}

// QueueMsg 指令队列快照
// QueueMsg is an instruction queue snapshot
type QueueMsg struct{ Items []queue.Instruction }

// RunDoneMsg 整个队列跑完
// RunDoneMsg signals the whole queue has drained
type RunDoneMsg struct{ Err error }

// App Bubble Tea 主 Model
// App is the main Bubble Tea model
type App struct {
	width  int
	height int

	transcript viewport.Model
	content    strings.Builder

	state     agent.State
	items     []queue.Instruction
	streamBuf strings.Builder
	done      bool
	runErr    error

	controller Controller
	undo       func() error

	theme  Theme
	keys   KeyMap
	locale *i18n.I18n
	model  string
}

// NewApp 创建 TUI 应用
// NewApp creates a new TUI application
func NewApp(controller Controller, undo func() error, model string) App {
	return App{
		controller: controller,
		undo:       undo,
		theme:      DarkTheme(),
		keys:       DefaultKeyMap(),
		locale:     i18n.Global(),
		model:      model,
	}
}

func (a App) Init() tea.Cmd {
	return nil
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		return a, nil

	case StateMsg:
		a.state = msg.State
		return a, nil

	case ChunkMsg:
		a.streamBuf.WriteString(msg.Text)
		a.refreshTranscript()
		return a, nil

	case ActionMsg:
		a.streamBuf.Reset()
		line := "▸ " + msg.Description
		if msg.Warning != "" {
			line += "  " + a.theme.WarningStyle.Render("⚠ "+msg.Warning)
		}
		a.appendLine(line)
		return a, nil

	case QueueMsg:
		a.items = msg.Items
		return a, nil

	case RunDoneMsg:
		a.done = true
		a.runErr = msg.Err
		a.streamBuf.Reset()
		if msg.Err != nil {
			a.appendLine(a.theme.ErrorStyle.Render("✗ " + msg.Err.Error()))
		} else {
			a.appendLine(a.theme.SuccessStyle.Render("✓ " + a.locale.T("log.queue_drained")))
		}
		for _, item := range a.items {
			if item.Status == queue.StatusCompleted && item.Result != "" {
				a.appendLine(RenderMarkdown("**"+item.Text+"**\n\n"+item.Result, a.transcript.Width))
			}
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.transcript, cmd = a.transcript.Update(msg)
	return a, cmd
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	awaiting := a.state.Status == agent.StatusAwaitingConfirmation

	switch {
	case key.Matches(msg, a.keys.Quit):
		a.controller.RequestStop()
		return a, tea.Quit

	case awaiting && key.Matches(msg, a.keys.Confirm):
		_ = a.controller.Resolve(true)
		return a, nil

	case awaiting && key.Matches(msg, a.keys.Deny):
		_ = a.controller.Resolve(false)
		return a, nil

	case key.Matches(msg, a.keys.Stop):
		a.controller.RequestStop()
		a.appendLine(a.theme.MutedStyle.Render(a.locale.T("log.stop_requested")))
		return a, nil

	case key.Matches(msg, a.keys.Pause):
		if a.controller.Paused() {
			a.controller.Resume()
			a.appendLine(a.theme.MutedStyle.Render(a.locale.T("log.resumed")))
		} else {
			a.controller.Pause()
			a.appendLine(a.theme.MutedStyle.Render(a.locale.T("log.paused")))
		}
		return a, nil

	case key.Matches(msg, a.keys.Undo):
		if a.undo != nil {
			if err := a.undo(); err != nil {
				a.appendLine(a.theme.MutedStyle.Render(a.locale.T("log.undo_failed", err.Error())))
			} else {
				a.appendLine("↩ " + a.locale.T("log.undo_done"))
			}
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.transcript, cmd = a.transcript.Update(msg)
	return a, cmd
}

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	sidebarWidth := a.width * 30 / 100
	if sidebarWidth < 24 {
		sidebarWidth = 24
	}
	if sidebarWidth > 44 {
		sidebarWidth = 44
	}
	if a.width < 70 {
		sidebarWidth = 0
	}

	mainWidth := a.width - sidebarWidth
	if sidebarWidth > 0 {
		mainWidth--
	}

	statusHeight := 1
	confirmHeight := 0
	if a.state.Status == agent.StatusAwaitingConfirmation {
		confirmHeight = 1
	}
	panelHeight := a.height - statusHeight - confirmHeight
	if panelHeight < 3 {
		panelHeight = 3
	}

	panel := lipgloss.NewStyle().Width(mainWidth).Height(panelHeight).Render(a.transcript.View())

	main := panel
	if sidebarWidth > 0 {
		sidebar := a.renderSidebar(sidebarWidth, panelHeight)
		main = lipgloss.JoinHorizontal(lipgloss.Top, panel, sidebar)
	}

	parts := []string{main}
	if confirmHeight > 0 {
		prompt := " " + a.locale.T("confirm.prompt", a.state.PendingConfirmation) + " "
		parts = append(parts, a.theme.ConfirmStyle.Width(a.width).Render(prompt))
	}
	parts = append(parts, a.renderStatusBar(a.width))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// --- 内部方法 / Internal methods ---

func (a *App) relayout() {
	mainWidth := a.width * 70 / 100
	panelHeight := a.height - 2
	if panelHeight < 3 {
		panelHeight = 3
	}
	a.transcript = viewport.New(mainWidth, panelHeight)
	a.refreshTranscript()
}

func (a *App) appendLine(text string) {
	a.content.WriteString(text + "\n")
	a.refreshTranscript()
}

func (a *App) refreshTranscript() {
	content := a.content.String()
	if a.streamBuf.Len() > 0 {
		content += a.theme.MutedStyle.Render(a.streamBuf.String())
	}
	a.transcript.SetContent(content)
	a.transcript.GotoBottom()
}

func (a App) renderSidebar(width, height int) string {
	var parts []string

	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("sidebar.title")))
	parts = append(parts, "")

	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("sidebar.queue")))
	if len(a.items) == 0 {
		parts = append(parts, a.theme.MutedStyle.Render("  "+a.locale.T("queue.empty")))
	}
	for _, item := range a.items {
		marker := statusMarker(item.Status)
		text := item.Text
		if limit := width - 6; limit > 3 && len(text) > limit {
			text = text[:limit-1] + "…"
		}
		parts = append(parts, fmt.Sprintf("  %s %s", marker, text))
	}
	parts = append(parts, "")

	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("sidebar.model")))
	parts = append(parts, "  "+a.model)
	parts = append(parts, "")

	parts = append(parts, a.theme.TitleStyle.Render(" "+a.locale.T("sidebar.tokens")))
	parts = append(parts, "  "+a.locale.T("tokens.totals", a.state.TotalInputTokens, a.state.TotalOutputTokens))
	if a.state.TokensPerSecond > 0 {
		parts = append(parts, "  "+a.locale.T("tokens.rate", a.state.TokensPerSecond))
	}

	return a.theme.SidebarStyle.Width(width).Height(height).Render(strings.Join(parts, "\n"))
}

func (a App) renderStatusBar(width int) string {
	status := string(a.state.Status)
	if a.done {
		status = a.locale.T("status.done")
	}

	left := fmt.Sprintf(" %s · %s", status, a.locale.T("status.step", a.state.Iteration, a.state.MaxIterations))
	if a.state.LastAction != "" {
		left += " · " + a.state.LastAction
	}
	right := a.locale.T("status.hints") + "  "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return a.theme.StatusBarStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func statusMarker(s queue.Status) string {
	switch s {
	case queue.StatusRunning:
		return "▶"
	case queue.StatusCompleted:
		return "✓"
	case queue.StatusFailed:
		return "✗"
	default:
		return "·"
	}
}
