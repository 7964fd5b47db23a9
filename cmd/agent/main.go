package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"autopilot/internal/agent"
	"autopilot/internal/bootstrap"
	"autopilot/internal/config"
	"autopilot/internal/logging"
	"autopilot/internal/queue"
	"autopilot/internal/tui"
)

func main() {
	var (
		configPath  string
		instruction string
		onFailure   string
		dryRun      bool
		headless    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to config JSON/JSONC")
	flag.StringVar(&instruction, "instruction", "", "Instruction to enqueue (positional args are enqueued too)")
	flag.StringVar(&onFailure, "on-failure", "stop", "Queue behavior after a failed instruction: stop or continue")
	flag.BoolVar(&dryRun, "dry-run", false, "Use the in-process simulated screen instead of an OS backend")
	flag.BoolVar(&headless, "headless", false, "Run without the TUI, streaming model text to stdout")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	result, err := bootstrap.Build(cfg, bootstrap.Options{DryRun: dryRun, Headless: headless})
	if err != nil {
		fmt.Fprintf(os.Stderr, "assemble agent failed: %v\n", err)
		os.Exit(1)
	}
	defer result.Store.Close()
	defer logging.Sync(result.Logger)

	switch strings.ToLower(onFailure) {
	case "stop":
		result.Queue.SetFailureMode(queue.FailureStop)
	case "continue":
		result.Queue.SetFailureMode(queue.FailureContinue)
	default:
		fmt.Fprintf(os.Stderr, "unknown -on-failure value %q\n", onFailure)
		os.Exit(1)
	}

	instructions := flag.Args()
	if strings.TrimSpace(instruction) != "" {
		instructions = append([]string{instruction}, instructions...)
	}
	result.Queue.AddMany(instructions)

	if headless {
		if len(instructions) == 0 {
			fmt.Fprintln(os.Stderr, "headless mode needs at least one instruction")
			os.Exit(1)
		}
		if err := runHeadless(result); err != nil {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runTUI(result); err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
}

// runHeadless 无 TUI 运行：流式文本写 stdout，危险动作经 stdin 确认。
// runHeadless runs without the TUI: streamed text goes to stdout, dangerous
// actions are confirmed over stdin.
func runHeadless(result *bootstrap.BuildResult) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result.Loop.SetOnChunk(func(chunk string) {
		fmt.Print(chunk)
	})

	stdin := bufio.NewScanner(os.Stdin)
	result.State.SetObserver(func(s agent.State) {
		if s.Status != agent.StatusAwaitingConfirmation {
			return
		}
		fmt.Fprintf(os.Stderr, "\ndangerous action: %s  allow? [y/N] ", s.PendingConfirmation)
		confirmed := stdin.Scan() && strings.EqualFold(strings.TrimSpace(stdin.Text()), "y")
		_ = result.State.Resolve(confirmed)
	})

	err := result.Loop.Run(ctx)
	fmt.Println()
	printSummary(result)
	return err
}

// runTUI 前台跑 Bubble Tea 程序，后台跑 agent 循环。
// runTUI runs the Bubble Tea program in the foreground and the agent loop in
// the background.
func runTUI(result *bootstrap.BuildResult) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := tui.NewApp(result.State, func() error {
		return result.Loop.UndoLast(context.Background())
	}, result.Model)
	program := tea.NewProgram(app, tea.WithAltScreen())

	var lastAction string
	result.State.SetObserver(func(s agent.State) {
		program.Send(tui.StateMsg{State: s})
		program.Send(tui.QueueMsg{Items: result.Queue.Items()})
		if s.LastAction != "" && s.LastAction != lastAction {
			lastAction = s.LastAction
			program.Send(tui.ActionMsg{Description: s.LastAction})
		}
	})
	result.Loop.SetOnChunk(func(chunk string) {
		program.Send(tui.ChunkMsg{Text: chunk})
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		return err
	})
	g.Go(func() error {
		// The TUI stays open after the queue drains; the user quits it.
		err := result.Loop.Run(ctx)
		program.Send(tui.RunDoneMsg{Err: err})
		return err
	})

	err := g.Wait()
	printSummary(result)
	return err
}

func printSummary(result *bootstrap.BuildResult) {
	pending, completed, failed := result.Queue.Counts()
	fmt.Printf("queue: %d completed, %d failed, %d pending\n", completed, failed, pending)
	for _, item := range result.Queue.Items() {
		switch item.Status {
		case queue.StatusCompleted:
			fmt.Printf("  ✓ %s: %s\n", item.Text, item.Result)
		case queue.StatusFailed:
			fmt.Printf("  ✗ %s: %s\n", item.Text, item.Err)
		}
	}
}
