// Package bootstrap 按配置把各部件装配成可运行的 agent。
// Package bootstrap assembles the configured components into a runnable agent.
package bootstrap

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"autopilot/internal/agent"
	"autopilot/internal/automation"
	"autopilot/internal/config"
	"autopilot/internal/history"
	"autopilot/internal/logging"
	"autopilot/internal/provider"
	"autopilot/internal/queue"
	"autopilot/internal/retry"
	"autopilot/internal/storage"
	"autopilot/internal/tokens"
)

// Options 控制装配时的可选行为
// Options controls optional assembly behavior.
type Options struct {
	// DryRun 强制使用进程内模拟后端。
	// DryRun forces the in-process simulated backend.
	DryRun bool
	// Headless 时日志走控制台，TUI 不占用终端。
	// Headless sends logs to the console since no TUI owns the terminal.
	Headless bool
	// SimWidth/SimHeight 模拟屏幕尺寸，零值取 1920x1080。
	SimWidth  int
	SimHeight int
}

// newOSBackend 由平台构建文件赋值；nil 时回落到模拟器。
// newOSBackend is assigned by platform build files; nil falls back to the
// simulator.
var newOSBackend func() (automation.Capturer, automation.Injector, error)

// BuildResult 与 UI 无关的构建结果，供 main 构造 TUI
// BuildResult is UI-agnostic; main uses it to construct the TUI.
type BuildResult struct {
	Loop   *agent.Loop
	State  *agent.Manager
	Queue  *queue.Queue
	Store  storage.Store
	Logger *zap.Logger
	Model  string
	// Sim 仅在模拟后端生效时非 nil。
	// Sim is non-nil only when the simulated backend is active.
	Sim *automation.Simulator
}

// Build 按配置初始化并返回 BuildResult；调用方负责 defer result.Store.Close()
// Build initializes per the config and returns a BuildResult; the caller must
// defer result.Store.Close().
func Build(cfg config.Config, opts Options) (*BuildResult, error) {
	logger, err := logging.Setup(cfg.Logging, cfg.Storage, logging.Options{Console: opts.Headless})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	capturer, injector, sim, err := buildBackend(opts)
	if err != nil {
		return nil, fmt.Errorf("init automation backend: %w", err)
	}

	prov, err := provider.New(cfg.Provider.Kind, provider.Options{
		BaseURL:   cfg.Provider.BaseURL,
		APIKey:    cfg.Provider.APIKey,
		Model:     cfg.Provider.Model,
		TimeoutMS: cfg.Provider.TimeoutMS,
	})
	if err != nil {
		return nil, fmt.Errorf("init provider: %w", err)
	}

	dbPath := filepath.Join(cfg.Storage.BaseDir, "runs.db")
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	state := agent.NewManager(cfg.Runtime.MaxIterations)
	q := queue.New()

	executor := retry.NewExecutor(capturer, retry.EffectPolicy{
		MaxRetries:  cfg.Safety.ActionRetries,
		RetryDelay:  time.Duration(cfg.Safety.ActionRetryDelayMS) * time.Millisecond,
		SettleDelay: time.Duration(cfg.Safety.SettleDelayMS) * time.Millisecond,
		Verify:      cfg.Safety.VerifyEffects,
	})

	loop := agent.NewLoop(agent.LoopOptions{
		Capturer: capturer,
		Injector: injector,
		Provider: prov,
		State:    state,
		History:  history.New(),
		Queue:    q,
		Executor: executor,
		CallPolicy: retry.Policy{
			MaxRetries:        cfg.Retry.MaxRetries,
			InitialDelay:      time.Duration(cfg.Retry.InitialDelayMS) * time.Millisecond,
			MaxDelay:          time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		},
		Estimator: tokens.NewEstimatorForModel(cfg.Provider.Model),
		Store:     store,
		Logger:    logger,
		Config: agent.Config{
			MaxIterations:       cfg.Runtime.MaxIterations,
			IterationDelay:      time.Duration(cfg.Runtime.IterationDelayMS) * time.Millisecond,
			SpeedMultiplier:     cfg.Runtime.SpeedMultiplier,
			RequireConfirmation: cfg.Safety.RequireConfirmation,
		},
	})

	logger.Info("agent assembled",
		zap.String("provider", prov.Name()),
		zap.String("model", cfg.Provider.Model),
		zap.Bool("dry_run", sim != nil),
	)

	return &BuildResult{
		Loop:   loop,
		State:  state,
		Queue:  q,
		Store:  store,
		Logger: logger,
		Model:  cfg.Provider.Model,
		Sim:    sim,
	}, nil
}

func buildBackend(opts Options) (automation.Capturer, automation.Injector, *automation.Simulator, error) {
	if !opts.DryRun && newOSBackend != nil {
		capturer, injector, err := newOSBackend()
		if err != nil {
			return nil, nil, nil, err
		}
		return capturer, injector, nil, nil
	}

	width, height := opts.SimWidth, opts.SimHeight
	if width <= 0 {
		width = 1920
	}
	if height <= 0 {
		height = 1080
	}
	sim := automation.NewSimulator(width, height)
	return sim, sim, sim, nil
}
