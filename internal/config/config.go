package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type ProviderConfig struct {
	Kind      string `json:"kind"`
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	TimeoutMS int    `json:"timeout_ms"`
}

type RuntimeConfig struct {
	MaxIterations    int     `json:"max_iterations"`
	IterationDelayMS int     `json:"iteration_delay_ms"`
	SpeedMultiplier  float64 `json:"speed_multiplier"`
}

type SafetyConfig struct {
	RequireConfirmation bool `json:"require_confirmation"`
	VerifyEffects       bool `json:"verify_effects"`
	ActionRetries       int  `json:"action_retries"`
	ActionRetryDelayMS  int  `json:"action_retry_delay_ms"`
	SettleDelayMS       int  `json:"settle_delay_ms"`
}

type RetryConfig struct {
	MaxRetries        int     `json:"max_retries"`
	InitialDelayMS    int     `json:"initial_delay_ms"`
	MaxDelayMS        int     `json:"max_delay_ms"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
}

type StorageConfig struct {
	BaseDir  string `json:"base_dir"`
	LogMaxMB int    `json:"log_max_mb"`
}

type LoggingConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Runtime  RuntimeConfig  `json:"runtime"`
	Safety   SafetyConfig   `json:"safety"`
	Retry    RetryConfig    `json:"retry"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
}

// 文件层使用指针字段区分“未配置”与“显式 false/0”。
// File-level structs use pointers to tell "absent" from an explicit false/0.
type fileSafetyConfig struct {
	RequireConfirmation *bool `json:"require_confirmation"`
	VerifyEffects       *bool `json:"verify_effects"`
	ActionRetries       *int  `json:"action_retries"`
	ActionRetryDelayMS  *int  `json:"action_retry_delay_ms"`
	SettleDelayMS       *int  `json:"settle_delay_ms"`
}

type fileRuntimeConfig struct {
	MaxIterations    *int     `json:"max_iterations"`
	IterationDelayMS *int     `json:"iteration_delay_ms"`
	SpeedMultiplier  *float64 `json:"speed_multiplier"`
}

type fileConfig struct {
	Provider *ProviderConfig    `json:"provider"`
	Runtime  *fileRuntimeConfig `json:"runtime"`
	Safety   *fileSafetyConfig  `json:"safety"`
	Retry    *RetryConfig       `json:"retry"`
	Storage  *StorageConfig     `json:"storage"`
	Logging  *LoggingConfig     `json:"logging"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Kind:      "openai",
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o",
			TimeoutMS: 120000,
		},
		Runtime: RuntimeConfig{
			MaxIterations:    30,
			IterationDelayMS: 1000,
			SpeedMultiplier:  1,
		},
		Safety: SafetyConfig{
			RequireConfirmation: true,
			VerifyEffects:       true,
			ActionRetries:       2,
			ActionRetryDelayMS:  500,
			SettleDelayMS:       800,
		},
		Retry: RetryConfig{
			MaxRetries:        3,
			InitialDelayMS:    1000,
			MaxDelayMS:        30000,
			BackoffMultiplier: 2,
		},
		Storage: StorageConfig{
			BaseDir:  "~/.autopilot",
			LogMaxMB: 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load 加载配置：默认值 → 全局文件 → 项目文件 → 环境变量，后者覆盖前者。
// Load layers configuration: defaults, then the global file, then the
// project file, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("AGENT_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".autopilot", "config.json")}
}

func findProjectConfigPath() string {
	candidates := []string{
		"agent.config.json",
		".autopilot/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	cleaned := stripJSONComments(data)
	var fileCfg fileConfig
	if err := json.Unmarshal(cleaned, &fileCfg); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		cfg.Provider = mergeProvider(cfg.Provider, *fc.Provider)
	}
	if fc.Runtime != nil {
		if fc.Runtime.MaxIterations != nil {
			cfg.Runtime.MaxIterations = *fc.Runtime.MaxIterations
		}
		if fc.Runtime.IterationDelayMS != nil {
			cfg.Runtime.IterationDelayMS = *fc.Runtime.IterationDelayMS
		}
		if fc.Runtime.SpeedMultiplier != nil {
			cfg.Runtime.SpeedMultiplier = *fc.Runtime.SpeedMultiplier
		}
	}
	if fc.Safety != nil {
		if fc.Safety.RequireConfirmation != nil {
			cfg.Safety.RequireConfirmation = *fc.Safety.RequireConfirmation
		}
		if fc.Safety.VerifyEffects != nil {
			cfg.Safety.VerifyEffects = *fc.Safety.VerifyEffects
		}
		if fc.Safety.ActionRetries != nil {
			cfg.Safety.ActionRetries = *fc.Safety.ActionRetries
		}
		if fc.Safety.ActionRetryDelayMS != nil {
			cfg.Safety.ActionRetryDelayMS = *fc.Safety.ActionRetryDelayMS
		}
		if fc.Safety.SettleDelayMS != nil {
			cfg.Safety.SettleDelayMS = *fc.Safety.SettleDelayMS
		}
	}
	if fc.Retry != nil {
		cfg.Retry = mergeRetry(cfg.Retry, *fc.Retry)
	}
	if fc.Storage != nil {
		cfg.Storage = mergeStorage(cfg.Storage, *fc.Storage)
	}
	if fc.Logging != nil {
		if strings.TrimSpace(fc.Logging.Level) != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
		if strings.TrimSpace(fc.Logging.File) != "" {
			cfg.Logging.File = fc.Logging.File
		}
	}
}

func mergeProvider(base ProviderConfig, override ProviderConfig) ProviderConfig {
	if strings.TrimSpace(override.Kind) != "" {
		base.Kind = override.Kind
	}
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	return base
}

func mergeRetry(base RetryConfig, override RetryConfig) RetryConfig {
	if override.MaxRetries > 0 {
		base.MaxRetries = override.MaxRetries
	}
	if override.InitialDelayMS > 0 {
		base.InitialDelayMS = override.InitialDelayMS
	}
	if override.MaxDelayMS > 0 {
		base.MaxDelayMS = override.MaxDelayMS
	}
	if override.BackoffMultiplier > 0 {
		base.BackoffMultiplier = override.BackoffMultiplier
	}
	return base
}

func mergeStorage(base StorageConfig, override StorageConfig) StorageConfig {
	if strings.TrimSpace(override.BaseDir) != "" {
		base.BaseDir = override.BaseDir
	}
	if override.LogMaxMB > 0 {
		base.LogMaxMB = override.LogMaxMB
	}
	return base
}

func normalize(cfg *Config) error {
	def := Default()
	if strings.TrimSpace(cfg.Provider.Kind) == "" {
		cfg.Provider.Kind = def.Provider.Kind
	}
	cfg.Provider.Kind = strings.ToLower(strings.TrimSpace(cfg.Provider.Kind))
	switch cfg.Provider.Kind {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = def.Provider.TimeoutMS
	}

	if cfg.Runtime.MaxIterations <= 0 {
		cfg.Runtime.MaxIterations = def.Runtime.MaxIterations
	}
	if cfg.Runtime.IterationDelayMS < 0 {
		cfg.Runtime.IterationDelayMS = def.Runtime.IterationDelayMS
	}
	if cfg.Runtime.SpeedMultiplier <= 0 {
		cfg.Runtime.SpeedMultiplier = def.Runtime.SpeedMultiplier
	}

	if cfg.Safety.ActionRetries < 0 {
		cfg.Safety.ActionRetries = def.Safety.ActionRetries
	}
	if cfg.Safety.ActionRetryDelayMS < 0 {
		cfg.Safety.ActionRetryDelayMS = def.Safety.ActionRetryDelayMS
	}
	if cfg.Safety.SettleDelayMS < 0 {
		cfg.Safety.SettleDelayMS = def.Safety.SettleDelayMS
	}

	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = def.Retry.MaxRetries
	}
	if cfg.Retry.InitialDelayMS <= 0 {
		cfg.Retry.InitialDelayMS = def.Retry.InitialDelayMS
	}
	if cfg.Retry.MaxDelayMS <= 0 {
		cfg.Retry.MaxDelayMS = def.Retry.MaxDelayMS
	}
	if cfg.Retry.BackoffMultiplier <= 1 {
		cfg.Retry.BackoffMultiplier = def.Retry.BackoffMultiplier
	}

	storageDir, err := expandPath(cfg.Storage.BaseDir)
	if err != nil {
		return err
	}
	cfg.Storage.BaseDir = storageDir
	if cfg.Storage.LogMaxMB <= 0 {
		cfg.Storage.LogMaxMB = def.Storage.LogMaxMB
	}

	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("AGENT_PROVIDER")); v != "" {
		cfg.Provider.Kind = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENT_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENT_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENT_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	} else if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENT_MAX_ITERATIONS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid AGENT_MAX_ITERATIONS: %q", v)
		}
		cfg.Runtime.MaxIterations = n
	}
	if v := strings.TrimSpace(os.Getenv("AGENT_STORAGE_DIR")); v != "" {
		cfg.Storage.BaseDir = v
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

// stripJSONComments 去除 // 与 /* */ 注释，字符串内的内容原样保留。
// stripJSONComments removes // and /* */ comments, leaving string contents
// untouched.
func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
