// Package logging 构建进程级 zap 日志器，文件输出经 lumberjack 轮转。
// Package logging builds the process-wide zap logger, with rotating file
// output via lumberjack.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"autopilot/internal/config"
)

// Options 控制日志输出位置。TUI 占用终端时应关闭 Console。
// Options controls where log output goes. Console should be off while the
// TUI owns the terminal.
type Options struct {
	Console bool
}

// Setup 按配置构建 logger。未配置文件路径时回落到 <BaseDir>/agent.log。
func Setup(cfg config.LoggingConfig, storage config.StorageConfig, opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var cores []zapcore.Core

	logFile := cfg.File
	if logFile == "" && storage.BaseDir != "" {
		logFile = filepath.Join(storage.BaseDir, "agent.log")
	}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, err
		}
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    storage.LogMaxMB,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level))
	}

	if opts.Console {
		consoleEncoder := zap.NewDevelopmentEncoderConfig()
		consoleEncoder.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoder),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel)).Named("autopilot")
	return logger, nil
}

// Sync 刷新缓冲。终端 sync 失败是常态，忽略即可。
func Sync(logger *zap.Logger) {
	if logger != nil {
		_ = logger.Sync()
	}
}
