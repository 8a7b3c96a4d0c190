// Package logging builds the process logger: a zap core bridged into slog so
// every package can log through slog.Default.
package logging

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // console, json
	OutputPath string // stderr (default), stdout, or file path
}

// ParseLevel maps a level name to a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", name)
	}
}

// New builds a zap logger from cfg and returns it as a *slog.Logger. The
// returned function flushes buffered entries.
func New(cfg Config) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var config zap.Config
	switch cfg.Format {
	case "", "console":
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
	case "json":
		config = zap.NewProductionConfig()
		config.Sampling = nil
	default:
		return nil, nil, fmt.Errorf("invalid log format %q: must be console or json", cfg.Format)
	}

	config.Level = zap.NewAtomicLevelAt(level)
	output := cfg.OutputPath
	if output == "" {
		output = "stderr"
	}
	config.OutputPaths = []string{output}
	config.ErrorOutputPaths = []string{"stderr"}

	zl, err := config.Build()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(zapslog.NewHandler(zl.Core()))
	return logger, zl.Sync, nil
}

// Init builds the logger and installs it as slog's default.
func Init(cfg Config) (func() error, error) {
	logger, sync, err := New(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return sync, nil
}
