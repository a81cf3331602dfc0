package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/soul-sense/desktop/internal/config"
)

// Options controls logger construction.
type Options struct {
	Level    string // "debug", "info", "warn", "error"
	Format   string // "console" or "json"
	Output   string // "stdout", "stderr" or a file path
	FilePath string // optional extra file sink
	// Tee receives every entry next to the configured outputs; each core
	// applies its own level.
	Tee []zapcore.Core
}

// OptionsFromConfig maps the config sections onto logger options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Level:    cfg.Application.LogLevel,
		Format:   cfg.Logging.Format,
		Output:   cfg.Logging.Output,
		FilePath: cfg.Logging.FilePath,
	}
}

// New builds the process logger. The returned level can be raised or lowered
// at runtime; the debug log plugin uses it.
func New(opts Options) (*zap.Logger, zap.AtomicLevel, error) {
	var zcfg zap.Config

	switch strings.ToLower(opts.Level) {
	case "debug":
		zcfg = zap.NewDevelopmentConfig()
	case "info":
		zcfg = zap.NewProductionConfig()
	case "", "warn":
		zcfg = zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zcfg = zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return nil, zap.AtomicLevel{}, fmt.Errorf("unknown log level %q", opts.Level)
	}

	if opts.Format == "console" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else if opts.Format != "" {
		zcfg.Encoding = opts.Format
	}

	output := opts.Output
	if output == "" {
		output = "stderr"
	}
	zcfg.OutputPaths = []string{output}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return nil, zap.AtomicLevel{}, fmt.Errorf("create log directory: %w", err)
		}
		zcfg.OutputPaths = append(zcfg.OutputPaths, opts.FilePath)
	}

	var buildOpts []zap.Option
	if len(opts.Tee) > 0 {
		buildOpts = append(buildOpts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(append([]zapcore.Core{core}, opts.Tee...)...)
		}))
	}

	logger, err := zcfg.Build(buildOpts...)
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("build logger: %w", err)
	}

	return logger, zcfg.Level, nil
}
