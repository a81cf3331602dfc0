package logging

import (
	"context"
	"errors"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/soul-sense/desktop/internal/plugin"
)

const PluginName = "log"

// Plugin raises the process logger to a fixed level while it is registered.
// The launcher registers it only on debug starts.
type Plugin struct {
	level    zap.AtomicLevel
	target   zapcore.Level
	previous zapcore.Level
	logger   *zap.Logger
}

// NewPlugin returns a log plugin that sets level to target on initialization.
func NewPlugin(level zap.AtomicLevel, target zapcore.Level) *Plugin {
	return &Plugin{level: level, target: target}
}

func (p *Plugin) Name() string { return PluginName }

func (p *Plugin) Initialize(_ context.Context, h plugin.Handle) error {
	p.logger = h.Logger()
	p.previous = p.level.Level()
	p.level.SetLevel(p.target)
	p.logger.Info("Log plugin enabled", zap.Stringer("level", p.target))
	return nil
}

// Shutdown flushes buffered entries and restores the previous level.
func (p *Plugin) Shutdown(context.Context) error {
	err := p.logger.Sync()
	p.level.SetLevel(p.previous)
	// stdout/stderr are not syncable on most platforms
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}
