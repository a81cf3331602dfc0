package bootstrap

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/soul-sense/desktop/internal/logging"
)

// DefaultSetup is the launcher's setup callback:
//  1. debug builds get the log plugin at info level
//  2. the deep-link handler is registered
//  3. the sidecar is spawned
func DefaultSetup(level zap.AtomicLevel) SetupFunc {
	return func(a *App) error {
		if a.cfg.Application.Debug {
			if err := a.AddPlugin(logging.NewPlugin(level, zapcore.InfoLevel)); err != nil {
				return err
			}
		}
		if err := a.RegisterDeepLinks(); err != nil {
			return err
		}
		return a.SpawnSidecar()
	}
}
