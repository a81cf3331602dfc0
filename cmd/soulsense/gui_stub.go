//go:build !gui

package main

import (
	"go.uber.org/zap"

	"github.com/soul-sense/desktop/internal/config"
	"github.com/soul-sense/desktop/internal/host"
)

// newHost runs headless: this build has no GUI support. Build with -tags gui
// for the status window.
func newHost(_ *config.Config, logger *zap.Logger, noGUI bool) (host.Host, error) {
	if !noGUI {
		logger.Debug("GUI support is not enabled in this build, running headless")
	}
	return host.NewHeadless(logger), nil
}
