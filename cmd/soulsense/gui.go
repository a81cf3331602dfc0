//go:build gui

package main

import (
	"fyne.io/fyne/v2/app"
	"go.uber.org/zap"

	"github.com/soul-sense/desktop/internal/config"
	"github.com/soul-sense/desktop/internal/host"
	"github.com/soul-sense/desktop/internal/host/fynehost"
)

func newHost(cfg *config.Config, logger *zap.Logger, noGUI bool) (host.Host, error) {
	if noGUI {
		return host.NewHeadless(logger), nil
	}
	return fynehost.New(app.NewWithID(cfg.Application.Identifier), cfg.GUI, logger), nil
}
