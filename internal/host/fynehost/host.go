// Package fynehost runs the launcher in a small fyne status window.
package fynehost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"github.com/soul-sense/desktop/internal/config"
	"github.com/soul-sense/desktop/internal/host"
)

const maxRecentEvents = 50

// Status holds the bindings shown in the window.
type Status struct {
	Sidecar  binding.String
	DeepLink binding.String
	Updater  binding.String
	IPC      binding.String
	Recent   binding.StringList
}

func newStatus() *Status {
	s := &Status{
		Sidecar:  binding.NewString(),
		DeepLink: binding.NewString(),
		Updater:  binding.NewString(),
		IPC:      binding.NewString(),
		Recent:   binding.NewStringList(),
	}
	s.Sidecar.Set("Starting")
	s.DeepLink.Set("None received")
	s.Updater.Set("Not checked")
	s.IPC.Set("Disconnected")
	return s
}

// Host is a fyne window showing sidecar, deep link, updater and IPC status.
type Host struct {
	logger  *zap.Logger
	fyneApp fyne.App
	window  fyne.Window
	status  *Status

	quitOnce sync.Once
}

// New builds the window on a. The caller picks the fyne driver: app.New in
// the binary, test.NewApp in tests.
func New(a fyne.App, cfg config.GUI, logger *zap.Logger) *Host {
	if cfg.Theme == "dark" {
		a.Settings().SetTheme(theme.DarkTheme())
	}

	h := &Host{
		logger:  logger.Named("gui"),
		fyneApp: a,
		window:  a.NewWindow(cfg.Title),
		status:  newStatus(),
	}
	h.window.Resize(fyne.NewSize(float32(cfg.Width), float32(cfg.Height)))
	h.createLayout()
	h.window.SetCloseIntercept(h.handleWindowClose)
	return h
}

func (h *Host) Status() *Status { return h.status }

func (h *Host) Window() fyne.Window { return h.window }

func (h *Host) createLayout() {
	row := func(name string, b binding.String) fyne.CanvasObject {
		label := widget.NewLabelWithData(b)
		label.Importance = widget.MediumImportance
		label.Truncation = fyne.TextTruncateEllipsis
		return container.NewBorder(nil, nil, widget.NewLabel(name+":"), nil, label)
	}

	statusCard := widget.NewCard("Status", "", container.NewVBox(
		row("Backend", h.status.Sidecar),
		row("Deep link", h.status.DeepLink),
		row("Updates", h.status.Updater),
		row("Channel", h.status.IPC),
	))

	recent := widget.NewListWithData(h.status.Recent,
		func() fyne.CanvasObject {
			return widget.NewLabel("")
		},
		func(item binding.DataItem, obj fyne.CanvasObject) {
			obj.(*widget.Label).Bind(item.(binding.String))
		},
	)

	h.window.SetContent(container.NewBorder(statusCard, nil, nil, nil, recent))
}

// Run shows the window and blocks until it is closed, Quit is called or ctx
// is done.
func (h *Host) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			h.Quit()
		case <-stop:
		}
	}()

	h.window.ShowAndRun()
	return nil
}

// Emit updates the bindings for ev. Safe from any goroutine.
func (h *Host) Emit(ev host.Event) {
	topic, text := host.Describe(ev)
	h.logger.Debug("Event", zap.String("name", ev.Name), zap.String("summary", text))

	fyne.Do(func() {
		h.apply(ev.Name, topic, text)
	})
}

func (h *Host) apply(name, topic, text string) {
	switch topic {
	case "sidecar":
		// output lines go to the list only
		if name != host.EventSidecarOutput {
			h.status.Sidecar.Set(text)
		}
	case "deep-link":
		h.status.DeepLink.Set(text)
	case "updater":
		h.status.Updater.Set(text)
	case "ipc":
		h.status.IPC.Set(text)
	}

	entry := fmt.Sprintf("%s  %s", time.Now().Format("15:04:05"), text)
	items, _ := h.status.Recent.Get()
	items = append([]string{entry}, items...)
	if len(items) > maxRecentEvents {
		items = items[:maxRecentEvents]
	}
	h.status.Recent.Set(items)
}

func (h *Host) handleWindowClose() {
	h.logger.Info("GUI: Window close requested")
	h.Quit()
}

// Quit closes the window loop. Safe from any goroutine.
func (h *Host) Quit() {
	h.quitOnce.Do(func() {
		fyne.Do(h.fyneApp.Quit)
	})
}
