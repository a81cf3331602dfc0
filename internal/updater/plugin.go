package updater

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soul-sense/desktop/internal/config"
	"github.com/soul-sense/desktop/internal/host"
	"github.com/soul-sense/desktop/internal/plugin"
)

const PluginName = "updater"

// Plugin checks for updates at startup and then on an interval.
type Plugin struct {
	checker  *Checker
	interval time.Duration
	state    *config.State
	emit     func(string, any)
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	latest *Update
}

func NewPlugin() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string { return PluginName }

func (p *Plugin) Initialize(ctx context.Context, h plugin.Handle) error {
	cfg := h.Config()
	p.logger = h.Logger().With(zap.String("plugin", PluginName))
	if !cfg.Updater.Enabled {
		p.logger.Debug("Updater disabled")
		return nil
	}

	p.checker = NewChecker(cfg.Updater.Endpoint, cfg.Application.Version, cfg.Updater.MinInterval, p.logger)
	p.interval = cfg.Updater.CheckInterval
	p.state = h.State()
	p.emit = h.Emit

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(runCtx)
	return nil
}

func (p *Plugin) loop(ctx context.Context) {
	defer p.wg.Done()

	p.check(ctx)
	if p.interval <= 0 {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *Plugin) check(ctx context.Context) {
	if _, err := p.CheckNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("Update check failed", zap.Error(err))
	}
}

// CheckNow runs one check, records it and announces a newer release.
func (p *Plugin) CheckNow(ctx context.Context) (*Update, error) {
	if p.checker == nil {
		return nil, nil
	}
	update, err := p.checker.Check(ctx)
	if err != nil {
		return nil, err
	}

	latest := ""
	if update != nil {
		latest = update.Version
	}
	p.state.RecordUpdateCheck(latest)

	if update == nil {
		return nil, nil
	}

	p.mu.Lock()
	announced := p.latest != nil && p.latest.Version == update.Version
	p.latest = update
	p.mu.Unlock()

	if !announced {
		p.logger.Info("Update available",
			zap.String("current", update.Current),
			zap.String("version", update.Version))
		p.emit(host.EventUpdateAvailable, update)
	}
	return update, nil
}

// Latest returns the newest release seen so far.
func (p *Plugin) Latest() *Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

func (p *Plugin) Shutdown(context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}
