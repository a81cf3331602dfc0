package bootstrap

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/soul-sense/desktop/internal/config"
	"github.com/soul-sense/desktop/internal/host"
	"github.com/soul-sense/desktop/internal/plugin"
	"github.com/soul-sense/desktop/internal/telemetry"
)

// SetupFunc runs once the App exists, before the host loop starts.
type SetupFunc func(*App) error

// Builder assembles the application.
type Builder struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry Reporter
	plugins   []plugin.Plugin
	setup     []SetupFunc
	host      host.Host
	state     *config.State
}

func NewBuilder(cfg *config.Config, logger *zap.Logger) *Builder {
	return &Builder{cfg: cfg, logger: logger}
}

// Telemetry enables crash reporting. Initialization failure only warns.
func (b *Builder) Telemetry(t Reporter) *Builder {
	b.telemetry = t
	return b
}

func (b *Builder) Plugin(p plugin.Plugin) *Builder {
	b.plugins = append(b.plugins, p)
	return b
}

func (b *Builder) Setup(fn SetupFunc) *Builder {
	b.setup = append(b.setup, fn)
	return b
}

// Host selects the host. The default is headless.
func (b *Builder) Host(h host.Host) *Builder {
	b.host = h
	return b
}

// State replaces the runtime state loaded from cfg.StatePath.
func (b *Builder) State(st *config.State) *Builder {
	b.state = st
	return b
}

// Build registers and initializes plugins and runs the setup callbacks. On
// error everything already started is shut down again.
func (b *Builder) Build(ctx context.Context) (*App, error) {
	var steps []string

	if b.telemetry != nil {
		steps = append(steps, "telemetry")
		if err := b.telemetry.Init(); err != nil {
			if errors.Is(err, telemetry.ErrDisabled) {
				b.logger.Debug("Crash telemetry disabled")
			} else {
				b.logger.Warn("Failed to initialize crash telemetry, continuing without it", zap.Error(err))
			}
		} else {
			b.logger.Info("Crash telemetry enabled", zap.String("release", b.telemetry.Release()))
		}
	}

	st := b.state
	if st == nil {
		loaded, err := config.LoadState(b.cfg.StatePath)
		if err != nil {
			b.logger.Warn("Failed to load state, starting fresh", zap.Error(err))
			loaded = config.NewState(b.cfg.StatePath)
		}
		st = loaded
	}

	h := b.host
	if h == nil {
		h = host.NewHeadless(b.logger)
	}

	app := newApp(ctx, b.cfg, b.logger, st, h, b.telemetry)
	for _, s := range steps {
		app.step(s)
	}

	fail := func(err error) (*App, error) {
		if shutdownErr := app.Shutdown(); shutdownErr != nil {
			b.logger.Warn("Cleanup after failed setup", zap.Error(shutdownErr))
		}
		return nil, err
	}

	for _, p := range b.plugins {
		if err := app.register(p); err != nil {
			return fail(err)
		}
		app.step("register:" + p.Name())
	}

	app.step("initialize")
	if err := app.initialize(); err != nil {
		return fail(err)
	}

	app.step("setup")
	for _, fn := range b.setup {
		if err := fn(app); err != nil {
			var setupErr *SetupError
			var fatalErr *FatalError
			if !errors.As(err, &setupErr) && !errors.As(err, &fatalErr) {
				err = &SetupError{Err: err}
			}
			return fail(err)
		}
	}

	return app, nil
}

// Run builds the application and runs it until the host exits.
func (b *Builder) Run(ctx context.Context) error {
	app, err := b.Build(ctx)
	if err != nil {
		return err
	}
	return app.Run()
}
