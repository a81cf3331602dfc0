package deeplink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/soul-sense/desktop/internal/config"
	"github.com/soul-sense/desktop/internal/plugin"
)

const PluginName = "deep-link"

var ErrAlreadyRegistered = errors.New("deep link handler already registered")

// Plugin receives soulsense:// links from argv, from forwarding processes
// and from the OS, and hands them to the registered handler.
type Plugin struct {
	args      []string
	registrar Registrar
	instance  *Instance

	cfg        config.DeepLink
	logger     *zap.Logger
	dispatcher *Dispatcher
	cancel     context.CancelFunc

	mu         sync.Mutex
	registered bool
}

type Option func(*Plugin)

// WithRegistrar replaces the OS registrar.
func WithRegistrar(r Registrar) Option {
	return func(p *Plugin) { p.registrar = r }
}

// WithInstance makes the plugin accept links forwarded to inst.
func WithInstance(inst *Instance) Option {
	return func(p *Plugin) { p.instance = inst }
}

// NewPlugin creates the plugin. Links for the configured scheme found in
// args are submitted at initialization.
func NewPlugin(args []string, opts ...Option) *Plugin {
	p := &Plugin{args: args}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Name() string { return PluginName }

func (p *Plugin) Initialize(ctx context.Context, h plugin.Handle) error {
	cfg := h.Config()
	p.cfg = cfg.DeepLink
	p.logger = h.Logger().With(zap.String("plugin", PluginName))
	if p.registrar == nil {
		p.registrar = NewRegistrar(cfg.Application.Name, cfg.Application.Identifier, p.cfg.DesktopDir, p.logger)
	}

	// outlives the setup context; stopped by Shutdown
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	p.dispatcher = NewDispatcher(p.logger, p.cfg.Buffer, rate.Limit(p.cfg.RatePerSecond), p.cfg.Burst)
	p.dispatcher.Start(runCtx)

	if p.instance != nil {
		err := p.instance.Listen(runCtx, func(raw string) {
			p.Submit(raw, SourceForwarded)
		})
		if err != nil {
			p.dispatcher.Stop()
			cancel()
			return err
		}
	}

	for _, raw := range FromArgs(p.args, p.cfg.Scheme) {
		p.Submit(raw, SourceArgv)
	}
	return nil
}

// Register installs handler for scheme. The scheme must be the configured
// one and only one handler may be registered.
func (p *Plugin) Register(ctx context.Context, scheme string, handler Handler) error {
	if p.dispatcher == nil {
		return fmt.Errorf("deep link plugin not initialized")
	}
	if !strings.EqualFold(scheme, p.cfg.Scheme) {
		return fmt.Errorf("%w: %q is not the configured scheme %q", ErrSchemeMismatch, scheme, p.cfg.Scheme)
	}

	p.mu.Lock()
	if p.registered {
		p.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, scheme)
	}
	p.registered = true
	p.mu.Unlock()

	if p.cfg.Register {
		if err := p.registrar.Register(ctx, p.cfg.Scheme); err != nil {
			return fmt.Errorf("register scheme %q: %w", p.cfg.Scheme, err)
		}
	}

	p.dispatcher.SetHandler(handler)
	p.logger.Debug("Deep link handler registered", zap.String("scheme", p.cfg.Scheme))
	return nil
}

// Submit parses raw and queues it for delivery. Links for other schemes are
// logged and dropped.
func (p *Plugin) Submit(raw string, src Source) bool {
	if p.dispatcher == nil {
		return false
	}
	req, err := Parse(raw, p.cfg.Scheme, src)
	if err != nil {
		p.logger.Warn("Ignoring deep link", zap.String("source", string(src)), zap.Error(err))
		return false
	}
	return p.dispatcher.Submit(req)
}

func (p *Plugin) Shutdown(context.Context) error {
	if p.dispatcher != nil {
		p.dispatcher.Stop()
	}
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}
