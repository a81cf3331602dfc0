// Package bootstrap takes the launcher from process start to a running host:
// plugins, setup callbacks, the sidecar, and an orderly shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soul-sense/desktop/internal/config"
	"github.com/soul-sense/desktop/internal/deeplink"
	"github.com/soul-sense/desktop/internal/host"
	"github.com/soul-sense/desktop/internal/ipc"
	"github.com/soul-sense/desktop/internal/plugin"
	"github.com/soul-sense/desktop/internal/sidecar"
)

const shutdownTimeout = 10 * time.Second

// Reporter is the crash telemetry the application flushes on exit.
type Reporter interface {
	Init() error
	Release() string
	Flush(timeout time.Duration) bool
}

// App is the running application. It owns the sidecar child process and
// terminates it on shutdown.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	state     *config.State
	host      host.Host
	registry  *plugin.Registry
	telemetry Reporter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	steps      []string
	spawned    bool
	child      *sidecar.Child
	ready      bool
	token      string
	ipc        *ipc.Client
	connecting bool

	shutdownOnce sync.Once
	shutdownErr  error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, st *config.State, h host.Host, t Reporter) *App {
	ctx, cancel := context.WithCancel(ctx)
	return &App{
		cfg:       cfg,
		logger:    logger,
		state:     st,
		host:      h,
		registry:  plugin.NewRegistry(),
		telemetry: t,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (a *App) Logger() *zap.Logger    { return a.logger }
func (a *App) Config() *config.Config { return a.cfg }
func (a *App) State() *config.State   { return a.state }

// Emit forwards an event to the host.
func (a *App) Emit(name string, payload any) {
	a.host.Emit(host.Event{Name: name, Payload: payload})
}

func (a *App) step(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.steps = append(a.steps, name)
}

// Steps returns the startup and shutdown steps taken so far, in order.
func (a *App) Steps() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.steps))
	copy(out, a.steps)
	return out
}

func (a *App) register(p plugin.Plugin) error {
	if err := a.registry.Register(p); err != nil {
		name := ""
		if p != nil {
			name = p.Name()
		}
		return &SetupError{Plugin: name, Err: err}
	}
	return nil
}

func (a *App) initialize() error {
	if err := a.registry.Initialize(a.ctx, a); err != nil {
		var ie *plugin.InitError
		if errors.As(err, &ie) {
			return &SetupError{Plugin: ie.Plugin, Err: ie.Err}
		}
		return &SetupError{Err: err}
	}
	return nil
}

// AddPlugin registers and initializes p on the running application.
func (a *App) AddPlugin(p plugin.Plugin) error {
	if err := a.register(p); err != nil {
		return err
	}
	a.step("plugin:" + p.Name())
	return a.initialize()
}

func (a *App) Plugin(name string) (plugin.Plugin, bool) {
	return a.registry.Get(name)
}

func (a *App) Plugins() []string {
	return a.registry.Names()
}

// RegisterDeepLinks installs the application's handler for the configured
// scheme on the deep-link plugin.
func (a *App) RegisterDeepLinks() error {
	a.step("deep-link")

	dl, ok := plugin.Lookup[*deeplink.Plugin](a.registry, deeplink.PluginName)
	if !ok {
		return &SetupError{Plugin: deeplink.PluginName, Err: errors.New("plugin not registered")}
	}
	if err := dl.Register(a.ctx, a.cfg.DeepLink.Scheme, a.handleDeepLink); err != nil {
		return &SetupError{Plugin: deeplink.PluginName, Err: err}
	}
	return nil
}

func (a *App) handleDeepLink(req deeplink.Request) {
	a.logger.Info("Deep link received",
		zap.Stringer("id", req.ID),
		zap.String("url", req.Redacted()),
		zap.String("action", req.Action()),
		zap.String("source", string(req.Source)))

	a.state.RecordDeepLink(req.Redacted())
	a.Emit(host.EventDeepLink, host.DeepLinkInfo{
		ID:     req.ID.String(),
		URL:    req.Redacted(),
		Action: req.Action(),
		Source: string(req.Source),
	})

	if req.Action() == "auth/callback" {
		if token := req.Param("token"); token != "" {
			a.SetAuthToken(token)
		}
	}
}

// SpawnSidecar resolves and starts the configured sidecar. It runs at most
// once per application; any failure is a *FatalError.
func (a *App) SpawnSidecar() error {
	name := a.cfg.Sidecar.Name

	a.mu.Lock()
	if a.spawned {
		a.mu.Unlock()
		return fmt.Errorf("sidecar %q already spawned", name)
	}
	a.spawned = true
	a.mu.Unlock()
	a.step("sidecar")

	shell, ok := plugin.Lookup[*sidecar.Shell](a.registry, sidecar.PluginName)
	if !ok {
		return &FatalError{Kind: FatalSidecar, Sidecar: name, Err: errors.New("shell plugin not registered")}
	}
	cmd, err := shell.Sidecar(name)
	if err != nil {
		return &FatalError{Kind: FatalSidecar, Sidecar: name, Err: err}
	}
	events, child, err := cmd.Spawn()
	if err != nil {
		return &FatalError{Kind: FatalSidecar, Sidecar: name, Err: err}
	}

	a.mu.Lock()
	a.child = child
	a.mu.Unlock()

	a.state.RecordSidecar(child.PID(), child.Path())
	if err := a.state.Save(); err != nil {
		a.logger.Warn("Failed to save state", zap.Error(err))
	}

	a.logger.Info("Sidecar spawned",
		zap.String("name", name),
		zap.Int("pid", child.PID()),
		zap.String("path", child.Path()))
	a.Emit(host.EventSidecarSpawned, host.SidecarInfo{PID: child.PID(), Path: child.Path()})

	a.wg.Add(1)
	go a.drain(events, child)

	if a.cfg.Sidecar.ReadyTimeout > 0 {
		a.wg.Add(1)
		go a.waitReady(child)
	}
	return nil
}

// Sidecar returns the spawned child, or nil before SpawnSidecar.
func (a *App) Sidecar() *sidecar.Child {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.child
}

func (a *App) drain(events <-chan sidecar.CommandEvent, child *sidecar.Child) {
	defer a.wg.Done()
	logger := a.logger.Named("sidecar").With(zap.Int("pid", child.PID()))

	for ev := range events {
		switch ev.Kind {
		case sidecar.EventStdout:
			logger.Info(ev.Line)
			a.Emit(host.EventSidecarOutput, host.SidecarInfo{PID: child.PID(), Line: ev.Line})
		case sidecar.EventStderr:
			logger.Warn(ev.Line)
			a.Emit(host.EventSidecarOutput, host.SidecarInfo{PID: child.PID(), Line: ev.Line})
		case sidecar.EventError:
			logger.Warn("Sidecar output error", zap.Error(ev.Err))
		case sidecar.EventTerminated:
			a.state.ClearSidecar(child.PID())
			a.mu.Lock()
			a.ready = false
			a.mu.Unlock()

			if a.ctx.Err() == nil {
				logger.Error("Sidecar exited unexpectedly",
					zap.Int("code", ev.Code),
					zap.String("signal", ev.Signal))
			} else {
				logger.Info("Sidecar stopped", zap.Int("code", ev.Code), zap.String("signal", ev.Signal))
			}
			a.Emit(host.EventSidecarTerminated, host.SidecarInfo{
				PID:      child.PID(),
				ExitCode: ev.Code,
				Signal:   ev.Signal,
			})
		}
	}
}

func (a *App) waitReady(child *sidecar.Child) {
	defer a.wg.Done()

	url := sidecar.HealthURL(a.cfg.Sidecar.Host, a.cfg.Sidecar.Port, a.cfg.Sidecar.HealthPath)
	probe := sidecar.NewProbe(url, a.logger.Named("sidecar"))
	if err := probe.WaitReady(a.ctx, a.cfg.Sidecar.ReadyTimeout); err != nil {
		if a.ctx.Err() != nil || child.Exited() {
			return
		}
		a.logger.Warn("Sidecar did not become ready", zap.Error(err))
		a.Emit(host.EventSidecarUnready, host.SidecarInfo{PID: child.PID(), Error: err.Error()})
		return
	}

	a.mu.Lock()
	a.ready = true
	a.mu.Unlock()
	a.Emit(host.EventSidecarReady, host.SidecarInfo{PID: child.PID()})
	a.connectIPC()
}

// Ready reports whether the sidecar answered its health check.
func (a *App) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// SetAuthToken stores the session token from an auth callback and opens the
// IPC channel once the sidecar is ready. A token arriving while connected is
// kept for the next connection.
func (a *App) SetAuthToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
	a.connectIPC()
}

// IPC returns the open sidecar channel, or nil.
func (a *App) IPC() *ipc.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ipc
}

func (a *App) connectIPC() {
	a.mu.Lock()
	if !a.cfg.IPC.Enabled || !a.ready || a.token == "" || a.ipc != nil || a.connecting || a.ctx.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.connecting = true
	token := a.token
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		logger := a.logger.Named("ipc")
		url := ipc.EndpointURL(a.cfg.Sidecar.Host, a.cfg.Sidecar.Port, a.cfg.IPC.Path)

		client, err := ipc.Dial(a.ctx, url, token, logger)
		if err != nil {
			a.mu.Lock()
			a.connecting = false
			a.mu.Unlock()
			if a.ctx.Err() == nil {
				logger.Warn("Failed to open sidecar channel", zap.Error(err))
			}
			return
		}

		a.mu.Lock()
		a.connecting = false
		if a.ctx.Err() != nil {
			a.mu.Unlock()
			client.Close()
			return
		}
		a.ipc = client
		a.mu.Unlock()

		for msg := range client.Messages() {
			a.Emit(host.EventIPCMessage, msg)
		}

		a.mu.Lock()
		if a.ipc == client {
			a.ipc = nil
		}
		a.mu.Unlock()
		if err := client.Err(); err != nil {
			logger.Warn("Sidecar channel lost", zap.Error(err))
		}
	}()
}

// Run enters the host loop and shuts down when it returns.
func (a *App) Run() error {
	a.step("run")
	a.logger.Info("Application running", zap.Strings("plugins", a.registry.Names()))

	runErr := a.host.Run(a.ctx)
	if err := a.Shutdown(); err != nil {
		a.logger.Warn("Shutdown finished with errors", zap.Error(err))
	}
	if runErr != nil {
		return &FatalError{Kind: FatalRun, Err: runErr}
	}
	return nil
}

// Quit asks the host to leave its run loop.
func (a *App) Quit() {
	a.host.Quit()
}

// Shutdown stops plugins in reverse order, terminates the sidecar, persists
// state and flushes telemetry. Later calls return the first result.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.step("shutdown")
		a.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := a.registry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}

		a.mu.Lock()
		child, client := a.child, a.ipc
		a.ipc = nil
		a.mu.Unlock()

		if child != nil && !child.Exited() {
			if err := child.Terminate(ctx, a.cfg.Sidecar.StopTimeout); err != nil {
				errs = append(errs, fmt.Errorf("terminate sidecar: %w", err))
			}
		}
		if client != nil {
			if err := client.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close sidecar channel: %w", err))
			}
		}

		a.wg.Wait()

		if err := a.state.Save(); err != nil {
			errs = append(errs, fmt.Errorf("save state: %w", err))
		}
		if a.telemetry != nil && !a.telemetry.Flush(2*time.Second) {
			a.logger.Warn("Telemetry flush timed out")
		}
		a.shutdownErr = errors.Join(errs...)
	})
	return a.shutdownErr
}
