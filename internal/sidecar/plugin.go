package sidecar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soul-sense/desktop/internal/config"
	"github.com/soul-sense/desktop/internal/plugin"
)

const PluginName = "shell"

// Shell is the shell-access plugin: it resolves bundled executables and
// terminates every child it spawned when the application shuts down.
type Shell struct {
	cfg     config.Sidecar
	version string
	dirs    []string
	logger  *zap.Logger

	mu       sync.Mutex
	children []*Child
}

func NewPlugin() *Shell {
	return &Shell{}
}

func (s *Shell) Name() string { return PluginName }

func (s *Shell) Initialize(_ context.Context, h plugin.Handle) error {
	cfg := h.Config()
	s.cfg = cfg.Sidecar
	s.version = cfg.Application.Version
	s.logger = h.Logger().With(zap.String("plugin", PluginName))
	s.dirs = DefaultDirs(s.cfg.BundleDir)
	if len(s.dirs) == 0 {
		return fmt.Errorf("cannot determine bundle directory")
	}

	reaped, err := ReapStale(h.State(), s.cfg.StopTimeout, s.logger)
	if err != nil {
		s.logger.Warn("Failed to reap stale sidecar", zap.Error(err))
	} else if reaped {
		s.logger.Info("Stale sidecar terminated")
	}
	return nil
}

// Sidecar resolves the bundled executable name and prepares its command.
// The configured sidecar receives --host/--port and APP_VERSION.
func (s *Shell) Sidecar(name string) (*Command, error) {
	path, err := Resolve(name, s.dirs...)
	if err != nil {
		return nil, err
	}

	cmd := NewCommand(path)
	cmd.Dir = s.dirs[0]
	if name == s.cfg.Name {
		cmd.WithArgs("--host", s.cfg.Host, "--port", strconv.Itoa(s.cfg.Port))
		cmd.WithArgs(s.cfg.Args...)
		cmd.WithEnv("APP_VERSION", s.version)

		keys := make([]string, 0, len(s.cfg.Env))
		for k := range s.cfg.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.WithEnv(k, s.cfg.Env[k])
		}
	}
	cmd.onSpawn = s.track

	s.logger.Debug("Resolved sidecar", zap.String("name", name), zap.String("path", path))
	return cmd, nil
}

func (s *Shell) track(c *Child) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children = append(s.children, c)
}

// Children returns the processes spawned through this plugin.
func (s *Shell) Children() []*Child {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Child, len(s.children))
	copy(out, s.children)
	return out
}

// Shutdown terminates every child still running.
func (s *Shell) Shutdown(ctx context.Context) error {
	grace := s.cfg.StopTimeout
	if grace <= 0 {
		grace = 5 * time.Second
	}

	var errs []error
	for _, c := range s.Children() {
		if c.Exited() {
			continue
		}
		s.logger.Info("Terminating sidecar", zap.Int("pid", c.PID()))
		if err := c.Terminate(ctx, grace); err != nil {
			errs = append(errs, fmt.Errorf("pid %d: %w", c.PID(), err))
		}
	}
	return errors.Join(errs...)
}
