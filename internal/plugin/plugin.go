// Package plugin defines the capability plugins the launcher registers with
// the application handle and the ordered registry that owns them.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/soul-sense/desktop/internal/config"
)

var (
	ErrDuplicatePlugin = errors.New("plugin already registered")
	ErrInvalidPlugin   = errors.New("invalid plugin")
)

// Handle is the application handle as seen by plugins.
type Handle interface {
	Logger() *zap.Logger
	Config() *config.Config
	State() *config.State
	Emit(event string, payload any)
}

// Plugin is a named capability initialized against the application handle.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, h Handle) error
}

// Shutdowner is implemented by plugins that hold resources past initialization.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// InitError reports which plugin failed to initialize.
type InitError struct {
	Plugin string
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize plugin %q: %v", e.Plugin, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Registry keeps plugins in registration order. Names are unique.
type Registry struct {
	mu          sync.Mutex
	plugins     []Plugin
	byName      map[string]Plugin
	initialized map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		byName:      make(map[string]Plugin),
		initialized: make(map[string]bool),
	}
}

// Register adds p. Registering a name twice is an error, never a no-op.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("%w: nil plugin", ErrInvalidPlugin)
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPlugin)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicatePlugin, name)
	}
	r.plugins = append(r.plugins, p)
	r.byName[name] = p
	return nil
}

func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byName[name]
	return p, ok
}

// Names returns plugin names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		names[i] = p.Name()
	}
	return names
}

// Initialize initializes every plugin not yet initialized, in registration
// order, stopping at the first failure.
func (r *Registry) Initialize(ctx context.Context, h Handle) error {
	r.mu.Lock()
	pending := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		if !r.initialized[p.Name()] {
			pending = append(pending, p)
		}
	}
	r.mu.Unlock()

	for _, p := range pending {
		if err := p.Initialize(ctx, h); err != nil {
			return &InitError{Plugin: p.Name(), Err: err}
		}
		r.mu.Lock()
		r.initialized[p.Name()] = true
		r.mu.Unlock()
	}
	return nil
}

// Shutdown stops initialized plugins in reverse registration order.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	targets := make([]Shutdowner, 0, len(r.plugins))
	names := make([]string, 0, len(r.plugins))
	for i := len(r.plugins) - 1; i >= 0; i-- {
		p := r.plugins[i]
		if !r.initialized[p.Name()] {
			continue
		}
		if s, ok := p.(Shutdowner); ok {
			targets = append(targets, s)
			names = append(names, p.Name())
		}
		r.initialized[p.Name()] = false
	}
	r.mu.Unlock()

	var errs []error
	for i, s := range targets {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown plugin %q: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

// Lookup returns the plugin registered under name if it has type T.
func Lookup[T Plugin](r *Registry, name string) (T, bool) {
	var zero T
	p, ok := r.Get(name)
	if !ok {
		return zero, false
	}
	typed, ok := p.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
