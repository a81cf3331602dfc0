// Package telemetry reports crashes and error logs to Sentry. Reporting is
// best-effort: nothing here may stop the launcher from starting.
package telemetry

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/soul-sense/desktop/internal/config"
	"github.com/soul-sense/desktop/internal/version"
)

var ErrDisabled = errors.New("telemetry disabled")

const flushTimeout = 2 * time.Second

// Client owns the process-wide Sentry hub.
type Client struct {
	cfg       config.Telemetry
	release   string
	transport sentry.Transport
	enabled   atomic.Bool
}

type Option func(*Client)

// WithTransport replaces the HTTP transport.
func WithTransport(t sentry.Transport) Option {
	return func(c *Client) { c.transport = t }
}

func NewClient(cfg config.Telemetry, release string, opts ...Option) *Client {
	c := &Client{cfg: cfg, release: release}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Release() string { return c.release }

func (c *Client) Enabled() bool { return c.enabled.Load() }

// Init configures Sentry. It returns ErrDisabled when telemetry is off or
// no DSN is configured.
func (c *Client) Init() error {
	if !c.cfg.Enabled || c.cfg.DSN == "" {
		return ErrDisabled
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              c.cfg.DSN,
		Environment:      c.environment(),
		Release:          c.release,
		SampleRate:       c.cfg.SampleRate,
		AttachStacktrace: true,
		Transport:        c.transport,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("go_version", runtime.Version())
		scope.SetTag("build_commit", version.Commit)
		scope.SetTag("service", "soulsense-desktop")
		scope.SetTag("instance_id", instanceID())
	})

	c.enabled.Store(true)
	return nil
}

func (c *Client) environment() string {
	if c.cfg.Environment != "" {
		return c.cfg.Environment
	}
	if version.IsDev() {
		return "dev"
	}
	return "production"
}

func instanceID() string {
	if id := os.Getenv("HOSTNAME"); id != "" {
		return id
	}
	if id := os.Getenv("COMPUTERNAME"); id != "" {
		return id
	}
	return "unknown"
}

// Flush waits for queued events. It reports false on timeout.
func (c *Client) Flush(timeout time.Duration) bool {
	if !c.Enabled() {
		return true
	}
	return sentry.Flush(timeout)
}

// Recover reports a panic and re-raises it. Use as defer c.Recover().
func (c *Client) Recover() {
	if r := recover(); r != nil {
		if c.Enabled() {
			sentry.CurrentHub().Recover(r)
			sentry.Flush(flushTimeout)
		}
		panic(r)
	}
}
