package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/soul-sense/desktop/internal/config"
)

type fakeTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (f *fakeTransport) Configure(sentry.ClientOptions)        {}
func (f *fakeTransport) Flush(time.Duration) bool              { return true }
func (f *fakeTransport) FlushWithContext(context.Context) bool { return true }
func (f *fakeTransport) Close()                                {}

func (f *fakeTransport) SendEvent(e *sentry.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeTransport) sent() []*sentry.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*sentry.Event(nil), f.events...)
}

func enabledConfig() config.Telemetry {
	return config.Telemetry{
		Enabled:     true,
		DSN:         "https://public@sentry.example.com/1",
		Environment: "test",
		SampleRate:  1.0,
	}
}

func TestInitDisabled(t *testing.T) {
	c := NewClient(config.Telemetry{Enabled: false, DSN: "https://public@sentry.example.com/1"}, "soulsense@1.0.0")
	assert.ErrorIs(t, c.Init(), ErrDisabled)
	assert.False(t, c.Enabled())

	c = NewClient(config.Telemetry{Enabled: true}, "soulsense@1.0.0")
	assert.ErrorIs(t, c.Init(), ErrDisabled)
	assert.True(t, c.Flush(time.Millisecond))
}

func TestInitRejectsBadDSN(t *testing.T) {
	cfg := enabledConfig()
	cfg.DSN = "not a dsn"
	c := NewClient(cfg, "soulsense@1.0.0", WithTransport(&fakeTransport{}))

	err := c.Init()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDisabled))
	assert.False(t, c.Enabled())
}

func TestCoreCapturesErrorsWithFields(t *testing.T) {
	tr := &fakeTransport{}
	c := NewClient(enabledConfig(), "soulsense@1.2.3", WithTransport(tr))
	require.NoError(t, c.Init())
	require.True(t, c.Enabled())

	observed, _ := observer.New(zapcore.DebugLevel)
	logger := zap.New(zapcore.NewTee(observed, c.Core())).Named("app").With(zap.String("plugin", "shell"))
	logger.Warn("ignored")
	logger.Error("Application failed",
		zap.String("kind", "sidecar"),
		zap.Error(errors.New(`failed to spawn sidecar "soul-sense-backend": not found`)))

	events := tr.sent()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "Application failed", ev.Message)
	assert.Equal(t, sentry.LevelError, ev.Level)
	assert.Equal(t, "app", ev.Logger)
	assert.Equal(t, "soulsense@1.2.3", ev.Release)
	assert.Equal(t, "test", ev.Environment)
	assert.Equal(t, "soulsense-desktop", ev.Tags["service"])
	assert.Equal(t, "sidecar", ev.Extra["kind"])
	assert.Equal(t, "shell", ev.Extra["plugin"])
	require.Len(t, ev.Exception, 1)
	assert.Contains(t, ev.Exception[0].Value, "soul-sense-backend")
}

func TestCoreSilentUntilInit(t *testing.T) {
	tr := &fakeTransport{}
	c := NewClient(enabledConfig(), "soulsense@1.2.3", WithTransport(tr))

	core := c.Core()
	assert.False(t, core.Enabled(zapcore.ErrorLevel))

	zap.New(core).Error("before init")
	assert.Empty(t, tr.sent())
}

func TestRecoverReportsAndRepanics(t *testing.T) {
	tr := &fakeTransport{}
	c := NewClient(enabledConfig(), "soulsense@1.2.3", WithTransport(tr))
	require.NoError(t, c.Init())

	assert.PanicsWithValue(t, "boom", func() {
		defer c.Recover()
		panic("boom")
	})
	assert.Len(t, tr.sent(), 1)
}
