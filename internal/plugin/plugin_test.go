package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soul-sense/desktop/internal/config"
)

type stubHandle struct{}

func (stubHandle) Logger() *zap.Logger    { return zap.NewNop() }
func (stubHandle) Config() *config.Config { return config.Default() }
func (stubHandle) State() *config.State   { return config.NewState("") }
func (stubHandle) Emit(string, any)       {}

type recorder struct {
	calls []string
}

type stubPlugin struct {
	name        string
	rec         *recorder
	initErr     error
	shutdownErr error
}

func (p *stubPlugin) Name() string { return p.name }

func (p *stubPlugin) Initialize(context.Context, Handle) error {
	p.rec.calls = append(p.rec.calls, "init:"+p.name)
	return p.initErr
}

func (p *stubPlugin) Shutdown(context.Context) error {
	p.rec.calls = append(p.rec.calls, "shutdown:"+p.name)
	return p.shutdownErr
}

type plainPlugin struct{ name string }

func (p plainPlugin) Name() string                             { return p.name }
func (p plainPlugin) Initialize(context.Context, Handle) error { return nil }

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{}

	require.NoError(t, r.Register(&stubPlugin{name: "shell", rec: rec}))
	err := r.Register(&stubPlugin{name: "shell", rec: rec})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicatePlugin))
	assert.Equal(t, []string{"shell"}, r.Names())
}

func TestRegisterRejectsInvalid(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register(nil), ErrInvalidPlugin)
	assert.ErrorIs(t, r.Register(plainPlugin{}), ErrInvalidPlugin)
}

func TestInitializeInOrderAndOnce(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{}
	for _, name := range []string{"shell", "updater", "deep-link"} {
		require.NoError(t, r.Register(&stubPlugin{name: name, rec: rec}))
	}

	require.NoError(t, r.Initialize(context.Background(), stubHandle{}))
	require.NoError(t, r.Register(&stubPlugin{name: "log", rec: rec}))
	require.NoError(t, r.Initialize(context.Background(), stubHandle{}))

	assert.Equal(t, []string{"init:shell", "init:updater", "init:deep-link", "init:log"}, rec.calls)
}

func TestInitializeStopsAtFirstFailure(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{}
	boom := errors.New("boom")
	require.NoError(t, r.Register(&stubPlugin{name: "shell", rec: rec}))
	require.NoError(t, r.Register(&stubPlugin{name: "updater", rec: rec, initErr: boom}))
	require.NoError(t, r.Register(&stubPlugin{name: "deep-link", rec: rec}))

	err := r.Initialize(context.Background(), stubHandle{})

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "updater", initErr.Plugin)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"init:shell", "init:updater"}, rec.calls)
}

func TestShutdownReverseOrderJoinsErrors(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{}
	boom := errors.New("boom")
	require.NoError(t, r.Register(&stubPlugin{name: "shell", rec: rec}))
	require.NoError(t, r.Register(plainPlugin{name: "plain"}))
	require.NoError(t, r.Register(&stubPlugin{name: "updater", rec: rec, shutdownErr: boom}))
	require.NoError(t, r.Initialize(context.Background(), stubHandle{}))
	rec.calls = nil

	err := r.Shutdown(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `shutdown plugin "updater"`)
	assert.Equal(t, []string{"shutdown:updater", "shutdown:shell"}, rec.calls)

	rec.calls = nil
	require.NoError(t, r.Shutdown(context.Background()))
	assert.Empty(t, rec.calls)
}

func TestShutdownSkipsUninitialized(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{}
	require.NoError(t, r.Register(&stubPlugin{name: "shell", rec: rec}))

	require.NoError(t, r.Shutdown(context.Background()))
	assert.Empty(t, rec.calls)
}

func TestLookupTyped(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{}
	require.NoError(t, r.Register(&stubPlugin{name: "shell", rec: rec}))

	p, ok := Lookup[*stubPlugin](r, "shell")
	require.True(t, ok)
	assert.Equal(t, "shell", p.Name())

	_, ok = Lookup[plainPlugin](r, "shell")
	assert.False(t, ok)

	_, ok = Lookup[*stubPlugin](r, "missing")
	assert.False(t, ok)
}
