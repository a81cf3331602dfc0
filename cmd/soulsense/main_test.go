package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soul-sense/desktop/internal/bootstrap"
	"github.com/soul-sense/desktop/internal/deeplink"
	"github.com/soul-sense/desktop/internal/telemetry"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--config", "/tmp/c.yml", "--debug", "--nogui", "soulsense://auth/callback?token=x"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/c.yml", opts.configPath)
	assert.True(t, opts.debug)
	assert.True(t, opts.noGUI)
	assert.Equal(t, []string{"soulsense://auth/callback?token=x"}, opts.args)

	opts, err = parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "config.yml", opts.configPath)
	assert.False(t, opts.debug)
	assert.Empty(t, opts.args)

	_, err = parseFlags([]string{"--bogus"})
	assert.Error(t, err)
}

func TestRunBadFlag(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), []string{"--bogus"}, &stderr))
}

func TestExitCode(t *testing.T) {
	logger := zap.NewNop()

	var stderr bytes.Buffer
	assert.Equal(t, 0, exitCode(nil, logger, &stderr))
	assert.Empty(t, stderr.String())

	stderr.Reset()
	fatal := &bootstrap.FatalError{Kind: bootstrap.FatalSidecar, Sidecar: "backend", Err: errors.New("not found")}
	assert.Equal(t, 1, exitCode(fatal, logger, &stderr))
	assert.Contains(t, stderr.String(), "fatal: failed to spawn sidecar \"backend\"")

	stderr.Reset()
	setupErr := &bootstrap.SetupError{Plugin: "updater", Err: errors.New("boom")}
	assert.Equal(t, 1, exitCode(setupErr, logger, &stderr))
	assert.Contains(t, stderr.String(), "setup failed: plugin \"updater\"")
}

func writeConfig(t *testing.T, dir, sidecarName string) string {
	t.Helper()
	return writeConfigBody(t, dir, configBody(dir, sidecarName))
}

func configBody(dir, sidecarName string) string {
	return "sidecar:\n" +
		"  name: " + sidecarName + "\n" +
		"  bundle_dir: " + filepath.Join(dir, "bin") + "\n" +
		"deep_link:\n" +
		"  register: false\n" +
		"telemetry:\n" +
		"  enabled: false\n" +
		"logging:\n" +
		"  output: " + filepath.Join(dir, "launcher.log") + "\n" +
		"state_path: " + filepath.Join(dir, "state.yml") + "\n" +
		"runtime_dir: " + filepath.Join(dir, "run") + "\n"
}

func writeConfigBody(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestRunMissingSidecarIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "soulsense-missing-backend")

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", path, "--nogui"}, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "fatal:")
	assert.Contains(t, stderr.String(), "soulsense-missing-backend")

	// the instance lock is released on the way out
	next := deeplink.NewInstance(filepath.Join(dir, "run"), zap.NewNop())
	require.NoError(t, next.Acquire())
	require.NoError(t, next.Release())
}

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

func TestRunReportsFatalErrorDetail(t *testing.T) {
	dir := t.TempDir()
	body := strings.Replace(configBody(dir, "soulsense-missing-backend"),
		"telemetry:\n  enabled: false\n",
		"telemetry:\n  enabled: true\n  dsn: https://public@sentry.example.invalid/1\n  environment: test\n", 1)
	path := writeConfigBody(t, dir, body)

	tr := &fakeTransport{}
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", path, "--nogui"}, &stderr, telemetry.WithTransport(tr))
	require.Equal(t, 1, code)

	var fatal *sentry.Event
	for _, ev := range tr.sent() {
		if ev.Extra["kind"] == string(bootstrap.FatalSidecar) {
			fatal = ev
		}
	}
	require.NotNil(t, fatal, "no event for the fatal error")
	require.NotEmpty(t, fatal.Exception)
	assert.Contains(t, fatal.Exception[0].Value, "soulsense-missing-backend")
}

func TestRunInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("unknown_section: true\n"), 0600))

	var stderr bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), []string{"--config", path}, &stderr))
	assert.Contains(t, stderr.String(), "failed to load config")
}

func TestRunForwardsToPrimaryInstance(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("single-instance guard needs flock and unix sockets")
	}
	dir := t.TempDir()
	path := writeConfig(t, dir, "soulsense-missing-backend")

	primary := deeplink.NewInstance(filepath.Join(dir, "run"), zap.NewNop())
	require.NoError(t, primary.Acquire())
	defer primary.Release()

	got := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, primary.Listen(ctx, func(raw string) { got <- raw }))

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", path, "soulsense://auth/callback?token=abc"}, &stderr)
	assert.Equal(t, 0, code)
	select {
	case raw := <-got:
		assert.Equal(t, "soulsense://auth/callback?token=abc", raw)
	case <-time.After(2 * time.Second):
		t.Fatal("forwarded link not received")
	}
}
