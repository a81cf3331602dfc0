package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/soul-sense/desktop/internal/config"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, level, err := New(Options{Level: tt.level, Output: "stderr"})
			require.NoError(t, err)
			defer logger.Sync()
			assert.Equal(t, tt.want, level.Level())
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(Options{Level: "chatty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chatty")
}

func TestNewWritesFileSinkAndTees(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "launcher.log")
	teed, logs := observer.New(zapcore.ErrorLevel)

	logger, _, err := New(Options{
		Level:    "info",
		Format:   "json",
		Output:   "stderr",
		FilePath: path,
		Tee:      []zapcore.Core{teed},
	})
	require.NoError(t, err)

	logger.Info("sidecar spawned", zap.Int("pid", 42))
	logger.Error("sidecar crashed", zap.Int("code", 3))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"sidecar spawned"`)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "sidecar crashed", entry.Message)
	assert.Equal(t, int64(3), entry.ContextMap()["code"])
}

type handle struct {
	logger *zap.Logger
}

func (h handle) Logger() *zap.Logger    { return h.logger }
func (h handle) Config() *config.Config { return config.Default() }
func (h handle) State() *config.State   { return config.NewState("") }
func (h handle) Emit(string, any)       {}

func TestPluginRaisesAndRestoresLevel(t *testing.T) {
	level := zap.NewAtomicLevelAt(zapcore.WarnLevel)
	core, logs := observer.New(level)
	p := NewPlugin(level, zapcore.InfoLevel)

	require.NoError(t, p.Initialize(context.Background(), handle{logger: zap.New(core)}))
	assert.Equal(t, zapcore.InfoLevel, level.Level())
	assert.Equal(t, 1, logs.FilterMessage("Log plugin enabled").Len())

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	assert.Equal(t, PluginName, p.Name())
}

func TestLeveledRoutesToZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLeveled(zap.New(core))

	l.Error("request failed", "url", "http://127.0.0.1:8000/health")
	l.Warn("slow")
	l.Info("performing request")
	l.Debug("retrying")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "http://127.0.0.1:8000/health", entries[0].ContextMap()["url"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
}
