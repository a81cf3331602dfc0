package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/soul-sense/desktop/pkg/schema"
)

type version string

func (v version) String() string { return string(v) + " available" }

func TestDescribe(t *testing.T) {
	tests := []struct {
		name  string
		ev    Event
		topic string
		text  string
	}{
		{"spawned", Event{EventSidecarSpawned, SidecarInfo{PID: 42}}, "sidecar", "Running (pid 42)"},
		{"ready", Event{EventSidecarReady, SidecarInfo{PID: 42}}, "sidecar", "Ready (pid 42)"},
		{"exit code", Event{EventSidecarTerminated, SidecarInfo{ExitCode: 3}}, "sidecar", "Exited (code 3)"},
		{"signal", Event{EventSidecarTerminated, SidecarInfo{ExitCode: -1, Signal: "SIGKILL"}}, "sidecar", "Stopped by SIGKILL"},
		{"output", Event{EventSidecarOutput, SidecarInfo{Line: "Uvicorn running"}}, "sidecar", "Uvicorn running"},
		{"deep link", Event{EventDeepLink, DeepLinkInfo{URL: "soulsense://auth/callback", Source: "argv"}}, "deep-link", "soulsense://auth/callback via argv"},
		{"update", Event{EventUpdateAvailable, version("2.0.0")}, "updater", "2.0.0 available"},
		{"ipc ack", Event{EventIPCMessage, schema.ServerMessage{Type: schema.MessageTypeAck, Action: "ping", Status: "received"}}, "ipc", "ack ping received"},
		{"ipc message", Event{EventIPCMessage, schema.ServerMessage{Type: schema.MessageTypeConnectionEstablished, Message: "Connected as a"}}, "ipc", "connection_established: Connected as a"},
		{"nil payload", Event{"custom://thing", nil}, "custom", "custom://thing"},
		{"other payload", Event{"custom://thing", 7}, "custom", "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic, text := Describe(tt.ev)
			assert.Equal(t, tt.topic, topic)
			assert.Equal(t, tt.text, text)
		})
	}
}

func TestHeadlessQuit(t *testing.T) {
	h := NewHeadless(zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background()) }()

	h.Quit()
	h.Quit()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("headless host did not stop")
	}
}

func TestHeadlessContextCancel(t *testing.T) {
	h := NewHeadless(zap.NewNop())
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errors.New("sidecar exited"))

	require.NoError(t, h.Run(ctx))
}

func TestHeadlessKeepsRecentEvents(t *testing.T) {
	h := NewHeadless(zap.NewNop())
	for i := 0; i < 100; i++ {
		h.Emit(Event{Name: EventSidecarOutput, Payload: SidecarInfo{Line: "line"}})
	}
	h.Emit(Event{Name: EventDeepLink})

	events := h.Events()
	assert.Len(t, events, 64)
	assert.Equal(t, EventDeepLink, events[len(events)-1].Name)
}
