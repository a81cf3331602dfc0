// Package host defines the surface the application runs in: a window when
// built with the gui tag, or a headless loop.
package host

import "context"

// Event names emitted to the host.
const (
	EventSidecarSpawned    = "sidecar://spawned"
	EventSidecarReady      = "sidecar://ready"
	EventSidecarUnready    = "sidecar://unready"
	EventSidecarOutput     = "sidecar://output"
	EventSidecarTerminated = "sidecar://terminated"
	EventDeepLink          = "deep-link://new-url"
	EventUpdateAvailable   = "updater://update-available"
	EventIPCMessage        = "ipc://message"
)

// Event is a named notification for the host.
type Event struct {
	Name    string
	Payload any
}

// Host runs the application's event loop.
type Host interface {
	// Run blocks until the host exits, Quit is called or ctx is done.
	Run(ctx context.Context) error
	Emit(Event)
	Quit()
}
