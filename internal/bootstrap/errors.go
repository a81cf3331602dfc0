package bootstrap

import "fmt"

// SetupError aborts startup before the host runs: a plugin failed to
// register or initialize, or a setup callback failed.
type SetupError struct {
	Plugin string
	Err    error
}

func (e *SetupError) Error() string {
	if e.Plugin != "" {
		return fmt.Sprintf("setup failed: plugin %q: %v", e.Plugin, e.Err)
	}
	return fmt.Sprintf("setup failed: %v", e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

type FatalKind string

const (
	FatalSidecar FatalKind = "sidecar"
	FatalRun     FatalKind = "run"
)

// FatalError is an unrecoverable startup failure: the sidecar could not be
// spawned or the host run loop failed.
type FatalError struct {
	Kind    FatalKind
	Sidecar string
	Err     error
}

func (e *FatalError) Error() string {
	switch e.Kind {
	case FatalSidecar:
		return fmt.Sprintf("failed to spawn sidecar %q: %v", e.Sidecar, e.Err)
	case FatalRun:
		return fmt.Sprintf("error while running application: %v", e.Err)
	}
	return fmt.Sprintf("fatal %s error: %v", e.Kind, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
