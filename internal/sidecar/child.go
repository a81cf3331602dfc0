package sidecar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

var ErrExited = errors.New("sidecar process has exited")

// Child is the handle to a spawned process.
type Child struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}

	mu    sync.Mutex
	state *os.ProcessState
}

func newChild(cmd *exec.Cmd, stdin io.WriteCloser) *Child {
	return &Child{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}
}

func (c *Child) finish(state *os.ProcessState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.stdin.Close()
	close(c.done)
}

func (c *Child) PID() int {
	return c.cmd.Process.Pid
}

// Path returns the executable the child was started from.
func (c *Child) Path() string {
	return c.cmd.Path
}

// Done is closed once the process has exited and its output is drained.
func (c *Child) Done() <-chan struct{} {
	return c.done
}

func (c *Child) Exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code, or -1 while running or when killed by a signal.
func (c *Child) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == nil {
		return -1
	}
	return c.state.ExitCode()
}

// Write sends p to the child's stdin.
func (c *Child) Write(p []byte) (int, error) {
	if c.Exited() {
		return 0, ErrExited
	}
	return c.stdin.Write(p)
}

// Kill forcibly stops the child and its process group.
func (c *Child) Kill() error {
	if c.Exited() {
		return nil
	}
	return killProcess(c.cmd.Process)
}

// Terminate asks the child to stop and kills it if it is still running after
// grace. It returns once the child has exited or ctx is done.
func (c *Child) Terminate(ctx context.Context, grace time.Duration) error {
	if c.Exited() {
		return nil
	}

	if err := terminateProcess(c.cmd.Process); err != nil {
		return fmt.Errorf("signal sidecar: %w", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		_ = c.Kill()
		return ctx.Err()
	case <-timer.C:
	}

	if err := c.Kill(); err != nil {
		return fmt.Errorf("kill sidecar: %w", err)
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
