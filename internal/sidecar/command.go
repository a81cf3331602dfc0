package sidecar

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

const (
	eventBuffer  = 64
	maxLineBytes = 1024 * 1024
)

type EventKind int

const (
	EventStdout EventKind = iota
	EventStderr
	EventError
	EventTerminated
)

func (k EventKind) String() string {
	switch k {
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventError:
		return "error"
	case EventTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// CommandEvent is one message on the channel returned by Spawn. The channel
// is closed after the EventTerminated event.
type CommandEvent struct {
	Kind   EventKind
	Line   string
	Err    error
	Code   int
	Signal string
}

// Command describes a process to spawn.
type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string

	onSpawn func(*Child)
}

func NewCommand(path string) *Command {
	return &Command{Path: path}
}

func (c *Command) WithArgs(args ...string) *Command {
	c.Args = append(c.Args, args...)
	return c
}

func (c *Command) WithEnv(key, value string) *Command {
	c.Env = append(c.Env, key+"="+value)
	return c
}

// Spawn starts the process. The caller owns both returned values and must
// drain the event channel; unread output eventually blocks the child.
func (c *Command) Spawn() (<-chan CommandEvent, *Child, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Dir = c.Dir
	configureProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start %s: %w", c.Path, err)
	}

	child := newChild(cmd, stdin)
	events := make(chan CommandEvent, eventBuffer)

	var readers sync.WaitGroup
	readers.Add(2)
	go scanLines(stdout, EventStdout, events, &readers)
	go scanLines(stderr, EventStderr, events, &readers)

	go func() {
		readers.Wait()
		waitErr := cmd.Wait()
		child.finish(cmd.ProcessState)

		if waitErr != nil && cmd.ProcessState == nil {
			events <- CommandEvent{Kind: EventError, Err: waitErr}
		}
		code, signal := exitStatus(cmd.ProcessState)
		events <- CommandEvent{Kind: EventTerminated, Code: code, Signal: signal}
		close(events)
	}()

	if c.onSpawn != nil {
		c.onSpawn(child)
	}

	return events, child, nil
}

func scanLines(r io.Reader, kind EventKind, events chan<- CommandEvent, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		events <- CommandEvent{Kind: kind, Line: scanner.Text()}
	}
	if err := scanner.Err(); err != nil {
		events <- CommandEvent{Kind: EventError, Err: fmt.Errorf("read %s: %w", kind, err)}
		// keep draining so the child never blocks on a full pipe
		_, _ = io.Copy(io.Discard, r)
	}
}

func exitStatus(state *os.ProcessState) (int, string) {
	if state == nil {
		return -1, ""
	}
	return state.ExitCode(), exitSignal(state)
}
