package deeplink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrAlreadyRunning = errors.New("another instance is running")

const (
	lockFileName   = "instance.lock"
	socketFileName = "instance.sock"
	forwardTimeout = 2 * time.Second
)

// LockInfo is written into the lock file by the primary instance.
type LockInfo struct {
	LockedBy string    `json:"locked_by"`
	LockedAt time.Time `json:"locked_at"`
	PID      int       `json:"pid"`
	Socket   string    `json:"socket"`
}

// Instance guards against a second launcher process. The primary holds an
// advisory lock and listens on a unix socket; later processes forward their
// deep links over it and exit.
type Instance struct {
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	file     *os.File
	listener net.Listener
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewInstance(dir string, logger *zap.Logger) *Instance {
	return &Instance{dir: dir, logger: logger}
}

func (i *Instance) LockPath() string   { return filepath.Join(i.dir, lockFileName) }
func (i *Instance) SocketPath() string { return filepath.Join(i.dir, socketFileName) }

// Acquire takes the instance lock. It returns ErrAlreadyRunning when another
// process holds it.
func (i *Instance) Acquire() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.file != nil {
		return nil
	}
	if err := os.MkdirAll(i.dir, 0700); err != nil {
		return fmt.Errorf("create runtime directory: %w", err)
	}

	file, err := os.OpenFile(i.LockPath(), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := tryLock(file); err != nil {
		file.Close()
		return err
	}
	i.file = file

	if err := i.writeLockInfo(); err != nil {
		i.logger.Warn("Failed to write lock info", zap.Error(err))
	}
	return nil
}

func (i *Instance) writeLockInfo() error {
	if err := i.file.Truncate(0); err != nil {
		return err
	}
	if _, err := i.file.Seek(0, 0); err != nil {
		return err
	}

	encoder := json.NewEncoder(i.file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(LockInfo{
		LockedBy: "soulsense",
		LockedAt: time.Now(),
		PID:      os.Getpid(),
		Socket:   i.SocketPath(),
	}); err != nil {
		return err
	}
	return i.file.Sync()
}

// ReadLockInfo returns what the primary wrote into the lock file.
func (i *Instance) ReadLockInfo() (LockInfo, error) {
	var info LockInfo
	data, err := os.ReadFile(i.LockPath())
	if err != nil {
		return info, err
	}
	err = json.Unmarshal(data, &info)
	return info, err
}

// Listen accepts forwarded links until ctx is done. Each line received is
// passed to submit.
func (i *Instance) Listen(ctx context.Context, submit func(raw string)) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.file == nil {
		return fmt.Errorf("instance lock not held")
	}
	if i.listener != nil {
		return nil
	}

	// only the lock holder reaches here, so a leftover socket is stale
	_ = os.Remove(i.SocketPath())
	ln, err := net.Listen("unix", i.SocketPath())
	if err != nil {
		return fmt.Errorf("listen on instance socket: %w", err)
	}
	i.listener = ln
	stop := make(chan struct{})
	i.stop = stop

	i.wg.Add(2)
	go func() {
		defer i.wg.Done()
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
	}()
	go func() {
		defer i.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					i.logger.Warn("Instance socket accept failed", zap.Error(err))
				}
				return
			}
			i.serve(conn, submit)
		}
	}()
	return nil
}

func (i *Instance) serve(conn net.Conn, submit func(string)) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(forwardTimeout))

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			submit(line)
		}
	}
	if err := scanner.Err(); err != nil {
		i.logger.Debug("Forwarded link read ended", zap.Error(err))
	}
}

// Forward sends links to the primary instance.
func (i *Instance) Forward(links []string) error {
	conn, err := net.DialTimeout("unix", i.SocketPath(), forwardTimeout)
	if err != nil {
		return fmt.Errorf("connect to running instance: %w", err)
	}
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(forwardTimeout))

	w := bufio.NewWriter(conn)
	for _, link := range links {
		if _, err := w.WriteString(link + "\n"); err != nil {
			return fmt.Errorf("forward deep link: %w", err)
		}
	}
	return w.Flush()
}

// Release stops listening and drops the lock. The lock file is left in place.
func (i *Instance) Release() error {
	i.mu.Lock()
	file, stop := i.file, i.stop
	i.listener, i.file, i.stop = nil, nil, nil
	i.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	i.wg.Wait()

	if file == nil {
		return nil
	}
	_ = os.Remove(i.SocketPath())
	// the lock file stays: unlinking it would let a process that already
	// opened it lock an orphaned inode while a newcomer locks a fresh one
	_ = file.Truncate(0)
	if err := unlock(file); err != nil {
		file.Close()
		return fmt.Errorf("unlock: %w", err)
	}
	return file.Close()
}
