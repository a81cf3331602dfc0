package sidecar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soul-sense/desktop/internal/config"
)

// processExecutable reports the executable of a running pid. Only Linux
// exposes this without cgo; other platforms return an error.
var processExecutable = func(pid int) (string, error) {
	return os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
}

// deletedSuffix is appended by Linux to /proc/<pid>/exe once the binary was
// replaced or removed, as happens when an update swaps the sidecar.
const deletedSuffix = " (deleted)"

func sameExecutable(running, recorded string) bool {
	running = strings.TrimSuffix(running, deletedSuffix)
	return filepath.Clean(running) == filepath.Clean(recorded)
}

// ReapStale terminates a sidecar left running by a previous launcher run,
// as recorded in st. A PID is only signalled when it still runs the recorded
// executable, so a recycled PID is never touched.
func ReapStale(st *config.State, grace time.Duration, logger *zap.Logger) (bool, error) {
	prev := st.SidecarSnapshot()
	if prev.PID <= 0 || prev.PID == os.Getpid() {
		return false, nil
	}
	defer st.ClearSidecar(prev.PID)

	if !processAlive(prev.PID) {
		return false, nil
	}

	exe, err := processExecutable(prev.PID)
	if err != nil {
		logger.Debug("Cannot verify stale sidecar, leaving it alone",
			zap.Int("pid", prev.PID), zap.Error(err))
		return false, nil
	}
	if !sameExecutable(exe, prev.Executable) {
		return false, nil
	}

	logger.Warn("Terminating sidecar left by a previous run",
		zap.Int("pid", prev.PID),
		zap.String("executable", prev.Executable),
		zap.Time("started_at", prev.StartedAt))

	if err := terminatePID(prev.PID); err != nil {
		return false, fmt.Errorf("terminate stale sidecar %d: %w", prev.PID, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !processAlive(prev.PID) {
			return true, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := killPID(prev.PID); err != nil {
		return false, fmt.Errorf("kill stale sidecar %d: %w", prev.PID, err)
	}
	return true, nil
}
