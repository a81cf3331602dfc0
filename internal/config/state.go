package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// State is the launcher's runtime state, persisted between runs.
type State struct {
	mu       sync.RWMutex
	filePath string

	Sidecar  SidecarState  `yaml:"sidecar"`
	Updater  UpdaterState  `yaml:"updater"`
	DeepLink DeepLinkState `yaml:"deep_link"`
}

// SidecarState records the sidecar spawned by the current (or a crashed) run.
type SidecarState struct {
	PID        int       `yaml:"pid,omitempty"`
	Executable string    `yaml:"executable,omitempty"`
	StartedAt  time.Time `yaml:"started_at,omitempty"`
}

type UpdaterState struct {
	LastCheck     time.Time `yaml:"last_check,omitempty"`
	LatestVersion string    `yaml:"latest_version,omitempty"`
}

type DeepLinkState struct {
	LastURL    string    `yaml:"last_url,omitempty"`
	ReceivedAt time.Time `yaml:"received_at,omitempty"`
}

// NewState creates an empty state bound to filePath. An empty path keeps the
// state in memory only.
func NewState(filePath string) *State {
	return &State{filePath: filePath}
}

// LoadState loads the state file. A missing file yields an empty state.
func LoadState(filePath string) (*State, error) {
	s := NewState(filePath)
	if filePath == "" {
		return s, nil
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}

	return s, nil
}

// Path returns the file the state is saved to.
func (s *State) Path() string {
	return s.filePath
}

// Save writes the state atomically (temp file + rename).
func (s *State) Save() error {
	if s.filePath == "" {
		return nil
	}

	s.mu.RLock()
	data, err := yaml.Marshal(s)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.yml")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.filePath); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

// RecordSidecar remembers the running sidecar so a later run can reap it.
func (s *State) RecordSidecar(pid int, executable string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Sidecar = SidecarState{
		PID:        pid,
		Executable: executable,
		StartedAt:  time.Now().UTC(),
	}
}

// ClearSidecar forgets the sidecar, but only if pid still matches.
func (s *State) ClearSidecar(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Sidecar.PID == pid {
		s.Sidecar = SidecarState{}
	}
}

func (s *State) SidecarSnapshot() SidecarState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.Sidecar
}

func (s *State) RecordUpdateCheck(latest string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Updater.LastCheck = time.Now().UTC()
	if latest != "" {
		s.Updater.LatestVersion = latest
	}
}

func (s *State) UpdaterSnapshot() UpdaterState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.Updater
}

func (s *State) RecordDeepLink(rawURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.DeepLink = DeepLinkState{
		LastURL:    rawURL,
		ReceivedAt: time.Now().UTC(),
	}
}

func (s *State) DeepLinkSnapshot() DeepLinkState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.DeepLink
}
