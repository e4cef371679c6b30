package statestore

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	rterrors "github.com/stratastor/smartmond/internal/errors"
	"github.com/stratastor/smartmond/internal/logging"
)

// DefaultSaveDelay is the debounce window between a dirty mark and the
// actual rewrite, so a burst of per-tick updates across many devices
// coalesces into one write per device.
const DefaultSaveDelay = 2 * time.Second

var unsafeFilenameChar = regexp.MustCompile(`[^A-Za-z0-9]`)

// SafeFilenamePart replaces every non-alphanumeric character with "_",
// per §6's "safe-filename substitution" rule for model/serial strings.
func SafeFilenamePart(s string) string {
	return unsafeFilenameChar.ReplaceAllString(s, "_")
}

// Manager owns one device's state file: loading it at probe time,
// rewriting it atomically when dirty, and debouncing bursts of writes.
type Manager struct {
	log       logging.Logger
	statePath string

	mu          sync.RWMutex
	state       *DeviceState
	saveTimer   *time.Timer
	saveDelay   time.Duration
}

// NewManager creates a Manager bound to statePath, with a fresh
// in-memory DeviceState. Call Load to seed it from disk.
func NewManager(log logging.Logger, statePath string) *Manager {
	return &Manager{
		log:       log,
		statePath: statePath,
		state:     NewDeviceState(),
		saveDelay: DefaultSaveDelay,
	}
}

// Load reads the state file if present, tolerantly parsing it into the
// persistent half of the device state. A missing file is not an error --
// the device is simply new.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Open(m.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return rterrors.Wrap(err, rterrors.StateLoadFailed).WithMetadata("path", m.statePath)
	}
	defer f.Close()

	persistent, err := decode(f)
	if err != nil {
		m.log.Warn("state file unreadable, starting fresh", "path", m.statePath, "error", err)
		return nil
	}
	m.state.Persistent = persistent
	return nil
}

// WithLock runs fn with the state mutex held for writing, and marks the
// state dirty so the next Save (or debounced save) picks up the change.
func (m *Manager) WithLock(fn func(*DeviceState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
	m.state.Transient.MustWriteDirty = true
}

// WithRLock runs fn with the state mutex held for reading only.
func (m *Manager) WithRLock(fn func(*DeviceState)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.state)
}

// SaveDebounced schedules a rewrite after the debounce delay, coalescing
// repeated dirty marks within the window into a single write.
func (m *Manager) SaveDebounced() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.saveTimer = time.AfterFunc(m.saveDelay, func() {
		if err := m.Save(); err != nil {
			m.log.Error("failed to save device state", "path", m.statePath, "error", err)
		}
	})
}

// Save rewrites the state file immediately if the state is dirty. The
// dirty bit is cleared only on a successful write, per §4.3's failure
// semantics: "the dirty bit is not cleared so the next tick retries" --
// this is deliberately tighter than renaming-and-clearing unconditionally.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Transient.MustWriteDirty {
		return nil
	}

	if err := m.rewriteUnlocked(); err != nil {
		return err
	}
	m.state.Transient.MustWriteDirty = false
	return nil
}

// rewriteUnlocked performs the backup-by-rename-then-write sequence.
// Caller must hold m.mu.
func (m *Manager) rewriteUnlocked() error {
	if err := os.MkdirAll(filepath.Dir(m.statePath), 0755); err != nil {
		return rterrors.Wrap(err, rterrors.StateSaveFailed).WithMetadata("path", m.statePath)
	}

	if _, err := os.Stat(m.statePath); err == nil {
		backupPath := m.statePath + "~"
		if err := os.Rename(m.statePath, backupPath); err != nil {
			m.log.Warn("failed to back up state file before rewrite", "path", m.statePath, "error", err)
		}
	}

	data := encode(m.state.Persistent)
	tmpPath := m.statePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return rterrors.Wrap(err, rterrors.StateSaveFailed).WithMetadata("path", tmpPath)
	}
	if err := os.Rename(tmpPath, m.statePath); err != nil {
		os.Remove(tmpPath)
		return rterrors.Wrap(err, rterrors.StateSaveFailed).WithMetadata("path", m.statePath)
	}
	return nil
}

// Get returns the live DeviceState pointer for transport-specific
// checkers that need sustained access across a tick; callers must still
// go through WithLock/WithRLock for the actual read/write.
func (m *Manager) Get() *DeviceState {
	return m.state
}
