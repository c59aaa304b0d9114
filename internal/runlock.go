package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	runLockDirName   = ".run.lock"
	runLockOwnerFile = "owner.json"
)

// RunLock is a mkdir-based single-flight guard. At most one pipeline run may
// be active at a time; overlapping invocations (e.g. cron firing while the
// previous run is still working) fail fast with ErrLocked instead of racing
// on the state store.
type RunLock struct {
	lockDir string
}

type runLockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireRunLock takes the lock under dataDir, recording the owning process
// for diagnostics. Returns ErrLocked when another process holds it.
func AcquireRunLock(dataDir string) (*RunLock, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	lockDir := filepath.Join(dataDir, runLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			ownerPath := filepath.Join(lockDir, runLockOwnerFile)
			var owner runLockOwner
			if raw, readErr := os.ReadFile(ownerPath); readErr == nil {
				if json.Unmarshal(raw, &owner) == nil && owner.PID > 0 {
					return nil, fmt.Errorf("%w (pid=%d created_at=%s host=%s)",
						ErrLocked, owner.PID, owner.CreatedAt, owner.Hostname)
				}
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}

	owner := runLockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	raw, err := json.Marshal(owner)
	if err == nil {
		err = os.WriteFile(filepath.Join(lockDir, runLockOwnerFile), raw, 0o644)
	}
	if err != nil {
		_ = os.Remove(lockDir)
		return nil, fmt.Errorf("writing run lock owner: %w", err)
	}
	return &RunLock{lockDir: lockDir}, nil
}

// Release frees the lock. Safe to call on a nil or already-released lock.
func (l *RunLock) Release() error {
	if l == nil || l.lockDir == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, runLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("releasing run lock: %w", err)
	}
	l.lockDir = ""
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}
