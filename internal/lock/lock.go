// Package lock keeps two mutating commands from touching the stores at once.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/scorecast/scorecast/internal/config"
)

const DefaultPath = "~/.scorecast/scorecast.lock"

// HeldError is returned when another live process owns the lock.
type HeldError struct {
	PID       int
	Operation string
}

func (e *HeldError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("another scorecast %s is running (PID %d)", e.Operation, e.PID)
	}
	return fmt.Sprintf("another scorecast instance is running (PID %d)", e.PID)
}

// Acquire creates the lock file holding the current PID and operation name.
// A lock left by a dead process is taken over.
func Acquire(path, operation string) error {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	if pid, op, err := read(path); err == nil && pid != os.Getpid() && isProcessRunning(pid) {
		return &HeldError{PID: pid, Operation: op}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}
	content := strconv.Itoa(os.Getpid()) + "\n" + operation + "\n"
	return os.WriteFile(path, []byte(content), 0o644)
}

// Release removes the lock file.
func Release(path string) error {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsHeld checks if the lock is currently held by a running process.
func IsHeld(path string) (bool, int, error) {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}
	pid, _, err := read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, err
	}
	if pid == 0 {
		return false, 0, nil
	}
	return isProcessRunning(pid), pid, nil
}

func read(path string) (int, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", err
	}
	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, "", nil
	}
	op := ""
	if len(lines) > 1 {
		op = strings.TrimSpace(lines[1])
	}
	return pid, op, nil
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
