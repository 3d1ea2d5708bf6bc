// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

var (
	// ErrPIDFileExists is returned when trying to create a PID file that already exists.
	ErrPIDFileExists = errors.New("PID file already exists")

	// ErrPIDFileLocked is returned when another process holds the PID file lock.
	ErrPIDFileLocked = errors.New("PID file is locked by another process")

	// ErrInvalidPID is returned when the PID file contains invalid data.
	ErrInvalidPID = errors.New("invalid PID in file")

	// ErrUnsafeDirectory is returned when the PID file parent is world-writable.
	ErrUnsafeDirectory = errors.New("PID file directory is world-writable")
)

// PIDFileManager guards the single running procd instance for a given PID
// file path. Unlike a one-shot daemon's PID file, procd's is what init
// scripts and operators consult to decide whether a procd is already
// supervising this host's services, so a stale file left behind by a
// crash is worse than none at all: Create reclaims a file naming a pid
// that is no longer alive instead of refusing to start next to it.
type PIDFileManager struct {
	path     string
	lockFile *os.File
}

// NewPIDFileManager creates a new PID file manager for the given path.
func NewPIDFileManager(path string) *PIDFileManager {
	return &PIDFileManager{
		path: path,
	}
}

// Create claims path for pid, stamping bootID alongside it so a later
// Read can tell which boot the file belongs to without cross-referencing
// the state file. It uses exclusive file locking (flock) and atomic
// creation (O_EXCL) so two supervisors can never both believe they hold
// the claim.
func (m *PIDFileManager) Create(pid int, bootID string) error {
	parentDir := filepath.Dir(m.path)
	if err := m.verifyDirectorySafety(parentDir); err != nil {
		return fmt.Errorf("unsafe PID file location: %w", err)
	}

	if err := os.MkdirAll(parentDir, 0700); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	f, err := m.createExclusive()
	if err != nil {
		if !errors.Is(err, ErrPIDFileExists) || !m.reclaimStale() {
			return err
		}
		f, err = m.createExclusive()
		if err != nil {
			return err
		}
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		os.Remove(m.path)
		if err == syscall.EWOULDBLOCK {
			return ErrPIDFileLocked
		}
		return fmt.Errorf("failed to lock PID file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n%s\n", pid, bootID); err != nil {
		f.Close()
		os.Remove(m.path)
		return fmt.Errorf("failed to write PID: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(m.path)
		return fmt.Errorf("failed to sync PID file: %w", err)
	}

	// Keep the file open for the life of the process; closing it releases the lock.
	m.lockFile = f
	return nil
}

// createExclusive opens path with O_EXCL, which prevents symlink attacks
// and races with a concurrent supervisor claiming the same file.
func (m *PIDFileManager) createExclusive() (*os.File, error) {
	f, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrPIDFileExists
		}
		return nil, fmt.Errorf("failed to create PID file: %w", err)
	}
	return f, nil
}

// reclaimStale removes path if the pid recorded in it no longer names a
// live process, and reports whether it did so. A pid this process cannot
// signal for some other reason is left alone: Create should fail rather
// than clobber an instance it merely lacks the rights to probe.
func (m *PIDFileManager) reclaimStale() bool {
	pid, _, err := m.Read()
	if err != nil {
		return false
	}
	if err := syscall.Kill(pid, 0); !errors.Is(err, syscall.ESRCH) {
		return false
	}
	return os.Remove(m.path) == nil
}

// Read returns the pid and boot id last written to the file by Create.
// Returns ErrInvalidPID if the file's first line isn't a positive pid.
func (m *PIDFileManager) Read() (pid int, bootID string, err error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, "", err
		}
		return 0, "", fmt.Errorf("failed to read PID file: %w", err)
	}

	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	pid, convErr := strconv.Atoi(strings.TrimSpace(lines[0]))
	if convErr != nil {
		return 0, "", fmt.Errorf("%w: %s", ErrInvalidPID, lines[0])
	}
	if pid <= 0 {
		return 0, "", fmt.Errorf("%w: PID must be positive, got %d", ErrInvalidPID, pid)
	}
	if len(lines) > 1 {
		bootID = strings.TrimSpace(lines[1])
	}
	return pid, bootID, nil
}

// Remove deletes the PID file and releases the lock.
func (m *PIDFileManager) Remove() error {
	if m.lockFile != nil {
		syscall.Flock(int(m.lockFile.Fd()), syscall.LOCK_UN)
		m.lockFile.Close()
		m.lockFile = nil
	}

	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	return nil
}

// Exists returns true if the PID file exists.
func (m *PIDFileManager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// verifyDirectorySafety checks that the directory is not world-writable,
// which would let an unprivileged user plant a symlink for us to follow.
func (m *PIDFileManager) verifyDirectorySafety(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	mode := info.Mode()
	if mode&0002 != 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrUnsafeDirectory, dir, mode&os.ModePerm)
	}

	return nil
}
