// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// LockFileName is the advisory lock inside the safety home directory.
const LockFileName = ".lock"

// StaleLockDuration is the age after which a lock file with no
// readable holder PID is considered abandoned by a crashed process.
const StaleLockDuration = 1 * time.Hour

// HomeLock guards the safety home directory against a second devstack
// process.
//
// # Description
//
// The in-process registry rejects same-key concurrency, but nothing
// in-process stops a second CLI invocation from interleaving snapshot
// sets or archive writes in the same home. HomeLock closes that gap
// with a non-blocking flock(2) held for the framework's lifetime.
//
// # Thread Safety
//
// HomeLock is NOT safe for concurrent use. The framework owns one
// instance and acquires it exactly once.
//
// # Limitations
//
//   - Advisory only: other processes can ignore it.
//   - flock is per-filesystem; a home on NFS may not enforce it.
type HomeLock struct {
	path string
	file *os.File
}

// NewHomeLock creates a lock for the given safety home directory.
func NewHomeLock(home string) (*HomeLock, error) {
	if home == "" {
		return nil, fmt.Errorf("safety home must not be empty")
	}
	return &HomeLock{path: filepath.Join(home, LockFileName)}, nil
}

// Acquire takes the exclusive lock, non-blocking.
//
// # Description
//
// Creates the lock file if needed and attempts flock(LOCK_EX|LOCK_NB).
// If another process holds it, returns ErrLockHeld immediately; callers
// surface that to the user rather than waiting. The holder's PID and
// start time are written into the file for debugging.
func (l *HomeLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("%w: creating lock directory: %v", ErrLockAcquireFailed, err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening lock file: %v", ErrLockAcquireFailed, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if err == syscall.EWOULDBLOCK {
			return ErrLockHeld
		}
		return fmt.Errorf("%w: flock: %v", ErrLockAcquireFailed, err)
	}

	// Best-effort holder info for debugging; failures here don't matter.
	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	_, _ = fmt.Fprintf(file, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))

	l.file = file
	return nil
}

// Release drops the lock and removes the lock file. Safe to call twice
// or on an unacquired lock.
func (l *HomeLock) Release() error {
	if l.file == nil {
		return nil
	}

	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	_ = os.Remove(l.path)
	return err
}

// HolderPID returns the PID recorded in the lock file, or 0 if unknown.
func (l *HomeLock) HolderPID() int {
	content, err := os.ReadFile(l.path)
	if err != nil {
		return 0
	}
	var pid int
	if _, err := fmt.Sscanf(string(content), "pid=%d", &pid); err != nil {
		return 0
	}
	return pid
}

// IsStale reports whether the lock file looks abandoned.
//
// # Description
//
// Holder liveness decides: flock is released by the kernel when its
// holder dies, so a lock whose recorded PID is still running is never
// stale, no matter how long an idle wizard or a slow install has held
// it. The age heuristic applies only when no holder PID can be read
// from the file (crash between open and the info write). Stale
// detection is a recovery aid for crashed processes, not a correctness
// mechanism: another process can still grab the lock between IsStale
// and ForceRelease.
func (l *HomeLock) IsStale() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return false
	}

	if pid := l.HolderPID(); pid > 0 {
		process, err := os.FindProcess(pid)
		if err != nil {
			return true
		}
		if err := process.Signal(syscall.Signal(0)); err != nil {
			return true // Holder is gone
		}
		return false
	}

	// No readable holder PID; fall back to file age.
	return time.Since(info.ModTime()) > StaleLockDuration
}

// ForceRelease removes a stale lock file. Only call after IsStale.
func (l *HomeLock) ForceRelease() error {
	return os.Remove(l.path)
}
