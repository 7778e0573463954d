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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHomeLockAcquireRelease(t *testing.T) {
	home := t.TempDir()

	lock, err := NewHomeLock(home)
	if err != nil {
		t.Fatal(err)
	}
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if pid := lock.HolderPID(); pid != os.Getpid() {
		t.Errorf("HolderPID = %d, want %d", pid, os.Getpid())
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}

	// Release is safe to call again.
	if err := lock.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestHomeLockExcludesSecondHolder(t *testing.T) {
	home := t.TempDir()

	first, err := NewHomeLock(home)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Acquire(); err != nil {
		t.Fatal(err)
	}
	defer first.Release()

	// A second lock over the same home maps to a distinct file
	// description, so flock excludes it even in-process.
	second, err := NewHomeLock(home)
	if err != nil {
		t.Fatal(err)
	}
	if err := second.Acquire(); !errors.Is(err, ErrLockHeld) {
		t.Errorf("second Acquire err = %v, want ErrLockHeld", err)
	}

	if err := first.Release(); err != nil {
		t.Fatal(err)
	}
	if err := second.Acquire(); err != nil {
		t.Errorf("Acquire after release: %v", err)
	}
	_ = second.Release()
}

func TestHomeLockStaleDetection(t *testing.T) {
	home := t.TempDir()
	lock, err := NewHomeLock(home)
	if err != nil {
		t.Fatal(err)
	}

	// No lock file at all: not stale.
	if lock.IsStale() {
		t.Error("missing lock file should not be stale")
	}

	// Fresh file naming a dead PID: stale.
	path := filepath.Join(home, LockFileName)
	content := fmt.Sprintf("pid=%d\ntime=%s\n", 999999, time.Now().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if !lock.IsStale() {
		t.Error("lock held by a dead process should be stale")
	}

	if err := lock.ForceRelease(); err != nil {
		t.Fatalf("ForceRelease: %v", err)
	}
	if err := lock.Acquire(); err != nil {
		t.Errorf("Acquire after ForceRelease: %v", err)
	}
	_ = lock.Release()
}

func TestHomeLockLiveHolderNeverStale(t *testing.T) {
	home := t.TempDir()
	lock, err := NewHomeLock(home)
	if err != nil {
		t.Fatal(err)
	}

	// A lock held by a live process stays valid regardless of file age:
	// an idle wizard may legitimately hold the home for hours.
	path := filepath.Join(home, LockFileName)
	content := fmt.Sprintf("pid=%d\n", os.Getpid())
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * StaleLockDuration)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	if lock.IsStale() {
		t.Error("aged lock with a live holder must not be stale")
	}
}

func TestHomeLockStaleByAgeWithoutHolderPID(t *testing.T) {
	home := t.TempDir()
	lock, err := NewHomeLock(home)
	if err != nil {
		t.Fatal(err)
	}

	// A crash between opening the lock file and writing the holder info
	// leaves an empty file; only then does the age heuristic apply.
	path := filepath.Join(home, LockFileName)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if lock.IsStale() {
		t.Error("fresh lock without holder info should not be stale yet")
	}

	old := time.Now().Add(-2 * StaleLockDuration)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	if !lock.IsStale() {
		t.Error("aged lock without holder info should be stale")
	}
}
