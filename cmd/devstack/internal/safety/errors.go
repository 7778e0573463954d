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
	"strings"
)

// Sentinel errors for the safety framework.
var (
	// Facade errors
	ErrEmptyKey        = errors.New("operation key must not be empty")
	ErrNilAction       = errors.New("operation action must not be nil")
	ErrInvalidMetadata = errors.New("invalid operation metadata")

	// Registry errors
	ErrOperationInProgress = errors.New("operation already in progress")

	// Executor errors
	ErrActionTimeout = errors.New("action timed out")

	// Lock errors
	ErrLockHeld          = errors.New("another devstack process holds the safety lock")
	ErrLockAcquireFailed = errors.New("failed to acquire safety lock")

	// Store errors
	ErrArchiveCorrupted = errors.New("operation archive is corrupted")
	ErrVersionMismatch  = errors.New("operation archive version mismatch")
)

// BackupError reports a failed snapshot of a declared target path.
//
// # Description
//
// Returned when snapshotting any declared path fails. Snapshots fail
// closed: the wrapped action never ran, nothing was mutated, and no
// rollback is needed.
type BackupError struct {
	// Key is the operation the snapshot belonged to ("" for one-off backups).
	Key string

	// Path is the target that could not be snapshotted.
	Path string

	// Err is the underlying filesystem error.
	Err error
}

// Error implements the error interface.
func (e *BackupError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("backup failed for %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("operation %s: backup failed for %s: %v", e.Key, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackupError) Unwrap() error {
	return e.Err
}

// ActionError reports a failed or timed-out action.
//
// # Description
//
// Wraps the error produced by the caller-supplied action. TimedOut
// distinguishes a deadline expiry from an ordinary failure; both are
// treated identically for rollback purposes.
//
// # Example
//
//	var actionErr *safety.ActionError
//	if errors.As(err, &actionErr) && actionErr.TimedOut {
//	    fmt.Println("consider raising Metadata.Timeout")
//	}
type ActionError struct {
	// Key is the operation whose action failed.
	Key string

	// TimedOut is true when the action exceeded its deadline.
	TimedOut bool

	// RolledBack is true when all protected paths were restored.
	RolledBack bool

	// Err is the underlying action error (ErrActionTimeout on timeout).
	Err error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	verb := "failed"
	if e.TimedOut {
		verb = "timed out"
	}
	if e.RolledBack {
		return fmt.Sprintf("operation %s %s (all targets restored): %v", e.Key, verb, e.Err)
	}
	return fmt.Sprintf("operation %s %s: %v", e.Key, verb, e.Err)
}

// Unwrap returns the underlying error.
func (e *ActionError) Unwrap() error {
	return e.Err
}

// RollbackPartialError reports protected paths that could not be restored.
//
// # Description
//
// Raised after a failed action when one or more restores also failed.
// The named paths are in an unknown state and require manual operator
// attention. This condition is never collapsed into a generic failure.
type RollbackPartialError struct {
	// Key is the operation whose rollback was incomplete.
	Key string

	// FailedPaths lists the targets that could not be restored.
	FailedPaths []string

	// Err is the original action error that triggered the rollback.
	Err error
}

// Error implements the error interface.
func (e *RollbackPartialError) Error() string {
	return fmt.Sprintf("operation %s: rollback incomplete, manual attention required for: %s (action error: %v)",
		e.Key, strings.Join(e.FailedPaths, ", "), e.Err)
}

// Unwrap returns the original action error.
func (e *RollbackPartialError) Unwrap() error {
	return e.Err
}

// StoreError wraps operation-archive failures with the failing operation name.
type StoreError struct {
	Op  string // Operation that failed (e.g. "load", "save")
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("operation archive %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}
