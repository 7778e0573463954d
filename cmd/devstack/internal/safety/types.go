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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"sort"
	"time"
)

// Status represents the lifecycle state of an Operation.
//
// Transitions are monotonic along the state machine:
//
//	PENDING → BACKING_UP → EXECUTING → SUCCEEDED
//	PENDING → BACKING_UP → EXECUTING → FAILED → ROLLING_BACK → ROLLED_BACK
//	                                                         → ROLLBACK_PARTIAL
//	PENDING → (backup failure) → FAILED
//
// SUCCEEDED, ROLLED_BACK, ROLLBACK_PARTIAL, and FAILED (the backup-failure
// case) are terminal.
type Status string

const (
	// StatusPending means the operation was admitted by the registry
	// but has not started work yet.
	StatusPending Status = "PENDING"

	// StatusBackingUp means declared targets are being snapshotted.
	StatusBackingUp Status = "BACKING_UP"

	// StatusExecuting means the caller-supplied action is running.
	StatusExecuting Status = "EXECUTING"

	// StatusSucceeded means the action completed; backups are retained.
	StatusSucceeded Status = "SUCCEEDED"

	// StatusFailed means the action failed, or a snapshot failed before
	// the action ran (in which case nothing was mutated).
	StatusFailed Status = "FAILED"

	// StatusRollingBack means snapshots are being restored.
	StatusRollingBack Status = "ROLLING_BACK"

	// StatusRolledBack means every protected target was restored.
	StatusRolledBack Status = "ROLLED_BACK"

	// StatusRollbackPartial means one or more targets could not be
	// restored and need manual attention.
	StatusRollbackPartial Status = "ROLLBACK_PARTIAL"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusRolledBack, StatusRollbackPartial:
		return true
	default:
		return false
	}
}

// Metadata declares how an operation should be protected.
//
// # Description
//
// Metadata is the typed contract between tool managers and the framework.
// It is validated at the Execute boundary; components never duck-type
// into it. Context carries free-form caller detail (tool name, version)
// that the framework records but does not interpret.
//
// # Example
//
//	md := safety.Metadata{
//	    BackupRequested: true,
//	    TargetPaths:     []string{"/etc/nginx/nginx.conf", "/etc/nginx/conf.d"},
//	    Context:         map[string]string{"tool": "nginx"},
//	}
type Metadata struct {
	// BackupRequested enables snapshot/rollback for TargetPaths.
	BackupRequested bool `json:"backup_requested" yaml:"backup_requested"`

	// TargetPaths lists the filesystem targets to protect. Required
	// when BackupRequested is true.
	TargetPaths []string `json:"target_paths,omitempty" yaml:"target_paths,omitempty" validate:"required_if=BackupRequested true,dive,required"`

	// Force bypasses idempotent replay and re-runs the action even if a
	// previous run with identical metadata succeeded.
	Force bool `json:"force,omitempty" yaml:"force,omitempty"`

	// Timeout overrides the framework's default action timeout.
	// Zero uses the default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Context carries opaque caller-defined detail. It participates in
	// the idempotency fingerprint but is otherwise uninterpreted.
	Context map[string]string `json:"context,omitempty" yaml:"context,omitempty"`
}

// Fingerprint returns a stable hash of the metadata fields that define
// operation identity for idempotent replay.
//
// # Description
//
// Force and Timeout are excluded: forcing a re-run or adjusting the
// deadline does not change what the operation does. Paths and context
// keys are sorted so the hash is order-independent.
func (m Metadata) Fingerprint() string {
	paths := append([]string(nil), m.TargetPaths...)
	sort.Strings(paths)

	ctxKeys := make([]string, 0, len(m.Context))
	for k := range m.Context {
		ctxKeys = append(ctxKeys, k)
	}
	sort.Strings(ctxKeys)

	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(m.BackupRequested)
	_ = enc.Encode(paths)
	for _, k := range ctxKeys {
		_ = enc.Encode(k)
		_ = enc.Encode(m.Context[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// BackupRecord describes one snapshot taken before mutation.
type BackupRecord struct {
	// Path is the original target.
	Path string `json:"path"`

	// ExistedBefore reports whether the target existed prior to mutation.
	// When false, rollback deletes the path instead of restoring content.
	ExistedBefore bool `json:"existed_before"`

	// SnapshotRef is an opaque handle to the stored copy inside the
	// backup store. Empty when ExistedBefore is false.
	SnapshotRef string `json:"snapshot_ref,omitempty"`

	// IsDir reports whether the target was a directory.
	IsDir bool `json:"is_dir,omitempty"`

	// Mode holds the original permission bits, restored on rollback.
	Mode fs.FileMode `json:"mode,omitempty"`

	// TakenAt is when the snapshot was taken.
	TakenAt time.Time `json:"taken_at"`
}

// RestoreOutcome reports the result of restoring a single BackupRecord.
type RestoreOutcome struct {
	// Path is the target that was restored (or deleted).
	Path string `json:"path"`

	// Err is non-nil if the restore failed. Restores are best-effort;
	// one failure does not stop the others.
	Err error `json:"-"`
}

// Operation is one tracked invocation of the framework.
//
// # Description
//
// Created when Execute is invoked, mutated only by the framework, and
// archived (never deleted) once it reaches a terminal status. Archived
// operations double as the idempotency cache and as audit artifacts.
type Operation struct {
	// ID uniquely identifies this invocation.
	ID string `json:"id"`

	// Key is the caller-chosen logical identity, e.g. "docker-daemon-config".
	Key string `json:"key"`

	// Metadata is the declarative protection contract for this run.
	Metadata Metadata `json:"metadata"`

	// Fingerprint is Metadata.Fingerprint(), cached for replay checks.
	Fingerprint string `json:"fingerprint"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// StartedAt and FinishedAt bound the operation's execution window.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// Backups lists snapshots taken for this operation, in the order
	// they were taken. Owned by the operation for rollback purposes;
	// content is physically stored by the BackupManager.
	Backups []BackupRecord `json:"backups,omitempty"`

	// Result holds the JSON-encoded value returned by a successful
	// action. Returned as-is on idempotent replay.
	Result json.RawMessage `json:"result,omitempty"`

	// Error holds the failure detail for FAILED, ROLLED_BACK, and
	// ROLLBACK_PARTIAL operations.
	Error string `json:"error,omitempty"`

	// UnrestoredPaths lists targets a partial rollback failed to restore.
	UnrestoredPaths []string `json:"unrestored_paths,omitempty"`
}

// Action is the opaque unit of work wrapped by the framework.
//
// The action may shell out, write files, or call external services; the
// framework observes only the returned value and error. Actions should
// respect ctx cancellation: on timeout the framework cancels ctx and
// reports ErrActionTimeout, best-effort.
type Action func(ctx context.Context) (any, error)
