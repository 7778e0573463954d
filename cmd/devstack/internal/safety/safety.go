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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Configuration
// =============================================================================

// Config configures the safety framework.
//
// # Example
//
//	config := safety.Config{
//	    Home:           "~/.devstack/safety",
//	    DefaultTimeout: 30 * time.Minute,
//	}
type Config struct {
	// Home is the root directory for the backup store, operation
	// archive, audit trail, and process lock. Supports ~ expansion.
	// Required.
	Home string

	// DefaultTimeout bounds actions that don't override their deadline.
	// Default: DefaultActionTimeout (30 minutes)
	DefaultTimeout time.Duration

	// KeepPerKey is the snapshot retention count per operation key.
	// Default: 5
	KeepPerKey int

	// Logger receives framework lifecycle logs.
	// Default: slog.Default()
	Logger *slog.Logger
}

// =============================================================================
// Framework
// =============================================================================

// Framework is the single entry point every tool manager calls before
// mutating host state.
//
// # Description
//
// Execute composes the registry (duplicate/replay gate), backup manager
// (snapshot declared targets), executor (deadline boundary), rollback
// coordinator (LIFO restore on failure), and audit logger (lifecycle
// trail). There is no global singleton: construct one Framework from
// Config and inject it into each manager.
//
// # Thread Safety
//
// Framework is safe for concurrent use across distinct operation keys.
// No internal lock is held while an action runs; only the per-key
// in-flight marker persists for the action's duration.
type Framework struct {
	config   Config
	registry *Registry
	backups  BackupManager
	executor *Executor
	rollback *RollbackCoordinator
	audit    AuditLogger
	store    *OperationStore
	lock     *HomeLock
	logger   *slog.Logger
	validate *validator.Validate
}

// New constructs a Framework rooted at config.Home.
//
// # Description
//
// Creates the home directory, takes the cross-process lock (recovering
// a stale lock left by a crashed process), loads the operation archive,
// and opens the audit trail. The returned framework must be closed with
// Close to release the lock and flush the trail.
//
// # Inputs
//
//   - config: Framework configuration; Home is required
//
// # Outputs
//
//   - *Framework: Ready framework
//   - error: ErrLockHeld if another devstack process owns the home,
//     or any store/audit initialization failure
func New(config Config) (*Framework, error) {
	if config.Home == "" {
		return nil, fmt.Errorf("safety home must not be empty")
	}
	config.Home = expandPath(config.Home)
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultActionTimeout
	}
	if config.KeepPerKey <= 0 {
		config.KeepPerKey = 5
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	if err := os.MkdirAll(config.Home, 0o750); err != nil {
		return nil, fmt.Errorf("creating safety home: %w", err)
	}

	lock, err := NewHomeLock(config.Home)
	if err != nil {
		return nil, err
	}
	if err := lock.Acquire(); err != nil {
		if err == ErrLockHeld && lock.IsStale() {
			config.Logger.Warn("recovering stale safety lock", "holder_pid", lock.HolderPID())
			_ = lock.ForceRelease()
			err = lock.Acquire()
		}
		if err != nil {
			return nil, err
		}
	}

	store, err := NewOperationStore(filepath.Join(config.Home, "operations.json"))
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	audit, err := NewFileAuditLogger(filepath.Join(config.Home, "audit.log"))
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	backups, err := NewBackupManager(BackupConfig{
		StoreDir:   filepath.Join(config.Home, "backups"),
		KeepPerKey: config.KeepPerKey,
	})
	if err != nil {
		_ = audit.Close()
		_ = lock.Release()
		return nil, err
	}

	return &Framework{
		config:   config,
		registry: NewRegistry(store),
		backups:  backups,
		executor: NewExecutor(config.DefaultTimeout, config.Logger),
		rollback: NewRollbackCoordinator(backups, config.Logger),
		audit:    audit,
		store:    store,
		lock:     lock,
		logger:   config.Logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Close releases the process lock and closes the audit trail.
func (f *Framework) Close() error {
	auditErr := f.audit.Close()
	lockErr := f.lock.Release()
	if auditErr != nil {
		return auditErr
	}
	return lockErr
}

// =============================================================================
// Execute
// =============================================================================

// Execute runs a mutating action under the full safety lifecycle.
//
// # Description
//
// Sequence: admit via the registry (reject duplicate in-flight keys,
// short-circuit idempotent replays) → snapshot declared targets (fail
// closed) → run the action under its deadline → on failure restore the
// snapshots in LIFO order. Every transition lands in the audit trail,
// and the terminal operation is archived.
//
// # Inputs
//
//   - ctx: Cancellation boundary; a user interrupt rolls back like a failure
//   - key: Logical operation identity, e.g. "docker-daemon-config"
//   - md: Protection contract, validated here
//   - action: The opaque unit of work
//
// # Outputs
//
//   - *Operation: The terminal (or replayed) operation record
//   - error: nil on success or replay; ErrOperationInProgress,
//     *BackupError, *ActionError, or *RollbackPartialError otherwise
//
// # Error Conditions
//
//   - Same key already in flight (no queuing)
//   - Snapshot failure (action never ran, nothing mutated)
//   - Action failure or timeout, with rollback outcome attached
func (f *Framework) Execute(ctx context.Context, key string, md Metadata, action Action) (*Operation, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptyKey
	}
	if action == nil {
		return nil, ErrNilAction
	}
	if err := f.validate.Struct(md); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	begin, err := f.registry.Begin(key, md.Fingerprint(), md.Force)
	if err != nil {
		return nil, err
	}
	if !begin.Proceed {
		f.logger.Info("replaying cached result", "operation", key)
		return begin.Cached, nil
	}

	op := &Operation{
		ID:          uuid.NewString(),
		Key:         key,
		Metadata:    md,
		Fingerprint: md.Fingerprint(),
		Status:      StatusPending,
		StartedAt:   time.Now(),
	}

	// Pair every Begin with exactly one Complete, panic paths included.
	completed := false
	finish := func(status Status) {
		op.Status = status
		op.FinishedAt = time.Now()
		completed = true
		if err := f.registry.Complete(op); err != nil {
			f.logger.Error("archiving operation failed", "operation", key, "error", err)
		}
	}
	defer func() {
		if !completed {
			op.Error = "aborted before reaching a terminal state"
			finish(StatusFailed)
		}
	}()

	f.auditEvent(key, EventStart, "operation "+op.ID)

	if md.BackupRequested {
		op.Status = StatusBackingUp
		records, err := f.backups.Snapshot(key, md.TargetPaths)
		if err != nil {
			// Fail closed: no safety net, so the action never runs.
			op.Error = err.Error()
			f.auditEvent(key, EventActionFailed, "backup failed, action never ran: "+err.Error())
			finish(StatusFailed)
			return nil, err
		}
		op.Backups = records
		f.auditEvent(key, EventBackupTaken, fmt.Sprintf("%d targets snapshotted", len(records)))
	}

	op.Status = StatusExecuting
	value, actionErr := f.executor.Run(ctx, key, action, md.Timeout)
	if actionErr == nil {
		if value != nil {
			if data, err := json.Marshal(value); err == nil {
				op.Result = data
			} else {
				f.logger.Warn("action result not serializable", "operation", key, "error", err)
			}
		}
		f.auditEvent(key, EventActionSucceeded, "")
		finish(StatusSucceeded)
		return op, nil
	}

	timedOut := actionErr == ErrActionTimeout
	op.Error = actionErr.Error()
	f.auditEvent(key, EventActionFailed, actionErr.Error())

	if len(op.Backups) == 0 {
		// Nothing to restore; surface the bare action failure.
		finish(StatusFailed)
		return nil, &ActionError{Key: key, TimedOut: timedOut, Err: actionErr}
	}

	op.Status = StatusRollingBack
	f.auditEvent(key, EventRollbackStarted, fmt.Sprintf("restoring %d targets", len(op.Backups)))
	result := f.rollback.Rollback(op)

	if result.Status == StatusRollbackPartial {
		op.UnrestoredPaths = result.FailedPaths
		f.auditEvent(key, EventRollbackPartial, strings.Join(result.FailedPaths, ", "))
		finish(StatusRollbackPartial)
		return nil, &RollbackPartialError{Key: key, FailedPaths: result.FailedPaths, Err: actionErr}
	}

	f.auditEvent(key, EventRollbackDone, "")
	finish(StatusRolledBack)
	return nil, &ActionError{Key: key, TimedOut: timedOut, RolledBack: true, Err: actionErr}
}

// =============================================================================
// Secondary Interfaces
// =============================================================================

// CreateBackup takes a one-off named backup of a single path, bypassing
// the operation lifecycle. Used by collaborators that want a snapshot
// without rollback semantics.
func (f *Framework) CreateBackup(name string, path string) (BackupRecord, error) {
	return f.backups.CreateBackup(name, path)
}

// Operations returns the archived terminal operations, sorted by key.
func (f *Framework) Operations() []*Operation {
	return f.store.All()
}

// AuditTrail returns the audit entries for a key ("" for all keys).
func (f *Framework) AuditTrail(key string) ([]AuditEntry, error) {
	return f.audit.Entries(key)
}

// PruneBackups removes snapshot sets older than maxAge, respecting the
// per-key retention minimum.
func (f *Framework) PruneBackups(maxAge time.Duration) (int, error) {
	return f.backups.Prune(maxAge)
}

// BackupCounts returns the number of stored snapshot sets per key.
func (f *Framework) BackupCounts() (map[string]int, error) {
	mgr, ok := f.backups.(*DefaultBackupManager)
	if !ok {
		return nil, fmt.Errorf("backup manager does not expose set counts")
	}
	return mgr.SnapshotSets()
}

// auditEvent appends an entry, logging (but not failing on) trail errors.
// A mutation must not be blocked by a full disk under the audit file.
func (f *Framework) auditEvent(key string, event AuditEvent, detail string) {
	err := f.audit.Append(AuditEntry{
		OperationKey: key,
		Timestamp:    time.Now(),
		Event:        event,
		Detail:       detail,
	})
	if err != nil {
		f.logger.Error("audit append failed", "operation", key, "event", event, "error", err)
	}
}

// =============================================================================
// Result Decoding
// =============================================================================

// DecodeResult unmarshals an operation's cached result into T.
//
// # Example
//
//	op, err := fw.Execute(ctx, key, md, action)
//	if err != nil {
//	    return err
//	}
//	paths, err := safety.DecodeResult[[]string](op)
func DecodeResult[T any](op *Operation) (T, error) {
	var out T
	if len(op.Result) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(op.Result, &out); err != nil {
		return out, fmt.Errorf("decoding result for %s: %w", op.Key, err)
	}
	return out, nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
