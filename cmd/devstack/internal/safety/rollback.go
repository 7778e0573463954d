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
	"log/slog"
	"time"
)

// RollbackResult is the outcome of restoring an operation's backups.
type RollbackResult struct {
	// Status is StatusRolledBack when every restore succeeded,
	// StatusRollbackPartial otherwise.
	Status Status

	// FailedPaths lists targets that could not be restored, in the
	// order they were attempted.
	FailedPaths []string
}

// RollbackCoordinator drives backup restoration after a failed action.
//
// # Description
//
// Restores an operation's backups in reverse chronological (LIFO)
// order, approximating a single coarse undo of the whole action.
// Restoration is best-effort: an individual failure is recorded and the
// remaining restores still run, because a half-finished rollback that
// gave up early is strictly worse than one that restored everything it
// could.
//
// The ROLLED_BACK / ROLLBACK_PARTIAL distinction is always surfaced to
// the caller; it is never collapsed into a generic failure.
type RollbackCoordinator struct {
	backups BackupManager
	logger  *slog.Logger

	// timeout bounds the whole restore pass. The deadline is checked
	// between records; a single in-flight copy is not interrupted.
	timeout time.Duration
}

// NewRollbackCoordinator creates a coordinator over the backup manager.
func NewRollbackCoordinator(backups BackupManager, logger *slog.Logger) *RollbackCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RollbackCoordinator{
		backups: backups,
		logger:  logger,
		timeout: RestoreTimeout,
	}
}

// Rollback restores the operation's backups in LIFO order.
//
// # Description
//
// Invoked only when backups were requested and the action failed or
// timed out. Snapshots were taken oldest-first, so they are restored
// newest-first. The pass is bounded by RestoreTimeout; if the deadline
// expires, every record not yet attempted is reported unrestored and
// the status is ROLLBACK_PARTIAL, rather than hanging forever on a
// wedged filesystem.
//
// # Inputs
//
//   - op: The failed operation whose backups should be restored
//
// # Outputs
//
//   - RollbackResult: Final status and any unrestored paths
func (c *RollbackCoordinator) Rollback(op *Operation) RollbackResult {
	c.logger.Info("rolling back", "operation", op.Key, "backups", len(op.Backups))

	reversed := make([]BackupRecord, len(op.Backups))
	for i, rec := range op.Backups {
		reversed[len(op.Backups)-1-i] = rec
	}

	deadline := time.Now().Add(c.timeout)
	result := RollbackResult{Status: StatusRolledBack}
	for i := 0; i < len(reversed); i++ {
		if !time.Now().Before(deadline) {
			for _, rec := range reversed[i:] {
				result.FailedPaths = append(result.FailedPaths, rec.Path)
			}
			result.Status = StatusRollbackPartial
			c.logger.Error("restore deadline exceeded", "operation", op.Key,
				"timeout", c.timeout, "unattempted", len(reversed)-i)
			break
		}
		for _, outcome := range c.backups.Restore(reversed[i : i+1]) {
			if outcome.Err != nil {
				c.logger.Error("restore failed", "operation", op.Key,
					"path", outcome.Path, "error", outcome.Err)
				result.Status = StatusRollbackPartial
				result.FailedPaths = append(result.FailedPaths, outcome.Path)
				continue
			}
			c.logger.Info("restored", "operation", op.Key, "path", outcome.Path)
		}
	}

	if result.Status == StatusRolledBack {
		c.logger.Info("rollback complete", "operation", op.Key)
	} else {
		c.logger.Warn("rollback incomplete, manual attention required",
			"operation", op.Key, "failed_paths", result.FailedPaths)
	}
	return result
}
