// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety provides the transactional execution framework that every
// tool manager invokes before mutating host state.
//
// # Overview
//
// Installing packages, rewriting config files under /etc, and restarting
// services can all leave a machine half-configured when something fails
// midway. This package wraps each such mutation in a tracked Operation
// with backup-before-mutate, rollback-on-failure, idempotent replay, and
// an append-only audit trail.
//
// # Components
//
//   - Framework: the single entry point (Execute) composing everything below
//   - BackupManager: snapshots and restores declared filesystem targets
//   - Registry: per-key in-flight guard plus idempotent replay of results
//   - Executor: runs the caller's action under a timeout boundary
//   - RollbackCoordinator: restores snapshots in LIFO order after a failure
//   - AuditLogger: durable append-only record of operation lifecycle events
//
// # Example
//
//	fw, err := safety.New(safety.Config{Home: "~/.devstack/safety"})
//	if err != nil {
//	    return err
//	}
//	defer fw.Close()
//
//	op, err := fw.Execute(ctx, "redis-server-config", safety.Metadata{
//	    BackupRequested: true,
//	    TargetPaths:     []string{"/etc/redis/redis.conf"},
//	}, func(ctx context.Context) (any, error) {
//	    return nil, writeRedisConfig(ctx)
//	})
//
// If the action fails, every declared target is restored to its pre-call
// state before Execute returns.
//
// # Guarantees (and non-guarantees)
//
// Safety here is file-level backup/restore around an opaque unit of work.
// It is best-effort, not ACID: there is no OS-level atomicity, no
// cross-host consistency, and no verification that the action did what it
// claimed. A restore can itself fail (for example on a permission change
// made by the action); that case is surfaced distinctly as
// RollbackPartialError and requires operator attention.
//
// # Thread Safety
//
// Framework is safe for concurrent use across distinct operation keys.
// Concurrent calls for the same key are rejected with
// ErrOperationInProgress rather than queued.
package safety
