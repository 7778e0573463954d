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
	"log/slog"
	"time"
)

// Executor runs the caller-supplied action under a deadline.
//
// # Description
//
// The action is opaque: it may shell out to package managers, write
// files, or call external services. The executor observes only success,
// error, or deadline expiry. On timeout the action's context is
// cancelled (best-effort; a stubborn action leaks its goroutine) and the
// outcome reports ErrActionTimeout, which the facade treats identically
// to an ordinary failure for rollback purposes.
//
// # Thread Safety
//
// Executor is stateless and safe for concurrent use.
type Executor struct {
	// DefaultTimeout bounds actions that do not override their deadline.
	// Generous by default: network installs can legitimately take tens
	// of minutes.
	DefaultTimeout time.Duration

	// MinTimeout is the floor applied to per-call overrides.
	// Default: MinActionTimeout
	MinTimeout time.Duration

	// Logger records action start/finish events.
	Logger *slog.Logger
}

// actionResult carries the action's return values across the goroutine
// boundary.
type actionResult struct {
	value any
	err   error
}

// NewExecutor creates an executor, applying defaults to zero values.
func NewExecutor(defaultTimeout time.Duration, logger *slog.Logger) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultActionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		DefaultTimeout: defaultTimeout,
		MinTimeout:     MinActionTimeout,
		Logger:         logger,
	}
}

// Run invokes the action under a deadline.
//
// # Description
//
// The action runs in its own goroutine with a context that expires after
// the effective timeout (the override if positive, else the default).
// Cancellation of the parent context flows through the same path as a
// timeout: the action is signalled, and the outcome is a failure that
// drives rollback. There is no abandon-without-rollback mode.
//
// # Inputs
//
//   - ctx: Parent context (user interrupt cancels it)
//   - key: Operation key, for logging only
//   - action: The unit of work
//   - timeout: Per-call override; zero uses DefaultTimeout, and
//     positive values below MinTimeout are raised to it
//
// # Outputs
//
//   - any: The action's return value on success
//   - error: The action's error, ErrActionTimeout on deadline expiry,
//     or ctx.Err() on interrupt
func (e *Executor) Run(ctx context.Context, key string, action Action, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = e.DefaultTimeout
	}
	// A sub-second override would guarantee a spurious rollback; clamp
	// to the floor rather than honoring it.
	timeout = EnforceMinTimeout(timeout, e.MinTimeout)

	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.Logger.Info("executing action", "operation", key, "timeout", timeout)
	start := time.Now()

	done := make(chan actionResult, 1)
	go func() {
		value, err := action(actionCtx)
		done <- actionResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		duration := time.Since(start)
		if res.err != nil {
			e.Logger.Error("action failed", "operation", key, "duration", duration, "error", res.err)
			return nil, res.err
		}
		e.Logger.Info("action completed", "operation", key, "duration", duration)
		return res.value, nil

	case <-actionCtx.Done():
		duration := time.Since(start)
		if ctx.Err() != nil {
			// Parent cancelled (user interrupt). Same rollback path.
			e.Logger.Warn("action cancelled", "operation", key, "duration", duration)
			return nil, ctx.Err()
		}
		e.Logger.Error("action timed out", "operation", key, "timeout", timeout)
		return nil, ErrActionTimeout
	}
}
