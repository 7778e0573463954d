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
	"sync"
)

// BeginResult is the registry's admission decision for an operation key.
type BeginResult struct {
	// Proceed is true when the caller should run the operation.
	Proceed bool

	// Cached is the archived operation whose result satisfies this call
	// without re-running the action. Set only when Proceed is false.
	Cached *Operation
}

// Registry is the in-flight guard and idempotency gate.
//
// # Description
//
// At most one operation per key may be in flight at any time. A second
// caller for the same key fails fast with ErrOperationInProgress rather
// than queuing: queuing would silently reorder backups and invite
// deadlock when a manager re-enters its own key from a retry loop.
//
// A key whose last run SUCCEEDED with an identical metadata fingerprint
// is satisfied from the archive without re-running, unless the caller
// sets Metadata.Force.
//
// The registry holds its lock only around admission and completion
// bookkeeping, never for the duration of the action itself.
//
// # Thread Safety
//
// Registry is safe for concurrent use.
type Registry struct {
	store Store

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Store is the persistence surface the registry needs. Satisfied by
// *OperationStore; narrowed to an interface so tests can substitute an
// in-memory fake.
type Store interface {
	Get(key string) (*Operation, bool)
	Put(op *Operation) error
}

// NewRegistry creates a registry backed by the given archive.
func NewRegistry(store Store) *Registry {
	return &Registry{
		store:    store,
		inFlight: make(map[string]struct{}),
	}
}

// Begin admits an operation key for execution.
//
// # Description
//
// Applies the admission rules in order:
//
//  1. Key in flight → ErrOperationInProgress.
//  2. Key previously SUCCEEDED with the same fingerprint and force is
//     false → Proceed=false with the cached operation.
//  3. Otherwise the key is marked in flight and the caller proceeds.
//
// Every successful Begin (Proceed=true) must be paired with exactly one
// Complete, including on panic paths.
//
// # Inputs
//
//   - key: Operation key
//   - fingerprint: Metadata.Fingerprint() of this invocation
//   - force: Bypass the idempotent-replay short circuit
//
// # Outputs
//
//   - BeginResult: Admission decision
//   - error: ErrOperationInProgress if the key is already running
func (r *Registry) Begin(key, fingerprint string, force bool) (BeginResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, running := r.inFlight[key]; running {
		return BeginResult{}, fmt.Errorf("%w: %s", ErrOperationInProgress, key)
	}

	if !force {
		if prev, ok := r.store.Get(key); ok &&
			prev.Status == StatusSucceeded && prev.Fingerprint == fingerprint {
			return BeginResult{Proceed: false, Cached: prev}, nil
		}
	}

	r.inFlight[key] = struct{}{}
	return BeginResult{Proceed: true}, nil
}

// Complete finalizes an admitted key with its terminal operation.
//
// # Description
//
// Clears the in-flight marker and archives the operation. The marker is
// cleared even if archiving fails, so a persistence problem cannot wedge
// the key forever.
//
// # Inputs
//
//   - op: The terminal operation recorded for the key
//
// # Outputs
//
//   - error: Archive persistence failure, if any
func (r *Registry) Complete(op *Operation) error {
	r.mu.Lock()
	delete(r.inFlight, op.Key)
	r.mu.Unlock()

	return r.store.Put(op)
}

// InFlight reports whether the key currently has a running operation.
func (r *Registry) InFlight(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, running := r.inFlight[key]
	return running
}
