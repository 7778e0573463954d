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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ArchiveFormatVersion is bumped on incompatible archive layout changes.
const ArchiveFormatVersion = 1

// archiveFile is the on-disk layout of the operation archive.
type archiveFile struct {
	FormatVersion int          `json:"format_version"`
	SavedAt       time.Time    `json:"saved_at"`
	Checksum      string       `json:"checksum"`
	Operations    []*Operation `json:"operations"`
}

// OperationStore persists terminal operations to disk.
//
// # Description
//
// The store is the durable half of the idempotency guard: completed
// operations are journaled so that replaying a key that already
// SUCCEEDED with identical metadata short-circuits even across process
// restarts. Writes are atomic (temp file + rename) and the payload is
// checksummed so a torn write is detected on load rather than silently
// replayed.
//
// Operations are archived, never deleted: they double as audit
// artifacts for the status command.
//
// # Thread Safety
//
// OperationStore is safe for concurrent use.
type OperationStore struct {
	path string

	mu  sync.RWMutex
	ops map[string]*Operation // latest terminal operation per key
}

// NewOperationStore opens (or creates) the archive at path.
//
// # Description
//
// Loads any existing archive and validates its checksum and format
// version. A corrupted or incompatible archive is an error, not a
// silent reset: replaying against a torn archive could re-run
// operations that already mutated the host.
//
// # Inputs
//
//   - path: Archive file location, e.g. "~/.devstack/safety/operations.json"
//
// # Outputs
//
//   - *OperationStore: Ready store
//   - error: *StoreError wrapping ErrArchiveCorrupted or ErrVersionMismatch
func NewOperationStore(path string) (*OperationStore, error) {
	s := &OperationStore{
		path: path,
		ops:  make(map[string]*Operation),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads and validates the archive file if it exists.
func (s *OperationStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil // Fresh store
	}
	if err != nil {
		return &StoreError{Op: "load", Err: err}
	}

	var file archiveFile
	if err := json.Unmarshal(data, &file); err != nil {
		return &StoreError{Op: "load", Err: fmt.Errorf("%w: %v", ErrArchiveCorrupted, err)}
	}
	if file.FormatVersion != ArchiveFormatVersion {
		return &StoreError{Op: "load", Err: fmt.Errorf("%w: expected %d, found %d",
			ErrVersionMismatch, ArchiveFormatVersion, file.FormatVersion)}
	}
	sum, err := checksumOperations(file.Operations)
	if err != nil {
		return &StoreError{Op: "load", Err: err}
	}
	if sum != file.Checksum {
		return &StoreError{Op: "load", Err: fmt.Errorf("%w: checksum mismatch", ErrArchiveCorrupted)}
	}

	for _, op := range file.Operations {
		s.ops[op.Key] = op
	}
	return nil
}

// Get returns the latest archived operation for key, if any.
func (s *OperationStore) Get(key string) (*Operation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[key]
	return op, ok
}

// Put archives a terminal operation and persists the archive.
//
// # Description
//
// The archive keeps the latest terminal operation per key; prior runs
// of the same key remain visible through the audit trail. Persisting
// writes the whole archive atomically.
//
// # Inputs
//
//   - op: A terminal operation (op.Status.Terminal() must be true)
//
// # Outputs
//
//   - error: *StoreError if persisting fails
func (s *OperationStore) Put(op *Operation) error {
	if !op.Status.Terminal() {
		return &StoreError{Op: "put", Err: fmt.Errorf("operation %s is not terminal (%s)", op.Key, op.Status)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.Key] = op
	return s.save()
}

// All returns the archived operations sorted by key.
func (s *OperationStore) All() []*Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Operation, 0, len(s.ops))
	for _, op := range s.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// save writes the archive atomically. Caller holds s.mu.
func (s *OperationStore) save() error {
	file := archiveFile{
		FormatVersion: ArchiveFormatVersion,
		SavedAt:       time.Now(),
	}
	for _, op := range s.ops {
		file.Operations = append(file.Operations, op)
	}
	sort.Slice(file.Operations, func(i, j int) bool {
		return file.Operations[i].Key < file.Operations[j].Key
	})

	sum, err := checksumOperations(file.Operations)
	if err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	file.Checksum = sum

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return &StoreError{Op: "save", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return &StoreError{Op: "save", Err: err}
	}

	// Write to a temp file in the same directory, then rename. Rename is
	// atomic on the same filesystem, so readers never see a torn file.
	tmp := fmt.Sprintf("%s.tmp.%d", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return &StoreError{Op: "save", Err: err}
	}
	return nil
}

// checksumOperations hashes the canonical JSON of the operation list.
func checksumOperations(ops []*Operation) (string, error) {
	h := sha256.New()
	if err := json.NewEncoder(h).Encode(ops); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
