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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEvent is a lifecycle event recorded for an operation.
type AuditEvent string

const (
	EventStart           AuditEvent = "START"
	EventBackupTaken     AuditEvent = "BACKUP_TAKEN"
	EventActionSucceeded AuditEvent = "ACTION_SUCCEEDED"
	EventActionFailed    AuditEvent = "ACTION_FAILED"
	EventRollbackStarted AuditEvent = "ROLLBACK_STARTED"
	EventRollbackDone    AuditEvent = "ROLLBACK_DONE"
	EventRollbackPartial AuditEvent = "ROLLBACK_PARTIAL"
)

// AuditEntry is one append-only record of an operation lifecycle event.
type AuditEntry struct {
	// OperationKey identifies the operation the event belongs to.
	OperationKey string `json:"operation_key"`

	// Timestamp is when the event was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Event is the lifecycle event type.
	Event AuditEvent `json:"event"`

	// Detail carries human-readable context (error text, path counts).
	Detail string `json:"detail,omitempty"`
}

// AuditLogger defines the interface for the append-only audit trail.
//
// # Description
//
// Entries for a single operation key are recorded in the order the
// facade emits them: START always precedes the terminal event. No total
// order is guaranteed across distinct keys beyond timestamp comparison,
// since operations on different keys may run concurrently.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuditLogger interface {
	// Append durably records an entry. Prior entries are never mutated
	// or deleted.
	Append(entry AuditEntry) error

	// Entries returns all recorded entries for the key, oldest first.
	Entries(key string) ([]AuditEntry, error)

	// Close releases the underlying file handle.
	Close() error
}

// FileAuditLogger implements AuditLogger as a JSON-lines file.
//
// # Description
//
// One JSON object per line, appended with O_APPEND and fsynced per
// entry. The format is deliberately boring: greppable, tail -f friendly,
// and readable years later without this binary.
//
// # Thread Safety
//
// FileAuditLogger is safe for concurrent use.
type FileAuditLogger struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// Compile-time interface check
var _ AuditLogger = (*FileAuditLogger)(nil)

// NewFileAuditLogger opens (or creates) the audit trail at path.
func NewFileAuditLogger(path string) (*FileAuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening audit trail: %w", err)
	}
	return &FileAuditLogger{path: path, file: file}, nil
}

// Append durably records an entry.
//
// # Description
//
// Marshals the entry as one JSON line and fsyncs before returning, so
// an acknowledged entry survives a crash. A zero Timestamp is filled in
// with the current time.
func (l *FileAuditLogger) Append(entry AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding audit entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit trail is closed")
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return l.file.Sync()
}

// Entries returns all recorded entries for the key, oldest first.
//
// # Description
//
// Reads the whole trail and filters by key. The trail is append-only
// and line-oriented, so ordering on disk is emission order per key.
// Malformed lines (from a crash mid-write before the fsync) are skipped
// rather than failing the whole read.
func (l *FileAuditLogger) Entries(key string) ([]AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading audit trail: %w", err)
	}
	defer file.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if key == "" || entry.OperationKey == key {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning audit trail: %w", err)
	}
	return entries, nil
}

// Close releases the underlying file handle. Safe to call twice.
func (l *FileAuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
