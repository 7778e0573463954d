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
	"os"
	"path/filepath"
	"testing"
)

func newTestAuditLogger(t *testing.T) (*FileAuditLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewFileAuditLogger(path)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, path
}

func TestAuditAppendAndEntries(t *testing.T) {
	logger, _ := newTestAuditLogger(t)

	events := []AuditEvent{EventStart, EventBackupTaken, EventActionFailed, EventRollbackStarted, EventRollbackDone}
	for _, ev := range events {
		if err := logger.Append(AuditEntry{OperationKey: "redis-config", Event: ev}); err != nil {
			t.Fatalf("Append(%s): %v", ev, err)
		}
	}
	if err := logger.Append(AuditEntry{OperationKey: "other-key", Event: EventStart}); err != nil {
		t.Fatal(err)
	}

	entries, err := logger.Entries("redis-config")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != len(events) {
		t.Fatalf("got %d entries, want %d", len(entries), len(events))
	}
	for i, ev := range events {
		if entries[i].Event != ev {
			t.Errorf("entry %d = %s, want %s (emission order must be preserved)", i, entries[i].Event, ev)
		}
	}
	if entries[0].Event != EventStart {
		t.Error("trail must begin with START")
	}

	all, err := logger.Entries("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(events)+1 {
		t.Errorf("unfiltered entries = %d, want %d", len(all), len(events)+1)
	}
}

func TestAuditFillsZeroTimestamp(t *testing.T) {
	logger, _ := newTestAuditLogger(t)

	if err := logger.Append(AuditEntry{OperationKey: "k", Event: EventStart}); err != nil {
		t.Fatal(err)
	}
	entries, err := logger.Entries("k")
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("timestamp should be filled in on append")
	}
}

func TestAuditSkipsMalformedLines(t *testing.T) {
	logger, path := newTestAuditLogger(t)

	if err := logger.Append(AuditEntry{OperationKey: "k", Event: EventStart}); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash mid-write: a torn line between valid entries.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"operation_key":"k","eve` + "\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if err := logger.Append(AuditEntry{OperationKey: "k", Event: EventActionSucceeded}); err != nil {
		t.Fatal(err)
	}

	entries, err := logger.Entries("k")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2 (malformed line skipped)", len(entries))
	}
}

func TestAuditCloseIdempotent(t *testing.T) {
	logger, _ := newTestAuditLogger(t)

	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := logger.Append(AuditEntry{OperationKey: "k", Event: EventStart}); err == nil {
		t.Error("append after close should fail")
	}
}
