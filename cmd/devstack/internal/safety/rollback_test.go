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
	"testing"
	"time"
)

// fakeBackupManager records restore calls and fails selected paths.
type fakeBackupManager struct {
	restored  []string
	failPaths map[string]bool
	delay     time.Duration
}

var _ BackupManager = (*fakeBackupManager)(nil)

func (f *fakeBackupManager) Snapshot(key string, paths []string) ([]BackupRecord, error) {
	records := make([]BackupRecord, len(paths))
	for i, p := range paths {
		records[i] = BackupRecord{Path: p, ExistedBefore: true, TakenAt: time.Now()}
	}
	return records, nil
}

func (f *fakeBackupManager) Restore(records []BackupRecord) []RestoreOutcome {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	outcomes := make([]RestoreOutcome, 0, len(records))
	for _, rec := range records {
		f.restored = append(f.restored, rec.Path)
		var err error
		if f.failPaths[rec.Path] {
			err = errors.New("device busy")
		}
		outcomes = append(outcomes, RestoreOutcome{Path: rec.Path, Err: err})
	}
	return outcomes
}

func (f *fakeBackupManager) CreateBackup(name string, path string) (BackupRecord, error) {
	return BackupRecord{Path: path, ExistedBefore: true, TakenAt: time.Now()}, nil
}

func (f *fakeBackupManager) Prune(maxAge time.Duration) (int, error) {
	return 0, nil
}

func TestRollbackRestoresInReverseOrder(t *testing.T) {
	backups := &fakeBackupManager{}
	coord := NewRollbackCoordinator(backups, nil)

	op := &Operation{
		Key: "nginx-config",
		Backups: []BackupRecord{
			{Path: "/etc/nginx/nginx.conf", ExistedBefore: true},
			{Path: "/etc/nginx/conf.d", ExistedBefore: true},
			{Path: "/etc/nginx/sites-enabled/app", ExistedBefore: false},
		},
	}

	result := coord.Rollback(op)
	if result.Status != StatusRolledBack {
		t.Errorf("status = %s, want ROLLED_BACK", result.Status)
	}
	want := []string{"/etc/nginx/sites-enabled/app", "/etc/nginx/conf.d", "/etc/nginx/nginx.conf"}
	if len(backups.restored) != len(want) {
		t.Fatalf("restored %d paths, want %d", len(backups.restored), len(want))
	}
	for i, p := range want {
		if backups.restored[i] != p {
			t.Errorf("restore[%d] = %s, want %s (LIFO)", i, backups.restored[i], p)
		}
	}
}

func TestRollbackPartialNamesFailedPaths(t *testing.T) {
	backups := &fakeBackupManager{
		failPaths: map[string]bool{"/etc/redis/redis.conf": true},
	}
	coord := NewRollbackCoordinator(backups, nil)

	op := &Operation{
		Key: "redis-config",
		Backups: []BackupRecord{
			{Path: "/etc/redis/redis.conf", ExistedBefore: true},
			{Path: "/etc/redis/sentinel.conf", ExistedBefore: true},
		},
	}

	result := coord.Rollback(op)
	if result.Status != StatusRollbackPartial {
		t.Errorf("status = %s, want ROLLBACK_PARTIAL", result.Status)
	}
	if len(result.FailedPaths) != 1 || result.FailedPaths[0] != "/etc/redis/redis.conf" {
		t.Errorf("FailedPaths = %v, want the exact unrestored path", result.FailedPaths)
	}

	// One failure must not stop the remaining restores.
	if len(backups.restored) != 2 {
		t.Errorf("restored %d paths, want 2 (best-effort)", len(backups.restored))
	}
}

func TestRollbackDeadlineMarksRemainingUnrestored(t *testing.T) {
	backups := &fakeBackupManager{delay: 30 * time.Millisecond}
	coord := NewRollbackCoordinator(backups, nil)
	if coord.timeout != RestoreTimeout {
		t.Fatalf("timeout = %v, want RestoreTimeout", coord.timeout)
	}
	coord.timeout = 10 * time.Millisecond

	op := &Operation{
		Key: "nginx-sites",
		Backups: []BackupRecord{
			{Path: "/etc/nginx/conf.d/api.conf", ExistedBefore: true},
			{Path: "/etc/nginx/conf.d/web.conf", ExistedBefore: true},
			{Path: "/etc/nginx/conf.d/ws.conf", ExistedBefore: true},
		},
	}

	result := coord.Rollback(op)
	if result.Status != StatusRollbackPartial {
		t.Errorf("status = %s, want ROLLBACK_PARTIAL after deadline", result.Status)
	}

	// Only the first (LIFO) record fit inside the deadline; the rest
	// must be reported unrestored, not silently dropped.
	if len(backups.restored) != 1 || backups.restored[0] != "/etc/nginx/conf.d/ws.conf" {
		t.Fatalf("restored = %v, want only the newest record", backups.restored)
	}
	want := []string{"/etc/nginx/conf.d/web.conf", "/etc/nginx/conf.d/api.conf"}
	if len(result.FailedPaths) != len(want) {
		t.Fatalf("FailedPaths = %v, want %v", result.FailedPaths, want)
	}
	for i, p := range want {
		if result.FailedPaths[i] != p {
			t.Errorf("FailedPaths[%d] = %s, want %s", i, result.FailedPaths[i], p)
		}
	}
}
