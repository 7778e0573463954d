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
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BackupManager defines the interface for snapshotting filesystem targets.
//
// # Description
//
// BackupManager copies declared targets into an operation-scoped store
// before a mutation runs, and restores them afterwards if the mutation
// fails. Snapshots preserve content and permission bits for files and
// full recursive trees for directories.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use across distinct
// operations; the framework never snapshots the same path concurrently.
type BackupManager interface {
	// Snapshot copies each path into the store. Fails closed: any error
	// aborts the whole call, since a partial snapshot is no safety net.
	Snapshot(key string, paths []string) ([]BackupRecord, error)

	// Restore brings each record's path back to its snapshotted state
	// (or deletes it if it did not exist before). Best-effort: collects
	// per-path outcomes instead of aborting on the first failure.
	Restore(records []BackupRecord) []RestoreOutcome

	// CreateBackup takes a one-off named snapshot of a single path,
	// bypassing the operation lifecycle.
	CreateBackup(name string, path string) (BackupRecord, error)

	// Prune removes snapshot sets older than maxAge, keeping at least
	// the configured minimum per operation key. Returns the number of
	// snapshot sets removed.
	Prune(maxAge time.Duration) (int, error)
}

// BackupConfig configures snapshot storage and retention.
//
// # Example
//
//	config := BackupConfig{
//	    StoreDir:     "~/.devstack/safety/backups",
//	    KeepPerKey:   5,
//	}
type BackupConfig struct {
	// StoreDir is the root directory for snapshot storage.
	// Required; the directory is created if missing.
	StoreDir string

	// KeepPerKey is how many snapshot sets to retain per operation key
	// when pruning. Default: 5
	KeepPerKey int

	// TimeFormat names snapshot set directories.
	// Default: "2006-01-02_150405"
	TimeFormat string
}

// DefaultBackupConfig returns sensible defaults rooted under dir.
func DefaultBackupConfig(dir string) BackupConfig {
	return BackupConfig{
		StoreDir:   dir,
		KeepPerKey: 5,
		TimeFormat: "2006-01-02_150405",
	}
}

// DefaultBackupManager implements BackupManager on the local filesystem.
//
// # Description
//
// Snapshots are stored as
//
//	{StoreDir}/{key}/{timestamp}_{uuid}/{index}_{basename}
//
// so one mutation's snapshots form a single set directory that can be
// listed, pruned, or restored as a unit. Content is copied, never moved:
// the original stays in place for the action to mutate.
//
// # Limitations
//
//   - No privilege escalation: a root-owned unreadable path fails the
//     snapshot (fail closed) rather than being skipped.
//   - Extended attributes are not preserved on all platforms.
//
// # Assumptions
//
//   - Sufficient disk space under StoreDir
//   - StoreDir is not itself inside any snapshotted target
type DefaultBackupManager struct {
	config BackupConfig
}

// Compile-time interface check
var _ BackupManager = (*DefaultBackupManager)(nil)

// NewBackupManager creates a backup manager rooted at config.StoreDir.
//
// # Inputs
//
//   - config: Storage and retention configuration
//
// # Outputs
//
//   - *DefaultBackupManager: New manager
//   - error: Non-nil if the store directory cannot be created
func NewBackupManager(config BackupConfig) (*DefaultBackupManager, error) {
	if config.StoreDir == "" {
		return nil, fmt.Errorf("backup store directory must not be empty")
	}
	if config.KeepPerKey <= 0 {
		config.KeepPerKey = 5
	}
	if config.TimeFormat == "" {
		config.TimeFormat = "2006-01-02_150405"
	}
	if err := os.MkdirAll(config.StoreDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup store: %w", err)
	}
	return &DefaultBackupManager{config: config}, nil
}

// Snapshot copies each declared path into a fresh snapshot set.
//
// # Description
//
// For each path: if it exists, its content (file bytes or recursive
// directory tree) and permission bits are copied into the set; if
// absent, a record with ExistedBefore=false is taken so rollback can
// delete whatever the action creates there.
//
// Fails closed: on the first error the partially-written set is removed
// and a *BackupError is returned. The caller must not proceed to the
// mutation in that case.
//
// # Inputs
//
//   - key: Operation key, used as the set's parent directory
//   - paths: Targets to protect, in declaration order
//
// # Outputs
//
//   - []BackupRecord: One record per path, in input order
//   - error: *BackupError naming the first path that failed
func (m *DefaultBackupManager) Snapshot(key string, paths []string) ([]BackupRecord, error) {
	setDir := filepath.Join(m.config.StoreDir, sanitizeKey(key),
		time.Now().Format(m.config.TimeFormat)+"_"+uuid.NewString()[:8])
	if err := os.MkdirAll(setDir, 0o750); err != nil {
		return nil, &BackupError{Key: key, Path: setDir, Err: err}
	}

	records := make([]BackupRecord, 0, len(paths))
	for i, path := range paths {
		rec, err := m.snapshotOne(setDir, i, path)
		if err != nil {
			// A partial set is not a safety net. Remove it.
			_ = os.RemoveAll(setDir)
			return nil, &BackupError{Key: key, Path: path, Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}

// snapshotOne snapshots a single target into the set directory.
func (m *DefaultBackupManager) snapshotOne(setDir string, index int, path string) (BackupRecord, error) {
	rec := BackupRecord{Path: path, TakenAt: time.Now()}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		// Nothing to copy; rollback will delete whatever appears here.
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("stat: %w", err)
	}

	ref := filepath.Join(setDir, fmt.Sprintf("%02d_%s", index, filepath.Base(path)))
	rec.ExistedBefore = true
	rec.SnapshotRef = ref
	rec.IsDir = info.IsDir()
	rec.Mode = info.Mode().Perm()

	if info.IsDir() {
		if err := copyTree(path, ref); err != nil {
			return rec, err
		}
	} else {
		if err := copyFile(path, ref, info.Mode().Perm()); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// Restore brings each record's target back to its pre-mutation state.
//
// # Description
//
// For records with ExistedBefore=true the snapshot content and original
// permissions are written back over the target; for the rest the target
// is deleted entirely, undoing anything the action created. One failed
// restore does not stop the others: the caller inspects the returned
// outcomes to distinguish complete from partial rollback.
//
// # Inputs
//
//   - records: Snapshot records in the order the caller wants restored
//
// # Outputs
//
//   - []RestoreOutcome: One outcome per record, same order
func (m *DefaultBackupManager) Restore(records []BackupRecord) []RestoreOutcome {
	outcomes := make([]RestoreOutcome, 0, len(records))
	for _, rec := range records {
		outcomes = append(outcomes, RestoreOutcome{
			Path: rec.Path,
			Err:  m.restoreOne(rec),
		})
	}
	return outcomes
}

// restoreOne restores a single record.
func (m *DefaultBackupManager) restoreOne(rec BackupRecord) error {
	if !rec.ExistedBefore {
		// Symmetric undo of something the action created.
		if err := os.RemoveAll(rec.Path); err != nil {
			return fmt.Errorf("removing created path: %w", err)
		}
		return nil
	}

	if _, err := os.Stat(rec.SnapshotRef); err != nil {
		return fmt.Errorf("snapshot missing: %w", err)
	}

	// Clear whatever the action left behind before copying back.
	if err := os.RemoveAll(rec.Path); err != nil {
		return fmt.Errorf("clearing mutated path: %w", err)
	}
	if rec.IsDir {
		if err := copyTree(rec.SnapshotRef, rec.Path); err != nil {
			return fmt.Errorf("restoring directory: %w", err)
		}
		return os.Chmod(rec.Path, rec.Mode)
	}
	if err := copyFile(rec.SnapshotRef, rec.Path, rec.Mode); err != nil {
		return fmt.Errorf("restoring file: %w", err)
	}
	return nil
}

// CreateBackup takes a one-off named snapshot of a single path.
//
// # Description
//
// Secondary interface for collaborators that want a backup without the
// full operation lifecycle. The snapshot lands in the store under the
// given name and follows the same retention rules as operation sets.
//
// # Inputs
//
//   - name: Logical name for the backup set (e.g. "pre-upgrade")
//   - path: Target to snapshot; must exist
//
// # Outputs
//
//   - BackupRecord: The snapshot record
//   - error: *BackupError if the path is missing or unreadable
func (m *DefaultBackupManager) CreateBackup(name string, path string) (BackupRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return BackupRecord{}, &BackupError{Path: path, Err: err}
	}
	records, err := m.Snapshot(name, []string{path})
	if err != nil {
		return BackupRecord{}, err
	}
	return records[0], nil
}

// snapshotSet is one set directory inside the store.
type snapshotSet struct {
	key     string
	dir     string
	modTime time.Time
}

// Prune removes snapshot sets older than maxAge.
//
// # Description
//
// Retention policy: the KeepPerKey most recent sets for each operation
// key are always kept regardless of age; anything older than maxAge
// beyond that is removed. Sets are never pruned mid-operation because
// pruning only runs from the explicit maintenance path.
//
// # Inputs
//
//   - maxAge: Minimum age before a set is eligible for removal
//
// # Outputs
//
//   - int: Number of sets removed
//   - error: Non-nil if the store cannot be listed
func (m *DefaultBackupManager) Prune(maxAge time.Duration) (int, error) {
	sets, err := m.listSets()
	if err != nil {
		return 0, err
	}

	byKey := make(map[string][]snapshotSet)
	for _, s := range sets {
		byKey[s.key] = append(byKey[s.key], s)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, keySets := range byKey {
		// Newest first.
		sort.Slice(keySets, func(i, j int) bool {
			return keySets[i].modTime.After(keySets[j].modTime)
		})
		for i, s := range keySets {
			if i < m.config.KeepPerKey {
				continue
			}
			if s.modTime.Before(cutoff) {
				if err := os.RemoveAll(s.dir); err != nil {
					continue
				}
				removed++
			}
		}
	}
	return removed, nil
}

// SnapshotSets returns the number of stored snapshot sets per key.
func (m *DefaultBackupManager) SnapshotSets() (map[string]int, error) {
	sets, err := m.listSets()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, s := range sets {
		counts[s.key]++
	}
	return counts, nil
}

// listSets walks the two-level store layout.
func (m *DefaultBackupManager) listSets() ([]snapshotSet, error) {
	keys, err := os.ReadDir(m.config.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("reading backup store: %w", err)
	}
	var sets []snapshotSet
	for _, keyEntry := range keys {
		if !keyEntry.IsDir() {
			continue
		}
		keyDir := filepath.Join(m.config.StoreDir, keyEntry.Name())
		children, err := os.ReadDir(keyDir)
		if err != nil {
			continue
		}
		for _, child := range children {
			if !child.IsDir() {
				continue
			}
			info, err := child.Info()
			if err != nil {
				continue
			}
			sets = append(sets, snapshotSet{
				key:     keyEntry.Name(),
				dir:     filepath.Join(keyDir, child.Name()),
				modTime: info.ModTime(),
			})
		}
	}
	return sets, nil
}

// sanitizeKey makes an operation key safe as a directory name.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}

// copyFile copies src to dst with the given permission bits.
func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating copy: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("copying content: %w", err)
	}
	// The open mode is masked by umask; make the bits explicit.
	if err := os.Chmod(dst, mode); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	return dstFile.Sync()
}

// copyTree recursively copies the directory src to dst, preserving
// permission bits. Symlinks are copied as links.
func copyTree(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, srcInfo.Mode().Perm()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		info, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(srcPath)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, dstPath); err != nil {
				return err
			}
		case info.IsDir():
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := copyFile(srcPath, dstPath, info.Mode().Perm()); err != nil {
				return err
			}
		}
	}
	return os.Chmod(dst, srcInfo.Mode().Perm())
}
