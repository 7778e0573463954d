// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/devstack/pkg/ux"
)

// runBackupsList prints snapshot set counts per operation key.
func runBackupsList(cmd *cobra.Command, args []string) error {
	fw, err := openFramework()
	if err != nil {
		return err
	}
	defer fw.Close()

	counts, err := fw.BackupCounts()
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		ux.Info("no snapshots stored")
		return nil
	}

	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ux.Title("Snapshot sets")
	for _, key := range keys {
		ux.Step(key, ux.IconBullet, fmt.Sprintf("%d sets", counts[key]))
	}
	return nil
}

// runBackupsPrune removes snapshot sets beyond retention.
func runBackupsPrune(cmd *cobra.Command, args []string) error {
	maxAge, err := time.ParseDuration(pruneAge)
	if err != nil {
		return fmt.Errorf("invalid --older-than value %q: %w", pruneAge, err)
	}

	fw, err := openFramework()
	if err != nil {
		return err
	}
	defer fw.Close()

	removed, err := fw.PruneBackups(maxAge)
	if err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("pruned %d snapshot sets older than %s", removed, maxAge))
	return nil
}

// runBackupsCreate takes a one-off named backup outside the operation
// lifecycle.
func runBackupsCreate(cmd *cobra.Command, args []string) error {
	name, path := args[0], args[1]

	fw, err := openFramework()
	if err != nil {
		return err
	}
	defer fw.Close()

	record, err := fw.CreateBackup(name, expandHome(path))
	if err != nil {
		return err
	}
	ux.Success(fmt.Sprintf("backed up %s to %s", record.Path, record.SnapshotRef))
	return nil
}
