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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	forceRerun  bool
	selectTools []string
	pruneAge    string

	rootCmd = &cobra.Command{
		Use:   "devstack",
		Short: "An interactive wizard for setting up a local development stack",
		Long: `devstack configures PostgreSQL, Redis, Nginx, PM2 and Docker on
				your machine. Every host mutation runs inside a safety framework
				that backs up target files first, rolls them back on failure, and
				records an audit trail under the safety home.`,
	}

	// --- Setup ---
	setupCmd = &cobra.Command{
		Use:   "setup [tool...]",
		Short: "Configure stack tools (interactive wizard on a terminal)",
		Long: `Runs the setup wizard. With no arguments on a terminal, an
				interactive menu selects tools; otherwise pass tool names
				(docker, redis, nginx, pm2, postgres) as arguments.`,
		RunE: runSetup, // Defined in cmd_setup.go
	}

	// --- Introspection ---
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show archived operations and their terminal states",
		RunE:  runStatus, // Defined in cmd_status.go
	}

	auditCmd = &cobra.Command{
		Use:   "audit [operation-key]",
		Short: "Print the audit trail, optionally filtered by operation key",
		RunE:  runAudit, // Defined in cmd_audit.go
	}

	// --- Backups ---
	backupsCmd = &cobra.Command{
		Use:   "backups",
		Short: "Inspect and maintain the snapshot store",
	}
	backupsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List snapshot sets per operation key",
		RunE:  runBackupsList, // Defined in cmd_backups.go
	}
	backupsPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Remove old snapshot sets beyond the per-key retention",
		RunE:  runBackupsPrune, // Defined in cmd_backups.go
	}
	backupsCreateCmd = &cobra.Command{
		Use:   "create [name] [path]",
		Short: "Take a one-off named backup of a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE:  runBackupsCreate, // Defined in cmd_backups.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the devstack configuration file")

	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().BoolVar(&forceRerun, "force", false, "Re-run tools that already succeeded with identical settings")
	setupCmd.Flags().StringSliceVar(&selectTools, "tools", nil, "Tools to configure without the interactive menu")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(auditCmd)

	rootCmd.AddCommand(backupsCmd)
	backupsCmd.AddCommand(backupsListCmd)
	backupsCmd.AddCommand(backupsPruneCmd)
	backupsPruneCmd.Flags().StringVar(&pruneAge, "older-than", "168h", "Minimum snapshot age before pruning (Go duration)")
	backupsCmd.AddCommand(backupsCreateCmd)
}
