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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/devstack/pkg/ux"
)

// runAudit prints the audit trail, oldest first.
func runAudit(cmd *cobra.Command, args []string) error {
	fw, err := openFramework()
	if err != nil {
		return err
	}
	defer fw.Close()

	key := ""
	if len(args) > 0 {
		key = args[0]
	}

	entries, err := fw.AuditTrail(key)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		ux.Info("no audit entries")
		return nil
	}

	for _, entry := range entries {
		line := fmt.Sprintf("%s  %-16s  %s",
			entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Event, entry.OperationKey)
		if entry.Detail != "" {
			line += "  " + entry.Detail
		}
		ux.Info(line)
	}
	return nil
}
