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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/devstack/cmd/devstack/internal/safety"
	"github.com/AleutianAI/devstack/pkg/ux"
)

// runStatus prints the archived operation per key with its terminal state.
func runStatus(cmd *cobra.Command, args []string) error {
	fw, err := openFramework()
	if err != nil {
		return err
	}
	defer fw.Close()

	ops := fw.Operations()
	if len(ops) == 0 {
		ux.Info("no operations recorded yet")
		return nil
	}

	ux.Title("Operations")
	for _, op := range ops {
		ux.Step(op.Key, ux.StatusIcon(string(op.Status)), describeOperation(op))
	}
	return nil
}

// describeOperation summarizes one archived operation for the listing.
func describeOperation(op *safety.Operation) string {
	parts := []string{
		string(op.Status),
		op.FinishedAt.Format("2006-01-02 15:04"),
	}
	if len(op.Backups) > 0 {
		parts = append(parts, fmt.Sprintf("%d targets", len(op.Backups)))
	}
	if op.Status == safety.StatusRollbackPartial {
		parts = append(parts, "unrestored: "+strings.Join(op.UnrestoredPaths, ", "))
	} else if op.Error != "" {
		parts = append(parts, op.Error)
	}
	return strings.Join(parts, " · ")
}
