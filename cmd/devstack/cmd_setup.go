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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/devstack/cmd/devstack/internal/safety"
	"github.com/AleutianAI/devstack/pkg/ux"
)

// openFramework constructs the shared safety framework from config.
func openFramework() (*safety.Framework, error) {
	return safety.New(safety.Config{
		Home:           config.Safety.Home,
		DefaultTimeout: config.Safety.DefaultTimeout(),
		KeepPerKey:     config.Safety.KeepPerKey,
		Logger:         logger.Slog(),
	})
}

// runSetup is the entry point of the setup command.
//
// # Description
//
// On a terminal with no tool arguments, the huh wizard drives tool
// selection. Otherwise (CI, scripts, piped output) the tools come from
// args or --tools and run in order. SIGINT cancels the context; an
// in-flight operation rolls back like any other failure.
func runSetup(cmd *cobra.Command, args []string) error {
	fw, err := openFramework()
	if err != nil {
		return err
	}
	defer fw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &ExecRunner{}
	managers := newManagers(fw, runner, config.Tools)

	requested := append([]string(nil), args...)
	requested = append(requested, selectTools...)

	if len(requested) == 0 {
		if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			return fmt.Errorf("no terminal detected; pass tool names, e.g. `devstack setup redis nginx`")
		}
		return runWizard(ctx, managers, forceRerun)
	}

	return runBatch(ctx, managers, requested, forceRerun)
}

// runBatch applies the named tools in order, continuing past failures
// so one broken tool doesn't block the rest of the stack.
func runBatch(ctx context.Context, managers []ToolManager, names []string, force bool) error {
	succeeded, failed := 0, 0
	requested := make(map[string]bool, len(names))
	for _, name := range names {
		manager, err := managerByName(managers, name)
		if err != nil {
			return err
		}
		requested[name] = true

		if err := ctx.Err(); err != nil {
			return err
		}

		logger.Info("configuring tool", "tool", name)
		if err := manager.Setup(ctx, force); err != nil {
			failed++
			reportSetupError(name, err)
			continue
		}
		succeeded++
		ux.Success(fmt.Sprintf("%s configured", name))
	}

	// Skipped counts managers never asked for; repeated names must not
	// drive it negative.
	skipped := 0
	for _, m := range managers {
		if !requested[m.Name()] {
			skipped++
		}
	}

	ux.Summary(succeeded, failed, skipped)
	if failed > 0 {
		return fmt.Errorf("%d of %d tools failed", failed, len(names))
	}
	return nil
}
