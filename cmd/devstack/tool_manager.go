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
	"path/filepath"
	"strings"

	"github.com/AleutianAI/devstack/cmd/devstack/internal/safety"
)

// ToolManager is one configurable stack tool.
//
// # Description
//
// Managers template configuration files and shell out to service
// managers. They never mutate the host directly: every mutation runs
// inside fw.Execute so it is backed up first and rolled back on
// failure. Managers stay thin; the safety framework carries the
// transactional weight.
type ToolManager interface {
	// Name is the stable tool identifier used in menus and setup args.
	Name() string

	// Description is a one-line menu summary.
	Description() string

	// Setup applies the tool's configuration under the safety framework.
	Setup(ctx context.Context, force bool) error
}

// newManagers wires every tool manager with the shared framework and
// runner, in wizard display order.
func newManagers(fw *safety.Framework, runner CommandRunner, tools ToolsConfig) []ToolManager {
	return []ToolManager{
		NewDockerManager(fw, runner, tools.Docker),
		NewRedisManager(fw, runner, tools.Redis),
		NewNginxManager(fw, runner, tools.Nginx),
		NewPM2Manager(fw, runner, tools.PM2),
		NewPostgresManager(fw, runner, tools.Postgres),
	}
}

// managerByName finds a manager by its tool identifier.
func managerByName(managers []ToolManager, name string) (ToolManager, error) {
	for _, m := range managers {
		if m.Name() == name {
			return m, nil
		}
	}
	known := make([]string, 0, len(managers))
	for _, m := range managers {
		known = append(known, m.Name())
	}
	return nil, fmt.Errorf("unknown tool %q (known: %s)", name, strings.Join(known, ", "))
}

// writeConfigFile writes rendered content, creating parent directories.
// Called only from inside safety actions, after the target is
// snapshotted.
func writeConfigFile(path, content string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// runSteps executes shell steps in order, stopping at the first failure.
func runSteps(ctx context.Context, runner CommandRunner, steps ...[]string) error {
	for _, step := range steps {
		if len(step) == 0 {
			continue
		}
		if _, err := runner.Run(ctx, step[0], step[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// expandHome expands a leading ~ in tool config paths.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
