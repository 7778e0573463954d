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
	"sort"
	"strings"

	"github.com/AleutianAI/devstack/cmd/devstack/internal/safety"
)

// PM2Manager generates an ecosystem file and reloads the process list.
type PM2Manager struct {
	fw     *safety.Framework
	runner CommandRunner
	config PM2Config
}

var _ ToolManager = (*PM2Manager)(nil)

func NewPM2Manager(fw *safety.Framework, runner CommandRunner, config PM2Config) *PM2Manager {
	return &PM2Manager{fw: fw, runner: runner, config: config}
}

func (m *PM2Manager) Name() string { return "pm2" }

func (m *PM2Manager) Description() string {
	return "Generate ecosystem.config.js and reload the pm2 process list"
}

// Setup writes the ecosystem file and applies it with pm2 startOrReload.
// The ecosystem path often does not exist yet; the snapshot records the
// absence so a failed reload deletes the generated file again.
func (m *PM2Manager) Setup(ctx context.Context, force bool) error {
	if _, err := m.runner.LookPath("pm2"); err != nil {
		return fmt.Errorf("pm2 is not installed: %w", err)
	}
	path := expandHome(m.config.EcosystemPath)

	md := safety.Metadata{
		BackupRequested: true,
		TargetPaths:     []string{path},
		Force:           force,
		Context: map[string]string{
			"tool": "pm2",
			"apps": m.appSummary(),
		},
	}

	_, err := m.fw.Execute(ctx, "pm2-ecosystem", md, func(ctx context.Context) (any, error) {
		if err := writeConfigFile(path, m.renderEcosystem(), 0o644); err != nil {
			return nil, err
		}
		if _, err := m.runner.Run(ctx, "pm2", "startOrReload", path); err != nil {
			return nil, err
		}
		return map[string]any{"ecosystem_path": path, "apps": len(m.config.Apps)}, nil
	})
	return err
}

func (m *PM2Manager) sortedApps() []string {
	names := make([]string, 0, len(m.config.Apps))
	for name := range m.config.Apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *PM2Manager) appSummary() string {
	parts := make([]string, 0, len(m.config.Apps))
	for _, name := range m.sortedApps() {
		parts = append(parts, name+"="+m.config.Apps[name])
	}
	return strings.Join(parts, ",")
}

// renderEcosystem produces the ecosystem.config.js content.
func (m *PM2Manager) renderEcosystem() string {
	var b strings.Builder
	b.WriteString("// Managed by devstack. Edits here are overwritten on the next setup run.\n")
	b.WriteString("module.exports = {\n  apps: [\n")
	for _, name := range m.sortedApps() {
		fmt.Fprintf(&b, "    {\n")
		fmt.Fprintf(&b, "      name: %q,\n", name)
		fmt.Fprintf(&b, "      script: %q,\n", m.config.Apps[name])
		fmt.Fprintf(&b, "      env: { NODE_ENV: \"development\" },\n")
		fmt.Fprintf(&b, "      max_restarts: 10,\n")
		fmt.Fprintf(&b, "    },\n")
	}
	b.WriteString("  ],\n};\n")
	return b.String()
}
