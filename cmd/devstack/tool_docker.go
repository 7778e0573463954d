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
	"encoding/json"
	"fmt"
	"os"

	"github.com/AleutianAI/devstack/cmd/devstack/internal/safety"
)

// DockerManager configures the Docker daemon's logging limits.
type DockerManager struct {
	fw     *safety.Framework
	runner CommandRunner
	config DockerConfig
}

var _ ToolManager = (*DockerManager)(nil)

func NewDockerManager(fw *safety.Framework, runner CommandRunner, config DockerConfig) *DockerManager {
	return &DockerManager{fw: fw, runner: runner, config: config}
}

func (m *DockerManager) Name() string { return "docker" }

func (m *DockerManager) Description() string {
	return "Cap container log growth in daemon.json and restart the daemon"
}

// Setup merges the log settings into daemon.json under the safety
// framework.
//
// # Description
//
// daemon.json is shared with settings devstack does not own, so it is
// read-modify-write rather than templated from scratch. The file is
// snapshotted before the write; a failed daemon restart rolls the
// previous content back.
func (m *DockerManager) Setup(ctx context.Context, force bool) error {
	path := expandHome(m.config.DaemonJSONPath)

	md := safety.Metadata{
		BackupRequested: true,
		TargetPaths:     []string{path},
		Force:           force,
		Context: map[string]string{
			"tool":         "docker",
			"log_max_size": m.config.LogMaxSize,
		},
	}

	_, err := m.fw.Execute(ctx, "docker-daemon-config", md, func(ctx context.Context) (any, error) {
		settings, err := m.loadDaemonSettings(path)
		if err != nil {
			return nil, err
		}

		settings["log-driver"] = "json-file"
		settings["log-opts"] = map[string]any{
			"max-size": m.config.LogMaxSize,
			"max-file": "3",
		}

		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := writeConfigFile(path, string(data)+"\n", 0o644); err != nil {
			return nil, err
		}
		if err := runSteps(ctx, m.runner, m.config.RestartCommand); err != nil {
			return nil, err
		}
		return settings, nil
	})
	return err
}

// loadDaemonSettings reads the existing daemon.json, tolerating absence.
func (m *DockerManager) loadDaemonSettings(path string) (map[string]any, error) {
	settings := make(map[string]any)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return settings, nil
}
