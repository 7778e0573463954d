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
	"strings"

	"github.com/AleutianAI/devstack/cmd/devstack/internal/safety"
)

// RedisManager writes a development redis.conf and restarts the server.
type RedisManager struct {
	fw     *safety.Framework
	runner CommandRunner
	config RedisConfig
}

var _ ToolManager = (*RedisManager)(nil)

func NewRedisManager(fw *safety.Framework, runner CommandRunner, config RedisConfig) *RedisManager {
	return &RedisManager{fw: fw, runner: runner, config: config}
}

func (m *RedisManager) Name() string { return "redis" }

func (m *RedisManager) Description() string {
	return "Write a bounded-memory redis.conf and restart redis-server"
}

// Setup renders and applies redis.conf under the safety framework.
// A restart failure restores the previous config byte-for-byte.
func (m *RedisManager) Setup(ctx context.Context, force bool) error {
	path := expandHome(m.config.ConfigPath)

	md := safety.Metadata{
		BackupRequested: true,
		TargetPaths:     []string{path},
		Force:           force,
		Context: map[string]string{
			"tool":        "redis",
			"max_memory":  m.config.MaxMemory,
			"append_only": fmt.Sprintf("%t", m.config.AppendOnly),
		},
	}

	_, err := m.fw.Execute(ctx, "redis-config", md, func(ctx context.Context) (any, error) {
		if err := writeConfigFile(path, m.renderConfig(), 0o640); err != nil {
			return nil, err
		}
		if err := runSteps(ctx, m.runner, m.config.RestartCommand); err != nil {
			return nil, err
		}
		return map[string]string{"config_path": path, "maxmemory": m.config.MaxMemory}, nil
	})
	return err
}

// renderConfig produces the managed redis.conf content.
func (m *RedisManager) renderConfig() string {
	appendOnly := "no"
	if m.config.AppendOnly {
		appendOnly = "yes"
	}
	var b strings.Builder
	b.WriteString("# Managed by devstack. Edits here are overwritten on the next setup run.\n")
	fmt.Fprintf(&b, "maxmemory %s\n", m.config.MaxMemory)
	b.WriteString("maxmemory-policy allkeys-lru\n")
	fmt.Fprintf(&b, "appendonly %s\n", appendOnly)
	b.WriteString("save 900 1\n")
	b.WriteString("bind 127.0.0.1\n")
	b.WriteString("protected-mode yes\n")
	return b.String()
}
