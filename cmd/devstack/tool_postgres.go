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

// PostgresManager applies development tuning to postgresql.conf and
// local auth rules to pg_hba.conf.
type PostgresManager struct {
	fw     *safety.Framework
	runner CommandRunner
	config PostgresConfig
}

var _ ToolManager = (*PostgresManager)(nil)

func NewPostgresManager(fw *safety.Framework, runner CommandRunner, config PostgresConfig) *PostgresManager {
	return &PostgresManager{fw: fw, runner: runner, config: config}
}

func (m *PostgresManager) Name() string { return "postgres" }

func (m *PostgresManager) Description() string {
	return "Tune postgresql.conf and pg_hba.conf for local development"
}

// Setup rewrites both config files under one operation.
//
// # Description
//
// Both files are declared as backup targets of the same operation, so
// a restart failure after the pg_hba.conf write restores the pair
// together. Restoring only one would leave the server rejecting the
// auth rules the other still references.
func (m *PostgresManager) Setup(ctx context.Context, force bool) error {
	confPath := expandHome(m.config.ConfigPath)
	hbaPath := expandHome(m.config.HBAPath)

	md := safety.Metadata{
		BackupRequested: true,
		TargetPaths:     []string{confPath, hbaPath},
		Force:           force,
		Context: map[string]string{
			"tool":            "postgres",
			"shared_buffers":  m.config.SharedBuffers,
			"max_connections": fmt.Sprintf("%d", m.config.MaxConnections),
		},
	}

	_, err := m.fw.Execute(ctx, "postgres-config", md, func(ctx context.Context) (any, error) {
		if err := writeConfigFile(confPath, m.renderConfig(), 0o640); err != nil {
			return nil, err
		}
		if err := writeConfigFile(hbaPath, m.renderHBA(), 0o640); err != nil {
			return nil, err
		}
		if err := runSteps(ctx, m.runner, m.config.RestartCommand); err != nil {
			return nil, err
		}
		return map[string]string{"config_path": confPath, "hba_path": hbaPath}, nil
	})
	return err
}

// renderConfig produces the managed postgresql.conf content.
func (m *PostgresManager) renderConfig() string {
	var b strings.Builder
	b.WriteString("# Managed by devstack. Edits here are overwritten on the next setup run.\n")
	b.WriteString("listen_addresses = 'localhost'\n")
	fmt.Fprintf(&b, "shared_buffers = '%s'\n", m.config.SharedBuffers)
	fmt.Fprintf(&b, "max_connections = %d\n", m.config.MaxConnections)
	b.WriteString("log_min_duration_statement = 250\n")
	b.WriteString("logging_collector = on\n")
	return b.String()
}

// renderHBA produces permissive local-only auth rules.
func (m *PostgresManager) renderHBA() string {
	var b strings.Builder
	b.WriteString("# Managed by devstack. Local development rules only.\n")
	b.WriteString("local   all   all                 peer\n")
	b.WriteString("host    all   all   127.0.0.1/32  scram-sha-256\n")
	b.WriteString("host    all   all   ::1/128       scram-sha-256\n")
	return b.String()
}
