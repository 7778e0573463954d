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
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/devstack/cmd/devstack/internal/safety"
)

// NginxManager writes reverse-proxy site configs and reloads nginx.
type NginxManager struct {
	fw     *safety.Framework
	runner CommandRunner
	config NginxConfig
}

var _ ToolManager = (*NginxManager)(nil)

func NewNginxManager(fw *safety.Framework, runner CommandRunner, config NginxConfig) *NginxManager {
	return &NginxManager{fw: fw, runner: runner, config: config}
}

func (m *NginxManager) Name() string { return "nginx" }

func (m *NginxManager) Description() string {
	return "Generate reverse-proxy site configs, validate with nginx -t, reload"
}

// Setup writes one site file per configured upstream under the safety
// framework.
//
// # Description
//
// The whole sites directory is a single backup target: rollback
// restores the directory tree as a unit, including files the action
// created or replaced. nginx -t runs before the reload, so a broken
// render fails the action while the old config is still serving.
func (m *NginxManager) Setup(ctx context.Context, force bool) error {
	if len(m.config.Upstreams) == 0 {
		return fmt.Errorf("nginx: no upstreams configured")
	}
	sitesDir := expandHome(m.config.SitesDir)

	md := safety.Metadata{
		BackupRequested: true,
		TargetPaths:     []string{sitesDir},
		Force:           force,
		Context: map[string]string{
			"tool":      "nginx",
			"upstreams": m.upstreamSummary(),
		},
	}

	_, err := m.fw.Execute(ctx, "nginx-sites", md, func(ctx context.Context) (any, error) {
		written := make([]string, 0, len(m.config.Upstreams))
		for _, name := range m.sortedSites() {
			path := filepath.Join(sitesDir, name+".conf")
			if err := writeConfigFile(path, m.renderSite(name, m.config.Upstreams[name]), 0o644); err != nil {
				return nil, err
			}
			written = append(written, path)
		}
		if err := runSteps(ctx, m.runner, m.config.TestCommand, m.config.ReloadCommand); err != nil {
			return nil, err
		}
		return written, nil
	})
	return err
}

// sortedSites returns site names in stable order.
func (m *NginxManager) sortedSites() []string {
	names := make([]string, 0, len(m.config.Upstreams))
	for name := range m.config.Upstreams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *NginxManager) upstreamSummary() string {
	parts := make([]string, 0, len(m.config.Upstreams))
	for _, name := range m.sortedSites() {
		parts = append(parts, name+"="+m.config.Upstreams[name])
	}
	return strings.Join(parts, ",")
}

// renderSite produces a proxy server block for one upstream.
func (m *NginxManager) renderSite(name, upstream string) string {
	var b strings.Builder
	b.WriteString("# Managed by devstack. Edits here are overwritten on the next setup run.\n")
	fmt.Fprintf(&b, "server {\n")
	fmt.Fprintf(&b, "    listen 80;\n")
	fmt.Fprintf(&b, "    server_name %s.localhost;\n\n", name)
	fmt.Fprintf(&b, "    location / {\n")
	fmt.Fprintf(&b, "        proxy_pass http://%s;\n", upstream)
	fmt.Fprintf(&b, "        proxy_set_header Host $host;\n")
	fmt.Fprintf(&b, "        proxy_set_header X-Real-IP $remote_addr;\n")
	fmt.Fprintf(&b, "        proxy_set_header Upgrade $http_upgrade;\n")
	fmt.Fprintf(&b, "        proxy_set_header Connection \"upgrade\";\n")
	fmt.Fprintf(&b, "    }\n")
	fmt.Fprintf(&b, "}\n")
	return b.String()
}
