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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "~/.devstack/safety", config.Safety.Home)
	assert.Equal(t, 5, config.Safety.KeepPerKey)
	assert.Equal(t, 30*time.Minute, config.Safety.DefaultTimeout())
	assert.Equal(t, "/etc/redis/redis.conf", config.Tools.Redis.ConfigPath)
	assert.Equal(t, []string{"nginx", "-t"}, config.Tools.Nginx.TestCommand)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
safety:
  home: /tmp/devstack-safety
  default_timeout_minutes: 5
tools:
  redis:
    max_memory: 1gb
  nginx:
    upstreams:
      api: 127.0.0.1:3000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/devstack-safety", config.Safety.Home)
	assert.Equal(t, 5*time.Minute, config.Safety.DefaultTimeout())
	assert.Equal(t, "1gb", config.Tools.Redis.MaxMemory)
	assert.Equal(t, "127.0.0.1:3000", config.Tools.Nginx.Upstreams["api"])

	// Untouched fields keep their defaults.
	assert.Equal(t, 5, config.Safety.KeepPerKey)
	assert.Equal(t, "/etc/redis/redis.conf", config.Tools.Redis.ConfigPath)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("safety: ["), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestDefaultTimeoutFloor(t *testing.T) {
	cfg := SafetyConfig{DefaultTimeoutMinutes: 0}
	assert.Equal(t, 30*time.Minute, cfg.DefaultTimeout())

	cfg.DefaultTimeoutMinutes = -3
	assert.Equal(t, 30*time.Minute, cfg.DefaultTimeout())
}
