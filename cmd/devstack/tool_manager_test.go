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
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/devstack/cmd/devstack/internal/safety"
)

// fakeRunner records commands and fails those matching failOn.
type fakeRunner struct {
	commands []string
	failOn   string
	missing  map[string]bool
}

var _ CommandRunner = (*fakeRunner)(nil)

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	display := strings.TrimSpace(name + " " + strings.Join(args, " "))
	r.commands = append(r.commands, display)
	if r.failOn != "" && strings.Contains(display, r.failOn) {
		return "", NewCommandError(display, 1, "simulated failure", errors.New("exit status 1"))
	}
	return "", nil
}

func (r *fakeRunner) LookPath(name string) (string, error) {
	if r.missing[name] {
		return "", errors.New("executable file not found in $PATH")
	}
	return "/usr/bin/" + name, nil
}

func newTestFramework(t *testing.T) *safety.Framework {
	t.Helper()
	fw, err := safety.New(safety.Config{
		Home:   filepath.Join(t.TempDir(), "safety"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fw.Close() })
	return fw
}

func TestRedisSetupWritesConfigAndRestarts(t *testing.T) {
	fw := newTestFramework(t)
	runner := &fakeRunner{}
	path := filepath.Join(t.TempDir(), "redis.conf")

	mgr := NewRedisManager(fw, runner, RedisConfig{
		ConfigPath:     path,
		MaxMemory:      "256mb",
		AppendOnly:     true,
		RestartCommand: []string{"systemctl", "restart", "redis-server"},
	})

	require.NoError(t, mgr.Setup(context.Background(), false))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "maxmemory 256mb")
	assert.Contains(t, string(content), "appendonly yes")
	assert.Equal(t, []string{"systemctl restart redis-server"}, runner.commands)
}

func TestRedisSetupRestartFailureRestoresConfig(t *testing.T) {
	fw := newTestFramework(t)
	runner := &fakeRunner{failOn: "systemctl restart"}
	path := filepath.Join(t.TempDir(), "redis.conf")
	require.NoError(t, os.WriteFile(path, []byte("maxmemory 64mb\n"), 0o640))

	mgr := NewRedisManager(fw, runner, RedisConfig{
		ConfigPath:     path,
		MaxMemory:      "512mb",
		RestartCommand: []string{"systemctl", "restart", "redis-server"},
	})

	err := mgr.Setup(context.Background(), false)
	require.Error(t, err)

	var actionErr *safety.ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.True(t, actionErr.RolledBack)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)

	// The previous config is back.
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "maxmemory 64mb\n", string(content))
}

func TestRedisSetupIsIdempotent(t *testing.T) {
	fw := newTestFramework(t)
	runner := &fakeRunner{}
	path := filepath.Join(t.TempDir(), "redis.conf")
	config := RedisConfig{
		ConfigPath:     path,
		MaxMemory:      "256mb",
		RestartCommand: []string{"systemctl", "restart", "redis-server"},
	}

	mgr := NewRedisManager(fw, runner, config)
	require.NoError(t, mgr.Setup(context.Background(), false))
	require.NoError(t, mgr.Setup(context.Background(), false))

	// The replay did not restart redis again.
	assert.Len(t, runner.commands, 1)

	// Force re-runs.
	require.NoError(t, mgr.Setup(context.Background(), true))
	assert.Len(t, runner.commands, 2)
}

func TestNginxSetupValidatesBeforeReload(t *testing.T) {
	fw := newTestFramework(t)
	runner := &fakeRunner{}
	sitesDir := filepath.Join(t.TempDir(), "conf.d")

	mgr := NewNginxManager(fw, runner, NginxConfig{
		SitesDir:      sitesDir,
		Upstreams:     map[string]string{"api": "127.0.0.1:3000", "web": "127.0.0.1:8080"},
		TestCommand:   []string{"nginx", "-t"},
		ReloadCommand: []string{"systemctl", "reload", "nginx"},
	})

	require.NoError(t, mgr.Setup(context.Background(), false))
	require.Equal(t, []string{"nginx -t", "systemctl reload nginx"}, runner.commands)

	content, err := os.ReadFile(filepath.Join(sitesDir, "api.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "proxy_pass http://127.0.0.1:3000;")
	assert.Contains(t, string(content), "server_name api.localhost;")
}

func TestNginxSetupBadConfigRollsBackSitesDir(t *testing.T) {
	fw := newTestFramework(t)
	runner := &fakeRunner{failOn: "nginx -t"}
	sitesDir := filepath.Join(t.TempDir(), "conf.d")
	require.NoError(t, os.MkdirAll(sitesDir, 0o755))
	existing := filepath.Join(sitesDir, "manual.conf")
	require.NoError(t, os.WriteFile(existing, []byte("server {}\n"), 0o644))

	mgr := NewNginxManager(fw, runner, NginxConfig{
		SitesDir:      sitesDir,
		Upstreams:     map[string]string{"api": "127.0.0.1:3000"},
		TestCommand:   []string{"nginx", "-t"},
		ReloadCommand: []string{"systemctl", "reload", "nginx"},
	})

	require.Error(t, mgr.Setup(context.Background(), false))

	// The generated file is gone, the pre-existing one survived, and the
	// reload never ran.
	_, err := os.Stat(filepath.Join(sitesDir, "api.conf"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(existing)
	assert.NoError(t, err)
	assert.Equal(t, []string{"nginx -t"}, runner.commands)
}

func TestNginxSetupRequiresUpstreams(t *testing.T) {
	fw := newTestFramework(t)
	mgr := NewNginxManager(fw, &fakeRunner{}, NginxConfig{SitesDir: t.TempDir()})
	assert.Error(t, mgr.Setup(context.Background(), false))
}

func TestDockerSetupPreservesExistingSettings(t *testing.T) {
	fw := newTestFramework(t)
	runner := &fakeRunner{}
	path := filepath.Join(t.TempDir(), "daemon.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"insecure-registries":["registry.local:5000"]}`), 0o644))

	mgr := NewDockerManager(fw, runner, DockerConfig{
		DaemonJSONPath: path,
		LogMaxSize:     "10m",
		RestartCommand: []string{"systemctl", "restart", "docker"},
	})

	require.NoError(t, mgr.Setup(context.Background(), false))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "insecure-registries")
	assert.Contains(t, string(content), `"max-size": "10m"`)
}

func TestPM2SetupRequiresBinary(t *testing.T) {
	fw := newTestFramework(t)
	runner := &fakeRunner{missing: map[string]bool{"pm2": true}}

	mgr := NewPM2Manager(fw, runner, PM2Config{
		EcosystemPath: filepath.Join(t.TempDir(), "ecosystem.config.js"),
		Apps:          map[string]string{"api": "dist/server.js"},
	})

	err := mgr.Setup(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pm2 is not installed")
	assert.Empty(t, runner.commands)
}

func TestPM2SetupFailureDeletesGeneratedFile(t *testing.T) {
	fw := newTestFramework(t)
	runner := &fakeRunner{failOn: "pm2 startOrReload"}
	path := filepath.Join(t.TempDir(), "ecosystem.config.js")

	mgr := NewPM2Manager(fw, runner, PM2Config{
		EcosystemPath: path,
		Apps:          map[string]string{"api": "dist/server.js"},
	})

	require.Error(t, mgr.Setup(context.Background(), false))

	// The file did not exist before, so rollback removes it entirely.
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPostgresSetupRestoresBothFilesTogether(t *testing.T) {
	fw := newTestFramework(t)
	runner := &fakeRunner{failOn: "systemctl restart postgresql"}
	dir := t.TempDir()
	confPath := filepath.Join(dir, "postgresql.conf")
	hbaPath := filepath.Join(dir, "pg_hba.conf")
	require.NoError(t, os.WriteFile(confPath, []byte("shared_buffers = '64MB'\n"), 0o640))
	require.NoError(t, os.WriteFile(hbaPath, []byte("local all all trust\n"), 0o640))

	mgr := NewPostgresManager(fw, runner, PostgresConfig{
		ConfigPath:     confPath,
		HBAPath:        hbaPath,
		SharedBuffers:  "256MB",
		MaxConnections: 200,
		RestartCommand: []string{"systemctl", "restart", "postgresql"},
	})

	require.Error(t, mgr.Setup(context.Background(), false))

	conf, err := os.ReadFile(confPath)
	require.NoError(t, err)
	hba, err := os.ReadFile(hbaPath)
	require.NoError(t, err)
	assert.Equal(t, "shared_buffers = '64MB'\n", string(conf))
	assert.Equal(t, "local all all trust\n", string(hba))
}

func TestManagerByName(t *testing.T) {
	fw := newTestFramework(t)
	managers := newManagers(fw, &fakeRunner{}, DefaultConfig().Tools)

	mgr, err := managerByName(managers, "redis")
	require.NoError(t, err)
	assert.Equal(t, "redis", mgr.Name())

	_, err = managerByName(managers, "kafka")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}
