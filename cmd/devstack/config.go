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
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the devstack configuration, loaded from config.yaml.
type Config struct {
	// Safety configures the execution framework every mutation runs under.
	Safety SafetyConfig `yaml:"safety"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Tools holds per-tool settings.
	Tools ToolsConfig `yaml:"tools"`
}

type SafetyConfig struct {
	// Home is the root for backups, the operation archive, and the
	// audit trail. Default: ~/.devstack/safety
	Home string `yaml:"home"`

	// KeepPerKey is snapshot retention per operation key. Default: 5
	KeepPerKey int `yaml:"keep_per_key"`

	// DefaultTimeoutMinutes bounds actions without an explicit deadline.
	// Default: 30
	DefaultTimeoutMinutes int `yaml:"default_timeout_minutes"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`   // file logging directory; empty disables
}

type ToolsConfig struct {
	Docker   DockerConfig   `yaml:"docker"`
	Redis    RedisConfig    `yaml:"redis"`
	Nginx    NginxConfig    `yaml:"nginx"`
	PM2      PM2Config      `yaml:"pm2"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type DockerConfig struct {
	// DaemonJSONPath is the dockerd configuration file.
	DaemonJSONPath string `yaml:"daemon_json_path"`

	// LogMaxSize caps per-container json-file logs, e.g. "10m".
	LogMaxSize string `yaml:"log_max_size"`

	// RestartCommand restarts the daemon after a config change.
	RestartCommand []string `yaml:"restart_command"`
}

type RedisConfig struct {
	ConfigPath string `yaml:"config_path"`

	// MaxMemory is the maxmemory directive value, e.g. "256mb".
	MaxMemory string `yaml:"max_memory"`

	// AppendOnly enables AOF persistence.
	AppendOnly bool `yaml:"append_only"`

	RestartCommand []string `yaml:"restart_command"`
}

type NginxConfig struct {
	ConfigPath string `yaml:"config_path"`
	SitesDir   string `yaml:"sites_dir"`

	// Upstreams maps site names to proxied addresses, e.g.
	// "app" -> "127.0.0.1:3000".
	Upstreams map[string]string `yaml:"upstreams"`

	// TestCommand validates the config before reload (nginx -t).
	TestCommand []string `yaml:"test_command"`

	ReloadCommand []string `yaml:"reload_command"`
}

type PM2Config struct {
	// EcosystemPath is where the generated ecosystem.config.js lands.
	EcosystemPath string `yaml:"ecosystem_path"`

	// Apps maps process names to script paths.
	Apps map[string]string `yaml:"apps"`
}

type PostgresConfig struct {
	ConfigPath string `yaml:"config_path"`
	HBAPath    string `yaml:"hba_path"`

	// SharedBuffers and MaxConnections are written into the generated
	// tuning block.
	SharedBuffers  string `yaml:"shared_buffers"`
	MaxConnections int    `yaml:"max_connections"`

	RestartCommand []string `yaml:"restart_command"`
}

// DefaultConfig returns the configuration used when config.yaml is
// absent or leaves fields unset.
func DefaultConfig() Config {
	return Config{
		Safety: SafetyConfig{
			Home:                  "~/.devstack/safety",
			KeepPerKey:            5,
			DefaultTimeoutMinutes: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.devstack/logs",
		},
		Tools: ToolsConfig{
			Docker: DockerConfig{
				DaemonJSONPath: "/etc/docker/daemon.json",
				LogMaxSize:     "10m",
				RestartCommand: []string{"systemctl", "restart", "docker"},
			},
			Redis: RedisConfig{
				ConfigPath:     "/etc/redis/redis.conf",
				MaxMemory:      "256mb",
				AppendOnly:     true,
				RestartCommand: []string{"systemctl", "restart", "redis-server"},
			},
			Nginx: NginxConfig{
				ConfigPath:    "/etc/nginx/nginx.conf",
				SitesDir:      "/etc/nginx/conf.d",
				TestCommand:   []string{"nginx", "-t"},
				ReloadCommand: []string{"systemctl", "reload", "nginx"},
			},
			PM2: PM2Config{
				EcosystemPath: "~/.devstack/ecosystem.config.js",
			},
			Postgres: PostgresConfig{
				ConfigPath:     "/etc/postgresql/16/main/postgresql.conf",
				HBAPath:        "/etc/postgresql/16/main/pg_hba.conf",
				SharedBuffers:  "128MB",
				MaxConnections: 100,
				RestartCommand: []string{"systemctl", "restart", "postgresql"},
			},
		},
	}
}

// LoadConfig reads path and overlays it on the defaults. A missing
// file is not an error: the wizard works out of the box.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return config, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parsing %s: %w", path, err)
	}
	return config, nil
}

// DefaultTimeout returns the configured action timeout as a Duration.
func (c SafetyConfig) DefaultTimeout() time.Duration {
	if c.DefaultTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.DefaultTimeoutMinutes) * time.Minute
}
