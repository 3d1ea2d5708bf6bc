// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads procd's own daemon configuration — where the
// catalog lives, which boot mode to activate, and how the admin surface
// is exposed. It never touches the per-service catalog itself; that is
// internal/catalog's job.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	procderrors "github.com/bramblecore/procd/pkg/errors"
)

// Config is procd's own daemon configuration.
type Config struct {
	CatalogPath     string        `yaml:"catalog_path"`
	BootMode        string        `yaml:"boot_mode"`
	PIDFile         string        `yaml:"pid_file"`
	StateFile       string        `yaml:"state_file"`
	AdminListen     string        `yaml:"admin_listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Log             LogConfig     `yaml:"log"`
}

// LogConfig configures procd's own structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults for a system-wide
// installation.
func Default() *Config {
	return &Config{
		CatalogPath:     "/etc/procd/services.ini",
		BootMode:        "graphical",
		PIDFile:         "/run/procd.pid",
		StateFile:       "/run/procd/state.json",
		AdminListen:     "unix:/run/procd/admin.sock",
		ShutdownTimeout: 10 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configPath, if non-empty, over Default(), applies
// PROCD_-prefixed environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &procderrors.ConfigError{Key: "config_file", Reason: err.Error()}
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("PROCD_CATALOG_PATH"); v != "" {
		c.CatalogPath = v
	}
	if v := os.Getenv("PROCD_BOOT_MODE"); v != "" {
		c.BootMode = v
	}
	if v := os.Getenv("PROCD_PID_FILE"); v != "" {
		c.PIDFile = v
	}
	if v := os.Getenv("PROCD_STATE_FILE"); v != "" {
		c.StateFile = v
	}
	if v := os.Getenv("PROCD_ADMIN_LISTEN"); v != "" {
		c.AdminListen = v
	}
	if v := os.Getenv("PROCD_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("PROCD_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PROCD_LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
}

// Validate checks that Config is internally consistent.
func (c *Config) Validate() error {
	if c.CatalogPath == "" {
		return &procderrors.ConfigError{Key: "catalog_path", Reason: "must not be empty"}
	}
	if c.BootMode == "" {
		return &procderrors.ConfigError{Key: "boot_mode", Reason: "must not be empty"}
	}
	if c.ShutdownTimeout <= 0 {
		return &procderrors.ConfigError{Key: "shutdown_timeout", Reason: "must be positive"}
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return &procderrors.ConfigError{Key: "log.level", Reason: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		return &procderrors.ConfigError{Key: "log.format", Reason: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	if c.AdminListen != "" && !strings.HasPrefix(c.AdminListen, "unix:") && !strings.HasPrefix(c.AdminListen, "tcp:") {
		return &procderrors.ConfigError{Key: "admin_listen", Reason: "must start with unix: or tcp:"}
	}
	return nil
}
