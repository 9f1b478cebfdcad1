// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the terminology service configuration from a
// yaml file with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the persisted service configuration.
type Config struct {
	// Database is the root directory of the store and search index.
	Database string `yaml:"database"`
	// SyncWrites forces synchronous KV writes during import.
	SyncWrites bool `yaml:"sync_writes"`
	// DefaultLocale is the BCP-47 priority list applied when a request
	// carries none.
	DefaultLocale string `yaml:"default_locale"`
	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`
	// LogLevel is DEBUG, INFO, WARN or ERROR.
	LogLevel string `yaml:"log_level"`
	// LogDir enables JSON file logging when set.
	LogDir string `yaml:"log_dir"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`
	// Metrics exposes prometheus metrics on /metrics when true.
	Metrics bool `yaml:"metrics"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Database:      defaultDatabase(),
		DefaultLocale: "en-GB",
		Server:        ServerConfig{Addr: ":8080", Metrics: true},
		LogLevel:      "INFO",
	}
}

func defaultDatabase() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "terminology.db"
	}
	return filepath.Join(home, ".terminology", "db")
}

// DefaultPath is where Load looks when no explicit path is given.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".terminology", "terminology.yaml"), nil
}

// Load reads the configuration at path, creating a default file on
// first run when path is the default location. Environment variables
// override file values afterwards.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return cfg, err
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return cfg, fmt.Errorf("config file %s does not exist", path)
		}
		if err := writeDefault(path, cfg); err != nil {
			return cfg, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv maps TERMINOLOGY_* variables onto the config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TERMINOLOGY_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("TERMINOLOGY_LOCALE"); v != "" {
		cfg.DefaultLocale = v
	}
	if v := os.Getenv("TERMINOLOGY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("TERMINOLOGY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func writeDefault(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
