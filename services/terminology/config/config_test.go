// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terminology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"database: /data/snomed\ndefault_locale: en-US\nserver:\n  addr: \":9999\"\n",
	), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/snomed", cfg.Database)
	assert.Equal(t, "en-US", cfg.DefaultLocale)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	// Untouched fields keep their defaults.
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terminology.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: /data/snomed\n"), 0o644))

	t.Setenv("TERMINOLOGY_DATABASE", "/elsewhere")
	t.Setenv("TERMINOLOGY_LOG_LEVEL", "DEBUG")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere", cfg.Database)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terminology.yaml")
	require.NoError(t, os.WriteFile(path, []byte("::: not yaml"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.Database)
	assert.Equal(t, "en-GB", cfg.DefaultLocale)
	assert.True(t, cfg.Server.Metrics)
}
