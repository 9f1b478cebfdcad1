// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command terminology manages a SNOMED CT terminology database.
//
// Usage:
//
//	terminology import ~/Downloads/SnomedCT_Release/Snapshot
//	terminology index
//	terminology serve
//	terminology search -s "mult scl"
//	terminology status
//
// A yaml configuration file is created at ~/.terminology/terminology.yaml
// on first run; --config selects another file and TERMINOLOGY_* variables
// override individual values.
package main

import (
	"fmt"
	"os"

	"github.com/AleutianAI/terminology/pkg/logging"
	"github.com/AleutianAI/terminology/services/terminology/config"
)

var (
	cfg    config.Config
	logger *logging.Logger
)

func main() {
	defer func() {
		if logger != nil {
			_ = logger.Close()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig runs as the root PersistentPreRun: resolve the config
// file, then build the process logger from it.
func loadConfig() {
	loaded, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminology: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded
	if databaseFlag != "" {
		cfg.Database = databaseFlag
	}

	level := logging.ParseLevel(cfg.LogLevel)
	if verbose {
		level = logging.LevelDebug
	}
	logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.LogDir,
		Service: "terminology",
	})
}

// fatalf reports an operational failure and exits.
func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "terminology: "+format+"\n", args...)
	os.Exit(1)
}
