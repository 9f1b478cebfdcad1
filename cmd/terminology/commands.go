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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath   string
	databaseFlag string
	verbose      bool

	// search flags
	searchMax     int
	searchLocale  string
	searchFuzzy   bool
	searchFSN     bool
	searchRefsets []int64

	// serve flags
	serveAddr string

	rootCmd = &cobra.Command{
		Use:   "terminology",
		Short: "A SNOMED CT terminology server and query tool",
		Long: `Terminology imports SNOMED CT RF2 snapshot releases into a local
database, builds a full-text search index over their descriptions and
serves concept lookups, ranked search and ECL evaluation over HTTP.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadConfig()
		},
	}

	importCmd = &cobra.Command{
		Use:   "import [directory...]",
		Short: "Import RF2 snapshot release files into the database",
		Args:  cobra.MinimumNArgs(1),
		Run:   runImport, // Defined in cmd_run.go
	}

	indexCmd = &cobra.Command{
		Use:   "index",
		Short: "Build the full-text search index from the imported release",
		Run:   runIndex, // Defined in cmd_run.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the terminology HTTP API",
		Run:   runServe, // Defined in cmd_run.go
	}

	searchCmd = &cobra.Command{
		Use:   "search",
		Short: "Search descriptions from the command line",
		Run:   runSearch, // Defined in cmd_run.go
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show component counts and installed reference sets",
		Run:   runStatus, // Defined in cmd_run.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default ~/.terminology/terminology.yaml)")
	rootCmd.PersistentFlags().StringVar(&databaseFlag, "db", "",
		"database directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"debug logging")

	searchCmd.Flags().IntVar(&searchMax, "max", 20, "maximum hits")
	searchCmd.Flags().StringVar(&searchLocale, "locale", "",
		"BCP-47 locale priority list, e.g. en-GB")
	searchCmd.Flags().BoolVar(&searchFuzzy, "fuzzy", false, "fuzzy token matching")
	searchCmd.Flags().BoolVar(&searchFSN, "fsn", false, "include fully specified names")
	searchCmd.Flags().Int64SliceVar(&searchRefsets, "refset", nil,
		"restrict to members of these reference sets")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"listen address (overrides config)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
}
