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
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/terminology/pkg/telemetry"
	terminology "github.com/AleutianAI/terminology/services/terminology"
	"github.com/AleutianAI/terminology/services/terminology/search"
	"github.com/AleutianAI/terminology/services/terminology/server"
)

func openService() *terminology.Service {
	svc, err := terminology.Open(terminology.Config{
		Path:       cfg.Database,
		SyncWrites: cfg.SyncWrites,
	}, logger.Logger)
	if err != nil {
		fatalf("open database %s: %v", cfg.Database, err)
	}
	return svc
}

// runImport ingests one or more RF2 snapshot directories, then rebuilds
// the transitive closure. The search index must be rebuilt separately.
func runImport(cmd *cobra.Command, args []string) {
	svc := openService()
	defer svc.Close()

	ctx := cmd.Context()
	for _, dir := range args {
		logger.Info("importing release files", "dir", dir)
		summary, err := svc.Import(ctx, dir)
		if err != nil {
			fatalf("import %s: %v", dir, err)
		}
		fmt.Printf("imported %s: %d files, %d concepts, %d descriptions, "+
			"%d relationships, %d refset items in %s\n",
			dir, summary.Files, summary.Concepts, summary.Descriptions,
			summary.Relationships, summary.RefsetItems,
			summary.Elapsed.Round(time.Millisecond))
		if summary.InvalidIdentifiers > 0 {
			fmt.Printf("  skipped %d rows with invalid identifiers\n",
				summary.InvalidIdentifiers)
		}
		for _, e := range summary.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}
	fmt.Println("run 'terminology index' to rebuild the search index")
}

func runIndex(cmd *cobra.Command, args []string) {
	svc := openService()
	defer svc.Close()

	docs, err := svc.BuildIndex(cmd.Context())
	if err != nil {
		fatalf("build index: %v", err)
	}
	fmt.Printf("indexed %d descriptions\n", docs)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		fatalf("telemetry: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	svc := openService()
	defer svc.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(server.Config{
		Addr:    addr,
		Metrics: cfg.Server.Metrics,
	}, svc, logger.Logger)

	if err := srv.Run(ctx); err != nil {
		fatalf("serve: %v", err)
	}
}

func runSearch(cmd *cobra.Command, args []string) {
	term := strings.Join(args, " ")
	if term == "" {
		fatalf("search needs a query, e.g. terminology search mult scl")
	}

	svc := openService()
	defer svc.Close()

	locale := searchLocale
	if locale == "" {
		locale = cfg.DefaultLocale
	}
	req := terminology.SearchRequest{Locale: locale}
	req.Term = term
	req.MaxHits = searchMax
	req.Fuzzy = searchFuzzy
	req.FallbackFuzzy = !searchFuzzy
	req.IncludeFSN = searchFSN
	req.ConceptRefsets = searchRefsets
	req.RemoveDuplicates = true

	results, err := svc.Search(cmd.Context(), req)
	if err != nil {
		fatalf("search: %v", err)
	}
	printResults(results)
}

func printResults(results []search.Result) {
	if len(results) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, r := range results {
		line := fmt.Sprintf("%d\t%s", r.ConceptID, r.Term)
		if r.PreferredTerm != "" && r.PreferredTerm != r.Term {
			line += fmt.Sprintf("\t(%s)", r.PreferredTerm)
		}
		fmt.Println(line)
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	svc := openService()
	defer svc.Close()

	counts, err := svc.Status(cmd.Context())
	if err != nil {
		fatalf("status: %v", err)
	}
	fmt.Printf("database:       %s\n", cfg.Database)
	fmt.Printf("concepts:       %d\n", counts.Concepts)
	fmt.Printf("descriptions:   %d\n", counts.Descriptions)
	fmt.Printf("relationships:  %d\n", counts.Relationships)
	fmt.Printf("refset items:   %d\n", counts.RefsetItems)
	fmt.Printf("refsets:        %d installed\n", len(counts.Refsets))
}
