// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rf2

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/terminology/pkg/verhoeff"
	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

const (
	// defaultBatchSize bounds the number of rows per batch.
	defaultBatchSize = 5000

	// batchChannelDepth bounds producer lead over the workers.
	batchChannelDepth = 50

	// maxReportedErrors caps per-row errors kept in the summary.
	maxReportedErrors = 100

	// maxScanTokenSize accommodates long OWL expression rows.
	maxScanTokenSize = 1024 * 1024
)

// Batch is a set of parsed components from one release file.
type Batch struct {
	Info          FileInfo
	Concepts      []snomed.Concept
	Descriptions  []snomed.Description
	Relationships []snomed.Relationship
	RefsetItems   []snomed.RefsetItem
}

// Len returns the number of components in the batch.
func (b *Batch) Len() int {
	return len(b.Concepts) + len(b.Descriptions) + len(b.Relationships) + len(b.RefsetItems)
}

// BatchHandler persists one batch. Handlers are called concurrently
// from multiple workers; batch order is unspecified. The store's
// max-effective-time merge makes out-of-order replay safe.
type BatchHandler func(ctx context.Context, batch *Batch) error

// Summary reports the outcome of an import run. Row-level parse and
// identifier problems are recoverable and accumulated here; only store
// failures abort the run.
type Summary struct {
	Files              int           `json:"files"`
	Concepts           int64         `json:"concepts"`
	Descriptions       int64         `json:"descriptions"`
	Relationships      int64         `json:"relationships"`
	RefsetItems        int64         `json:"refset_items"`
	InvalidIdentifiers int64         `json:"invalid_identifiers"`
	Errors             []string      `json:"errors,omitempty"`
	Elapsed            time.Duration `json:"elapsed"`

	mu sync.Mutex
}

func (s *Summary) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Errors) < maxReportedErrors {
		s.Errors = append(s.Errors, err.Error())
	}
}

func (s *Summary) add(batch *Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Concepts += int64(len(batch.Concepts))
	s.Descriptions += int64(len(batch.Descriptions))
	s.Relationships += int64(len(batch.Relationships))
	s.RefsetItems += int64(len(batch.RefsetItems))
}

// Importer streams RF2 snapshot files into a BatchHandler.
//
// # Pipeline
//
// A single producer goroutine reads files line by line and emits raw
// row batches into a bounded channel (depth 50). A pool of workers
// (default: NumCPU) parses rows into typed components and invokes the
// handler. Cancellation closes the channel; workers drain in-flight
// batches and exit.
type Importer struct {
	log       *slog.Logger
	handler   BatchHandler
	batchSize int
	workers   int
	progress  bool
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithLogger sets the importer's logger.
func WithLogger(log *slog.Logger) ImporterOption {
	return func(imp *Importer) { imp.log = log }
}

// WithBatchSize overrides the default batch size of 5000 rows.
func WithBatchSize(n int) ImporterOption {
	return func(imp *Importer) {
		if n > 0 {
			imp.batchSize = n
		}
	}
}

// WithWorkers overrides the default worker count of NumCPU.
func WithWorkers(n int) ImporterOption {
	return func(imp *Importer) {
		if n > 0 {
			imp.workers = n
		}
	}
}

// NewImporter creates an importer that feeds parsed batches to handler.
func NewImporter(handler BatchHandler, opts ...ImporterOption) *Importer {
	imp := &Importer{
		log:       slog.Default(),
		handler:   handler,
		batchSize: defaultBatchSize,
		workers:   runtime.NumCPU(),
		progress:  isatty.IsTerminal(os.Stderr.Fd()),
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// rawBatch is an unparsed slice of rows from one file. kindHint is the
// filename-derived refset kind; resolver is read-only after the
// descriptor pass and overrides the hint per row.
type rawBatch struct {
	info     FileInfo
	kindHint snomed.RefsetKind
	resolver map[int64]snomed.RefsetKind
	rows     [][]string
}

// refsetKind resolves the concrete kind for one reference-set row. The
// descriptor table overrides the filename hint per refset id, so a file
// carrying members of several refsets reifies each row by its own
// refset's declared shape.
func (raw *rawBatch) refsetKind(cols []string) snomed.RefsetKind {
	kind := raw.kindHint
	if len(cols) > refsetHeaderColumns-1 {
		if id, err := parseID(cols[4]); err == nil {
			if k, ok := raw.resolver[id]; ok && len(k.Signature()) == len(raw.info.Pattern) {
				kind = k
			}
		}
	}
	return kind
}

// ImportDir ingests every RF2 snapshot file under dir.
//
// Description:
//
//	Walks dir for files matching the RF2 naming convention, ingests
//	RefsetDescriptor files first so later reference-set rows can be
//	reified by their declared attribute descriptions, then streams the
//	remaining files through the parallel pipeline. Full and Delta files
//	are skipped; the snapshot is authoritative.
//
// Outputs:
//   - *Summary: counts, recoverable row errors, elapsed time.
//   - error: non-nil only for store or filesystem failures, which abort
//     the run.
func (imp *Importer) ImportDir(ctx context.Context, dir string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	files, err := imp.discover(dir, summary)
	if err != nil {
		return nil, err
	}
	summary.Files = len(files)

	// Descriptor pass: small files, handled inline so the resolver is
	// complete before any other refset row is parsed.
	resolver := map[int64]snomed.RefsetKind{}
	rest := files[:0:0]
	for _, f := range files {
		if hint, _ := f.RefsetKindHint(); f.Entity == EntityRefset && hint == snomed.RefsetKindDescriptor {
			if err := imp.ingestDescriptors(ctx, f, dir, resolver, summary); err != nil {
				return nil, err
			}
			continue
		}
		rest = append(rest, f)
	}

	batches := make(chan *rawBatch, batchChannelDepth)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)
		for _, f := range rest {
			if imp.progress {
				fmt.Fprintf(os.Stderr, "importing %s\n", f.Filename)
			}
			if err := imp.produce(ctx, filepath.Join(dir, f.Filename), f, resolver, batches); err != nil {
				return err
			}
		}
		return nil
	})

	for i := 0; i < imp.workers; i++ {
		g.Go(func() error {
			for raw := range batches {
				batch := imp.parseBatch(raw, summary)
				if batch.Len() == 0 {
					continue
				}
				if err := imp.handler(ctx, batch); err != nil {
					return fmt.Errorf("write batch from %s: %w", raw.info.Filename, err)
				}
				summary.add(batch)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	summary.Elapsed = time.Since(start)
	imp.log.Info("import complete",
		"files", summary.Files,
		"concepts", summary.Concepts,
		"descriptions", summary.Descriptions,
		"relationships", summary.Relationships,
		"refset_items", summary.RefsetItems,
		"invalid_identifiers", summary.InvalidIdentifiers,
		"elapsed", summary.Elapsed)
	return summary, nil
}

// discover walks dir and classifies RF2 snapshot files.
func (imp *Importer) discover(dir string, summary *Summary) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".txt" {
			return nil
		}
		info, err := ParseFilename(path)
		if err != nil {
			imp.log.Debug("skipping non-RF2 file", "path", path)
			return nil
		}
		if info.ReleaseType != ReleaseSnapshot {
			imp.log.Debug("skipping non-snapshot file", "path", path, "release", info.ReleaseType)
			return nil
		}
		if info.Entity == EntityUnknown {
			imp.log.Warn("skipping unrecognized RF2 content type", "path", path, "content_type", info.ContentType)
			return nil
		}
		// Re-anchor the filename relative to dir for nested layouts.
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info.Filename = rel
		files = append(files, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	return files, nil
}

// ingestDescriptors parses a RefsetDescriptor file inline, feeds its
// items to the handler and registers the described refset kinds.
func (imp *Importer) ingestDescriptors(ctx context.Context, info FileInfo, dir string, resolver map[int64]snomed.RefsetKind, summary *Summary) error {
	attrs := map[int64][]snomed.RefsetDescriptorItem{}
	batch := &Batch{Info: info}

	err := imp.scan(filepath.Join(dir, info.Filename), func(cols []string) error {
		item, err := ParseRefsetItem(cols, info.Pattern, snomed.RefsetKindDescriptor)
		if err != nil {
			summary.recordError(fmt.Errorf("%s: %w", info.Filename, err))
			return nil
		}
		batch.RefsetItems = append(batch.RefsetItems, item)
		if desc, err := item.Descriptor(); err == nil && desc.Active {
			attrs[desc.ReferencedComponentID] = append(attrs[desc.ReferencedComponentID], desc)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for refsetID, entries := range attrs {
		sort.Slice(entries, func(i, j int) bool { return entries[i].AttributeOrder < entries[j].AttributeOrder })
		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.AttributeDescriptionID
		}
		if kind, ok := snomed.KindForDescriptor(ids); ok {
			resolver[refsetID] = kind
		}
	}

	if batch.Len() == 0 {
		return nil
	}
	if err := imp.handler(ctx, batch); err != nil {
		return fmt.Errorf("write descriptors from %s: %w", info.Filename, err)
	}
	summary.add(batch)
	return nil
}

// produce reads one file and emits raw row batches.
func (imp *Importer) produce(ctx context.Context, path string, info FileInfo, resolver map[int64]snomed.RefsetKind, out chan<- *rawBatch) error {
	hint, _ := info.RefsetKindHint()

	var rows [][]string
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		raw := &rawBatch{info: info, kindHint: hint, resolver: resolver, rows: rows}
		rows = nil
		select {
		case out <- raw:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := imp.scan(path, func(cols []string) error {
		rows = append(rows, cols)
		if len(rows) >= imp.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

// scan reads a file line by line, skipping the header row.
func (imp *Importer) scan(path string, fn func(cols []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			continue
		}
		if line == "" {
			continue
		}
		if err := fn(SplitRow(line)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// parseBatch converts raw rows into typed components, accumulating
// per-row errors into the summary. Identifier checksum failures are
// reported but the row is still admitted; the release is authoritative.
func (imp *Importer) parseBatch(raw *rawBatch, summary *Summary) *Batch {
	batch := &Batch{Info: raw.info}
	for _, cols := range raw.rows {
		switch raw.info.Entity {
		case EntityConcept:
			c, err := ParseConcept(cols)
			if err != nil {
				summary.recordError(fmt.Errorf("%s: %w", raw.info.Filename, err))
				continue
			}
			imp.checkIdentifier(c.ID, verhoeff.KindConcept, summary)
			batch.Concepts = append(batch.Concepts, c)
		case EntityDescription:
			d, err := ParseDescription(cols)
			if err != nil {
				summary.recordError(fmt.Errorf("%s: %w", raw.info.Filename, err))
				continue
			}
			imp.checkIdentifier(d.ID, verhoeff.KindDescription, summary)
			batch.Descriptions = append(batch.Descriptions, d)
		case EntityRelationship, EntityStatedRelationship, EntityConcreteRelationship:
			r, err := ParseRelationship(cols, raw.info.Entity == EntityConcreteRelationship)
			if err != nil {
				summary.recordError(fmt.Errorf("%s: %w", raw.info.Filename, err))
				continue
			}
			imp.checkIdentifier(r.ID, verhoeff.KindRelationship, summary)
			batch.Relationships = append(batch.Relationships, r)
		case EntityRefset:
			item, err := ParseRefsetItem(cols, raw.info.Pattern, raw.refsetKind(cols))
			if err != nil {
				summary.recordError(fmt.Errorf("%s: %w", raw.info.Filename, err))
				continue
			}
			batch.RefsetItems = append(batch.RefsetItems, item)
		}
	}
	return batch
}

func (imp *Importer) checkIdentifier(id int64, want verhoeff.Kind, summary *Summary) {
	if verhoeff.ValidSCTID(id) && verhoeff.PartitionKind(id) == want {
		return
	}
	summary.mu.Lock()
	summary.InvalidIdentifiers++
	n := summary.InvalidIdentifiers
	summary.mu.Unlock()
	if n <= 10 {
		imp.log.Warn("identifier failed validation, row admitted", "id", id, "want", want.String())
	}
}
