// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index maintains the full-text search index over description
// documents. Each document carries its term, its concept's transitive
// attribute destinations, refset memberships and concrete values, which
// is what lets ECL constraints and text search execute as one query.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

const (
	// batchDocs bounds the documents per bleve batch commit.
	batchDocs = 1000
	// realizePage is the page size used when materializing concept-id
	// sets from a query.
	realizePage = 1000
)

var tracer = otel.Tracer("terminology/index")

// Index wraps a bleve index over description documents.
//
// Thread Safety: safe for concurrent searches. Building is exclusive;
// Build replaces the on-disk index atomically and open readers keep the
// old view until reopened.
type Index struct {
	idx  bleve.Index
	path string
}

// Open opens an existing index for searching.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return &Index{idx: idx, path: path}, nil
}

// Close releases the index.
func (ix *Index) Close() error { return ix.idx.Close() }

// DocCount returns the number of indexed description documents.
func (ix *Index) DocCount() (uint64, error) { return ix.idx.DocCount() }

// Search executes a search request.
func (ix *Index) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	return ix.idx.SearchInContext(ctx, req)
}

// ConceptIDs materializes the distinct concept ids matching a query,
// sorted ascending. Paginates through all matching description
// documents; the id set is bounded by the ontology, not the hit count.
func (ix *Index) ConceptIDs(ctx context.Context, q blevequery.Query) ([]int64, error) {
	seen := map[int64]struct{}{}
	for from := 0; ; from += realizePage {
		req := bleve.NewSearchRequestOptions(q, realizePage, from, false)
		req.Fields = []string{FieldConceptID}
		res, err := ix.idx.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("realize query: %w", err)
		}
		for _, hit := range res.Hits {
			raw, _ := hit.Fields[FieldConceptID].(string)
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad concept id %q in document %s", raw, hit.ID)
			}
			seen[id] = struct{}{}
		}
		if len(res.Hits) < realizePage {
			break
		}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Builder constructs the index from a component source.
type Builder struct {
	log     *slog.Logger
	workers int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the build logger.
func WithLogger(log *slog.Logger) BuilderOption {
	return func(b *Builder) { b.log = log }
}

// WithWorkers overrides the indexing concurrency.
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// NewBuilder returns a Builder with defaults.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		log:     slog.Default(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build rebuilds the index at path from the source.
//
// Description:
//
//	Builds into a sibling directory and swaps it into place only after
//	a complete, committed build, so a crash mid-build leaves any
//	previous index intact. A producer iterates concepts while a worker
//	pool assembles and commits description documents in batches.
//	Returns the number of documents written.
//
// Thread Safety: exclusive; one build per path at a time.
func (b *Builder) Build(ctx context.Context, src Source, path string) (uint64, error) {
	ctx, span := tracer.Start(ctx, "index.Build")
	defer span.End()

	building := path + ".building"
	if err := os.RemoveAll(building); err != nil {
		return 0, fmt.Errorf("clear build dir: %w", err)
	}
	m, err := buildMapping()
	if err != nil {
		return 0, fmt.Errorf("index mapping: %w", err)
	}
	idx, err := bleve.New(building, m)
	if err != nil {
		return 0, fmt.Errorf("create index: %w", err)
	}

	var docs atomic.Uint64
	err = b.writeAll(ctx, src, idx, &docs)
	if cerr := idx.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.RemoveAll(building)
		return 0, fmt.Errorf("build index: %w", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return 0, fmt.Errorf("remove old index: %w", err)
	}
	if err := os.Rename(building, path); err != nil {
		return 0, fmt.Errorf("swap index: %w", err)
	}
	b.log.Info("index build complete", "path", path, "documents", docs.Load())
	return docs.Load(), nil
}

func (b *Builder) writeAll(ctx context.Context, src Source, idx bleve.Index, docs *atomic.Uint64) error {
	ids := make(chan int64, 1024)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(ids)
		return src.IterateConcepts(ctx, func(c snomed.Concept) error {
			select {
			case ids <- c.ID:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})

	for i := 0; i < b.workers; i++ {
		g.Go(func() error {
			batch := idx.NewBatch()
			pending := 0
			for id := range ids {
				ec, err := src.ExtendedConcept(ctx, id)
				if err != nil {
					return fmt.Errorf("extended concept %d: %w", id, err)
				}
				built, err := buildDocuments(ctx, src, ec)
				if err != nil {
					return fmt.Errorf("documents for %d: %w", id, err)
				}
				for _, doc := range built {
					if err := batch.Index(doc.id, doc.fields); err != nil {
						return fmt.Errorf("batch document %s: %w", doc.id, err)
					}
					pending++
				}
				if pending >= batchDocs {
					if err := idx.Batch(batch); err != nil {
						return fmt.Errorf("commit batch: %w", err)
					}
					docs.Add(uint64(pending))
					batch.Reset()
					pending = 0
				}
			}
			if pending > 0 {
				if err := idx.Batch(batch); err != nil {
					return fmt.Errorf("commit final batch: %w", err)
				}
				docs.Add(uint64(pending))
			}
			return nil
		})
	}
	return g.Wait()
}
