// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package terminology is the service facade over the SNOMED CT store,
// search index and ECL evaluator. Open wires the subsystems together;
// everything else delegates.
package terminology

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/AleutianAI/terminology/services/terminology/ecl"
	"github.com/AleutianAI/terminology/services/terminology/index"
	"github.com/AleutianAI/terminology/services/terminology/locale"
	"github.com/AleutianAI/terminology/services/terminology/rf2"
	"github.com/AleutianAI/terminology/services/terminology/search"
	"github.com/AleutianAI/terminology/services/terminology/snomed"
	storage "github.com/AleutianAI/terminology/services/terminology/storage/badger"
	"github.com/AleutianAI/terminology/services/terminology/store"
)

// Config locates a terminology database on disk.
type Config struct {
	// Path is the root directory; the store and index live under it.
	Path string `yaml:"path"`
	// SyncWrites forces synchronous KV writes; imports are slower,
	// crash recovery stricter.
	SyncWrites bool `yaml:"sync_writes"`
	// InMemory runs the store without files, for tests.
	InMemory bool `yaml:"in_memory"`
}

func (c Config) storePath() string { return filepath.Join(c.Path, "store") }
func (c Config) indexPath() string { return filepath.Join(c.Path, "search.bleve") }

// Service is an open terminology database.
//
// Description:
//
//	Holds the KV store handle, the search index reader and the cached
//	locale resolver. The resolver and index are rebuilt by Import and
//	BuildIndex respectively; lookups that need an index return
//	ErrNoIndex until one exists.
//
// Thread Safety: safe for concurrent readers. Import and BuildIndex
// are exclusive with each other and with readers of the index they
// replace.
type Service struct {
	cfg Config
	log *slog.Logger

	db    *storage.DB
	store *store.Store

	mu       sync.RWMutex
	idx      *index.Index
	eval     *ecl.Evaluator
	searcher *search.Searcher
	resolver *locale.Resolver
	closed   bool
}

// Open opens or creates a terminology database rooted at cfg.Path.
// A missing search index is not an error; Search and RealizeECL report
// ErrNoIndex until BuildIndex has run.
func Open(cfg Config, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	var (
		db  *storage.DB
		err error
	)
	if cfg.InMemory {
		db, err = storage.OpenInMemory()
	} else {
		db, err = storage.Open(storage.Config{
			Path:       cfg.storePath(),
			SyncWrites: cfg.SyncWrites,
			Logger:     log,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	svc := &Service{
		cfg:   cfg,
		log:   log,
		db:    db,
		store: store.New(db, log),
	}
	if err := svc.Reload(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return svc, nil
}

// Reload rebuilds the locale resolver against the currently installed
// refsets and reopens the index if one exists on disk. Import and
// BuildIndex call it; callers that write to the store directly must
// call it themselves.
func (s *Service) Reload(ctx context.Context) error {
	installed, err := s.store.InstalledRefsets(ctx)
	if err != nil {
		return fmt.Errorf("installed refsets: %w", err)
	}

	var idx *index.Index
	if !s.cfg.InMemory {
		if _, err := os.Stat(s.cfg.indexPath()); err == nil {
			idx, err = index.Open(s.cfg.indexPath())
			if err != nil {
				return fmt.Errorf("open index: %w", err)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx != nil {
		_ = s.idx.Close()
	}
	s.resolver = locale.New(installed)
	s.idx = idx
	if idx != nil {
		s.eval = ecl.New(s.store, idx)
		s.searcher = search.New(idx, s.store)
	} else {
		s.eval = nil
		s.searcher = nil
	}
	return nil
}

// Close releases the index and the store.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.idx != nil {
		_ = s.idx.Close()
		s.idx = nil
	}
	return s.db.Close()
}

// Store exposes the underlying store for advanced traversal.
func (s *Service) Store() *store.Store { return s.store }

// Import ingests an RF2 snapshot directory, rebuilds the IS-A closure
// and refreshes the locale resolver. The search index is not rebuilt
// automatically; call BuildIndex afterwards.
func (s *Service) Import(ctx context.Context, dir string) (*rf2.Summary, error) {
	imp := rf2.NewImporter(s.applyBatch, rf2.WithLogger(s.log))
	summary, err := imp.ImportDir(ctx, dir)
	if err != nil {
		return summary, err
	}
	if err := s.store.BuildClosure(ctx); err != nil {
		return summary, err
	}
	if err := s.store.Sync(); err != nil {
		return summary, err
	}
	return summary, s.Reload(ctx)
}

func (s *Service) applyBatch(ctx context.Context, batch *rf2.Batch) error {
	if err := s.store.PutConcepts(ctx, batch.Concepts); err != nil {
		return err
	}
	if err := s.store.PutDescriptions(ctx, batch.Descriptions); err != nil {
		return err
	}
	if err := s.store.PutRelationships(ctx, batch.Relationships); err != nil {
		return err
	}
	return s.store.PutRefsetItems(ctx, batch.RefsetItems)
}

// BuildIndex rebuilds the search index from the store and swaps it in.
func (s *Service) BuildIndex(ctx context.Context) (uint64, error) {
	if s.cfg.InMemory {
		return 0, fmt.Errorf("build index: in-memory service has no index path")
	}
	docs, err := index.NewBuilder(index.WithLogger(s.log)).Build(ctx, s.store, s.cfg.indexPath())
	if err != nil {
		return 0, err
	}
	return docs, s.Reload(ctx)
}

// Concept returns a concept by id; store.ErrNotFound when absent.
func (s *Service) Concept(ctx context.Context, id int64) (snomed.Concept, error) {
	return s.store.Concept(ctx, id)
}

// Description returns a description by id.
func (s *Service) Description(ctx context.Context, id int64) (snomed.Description, error) {
	return s.store.Description(ctx, id)
}

// ConceptDescriptions returns all descriptions of a concept.
func (s *Service) ConceptDescriptions(ctx context.Context, id int64) ([]snomed.Description, error) {
	return s.store.ConceptDescriptions(ctx, id)
}

// ParentRelationships returns the latest active outbound relationships.
func (s *Service) ParentRelationships(ctx context.Context, id int64) ([]snomed.Relationship, error) {
	return s.store.ParentRelationships(ctx, id)
}

// ParentRelationshipsOfType restricts to one relationship type.
func (s *Service) ParentRelationshipsOfType(ctx context.Context, id, typeID int64) ([]snomed.Relationship, error) {
	return s.store.ParentRelationshipsOfType(ctx, id, typeID)
}

// ExpandedParentIDs returns destinations of the given type, the type
// interpreted with subsumption.
func (s *Service) ExpandedParentIDs(ctx context.Context, id, typeID int64) ([]int64, error) {
	return s.store.ExpandedParentIDs(ctx, id, typeID)
}

// ExtendedConcept returns the denormalized view of a concept.
func (s *Service) ExtendedConcept(ctx context.Context, id int64) (*snomed.ExtendedConcept, error) {
	return s.store.ExtendedConcept(ctx, id)
}

// ComponentRefsetItems returns a component's refset memberships;
// refsetID zero means any refset.
func (s *Service) ComponentRefsetItems(ctx context.Context, componentID, refsetID int64) ([]snomed.RefsetItem, error) {
	return s.store.ComponentRefsetItems(ctx, componentID, refsetID)
}

// ComponentRefsetIDs lists the refsets a component belongs to.
func (s *Service) ComponentRefsetIDs(ctx context.Context, componentID int64) ([]int64, error) {
	return s.store.ComponentRefsetIDs(ctx, componentID)
}

// HistoricalAssociations returns a component's historical-association
// targets grouped by refset.
func (s *Service) HistoricalAssociations(ctx context.Context, componentID int64) (map[int64][]snomed.AssociationItem, error) {
	return s.store.HistoricalAssociations(ctx, componentID)
}

// ReverseMap finds map members by target code, e.g. an ICD-10 or CTV3
// code back to SNOMED.
func (s *Service) ReverseMap(ctx context.Context, refsetID int64, target string) ([]snomed.RefsetItem, error) {
	return s.store.ReverseMap(ctx, refsetID, target)
}

// Status reports stored component counts and installed refsets.
func (s *Service) Status(ctx context.Context) (*store.Counts, error) {
	return s.store.Status(ctx)
}

// LanguageRefsets resolves a BCP-47 priority list against the installed
// language refsets; empty input yields the default English order.
func (s *Service) LanguageRefsets(localeString string) []int64 {
	s.mu.RLock()
	resolver := s.resolver
	s.mu.RUnlock()
	if localeString == "" {
		return resolver.Default()
	}
	return resolver.Resolve(localeString)
}

// PreferredSynonym returns the preferred synonym under the given
// BCP-47 priority list.
func (s *Service) PreferredSynonym(ctx context.Context, id int64, localeString string) (snomed.Description, error) {
	return s.store.PreferredSynonym(ctx, id, s.LanguageRefsets(localeString))
}

// FullySpecifiedName returns the FSN under the default locale.
func (s *Service) FullySpecifiedName(ctx context.Context, id int64) (snomed.Description, error) {
	return s.store.FullySpecifiedName(ctx, id, s.LanguageRefsets(""))
}

// SearchRequest is the facade-level search input: a search.Request
// with the locale and constraint still in caller form.
type SearchRequest struct {
	search.Request
	// Locale is a BCP-47 priority list; resolved to LanguageRefsets.
	Locale string
	// ECL optionally constrains hits to an expression constraint.
	ECL ecl.Expression
}

// Search runs a ranked description search.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]search.Result, error) {
	s.mu.RLock()
	searcher, eval := s.searcher, s.eval
	s.mu.RUnlock()
	if searcher == nil {
		return nil, ErrNoIndex
	}

	inner := req.Request
	if len(inner.LanguageRefsets) == 0 {
		inner.LanguageRefsets = s.LanguageRefsets(req.Locale)
	}
	if req.ECL != nil {
		q, err := eval.Query(ctx, req.ECL)
		if err != nil {
			return nil, err
		}
		inner.Constraint = q
	}
	return searcher.Search(ctx, inner)
}

// RealizeECL evaluates an ECL syntax tree to a sorted concept-id set.
func (s *Service) RealizeECL(ctx context.Context, expr ecl.Expression) ([]int64, error) {
	s.mu.RLock()
	eval := s.eval
	s.mu.RUnlock()
	if eval == nil {
		return nil, ErrNoIndex
	}
	return eval.Realize(ctx, expr)
}
