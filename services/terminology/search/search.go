// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search ranks description matches for interactive lookup.
// Every query token must match as a whole word, a prefix or (optionally)
// a fuzzy variant, which makes partial input like "mult scl" resolve to
// "Multiple sclerosis".
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/terminology/services/terminology/index"
	"github.com/AleutianAI/terminology/services/terminology/query"
	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

var tracer = otel.Tracer("terminology/search")

const defaultMaxHits = 200

// Request is one search invocation.
type Request struct {
	// Term is the user's query text.
	Term string
	// Constraint optionally restricts hits to an already-compiled
	// expression constraint.
	Constraint blevequery.Query
	// LanguageRefsets orders preferred-term resolution.
	LanguageRefsets []int64
	// Fuzzy matches tokens with edit distance from the start; when
	// false, FallbackFuzzy retries fuzzily only after zero hits.
	Fuzzy         bool
	FallbackFuzzy bool
	// MaxHits bounds the result count; zero means the default.
	MaxHits int
	// Properties require direct attribute values, e.g. has-dose-form.
	Properties []Property
	// ConceptRefsets restricts to members of any listed refset.
	ConceptRefsets []int64
	// IncludeInactiveConcepts and IncludeInactiveDescriptions widen the
	// default active-only view.
	IncludeInactiveConcepts     bool
	IncludeInactiveDescriptions bool
	// IncludeFSN admits fully specified names as hits.
	IncludeFSN bool
	// RemoveDuplicates collapses hits sharing (conceptId, term).
	RemoveDuplicates bool
	// Ranked relaxes the token conjunction to a disjunction: any token
	// may match, relevance decides. Autocomplete-style input wants the
	// default conjunction.
	Ranked bool
}

// Property is a direct attribute filter.
type Property struct {
	TypeID  int64
	ValueID int64
}

// Result is one ranked hit.
type Result struct {
	// ID is the matching description.
	ID int64 `json:"id"`
	// ConceptID is the description's concept.
	ConceptID int64 `json:"concept_id"`
	// Term is the matching description's text.
	Term string `json:"term"`
	// PreferredTerm is the concept's preferred synonym under the
	// request's language refsets.
	PreferredTerm string `json:"preferred_term"`
}

// PreferredSource resolves preferred synonyms. *store.Store satisfies
// it.
type PreferredSource interface {
	PreferredSynonym(ctx context.Context, conceptID int64, refsetIDs []int64) (snomed.Description, error)
}

// Searcher executes ranked description searches.
//
// Thread Safety: safe for concurrent use.
type Searcher struct {
	ix *index.Index
	ps PreferredSource
}

// New builds a Searcher over an index and a preferred-synonym source.
func New(ix *index.Index, ps PreferredSource) *Searcher {
	return &Searcher{ix: ix, ps: ps}
}

// Search runs the request and returns ranked results.
//
// Description:
//
//	Builds one clause per whitespace token (term OR prefix OR fuzzy),
//	conjoins them with the request's filters, then re-ranks hits by
//	score scaled against term length so that shorter terms win ties.
//	Ranked requests keep the index's relevance order without the length
//	scaling. A zero-hit outcome with FallbackFuzzy set retries once with
//	fuzzy matching before giving up.
func (s *Searcher) Search(ctx context.Context, req Request) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "search.Search")
	defer span.End()

	tokens := tokenize(req.Term)
	if len(tokens) == 0 {
		return nil, nil
	}
	maxHits := req.MaxHits
	if maxHits <= 0 {
		maxHits = defaultMaxHits
	}

	hits, err := s.execute(ctx, req, tokens, req.Fuzzy, maxHits)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 && req.FallbackFuzzy && !req.Fuzzy {
		hits, err = s.execute(ctx, req, tokens, true, maxHits)
		if err != nil {
			return nil, err
		}
	}

	results, err := s.assemble(ctx, req, hits, maxHits)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// tokenize lowercases and splits the query. Document terms are indexed
// case-folded per their case significance, so a lowercased query still
// refuses to match a case-sensitive term's capitals.
func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

func tokenQuery(token string, fuzzy bool) blevequery.Query {
	term := bleve.NewTermQuery(token)
	term.SetField(index.FieldFoldedTerm)
	prefix := bleve.NewPrefixQuery(token)
	prefix.SetField(index.FieldFoldedTerm)
	parts := []blevequery.Query{term, prefix}
	if fuzzy {
		fq := bleve.NewFuzzyQuery(token)
		fq.SetField(index.FieldFoldedTerm)
		parts = append(parts, fq)
	}
	return query.Or(parts...)
}

func (s *Searcher) buildQuery(req Request, tokens []string, fuzzy bool) blevequery.Query {
	tokenQs := make([]blevequery.Query, 0, len(tokens))
	for _, tok := range tokens {
		tokenQs = append(tokenQs, tokenQuery(tok, fuzzy))
	}
	qs := make([]blevequery.Query, 0, len(tokens)+6)
	if req.Ranked {
		qs = append(qs, query.Or(tokenQs...))
	} else {
		qs = append(qs, tokenQs...)
	}
	if req.Constraint != nil {
		qs = append(qs, req.Constraint)
	}
	if !req.IncludeInactiveConcepts {
		qs = append(qs, query.ConceptActive(true))
	}
	if !req.IncludeInactiveDescriptions {
		qs = append(qs, query.DescriptionActive(true))
	}
	if !req.IncludeFSN {
		qs = append(qs, query.Not(query.DescriptionType(snomed.FullySpecifiedName)))
	}
	if len(req.ConceptRefsets) > 0 {
		qs = append(qs, query.MemberOfAny(req.ConceptRefsets))
	}
	for _, p := range req.Properties {
		qs = append(qs, query.AttributeEquals(p.TypeID, p.ValueID))
	}
	return query.And(qs...)
}

type hit struct {
	id        int64
	conceptID int64
	term      string
	score     float64
}

func (s *Searcher) execute(ctx context.Context, req Request, tokens []string, fuzzy bool, maxHits int) ([]hit, error) {
	// Overfetch so the length re-rank sees more than one page of
	// near-equal scores.
	fetch := maxHits*3 + 50
	breq := bleve.NewSearchRequestOptions(s.buildQuery(req, tokens, fuzzy), fetch, 0, false)
	breq.Fields = []string{index.FieldTerm, index.FieldConceptID}

	res, err := s.ix.Search(ctx, breq)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad document id %q", h.ID)
		}
		rawConcept, _ := h.Fields[index.FieldConceptID].(string)
		conceptID, err := strconv.ParseInt(rawConcept, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad concept id %q in document %s", rawConcept, h.ID)
		}
		term, _ := h.Fields[index.FieldTerm].(string)
		hits = append(hits, hit{id: id, conceptID: conceptID, term: term, score: h.Score})
	}
	return hits, nil
}

func (s *Searcher) assemble(ctx context.Context, req Request, hits []hit, maxHits int) ([]Result, error) {
	// Shorter terms outrank longer ones at similar relevance: a query
	// of "mult scl" should surface "Multiple sclerosis" ahead of its
	// longer descendants. Ranked mode wants pure relevance, so the
	// length scaling only applies to the default conjunction.
	if !req.Ranked {
		for i := range hits {
			if n := len(hits[i].term); n > 0 {
				hits[i].score /= math.Sqrt(float64(n))
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	seen := map[string]bool{}
	preferred := map[int64]string{}
	results := make([]Result, 0, maxHits)
	for _, h := range hits {
		if len(results) == maxHits {
			break
		}
		if req.RemoveDuplicates {
			key := strconv.FormatInt(h.conceptID, 10) + "\x00" + h.term
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		pt, ok := preferred[h.conceptID]
		if !ok {
			d, err := s.ps.PreferredSynonym(ctx, h.conceptID, req.LanguageRefsets)
			if err == nil {
				pt = d.Term
			}
			preferred[h.conceptID] = pt
		}
		results = append(results, Result{
			ID:            h.id,
			ConceptID:     h.conceptID,
			Term:          h.term,
			PreferredTerm: pt,
		})
	}
	return results, nil
}
