// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"sort"

	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

// ExtendedConcept denormalizes a concept for indexing: descriptions,
// direct and transitive parents per relationship type, refset
// memberships and concrete values.
//
// For every attribute type the transitive parent set contains each
// destination concept together with the destination's IS-A ancestors,
// which is what lets the search index answer "attribute value is
// subsumed by X" with a single field match. For IS-A itself this
// equals the concept's ancestor set.
func (s *Store) ExtendedConcept(ctx context.Context, conceptID int64) (*snomed.ExtendedConcept, error) {
	concept, err := s.Concept(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	descriptions, err := s.ConceptDescriptions(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	relationships, err := s.ParentRelationships(ctx, conceptID)
	if err != nil {
		return nil, err
	}

	direct := map[int64]map[int64]struct{}{}
	var concrete []snomed.ConcreteValue
	for _, r := range relationships {
		if r.IsConcrete() {
			concrete = append(concrete, snomed.ConcreteValue{TypeID: r.TypeID, Value: r.Value})
			continue
		}
		set, ok := direct[r.TypeID]
		if !ok {
			set = map[int64]struct{}{}
			direct[r.TypeID] = set
		}
		set[r.DestinationID] = struct{}{}
	}

	transitive := map[int64][]int64{}
	directOut := map[int64][]int64{}
	for typeID, dests := range direct {
		all := map[int64]struct{}{}
		for dest := range dests {
			all[dest] = struct{}{}
			ancestors, err := s.Ancestors(ctx, dest)
			if err != nil {
				return nil, err
			}
			for _, a := range ancestors {
				all[a] = struct{}{}
			}
		}
		directOut[typeID] = sortedIDs(dests)
		transitive[typeID] = sortedIDs(all)
	}

	refsets, err := s.ComponentRefsetIDs(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	sort.Slice(concrete, func(i, j int) bool { return concrete[i].TypeID < concrete[j].TypeID })

	return &snomed.ExtendedConcept{
		Concept:                   concept,
		Descriptions:              descriptions,
		ParentRelationships:       transitive,
		DirectParentRelationships: directOut,
		Refsets:                   refsets,
		ConcreteValues:            concrete,
	}, nil
}

// PreferredSynonym returns the concept's preferred synonym under the
// given language-refset priority order.
//
// Description:
//
//	Walks the refsets in priority order and returns the first active
//	synonym marked Preferred in that refset. When no refset prefers
//	any synonym, falls back to the first active synonym by
//	description id. Returns ErrNotFound when the concept has no
//	active synonym at all.
func (s *Store) PreferredSynonym(ctx context.Context, conceptID int64, refsetIDs []int64) (snomed.Description, error) {
	return s.preferredDescription(ctx, conceptID, snomed.Synonym, refsetIDs)
}

// FullySpecifiedName returns the concept's FSN, preferring the given
// language refsets and falling back to any active FSN.
func (s *Store) FullySpecifiedName(ctx context.Context, conceptID int64, refsetIDs []int64) (snomed.Description, error) {
	return s.preferredDescription(ctx, conceptID, snomed.FullySpecifiedName, refsetIDs)
}

func (s *Store) preferredDescription(ctx context.Context, conceptID, typeID int64, refsetIDs []int64) (snomed.Description, error) {
	descriptions, err := s.ConceptDescriptions(ctx, conceptID)
	if err != nil {
		return snomed.Description{}, err
	}

	var candidates []snomed.Description
	for _, d := range descriptions {
		if d.Active && d.TypeID == typeID {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return snomed.Description{}, ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	// preferredIn[refsetID] is the set of candidate indices marked
	// Preferred in that language refset.
	preferredIn := map[int64][]int{}
	for i, d := range candidates {
		items, err := s.ComponentRefsetItems(ctx, d.ID, 0)
		if err != nil {
			return snomed.Description{}, err
		}
		for _, it := range items {
			if it.Kind != snomed.RefsetKindLanguage {
				continue
			}
			lang, err := it.Language()
			if err != nil {
				continue
			}
			if lang.AcceptabilityID == snomed.Preferred {
				preferredIn[it.RefsetID] = append(preferredIn[it.RefsetID], i)
			}
		}
	}

	for _, refsetID := range refsetIDs {
		if idx := preferredIn[refsetID]; len(idx) > 0 {
			return candidates[idx[0]], nil
		}
	}
	return candidates[0], nil
}
