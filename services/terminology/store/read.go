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
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

// scanKeys iterates keys under prefix without fetching values.
func scanKeys(txn *badgerdb.Txn, prefix []byte, fn func(k []byte) error) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		if err := fn(it.Item().Key()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) getComponent(ctx context.Context, k []byte, v any) error {
	return s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		found, err := getJSON(txn, k, v)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		return nil
	})
}

// Concept fetches a concept by id. Returns ErrNotFound if absent.
func (s *Store) Concept(ctx context.Context, id int64) (snomed.Concept, error) {
	var c snomed.Concept
	err := s.getComponent(ctx, key(kpConcept, id), &c)
	return c, err
}

// Description fetches a description by id. Returns ErrNotFound if absent.
func (s *Store) Description(ctx context.Context, id int64) (snomed.Description, error) {
	var d snomed.Description
	err := s.getComponent(ctx, key(kpDescription, id), &d)
	return d, err
}

// Relationship fetches a relationship by id. Returns ErrNotFound if absent.
func (s *Store) Relationship(ctx context.Context, id int64) (snomed.Relationship, error) {
	var r snomed.Relationship
	err := s.getComponent(ctx, key(kpRelationship, id), &r)
	return r, err
}

// RefsetItem fetches a reference-set member by uuid. Returns
// ErrNotFound if absent.
func (s *Store) RefsetItem(ctx context.Context, id uuid.UUID) (snomed.RefsetItem, error) {
	var it snomed.RefsetItem
	err := s.getComponent(ctx, keyItem(id), &it)
	return it, err
}

// ConceptDescriptions returns every stored description of a concept,
// active or not, ordered by description id.
func (s *Store) ConceptDescriptions(ctx context.Context, conceptID int64) ([]snomed.Description, error) {
	var out []snomed.Description
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		var ids []int64
		prefix := key(kpConceptDescriptions, conceptID)
		if err := scanKeys(txn, prefix, func(k []byte) error {
			ids = append(ids, idAt(k, 9))
			return nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			var d snomed.Description
			found, err := getJSON(txn, key(kpDescription, id), &d)
			if err != nil {
				return err
			}
			if found {
				out = append(out, d)
			}
		}
		return nil
	})
	return out, err
}

// relationshipsByIndex loads the relationships referenced by a
// parents/children index prefix. The relationship id sits in the last
// eight key bytes.
func (s *Store) relationshipsByIndex(ctx context.Context, prefix []byte) ([]snomed.Relationship, error) {
	var out []snomed.Relationship
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		var ids []int64
		if err := scanKeys(txn, prefix, func(k []byte) error {
			ids = append(ids, idAt(k, len(k)-8))
			return nil
		}); err != nil {
			return err
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			var r snomed.Relationship
			found, err := getJSON(txn, key(kpRelationship, id), &r)
			if err != nil {
				return err
			}
			if found {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}

// ParentRelationships returns the active relationships whose source is
// the given concept, every type included.
func (s *Store) ParentRelationships(ctx context.Context, conceptID int64) ([]snomed.Relationship, error) {
	return s.relationshipsByIndex(ctx, key(kpParents, conceptID))
}

// ParentRelationshipsOfType returns the active relationships of one
// type whose source is the given concept.
func (s *Store) ParentRelationshipsOfType(ctx context.Context, conceptID, typeID int64) ([]snomed.Relationship, error) {
	return s.relationshipsByIndex(ctx, key(kpParents, conceptID, typeID))
}

// ChildRelationships returns the active relationships whose destination
// is the given concept.
func (s *Store) ChildRelationships(ctx context.Context, conceptID int64) ([]snomed.Relationship, error) {
	return s.relationshipsByIndex(ctx, key(kpChildren, conceptID))
}

// ParentIDs returns the distinct destination concepts of active
// relationships (conceptID, typeID, x).
func (s *Store) ParentIDs(ctx context.Context, conceptID, typeID int64) ([]int64, error) {
	return s.distinctAt(ctx, key(kpParents, conceptID, typeID), 17)
}

// ChildIDs returns the distinct source concepts of active
// relationships (x, typeID, conceptID).
func (s *Store) ChildIDs(ctx context.Context, conceptID, typeID int64) ([]int64, error) {
	return s.distinctAt(ctx, key(kpChildren, conceptID, typeID), 17)
}

func (s *Store) distinctAt(ctx context.Context, prefix []byte, offset int) ([]int64, error) {
	seen := map[int64]struct{}{}
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		return scanKeys(txn, prefix, func(k []byte) error {
			id := idAt(k, offset)
			if id != 0 {
				seen[id] = struct{}{}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sortedIDs(seen), nil
}

// ExpandedParentIDs returns the destinations of active relationships of
// the given type or any ancestor of that type, applying attribute
// subsumption over the relationship-type hierarchy.
func (s *Store) ExpandedParentIDs(ctx context.Context, conceptID, typeID int64) ([]int64, error) {
	types, err := s.AllAncestors(ctx, typeID)
	if err != nil {
		return nil, err
	}
	seen := map[int64]struct{}{}
	for _, t := range types {
		ids, err := s.ParentIDs(ctx, conceptID, t)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	return sortedIDs(seen), nil
}

// Ancestors returns the materialized IS-A ancestors of a concept,
// excluding the concept itself.
func (s *Store) Ancestors(ctx context.Context, conceptID int64) ([]int64, error) {
	return s.distinctAt(ctx, key(kpAncestors, conceptID), 9)
}

// AllAncestors returns the reflexive closure: the concept itself plus
// its IS-A ancestors.
func (s *Store) AllAncestors(ctx context.Context, conceptID int64) ([]int64, error) {
	anc, err := s.Ancestors(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(anc)+1)
	out = append(out, conceptID)
	out = append(out, anc...)
	return out, nil
}

// IsAncestorOf reports whether ancestor is in the materialized closure
// of conceptID.
func (s *Store) IsAncestorOf(ctx context.Context, ancestor, conceptID int64) (bool, error) {
	found := false
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key(kpAncestors, conceptID, ancestor))
		if err == nil {
			found = true
			return nil
		}
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	return found, err
}

// Descendants computes the IS-A descendants of a concept by walking
// the children index breadth first. The result excludes the concept
// itself.
func (s *Store) Descendants(ctx context.Context, conceptID int64) ([]int64, error) {
	visited := map[int64]struct{}{}
	queue := []int64{conceptID}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := queue[0]
		queue = queue[1:]
		children, err := s.ChildIDs(ctx, id, snomed.IsA)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if _, ok := visited[child]; ok {
				continue
			}
			visited[child] = struct{}{}
			queue = append(queue, child)
		}
	}
	delete(visited, conceptID)
	return sortedIDs(visited), nil
}

// InstalledRefsets returns the ids of every refset that has ever had
// an active member written. The marker is not pruned when members are
// later inactivated; re-ingesting a release rebuilds it.
func (s *Store) InstalledRefsets(ctx context.Context) ([]int64, error) {
	return s.distinctAt(ctx, []byte{kpInstalledRefsets}, 1)
}

// ComponentRefsetItems returns the active reference-set members that
// reference the given component, optionally limited to one refset.
// A refsetID of zero means any refset.
func (s *Store) ComponentRefsetItems(ctx context.Context, componentID, refsetID int64) ([]snomed.RefsetItem, error) {
	prefix := key(kpComponentRefsets, componentID)
	if refsetID != 0 {
		prefix = key(kpComponentRefsets, componentID, refsetID)
	}
	var out []snomed.RefsetItem
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		var ids []uuid.UUID
		if err := scanKeys(txn, prefix, func(k []byte) error {
			u, err := uuid.FromBytes(k[len(k)-16:])
			if err != nil {
				return err
			}
			ids = append(ids, u)
			return nil
		}); err != nil {
			return err
		}
		for _, u := range ids {
			var it snomed.RefsetItem
			found, err := getJSON(txn, keyItem(u), &it)
			if err != nil {
				return err
			}
			if found {
				out = append(out, it)
			}
		}
		return nil
	})
	return out, err
}

// ComponentRefsetIDs returns the distinct refsets the component is an
// active member of.
func (s *Store) ComponentRefsetIDs(ctx context.Context, componentID int64) ([]int64, error) {
	return s.distinctAt(ctx, key(kpComponentRefsets, componentID), 9)
}

// RefsetMemberIDs returns the distinct components referenced by a
// refset's active members.
func (s *Store) RefsetMemberIDs(ctx context.Context, refsetID int64) ([]int64, error) {
	return s.distinctAt(ctx, key(kpRefsetMembers, refsetID), 9)
}

// ReverseMap returns the active members of a map refset whose map
// target equals target.
func (s *Store) ReverseMap(ctx context.Context, refsetID int64, target string) ([]snomed.RefsetItem, error) {
	prefix := key(kpMapTargets, refsetID)
	prefix = append(prefix, target...)
	prefix = append(prefix, 0x00)
	var out []snomed.RefsetItem
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		var ids []uuid.UUID
		if err := scanKeys(txn, prefix, func(k []byte) error {
			u, err := uuid.FromBytes(k[len(k)-16:])
			if err != nil {
				return err
			}
			ids = append(ids, u)
			return nil
		}); err != nil {
			return err
		}
		for _, u := range ids {
			var it snomed.RefsetItem
			found, err := getJSON(txn, keyItem(u), &it)
			if err != nil {
				return err
			}
			if found {
				out = append(out, it)
			}
		}
		return nil
	})
	return out, err
}

// HistoricalAssociations returns the active association members that
// reference the component, grouped by refset. Used to follow inactive
// concepts to their replacements.
func (s *Store) HistoricalAssociations(ctx context.Context, componentID int64) (map[int64][]snomed.AssociationItem, error) {
	items, err := s.ComponentRefsetItems(ctx, componentID, 0)
	if err != nil {
		return nil, err
	}
	out := map[int64][]snomed.AssociationItem{}
	for _, it := range items {
		if it.Kind != snomed.RefsetKindAssociation {
			continue
		}
		assoc, err := it.Association()
		if err != nil {
			return nil, err
		}
		out[it.RefsetID] = append(out[it.RefsetID], assoc)
	}
	return out, nil
}

// IterateConcepts calls fn for every stored concept. Iteration stops
// on the first error.
func (s *Store) IterateConcepts(ctx context.Context, fn func(c snomed.Concept) error) error {
	return s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte{kpConcept}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var c snomed.Concept
			err := it.Item().Value(func(raw []byte) error {
				return json.Unmarshal(raw, &c)
			})
			if err != nil {
				return err
			}
			if err := fn(c); err != nil {
				return err
			}
		}
		return nil
	})
}

// Counts summarizes stored component volumes for status reporting.
type Counts struct {
	Concepts      int64   `json:"concepts"`
	Descriptions  int64   `json:"descriptions"`
	Relationships int64   `json:"relationships"`
	RefsetItems   int64   `json:"refset_items"`
	Refsets       []int64 `json:"installed_refsets"`
}

// Status counts stored components by keyspace.
func (s *Store) Status(ctx context.Context) (*Counts, error) {
	counts := &Counts{}
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		for _, ks := range []struct {
			prefix byte
			n      *int64
		}{
			{kpConcept, &counts.Concepts},
			{kpDescription, &counts.Descriptions},
			{kpRelationship, &counts.Relationships},
			{kpRefsetItem, &counts.RefsetItems},
		} {
			if err := scanKeys(txn, []byte{ks.prefix}, func([]byte) error {
				*ks.n++
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count components: %w", err)
	}
	refsets, err := s.InstalledRefsets(ctx)
	if err != nil {
		return nil, err
	}
	counts.Refsets = refsets
	return counts, nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
