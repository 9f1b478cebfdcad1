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
	"log/slog"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/terminology/services/terminology/snomed"
	storage "github.com/AleutianAI/terminology/services/terminology/storage/badger"
)

// txnChunk bounds the number of component writes per Badger
// transaction. Each component write touches a handful of keys, and
// Badger rejects transactions above a size threshold; chunking keeps
// every transaction comfortably below it.
const txnChunk = 500

// Store persists SNOMED CT components and derived indices in BadgerDB.
//
// Writes apply the max-effective-time rule per component id: a record
// replaces the stored one only when its effective time is greater than
// or equal to the stored record's. Equal dates mean the later write
// wins, which makes batch replay idempotent and order-independent.
//
// Thread Safety: safe for concurrent use. The importer is the only
// writer; readers run concurrently against Badger snapshots.
type Store struct {
	db  *storage.DB
	log *slog.Logger
}

// New wraps an opened database.
func New(db *storage.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// DB exposes the underlying database for lifecycle management.
func (s *Store) DB() *storage.DB { return s.db }

// PutConcepts writes a batch of concepts.
func (s *Store) PutConcepts(ctx context.Context, concepts []snomed.Concept) error {
	for start := 0; start < len(concepts); start += txnChunk {
		chunk := concepts[start:min(start+txnChunk, len(concepts))]
		err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
			for _, c := range chunk {
				if err := s.putConcept(txn, c); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("put concepts: %w", err)
		}
	}
	return nil
}

// PutDescriptions writes a batch of descriptions and maintains the
// concept-to-descriptions index.
func (s *Store) PutDescriptions(ctx context.Context, descriptions []snomed.Description) error {
	for start := 0; start < len(descriptions); start += txnChunk {
		chunk := descriptions[start:min(start+txnChunk, len(descriptions))]
		err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
			for _, d := range chunk {
				if err := s.putDescription(txn, d); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("put descriptions: %w", err)
		}
	}
	return nil
}

// PutRelationships writes a batch of relationships and maintains the
// parents and children indices for the latest active versions.
func (s *Store) PutRelationships(ctx context.Context, relationships []snomed.Relationship) error {
	for start := 0; start < len(relationships); start += txnChunk {
		chunk := relationships[start:min(start+txnChunk, len(relationships))]
		err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
			for _, r := range chunk {
				if err := s.putRelationship(txn, r); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("put relationships: %w", err)
		}
	}
	return nil
}

// PutRefsetItems writes a batch of reference-set members and maintains
// the membership indices.
func (s *Store) PutRefsetItems(ctx context.Context, items []snomed.RefsetItem) error {
	for start := 0; start < len(items); start += txnChunk {
		chunk := items[start:min(start+txnChunk, len(items))]
		err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
			for _, it := range chunk {
				if err := s.putRefsetItem(txn, it); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("put refset items: %w", err)
		}
	}
	return nil
}

func (s *Store) putConcept(txn *badgerdb.Txn, c snomed.Concept) error {
	k := key(kpConcept, c.ID)
	var old snomed.Concept
	found, err := getJSON(txn, k, &old)
	if err != nil {
		return err
	}
	if found && old.EffectiveTime.After(c.EffectiveTime) {
		return nil
	}
	return setJSON(txn, k, c)
}

func (s *Store) putDescription(txn *badgerdb.Txn, d snomed.Description) error {
	k := key(kpDescription, d.ID)
	var old snomed.Description
	found, err := getJSON(txn, k, &old)
	if err != nil {
		return err
	}
	if found && old.EffectiveTime.After(d.EffectiveTime) {
		return nil
	}
	if found && old.ConceptID != d.ConceptID {
		if err := txn.Delete(key(kpConceptDescriptions, old.ConceptID, old.ID)); err != nil {
			return err
		}
	}
	if err := setJSON(txn, k, d); err != nil {
		return err
	}
	return txn.Set(key(kpConceptDescriptions, d.ConceptID, d.ID), nil)
}

func (s *Store) putRelationship(txn *badgerdb.Txn, r snomed.Relationship) error {
	k := key(kpRelationship, r.ID)
	var old snomed.Relationship
	found, err := getJSON(txn, k, &old)
	if err != nil {
		return err
	}
	if found && old.EffectiveTime.After(r.EffectiveTime) {
		return nil
	}
	if found {
		if err := txn.Delete(key(kpParents, old.SourceID, old.TypeID, old.DestinationID, old.ID)); err != nil {
			return err
		}
		if err := txn.Delete(key(kpChildren, old.DestinationID, old.TypeID, old.SourceID, old.ID)); err != nil {
			return err
		}
	}
	if err := setJSON(txn, k, r); err != nil {
		return err
	}
	if !r.Active {
		return nil
	}
	if err := txn.Set(key(kpParents, r.SourceID, r.TypeID, r.DestinationID, r.ID), nil); err != nil {
		return err
	}
	// Concrete-value relationships have no destination concept; the
	// children index only holds real edges.
	if r.IsConcrete() {
		return nil
	}
	return txn.Set(key(kpChildren, r.DestinationID, r.TypeID, r.SourceID, r.ID), nil)
}

func (s *Store) putRefsetItem(txn *badgerdb.Txn, it snomed.RefsetItem) error {
	k := keyItem(it.ID)
	var old snomed.RefsetItem
	found, err := getJSON(txn, k, &old)
	if err != nil {
		return err
	}
	if found && old.EffectiveTime.After(it.EffectiveTime) {
		return nil
	}
	if found {
		if err := s.deleteItemIndices(txn, old); err != nil {
			return err
		}
	}
	if err := setJSON(txn, k, it); err != nil {
		return err
	}
	if !it.Active {
		return nil
	}
	ck := key(kpComponentRefsets, it.ReferencedComponentID, it.RefsetID)
	if err := txn.Set(appendUUID(ck, it.ID), nil); err != nil {
		return err
	}
	rk := key(kpRefsetMembers, it.RefsetID, it.ReferencedComponentID)
	if err := txn.Set(appendUUID(rk, it.ID), nil); err != nil {
		return err
	}
	if err := txn.Set(key(kpInstalledRefsets, it.RefsetID), nil); err != nil {
		return err
	}
	if target, ok := mapTarget(it); ok {
		if err := txn.Set(keyMapTarget(it.RefsetID, target, it.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteItemIndices(txn *badgerdb.Txn, old snomed.RefsetItem) error {
	ck := key(kpComponentRefsets, old.ReferencedComponentID, old.RefsetID)
	if err := txn.Delete(appendUUID(ck, old.ID)); err != nil {
		return err
	}
	rk := key(kpRefsetMembers, old.RefsetID, old.ReferencedComponentID)
	if err := txn.Delete(appendUUID(rk, old.ID)); err != nil {
		return err
	}
	if target, ok := mapTarget(old); ok {
		if err := txn.Delete(keyMapTarget(old.RefsetID, target, old.ID)); err != nil {
			return err
		}
	}
	return nil
}

// mapTarget extracts the external map target of a map-kind item.
func mapTarget(it snomed.RefsetItem) (string, bool) {
	switch it.Kind {
	case snomed.RefsetKindSimpleMap:
		m, err := it.SimpleMap()
		if err != nil {
			return "", false
		}
		return m.MapTarget, m.MapTarget != ""
	case snomed.RefsetKindComplexMap:
		m, err := it.ComplexMap()
		if err != nil {
			return "", false
		}
		return m.MapTarget, m.MapTarget != ""
	case snomed.RefsetKindExtendedMap:
		m, err := it.ExtendedMap()
		if err != nil {
			return "", false
		}
		return m.MapTarget, m.MapTarget != ""
	default:
		return "", false
	}
}

func getJSON(txn *badgerdb.Txn, k []byte, v any) (bool, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = item.Value(func(raw []byte) error {
		return json.Unmarshal(raw, v)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func setJSON(txn *badgerdb.Txn, k []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(k, raw)
}

// Sync flushes pending writes to disk.
func (s *Store) Sync() error { return s.db.Sync() }

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }
