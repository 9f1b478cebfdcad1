// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/terminology/services/terminology/internal/ontotest"
	"github.com/AleutianAI/terminology/services/terminology/snomed"
	storage "github.com/AleutianAI/terminology/services/terminology/storage/badger"
	"github.com/AleutianAI/terminology/services/terminology/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db, slog.Default())
}

func newSeededStore(t *testing.T) (*store.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	s := newTestStore(t)
	ontotest.Seed(ctx, t, s)
	return s, ctx
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func concept(id int64, et time.Time, active bool) snomed.Concept {
	return snomed.Concept{
		ID: id, EffectiveTime: et, Active: active,
		ModuleID: 900000000000207008, DefinitionStatusID: 900000000000074008,
	}
}

func TestStore_MaxEffectiveTimeMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const id = int64(24700007)

	require.NoError(t, s.PutConcepts(ctx, []snomed.Concept{concept(id, date(2024, 1, 1), true)}))

	t.Run("older version is ignored", func(t *testing.T) {
		require.NoError(t, s.PutConcepts(ctx, []snomed.Concept{concept(id, date(2023, 1, 1), false)}))
		got, err := s.Concept(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Active)
		assert.Equal(t, date(2024, 1, 1), got.EffectiveTime)
	})

	t.Run("equal effective time replaces", func(t *testing.T) {
		require.NoError(t, s.PutConcepts(ctx, []snomed.Concept{concept(id, date(2024, 1, 1), false)}))
		got, err := s.Concept(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.Active)
	})

	t.Run("newer version replaces", func(t *testing.T) {
		require.NoError(t, s.PutConcepts(ctx, []snomed.Concept{concept(id, date(2025, 1, 1), true)}))
		got, err := s.Concept(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Active)
		assert.Equal(t, date(2025, 1, 1), got.EffectiveTime)
	})
}

func TestStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Concept(ctx, 999999)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Description(ctx, 999999)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.RefsetItem(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_DescriptionIndexFollowsConceptMove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := snomed.Description{
		ID: 101011, EffectiveTime: date(2024, 1, 1), Active: true,
		ConceptID: 100, LanguageCode: "en", TypeID: snomed.Synonym,
		Term: "Before", CaseSignificanceID: snomed.EntireTermCaseInsensitive,
	}
	require.NoError(t, s.PutDescriptions(ctx, []snomed.Description{d}))

	moved := d
	moved.ConceptID = 200
	moved.Term = "After"
	moved.EffectiveTime = date(2025, 1, 1)
	require.NoError(t, s.PutDescriptions(ctx, []snomed.Description{moved}))

	old, err := s.ConceptDescriptions(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, old)

	cur, err := s.ConceptDescriptions(ctx, 200)
	require.NoError(t, err)
	require.Len(t, cur, 1)
	assert.Equal(t, "After", cur[0].Term)
}

func TestStore_RelationshipIndices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rel := snomed.Relationship{
		ID: 101021, EffectiveTime: date(2024, 1, 1), Active: true,
		ModuleID: 900000000000207008, SourceID: 10, DestinationID: 20,
		TypeID: snomed.IsA, CharacteristicTypeID: snomed.InferredRelationship,
		ModifierID: 900000000000451002,
	}
	require.NoError(t, s.PutRelationships(ctx, []snomed.Relationship{rel}))

	parents, err := s.ParentIDs(ctx, 10, snomed.IsA)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, parents)

	children, err := s.ChildIDs(ctx, 20, snomed.IsA)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, children)

	t.Run("inactivation clears both indices", func(t *testing.T) {
		off := rel
		off.Active = false
		off.EffectiveTime = date(2025, 1, 1)
		require.NoError(t, s.PutRelationships(ctx, []snomed.Relationship{off}))

		parents, err := s.ParentIDs(ctx, 10, snomed.IsA)
		require.NoError(t, err)
		assert.Empty(t, parents)
		children, err := s.ChildIDs(ctx, 20, snomed.IsA)
		require.NoError(t, err)
		assert.Empty(t, children)

		// The component record itself keeps the latest version.
		got, err := s.Relationship(ctx, rel.ID)
		require.NoError(t, err)
		assert.False(t, got.Active)
	})

	t.Run("concrete values never enter the children index", func(t *testing.T) {
		cv := snomed.Relationship{
			ID: 102021, EffectiveTime: date(2024, 1, 1), Active: true,
			ModuleID: 900000000000207008, SourceID: 30, Value: "#250",
			TypeID: 1142135004, CharacteristicTypeID: snomed.InferredRelationship,
			ModifierID: 900000000000451002,
		}
		require.NoError(t, s.PutRelationships(ctx, []snomed.Relationship{cv}))

		rels, err := s.ParentRelationships(ctx, 30)
		require.NoError(t, err)
		require.Len(t, rels, 1)
		assert.Equal(t, "#250", rels[0].Value)

		// Destination slot zero must not leak into ParentIDs.
		ids, err := s.ParentIDs(ctx, 30, 1142135004)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestStore_Closure(t *testing.T) {
	s, ctx := newSeededStore(t)

	ancestors, err := s.Ancestors(ctx, ontotest.MultipleSclerosis)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{
		ontotest.Demyelinating, ontotest.Disease, ontotest.ClinicalFinding, ontotest.Root,
	}, ancestors)
	assert.NotContains(t, ancestors, ontotest.MultipleSclerosis,
		"the stored closure is irreflexive")

	all, err := s.AllAncestors(ctx, ontotest.MultipleSclerosis)
	require.NoError(t, err)
	assert.Contains(t, all, ontotest.MultipleSclerosis, "AllAncestors is reflexive")
	assert.Len(t, all, len(ancestors)+1)

	ok, err := s.IsAncestorOf(ctx, ontotest.Disease, ontotest.MultipleSclerosis)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.IsAncestorOf(ctx, ontotest.MultipleSclerosis, ontotest.Disease)
	require.NoError(t, err)
	assert.False(t, ok)

	descendants, err := s.Descendants(ctx, ontotest.Disease)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{
		ontotest.Demyelinating, ontotest.MultipleSclerosis, ontotest.RelapsingRemitting,
		ontotest.DiabetesMellitus, ontotest.Type1Diabetes,
		ontotest.LungDisorder, ontotest.AcutePulmonaryOedema,
	}, descendants)

	children, err := s.ChildIDs(ctx, ontotest.Disease, snomed.IsA)
	require.NoError(t, err)
	assert.Subset(t, descendants, children)
}

func TestStore_ExpandedParentIDs(t *testing.T) {
	s, ctx := newSeededStore(t)

	got, err := s.ExpandedParentIDs(ctx, ontotest.AcutePulmonaryOedema, ontotest.AssociatedMorphology)
	require.NoError(t, err)
	assert.Equal(t, []int64{ontotest.AcuteOedema}, got)
}

func TestStore_RefsetIndices(t *testing.T) {
	s, ctx := newSeededStore(t)

	installed, err := s.InstalledRefsets(ctx)
	require.NoError(t, err)
	assert.Subset(t, installed, []int64{
		snomed.GBEnglishRefset, snomed.USEnglishRefset,
		snomed.CTV3Refset, snomed.ReplacedByRefset,
		ontotest.LateralizableRefset,
	})

	members, err := s.RefsetMemberIDs(ctx, ontotest.LateralizableRefset)
	require.NoError(t, err)
	assert.Equal(t, []int64{ontotest.MultipleSclerosis}, members)

	refsets, err := s.ComponentRefsetIDs(ctx, ontotest.MultipleSclerosis)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{ontotest.LateralizableRefset, snomed.CTV3Refset}, refsets)

	items, err := s.ComponentRefsetItems(ctx, ontotest.MultipleSclerosis, snomed.CTV3Refset)
	require.NoError(t, err)
	require.Len(t, items, 1)
	m, err := items[0].SimpleMap()
	require.NoError(t, err)
	assert.Equal(t, "F20..", m.MapTarget)
}

func TestStore_ReverseMap(t *testing.T) {
	s, ctx := newSeededStore(t)

	items, err := s.ReverseMap(ctx, snomed.CTV3Refset, "F20..")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ontotest.MultipleSclerosis, items[0].ReferencedComponentID)

	none, err := s.ReverseMap(ctx, snomed.CTV3Refset, "X999")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_HistoricalAssociations(t *testing.T) {
	s, ctx := newSeededStore(t)

	assocs, err := s.HistoricalAssociations(ctx, ontotest.RetiredConcept)
	require.NoError(t, err)
	require.Contains(t, assocs, snomed.ReplacedByRefset)
	require.Len(t, assocs[snomed.ReplacedByRefset], 1)
	assert.Equal(t, ontotest.MultipleSclerosis, assocs[snomed.ReplacedByRefset][0].TargetComponentID)
}

func TestStore_ExtendedConcept(t *testing.T) {
	s, ctx := newSeededStore(t)

	t.Run("attribute destinations expand to their ancestors", func(t *testing.T) {
		ec, err := s.ExtendedConcept(ctx, ontotest.AcutePulmonaryOedema)
		require.NoError(t, err)

		assert.Equal(t, []int64{ontotest.LungDisorder}, ec.DirectParentRelationships[snomed.IsA])
		assert.ElementsMatch(t, []int64{
			ontotest.LungDisorder, ontotest.Disease, ontotest.ClinicalFinding, ontotest.Root,
		}, ec.ParentRelationships[snomed.IsA])

		assert.Equal(t, []int64{ontotest.AcuteOedema},
			ec.DirectParentRelationships[ontotest.AssociatedMorphology])
		assert.ElementsMatch(t, []int64{
			ontotest.AcuteOedema, ontotest.Oedema, ontotest.MorphAbnormal, ontotest.Root,
		}, ec.ParentRelationships[ontotest.AssociatedMorphology])

		assert.NotEmpty(t, ec.Descriptions)
	})

	t.Run("concrete values", func(t *testing.T) {
		ec, err := s.ExtendedConcept(ctx, ontotest.Paracetamol500)
		require.NoError(t, err)
		require.Len(t, ec.ConcreteValues, 1)
		assert.Equal(t, ontotest.StrengthValue, ec.ConcreteValues[0].TypeID)
		assert.Equal(t, "#500", ec.ConcreteValues[0].Value)
	})

	t.Run("refset memberships", func(t *testing.T) {
		ec, err := s.ExtendedConcept(ctx, ontotest.MultipleSclerosis)
		require.NoError(t, err)
		assert.Contains(t, ec.Refsets, ontotest.LateralizableRefset)
	})
}

func TestStore_PreferredSynonym(t *testing.T) {
	s, ctx := newSeededStore(t)
	gb, us := snomed.GBEnglishRefset, snomed.USEnglishRefset

	tests := []struct {
		name    string
		concept int64
		refsets []int64
		want    string
	}{
		{"GB priority", ontotest.Appendectomy, []int64{gb, us}, "Appendicectomy"},
		{"US priority", ontotest.Appendectomy, []int64{us, gb}, "Appendectomy"},
		{"preferred beats acceptable", ontotest.MultipleSclerosis, []int64{gb}, "Multiple sclerosis"},
		{"no refset falls back to lowest id", ontotest.Appendectomy, nil, "Appendicectomy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := s.PreferredSynonym(ctx, tt.concept, tt.refsets)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Term)
		})
	}

	t.Run("fully specified name", func(t *testing.T) {
		d, err := s.FullySpecifiedName(ctx, ontotest.MultipleSclerosis, []int64{gb})
		require.NoError(t, err)
		assert.Equal(t, "Multiple sclerosis (disorder)", d.Term)
	})

	t.Run("no active synonym", func(t *testing.T) {
		_, err := s.PreferredSynonym(ctx, ontotest.RetiredConcept, []int64{gb})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestStore_Status(t *testing.T) {
	s, ctx := newSeededStore(t)

	counts, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(19), counts.Concepts)
	assert.Greater(t, counts.Descriptions, int64(0))
	assert.Greater(t, counts.Relationships, int64(0))
	assert.Greater(t, counts.RefsetItems, int64(0))
}
