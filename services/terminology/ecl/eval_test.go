// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ecl_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/terminology/services/terminology/ecl"
	"github.com/AleutianAI/terminology/services/terminology/internal/ontotest"
	"github.com/AleutianAI/terminology/services/terminology/query"
	"github.com/AleutianAI/terminology/services/terminology/snomed"
	storage "github.com/AleutianAI/terminology/services/terminology/storage/badger"
	"github.com/AleutianAI/terminology/services/terminology/store"
)

func setup(t *testing.T) (*ecl.Evaluator, context.Context) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := store.New(db, slog.Default())
	ontotest.Seed(ctx, t, s)
	ix := ontotest.BuildIndex(ctx, t, s)
	return ecl.New(s, ix), ctx
}

func ref(op ecl.Operator, id int64) ecl.ConceptRef {
	return ecl.ConceptRef{Operator: op, ID: id}
}

func TestRealize_ConceptConstraints(t *testing.T) {
	e, ctx := setup(t)

	t.Run("descendant of excludes self", func(t *testing.T) {
		ids, err := e.Realize(ctx, ref(ecl.OpDescendantOf, ontotest.MultipleSclerosis))
		require.NoError(t, err)
		assert.Equal(t, []int64{ontotest.RelapsingRemitting}, ids)
	})

	t.Run("descendant or self includes self", func(t *testing.T) {
		ids, err := e.Realize(ctx, ref(ecl.OpDescendantOrSelfOf, ontotest.DiabetesMellitus))
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{ontotest.DiabetesMellitus, ontotest.Type1Diabetes}, ids)
	})

	t.Run("ancestors", func(t *testing.T) {
		ids, err := e.Realize(ctx, ref(ecl.OpAncestorOf, ontotest.MultipleSclerosis))
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{
			ontotest.Demyelinating, ontotest.Disease, ontotest.ClinicalFinding, ontotest.Root,
		}, ids)
	})

	t.Run("parents", func(t *testing.T) {
		ids, err := e.Realize(ctx, ref(ecl.OpParentOf, ontotest.MultipleSclerosis))
		require.NoError(t, err)
		assert.Equal(t, []int64{ontotest.Demyelinating}, ids)
	})

	t.Run("member of", func(t *testing.T) {
		ids, err := e.Realize(ctx, ref(ecl.OpMemberOf, ontotest.LateralizableRefset))
		require.NoError(t, err)
		assert.Equal(t, []int64{ontotest.MultipleSclerosis}, ids)
	})

	t.Run("inactive concepts are excluded", func(t *testing.T) {
		ids, err := e.Realize(ctx, ref(ecl.OpSelf, ontotest.RetiredConcept))
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestRealize_SetOperators(t *testing.T) {
	e, ctx := setup(t)

	t.Run("minus", func(t *testing.T) {
		ids, err := e.Realize(ctx, ecl.Compound{
			Op: ecl.SetMinus,
			Operands: []ecl.Expression{
				ref(ecl.OpDescendantOrSelfOf, ontotest.Disease),
				ref(ecl.OpDescendantOrSelfOf, ontotest.DiabetesMellitus),
			},
		})
		require.NoError(t, err)
		assert.NotContains(t, ids, ontotest.DiabetesMellitus)
		assert.NotContains(t, ids, ontotest.Type1Diabetes)
		assert.Contains(t, ids, ontotest.MultipleSclerosis)
	})

	t.Run("or", func(t *testing.T) {
		ids, err := e.Realize(ctx, ecl.Compound{
			Op: ecl.SetOr,
			Operands: []ecl.Expression{
				ref(ecl.OpSelf, ontotest.MultipleSclerosis),
				ref(ecl.OpSelf, ontotest.DiabetesMellitus),
			},
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{ontotest.MultipleSclerosis, ontotest.DiabetesMellitus}, ids)
	})

	t.Run("and", func(t *testing.T) {
		ids, err := e.Realize(ctx, ecl.Compound{
			Op: ecl.SetAnd,
			Operands: []ecl.Expression{
				ref(ecl.OpDescendantOf, ontotest.Disease),
				ref(ecl.OpDescendantOrSelfOf, ontotest.MultipleSclerosis),
			},
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{ontotest.MultipleSclerosis, ontotest.RelapsingRemitting}, ids)
	})
}

func TestRealize_Refinements(t *testing.T) {
	e, ctx := setup(t)

	t.Run("attribute subsumption", func(t *testing.T) {
		// < 19829001 : 116676008 = << 79654002
		ids, err := e.Realize(ctx, ecl.Refined{
			Focus: ref(ecl.OpDescendantOf, ontotest.LungDisorder),
			Refinement: ecl.Refinement{
				Attributes: []ecl.Attribute{{
					Type: ref(ecl.OpSelf, ontotest.AssociatedMorphology),
					Value: ecl.ConceptValue{
						Constraint: ref(ecl.OpDescendantOrSelfOf, ontotest.Oedema),
					},
				}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{ontotest.AcutePulmonaryOedema}, ids)
	})

	t.Run("strict descendant value", func(t *testing.T) {
		ids, err := e.Realize(ctx, ecl.Refined{
			Focus: ecl.Wildcard{},
			Refinement: ecl.Refinement{
				Attributes: []ecl.Attribute{{
					Type: ref(ecl.OpSelf, ontotest.AssociatedMorphology),
					Value: ecl.ConceptValue{
						Constraint: ref(ecl.OpDescendantOf, ontotest.Oedema),
					},
				}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{ontotest.AcutePulmonaryOedema}, ids)
	})

	t.Run("negated value", func(t *testing.T) {
		ids, err := e.Realize(ctx, ecl.Refined{
			Focus: ecl.Wildcard{},
			Refinement: ecl.Refinement{
				Attributes: []ecl.Attribute{{
					Type: ref(ecl.OpSelf, ontotest.AssociatedMorphology),
					Value: ecl.ConceptValue{
						Negated:    true,
						Constraint: ref(ecl.OpSelf, ontotest.Oedema),
					},
				}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{ontotest.AcutePulmonaryOedema}, ids)
	})

	t.Run("any value", func(t *testing.T) {
		ids, err := e.Realize(ctx, ecl.Refined{
			Focus: ecl.Wildcard{},
			Refinement: ecl.Refinement{
				Attributes: []ecl.Attribute{{
					Type:  ref(ecl.OpSelf, ontotest.AssociatedMorphology),
					Value: ecl.AnyValue{},
				}},
			},
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{
			ontotest.AcutePulmonaryOedema, ontotest.MultipleSclerosis,
		}, ids)
	})

	t.Run("zero cardinality", func(t *testing.T) {
		ids, err := e.Realize(ctx, ecl.Refined{
			Focus: ref(ecl.OpDescendantOf, ontotest.Disease),
			Refinement: ecl.Refinement{
				Attributes: []ecl.Attribute{{
					Cardinality: &ecl.Cardinality{Min: 0, Max: 0},
					Type:        ref(ecl.OpSelf, ontotest.AssociatedMorphology),
					Value:       ecl.AnyValue{},
				}},
			},
		})
		require.NoError(t, err)
		assert.NotContains(t, ids, ontotest.AcutePulmonaryOedema)
		assert.NotContains(t, ids, ontotest.MultipleSclerosis)
		assert.Contains(t, ids, ontotest.DiabetesMellitus)
	})

	t.Run("concrete value comparison", func(t *testing.T) {
		ids, err := e.Realize(ctx, ecl.Refined{
			Focus: ecl.Wildcard{},
			Refinement: ecl.Refinement{
				Attributes: []ecl.Attribute{{
					Type:  ref(ecl.OpSelf, ontotest.StrengthValue),
					Value: ecl.NumberValue{Op: query.OpGTE, Value: 250},
				}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{ontotest.Paracetamol500}, ids)
	})

	t.Run("grouped attributes conjoin", func(t *testing.T) {
		ids, err := e.Realize(ctx, ecl.Refined{
			Focus: ref(ecl.OpDescendantOf, ontotest.ClinicalFinding),
			Refinement: ecl.Refinement{
				Groups: []ecl.Group{{
					Attributes: []ecl.Attribute{{
						Type: ref(ecl.OpSelf, ontotest.AssociatedMorphology),
						Value: ecl.ConceptValue{
							Constraint: ref(ecl.OpDescendantOrSelfOf, ontotest.AcuteOedema),
						},
					}},
				}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{ontotest.AcutePulmonaryOedema}, ids)
	})

	t.Run("group cardinality is unsupported", func(t *testing.T) {
		_, err := e.Realize(ctx, ecl.Refined{
			Focus: ecl.Wildcard{},
			Refinement: ecl.Refinement{
				Groups: []ecl.Group{{
					Cardinality: &ecl.Cardinality{Min: 1, Max: 2},
					Attributes: []ecl.Attribute{{
						Type:  ref(ecl.OpSelf, ontotest.AssociatedMorphology),
						Value: ecl.AnyValue{},
					}},
				}},
			},
		})
		assert.ErrorIs(t, err, query.ErrUnsupported)
	})
}

// A bare attribute name subsumes its subtypes: a refinement naming the
// morphology attribute must also match concepts whose relationship is
// typed with a subtype of that attribute.
func TestRealize_AttributeTypeSubsumption(t *testing.T) {
	const (
		morphSubtype = int64(846680001)
		skinOedema   = int64(95563007)
		module       = int64(900000000000207008)
		defStatus    = int64(900000000000074008)
		modifier     = int64(900000000000451002)
	)
	ctx := context.Background()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := store.New(db, slog.Default())
	ontotest.Seed(ctx, t, s)

	// Layer a subtype of the morphology attribute onto the fixture, plus
	// a disease whose only morphology relationship uses the subtype.
	eff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutConcepts(ctx, []snomed.Concept{
		{ID: morphSubtype, EffectiveTime: eff, Active: true, ModuleID: module, DefinitionStatusID: defStatus},
		{ID: skinOedema, EffectiveTime: eff, Active: true, ModuleID: module, DefinitionStatusID: defStatus},
	}))
	require.NoError(t, s.PutDescriptions(ctx, []snomed.Description{
		{ID: 9000001011, EffectiveTime: eff, Active: true, ModuleID: module, ConceptID: morphSubtype,
			LanguageCode: "en", TypeID: snomed.Synonym, Term: "Specific associated morphology",
			CaseSignificanceID: snomed.InitialCharacterCaseInsensitive},
		{ID: 9000002011, EffectiveTime: eff, Active: true, ModuleID: module, ConceptID: skinOedema,
			LanguageCode: "en", TypeID: snomed.Synonym, Term: "Oedema of skin",
			CaseSignificanceID: snomed.InitialCharacterCaseInsensitive},
	}))
	require.NoError(t, s.PutRelationships(ctx, []snomed.Relationship{
		{ID: 9000001021, EffectiveTime: eff, Active: true, ModuleID: module,
			SourceID: morphSubtype, DestinationID: ontotest.AssociatedMorphology, TypeID: snomed.IsA,
			CharacteristicTypeID: snomed.InferredRelationship, ModifierID: modifier},
		{ID: 9000002021, EffectiveTime: eff, Active: true, ModuleID: module,
			SourceID: skinOedema, DestinationID: ontotest.Disease, TypeID: snomed.IsA,
			CharacteristicTypeID: snomed.InferredRelationship, ModifierID: modifier},
		{ID: 9000003021, EffectiveTime: eff, Active: true, ModuleID: module,
			SourceID: skinOedema, DestinationID: ontotest.Oedema, TypeID: morphSubtype, RelationshipGroup: 1,
			CharacteristicTypeID: snomed.InferredRelationship, ModifierID: modifier},
	}))
	require.NoError(t, s.BuildClosure(ctx))
	ix := ontotest.BuildIndex(ctx, t, s)
	e := ecl.New(s, ix)

	// * : 116676008 = << 79654002
	ids, err := e.Realize(ctx, ecl.Refined{
		Focus: ecl.Wildcard{},
		Refinement: ecl.Refinement{
			Attributes: []ecl.Attribute{{
				Type: ref(ecl.OpSelf, ontotest.AssociatedMorphology),
				Value: ecl.ConceptValue{
					Constraint: ref(ecl.OpDescendantOrSelfOf, ontotest.Oedema),
				},
			}},
		},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{
		ontotest.MultipleSclerosis, ontotest.AcutePulmonaryOedema, skinOedema,
	}, ids)

	// Naming the subtype directly stays narrow: rows typed with the base
	// attribute do not match.
	ids, err = e.Realize(ctx, ecl.Refined{
		Focus: ecl.Wildcard{},
		Refinement: ecl.Refinement{
			Attributes: []ecl.Attribute{{
				Type: ref(ecl.OpSelf, morphSubtype),
				Value: ecl.ConceptValue{
					Constraint: ref(ecl.OpDescendantOrSelfOf, ontotest.Oedema),
				},
			}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{skinOedema}, ids)
}

func TestRealize_SetFilters(t *testing.T) {
	e, ctx := setup(t)

	t.Run("top of set", func(t *testing.T) {
		ids, err := e.Realize(ctx, ecl.TopOf{
			Operand: ref(ecl.OpDescendantOrSelfOf, ontotest.Disease),
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{ontotest.Disease}, ids)
	})

	t.Run("bottom of set", func(t *testing.T) {
		ids, err := e.Realize(ctx, ecl.BottomOf{
			Operand: ref(ecl.OpDescendantOrSelfOf, ontotest.Disease),
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{
			ontotest.RelapsingRemitting, ontotest.Type1Diabetes, ontotest.AcutePulmonaryOedema,
		}, ids)
	})
}
