// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snomed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItem(kind RefsetKind, fields ...Field) RefsetItem {
	return RefsetItem{
		ID:                    uuid.New(),
		EffectiveTime:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:                true,
		ModuleID:              900000000000207008,
		RefsetID:              900000000000509007,
		ReferencedComponentID: 24700007,
		Kind:                  kind,
		Fields:                fields,
	}
}

// TestLanguageView verifies reinterpretation of a language refset member.
func TestLanguageView(t *testing.T) {
	it := newItem(RefsetKindLanguage, Field{Kind: FieldComponent, Number: Preferred})
	lang, err := it.Language()
	require.NoError(t, err)
	assert.Equal(t, Preferred, lang.AcceptabilityID)

	// A typed view of the wrong kind must fail.
	_, err = it.SimpleMap()
	assert.ErrorIs(t, err, ErrWrongRefsetKind)
}

// TestExtendedMapView verifies the seven-field extended map layout.
func TestExtendedMapView(t *testing.T) {
	it := newItem(RefsetKindExtendedMap,
		Field{Kind: FieldInteger, Number: 1},
		Field{Kind: FieldInteger, Number: 2},
		Field{Kind: FieldString, Text: "TRUE"},
		Field{Kind: FieldString, Text: "ALWAYS G35.0"},
		Field{Kind: FieldString, Text: "G35.0"},
		Field{Kind: FieldComponent, Number: 447561005},
		Field{Kind: FieldComponent, Number: 447637006},
	)
	m, err := it.ExtendedMap()
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.MapGroup)
	assert.Equal(t, int64(2), m.MapPriority)
	assert.Equal(t, "G35.0", m.MapTarget)
	assert.Equal(t, int64(447637006), m.CorrelationID)
	assert.Equal(t, int64(447561005), m.MapCategoryID)
}

// TestModuleDependencyView verifies effective-time parsing.
func TestModuleDependencyView(t *testing.T) {
	it := newItem(RefsetKindModuleDependency,
		Field{Kind: FieldString, Text: "20240101"},
		Field{Kind: FieldString, Text: "20230901"},
	)
	dep, err := it.ModuleDependency()
	require.NoError(t, err)
	assert.Equal(t, 2024, dep.SourceEffectiveTime.Year())
	assert.Equal(t, time.September, dep.TargetEffectiveTime.Month())

	it.Fields[0].Text = "not-a-date"
	_, err = it.ModuleDependency()
	assert.Error(t, err)
}

// TestItemShapeValidation verifies short field vectors are rejected.
func TestItemShapeValidation(t *testing.T) {
	it := newItem(RefsetKindComplexMap, Field{Kind: FieldInteger, Number: 1})
	_, err := it.ComplexMap()
	assert.ErrorIs(t, err, ErrBadRefsetShape)
}

// TestKindForDescriptor verifies prefix dispatch, longest match first.
func TestKindForDescriptor(t *testing.T) {
	cases := []struct {
		ids  []int64
		want RefsetKind
	}{
		{[]int64{449608002, 900000000000511003}, RefsetKindLanguage},
		{[]int64{449608002, 900000000000533001}, RefsetKindAssociation},
		{[]int64{449608002, 900000000000491004}, RefsetKindAttributeValue},
		{[]int64{449608002, 762677007}, RefsetKindOWLExpression},
		{[]int64{900000000000500006, 900000000000505001}, RefsetKindSimpleMap},
		{[]int64{900000000000500006, 900000000000505001, 1193546000}, RefsetKindComplexMap},
		{[]int64{900000000000500006, 900000000000505001, 1193546000, 609330002}, RefsetKindExtendedMap},
		{[]int64{900000000000535008, 900000000000536009, 900000000000537000}, RefsetKindModuleDependency},
		{[]int64{449608002}, RefsetKindSimple},
	}
	for _, tc := range cases {
		kind, ok := KindForDescriptor(tc.ids)
		assert.True(t, ok, "ids %v", tc.ids)
		assert.Equal(t, tc.want, kind, "ids %v", tc.ids)
	}

	_, ok := KindForDescriptor([]int64{123})
	assert.False(t, ok)
}

// TestItemJSONRoundTrip verifies the single serialization path used by
// the store preserves every field for every kind.
func TestItemJSONRoundTrip(t *testing.T) {
	items := []RefsetItem{
		newItem(RefsetKindSimple),
		newItem(RefsetKindAssociation, Field{Kind: FieldComponent, Number: 138875005}),
		newItem(RefsetKindSimpleMap, Field{Kind: FieldString, Text: "A01.0"}),
		newItem(RefsetKindOWLExpression, Field{Kind: FieldString, Text: "SubClassOf(:24700007 :6118003)"}),
	}
	for _, it := range items {
		raw, err := json.Marshal(it)
		require.NoError(t, err)
		var back RefsetItem
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Equal(t, it.ID, back.ID)
		assert.Equal(t, it.Kind, back.Kind)
		assert.Equal(t, it.Fields, back.Fields)
		assert.True(t, it.EffectiveTime.Equal(back.EffectiveTime))
	}
}

// TestLowercaseTerm verifies case-significance folding rules.
func TestLowercaseTerm(t *testing.T) {
	d := Description{Term: "Diabetes", CaseSignificanceID: InitialCharacterCaseInsensitive}
	assert.Equal(t, "diabetes", d.LowercaseTerm())

	d.CaseSignificanceID = CaseSensitive
	assert.Equal(t, "Diabetes", d.LowercaseTerm())

	d = Description{Term: "BRCA1 Gene", CaseSignificanceID: EntireTermCaseInsensitive}
	assert.Equal(t, "brca1 gene", d.LowercaseTerm())
}

// TestConcreteValue verifies the first-character type encoding.
func TestConcreteValue(t *testing.T) {
	v := ConcreteValue{TypeID: 3264475007, Value: "#250"}
	n, ok := v.Number()
	require.True(t, ok)
	assert.Equal(t, 250.0, n)
	assert.Equal(t, "250", v.Text())

	v = ConcreteValue{Value: `"mg"`}
	_, ok = v.Number()
	assert.False(t, ok)
	assert.Equal(t, "mg", v.Text())

	v = ConcreteValue{Value: "true"}
	assert.Equal(t, "true", v.Text())
}
