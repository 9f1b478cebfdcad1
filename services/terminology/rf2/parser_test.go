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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

// TestParseConceptRoundTrip verifies parse(unparse(x)) == x.
func TestParseConceptRoundTrip(t *testing.T) {
	cols := SplitRow("24700007\t20240101\t1\t900000000000207008\t900000000000073002\r")
	c, err := ParseConcept(cols)
	require.NoError(t, err)
	assert.Equal(t, int64(24700007), c.ID)
	assert.True(t, c.Active)
	assert.Equal(t, int64(900000000000073002), c.DefinitionStatusID)

	back, err := ParseConcept(UnparseConcept(c))
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

// TestParseDescriptionRoundTrip verifies the nine-column layout.
func TestParseDescriptionRoundTrip(t *testing.T) {
	cols := SplitRow("41398015\t20020131\t1\t900000000000207008\t24700007\ten\t900000000000013009\tMultiple sclerosis\t900000000000020002")
	d, err := ParseDescription(cols)
	require.NoError(t, err)
	assert.Equal(t, "Multiple sclerosis", d.Term)
	assert.Equal(t, "en", d.LanguageCode)
	assert.True(t, d.IsSynonym())

	back, err := ParseDescription(UnparseDescription(d))
	require.NoError(t, err)
	assert.Equal(t, d, back)
}

// TestParseRelationshipRoundTrip covers both destination and concrete forms.
func TestParseRelationshipRoundTrip(t *testing.T) {
	cols := SplitRow("3991930028\t20240101\t1\t900000000000207008\t24700007\t6118003\t0\t116680003\t900000000000011006\t900000000000451002")
	r, err := ParseRelationship(cols, false)
	require.NoError(t, err)
	assert.Equal(t, int64(6118003), r.DestinationID)
	assert.False(t, r.IsConcrete())

	back, err := ParseRelationship(UnparseRelationship(r), false)
	require.NoError(t, err)
	assert.Equal(t, r, back)

	cols = SplitRow("9991930021\t20240101\t1\t900000000000207008\t322236009\t#500\t1\t1142135004\t900000000000011006\t900000000000451002")
	r, err = ParseRelationship(cols, true)
	require.NoError(t, err)
	assert.True(t, r.IsConcrete())
	assert.Equal(t, "#500", r.Value)
	assert.Zero(t, r.DestinationID)

	back, err = ParseRelationship(UnparseRelationship(r), true)
	require.NoError(t, err)
	assert.Equal(t, r, back)
}

// TestParseRefsetItem verifies pattern-driven field parsing.
func TestParseRefsetItem(t *testing.T) {
	cols := SplitRow("80000517-8513-5ca0-a44c-dc66f3c3a1c6\t20240101\t1\t900000000000207008\t900000000000509007\t41398015\t900000000000548007")
	item, err := ParseRefsetItem(cols, "c", snomed.RefsetKindLanguage)
	require.NoError(t, err)
	assert.Equal(t, int64(900000000000509007), item.RefsetID)
	assert.Equal(t, int64(41398015), item.ReferencedComponentID)

	lang, err := item.Language()
	require.NoError(t, err)
	assert.Equal(t, snomed.Preferred, lang.AcceptabilityID)
}

// TestParseErrors verifies row-shape and field-type failures.
func TestParseErrors(t *testing.T) {
	_, err := ParseConcept(SplitRow("24700007\t20240101\t1"))
	assert.ErrorIs(t, err, ErrBadRow)

	_, err = ParseConcept(SplitRow("notanumber\t20240101\t1\t0\t0"))
	assert.Error(t, err)

	_, err = ParseConcept(SplitRow("24700007\t2024-01-01\t1\t0\t0"))
	assert.Error(t, err)

	_, err = ParseConcept(SplitRow("24700007\t20240101\tyes\t0\t0"))
	assert.Error(t, err)

	// Non-numeric value in a 'c' field.
	cols := SplitRow("80000517-8513-5ca0-a44c-dc66f3c3a1c6\t20240101\t1\t0\t0\t0\tabc")
	_, err = ParseRefsetItem(cols, "c", snomed.RefsetKindLanguage)
	assert.Error(t, err)

	// Pattern mismatch.
	_, err = ParseRefsetItem(cols, "cc", snomed.RefsetKindLanguage)
	assert.ErrorIs(t, err, ErrBadRow)
}
