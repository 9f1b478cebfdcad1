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

// TestParseFilenameCore verifies classification of core component files.
func TestParseFilenameCore(t *testing.T) {
	info, err := ParseFilename("sct2_Concept_Snapshot_INT_20240101.txt")
	require.NoError(t, err)
	assert.Equal(t, EntityConcept, info.Entity)
	assert.Equal(t, ReleaseSnapshot, info.ReleaseType)
	assert.Equal(t, "INT", info.CountryNamespace)
	assert.Equal(t, 2024, info.VersionDate.Year())
	assert.Empty(t, info.Pattern)

	info, err = ParseFilename("sct2_Description_Snapshot-en_GB1000000_20230401.txt")
	require.NoError(t, err)
	assert.Equal(t, EntityDescription, info.Entity)
	assert.Equal(t, "en", info.LanguageCode)

	info, err = ParseFilename("sct2_TextDefinition_Snapshot-en_INT_20240101.txt")
	require.NoError(t, err)
	assert.Equal(t, EntityDescription, info.Entity)

	info, err = ParseFilename("sct2_StatedRelationship_Full_INT_20240101.txt")
	require.NoError(t, err)
	assert.Equal(t, EntityStatedRelationship, info.Entity)
	assert.Equal(t, ReleaseFull, info.ReleaseType)

	info, err = ParseFilename("sct2_RelationshipConcreteValues_Snapshot_INT_20240101.txt")
	require.NoError(t, err)
	assert.Equal(t, EntityConcreteRelationship, info.Entity)
}

// TestParseFilenameRefset verifies pattern extraction for refset files.
func TestParseFilenameRefset(t *testing.T) {
	info, err := ParseFilename("der2_cRefset_LanguageSnapshot-en_INT_20240101.txt")
	require.NoError(t, err)
	assert.Equal(t, EntityRefset, info.Entity)
	assert.Equal(t, "c", info.Pattern)
	kind, ok := info.RefsetKindHint()
	assert.True(t, ok)
	assert.Equal(t, snomed.RefsetKindLanguage, kind)

	info, err = ParseFilename("der2_iisssccRefset_ExtendedMapSnapshot_INT_20240101.txt")
	require.NoError(t, err)
	assert.Equal(t, "iissscc", info.Pattern)
	kind, ok = info.RefsetKindHint()
	assert.True(t, ok)
	assert.Equal(t, snomed.RefsetKindExtendedMap, kind)

	info, err = ParseFilename("der2_cciRefset_RefsetDescriptorSnapshot_INT_20240101.txt")
	require.NoError(t, err)
	kind, ok = info.RefsetKindHint()
	assert.True(t, ok)
	assert.Equal(t, snomed.RefsetKindDescriptor, kind)

	info, err = ParseFilename("der2_Refset_SimpleSnapshot_INT_20240101.txt")
	require.NoError(t, err)
	assert.Empty(t, info.Pattern)
	kind, ok = info.RefsetKindHint()
	assert.True(t, ok)
	assert.Equal(t, snomed.RefsetKindSimple, kind)
}

// TestParseFilenameRejects verifies non-RF2 names are rejected.
func TestParseFilenameRejects(t *testing.T) {
	_, err := ParseFilename("README.txt")
	assert.ErrorIs(t, err, ErrNotRF2)

	_, err = ParseFilename("sct2_Concept_Snapshot_INT_notadate.txt")
	assert.Error(t, err)

	_, err = ParseFilename("der2_cxRefset_LanguageSnapshot_INT_20240101.txt")
	assert.ErrorIs(t, err, ErrBadPattern)
}
