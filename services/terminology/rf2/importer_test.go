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
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/terminology/pkg/verhoeff"
	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

// mintSCTID appends the partition code and a computed check digit so
// the identifier passes validation.
func mintSCTID(t *testing.T, base, partition string) int64 {
	t.Helper()
	check, err := verhoeff.CheckDigit(base + partition)
	require.NoError(t, err)
	id, err := strconv.ParseInt(base+partition+strconv.Itoa(check), 10, 64)
	require.NoError(t, err)
	return id
}

func writeRelease(t *testing.T, dir, name string, rows ...[]string) {
	t.Helper()
	lines := []string{"id\teffectiveTime\tactive\tmoduleId\trest"}
	for _, row := range rows {
		lines = append(lines, strings.Join(row, "\t"))
	}
	err := os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644)
	require.NoError(t, err)
}

func TestImportDir(t *testing.T) {
	dir := t.TempDir()

	module := strconv.FormatInt(mintSCTID(t, "9000001", "00"), 10)
	conceptA := mintSCTID(t, "1234", "00")
	conceptB := mintSCTID(t, "5678", "00")
	descID := mintSCTID(t, "4321", "01")
	relID := mintSCTID(t, "8765", "02")
	inactivationRefset := mintSCTID(t, "700001", "00")
	replacedRefset := mintSCTID(t, "700002", "00")

	cid := func(id int64) string { return strconv.FormatInt(id, 10) }

	// One concept row carries a bad check digit: reported, still loaded.
	writeRelease(t, dir, "sct2_Concept_Snapshot_INT_20240101.txt",
		[]string{cid(conceptA), "20240101", "1", module, module},
		[]string{cid(conceptB), "20240101", "1", module, module},
		[]string{"123456", "20240101", "1", module, module},
	)
	writeRelease(t, dir, "sct2_Description_Snapshot-en_INT_20240101.txt",
		[]string{cid(descID), "20240101", "1", module, cid(conceptA), "en", cid(snomed.Synonym), "Granuloma", cid(snomed.CaseSensitive)},
	)
	writeRelease(t, dir, "sct2_Relationship_Snapshot_INT_20240101.txt",
		[]string{cid(relID), "20240101", "1", module, cid(conceptB), cid(conceptA), "0", cid(snomed.IsA), "900000000000011006", "900000000000451002"},
	)

	// The descriptor table declares two differently shaped refsets that
	// share the generic "c" pattern: an attribute-value refset and an
	// association refset.
	descriptorRefset := "900000000000456007"
	writeRelease(t, dir, "der2_cciRefset_RefsetDescriptorSnapshot_INT_20240101.txt",
		[]string{uuid.NewString(), "20240101", "1", module, descriptorRefset, cid(inactivationRefset), "449608002", "900000000000461009", "0"},
		[]string{uuid.NewString(), "20240101", "1", module, descriptorRefset, cid(inactivationRefset), "900000000000491004", "900000000000461009", "1"},
		[]string{uuid.NewString(), "20240101", "1", module, descriptorRefset, cid(replacedRefset), "449608002", "900000000000461009", "0"},
		[]string{uuid.NewString(), "20240101", "1", module, descriptorRefset, cid(replacedRefset), "900000000000533001", "900000000000461009", "1"},
	)

	// Members of both refsets interleaved in one file; each row must be
	// reified by its own refset's declared kind, not the last one seen.
	writeRelease(t, dir, "der2_cRefset_AttributeValueSnapshot_INT_20240101.txt",
		[]string{uuid.NewString(), "20240101", "1", module, cid(inactivationRefset), cid(conceptA), "900000000000495008"},
		[]string{uuid.NewString(), "20240101", "1", module, cid(replacedRefset), cid(conceptA), cid(conceptB)},
		[]string{uuid.NewString(), "20240101", "1", module, cid(inactivationRefset), cid(conceptB), "900000000000495008"},
	)

	var mu sync.Mutex
	var items []snomed.RefsetItem
	var concepts []snomed.Concept
	handler := func(ctx context.Context, batch *Batch) error {
		mu.Lock()
		defer mu.Unlock()
		items = append(items, batch.RefsetItems...)
		concepts = append(concepts, batch.Concepts...)
		return nil
	}

	imp := NewImporter(handler,
		WithLogger(slog.Default()),
		WithBatchSize(2),
		WithWorkers(2))
	summary, err := imp.ImportDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Files)
	assert.Equal(t, int64(3), summary.Concepts)
	assert.Equal(t, int64(1), summary.Descriptions)
	assert.Equal(t, int64(1), summary.Relationships)
	assert.Equal(t, int64(7), summary.RefsetItems)
	assert.Empty(t, summary.Errors)

	// The malformed identifier is counted but its row is admitted.
	assert.Equal(t, int64(1), summary.InvalidIdentifiers)
	loaded := map[int64]bool{}
	for _, c := range concepts {
		loaded[c.ID] = true
	}
	assert.True(t, loaded[int64(123456)])
	assert.True(t, loaded[conceptA])

	kinds := map[int64][]snomed.RefsetKind{}
	for _, it := range items {
		kinds[it.RefsetID] = append(kinds[it.RefsetID], it.Kind)
	}
	assert.Equal(t, []snomed.RefsetKind{
		snomed.RefsetKindAttributeValue, snomed.RefsetKindAttributeValue,
	}, kinds[inactivationRefset])
	assert.Equal(t, []snomed.RefsetKind{snomed.RefsetKindAssociation}, kinds[replacedRefset])
	assert.Len(t, kinds[mustParseID(t, descriptorRefset)], 4)

	for _, it := range items {
		if it.RefsetID != replacedRefset {
			continue
		}
		assoc, err := it.Association()
		require.NoError(t, err)
		assert.Equal(t, conceptB, assoc.TargetComponentID)
	}
}

func mustParseID(t *testing.T, s string) int64 {
	t.Helper()
	id, err := parseID(s)
	require.NoError(t, err)
	return id
}
