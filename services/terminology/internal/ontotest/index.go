// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ontotest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/terminology/services/terminology/index"
	"github.com/AleutianAI/terminology/services/terminology/store"
)

// BuildIndex builds a search index over the seeded store in a temp
// directory and opens it for searching.
func BuildIndex(ctx context.Context, t testing.TB, s *store.Store) *index.Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "search.bleve")
	_, err := index.NewBuilder().Build(ctx, s, path)
	require.NoError(t, err)
	ix, err := index.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}
