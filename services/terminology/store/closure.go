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
	"fmt"
	"runtime"

	badgerdb "github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

// BuildClosure materializes the IS-A transitive closure.
//
// Description:
//
//	Drops any previous closure, loads the active IS-A adjacency into
//	memory, and walks the graph breadth first from every concept with
//	at least one parent, persisting one (concept, ancestor) key per
//	ancestor. Runs after component ingestion completes; the closure is
//	ancestor-only, reflexive lookups add the concept itself (see
//	AllAncestors).
//
// Thread Safety: must not run concurrently with component writes.
func (s *Store) BuildClosure(ctx context.Context) error {
	if err := s.db.DropPrefix([]byte{kpAncestors}); err != nil {
		return fmt.Errorf("drop closure: %w", err)
	}

	adjacency, err := s.loadIsAAdjacency(ctx)
	if err != nil {
		return err
	}
	s.log.Info("building IS-A closure", "concepts_with_parents", len(adjacency))

	ids := make(chan int64, 1024)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(ids)
		for id := range adjacency {
			select {
			case ids <- id:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < runtime.NumCPU(); i++ {
		g.Go(func() error {
			wb := s.db.NewWriteBatch()
			defer wb.Cancel()
			for id := range ids {
				for ancestor := range ancestorsOf(id, adjacency) {
					if err := wb.Set(key(kpAncestors, id, ancestor), nil); err != nil {
						return fmt.Errorf("closure write for %d: %w", id, err)
					}
				}
			}
			return wb.Flush()
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("build closure: %w", err)
	}
	return nil
}

// loadIsAAdjacency scans the parents index for active IS-A edges.
func (s *Store) loadIsAAdjacency(ctx context.Context) (map[int64][]int64, error) {
	adjacency := map[int64][]int64{}
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		return scanKeys(txn, []byte{kpParents}, func(k []byte) error {
			if idAt(k, 9) != snomed.IsA {
				return nil
			}
			source, dest := idAt(k, 1), idAt(k, 17)
			if dest == 0 {
				return nil
			}
			adjacency[source] = append(adjacency[source], dest)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load IS-A adjacency: %w", err)
	}
	return adjacency, nil
}

// ancestorsOf walks the adjacency breadth first from id. The visited
// set doubles as cycle protection; a released ontology is a DAG but a
// broken import must not hang the build.
func ancestorsOf(id int64, adjacency map[int64][]int64) map[int64]struct{} {
	visited := map[int64]struct{}{}
	queue := adjacency[id]
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := visited[next]; ok || next == id {
			continue
		}
		visited[next] = struct{}{}
		queue = append(queue, adjacency[next]...)
	}
	return visited
}
