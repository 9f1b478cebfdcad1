// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists SNOMED CT components in BadgerDB and serves
// component lookup, graph traversal and the IS-A transitive closure.
//
// # Keyspaces
//
// Every key starts with a one-byte namespace tag followed by
// big-endian identifiers, so range scans over a prefix enumerate a
// logical reverse index in identifier order:
//
//	concepts                id                         -> Concept (JSON)
//	descriptions            id                         -> Description
//	relationships           id                         -> Relationship
//	refset items            uuid                       -> RefsetItem
//	concept descriptions    conceptID, descriptionID   -> -
//	parents                 sourceID, typeID, destID, relID -> -
//	children                destID, typeID, sourceID, relID -> -
//	component refsets       componentID, refsetID, uuid -> -
//	refset members          refsetID, componentID, uuid -> -
//	installed refsets       refsetID                   -> -
//	ancestors (IS-A)        conceptID, ancestorID      -> -
//	map targets             refsetID, target, 0, uuid  -> -
//
// The parents/children indices hold only the latest active
// relationships; concrete-value relationships appear with a zero
// destination so concrete values can be collected per concept.
package store

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Keyspace tags. Component records carry values; the rest are
// key-only indices.
const (
	kpConcept byte = iota + 0x01
	kpDescription
	kpRelationship
	kpRefsetItem
)

const (
	kpConceptDescriptions byte = iota + 0x10
	kpParents
	kpChildren
	kpComponentRefsets
	kpRefsetMembers
	kpInstalledRefsets
	kpAncestors
	kpMapTargets
)

func appendID(key []byte, id int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return append(key, buf[:]...)
}

func key(prefix byte, ids ...int64) []byte {
	k := make([]byte, 1, 1+8*len(ids))
	k[0] = prefix
	for _, id := range ids {
		k = appendID(k, id)
	}
	return k
}

func keyItem(u uuid.UUID) []byte {
	k := make([]byte, 1, 17)
	k[0] = kpRefsetItem
	return append(k, u[:]...)
}

func appendUUID(key []byte, u uuid.UUID) []byte {
	return append(key, u[:]...)
}

// keyMapTarget builds a map-target index key. The target string is
// terminated with a zero byte so one target is never a range prefix of
// another.
func keyMapTarget(refsetID int64, target string, u uuid.UUID) []byte {
	k := key(kpMapTargets, refsetID)
	k = append(k, target...)
	k = append(k, 0x00)
	return appendUUID(k, u)
}

func idAt(k []byte, offset int) int64 {
	return int64(binary.BigEndian.Uint64(k[offset : offset+8]))
}
