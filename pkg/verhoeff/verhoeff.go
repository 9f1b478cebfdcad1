// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verhoeff implements the Verhoeff check-digit algorithm and the
// SNOMED CT identifier (SCTID) conventions built on top of it.
//
// An SCTID is a decimal integer of 6-18 digits. The final digit is a
// Verhoeff check digit computed over the preceding digits, and the two
// digits before it form a partition code identifying the component kind
// the identifier belongs to (concept, description or relationship).
package verhoeff

import (
	"fmt"
	"strconv"
)

// Multiplication table of the dihedral group D5.
var d = [10][10]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
	{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
	{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
	{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
	{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
	{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
	{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
	{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
	{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
}

// Permutation table applied to each digit by position.
var p = [8][10]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
	{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
	{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
	{9, 4, 5, 3, 1, 2, 6, 8, 7, 0},
	{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
	{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
	{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
}

// Inverse table: inv[c] is the digit that cancels checksum state c.
var inv = [10]int{0, 4, 3, 2, 1, 5, 6, 7, 8, 9}

// Valid reports whether s is a digit string whose final digit is a
// correct Verhoeff check digit.
func Valid(s string) bool {
	if len(s) < 2 {
		return false
	}
	c := 0
	for i := 0; i < len(s); i++ {
		ch := s[len(s)-1-i]
		if ch < '0' || ch > '9' {
			return false
		}
		c = d[c][p[i%8][ch-'0']]
	}
	return c == 0
}

// CheckDigit computes the Verhoeff check digit for a digit string.
//
// Inputs:
//   - s: digit string without its check digit.
//
// Outputs:
//   - int: the check digit 0-9.
//   - error: non-nil if s is empty or contains a non-digit.
func CheckDigit(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty digit string")
	}
	c := 0
	for i := 0; i < len(s); i++ {
		ch := s[len(s)-1-i]
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("non-digit %q in %q", ch, s)
		}
		c = d[c][p[(i+1)%8][ch-'0']]
	}
	return inv[c], nil
}

// Kind is the component kind encoded in an SCTID partition code.
type Kind int

const (
	// KindUnknown is returned for unrecognized partition codes.
	KindUnknown Kind = iota
	// KindConcept covers partition codes 00 and 10.
	KindConcept
	// KindDescription covers partition codes 01 and 11.
	KindDescription
	// KindRelationship covers partition codes 02 and 12.
	KindRelationship
)

// String returns a human-readable component kind name.
func (k Kind) String() string {
	switch k {
	case KindConcept:
		return "concept"
	case KindDescription:
		return "description"
	case KindRelationship:
		return "relationship"
	default:
		return "unknown"
	}
}

// PartitionKind returns the component kind encoded in the penultimate
// two digits of an SCTID.
func PartitionKind(id int64) Kind {
	if id < 100 {
		return KindUnknown
	}
	switch (id / 10) % 100 {
	case 0, 10:
		return KindConcept
	case 1, 11:
		return KindDescription
	case 2, 12:
		return KindRelationship
	default:
		return KindUnknown
	}
}

// ValidSCTID reports whether id is within the 6-18 digit SCTID range,
// carries a known partition code, and passes the Verhoeff check.
func ValidSCTID(id int64) bool {
	if id < 100000 || id > 999999999999999999 {
		return false
	}
	if PartitionKind(id) == KindUnknown {
		return false
	}
	return Valid(strconv.FormatInt(id, 10))
}

// ValidConceptID reports whether id is a well-formed concept identifier.
func ValidConceptID(id int64) bool {
	return ValidSCTID(id) && PartitionKind(id) == KindConcept
}
