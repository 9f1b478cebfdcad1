// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snomed defines the SNOMED CT component model: concepts,
// descriptions, relationships and reference-set members, together with
// the well-known identifiers the rest of the service relies on.
//
// # Ownership Model
//
// Components are immutable value types. They are created by the RF2
// parser, replaced wholesale by later effective-time versions during
// import, and never mutated in place. Concept identifiers are passed by
// value everywhere; nothing holds pointers into the store across query
// boundaries.
package snomed

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Well-known SNOMED CT identifiers.
const (
	// Root is the SNOMED CT root concept.
	Root int64 = 138875005

	// IsA is the subsumption relationship type.
	IsA int64 = 116680003

	// Description types.
	FullySpecifiedName int64 = 900000000000003001
	Synonym            int64 = 900000000000013009
	Definition         int64 = 900000000000550004

	// Language refset acceptability values.
	Preferred  int64 = 900000000000548007
	Acceptable int64 = 900000000000549004

	// Case significance values.
	CaseSensitive                   int64 = 900000000000017005
	InitialCharacterCaseInsensitive int64 = 900000000000020002
	EntireTermCaseInsensitive       int64 = 900000000000448009

	// Relationship characteristic types.
	StatedRelationship   int64 = 900000000000010007
	InferredRelationship int64 = 900000000000011006

	// Historical association refsets.
	ReplacedByRefset           int64 = 900000000000526001
	SameAsRefset               int64 = 900000000000527005
	PossiblyEquivalentToRefset int64 = 900000000000523009
	MovedToRefset              int64 = 900000000000524003
	MovedFromRefset            int64 = 900000000000525002
	WasARefset                 int64 = 900000000000528005

	// Map refsets.
	CTV3Refset int64 = 900000000000497000

	// Language refsets.
	GBEnglishRefset int64 = 900000000000508004
	USEnglishRefset int64 = 900000000000509007

	// Metadata refsets.
	RefsetDescriptorRefset int64 = 900000000000456007
	ModuleDependencyRefset int64 = 900000000000534007
	OWLAxiomRefset         int64 = 733073007
)

// HistoricalAssociationRefsets lists the association refsets that record
// how inactive components relate to their replacements.
var HistoricalAssociationRefsets = []int64{
	ReplacedByRefset,
	SameAsRefset,
	PossiblyEquivalentToRefset,
	MovedToRefset,
	MovedFromRefset,
	WasARefset,
}

// Concept is an RF2 concept component.
type Concept struct {
	ID                 int64     `json:"id"`
	EffectiveTime      time.Time `json:"effective_time"`
	Active             bool      `json:"active"`
	ModuleID           int64     `json:"module_id"`
	DefinitionStatusID int64     `json:"definition_status_id"`
}

// Description is an RF2 description component.
type Description struct {
	ID                 int64     `json:"id"`
	EffectiveTime      time.Time `json:"effective_time"`
	Active             bool      `json:"active"`
	ModuleID           int64     `json:"module_id"`
	ConceptID          int64     `json:"concept_id"`
	LanguageCode       string    `json:"language_code"`
	TypeID             int64     `json:"type_id"`
	Term               string    `json:"term"`
	CaseSignificanceID int64     `json:"case_significance_id"`
}

// IsFullySpecifiedName reports whether this is an FSN description.
func (d Description) IsFullySpecifiedName() bool { return d.TypeID == FullySpecifiedName }

// IsSynonym reports whether this is a synonym description.
func (d Description) IsSynonym() bool { return d.TypeID == Synonym }

// LowercaseTerm returns the term folded according to its case
// significance:
//
//   - initial character case-insensitive: first code point lowercased
//   - entire term case-insensitive: whole term lowercased
//   - case-sensitive: unchanged
func (d Description) LowercaseTerm() string {
	switch d.CaseSignificanceID {
	case InitialCharacterCaseInsensitive:
		r, size := utf8.DecodeRuneInString(d.Term)
		if r == utf8.RuneError {
			return d.Term
		}
		return string(unicode.ToLower(r)) + d.Term[size:]
	case EntireTermCaseInsensitive:
		return strings.ToLower(d.Term)
	default:
		return d.Term
	}
}

// Relationship is an RF2 relationship component. For concrete-value
// relationships DestinationID is zero and Value carries the encoded
// concrete value.
type Relationship struct {
	ID                   int64     `json:"id"`
	EffectiveTime        time.Time `json:"effective_time"`
	Active               bool      `json:"active"`
	ModuleID             int64     `json:"module_id"`
	SourceID             int64     `json:"source_id"`
	DestinationID        int64     `json:"destination_id"`
	Value                string    `json:"value,omitempty"`
	RelationshipGroup    int64     `json:"relationship_group"`
	TypeID               int64     `json:"type_id"`
	CharacteristicTypeID int64     `json:"characteristic_type_id"`
	ModifierID           int64     `json:"modifier_id"`
}

// IsConcrete reports whether this relationship carries a concrete value
// rather than a destination concept.
func (r Relationship) IsConcrete() bool { return r.Value != "" }

// ExtendedConcept is the denormalized view of a concept used to build
// search documents: the concept itself, its descriptions, direct and
// transitive parents by relationship type, refset memberships and
// concrete values.
//
// ExtendedConcept is derived at index time and never persisted raw.
type ExtendedConcept struct {
	Concept                   Concept           `json:"concept"`
	Descriptions              []Description     `json:"descriptions"`
	ParentRelationships       map[int64][]int64 `json:"parent_relationships"`
	DirectParentRelationships map[int64][]int64 `json:"direct_parent_relationships"`
	Refsets                   []int64           `json:"refsets"`
	ConcreteValues            []ConcreteValue   `json:"concrete_values"`
}
