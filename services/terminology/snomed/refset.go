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
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RefsetKind identifies the concrete shape of a reference-set member.
//
// RF2 distributes reference sets as generic rows: six header columns
// followed by a variable number of typed fields. The kind determines how
// those fields are interpreted. It is resolved either from the refset's
// RefsetDescriptor entries (see KindForDescriptor) or from the release
// file name when no descriptor has been seen yet.
type RefsetKind int

const (
	// RefsetKindSimple has no extra fields; membership is the payload.
	RefsetKindSimple RefsetKind = iota
	// RefsetKindAssociation links a component to a target component.
	RefsetKindAssociation
	// RefsetKindLanguage records description acceptability per language.
	RefsetKindLanguage
	// RefsetKindSimpleMap maps a component to an external code.
	RefsetKindSimpleMap
	// RefsetKindComplexMap maps with group, priority, rule and advice.
	RefsetKindComplexMap
	// RefsetKindExtendedMap is a complex map with a map category.
	RefsetKindExtendedMap
	// RefsetKindAttributeValue tags a component with a value concept.
	RefsetKindAttributeValue
	// RefsetKindOWLExpression carries an OWL functional-syntax axiom.
	RefsetKindOWLExpression
	// RefsetKindModuleDependency records inter-module version dependencies.
	RefsetKindModuleDependency
	// RefsetKindDescriptor describes the shape of another refset.
	RefsetKindDescriptor
)

// String returns the RF2-style name of the kind.
func (k RefsetKind) String() string {
	switch k {
	case RefsetKindSimple:
		return "Simple"
	case RefsetKindAssociation:
		return "Association"
	case RefsetKindLanguage:
		return "Language"
	case RefsetKindSimpleMap:
		return "SimpleMap"
	case RefsetKindComplexMap:
		return "ComplexMap"
	case RefsetKindExtendedMap:
		return "ExtendedMap"
	case RefsetKindAttributeValue:
		return "AttributeValue"
	case RefsetKindOWLExpression:
		return "OWLExpression"
	case RefsetKindModuleDependency:
		return "ModuleDependency"
	case RefsetKindDescriptor:
		return "RefsetDescriptor"
	default:
		return fmt.Sprintf("RefsetKind(%d)", int(k))
	}
}

// Signature returns the expected field pattern for the kind, one
// character per extra field: 'c' component id, 'i' integer, 's' string.
func (k RefsetKind) Signature() string {
	switch k {
	case RefsetKindSimple:
		return ""
	case RefsetKindAssociation, RefsetKindLanguage, RefsetKindAttributeValue:
		return "c"
	case RefsetKindSimpleMap, RefsetKindOWLExpression:
		return "s"
	case RefsetKindComplexMap:
		return "iisssc"
	case RefsetKindExtendedMap:
		return "iissscc"
	case RefsetKindModuleDependency:
		return "ss"
	case RefsetKindDescriptor:
		return "cci"
	default:
		return ""
	}
}

// FieldKind is the type tag of one extra refset field.
type FieldKind byte

const (
	// FieldComponent is an SCTID ('c').
	FieldComponent FieldKind = 'c'
	// FieldInteger is a signed 64-bit integer ('i').
	FieldInteger FieldKind = 'i'
	// FieldString is a UTF-8 string ('s').
	FieldString FieldKind = 's'
)

// Field is one typed extra field of a reference-set member.
type Field struct {
	Kind   FieldKind `json:"kind"`
	Number int64     `json:"number,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// RefsetItem is a reference-set member: the six RF2 header fields plus
// the typed extra fields determined by the refset's kind.
//
// RefsetItem is the single persisted representation for every refset
// shape; the typed views (Association, Language, ...) reinterpret the
// field vector without copying the store layout.
type RefsetItem struct {
	ID                    uuid.UUID  `json:"id"`
	EffectiveTime         time.Time  `json:"effective_time"`
	Active                bool       `json:"active"`
	ModuleID              int64      `json:"module_id"`
	RefsetID              int64      `json:"refset_id"`
	ReferencedComponentID int64      `json:"referenced_component_id"`
	Kind                  RefsetKind `json:"kind"`
	Fields                []Field    `json:"fields,omitempty"`
}

func (it RefsetItem) number(i int) int64 {
	if i < len(it.Fields) {
		return it.Fields[i].Number
	}
	return 0
}

func (it RefsetItem) text(i int) string {
	if i < len(it.Fields) {
		return it.Fields[i].Text
	}
	return ""
}

func (it RefsetItem) require(kind RefsetKind) error {
	if it.Kind != kind {
		return fmt.Errorf("refset item %s: %w: have %s, want %s", it.ID, ErrWrongRefsetKind, it.Kind, kind)
	}
	if len(it.Fields) < len(kind.Signature()) {
		return fmt.Errorf("refset item %s: %w: %d fields, want %d", it.ID, ErrBadRefsetShape, len(it.Fields), len(kind.Signature()))
	}
	return nil
}

// AssociationItem links a referenced component to a target component,
// most prominently in the historical association refsets.
type AssociationItem struct {
	RefsetItem
	TargetComponentID int64
}

// Association reinterprets the item as an association member.
func (it RefsetItem) Association() (AssociationItem, error) {
	if err := it.require(RefsetKindAssociation); err != nil {
		return AssociationItem{}, err
	}
	return AssociationItem{RefsetItem: it, TargetComponentID: it.number(0)}, nil
}

// LanguageItem records the acceptability of a description in a language
// reference set.
type LanguageItem struct {
	RefsetItem
	AcceptabilityID int64
}

// Language reinterprets the item as a language refset member.
func (it RefsetItem) Language() (LanguageItem, error) {
	if err := it.require(RefsetKindLanguage); err != nil {
		return LanguageItem{}, err
	}
	return LanguageItem{RefsetItem: it, AcceptabilityID: it.number(0)}, nil
}

// SimpleMapItem maps a component to an external code system target.
type SimpleMapItem struct {
	RefsetItem
	MapTarget string
}

// SimpleMap reinterprets the item as a simple map member.
func (it RefsetItem) SimpleMap() (SimpleMapItem, error) {
	if err := it.require(RefsetKindSimpleMap); err != nil {
		return SimpleMapItem{}, err
	}
	return SimpleMapItem{RefsetItem: it, MapTarget: it.text(0)}, nil
}

// ComplexMapItem maps a component with grouping, priority, a rule and
// advice text.
type ComplexMapItem struct {
	RefsetItem
	MapGroup      int64
	MapPriority   int64
	MapRule       string
	MapAdvice     string
	MapTarget     string
	CorrelationID int64
}

// ComplexMap reinterprets the item as a complex map member.
func (it RefsetItem) ComplexMap() (ComplexMapItem, error) {
	if err := it.require(RefsetKindComplexMap); err != nil {
		return ComplexMapItem{}, err
	}
	return ComplexMapItem{
		RefsetItem:    it,
		MapGroup:      it.number(0),
		MapPriority:   it.number(1),
		MapRule:       it.text(2),
		MapAdvice:     it.text(3),
		MapTarget:     it.text(4),
		CorrelationID: it.number(5),
	}, nil
}

// ExtendedMapItem is a complex map member with a map category.
type ExtendedMapItem struct {
	RefsetItem
	MapGroup      int64
	MapPriority   int64
	MapRule       string
	MapAdvice     string
	MapTarget     string
	CorrelationID int64
	MapCategoryID int64
}

// ExtendedMap reinterprets the item as an extended map member.
func (it RefsetItem) ExtendedMap() (ExtendedMapItem, error) {
	if err := it.require(RefsetKindExtendedMap); err != nil {
		return ExtendedMapItem{}, err
	}
	return ExtendedMapItem{
		RefsetItem:    it,
		MapGroup:      it.number(0),
		MapPriority:   it.number(1),
		MapRule:       it.text(2),
		MapAdvice:     it.text(3),
		MapTarget:     it.text(4),
		CorrelationID: it.number(5),
		MapCategoryID: it.number(6),
	}, nil
}

// AttributeValueItem tags a component with a value concept, e.g. an
// inactivation reason.
type AttributeValueItem struct {
	RefsetItem
	ValueID int64
}

// AttributeValue reinterprets the item as an attribute-value member.
func (it RefsetItem) AttributeValue() (AttributeValueItem, error) {
	if err := it.require(RefsetKindAttributeValue); err != nil {
		return AttributeValueItem{}, err
	}
	return AttributeValueItem{RefsetItem: it, ValueID: it.number(0)}, nil
}

// OWLExpressionItem carries an OWL functional-syntax axiom for a
// concept. Axioms are stored but not indexed.
type OWLExpressionItem struct {
	RefsetItem
	OWLExpression string
}

// OWLExpression reinterprets the item as an OWL expression member.
func (it RefsetItem) OWLExpression() (OWLExpressionItem, error) {
	if err := it.require(RefsetKindOWLExpression); err != nil {
		return OWLExpressionItem{}, err
	}
	return OWLExpressionItem{RefsetItem: it, OWLExpression: it.text(0)}, nil
}

// ModuleDependencyItem records that a module version depends on a
// target module version.
type ModuleDependencyItem struct {
	RefsetItem
	SourceEffectiveTime time.Time
	TargetEffectiveTime time.Time
}

// ModuleDependency reinterprets the item as a module dependency member.
func (it RefsetItem) ModuleDependency() (ModuleDependencyItem, error) {
	if err := it.require(RefsetKindModuleDependency); err != nil {
		return ModuleDependencyItem{}, err
	}
	src, err := time.Parse("20060102", it.text(0))
	if err != nil {
		return ModuleDependencyItem{}, fmt.Errorf("refset item %s: source effective time: %w", it.ID, err)
	}
	dst, err := time.Parse("20060102", it.text(1))
	if err != nil {
		return ModuleDependencyItem{}, fmt.Errorf("refset item %s: target effective time: %w", it.ID, err)
	}
	return ModuleDependencyItem{RefsetItem: it, SourceEffectiveTime: src, TargetEffectiveTime: dst}, nil
}

// RefsetDescriptorItem describes one attribute of another reference
// set: which attribute-description concept it uses, its type and order.
type RefsetDescriptorItem struct {
	RefsetItem
	AttributeDescriptionID int64
	AttributeTypeID        int64
	AttributeOrder         int64
}

// Descriptor reinterprets the item as a refset descriptor member.
func (it RefsetItem) Descriptor() (RefsetDescriptorItem, error) {
	if err := it.require(RefsetKindDescriptor); err != nil {
		return RefsetDescriptorItem{}, err
	}
	return RefsetDescriptorItem{
		RefsetItem:             it,
		AttributeDescriptionID: it.number(0),
		AttributeTypeID:        it.number(1),
		AttributeOrder:         it.number(2),
	}, nil
}

// descriptorPrefixes maps leading attribute-description concept ids, as
// declared by a refset's RefsetDescriptor entries, to the concrete kind.
// Longest prefixes first so ExtendedMap wins over ComplexMap wins over
// SimpleMap.
var descriptorPrefixes = []struct {
	prefix []int64
	kind   RefsetKind
}{
	{[]int64{900000000000500006, 900000000000505001, 1193546000, 609330002}, RefsetKindExtendedMap},
	{[]int64{900000000000500006, 900000000000505001, 1193546000}, RefsetKindComplexMap},
	{[]int64{900000000000500006, 900000000000505001}, RefsetKindSimpleMap},
	{[]int64{449608002, 900000000000533001}, RefsetKindAssociation},
	{[]int64{449608002, 900000000000511003}, RefsetKindLanguage},
	{[]int64{449608002, 900000000000491004}, RefsetKindAttributeValue},
	{[]int64{449608002, 762677007}, RefsetKindOWLExpression},
	{[]int64{900000000000535008, 900000000000536009, 900000000000537000}, RefsetKindModuleDependency},
	{[]int64{449608002}, RefsetKindSimple},
}

// KindForDescriptor resolves a refset kind from the ordered attribute
// description concept ids of its RefsetDescriptor entries.
//
// The boolean result is false when no registered prefix matches.
func KindForDescriptor(attributeDescriptions []int64) (RefsetKind, bool) {
	for _, entry := range descriptorPrefixes {
		if hasPrefix(attributeDescriptions, entry.prefix) {
			return entry.kind, true
		}
	}
	return RefsetKindSimple, false
}

func hasPrefix(ids, prefix []int64) bool {
	if len(ids) < len(prefix) {
		return false
	}
	for i, want := range prefix {
		if ids[i] != want {
			return false
		}
	}
	return true
}
