// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ontotest seeds an in-memory store with a small but realistic
// SNOMED CT fragment used across the terminology test suites: the
// multiple sclerosis and diabetes subhierarchies, a morphology branch,
// GB/US language preferences, a CTV3 map and a historical association.
package ontotest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/terminology/services/terminology/snomed"
	"github.com/AleutianAI/terminology/services/terminology/store"
)

// Concept identifiers used by the fixture. Real SNOMED CT codes where
// the scenarios depend on them.
const (
	Root                = snomed.Root
	ClinicalFinding     = int64(404684003)
	Disease             = int64(64572001)
	Demyelinating       = int64(6118003)
	MultipleSclerosis   = int64(24700007)
	RelapsingRemitting  = int64(426373005)
	DiabetesMellitus    = int64(73211009)
	Type1Diabetes       = int64(46635009)
	LungDisorder        = int64(19829001)
	AcutePulmonaryOedema = int64(40541001)
	MorphAbnormal       = int64(49755003)
	Oedema              = int64(79654002)
	AcuteOedema         = int64(85628007)
	AssociatedMorphology = int64(116676008)
	Procedure           = int64(71388002)
	Appendectomy        = int64(80146002)
	Paracetamol500      = int64(322236009)
	StrengthValue       = int64(1142135004)
	RetiredConcept      = int64(155023009)

	// LateralizableRefset is a simple refset with MultipleSclerosis as
	// its only member.
	LateralizableRefset = int64(723264001)
)

var (
	module    = int64(900000000000207008)
	defStatus = int64(900000000000074008)
	modifier  = int64(900000000000451002)
	effective = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	descSeq   int64
	relSeq    int64
)

func nextDescID() int64 {
	descSeq++
	// Description partition code 01, arbitrary check digit.
	return descSeq*100000 + 1011
}

func nextRelID() int64 {
	relSeq++
	return relSeq*100000 + 1021
}

type seeder struct {
	concepts      []snomed.Concept
	descriptions  []snomed.Description
	relationships []snomed.Relationship
	items         []snomed.RefsetItem
}

func (sd *seeder) concept(id int64, active bool, parents ...int64) {
	sd.concepts = append(sd.concepts, snomed.Concept{
		ID: id, EffectiveTime: effective, Active: active,
		ModuleID: module, DefinitionStatusID: defStatus,
	})
	for _, parent := range parents {
		sd.relationships = append(sd.relationships, snomed.Relationship{
			ID: nextRelID(), EffectiveTime: effective, Active: true, ModuleID: module,
			SourceID: id, DestinationID: parent, TypeID: snomed.IsA,
			CharacteristicTypeID: snomed.InferredRelationship, ModifierID: modifier,
		})
	}
}

func (sd *seeder) attribute(source, typeID, dest int64) {
	sd.relationships = append(sd.relationships, snomed.Relationship{
		ID: nextRelID(), EffectiveTime: effective, Active: true, ModuleID: module,
		SourceID: source, DestinationID: dest, TypeID: typeID, RelationshipGroup: 1,
		CharacteristicTypeID: snomed.InferredRelationship, ModifierID: modifier,
	})
}

func (sd *seeder) concrete(source, typeID int64, value string) {
	sd.relationships = append(sd.relationships, snomed.Relationship{
		ID: nextRelID(), EffectiveTime: effective, Active: true, ModuleID: module,
		SourceID: source, Value: value, TypeID: typeID, RelationshipGroup: 1,
		CharacteristicTypeID: snomed.InferredRelationship, ModifierID: modifier,
	})
}

// description adds a description with acceptability entries:
// preferredIn/acceptableIn list the language refsets.
func (sd *seeder) description(conceptID, typeID int64, term string, caseSig int64, preferredIn, acceptableIn []int64) int64 {
	id := nextDescID()
	sd.descriptions = append(sd.descriptions, snomed.Description{
		ID: id, EffectiveTime: effective, Active: true, ModuleID: module,
		ConceptID: conceptID, LanguageCode: "en", TypeID: typeID,
		Term: term, CaseSignificanceID: caseSig,
	})
	for _, refset := range preferredIn {
		sd.language(id, refset, snomed.Preferred)
	}
	for _, refset := range acceptableIn {
		sd.language(id, refset, snomed.Acceptable)
	}
	return id
}

func (sd *seeder) language(descriptionID, refsetID, acceptability int64) {
	sd.items = append(sd.items, snomed.RefsetItem{
		ID: uuid.New(), EffectiveTime: effective, Active: true, ModuleID: module,
		RefsetID: refsetID, ReferencedComponentID: descriptionID,
		Kind:   snomed.RefsetKindLanguage,
		Fields: []snomed.Field{{Kind: snomed.FieldComponent, Number: acceptability}},
	})
}

func (sd *seeder) member(refsetID, componentID int64) {
	sd.items = append(sd.items, snomed.RefsetItem{
		ID: uuid.New(), EffectiveTime: effective, Active: true, ModuleID: module,
		RefsetID: refsetID, ReferencedComponentID: componentID,
		Kind: snomed.RefsetKindSimple,
	})
}

func (sd *seeder) simpleMap(refsetID, componentID int64, target string) {
	sd.items = append(sd.items, snomed.RefsetItem{
		ID: uuid.New(), EffectiveTime: effective, Active: true, ModuleID: module,
		RefsetID: refsetID, ReferencedComponentID: componentID,
		Kind:   snomed.RefsetKindSimpleMap,
		Fields: []snomed.Field{{Kind: snomed.FieldString, Text: target}},
	})
}

func (sd *seeder) association(refsetID, componentID, target int64) {
	sd.items = append(sd.items, snomed.RefsetItem{
		ID: uuid.New(), EffectiveTime: effective, Active: true, ModuleID: module,
		RefsetID: refsetID, ReferencedComponentID: componentID,
		Kind:   snomed.RefsetKindAssociation,
		Fields: []snomed.Field{{Kind: snomed.FieldComponent, Number: target}},
	})
}

// Seed writes the fixture ontology into s and builds the IS-A closure.
func Seed(ctx context.Context, t testing.TB, s *store.Store) {
	t.Helper()
	gb, us := snomed.GBEnglishRefset, snomed.USEnglishRefset
	both := []int64{gb, us}

	sd := &seeder{}

	sd.concept(Root, true)
	sd.concept(ClinicalFinding, true, Root)
	sd.concept(Disease, true, ClinicalFinding)
	sd.concept(Demyelinating, true, Disease)
	sd.concept(MultipleSclerosis, true, Demyelinating)
	sd.concept(RelapsingRemitting, true, MultipleSclerosis)
	sd.concept(DiabetesMellitus, true, Disease)
	sd.concept(Type1Diabetes, true, DiabetesMellitus)
	sd.concept(LungDisorder, true, Disease)
	sd.concept(AcutePulmonaryOedema, true, LungDisorder)
	sd.concept(MorphAbnormal, true, Root)
	sd.concept(Oedema, true, MorphAbnormal)
	sd.concept(AcuteOedema, true, Oedema)
	sd.concept(AssociatedMorphology, true, Root)
	sd.concept(Procedure, true, Root)
	sd.concept(Appendectomy, true, Procedure)
	sd.concept(Paracetamol500, true, Root)
	sd.concept(StrengthValue, true, Root)
	sd.concept(RetiredConcept, false)

	sd.attribute(AcutePulmonaryOedema, AssociatedMorphology, AcuteOedema)
	sd.attribute(MultipleSclerosis, AssociatedMorphology, Oedema)
	sd.concrete(Paracetamol500, StrengthValue, "#500")

	sd.description(Root, snomed.FullySpecifiedName, "SNOMED CT Concept (SNOMED RT+CTV3)", snomed.CaseSensitive, both, nil)
	sd.description(Root, snomed.Synonym, "SNOMED CT Concept", snomed.CaseSensitive, both, nil)

	fsnAnd := func(id int64, fsn, syn string) {
		sd.description(id, snomed.FullySpecifiedName, fsn, snomed.InitialCharacterCaseInsensitive, both, nil)
		sd.description(id, snomed.Synonym, syn, snomed.InitialCharacterCaseInsensitive, both, nil)
	}
	fsnAnd(ClinicalFinding, "Clinical finding (finding)", "Clinical finding")
	fsnAnd(Disease, "Disease (disorder)", "Disease")
	fsnAnd(Demyelinating, "Demyelinating disease of central nervous system (disorder)", "Demyelinating disease")
	fsnAnd(MultipleSclerosis, "Multiple sclerosis (disorder)", "Multiple sclerosis")
	sd.description(MultipleSclerosis, snomed.Synonym, "Disseminated sclerosis", snomed.InitialCharacterCaseInsensitive, nil, both)
	fsnAnd(RelapsingRemitting, "Relapsing remitting multiple sclerosis (disorder)", "Relapsing remitting multiple sclerosis")
	fsnAnd(DiabetesMellitus, "Diabetes mellitus (disorder)", "Diabetes mellitus")
	fsnAnd(Type1Diabetes, "Diabetes mellitus type 1 (disorder)", "Type 1 diabetes mellitus")
	fsnAnd(LungDisorder, "Disorder of lung (disorder)", "Lung disorder")
	fsnAnd(AcutePulmonaryOedema, "Acute pulmonary edema (disorder)", "Acute pulmonary oedema")
	fsnAnd(MorphAbnormal, "Morphologically abnormal structure (morphologic abnormality)", "Morphologically abnormal structure")
	fsnAnd(Oedema, "Edema (morphologic abnormality)", "Oedema")
	fsnAnd(AcuteOedema, "Acute edema (morphologic abnormality)", "Acute oedema")
	fsnAnd(AssociatedMorphology, "Associated morphology (attribute)", "Associated morphology")
	fsnAnd(Procedure, "Procedure (procedure)", "Procedure")
	fsnAnd(Paracetamol500, "Paracetamol 500 mg oral tablet (clinical drug)", "Paracetamol 500 mg oral tablet")
	fsnAnd(StrengthValue, "Has presentation strength numerator value (attribute)", "Has presentation strength numerator value")

	// Appendectomy carries divergent GB/US preferred terms.
	sd.description(Appendectomy, snomed.FullySpecifiedName, "Appendectomy (procedure)", snomed.InitialCharacterCaseInsensitive, both, nil)
	sd.description(Appendectomy, snomed.Synonym, "Appendicectomy", snomed.InitialCharacterCaseInsensitive, []int64{gb}, []int64{us})
	sd.description(Appendectomy, snomed.Synonym, "Appendectomy", snomed.InitialCharacterCaseInsensitive, []int64{us}, []int64{gb})

	sd.member(LateralizableRefset, MultipleSclerosis)
	sd.simpleMap(snomed.CTV3Refset, MultipleSclerosis, "F20..")
	sd.association(snomed.ReplacedByRefset, RetiredConcept, MultipleSclerosis)

	require.NoError(t, s.PutConcepts(ctx, sd.concepts))
	require.NoError(t, s.PutDescriptions(ctx, sd.descriptions))
	require.NoError(t, s.PutRelationships(ctx, sd.relationships))
	require.NoError(t, s.PutRefsetItems(ctx, sd.items))
	require.NoError(t, s.BuildClosure(ctx))
}
