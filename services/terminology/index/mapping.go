// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/char/asciifolding"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Static field names of a description document. Identifier-valued
// fields are indexed as keyword strings: SCTIDs run to 18 digits and do
// not survive a float64 round trip.
const (
	FieldTerm               = "term"
	FieldFoldedTerm         = "nterm"
	FieldConceptID          = "concept_id"
	FieldModuleID           = "module_id"
	FieldTypeID             = "type_id"
	FieldLanguage           = "language_code"
	FieldConceptActive      = "concept_active"
	FieldDescriptionActive  = "description_active"
	FieldConceptRefsets     = "concept_refsets"
	FieldDescriptionRefsets = "description_refsets"
	FieldPreferredIn        = "preferred_in"
	FieldAcceptableIn       = "acceptable_in"
)

// foldedAnalyzer strips diacritics and tokenizes on unicode word
// boundaries. It deliberately has no lowercase filter: document terms
// arrive already case-folded per their case-significance, so a
// case-sensitive term keeps its capitals and will not match a
// lowercased query.
const foldedAnalyzer = "folded"

// TransitiveField names the array holding an attribute's destination
// concepts expanded with their ancestors.
func TransitiveField(typeID int64) string { return strconv.FormatInt(typeID, 10) }

// DirectField names the array holding an attribute's direct
// destination concepts only.
func DirectField(typeID int64) string { return "d" + strconv.FormatInt(typeID, 10) }

// CountField names the numeric count of direct relationships of a
// type, concrete values included.
func CountField(typeID int64) string { return "c" + strconv.FormatInt(typeID, 10) }

// ValueField names a concrete value; numeric when the RF2 value parses
// as a number, keyword string otherwise.
func ValueField(typeID int64) string { return "v" + strconv.FormatInt(typeID, 10) }

// buildMapping constructs the index mapping for description documents.
// Dynamic fields (per-type attribute arrays and concrete values) fall
// through to the keyword default so identifiers match exactly.
func buildMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(foldedAnalyzer, map[string]interface{}{
		"type":         custom.Name,
		"char_filters": []string{asciifolding.Name},
		"tokenizer":    unicode.Name,
	})
	if err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = keyword.Name

	doc := bleve.NewDocumentMapping()

	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	stored.Store = true
	doc.AddFieldMappingsAt(FieldTerm, stored)

	folded := bleve.NewTextFieldMapping()
	folded.Analyzer = foldedAnalyzer
	folded.Store = false
	doc.AddFieldMappingsAt(FieldFoldedTerm, folded)

	conceptID := bleve.NewKeywordFieldMapping()
	conceptID.Store = true
	doc.AddFieldMappingsAt(FieldConceptID, conceptID)

	keyword := bleve.NewKeywordFieldMapping()
	keyword.Store = false
	for _, f := range []string{
		FieldModuleID, FieldTypeID, FieldLanguage,
		FieldConceptRefsets, FieldDescriptionRefsets,
		FieldPreferredIn, FieldAcceptableIn,
	} {
		doc.AddFieldMappingsAt(f, keyword)
	}

	active := bleve.NewBooleanFieldMapping()
	active.Store = false
	doc.AddFieldMappingsAt(FieldConceptActive, active)
	doc.AddFieldMappingsAt(FieldDescriptionActive, active)

	im.DefaultMapping = doc
	return im, nil
}
