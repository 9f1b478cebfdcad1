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
	"context"
	"strconv"

	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

// Source supplies the denormalized views the indexer reads. *store.Store
// satisfies it.
type Source interface {
	IterateConcepts(ctx context.Context, fn func(c snomed.Concept) error) error
	ExtendedConcept(ctx context.Context, conceptID int64) (*snomed.ExtendedConcept, error)
	ComponentRefsetItems(ctx context.Context, componentID, refsetID int64) ([]snomed.RefsetItem, error)
}

func idStrings(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}

// document is one indexable description.
type document struct {
	id     string
	fields map[string]interface{}
}

// buildDocuments emits one document per description of the extended
// concept. Attribute relationships and refset memberships are
// replicated onto every description so that concept-level constraints
// and term search resolve against the same index.
func buildDocuments(ctx context.Context, src Source, ec *snomed.ExtendedConcept) ([]document, error) {
	conceptID := strconv.FormatInt(ec.Concept.ID, 10)
	conceptRefsets := idStrings(ec.Refsets)

	shared := map[string]interface{}{}
	for typeID, ids := range ec.ParentRelationships {
		shared[TransitiveField(typeID)] = idStrings(ids)
	}
	counts := map[int64]int{}
	for typeID, ids := range ec.DirectParentRelationships {
		shared[DirectField(typeID)] = idStrings(ids)
		counts[typeID] += len(ids)
	}
	for _, cv := range ec.ConcreteValues {
		counts[cv.TypeID]++
		if n, ok := cv.Number(); ok {
			shared[ValueField(cv.TypeID)] = n
		} else {
			shared[ValueField(cv.TypeID)] = cv.Text()
		}
	}
	for typeID, n := range counts {
		shared[CountField(typeID)] = float64(n)
	}

	docs := make([]document, 0, len(ec.Descriptions))
	for _, d := range ec.Descriptions {
		items, err := src.ComponentRefsetItems(ctx, d.ID, 0)
		if err != nil {
			return nil, err
		}
		var descRefsets, preferredIn, acceptableIn []string
		for _, it := range items {
			descRefsets = append(descRefsets, strconv.FormatInt(it.RefsetID, 10))
			if it.Kind != snomed.RefsetKindLanguage {
				continue
			}
			lang, err := it.Language()
			if err != nil {
				continue
			}
			switch lang.AcceptabilityID {
			case snomed.Preferred:
				preferredIn = append(preferredIn, strconv.FormatInt(it.RefsetID, 10))
			case snomed.Acceptable:
				acceptableIn = append(acceptableIn, strconv.FormatInt(it.RefsetID, 10))
			}
		}

		fields := map[string]interface{}{
			FieldTerm:              d.Term,
			FieldFoldedTerm:        d.LowercaseTerm(),
			FieldConceptID:         conceptID,
			FieldModuleID:          strconv.FormatInt(d.ModuleID, 10),
			FieldTypeID:            strconv.FormatInt(d.TypeID, 10),
			FieldLanguage:          d.LanguageCode,
			FieldConceptActive:     ec.Concept.Active,
			FieldDescriptionActive: d.Active,
			FieldConceptRefsets:    conceptRefsets,
		}
		if len(descRefsets) > 0 {
			fields[FieldDescriptionRefsets] = descRefsets
		}
		if len(preferredIn) > 0 {
			fields[FieldPreferredIn] = preferredIn
		}
		if len(acceptableIn) > 0 {
			fields[FieldAcceptableIn] = acceptableIn
		}
		for k, v := range shared {
			fields[k] = v
		}
		docs = append(docs, document{
			id:     strconv.FormatInt(d.ID, 10),
			fields: fields,
		})
	}
	return docs, nil
}
