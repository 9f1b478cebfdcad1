// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query builds index queries over description documents. It is
// the target algebra of the ECL evaluator and of text search: every
// constraint compiles to a value of the index library's query type and
// combines with And/Or/Not.
package query

import (
	"strconv"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/AleutianAI/terminology/services/terminology/index"
	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

func termQuery(field string, id int64) blevequery.Query {
	q := bleve.NewTermQuery(strconv.FormatInt(id, 10))
	q.SetField(field)
	return q
}

// Self matches the descriptions of exactly one concept.
func Self(conceptID int64) blevequery.Query {
	return termQuery(index.FieldConceptID, conceptID)
}

// SelfAny matches the descriptions of any of the given concepts. An
// empty set matches nothing.
func SelfAny(conceptIDs []int64) blevequery.Query {
	if len(conceptIDs) == 0 {
		return MatchNone()
	}
	qs := make([]blevequery.Query, len(conceptIDs))
	for i, id := range conceptIDs {
		qs[i] = Self(id)
	}
	return Or(qs...)
}

// DescendantOf matches concepts strictly below the given concept under
// IS-A.
func DescendantOf(conceptID int64) blevequery.Query {
	return termQuery(index.TransitiveField(snomed.IsA), conceptID)
}

// DescendantOrSelfOf matches the concept and everything below it.
func DescendantOrSelfOf(conceptID int64) blevequery.Query {
	return Or(Self(conceptID), DescendantOf(conceptID))
}

// ChildOf matches direct children only.
func ChildOf(conceptID int64) blevequery.Query {
	return termQuery(index.DirectField(snomed.IsA), conceptID)
}

// ChildOrSelfOf matches the concept and its direct children.
func ChildOrSelfOf(conceptID int64) blevequery.Query {
	return Or(Self(conceptID), ChildOf(conceptID))
}

// MemberOf matches concepts that are members of the given refset.
func MemberOf(refsetID int64) blevequery.Query {
	return termQuery(index.FieldConceptRefsets, refsetID)
}

// MemberOfAny matches members of any of the given refsets. The caller
// validates non-emptiness; an empty set matches nothing.
func MemberOfAny(refsetIDs []int64) blevequery.Query {
	if len(refsetIDs) == 0 {
		return MatchNone()
	}
	qs := make([]blevequery.Query, len(refsetIDs))
	for i, id := range refsetIDs {
		qs[i] = MemberOf(id)
	}
	return Or(qs...)
}

// AttributeEquals matches concepts with a direct relationship of the
// given type pointing at exactly the given destination.
func AttributeEquals(typeID, destinationID int64) blevequery.Query {
	return termQuery(index.DirectField(typeID), destinationID)
}

// AttributeSubsumedBy matches concepts whose relationship of the given
// type points at the destination or any of its descendants. The index
// stores each destination expanded with its ancestors, so subsumption
// is a single term match.
func AttributeSubsumedBy(typeID, destinationID int64) blevequery.Query {
	return termQuery(index.TransitiveField(typeID), destinationID)
}

// And intersects queries.
func And(qs ...blevequery.Query) blevequery.Query {
	return bleve.NewConjunctionQuery(qs...)
}

// Or unions queries. At least one sub-query must match.
func Or(qs ...blevequery.Query) blevequery.Query {
	q := bleve.NewDisjunctionQuery(qs...)
	q.SetMin(1)
	return q
}

// Not matches everything except q.
func Not(q blevequery.Query) blevequery.Query {
	b := bleve.NewBooleanQuery()
	b.AddMust(MatchAll())
	b.AddMustNot(q)
	return b
}

// MatchAll matches every description document.
func MatchAll() blevequery.Query { return bleve.NewMatchAllQuery() }

// MatchNone matches nothing.
func MatchNone() blevequery.Query { return bleve.NewMatchNoneQuery() }

// ConceptActive restricts to descriptions of active (or inactive)
// concepts.
func ConceptActive(active bool) blevequery.Query {
	q := bleve.NewBoolFieldQuery(active)
	q.SetField(index.FieldConceptActive)
	return q
}

// DescriptionActive restricts by the description's own status.
func DescriptionActive(active bool) blevequery.Query {
	q := bleve.NewBoolFieldQuery(active)
	q.SetField(index.FieldDescriptionActive)
	return q
}

// DescriptionType restricts to one description type, e.g. FSN.
func DescriptionType(typeID int64) blevequery.Query {
	return termQuery(index.FieldTypeID, typeID)
}

// InModule restricts to components of one module.
func InModule(moduleID int64) blevequery.Query {
	return termQuery(index.FieldModuleID, moduleID)
}

// PreferredIn matches descriptions marked Preferred in the refset.
func PreferredIn(refsetID int64) blevequery.Query {
	return termQuery(index.FieldPreferredIn, refsetID)
}

// AcceptableIn matches descriptions marked Acceptable in the refset.
func AcceptableIn(refsetID int64) blevequery.Query {
	return termQuery(index.FieldAcceptableIn, refsetID)
}
