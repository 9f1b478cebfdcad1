// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/AleutianAI/terminology/services/terminology/index"
)

// Unbounded marks an open upper cardinality bound, as in [1..*].
const Unbounded = int64(-1)

func countAtLeast(typeID, n int64) blevequery.Query {
	low := float64(n)
	q := bleve.NewNumericRangeInclusiveQuery(&low, nil, boolPtr(true), nil)
	q.SetField(index.CountField(typeID))
	return q
}

func boolPtr(b bool) *bool { return &b }

// Cardinality matches concepts whose number of direct relationships of
// the given type falls inside [min..max].
//
// Edge cases: [0..0] selects concepts with no relationship of the type
// at all, including concepts the index never tagged with a count field.
// [0..*] is match-all. A max below min is an error.
func Cardinality(typeID, min, max int64) (blevequery.Query, error) {
	if max != Unbounded && max < min {
		return nil, ErrInvalidRange
	}
	switch {
	case min == 0 && max == Unbounded:
		return MatchAll(), nil
	case min == 0:
		// Documents without the count field carry zero relationships;
		// a positive range query would never see them, so exclude the
		// overflow instead.
		return Not(countAtLeast(typeID, max+1)), nil
	case max == Unbounded:
		return countAtLeast(typeID, min), nil
	default:
		lo, hi := float64(min), float64(max)
		q := bleve.NewNumericRangeInclusiveQuery(&lo, &hi, boolPtr(true), boolPtr(true))
		q.SetField(index.CountField(typeID))
		return q, nil
	}
}

// Op is a concrete-value comparison operator.
type Op int

const (
	OpEQ Op = iota
	OpNE
	OpLT
	OpLTE
	OpGT
	OpGTE
)

// ConcreteNumber compares a numeric concrete value of the given
// attribute type against v.
func ConcreteNumber(typeID int64, op Op, v float64) (blevequery.Query, error) {
	field := index.ValueField(typeID)
	rng := func(lo, hi *float64, loInc, hiInc bool) blevequery.Query {
		q := bleve.NewNumericRangeInclusiveQuery(lo, hi, boolPtr(loInc), boolPtr(hiInc))
		q.SetField(field)
		return q
	}
	switch op {
	case OpEQ:
		return rng(&v, &v, true, true), nil
	case OpNE:
		return Not(rng(&v, &v, true, true)), nil
	case OpLT:
		return rng(nil, &v, false, false), nil
	case OpLTE:
		return rng(nil, &v, false, true), nil
	case OpGT:
		return rng(&v, nil, false, false), nil
	case OpGTE:
		return rng(&v, nil, true, false), nil
	default:
		return nil, ErrBadOperator
	}
}

// ConcreteString compares a string concrete value. Only equality and
// inequality are defined for strings.
func ConcreteString(typeID int64, op Op, v string) (blevequery.Query, error) {
	q := bleve.NewTermQuery(v)
	q.SetField(index.ValueField(typeID))
	switch op {
	case OpEQ:
		return q, nil
	case OpNE:
		return Not(q), nil
	default:
		return nil, ErrBadOperator
	}
}
