// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ecl

import (
	"context"
	"fmt"

	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/terminology/services/terminology/query"
	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

var tracer = otel.Tracer("terminology/ecl")

// Hierarchy answers IS-A traversal questions. *store.Store satisfies
// it.
type Hierarchy interface {
	Ancestors(ctx context.Context, conceptID int64) ([]int64, error)
	AllAncestors(ctx context.Context, conceptID int64) ([]int64, error)
	ParentIDs(ctx context.Context, conceptID, typeID int64) ([]int64, error)
}

// Realizer materializes concept-id sets from index queries. *index.Index
// satisfies it.
type Realizer interface {
	ConceptIDs(ctx context.Context, q blevequery.Query) ([]int64, error)
}

// Evaluator compiles ECL syntax trees into index queries and realizes
// them into concept-id sets.
//
// Thread Safety: stateless beyond its read-only handles; safe for
// concurrent use.
type Evaluator struct {
	h  Hierarchy
	ix Realizer
}

// New builds an evaluator over a hierarchy and an index.
func New(h Hierarchy, ix Realizer) *Evaluator {
	return &Evaluator{h: h, ix: ix}
}

// Realize evaluates an expression to the set of matching active
// concepts, sorted ascending.
func (e *Evaluator) Realize(ctx context.Context, expr Expression) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "ecl.Realize")
	defer span.End()

	q, err := e.Query(ctx, expr)
	if err != nil {
		return nil, err
	}
	ids, err := e.ix.ConceptIDs(ctx, query.And(q, query.ConceptActive(true)))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("concepts", len(ids)))
	return ids, nil
}

// Query compiles an expression into an index query without executing
// it.
func (e *Evaluator) Query(ctx context.Context, expr Expression) (blevequery.Query, error) {
	switch n := expr.(type) {
	case Wildcard:
		return query.MatchAll(), nil
	case ConceptRef:
		return e.conceptQuery(ctx, n)
	case Compound:
		return e.compoundQuery(ctx, n)
	case Refined:
		return e.refinedQuery(ctx, n)
	case TopOf:
		return e.setFilter(ctx, n.Operand, e.topOf)
	case BottomOf:
		return e.setFilter(ctx, n.Operand, e.bottomOf)
	default:
		return nil, fmt.Errorf("%w: expression %T", query.ErrUnsupported, expr)
	}
}

func (e *Evaluator) conceptQuery(ctx context.Context, ref ConceptRef) (blevequery.Query, error) {
	switch ref.Operator {
	case OpSelf:
		return query.Self(ref.ID), nil
	case OpDescendantOf:
		return query.DescendantOf(ref.ID), nil
	case OpDescendantOrSelfOf:
		return query.DescendantOrSelfOf(ref.ID), nil
	case OpChildOf:
		return query.ChildOf(ref.ID), nil
	case OpChildOrSelfOf:
		return query.ChildOrSelfOf(ref.ID), nil
	case OpAncestorOf:
		ids, err := e.h.Ancestors(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return query.SelfAny(ids), nil
	case OpAncestorOrSelfOf:
		ids, err := e.h.AllAncestors(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return query.SelfAny(ids), nil
	case OpParentOf:
		ids, err := e.h.ParentIDs(ctx, ref.ID, snomed.IsA)
		if err != nil {
			return nil, err
		}
		return query.SelfAny(ids), nil
	case OpParentOrSelfOf:
		ids, err := e.h.ParentIDs(ctx, ref.ID, snomed.IsA)
		if err != nil {
			return nil, err
		}
		return query.SelfAny(append(ids, ref.ID)), nil
	case OpMemberOf:
		if ref.ID == 0 {
			return nil, query.ErrEmptyRefsets
		}
		return query.MemberOf(ref.ID), nil
	default:
		return nil, fmt.Errorf("%w: operator %d", query.ErrUnsupported, ref.Operator)
	}
}

func (e *Evaluator) compoundQuery(ctx context.Context, n Compound) (blevequery.Query, error) {
	if len(n.Operands) == 0 {
		return nil, fmt.Errorf("%w: empty compound", query.ErrUnsupported)
	}
	qs := make([]blevequery.Query, len(n.Operands))
	for i, op := range n.Operands {
		q, err := e.Query(ctx, op)
		if err != nil {
			return nil, err
		}
		qs[i] = q
	}
	switch n.Op {
	case SetAnd:
		return query.And(qs...), nil
	case SetOr:
		return query.Or(qs...), nil
	case SetMinus:
		if len(qs) == 1 {
			return qs[0], nil
		}
		return query.And(qs[0], query.Not(query.Or(qs[1:]...))), nil
	default:
		return nil, fmt.Errorf("%w: set operator %d", query.ErrUnsupported, n.Op)
	}
}

func (e *Evaluator) refinedQuery(ctx context.Context, n Refined) (blevequery.Query, error) {
	focus, err := e.Query(ctx, n.Focus)
	if err != nil {
		return nil, err
	}
	qs := []blevequery.Query{focus}
	for _, attr := range n.Refinement.Attributes {
		q, err := e.attributeQuery(ctx, attr)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	// Groups evaluate as conjunctions: the index flattens relationship
	// groups per concept, so within-group co-occurrence is as strong a
	// guarantee as a single query can give.
	for _, group := range n.Refinement.Groups {
		if group.Cardinality != nil {
			return nil, fmt.Errorf("%w: attribute group cardinality", query.ErrUnsupported)
		}
		for _, attr := range group.Attributes {
			q, err := e.attributeQuery(ctx, attr)
			if err != nil {
				return nil, err
			}
			qs = append(qs, q)
		}
	}
	return query.And(qs...), nil
}

// attributeQuery compiles one refinement. The attribute type is
// realized into concrete type ids first and the per-type queries are
// unioned. A bare attribute name subsumes its subtypes, so it expands
// the same way a "<<"-constrained type does.
func (e *Evaluator) attributeQuery(ctx context.Context, attr Attribute) (blevequery.Query, error) {
	typeIDs, err := e.typeIDs(ctx, attr.Type)
	if err != nil {
		return nil, err
	}
	if len(typeIDs) == 0 {
		return query.MatchNone(), nil
	}
	qs := make([]blevequery.Query, len(typeIDs))
	for i, typeID := range typeIDs {
		q, err := e.typedAttribute(ctx, typeID, attr)
		if err != nil {
			return nil, err
		}
		qs[i] = q
	}
	if len(qs) == 1 {
		return qs[0], nil
	}
	return query.Or(qs...), nil
}

func (e *Evaluator) typeIDs(ctx context.Context, ref ConceptRef) ([]int64, error) {
	if ref.Operator == OpSelf {
		// descendantOrSelfOf: the named attribute is kept explicitly so
		// it still matches when it has no indexed descriptions.
		ids, err := e.ix.ConceptIDs(ctx, query.DescendantOf(ref.ID))
		if err != nil {
			return nil, err
		}
		return append(ids, ref.ID), nil
	}
	q, err := e.conceptQuery(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.ix.ConceptIDs(ctx, q)
}

func (e *Evaluator) typedAttribute(ctx context.Context, typeID int64, attr Attribute) (blevequery.Query, error) {
	valueQ, err := e.valueQuery(ctx, typeID, attr.Value)
	if err != nil {
		return nil, err
	}

	card := attr.Cardinality
	if card == nil {
		return valueQ, nil
	}
	if card.Min == 0 && card.Max == 0 {
		return query.Not(valueQ), nil
	}
	bounds, err := query.Cardinality(typeID, card.Min, card.Max)
	if err != nil {
		return nil, err
	}
	if _, any := attr.Value.(AnyValue); any {
		return bounds, nil
	}
	if card.Min == 0 {
		absent, err := query.Cardinality(typeID, 0, 0)
		if err != nil {
			return nil, err
		}
		return query.Or(absent, query.And(valueQ, bounds)), nil
	}
	return query.And(valueQ, bounds), nil
}

func (e *Evaluator) valueQuery(ctx context.Context, typeID int64, v Value) (blevequery.Query, error) {
	switch val := v.(type) {
	case AnyValue:
		return query.Cardinality(typeID, 1, query.Unbounded)
	case NumberValue:
		return query.ConcreteNumber(typeID, val.Op, val.Value)
	case StringValue:
		return query.ConcreteString(typeID, val.Op, val.Value)
	case ConceptValue:
		q, err := e.conceptValueQuery(ctx, typeID, val.Constraint)
		if err != nil {
			return nil, err
		}
		if !val.Negated {
			return q, nil
		}
		present, err := query.Cardinality(typeID, 1, query.Unbounded)
		if err != nil {
			return nil, err
		}
		return query.And(present, query.Not(q)), nil
	default:
		return nil, fmt.Errorf("%w: attribute value %T", query.ErrUnsupported, v)
	}
}

func (e *Evaluator) conceptValueQuery(ctx context.Context, typeID int64, ref ConceptRef) (blevequery.Query, error) {
	switch ref.Operator {
	case OpSelf:
		return query.AttributeEquals(typeID, ref.ID), nil
	case OpDescendantOrSelfOf:
		return query.AttributeSubsumedBy(typeID, ref.ID), nil
	default:
		// Realize the value constraint and match any destination in it.
		q, err := e.conceptQuery(ctx, ref)
		if err != nil {
			return nil, err
		}
		ids, err := e.ix.ConceptIDs(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return query.MatchNone(), nil
		}
		qs := make([]blevequery.Query, len(ids))
		for i, id := range ids {
			qs[i] = query.AttributeEquals(typeID, id)
		}
		return query.Or(qs...), nil
	}
}

// setFilter realizes the operand and keeps only the ids the filter
// admits, re-expressed as an index query.
func (e *Evaluator) setFilter(
	ctx context.Context,
	operand Expression,
	filter func(context.Context, []int64) ([]int64, error),
) (blevequery.Query, error) {
	q, err := e.Query(ctx, operand)
	if err != nil {
		return nil, err
	}
	ids, err := e.ix.ConceptIDs(ctx, q)
	if err != nil {
		return nil, err
	}
	kept, err := filter(ctx, ids)
	if err != nil {
		return nil, err
	}
	return query.SelfAny(kept), nil
}

// topOf keeps members with no strict ancestor inside the set.
func (e *Evaluator) topOf(ctx context.Context, ids []int64) ([]int64, error) {
	in := asSet(ids)
	var out []int64
	for _, id := range ids {
		ancestors, err := e.h.Ancestors(ctx, id)
		if err != nil {
			return nil, err
		}
		if !anyIn(ancestors, in) {
			out = append(out, id)
		}
	}
	return out, nil
}

// bottomOf keeps members that are not a strict ancestor of another
// member.
func (e *Evaluator) bottomOf(ctx context.Context, ids []int64) ([]int64, error) {
	in := asSet(ids)
	excluded := map[int64]bool{}
	for _, id := range ids {
		ancestors, err := e.h.Ancestors(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, a := range ancestors {
			if in[a] {
				excluded[a] = true
			}
		}
	}
	var out []int64
	for _, id := range ids {
		if !excluded[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func asSet(ids []int64) map[int64]bool {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func anyIn(ids []int64, set map[int64]bool) bool {
	for _, id := range ids {
		if set[id] {
			return true
		}
	}
	return false
}
