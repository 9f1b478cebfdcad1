// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ecl evaluates Expression Constraint Language syntax trees
// against the search index and the store. Parsing is a caller concern;
// the types here are the contract a parser produces.
package ecl

import "github.com/AleutianAI/terminology/services/terminology/query"

// Expression is a node of an ECL syntax tree.
type Expression interface {
	isExpression()
}

// Operator is a constraint prefix applied to a concept reference.
type Operator int

const (
	// OpSelf is the bare concept, no prefix.
	OpSelf Operator = iota
	// OpDescendantOf is "<".
	OpDescendantOf
	// OpDescendantOrSelfOf is "<<".
	OpDescendantOrSelfOf
	// OpChildOf is "<!".
	OpChildOf
	// OpChildOrSelfOf is "<<!".
	OpChildOrSelfOf
	// OpAncestorOf is ">".
	OpAncestorOf
	// OpAncestorOrSelfOf is ">>".
	OpAncestorOrSelfOf
	// OpParentOf is ">!".
	OpParentOf
	// OpParentOrSelfOf is ">>!".
	OpParentOrSelfOf
	// OpMemberOf is "^"; the concept names a refset.
	OpMemberOf
)

// Wildcard is "*", the set of all concepts.
type Wildcard struct{}

func (Wildcard) isExpression() {}

// ConceptRef is a single concept with an optional constraint prefix,
// e.g. "<< 73211009 |Diabetes mellitus|".
type ConceptRef struct {
	Operator Operator
	ID       int64
	// Term carries the optional |...| annotation; evaluation ignores it.
	Term string
}

func (ConceptRef) isExpression() {}

// SetOp combines sub-expressions.
type SetOp int

const (
	// SetAnd is conjunction.
	SetAnd SetOp = iota
	// SetOr is disjunction.
	SetOr
	// SetMinus is exclusion: first operand minus the rest.
	SetMinus
)

// Compound applies a set operator over two or more operands.
type Compound struct {
	Op       SetOp
	Operands []Expression
}

func (Compound) isExpression() {}

// Refined constrains a focus expression with attribute refinements,
// e.g. "< 19829001 : 116676008 = << 79654002".
type Refined struct {
	Focus      Expression
	Refinement Refinement
}

func (Refined) isExpression() {}

// TopOf filters a realized set to concepts with no ancestor inside the
// set ("!!>").
type TopOf struct {
	Operand Expression
}

func (TopOf) isExpression() {}

// BottomOf filters a realized set to concepts with no descendant inside
// the set ("!!<").
type BottomOf struct {
	Operand Expression
}

func (BottomOf) isExpression() {}

// Refinement is the conjunction of ungrouped attributes and attribute
// groups.
type Refinement struct {
	Attributes []Attribute
	Groups     []Group
}

// Group is a braced attribute set. A group cardinality is accepted by
// parsers but not evaluated; see Evaluator.
type Group struct {
	Cardinality *Cardinality
	Attributes  []Attribute
}

// Cardinality is a bounds pair; Max is query.Unbounded for "*".
type Cardinality struct {
	Min int64
	Max int64
}

// Attribute is one refinement: a type constraint compared against a
// value.
type Attribute struct {
	// Cardinality bounds the number of relationships of the type; nil
	// means the default [1..*].
	Cardinality *Cardinality
	// Type constrains the attribute type, commonly OpSelf or
	// OpDescendantOrSelfOf over a concept-model attribute.
	Type ConceptRef
	// Value is the comparison target.
	Value Value
}

// Value is an attribute comparison target.
type Value interface {
	isValue()
}

// ConceptValue compares against a concept constraint, optionally
// negated ("!=").
type ConceptValue struct {
	Negated    bool
	Constraint ConceptRef
}

func (ConceptValue) isValue() {}

// AnyValue is "= *": the attribute is present with any value.
type AnyValue struct{}

func (AnyValue) isValue() {}

// NumberValue compares a numeric concrete value.
type NumberValue struct {
	Op    query.Op
	Value float64
}

func (NumberValue) isValue() {}

// StringValue compares a string concrete value.
type StringValue struct {
	Op    query.Op
	Value string
}

func (StringValue) isValue() {}
