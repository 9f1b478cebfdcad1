// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/AleutianAI/terminology/services/terminology/ecl"
	"github.com/AleutianAI/terminology/services/terminology/query"
)

// idJSON is a SCTID that arrives as a JSON string or number. Strings
// are the safe form since SCTIDs exceed 2^53.
type idJSON string

func (v *idJSON) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*v = idJSON(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("id must be a string or number")
	}
	*v = idJSON(s)
	return nil
}

func (v idJSON) int64() (int64, error) {
	return strconv.ParseInt(string(v), 10, 64)
}

// expressionJSON is the wire form of an ECL syntax tree, the contract
// an external constraint parser emits.
//
// Node kinds:
//
//	{"kind":"concept","op":"<<","id":"64572001","term":"Disease"}
//	{"kind":"wildcard"}
//	{"kind":"and"|"or"|"minus","operands":[...]}
//	{"kind":"refined","focus":{...},"attributes":[...],"groups":[...]}
//	{"kind":"topOf"|"bottomOf","operand":{...}}
//
// Attribute values:
//
//	{"kind":"concept","negated":false,"constraint":{"op":"<<","id":"..."}}
//	{"kind":"any"}
//	{"kind":"number","op":">=","number":500}
//	{"kind":"string","op":"=","string":"mg"}
type expressionJSON struct {
	Kind       string           `json:"kind"`
	Op         string           `json:"op"`
	ID         idJSON           `json:"id"`
	Term       string           `json:"term"`
	Operands   []expressionJSON `json:"operands"`
	Operand    *expressionJSON  `json:"operand"`
	Focus      *expressionJSON  `json:"focus"`
	Attributes []attributeJSON  `json:"attributes"`
	Groups     []groupJSON      `json:"groups"`
}

type conceptRefJSON struct {
	Op   string `json:"op"`
	ID   idJSON `json:"id"`
	Term string `json:"term"`
}

type cardinalityJSON struct {
	Min int64 `json:"min"`
	// Max nil or absent means unbounded.
	Max *int64 `json:"max"`
}

type attributeJSON struct {
	Cardinality *cardinalityJSON `json:"cardinality"`
	Type        conceptRefJSON   `json:"type"`
	Value       valueJSON        `json:"value"`
}

type groupJSON struct {
	Cardinality *cardinalityJSON `json:"cardinality"`
	Attributes  []attributeJSON  `json:"attributes"`
}

type valueJSON struct {
	Kind       string          `json:"kind"`
	Negated    bool            `json:"negated"`
	Constraint *conceptRefJSON `json:"constraint"`
	Op         string          `json:"op"`
	Number     float64         `json:"number"`
	String     string          `json:"string"`
}

// expression converts the wire form into the evaluator's syntax tree.
func (e expressionJSON) expression() (ecl.Expression, error) {
	switch e.Kind {
	case "concept":
		return e.conceptRef()
	case "wildcard":
		return ecl.Wildcard{}, nil
	case "and", "or", "minus":
		if len(e.Operands) == 0 {
			return nil, fmt.Errorf("%s node needs operands", e.Kind)
		}
		operands := make([]ecl.Expression, 0, len(e.Operands))
		for _, op := range e.Operands {
			sub, err := op.expression()
			if err != nil {
				return nil, err
			}
			operands = append(operands, sub)
		}
		setOp := map[string]ecl.SetOp{
			"and": ecl.SetAnd, "or": ecl.SetOr, "minus": ecl.SetMinus,
		}[e.Kind]
		return ecl.Compound{Op: setOp, Operands: operands}, nil
	case "refined":
		if e.Focus == nil {
			return nil, fmt.Errorf("refined node needs a focus")
		}
		focus, err := e.Focus.expression()
		if err != nil {
			return nil, err
		}
		refinement, err := decodeRefinement(e.Attributes, e.Groups)
		if err != nil {
			return nil, err
		}
		return ecl.Refined{Focus: focus, Refinement: refinement}, nil
	case "topOf", "bottomOf":
		if e.Operand == nil {
			return nil, fmt.Errorf("%s node needs an operand", e.Kind)
		}
		operand, err := e.Operand.expression()
		if err != nil {
			return nil, err
		}
		if e.Kind == "topOf" {
			return ecl.TopOf{Operand: operand}, nil
		}
		return ecl.BottomOf{Operand: operand}, nil
	case "":
		return nil, fmt.Errorf("expression kind is required")
	default:
		return nil, fmt.Errorf("unknown expression kind %q", e.Kind)
	}
}

func (e expressionJSON) conceptRef() (ecl.ConceptRef, error) {
	return decodeConceptRef(conceptRefJSON{Op: e.Op, ID: e.ID, Term: e.Term})
}

func decodeConceptRef(ref conceptRefJSON) (ecl.ConceptRef, error) {
	op, err := decodeOperator(ref.Op)
	if err != nil {
		return ecl.ConceptRef{}, err
	}
	id, err := ref.ID.int64()
	if err != nil || id <= 0 {
		return ecl.ConceptRef{}, fmt.Errorf("concept id %q is not a SCTID", ref.ID)
	}
	return ecl.ConceptRef{Operator: op, ID: id, Term: ref.Term}, nil
}

func decodeOperator(s string) (ecl.Operator, error) {
	switch s {
	case "", "self":
		return ecl.OpSelf, nil
	case "<":
		return ecl.OpDescendantOf, nil
	case "<<":
		return ecl.OpDescendantOrSelfOf, nil
	case "<!":
		return ecl.OpChildOf, nil
	case "<<!":
		return ecl.OpChildOrSelfOf, nil
	case ">":
		return ecl.OpAncestorOf, nil
	case ">>":
		return ecl.OpAncestorOrSelfOf, nil
	case ">!":
		return ecl.OpParentOf, nil
	case ">>!":
		return ecl.OpParentOrSelfOf, nil
	case "^":
		return ecl.OpMemberOf, nil
	default:
		return 0, fmt.Errorf("unknown constraint operator %q", s)
	}
}

func decodeRefinement(attrs []attributeJSON, groups []groupJSON) (ecl.Refinement, error) {
	var refinement ecl.Refinement
	for _, a := range attrs {
		attr, err := decodeAttribute(a)
		if err != nil {
			return ecl.Refinement{}, err
		}
		refinement.Attributes = append(refinement.Attributes, attr)
	}
	for _, g := range groups {
		group := ecl.Group{Cardinality: decodeCardinality(g.Cardinality)}
		for _, a := range g.Attributes {
			attr, err := decodeAttribute(a)
			if err != nil {
				return ecl.Refinement{}, err
			}
			group.Attributes = append(group.Attributes, attr)
		}
		refinement.Groups = append(refinement.Groups, group)
	}
	if len(refinement.Attributes) == 0 && len(refinement.Groups) == 0 {
		return ecl.Refinement{}, fmt.Errorf("refined node needs attributes or groups")
	}
	return refinement, nil
}

func decodeAttribute(a attributeJSON) (ecl.Attribute, error) {
	typeRef, err := decodeConceptRef(a.Type)
	if err != nil {
		return ecl.Attribute{}, fmt.Errorf("attribute type: %w", err)
	}
	value, err := decodeValue(a.Value)
	if err != nil {
		return ecl.Attribute{}, err
	}
	return ecl.Attribute{
		Cardinality: decodeCardinality(a.Cardinality),
		Type:        typeRef,
		Value:       value,
	}, nil
}

func decodeCardinality(c *cardinalityJSON) *ecl.Cardinality {
	if c == nil {
		return nil
	}
	maxBound := query.Unbounded
	if c.Max != nil {
		maxBound = *c.Max
	}
	return &ecl.Cardinality{Min: c.Min, Max: maxBound}
}

func decodeValue(v valueJSON) (ecl.Value, error) {
	switch v.Kind {
	case "concept":
		if v.Constraint == nil {
			return nil, fmt.Errorf("concept value needs a constraint")
		}
		constraint, err := decodeConceptRef(*v.Constraint)
		if err != nil {
			return nil, err
		}
		return ecl.ConceptValue{Negated: v.Negated, Constraint: constraint}, nil
	case "any":
		return ecl.AnyValue{}, nil
	case "number":
		op, err := decodeComparison(v.Op)
		if err != nil {
			return nil, err
		}
		return ecl.NumberValue{Op: op, Value: v.Number}, nil
	case "string":
		op, err := decodeComparison(v.Op)
		if err != nil {
			return nil, err
		}
		return ecl.StringValue{Op: op, Value: v.String}, nil
	default:
		return nil, fmt.Errorf("unknown value kind %q", v.Kind)
	}
}

func decodeComparison(s string) (query.Op, error) {
	switch s {
	case "", "=":
		return query.OpEQ, nil
	case "!=":
		return query.OpNE, nil
	case "<":
		return query.OpLT, nil
	case "<=":
		return query.OpLTE, nil
	case ">":
		return query.OpGT, nil
	case ">=":
		return query.OpGTE, nil
	default:
		return 0, fmt.Errorf("unknown comparison operator %q", s)
	}
}
