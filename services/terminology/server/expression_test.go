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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/terminology/services/terminology/ecl"
	"github.com/AleutianAI/terminology/services/terminology/query"
)

func decodeWire(t *testing.T, raw string) (ecl.Expression, error) {
	t.Helper()
	var wire expressionJSON
	require.NoError(t, json.Unmarshal([]byte(raw), &wire))
	return wire.expression()
}

func TestExpressionDecode_Concept(t *testing.T) {
	expr, err := decodeWire(t, `{"kind":"concept","op":"<<","id":"64572001","term":"Disease"}`)
	require.NoError(t, err)
	require.IsType(t, ecl.ConceptRef{}, expr)
	ref := expr.(ecl.ConceptRef)
	assert.Equal(t, ecl.OpDescendantOrSelfOf, ref.Operator)
	assert.Equal(t, int64(64572001), ref.ID)
	assert.Equal(t, "Disease", ref.Term)

	// Numeric ids work too.
	expr, err = decodeWire(t, `{"kind":"concept","id":24700007}`)
	require.NoError(t, err)
	assert.Equal(t, ecl.OpSelf, expr.(ecl.ConceptRef).Operator)
}

func TestExpressionDecode_Refined(t *testing.T) {
	raw := `{
		"kind": "refined",
		"focus": {"kind": "concept", "op": "<", "id": "404684003"},
		"attributes": [{
			"cardinality": {"min": 1},
			"type": {"op": "<<", "id": "116676008"},
			"value": {"kind": "concept", "constraint": {"op": "<<", "id": "49755003"}}
		}]
	}`
	expr, err := decodeWire(t, raw)
	require.NoError(t, err)
	refined := expr.(ecl.Refined)
	require.Len(t, refined.Refinement.Attributes, 1)
	attr := refined.Refinement.Attributes[0]
	require.NotNil(t, attr.Cardinality)
	assert.Equal(t, int64(1), attr.Cardinality.Min)
	assert.Equal(t, query.Unbounded, attr.Cardinality.Max)
	assert.Equal(t, ecl.OpDescendantOrSelfOf, attr.Type.Operator)

	value := attr.Value.(ecl.ConceptValue)
	assert.False(t, value.Negated)
	assert.Equal(t, int64(49755003), value.Constraint.ID)
}

func TestExpressionDecode_ConcreteValues(t *testing.T) {
	raw := `{
		"kind": "refined",
		"focus": {"kind": "wildcard"},
		"attributes": [{
			"type": {"id": "1142135004"},
			"value": {"kind": "number", "op": ">=", "number": 500}
		}]
	}`
	expr, err := decodeWire(t, raw)
	require.NoError(t, err)
	value := expr.(ecl.Refined).Refinement.Attributes[0].Value.(ecl.NumberValue)
	assert.Equal(t, query.OpGTE, value.Op)
	assert.Equal(t, 500.0, value.Value)
}

func TestExpressionDecode_Compound(t *testing.T) {
	raw := `{"kind":"minus","operands":[
		{"kind":"concept","op":"<<","id":"64572001"},
		{"kind":"concept","op":"<<","id":"6118003"}
	]}`
	expr, err := decodeWire(t, raw)
	require.NoError(t, err)
	compound := expr.(ecl.Compound)
	assert.Equal(t, ecl.SetMinus, compound.Op)
	assert.Len(t, compound.Operands, 2)
}

func TestExpressionDecode_Errors(t *testing.T) {
	cases := map[string]string{
		"missing kind":     `{}`,
		"unknown kind":     `{"kind":"nope"}`,
		"bad operator":     `{"kind":"concept","op":"<<<","id":"1"}`,
		"bad id":           `{"kind":"concept","id":"abc"}`,
		"empty compound":   `{"kind":"and"}`,
		"empty refinement": `{"kind":"refined","focus":{"kind":"wildcard"}}`,
		"bad comparison": `{"kind":"refined","focus":{"kind":"wildcard"},
			"attributes":[{"type":{"id":"1"},"value":{"kind":"number","op":"~"}}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeWire(t, raw)
			assert.Error(t, err)
		})
	}
}
