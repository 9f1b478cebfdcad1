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
	"strconv"
	"strings"
)

// ConcreteValue is the value of a concrete-value relationship for a
// given attribute type. The raw value's first character encodes its
// type: '#' for numbers, '"' for quoted strings, anything else is a
// boolean or plain token.
type ConcreteValue struct {
	TypeID int64  `json:"type_id"`
	Value  string `json:"value"`
}

// IsNumeric reports whether the value carries the '#' numeric marker.
func (v ConcreteValue) IsNumeric() bool {
	return strings.HasPrefix(v.Value, "#")
}

// Number returns the numeric value. The second result is false when the
// value is not numeric or fails to parse.
func (v ConcreteValue) Number() (float64, bool) {
	if !v.IsNumeric() {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.Value[1:], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Text returns the value with concrete-value markers stripped: numeric
// values lose the leading '#', quoted strings lose their surrounding
// quotes, and anything else is returned unchanged.
func (v ConcreteValue) Text() string {
	switch {
	case strings.HasPrefix(v.Value, "#"):
		return v.Value[1:]
	case strings.HasPrefix(v.Value, `"`):
		return strings.Trim(v.Value, `"`)
	default:
		return v.Value
	}
}
