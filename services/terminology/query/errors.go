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

import "errors"

var (
	// ErrInvalidRange reports a cardinality range with max below min.
	ErrInvalidRange = errors.New("invalid cardinality range: max below min")
	// ErrEmptyRefsets reports a member-of constraint over no refsets.
	ErrEmptyRefsets = errors.New("empty refset set")
	// ErrUnsupported reports a constraint the evaluator does not
	// implement.
	ErrUnsupported = errors.New("unsupported constraint")
	// ErrBadOperator reports an unknown comparison operator.
	ErrBadOperator = errors.New("unknown comparison operator")
)
