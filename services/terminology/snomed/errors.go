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

import "errors"

// Sentinel errors for the component model.
var (
	// ErrWrongRefsetKind is returned when a typed view is requested from
	// an item of a different kind.
	ErrWrongRefsetKind = errors.New("wrong refset kind")

	// ErrBadRefsetShape is returned when an item carries fewer fields
	// than its kind requires.
	ErrBadRefsetShape = errors.New("refset item field count does not match kind")
)
