// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rf2

import "errors"

// Sentinel errors for RF2 ingestion.
var (
	// ErrNotRF2 indicates a file name outside the RF2 naming convention.
	ErrNotRF2 = errors.New("not an RF2 release file name")

	// ErrBadPattern indicates a refset pattern with characters other
	// than c, i or s.
	ErrBadPattern = errors.New("invalid refset field pattern")

	// ErrBadRow indicates a data row whose column count does not match
	// the file's layout.
	ErrBadRow = errors.New("row shape does not match file layout")
)
