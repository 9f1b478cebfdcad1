// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package terminology

import "errors"

var (
	// ErrNoIndex reports a search or ECL operation against a service
	// whose index has not been built yet.
	ErrNoIndex = errors.New("search index not built; run an index build first")
	// ErrClosed reports use of a closed service.
	ErrClosed = errors.New("service is closed")
)
