// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

const ukClinicalRefset = int64(999001261000000100)

func ukInstall() *Resolver {
	return New([]int64{
		snomed.GBEnglishRefset,
		snomed.USEnglishRefset,
		ukClinicalRefset,
	})
}

func TestResolve(t *testing.T) {
	r := ukInstall()

	tests := []struct {
		name     string
		priority string
		want     []int64
	}{
		{"british english", "en-GB", []int64{ukClinicalRefset, snomed.GBEnglishRefset}},
		{"american english", "en-US", []int64{snomed.USEnglishRefset}},
		{"plain english", "en", []int64{snomed.USEnglishRefset, snomed.GBEnglishRefset}},
		{
			"priority list concatenates",
			"en-GB,en;q=0.9",
			[]int64{ukClinicalRefset, snomed.GBEnglishRefset, snomed.USEnglishRefset},
		},
		{"unknown language", "zz", nil},
		{"uninstalled language", "da-DK", nil},
		{"empty header", "", nil},
		{"garbage header", ";;;===", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.priority))
		})
	}
}

func TestResolve_ExplicitRefset(t *testing.T) {
	r := ukInstall()

	t.Run("installed refset id", func(t *testing.T) {
		got := r.Resolve("en-x-999001261000000100")
		assert.Equal(t, []int64{ukClinicalRefset}, got)
	})

	t.Run("uninstalled refset id", func(t *testing.T) {
		// Valid concept id, but not part of this release.
		assert.Empty(t, r.Resolve("en-x-32570271000036106"))
	})

	t.Run("invalid check digit", func(t *testing.T) {
		assert.Empty(t, r.Resolve("en-x-999001261000000101"))
	})
}

func TestResolve_NoInstalledRefsets(t *testing.T) {
	r := New(nil)
	assert.Empty(t, r.Resolve("en-GB"))
	assert.Empty(t, r.Default())
}

func TestDefault(t *testing.T) {
	r := ukInstall()
	assert.Equal(t, []int64{snomed.USEnglishRefset, snomed.GBEnglishRefset}, r.Default())
}
