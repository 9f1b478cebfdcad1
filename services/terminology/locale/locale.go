// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package locale maps BCP-47 language priority lists to ordered lists
// of SNOMED CT language reference sets.
//
// A Resolver is built once per service open against the refsets
// actually installed in the store; after a re-ingestion callers build a
// fresh one. An explicit refset can be forced with a private-use
// subtag, e.g. "en-x-999001261000000100".
package locale

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/AleutianAI/terminology/pkg/verhoeff"
	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

// knownRefsets associates BCP-47 tags with language refsets in
// preference order. Only the refsets present in the installed release
// survive into a Resolver.
var knownRefsets = []struct {
	tag     string
	refsets []int64
}{
	{"en", []int64{snomed.USEnglishRefset, snomed.GBEnglishRefset}},
	{"en-GB", []int64{999001261000000100, snomed.GBEnglishRefset}},
	{"en-US", []int64{snomed.USEnglishRefset}},
	{"en-AU", []int64{32570271000036106, snomed.GBEnglishRefset}},
	{"en-CA", []int64{19491000087109, snomed.USEnglishRefset}},
	{"en-IE", []int64{21000220103, snomed.GBEnglishRefset}},
	{"en-NZ", []int64{271000210107, snomed.GBEnglishRefset}},
	{"es", []int64{450828004}},
	{"da-DK", []int64{554461000005103}},
	{"nl-NL", []int64{31000146106}},
	{"nl-BE", []int64{21000172104}},
	{"sv-SE", []int64{46011000052107}},
	{"nb-NO", []int64{61000202103}},
	{"fr-BE", []int64{21000172104}},
	{"de-DE", []int64{722130000}},
}

// explicitRefset recognizes a trailing private-use subtag carrying a
// refset id. The id is too long to survive a strict BCP-47 parse, so
// it is peeled off before the tag reaches x/text.
var explicitRefset = regexp.MustCompile(`(?i)^[a-z]{2,8}(?:-[a-z0-9]{2,8})*-x-(\d{6,18})$`)

// Resolver resolves language priority lists against the installed
// language refsets.
//
// Thread Safety: immutable after construction; safe for concurrent use.
type Resolver struct {
	matcher   language.Matcher
	refsets   [][]int64
	installed map[int64]bool
}

// New builds a resolver over the given installed refset ids.
func New(installed []int64) *Resolver {
	have := make(map[int64]bool, len(installed))
	for _, id := range installed {
		have[id] = true
	}

	var tags []language.Tag
	var refsets [][]int64
	for _, entry := range knownRefsets {
		var kept []int64
		for _, id := range entry.refsets {
			if have[id] {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			continue
		}
		tag, err := language.Parse(entry.tag)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		refsets = append(refsets, kept)
	}

	r := &Resolver{refsets: refsets, installed: have}
	if len(tags) > 0 {
		r.matcher = language.NewMatcher(tags)
	}
	return r
}

// Resolve maps a BCP-47 priority list such as "en-GB,en;q=0.9" to an
// ordered list of language refset ids.
//
// Description:
//
//	A private-use escape "<tag>-x-<sctid>" short-circuits resolution:
//	when the digits form a valid concept identifier and that refset is
//	installed the result is exactly that refset, otherwise empty.
//	An unparseable header resolves to the empty list; it is never an
//	error.
func (r *Resolver) Resolve(priority string) []int64 {
	priority = strings.TrimSpace(priority)
	if priority == "" {
		return nil
	}

	first, _, _ := strings.Cut(priority, ",")
	first, _, _ = strings.Cut(first, ";")
	if m := explicitRefset.FindStringSubmatch(strings.TrimSpace(first)); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || !verhoeff.ValidConceptID(id) || !r.installed[id] {
			return nil
		}
		return []int64{id}
	}

	if r.matcher == nil {
		return nil
	}
	desired, _, err := language.ParseAcceptLanguage(priority)
	if err != nil {
		return nil
	}

	var out []int64
	seen := map[int64]bool{}
	for _, want := range desired {
		_, idx, conf := r.matcher.Match(want)
		if conf == language.No {
			continue
		}
		for _, id := range r.refsets[idx] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// Default returns the refsets for plain "en", the fallback used when a
// caller supplies no locale at all.
func (r *Resolver) Default() []int64 {
	return r.Resolve("en")
}
