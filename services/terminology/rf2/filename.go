// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rf2 ingests SNOMED CT RF2 release files: it classifies file
// names, parses tab-delimited component rows, and streams batches of
// typed components to a store through a bounded worker pool.
package rf2

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

// Entity is the component family a release file contains.
type Entity int

const (
	// EntityUnknown marks files that match the naming convention but
	// carry no component kind this importer understands.
	EntityUnknown Entity = iota
	// EntityConcept is a concept file (sct2_Concept_*).
	EntityConcept
	// EntityDescription is a description file (sct2_Description_*),
	// also used for text definitions which share the same layout.
	EntityDescription
	// EntityRelationship is an inferred relationship file.
	EntityRelationship
	// EntityStatedRelationship is a stated relationship file.
	EntityStatedRelationship
	// EntityConcreteRelationship is a concrete-values relationship file.
	EntityConcreteRelationship
	// EntityRefset is any reference-set file (der2_*Refset_*).
	EntityRefset
)

// String returns the entity name as used in release file names.
func (e Entity) String() string {
	switch e {
	case EntityConcept:
		return "Concept"
	case EntityDescription:
		return "Description"
	case EntityRelationship:
		return "Relationship"
	case EntityStatedRelationship:
		return "StatedRelationship"
	case EntityConcreteRelationship:
		return "RelationshipConcreteValues"
	case EntityRefset:
		return "Refset"
	default:
		return "Unknown"
	}
}

// ReleaseType is the RF2 release flavour of a file.
type ReleaseType int

const (
	// ReleaseUnknown marks files without a recognizable release type.
	ReleaseUnknown ReleaseType = iota
	// ReleaseFull contains every historical version of each component.
	ReleaseFull
	// ReleaseSnapshot contains the latest version of each component.
	ReleaseSnapshot
	// ReleaseDelta contains versions newer than the previous release.
	ReleaseDelta
)

// String returns the release type name as used in file names.
func (r ReleaseType) String() string {
	switch r {
	case ReleaseFull:
		return "Full"
	case ReleaseSnapshot:
		return "Snapshot"
	case ReleaseDelta:
		return "Delta"
	default:
		return "Unknown"
	}
}

// FileInfo is the decoded classification of one RF2 release file name.
//
// RF2 names follow
//
//	[FileType]_[ContentType]_[ContentSubType]_[CountryNamespace]_[VersionDate].[Extension]
//
// e.g. sct2_Concept_Snapshot_INT_20240101.txt or
// der2_cRefset_LanguageSnapshot-en_INT_20240101.txt. For reference sets
// the pattern is the portion of the content type preceding "Refset",
// one character per extra column ('c', 'i' or 's').
type FileInfo struct {
	Filename         string
	FileType         string
	ContentType      string
	ContentSubType   string
	CountryNamespace string
	Extension        string
	Entity           Entity
	Pattern          string
	ReleaseType      ReleaseType
	LanguageCode     string
	VersionDate      time.Time
}

// ParseFilename classifies an RF2 release file name.
//
// Outputs:
//   - FileInfo: the decoded fields.
//   - error: ErrNotRF2 (wrapped) if the name does not follow the
//     convention, or a detail error for malformed fields.
func ParseFilename(name string) (FileInfo, error) {
	base := filepath.Base(name)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	parts := strings.Split(stem, "_")
	if len(parts) != 5 {
		return FileInfo{}, fmt.Errorf("%q: %w", base, ErrNotRF2)
	}

	info := FileInfo{
		Filename:         base,
		FileType:         parts[0],
		ContentType:      parts[1],
		ContentSubType:   parts[2],
		CountryNamespace: parts[3],
		Extension:        ext,
	}

	date, err := time.Parse("20060102", parts[4])
	if err != nil {
		return FileInfo{}, fmt.Errorf("%q: version date: %w", base, err)
	}
	info.VersionDate = date

	switch {
	case strings.Contains(info.ContentSubType, "Snapshot"):
		info.ReleaseType = ReleaseSnapshot
	case strings.Contains(info.ContentSubType, "Full"):
		info.ReleaseType = ReleaseFull
	case strings.Contains(info.ContentSubType, "Delta"):
		info.ReleaseType = ReleaseDelta
	}

	// Language-specific files carry a BCP-47-ish suffix: Snapshot-en.
	if i := strings.LastIndex(info.ContentSubType, "-"); i >= 0 {
		info.LanguageCode = info.ContentSubType[i+1:]
	}

	if pattern, ok := strings.CutSuffix(info.ContentType, "Refset"); ok {
		for _, ch := range pattern {
			if ch != 'c' && ch != 'i' && ch != 's' {
				return FileInfo{}, fmt.Errorf("%q: refset pattern %q: %w", base, pattern, ErrBadPattern)
			}
		}
		info.Entity = EntityRefset
		info.Pattern = pattern
		return info, nil
	}

	switch info.ContentType {
	case "Concept":
		info.Entity = EntityConcept
	case "Description", "TextDefinition":
		info.Entity = EntityDescription
	case "Relationship":
		info.Entity = EntityRelationship
	case "StatedRelationship":
		info.Entity = EntityStatedRelationship
	case "RelationshipConcreteValues":
		info.Entity = EntityConcreteRelationship
	default:
		info.Entity = EntityUnknown
	}
	return info, nil
}

// RefsetKindHint guesses the concrete refset kind from the content
// subtype of a reference-set file. Used before the refset's descriptor
// entries have been ingested; KindForDescriptor is authoritative.
//
// The boolean result is false when only the generic shape is known.
func (f FileInfo) RefsetKindHint() (snomed.RefsetKind, bool) {
	if f.Entity != EntityRefset {
		return snomed.RefsetKindSimple, false
	}
	sub := f.ContentSubType
	switch {
	case strings.Contains(sub, "Language"):
		return snomed.RefsetKindLanguage, true
	case strings.Contains(sub, "Association"):
		return snomed.RefsetKindAssociation, true
	case strings.Contains(sub, "AttributeValue"):
		return snomed.RefsetKindAttributeValue, true
	case strings.Contains(sub, "ExtendedMap"):
		return snomed.RefsetKindExtendedMap, true
	case strings.Contains(sub, "ComplexMap"):
		return snomed.RefsetKindComplexMap, true
	case strings.Contains(sub, "SimpleMap"):
		return snomed.RefsetKindSimpleMap, true
	case strings.Contains(sub, "OWL"):
		return snomed.RefsetKindOWLExpression, true
	case strings.Contains(sub, "ModuleDependency"):
		return snomed.RefsetKindModuleDependency, true
	case strings.Contains(sub, "RefsetDescriptor"):
		return snomed.RefsetKindDescriptor, true
	case f.Pattern == "":
		return snomed.RefsetKindSimple, true
	default:
		return snomed.RefsetKindSimple, false
	}
}
