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

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/terminology/services/terminology/snomed"
)

// Column layouts of the core component files.
const (
	conceptColumns      = 5
	descriptionColumns  = 9
	relationshipColumns = 10
	refsetHeaderColumns = 6
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("identifier %q: %w", s, err)
	}
	return id, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("effective time %q: %w", s, err)
	}
	return t, nil
}

func parseActive(s string) (bool, error) {
	switch s {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("active flag %q: want 0 or 1", s)
	}
}

// SplitRow splits a tab-delimited RF2 data row, tolerating a trailing
// carriage return from CRLF line endings.
//
// RF2 terms may contain quote characters, so encoding/csv is not safe
// here; rows are split on tabs directly.
func SplitRow(line string) []string {
	return strings.Split(strings.TrimSuffix(line, "\r"), "\t")
}

// ParseConcept parses one concept row.
func ParseConcept(cols []string) (snomed.Concept, error) {
	if len(cols) != conceptColumns {
		return snomed.Concept{}, fmt.Errorf("concept row has %d columns, want %d: %w", len(cols), conceptColumns, ErrBadRow)
	}
	id, err := parseID(cols[0])
	if err != nil {
		return snomed.Concept{}, err
	}
	et, err := parseDate(cols[1])
	if err != nil {
		return snomed.Concept{}, err
	}
	active, err := parseActive(cols[2])
	if err != nil {
		return snomed.Concept{}, err
	}
	moduleID, err := parseID(cols[3])
	if err != nil {
		return snomed.Concept{}, err
	}
	statusID, err := parseID(cols[4])
	if err != nil {
		return snomed.Concept{}, err
	}
	return snomed.Concept{
		ID:                 id,
		EffectiveTime:      et,
		Active:             active,
		ModuleID:           moduleID,
		DefinitionStatusID: statusID,
	}, nil
}

// ParseDescription parses one description or text-definition row.
func ParseDescription(cols []string) (snomed.Description, error) {
	if len(cols) != descriptionColumns {
		return snomed.Description{}, fmt.Errorf("description row has %d columns, want %d: %w", len(cols), descriptionColumns, ErrBadRow)
	}
	id, err := parseID(cols[0])
	if err != nil {
		return snomed.Description{}, err
	}
	et, err := parseDate(cols[1])
	if err != nil {
		return snomed.Description{}, err
	}
	active, err := parseActive(cols[2])
	if err != nil {
		return snomed.Description{}, err
	}
	moduleID, err := parseID(cols[3])
	if err != nil {
		return snomed.Description{}, err
	}
	conceptID, err := parseID(cols[4])
	if err != nil {
		return snomed.Description{}, err
	}
	typeID, err := parseID(cols[6])
	if err != nil {
		return snomed.Description{}, err
	}
	caseID, err := parseID(cols[8])
	if err != nil {
		return snomed.Description{}, err
	}
	return snomed.Description{
		ID:                 id,
		EffectiveTime:      et,
		Active:             active,
		ModuleID:           moduleID,
		ConceptID:          conceptID,
		LanguageCode:       cols[5],
		TypeID:             typeID,
		Term:               cols[7],
		CaseSignificanceID: caseID,
	}, nil
}

// ParseRelationship parses one relationship row. When concrete is true
// the destination column holds an encoded concrete value instead of a
// concept identifier.
func ParseRelationship(cols []string, concrete bool) (snomed.Relationship, error) {
	if len(cols) != relationshipColumns {
		return snomed.Relationship{}, fmt.Errorf("relationship row has %d columns, want %d: %w", len(cols), relationshipColumns, ErrBadRow)
	}
	rel := snomed.Relationship{}
	var err error
	if rel.ID, err = parseID(cols[0]); err != nil {
		return snomed.Relationship{}, err
	}
	if rel.EffectiveTime, err = parseDate(cols[1]); err != nil {
		return snomed.Relationship{}, err
	}
	if rel.Active, err = parseActive(cols[2]); err != nil {
		return snomed.Relationship{}, err
	}
	if rel.ModuleID, err = parseID(cols[3]); err != nil {
		return snomed.Relationship{}, err
	}
	if rel.SourceID, err = parseID(cols[4]); err != nil {
		return snomed.Relationship{}, err
	}
	if concrete {
		rel.Value = cols[5]
	} else if rel.DestinationID, err = parseID(cols[5]); err != nil {
		return snomed.Relationship{}, err
	}
	if rel.RelationshipGroup, err = parseID(cols[6]); err != nil {
		return snomed.Relationship{}, err
	}
	if rel.TypeID, err = parseID(cols[7]); err != nil {
		return snomed.Relationship{}, err
	}
	if rel.CharacteristicTypeID, err = parseID(cols[8]); err != nil {
		return snomed.Relationship{}, err
	}
	if rel.ModifierID, err = parseID(cols[9]); err != nil {
		return snomed.Relationship{}, err
	}
	return rel, nil
}

// ParseRefsetItem parses one generic reference-set row: six header
// columns followed by one column per pattern character, then tags the
// item with the given concrete kind.
func ParseRefsetItem(cols []string, pattern string, kind snomed.RefsetKind) (snomed.RefsetItem, error) {
	if len(cols) != refsetHeaderColumns+len(pattern) {
		return snomed.RefsetItem{}, fmt.Errorf("refset row has %d columns, want %d for pattern %q: %w",
			len(cols), refsetHeaderColumns+len(pattern), pattern, ErrBadRow)
	}
	id, err := uuid.Parse(cols[0])
	if err != nil {
		return snomed.RefsetItem{}, fmt.Errorf("member id %q: %w", cols[0], err)
	}
	et, err := parseDate(cols[1])
	if err != nil {
		return snomed.RefsetItem{}, err
	}
	active, err := parseActive(cols[2])
	if err != nil {
		return snomed.RefsetItem{}, err
	}
	moduleID, err := parseID(cols[3])
	if err != nil {
		return snomed.RefsetItem{}, err
	}
	refsetID, err := parseID(cols[4])
	if err != nil {
		return snomed.RefsetItem{}, err
	}
	componentID, err := parseID(cols[5])
	if err != nil {
		return snomed.RefsetItem{}, err
	}

	item := snomed.RefsetItem{
		ID:                    id,
		EffectiveTime:         et,
		Active:                active,
		ModuleID:              moduleID,
		RefsetID:              refsetID,
		ReferencedComponentID: componentID,
		Kind:                  kind,
	}
	if len(pattern) > 0 {
		item.Fields = make([]snomed.Field, len(pattern))
		for i, ch := range pattern {
			raw := cols[refsetHeaderColumns+i]
			switch byte(ch) {
			case 'c', 'i':
				n, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return snomed.RefsetItem{}, fmt.Errorf("field %d (%c) %q: %w", i, ch, raw, err)
				}
				item.Fields[i] = snomed.Field{Kind: snomed.FieldKind(ch), Number: n}
			case 's':
				item.Fields[i] = snomed.Field{Kind: snomed.FieldString, Text: raw}
			}
		}
	}
	return item, nil
}

// UnparseConcept renders a concept back to its RF2 row columns.
// Used by tests to verify parse round trips.
func UnparseConcept(c snomed.Concept) []string {
	return []string{
		strconv.FormatInt(c.ID, 10),
		c.EffectiveTime.Format("20060102"),
		formatActive(c.Active),
		strconv.FormatInt(c.ModuleID, 10),
		strconv.FormatInt(c.DefinitionStatusID, 10),
	}
}

// UnparseDescription renders a description back to its RF2 row columns.
func UnparseDescription(d snomed.Description) []string {
	return []string{
		strconv.FormatInt(d.ID, 10),
		d.EffectiveTime.Format("20060102"),
		formatActive(d.Active),
		strconv.FormatInt(d.ModuleID, 10),
		strconv.FormatInt(d.ConceptID, 10),
		d.LanguageCode,
		strconv.FormatInt(d.TypeID, 10),
		d.Term,
		strconv.FormatInt(d.CaseSignificanceID, 10),
	}
}

// UnparseRelationship renders a relationship back to its RF2 row columns.
func UnparseRelationship(r snomed.Relationship) []string {
	destination := strconv.FormatInt(r.DestinationID, 10)
	if r.IsConcrete() {
		destination = r.Value
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.EffectiveTime.Format("20060102"),
		formatActive(r.Active),
		strconv.FormatInt(r.ModuleID, 10),
		strconv.FormatInt(r.SourceID, 10),
		destination,
		strconv.FormatInt(r.RelationshipGroup, 10),
		strconv.FormatInt(r.TypeID, 10),
		strconv.FormatInt(r.CharacteristicTypeID, 10),
		strconv.FormatInt(r.ModifierID, 10),
	}
}

func formatActive(active bool) string {
	if active {
		return "1"
	}
	return "0"
}
