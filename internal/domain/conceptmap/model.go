package conceptmap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
)

var (
	ErrNotFound            = errors.New("mapping not found")
	ErrInvalidStatus       = errors.New("invalid mapping status")
	ErrInvalidRelationship = errors.New("invalid map relationship")
)

// Status is where a mapping sits in review. Rejection is normally carried
// out by deleting the mapping; StatusRejected exists for callers that want
// to keep the row.
type Status string

const (
	StatusAutoGenerated Status = "auto_generated"
	StatusReviewed      Status = "reviewed"
	StatusRejected      Status = "rejected"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.TrimSpace(s)); st {
	case StatusAutoGenerated, StatusReviewed, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Relationship is the FHIR ConceptMap equivalence between source and
// target.
type Relationship string

const (
	RelEquivalent  Relationship = "equivalent"
	RelEqual       Relationship = "equal"
	RelRelatedTo   Relationship = "relatedto"
	RelWider       Relationship = "wider"
	RelSubsumes    Relationship = "subsumes"
	RelNarrower    Relationship = "narrower"
	RelSpecializes Relationship = "specializes"
	RelInexact     Relationship = "inexact"
	RelUnmatched   Relationship = "unmatched"
	RelDisjoint    Relationship = "disjoint"
)

var relationships = map[Relationship]bool{
	RelEquivalent: true, RelEqual: true, RelRelatedTo: true, RelWider: true, RelSubsumes: true,
	RelNarrower: true, RelSpecializes: true, RelInexact: true, RelUnmatched: true, RelDisjoint: true,
}

// ParseRelationship accepts the equivalence codes case-insensitively, plus
// the hyphenated "related-to" spelling.
func ParseRelationship(s string) (Relationship, error) {
	r := Relationship(strings.ToLower(strings.TrimSpace(s)))
	if r == "related-to" {
		r = RelRelatedTo
	}
	if !relationships[r] {
		return "", fmt.Errorf("%w: %q", ErrInvalidRelationship, s)
	}
	return r, nil
}

// Mapping is one concept_map row with its source term and resolved target
// joined in. Target is nil when no target code resolves to a known term.
type Mapping struct {
	ID           int64             `json:"id"`
	NamasteID    int64             `json:"namaste_id"`
	ICDCode      *string           `json:"icd_code"`
	SNOMEDCode   *string           `json:"snomed_code"`
	LOINCCode    *string           `json:"loinc_code"`
	Relationship Relationship      `json:"map_relationship"`
	Status       Status            `json:"status"`
	Source       *terminology.Term `json:"source_term"`
	Target       *terminology.Term `json:"target_term"`
}

// TargetCode returns the first non-empty target code, checked in ICD-11,
// SNOMED, LOINC order.
func (m *Mapping) TargetCode() (terminology.CodeSystem, string, bool) {
	switch {
	case m.ICDCode != nil && *m.ICDCode != "":
		return terminology.ICD11, *m.ICDCode, true
	case m.SNOMEDCode != nil && *m.SNOMEDCode != "":
		return terminology.SNOMED, *m.SNOMEDCode, true
	case m.LOINCCode != nil && *m.LOINCCode != "":
		return terminology.LOINC, *m.LOINCCode, true
	}
	return "", "", false
}

// TargetDisplay is the resolved target's display, or "" when unresolved.
func (m *Mapping) TargetDisplay() string {
	if m.Target == nil {
		return ""
	}
	return m.Target.Term
}

// Filter narrows curation listings. Empty fields match everything.
type Filter struct {
	Status Status
	// Search is a case-insensitive substring of the source term.
	Search string
}

// NewMapping is a row to insert.
type NewMapping struct {
	NamasteID    int64
	ICDCode      string
	Relationship Relationship
	Status       Status
}
