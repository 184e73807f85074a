// Package condition renders NAMASTE terms as FHIR Condition resources,
// adding the mapped target coding when one exists.
package condition

import (
	"context"
	"errors"
	"time"

	"github.com/ayurfhir/ayurfhir/internal/domain/conceptmap"
	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
	"github.com/ayurfhir/ayurfhir/internal/platform/fhir"
)

const clinicalStatusSystem = "http://terminology.hl7.org/CodeSystem/condition-clinical"

type TermGetter interface {
	GetTerm(ctx context.Context, system terminology.CodeSystem, id int64) (*terminology.Term, error)
}

type MappingFinder interface {
	Lookup(ctx context.Context, code string, system terminology.CodeSystem) (*conceptmap.Mapping, error)
}

type Service struct {
	terms TermGetter
	maps  MappingFinder
	now   func() time.Time
}

func NewService(terms TermGetter, maps MappingFinder) *Service {
	return &Service{terms: terms, maps: maps, now: time.Now}
}

// Build returns an active Condition coded with the NAMASTE term termID and,
// if the term is mapped, the target coding. patientID may be empty, in
// which case the resource has no subject.
func (s *Service) Build(ctx context.Context, termID int64, patientID string) (map[string]interface{}, error) {
	term, err := s.terms.GetTerm(ctx, terminology.Namaste, termID)
	if err != nil {
		return nil, err
	}

	codings := []fhir.Coding{term.Coding()}
	m, err := s.maps.Lookup(ctx, term.Code, term.System)
	switch {
	case err == nil:
		if system, code, ok := m.TargetCode(); ok {
			codings = append(codings, fhir.Coding{System: system.URI(), Code: code, Display: m.TargetDisplay()})
		}
	case !errors.Is(err, conceptmap.ErrNotFound):
		return nil, err
	}

	now := s.now().UTC()
	res := map[string]interface{}{
		"resourceType": "Condition",
		"meta":         fhir.Meta{LastUpdated: &now},
		"clinicalStatus": fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: clinicalStatusSystem, Code: "active"}},
		},
		"code": fhir.CodeableConcept{Coding: codings, Text: term.Term},
	}
	if patientID != "" {
		res["subject"] = fhir.Reference{Reference: "Patient/" + patientID}
	}
	return res, nil
}
