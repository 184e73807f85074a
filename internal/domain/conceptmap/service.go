package conceptmap

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
	"github.com/ayurfhir/ayurfhir/internal/platform/db"
	"github.com/ayurfhir/ayurfhir/internal/platform/metrics"
)

// ConceptMapURL identifies the NAMASTE to ICD-11 map in translate output.
const ConceptMapURL = "http://nph.gov.in/namaste/ConceptMap/namaste-to-icd11"

type Service struct {
	repo    Repository
	terms   TermResolver
	txb     db.TxBeginner
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// TermResolver finds a NAMASTE term by its natural key.
type TermResolver interface {
	GetByCode(ctx context.Context, system terminology.CodeSystem, code string) (*terminology.Term, error)
}

func NewService(repo Repository, terms TermResolver, txb db.TxBeginner, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, terms: terms, txb: txb, logger: logger, metrics: m}
}

// -- Curation --

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Mapping, error) {
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		return []*Mapping{}, nil
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Count(ctx context.Context, f Filter) (int, error) {
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			return 0, err
		}
	}
	return s.repo.Count(ctx, f)
}

func (s *Service) Get(ctx context.Context, id int64) (*Mapping, error) {
	return s.repo.GetByID(ctx, id)
}

// Update overwrites relationship and status and returns the mapping as
// stored. Unknown values are rejected before anything is written.
func (s *Service) Update(ctx context.Context, id int64, relationship, status string) (*Mapping, error) {
	rel, err := ParseRelationship(relationship)
	if err != nil {
		return nil, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	var out *Mapping
	err = db.WithTx(ctx, s.txb, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, id, rel, st); err != nil {
			return err
		}
		out, err = s.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("mapping_id", id).Str("status", string(st)).Str("relationship", string(rel)).Msg("mapping updated")
	return out, nil
}

// Delete removes a mapping for good. Deleting a missing id reports
// ErrNotFound every time.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("mapping_id", id).Msg("mapping deleted")
	return nil
}

// -- Lookup --

// Lookup returns the mapping for a NAMASTE code. system must be a NAMASTE
// variant or the family.
func (s *Service) Lookup(ctx context.Context, code string, system terminology.CodeSystem) (*Mapping, error) {
	if !system.IsNamaste() {
		return nil, fmt.Errorf("%w: %s is not a NAMASTE system", terminology.ErrUnknownSystem, system)
	}
	return s.repo.GetBySource(ctx, code, system)
}

// Reverse returns every source term mapped to target code. No match is an
// empty slice, not an error.
func (s *Service) Reverse(ctx context.Context, code string) ([]*terminology.Term, error) {
	terms, err := s.repo.ReverseLookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if terms == nil {
		terms = []*terminology.Term{}
	}
	return terms, nil
}

// Translate renders the mapping for (system, code) as a FHIR ConceptMap.
func (s *Service) Translate(ctx context.Context, system terminology.CodeSystem, code string) (map[string]interface{}, error) {
	m, err := s.Lookup(ctx, code, system)
	if err != nil {
		return nil, err
	}
	return toConceptMap(m), nil
}

func toConceptMap(m *Mapping) map[string]interface{} {
	targetSystem, targetCode, _ := m.TargetCode()

	target := map[string]interface{}{
		"code":        targetCode,
		"equivalence": string(m.Relationship),
	}
	if d := m.TargetDisplay(); d != "" {
		target["display"] = d
	}

	return map[string]interface{}{
		"resourceType": "ConceptMap",
		"id":           "namaste-" + strconv.FormatInt(m.ID, 10),
		"url":          ConceptMapURL,
		"name":         "NamasteToICD11",
		"status":       "active",
		"group": []map[string]interface{}{{
			"source": m.Source.System.URI(),
			"target": targetSystem.URI(),
			"element": []map[string]interface{}{{
				"code":    m.Source.Code,
				"display": m.Source.Term,
				"target":  []map[string]interface{}{target},
			}},
		}},
	}
}
