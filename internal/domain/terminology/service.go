package terminology

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofhir/fhir/r4"
	"github.com/rs/zerolog"

	"github.com/ayurfhir/ayurfhir/internal/platform/db"
	"github.com/ayurfhir/ayurfhir/internal/platform/fhir"
	"github.com/ayurfhir/ayurfhir/internal/platform/metrics"
)

// ErrQueryRequired is returned when a search has nothing to match on.
var ErrQueryRequired = errors.New("query parameter is required")

// Service provides term search, FHIR lookups and partition ingestion.
type Service struct {
	repo    Repository
	txb     db.TxBeginner
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewService creates a new terminology service. txb may be nil when the
// service is used read-only.
func NewService(repo Repository, txb db.TxBeginner, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, txb: txb, logger: logger, metrics: m}
}

// Search returns every term in system whose display contains query.
func (s *Service) Search(ctx context.Context, system CodeSystem, query string) ([]*Term, error) {
	if query == "" {
		return nil, ErrQueryRequired
	}
	return s.repo.Search(ctx, system, query)
}

func (s *Service) GetTerm(ctx context.Context, system CodeSystem, id int64) (*Term, error) {
	return s.repo.GetByID(ctx, system, id)
}

func (s *Service) GetByCode(ctx context.Context, system CodeSystem, code string) (*Term, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	return s.repo.GetByCode(ctx, system, code)
}

// -- FHIR Operations --

// Lookup implements CodeSystem $lookup over the term store.
func (s *Service) Lookup(ctx context.Context, system CodeSystem, code string) (*fhir.Parameters, error) {
	t, err := s.GetByCode(ctx, system, code)
	if err != nil {
		return nil, err
	}

	p := fhir.NewParameters().
		AddString("name", system.Name()).
		AddString("version", system.Version()).
		AddString("display", t.Term).
		AddParts("designation", fhir.Parameter{Name: "value", ValueString: t.Term})
	return p, nil
}

// Expansion is one page of a ValueSet $expand over a code system.
type Expansion struct {
	ValueSet *r4.ValueSet
	Total    int
	Offset   int
}

// Expand lists a page of system's terms as an R4 ValueSet expansion.
func (s *Service) Expand(ctx context.Context, system CodeSystem, filter string, offset, count int) (*Expansion, error) {
	terms, total, err := s.repo.List(ctx, system, filter, count, offset)
	if err != nil {
		return nil, err
	}

	url := system.URI() + "?fhir_vs"
	contains := make([]r4.ValueSetExpansionContains, 0, len(terms))
	for _, t := range terms {
		uri, code, display := t.System.URI(), t.Code, t.Term
		contains = append(contains, r4.ValueSetExpansionContains{System: &uri, Code: &code, Display: &display})
	}
	return &Expansion{
		ValueSet: &r4.ValueSet{
			Url:       &url,
			Expansion: &r4.ValueSetExpansion{Contains: contains},
		},
		Total:  total,
		Offset: offset,
	}, nil
}

// CodeSystem renders every term of system as an R4 CodeSystem. Synonym
// rows sharing a code collapse into one concept carrying the first display.
func (s *Service) CodeSystem(ctx context.Context, system CodeSystem) (*r4.CodeSystem, error) {
	terms, err := s.repo.ListAll(ctx, system)
	if err != nil {
		return nil, err
	}

	url := system.URI()
	concepts := make([]r4.CodeSystemConcept, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		if seen[t.Code] {
			continue
		}
		seen[t.Code] = true
		code, display := t.Code, t.Term
		concepts = append(concepts, r4.CodeSystemConcept{Code: &code, Display: &display})
	}
	return &r4.CodeSystem{Url: &url, Concept: concepts}, nil
}

// -- Ingestion --

// IngestResult summarises one partition load.
type IngestResult struct {
	System     CodeSystem `json:"system"`
	Received   int        `json:"received"`
	Duplicates int        `json:"duplicates"`
	Inserted   int64      `json:"inserted"`
	Skipped    bool       `json:"skipped"`
}

// Ingest replaces system's partition with terms inside one transaction.
// Duplicate (code, term) pairs are dropped, keeping the first. When the
// partition already holds rows nothing is written and the result is marked
// Skipped; use Clear first to reload.
func (s *Service) Ingest(ctx context.Context, system CodeSystem, terms []Term) (*IngestResult, error) {
	if system == Namaste || system.table() == "" {
		return nil, fmt.Errorf("%w: cannot ingest into %q", ErrUnknownSystem, string(system))
	}

	unique := Dedupe(terms)
	res := &IngestResult{System: system, Received: len(terms), Duplicates: len(terms) - len(unique)}

	err := db.WithTx(ctx, s.txb, func(ctx context.Context) error {
		n, err := s.repo.Count(ctx, system)
		if err != nil {
			return err
		}
		if n > 0 {
			res.Skipped = true
			return nil
		}
		if _, err := s.repo.DeleteAll(ctx, system); err != nil {
			return err
		}
		res.Inserted, err = s.repo.Insert(ctx, system, unique)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", system, err)
	}

	if res.Skipped {
		s.logger.Warn().Str("system", string(system)).Msg("term table already populated, skipping ingestion; clear it first to reload")
	} else {
		s.metrics.TermsIngested(string(system), int(res.Inserted))
		s.logger.Info().
			Str("system", string(system)).
			Int("received", res.Received).
			Int("duplicates", res.Duplicates).
			Int64("inserted", res.Inserted).
			Msg("terms ingested")
	}
	return res, nil
}

// Clear empties system's partition. Mappings that reference removed
// NAMASTE terms are removed with them.
func (s *Service) Clear(ctx context.Context, system CodeSystem) (int64, error) {
	if system == Namaste || system.table() == "" {
		return 0, fmt.Errorf("%w: cannot clear %q", ErrUnknownSystem, string(system))
	}
	var n int64
	err := db.WithTx(ctx, s.txb, func(ctx context.Context) error {
		var err error
		n, err = s.repo.DeleteAll(ctx, system)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", system, err)
	}
	s.logger.Info().Str("system", string(system)).Int64("deleted", n).Msg("term table cleared")
	return n, nil
}

// Dedupe drops repeated (code, term) pairs, keeping first occurrences in
// input order.
func Dedupe(terms []Term) []Term {
	type pair struct{ code, term string }
	seen := make(map[pair]bool, len(terms))
	out := make([]Term, 0, len(terms))
	for _, t := range terms {
		k := pair{t.Code, t.Term}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}
