package conceptmap

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
	"github.com/ayurfhir/ayurfhir/internal/platform/db"
)

// Proposal is a machine-discovered mapping waiting to be loaded.
type Proposal struct {
	NamasteCode   string
	NamasteSystem string
	ICDCode       string
	Relationship  string
}

// IngestResult reports a mapping load.
type IngestResult struct {
	Total      int   `json:"total"`
	Ingested   int64 `json:"ingested"`
	Unresolved int   `json:"unresolved"`
	Invalid    int   `json:"invalid"`
	Cleared    int64 `json:"cleared"`
}

// Ingest replaces the mapping store with proposals. Each proposal's source
// is resolved by (code, system); rows that do not resolve or carry an
// unknown relationship are counted and dropped. Survivors are stored as
// auto_generated.
func (s *Service) Ingest(ctx context.Context, proposals []Proposal) (*IngestResult, error) {
	res := &IngestResult{Total: len(proposals)}
	ids := make(map[terminology.Key]int64)
	rows := make([]NewMapping, 0, len(proposals))

	for _, p := range proposals {
		if p.NamasteCode == "" || p.ICDCode == "" {
			res.Invalid++
			continue
		}
		rel := RelEquivalent
		if p.Relationship != "" {
			r, err := ParseRelationship(p.Relationship)
			if err != nil {
				res.Invalid++
				continue
			}
			rel = r
		}

		system, err := terminology.ParseCodeSystem(p.NamasteSystem)
		if err != nil || !system.IsNamaste() {
			res.Unresolved++
			continue
		}
		key := terminology.Key{Code: p.NamasteCode, System: system}
		id, ok := ids[key]
		if !ok {
			t, err := s.terms.GetByCode(ctx, system, p.NamasteCode)
			switch {
			case errors.Is(err, terminology.ErrNotFound):
				id = 0
			case err != nil:
				return nil, fmt.Errorf("resolve %s: %w", key, err)
			default:
				id = t.ID
			}
			ids[key] = id
		}
		if id == 0 {
			res.Unresolved++
			continue
		}
		rows = append(rows, NewMapping{NamasteID: id, ICDCode: p.ICDCode, Relationship: rel, Status: StatusAutoGenerated})
	}

	err := db.WithTx(ctx, s.txb, func(ctx context.Context) error {
		var err error
		if res.Cleared, err = s.repo.DeleteAll(ctx); err != nil {
			return err
		}
		res.Ingested, err = s.repo.Insert(ctx, rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ingest mappings: %w", err)
	}

	skipped := res.Unresolved + res.Invalid
	s.metrics.MappingsIngested(int(res.Ingested), skipped)
	s.logger.Info().
		Int("total", res.Total).
		Int64("ingested", res.Ingested).
		Int("unresolved", res.Unresolved).
		Int("invalid", res.Invalid).
		Int64("cleared", res.Cleared).
		Msg("mappings ingested")
	return res, nil
}
