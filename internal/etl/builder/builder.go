// Package builder drives the ICD-11 matcher over every NAMASTE term that
// the checkpoint has not seen yet.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
	"github.com/ayurfhir/ayurfhir/internal/etl/checkpoint"
	"github.com/ayurfhir/ayurfhir/internal/etl/icd"
	"github.com/ayurfhir/ayurfhir/internal/platform/metrics"
	"github.com/ayurfhir/ayurfhir/internal/platform/retry"
)

// Builder results, also used as metric labels.
const (
	ResultMapped     = "mapped"
	ResultNoMatch    = "no_match"
	ResultSkipped    = "skipped"
	ResultUnverified = "unverified"
)

// TermLister yields the source terms to map.
type TermLister interface {
	ListAll(ctx context.Context, system terminology.CodeSystem) ([]*terminology.Term, error)
}

// Matcher proposes an ICD-11 candidate for a term.
type Matcher interface {
	Search(ctx context.Context, term string) (icd.Candidate, bool)
}

// Verifier looks up a code in the local ICD-11 table.
type Verifier interface {
	GetByCode(ctx context.Context, system terminology.CodeSystem, code string) (*terminology.Term, error)
}

// Options tune a run. The zero value maps the whole NAMASTE family with no
// delay and no local verification.
type Options struct {
	System       terminology.CodeSystem
	Delay        time.Duration
	Relationship string
	// Verifier, when set, drops candidates whose code is missing from the
	// local ICD-11 table.
	Verifier Verifier
	Sleep    func(ctx context.Context, d time.Duration) error
}

// Summary reports one run.
type Summary struct {
	RunID       string `json:"run_id"`
	Total       int    `json:"total"`
	Skipped     int    `json:"skipped"`
	Mapped      int    `json:"mapped"`
	NoMatch     int    `json:"no_match"`
	Unverified  int    `json:"unverified"`
	Interrupted bool   `json:"interrupted"`
}

type Builder struct {
	terms   TermLister
	matcher Matcher
	cp      checkpoint.Checkpoint
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func New(terms TermLister, matcher Matcher, cp checkpoint.Checkpoint, opts Options, logger zerolog.Logger, m *metrics.Metrics) *Builder {
	if opts.System == "" {
		opts.System = terminology.Namaste
	}
	if opts.Relationship == "" {
		opts.Relationship = "equivalent"
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	return &Builder{terms: terms, matcher: matcher, cp: cp, opts: opts, logger: logger, metrics: m}
}

// Run maps every unprocessed term, appending each match to the checkpoint
// as soon as it is found. Cancelling ctx stops the run between terms; that
// is reported through Summary.Interrupted, not as an error.
func (b *Builder) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString()}
	log := b.logger.With().Str("run_id", sum.RunID).Logger()

	terms, err := b.terms.ListAll(ctx, b.opts.System)
	if err != nil {
		if ctx.Err() != nil {
			sum.Interrupted = true
			return sum, nil
		}
		return nil, fmt.Errorf("list source terms: %w", err)
	}
	sum.Total = len(terms)
	log.Info().Int("terms", sum.Total).Str("system", string(b.opts.System)).Msg("mapping run started")

	for i, t := range terms {
		if ctx.Err() != nil {
			sum.Interrupted = true
			break
		}

		key := terminology.Key{Code: t.Code, System: t.System}
		if b.cp.Contains(key) {
			sum.Skipped++
			b.metrics.BuilderTerm(ResultSkipped)
			continue
		}

		log.Debug().Int("n", i+1).Int("of", sum.Total).Str("key", key.String()).Str("term", t.Term).Msg("matching term")
		result, err := b.process(ctx, t)
		if err != nil {
			return sum, err
		}
		if result != ResultMapped && ctx.Err() != nil {
			// the search was cut short, so its answer means nothing
			sum.Interrupted = true
			break
		}
		switch result {
		case ResultMapped:
			sum.Mapped++
		case ResultUnverified:
			sum.Unverified++
		default:
			sum.NoMatch++
		}
		b.metrics.BuilderTerm(result)

		if err := b.opts.Sleep(ctx, b.opts.Delay); err != nil {
			sum.Interrupted = true
			break
		}
	}

	ev := log.Info()
	if sum.Interrupted {
		ev = log.Warn()
	}
	ev.Int("total", sum.Total).
		Int("skipped", sum.Skipped).
		Int("mapped", sum.Mapped).
		Int("no_match", sum.NoMatch).
		Int("unverified", sum.Unverified).
		Bool("interrupted", sum.Interrupted).
		Msg("mapping run finished")
	return sum, nil
}

func (b *Builder) process(ctx context.Context, t *terminology.Term) (string, error) {
	cand, ok := b.matcher.Search(ctx, t.Term)
	if !ok {
		return ResultNoMatch, nil
	}

	if b.opts.Verifier != nil {
		_, err := b.opts.Verifier.GetByCode(ctx, terminology.ICD11, cand.Code)
		switch {
		case errors.Is(err, terminology.ErrNotFound):
			b.logger.Warn().Str("icd_code", cand.Code).Str("code", t.Code).Msg("candidate missing from local icd11 table, skipping")
			return ResultUnverified, nil
		case err != nil:
			if ctx.Err() != nil {
				return ResultNoMatch, nil
			}
			return "", fmt.Errorf("verify %s: %w", cand.Code, err)
		}
	}

	rec := checkpoint.Record{
		NamasteCode:   t.Code,
		NamasteSystem: string(t.System),
		ICDCode:       cand.Code,
		ICDTitle:      cand.Title,
		Relationship:  b.opts.Relationship,
	}
	// The append must land even if ctx was cancelled mid-search.
	if err := b.cp.Append(context.WithoutCancel(ctx), rec); err != nil {
		return "", fmt.Errorf("append %s: %w", rec.Key(), err)
	}
	b.logger.Debug().Str("code", t.Code).Str("icd_code", cand.Code).Msg("mapping found")
	return ResultMapped, nil
}
