package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayurfhir/ayurfhir/internal/config"
	"github.com/ayurfhir/ayurfhir/internal/domain/conceptmap"
	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
	"github.com/ayurfhir/ayurfhir/internal/etl/builder"
	"github.com/ayurfhir/ayurfhir/internal/etl/checkpoint"
	"github.com/ayurfhir/ayurfhir/internal/etl/icd"
	"github.com/ayurfhir/ayurfhir/internal/etl/normalize"
	"github.com/ayurfhir/ayurfhir/internal/etl/source"
	"github.com/ayurfhir/ayurfhir/internal/platform/retry"
)

func ingestTermsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-terms <system> <file>",
		Short: "Load a CSV or XLSX extract into an empty term table",
		Long: "Normalizes an extract with the column profile of <system> " +
			"(ayurveda, siddha, unani, icd11, loinc, snomed) and loads it. " +
			"A table that already holds rows is left untouched; run clear-terms first to reload.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			system, err := terminology.ParseIngestSystem(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.finish()

			profiles, err := normalize.LoadProfiles(app.cfg.SourceProfilesFile)
			if err != nil {
				return err
			}
			profile, err := profiles.For(system)
			if err != nil {
				return err
			}
			table, err := source.Open(args[1])
			if err != nil {
				return err
			}
			norm, err := normalize.Table(system, profile, table)
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			app.logger.Info().
				Str("file", args[1]).
				Int("rows", norm.Rows).
				Int("terms", len(norm.Terms)).
				Int("no_code", norm.NoCode).
				Int("no_term", norm.NoTerm).
				Msg("extract normalized")

			svc := terminology.NewService(app.terms, app.txb, app.logger, app.metrics)
			res, err := svc.Ingest(ctx, system, norm.Terms)
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "%s table already populated; nothing loaded\n", system)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d %s terms (%d duplicates dropped)\n", res.Inserted, system, res.Duplicates)
			return nil
		},
	}
}

func clearTermsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-terms <system>",
		Short: "Empty one term table so it can be reloaded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			system, err := terminology.ParseIngestSystem(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.finish()

			svc := terminology.NewService(app.terms, app.txb, app.logger, app.metrics)
			n, err := svc.Clear(ctx, system)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d %s terms\n", n, system)
			return nil
		},
	}
}

type buildFlags struct {
	system string
	verify bool
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.system, "system", string(terminology.Namaste), "source terms to map (namaste, ayurveda, siddha, unani)")
	cmd.Flags().BoolVar(&f.verify, "verify", false, "drop candidates whose code is missing from the local ICD-11 table")
}

func buildMapCmd() *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "build-map",
		Short: "Propose ICD-11 matches for unprocessed NAMASTE terms",
		Long: "Queries the ICD-11 search API for every NAMASTE term not yet in the mapping " +
			"artifact and appends each match as it is found. Safe to interrupt and rerun.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.finish()

			sum, err := runBuild(ctx, app, flags)
			if err != nil {
				return err
			}
			printSummary(cmd, sum)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func ingestMapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-map",
		Short: "Replace the mapping store with the contents of the mapping artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.finish()

			res, err := runIngestMap(ctx, app)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d of %d mappings (%d unresolved, %d invalid)\n",
				res.Ingested, res.Total, res.Unresolved, res.Invalid)
			return nil
		},
	}
}

func pipelineCmd() *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run build-map then ingest-map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.finish()

			sum, err := runBuild(ctx, app, flags)
			if err != nil {
				return err
			}
			printSummary(cmd, sum)
			if sum.Interrupted {
				return fmt.Errorf("build interrupted; mapping store left unchanged")
			}

			res, err := runIngestMap(ctx, app)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d of %d mappings (%d unresolved, %d invalid)\n",
				res.Ingested, res.Total, res.Unresolved, res.Invalid)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func runBuild(ctx context.Context, app *env, flags buildFlags) (*builder.Summary, error) {
	system, err := terminology.ParseCodeSystem(flags.system)
	if err != nil {
		return nil, err
	}
	if !system.IsNamaste() {
		return nil, fmt.Errorf("%w: build-map maps NAMASTE terms, got %q", terminology.ErrUnknownSystem, flags.system)
	}
	if !app.cfg.MatcherReady() {
		return nil, fmt.Errorf("ICD_CLIENT_ID and ICD_CLIENT_SECRET are required to build mappings")
	}

	client := icd.NewClient(icdConfig(app.cfg), retryPolicy(app.cfg), app.logger, app.metrics)
	if err := client.Authenticate(ctx); err != nil {
		return nil, err
	}

	artifact, err := openArtifact(ctx, app.cfg)
	if err != nil {
		return nil, err
	}
	defer artifact.Close()

	opts := builder.Options{System: system, Delay: app.cfg.MatchDelay}
	if flags.verify {
		opts.Verifier = app.terms
	}
	return builder.New(app.terms, client, artifact, opts, app.logger, app.metrics).Run(ctx)
}

func runIngestMap(ctx context.Context, app *env) (*conceptmap.IngestResult, error) {
	artifact, err := openArtifact(ctx, app.cfg)
	if err != nil {
		return nil, err
	}
	defer artifact.Close()

	records, err := artifact.Records(ctx)
	if err != nil {
		return nil, err
	}

	svc := conceptmap.NewService(app.maps, app.terms, app.txb, app.logger, app.metrics)
	return svc.Ingest(ctx, proposals(records))
}

func icdConfig(cfg *config.Config) icd.Config {
	return icd.Config{
		ClientID:      cfg.ICDClientID,
		ClientSecret:  cfg.ICDClientSecret,
		Scope:         cfg.ICDScope,
		TokenURL:      cfg.ICDTokenURL,
		BaseURL:       cfg.ICDAPIBaseURL,
		Release:       cfg.ICDRelease,
		Linearization: cfg.ICDLinearization,
		ChapterFilter: cfg.ICDChapterFilter,
		Timeout:       cfg.ICDTimeout,
	}
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		Multiplier:  cfg.RetryMultiplier,
	}
}

func openArtifact(ctx context.Context, cfg *config.Config) (checkpoint.Artifact, error) {
	if cfg.ArtifactBackend == config.ArtifactBackendRedis {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		a, err := checkpoint.OpenRedis(openCtx, cfg.RedisURL, "")
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	a, err := checkpoint.OpenCSV(cfg.ArtifactPath)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func proposals(records []checkpoint.Record) []conceptmap.Proposal {
	out := make([]conceptmap.Proposal, len(records))
	for i, r := range records {
		out[i] = conceptmap.Proposal{
			NamasteCode:   r.NamasteCode,
			NamasteSystem: r.NamasteSystem,
			ICDCode:       r.ICDCode,
			Relationship:  r.Relationship,
		}
	}
	return out
}

func printSummary(cmd *cobra.Command, s *builder.Summary) {
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d terms, %d already done, %d mapped, %d without match",
		s.RunID, s.Total, s.Skipped, s.Mapped, s.NoMatch)
	if s.Unverified > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), ", %d unverified", s.Unverified)
	}
	if s.Interrupted {
		fmt.Fprint(cmd.OutOrStdout(), " (interrupted)")
	}
	fmt.Fprintln(cmd.OutOrStdout())
}
