package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ayurfhir/ayurfhir/internal/config"
	"github.com/ayurfhir/ayurfhir/internal/domain/conceptmap"
	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
	"github.com/ayurfhir/ayurfhir/internal/platform/db"
	"github.com/ayurfhir/ayurfhir/internal/platform/metrics"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           "ayurfhir",
		Short:         "NAMASTE to ICD-11 terminology server and mapping pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("metrics-file", "", "write batch run counters to this file in Prometheus text format")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(ingestTermsCmd())
	rootCmd.AddCommand(clearTermsCmd())
	rootCmd.AddCommand(buildMapCmd())
	rootCmd.AddCommand(ingestMapCmd())
	rootCmd.AddCommand(pipelineCmd())

	// Interrupts cancel the command context; batch commands stop between
	// terms and serve shuts down gracefully.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// env is what every command needs before it can do work.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	txb    db.TxBeginner
	terms  terminology.Repository
	maps   conceptmap.Repository

	reg         *prometheus.Registry
	metrics     *metrics.Metrics
	metricsFile string
}

func newEnv(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) *env {
	reg := prometheus.NewRegistry()
	e := &env{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		terms:   terminology.NewRepoPG(pool),
		maps:    conceptmap.NewRepoPG(pool),
		reg:     reg,
		metrics: metrics.New(reg),
	}
	if pool != nil {
		e.txb = pool
	}
	return e
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg.IsDev())

	pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Debug().Msg("connected to database")

	app := newEnv(cfg, logger, pool)
	app.metricsFile, _ = cmd.Flags().GetString("metrics-file")
	return app, nil
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// finish reports what a batch command recorded, then closes. Nothing
// scrapes a batch process, so the counters go to the log and, when
// --metrics-file is set, to a textfile-collector file.
func (e *env) finish() {
	e.reportMetrics()
	e.close()
}

func (e *env) reportMetrics() {
	if err := metrics.LogSnapshot(e.logger, e.reg); err != nil {
		e.logger.Warn().Err(err).Msg("gather metrics")
	}
	if e.metricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(e.metricsFile, e.reg); err != nil {
		e.logger.Warn().Err(err).Str("path", e.metricsFile).Msg("write metrics file")
	}
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the term and mapping tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			if err := db.EnsureSchema(cmd.Context(), app.pool); err != nil {
				return err
			}
			app.logger.Info().Msg("schema ready")
			return nil
		},
	}
}
