package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ayurfhir/ayurfhir/internal/domain/bundle"
	"github.com/ayurfhir/ayurfhir/internal/domain/conceptmap"
	"github.com/ayurfhir/ayurfhir/internal/domain/condition"
	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
	"github.com/ayurfhir/ayurfhir/internal/platform/auth"
	"github.com/ayurfhir/ayurfhir/internal/platform/db"
	"github.com/ayurfhir/ayurfhir/internal/platform/metrics"
	"github.com/ayurfhir/ayurfhir/internal/platform/middleware"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the terminology API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd)
		},
	}
}

func runServer(cmd *cobra.Command) error {
	ctx := cmd.Context()
	app, err := setup(cmd)
	if err != nil {
		return err
	}
	defer app.close()
	logger := app.logger

	if app.cfg.APIKey == "" {
		logger.Warn().Msg("API_KEY is not set; bundle and curation writes will be refused")
	}

	app.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e := newServer(app)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + app.cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires every handler onto a fresh echo instance. The store is
// only touched once requests arrive.
func newServer(app *env) *echo.Echo {
	cfg, logger, m := app.cfg, app.logger, app.metrics

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID", auth.APIKeyHeader},
	}))
	e.Use(m.Middleware())
	e.Use(middleware.BodyLimit("1M", "10M"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(app.pool))
	e.GET("/metrics", metrics.Handler(app.reg))

	root := e.Group("")
	apiV1 := e.Group("/api/v1")
	fhirGroup := e.Group("/fhir")
	apiKey := auth.StaticAPIKey(cfg.APIKey)

	termSvc := terminology.NewService(app.terms, app.txb, logger, m)
	terminology.NewHandler(termSvc).RegisterRoutes(root, fhirGroup)

	mapSvc := conceptmap.NewService(app.maps, app.terms, app.txb, logger, m)
	conceptmap.NewHandler(mapSvc).RegisterRoutes(root, apiV1, fhirGroup, apiKey)

	condition.NewHandler(condition.NewService(termSvc, mapSvc)).RegisterRoutes(fhirGroup)

	bundle.NewHandler(bundle.NewLogRecorder(logger)).RegisterRoutes(root, apiKey)

	return e
}
