// Package metrics exposes Prometheus counters for the matcher, the ETL
// commands and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ayurfhir"

// Matcher search outcomes.
const (
	OutcomeMatched   = "matched"
	OutcomeNoMatch   = "no_match"
	OutcomeRejected  = "rejected"
	OutcomeExhausted = "exhausted"
	OutcomeSkipped   = "skipped"
)

// Metrics holds every collector the process registers. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	matcherSearches  *prometheus.CounterVec
	builderTerms     *prometheus.CounterVec
	termsIngested    *prometheus.CounterVec
	mappingsIngested *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		matcherSearches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matcher_searches_total",
			Help:      "ICD-11 search calls by outcome.",
		}, []string{"outcome"}),
		builderTerms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builder_terms_total",
			Help:      "Source terms visited by the mapping builder by result.",
		}, []string{"result"}),
		termsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terms_ingested_total",
			Help:      "Terms written to the term store by code system.",
		}, []string{"system"}),
		mappingsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mappings_ingested_total",
			Help:      "Artifact rows seen by the mapping ingestor by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.matcherSearches, m.builderTerms, m.termsIngested, m.mappingsIngested, m.httpRequests, m.httpDuration)
	return m
}

func (m *Metrics) SearchOutcome(outcome string) {
	if m == nil {
		return
	}
	m.matcherSearches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BuilderTerm(result string) {
	if m == nil {
		return
	}
	m.builderTerms.WithLabelValues(result).Inc()
}

func (m *Metrics) TermsIngested(system string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.termsIngested.WithLabelValues(system).Add(float64(n))
}

func (m *Metrics) MappingsIngested(ingested, skipped int) {
	if m == nil {
		return
	}
	m.mappingsIngested.WithLabelValues("ingested").Add(float64(ingested))
	m.mappingsIngested.WithLabelValues("skipped").Add(float64(skipped))
}

// Middleware counts every request that reaches the router.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the text exposition format for g.
func Handler(g prometheus.Gatherer) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
