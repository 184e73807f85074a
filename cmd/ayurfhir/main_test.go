package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ayurfhir/ayurfhir/internal/config"
	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
	"github.com/ayurfhir/ayurfhir/internal/etl/builder"
	"github.com/ayurfhir/ayurfhir/internal/etl/checkpoint"
	"github.com/ayurfhir/ayurfhir/internal/platform/auth"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:             "0",
		Env:              "test",
		CORSOrigins:      []string{"http://localhost:3000"},
		APIKey:           "secret-key-1234",
		ICDClientID:      "id",
		ICDClientSecret:  "secret",
		ICDTokenURL:      "https://token.example",
		ICDAPIBaseURL:    "https://api.example/icd",
		ICDRelease:       "2025-01",
		ICDLinearization: "mms",
		ICDChapterFilter: "26",
		ICDScope:         "icdapi_access",
		ICDTimeout:       5 * time.Second,
		RetryMaxAttempts: 5,
		RetryBaseDelay:   5 * time.Second,
		RetryMultiplier:  2,
		ArtifactBackend:  config.ArtifactBackendCSV,
	}
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	e := newServer(newEnv(testConfig(), zerolog.Nop(), nil))

	rec := do(t, e, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestServer_MetricsCountsRequests(t *testing.T) {
	e := newServer(newEnv(testConfig(), zerolog.Nop(), nil))

	do(t, e, http.MethodGet, "/health", "", nil)
	rec := do(t, e, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ayurfhir_http_requests_total") {
		t.Errorf("expected http request counter in exposition, got:\n%s", rec.Body.String())
	}
}

func TestServer_BundleRequiresAPIKey(t *testing.T) {
	e := newServer(newEnv(testConfig(), zerolog.Nop(), nil))
	body := `{"resourceType":"Bundle","type":"collection","entry":[]}`

	if rec := do(t, e, http.MethodPost, "/bundle", body, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key: expected 401, got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodPost, "/bundle", body, map[string]string{auth.APIKeyHeader: "wrong"}); rec.Code != http.StatusForbidden {
		t.Errorf("wrong key: expected 403, got %d", rec.Code)
	}
	rec := do(t, e, http.MethodPost, "/bundle", body, map[string]string{auth.APIKeyHeader: "secret-key-1234"})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid key: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Bundle received and logged.") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestServer_CurationWritesRequireAPIKey(t *testing.T) {
	e := newServer(newEnv(testConfig(), zerolog.Nop(), nil))

	rec := do(t, e, http.MethodPut, "/api/v1/mappings/1", `{"status":"reviewed"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("PUT: expected 401, got %d", rec.Code)
	}
	rec = do(t, e, http.MethodDelete, "/api/v1/mappings/1", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("DELETE: expected 401, got %d", rec.Code)
	}
}

func TestServer_RejectsUnknownSystemBeforeStore(t *testing.T) {
	e := newServer(newEnv(testConfig(), zerolog.Nop(), nil))

	if rec := do(t, e, http.MethodGet, "/search/klingon?term=fever", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("search: expected 400, got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodGet, "/fhir/ConceptMap/$translate?system=klingon&code=X", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("translate: expected 400, got %d", rec.Code)
	}
}

func TestServer_BundleBodyLimit(t *testing.T) {
	e := newServer(newEnv(testConfig(), zerolog.Nop(), nil))
	big := `{"pad":"` + strings.Repeat("x", 11<<20) + `"}`

	rec := do(t, e, http.MethodPost, "/bundle", big, map[string]string{auth.APIKeyHeader: "secret-key-1234"})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestICDConfig(t *testing.T) {
	cfg := testConfig()
	got := icdConfig(cfg)
	if got.ClientID != "id" || got.ClientSecret != "secret" {
		t.Errorf("credentials not carried: %+v", got)
	}
	if got.BaseURL != cfg.ICDAPIBaseURL || got.TokenURL != cfg.ICDTokenURL {
		t.Errorf("urls not carried: %+v", got)
	}
	if got.Release != "2025-01" || got.Linearization != "mms" || got.ChapterFilter != "26" {
		t.Errorf("release settings not carried: %+v", got)
	}
	if got.Timeout != 5*time.Second {
		t.Errorf("timeout: got %s", got.Timeout)
	}
}

func TestRetryPolicy(t *testing.T) {
	p := retryPolicy(testConfig())
	if p.MaxAttempts != 5 {
		t.Errorf("attempts: got %d", p.MaxAttempts)
	}
	if d := p.Delay(1); d != 10*time.Second {
		t.Errorf("second retry delay: got %s, want 10s", d)
	}
}

func TestOpenArtifact_CSV(t *testing.T) {
	cfg := testConfig()
	cfg.ArtifactPath = filepath.Join(t.TempDir(), "maps", "out.csv")

	a, err := openArtifact(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openArtifact: %v", err)
	}
	defer a.Close()

	if err := a.Append(context.Background(), checkpoint.Record{NamasteCode: "SR11", NamasteSystem: "siddha", ICDCode: "SK00", Relationship: "equivalent"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !a.Contains(terminology.Key{Code: "SR11", System: terminology.Siddha}) {
		t.Error("expected appended key to be present")
	}
}

func TestOpenArtifact_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.ArtifactBackend = config.ArtifactBackendRedis
	cfg.RedisURL = "redis://" + mr.Addr()

	a, err := openArtifact(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openArtifact: %v", err)
	}
	defer a.Close()

	if err := a.Append(context.Background(), checkpoint.Record{NamasteCode: "AAA-1", NamasteSystem: "ayurveda", ICDCode: "SA00"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !mr.Exists(checkpoint.DefaultRedisKey) {
		t.Errorf("expected hash %s to exist", checkpoint.DefaultRedisKey)
	}
}

func TestProposals(t *testing.T) {
	recs := []checkpoint.Record{
		{NamasteCode: "AAA-1", NamasteSystem: "ayurveda", ICDCode: "SA00", ICDTitle: "Vata disorder", Relationship: "equivalent"},
		{NamasteCode: "UN1", NamasteSystem: "unani", ICDCode: "SB01"},
	}
	got := proposals(recs)
	if len(got) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(got))
	}
	if got[0].NamasteCode != "AAA-1" || got[0].NamasteSystem != "ayurveda" || got[0].ICDCode != "SA00" || got[0].Relationship != "equivalent" {
		t.Errorf("first proposal: %+v", got[0])
	}
	if got[1].Relationship != "" {
		t.Errorf("empty relationship should stay empty for the ingestor to default, got %q", got[1].Relationship)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	printSummary(cmd, &builder.Summary{RunID: "r1", Total: 10, Skipped: 4, Mapped: 5, NoMatch: 1, Interrupted: true})
	out := buf.String()
	for _, want := range []string{"run r1", "10 terms", "4 already done", "5 mapped", "1 without match", "(interrupted)"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "unverified") {
		t.Errorf("unverified count should be omitted when zero: %q", out)
	}
}

func TestRunBuild_RejectsNonNamasteSystem(t *testing.T) {
	app := &env{cfg: testConfig(), logger: zerolog.Nop()}
	if _, err := runBuild(context.Background(), app, buildFlags{system: "icd11"}); err == nil {
		t.Fatal("expected error for icd11 source")
	}
}

func TestRunBuild_RequiresCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.ICDClientSecret = ""
	app := &env{cfg: cfg, logger: zerolog.Nop()}
	_, err := runBuild(context.Background(), app, buildFlags{system: "namaste"})
	if err == nil || !strings.Contains(err.Error(), "ICD_CLIENT_SECRET") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}
