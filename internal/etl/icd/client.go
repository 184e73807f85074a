// Package icd is a client for the WHO ICD-11 search API. It proposes the
// top search hit for a free-text term and never fails the caller: every
// problem degrades to "no candidate".
package icd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/ayurfhir/ayurfhir/internal/platform/metrics"
	"github.com/ayurfhir/ayurfhir/internal/platform/retry"
)

// tokens are refreshed this long before they expire
const tokenSkew = 30 * time.Second

// Config locates the API and carries client credentials.
type Config struct {
	ClientID      string
	ClientSecret  string
	Scope         string
	TokenURL      string
	BaseURL       string
	Release       string
	Linearization string
	ChapterFilter string
	Timeout       time.Duration
}

// Candidate is the first search hit for a term.
type Candidate struct {
	Code  string
	Title string
}

// StatusError is an application-level rejection (non-2xx). It is never
// retried.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

// Client searches ICD-11. It is safe for concurrent use; the bearer token
// is fetched once and reused until it nears expiry.
type Client struct {
	http    *resty.Client
	cfg     Config
	policy  retry.Policy
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewClient builds a client over a fresh HTTP transport.
func NewClient(cfg Config, policy retry.Policy, logger zerolog.Logger, m *metrics.Metrics) *Client {
	return NewClientWithHTTP(&http.Client{}, cfg, policy, logger, m)
}

// NewClientWithHTTP builds a client over hc, which lets callers supply
// their own transport.
func NewClientWithHTTP(hc *http.Client, cfg Config, policy retry.Policy, logger zerolog.Logger, m *metrics.Metrics) *Client {
	rc := resty.NewWithClient(hc).
		SetHeader("Accept", "application/json").
		SetHeader("Accept-Language", "en").
		SetHeader("API-Version", "v2")
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}

	if policy.Retryable == nil {
		policy.Retryable = Retryable
	}
	return &Client{
		http:    rc,
		cfg:     cfg,
		policy:  policy,
		logger:  logger.With().Str("component", "icd_matcher").Logger(),
		metrics: m,
		now:     time.Now,
	}
}

// Retryable treats transport failures as transient. Rejections, malformed
// responses and cancellation are final.
func Retryable(err error) bool {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return false
	case errors.Is(err, errMalformed):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

var errMalformed = errors.New("malformed response")

// Search returns the first ICD-11 hit for term. The boolean is false when
// there is no candidate for any reason, including an empty term, an API
// rejection or exhausted retries.
func (c *Client) Search(ctx context.Context, term string) (Candidate, bool) {
	term = strings.TrimSpace(term)
	if term == "" {
		c.metrics.SearchOutcome(metrics.OutcomeSkipped)
		return Candidate{}, false
	}

	var (
		cand  Candidate
		found bool
	)
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		cand, found, err = c.search(ctx, term)
		if err != nil && Retryable(err) {
			c.logger.Warn().Err(err).Str("term", term).Msg("icd search failed, will retry")
		}
		return err
	})

	var se *StatusError
	switch {
	case err == nil && found:
		c.metrics.SearchOutcome(metrics.OutcomeMatched)
		return cand, true
	case err == nil:
		c.metrics.SearchOutcome(metrics.OutcomeNoMatch)
	case errors.Is(err, retry.ErrExhausted):
		c.metrics.SearchOutcome(metrics.OutcomeExhausted)
		c.logger.Warn().Err(err).Str("term", term).Msg("icd search retries exhausted")
	case errors.As(err, &se):
		c.metrics.SearchOutcome(metrics.OutcomeRejected)
		c.logger.Warn().Int("status", se.Status).Str("op", se.Op).Str("term", term).Msg("icd api rejected request")
	default:
		c.metrics.SearchOutcome(metrics.OutcomeRejected)
		c.logger.Warn().Err(err).Str("term", term).Msg("icd search abandoned")
	}
	return Candidate{}, false
}

type searchResponse struct {
	Error               bool   `json:"error"`
	ErrorMessage        string `json:"errorMessage"`
	DestinationEntities []struct {
		TheCode string `json:"theCode"`
		Title   string `json:"title"`
	} `json:"destinationEntities"`
}

func (c *Client) search(ctx context.Context, term string) (Candidate, bool, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return Candidate{}, false, err
	}

	params := map[string]string{"q": term}
	if c.cfg.ChapterFilter != "" {
		params["chapterFilter"] = c.cfg.ChapterFilter
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(params).
		Get(c.searchURL())
	if err != nil {
		return Candidate{}, false, fmt.Errorf("icd search: %w", err)
	}
	if !resp.IsSuccess() {
		if resp.StatusCode() == http.StatusUnauthorized {
			c.dropToken()
		}
		return Candidate{}, false, &StatusError{Op: "search", Status: resp.StatusCode(), Body: truncate(resp.String())}
	}

	var out searchResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return Candidate{}, false, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if len(out.DestinationEntities) == 0 {
		return Candidate{}, false, nil
	}
	top := out.DestinationEntities[0]
	if top.TheCode == "" {
		return Candidate{}, false, nil
	}
	return Candidate{Code: top.TheCode, Title: StripHighlight(top.Title)}, true, nil
}

func (c *Client) searchURL() string {
	return fmt.Sprintf("%s/release/11/%s/%s/search",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Release, c.cfg.Linearization)
}

// StripHighlight removes the search engine's match markup from a title.
func StripHighlight(title string) string {
	title = strings.ReplaceAll(title, `<em class='found'>`, "")
	title = strings.ReplaceAll(title, `<em class="found">`, "")
	title = strings.ReplaceAll(title, "</em>", "")
	return strings.TrimSpace(title)
}

func truncate(s string) string {
	const max = 200
	if len(s) > max {
		return s[:max]
	}
	return s
}
