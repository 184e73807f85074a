package icd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// bearer returns the cached token, exchanging client credentials first if
// there is none or it is about to expire.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && (c.expires.IsZero() || c.now().Before(c.expires.Add(-tokenSkew))) {
		return c.token, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"scope":         c.cfg.Scope,
		}).
		Post(c.cfg.TokenURL)
	if err != nil {
		return "", fmt.Errorf("icd token: %w", err)
	}
	if !resp.IsSuccess() {
		return "", &StatusError{Op: "token", Status: resp.StatusCode(), Body: truncate(resp.String())}
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return "", fmt.Errorf("%w: token: %v", errMalformed, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: token response has no access_token", errMalformed)
	}

	c.token = tr.AccessToken
	c.expires = c.expiry(tr)
	c.logger.Info().Time("expires", c.expires).Msg("icd access token acquired")
	return c.token, nil
}

// expiry prefers the exp claim of a JWT access token and falls back to
// expires_in. A zero time means the token is kept for the whole run.
func (c *Client) expiry(tr tokenResponse) time.Time {
	tok, _, err := jwt.NewParser().ParseUnverified(tr.AccessToken, jwt.MapClaims{})
	if err == nil {
		if exp, err := tok.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if tr.ExpiresIn > 0 {
		return c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return time.Time{}
}

func (c *Client) dropToken() {
	c.mu.Lock()
	c.token = ""
	c.expires = time.Time{}
	c.mu.Unlock()
}

// Authenticate fetches a token up front so that bad credentials surface
// before a batch starts.
func (c *Client) Authenticate(ctx context.Context) error {
	if _, err := c.bearer(ctx); err != nil {
		return fmt.Errorf("authenticate with icd api: %w", err)
	}
	return nil
}
