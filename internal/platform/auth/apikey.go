package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// APIKeyHeader is the header clients put the shared key in.
const APIKeyHeader = "X-API-Key"

// StaticAPIKey guards write routes with a single shared key. The matched
// key's masked form is stored under "principal" for audit logging.
//
// An empty configured key rejects every request rather than opening the
// route.
func StaticAPIKey(expected string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := extractAPIKey(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing api key")
			}
			if expected == "" || subtle.ConstantTimeCompare([]byte(raw), []byte(expected)) != 1 {
				return echo.NewHTTPError(http.StatusForbidden, "invalid api key")
			}
			c.Set("principal", MaskKey(raw))
			return next(c)
		}
	}
}

// MaskKey keeps only the last four characters of a credential.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "..."
	}
	return "..." + key[len(key)-4:]
}

// extractAPIKey checks X-API-Key first, then Authorization: ApiKey <key>.
func extractAPIKey(c echo.Context) string {
	if k := c.Request().Header.Get(APIKeyHeader); k != "" {
		return k
	}
	parts := strings.SplitN(c.Request().Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "apikey") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
