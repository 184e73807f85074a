package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runKeyed(t *testing.T, expected string, setHeader func(*http.Request)) (error, echo.Context, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/bundle", nil)
	if setHeader != nil {
		setHeader(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	}
	err := StaticAPIKey(expected)(handler)(c)
	return err, c, called
}

func assertHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != want {
		t.Errorf("expected %d, got %d", want, httpErr.Code)
	}
}

func TestStaticAPIKey_Missing(t *testing.T) {
	err, _, called := runKeyed(t, "s3cret-key", nil)
	assertHTTPStatus(t, err, http.StatusUnauthorized)
	if called {
		t.Error("handler should not run without a key")
	}
}

func TestStaticAPIKey_Wrong(t *testing.T) {
	err, _, called := runKeyed(t, "s3cret-key", func(r *http.Request) {
		r.Header.Set(APIKeyHeader, "guess")
	})
	assertHTTPStatus(t, err, http.StatusForbidden)
	if called {
		t.Error("handler should not run with a wrong key")
	}
}

func TestStaticAPIKey_Valid(t *testing.T) {
	err, c, called := runKeyed(t, "s3cret-key", func(r *http.Request) {
		r.Header.Set(APIKeyHeader, "s3cret-key")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected handler to run")
	}
	if p := c.Get("principal"); p != "...-key" {
		t.Errorf("expected masked principal ...-key, got %v", p)
	}
}

func TestStaticAPIKey_AuthorizationScheme(t *testing.T) {
	err, _, called := runKeyed(t, "s3cret-key", func(r *http.Request) {
		r.Header.Set("Authorization", "ApiKey s3cret-key")
	})
	if err != nil || !called {
		t.Fatalf("expected Authorization: ApiKey to be accepted, err=%v", err)
	}
}

func TestStaticAPIKey_UnconfiguredRejects(t *testing.T) {
	err, _, called := runKeyed(t, "", func(r *http.Request) {
		r.Header.Set(APIKeyHeader, "anything")
	})
	assertHTTPStatus(t, err, http.StatusForbidden)
	if called {
		t.Error("handler should not run when no key is configured")
	}
}

func TestMaskKey(t *testing.T) {
	if got := MaskKey("abcdefgh"); got != "...efgh" {
		t.Errorf("expected ...efgh, got %s", got)
	}
	if got := MaskKey("abc"); got != "..." {
		t.Errorf("expected ..., got %s", got)
	}
}
