package conceptmap

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
)

func newTestHandler() (*Handler, *mockRepo, *echo.Echo) {
	svc, repo, _ := newTestService()
	return NewHandler(svc), repo, echo.New()
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

// =========== Lookup ===========

func TestHandler_Lookup(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/map?namaste_code=SR11&namaste_system=siddha", nil)
	rec := httptest.NewRecorder()
	if err := h.Lookup(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["map_relationship"] != "narrower" {
		t.Errorf("unexpected relationship %v", body["map_relationship"])
	}
	src := body["source_term"].(map[string]interface{})
	tgt := body["target_term"].(map[string]interface{})
	if src["code"] != "SR11" || tgt["code"] != "SK91" {
		t.Errorf("unexpected terms %v / %v", src, tgt)
	}
}

func TestHandler_Lookup_Errors(t *testing.T) {
	h, _, e := newTestHandler()
	cases := map[string]int{
		"/map": http.StatusBadRequest,
		"/map?namaste_code=SR11&namaste_system=xyz": http.StatusBadRequest,
		"/map?namaste_code=SR11&namaste_system=icd": http.StatusBadRequest,
		"/map?namaste_code=NOPE":                    http.StatusNotFound,
	}
	for url, want := range cases {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		err := h.Lookup(e.NewContext(req, httptest.NewRecorder()))
		if got := httpStatus(t, err); got != want {
			t.Errorf("%s: expected %d, got %d", url, want, got)
		}
	}
}

func TestHandler_Reverse(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/map/reverse/SK91", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("code")
	c.SetParamValues("SK91")
	if err := h.Reverse(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var terms []*terminology.Term
	json.Unmarshal(rec.Body.Bytes(), &terms)
	if len(terms) != 2 {
		t.Errorf("expected 2 source terms, got %d", len(terms))
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/map/reverse/XX00", nil), httptest.NewRecorder())
	c.SetParamNames("code")
	c.SetParamValues("XX00")
	if got := httpStatus(t, h.Reverse(c)); got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}
}

// =========== Curation ===========

func TestHandler_List(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/mappings?status=reviewed&skip=1&limit=1", nil)
	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Data    []*Mapping `json:"data"`
		Total   int        `json:"total"`
		HasMore bool       `json:"has_more"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 2 || len(body.Data) != 1 || body.Data[0].ID != 3 || body.HasMore {
		t.Errorf("unexpected page %+v", body)
	}
}

func TestHandler_List_InvalidStatus(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/mappings?status=approved", nil)
	if got := httpStatus(t, h.List(e.NewContext(req, httptest.NewRecorder()))); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}

func TestHandler_Count(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/mappings/count?search=humma", nil)
	rec := httptest.NewRecorder()
	if err := h.Count(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"count":1}` {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_Update(t *testing.T) {
	h, repo, e := newTestHandler()

	body := `{"map_relationship":"wider","status":"reviewed"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/mappings/1", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")

	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if repo.rows[0].rel != RelWider || repo.rows[0].status != StatusReviewed {
		t.Errorf("row not updated: %+v", repo.rows[0])
	}
}

func TestHandler_Update_Errors(t *testing.T) {
	h, _, e := newTestHandler()
	cases := []struct {
		id, body string
		want     int
	}{
		{"abc", `{}`, http.StatusBadRequest},
		{"999999", `{"map_relationship":"equivalent","status":"reviewed"}`, http.StatusNotFound},
		{"1", `{"map_relationship":"equivalent","status":"approved"}`, http.StatusBadRequest},
		{"1", `{"map_relationship":"kinda","status":"reviewed"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/mappings/"+tc.id, strings.NewReader(tc.body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(tc.id)
		if got := httpStatus(t, h.Update(c)); got != tc.want {
			t.Errorf("id %s body %s: expected %d, got %d", tc.id, tc.body, tc.want, got)
		}
	}
}

func TestHandler_Delete(t *testing.T) {
	h, _, e := newTestHandler()

	del := func() (int, error) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/api/v1/mappings/2", nil), rec)
		c.SetParamNames("id")
		c.SetParamValues("2")
		err := h.Delete(c)
		return rec.Code, err
	}

	code, err := del()
	if err != nil || code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d %v", code, err)
	}
	_, err = del()
	if got := httpStatus(t, err); got != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", got)
	}
}

// =========== Translate ===========

func TestHandler_Translate(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/fhir/ConceptMap/$translate?system=ayurveda&code=AAA-1", nil)
	rec := httptest.NewRecorder()
	if err := h.Translate(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &doc)
	if doc["resourceType"] != "ConceptMap" || doc["name"] != "NamasteToICD11" {
		t.Errorf("unexpected document %v", doc)
	}
}

func TestHandler_Translate_Errors(t *testing.T) {
	h, _, e := newTestHandler()
	cases := map[string]int{
		"/fhir/ConceptMap/$translate?code=AAA-1":                  http.StatusBadRequest,
		"/fhir/ConceptMap/$translate?system=ayurveda":             http.StatusBadRequest,
		"/fhir/ConceptMap/$translate?system=klingon&code=AAA-1":   http.StatusBadRequest,
		"/fhir/ConceptMap/$translate?system=loinc&code=8310-5":    http.StatusBadRequest,
		"/fhir/ConceptMap/$translate?system=ayurveda&code=NOPE-1": http.StatusNotFound,
	}
	for url, want := range cases {
		rec := httptest.NewRecorder()
		if err := h.Translate(e.NewContext(httptest.NewRequest(http.MethodGet, url, nil), rec)); err != nil {
			t.Fatalf("%s: unexpected error: %v", url, err)
		}
		if rec.Code != want {
			t.Errorf("%s: expected %d, got %d", url, want, rec.Code)
		}
		var oo map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &oo)
		if oo["resourceType"] != "OperationOutcome" {
			t.Errorf("%s: expected OperationOutcome, got %v", url, oo)
		}
	}
}
