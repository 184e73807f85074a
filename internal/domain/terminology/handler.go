package terminology

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ayurfhir/ayurfhir/internal/platform/fhir"
)

// Handler provides REST endpoints for terminology services.
type Handler struct {
	svc *Service
}

// NewHandler creates a new terminology handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the search route on the root group and the
// FHIR terminology operations on fhirGroup.
func (h *Handler) RegisterRoutes(root *echo.Group, fhirGroup *echo.Group) {
	root.GET("/search", h.Search)
	root.GET("/search/:system", h.Search)

	fhirGroup.GET("/CodeSystem/$lookup", h.FHIRLookup)
	fhirGroup.POST("/CodeSystem/$lookup", h.FHIRLookup)
	fhirGroup.GET("/CodeSystem/:system", h.FHIRCodeSystem)
	fhirGroup.GET("/ValueSet/$expand", h.ExpandValueSet)
}

// Search handles GET /search/:system?term=... Without a system the whole
// NAMASTE family is searched.
func (h *Handler) Search(c echo.Context) error {
	system := Namaste
	if raw := c.Param("system"); raw != "" {
		cs, err := ParseCodeSystem(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		system = cs
	}

	query := c.QueryParam("term")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'term' is required")
	}

	results, err := h.svc.Search(c.Request().Context(), system, query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, results)
}

// FHIRLookup handles GET/POST /fhir/CodeSystem/$lookup. POST accepts a
// Parameters body; query parameters win when both are present.
func (h *Handler) FHIRLookup(c echo.Context) error {
	system, code := c.QueryParam("system"), c.QueryParam("code")

	if c.Request().Method == http.MethodPost && (system == "" || code == "") {
		var params fhir.Parameters
		if err := json.NewDecoder(c.Request().Body).Decode(&params); err != nil {
			return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome("error", fhir.IssueTypeInvalid, "invalid Parameters body: "+err.Error()))
		}
		for _, p := range params.Parameter {
			v := p.ValueString
			if v == "" {
				v = p.ValueCode
			}
			switch {
			case p.Name == "system" && system == "":
				system = v
			case p.Name == "code" && code == "":
				code = v
			}
		}
	}

	if system == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredOutcome("system"))
	}
	if code == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredOutcome("code"))
	}
	cs, err := ParseCodeSystem(system)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}

	params, err := h.svc.Lookup(c.Request().Context(), cs, code)
	if err != nil {
		return lookupError(c, err, "CodeSystem", code)
	}
	return c.JSON(http.StatusOK, params)
}

// FHIRCodeSystem handles GET /fhir/CodeSystem/:system
func (h *Handler) FHIRCodeSystem(c echo.Context) error {
	cs, err := ParseCodeSystem(c.Param("system"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("CodeSystem", c.Param("system")))
	}
	res, err := h.svc.CodeSystem(c.Request().Context(), cs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"resourceType": "CodeSystem",
		"id":           string(cs),
		"url":          res.Url,
		"name":         cs.Name(),
		"version":      cs.Version(),
		"status":       "active",
		"content":      "complete",
		"count":        len(res.Concept),
		"concept":      res.Concept,
	})
}

// ExpandValueSet handles GET /fhir/ValueSet/$expand?system=...&filter=...
func (h *Handler) ExpandValueSet(c echo.Context) error {
	system := c.QueryParam("system")
	if system == "" {
		system = c.QueryParam("url")
	}
	if system == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredOutcome("system"))
	}
	cs, err := ParseCodeSystem(system)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}

	count := intParam(c, "count", 100)
	if count > 1000 {
		count = 1000
	}
	offset := intParam(c, "offset", 0)

	exp, err := h.svc.Expand(c.Request().Context(), cs, c.QueryParam("filter"), offset, count)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"resourceType": "ValueSet",
		"url":          exp.ValueSet.Url,
		"status":       "active",
		"expansion": map[string]interface{}{
			"identifier": uuid.New().String(),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"total":      exp.Total,
			"offset":     exp.Offset,
			"contains":   exp.ValueSet.Expansion.Contains,
		},
	})
}

func intParam(c echo.Context, name string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func lookupError(c echo.Context, err error, resourceType, id string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(resourceType, id))
	case errors.Is(err, ErrUnknownSystem):
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	default:
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
}
