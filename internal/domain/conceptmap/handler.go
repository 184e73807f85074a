package conceptmap

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
	"github.com/ayurfhir/ayurfhir/internal/platform/fhir"
	"github.com/ayurfhir/ayurfhir/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires mapping lookups on root, curation on api and the
// translate operation on fhirGroup. write guards the mutating routes.
func (h *Handler) RegisterRoutes(root, api, fhirGroup *echo.Group, write echo.MiddlewareFunc) {
	root.GET("/map", h.Lookup)
	root.GET("/map/reverse/:code", h.Reverse)

	api.GET("/mappings", h.List)
	api.GET("/mappings/count", h.Count)
	api.GET("/mappings/:id", h.Get)
	api.PUT("/mappings/:id", h.Update, write)
	api.DELETE("/mappings/:id", h.Delete, write)

	fhirGroup.GET("/ConceptMap/$translate", h.Translate)
}

// -- Lookup --

// Lookup handles GET /map?namaste_code=...&namaste_system=...
func (h *Handler) Lookup(c echo.Context) error {
	code := c.QueryParam("namaste_code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'namaste_code' is required")
	}
	system := terminology.Namaste
	if raw := c.QueryParam("namaste_system"); raw != "" {
		cs, err := terminology.ParseCodeSystem(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		system = cs
	}

	m, err := h.svc.Lookup(c.Request().Context(), code, system)
	if err != nil {
		return restError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Reverse(c echo.Context) error {
	code := c.Param("code")
	terms, err := h.svc.Reverse(c.Request().Context(), code)
	if err != nil {
		return restError(err)
	}
	if len(terms) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no mappings target code "+code)
	}
	return c.JSON(http.StatusOK, terms)
}

// -- Curation --

func (h *Handler) List(c echo.Context) error {
	f := filterFromQuery(c)
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	items, err := h.svc.List(ctx, f, pg.Limit, pg.Offset)
	if err != nil {
		return restError(err)
	}
	total, err := h.svc.Count(ctx, f)
	if err != nil {
		return restError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Count(c echo.Context) error {
	n, err := h.svc.Count(c.Request().Context(), filterFromQuery(c))
	if err != nil {
		return restError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	m, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return restError(err)
	}
	return c.JSON(http.StatusOK, m)
}

type updateRequest struct {
	Relationship string `json:"map_relationship"`
	Status       string `json:"status"`
}

func (h *Handler) Update(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.Update(c.Request().Context(), id, req.Relationship, req.Status)
	if err != nil {
		return restError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return restError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- FHIR --

// Translate handles GET /fhir/ConceptMap/$translate?system=...&code=...
func (h *Handler) Translate(c echo.Context) error {
	rawSystem, code := c.QueryParam("system"), c.QueryParam("code")
	if rawSystem == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredOutcome("system"))
	}
	if code == "" {
		return c.JSON(http.StatusBadRequest, fhir.RequiredOutcome("code"))
	}
	system, err := terminology.ParseCodeSystem(rawSystem)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	}

	doc, err := h.svc.Translate(c.Request().Context(), system, code)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, doc)
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("ConceptMap", rawSystem+"|"+code))
	case errors.Is(err, terminology.ErrUnknownSystem):
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	default:
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
}

func filterFromQuery(c echo.Context) Filter {
	return Filter{Status: Status(c.QueryParam("status")), Search: c.QueryParam("search")}
}

func idParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func restError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidRelationship), errors.Is(err, terminology.ErrUnknownSystem):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
