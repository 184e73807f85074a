package condition

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
	"github.com/ayurfhir/ayurfhir/internal/platform/fhir"
)

// FHIR id datatype
var patientIDRe = regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.GET("/condition/:term_id", h.Generate)
}

// Generate handles GET /fhir/condition/:term_id[?patient=id].
func (h *Handler) Generate(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("term_id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("term_id must be a positive integer"))
	}
	patient := c.QueryParam("patient")
	if patient != "" && !patientIDRe.MatchString(patient) {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("patient must be a FHIR resource id"))
	}

	res, err := h.svc.Build(c.Request().Context(), id, patient)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, res)
	case errors.Is(err, terminology.ErrNotFound):
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Term", c.Param("term_id")))
	default:
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
}
