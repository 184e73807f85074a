package bundle

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	rec Recorder
	now func() time.Time
}

func NewHandler(rec Recorder) *Handler {
	return &Handler{rec: rec, now: time.Now}
}

// RegisterRoutes mounts POST /bundle behind auth.
func (h *Handler) RegisterRoutes(root *echo.Group, auth echo.MiddlewareFunc) {
	root.POST("/bundle", h.Ingest, auth)
}

// Ingest handles POST /bundle. Any JSON object is accepted.
func (h *Handler) Ingest(c echo.Context) error {
	var body map[string]interface{}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be a JSON object")
	}
	if body == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be a JSON object")
	}

	principal, _ := c.Get("principal").(string)
	requestID, _ := c.Get("request_id").(string)
	a := newAudit(h.now(), principal, requestID, body)
	if err := h.rec.Record(c.Request().Context(), a); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "audit log unavailable")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":   "success",
		"message":  "Bundle received and logged.",
		"audit_id": a.ID,
	})
}
