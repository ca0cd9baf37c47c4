package connection

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehrsync/ehrsync/internal/domain/provider"
	"github.com/ehrsync/ehrsync/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/connections", h.Create)
	api.GET("/connections", h.List)
	api.GET("/connections/:id", h.Get)
	api.PUT("/connections/:id/token", h.UpdateToken)
	api.DELETE("/connections/:id", h.Delete)
	api.GET("/connections/:id/credential", h.CredentialStatus)
}

// createRequest carries the bearer token explicitly; the Connection model
// never renders it back out.
type createRequest struct {
	Vendor      string  `json:"vendor"`
	BaseURL     string  `json:"base_url"`
	BearerToken string  `json:"bearer_token"`
	PatientID   string  `json:"patient_id"`
	TenantID    *string `json:"tenant_id,omitempty"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	conn := &Connection{
		Vendor:      provider.Vendor(req.Vendor),
		BaseURL:     req.BaseURL,
		BearerToken: req.BearerToken,
		PatientID:   req.PatientID,
		TenantID:    req.TenantID,
	}
	if err := h.svc.Create(c.Request().Context(), conn); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, conn)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	conn, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "connection not found")
	}
	return c.JSON(http.StatusOK, conn)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	conns, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(conns, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateToken(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		BearerToken string `json:"bearer_token"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateToken(c.Request().Context(), id, body.BearerToken); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "connection not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CredentialStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	status, err := h.svc.CredentialStatus(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "connection not found")
	}
	return c.JSON(http.StatusOK, status)
}
