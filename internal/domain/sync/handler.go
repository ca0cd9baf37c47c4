package sync

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehrsync/ehrsync/internal/domain/connection"
	"github.com/ehrsync/ehrsync/internal/domain/provider"
	"github.com/ehrsync/ehrsync/pkg/pagination"
)

type Handler struct {
	coordinator *Coordinator
	pipeline    *Pipeline
	jobs        Repository
	connections *connection.Service
}

func NewHandler(coordinator *Coordinator, pipeline *Pipeline, jobs Repository, connections *connection.Service) *Handler {
	return &Handler{
		coordinator: coordinator,
		pipeline:    pipeline,
		jobs:        jobs,
		connections: connections,
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/connections/:id/export", h.Kickoff)
	api.GET("/connections/:id/jobs", h.ListJobs)
	api.POST("/connections/:id/resources/:type", h.SyncResourceType)
	api.GET("/jobs/:id", h.GetJob)
	api.POST("/jobs/:id/poll", h.Poll)
	api.POST("/jobs/:id/ingest", h.Ingest)
}

type kickoffRequest struct {
	ExportType    string     `json:"export_type"`
	ResourceTypes []string   `json:"resource_types,omitempty"`
	Since         *time.Time `json:"since,omitempty"`
}

func (h *Handler) Kickoff(c echo.Context) error {
	conn, err := h.connectionFromParam(c)
	if err != nil {
		return err
	}
	var req kickoffRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	exportType := provider.ExportType(req.ExportType)
	if exportType == "" {
		exportType = provider.ExportPatient
	}

	job, err := h.coordinator.Kickoff(c.Request().Context(), conn, exportType, req.ResourceTypes, req.Since)
	if err != nil {
		var kerr *KickoffError
		if errors.As(err, &kerr) {
			if errors.Is(err, ErrCredentialExpired) {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, job)
}

func (h *Handler) GetJob(c echo.Context) error {
	job, err := h.jobFromParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, job)
}

func (h *Handler) ListJobs(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	jobs, total, err := h.jobs.ListByConnection(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(jobs, total, pg.Limit, pg.Offset))
}

// Poll runs one status poll immediately instead of waiting for the
// scheduler tick. The response is the job after the poll was applied.
func (h *Handler) Poll(c echo.Context) error {
	job, err := h.jobFromParam(c)
	if err != nil {
		return err
	}
	conn, err := h.connections.Get(c.Request().Context(), job.ConnectionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "connection not found")
	}
	job, err = h.coordinator.PollOnce(c.Request().Context(), conn, job)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, job)
}

func (h *Handler) Ingest(c echo.Context) error {
	job, err := h.jobFromParam(c)
	if err != nil {
		return err
	}
	conn, err := h.connections.Get(c.Request().Context(), job.ConnectionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "connection not found")
	}
	summary, err := h.pipeline.Process(c.Request().Context(), conn, job)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) SyncResourceType(c echo.Context) error {
	conn, err := h.connectionFromParam(c)
	if err != nil {
		return err
	}
	summary, err := h.pipeline.SyncResourceType(c.Request().Context(), conn, c.Param("type"))
	if err != nil {
		if errors.Is(err, ErrUnsupportedResourceType) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) connectionFromParam(c echo.Context) (*connection.Connection, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	conn, err := h.connections.Get(c.Request().Context(), id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "connection not found")
	}
	return conn, nil
}

func (h *Handler) jobFromParam(c echo.Context) (*BulkExportJob, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	job, err := h.jobs.GetByID(c.Request().Context(), id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return job, nil
}
