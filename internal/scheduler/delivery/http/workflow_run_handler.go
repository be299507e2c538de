package http

import (
	"errors"
	"net/http"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/scheduler/dto"
	"golang-trend-publisher/internal/scheduler/repository"
	"golang-trend-publisher/internal/scheduler/service"
	"golang-trend-publisher/pkg/logger"

	"github.com/labstack/echo/v4"
)

// WorkflowRunHandler handles HTTP requests for workflow runs.
type WorkflowRunHandler struct {
	triggerService service.TriggerService
	runService     service.WorkflowRunService
	logger         *logger.Logger
}

// NewWorkflowRunHandler creates a new WorkflowRunHandler.
func NewWorkflowRunHandler(triggerService service.TriggerService, runService service.WorkflowRunService, logger *logger.Logger) *WorkflowRunHandler {
	return &WorkflowRunHandler{triggerService: triggerService, runService: runService, logger: logger}
}

// RegisterRoutes registers the workflow run routes to the Echo group.
func (h *WorkflowRunHandler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.TriggerRun)
	g.GET("", h.ListRuns)
	g.GET("/:id", h.GetRunByID)
}

// TriggerRun godoc
// @Summary Trigger a workflow run
// @Description Queue a pipeline run for the execution service. Omitted overrides use the configured defaults.
// @Tags workflow
// @Accept  json
// @Produce  json
// @Param   run  body    dto.TriggerRunRequest   false    "Run overrides"
// @Success 202 {object} dto.TriggerRunResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /workflow/runs [post]
func (h *WorkflowRunHandler) TriggerRun(c echo.Context) error {
	var req dto.TriggerRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request payload"})
	}

	resp, err := h.triggerService.Trigger(c.Request().Context(), entity.TriggerHTTP, req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOptions) {
			return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to queue workflow run"})
	}

	return c.JSON(http.StatusAccepted, resp)
}

// ListRuns godoc
// @Summary List workflow runs
// @Description List workflow runs, newest first
// @Tags workflow
// @Produce  json
// @Param   status   query   string  false  "Filter by status (queued, running, succeeded, failed)"
// @Param   trigger  query   string  false  "Filter by trigger (cron, http, cli)"
// @Param   limit    query   int     false  "Page size"
// @Param   offset   query   int     false  "Page offset"
// @Success 200 {object} dto.WorkflowRunListResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /workflow/runs [get]
func (h *WorkflowRunHandler) ListRuns(c echo.Context) error {
	var query dto.ListRunsQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &query); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
	}

	runs, err := h.runService.ListRuns(c.Request().Context(), query)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list workflow runs"})
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRunByID godoc
// @Summary Get a workflow run by ID
// @Description Get a single workflow run, including its step report once finished
// @Tags workflow
// @Produce  json
// @Param   id  path    string true    "Workflow run ID"
// @Success 200 {object} dto.WorkflowRunResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /workflow/runs/{id} [get]
func (h *WorkflowRunHandler) GetRunByID(c echo.Context) error {
	run, err := h.runService.GetRunByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Workflow run not found"})
		}
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, run)
}
