package service

import (
	"context"
	"encoding/json"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/scheduler/config"
	"golang-trend-publisher/internal/scheduler/dto"
	"golang-trend-publisher/internal/scheduler/repository"
	"golang-trend-publisher/pkg/logger"
)

// WorkflowRunService defines the interface for reading workflow run history.
type WorkflowRunService interface {
	GetRunByID(ctx context.Context, id string) (*dto.WorkflowRunResponse, error)
	ListRuns(ctx context.Context, query dto.ListRunsQuery) (*dto.WorkflowRunListResponse, error)
}

// NewWorkflowRunService creates a new workflow run service.
func NewWorkflowRunService(cfg *config.Config, runRepo repository.WorkflowRunRepository, logger *logger.Logger) WorkflowRunService {
	return &workflowRunService{
		cfg:     cfg,
		runRepo: runRepo,
		logger:  logger,
	}
}

type workflowRunService struct {
	cfg     *config.Config
	runRepo repository.WorkflowRunRepository
	logger  *logger.Logger
}

// GetRunByID retrieves a workflow run by its ID.
func (s *workflowRunService) GetRunByID(ctx context.Context, id string) (*dto.WorkflowRunResponse, error) {
	run, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to find workflow run", logger.ErrorField(err), logger.StringField("run_id", id))
		return nil, err
	}
	return mapToWorkflowRunResponse(run), nil
}

// ListRuns returns one page of runs, newest first.
func (s *workflowRunService) ListRuns(ctx context.Context, query dto.ListRunsQuery) (*dto.WorkflowRunListResponse, error) {
	limit := query.Limit
	if limit <= 0 || limit > s.cfg.Scheduler.PageLimit*5 {
		limit = s.cfg.Scheduler.PageLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.runRepo.List(ctx, repository.RunFilter{
		Status:  entity.RunStatus(query.Status),
		Trigger: query.Trigger,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		s.logger.Error("Failed to list workflow runs", logger.ErrorField(err))
		return nil, err
	}

	items := make([]*dto.WorkflowRunResponse, 0, len(runs))
	for i := range runs {
		items = append(items, mapToWorkflowRunResponse(&runs[i]))
	}
	return &dto.WorkflowRunListResponse{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// mapToWorkflowRunResponse maps an entity.WorkflowRun to a dto.WorkflowRunResponse.
func mapToWorkflowRunResponse(run *entity.WorkflowRun) *dto.WorkflowRunResponse {
	opts := run.Options.Data()
	resp := &dto.WorkflowRunResponse{
		ID:      run.ID,
		Trigger: run.Trigger,
		Status:  string(run.Status),
		State:   run.State,
		Success: run.Success,
		Options: dto.RunOptionsResponse{
			ClusteringThreshold: opts.ClusteringThreshold,
			Hours:               opts.Hours,
			MaxItems:            opts.MaxItems,
		},
		Error:    run.Error.String,
		QueuedAt: run.QueuedAt,
	}
	if len(run.Steps) > 0 {
		resp.Steps = json.RawMessage(run.Steps)
	}
	if run.StartedAt.Valid {
		started := run.StartedAt.Time
		resp.StartedAt = &started
	}
	if run.FinishedAt.Valid {
		finished := run.FinishedAt.Time
		resp.FinishedAt = &finished
		if run.StartedAt.Valid {
			resp.Duration = finished.Sub(run.StartedAt.Time).Milliseconds()
		}
	}
	return resp
}
