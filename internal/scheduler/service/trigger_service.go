package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/scheduler/config"
	"golang-trend-publisher/internal/scheduler/dto"
	"golang-trend-publisher/internal/scheduler/repository"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/tracing"
	"golang-trend-publisher/pkg/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
)

// ErrInvalidOptions marks run overrides that fail validation.
var ErrInvalidOptions = errors.New("invalid run options")

// TriggerService queues workflow runs for the execution service.
type TriggerService interface {
	Trigger(ctx context.Context, trigger string, req dto.TriggerRunRequest) (*dto.TriggerRunResponse, error)
}

// NewTriggerService creates a new trigger service.
func NewTriggerService(cfg *config.Config, runRepo repository.WorkflowRunRepository, publisher repository.TriggerPublisher, log *logger.Logger) TriggerService {
	return &triggerService{
		cfg:       cfg,
		runRepo:   runRepo,
		publisher: publisher,
		logger:    log,
		tracer:    tracing.Tracer("scheduler"),
		now:       utils.TimeNowUTC,
	}
}

type triggerService struct {
	cfg       *config.Config
	runRepo   repository.WorkflowRunRepository
	publisher repository.TriggerPublisher
	logger    *logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Trigger records a queued run and publishes it. A run that cannot be published is marked failed.
func (s *triggerService) Trigger(ctx context.Context, trigger string, req dto.TriggerRunRequest) (*dto.TriggerRunResponse, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.trigger", trace.WithAttributes(attribute.String("run.trigger", trigger)))
	defer span.End()

	if err := s.validate(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	run := &entity.WorkflowRun{
		ID:      uuid.NewString(),
		Trigger: trigger,
		Status:  entity.RunStatusQueued,
		State:   "idle",
		Options: datatypes.NewJSONType(entity.RunOptions{
			ClusteringThreshold: req.ClusteringThreshold,
			Hours:               req.Hours,
			MaxItems:            req.MaxItems,
		}),
		QueuedAt: s.now(),
	}
	span.SetAttributes(attribute.String("run.id", run.ID))

	if err := s.runRepo.Create(ctx, run); err != nil {
		s.logger.Error("Failed to create workflow run", logger.ErrorField(err), logger.StringField("trigger", trigger))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create workflow run: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.cfg.Scheduler.PublishTimeout)
	defer cancel()
	streamID, err := s.publisher.Publish(pubCtx, run)
	if err != nil {
		s.logger.Error("Failed to enqueue workflow run", logger.ErrorField(err), logger.StringField("run_id", run.ID))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errInner := s.runRepo.MarkFailed(context.WithoutCancel(ctx), run.ID, err.Error(), s.now()); errInner != nil {
			s.logger.Error("Failed to mark workflow run failed", logger.ErrorField(errInner), logger.StringField("run_id", run.ID))
		}
		return nil, err
	}

	s.logger.Info("Workflow run queued",
		logger.StringField("run_id", run.ID),
		logger.StringField("trigger", trigger),
		logger.StringField("stream_id", streamID),
	)
	return &dto.TriggerRunResponse{
		ID:       run.ID,
		Status:   string(run.Status),
		StreamID: streamID,
		QueuedAt: run.QueuedAt,
	}, nil
}

func (s *triggerService) validate(req dto.TriggerRunRequest) error {
	if req.ClusteringThreshold < 0 || req.ClusteringThreshold > 1 {
		return fmt.Errorf("%w: clustering_threshold must be in (0, 1]", ErrInvalidOptions)
	}
	if req.Hours < 0 || req.Hours > s.cfg.Scheduler.MaxHours {
		return fmt.Errorf("%w: hours must be between 1 and %d", ErrInvalidOptions, s.cfg.Scheduler.MaxHours)
	}
	if req.MaxItems < 0 || req.MaxItems > s.cfg.Scheduler.MaxMaxItems {
		return fmt.Errorf("%w: max_items must be between 1 and %d", ErrInvalidOptions, s.cfg.Scheduler.MaxMaxItems)
	}
	return nil
}
