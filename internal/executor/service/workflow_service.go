package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/cluster"
	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/internal/executor/repository"
	"golang-trend-publisher/internal/executor/source"
	"golang-trend-publisher/pkg/errs"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/telegram"
	"golang-trend-publisher/pkg/tracing"
	"golang-trend-publisher/pkg/utils"
)

const finalizeTimeout = 10 * time.Second

// WorkflowService runs the pipeline end to end and reports on every step.
type WorkflowService interface {
	// Execute always returns a complete report; fatal errors are reflected in it, not returned.
	Execute(ctx context.Context, req dto.RunRequest) *dto.RunReport
}

type workflowService struct {
	cfg       *config.Config
	logger    *logger.Logger
	sources   func() ([]source.Source, error)
	scraper   ScraperService
	trends    TrendService
	market    MarketTrendService
	generator ArticleGeneratorService
	runRepo   repository.WorkflowRunRepository
	notifier  telegram.Notifier
	tracer    trace.Tracer
	now       func() time.Time
}

// NewWorkflowService creates a new WorkflowService. market and notifier may be nil.
func NewWorkflowService(
	cfg *config.Config,
	log *logger.Logger,
	sources func() ([]source.Source, error),
	scraper ScraperService,
	trends TrendService,
	market MarketTrendService,
	generator ArticleGeneratorService,
	runRepo repository.WorkflowRunRepository,
	notifier telegram.Notifier,
) WorkflowService {
	return &workflowService{
		cfg:       cfg,
		logger:    log,
		sources:   sources,
		scraper:   scraper,
		trends:    trends,
		market:    market,
		generator: generator,
		runRepo:   runRepo,
		notifier:  notifier,
		tracer:    tracing.Tracer("workflow"),
		now:       utils.TimeNowUTC,
	}
}

// stageFailure is a fatal error attributed to a step.
type stageFailure struct {
	step string
	err  error
}

func (s *workflowService) Execute(ctx context.Context, req dto.RunRequest) *dto.RunReport {
	startedAt := s.now()
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	report := dto.NewRunReport(runID, startedAt)
	log := s.logger.With(logger.StringField("run_id", runID), logger.StringField("trigger", req.Trigger))

	ctx, span := s.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.trigger", req.Trigger),
	))
	defer span.End()

	opts := s.resolveOptions(req.Options)
	run, err := s.beginRun(ctx, runID, req.Trigger, opts, startedAt)
	if err != nil {
		// Without a run record there is nothing to finalize.
		s.fail(report, "", errs.Storage("begin run", err))
		report.FinishedAt = s.now()
		log.Error("Failed to start workflow run", logger.ErrorField(err))
		span.SetStatus(codes.Error, report.Error)
		return report
	}
	log.Info("Workflow run started",
		logger.Float64Field("threshold", opts.ClusteringThreshold),
		logger.IntField("hours", opts.Hours),
		logger.IntField("max_items", opts.MaxItems),
	)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Executor.RunTimeout)
	defer cancel()

	if failure := s.runStages(runCtx, report, opts, log); failure != nil {
		s.fail(report, failure.step, failure.err)
		span.RecordError(failure.err)
		span.SetStatus(codes.Error, report.Error)
		log.Error("Workflow run failed", logger.StringField("step", failure.step), logger.ErrorField(failure.err))
	} else {
		report.State = dto.StateFinalizing
	}

	report.FinishedAt = s.now()
	report.Timestamp = report.FinishedAt
	if report.State != dto.StateFailed {
		report.Success = true
		report.State = dto.StateDone
	}
	s.finalizeRun(ctx, run, report, log)
	s.notify(ctx, report, log)

	log.Info("Workflow run finished",
		logger.BoolField("success", report.Success),
		logger.StringField("state", report.State),
		logger.DurationField("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

func (s *workflowService) runStages(ctx context.Context, report *dto.RunReport, opts entity.RunOptions, log *logger.Logger) *stageFailure {
	sources, failure := s.preflight(opts)
	if failure != nil {
		return failure
	}

	report.State = dto.StateScraping
	if err := s.runScrape(ctx, report, sources, opts); err != nil {
		return &stageFailure{step: dto.StepScrape, err: err}
	}

	report.State = dto.StateDetectingTrends
	trendRes, marketRes, failure := s.runTrendBranches(ctx, report, opts)
	if failure != nil {
		return failure
	}

	report.State = dto.StateGenerating
	clusters := trendRes.Clusters
	if marketRes != nil {
		clusters = append(clusters, marketRes.Clusters...)
	}
	if err := s.runGenerate(ctx, report, clusters); err != nil {
		return &stageFailure{step: dto.StepGenerate, err: err}
	}
	log.Debug("All stages completed")
	return nil
}

// preflight validates per-run options and every stage's configuration before any work starts.
func (s *workflowService) preflight(opts entity.RunOptions) ([]source.Source, *stageFailure) {
	if opts.MaxItems <= 0 {
		return nil, &stageFailure{step: dto.StepScrape, err: &errs.ConfigurationError{Key: "max_items", Reason: "must be positive"}}
	}
	sources, err := s.sources()
	if err != nil {
		return nil, &stageFailure{step: dto.StepScrape, err: &errs.ConfigurationError{Key: "scraper.sources_file", Reason: err.Error()}}
	}
	if err := s.scraper.Validate(sources); err != nil {
		return nil, &stageFailure{step: dto.StepScrape, err: err}
	}

	if opts.ClusteringThreshold <= 0 || opts.ClusteringThreshold > 1 {
		return nil, &stageFailure{step: dto.StepTrends, err: &errs.ConfigurationError{Key: "clustering_threshold", Reason: "must be in (0, 1]"}}
	}
	if opts.Hours <= 0 {
		return nil, &stageFailure{step: dto.StepTrends, err: &errs.ConfigurationError{Key: "hours", Reason: "must be positive"}}
	}
	if err := s.trends.Validate(); err != nil {
		return nil, &stageFailure{step: dto.StepTrends, err: err}
	}

	if err := s.generator.Validate(); err != nil {
		return nil, &stageFailure{step: dto.StepGenerate, err: err}
	}
	return sources, nil
}

func (s *workflowService) runScrape(ctx context.Context, report *dto.RunReport, sources []source.Source, opts entity.RunOptions) error {
	ctx, span := s.tracer.Start(ctx, "workflow.scrape")
	defer span.End()
	start := time.Now()

	res, err := s.scraper.Scrape(ctx, sources, opts.MaxItems)
	step := report.Steps[dto.StepScrape]
	step.DurationMs = time.Since(start).Milliseconds()
	if res != nil {
		step.Counts = map[string]int{
			"sources":        res.Sources,
			"sources_failed": res.SourcesFailed,
			"seen":           res.Seen,
			"new":            res.New,
		}
		for _, e := range res.Errors {
			step.Errors = append(step.Errors, e.Error())
		}
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	step.Status = res.Status()
	span.SetAttributes(attribute.Int("scrape.seen", res.Seen), attribute.Int("scrape.new", res.New))
	return nil
}

// runTrendBranches runs embedding clustering and market analysis side by side. Both always
// complete; the first fatal error, trends first, is returned afterwards.
func (s *workflowService) runTrendBranches(ctx context.Context, report *dto.RunReport, opts entity.RunOptions) (*TrendResult, *MarketTrendResult, *stageFailure) {
	var (
		trendRes  *TrendResult
		marketRes *MarketTrendResult
		trendErr  error
		marketErr error
		g         errgroup.Group
	)

	g.Go(func() error {
		trendRes, trendErr = s.runTrends(ctx, report.Steps[dto.StepTrends], opts)
		return nil
	})
	g.Go(func() error {
		marketRes, marketErr = s.runMarket(ctx, report.Steps[dto.StepMarketTrends], opts)
		return nil
	})
	_ = g.Wait()

	if trendErr != nil {
		return nil, nil, &stageFailure{step: dto.StepTrends, err: trendErr}
	}
	if marketErr != nil {
		return nil, nil, &stageFailure{step: dto.StepMarketTrends, err: marketErr}
	}
	return trendRes, marketRes, nil
}

func (s *workflowService) runTrends(ctx context.Context, step *dto.StepReport, opts entity.RunOptions) (res *TrendResult, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow.trends")
	defer span.End()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = utils.RecoverError(r)
		}
		step.DurationMs = time.Since(start).Milliseconds()
	}()

	res, err = s.trends.DetectTrends(ctx, opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	step.Counts = map[string]int{
		"items":              res.Items,
		"truncated":          res.Truncated,
		"embedded":           res.Embedded,
		"embedding_failures": res.EmbeddingFailures,
		"dimension_mismatch": res.DimensionMismatch,
		"clusters":           len(res.Clusters),
	}
	step.Errors = append(step.Errors, res.Errors...)
	step.Status = dto.StepStatusSuccess
	if res.Failed() {
		step.Status = dto.StepStatusFailed
	}
	span.SetAttributes(attribute.Int("trends.clusters", len(res.Clusters)))
	return res, nil
}

func (s *workflowService) runMarket(ctx context.Context, step *dto.StepReport, opts entity.RunOptions) (res *MarketTrendResult, err error) {
	if s.market == nil || !s.cfg.Market.Enabled {
		step.Status = dto.StepStatusSkipped
		return nil, nil
	}
	ctx, span := s.tracer.Start(ctx, "workflow.market_trends")
	defer span.End()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = utils.RecoverError(r)
		}
		step.DurationMs = time.Since(start).Milliseconds()
	}()

	res, err = s.market.Analyze(ctx, opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	step.Counts = map[string]int{
		"items":   res.Items,
		"matched": res.Matched,
		"trends":  res.Trends,
	}
	step.Errors = append(step.Errors, res.Errors...)
	step.Status = dto.StepStatusSuccess
	return res, nil
}

func (s *workflowService) runGenerate(ctx context.Context, report *dto.RunReport, clusters []cluster.TopicCluster) error {
	ctx, span := s.tracer.Start(ctx, "workflow.generate")
	defer span.End()
	start := time.Now()

	res, err := s.generator.Generate(ctx, clusters)
	step := report.Steps[dto.StepGenerate]
	step.DurationMs = time.Since(start).Milliseconds()
	if res != nil {
		step.Counts = map[string]int{
			"considered": res.Considered,
			"generated":  res.Generated,
			"skipped":    res.Skipped,
			"rejected":   res.Rejected,
			"errors":     res.Errored,
		}
		step.Errors = append(step.Errors, res.Errors...)
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	step.Status = res.Status()
	span.SetAttributes(attribute.Int("generate.generated", res.Generated))
	return nil
}

// fail marks step fatal and the run failed. Steps that never ran keep not_executed.
func (s *workflowService) fail(report *dto.RunReport, step string, err error) {
	report.Success = false
	report.State = dto.StateFailed
	report.Error = err.Error()
	report.FailedStep = step
	if st, ok := report.Steps[step]; ok {
		st.Status = dto.StepStatusFatal
		st.Errors = append(st.Errors, err.Error())
	}
}

func (s *workflowService) resolveOptions(o entity.RunOptions) entity.RunOptions {
	if o.ClusteringThreshold == 0 {
		o.ClusteringThreshold = s.cfg.Trend.ClusteringThreshold
	}
	if o.Hours == 0 {
		o.Hours = s.cfg.Trend.Hours
	}
	if o.MaxItems == 0 {
		o.MaxItems = s.cfg.Scraper.MaxItems
	}
	return o
}

// beginRun adopts the queued run created by the scheduler, or records a new one.
func (s *workflowService) beginRun(ctx context.Context, runID, trigger string, opts entity.RunOptions, startedAt time.Time) (*entity.WorkflowRun, error) {
	run, err := s.runRepo.FindByID(ctx, runID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		run = &entity.WorkflowRun{
			ID:       runID,
			Trigger:  trigger,
			Status:   entity.RunStatusQueued,
			State:    dto.StateIdle,
			Options:  datatypes.NewJSONType(opts),
			QueuedAt: startedAt,
		}
		if err := s.runRepo.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to find run: %w", err)
	}

	if err := s.runRepo.MarkStarted(ctx, runID, startedAt); err != nil {
		return nil, fmt.Errorf("failed to mark run started: %w", err)
	}
	run.Status = entity.RunStatusRunning
	run.StartedAt = sql.NullTime{Time: startedAt, Valid: true}
	return run, nil
}

// finalizeRun persists the terminal report. It runs on a fresh deadline so a timed-out run is
// still recorded.
func (s *workflowService) finalizeRun(ctx context.Context, run *entity.WorkflowRun, report *dto.RunReport, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	steps, err := json.Marshal(report.Steps)
	if err != nil {
		log.Error("Failed to marshal step reports", logger.ErrorField(err))
		steps = []byte("{}")
	}

	run.State = report.State
	run.Success = report.Success
	run.Steps = datatypes.JSON(steps)
	run.FinishedAt = sql.NullTime{Time: report.FinishedAt, Valid: true}
	run.Status = entity.RunStatusSucceeded
	if !report.Success {
		run.Status = entity.RunStatusFailed
		run.Error = sql.NullString{String: report.Error, Valid: report.Error != ""}
	}

	if err := s.runRepo.Finalize(ctx, run); err != nil {
		log.Error("Failed to finalize workflow run", logger.ErrorField(err))
	}
}

func (s *workflowService) notify(ctx context.Context, report *dto.RunReport, log *logger.Logger) {
	if s.notifier == nil || !s.cfg.Executor.NotifyTelegram {
		return
	}
	// The summary is still sent when the run ended because its context was cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telegram.SendTimeout)
	defer cancel()
	if err := s.notifier.SendMessage(ctx, telegram.FormatRunReportMessage(report)); err != nil {
		log.Warn("Failed to send run summary", logger.ErrorField(err))
	}
}
