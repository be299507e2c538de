package service

import (
	"context"
	"fmt"
	"time"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/scheduler/config"
	"golang-trend-publisher/internal/scheduler/dto"
	"golang-trend-publisher/pkg/logger"

	"github.com/robfig/cron/v3"
)

// SchedulerService defines the interface for the cron trigger.
type SchedulerService interface {
	Start(ctx context.Context) error
	Stop()
	Fire(ctx context.Context)
}

// NewSchedulerService creates a new scheduler service.
func NewSchedulerService(cfg *config.Config, triggers TriggerService, logger *logger.Logger) SchedulerService {
	return &schedulerService{
		cfg:        cfg,
		triggers:   triggers,
		logger:     logger,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

type schedulerService struct {
	cfg        *config.Config
	triggers   TriggerService
	logger     *logger.Logger
	cronParser cron.Parser
	cron       *cron.Cron
}

// Start registers the workflow cron entry. It returns once the cron runner is started.
func (s *schedulerService) Start(ctx context.Context) error {
	if !s.cfg.Scheduler.Enabled {
		s.logger.Info("Cron trigger disabled")
		return nil
	}

	schedule, err := s.cronParser.Parse(s.cfg.Scheduler.Cron)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.cfg.Scheduler.Cron, err)
	}

	s.cron = cron.New(cron.WithParser(s.cronParser), cron.WithChain(cron.Recover(cronLogger{s.logger})))
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.Fire(ctx) }))
	s.cron.Start()

	s.logger.Info("Cron trigger started",
		logger.StringField("cron", s.cfg.Scheduler.Cron),
		logger.Field("next_run", schedule.Next(time.Now())),
	)

	if s.cfg.Scheduler.RunOnStart {
		go s.Fire(ctx)
	}
	return nil
}

// Stop halts the cron runner and waits for a running trigger to return.
func (s *schedulerService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Cron trigger stopped")
}

// Fire queues one cron-triggered run.
func (s *schedulerService) Fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.triggers.Trigger(ctx, entity.TriggerCron, dto.TriggerRunRequest{}); err != nil {
		s.logger.Error("Cron trigger failed", logger.ErrorField(err))
	}
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	logger *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, logger.Field("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, logger.ErrorField(err), logger.Field("details", keysAndValues))
}
