package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/internal/executor/repository"
	"golang-trend-publisher/pkg/common"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/telegram"
	"golang-trend-publisher/pkg/utils"
)

// ExecutorService consumes workflow triggers from the Redis stream.
type ExecutorService interface {
	ProcessTask(ctx context.Context)
	ProcessRetries(ctx context.Context)
}

// NewExecutorService creates a new ExecutorService. notifier may be nil.
func NewExecutorService(
	cfg *config.Config,
	redisClient *redis.Client,
	runRepo repository.WorkflowRunRepository,
	workflow WorkflowService,
	notifier telegram.Notifier,
	log *logger.Logger,
) ExecutorService {
	return &executorService{
		cfg:         cfg,
		redisClient: redisClient,
		runRepo:     runRepo,
		workflow:    workflow,
		notifier:    notifier,
		logger:      log,
	}
}

type executorService struct {
	cfg         *config.Config
	redisClient *redis.Client
	runRepo     repository.WorkflowRunRepository
	workflow    WorkflowService
	notifier    telegram.Notifier
	logger      *logger.Logger
}

// ProcessTask dequeues and executes a single workflow trigger.
func (s *executorService) ProcessTask(ctx context.Context) {
	streams, err := s.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer,
		Streams:  []string{common.RedisStreamWorkflowTrigger, ">"},
		Count:    1,
		Block:    s.cfg.Executor.RedisStreamWorkflowBlock,
	}).Result()
	if err != nil {
		// Idle reads and shutdown are expected.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return
		}
		s.logger.Error("Failed to read from stream", logger.ErrorField(err))
		return
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return
	}
	message := streams[0].Messages[0]

	run, err := decodeRunMessage(message)
	if err != nil {
		s.logger.Error("Failed to decode workflow trigger", logger.ErrorField(err), logger.StringField("message_id", message.ID))
		// A malformed trigger will never succeed.
		s.ackNDel(ctx, message.ID)
		return
	}

	s.execute(ctx, run, message.ID)
}

// ProcessRetries reclaims one trigger left pending by a crashed consumer and runs it again, or
// gives up once it exceeded the retry limit.
func (s *executorService) ProcessRetries(ctx context.Context) {
	msgs, _, err := s.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   common.RedisStreamWorkflowTrigger,
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer + "-retry",
		MinIdle:  s.cfg.Executor.RedisStreamWorkflowMaxIdleDuration,
		Start:    "0",
		Count:    1,
	}).Result()
	if err != nil {
		s.logger.Error("Failed to claim workflow trigger on retry", logger.ErrorField(err))
		return
	}
	if len(msgs) == 0 {
		s.logger.Debug("Retry no pending messages found", logger.StringField("stream", common.RedisStreamWorkflowTrigger))
		return
	}
	msg := msgs[0]

	pendingInfo, err := s.redisClient.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: common.RedisStreamWorkflowTrigger,
		Group:  common.RedisStreamGroup,
		Start:  msg.ID,
		End:    msg.ID,
		Count:  1,
	}).Result()
	if err != nil {
		s.logger.Error("Failed to get pending info", logger.ErrorField(err))
		return
	}
	if len(pendingInfo) == 0 {
		s.logger.Warn("pending msg not found, but exist on xautoclaim", logger.StringField("message_id", msg.ID))
		return
	}

	run, err := decodeRunMessage(msg)
	if err != nil {
		s.logger.Error("Failed to decode workflow trigger", logger.ErrorField(err), logger.StringField("message_id", msg.ID))
		s.ackNDel(ctx, msg.ID)
		return
	}

	if stored, err := s.runRepo.FindByID(ctx, run.ID); err == nil && stored.FinishedAt.Valid {
		// Finished before the ack was lost.
		s.ackNDel(ctx, msg.ID)
		return
	}

	if pendingInfo[0].RetryCount >= int64(s.cfg.Executor.RedisStreamWorkflowMaxRetry) {
		s.logger.Error("pending msg retry count exceeded",
			logger.StringField("message_id", msg.ID),
			logger.StringField("run_id", run.ID),
			logger.IntField("retry_count", int(pendingInfo[0].RetryCount)),
			logger.IntField("max_retry", s.cfg.Executor.RedisStreamWorkflowMaxRetry),
		)
		s.abandon(ctx, run, int(pendingInfo[0].RetryCount))
		s.ackNDel(ctx, msg.ID)
		return
	}

	s.logger.Info("Retrying workflow run", logger.StringField("run_id", run.ID), logger.IntField("retry_count", int(pendingInfo[0].RetryCount)))
	s.execute(ctx, run, msg.ID)
}

func (s *executorService) execute(ctx context.Context, run *entity.WorkflowRun, messageID string) {
	report := s.workflow.Execute(ctx, dto.RunRequest{
		RunID:   run.ID,
		Trigger: run.Trigger,
		Options: run.Options.Data(),
	})
	// A completed report, failed or not, is final. Only a crash leaves the trigger pending.
	s.ackNDel(ctx, messageID)
	s.logger.Info("Workflow trigger processed",
		logger.StringField("run_id", report.RunID),
		logger.BoolField("success", report.Success),
		logger.StringField("message_id", messageID),
	)
}

// abandon finalizes a run that will not be retried again.
func (s *executorService) abandon(ctx context.Context, run *entity.WorkflowRun, retries int) {
	reason := fmt.Sprintf("retry count exceeded after %d attempts", retries)
	now := utils.TimeNowUTC()
	run.Status = entity.RunStatusFailed
	run.State = dto.StateFailed
	run.Success = false
	run.Error = sql.NullString{String: reason, Valid: true}
	run.FinishedAt = sql.NullTime{Time: now, Valid: true}
	if err := s.runRepo.Finalize(ctx, run); err != nil && !errors.Is(err, repository.ErrRunFinalized) {
		s.logger.Error("Failed to finalize abandoned run", logger.ErrorField(err), logger.StringField("run_id", run.ID))
	}

	if s.notifier == nil {
		return
	}
	msg := telegram.FormatErrorAlertMessage(now, "Workflow retry exceeded", reason, "run "+run.ID)
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telegram.SendTimeout)
	defer cancel()
	if err := s.notifier.SendMessage(sendCtx, msg); err != nil {
		s.logger.Error("Failed to send telegram message retry exceeded", logger.ErrorField(err), logger.StringField("run_id", run.ID))
	}
}

func (s *executorService) ackNDel(ctx context.Context, messageID string) {
	// The run is already recorded; the ack must survive a cancelled consumer context.
	ctx = context.WithoutCancel(ctx)
	if err := s.redisClient.XAck(ctx, common.RedisStreamWorkflowTrigger, common.RedisStreamGroup, messageID).Err(); err != nil {
		s.logger.Error("Failed to acknowledge workflow trigger", logger.ErrorField(err), logger.StringField("message_id", messageID))
		return
	}
	if err := s.redisClient.XDel(ctx, common.RedisStreamWorkflowTrigger, messageID).Err(); err != nil {
		s.logger.Error("Failed to delete workflow trigger", logger.ErrorField(err), logger.StringField("message_id", messageID))
	}
}

func decodeRunMessage(msg redis.XMessage) (*entity.WorkflowRun, error) {
	payload, ok := msg.Values[common.RedisStreamPayloadField].(string)
	if !ok {
		return nil, fmt.Errorf("field %q not found or not a string", common.RedisStreamPayloadField)
	}
	var run entity.WorkflowRun
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	if run.ID == "" {
		return nil, errors.New("run id is empty")
	}
	if run.Trigger == "" {
		run.Trigger = entity.TriggerCron
	}
	return &run, nil
}
