package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/pkg/common"

	"github.com/redis/go-redis/v9"
)

// TriggerPublisher hands a queued run to the execution service.
type TriggerPublisher interface {
	Publish(ctx context.Context, run *entity.WorkflowRun) (string, error)
}

// NewRedisTriggerPublisher creates a publisher writing to the workflow trigger stream.
func NewRedisTriggerPublisher(client *redis.Client, maxLen int64) TriggerPublisher {
	return &redisTriggerPublisher{client: client, maxLen: maxLen}
}

type redisTriggerPublisher struct {
	client *redis.Client
	maxLen int64
}

// Publish appends the run to the stream and returns the message ID.
func (p *redisTriggerPublisher) Publish(ctx context.Context, run *entity.WorkflowRun) (string, error) {
	payload, err := json.Marshal(run)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: common.RedisStreamWorkflowTrigger,
		Values: map[string]interface{}{common.RedisStreamPayloadField: string(payload)},
		MaxLen: p.maxLen,
		Approx: true,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue run %s: %w", run.ID, err)
	}
	return id, nil
}
