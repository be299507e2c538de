package common

const (
	RedisStreamWorkflowTrigger = "workflow.run.trigger"

	RedisStreamGroup    = "executor-group"
	RedisStreamConsumer = "executor-consumer"

	// RedisStreamPayloadField is the stream message field carrying the JSON trigger.
	RedisStreamPayloadField = "payload"
)
