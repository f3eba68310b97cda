package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Submit publishes one job envelope to topic, keyed by EndUserID so
// Kafka's partitioner routes every job for the same user to the same
// partition — the mechanism that gives §5's "per end_user_id ingestion
// is serialized via the queue (FIFO)" guarantee without an in-process
// lock map. A blank TaskID is filled in with a fresh uuid so callers
// submitting fire-and-forget jobs (periodic sweeps, not a specific
// request) never collide on dedupe keys.
func Submit(ctx context.Context, producer Producer, topic string, env JobEnvelope) error {
	if env.TaskID == "" {
		env.TaskID = uuid.NewString()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal job envelope: %w", err)
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(env.EndUserID),
		Value: payload,
	})
}
