package taskqueue

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// JobRunner executes one dispatched job and returns a JSON-serializable
// result, generalizing the teacher's Runner interface (which ran exactly
// one kind, "workflow") to any of the four Kind values. publish, when
// non-nil, lets the runner emit intermediate step results as
// "step_result" messages; engineworker.Dispatcher does not call it.
type JobRunner interface {
	Execute(ctx context.Context, kind Kind, endUserID string, payload map[string]any, publish func(ctx context.Context, stepID string, result map[string]any) error) (map[string]any, error)
}

// Producer abstracts the Kafka writer behavior HandleJobMessage needs,
// unchanged from internal/orchestrator/handler.go's Producer.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}
