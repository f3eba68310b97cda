// Package taskqueue implements C10: durable async job dispatch over
// Kafka with per-end_user_id FIFO ordering and Redis-backed dedupe,
// generalized from internal/orchestrator/{handler.go,kafka.go,
// kafka_admin.go,dedupe.go}'s single-workflow command bus into a
// dispatcher over the four job kinds named in spec §4.10/§2: ingest,
// reflect, forgetting_cycle, cache_rebuild.
package taskqueue

import "time"

// Kind is one of the durable job kinds §4.10 names.
type Kind string

const (
	KindIngest          Kind = "ingest"
	KindReflect         Kind = "reflect"
	KindForgettingCycle Kind = "forgetting_cycle"
	KindCacheRebuild    Kind = "cache_rebuild"
)

// JobEnvelope is the wire shape of one queued job (the teacher's
// CommandEnvelope, with Workflow renamed to Kind and Attrs to Payload).
type JobEnvelope struct {
	TaskID        string         `json:"task_id"`
	CorrelationID string         `json:"correlation_id"`
	EndUserID     string         `json:"end_user_id"`
	Kind          Kind           `json:"kind"`
	Payload       map[string]any `json:"payload,omitempty"`
	ReplyTopic    string         `json:"reply_topic,omitempty"`
}

// JobResult is the wire shape of a job's outcome (§4.10's
// "{task_id, status, result, error, elapsed}"), published on success,
// failure, or DLQ.
type JobResult struct {
	TaskID  string         `json:"task_id"`
	Status  string         `json:"status"` // "success" | "error" | "step_result"
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Elapsed time.Duration  `json:"elapsed,omitempty"`
}
