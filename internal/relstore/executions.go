package relstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/memorybear/memoryengine/internal/taskqueue"
	"github.com/memorybear/memoryengine/internal/workflow"
	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

const schemaTaskExecutions = `
CREATE TABLE IF NOT EXISTS task_executions (
    task_id        TEXT PRIMARY KEY,
    correlation_id TEXT NOT NULL,
    end_user_id    TEXT NOT NULL,
    kind           TEXT NOT NULL,
    status         TEXT NOT NULL,
    result         JSONB,
    error          TEXT,
    elapsed_ms     BIGINT,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_task_executions_end_user ON task_executions (end_user_id, updated_at DESC);
`

const schemaWorkflowExecutions = `
CREATE TABLE IF NOT EXISTS workflow_executions (
    conversation_id TEXT PRIMARY KEY,
    execution_id    TEXT NOT NULL,
    conv_vars       JSONB NOT NULL,
    final_output    TEXT,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// RecordTaskResult persists one taskqueue.JobResult as a task-execution
// row — the durable record behind §4.10's "durable async submission ...
// of ingest/reflect/forgetting-cycle/cache-rebuild jobs".
func (s *Store) RecordTaskResult(ctx context.Context, env taskqueue.JobEnvelope, result taskqueue.JobResult) error {
	payload, err := json.Marshal(result.Result)
	if err != nil {
		return fmt.Errorf("relstore: marshal task result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO task_executions (task_id, correlation_id, end_user_id, kind, status, result, error, elapsed_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (task_id) DO UPDATE SET
    status = EXCLUDED.status,
    result = EXCLUDED.result,
    error = EXCLUDED.error,
    elapsed_ms = EXCLUDED.elapsed_ms,
    updated_at = NOW()
`, result.TaskID, env.CorrelationID, env.EndUserID, string(env.Kind), result.Status, payload, result.Error, result.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("relstore: record task result %s: %w", result.TaskID, err)
	}
	return nil
}

// workflowCheckpointRow is the JSON shape persisted in conv_vars — the
// varpool.Variable map round-trips through JSON since every Variable's
// Value is itself JSON-safe (the types the engine assigns: strings,
// numbers, bools, and nested maps/slices of those).
type workflowCheckpointRow struct {
	Conv map[string]varpool.Variable `json:"conv"`
}

// Load implements workflow.Checkpointer, backing §6's "workflow-execution
// rows" persisted-state entry.
func (s *Store) Load(ctx context.Context, conversationID string) (workflow.ExecutionState, bool, error) {
	var execID, finalOutput string
	var raw []byte
	err := s.pool.QueryRow(ctx, `
SELECT execution_id, conv_vars, COALESCE(final_output, '') FROM workflow_executions
WHERE conversation_id = $1
`, conversationID).Scan(&execID, &raw, &finalOutput)
	if err != nil {
		return workflow.ExecutionState{}, false, nil
	}

	var row workflowCheckpointRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return workflow.ExecutionState{}, false, fmt.Errorf("relstore: decode checkpoint for %s: %w", conversationID, err)
	}

	return workflow.ExecutionState{
		ExecutionID:    execID,
		ConversationID: conversationID,
		Conv:           row.Conv,
		FinalOutput:    finalOutput,
	}, true, nil
}

// Save implements workflow.Checkpointer.
func (s *Store) Save(ctx context.Context, state workflow.ExecutionState) error {
	payload, err := json.Marshal(workflowCheckpointRow{Conv: state.Conv})
	if err != nil {
		return fmt.Errorf("relstore: marshal checkpoint: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO workflow_executions (conversation_id, execution_id, conv_vars, final_output)
VALUES ($1,$2,$3,$4)
ON CONFLICT (conversation_id) DO UPDATE SET
    execution_id = EXCLUDED.execution_id,
    conv_vars = EXCLUDED.conv_vars,
    final_output = EXCLUDED.final_output,
    updated_at = NOW()
`, state.ConversationID, state.ExecutionID, payload, state.FinalOutput)
	if err != nil {
		return fmt.Errorf("relstore: save checkpoint for %s: %w", state.ConversationID, err)
	}
	return nil
}
