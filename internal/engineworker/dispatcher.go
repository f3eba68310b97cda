// Package engineworker implements the taskqueue.JobRunner that backs
// C10's four durable job kinds (ingest, reflect, forgetting_cycle,
// cache_rebuild), each routed to the component that already implements
// it: C6's ingest.Pipeline, C5's forgetting.Cycle, and C11's
// periodic.ReflectionSweep/CacheRegeneration. Grounded on
// internal/orchestrator/handler.go's Runner implementation, which did
// the same job — unmarshal an envelope's payload, call the one backing
// engine, shape the result map — for the teacher's single "workflow"
// kind.
package engineworker

import (
	"context"
	"fmt"
	"time"

	"github.com/memorybear/memoryengine/internal/forgetting"
	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/ingest"
	"github.com/memorybear/memoryengine/internal/periodic"
	"github.com/memorybear/memoryengine/internal/taskqueue"
)

// Dispatcher implements taskqueue.JobRunner over the four job kinds.
// Any of the four dependencies may be left nil; a job kind whose
// dependency is nil fails that job with a permanent (non-transient)
// error rather than panicking.
type Dispatcher struct {
	Ingestor   *ingest.Pipeline
	Reflection *periodic.ReflectionSweep
	Forgetting *forgetting.Cycle
	CacheRegen *periodic.CacheRegeneration

	// ForgettingCategories defaults to Statement/Entity/Summary when empty.
	ForgettingCategories []graphstore.Category
	ForgettingThreshold  float64
}

// Execute dispatches payload to the handler for kind. publish is unused
// here: none of the four job kinds emit intermediate step results today,
// unlike the teacher's multi-node workflow runs.
func (d *Dispatcher) Execute(ctx context.Context, kind taskqueue.Kind, endUserID string, payload map[string]any, publish func(ctx context.Context, stepID string, result map[string]any) error) (map[string]any, error) {
	switch kind {
	case taskqueue.KindIngest:
		return d.runIngest(ctx, endUserID, payload)
	case taskqueue.KindReflect:
		return d.runReflect(ctx, endUserID)
	case taskqueue.KindForgettingCycle:
		return d.runForgettingCycle(ctx, endUserID)
	case taskqueue.KindCacheRebuild:
		return d.runCacheRebuild(ctx, endUserID)
	default:
		return nil, fmt.Errorf("engineworker: unknown job kind %q", kind)
	}
}

func (d *Dispatcher) runIngest(ctx context.Context, endUserID string, payload map[string]any) (map[string]any, error) {
	if d.Ingestor == nil {
		return nil, fmt.Errorf("engineworker: ingest job received but no Ingestor configured")
	}
	req := ingest.Request{EndUserID: endUserID}
	rawMessages, _ := payload["messages"].([]any)
	for _, m := range rawMessages {
		mm, ok := m.(map[string]any)
		if !ok {
			continue
		}
		role, _ := mm["role"].(string)
		content, _ := mm["content"].(string)
		req.Messages = append(req.Messages, ingest.Message{Role: role, Content: content})
	}
	if st, ok := payload["storage_type"].(string); ok {
		req.StorageType = ingest.StorageType(st)
	}

	result, err := d.Ingestor.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"dialogue_id":   result.DialogueID,
		"chunk_ids":     result.ChunkIDs,
		"statement_ids": result.StatementIDs,
		"entity_ids":    result.EntityIDs,
		"summary_ids":   result.SummaryIDs,
	}, nil
}

func (d *Dispatcher) runReflect(ctx context.Context, endUserID string) (map[string]any, error) {
	if d.Reflection == nil {
		return nil, fmt.Errorf("engineworker: reflect job received but no Reflection configured")
	}
	if err := d.Reflection.RunOne(ctx, endUserID); err != nil {
		return nil, err
	}
	return map[string]any{"end_user_id": endUserID, "status": "swept"}, nil
}

func (d *Dispatcher) runForgettingCycle(ctx context.Context, endUserID string) (map[string]any, error) {
	if d.Forgetting == nil {
		return nil, fmt.Errorf("engineworker: forgetting_cycle job received but no Forgetting configured")
	}
	categories := d.ForgettingCategories
	if len(categories) == 0 {
		categories = []graphstore.Category{graphstore.CategoryStatement, graphstore.CategoryEntity, graphstore.CategorySummary}
	}
	report, err := d.Forgetting.Run(ctx, endUserID, categories, d.ForgettingThreshold)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"scanned": report.Scanned,
		"merged":  report.Merged,
		"failed":  report.Failed,
	}, nil
}

func (d *Dispatcher) runCacheRebuild(ctx context.Context, endUserID string) (map[string]any, error) {
	if d.CacheRegen == nil {
		return nil, fmt.Errorf("engineworker: cache_rebuild job received but no CacheRegen configured")
	}
	if err := d.CacheRegen.RunOne(ctx, endUserID); err != nil {
		return nil, err
	}
	return map[string]any{"end_user_id": endUserID, "status": "refreshed"}, nil
}

// since the reflect/forgetting_cycle full sweeps still run on a
// schedule (not as queued jobs), Sweeper exposes them for the periodic
// scheduler to drive independent of C10's per-user queue.
type Sweeper struct {
	Reflection *periodic.ReflectionSweep
	Forgetting *periodic.ForgettingCycleJob
	CacheRegen *periodic.CacheRegeneration
}

// SinceDefault bounds how far back a full sweep looks when the caller
// doesn't have a last-run timestamp to resume from.
const SinceDefault = 24 * time.Hour
