package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/memorybear/memoryengine/internal/accesshistory"
	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/merrors"
	"github.com/memorybear/memoryengine/internal/provider"
)

// ActivityRecorder marks an end user as active as of now, so C11's
// periodic sweeps and C12's insight refresh (which both enumerate users
// via periodic.EndUserLister) discover them. internal/relstore.Store
// implements this against the end_users table.
type ActivityRecorder interface {
	Touch(ctx context.Context, endUserID string) error
}

// Pipeline runs the six ingestion stages (§4.6) for one turn at a time.
// Callers are responsible for the "one ingestion per end_user_id"
// concurrency contract (internal/taskqueue serializes by end_user_id by
// using it as the Kafka message key); Pipeline itself is stateless and
// safe to call concurrently across distinct end_user_ids.
type Pipeline struct {
	store      graphstore.GraphStore
	llm        provider.Provider
	llmModel   string
	embedder   provider.Provider
	embedModel string
	history    *accesshistory.Manager
	activity   ActivityRecorder
}

// New builds a Pipeline. llmModel/embedModel reference the Configuration
// object's llm_model_id/embedding_model_id. activity may be nil.
func New(store graphstore.GraphStore, llm provider.Provider, llmModel string, embedder provider.Provider, embedModel string, history *accesshistory.Manager, activity ActivityRecorder) *Pipeline {
	return &Pipeline{store: store, llm: llm, llmModel: llmModel, embedder: embedder, embedModel: embedModel, history: history, activity: activity}
}

// Run executes Segment -> Extract -> Embed -> Dedup -> Persist ->
// InitActivation for req. Partial writes are forbidden: Persist is the
// only stage that creates nodes or edges, and it writes once, atomically,
// or not at all. InitActivation afterwards only updates the activation
// fields of the nodes Persist created.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if req.EndUserID == "" {
		return Result{}, merrors.New(merrors.InvalidInput, "ingest.Run", fmt.Errorf("end_user_id is required"))
	}

	seg := segment(req)

	extractions := make([]ExtractionResult, len(seg.chunks))
	for i, chunk := range seg.chunks {
		content, _ := chunk.Props["content"].(string)
		ext, err := extract(ctx, p.llm, p.llmModel, content)
		if err != nil {
			return Result{}, err
		}
		extractions[i] = ext
	}

	if err := embedAll(ctx, p.embedder, p.embedModel, extractions); err != nil {
		return Result{}, err
	}

	work := make([]chunkExtraction, len(seg.chunks))
	for i, chunk := range seg.chunks {
		resolved, err := dedupEntities(ctx, p.store, req.EndUserID, extractions[i].Entities, uuid.NewString)
		if err != nil {
			return Result{}, merrors.New(merrors.PersistFailed, "ingest.Run.dedup", err)
		}
		work[i] = chunkExtraction{chunk: chunk, extraction: extractions[i], entities: resolved}
	}

	batch, result := buildBatch(req.EndUserID, seg, work)
	if err := p.store.UpsertIngestedBatch(ctx, batch); err != nil {
		return Result{}, merrors.New(merrors.PersistFailed, "ingest.Run.persist", err)
	}

	if p.activity != nil {
		// Best-effort: a failed activity-touch must never roll back an
		// already-persisted ingestion batch.
		_ = p.activity.Touch(ctx, req.EndUserID)
	}

	if p.history != nil {
		var hits []accesshistory.Hit
		for _, id := range result.StatementIDs {
			hits = append(hits, accesshistory.Hit{NodeID: id, Category: graphstore.CategoryStatement})
		}
		for _, id := range result.EntityIDs {
			hits = append(hits, accesshistory.Hit{NodeID: id, Category: graphstore.CategoryEntity})
		}
		for _, id := range result.SummaryIDs {
			hits = append(hits, accesshistory.Hit{NodeID: id, Category: graphstore.CategorySummary})
		}
		if _, err := p.history.RecordAccesses(ctx, req.EndUserID, hits); err != nil {
			// Initial-activation failure does not invalidate the persisted
			// batch; the node simply starts with no activation_value until
			// its first retrieval hit records one.
			return result, nil
		}
	}

	return result, nil
}
