package periodic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/provider"
)

// EndUserLister enumerates end users with activity since a cutoff.
// internal/relstore.Store implements it against the end_users table.
type EndUserLister interface {
	ListEndUserIDs(ctx context.Context, since time.Time) ([]string, error)
}

// InsightRefresher recomputes and caches C12's per-user memory insight
// paragraph and four-part summary after new statements land.
type InsightRefresher interface {
	Refresh(ctx context.Context, endUserID string) error
}

const reflectionSummarySystemPrompt = `Summarize the following statements about a user into a short ` +
	`third-person memory summary capturing durable facts, preferences, and relationships. Respond with ` +
	`plain text only, no preamble.`

// ReflectionSweep re-summarizes each end user's current Statement set
// into a fresh MemorySummary node and refreshes C12's cached insight
// row. Named in spec §2's component table without a dedicated §4
// subsection; SPEC_FULL defines its call shape by reusing
// agentic_memory.go's IngestAgenticMemory summarization pattern (system
// prompt plus statement text as user content, same shape
// internal/ingest's extract stage already uses) over "every current
// statement for one end user" instead of "one freshly ingested chunk".
type ReflectionSweep struct {
	Store          graphstore.GraphStore
	Lister         EndUserLister
	LLM            provider.Provider
	ModelRef       string
	Insight        InsightRefresher
	StatementLimit int
}

// Run sweeps every end user with activity since since, regenerating
// their MemorySummary and refreshing the cached insight row. Per-user
// failures are collected and returned rather than aborting the sweep.
func (r *ReflectionSweep) Run(ctx context.Context, since time.Time) ([]string, error) {
	ids, err := r.Lister.ListEndUserIDs(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("reflection sweep: list end users: %w", err)
	}

	var failed []string
	for _, id := range ids {
		if err := r.RunOne(ctx, id); err != nil {
			failed = append(failed, id)
		}
	}
	return failed, nil
}

// RunOne re-summarizes a single end user's current statements, the
// taskqueue's reflect job-kind handler (one job per end_user_id, per
// C10's per-user FIFO ordering) and the per-id step Run's sweep loop
// shares.
func (r *ReflectionSweep) RunOne(ctx context.Context, endUserID string) error {
	limit := r.StatementLimit
	if limit <= 0 {
		limit = 200
	}
	hits, err := r.Store.TemporalSearch(ctx, endUserID, graphstore.CategoryStatement,
		graphstore.TemporalRange{To: time.Now()}, limit)
	if err != nil {
		return fmt.Errorf("reflection sweep: load statements for %s: %w", endUserID, err)
	}
	if len(hits) == 0 {
		return nil
	}

	var sb strings.Builder
	for _, h := range hits {
		if text, ok := h.Props["statement"].(string); ok && text != "" {
			sb.WriteString("- ")
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}
	if sb.Len() == 0 {
		return nil
	}

	res, err := r.LLM.Chat(ctx, r.ModelRef, []provider.Message{
		{Role: "system", Content: reflectionSummarySystemPrompt},
		{Role: "user", Content: sb.String()},
	}, provider.ChatOptions{})
	if err != nil {
		return fmt.Errorf("reflection sweep: summarize %s: %w", endUserID, err)
	}

	batch := graphstore.IngestBatch{
		EndUserID: endUserID,
		Summaries: []graphstore.Node{{
			ID:        uuid.NewString(),
			EndUserID: endUserID,
			Labels:    []string{string(graphstore.CategorySummary)},
			Props:     map[string]any{"content": res.Text},
			CreatedAt: time.Now().UTC(),
			IsActive:  true,
		}},
	}
	if err := r.Store.UpsertIngestedBatch(ctx, batch); err != nil {
		return fmt.Errorf("reflection sweep: persist summary for %s: %w", endUserID, err)
	}

	if r.Insight != nil {
		if err := r.Insight.Refresh(ctx, endUserID); err != nil {
			return fmt.Errorf("reflection sweep: refresh insight for %s: %w", endUserID, err)
		}
	}
	return nil
}
