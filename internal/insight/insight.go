// Package insight implements C12: the aggregate-graph-statistics-to-prose
// step that generates a cached "memory insight" paragraph and a four-part
// user summary per end user.
//
// Grounded on agentic_memory.go's IngestAgenticMemory, which calls
// sefii.SummarizeChunk to turn raw content into an LLM-generated
// summary/keyword set and persists the result; here the same
// aggregate-then-summarize shape runs over graph statistics instead of a
// single note, and the result is cached in a relational row
// (internal/relstore) rather than a vector table. The HTTP-facing
// trigger pattern from internal/evolve/handlers.go (bind request, run the
// generation, store the result) is adapted into Generator.Refresh, a
// plain service method, since HTTP hosting is out of scope here (§1).
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/merrors"
	"github.com/memorybear/memoryengine/internal/provider"
)

// Aggregates is the raw material the insight prompt summarizes: domain
// (what the user talks about), time (when they're active), and social
// (who/what entities recur) slices over the graph, per spec §4.10's "a
// single natural-language memory insight paragraph from domain/time/
// social aggregates over the graph".
type Aggregates struct {
	EndUserID      string
	TopDomains     []string // most frequent emotion_subject values across statements
	TopEntities    []string // most frequently referenced entity names
	ActiveHours    []int    // hours-of-day (0-23) with statement activity
	FirstActivity  time.Time
	LastActivity   time.Time
	StatementCount int
	EntityCount    int
}

// Summary is the four-part user summary plus the single insight
// paragraph, cached verbatim in the end-user relational row (spec §6:
// "cached memory_insight, personality/core_values/one_sentence_summary,
// *_updated_at").
type Summary struct {
	MemoryInsight string
	Intro         string
	Personality   string
	CoreValues    string
	OneSentence   string
	GeneratedAt   time.Time
}

// Store persists a Summary for an end user. internal/relstore provides
// the concrete implementation backing the relational end-user row.
type Store interface {
	SaveSummary(ctx context.Context, endUserID string, s Summary) error
}

const insightSystemPrompt = `You analyze a summary of one person's stored memories and write two things:
1. A single natural-language paragraph ("memory_insight") describing recurring themes, activity patterns, and notable relationships.
2. A four-part user summary: a one-paragraph "intro", a short "personality" description, a short "core_values" description, and a single-sentence "one_sentence" summary.
Respond as strict JSON: {"memory_insight":"...","intro":"...","personality":"...","core_values":"...","one_sentence":"..."}.
Base everything only on the aggregate data given; never invent specifics not implied by it.`

type llmSummary struct {
	MemoryInsight string `json:"memory_insight"`
	Intro         string `json:"intro"`
	Personality   string `json:"personality"`
	CoreValues    string `json:"core_values"`
	OneSentence   string `json:"one_sentence"`
}

// Generator aggregates graph statistics for an end user and summarizes
// them into a Summary via an LLM call, then persists it through Store.
type Generator struct {
	Store    graphstore.GraphStore
	LLM      provider.Provider
	ModelRef string
	Out      Store

	// StatementWindow bounds how far back TopDomains/ActiveHours look;
	// defaults to 90 days.
	StatementWindow time.Duration
}

// Refresh computes fresh Aggregates for endUserID, summarizes them, and
// saves the result — this is the periodic.InsightRefresher implementation
// both ReflectionSweep and CacheRegeneration call.
func (g *Generator) Refresh(ctx context.Context, endUserID string) error {
	agg, err := g.aggregate(ctx, endUserID)
	if err != nil {
		return fmt.Errorf("insight: aggregate %s: %w", endUserID, err)
	}

	summary, err := g.summarize(ctx, agg)
	if err != nil {
		return fmt.Errorf("insight: summarize %s: %w", endUserID, err)
	}

	if g.Out == nil {
		return nil
	}
	if err := g.Out.SaveSummary(ctx, endUserID, summary); err != nil {
		return fmt.Errorf("insight: save %s: %w", endUserID, err)
	}
	return nil
}

func (g *Generator) aggregate(ctx context.Context, endUserID string) (Aggregates, error) {
	window := g.StatementWindow
	if window <= 0 {
		window = 90 * 24 * time.Hour
	}
	now := time.Now()
	rng := graphstore.TemporalRange{From: now.Add(-window), To: now}

	statements, err := g.Store.TemporalSearch(ctx, endUserID, graphstore.CategoryStatement, rng, 500)
	if err != nil {
		return Aggregates{}, fmt.Errorf("temporal search statements: %w", err)
	}
	entities, err := g.Store.TemporalSearch(ctx, endUserID, graphstore.CategoryEntity, rng, 200)
	if err != nil {
		return Aggregates{}, fmt.Errorf("temporal search entities: %w", err)
	}

	agg := Aggregates{
		EndUserID:      endUserID,
		StatementCount: len(statements),
		EntityCount:    len(entities),
	}

	domainCounts := map[string]int{}
	for _, s := range statements {
		if subj, ok := s.Props["emotion_subject"].(string); ok && subj != "" {
			domainCounts[subj]++
		}
		if ts, ok := s.Props["created_at"].(time.Time); ok {
			agg.ActiveHours = append(agg.ActiveHours, ts.Hour())
			if agg.FirstActivity.IsZero() || ts.Before(agg.FirstActivity) {
				agg.FirstActivity = ts
			}
			if ts.After(agg.LastActivity) {
				agg.LastActivity = ts
			}
		}
	}
	agg.TopDomains = topN(domainCounts, 5)

	entityCounts := map[string]int{}
	for _, e := range entities {
		if name, ok := e.Props["name"].(string); ok && name != "" {
			entityCounts[name]++
		}
	}
	agg.TopEntities = topN(entityCounts, 5)

	return agg, nil
}

func topN(counts map[string]int, n int) []string {
	type kv struct {
		k string
		v int
	}
	kvs := make([]kv, 0, len(counts))
	for k, v := range counts {
		kvs = append(kvs, kv{k, v})
	}
	for i := 1; i < len(kvs); i++ {
		for j := i; j > 0 && kvs[j-1].v < kvs[j].v; j-- {
			kvs[j-1], kvs[j] = kvs[j], kvs[j-1]
		}
	}
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, len(kvs))
	for i, e := range kvs {
		out[i] = e.k
	}
	return out
}

func (g *Generator) summarize(ctx context.Context, agg Aggregates) (Summary, error) {
	if agg.StatementCount == 0 {
		return Summary{GeneratedAt: time.Now()}, nil
	}

	prompt := describeAggregates(agg)
	parsed, err := g.runSummarize(ctx, prompt, insightSystemPrompt)
	if err != nil {
		// One retry with a stricter prompt, mirroring C6's Extract stage
		// retry-on-parse-failure contract.
		parsed, err = g.runSummarize(ctx, prompt, insightSystemPrompt+" Return ONLY the JSON object, no prose, no markdown fences.")
		if err != nil {
			return Summary{}, merrors.New(merrors.LLMCallFailed, "insight.summarize", err)
		}
	}

	return Summary{
		MemoryInsight: parsed.MemoryInsight,
		Intro:         parsed.Intro,
		Personality:   parsed.Personality,
		CoreValues:    parsed.CoreValues,
		OneSentence:   parsed.OneSentence,
		GeneratedAt:   time.Now(),
	}, nil
}

func (g *Generator) runSummarize(ctx context.Context, prompt, systemPrompt string) (llmSummary, error) {
	res, err := g.LLM.Chat(ctx, g.ModelRef, []provider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, provider.ChatOptions{StructuredSchema: map[string]any{"type": "object"}})
	if err != nil {
		return llmSummary{}, fmt.Errorf("chat call failed: %w", err)
	}

	raw := res.Structured
	if len(raw) == 0 {
		raw = []byte(strings.TrimSpace(res.Text))
	}
	var parsed llmSummary
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return llmSummary{}, fmt.Errorf("summary response is not valid JSON: %w", err)
	}
	return parsed, nil
}

func describeAggregates(agg Aggregates) string {
	var b strings.Builder
	fmt.Fprintf(&b, "statement_count=%d entity_count=%d\n", agg.StatementCount, agg.EntityCount)
	if len(agg.TopDomains) > 0 {
		fmt.Fprintf(&b, "top_domains=%s\n", strings.Join(agg.TopDomains, ", "))
	}
	if len(agg.TopEntities) > 0 {
		fmt.Fprintf(&b, "top_entities=%s\n", strings.Join(agg.TopEntities, ", "))
	}
	if !agg.FirstActivity.IsZero() {
		fmt.Fprintf(&b, "first_activity=%s last_activity=%s\n", agg.FirstActivity.Format(time.RFC3339), agg.LastActivity.Format(time.RFC3339))
	}
	if len(agg.ActiveHours) > 0 {
		fmt.Fprintf(&b, "active_hours=%v\n", agg.ActiveHours)
	}
	return b.String()
}
