package engineworker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memorybear/memoryengine/internal/accesshistory"
	"github.com/memorybear/memoryengine/internal/forgetting"
	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/ingest"
	"github.com/memorybear/memoryengine/internal/periodic"
	"github.com/memorybear/memoryengine/internal/provider"
	"github.com/memorybear/memoryengine/internal/taskqueue"
)

type scriptedProvider struct {
	chatText       string
	chatStructured map[string]any
	embedDim       int
}

func (p *scriptedProvider) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, p.embedDim)
		v[0] = float32(i + 1)
		out[i] = v
	}
	return out, nil
}

func (p *scriptedProvider) Chat(_ context.Context, _ string, _ []provider.Message, _ provider.ChatOptions) (provider.ChatResult, error) {
	if p.chatStructured != nil {
		raw, _ := json.Marshal(p.chatStructured)
		return provider.ChatResult{Structured: raw}, nil
	}
	return provider.ChatResult{Text: p.chatText}, nil
}

func (p *scriptedProvider) ChatStream(context.Context, string, []provider.Message, provider.ChatOptions, provider.StreamHandler) error {
	return nil
}

func TestDispatcher_Execute_UnknownKindErrors(t *testing.T) {
	d := &Dispatcher{}
	_, err := d.Execute(context.Background(), taskqueue.Kind("nonsense"), "u1", nil, nil)
	require.Error(t, err)
}

func TestDispatcher_Execute_IngestRunsPipeline(t *testing.T) {
	store := graphstore.NewMemory()
	llm := &scriptedProvider{embedDim: 4, chatStructured: map[string]any{
		"statements": []map[string]any{{"statement": "likes tea", "stmt_type": "FACT", "temporal_info": "STATIC"}},
		"entities":   []map[string]any{{"name": "Tea", "entity_type": "beverage", "description": "a drink", "aliases": []string{}}},
		"summary":    "discussed tea",
	}}
	history := accesshistory.New(store, 50, 0.5)
	pipeline := ingest.New(store, llm, "gpt", llm, "embed", history, nil)
	d := &Dispatcher{Ingestor: pipeline}

	result, err := d.Execute(context.Background(), taskqueue.KindIngest, "u1", map[string]any{
		"messages": []any{map[string]any{"role": "user", "content": "I like tea"}},
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result["dialogue_id"])
}

func TestDispatcher_Execute_ForgettingCycleMissingDependencyErrors(t *testing.T) {
	d := &Dispatcher{}
	_, err := d.Execute(context.Background(), taskqueue.KindForgettingCycle, "u1", nil, nil)
	require.Error(t, err)
}

func TestDispatcher_Execute_ForgettingCycleRuns(t *testing.T) {
	store := graphstore.NewMemory()
	llm := &scriptedProvider{embedDim: 4}
	cycle := forgetting.New(store, llm, "gpt", 0)
	d := &Dispatcher{Forgetting: cycle}

	result, err := d.Execute(context.Background(), taskqueue.KindForgettingCycle, "u1", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0, result["scanned"])
}

func TestDispatcher_Execute_CacheRebuildRuns(t *testing.T) {
	store := graphstore.NewMemory()
	llm := &scriptedProvider{embedDim: 4, chatStructured: map[string]any{
		"memory_insight": "likes tea", "intro": "a tea fan", "personality": "curious",
		"core_values": "honesty", "one_sentence": "Tea enthusiast.",
	}}
	saved := map[string]any{}
	gen := &insightGeneratorStub{store: store, llm: llm, saved: saved}
	cacheRegen := &periodic.CacheRegeneration{Lister: gen, Insight: gen}
	d := &Dispatcher{CacheRegen: cacheRegen}

	result, err := d.Execute(context.Background(), taskqueue.KindCacheRebuild, "u1", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "refreshed", result["status"])
}

// insightGeneratorStub satisfies both periodic.EndUserLister and
// periodic.InsightRefresher with trivial behavior, standing in for
// internal/insight.Generator + internal/relstore.Store without a live
// Postgres connection.
type insightGeneratorStub struct {
	store graphstore.GraphStore
	llm   provider.Provider
	saved map[string]any
}

func (s *insightGeneratorStub) ListEndUserIDs(context.Context, time.Time) ([]string, error) {
	return []string{"u1"}, nil
}

func (s *insightGeneratorStub) Refresh(_ context.Context, endUserID string) error {
	s.saved[endUserID] = true
	return nil
}
