package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memorybear/memoryengine/internal/accesshistory"
	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/provider"
)

type fakeProvider struct {
	embedDim int
}

func (f *fakeProvider) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.embedDim)
		v[0] = float32(i + 1)
		out[i] = v
	}
	return out, nil
}

func (f *fakeProvider) Chat(_ context.Context, _ string, msgs []provider.Message, _ provider.ChatOptions) (provider.ChatResult, error) {
	payload := map[string]any{
		"statements": []map[string]any{
			{"statement": "the user likes tea", "stmt_type": "FACT", "temporal_info": "STATIC"},
		},
		"entities": []map[string]any{
			{"name": "Tea", "entity_type": "beverage", "description": "a drink", "aliases": []string{}},
		},
		"summary": "discussed beverages",
	}
	raw, _ := json.Marshal(payload)
	return provider.ChatResult{Structured: raw}, nil
}

func (f *fakeProvider) ChatStream(context.Context, string, []provider.Message, provider.ChatOptions, provider.StreamHandler) error {
	return nil
}

type fakeActivityRecorder struct {
	touched []string
}

func (f *fakeActivityRecorder) Touch(_ context.Context, endUserID string) error {
	f.touched = append(f.touched, endUserID)
	return nil
}

func TestPipeline_Run_PersistsFullGraphShape(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	llm := &fakeProvider{embedDim: 4}
	history := accesshistory.New(store, 50, 0.5)
	activity := &fakeActivityRecorder{}

	p := New(store, llm, "gpt", llm, "embed", history, activity)

	result, err := p.Run(ctx, Request{
		EndUserID: "u1",
		Messages:  []Message{{Role: "user", Content: "I really like tea"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.DialogueID)
	require.Len(t, result.ChunkIDs, 1)
	require.Len(t, result.StatementIDs, 1)
	require.Len(t, result.EntityIDs, 1)
	require.Len(t, result.SummaryIDs, 1)

	owner, ok, err := store.GetByChunkID(ctx, "u1", result.ChunkIDs[0])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, result.DialogueID, owner.ID)

	node, ok, err := store.GetNode(ctx, "u1", result.StatementIDs[0])
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, node.ActivationValue)
	require.Equal(t, []string{"u1"}, activity.touched)
}

func TestPipeline_Run_RejectsEmptyEndUserID(t *testing.T) {
	store := graphstore.NewMemory()
	llm := &fakeProvider{embedDim: 4}
	p := New(store, llm, "gpt", llm, "embed", nil, nil)
	_, err := p.Run(context.Background(), Request{})
	require.Error(t, err)
}

func TestDedupEntities_ReusesExistingEntityByName(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	require.NoError(t, store.UpsertIngestedBatch(ctx, graphstore.IngestBatch{
		EndUserID: "u1",
		Dialogue:  graphstore.Node{ID: "d1", EndUserID: "u1", Labels: []string{"dialogue"}, Props: map[string]any{"content": "x"}, IsActive: true},
		Entities: []graphstore.Node{
			{ID: "e1", EndUserID: "u1", Labels: []string{"entities"}, Props: map[string]any{"name": "Tea", "aliases": []string{"chai"}}, IsActive: true},
		},
	}))

	resolved, err := dedupEntities(ctx, store, "u1", []Entity{{Name: "tea", Aliases: []string{"green tea"}}}, func() string { return "new-id" })
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.Equal(t, "e1", resolved[0].id)
	require.ElementsMatch(t, []string{"chai", "green tea"}, resolved[0].entity.Aliases)
}
