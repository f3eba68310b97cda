package retrieve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memorybear/memoryengine/internal/accesshistory"
	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/provider"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string, []string) ([][]float32, error) {
	return [][]float32{{1, 0, 0}}, nil
}
func (fakeEmbedder) Chat(context.Context, string, []provider.Message, provider.ChatOptions) (provider.ChatResult, error) {
	return provider.ChatResult{}, nil
}
func (fakeEmbedder) ChatStream(context.Context, string, []provider.Message, provider.ChatOptions, provider.StreamHandler) error {
	return nil
}

func seed(t *testing.T, s graphstore.GraphStore) {
	t.Helper()
	now := time.Now()
	batch := graphstore.IngestBatch{
		EndUserID: "u1",
		Dialogue:  graphstore.Node{ID: "d1", EndUserID: "u1", Labels: []string{"dialogue"}, Props: map[string]any{"content": "hi"}, IsActive: true, CreatedAt: now},
		Chunks:    []graphstore.Node{{ID: "c1", EndUserID: "u1", Labels: []string{"chunks"}, Props: map[string]any{"content": "hi"}, IsActive: true, CreatedAt: now}},
		Statements: []graphstore.Node{
			{ID: "s1", EndUserID: "u1", Labels: []string{"statements"}, Props: map[string]any{"statement": "the sky is blue"}, IsActive: true, CreatedAt: now},
			{ID: "s2", EndUserID: "u1", Labels: []string{"statements"}, Props: map[string]any{"statement": "the grass is green"}, IsActive: true, CreatedAt: now},
		},
		Edges: []graphstore.Edge{
			{SourceID: "d1", Rel: "HAS_CHUNK", TargetID: "c1"},
			{SourceID: "c1", Rel: "HAS_STATEMENT", TargetID: "s1"},
			{SourceID: "c1", Rel: "HAS_STATEMENT", TargetID: "s2"},
		},
	}
	require.NoError(t, s.UpsertIngestedBatch(context.Background(), batch))
}

func TestRetrieve_EmptyQueryReturnsErrorSummary(t *testing.T) {
	store := graphstore.NewMemory()
	r := New(store, fakeEmbedder{}, "embed", nil)
	resp, err := r.Retrieve(context.Background(), Request{
		QueryText: "   ",
		EndUserID: "u1",
		Include:   []graphstore.Category{graphstore.CategoryStatement},
	})
	require.NoError(t, err)
	require.Equal(t, "Empty query", resp.Results[graphstore.CategoryStatement].Error)
}

func TestNormalize_SingletonIsOne(t *testing.T) {
	v := 0.42
	out := normalize([]*float64{&v})
	require.NotNil(t, out[0])
	require.Equal(t, 1.0, *out[0])
}

func TestNormalize_PreservesNils(t *testing.T) {
	v := 0.5
	out := normalize([]*float64{&v, nil, &v})
	require.NotNil(t, out[0])
	require.Nil(t, out[1])
}

func TestRankCategory_Stage2PrefersActivationWhenEnough(t *testing.T) {
	a1, a2 := 0.9, 0.1
	candidates := []mergedCandidate{
		{id: "with-high", props: map[string]any{"activation_value": a1}},
		{id: "with-low", props: map[string]any{"activation_value": a2}},
		{id: "without", props: map[string]any{}},
	}
	hits := rankCategory(candidates, 0.6, 2, 10, nil)
	require.Len(t, hits, 2)
	require.Equal(t, "with-high", hits[0].ID)
	require.Equal(t, "with-low", hits[1].ID)
}

func TestRankCategory_FillsFromWithoutActivationWhenShort(t *testing.T) {
	a1 := 0.9
	candidates := []mergedCandidate{
		{id: "with", props: map[string]any{"activation_value": a1}},
		{id: "without-1", props: map[string]any{}, bm25: floatPtr(0.8)},
		{id: "without-2", props: map[string]any{}, bm25: floatPtr(0.2)},
	}
	hits := rankCategory(candidates, 0.6, 3, 10, nil)
	require.Len(t, hits, 3)
	require.Equal(t, "with", hits[0].ID)
}

func floatPtr(v float64) *float64 { return &v }

func TestRetrieve_RecordsActivationBeforeRanking(t *testing.T) {
	store := graphstore.NewMemory()
	seed(t, store)
	history := accesshistory.New(store, 50, 0.5)
	r := New(store, fakeEmbedder{}, "embed", history)

	resp, err := r.Retrieve(context.Background(), Request{
		QueryText: "sky",
		EndUserID: "u1",
		Include:   []graphstore.Category{graphstore.CategoryStatement},
		Limit:     10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results[graphstore.CategoryStatement].Hits)

	node, ok, err := store.GetNode(context.Background(), "u1", "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, node.ActivationValue)
}
