package accesshistory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memorybear/memoryengine/internal/graphstore"
)

func seedStatement(t *testing.T, s graphstore.GraphStore, endUserID, id string) {
	t.Helper()
	batch := graphstore.IngestBatch{
		EndUserID:  endUserID,
		Dialogue:   graphstore.Node{ID: id + "-d", EndUserID: endUserID, Labels: []string{"dialogue"}, Props: map[string]any{"content": "hi"}, IsActive: true, CreatedAt: time.Now()},
		Chunks:     []graphstore.Node{{ID: id + "-c", EndUserID: endUserID, Labels: []string{"chunks"}, Props: map[string]any{"content": "hi"}, IsActive: true, CreatedAt: time.Now()}},
		Statements: []graphstore.Node{{ID: id, EndUserID: endUserID, Labels: []string{"statements"}, Props: map[string]any{"statement": "hi"}, IsActive: true, CreatedAt: time.Now()}},
		Edges: []graphstore.Edge{
			{SourceID: id + "-d", Rel: "HAS_CHUNK", TargetID: id + "-c"},
			{SourceID: id + "-c", Rel: "HAS_STATEMENT", TargetID: id},
		},
	}
	require.NoError(t, s.UpsertIngestedBatch(context.Background(), batch))
}

func TestManager_RecordAccesses_SetsActivationAndCapsHistory(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	seedStatement(t, store, "u1", "s1")

	m := New(store, 2, 0.5)

	for i := 0; i < 3; i++ {
		updated, err := m.RecordAccesses(ctx, "u1", []Hit{{NodeID: "s1", Category: graphstore.CategoryStatement}})
		require.NoError(t, err)
		require.Len(t, updated, 1)
		require.NotNil(t, updated[0].ActivationValue)
	}

	node, ok, err := store.GetNode(ctx, "u1", "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.LessOrEqual(t, len(node.AccessHistory), 2)
}

func TestManager_RecordAccesses_DedupesAndExcludesChunks(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	seedStatement(t, store, "u1", "s1")

	m := New(store, 50, 0.5)
	updated, err := m.RecordAccesses(ctx, "u1", []Hit{
		{NodeID: "s1", Category: graphstore.CategoryStatement},
		{NodeID: "s1", Category: graphstore.CategoryStatement},
		{NodeID: "s1-c", Category: graphstore.CategoryChunk},
	})
	require.NoError(t, err)
	require.Len(t, updated, 1)
}

func TestManager_RecordAccesses_NoHitsIsNoop(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	m := New(store, 50, 0.5)
	updated, err := m.RecordAccesses(ctx, "u1", nil)
	require.NoError(t, err)
	require.Nil(t, updated)
}
