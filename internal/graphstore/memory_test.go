package graphstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_IngestAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	batch := IngestBatch{
		EndUserID:  "u1",
		Dialogue:   Node{ID: "d1", EndUserID: "u1", Labels: []string{"dialogue"}, Props: map[string]any{"content": "hello there"}, IsActive: true, CreatedAt: time.Now()},
		Chunks:     []Node{{ID: "c1", EndUserID: "u1", Labels: []string{"chunks"}, Props: map[string]any{"content": "hello there"}, IsActive: true, CreatedAt: time.Now()}},
		Statements: []Node{{ID: "s1", EndUserID: "u1", Labels: []string{"statements"}, Props: map[string]any{"statement": "user said hello"}, IsActive: true, CreatedAt: time.Now()}},
		Edges: []Edge{
			{SourceID: "d1", Rel: "HAS_CHUNK", TargetID: "c1"},
			{SourceID: "c1", Rel: "HAS_STATEMENT", TargetID: "s1"},
		},
	}
	require.NoError(t, s.UpsertIngestedBatch(ctx, batch))

	chunkOwner, ok, err := s.GetByChunkID(ctx, "u1", "c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "d1", chunkOwner.ID)

	hits, err := s.KeywordSearch(ctx, "u1", CategoryStatement, "hello", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "s1", hits[0].ID)
}

func TestMemoryStore_ActivationOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.UpsertIngestedBatch(ctx, IngestBatch{
		EndUserID:  "u1",
		Dialogue:   Node{ID: "d1", EndUserID: "u1", IsActive: true},
		Statements: []Node{{ID: "s1", EndUserID: "u1", Labels: []string{"statements"}, IsActive: true}},
	}))

	_, err := s.BatchUpdateActivation(ctx, "u1", []ActivationUpdate{{
		NodeID: "s1", Category: CategoryStatement, NewValue: 1.2, NewHistoryTail: time.Now(), ExpectedVersion: 0,
	}})
	require.NoError(t, err)

	_, err = s.BatchUpdateActivation(ctx, "u1", []ActivationUpdate{{
		NodeID: "s1", Category: CategoryStatement, NewValue: 1.5, NewHistoryTail: time.Now(), ExpectedVersion: 0,
	}})
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestMemoryStore_MergeEntitiesUnionsAliasesAndKeepsMaxActivation(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	a1 := 0.5
	a2 := 1.7
	require.NoError(t, s.UpsertIngestedBatch(ctx, IngestBatch{
		EndUserID: "u1",
		Dialogue:  Node{ID: "d1", EndUserID: "u1", IsActive: true},
		Entities: []Node{
			{ID: "e1", EndUserID: "u1", Labels: []string{"entities"}, IsActive: true, Props: map[string]any{"name": "Bob", "aliases": []string{"Bobby"}}, ActivationValue: &a1},
			{ID: "e2", EndUserID: "u1", Labels: []string{"entities"}, IsActive: true, Props: map[string]any{"name": "Robert", "aliases": []string{}}, ActivationValue: &a2},
		},
	}))

	merged, err := s.MergeEntities(ctx, "u1", "e1", "e2")
	require.NoError(t, err)
	aliases := merged.Props["aliases"].([]string)
	require.Contains(t, aliases, "Bobby")
	require.Contains(t, aliases, "Robert")
	require.NotNil(t, merged.ActivationValue)
	require.InDelta(t, 1.7, *merged.ActivationValue, 1e-9)

	_, ok, err := s.GetNode(ctx, "u1", "e2")
	require.NoError(t, err)
	require.False(t, ok, "absorbed entity must be soft-deleted")
}

func TestMemoryStore_FindEntityByNameCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.UpsertIngestedBatch(ctx, IngestBatch{
		EndUserID: "u1",
		Dialogue:  Node{ID: "d1", EndUserID: "u1", IsActive: true},
		Entities:  []Node{{ID: "e1", EndUserID: "u1", Labels: []string{"entities"}, IsActive: true, Props: map[string]any{"name": "Paris"}}},
	}))

	n, ok, err := s.FindEntityByName(ctx, "u1", "PARIS")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "e1", n.ID)
}
