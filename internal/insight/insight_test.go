package insight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/provider"
)

type scriptedLLM struct{ text string }

func (s *scriptedLLM) Embed(context.Context, string, []string) ([][]float32, error) { return nil, nil }
func (s *scriptedLLM) Chat(context.Context, string, []provider.Message, provider.ChatOptions) (provider.ChatResult, error) {
	return provider.ChatResult{Text: s.text}, nil
}
func (s *scriptedLLM) ChatStream(context.Context, string, []provider.Message, provider.ChatOptions, provider.StreamHandler) error {
	return nil
}

type fakeStore struct {
	saved map[string]Summary
}

func newFakeStore() *fakeStore { return &fakeStore{saved: map[string]Summary{}} }

func (f *fakeStore) SaveSummary(_ context.Context, endUserID string, s Summary) error {
	f.saved[endUserID] = s
	return nil
}

func seedStatement(t *testing.T, store graphstore.GraphStore, endUserID, id, subject string) {
	t.Helper()
	err := store.UpsertIngestedBatch(context.Background(), graphstore.IngestBatch{
		EndUserID: endUserID,
		Statements: []graphstore.Node{{
			ID:        id,
			EndUserID: endUserID,
			Labels:    []string{"Statement"},
			Props:     map[string]any{"text": "x", "emotion_subject": subject},
			IsActive:  true,
			CreatedAt: time.Now(),
		}},
	})
	require.NoError(t, err)
}

func TestGenerator_Refresh_SavesSummaryFromLLMJSON(t *testing.T) {
	store := graphstore.NewMemory()
	seedStatement(t, store, "user-1", "s1", "work")
	seedStatement(t, store, "user-1", "s2", "work")

	out := newFakeStore()
	gen := &Generator{
		Store: store,
		LLM:   &scriptedLLM{text: `{"memory_insight":"Focuses on work.","intro":"An engineer.","personality":"Curious.","core_values":"Craft.","one_sentence":"Builds things."}`},
		Out:   out,
	}

	err := gen.Refresh(context.Background(), "user-1")
	require.NoError(t, err)

	saved, ok := out.saved["user-1"]
	require.True(t, ok)
	require.Equal(t, "Focuses on work.", saved.MemoryInsight)
	require.Equal(t, "Builds things.", saved.OneSentence)
}

func TestGenerator_Refresh_NoStatementsSkipsLLMCall(t *testing.T) {
	store := graphstore.NewMemory()
	out := newFakeStore()
	gen := &Generator{
		Store: store,
		LLM:   &scriptedLLM{text: "should not be parsed"},
		Out:   out,
	}

	err := gen.Refresh(context.Background(), "user-empty")
	require.NoError(t, err)

	saved, ok := out.saved["user-empty"]
	require.True(t, ok)
	require.Empty(t, saved.MemoryInsight)
}

func TestTopN_OrdersByCountDescending(t *testing.T) {
	counts := map[string]int{"a": 1, "b": 5, "c": 3}
	require.Equal(t, []string{"b", "c", "a"}, topN(counts, 5))
}
