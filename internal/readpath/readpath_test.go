package readpath

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memorybear/memoryengine/internal/accesshistory"
	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/provider"
	"github.com/memorybear/memoryengine/internal/retrieve"
)

type scriptedLLM struct {
	classify   string
	decompose  []string
	answer     string
	embeddings [][]float32
}

func (s *scriptedLLM) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	if s.embeddings != nil {
		return s.embeddings, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (s *scriptedLLM) Chat(_ context.Context, _ string, msgs []provider.Message, opts provider.ChatOptions) (provider.ChatResult, error) {
	switch msgs[0].Content {
	case classifySystemPrompt:
		return provider.ChatResult{Text: s.classify}, nil
	case decomposeSystemPrompt:
		raw, _ := json.Marshal(map[string]any{"sub_queries": s.decompose})
		return provider.ChatResult{Structured: raw}, nil
	case retrieveSummarySystemPrompt:
		return provider.ChatResult{Text: s.answer}, nil
	default:
		return provider.ChatResult{Text: "ok"}, nil
	}
}

func (s *scriptedLLM) ChatStream(context.Context, string, []provider.Message, provider.ChatOptions, provider.StreamHandler) error {
	return nil
}

type captureStore struct {
	saved bool
}

func (c *captureStore) Save(_ context.Context, _, _, _ string, _ any) error {
	c.saved = true
	return nil
}

func seedGraph(t *testing.T, s graphstore.GraphStore) {
	t.Helper()
	now := time.Now()
	batch := graphstore.IngestBatch{
		EndUserID: "u1",
		Dialogue:  graphstore.Node{ID: "d1", EndUserID: "u1", Labels: []string{"dialogue"}, Props: map[string]any{"content": "hi"}, IsActive: true, CreatedAt: now},
		Chunks:    []graphstore.Node{{ID: "c1", EndUserID: "u1", Labels: []string{"chunks"}, Props: map[string]any{"content": "hi"}, IsActive: true, CreatedAt: now}},
		Statements: []graphstore.Node{
			{ID: "s1", EndUserID: "u1", Labels: []string{"statements"}, Props: map[string]any{"statement": "the user likes tea"}, IsActive: true, CreatedAt: now},
		},
		Edges: []graphstore.Edge{
			{SourceID: "d1", Rel: "HAS_CHUNK", TargetID: "c1"},
			{SourceID: "c1", Rel: "HAS_STATEMENT", TargetID: "s1"},
		},
	}
	require.NoError(t, s.UpsertIngestedBatch(context.Background(), batch))
}

func TestHandle_SwitchDirectReply_SkipsRetrievalAndShortTerm(t *testing.T) {
	store := graphstore.NewMemory()
	llm := &scriptedLLM{answer: "hello there"}
	r := retrieve.New(store, llm, "embed", accesshistory.New(store, 50, 0.5))
	capture := &captureStore{}
	rp := New(llm, r, nil, capture)

	resp, err := rp.Handle(context.Background(), Request{
		EndUserID:    "u1",
		Message:      "hi",
		SearchSwitch: SwitchDirectReply,
		LLMModelRef:  "gpt",
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Answer)
	require.False(t, capture.saved)
}

func TestHandle_SwitchRetrieve_ReturnsAnswerAndSavesShortTerm(t *testing.T) {
	store := graphstore.NewMemory()
	seedGraph(t, store)
	llm := &scriptedLLM{decompose: []string{"what does the user like"}, answer: "the user likes tea"}
	r := retrieve.New(store, llm, "embed", accesshistory.New(store, 50, 0.5))
	capture := &captureStore{}
	rp := New(llm, r, nil, capture)

	resp, err := rp.Handle(context.Background(), Request{
		EndUserID:    "u1",
		Message:      "what does the user like?",
		SearchSwitch: SwitchRetrieve,
		LLMModelRef:  "gpt",
	})
	require.NoError(t, err)
	require.Equal(t, "the user likes tea", resp.Answer)
	require.True(t, resp.ShortTermMemorySaved)
	require.True(t, capture.saved)
}

func TestHandle_SwitchRetrieve_InsufficientEvidenceSkipsShortTerm(t *testing.T) {
	store := graphstore.NewMemory()
	seedGraph(t, store)
	llm := &scriptedLLM{decompose: []string{"what does the user like"}, answer: InsufficientEvidence}
	r := retrieve.New(store, llm, "embed", accesshistory.New(store, 50, 0.5))
	capture := &captureStore{}
	rp := New(llm, r, nil, capture)

	resp, err := rp.Handle(context.Background(), Request{
		EndUserID:    "u1",
		Message:      "what does the user like?",
		SearchSwitch: SwitchRetrieve,
		LLMModelRef:  "gpt",
	})
	require.NoError(t, err)
	require.Equal(t, InsufficientEvidence, resp.Answer)
	require.False(t, resp.ShortTermMemorySaved)
	require.False(t, capture.saved)
}

func TestHandle_SwitchClassify_ChitChatSkipsRetrieval(t *testing.T) {
	store := graphstore.NewMemory()
	llm := &scriptedLLM{classify: "chit-chat", answer: "haha nice"}
	r := retrieve.New(store, llm, "embed", accesshistory.New(store, 50, 0.5))
	capture := &captureStore{}
	rp := New(llm, r, nil, capture)

	resp, err := rp.Handle(context.Background(), Request{
		EndUserID:    "u1",
		Message:      "lol good morning",
		SearchSwitch: SwitchClassify,
		LLMModelRef:  "gpt",
	})
	require.NoError(t, err)
	require.Equal(t, ClassificationChitChat, resp.Classification)
	require.True(t, capture.saved)
}

func TestHandle_SwitchClassify_ReadDelegatesToRetrieveAndSummarize(t *testing.T) {
	store := graphstore.NewMemory()
	seedGraph(t, store)
	llm := &scriptedLLM{classify: "read", decompose: []string{"q"}, answer: "the user likes tea"}
	r := retrieve.New(store, llm, "embed", accesshistory.New(store, 50, 0.5))
	capture := &captureStore{}
	rp := New(llm, r, nil, capture)

	resp, err := rp.Handle(context.Background(), Request{
		EndUserID:    "u1",
		Message:      "what does the user like?",
		SearchSwitch: SwitchClassify,
		LLMModelRef:  "gpt",
	})
	require.NoError(t, err)
	require.Equal(t, ClassificationRead, resp.Classification)
	require.Equal(t, "the user likes tea", resp.Answer)
}

func TestParseClassification_DefaultsToRead(t *testing.T) {
	require.Equal(t, ClassificationRead, parseClassification("unexpected garbage"))
	require.Equal(t, ClassificationWrite, parseClassification("write"))
	require.Equal(t, ClassificationChitChat, parseClassification("chit-chat"))
}
