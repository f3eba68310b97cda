package readpath

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/merrors"
	"github.com/memorybear/memoryengine/internal/provider"
	"github.com/memorybear/memoryengine/internal/retrieve"
)

var allCategories = []graphstore.Category{
	graphstore.CategoryStatement,
	graphstore.CategoryEntity,
	graphstore.CategorySummary,
	graphstore.CategoryChunk,
}

const decomposeSystemPrompt = `Break the user's message into one or more focused search sub-queries. ` +
	`Respond with JSON: {"sub_queries":["..."]}. If the message is already a single focused question, ` +
	`return it unchanged as the only element.`

const retrieveSummarySystemPrompt = `Answer the sub-query using only the provided statements and summaries. ` +
	`If they do not contain enough information to answer, respond with exactly: ` + InsufficientEvidence

// retrieveAndSummarize implements §4.8's "Retrieval + summarization" flow
// (steps 1-4), used by search_switch=="1" and the "read" classification
// branch of search_switch=="0".
func (rp *ReadPath) retrieveAndSummarize(ctx context.Context, req Request, classification Classification) (Response, error) {
	subQueries, err := rp.decompose(ctx, req)
	if err != nil {
		subQueries = []string{req.Message}
	}

	merged := make(map[graphstore.Category]retrieve.CategoryResult)
	for _, sq := range subQueries {
		out, err := rp.retriever.Retrieve(ctx, retrieve.Request{
			QueryText: sq,
			EndUserID: req.EndUserID,
			Include:   allCategories,
			Limit:     10,
		})
		if err != nil {
			return Response{}, err
		}
		mergeCategoryResults(merged, out.Results)
	}

	answer, err := rp.summarize(ctx, req, subQueries, merged)
	if err != nil {
		return Response{}, err
	}

	resp := Response{Answer: answer, Classification: classification, RetrievedContent: merged}
	rp.saveShortTerm(ctx, req, &resp, merged)
	return resp, nil
}

func (rp *ReadPath) decompose(ctx context.Context, req Request) ([]string, error) {
	messages := []provider.Message{
		{Role: "system", Content: decomposeSystemPrompt},
		{Role: "user", Content: req.Message},
	}
	result, err := rp.llm.Chat(ctx, req.LLMModelRef, messages, provider.ChatOptions{
		StructuredSchema: map[string]any{"type": "object"},
	})
	if err != nil {
		return nil, merrors.New(merrors.LLMCallFailed, "readpath.decompose", err)
	}

	raw := result.Structured
	if len(raw) == 0 {
		raw = json.RawMessage(result.Text)
	}
	var wire struct {
		SubQueries []string `json:"sub_queries"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil || len(wire.SubQueries) == 0 {
		return []string{req.Message}, nil
	}
	return wire.SubQueries, nil
}

func (rp *ReadPath) summarize(ctx context.Context, req Request, subQueries []string, retrieved map[graphstore.Category]retrieve.CategoryResult) (string, error) {
	var b strings.Builder
	b.WriteString("Sub-queries:\n")
	for _, sq := range subQueries {
		b.WriteString("- " + sq + "\n")
	}
	b.WriteString("\nStatements:\n")
	for _, h := range retrieved[graphstore.CategoryStatement].Hits {
		if s, ok := h.Props["statement"].(string); ok {
			b.WriteString(fmt.Sprintf("- %s\n", s))
		}
	}
	b.WriteString("\nSummaries:\n")
	for _, h := range retrieved[graphstore.CategorySummary].Hits {
		if s, ok := h.Props["content"].(string); ok {
			b.WriteString(fmt.Sprintf("- %s\n", s))
		}
	}

	messages := []provider.Message{
		{Role: "system", Content: retrieveSummarySystemPrompt},
		{Role: "user", Content: b.String()},
	}
	result, err := rp.llm.Chat(ctx, req.LLMModelRef, messages, provider.ChatOptions{})
	if err != nil {
		return "", merrors.New(merrors.LLMCallFailed, "readpath.summarize", err)
	}
	return result.Text, nil
}

func mergeCategoryResults(dst map[graphstore.Category]retrieve.CategoryResult, src map[graphstore.Category]retrieve.CategoryResult) {
	for category, result := range src {
		existing, ok := dst[category]
		if !ok {
			dst[category] = result
			continue
		}
		seen := make(map[string]bool, len(existing.Hits))
		for _, h := range existing.Hits {
			seen[h.ID] = true
		}
		for _, h := range result.Hits {
			if !seen[h.ID] {
				existing.Hits = append(existing.Hits, h)
				seen[h.ID] = true
			}
		}
		dst[category] = existing
	}
}
