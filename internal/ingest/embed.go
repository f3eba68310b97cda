package ingest

import (
	"context"

	"github.com/memorybear/memoryengine/internal/merrors"
	"github.com/memorybear/memoryengine/internal/provider"
)

// embedAll sends all Statements, Entities' names, and Summaries from a
// batch of extractions to C2 in a single batched embedding call per
// category (§4.6 step 3), mutating the slices in place.
func embedAll(ctx context.Context, llm provider.Provider, modelRef string, extractions []ExtractionResult) error {
	var statementTexts, entityNames, summaryTexts []string
	var statementRefs []*Statement
	var entityRefs []*Entity
	var summaryRefs []*Summary

	for i := range extractions {
		for j := range extractions[i].Statements {
			statementTexts = append(statementTexts, extractions[i].Statements[j].Text)
			statementRefs = append(statementRefs, &extractions[i].Statements[j])
		}
		for j := range extractions[i].Entities {
			entityNames = append(entityNames, extractions[i].Entities[j].Name)
			entityRefs = append(entityRefs, &extractions[i].Entities[j])
		}
		summaryTexts = append(summaryTexts, extractions[i].Summary.Text)
		summaryRefs = append(summaryRefs, &extractions[i].Summary)
	}

	if len(statementTexts) > 0 {
		vecs, err := llm.Embed(ctx, modelRef, statementTexts)
		if err != nil {
			return merrors.New(merrors.EmbeddingFailed, "ingest.embedAll.statements", err)
		}
		for i, v := range vecs {
			statementRefs[i].Embedding = v
		}
	}
	if len(entityNames) > 0 {
		vecs, err := llm.Embed(ctx, modelRef, entityNames)
		if err != nil {
			return merrors.New(merrors.EmbeddingFailed, "ingest.embedAll.entities", err)
		}
		for i, v := range vecs {
			entityRefs[i].NameEmbedding = v
		}
	}
	if len(summaryTexts) > 0 {
		vecs, err := llm.Embed(ctx, modelRef, summaryTexts)
		if err != nil {
			return merrors.New(merrors.EmbeddingFailed, "ingest.embedAll.summaries", err)
		}
		for i, v := range vecs {
			summaryRefs[i].Embedding = v
		}
	}
	return nil
}
