package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/memorybear/memoryengine/internal/merrors"
	"github.com/memorybear/memoryengine/internal/provider"
)

const extractSystemPrompt = `Extract atomic statements, named entities, and a short summary from the ` +
	`given chunk. Respond with JSON only: {"statements":[{"statement":"...","stmt_type":"FACT|OPINION|PREDICTION",` +
	`"temporal_info":"STATIC|DYNAMIC|ATEMPORAL","emotion_type":"...","emotion_intensity":0.0,"emotion_subject":"...",` +
	`"emotion_keywords":["..."]}],"entities":[{"name":"...","entity_type":"...","description":"...","aliases":["..."]}],` +
	`"summary":"..."}`

const extractStrictSystemPrompt = extractSystemPrompt +
	` Return ONLY the JSON object, no prose, no markdown fences, no trailing commas.`

type wireStatement struct {
	Statement        string   `json:"statement"`
	StmtType         string   `json:"stmt_type"`
	TemporalInfo     string   `json:"temporal_info"`
	EmotionType      string   `json:"emotion_type"`
	EmotionIntensity *float64 `json:"emotion_intensity"`
	EmotionSubject   string   `json:"emotion_subject"`
	EmotionKeywords  []string `json:"emotion_keywords"`
}

type wireEntity struct {
	Name        string   `json:"name"`
	EntityType  string   `json:"entity_type"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
}

type wireExtraction struct {
	Statements []wireStatement `json:"statements"`
	Entities   []wireEntity    `json:"entities"`
	Summary    string          `json:"summary"`
}

// extract runs the Extract stage (§4.6 step 2) for one chunk's content.
// A JSON parse failure triggers exactly one retry with a stricter system
// prompt; a second failure fails the turn with ExtractionFailed.
func extract(ctx context.Context, llm provider.Provider, modelRef, content string) (ExtractionResult, error) {
	result, err := runExtraction(ctx, llm, modelRef, content, extractSystemPrompt)
	if err == nil {
		return result, nil
	}
	result, err = runExtraction(ctx, llm, modelRef, content, extractStrictSystemPrompt)
	if err != nil {
		return ExtractionResult{}, merrors.New(merrors.ExtractionFailed, "ingest.extract", err)
	}
	return result, nil
}

func runExtraction(ctx context.Context, llm provider.Provider, modelRef, content, systemPrompt string) (ExtractionResult, error) {
	messages := []provider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: content},
	}
	res, err := llm.Chat(ctx, modelRef, messages, provider.ChatOptions{
		StructuredSchema: map[string]any{"type": "object"},
	})
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("extraction call failed: %w", err)
	}

	raw := res.Structured
	if len(raw) == 0 {
		raw = json.RawMessage(res.Text)
	}
	var wire wireExtraction
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ExtractionResult{}, fmt.Errorf("extraction response is not valid JSON: %w", err)
	}

	return toExtractionResult(wire), nil
}

func toExtractionResult(wire wireExtraction) ExtractionResult {
	statements := make([]Statement, 0, len(wire.Statements))
	for _, s := range wire.Statements {
		st := Statement{
			Text:            s.Statement,
			StmtType:        s.StmtType,
			TemporalInfo:    s.TemporalInfo,
			EmotionKeywords: s.EmotionKeywords,
		}
		if s.EmotionType != "" {
			st.EmotionType = &s.EmotionType
		}
		if s.EmotionIntensity != nil {
			st.EmotionIntensity = s.EmotionIntensity
		}
		if s.EmotionSubject != "" {
			st.EmotionSubject = &s.EmotionSubject
		}
		statements = append(statements, st)
	}

	entities := make([]Entity, 0, len(wire.Entities))
	for _, e := range wire.Entities {
		entities = append(entities, Entity{
			Name:        e.Name,
			EntityType:  e.EntityType,
			Description: e.Description,
			Aliases:     e.Aliases,
		})
	}

	return ExtractionResult{
		Statements: statements,
		Entities:   entities,
		Summary:    Summary{Text: wire.Summary},
	}
}
