package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/memorybear/memoryengine/internal/graphstore"
)

// chunkExtraction pairs one Chunk node with its Extract-stage output and
// the dedup-resolved entity ids, ready to be folded into an IngestBatch.
type chunkExtraction struct {
	chunk      graphstore.Node
	extraction ExtractionResult
	entities   []resolvedEntity
}

// buildBatch assembles the all-or-nothing write for one ingestion turn
// (§4.6 step 5): Dialogue/Chunk/Statement/ExtractedEntity/MemorySummary
// nodes plus HAS_CHUNK/HAS_STATEMENT/MENTIONS/DERIVED_FROM_STATEMENT edges.
func buildBatch(endUserID string, seg segmented, work []chunkExtraction) (graphstore.IngestBatch, Result) {
	now := time.Now().UTC()
	batch := graphstore.IngestBatch{
		EndUserID: endUserID,
		Dialogue:  seg.dialogue,
		Chunks:    seg.chunks,
	}
	result := Result{DialogueID: seg.dialogue.ID}
	for _, c := range seg.chunks {
		result.ChunkIDs = append(result.ChunkIDs, c.ID)
		batch.Edges = append(batch.Edges, graphstore.Edge{SourceID: seg.dialogue.ID, Rel: "HAS_CHUNK", TargetID: c.ID})
	}

	entityIDByName := make(map[string]string)

	for _, w := range work {
		statementIDs := make([]string, 0, len(w.extraction.Statements))
		for _, s := range w.extraction.Statements {
			id := uuid.NewString()
			statementIDs = append(statementIDs, id)
			result.StatementIDs = append(result.StatementIDs, id)

			props := map[string]any{
				"statement":     s.Text,
				"stmt_type":     s.StmtType,
				"temporal_info": s.TemporalInfo,
				"embedding":     s.Embedding,
			}
			if s.EmotionType != nil {
				props["emotion_type"] = *s.EmotionType
			}
			if s.EmotionIntensity != nil {
				props["emotion_intensity"] = *s.EmotionIntensity
			}
			if s.EmotionSubject != nil {
				props["emotion_subject"] = *s.EmotionSubject
			}
			if len(s.EmotionKeywords) > 0 {
				props["emotion_keywords"] = s.EmotionKeywords
			}

			batch.Statements = append(batch.Statements, graphstore.Node{
				ID:        id,
				EndUserID: endUserID,
				Labels:    []string{string(graphstore.CategoryStatement)},
				Props:     props,
				CreatedAt: now,
				IsActive:  true,
			})
			batch.Edges = append(batch.Edges, graphstore.Edge{SourceID: w.chunk.ID, Rel: "HAS_STATEMENT", TargetID: id})
		}

		for _, re := range w.entities {
			key := canonicalName(re.entity.Name)
			id, already := entityIDByName[key]
			if !already {
				id = re.id
				entityIDByName[key] = id
				if re.reusedNode == nil {
					batch.Entities = append(batch.Entities, graphstore.Node{
						ID:        id,
						EndUserID: endUserID,
						Labels:    []string{string(graphstore.CategoryEntity)},
						Props: map[string]any{
							"name":             re.entity.Name,
							"entity_type":      re.entity.EntityType,
							"description":      re.entity.Description,
							"aliases":          re.entity.Aliases,
							"name_embedding":   re.entity.NameEmbedding,
							"connect_strength": re.entity.ConnectStrength,
						},
						CreatedAt: now,
						IsActive:  true,
					})
					result.EntityIDs = append(result.EntityIDs, id)
				}
			}
			for _, sid := range statementIDs {
				batch.Edges = append(batch.Edges, graphstore.Edge{SourceID: sid, Rel: "MENTIONS", TargetID: id})
			}
		}

		summaryID := uuid.NewString()
		result.SummaryIDs = append(result.SummaryIDs, summaryID)
		batch.Summaries = append(batch.Summaries, graphstore.Node{
			ID:        summaryID,
			EndUserID: endUserID,
			Labels:    []string{string(graphstore.CategorySummary)},
			Props: map[string]any{
				"content":   w.extraction.Summary.Text,
				"embedding": w.extraction.Summary.Embedding,
			},
			CreatedAt: now,
			IsActive:  true,
		})
		for _, sid := range statementIDs {
			batch.Edges = append(batch.Edges, graphstore.Edge{SourceID: summaryID, Rel: "DERIVED_FROM_STATEMENT", TargetID: sid})
		}
	}

	return batch, result
}

func canonicalName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
