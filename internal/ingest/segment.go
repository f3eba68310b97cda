package ingest

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memorybear/memoryengine/internal/graphstore"
)

// segment turns the request's messages into one Dialogue node and one
// Chunk per message (§4.6 step 1: "for short turns one Chunk equals the
// turn"). Chunk content is the message content verbatim; longer-turn
// splitting is a future extension the spec does not require here.
func segment(req Request) segmented {
	now := time.Now().UTC()

	var full strings.Builder
	chunks := make([]graphstore.Node, 0, len(req.Messages))
	dialogueID := uuid.NewString()

	for _, m := range req.Messages {
		full.WriteString(m.Role)
		full.WriteString(": ")
		full.WriteString(m.Content)
		full.WriteString("\n")

		chunks = append(chunks, graphstore.Node{
			ID:        uuid.NewString(),
			EndUserID: req.EndUserID,
			Labels:    []string{string(graphstore.CategoryChunk)},
			Props: map[string]any{
				"content": m.Content,
				"role":    m.Role,
			},
			CreatedAt: now,
			IsActive:  true,
		})
	}

	dialogue := graphstore.Node{
		ID:        dialogueID,
		EndUserID: req.EndUserID,
		Labels:    []string{"dialogue"},
		Props: map[string]any{
			"content": full.String(),
		},
		CreatedAt: now,
		IsActive:  true,
	}

	return segmented{dialogue: dialogue, chunks: chunks}
}
