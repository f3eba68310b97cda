// Package ingest implements C6: the staged ingestion pipeline that turns
// one dialogue turn into Dialogue/Chunk/Statement/ExtractedEntity/
// MemorySummary nodes and edges. One file per stage, mirroring
// internal/rag/ingest/{preprocess,index_graph,index_search,index_vector}.go's
// stage split, and agentic_memory.go's IngestAgenticMemory's sequential
// numbered-step style.
package ingest

import (
	"github.com/memorybear/memoryengine/internal/graphstore"
)

// StorageType selects the destination the spec calls out in §4.6's input
// shape ({end_user_id, messages, storage_type, config}).
type StorageType string

const (
	StorageGraph StorageType = "graph"
	StorageRAG   StorageType = "rag"
)

// Message is one turn of conversational input.
type Message struct {
	Role    string
	Content string
}

// Request is one ingestion-turn input (§4.6).
type Request struct {
	EndUserID   string
	Messages    []Message
	StorageType StorageType
}

// Statement mirrors the Statement node's attributes (spec §3), including
// the emotion-tagged fields supplemented from the original service.
type Statement struct {
	Text             string
	StmtType         string // FACT | OPINION | PREDICTION
	TemporalInfo     string // STATIC | DYNAMIC | ATEMPORAL
	ValidAt          *string
	InvalidAt        *string
	EmotionType      *string
	EmotionIntensity *float64
	EmotionSubject   *string
	EmotionKeywords  []string
	Embedding        []float32
}

// Entity mirrors the ExtractedEntity node's attributes (spec §3).
type Entity struct {
	Name             string
	EntityType       string
	Description      string
	Aliases          []string
	ConnectStrength  float64
	IsExplicitMemory bool
	NameEmbedding    []float32
}

// Summary mirrors the MemorySummary node (spec §3/§4.6 "summary").
type Summary struct {
	Text      string
	Embedding []float32
}

// ExtractionResult is the Extract stage's structured LLM output for one
// Chunk (§4.6 step 2: "{statements[], entities[], summary}").
type ExtractionResult struct {
	Statements []Statement
	Entities   []Entity
	Summary    Summary
}

// Result is what one ingestion turn produces once persisted.
type Result struct {
	DialogueID   string
	ChunkIDs     []string
	StatementIDs []string
	EntityIDs    []string
	SummaryIDs   []string
}

// segmented is the Segment stage's output: a Dialogue plus its Chunks.
type segmented struct {
	dialogue graphstore.Node
	chunks   []graphstore.Node
}
