// Package graphstore adapts the labeled property graph described by the
// data model (Dialogue -> Chunk -> Statement/ExtractedEntity/MemorySummary)
// to a concrete backend. It generalizes the teacher's split GraphDB /
// VectorStore / FullTextSearch interfaces into the typed operations the
// memory engine's components (C4, C6, C7) call directly.
package graphstore

import (
	"context"
	"time"
)

// Category names the four node kinds that hybrid search covers.
// Statement, Entity and Summary are knowledge-layer nodes and take part in
// activation tracking; Chunk is a raw-text layer node, searchable but
// excluded from activation. Dialogue has no Category and is addressed
// through GetByDialogueID.
type Category string

const (
	CategoryStatement Category = "statements"
	CategoryEntity    Category = "entities"
	CategorySummary   Category = "summaries"
	CategoryChunk     Category = "chunks"
)

// NodeHit is one match from a keyword or embedding search.
type NodeHit struct {
	ID    string
	Score float64
	Props map[string]any
}

// Node is a fully materialized graph node, including the activation
// bookkeeping fields used by C4.
type Node struct {
	ID              string
	EndUserID       string
	Labels          []string
	Props           map[string]any
	CreatedAt       time.Time
	IsActive        bool
	Version         int64
	ActivationValue *float64
	AccessHistory   []time.Time
	ImportanceScore *float64
}

// Edge is a directed, typed relationship between two nodes.
type Edge struct {
	SourceID string
	Rel      string
	TargetID string
	Props    map[string]any
}

// IngestBatch is the all-or-nothing write produced by one ingestion turn
// (C6 stage 5). Every node/edge here belongs to the same end_user_id.
type IngestBatch struct {
	EndUserID  string
	Dialogue   Node
	Chunks     []Node
	Statements []Node
	Entities   []Node
	Summaries  []Node
	Edges      []Edge
}

// TemporalRange bounds a temporal_search query by created_at.
type TemporalRange struct {
	From time.Time
	To   time.Time
}

// ActivationUpdate is one row of a batched C4 write. The store appends
// NewHistoryTail to the node's access_history and trims it to HistoryCap
// (FIFO, oldest dropped) in the same write that sets NewValue.
type ActivationUpdate struct {
	NodeID          string
	Category        Category
	NewValue        float64
	NewHistoryTail  time.Time
	HistoryCap      int
	ExpectedVersion int64
}

// ErrVersionConflict is returned by BatchUpdateActivation and MergeEntities
// when the optimistic-concurrency check fails; callers retry up to a
// bounded count (internal/accesshistory does this for activation writes).
var ErrVersionConflict = versionConflictError{}

type versionConflictError struct{}

func (versionConflictError) Error() string { return "graphstore: version conflict" }

// GraphStore is the C1 adapter surface. Every method is scoped by
// end_user_id (either via an explicit parameter or embedded in the node
// ids passed in); cross-user access must never be possible through this
// interface.
type GraphStore interface {
	KeywordSearch(ctx context.Context, endUserID string, category Category, query string, limit int) ([]NodeHit, error)
	EmbeddingSearch(ctx context.Context, endUserID string, category Category, vector []float32, limit int) ([]NodeHit, error)
	TemporalSearch(ctx context.Context, endUserID string, category Category, r TemporalRange, limit int) ([]NodeHit, error)

	GetByChunkID(ctx context.Context, endUserID, chunkID string) (Node, bool, error)
	GetByDialogueID(ctx context.Context, endUserID, dialogueID string) (Node, bool, error)
	GetNode(ctx context.Context, endUserID, nodeID string) (Node, bool, error)

	UpsertIngestedBatch(ctx context.Context, batch IngestBatch) error

	BatchUpdateActivation(ctx context.Context, endUserID string, updates []ActivationUpdate) ([]Node, error)

	// MergeEntities transfers all relationships from absorbedID to
	// survivingID, unions aliases, recomputes access_history as a
	// deduplicated capped union, and keeps the max activation_value.
	MergeEntities(ctx context.Context, endUserID, survivingID, absorbedID string) (Node, error)

	// FindEntityByName performs the case-insensitive lookup backing
	// second-layer entity dedup (C6 stage 4) and the UNIQUE(end_user_id,
	// lower(name)) invariant (§3 invariant 3).
	FindEntityByName(ctx context.Context, endUserID, name string) (Node, bool, error)
}
