// Package retrieve implements C7: the hybrid keyword+embedding retriever
// with activation-aware two-stage ranking. Grounded on
// internal/rag/retrieve/fusion.go's merge-by-id-then-rank shape (adapted
// from Reciprocal Rank Fusion to the spec's z-score/sigmoid normalization
// and activation-partitioned stage-2 ordering) and
// internal/llm/embeddings.go's concurrent-fan-out style, generalized here
// to golang.org/x/sync/errgroup.
package retrieve

import (
	"github.com/memorybear/memoryengine/internal/graphstore"
)

// Request is one retrieval call (§4.7).
type Request struct {
	QueryText string
	EndUserID string
	Include   []graphstore.Category
	Limit     int

	RerankAlpha         float64 // α in content_score = α·bm25_norm + (1-α)·emb_norm
	CandidateMultiplier int     // stage-1 K = Limit * CandidateMultiplier

	// ForgettingEnabled, when true, multiplies base_score by the
	// Ebbinghaus weight (§4.5) before stage-1 selection (§4.7 step 10).
	// Weights must already be computed by the caller (internal/forgetting)
	// and supplied per node id; a missing entry means weight 1.0.
	ForgettingEnabled bool
	ForgettingWeights map[string]float64
}

// Hit is one fully scored candidate in a category's result list (§4.7's
// output annotation).
type Hit struct {
	ID               string
	Props            map[string]any
	BM25Score        *float64
	EmbeddingScore   *float64
	ContentScore     float64
	ActivationScore  *float64
	BaseScore        float64
	FinalScore       float64
	ForgettingWeight *float64
}

// CategoryResult is one category's ranked hit list, or an error summary
// (§4.7 step 1's "empty query" case).
type CategoryResult struct {
	Category graphstore.Category
	Hits     []Hit
	Error    string
}

// Response is the per-category output of one Retrieve call.
type Response struct {
	Results map[graphstore.Category]CategoryResult
}
