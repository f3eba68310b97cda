package retrieve

import (
	"context"
	"strings"

	"github.com/memorybear/memoryengine/internal/accesshistory"
	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/provider"
)

// Retriever runs C7 against a graph store and an embedding-capable
// provider, recording activation accesses (C4) on every knowledge-layer
// hit it returns.
type Retriever struct {
	store      graphstore.GraphStore
	embedder   provider.Provider
	embedModel string
	history    *accesshistory.Manager
}

// New builds a Retriever.
func New(store graphstore.GraphStore, embedder provider.Provider, embedModel string, history *accesshistory.Manager) *Retriever {
	return &Retriever{store: store, embedder: embedder, embedModel: embedModel, history: history}
}

// Retrieve runs the full §4.7 algorithm.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.QueryText) == "" {
		results := make(map[graphstore.Category]CategoryResult, len(req.Include))
		for _, c := range req.Include {
			results[c] = CategoryResult{Category: c, Error: "Empty query"}
		}
		return Response{Results: results}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	multiplier := req.CandidateMultiplier
	if multiplier <= 0 {
		multiplier = 3
	}
	alpha := req.RerankAlpha
	if alpha == 0 {
		alpha = 0.6
	}
	stage1K := limit * multiplier

	searchLimit := stage1K
	if searchLimit < limit {
		searchLimit = limit
	}

	rawByCategory, err := fanOut(ctx, r.store, r.embedder, r.embedModel, req, searchLimit)
	if err != nil {
		return Response{}, err
	}

	// Step 3: per-category dedup, producing the merged candidate set
	// that step 4's activation update and step 5's normalization both
	// operate on.
	mergedByCategory := make(map[graphstore.Category][]mergedCandidate, len(req.Include))
	var accessHits []accesshistory.Hit
	for _, category := range req.Include {
		merged := dedupAndMerge(rawByCategory[category])
		mergedByCategory[category] = merged
		if category == graphstore.CategoryChunk {
			continue
		}
		for _, c := range merged {
			accessHits = append(accessHits, accesshistory.Hit{NodeID: c.id, Category: category})
		}
	}

	// Step 4: update activation on all returned hits before normalization
	// so ranking sees the post-access activation_value.
	if r.history != nil && len(accessHits) > 0 {
		updated, err := r.history.RecordAccesses(ctx, req.EndUserID, accessHits)
		if err == nil {
			applyUpdatedActivation(mergedByCategory, updated)
		}
	}

	results := make(map[graphstore.Category]CategoryResult, len(req.Include))
	for _, category := range req.Include {
		var weights map[string]float64
		if req.ForgettingEnabled {
			weights = req.ForgettingWeights
		}
		ranked := rankCategory(mergedByCategory[category], alpha, limit, stage1K, weights)
		results[category] = CategoryResult{Category: category, Hits: ranked}
	}

	return Response{Results: results}, nil
}

// applyUpdatedActivation folds the post-access activation_value (§4.4
// step 4) back into the merged candidates so normalization (step 5) and
// ranking see the current value rather than the pre-retrieval one.
func applyUpdatedActivation(mergedByCategory map[graphstore.Category][]mergedCandidate, updated []graphstore.Node) {
	byID := make(map[string]graphstore.Node, len(updated))
	for _, n := range updated {
		byID[n.ID] = n
	}
	for category, candidates := range mergedByCategory {
		for i := range candidates {
			if n, ok := byID[candidates[i].id]; ok && n.ActivationValue != nil {
				if candidates[i].props == nil {
					candidates[i].props = map[string]any{}
				}
				candidates[i].props["activation_value"] = *n.ActivationValue
			}
		}
		mergedByCategory[category] = candidates
	}
}
