// Package forgetting implements C5: the Ebbinghaus rerank weight and the
// periodic forgetting cycle that fuses near-duplicate low-activation
// nodes. Grounded on original_source's forgetting_engine (referenced by
// search.py's rerank) for the weight function, and
// internal/evolve/evolve.go's SampleProgramsFromDatabase (sort-then-take
// candidate selection) for the scan/select shape of the cycle.
package forgetting

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/merrors"
	"github.com/memorybear/memoryengine/internal/provider"
)

// scanRange spans all of recorded history; TemporalSearch filters by
// CreatedAt and a zero-value TemporalRange would exclude every node
// (its zero To sorts before any real timestamp).
var scanRange = graphstore.TemporalRange{
	From: time.Unix(0, 0),
	To:   time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC),
}

// DefaultTau is the Ebbinghaus decay constant used when config leaves it
// unset; larger tau slows forgetting.
const DefaultTau = 1.0

// DefaultFusionThreshold is the minimum cosine similarity (§4.5 step 2)
// for two low-activation nodes to be considered a fusion candidate.
const DefaultFusionThreshold = 0.9

// Weight computes the Ebbinghaus forgetting weight w(Δt_days, S) =
// exp(-Δt_days / (τ·S)). Used only inside C7's rerank when forgetting is
// enabled; it never touches activation_value itself.
func Weight(deltaTDays, memoryStrength, tau float64) float64 {
	if tau <= 0 {
		tau = DefaultTau
	}
	if memoryStrength <= 0 {
		memoryStrength = 1e-6
	}
	return math.Exp(-deltaTDays / (tau * memoryStrength))
}

// Pair is two candidate nodes selected for fusion.
type Pair struct {
	Category   graphstore.Category
	SurvivorID string
	AbsorbedID string
	Similarity float64
}

// Report summarizes one forgetting-cycle run (§4.5).
type Report struct {
	Scanned int
	Merged  int
	Failed  int
}

// candidate is a low-activation node plus its embedding, as scanned from
// the graph store for one category.
type candidate struct {
	node      graphstore.Node
	embedding []float32
}

// Cycle drives the forgetting cycle for categories forgetting applies to
// (Statement, ExtractedEntity, MemorySummary, Chunk per §4.5 step 1).
type Cycle struct {
	store           graphstore.GraphStore
	llm             provider.Provider
	llmModelRef     string
	fusionThreshold float64
}

// New builds a Cycle. fusionThreshold <= 0 uses DefaultFusionThreshold.
func New(store graphstore.GraphStore, llm provider.Provider, llmModelRef string, fusionThreshold float64) *Cycle {
	if fusionThreshold <= 0 {
		fusionThreshold = DefaultFusionThreshold
	}
	return &Cycle{store: store, llm: llm, llmModelRef: llmModelRef, fusionThreshold: fusionThreshold}
}

// Run scans the given categories for endUserID where activation_value <
// forgettingThreshold, pairs candidates by cosine similarity above the
// fusion threshold, and fuses each pair via an LLM-chosen surviving
// content call (structured, through C2). Failed pairs are left for the
// next cycle rather than retried inline.
func (c *Cycle) Run(ctx context.Context, endUserID string, categories []graphstore.Category, forgettingThreshold float64) (Report, error) {
	var report Report

	for _, category := range categories {
		candidates, err := c.scanLowActivation(ctx, endUserID, category, forgettingThreshold)
		if err != nil {
			return report, merrors.New(merrors.FusionFailed, "forgetting.Run", err)
		}
		report.Scanned += len(candidates)

		pairs := pairBySimilarity(category, candidates, c.fusionThreshold)
		for _, p := range pairs {
			if err := c.fuse(ctx, endUserID, p); err != nil {
				report.Failed++
				continue
			}
			report.Merged++
		}
	}
	return report, nil
}

func (c *Cycle) scanLowActivation(ctx context.Context, endUserID string, category graphstore.Category, threshold float64) ([]candidate, error) {
	hits, err := c.store.TemporalSearch(ctx, endUserID, category, scanRange, 0)
	if err != nil {
		return nil, err
	}
	var out []candidate
	for _, h := range hits {
		node, ok, err := c.store.GetNode(ctx, endUserID, h.ID)
		if err != nil {
			return nil, err
		}
		if !ok || node.ActivationValue == nil || *node.ActivationValue >= threshold {
			continue
		}
		emb, _ := node.Props["embedding"].([]float32)
		out = append(out, candidate{node: node, embedding: emb})
	}
	return out, nil
}

func pairBySimilarity(category graphstore.Category, candidates []candidate, threshold float64) []Pair {
	used := make(map[string]bool, len(candidates))
	var pairs []Pair
	for i := 0; i < len(candidates); i++ {
		if used[candidates[i].node.ID] || len(candidates[i].embedding) == 0 {
			continue
		}
		best := -1
		bestSim := threshold
		for j := i + 1; j < len(candidates); j++ {
			if used[candidates[j].node.ID] || len(candidates[j].embedding) == 0 {
				continue
			}
			sim := cosine(candidates[i].embedding, candidates[j].embedding)
			if sim >= bestSim {
				bestSim = sim
				best = j
			}
		}
		if best == -1 {
			continue
		}
		used[candidates[i].node.ID] = true
		used[candidates[best].node.ID] = true
		survivor, absorbed := candidates[i], candidates[best]
		if scoreOf(absorbed.node) > scoreOf(survivor.node) {
			survivor, absorbed = absorbed, survivor
		}
		pairs = append(pairs, Pair{
			Category:   category,
			SurvivorID: survivor.node.ID,
			AbsorbedID: absorbed.node.ID,
			Similarity: bestSim,
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	return pairs
}

func scoreOf(n graphstore.Node) float64 {
	if n.ImportanceScore != nil {
		return *n.ImportanceScore
	}
	return 0
}

func (c *Cycle) fuse(ctx context.Context, endUserID string, p Pair) error {
	if c.llm != nil {
		survivor, ok, err := c.store.GetNode(ctx, endUserID, p.SurvivorID)
		if err == nil && ok {
			absorbed, ok2, err2 := c.store.GetNode(ctx, endUserID, p.AbsorbedID)
			if err2 == nil && ok2 {
				choice, err := c.chooseSurvivingContent(ctx, survivor, absorbed)
				if err != nil {
					return err
				}
				var pick struct {
					Surviving string `json:"surviving"`
				}
				if json.Unmarshal([]byte(choice), &pick) == nil && pick.Surviving == "b" {
					p.SurvivorID, p.AbsorbedID = p.AbsorbedID, p.SurvivorID
				}
			}
		}
	}
	_, err := c.store.MergeEntities(ctx, endUserID, p.SurvivorID, p.AbsorbedID)
	return err
}

// chooseSurvivingContent asks the LLM (structured call, C2) which of the
// two nodes' content should survive the fuse; failure here aborts the
// fuse for this cycle, leaving both nodes intact for the next one.
func (c *Cycle) chooseSurvivingContent(ctx context.Context, a, b graphstore.Node) (string, error) {
	prompt := fmt.Sprintf(
		"Two memory entries are near-duplicates. Pick the one whose content should survive a merge; respond with JSON {\"surviving\":\"a\"|\"b\"}.\nA: %v\nB: %v",
		a.Props["content"], b.Props["content"],
	)
	result, err := c.llm.Chat(ctx, c.llmModelRef, []provider.Message{{Role: "user", Content: prompt}}, provider.ChatOptions{
		StructuredSchema: map[string]any{"type": "object"},
	})
	if err != nil {
		return "", merrors.New(merrors.FusionFailed, "forgetting.chooseSurvivingContent", err)
	}
	return string(result.Structured), nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
