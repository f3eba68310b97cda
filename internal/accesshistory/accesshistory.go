// Package accesshistory implements C4: the append-only access-history
// bookkeeping every retrieval triggers on the knowledge-layer nodes it
// returned. Grounded on internal/orchestrator/kafka.go's retry-with-backoff
// loop (reused here for optimistic-concurrency retries) and
// agentic_memory.go's single-batch-per-call write style.
package accesshistory

import (
	"context"
	"fmt"
	"time"

	"github.com/memorybear/memoryengine/internal/activation"
	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/merrors"
)

const maxRetries = 3

// Hit is one node a caller wants to record an access for. Category must
// be one of the knowledge-layer categories; CategoryChunk and Dialogue
// nodes are rejected per §4.4's data-layer isolation rule.
type Hit struct {
	NodeID   string
	Category graphstore.Category
}

// Manager batches access-history writes per node-label and recomputes
// activation_value via C3 on every touched node.
type Manager struct {
	store graphstore.GraphStore
	cap   int
	decay float64
}

// New builds a Manager. historyCap and decay come from the engine's
// config object (access_history_cap, activation_decay_d).
func New(store graphstore.GraphStore, historyCap int, decay float64) *Manager {
	if historyCap <= 0 {
		historyCap = 50
	}
	return &Manager{store: store, cap: historyCap, decay: decay}
}

// RecordAccesses dedupes hits by node id preserving insertion order,
// excludes Chunk/Dialogue nodes, then issues one batched write per
// category with optimistic-concurrency retry. It returns the updated
// nodes so callers can enrich an in-memory hit list (§4.4 step 4).
func (m *Manager) RecordAccesses(ctx context.Context, endUserID string, hits []Hit) ([]graphstore.Node, error) {
	seen := make(map[string]bool, len(hits))
	var deduped []Hit
	for _, h := range hits {
		if h.Category == graphstore.CategoryChunk {
			continue
		}
		if seen[h.NodeID] {
			continue
		}
		seen[h.NodeID] = true
		deduped = append(deduped, h)
	}
	if len(deduped) == 0 {
		return nil, nil
	}

	byCategory := make(map[graphstore.Category][]Hit)
	for _, h := range deduped {
		byCategory[h.Category] = append(byCategory[h.Category], h)
	}

	var updated []graphstore.Node
	for category, categoryHits := range byCategory {
		rows, err := m.writeCategory(ctx, endUserID, category, categoryHits)
		if err != nil {
			return updated, err
		}
		updated = append(updated, rows...)
	}
	return updated, nil
}

func (m *Manager) writeCategory(ctx context.Context, endUserID string, category graphstore.Category, hits []Hit) ([]graphstore.Node, error) {
	now := time.Now().UTC()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		updates := make([]graphstore.ActivationUpdate, 0, len(hits))
		for _, h := range hits {
			node, ok, err := m.store.GetNode(ctx, endUserID, h.NodeID)
			if err != nil {
				return nil, merrors.New(merrors.ActivationUpdateConflict, "accesshistory.writeCategory", err)
			}
			if !ok {
				continue
			}
			history := append(append([]time.Time{}, node.AccessHistory...), now)
			history = capHistory(history, m.cap)
			newValue, ok := activation.BaseLevel(toUnixSeconds(history), float64(now.Unix()), m.decay)
			if !ok {
				continue
			}
			updates = append(updates, graphstore.ActivationUpdate{
				NodeID:          h.NodeID,
				Category:        category,
				NewValue:        newValue,
				NewHistoryTail:  now,
				HistoryCap:      m.cap,
				ExpectedVersion: node.Version,
			})
		}
		if len(updates) == 0 {
			return nil, nil
		}

		rows, err := m.store.BatchUpdateActivation(ctx, endUserID, updates)
		if err == nil {
			return rows, nil
		}
		if err != graphstore.ErrVersionConflict {
			return nil, merrors.New(merrors.ActivationUpdateConflict, "accesshistory.writeCategory", err)
		}
		lastErr = err
	}
	return nil, merrors.New(merrors.ActivationUpdateConflict, "accesshistory.writeCategory",
		fmt.Errorf("exhausted %d retries: %w", maxRetries, lastErr))
}

func capHistory(history []time.Time, capN int) []time.Time {
	if len(history) <= capN {
		return history
	}
	return history[len(history)-capN:]
}

func toUnixSeconds(history []time.Time) []float64 {
	out := make([]float64, len(history))
	for i, t := range history {
		out[i] = float64(t.Unix())
	}
	return out
}
