package graphstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memoryStore is an in-process GraphStore used by unit tests and by the
// in-memory backend mode of the engine. It mirrors the shape of the
// teacher's memoryGraph (nodes map + edge-key map guarded by one mutex)
// generalized to the richer node/edge/activation surface of C1.
type memoryStore struct {
	mu    sync.RWMutex
	nodes map[string]Node
	edges map[edgeKey]map[string]Edge
}

type edgeKey struct{ src, rel string }

// NewMemory returns a GraphStore backed by in-process maps. Intended for
// tests and for local/dev runs without Postgres configured.
func NewMemory() GraphStore {
	return &memoryStore{
		nodes: make(map[string]Node),
		edges: make(map[edgeKey]map[string]Edge),
	}
}

func (m *memoryStore) ensureEdgeKey(k edgeKey) {
	if _, ok := m.edges[k]; !ok {
		m.edges[k] = make(map[string]Edge)
	}
}

func (m *memoryStore) putNode(n Node) {
	m.nodes[n.ID] = n
}

func (m *memoryStore) putEdge(e Edge) {
	key := edgeKey{src: e.SourceID, rel: e.Rel}
	m.ensureEdgeKey(key)
	m.edges[key][e.TargetID] = e
}

func containsToken(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func nodeText(n Node) string {
	if n.Props == nil {
		return ""
	}
	var sb strings.Builder
	for _, k := range []string{"content", "statement", "name", "description"} {
		if v, ok := n.Props[k]; ok {
			if s, ok := v.(string); ok {
				sb.WriteString(s)
				sb.WriteString(" ")
			}
		}
	}
	return sb.String()
}

func hasLabel(n Node, category Category) bool {
	want := string(category)
	for _, l := range n.Labels {
		if strings.EqualFold(l, want) || strings.EqualFold(l, strings.TrimSuffix(want, "s")) {
			return true
		}
	}
	return false
}

func (m *memoryStore) KeywordSearch(_ context.Context, endUserID string, category Category, query string, limit int) ([]NodeHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []NodeHit
	for _, n := range m.nodes {
		if n.EndUserID != endUserID || !n.IsActive || !hasLabel(n, category) {
			continue
		}
		text := nodeText(n)
		if query == "" || containsToken(text, query) {
			score := 1.0
			if query != "" {
				score = float64(strings.Count(strings.ToLower(text), strings.ToLower(query)))
			}
			hits = append(hits, NodeHit{ID: n.ID, Score: score, Props: n.Props})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrt(na) * sqrt(nb))
}

func sqrt(v float64) float64 {
	if v == 0 {
		return 0
	}
	x := v
	for i := 0; i < 40; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

func embeddingOf(n Node) []float32 {
	if n.Props == nil {
		return nil
	}
	v, ok := n.Props["embedding"]
	if !ok {
		return nil
	}
	vec, ok := v.([]float32)
	if !ok {
		return nil
	}
	return vec
}

func (m *memoryStore) EmbeddingSearch(_ context.Context, endUserID string, category Category, vector []float32, limit int) ([]NodeHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []NodeHit
	for _, n := range m.nodes {
		if n.EndUserID != endUserID || !n.IsActive || !hasLabel(n, category) {
			continue
		}
		vec := embeddingOf(n)
		if vec == nil {
			continue
		}
		hits = append(hits, NodeHit{ID: n.ID, Score: cosine(vector, vec), Props: n.Props})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *memoryStore) TemporalSearch(_ context.Context, endUserID string, category Category, r TemporalRange, limit int) ([]NodeHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []NodeHit
	for _, n := range m.nodes {
		if n.EndUserID != endUserID || !n.IsActive || !hasLabel(n, category) {
			continue
		}
		if n.CreatedAt.Before(r.From) || n.CreatedAt.After(r.To) {
			continue
		}
		hits = append(hits, NodeHit{ID: n.ID, Score: 1, Props: n.Props})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *memoryStore) getByEdge(endUserID, rel, id string) (Node, bool) {
	for key, dsts := range m.edges {
		if key.rel != rel {
			continue
		}
		if _, ok := dsts[id]; ok {
			n, ok := m.nodes[key.src]
			if ok && n.EndUserID == endUserID {
				return n, true
			}
		}
	}
	return Node{}, false
}

func (m *memoryStore) GetByChunkID(_ context.Context, endUserID, chunkID string) (Node, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.getByEdge(endUserID, "HAS_CHUNK", chunkID)
	return n, ok, nil
}

func (m *memoryStore) GetByDialogueID(_ context.Context, endUserID, dialogueID string) (Node, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[dialogueID]
	if !ok || n.EndUserID != endUserID {
		return Node{}, false, nil
	}
	return n, true, nil
}

func (m *memoryStore) GetNode(_ context.Context, endUserID, nodeID string) (Node, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[nodeID]
	if !ok || n.EndUserID != endUserID || !n.IsActive {
		return Node{}, false, nil
	}
	return n, true, nil
}

func (m *memoryStore) UpsertIngestedBatch(_ context.Context, batch IngestBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.putNode(batch.Dialogue)
	for _, c := range batch.Chunks {
		m.putNode(c)
	}
	for _, s := range batch.Statements {
		m.putNode(s)
	}
	for _, e := range batch.Entities {
		m.putNode(e)
	}
	for _, s := range batch.Summaries {
		m.putNode(s)
	}
	for _, e := range batch.Edges {
		m.putEdge(e)
	}
	return nil
}

func (m *memoryStore) BatchUpdateActivation(_ context.Context, endUserID string, updates []ActivationUpdate) ([]Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Node
	for _, u := range updates {
		n, ok := m.nodes[u.NodeID]
		if !ok || n.EndUserID != endUserID {
			continue
		}
		if n.Version != u.ExpectedVersion {
			return out, ErrVersionConflict
		}
		v := u.NewValue
		n.ActivationValue = &v
		n.AccessHistory = append(n.AccessHistory, u.NewHistoryTail)
		if u.HistoryCap > 0 {
			n.AccessHistory = capHistory(n.AccessHistory, u.HistoryCap)
		}
		n.Version++
		m.nodes[n.ID] = n
		out = append(out, n)
	}
	return out, nil
}

func (m *memoryStore) MergeEntities(_ context.Context, endUserID, survivingID, absorbedID string) (Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	surv, ok := m.nodes[survivingID]
	if !ok || surv.EndUserID != endUserID {
		return Node{}, ErrVersionConflict
	}
	abs, ok := m.nodes[absorbedID]
	if !ok || abs.EndUserID != endUserID {
		return surv, nil
	}

	// Union aliases.
	survAliases, _ := surv.Props["aliases"].([]string)
	absAliases, _ := abs.Props["aliases"].([]string)
	merged := unionStrings(survAliases, absAliases)
	if absName, ok := abs.Props["name"].(string); ok {
		merged = unionStrings(merged, []string{absName})
	}
	if surv.Props == nil {
		surv.Props = map[string]any{}
	}
	surv.Props["aliases"] = merged

	// Union + cap + dedup access_history.
	combined := append(append([]time.Time{}, surv.AccessHistory...), abs.AccessHistory...)
	surv.AccessHistory = capHistory(dedupHistory(combined), 50)

	// Keep max activation_value.
	if abs.ActivationValue != nil {
		if surv.ActivationValue == nil || *abs.ActivationValue > *surv.ActivationValue {
			surv.ActivationValue = abs.ActivationValue
		}
	}

	// Transfer relationships: rewrite any edge referencing absorbedID.
	for key, dsts := range m.edges {
		if key.src == absorbedID {
			newKey := edgeKey{src: survivingID, rel: key.rel}
			m.ensureEdgeKey(newKey)
			for dst, e := range dsts {
				e.SourceID = survivingID
				m.edges[newKey][dst] = e
			}
			delete(m.edges, key)
			continue
		}
		for dst, e := range dsts {
			if dst == absorbedID {
				e.TargetID = survivingID
				dsts[survivingID] = e
				delete(dsts, dst)
			}
		}
	}

	abs.IsActive = false
	m.nodes[absorbedID] = abs
	surv.Version++
	m.nodes[survivingID] = surv
	return surv, nil
}

func (m *memoryStore) FindEntityByName(_ context.Context, endUserID, name string) (Node, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := strings.ToLower(strings.TrimSpace(name))
	for _, n := range m.nodes {
		if n.EndUserID != endUserID || !n.IsActive || !hasLabel(n, CategoryEntity) {
			continue
		}
		if nm, ok := n.Props["name"].(string); ok && strings.ToLower(nm) == want {
			return n, true, nil
		}
	}
	return Node{}, false, nil
}
