package retrieve

import (
	"strings"
)

// mergedCandidate is one id's keyword+embedding scores before
// normalization, plus enough of the node to read its activation_value.
type mergedCandidate struct {
	id        string
	props     map[string]any
	bm25      *float64
	embedding *float64
}

// dedupAndMerge implements §4.7 steps 3 and 6's id-then-content-hash
// dedup followed by the keyword/embedding score merge, keeping the
// first-seen props for a duplicate content hash.
func dedupAndMerge(hits categoryHits) []mergedCandidate {
	byID := make(map[string]*mergedCandidate)
	order := []string{}

	add := func(id string, props map[string]any, score float64, isKeyword bool) {
		c, ok := byID[id]
		if !ok {
			c = &mergedCandidate{id: id, props: props}
			byID[id] = c
			order = append(order, id)
		}
		s := score
		if isKeyword {
			c.bm25 = &s
		} else {
			c.embedding = &s
		}
	}

	for _, h := range hits.keyword {
		add(h.ID, h.Props, h.Score, true)
	}
	for _, h := range hits.embedding {
		add(h.ID, h.Props, h.Score, false)
	}

	candidates := make([]*mergedCandidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, byID[id])
	}

	return dedupByContentHash(candidates)
}

// dedupByContentHash collapses candidates that share a normalized
// (lowercased, trimmed) content hash, keeping the first occurrence and
// folding any score the later duplicate carried that the first lacked.
func dedupByContentHash(candidates []*mergedCandidate) []mergedCandidate {
	seenHash := make(map[string]*mergedCandidate)
	out := make([]mergedCandidate, 0, len(candidates))

	for _, c := range candidates {
		hash := contentHash(c.props)
		if hash == "" {
			out = append(out, *c)
			continue
		}
		if existing, ok := seenHash[hash]; ok {
			if existing.bm25 == nil {
				existing.bm25 = c.bm25
			}
			if existing.embedding == nil {
				existing.embedding = c.embedding
			}
			continue
		}
		cp := *c
		seenHash[hash] = &cp
		out = append(out, cp)
	}
	return out
}

func contentHash(props map[string]any) string {
	for _, key := range []string{"statement", "content", "name", "description"} {
		if v, ok := props[key].(string); ok && v != "" {
			return strings.ToLower(strings.TrimSpace(v))
		}
	}
	return ""
}

// activationOf reads activation_value out of a hit's props, whichever
// shape the backend populated it as.
func activationOf(props map[string]any) *float64 {
	if props == nil {
		return nil
	}
	if v, ok := props["activation_value"].(float64); ok {
		return &v
	}
	if v, ok := props["activation_value"].(*float64); ok {
		return v
	}
	return nil
}
