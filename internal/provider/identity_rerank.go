package provider

import "context"

// Reranker returns p's native reranker when it implements one, or an
// identity reranker otherwise (preserving input order with a flat
// score of 1.0 for every candidate). This is the null-object pattern
// the teacher uses for NilMemoryEngine in agentic_memory.go, applied to
// the optional Rerank capability so callers never need a nil check.
func RerankerFor(p Provider) Reranker {
	if r, ok := p.(Reranker); ok {
		return r
	}
	return identityReranker{}
}

type identityReranker struct{}

func (identityReranker) Rerank(_ context.Context, _, _ string, candidates []string) ([]RerankResult, error) {
	out := make([]RerankResult, len(candidates))
	for i := range candidates {
		out[i] = RerankResult{Index: i, Score: 1.0}
	}
	return out, nil
}
