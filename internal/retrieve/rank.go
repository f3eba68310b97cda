package retrieve

import "sort"

// rankCategory implements §4.7 steps 5-9 for one category's merged
// candidates: z-score/sigmoid normalization of bm25/embedding/activation,
// content_score merge, stage-1 top-K selection, stage-2 activation-aware
// ordering, and final_score assignment. forgettingWeights (optional)
// applies step 10 by multiplying base_score before stage-1.
func rankCategory(candidates []mergedCandidate, alpha float64, limit, stage1K int, forgettingWeights map[string]float64) []Hit {
	if len(candidates) == 0 {
		return nil
	}

	bm25Raw := make([]*float64, len(candidates))
	embRaw := make([]*float64, len(candidates))
	actRaw := make([]*float64, len(candidates))
	for i, c := range candidates {
		bm25Raw[i] = c.bm25
		embRaw[i] = c.embedding
		actRaw[i] = activationOf(c.props)
	}

	bm25Norm := normalize(bm25Raw)
	embNorm := normalize(embRaw)
	actNorm := normalize(actRaw)

	hits := make([]Hit, len(candidates))
	for i, c := range candidates {
		bm25 := valueOrZero(bm25Norm[i])
		emb := valueOrZero(embNorm[i])
		contentScore := alpha*bm25 + (1-alpha)*emb
		baseScore := contentScore

		var forgettingWeight *float64
		if forgettingWeights != nil {
			w, ok := forgettingWeights[c.id]
			if !ok {
				w = 1.0
			}
			forgettingWeight = &w
			baseScore *= w
		}

		hits[i] = Hit{
			ID:               c.id,
			Props:            c.props,
			BM25Score:        bm25Raw[i],
			EmbeddingScore:   embRaw[i],
			ContentScore:     contentScore,
			ActivationScore:  actNorm[i],
			BaseScore:        baseScore,
			ForgettingWeight: forgettingWeight,
		}
	}

	// Stage 1: top-K by base_score.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].BaseScore > hits[j].BaseScore })
	if stage1K > 0 && len(hits) > stage1K {
		hits = hits[:stage1K]
	}

	// Stage 2: partition with/without activation, then order and trim to limit.
	var withActivation, withoutActivation []Hit
	for _, h := range hits {
		if h.ActivationScore != nil {
			withActivation = append(withActivation, h)
		} else {
			withoutActivation = append(withoutActivation, h)
		}
	}
	sort.SliceStable(withActivation, func(i, j int) bool {
		return *withActivation[i].ActivationScore > *withActivation[j].ActivationScore
	})

	var ordered []Hit
	if len(withActivation) >= limit {
		ordered = withActivation[:limit]
	} else {
		remaining := limit - len(withActivation)
		ordered = append(append([]Hit{}, withActivation...), takeUpTo(withoutActivation, remaining)...)
	}

	for i := range ordered {
		if ordered[i].ActivationScore != nil {
			ordered[i].FinalScore = *ordered[i].ActivationScore
		} else {
			ordered[i].FinalScore = ordered[i].BaseScore
		}
	}

	return ordered
}

func takeUpTo(hits []Hit, n int) []Hit {
	if n <= 0 {
		return nil
	}
	if n >= len(hits) {
		return hits
	}
	return hits[:n]
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
