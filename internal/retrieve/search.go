package retrieve

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/provider"
)

// categoryHits holds one category's raw keyword and embedding search
// results before dedup/merge.
type categoryHits struct {
	keyword   []graphstore.NodeHit
	embedding []graphstore.NodeHit
}

// fanOut runs §4.7 step 2: keyword search per category and one embedding
// call followed by per-category vector search, both branches and all
// category queries within each branch running concurrently.
func fanOut(ctx context.Context, store graphstore.GraphStore, embedder provider.Provider, embedModel string, req Request, searchLimit int) (map[graphstore.Category]categoryHits, error) {
	// Each goroutine below writes a distinct slice index (never a shared
	// map key) so the two branches and all per-category queries can run
	// concurrently without synchronization beyond errgroup's Wait.
	keywordByIdx := make([][]graphstore.NodeHit, len(req.Include))
	embeddingByIdx := make([][]graphstore.NodeHit, len(req.Include))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		kg, kctx := errgroup.WithContext(gctx)
		for i, category := range req.Include {
			i, category := i, category
			kg.Go(func() error {
				hits, err := store.KeywordSearch(kctx, req.EndUserID, category, req.QueryText, searchLimit)
				if err != nil {
					return err
				}
				keywordByIdx[i] = hits
				return nil
			})
		}
		return kg.Wait()
	})

	g.Go(func() error {
		vecs, err := embedder.Embed(gctx, embedModel, []string{req.QueryText})
		if err != nil || len(vecs) == 0 {
			return err
		}
		queryVec := vecs[0]

		vg, vctx := errgroup.WithContext(gctx)
		for i, category := range req.Include {
			i, category := i, category
			vg.Go(func() error {
				hits, err := store.EmbeddingSearch(vctx, req.EndUserID, category, queryVec, searchLimit)
				if err != nil {
					return err
				}
				embeddingByIdx[i] = hits
				return nil
			})
		}
		return vg.Wait()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make(map[graphstore.Category]categoryHits, len(req.Include))
	for i, category := range req.Include {
		results[category] = categoryHits{keyword: keywordByIdx[i], embedding: embeddingByIdx[i]}
	}
	return results, nil
}
