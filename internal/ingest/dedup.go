package ingest

import (
	"context"
	"strings"

	"github.com/memorybear/memoryengine/internal/graphstore"
)

// resolvedEntity pairs an extracted Entity with the id it should persist
// under: a fresh id, or a matched existing node's id when dedup fires.
type resolvedEntity struct {
	entity     Entity
	id         string
	reusedNode *graphstore.Node
}

// dedupEntities runs the second-layer entity dedup (§4.6 step 4): for
// each candidate entity, look it up by case-insensitive name within
// end_user_id; a match reuses that node's id and unions aliases instead
// of creating a new node.
func dedupEntities(ctx context.Context, store graphstore.GraphStore, endUserID string, entities []Entity, newID func() string) ([]resolvedEntity, error) {
	out := make([]resolvedEntity, 0, len(entities))
	for _, e := range entities {
		existing, ok, err := store.FindEntityByName(ctx, endUserID, e.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, resolvedEntity{entity: e, id: newID()})
			continue
		}

		existingAliases, _ := existing.Props["aliases"].([]string)
		e.Aliases = unionAliases(existingAliases, e.Aliases)
		node := existing
		out = append(out, resolvedEntity{entity: e, id: existing.ID, reusedNode: &node})
	}
	return out, nil
}

func unionAliases(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
