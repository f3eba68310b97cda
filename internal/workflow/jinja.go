package workflow

import (
	"github.com/mbleigh/raymond"

	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

// runJinjaRender renders cfg.Template against a context built from
// cfg.Mapping, resolving each template variable's pool selector.
// Non-strict mode: a selector that resolves to nothing substitutes
// empty string rather than failing the node (§4.9).
func runJinjaRender(cfg *JinjaRenderConfig, pool *varpool.Pool) (string, error) {
	ctx := make(map[string]any, len(cfg.Mapping))
	for varName, selectorStr := range cfg.Mapping {
		sel, err := varpool.ParseSelector(selectorStr)
		if err != nil {
			ctx[varName] = ""
			continue
		}
		v, ok := pool.Get(sel)
		if !ok {
			ctx[varName] = ""
			continue
		}
		ctx[varName] = v.Value
	}
	out, err := raymond.Render(cfg.Template, ctx)
	if err != nil {
		return "", err
	}
	return out, nil
}
