package workflow

import (
	"context"
	"fmt"

	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

// runLoop executes cfg.Body once per element of the collection (or
// until cfg.ExitExpression evaluates true), binding the current item
// to conv.<ItemVarName> for the body's duration and collecting each
// iteration's End-node output (§4.9: "exposes per-iteration variables").
func (e *Engine) runLoop(ctx context.Context, cfg *LoopConfig, pool *varpool.Pool) (map[string]varpool.Variable, error) {
	var collection []any
	if cfg.CollectionSelector != "" {
		sel, err := varpool.ParseSelector(cfg.CollectionSelector)
		if err == nil {
			if v, ok := pool.Get(sel); ok {
				collection, _ = v.Value.([]any)
			}
		}
	}

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = len(collection)
	}
	if maxIterations <= 0 {
		maxIterations = 1
	}

	itemVar := cfg.ItemVarName
	if itemVar == "" {
		itemVar = "item"
	}

	outputs := make([]any, 0, len(collection))
	for i := 0; i < maxIterations; i++ {
		if cfg.CollectionSelector != "" && i >= len(collection) {
			break
		}
		if collection != nil {
			if err := pool.SetConv(itemVar, varpool.Variable{Type: varpool.TypeObject, Value: collection[i]}); err != nil {
				return nil, err
			}
		}
		if cfg.ExitExpression != "" {
			exit, err := evalExpression(cfg.ExitExpression, pool)
			if err != nil {
				return nil, err
			}
			if exit {
				break
			}
		}
		if cfg.Body == nil {
			continue
		}
		bodyResults, err := e.Run(ctx, cfg.Body, pool, nil)
		if err != nil {
			return nil, fmt.Errorf("loop iteration %d: %w", i, err)
		}
		for _, n := range cfg.Body.Nodes {
			if n.Kind == KindEnd {
				if res, ok := bodyResults[n.ID]; ok && res.Status == StatusCompleted {
					if v, ok := res.Output["output"]; ok {
						outputs = append(outputs, v.Value)
					}
				}
			}
		}
	}

	anyOutputs := make([]any, len(outputs))
	copy(anyOutputs, outputs)
	return map[string]varpool.Variable{
		"output": {Type: varpool.TypeArrayObject, Value: anyOutputs},
	}, nil
}
