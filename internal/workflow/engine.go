package workflow

import (
	"context"

	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

// ExecutionState is the checkpointed state carried between executions
// sharing a conversation (§4.9: "a completed prior execution with the
// same conversation_id contributes its conv.* and final message list as
// initial state of the next execution").
type ExecutionState struct {
	ExecutionID    string
	ConversationID string
	Conv           map[string]varpool.Variable
	FinalOutput    string
}

// Checkpointer persists and restores ExecutionState keyed by
// conversation id.
type Checkpointer interface {
	Load(ctx context.Context, conversationID string) (ExecutionState, bool, error)
	Save(ctx context.Context, state ExecutionState) error
}

// Execute runs g once as a complete workflow execution: it restores
// conv.* from a prior execution on the same conversation (when a
// checkpointer and a prior state are available), seeds sys.* fresh each
// time (sys is "assigned at start", never carried over), runs the
// graph, and persists the resulting conv.* plus the end node's output
// for the next execution to pick up.
func (e *Engine) Execute(ctx context.Context, executionID, conversationID string, sys map[string]any, g *Graph, checkpoints Checkpointer) (string, map[string]Result, error) {
	conv := map[string]varpool.Variable{}
	if checkpoints != nil {
		if prior, found, err := checkpoints.Load(ctx, conversationID); err == nil && found {
			conv = prior.Conv
		}
	}

	sysVars := make(map[string]varpool.Variable, len(sys))
	for k, v := range sys {
		sysVars[k] = varpool.Variable{Type: inferType(v), Value: v}
	}
	pool := varpool.New(sysVars, conv)

	results, err := e.Run(ctx, g, pool, nil)
	if err != nil {
		return "", results, err
	}

	output := ""
	for _, n := range g.Nodes {
		if n.Kind == KindEnd {
			if res, ok := results[n.ID]; ok && res.Status == StatusCompleted {
				if v, ok := res.Output["output"]; ok {
					if s, ok := v.Value.(string); ok {
						output = s
					}
				}
			}
		}
	}

	if checkpoints != nil {
		_ = checkpoints.Save(ctx, ExecutionState{
			ExecutionID:    executionID,
			ConversationID: conversationID,
			Conv:           pool.Conv(),
			FinalOutput:    output,
		})
	}

	return output, results, nil
}
