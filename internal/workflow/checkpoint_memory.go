package workflow

import (
	"context"
	"sync"
)

// MemoryCheckpointer is an in-process Checkpointer, grounded on
// graphstore.Memory's mutex-guarded map style. Production deployments
// back Checkpointer with the relational store's workflow-execution rows
// (§4.11 "Relational store: ... workflow-execution rows").
type MemoryCheckpointer struct {
	mu    sync.Mutex
	byCID map[string]ExecutionState
}

// NewMemoryCheckpointer builds an empty MemoryCheckpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{byCID: map[string]ExecutionState{}}
}

func (c *MemoryCheckpointer) Load(_ context.Context, conversationID string) (ExecutionState, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.byCID[conversationID]
	return state, ok, nil
}

func (c *MemoryCheckpointer) Save(_ context.Context, state ExecutionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byCID[state.ConversationID] = state
	return nil
}
