package workflow

import (
	"context"

	"github.com/memorybear/memoryengine/internal/workflow/streaming"
	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

// toStreamSegments converts an End node's declared segments into the
// streaming package's ordered-cursor representation.
func toStreamSegments(cfg *EndConfig) []streaming.Segment {
	out := make([]streaming.Segment, len(cfg.Segments))
	for i, seg := range cfg.Segments {
		out[i] = streaming.Segment{Literal: seg.Literal, DependsOn: seg.DependsOn}
	}
	return out
}

// RunStream runs g like Run, additionally driving a streaming.Assembler
// per End node so emit receives "message" events in declared segment
// order once each segment's dependency has completed (§4.9's End-node
// streaming contract). Node bodies in this engine execute atomically
// (runLLMNode calls Chat, not ChatStream),
// so every variable segment's Assembler.Complete fires once, after Run
// finishes; a provider that exposes ChatStream can feed Assembler.Chunk
// from within runLLMNode for true token-level granularity without
// changing this method's contract.
func (e *Engine) RunStream(ctx context.Context, g *Graph, pool *varpool.Pool, emit func(Event)) (map[string]Result, error) {
	if emit == nil {
		emit = func(Event) {}
	}

	assemblers := make(map[string]*streaming.Assembler)
	for _, n := range g.Nodes {
		if n.Kind != KindEnd {
			continue
		}
		cfg, ok := n.Config.(*EndConfig)
		if !ok {
			continue
		}
		asm := streaming.NewAssembler(toStreamSegments(cfg))
		assemblers[n.ID] = asm
		for _, m := range asm.Start() {
			emit(Event{Type: EventMessage, NodeID: n.ID, Message: m})
		}
	}

	emit(Event{Type: EventStart})

	results, err := e.Run(ctx, g, pool, emit)
	if err != nil {
		emit(Event{Type: EventError, Err: err.Error()})
		return results, err
	}

	for endID, asm := range assemblers {
		cfg, ok := findEndConfig(g, endID)
		if !ok {
			continue
		}
		for _, seg := range cfg.Segments {
			if seg.DependsOn == "" {
				continue
			}
			sel, perr := varpool.ParseSelector(seg.Selector)
			if perr != nil {
				continue
			}
			full := pool.GetString(sel)
			for _, m := range asm.Complete(seg.DependsOn, full) {
				emit(Event{Type: EventMessage, NodeID: endID, Message: m})
			}
		}
		emit(Event{Type: EventEnd, NodeID: endID, Output: asm.Output()})
	}

	return results, nil
}

func findEndConfig(g *Graph, nodeID string) (*EndConfig, bool) {
	for _, n := range g.Nodes {
		if n.ID == nodeID && n.Kind == KindEnd {
			cfg, ok := n.Config.(*EndConfig)
			return cfg, ok
		}
	}
	return nil, false
}
