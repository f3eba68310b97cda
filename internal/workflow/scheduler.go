package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

// Engine runs workflow graphs. Its scheduling loop is the direct
// descendant of warpp.Runner.executeInternal's DAG path: indegree
// tracking, a semaphore-bounded worker pool, panic recovery per node,
// and a single controlling goroutine that owns all pool mutations (so
// concurrent node completions never race on shared state) — generalized
// here to resolve branch edges (if-else/question-classifier activate
// exactly one outgoing edge; every other node kind activates all of
// them) instead of the teacher's unconditional fan-out.
type Engine struct {
	LLM            llmRunner
	MaxConcurrency int // 0 = unlimited, mirrors warpp.Workflow.MaxConcurrency
}

// NewEngine builds an Engine bound to an LLM provider for llm and
// question-classifier nodes.
func NewEngine(llm llmRunner) *Engine {
	return &Engine{LLM: llm}
}

type nodeOutcome struct {
	result Result
	err    error
}

// Run executes g to completion, seeding the pool from sys and any
// carried-over conv state, and returns every node's Result keyed by id.
// emit, if non-nil, receives the internal event stream (node_start,
// node_end, node_chunk, node_error) in addition to whatever the caller
// layers on top for the public start/message/end/error stream.
func (e *Engine) Run(ctx context.Context, g *Graph, pool *varpool.Pool, emit func(Event)) (map[string]Result, error) {
	if emit == nil {
		emit = func(Event) {}
	}

	idOf := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		idOf[n.ID] = n
	}
	outgoing := make(map[string][]Edge, len(g.Nodes))
	unresolved := make(map[string]int, len(g.Nodes))
	for _, edge := range g.Edges {
		outgoing[edge.From] = append(outgoing[edge.From], edge)
		unresolved[edge.To]++
	}

	results := make(map[string]Result, len(g.Nodes))
	activated := make(map[string]int) // count of incoming edges that actually fired

	ready := make([]string, 0)
	for _, n := range g.Nodes {
		if unresolved[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resCh := make(chan nodeOutcome)
	inFlight := 0

	var sem chan struct{}
	if e.MaxConcurrency > 0 {
		sem = make(chan struct{}, e.MaxConcurrency)
	}

	launch := func(nodeID string) {
		n := idOf[nodeID]
		inFlight++
		emit(Event{Type: EventNodeStart, NodeID: nodeID})
		go func() {
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			res, err := e.runOne(ctx, n, pool)
			resCh <- nodeOutcome{result: res, err: err}
		}()
	}
	skip := func(nodeID string) {
		results[nodeID] = Result{NodeID: nodeID, Status: StatusSkipped}
		for _, edge := range outgoing[nodeID] {
			unresolved[edge.To]--
			if unresolved[edge.To] == 0 {
				ready = append(ready, edge.To)
			}
		}
	}

	for len(ready) > 0 || inFlight > 0 {
		for len(ready) > 0 {
			id := ready[0]
			ready = ready[1:]
			if activated[id] == 0 && unresolvedWasNonZero(g, id) {
				skip(id)
				continue
			}
			launch(id)
		}
		if inFlight == 0 {
			break
		}

		outcome := <-resCh
		inFlight--
		if outcome.err != nil {
			cancel()
			return results, outcome.err
		}
		res := outcome.result
		results[res.NodeID] = res
		if res.Status == StatusError {
			emit(Event{Type: EventNodeError, NodeID: res.NodeID, Err: res.Error})
			n := idOf[res.NodeID]
			if n.ErrorEdge != "" {
				unresolved[n.ErrorEdge]--
				activated[n.ErrorEdge]++
				if unresolved[n.ErrorEdge] == 0 {
					ready = append(ready, n.ErrorEdge)
				}
				continue
			}
			cancel()
			return results, fmt.Errorf("workflow: node %s failed: %s", res.NodeID, res.Error)
		}

		emit(Event{Type: EventNodeEnd, NodeID: res.NodeID})
		pool.SetNodeOutput(res.NodeID, res.Output)

		for _, edge := range outgoing[res.NodeID] {
			fires := edge.Branch == "" || edge.Branch == res.Branch
			unresolved[edge.To]--
			if fires {
				activated[edge.To]++
			}
			if unresolved[edge.To] == 0 {
				ready = append(ready, edge.To)
			}
		}
	}

	return results, nil
}

// unresolvedWasNonZero reports whether nodeID has at least one incoming
// edge (i.e. is not a root/start node, which is always activated).
func unresolvedWasNonZero(g *Graph, nodeID string) bool {
	for _, edge := range g.Edges {
		if edge.To == nodeID {
			return true
		}
	}
	return false
}

// runOne executes a single node, wrapping it with panic recovery and
// the §4.9 result envelope (status, elapsed_time, token_usage, error).
func (e *Engine) runOne(ctx context.Context, n Node, pool *varpool.Pool) (res Result, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			res = Result{NodeID: n.ID, Status: StatusError, Error: fmt.Sprintf("panic: %v", rec), ElapsedTime: time.Since(start)}
			err = nil
		}
	}()

	cctx := ctx
	if n.Timeout > 0 {
		var nodeCancel context.CancelFunc
		cctx, nodeCancel = context.WithTimeout(ctx, n.Timeout)
		defer nodeCancel()
	}

	output, branch, execErr := e.execute(cctx, n, pool)
	elapsed := time.Since(start)
	if execErr != nil {
		return Result{NodeID: n.ID, Status: StatusError, Error: execErr.Error(), ElapsedTime: elapsed}, nil
	}
	return Result{NodeID: n.ID, Status: StatusCompleted, Output: output, Branch: branch, ElapsedTime: elapsed}, nil
}

func (e *Engine) execute(ctx context.Context, n Node, pool *varpool.Pool) (map[string]varpool.Variable, string, error) {
	switch n.Kind {
	case KindStart:
		// sys.* is seeded by varpool.New() before Run is called; the
		// start node itself performs no work beyond activating its
		// successors.
		return map[string]varpool.Variable{}, "", nil

	case KindLLM:
		cfg, ok := n.Config.(*LLMConfig)
		if !ok {
			return nil, "", fmt.Errorf("llm node %s: missing config", n.ID)
		}
		text, usage, err := runLLMNode(ctx, e.LLM, cfg, pool)
		if err != nil {
			return nil, "", err
		}
		outVar := cfg.OutputVar
		if outVar == "" {
			outVar = "output"
		}
		return map[string]varpool.Variable{
			outVar:        {Type: varpool.TypeString, Value: text},
			"token_usage": {Type: varpool.TypeObject, Value: usage},
		}, "", nil

	case KindIfElse:
		cfg, ok := n.Config.(*IfElseConfig)
		if !ok {
			return nil, "", fmt.Errorf("if-else node %s: missing config", n.ID)
		}
		for i, c := range cfg.Cases {
			hit, err := evalCase(c, pool)
			if err != nil {
				return nil, "", err
			}
			if hit {
				return map[string]varpool.Variable{}, fmt.Sprintf("CASE%d", i+1), nil
			}
		}
		return map[string]varpool.Variable{}, fmt.Sprintf("CASE%d", len(cfg.Cases)+1), nil

	case KindAssigner:
		cfg, ok := n.Config.(*AssignerConfig)
		if !ok {
			return nil, "", fmt.Errorf("assigner node %s: missing config", n.ID)
		}
		if err := runAssigner(cfg, pool); err != nil {
			return nil, "", err
		}
		return map[string]varpool.Variable{}, "", nil

	case KindJinjaRender:
		cfg, ok := n.Config.(*JinjaRenderConfig)
		if !ok {
			return nil, "", fmt.Errorf("jinja-render node %s: missing config", n.ID)
		}
		out, err := runJinjaRender(cfg, pool)
		if err != nil {
			return nil, "", err
		}
		return map[string]varpool.Variable{"output": {Type: varpool.TypeString, Value: out}}, "", nil

	case KindQuestionClassifier:
		cfg, ok := n.Config.(*QuestionClassifierConfig)
		if !ok {
			return nil, "", fmt.Errorf("question-classifier node %s: missing config", n.ID)
		}
		className, branch, err := runQuestionClassifier(ctx, e.LLM, cfg, pool)
		if err != nil {
			return nil, "", err
		}
		return map[string]varpool.Variable{
			"class_name": {Type: varpool.TypeString, Value: className},
			"output":     {Type: varpool.TypeString, Value: branch},
		}, branch, nil

	case KindLoop:
		cfg, ok := n.Config.(*LoopConfig)
		if !ok {
			return nil, "", fmt.Errorf("loop node %s: missing config", n.ID)
		}
		out, err := e.runLoop(ctx, cfg, pool)
		if err != nil {
			return nil, "", err
		}
		return out, "", nil

	case KindCode:
		cfg, ok := n.Config.(*CodeConfig)
		if !ok {
			return nil, "", fmt.Errorf("code node %s: missing config", n.ID)
		}
		out, err := runCode(cfg, pool)
		if err != nil {
			return nil, "", err
		}
		outVar := cfg.OutputVar
		if outVar == "" {
			outVar = "output"
		}
		return map[string]varpool.Variable{outVar: {Type: inferType(out), Value: out}}, "", nil

	case KindEnd:
		cfg, ok := n.Config.(*EndConfig)
		if !ok {
			return nil, "", fmt.Errorf("end node %s: missing config", n.ID)
		}
		out := assembleEndOutput(cfg, pool)
		return map[string]varpool.Variable{"output": {Type: varpool.TypeString, Value: out}}, "", nil

	default:
		return nil, "", fmt.Errorf("unknown node kind %q", n.Kind)
	}
}

// assembleEndOutput concatenates an End node's segments in declared
// order (§4.9, invariant 10).
func assembleEndOutput(cfg *EndConfig, pool *varpool.Pool) string {
	var out string
	for _, seg := range cfg.Segments {
		if seg.Selector == "" {
			out += seg.Literal
			continue
		}
		sel, err := varpool.ParseSelector(seg.Selector)
		if err != nil {
			continue
		}
		out += pool.GetString(sel)
	}
	return out
}
