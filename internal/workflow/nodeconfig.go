package workflow

import (
	"context"

	"github.com/memorybear/memoryengine/internal/provider"
)

// StartConfig seeds the immutable sys.* namespace for the execution.
type StartConfig struct {
	SysVars map[string]any
}

// LLMConfig drives an `llm` node, optionally with tool-calling and the
// §4.9 stop-condition contract for tool-using nodes.
type LLMConfig struct {
	ModelRef          string
	SystemPrompt      string
	PromptSelectors   []string // variable-pool selectors interpolated into the user turn
	Tools             []provider.ToolSchema
	ToolDispatch      func(ctx context.Context, name string, args []byte) (string, error)
	MaxIterationsBase int
	PerToolIterations int
	MaxConsecutive    int // same tool called this many times consecutively triggers "give up" (default: config's max_tool_consecutive_calls)
	OutputVar         string
}

// IfElseCase is one branch's guard: all Expressions combined by
// LogicalOperator must hold for the branch to fire.
type IfElseCase struct {
	LogicalOperator string // "and" | "or"
	Expressions     []string
}

// IfElseConfig holds the ordered list of cases; the runtime emits
// "CASE<i>" for the first case whose expression evaluates true, or
// "CASE<n+1>" (the default/else branch) when none do (§4.9, invariant 11).
type IfElseConfig struct {
	Cases []IfElseCase
}

// AssignerOp is one variable-pool mutation performed by an `assigner`
// node. Only the mutable conv.* namespace accepts writes (§4.9).
type AssignerOp struct {
	VariableSelector string // "conv.<key>"
	Operation        string // add, sub, mul, div, assign, cover, clear, append, remove_first, remove_last
	Value            any
}

// AssignerConfig is the ordered op list an `assigner` node applies.
type AssignerConfig struct {
	Ops []AssignerOp
}

// JinjaRenderConfig renders Template, substituting `variable_name ->
// selector` mappings. Missing selectors substitute empty string
// (non-strict mode, §4.9).
type JinjaRenderConfig struct {
	Template string
	Mapping  map[string]string // template var name -> pool selector
}

// QuestionClassifierConfig performs single-choice classification over
// Categories via an LLM call; the runtime emits class_name and
// output = "CASE<i>" (1-indexed over Categories).
type QuestionClassifierConfig struct {
	ModelRef      string
	InputSelector string
	Categories    []string
	SystemPrompt  string
}

// LoopConfig executes Body until the collection is exhausted or
// ExitExpression (evaluated each iteration) holds.
type LoopConfig struct {
	CollectionSelector string
	ExitExpression     string
	Body               *Graph
	ItemVarName        string // conv.* key the current item is bound to for the body's duration
	MaxIterations      int
}

// CodeConfig evaluates Expression (expr-lang/expr) against the
// variable pool, sandboxed to pure expression evaluation (no I/O, no
// reflection into Go internals) — this is the "sandbox-safe code" the
// spec names for the `code` node.
type CodeConfig struct {
	Expression string
	OutputVar  string
}

// EndSegment is one ordered piece of an End node's templated output
// (§4.9's streaming contract). A literal segment has Literal set and no
// Selector; a variable segment names the producing node via DependsOn.
type EndSegment struct {
	Literal   string
	Selector  string // pool selector, e.g. "llm1.output"
	DependsOn string // node id this segment's value depends on ("" for literals)
}

// EndConfig declares the ordered segment list an `end` node assembles.
type EndConfig struct {
	Segments []EndSegment
}
