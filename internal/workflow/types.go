// Package workflow implements C9: a typed, DAG-based workflow runtime
// driving both the read and write paths. Generalized from the teacher's
// internal/warpp — warpp.Step/Workflow/Attrs/StepPublisher become typed
// node kinds over a three-namespace variable pool (internal/workflow/varpool),
// and warpp.Runner's indegree-tracked scheduler becomes an activation-
// propagation scheduler that understands branch nodes (if-else,
// question-classifier) activating exactly one successor.
package workflow

import (
	"time"

	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

// Kind is a node's strongly-typed role in the graph (§4.9).
type Kind string

const (
	KindStart              Kind = "start"
	KindLLM                Kind = "llm"
	KindIfElse             Kind = "if-else"
	KindAssigner           Kind = "assigner"
	KindJinjaRender        Kind = "jinja-render"
	KindQuestionClassifier Kind = "question-classifier"
	KindLoop               Kind = "loop"
	KindCode               Kind = "code"
	KindEnd                Kind = "end"
)

// Node is one DAG vertex. Config holds the kind-specific contract
// (e.g. *IfElseConfig, *AssignerConfig) resolved once at graph-build
// time, per REDESIGN FLAG "model nodes as a tagged variant ... resolve
// at graph-build time, not per call."
type Node struct {
	ID      string
	Kind    Kind
	Config  any
	Timeout time.Duration
	// ErrorEdge names the node to run instead when this node's execution
	// fails recoverably (§4.9 cancellation/timeout: "if the node has an
	// outgoing error-edge, flow follows it").
	ErrorEdge string
}

// Edge connects two nodes. Branch is empty for unconditional edges; for
// if-else and question-classifier sources it carries "CASE1".."CASEn+1"
// (the (n+1)th being the default/else branch) and only the edge whose
// Branch matches the node's produced branch activates.
type Edge struct {
	From   string
	To     string
	Branch string
}

// Graph is a complete workflow definition.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Result is one node's execution envelope (§4.9: "result wrapping
// {status, input, output, elapsed_time, token_usage, error}").
type Result struct {
	NodeID      string
	Status      Status
	Input       map[string]any
	Output      map[string]varpool.Variable
	Branch      string
	ElapsedTime time.Duration
	TokenUsage  TokenUsage
	Error       string
}

// Status is a node's terminal execution state.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

// TokenUsage mirrors provider.TokenUsage, surfaced per-node in Result.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Event is one entry on the public or internal event stream (§4.9,
// §4.11 event-stream diagram). Public consumers see only
// start/message/end/error; internal consumers additionally see
// node_start/node_end/node_chunk/node_error.
type Event struct {
	Type        EventType
	NodeID      string
	Message     string // "message"/"node_chunk" delta content
	Output      string // "end" event's fully assembled output
	Err         string
	ExecutionID string
}

// EventType enumerates the public+internal event stream vocabulary.
type EventType string

const (
	EventStart     EventType = "start"
	EventNodeStart EventType = "node_start"
	EventNodeChunk EventType = "node_chunk"
	EventNodeEnd   EventType = "node_end"
	EventNodeError EventType = "node_error"
	EventMessage   EventType = "message"
	EventEnd       EventType = "end"
	EventError     EventType = "error"
)
