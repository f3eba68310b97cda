package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memorybear/memoryengine/internal/provider"
	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

type scriptedLLM struct {
	text string
}

func (s *scriptedLLM) Chat(_ context.Context, _ string, _ []provider.Message, _ provider.ChatOptions) (provider.ChatResult, error) {
	return provider.ChatResult{Text: s.text}, nil
}

func TestAssignerNode_AddSubMulDiv(t *testing.T) {
	pool := varpool.New(nil, map[string]varpool.Variable{"score": {Type: varpool.TypeNumber, Value: float64(10)}})
	cfg := &AssignerConfig{Ops: []AssignerOp{
		{VariableSelector: "conv.score", Operation: "add", Value: float64(5)},
		{VariableSelector: "conv.score", Operation: "mul", Value: float64(2)},
	}}
	require.NoError(t, runAssigner(cfg, pool))
	v, ok := pool.Get(varpool.Selector{Namespace: "conv", Key: "score"})
	require.True(t, ok)
	require.Equal(t, float64(30), v.Value)
}

func TestAssignerNode_RejectsImmutableNamespace(t *testing.T) {
	pool := varpool.New(map[string]varpool.Variable{"query": {Type: varpool.TypeString, Value: "hi"}}, nil)
	cfg := &AssignerConfig{Ops: []AssignerOp{{VariableSelector: "sys.query", Operation: "assign", Value: "bye"}}}
	err := runAssigner(cfg, pool)
	require.Error(t, err)
}

func TestIfElse_EmitsFirstMatchingCaseElseDefault(t *testing.T) {
	pool := varpool.New(nil, map[string]varpool.Variable{"flag": {Type: varpool.TypeBoolean, Value: true}})
	cfg := &IfElseConfig{Cases: []IfElseCase{
		{LogicalOperator: "and", Expressions: []string{"conv.missing"}},
		{LogicalOperator: "and", Expressions: []string{"conv.flag"}},
	}}
	for i, c := range cfg.Cases {
		hit, err := evalCase(c, pool)
		require.NoError(t, err)
		if i == 0 {
			require.False(t, hit)
		} else {
			require.True(t, hit)
		}
	}
}

func TestIfElse_DefaultBranchWhenNoCaseMatches(t *testing.T) {
	e := NewEngine(&scriptedLLM{})
	pool := varpool.New(nil, map[string]varpool.Variable{"flag": {Type: varpool.TypeBoolean, Value: false}})
	g := &Graph{
		Nodes: []Node{
			{ID: "cond", Kind: KindIfElse, Config: &IfElseConfig{Cases: []IfElseCase{
				{LogicalOperator: "and", Expressions: []string{"conv.flag"}},
			}}},
			{ID: "yes", Kind: KindCode, Config: &CodeConfig{Expression: "1", OutputVar: "output"}},
			{ID: "no", Kind: KindCode, Config: &CodeConfig{Expression: "0", OutputVar: "output"}},
		},
		Edges: []Edge{
			{From: "cond", To: "yes", Branch: "CASE1"},
			{From: "cond", To: "no", Branch: "CASE2"},
		},
	}
	results, err := e.Run(context.Background(), g, pool, nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, results["cond"].Status)
	require.Equal(t, "CASE2", results["cond"].Branch)
	require.Equal(t, StatusSkipped, results["yes"].Status)
	require.Equal(t, StatusCompleted, results["no"].Status)
}

func TestJinjaRender_NonStrictSubstitutesEmptyForMissing(t *testing.T) {
	pool := varpool.New(map[string]varpool.Variable{"name": {Type: varpool.TypeString, Value: "Ada"}}, nil)
	cfg := &JinjaRenderConfig{
		Template: "Hi {{name}}, missing=[{{missing}}]",
		Mapping:  map[string]string{"name": "sys.name", "missing": "conv.nope"},
	}
	out, err := runJinjaRender(cfg, pool)
	require.NoError(t, err)
	require.Equal(t, "Hi Ada, missing=[]", out)
}

func TestQuestionClassifier_EmitsClassNameAndIndexedBranch(t *testing.T) {
	pool := varpool.New(map[string]varpool.Variable{"utter": {Type: varpool.TypeString, Value: "what's my balance"}}, nil)
	llm := &scriptedLLM{text: "billing"}
	className, branch, err := runQuestionClassifier(context.Background(), llm, &QuestionClassifierConfig{
		ModelRef:      "gpt",
		InputSelector: "sys.utter",
		Categories:    []string{"support", "billing", "sales"},
	}, pool)
	require.NoError(t, err)
	require.Equal(t, "billing", className)
	require.Equal(t, "CASE2", branch)
}

func TestCodeNode_EvaluatesExpressionOverPool(t *testing.T) {
	pool := varpool.New(nil, map[string]varpool.Variable{"a": {Type: varpool.TypeNumber, Value: float64(3)}, "b": {Type: varpool.TypeNumber, Value: float64(4)}})
	out, err := runCode(&CodeConfig{Expression: "conv.a + conv.b"}, pool)
	require.NoError(t, err)
	require.Equal(t, float64(7), out)
}

func TestEngine_Run_LinearGraphAssemblesEndOutput(t *testing.T) {
	e := NewEngine(&scriptedLLM{text: "hello from llm"})
	pool := varpool.New(map[string]varpool.Variable{"query": {Type: varpool.TypeString, Value: "hi"}}, nil)
	g := &Graph{
		Nodes: []Node{
			{ID: "start", Kind: KindStart, Config: &StartConfig{}},
			{ID: "llm1", Kind: KindLLM, Config: &LLMConfig{ModelRef: "gpt", PromptSelectors: []string{"sys.query"}, OutputVar: "output"}},
			{ID: "end", Kind: KindEnd, Config: &EndConfig{Segments: []EndSegment{
				{Literal: "Answer: "},
				{Selector: "llm1.output", DependsOn: "llm1"},
			}}},
		},
		Edges: []Edge{
			{From: "start", To: "llm1"},
			{From: "llm1", To: "end"},
		},
	}
	results, err := e.Run(context.Background(), g, pool, nil)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, results["end"].Status)
	require.Equal(t, "Answer: hello from llm", results["end"].Output["output"].Value)
}

func TestEngine_Execute_CarriesConvAcrossExecutionsWithSameConversation(t *testing.T) {
	e := NewEngine(&scriptedLLM{text: "ok"})
	checkpoints := NewMemoryCheckpointer()
	g := &Graph{
		Nodes: []Node{
			{ID: "start", Kind: KindStart, Config: &StartConfig{}},
			{ID: "bump", Kind: KindAssigner, Config: &AssignerConfig{Ops: []AssignerOp{
				{VariableSelector: "conv.visits", Operation: "add", Value: float64(1)},
			}}},
			{ID: "end", Kind: KindEnd, Config: &EndConfig{Segments: []EndSegment{{Literal: "ok"}}}},
		},
		Edges: []Edge{{From: "start", To: "bump"}, {From: "bump", To: "end"}},
	}

	_, _, err := e.Execute(context.Background(), "exec1", "conv1", map[string]any{"query": "hi"}, g, checkpoints)
	require.NoError(t, err)
	_, _, err = e.Execute(context.Background(), "exec2", "conv1", map[string]any{"query": "hi again"}, g, checkpoints)
	require.NoError(t, err)

	state, found, err := checkpoints.Load(context.Background(), "conv1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, float64(2), state.Conv["visits"].Value)
}

func TestLoopNode_RunsBodyPerCollectionItem(t *testing.T) {
	e := NewEngine(&scriptedLLM{})
	body := &Graph{
		Nodes: []Node{
			{ID: "double", Kind: KindCode, Config: &CodeConfig{Expression: "conv.item * 2", OutputVar: "output"}},
			{ID: "end", Kind: KindEnd, Config: &EndConfig{Segments: []EndSegment{{Selector: "double.output", DependsOn: "double"}}}},
		},
		Edges: []Edge{{From: "double", To: "end"}},
	}
	pool := varpool.New(nil, map[string]varpool.Variable{
		"items": {Type: varpool.TypeArrayNumber, Value: []any{float64(1), float64(2), float64(3)}},
	})
	out, err := e.runLoop(context.Background(), &LoopConfig{
		CollectionSelector: "conv.items",
		ItemVarName:        "item",
		Body:               body,
	}, pool)
	require.NoError(t, err)
	require.Equal(t, []any{"2", "4", "6"}, out["output"].Value)
}
