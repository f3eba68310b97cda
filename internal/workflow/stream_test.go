package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memorybear/memoryengine/internal/workflow/varpool"
)

func TestEngine_RunStream_EmitsOrderedMessagesThenEnd(t *testing.T) {
	e := NewEngine(&scriptedLLM{text: "world"})
	pool := varpool.New(map[string]varpool.Variable{"query": {Type: varpool.TypeString, Value: "hi"}}, nil)
	g := &Graph{
		Nodes: []Node{
			{ID: "start", Kind: KindStart, Config: &StartConfig{}},
			{ID: "llm1", Kind: KindLLM, Config: &LLMConfig{ModelRef: "gpt", PromptSelectors: []string{"sys.query"}, OutputVar: "output"}},
			{ID: "end", Kind: KindEnd, Config: &EndConfig{Segments: []EndSegment{
				{Literal: "Hello, "},
				{Selector: "llm1.output", DependsOn: "llm1"},
				{Literal: "!"},
			}}},
		},
		Edges: []Edge{
			{From: "start", To: "llm1"},
			{From: "llm1", To: "end"},
		},
	}

	var types []EventType
	var messages []string
	emit := func(ev Event) {
		types = append(types, ev.Type)
		if ev.Type == EventMessage {
			messages = append(messages, ev.Message)
		}
	}

	results, err := e.RunStream(context.Background(), g, pool, emit)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, results["end"].Status)

	require.Equal(t, []string{"Hello, ", "world", "!"}, messages)
	require.Contains(t, types, EventStart)
	require.Contains(t, types, EventNodeStart)
	require.Contains(t, types, EventNodeEnd)
	require.Contains(t, types, EventEnd)
	require.Equal(t, EventEnd, types[len(types)-1])
}
