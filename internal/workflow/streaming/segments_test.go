package streaming

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAssembler_StreamsInOrderRegardlessOfArrivalOrder mirrors §8's S7
// scenario: segments ["Hello, ", {var: llm1.output}, "!"] with llm1
// streaming "world" across 3 chunks.
func TestAssembler_StreamsInOrderRegardlessOfArrivalOrder(t *testing.T) {
	a := NewAssembler([]Segment{
		{Literal: "Hello, "},
		{DependsOn: "llm1"},
		{Literal: "!"},
	})

	var events []string
	events = append(events, a.Start()...)
	events = append(events, a.Chunk("llm1", "w")...)
	events = append(events, a.Chunk("llm1", "o")...)
	events = append(events, a.Chunk("llm1", "rld")...)
	events = append(events, a.Complete("llm1", "world")...)

	require.Equal(t, []string{"Hello, ", "w", "o", "rld", "!"}, events)
	require.Equal(t, "Hello, world!", a.Output())
	require.True(t, a.Finished())
}

func TestAssembler_HoldsValueCompletedBeforeSegmentIsCurrent(t *testing.T) {
	a := NewAssembler([]Segment{
		{DependsOn: "slow"},
		{DependsOn: "fast"},
	})

	// "fast" finishes before "slow" even starts streaming — its value
	// must be held, not emitted out of order.
	require.Empty(t, a.Start())
	events := a.Complete("fast", "done")
	require.Empty(t, events)

	events = a.Chunk("slow", "partial-")
	require.Equal(t, []string{"partial-"}, events)

	events = a.Complete("slow", "partial-value")
	require.Equal(t, []string{"done"}, events)
	require.Equal(t, "partial-done", a.Output())
	require.True(t, a.Finished())
}
