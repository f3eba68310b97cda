package activation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseLevel_EmptyHistoryIsNil(t *testing.T) {
	_, ok := BaseLevel(nil, 1000, DefaultDecay)
	require.False(t, ok)
}

func TestBaseLevel_MonotonicInAccessCount(t *testing.T) {
	now := 1_000_000.0
	one, ok := BaseLevel([]float64{now - 10}, now, DefaultDecay)
	require.True(t, ok)

	two, ok := BaseLevel([]float64{now - 10, now - 20}, now, DefaultDecay)
	require.True(t, ok)

	assert.Greater(t, two, one, "more accesses must not decrease activation")
}

func TestBaseLevel_DecaysWithElapsedTime(t *testing.T) {
	now := 1_000_000.0
	recent, ok := BaseLevel([]float64{now - 60}, now, DefaultDecay)
	require.True(t, ok)

	stale, ok := BaseLevel([]float64{now - 600_000}, now, DefaultDecay)
	require.True(t, ok)

	assert.Greater(t, recent, stale, "a more recent access must score higher activation")
}

func TestBaseLevel_DefaultsDecayWhenNonPositive(t *testing.T) {
	now := 1_000_000.0
	a, ok := BaseLevel([]float64{now - 10}, now, 0)
	require.True(t, ok)
	b, ok := BaseLevel([]float64{now - 10}, now, DefaultDecay)
	require.True(t, ok)
	assert.Equal(t, b, a)
}

func TestMemoryStrength_ClampedToImportance(t *testing.T) {
	assert.Equal(t, 2.0, MemoryStrength(2.0, -5, 0.8))
	assert.Equal(t, 2.0, MemoryStrength(2.0, 0, 0.8))
}

func TestMemoryStrength_BlendsPositiveActivation(t *testing.T) {
	got := MemoryStrength(2.0, 1.5, 0.8)
	assert.InDelta(t, 2.0*(1+1.5*0.8), got, 1e-9)
}
