package forgetting

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeight_DecaysWithElapsedDays(t *testing.T) {
	near := Weight(1, 1.0, 1.0)
	far := Weight(30, 1.0, 1.0)
	assert.Greater(t, near, far)
	assert.LessOrEqual(t, near, 1.0)
}

func TestWeight_StrongerMemoryDecaysSlower(t *testing.T) {
	weak := Weight(10, 0.5, 1.0)
	strong := Weight(10, 5.0, 1.0)
	assert.Greater(t, strong, weak)
}

func TestWeight_DefaultsTauWhenNonPositive(t *testing.T) {
	assert.Equal(t, Weight(5, 1, 1), Weight(5, 1, 0))
}

func TestCosine_IdenticalVectorsScoreOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosine(v, v), 1e-9)
}

func TestCosine_MismatchedLengthsScoreZero(t *testing.T) {
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}))
}
