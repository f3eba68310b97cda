// Package activation implements the ACT-R base-level activation formula
// used to rank knowledge-graph nodes by recency-and-frequency of access.
// Every function here is pure: no I/O, no global state, no clock reads
// beyond the `now` argument the caller supplies.
package activation

import "math"

// DefaultDecay is the base-level decay exponent d in the activation
// formula when a config does not override it.
const DefaultDecay = 0.5

// epsilon avoids a zero or negative time-since-access from blowing up
// the decay exponentiation when now == last access instant.
const epsilon = 1e-6

// BaseLevel computes the pure ACT-R base-level activation:
//
//	activation_value = ln( Σᵢ (T − tᵢ)^(−d) )
//
// accessHistory holds access instants in seconds-since-epoch (UTC).
// Returns (value, ok) — ok is false when accessHistory is empty, in
// which case the node carries no activation_value at all (nil in the
// data model, not zero).
//
// This is deliberately pure ACT-R with no memory-strength multiplier:
// two definitions of activation exist in the reference material (pure
// ACT-R vs ACT-R × memory-strength). activation_value uses the former;
// MemoryStrength below feeds only the optional forgetting weight.
func BaseLevel(accessHistory []float64, nowUnixSeconds float64, decay float64) (float64, bool) {
	if len(accessHistory) == 0 {
		return 0, false
	}
	if decay <= 0 {
		decay = DefaultDecay
	}

	var sum float64
	for _, t := range accessHistory {
		dt := nowUnixSeconds - t
		if dt < epsilon {
			dt = epsilon
		}
		sum += math.Pow(dt, -decay)
	}
	if sum <= 0 {
		sum = epsilon
	}
	return math.Log(sum), true
}

// MemoryStrength blends importance with a previous activation value:
//
//	memory_strength = importance · (1 + activation_prev · boost)
//
// clamped to [importance, +Inf) so a negative or zero previous
// activation never pulls strength below the raw importance score.
// This value feeds only the optional forgetting weight (internal/forgetting);
// it never participates in BaseLevel's own activation computation.
func MemoryStrength(importance, activationPrev, boost float64) float64 {
	s := importance * (1 + activationPrev*boost)
	if s < importance {
		return importance
	}
	return s
}
