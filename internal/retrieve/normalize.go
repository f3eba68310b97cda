package retrieve

import "math"

// normalize implements §4.7 step 5: z-score across the category, then
// sigmoid into [0,1]. A singleton (exactly one non-nil value) is
// normalized to 1.0. nil entries (no raw value, e.g. activation_value on
// a never-accessed node) stay nil and are never normalized.
func normalize(values []*float64) []*float64 {
	out := make([]*float64, len(values))

	var nonNil []float64
	for _, v := range values {
		if v != nil {
			nonNil = append(nonNil, *v)
		}
	}
	if len(nonNil) == 0 {
		return out
	}
	if len(nonNil) == 1 {
		one := 1.0
		for i, v := range values {
			if v != nil {
				out[i] = &one
				_ = i
			}
		}
		return out
	}

	mean, std := meanStd(nonNil)
	for i, v := range values {
		if v == nil {
			continue
		}
		var z float64
		if std > 0 {
			z = (*v - mean) / std
		}
		s := sigmoid(z)
		out[i] = &s
	}
	return out
}

func meanStd(values []float64) (mean, std float64) {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / n

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= n
	std = math.Sqrt(variance)
	return mean, std
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
