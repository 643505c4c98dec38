package signal

import (
	"gonum.org/v1/gonum/floats"
)

// Normalize min-max scales seq to [0, 1]. A flat sequence (max == min) maps
// every element to flatValue. The input is not modified.
func Normalize(seq []float64, flatValue float64) []float64 {
	out := make([]float64, len(seq))
	if len(seq) == 0 {
		return out
	}

	lo, hi := floats.Min(seq), floats.Max(seq)
	span := hi - lo
	if span == 0 {
		for i := range out {
			out[i] = flatValue
		}
		return out
	}

	for i, v := range seq {
		out[i] = (v - lo) / span
	}
	return out
}
