package homology

import (
	"fmt"
	"math"
	"slices"

	"github.com/RyanBlaney/sonido-topo/algorithms/common"
)

// Sampling returns n uniformly spaced filtration values over [lo, hi]
func Sampling(lo, hi float64, n int) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidResolution, n)
	}
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, fmt.Errorf("sampling domain must be finite: [%v, %v]", lo, hi)
	}
	if hi < lo {
		return nil, fmt.Errorf("sampling domain is reversed: [%v, %v]", lo, hi)
	}
	return common.Linspace(lo, hi, n), nil
}

// BettiCurve counts, at every sample t, the pairs with birth <= t < death
func BettiCurve(pairs []Pair, samples []float64) []float64 {
	curve := make([]float64, len(samples))
	for i, t := range samples {
		alive := 0
		for _, p := range pairs {
			if p.Birth <= t && t < p.Death {
				alive++
			}
		}
		curve[i] = float64(alive)
	}
	return curve
}

// Landscape evaluates the layer-th persistence landscape function (layer >= 1)
// at every sample. Layers beyond the number of pairs are identically zero.
func Landscape(pairs []Pair, samples []float64, layer int) ([]float64, error) {
	if layer < 1 {
		return nil, fmt.Errorf("landscape layer must be >= 1: %d", layer)
	}

	out := make([]float64, len(samples))
	if layer > len(pairs) {
		return out, nil
	}

	tents := make([]float64, len(pairs))
	for i, t := range samples {
		for k, p := range pairs {
			tents[k] = math.Max(0, math.Min(t-p.Birth, p.Death-t))
		}

		if layer == 1 {
			out[i] = slices.Max(tents)
			continue
		}
		sorted := slices.Clone(tents)
		slices.Sort(sorted)
		out[i] = sorted[len(sorted)-layer]
	}
	return out, nil
}
