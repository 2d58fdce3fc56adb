package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ShannonEntropy computes H(X) = -∑ p(x) * ln(p(x)) of a probability vector.
// Zero probabilities contribute nothing (0·ln 0 = 0).
func ShannonEntropy(probabilities []float64) float64 {
	entropy := 0.0
	for _, p := range probabilities {
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}
	return entropy
}

// NormalizeToProbabilities divides non-negative weights by their sum
func NormalizeToProbabilities(weights []float64) ([]float64, error) {
	total := 0.0
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return nil, fmt.Errorf("weight %d is not a non-negative number: %v", i, w)
		}
		total += w
	}

	if total == 0 {
		return nil, fmt.Errorf("weights sum to zero")
	}

	probabilities := make([]float64, len(weights))
	copy(probabilities, weights)
	floats.Scale(1/total, probabilities)
	return probabilities, nil
}
