package stats

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// EuclideanDistance calculates the L2 distance between two points
func EuclideanDistance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// DistanceMatrix computes pairwise Euclidean distances between all vectors.
// All vectors must have the same dimension.
func DistanceMatrix(data [][]float64) ([][]float64, error) {
	n := len(data)
	if n == 0 {
		return [][]float64{}, nil
	}

	dim := len(data[0])
	for i, p := range data {
		if len(p) != dim {
			return nil, fmt.Errorf("point %d has dimension %d, expected %d", i, len(p), dim)
		}
	}

	matrix := make([][]float64, n)
	for i := range n {
		matrix[i] = make([]float64, n)
	}

	for i := range n {
		for j := i + 1; j < n; j++ {
			d := EuclideanDistance(data[i], data[j])
			matrix[i][j] = d
			matrix[j][i] = d
		}
	}

	return matrix, nil
}
