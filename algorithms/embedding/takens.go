// Package embedding implements delay (Takens) embeddings of scalar sequences.
//
// An embedding of dimension d, lag τ and stride s maps x[0..n-1] to the points
//
//	p_k = (x[k·s], x[k·s+τ], ..., x[k·s+(d-1)·τ]),  k = 0, 1, ...
//
// for as long as the last coordinate stays inside the sequence. With τ = 1 and
// s equal to a window shift, each point is exactly one sliding window.
package embedding

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDimension indicates a non-positive embedding dimension.
	ErrInvalidDimension = errors.New("embedding dimension must be positive")

	// ErrInvalidStride indicates a non-positive stride or lag.
	ErrInvalidStride = errors.New("embedding stride and lag must be positive")

	// ErrSequenceTooShort indicates the sequence cannot hold a single point.
	ErrSequenceTooShort = errors.New("sequence too short for embedding")
)

// NumPoints returns how many points an embedding produces, or 0 when the
// sequence is too short.
func NumPoints(length, dimension, lag, stride int) int {
	if dimension <= 0 || lag <= 0 || stride <= 0 {
		return 0
	}
	span := (dimension-1)*lag + 1
	if length < span {
		return 0
	}
	return (length-span)/stride + 1
}

// Delay embeds sequence with unit lag. Points are returned in order of their
// first sample and each point owns its coordinates.
func Delay(sequence []float64, dimension, stride int) ([][]float64, error) {
	return DelayWithLag(sequence, dimension, 1, stride)
}

// DelayWithLag embeds sequence with an explicit lag between coordinates.
func DelayWithLag(sequence []float64, dimension, lag, stride int) ([][]float64, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dimension)
	}
	if lag <= 0 || stride <= 0 {
		return nil, fmt.Errorf("%w: lag=%d stride=%d", ErrInvalidStride, lag, stride)
	}

	n := NumPoints(len(sequence), dimension, lag, stride)
	if n == 0 {
		return nil, fmt.Errorf("%w: length %d, dimension %d, lag %d",
			ErrSequenceTooShort, len(sequence), dimension, lag)
	}

	// one backing array, one slice header per point
	backing := make([]float64, n*dimension)
	points := make([][]float64, n)
	for k := range n {
		point := backing[k*dimension : (k+1)*dimension : (k+1)*dimension]
		start := k * stride
		for j := range dimension {
			point[j] = sequence[start+j*lag]
		}
		points[k] = point
	}

	return points, nil
}
