package homology

import (
	"errors"
	"math"
)

var (
	// ErrUnsupportedField is returned for coefficient fields other than Z/2.
	ErrUnsupportedField = errors.New("only coefficients in the field with two elements are supported")

	// ErrUnsupportedDimension is returned when a homology degree above the
	// supported maximum is requested.
	ErrUnsupportedDimension = errors.New("unsupported homology dimension")

	// ErrInvalidSimplex is returned for empty simplices, negative vertex ids
	// or non-finite filtration values.
	ErrInvalidSimplex = errors.New("invalid simplex")

	// ErrEmptyPointCloud is returned when Rips persistence gets no points.
	ErrEmptyPointCloud = errors.New("point cloud is empty")

	// ErrInvalidResolution is returned when a curve would be sampled at
	// fewer than two points.
	ErrInvalidResolution = errors.New("sampling resolution must be at least 2")
)

// Pair is one point of a persistence diagram
type Pair struct {
	Birth     float64 `json:"birth"`
	Death     float64 `json:"death"`
	Dimension int     `json:"dimension"`
}

// Life returns Death - Birth
func (p Pair) Life() float64 {
	return p.Death - p.Birth
}

// IsEssential reports whether the class never dies
func (p Pair) IsEssential() bool {
	return math.IsInf(p.Death, 1)
}

// Finite returns the pairs with a finite death, preserving order
func Finite(pairs []Pair) []Pair {
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if !p.IsEssential() {
			out = append(out, p)
		}
	}
	return out
}

// ErrNonFinitePoint is returned when a point cloud has a NaN or infinite coordinate.
var ErrNonFinitePoint = errors.New("point has a non-finite coordinate")
