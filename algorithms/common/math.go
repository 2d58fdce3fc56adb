package common

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrDegenerateSampling is returned when a sampled function has fewer than
	// two samples, so the sampling step is undefined.
	ErrDegenerateSampling = errors.New("function sampled at fewer than two points")

	// ErrRaggedRows is returned when rows passed to an index-wise reduction
	// do not share one length.
	ErrRaggedRows = errors.New("rows have different lengths")
)

// Basic statistical functions used across algorithms using gonum for robustness

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// StandardDeviation calculates the sample standard deviation
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return math.Sqrt(stat.Variance(data, nil))
}

// Normalize normalizes data to zero mean and unit variance
func Normalize(data []float64) []float64 {
	if len(data) == 0 {
		return data
	}

	mean := Mean(data)
	std := StandardDeviation(data)

	normalized := make([]float64, len(data))
	if std < 1e-10 {
		// constant data: center only
		for i, val := range data {
			normalized[i] = val - mean
		}
		return normalized
	}

	for i, val := range data {
		normalized[i] = (val - mean) / std
	}

	return normalized
}

// AllFinite reports whether every value is neither NaN nor infinite
func AllFinite(data []float64) bool {
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// IndexwiseMeanStd reduces equally long rows column by column, returning the
// mean and the population standard deviation of every column. Columns are
// accumulated in row order so that the result does not depend on how the rows
// were produced.
func IndexwiseMeanStd(rows [][]float64) (mean, std []float64, err error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("no rows to aggregate")
	}

	width := len(rows[0])
	for i, row := range rows {
		if len(row) != width {
			return nil, nil, fmt.Errorf("%w: row %d has %d values, row 0 has %d", ErrRaggedRows, i, len(row), width)
		}
	}

	mean = make([]float64, width)
	std = make([]float64, width)
	column := make([]float64, len(rows))

	for j := range width {
		for i, row := range rows {
			column[i] = row[j]
		}

		if len(rows) == 1 {
			mean[j] = column[0]
			continue
		}

		m, variance := stat.PopMeanVariance(column, nil)
		mean[j] = m
		std[j] = math.Sqrt(variance)
	}

	return mean, std, nil
}

// FunctionNorm approximates the Lp norm of a function from n uniformly spaced
// samples over [start, end]:
//
//	(Σ|f_i|^p)^(1/p) * (end-start)/(n-1)
func FunctionNorm(values []float64, start, end, p float64) (float64, error) {
	if len(values) < 2 {
		return 0, fmt.Errorf("%w: got %d", ErrDegenerateSampling, len(values))
	}
	if p < 1 {
		return 0, fmt.Errorf("norm degree must be >= 1: %v", p)
	}

	step := (end - start) / float64(len(values)-1)
	return floats.Norm(values, p) * step, nil
}

// Linspace returns n evenly spaced values over [start, end]
func Linspace(start, end float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if n == 1 {
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, end)
}
