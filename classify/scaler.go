package classify

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrNotFitted is returned when a model is used before Fit
	ErrNotFitted = errors.New("model is not fitted")

	// ErrShapeMismatch is returned for ragged or mismatched inputs
	ErrShapeMismatch = errors.New("input shape mismatch")
)

// StandardScaler centers every column and scales it to unit population
// variance. Constant columns keep a scale of 1.
type StandardScaler struct {
	mean  []float64
	scale []float64
}

// Fit learns per-column mean and standard deviation
func (s *StandardScaler) Fit(x [][]float64) error {
	width, err := matrixWidth(x)
	if err != nil {
		return err
	}

	s.mean = make([]float64, width)
	s.scale = make([]float64, width)
	column := make([]float64, len(x))
	for j := range width {
		for i, row := range x {
			column[i] = row[j]
		}
		mean, variance := stat.PopMeanVariance(column, nil)
		s.mean[j] = mean
		s.scale[j] = 1
		if variance > 0 {
			s.scale[j] = math.Sqrt(variance)
		}
	}
	return nil
}

// Transform returns a scaled copy of x
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	if s.mean == nil {
		return nil, ErrNotFitted
	}

	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.mean) {
			return nil, fmt.Errorf("%w: row %d has %d columns, scaler was fitted on %d",
				ErrShapeMismatch, i, len(row), len(s.mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.mean[j]) / s.scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits the scaler on x and returns x scaled
func (s *StandardScaler) FitTransform(x [][]float64) ([][]float64, error) {
	if err := s.Fit(x); err != nil {
		return nil, err
	}
	return s.Transform(x)
}

func matrixWidth(x [][]float64) (int, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("%w: no rows", ErrShapeMismatch)
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d columns, row 0 has %d", ErrShapeMismatch, i, len(row), width)
		}
	}
	return width, nil
}
