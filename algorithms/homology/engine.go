package homology

import (
	"fmt"

	"github.com/RyanBlaney/sonido-topo/algorithms/embedding"
	"github.com/RyanBlaney/sonido-topo/logging"
)

const (
	// DefaultResolution is the number of samples used for Betti curves and
	// landscapes (giotto-tda's n_bins default).
	DefaultResolution = 100

	// DefaultCoefficientField is the characteristic of the coefficient field.
	DefaultCoefficientField = 2
)

// Engine bundles the persistent homology operations consumed by the feature
// pipeline. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	resolution int
	field      int
	logger     logging.Logger
}

// NewEngine creates an engine sampling curves at resolution points and
// computing simplicial persistence over the field of characteristic field.
func NewEngine(resolution, field int) (*Engine, error) {
	if resolution < 2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidResolution, resolution)
	}
	if field != 2 {
		return nil, fmt.Errorf("%w: characteristic %d", ErrUnsupportedField, field)
	}

	return &Engine{
		resolution: resolution,
		field:      field,
		logger: logging.WithFields(logging.Fields{
			"component": "homology_engine",
		}),
	}, nil
}

// DefaultEngine returns an engine with the default resolution and field
func DefaultEngine() *Engine {
	e, _ := NewEngine(DefaultResolution, DefaultCoefficientField)
	return e
}

// Resolution returns the number of samples per curve
func (e *Engine) Resolution() int {
	return e.resolution
}

// DelayEmbed embeds sequence with unit lag
func (e *Engine) DelayEmbed(sequence []float64, dimension, stride int) ([][]float64, error) {
	return embedding.Delay(sequence, dimension, stride)
}

// SimplicialPersistence computes the persistence pairs of f
func (e *Engine) SimplicialPersistence(f *Filtration) ([]Pair, error) {
	pairs, err := f.Persistence(e.field)
	if err != nil {
		e.logger.Error(err, "Simplicial persistence failed", logging.Fields{
			"simplices": f.Len(),
		})
		return nil, err
	}
	return pairs, nil
}

// RipsPersistence computes the degree-0 and degree-1 Rips diagrams of points
func (e *Engine) RipsPersistence(points [][]float64) (*RipsDiagrams, error) {
	diagrams, err := VietorisRips(points, 1)
	if err != nil {
		e.logger.Error(err, "Vietoris-Rips persistence failed", logging.Fields{
			"points": len(points),
		})
		return nil, err
	}

	e.logger.Debug("Vietoris-Rips persistence computed", logging.Fields{
		"points": len(points),
		"h0":     len(diagrams.H0),
		"h1":     len(diagrams.H1),
	})
	return diagrams, nil
}

// BettiCurve samples the Betti curve of pairs over [lo, hi]
func (e *Engine) BettiCurve(pairs []Pair, lo, hi float64) ([]float64, error) {
	samples, err := Sampling(lo, hi, e.resolution)
	if err != nil {
		return nil, err
	}
	return BettiCurve(pairs, samples), nil
}

// Landscape samples the first persistence landscape layer of pairs over [lo, hi]
func (e *Engine) Landscape(pairs []Pair, lo, hi float64) ([]float64, error) {
	samples, err := Sampling(lo, hi, e.resolution)
	if err != nil {
		return nil, err
	}
	return Landscape(pairs, samples, 1)
}
