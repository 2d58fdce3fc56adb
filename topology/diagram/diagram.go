// Package diagram reduces a persistence diagram to a fixed set of scalar
// functionals: amplitudes, persistent entropy and the norms of its Betti
// curve and first persistence landscape.
package diagram

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/RyanBlaney/sonido-topo/algorithms/common"
	"github.com/RyanBlaney/sonido-topo/algorithms/homology"
	"github.com/RyanBlaney/sonido-topo/algorithms/stats"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrEmptyDiagram is returned when no finite pair is left after dropping
	// essential classes.
	ErrEmptyDiagram = errors.New("persistence diagram has no finite pairs")

	// ErrDegenerateDiagram is returned when every pair has zero life, which
	// leaves persistent entropy undefined.
	ErrDegenerateDiagram = errors.New("persistence diagram has zero total life")

	// ErrInvalidPair is returned for a pair with a non-finite birth or with
	// death < birth.
	ErrInvalidPair = errors.New("invalid persistence pair")
)

// Feature names, in extraction order
const (
	BottleneckAmplitude   = "bottleneck_amplitude"
	WassersteinAmplitude1 = "wasserstein_amplitude1"
	WassersteinAmplitude2 = "wasserstein_amplitude2"
	PersistentEntropy     = "persistent_entropy"
	BettiL1Norm           = "betti_l1norm"
	BettiL2Norm           = "betti_l2norm"
	LandscapeL1Norm       = "landscape_l1norm"
	LandscapeL2Norm       = "landscape_l2norm"
)

// FeatureNames lists the names of the extracted functionals in order
var FeatureNames = []string{
	BottleneckAmplitude,
	WassersteinAmplitude1,
	WassersteinAmplitude2,
	PersistentEntropy,
	BettiL1Norm,
	BettiL2Norm,
	LandscapeL1Norm,
	LandscapeL2Norm,
}

// Vectorizer samples diagram curves over [lo, hi] at a fixed resolution.
// *homology.Engine implements it.
type Vectorizer interface {
	BettiCurve(pairs []homology.Pair, lo, hi float64) ([]float64, error)
	Landscape(pairs []homology.Pair, lo, hi float64) ([]float64, error)
}

// Feature is one named scalar
type Feature struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Features is an ordered list of named scalars
type Features []Feature

// Values returns the feature values in order
func (f Features) Values() []float64 {
	values := make([]float64, len(f))
	for i, feature := range f {
		values[i] = feature.Value
	}
	return values
}

// Get returns the value of the named feature
func (f Features) Get(name string) (float64, bool) {
	for _, feature := range f {
		if feature.Name == name {
			return feature.Value, true
		}
	}
	return 0, false
}

// lazyCurve is a curve that is either not yet sampled or sampled and cached.
// The once guards both states so concurrent readers see one computation.
type lazyCurve struct {
	once     sync.Once
	computed bool
	values   []float64
	err      error
}

func (c *lazyCurve) get(sample func() ([]float64, error)) ([]float64, error) {
	c.once.Do(func() {
		c.values, c.err = sample()
		c.computed = true
	})
	return c.values, c.err
}

// PersistenceDiagram is an immutable multiset of finite persistence pairs with
// its derived quantities. Curves are sampled on first use and then reused.
type PersistenceDiagram struct {
	pairs    []homology.Pair
	lives    []float64
	minBirth float64
	maxDeath float64

	engine    Vectorizer
	betti     lazyCurve
	landscape lazyCurve
}

// New builds a diagram from raw pairs. Pairs with an infinite death are
// dropped; the pairs slice is not retained.
func New(pairs []homology.Pair, engine Vectorizer) (*PersistenceDiagram, error) {
	if engine == nil {
		return nil, fmt.Errorf("diagram needs a vectorizer")
	}

	d := &PersistenceDiagram{
		engine:   engine,
		minBirth: math.Inf(1),
		maxDeath: math.Inf(-1),
	}

	for i, p := range pairs {
		if p.IsEssential() {
			continue
		}
		if math.IsNaN(p.Birth) || math.IsInf(p.Birth, 0) || math.IsNaN(p.Death) || math.IsInf(p.Death, -1) {
			return nil, fmt.Errorf("%w: pair %d is (%v, %v)", ErrInvalidPair, i, p.Birth, p.Death)
		}
		if p.Death < p.Birth {
			return nil, fmt.Errorf("%w: pair %d dies at %v before it is born at %v", ErrInvalidPair, i, p.Death, p.Birth)
		}

		d.pairs = append(d.pairs, p)
		d.lives = append(d.lives, p.Life())
		d.minBirth = math.Min(d.minBirth, p.Birth)
		d.maxDeath = math.Max(d.maxDeath, p.Death)
	}

	if len(d.pairs) == 0 {
		return nil, fmt.Errorf("%w: %d pairs, all essential", ErrEmptyDiagram, len(pairs))
	}

	return d, nil
}

// Len returns the number of finite pairs
func (d *PersistenceDiagram) Len() int {
	return len(d.pairs)
}

// Pairs returns a copy of the finite pairs
func (d *PersistenceDiagram) Pairs() []homology.Pair {
	return slices.Clone(d.pairs)
}

// Lives returns a copy of death - birth per pair
func (d *PersistenceDiagram) Lives() []float64 {
	return slices.Clone(d.lives)
}

// Domain returns [min birth, max death], the sampling domain of the curves
func (d *PersistenceDiagram) Domain() (lo, hi float64) {
	return d.minBirth, d.maxDeath
}

// BottleneckAmplitude is the largest life
func (d *PersistenceDiagram) BottleneckAmplitude() float64 {
	return floats.Max(d.lives)
}

// WassersteinAmplitude returns the l^p norm of the lives (p = 1 or 2 here)
func (d *PersistenceDiagram) WassersteinAmplitude(p float64) float64 {
	return floats.Norm(d.lives, p)
}

// PersistentEntropy returns the Shannon entropy of the normalized lives
func (d *PersistenceDiagram) PersistentEntropy() (float64, error) {
	if floats.Sum(d.lives) == 0 {
		return 0, fmt.Errorf("%w: %d pairs", ErrDegenerateDiagram, len(d.lives))
	}

	probabilities, err := stats.NormalizeToProbabilities(d.lives)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDegenerateDiagram, err)
	}
	return stats.ShannonEntropy(probabilities), nil
}

// BettiCurve returns the cached Betti curve over the diagram's domain
func (d *PersistenceDiagram) BettiCurve() ([]float64, error) {
	return d.betti.get(func() ([]float64, error) {
		return d.engine.BettiCurve(d.pairs, d.minBirth, d.maxDeath)
	})
}

// Landscape returns the cached first landscape layer over the diagram's domain
func (d *PersistenceDiagram) Landscape() ([]float64, error) {
	return d.landscape.get(func() ([]float64, error) {
		return d.engine.Landscape(d.pairs, d.minBirth, d.maxDeath)
	})
}

// BettiNorm returns the l^p function norm of the Betti curve
func (d *PersistenceDiagram) BettiNorm(p float64) (float64, error) {
	curve, err := d.BettiCurve()
	if err != nil {
		return 0, fmt.Errorf("failed to sample Betti curve: %w", err)
	}
	return common.FunctionNorm(curve, d.minBirth, d.maxDeath, p)
}

// LandscapeNorm returns the l^p function norm of the first landscape layer
func (d *PersistenceDiagram) LandscapeNorm(p float64) (float64, error) {
	landscape, err := d.Landscape()
	if err != nil {
		return 0, fmt.Errorf("failed to sample landscape: %w", err)
	}
	return common.FunctionNorm(landscape, d.minBirth, d.maxDeath, p)
}

// Features returns the eight functionals in the order of FeatureNames
func (d *PersistenceDiagram) Features() (Features, error) {
	entropy, err := d.PersistentEntropy()
	if err != nil {
		return nil, err
	}

	features := Features{
		{Name: BottleneckAmplitude, Value: d.BottleneckAmplitude()},
		{Name: WassersteinAmplitude1, Value: d.WassersteinAmplitude(1)},
		{Name: WassersteinAmplitude2, Value: d.WassersteinAmplitude(2)},
		{Name: PersistentEntropy, Value: entropy},
	}

	norms := []struct {
		name string
		norm func(p float64) (float64, error)
		p    float64
	}{
		{BettiL1Norm, d.BettiNorm, 1},
		{BettiL2Norm, d.BettiNorm, 2},
		{LandscapeL1Norm, d.LandscapeNorm, 1},
		{LandscapeL2Norm, d.LandscapeNorm, 2},
	}
	for _, n := range norms {
		value, err := n.norm(n.p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.name, err)
		}
		features = append(features, Feature{Name: n.name, Value: value})
	}

	return features, nil
}
