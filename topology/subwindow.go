package topology

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/RyanBlaney/sonido-topo/algorithms/homology"
	"github.com/RyanBlaney/sonido-topo/topology/config"
	"github.com/RyanBlaney/sonido-topo/topology/diagram"
)

// LevelSet selects the sublevel (Lower) or superlevel (Upper) filtration of a
// window. Its value is the sign applied to the samples.
type LevelSet float64

const (
	Lower LevelSet = 1
	Upper LevelSet = -1
)

func (l LevelSet) String() string {
	if l == Upper {
		return "upper_levelset"
	}
	return "lower_levelset"
}

// NamedDiagram is a raw diagram tagged with its position in the window layout
type NamedDiagram struct {
	Name  string          `json:"name"`
	Pairs []homology.Pair `json:"pairs"`
}

// Subwindow is a contiguous run of samples identified by its start offset
type Subwindow struct {
	offset int
	values []float64
}

// NewSubwindow copies values into a new window starting at offset
func NewSubwindow(offset int, values []float64) *Subwindow {
	return &Subwindow{
		offset: offset,
		values: slices.Clone(values),
	}
}

// Offset returns the index of the window's first sample in the signal
func (s *Subwindow) Offset() int {
	return s.offset
}

// Len returns the number of samples
func (s *Subwindow) Len() int {
	return len(s.values)
}

// Values returns a copy of the samples
func (s *Subwindow) Values() []float64 {
	return slices.Clone(s.values)
}

// DiagramNames returns the names of the D diagrams produced per window:
// both level sets, then H0 and H1 for every embedding dimension.
func DiagramNames(dims []int) []string {
	names := make([]string, 0, 2+2*len(dims))
	names = append(names, Lower.String(), Upper.String())
	for _, d := range dims {
		names = append(names, fmt.Sprintf("rips_d%d_h0", d), fmt.Sprintf("rips_d%d_h1", d))
	}
	return names
}

// LevelSetFiltration builds the filtration of the path graph over the window:
// vertex i enters at sign*x[i] and edge (i, i+1) at the larger of its
// endpoints. values is not modified.
func LevelSetFiltration(values []float64, sign LevelSet) (*homology.Filtration, error) {
	if sign != Lower && sign != Upper {
		return nil, fmt.Errorf("level set sign must be +1 or -1, got %v", float64(sign))
	}

	scaled := make([]float64, len(values))
	for i, v := range values {
		scaled[i] = float64(sign) * v
	}

	f := homology.NewFiltration()
	for i, v := range scaled {
		if err := f.Insert([]int{i}, v); err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
	}
	for i := 0; i+1 < len(scaled); i++ {
		if err := f.Insert([]int{i, i + 1}, math.Max(scaled[i], scaled[i+1])); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
	}
	return f, nil
}

// LevelSetDiagram computes the persistence pairs of the level-set filtration.
// Upper level-set pairs are reported in the negated scale.
func LevelSetDiagram(engine Engine, values []float64, sign LevelSet) ([]homology.Pair, error) {
	f, err := LevelSetFiltration(values, sign)
	if err != nil {
		return nil, err
	}
	return engine.SimplicialPersistence(f)
}

// Diagrams returns the window's raw diagrams in the order of DiagramNames
func (s *Subwindow) Diagrams(ctx context.Context, engine Engine, dims []int) ([]NamedDiagram, error) {
	if err := config.ValidateEmbeddingDimensions(dims, len(s.values)); err != nil {
		return nil, err
	}

	names := DiagramNames(dims)
	diagrams := make([]NamedDiagram, 0, len(names))

	for _, sign := range []LevelSet{Lower, Upper} {
		pairs, err := LevelSetDiagram(engine, s.values, sign)
		if err != nil {
			return nil, fmt.Errorf("%s diagram of window at %d: %w", sign, s.offset, err)
		}
		diagrams = append(diagrams, NamedDiagram{Name: sign.String(), Pairs: pairs})
	}

	for k, d := range dims {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		points, err := engine.DelayEmbed(s.values, d, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to embed window at %d in dimension %d: %w", s.offset, d, err)
		}
		rips, err := engine.RipsPersistence(points)
		if err != nil {
			return nil, fmt.Errorf("rips persistence of window at %d in dimension %d: %w", s.offset, d, err)
		}

		diagrams = append(diagrams,
			NamedDiagram{Name: names[2+2*k], Pairs: rips.H0},
			NamedDiagram{Name: names[3+2*k], Pairs: rips.H1},
		)
	}

	return diagrams, nil
}

// GetFeatures returns the 8 functionals of every diagram, flattened in
// diagram order. The result has 8*(2+2*len(dims)) values.
func (s *Subwindow) GetFeatures(ctx context.Context, engine Engine, dims []int) ([]float64, error) {
	raw, err := s.Diagrams(ctx, engine, dims)
	if err != nil {
		return nil, err
	}

	features := make([]float64, 0, config.DiagramFeatureCount*len(raw))
	for _, named := range raw {
		d, err := diagram.New(named.Pairs, engine)
		if err != nil {
			return nil, fmt.Errorf("%s diagram of window at %d: %w", named.Name, s.offset, err)
		}
		values, err := d.Features()
		if err != nil {
			return nil, fmt.Errorf("%s diagram of window at %d: %w", named.Name, s.offset, err)
		}
		features = append(features, values.Values()...)
	}

	return features, nil
}
