package topology

import (
	"github.com/RyanBlaney/sonido-topo/algorithms/homology"
	"github.com/RyanBlaney/sonido-topo/topology/diagram"
)

// Engine is the persistent homology capability used by the pipeline.
// Implementations must be safe for concurrent use.
type Engine interface {
	diagram.Vectorizer

	DelayEmbed(sequence []float64, dimension, stride int) ([][]float64, error)
	SimplicialPersistence(f *homology.Filtration) ([]homology.Pair, error)
	RipsPersistence(points [][]float64) (*homology.RipsDiagrams, error)
}

var _ Engine = (*homology.Engine)(nil)
