package homology

import (
	"cmp"
	"container/heap"
	"fmt"
	"math"
	"slices"

	"github.com/RyanBlaney/sonido-topo/algorithms/common"
	"github.com/RyanBlaney/sonido-topo/algorithms/stats"
)

// RipsDiagrams holds the Vietoris-Rips diagrams of a point cloud by degree
type RipsDiagrams struct {
	H0 []Pair `json:"h0"`
	H1 []Pair `json:"h1"`
}

type ripsEdge struct {
	i, j  int // i < j
	diam  float64
	index int64
}

type ripsTriangle struct {
	diam float64
	key  int64
}

// triangles are ordered by diameter, then by combinatorial index
func triangleLess(a, b ripsTriangle) bool {
	if a.diam != b.diam {
		return a.diam < b.diam
	}
	return a.key < b.key
}

// VietorisRips computes the persistence diagrams of the Vietoris-Rips
// filtration of points under the Euclidean metric, up to degree maxDim
// (0 or 1). Every vertex is born at 0.
func VietorisRips(points [][]float64, maxDim int) (*RipsDiagrams, error) {
	if len(points) == 0 {
		return nil, ErrEmptyPointCloud
	}
	if maxDim < 0 || maxDim > 1 {
		return nil, fmt.Errorf("%w: %d (supported: 0, 1)", ErrUnsupportedDimension, maxDim)
	}
	for i, p := range points {
		if !common.AllFinite(p) {
			return nil, fmt.Errorf("%w: point %d", ErrNonFinitePoint, i)
		}
	}

	dist, err := stats.DistanceMatrix(points)
	if err != nil {
		return nil, fmt.Errorf("failed to compute distance matrix: %w", err)
	}

	threshold := enclosingRadius(dist)
	edges := ripsEdges(dist, threshold)

	result := &RipsDiagrams{}

	// degree 0: Kruskal over the edge order, elder rule with equal births
	uf := newUnionFind(len(points))
	merging := make([]bool, len(edges))
	for k, e := range edges {
		if !uf.union(e.i, e.j) {
			continue
		}
		merging[k] = true
		if e.diam > 0 {
			result.H0 = append(result.H0, Pair{Birth: 0, Death: e.diam, Dimension: 0})
		}
	}
	for v := range points {
		if uf.find(v) == v {
			result.H0 = append(result.H0, Pair{Birth: 0, Death: math.Inf(1), Dimension: 0})
		}
	}

	if maxDim == 0 {
		return result, nil
	}

	reducer := &cohomologyReducer{
		dist:       dist,
		threshold:  threshold,
		edges:      edges,
		pivotOwner: make(map[int64]int),
		reduction:  make(map[int][]int),
	}
	result.H1 = reducer.reduce(merging)

	return result, nil
}

// enclosingRadius is the smallest r such that some point lies within r of
// every other point. The Rips complex at r is a cone, so no class of positive
// degree survives past it.
func enclosingRadius(dist [][]float64) float64 {
	radius := math.Inf(1)
	for _, row := range dist {
		farthest := 0.0
		for _, d := range row {
			if d > farthest {
				farthest = d
			}
		}
		if farthest < radius {
			radius = farthest
		}
	}
	if math.IsInf(radius, 1) {
		return 0
	}
	return radius
}

func ripsEdges(dist [][]float64, threshold float64) []ripsEdge {
	var edges []ripsEdge
	for j := range dist {
		for i := 0; i < j; i++ {
			if d := dist[i][j]; d <= threshold {
				edges = append(edges, ripsEdge{i: i, j: j, diam: d, index: edgeIndex(i, j)})
			}
		}
	}
	slices.SortFunc(edges, func(a, b ripsEdge) int {
		if c := cmp.Compare(a.diam, b.diam); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})
	return edges
}

// edgeIndex and triangleIndex use the combinatorial number system
func edgeIndex(i, j int) int64 {
	return binomial(j, 2) + int64(i)
}

func triangleIndex(a, b, c int) int64 {
	// sort three vertices
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return binomial(c, 3) + binomial(b, 2) + int64(a)
}

func binomial(n, k int) int64 {
	if n < k {
		return 0
	}
	switch k {
	case 2:
		return int64(n) * int64(n-1) / 2
	case 3:
		return int64(n) * int64(n-1) * int64(n-2) / 6
	}
	panic("binomial: unsupported k")
}

// cohomologyReducer reduces the edge-to-triangle coboundary matrix over Z/2.
// Columns are processed in reverse filtration order; the pivot of a column is
// its earliest triangle.
type cohomologyReducer struct {
	dist      [][]float64
	threshold float64
	edges     []ripsEdge

	// triangle key -> edge position whose reduced column has that pivot
	pivotOwner map[int64]int
	// edge position -> edges summed into its reduced column; absent means itself
	reduction map[int][]int
}

func (r *cohomologyReducer) reduce(merging []bool) []Pair {
	var pairs []Pair
	cob := make([]ripsTriangle, 0, len(r.dist))

	for pos := len(r.edges) - 1; pos >= 0; pos-- {
		// edges that merged components are paired in degree 0
		if merging[pos] {
			continue
		}
		e := r.edges[pos]
		cob = r.coboundary(e, cob)

		if len(cob) == 0 {
			pairs = append(pairs, Pair{Birth: e.diam, Death: math.Inf(1), Dimension: 1})
			continue
		}

		pivot := cob[0]
		for _, t := range cob[1:] {
			if triangleLess(t, pivot) {
				pivot = t
			}
		}
		if _, claimed := r.pivotOwner[pivot.key]; !claimed {
			r.pivotOwner[pivot.key] = pos
			if pivot.diam > e.diam {
				pairs = append(pairs, Pair{Birth: e.diam, Death: pivot.diam, Dimension: 1})
			}
			continue
		}

		if p, ok := r.reduceColumn(pos, cob); ok {
			pairs = append(pairs, p)
		}
	}

	return pairs
}

// reduceColumn runs the full column reduction for the edge at pos and
// returns its pair. A column that reduces to zero yields an essential class.
func (r *cohomologyReducer) reduceColumn(pos int, cob []ripsTriangle) (Pair, bool) {
	e := r.edges[pos]
	working := triangleHeap(slices.Clone(cob))
	heap.Init(&working)
	summed := map[int]struct{}{pos: {}}

	for {
		pivot, ok := working.pivot()
		if !ok {
			return Pair{Birth: e.diam, Death: math.Inf(1), Dimension: 1}, true
		}

		owner, claimed := r.pivotOwner[pivot.key]
		if !claimed {
			r.pivotOwner[pivot.key] = pos
			r.reduction[pos] = sortedKeys(summed)
			if pivot.diam > e.diam {
				return Pair{Birth: e.diam, Death: pivot.diam, Dimension: 1}, true
			}
			return Pair{}, false
		}

		ownerColumn, ok := r.reduction[owner]
		if !ok {
			ownerColumn = []int{owner}
		}
		for _, f := range ownerColumn {
			if _, in := summed[f]; in {
				delete(summed, f)
			} else {
				summed[f] = struct{}{}
			}
			for _, t := range r.coboundary(r.edges[f], nil) {
				heap.Push(&working, t)
			}
		}
	}
}

// coboundary lists the triangles {i, j, k} within the threshold
func (r *cohomologyReducer) coboundary(e ripsEdge, dst []ripsTriangle) []ripsTriangle {
	dst = dst[:0]
	rowI, rowJ := r.dist[e.i], r.dist[e.j]
	for k := range rowI {
		if k == e.i || k == e.j {
			continue
		}
		dik, djk := rowI[k], rowJ[k]
		if dik > r.threshold || djk > r.threshold {
			continue
		}
		dst = append(dst, ripsTriangle{
			diam: max(e.diam, dik, djk),
			key:  triangleIndex(e.i, e.j, k),
		})
	}
	return dst
}

func sortedKeys(set map[int]struct{}) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// triangleHeap is a min-heap holding a Z/2 column as a multiset
type triangleHeap []ripsTriangle

func (h triangleHeap) Len() int           { return len(h) }
func (h triangleHeap) Less(i, j int) bool { return triangleLess(h[i], h[j]) }
func (h triangleHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *triangleHeap) Push(x any) {
	*h = append(*h, x.(ripsTriangle))
}

func (h *triangleHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// pivot discards entries that cancel in pairs and returns the smallest
// surviving triangle, leaving it in the heap.
func (h *triangleHeap) pivot() (ripsTriangle, bool) {
	for h.Len() > 0 {
		t := heap.Pop(h).(ripsTriangle)
		count := 1
		for h.Len() > 0 && (*h)[0].key == t.key {
			heap.Pop(h)
			count++
		}
		if count%2 == 1 {
			heap.Push(h, t)
			return t, true
		}
	}
	return ripsTriangle{}, false
}
