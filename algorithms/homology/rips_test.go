package homology

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/RyanBlaney/sonido-topo/algorithms/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func significant(pairs []Pair, minLife float64) []Pair {
	var out []Pair
	for _, p := range pairs {
		if p.Life() > minLife {
			out = append(out, p)
		}
	}
	return out
}

func TestVietorisRips_Square(t *testing.T) {
	points := [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

	d, err := VietorisRips(points, 1)
	require.NoError(t, err)

	finite := Finite(d.H0)
	require.Len(t, finite, 3)
	for _, p := range finite {
		assert.Equal(t, 0.0, p.Birth)
		assert.InDelta(t, 1.0, p.Death, 1e-12)
	}
	assert.Len(t, d.H0, 4, "one essential component")

	require.Len(t, d.H1, 1)
	assert.InDelta(t, 1.0, d.H1[0].Birth, 1e-12)
	assert.InDelta(t, math.Sqrt2, d.H1[0].Death, 1e-12)
	assert.Equal(t, 1, d.H1[0].Dimension)
}

func TestVietorisRips_TwoClusters(t *testing.T) {
	points := [][]float64{{0}, {0.1}, {10}, {10.2}}

	d, err := VietorisRips(points, 0)
	require.NoError(t, err)
	assert.Nil(t, d.H1)

	deaths := make([]float64, 0, 3)
	for _, p := range Finite(d.H0) {
		deaths = append(deaths, p.Death)
	}
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 9.9}, deaths, 1e-9)
}

func TestVietorisRips_Circle(t *testing.T) {
	const n = 12
	points := make([][]float64, n)
	for k := range n {
		angle := 2 * math.Pi * float64(k) / n
		points[k] = []float64{math.Cos(angle), math.Sin(angle)}
	}

	d, err := VietorisRips(points, 1)
	require.NoError(t, err)

	loops := significant(Finite(d.H1), 1e-9)
	require.Len(t, loops, 1, "a sampled circle has one persistent loop")
	assert.InDelta(t, 2*math.Sin(math.Pi/n), loops[0].Birth, 1e-9)
	assert.InDelta(t, math.Sqrt(3), loops[0].Death, 1e-9)

	for _, p := range d.H1 {
		assert.False(t, p.IsEssential(), "no loop survives the enclosing radius")
	}
}

func TestVietorisRips_SinglePointAndDuplicates(t *testing.T) {
	d, err := VietorisRips([][]float64{{1, 2}}, 1)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Birth: 0, Death: math.Inf(1)}}, d.H0)
	assert.Empty(t, d.H1)

	d, err = VietorisRips([][]float64{{1}, {1}, {1}}, 1)
	require.NoError(t, err)
	assert.Empty(t, Finite(d.H0), "zero-length merges are not reported")
	assert.Empty(t, d.H1)
}

func TestVietorisRips_Errors(t *testing.T) {
	_, err := VietorisRips(nil, 1)
	assert.ErrorIs(t, err, ErrEmptyPointCloud)

	_, err = VietorisRips([][]float64{{0}}, 2)
	assert.ErrorIs(t, err, ErrUnsupportedDimension)

	_, err = VietorisRips([][]float64{{0}, {math.NaN()}}, 1)
	assert.ErrorIs(t, err, ErrNonFinitePoint)
}

func TestTriangleIndex_IsOrderIndependent(t *testing.T) {
	assert.Equal(t, int64(0), triangleIndex(0, 1, 2))
	assert.Equal(t, triangleIndex(3, 1, 0), triangleIndex(0, 1, 3))
	assert.Equal(t, triangleIndex(2, 3, 1), triangleIndex(1, 2, 3))
	assert.NotEqual(t, triangleIndex(0, 1, 3), triangleIndex(0, 2, 3))
	assert.Equal(t, int64(3), edgeIndex(0, 3))
}

// fullRipsFiltration builds the complete 2-skeleton of the Rips filtration
// without any radius cut-off.
func fullRipsFiltration(t *testing.T, points [][]float64) *Filtration {
	t.Helper()
	dist, err := stats.DistanceMatrix(points)
	require.NoError(t, err)

	f := NewFiltration()
	n := len(points)
	for v := range n {
		require.NoError(t, f.Insert([]int{v}, 0))
	}
	for i := range n {
		for j := i + 1; j < n; j++ {
			require.NoError(t, f.Insert([]int{i, j}, dist[i][j]))
		}
	}
	for i := range n {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				diam := max(dist[i][j], dist[i][k], dist[j][k])
				require.NoError(t, f.Insert([]int{i, j, k}, diam))
			}
		}
	}
	return f
}

func sortedPairs(pairs []Pair) []Pair {
	out := slices.Clone(pairs)
	slices.SortFunc(out, func(a, b Pair) int {
		if c := cmp.Compare(a.Birth, b.Birth); c != 0 {
			return c
		}
		return cmp.Compare(a.Death, b.Death)
	})
	return out
}

func TestVietorisRips_MatchesBoundaryReduction(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for trial := range 300 {
		n := 4 + rng.IntN(9)
		points := make([][]float64, n)
		for i := range points {
			if trial%2 == 0 {
				points[i] = []float64{rng.Float64(), rng.Float64()}
			} else {
				// small integer grid: many tied and repeated distances
				points[i] = []float64{float64(rng.IntN(4)), float64(rng.IntN(4))}
			}
		}

		got, err := VietorisRips(points, 1)
		require.NoError(t, err)

		pairs, err := fullRipsFiltration(t, points).Persistence(2)
		require.NoError(t, err)
		finite := Finite(pairs)

		for dim, have := range [][]Pair{Finite(got.H0), Finite(got.H1)} {
			want := sortedPairs(pairsOfDimension(finite, dim))
			have = sortedPairs(have)

			require.Len(t, have, len(want), "trial %d, H%d, points %v", trial, dim, points)
			for k := range want {
				assert.InDelta(t, want[k].Birth, have[k].Birth, 1e-12, "trial %d, H%d", trial, dim)
				assert.InDelta(t, want[k].Death, have[k].Death, 1e-12, "trial %d, H%d", trial, dim)
			}
		}
		for _, p := range pairsOfDimension(pairs, 1) {
			assert.False(t, p.IsEssential(), "trial %d: the full complex has no essential H1", trial)
		}
	}
}
