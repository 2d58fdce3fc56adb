package homology

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
)

type simplex struct {
	vertices []int // sorted, distinct
	value    float64
	order    int // insertion order, last tie-break
}

func (s *simplex) dimension() int {
	return len(s.vertices) - 1
}

// Filtration is a filtered simplicial complex built by inserting simplices
// with their filtration values.
type Filtration struct {
	simplices []*simplex
	index     map[string]*simplex
}

// NewFiltration creates an empty filtration
func NewFiltration() *Filtration {
	return &Filtration{
		index: make(map[string]*simplex),
	}
}

// Insert adds a simplex and all of its faces with the given filtration value.
// Simplices already present keep the smaller of their current and the new
// value, so every face always enters no later than its cofaces.
func (f *Filtration) Insert(vertices []int, value float64) error {
	if len(vertices) == 0 {
		return fmt.Errorf("%w: no vertices", ErrInvalidSimplex)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: filtration value %v", ErrInvalidSimplex, value)
	}

	sorted := slices.Clone(vertices)
	slices.Sort(sorted)
	if sorted[0] < 0 {
		return fmt.Errorf("%w: negative vertex %d", ErrInvalidSimplex, sorted[0])
	}
	if len(slices.Compact(slices.Clone(sorted))) != len(sorted) {
		return fmt.Errorf("%w: repeated vertex in %v", ErrInvalidSimplex, vertices)
	}

	f.insert(sorted, value)
	return nil
}

func (f *Filtration) insert(vertices []int, value float64) {
	key := simplexKey(vertices)
	if existing, ok := f.index[key]; ok {
		if existing.value <= value {
			// faces are already at or below existing.value
			return
		}
		existing.value = value
	} else {
		s := &simplex{vertices: vertices, value: value, order: len(f.simplices)}
		f.simplices = append(f.simplices, s)
		f.index[key] = s
	}

	if len(vertices) == 1 {
		return
	}
	for drop := range vertices {
		f.insert(face(vertices, drop), value)
	}
}

// Len returns the number of simplices
func (f *Filtration) Len() int {
	return len(f.simplices)
}

// Value returns the filtration value of a simplex and whether it is present
func (f *Filtration) Value(vertices []int) (float64, bool) {
	sorted := slices.Clone(vertices)
	slices.Sort(sorted)
	s, ok := f.index[simplexKey(sorted)]
	if !ok {
		return 0, false
	}
	return s.value, true
}

// Persistence computes the persistence pairs of the filtration with
// coefficients in the field of the given characteristic. Only characteristic
// 2 is supported. Pairs with zero persistence are dropped and essential
// classes are reported with an infinite death.
func (f *Filtration) Persistence(field int) ([]Pair, error) {
	if field != 2 {
		return nil, fmt.Errorf("%w: characteristic %d", ErrUnsupportedField, field)
	}

	ordered := slices.Clone(f.simplices)
	slices.SortStableFunc(ordered, func(a, b *simplex) int {
		if c := cmp.Compare(a.value, b.value); c != 0 {
			return c
		}
		if c := cmp.Compare(a.dimension(), b.dimension()); c != 0 {
			return c
		}
		return cmp.Compare(a.order, b.order)
	})

	position := make(map[string]int, len(ordered))
	for i, s := range ordered {
		position[simplexKey(s.vertices)] = i
	}

	// boundary columns as sorted row indices
	columns := make([][]int, len(ordered))
	for j, s := range ordered {
		if s.dimension() == 0 {
			continue
		}
		col := make([]int, 0, len(s.vertices))
		for drop := range s.vertices {
			col = append(col, position[simplexKey(face(s.vertices, drop))])
		}
		slices.Sort(col)
		columns[j] = col
	}

	lowOwner := make(map[int]int)
	for j := range columns {
		col := columns[j]
		for len(col) > 0 {
			k, ok := lowOwner[col[len(col)-1]]
			if !ok {
				break
			}
			col = addColumnsZ2(col, columns[k])
		}
		columns[j] = col
		if len(col) > 0 {
			lowOwner[col[len(col)-1]] = j
		}
	}

	var pairs []Pair
	paired := make([]bool, len(ordered))
	for j, col := range columns {
		if len(col) == 0 {
			continue
		}
		i := col[len(col)-1]
		paired[i], paired[j] = true, true

		birth, death := ordered[i].value, ordered[j].value
		if death > birth {
			pairs = append(pairs, Pair{Birth: birth, Death: death, Dimension: ordered[i].dimension()})
		}
	}

	for i, s := range ordered {
		if !paired[i] {
			pairs = append(pairs, Pair{Birth: s.value, Death: math.Inf(1), Dimension: s.dimension()})
		}
	}

	return pairs, nil
}

// addColumnsZ2 returns the symmetric difference of two sorted index lists
func addColumnsZ2(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func face(vertices []int, drop int) []int {
	out := make([]int, 0, len(vertices)-1)
	out = append(out, vertices[:drop]...)
	return append(out, vertices[drop+1:]...)
}

func simplexKey(vertices []int) string {
	buf := make([]byte, 0, len(vertices)*4)
	for i, v := range vertices {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(v), 10)
	}
	return string(buf)
}
