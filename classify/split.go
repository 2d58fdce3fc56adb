package classify

import (
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"slices"
)

// StratifiedSplit shuffles row indices and splits them so that every label
// keeps its share in the test set. Each class with at least two rows
// contributes at least one row to each side.
func StratifiedSplit(labels []int, testFraction float64, seed uint64) (train, test []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1): %v", testFraction)
	}
	if len(labels) < 2 {
		return nil, nil, fmt.Errorf("%w: need at least two rows, got %d", ErrShapeMismatch, len(labels))
	}

	byLabel := make(map[int][]int)
	for i, label := range labels {
		byLabel[label] = append(byLabel[label], i)
	}

	rng := rand.New(rand.NewPCG(seed, seed+1))
	for _, label := range slices.Sorted(maps.Keys(byLabel)) {
		rows := byLabel[label]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

		n := int(math.Round(testFraction * float64(len(rows))))
		if len(rows) >= 2 {
			n = min(max(n, 1), len(rows)-1)
		}
		test = append(test, rows[:n]...)
		train = append(train, rows[n:]...)
	}

	slices.Sort(train)
	slices.Sort(test)
	return train, test, nil
}

// Rows selects rows of x by index
func Rows[T any](x []T, indices []int) []T {
	out := make([]T, len(indices))
	for i, idx := range indices {
		out[i] = x[idx]
	}
	return out
}
