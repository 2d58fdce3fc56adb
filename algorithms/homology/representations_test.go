package homology

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBettiCurve(t *testing.T) {
	pairs := []Pair{{Birth: 0, Death: 2}, {Birth: 1, Death: 3}}
	assert.Equal(t, []float64{1, 2, 1, 0}, BettiCurve(pairs, []float64{0, 1, 2, 3}))
}

func TestLandscape(t *testing.T) {
	pairs := []Pair{{Birth: 0, Death: 2}, {Birth: 1, Death: 3}}

	first, err := Landscape(pairs, []float64{0, 1, 1.5, 2, 3}, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1, 0.5, 1, 0}, first, 1e-12)

	second, err := Landscape(pairs, []float64{0, 1, 1.5, 2, 3}, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 0.5, 0, 0}, second, 1e-12)

	third, err := Landscape(pairs, []float64{1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, third)

	_, err = Landscape(pairs, []float64{1}, 0)
	assert.Error(t, err)
}

func TestSampling(t *testing.T) {
	s, err := Sampling(0, 1, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, s, 1e-12)

	_, err = Sampling(0, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidResolution)

	_, err = Sampling(0, math.Inf(1), 10)
	assert.Error(t, err)

	_, err = Sampling(1, 0, 10)
	assert.Error(t, err)
}

func TestEngine(t *testing.T) {
	_, err := NewEngine(1, 2)
	assert.ErrorIs(t, err, ErrInvalidResolution)

	_, err = NewEngine(100, 3)
	assert.ErrorIs(t, err, ErrUnsupportedField)

	e := DefaultEngine()
	require.NotNil(t, e)
	assert.Equal(t, DefaultResolution, e.Resolution())

	pairs := []Pair{{Birth: 0, Death: 1}}
	curve, err := e.BettiCurve(pairs, 0, 1)
	require.NoError(t, err)
	assert.Len(t, curve, DefaultResolution)
	assert.Equal(t, 1.0, curve[0])
	assert.Equal(t, 0.0, curve[DefaultResolution-1], "death is excluded")

	landscape, err := e.Landscape(pairs, 0, 1)
	require.NoError(t, err)
	assert.Len(t, landscape, DefaultResolution)

	points, err := e.DelayEmbed([]float64{1, 2, 3}, 2, 1)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}
