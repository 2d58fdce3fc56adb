package store_test

import (
	"context"
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-topo/logging"
	"github.com/RyanBlaney/sonido-topo/store"
	"github.com/RyanBlaney/sonido-topo/topology"
	"github.com/RyanBlaney/sonido-topo/topology/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logging.SetGlobalLogger(nil)
}

func testSignal(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := float64(i)
		out[i] = math.Sin(0.3*x) + 0.5*math.Sin(1.7*x+0.2)
	}
	return out
}

func testConfig() config.Config {
	return config.Config{
		WindowSize:          64,
		WindowShift:         32,
		EmbeddingDimensions: []int{3},
	}
}

func makeTestCache(t *testing.T) *store.FeatureCache {
	t.Helper()
	cache, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestKey(t *testing.T) {
	signal := testSignal(128)
	cfg := testConfig()

	k1, err := store.Key(signal, cfg)
	require.NoError(t, err)
	assert.Len(t, k1, len("feat/")+32)

	t.Run("Workers do not change the key", func(t *testing.T) {
		withWorkers := cfg
		withWorkers.Workers = 7
		k2, err := store.Key(signal, withWorkers)
		require.NoError(t, err)
		assert.Equal(t, k1, k2)
	})

	t.Run("Explicit defaults share the key", func(t *testing.T) {
		explicit := cfg.Normalize()
		k2, err := store.Key(signal, explicit)
		require.NoError(t, err)
		assert.Equal(t, k1, k2)
	})

	t.Run("Different shift changes the key", func(t *testing.T) {
		other := cfg
		other.WindowShift = 16
		k2, err := store.Key(signal, other)
		require.NoError(t, err)
		assert.NotEqual(t, k1, k2)
	})

	t.Run("Different signal changes the key", func(t *testing.T) {
		changed := testSignal(128)
		changed[5] += 1e-9
		k2, err := store.Key(changed, cfg)
		require.NoError(t, err)
		assert.NotEqual(t, k1, k2)
	})
}

func TestFeatureCache_PutGet(t *testing.T) {
	cache := makeTestCache(t)
	signal := testSignal(128)
	cfg := testConfig()

	_, ok, err := cache.Get(signal, cfg)
	require.NoError(t, err)
	assert.False(t, ok)

	want := topology.FeatureVector{1, 2, 3, 0.5}
	require.NoError(t, cache.Put(signal, cfg, want))

	got, ok, err := cache.Get(signal, cfg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, misses := cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestFeatureCache_GetOrExtract(t *testing.T) {
	cache := makeTestCache(t)
	cfg := testConfig()

	ts, err := topology.NewTimeSeries(testSignal(128))
	require.NoError(t, err)

	first, err := cache.GetOrExtract(context.Background(), ts, cfg)
	require.NoError(t, err)
	assert.Len(t, first, cfg.FeatureLength())

	second, err := cache.GetOrExtract(context.Background(), ts, cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	hits, misses := cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestFeatureCache_ExtractionErrorNotStored(t *testing.T) {
	cache := makeTestCache(t)

	ts, err := topology.NewTimeSeries(make([]float64, 128))
	require.NoError(t, err)

	_, err = cache.GetOrExtract(context.Background(), ts, testConfig())
	assert.ErrorIs(t, err, topology.ErrEmptyDiagram)

	n, err := cache.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFeatureCache_PersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	signal := testSignal(96)
	cfg := testConfig()
	want := topology.FeatureVector{0.25, -1}

	cache, err := store.Open(dir)
	require.NoError(t, err)
	require.NoError(t, cache.Put(signal, cfg, want))
	require.NoError(t, cache.Close())

	reopened, err := store.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get(signal, cfg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestFeatureCache_Closed(t *testing.T) {
	cache, err := store.Open("")
	require.NoError(t, err)
	require.NoError(t, cache.Close())
	assert.NoError(t, cache.Close(), "second close is a no-op")

	_, _, err = cache.Get(testSignal(8), testConfig())
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.ErrorIs(t, cache.Put(testSignal(8), testConfig(), nil), store.ErrClosed)
	_, err = cache.Len()
	assert.ErrorIs(t, err, store.ErrClosed)
}
