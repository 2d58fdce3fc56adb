package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RyanBlaney/sonido-topo/logging"
	"github.com/RyanBlaney/sonido-topo/metrics"
	"github.com/RyanBlaney/sonido-topo/server"
	"github.com/RyanBlaney/sonido-topo/store"
	"github.com/RyanBlaney/sonido-topo/topology/config"
	"github.com/RyanBlaney/sonido-topo/transcode"
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

func makeTestServer(t *testing.T) (*server.Server, http.Handler) {
	t.Helper()
	cache, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	cfg := config.Config{WindowSize: 64, WindowShift: 32, EmbeddingDimensions: []int{3}}
	srv := server.New(cfg, metrics.NewStats(), cache)
	return srv, srv.SetupMux()
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestSetupMux(t *testing.T) {
	_, h := makeTestServer(t)

	t.Run("Metrics Endpoint answers", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/metrics", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Version Endpoint answers with JSON", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/version", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "dev", resp["version"])
	})

	t.Run("Config Endpoint returns normalized config", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/config", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var cfg config.Config
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
		assert.Equal(t, 64, cfg.WindowSize)
		assert.Equal(t, 100, cfg.Resolution)
	})

	t.Run("Wrong method is rejected", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/features", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

		w = do(t, h, http.MethodPut, "/api/features/csv", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

		w = do(t, h, http.MethodPost, "/api/version", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestFeatureNamesHandler(t *testing.T) {
	_, h := makeTestServer(t)

	w := do(t, h, http.MethodGet, "/api/feature-names?dims=3,5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// D = 2 + 2*2 = 6 diagrams, 16*D names
	assert.Len(t, resp["names"], 96)

	w = do(t, h, http.MethodGet, "/api/feature-names?window_size=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeaturesHandler(t *testing.T) {
	srv, h := makeTestServer(t)

	body, err := json.Marshal(server.FeatureRequest{Signal: testSignal(128)})
	require.NoError(t, err)

	w := do(t, h, http.MethodPost, "/api/features", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var first server.FeatureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Len(t, first.Features, 64)
	assert.Len(t, first.Names, 64)
	assert.Equal(t, 3, first.Windows)
	assert.False(t, first.Cached)

	t.Run("Second request is served from the cache", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/features", body)
		require.Equal(t, http.StatusOK, w.Code)

		var second server.FeatureResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
		assert.True(t, second.Cached)
		assert.Equal(t, first.Features, second.Features)

		hits, _ := srv.Cache.Stats()
		assert.Equal(t, int64(1), hits)
	})

	t.Run("Request config overrides the defaults", func(t *testing.T) {
		body, err := json.Marshal(server.FeatureRequest{
			Signal: testSignal(128),
			Config: &config.Config{EmbeddingDimensions: []int{2, 3}},
		})
		require.NoError(t, err)

		w := do(t, h, http.MethodPost, "/api/features", body)
		require.Equal(t, http.StatusOK, w.Code)

		var resp server.FeatureResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Features, 96)
	})

	t.Run("Requests are counted", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/metrics", nil)
		assert.Contains(t, w.Body.String(), `topo_http_requests_total{code="200",method="POST"}`)
		assert.Contains(t, w.Body.String(), `topo_feature_cache_lookups_total{result="hit"} 1`)
	})
}

func TestFeaturesHandler_Errors(t *testing.T) {
	_, h := makeTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKind   string
	}{
		{"malformed JSON", `{"signal": [1, 2`, http.StatusBadRequest, "bad_request"},
		{"unknown field", `{"samples": [1]}`, http.StatusBadRequest, "bad_request"},
		{"empty signal", `{"signal": []}`, http.StatusBadRequest, "invalid_signal"},
		{"signal shorter than window", `{"signal": [1, 2, 3]}`, http.StatusBadRequest, "invalid_window_configuration"},
		{"dimension too large", fmt.Sprintf(`{"signal": %s, "config": {"embedding_dimensions": [64]}}`, jsonSignal(t, 128)),
			http.StatusBadRequest, "invalid_embedding_dimension"},
		{"resolution too small", fmt.Sprintf(`{"signal": %s, "config": {"resolution": 1}}`, jsonSignal(t, 128)),
			http.StatusBadRequest, "bad_request"},
		{"constant signal", fmt.Sprintf(`{"signal": %s}`, jsonConstant(t, 128)),
			http.StatusUnprocessableEntity, "empty_diagram"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/features", []byte(tt.body))
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var resp server.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantKind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestEncodedFeaturesHandler(t *testing.T) {
	_, h := makeTestServer(t)

	t.Run("WAV body", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, transcode.EncodeWAV(&buf, scaled(testSignal(128), 0.5), 8000))

		w := do(t, h, http.MethodPost, "/api/features/wav", buf.Bytes())
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp server.FeatureResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Features, 64)
		require.NotNil(t, resp.Signal)
		assert.Equal(t, "wav", resp.Signal.Format)
	})

	t.Run("CSV body with header and column", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("t,value\n")
		for i, v := range testSignal(128) {
			fmt.Fprintf(&b, "%d,%g\n", i, v)
		}

		w := do(t, h, http.MethodPost, "/api/features/csv?header=true&column=1&dims=2", []byte(b.String()))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp server.FeatureResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Features, 64)
	})

	t.Run("Undecodable body", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/features/wav", []byte("not a wav"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Unknown format does not route", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/features/mp3", []byte("x"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestVersionHandler(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	w := httptest.NewRecorder()

	srv := server.New(config.DefaultConfig(), nil, nil)
	srv.VersionHandler(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"version":"dev"`)
}

func jsonSignal(t *testing.T, n int) string {
	t.Helper()
	data, err := json.Marshal(testSignal(n))
	require.NoError(t, err)
	return string(data)
}

func jsonConstant(t *testing.T, n int) string {
	t.Helper()
	data, err := json.Marshal(make([]float64, n))
	require.NoError(t, err)
	return string(data)
}

func scaled(values []float64, k float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = k * v
	}
	return out
}
