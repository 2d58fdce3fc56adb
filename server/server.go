// Package server exposes feature extraction over HTTP
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/RyanBlaney/sonido-topo/logging"
	"github.com/RyanBlaney/sonido-topo/metrics"
	"github.com/RyanBlaney/sonido-topo/store"
	"github.com/RyanBlaney/sonido-topo/topology"
	"github.com/RyanBlaney/sonido-topo/topology/config"
	"github.com/RyanBlaney/sonido-topo/transcode"
	"github.com/gorilla/mux"
)

// Version is reported by /api/version
var Version = "dev"

// MaxBodyBytes bounds request bodies
const MaxBodyBytes = 64 << 20

// FeatureRequest carries a raw signal and an optional configuration.
// Unset configuration fields fall back to the server defaults.
type FeatureRequest struct {
	Signal []float64      `json:"signal"`
	Config *config.Config `json:"config,omitempty"`
}

// FeatureResponse is returned by the feature endpoints
type FeatureResponse struct {
	Features []float64          `json:"features"`
	Names    []string           `json:"names,omitempty"`
	Windows  int                `json:"windows"`
	Cached   bool               `json:"cached"`
	Signal   *transcode.Metadata `json:"signal,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Server answers feature requests with a shared configuration, metrics and
// an optional feature cache.
type Server struct {
	Config config.Config
	Stats  *metrics.Stats
	Cache  *store.FeatureCache

	logger logging.Logger
	http   *http.Server
}

// New creates a server. cache may be nil.
func New(cfg config.Config, stats *metrics.Stats, cache *store.FeatureCache) *Server {
	if stats == nil {
		stats = metrics.NewStats()
	}
	return &Server{
		Config: cfg,
		Stats:  stats,
		Cache:  cache,
		logger: logging.WithFields(logging.Fields{
			"component": "feature_server",
		}),
	}
}

// SetupMux builds the router:
// - Prometheus metric endpoint
// - Version for programmatic use
// - Feature extraction from JSON or encoded signals
func (s *Server) SetupMux() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", s.Stats.Handler())

	// API routes live on the root router: a subrouter with middleware
	// reports a method mismatch as 404 instead of 405
	api := func(path string, h http.HandlerFunc, method string) {
		r.Handle(path, s.StatsMiddleware(h)).Methods(method)
	}
	api("/api/version", s.VersionHandler, http.MethodGet)
	api("/api/config", s.ConfigHandler, http.MethodGet)
	api("/api/feature-names", s.FeatureNamesHandler, http.MethodGet)
	api("/api/features", s.FeaturesHandler, http.MethodPost)
	api("/api/features/{format:wav|csv|txt}", s.EncodedFeaturesHandler, http.MethodPost)

	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.SetupMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting feature server", logging.Fields{"addr": addr})
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down feature server")
	return s.http.Shutdown(shutdownCtx)
}

// RespWriter records the status code for StatsMiddleware
type RespWriter struct {
	http.ResponseWriter
	Status int
}

func (w *RespWriter) WriteHeader(status int) {
	w.Status = status
	w.ResponseWriter.WriteHeader(status)
}

// StatsMiddleware counts API requests by status and method
func (s *Server) StatsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &RespWriter{
			ResponseWriter: w,
			Status:         http.StatusOK,
		}
		next.ServeHTTP(wrapped, r)
		s.Stats.RecWWW(strconv.Itoa(wrapped.Status), r.Method)
	})
}

func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

func (s *Server) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Config.Normalize())
}

func (s *Server) FeatureNamesHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.queryConfig(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"names": topology.FeatureNames(cfg)})
}

// FeaturesHandler extracts features from a JSON FeatureRequest
func (s *Server) FeaturesHandler(w http.ResponseWriter, r *http.Request) {
	var req FeatureRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	cfg := s.Config
	if req.Config != nil {
		cfg = merge(s.Config, *req.Config)
	}

	resp, err := s.extract(r.Context(), req.Signal, cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// EncodedFeaturesHandler decodes a WAV, CSV or text body and extracts its
// features. Configuration comes from the query string.
func (s *Server) EncodedFeaturesHandler(w http.ResponseWriter, r *http.Request) {
	format := mux.Vars(r)["format"]

	cfg, err := s.queryConfig(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	decoderCfg := transcode.DefaultDecoderConfig()
	q := r.URL.Query()
	decoderCfg.HasHeader = q.Get("header") == "true"
	if col := q.Get("column"); col != "" {
		if decoderCfg.Column, err = strconv.Atoi(col); err != nil {
			s.writeError(w, fmt.Errorf("%w: column: %v", errBadRequest, err))
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	data, err := transcode.NewDecoder(decoderCfg).DecodeBytes(r.Context(), body, format)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	resp, err := s.extract(r.Context(), data.Samples, cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp.Signal = data.Metadata
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) extract(ctx context.Context, signal []float64, cfg config.Config) (*FeatureResponse, error) {
	ts, err := topology.NewTimeSeries(signal, topology.WithObserver(s.Stats))
	if err != nil {
		return nil, err
	}

	cfg = cfg.Normalize()
	if err := cfg.Validate(ts.Len()); err != nil {
		if topology.ErrorKind(err) == "internal" {
			return nil, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		return nil, err
	}
	resp := &FeatureResponse{
		Names:   topology.FeatureNames(cfg),
		Windows: cfg.WindowCount(ts.Len()),
	}

	if s.Cache != nil {
		features, ok, err := s.Cache.Get(signal, cfg)
		if err != nil {
			s.logger.Warn("Feature cache lookup failed", logging.Fields{"error": err.Error()})
		}
		s.Stats.RecCache(ok)
		if ok {
			resp.Features = features
			resp.Cached = true
			return resp, nil
		}
	}

	features, err := ts.GetFeatures(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		if err := s.Cache.Put(signal, cfg, features); err != nil {
			s.logger.Warn("Extracted features were not cached", logging.Fields{"error": err.Error()})
		}
	}

	resp.Features = features
	return resp, nil
}

// queryConfig overlays window_size, window_shift and dims=3,8 from the query
// string onto the server configuration.
func (s *Server) queryConfig(r *http.Request) (config.Config, error) {
	q := r.URL.Query()
	var override config.Config

	for name, dst := range map[string]*int{
		"window_size":  &override.WindowSize,
		"window_shift": &override.WindowShift,
		"resolution":   &override.Resolution,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
		}
		*dst = v
	}

	if raw := q.Get("dims"); raw != "" {
		dims, err := config.ParseDimensions(raw)
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: dims: %v", errBadRequest, err)
		}
		override.EmbeddingDimensions = dims
	}
	return merge(s.Config, override), nil
}

// merge returns base with every set field of override applied
func merge(base, override config.Config) config.Config {
	out := base
	if override.WindowSize != 0 {
		out.WindowSize = override.WindowSize
	}
	if override.WindowShift != 0 {
		out.WindowShift = override.WindowShift
	}
	if len(override.EmbeddingDimensions) > 0 {
		out.EmbeddingDimensions = override.EmbeddingDimensions
	}
	if override.Resolution != 0 {
		out.Resolution = override.Resolution
	}
	if override.CoefficientField != 0 {
		out.CoefficientField = override.CoefficientField
	}
	return out
}

var errBadRequest = errors.New("bad request")

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := topology.ErrorKind(err)
	status := http.StatusInternalServerError

	switch kind {
	case "invalid_window_configuration", "invalid_embedding_dimension", "invalid_signal":
		status = http.StatusBadRequest
	case "empty_diagram", "degenerate_diagram":
		status = http.StatusUnprocessableEntity
	case "canceled":
		status = http.StatusServiceUnavailable
	default:
		if errors.Is(err, errBadRequest) {
			kind = "bad_request"
			status = http.StatusBadRequest
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(err, "Request failed", logging.Fields{"kind": kind})
	} else {
		s.logger.Debug("Request rejected", logging.Fields{"kind": kind, "error": err.Error()})
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
