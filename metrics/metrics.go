// Package metrics exposes extraction and HTTP statistics to Prometheus
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "topo"

// Stats holds the collectors of one process on a private registry
type Stats struct {
	Registry *prometheus.Registry

	signals    prometheus.Counter
	windows    prometheus.Counter
	failures   *prometheus.CounterVec
	signalTime prometheus.Histogram
	windowTime prometheus.Histogram
	requests   *prometheus.CounterVec
	cache      *prometheus.CounterVec
}

// NewStats registers all collectors on a new registry
func NewStats() *Stats {
	reg := prometheus.NewRegistry()

	s := &Stats{
		Registry: reg,
		signals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_extracted_total",
			Help:      "Signals turned into feature vectors.",
		}),
		windows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_processed_total",
			Help:      "Subwindows processed.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Failed extractions by error kind.",
		}, []string{"kind"}),
		signalTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "signal_extraction_seconds",
			Help:      "Wall time of a full signal extraction.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		windowTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "window_extraction_seconds",
			Help:      "Wall time of one subwindow.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by status code and method.",
		}, []string{"code", "method"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_cache_lookups_total",
			Help:      "Feature cache lookups by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		s.signals,
		s.windows,
		s.failures,
		s.signalTime,
		s.windowTime,
		s.requests,
		s.cache,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return s
}

// Handler serves the registry in the Prometheus exposition format
func (s *Stats) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}

// ObserveWindow records one processed subwindow
func (s *Stats) ObserveWindow(elapsed time.Duration) {
	s.windows.Inc()
	s.windowTime.Observe(elapsed.Seconds())
}

// ObserveSignal records one successful extraction. The windows were already
// counted one by one.
func (s *Stats) ObserveSignal(windows int, elapsed time.Duration) {
	s.signals.Inc()
	s.signalTime.Observe(elapsed.Seconds())
}

// ObserveFailure records a failed extraction
func (s *Stats) ObserveFailure(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	s.failures.WithLabelValues(kind).Inc()
}

// RecWWW records an API request
func (s *Stats) RecWWW(code, method string) {
	s.requests.WithLabelValues(code, method).Inc()
}

// RecCache records a feature cache lookup
func (s *Stats) RecCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	s.cache.WithLabelValues(result).Inc()
}
