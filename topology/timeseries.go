// Package topology extracts fixed-length topological feature vectors from a
// real-valued time series.
//
// A signal is cut into overlapping windows. Every window yields two level-set
// persistence diagrams and, per embedding dimension, the degree 0 and degree 1
// Vietoris-Rips diagrams of its delay embedding. Each diagram is reduced to 8
// scalars and the per-window vectors are aggregated into their index-wise
// mean and population standard deviation.
package topology

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/RyanBlaney/sonido-topo/algorithms/common"
	"github.com/RyanBlaney/sonido-topo/algorithms/embedding"
	"github.com/RyanBlaney/sonido-topo/algorithms/homology"
	"github.com/RyanBlaney/sonido-topo/logging"
	"github.com/RyanBlaney/sonido-topo/topology/config"
	"github.com/RyanBlaney/sonido-topo/topology/diagram"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/RyanBlaney/sonido-topo/topology")

// FeatureVector is the aggregated output of one extraction: the 8*D window
// means followed by the 8*D window standard deviations.
type FeatureVector []float64

// Mean returns the first half of the vector
func (v FeatureVector) Mean() []float64 {
	return v[:len(v)/2]
}

// Std returns the second half of the vector
func (v FeatureVector) Std() []float64 {
	return v[len(v)/2:]
}

// Observer receives extraction measurements
type Observer interface {
	ObserveWindow(elapsed time.Duration)
	ObserveSignal(windows int, elapsed time.Duration)
	ObserveFailure(kind string)
}

type noopObserver struct{}

func (noopObserver) ObserveWindow(time.Duration)      {}
func (noopObserver) ObserveSignal(int, time.Duration) {}
func (noopObserver) ObserveFailure(string)            {}

// Option configures a TimeSeries
type Option func(*TimeSeries)

// WithLogger replaces the component logger
func WithLogger(logger logging.Logger) Option {
	return func(t *TimeSeries) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithEngine uses engine instead of one built from the extraction config
func WithEngine(engine Engine) Option {
	return func(t *TimeSeries) {
		t.engine = engine
	}
}

// WithObserver reports measurements to observer
func WithObserver(observer Observer) Option {
	return func(t *TimeSeries) {
		if observer != nil {
			t.observer = observer
		}
	}
}

// TimeSeries is an immutable signal ready for feature extraction
type TimeSeries struct {
	signal   []float64
	engine   Engine
	observer Observer
	logger   logging.Logger
}

// NewTimeSeries copies signal into a new time series
func NewTimeSeries(signal []float64, opts ...Option) (*TimeSeries, error) {
	if len(signal) == 0 {
		return nil, ErrEmptySignal
	}
	for i, v := range signal {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: sample %d is %v", ErrNonFiniteSample, i, v)
		}
	}

	t := &TimeSeries{
		signal:   slices.Clone(signal),
		observer: noopObserver{},
		logger: logging.WithFields(logging.Fields{
			"component": "time_series",
		}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Len returns the number of samples
func (t *TimeSeries) Len() int {
	return len(t.signal)
}

// Signal returns a copy of the samples
func (t *TimeSeries) Signal() []float64 {
	return slices.Clone(t.signal)
}

// Windows returns the subwindows of cfg in temporal order. Offsets are
// 0, shift, 2*shift, ... while the window fits in the signal.
func (t *TimeSeries) Windows(cfg config.Config) ([]*Subwindow, error) {
	if cfg.WindowSize <= 0 || cfg.WindowShift <= 0 || cfg.WindowSize > len(t.signal) {
		return nil, fmt.Errorf("%w: size %d, shift %d, signal length %d",
			ErrInvalidWindowConfiguration, cfg.WindowSize, cfg.WindowShift, len(t.signal))
	}

	points, err := embedding.Delay(t.signal, cfg.WindowSize, cfg.WindowShift)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWindowConfiguration, err)
	}

	windows := make([]*Subwindow, len(points))
	for i, p := range points {
		windows[i] = NewSubwindow(i*cfg.WindowShift, p)
	}
	return windows, nil
}

// GetFeatures extracts the 16*D feature vector of the signal. Windows are
// processed concurrently by cfg.Workers workers; the first failure cancels
// the rest and is returned.
func (t *TimeSeries) GetFeatures(ctx context.Context, cfg config.Config) (FeatureVector, error) {
	start := time.Now()
	cfg = cfg.Normalize()

	ctx, span := tracer.Start(ctx, "TimeSeries.GetFeatures", trace.WithAttributes(
		attribute.Int("signal.length", len(t.signal)),
		attribute.Int("window.size", cfg.WindowSize),
		attribute.Int("window.shift", cfg.WindowShift),
		attribute.IntSlice("embedding.dimensions", cfg.EmbeddingDimensions),
	))
	defer span.End()

	logger := t.logger.WithContext(ctx).WithFields(logging.Fields{
		"function":     "GetFeatures",
		"signal_len":   len(t.signal),
		"window_size":  cfg.WindowSize,
		"window_shift": cfg.WindowShift,
	})

	vector, windows, err := t.extract(ctx, cfg)
	if err != nil {
		kind := ErrorKind(err)
		t.observer.ObserveFailure(kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		logger.Error(err, "Feature extraction failed")
		return nil, err
	}

	elapsed := time.Since(start)
	t.observer.ObserveSignal(windows, elapsed)
	span.SetAttributes(attribute.Int("windows", windows))
	logger.Debug("Feature extraction completed", logging.Fields{
		"windows":  windows,
		"features": len(vector),
		"elapsed":  elapsed.String(),
	})
	return vector, nil
}

func (t *TimeSeries) extract(ctx context.Context, cfg config.Config) (FeatureVector, int, error) {
	if err := cfg.Validate(len(t.signal)); err != nil {
		return nil, 0, err
	}

	engine := t.engine
	if engine == nil {
		e, err := homology.NewEngine(cfg.Resolution, cfg.CoefficientField)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create homology engine: %w", err)
		}
		engine = e
	}

	windows, err := t.Windows(cfg)
	if err != nil {
		return nil, 0, err
	}

	// one slot per window keeps results in temporal order
	rows := make([][]float64, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, w := range windows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			wctx, span := tracer.Start(gctx, "Subwindow.GetFeatures",
				trace.WithAttributes(attribute.Int("window.offset", w.Offset())))
			defer span.End()

			windowStart := time.Now()
			features, err := w.GetFeatures(wctx, engine, cfg.EmbeddingDimensions)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				return fmt.Errorf("window %d: %w", i, err)
			}
			t.observer.ObserveWindow(time.Since(windowStart))
			rows[i] = features
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	want := cfg.WindowFeatureLength()
	for i, row := range rows {
		if len(row) != want {
			return nil, 0, fmt.Errorf("%w: window %d has %d features, expected %d",
				ErrFeatureLengthMismatch, i, len(row), want)
		}
	}

	mean, std, err := common.IndexwiseMeanStd(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to aggregate windows: %w", err)
	}

	vector := make(FeatureVector, 0, 2*want)
	vector = append(vector, mean...)
	vector = append(vector, std...)
	return vector, len(windows), nil
}

// FeatureNames returns the column names of the vector produced for cfg, such
// as "mean/lower_levelset/bottleneck_amplitude".
func FeatureNames(cfg config.Config) []string {
	cfg = cfg.Normalize()
	diagrams := DiagramNames(cfg.EmbeddingDimensions)

	names := make([]string, 0, cfg.FeatureLength())
	for _, stat := range []string{"mean", "std"} {
		for _, d := range diagrams {
			for _, f := range diagram.FeatureNames {
				names = append(names, stat+"/"+d+"/"+f)
			}
		}
	}
	return names
}
