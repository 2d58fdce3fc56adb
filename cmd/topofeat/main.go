package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/RyanBlaney/sonido-topo/classify"
	"github.com/RyanBlaney/sonido-topo/logging"
	"github.com/RyanBlaney/sonido-topo/metrics"
	"github.com/RyanBlaney/sonido-topo/server"
	"github.com/RyanBlaney/sonido-topo/simulate"
	"github.com/RyanBlaney/sonido-topo/store"
	"github.com/RyanBlaney/sonido-topo/topology"
	"github.com/RyanBlaney/sonido-topo/topology/config"
	"github.com/RyanBlaney/sonido-topo/transcode"
)

// Run modes
const (
	modeFeatureEngineering = "feature_engineering_example"
	modeClassification     = "classification_example"
	modeExtract            = "extract"
	modeSimulate           = "simulate"
	modeServe              = "serve"
)

// Options holds the command line
type Options struct {
	RunMode  string
	LogLevel string

	// Extraction
	ConfigPath  string
	WindowSize  int
	WindowShift int
	Dimensions  string
	Workers     int

	// Data
	Input      string
	Output     string
	Column     int
	HasHeader  bool
	HighPass   float64
	SampleRate int
	HeartRate  float64
	HeartRate2 float64
	ClassSize  int
	Seed       uint64

	// Infrastructure
	CacheDir    string
	MetricsAddr string
	Addr        string
}

func main() {
	opts := parseFlags()

	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logging.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		logging.Fatal(err, "topofeat failed", logging.Fields{"run_mode": opts.RunMode})
	}
}

func parseFlags() Options {
	var o Options
	flag.StringVar(&o.RunMode, "run_mode", modeFeatureEngineering,
		strings.Join([]string{modeFeatureEngineering, modeClassification, modeExtract, modeSimulate, modeServe}, " | "))
	flag.StringVar(&o.LogLevel, "log_level", "info", "debug, info, warn, error")

	flag.StringVar(&o.ConfigPath, "config", "", "JSON extraction config; flags override it")
	flag.IntVar(&o.WindowSize, "window_size", 0, "subwindow size in samples (default 512)")
	flag.IntVar(&o.WindowShift, "window_shift", 0, "subwindow shift in samples (default 256)")
	flag.StringVar(&o.Dimensions, "dims", "", "comma separated embedding dimensions (default 32,64,128)")
	flag.IntVar(&o.Workers, "workers", 0, "concurrent windows per signal, 0 for GOMAXPROCS")

	flag.StringVar(&o.Input, "input", "", "signal file for extract (.wav, .csv, .txt)")
	flag.StringVar(&o.Output, "output", "", "output file for simulate (.wav or .txt)")
	flag.IntVar(&o.Column, "column", 0, "CSV column holding the signal")
	flag.BoolVar(&o.HasHeader, "header", false, "CSV input starts with a header row")
	flag.Float64Var(&o.HighPass, "highpass", 0, "baseline removal cutoff in Hz, 0 to disable")
	flag.IntVar(&o.SampleRate, "sample_rate", 0, "sample rate of CSV and text input in Hz")
	flag.Float64Var(&o.HeartRate, "heart_rate", 80, "simulated heart rate (class 0 in the dataset)")
	flag.Float64Var(&o.HeartRate2, "heart_rate2", 85, "class 1 heart rate in the dataset")
	flag.IntVar(&o.ClassSize, "class_size", 50, "recordings per class in the dataset")
	flag.Uint64Var(&o.Seed, "seed", 1, "simulation seed")

	flag.StringVar(&o.CacheDir, "cache", "", "feature cache directory, empty to disable")
	flag.StringVar(&o.MetricsAddr, "metrics_addr", "", "serve /metrics on this address during batch runs")
	flag.StringVar(&o.Addr, "addr", ":8090", "listen address for serve")

	flag.Parse()
	return o
}

func run(ctx context.Context, opts Options) error {
	cfg, err := extractionConfig(opts)
	if err != nil {
		return err
	}

	stats := metrics.NewStats()
	if opts.MetricsAddr != "" && opts.RunMode != modeServe {
		go serveMetrics(opts.MetricsAddr, stats)
	}

	var cache *store.FeatureCache
	if opts.CacheDir != "" {
		cache, err = store.Open(opts.CacheDir)
		if err != nil {
			return err
		}
		defer cache.Close()
	}

	switch opts.RunMode {
	case modeFeatureEngineering:
		return featureEngineering(ctx, opts, cfg, stats, cache)
	case modeClassification:
		return classification(ctx, opts, cfg, stats, cache)
	case modeExtract:
		return extractFile(ctx, opts, cfg, stats, cache)
	case modeSimulate:
		return simulateFile(opts)
	case modeServe:
		return server.New(cfg, stats, cache).ListenAndServe(ctx, opts.Addr)
	default:
		return fmt.Errorf("unknown run mode %q", opts.RunMode)
	}
}

// extractionConfig layers the config file and then the flags over the
// defaults
func extractionConfig(opts Options) (config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if opts.WindowSize > 0 {
		cfg.WindowSize = opts.WindowSize
	}
	if opts.WindowShift > 0 {
		cfg.WindowShift = opts.WindowShift
	}
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}
	if opts.Dimensions != "" {
		dims, err := config.ParseDimensions(opts.Dimensions)
		if err != nil {
			return cfg, err
		}
		cfg.EmbeddingDimensions = dims
	}
	return cfg, nil
}

func serveMetrics(addr string, stats *metrics.Stats) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", stats.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logging.Info("Starting metrics endpoint", logging.Fields{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error(err, "Metrics endpoint stopped")
	}
}

func features(ctx context.Context, signal []float64, cfg config.Config, stats *metrics.Stats, cache *store.FeatureCache) (topology.FeatureVector, error) {
	ts, err := topology.NewTimeSeries(signal, topology.WithObserver(stats))
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return ts.GetFeatures(ctx, cfg)
	}
	return cache.GetOrExtract(ctx, ts, cfg)
}

func featureEngineering(ctx context.Context, opts Options, cfg config.Config, stats *metrics.Stats, cache *store.FeatureCache) error {
	ecgCfg := simulate.DefaultECGConfig()
	ecgCfg.HeartRate = opts.HeartRate
	ecgCfg.Seed = opts.Seed

	signal, err := simulate.ECG(ecgCfg)
	if err != nil {
		return err
	}

	vector, err := features(ctx, signal, cfg, stats, cache)
	if err != nil {
		return err
	}

	for i, name := range topology.FeatureNames(cfg) {
		fmt.Printf("%-60s % .6f\n", name, vector[i])
	}
	return nil
}

func classification(ctx context.Context, opts Options, cfg config.Config, stats *metrics.Stats, cache *store.FeatureCache) error {
	logger := logging.WithFields(logging.Fields{
		"function":   "classification",
		"run_mode":   opts.RunMode,
		"class_size": opts.ClassSize,
	})

	dataCfg := simulate.DefaultDatasetConfig()
	dataCfg.ClassSize = opts.ClassSize
	dataCfg.HeartRate1 = opts.HeartRate
	dataCfg.HeartRate2 = opts.HeartRate2
	dataCfg.ECG.Seed = opts.Seed

	samples, err := simulate.ClassificationDataset(ctx, dataCfg)
	if err != nil {
		return err
	}

	start := time.Now()
	rows := make([][]float64, len(samples))
	for i, s := range samples {
		vector, err := features(ctx, s.Signal, cfg, stats, cache)
		if err != nil {
			return fmt.Errorf("recording %d: %w", s.ID, err)
		}
		rows[i] = vector
	}
	logger.Info("Extracted dataset features", logging.Fields{
		"recordings": len(rows),
		"elapsed":    time.Since(start).String(),
	})

	report, _, err := classify.TrainAndEvaluate(rows, simulate.Labels(samples), classify.DefaultConfig())
	if err != nil {
		return err
	}
	fmt.Print(report.String())
	return nil
}

func extractFile(ctx context.Context, opts Options, cfg config.Config, stats *metrics.Stats, cache *store.FeatureCache) error {
	if opts.Input == "" {
		return errors.New("extract needs -input")
	}

	decoderCfg := transcode.DefaultDecoderConfig()
	decoderCfg.Column = opts.Column
	decoderCfg.HasHeader = opts.HasHeader
	decoderCfg.HighPassCutoff = opts.HighPass
	decoderCfg.SampleRate = opts.SampleRate

	data, err := transcode.NewDecoder(decoderCfg).DecodeFile(ctx, opts.Input)
	if err != nil {
		return err
	}

	vector, err := features(ctx, data.Samples, cfg, stats, cache)
	if err != nil {
		return err
	}

	for i, name := range topology.FeatureNames(cfg) {
		fmt.Printf("%s\t%.9g\n", name, vector[i])
	}
	return nil
}

func simulateFile(opts Options) error {
	if opts.Output == "" {
		return errors.New("simulate needs -output")
	}

	ecgCfg := simulate.DefaultECGConfig()
	ecgCfg.HeartRate = opts.HeartRate
	ecgCfg.Seed = opts.Seed

	signal, err := simulate.ECG(ecgCfg)
	if err != nil {
		return err
	}

	f, err := os.Create(opts.Output)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(opts.Output)) {
	case ".wav":
		// 16-bit PCM needs the signal inside [-1, 1]
		err = transcode.EncodeWAV(f, peakNormalize(signal), ecgCfg.SamplingRate)
	default:
		err = transcode.WriteText(f, signal)
	}
	if err != nil {
		return err
	}

	logging.Info("Simulated ECG written", logging.Fields{
		"path":    opts.Output,
		"samples": len(signal),
	})
	return f.Close()
}

func peakNormalize(signal []float64) []float64 {
	peak := 0.0
	for _, v := range signal {
		peak = max(peak, v, -v)
	}
	out := make([]float64, len(signal))
	if peak == 0 {
		return out
	}
	for i, v := range signal {
		out[i] = v / peak
	}
	return out
}
