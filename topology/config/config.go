package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/RyanBlaney/sonido-topo/algorithms/homology"
)

// DiagramFeatureCount is the number of scalar functionals extracted per diagram
const DiagramFeatureCount = 8

var (
	// ErrInvalidWindowConfiguration is returned for a non-positive window size
	// or shift, or a window longer than the signal.
	ErrInvalidWindowConfiguration = errors.New("invalid window configuration")

	// ErrInvalidEmbeddingDimension is returned for an embedding dimension d
	// with d < 1 or d >= window size.
	ErrInvalidEmbeddingDimension = errors.New("invalid embedding dimension")
)

// DefaultEmbeddingDimensions is used when a configuration names no dimension
var DefaultEmbeddingDimensions = []int{3}

// Config controls windowing and the persistent homology engine
type Config struct {
	// Windowing
	WindowSize          int   `json:"window_size"`
	WindowShift         int   `json:"window_shift"`
	EmbeddingDimensions []int `json:"embedding_dimensions"`

	// Engine
	Resolution       int `json:"resolution"`        // samples per Betti curve / landscape
	CoefficientField int `json:"coefficient_field"` // characteristic, only 2 is supported

	// Execution
	Workers int `json:"workers,omitempty"` // 0 means GOMAXPROCS
}

// DefaultConfig returns the configuration of the feature engineering example
func DefaultConfig() Config {
	return Config{
		WindowSize:          512,
		WindowShift:         256,
		EmbeddingDimensions: []int{32, 64, 128},
		Resolution:          homology.DefaultResolution,
		CoefficientField:    homology.DefaultCoefficientField,
	}
}

// Normalize returns a copy with defaults filled in for unset fields
func (c Config) Normalize() Config {
	out := c
	if len(c.EmbeddingDimensions) == 0 {
		out.EmbeddingDimensions = slices.Clone(DefaultEmbeddingDimensions)
	} else {
		out.EmbeddingDimensions = slices.Clone(c.EmbeddingDimensions)
	}
	if out.Resolution == 0 {
		out.Resolution = homology.DefaultResolution
	}
	if out.CoefficientField == 0 {
		out.CoefficientField = homology.DefaultCoefficientField
	}
	if out.Workers <= 0 {
		out.Workers = runtime.GOMAXPROCS(0)
	}
	return out
}

// Validate checks the configuration against a signal of the given length.
// Window errors are reported before embedding dimension errors.
func (c Config) Validate(signalLength int) error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidWindowConfiguration, c.WindowSize)
	}
	if c.WindowShift <= 0 {
		return fmt.Errorf("%w: window shift must be positive, got %d", ErrInvalidWindowConfiguration, c.WindowShift)
	}
	if c.WindowSize > signalLength {
		return fmt.Errorf("%w: window size %d exceeds signal length %d",
			ErrInvalidWindowConfiguration, c.WindowSize, signalLength)
	}

	if err := ValidateEmbeddingDimensions(c.EmbeddingDimensions, c.WindowSize); err != nil {
		return err
	}

	if c.Resolution < 2 {
		return fmt.Errorf("%w: %d", homology.ErrInvalidResolution, c.Resolution)
	}
	if c.CoefficientField != homology.DefaultCoefficientField {
		return fmt.Errorf("%w: characteristic %d", homology.ErrUnsupportedField, c.CoefficientField)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	}
	return nil
}

// ValidateEmbeddingDimensions checks 1 <= d < windowSize for every d
func ValidateEmbeddingDimensions(dims []int, windowSize int) error {
	for i, d := range dims {
		if d < 1 || d >= windowSize {
			return fmt.Errorf("%w: dimension %d at position %d (window size %d)",
				ErrInvalidEmbeddingDimension, d, i, windowSize)
		}
	}
	return nil
}

// ParseDimensions parses a comma separated list such as "3,8,16". Range
// checks are left to ValidateEmbeddingDimensions.
func ParseDimensions(s string) ([]int, error) {
	var dims []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		d, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEmbeddingDimension, field)
		}
		dims = append(dims, d)
	}
	return dims, nil
}

// DiagramsPerWindow returns D = 2 + 2*|embedding dimensions|
func (c Config) DiagramsPerWindow() int {
	return 2 + 2*len(c.EmbeddingDimensions)
}

// WindowFeatureLength returns the length of one window's feature vector, 8*D
func (c Config) WindowFeatureLength() int {
	return DiagramFeatureCount * c.DiagramsPerWindow()
}

// FeatureLength returns the length of the aggregated feature vector, 16*D
func (c Config) FeatureLength() int {
	return 2 * c.WindowFeatureLength()
}

// WindowCount returns the number of windows over a signal of the given
// length, or 0 when the window does not fit.
func (c Config) WindowCount(signalLength int) int {
	if c.WindowSize <= 0 || c.WindowShift <= 0 || c.WindowSize > signalLength {
		return 0
	}
	return (signalLength-c.WindowSize)/c.WindowShift + 1
}

// Load reads a JSON configuration file on top of DefaultConfig
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}
