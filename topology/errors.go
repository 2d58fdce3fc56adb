package topology

import (
	"context"
	"errors"

	"github.com/RyanBlaney/sonido-topo/topology/config"
	"github.com/RyanBlaney/sonido-topo/topology/diagram"
)

// Errors returned by feature extraction. All of them abort the extraction of
// the affected signal; no partial vector is ever returned.
var (
	ErrInvalidWindowConfiguration = config.ErrInvalidWindowConfiguration
	ErrInvalidEmbeddingDimension  = config.ErrInvalidEmbeddingDimension
	ErrEmptyDiagram               = diagram.ErrEmptyDiagram
	ErrDegenerateDiagram          = diagram.ErrDegenerateDiagram

	// ErrFeatureLengthMismatch means two windows produced vectors of
	// different lengths. It indicates a bug, never a data condition.
	ErrFeatureLengthMismatch = errors.New("window feature vectors differ in length")

	// ErrEmptySignal is returned when a time series is built from no samples.
	ErrEmptySignal = errors.New("signal is empty")

	// ErrNonFiniteSample is returned for a signal containing NaN or Inf.
	ErrNonFiniteSample = errors.New("signal contains a non-finite sample")
)

// ErrorKind maps an extraction error to a short label for logs and metrics
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidWindowConfiguration):
		return "invalid_window_configuration"
	case errors.Is(err, ErrInvalidEmbeddingDimension):
		return "invalid_embedding_dimension"
	case errors.Is(err, ErrEmptyDiagram):
		return "empty_diagram"
	case errors.Is(err, ErrDegenerateDiagram):
		return "degenerate_diagram"
	case errors.Is(err, ErrFeatureLengthMismatch):
		return "feature_length_mismatch"
	case errors.Is(err, ErrEmptySignal), errors.Is(err, ErrNonFiniteSample):
		return "invalid_signal"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
