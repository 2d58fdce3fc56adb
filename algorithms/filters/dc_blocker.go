package filters

import (
	"fmt"
	"math"
)

// DCBlocker is a one-pole high-pass filter that strips the DC level and slow
// baseline drift from a signal.
//
// References:
//   - Julius O. Smith III, "Introduction to Digital Filters with Audio Applications"
//     https://ccrma.stanford.edu/~jos/filters/DC_Blocker.html
//
// Difference equation:
//
//	y[n] = x[n] - x[n-1] + R * y[n-1]
type DCBlocker struct {
	poleLocation float64 // R, 0 < R < 1

	// state
	x1 float64
	y1 float64
}

// NewDCBlockerWithCutoff creates a filter with the -3dB point at cutoffFreq.
// The pole follows R = 1 - 2*pi*fc/fs, valid for fc << fs/2, and is clamped
// to [0.001, 0.999].
func NewDCBlockerWithCutoff(sampleRate int, cutoffFreq float64) (*DCBlocker, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}
	if cutoffFreq <= 0 || cutoffFreq >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("cutoff %v Hz outside (0, %v)", cutoffFreq, float64(sampleRate)/2)
	}

	r := 1.0 - 2.0*math.Pi*cutoffFreq/float64(sampleRate)
	r = min(max(r, 0.001), 0.999)
	return &DCBlocker{poleLocation: r}, nil
}

// Process filters one sample
func (dc *DCBlocker) Process(input float64) float64 {
	output := input - dc.x1 + dc.poleLocation*dc.y1
	dc.x1 = input
	dc.y1 = output
	return output
}

// ProcessBuffer filters a whole signal into a new slice. State carries over
// from earlier calls, so unrelated signals need their own filter.
func (dc *DCBlocker) ProcessBuffer(input []float64) []float64 {
	output := make([]float64, len(input))
	for i, sample := range input {
		output[i] = dc.Process(sample)
	}
	return output
}
