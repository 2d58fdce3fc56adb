// Package simulate generates synthetic ECG signals and labelled datasets of
// them for exercising the feature pipeline.
package simulate

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInvalidECGConfig is returned for non-positive rates or durations
var ErrInvalidECGConfig = errors.New("invalid ECG configuration")

// ECGConfig describes one simulated recording
type ECGConfig struct {
	HeartRate      float64 `json:"heart_rate"`      // beats per minute
	HeartRateStd   float64 `json:"heart_rate_std"`  // beat-to-beat variability, bpm
	Noise          float64 `json:"noise"`           // noise amplitude relative to the R wave
	Duration       float64 `json:"duration"`        // seconds
	SamplingRate   int     `json:"sampling_rate"`   // Hz
	BaselineCutoff float64 `json:"baseline_cutoff"` // Hz, upper edge of the baseline wander band
	Seed           uint64  `json:"seed"`
}

// DefaultECGConfig returns a one minute recording at 80 bpm sampled at 128 Hz
func DefaultECGConfig() ECGConfig {
	return ECGConfig{
		HeartRate:      80,
		HeartRateStd:   1,
		Noise:          0.1,
		Duration:       60,
		SamplingRate:   128,
		BaselineCutoff: 0.5,
		Seed:           1,
	}
}

func (c ECGConfig) validate() error {
	switch {
	case c.HeartRate <= 0:
		return fmt.Errorf("%w: heart rate %v", ErrInvalidECGConfig, c.HeartRate)
	case c.HeartRateStd < 0:
		return fmt.Errorf("%w: heart rate std %v", ErrInvalidECGConfig, c.HeartRateStd)
	case c.Noise < 0:
		return fmt.Errorf("%w: noise %v", ErrInvalidECGConfig, c.Noise)
	case c.Duration <= 0:
		return fmt.Errorf("%w: duration %v", ErrInvalidECGConfig, c.Duration)
	case c.SamplingRate <= 0:
		return fmt.Errorf("%w: sampling rate %d", ErrInvalidECGConfig, c.SamplingRate)
	}
	return nil
}

// wave is one Gaussian component of a beat, placed relative to the R peak.
// Offsets and widths are for a 60 bpm beat and scale with sqrt(RR).
type wave struct {
	amplitude float64
	offset    float64 // seconds
	width     float64 // seconds
}

var pqrst = []wave{
	{amplitude: 0.15, offset: -0.20, width: 0.025},   // P
	{amplitude: -0.12, offset: -0.035, width: 0.010}, // Q
	{amplitude: 1.00, offset: 0, width: 0.012},       // R
	{amplitude: -0.25, offset: 0.035, width: 0.010},  // S
	{amplitude: 0.30, offset: 0.30, width: 0.060},    // T
}

// ECG simulates a recording. The same configuration always yields the same
// samples.
func ECG(cfg ECGConfig) ([]float64, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	n := int(math.Round(cfg.Duration * float64(cfg.SamplingRate)))
	if n == 0 {
		return nil, fmt.Errorf("%w: %v s at %d Hz has no samples", ErrInvalidECGConfig, cfg.Duration, cfg.SamplingRate)
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	rate := float64(cfg.SamplingRate)
	signal := make([]float64, n)

	beatRate := distuv.Normal{Mu: cfg.HeartRate, Sigma: cfg.HeartRateStd, Src: src}

	// R peaks, first one half a beat in
	rr := rrInterval(beatRate)
	for peak := rr / 2; peak < cfg.Duration+1; peak += rr {
		scale := math.Sqrt(rr)
		addBeat(signal, rate, peak, scale)
		rr = rrInterval(beatRate)
	}

	if cfg.Noise > 0 {
		white := distuv.Normal{Mu: 0, Sigma: cfg.Noise / 2, Src: src}
		for i := range signal {
			signal[i] += white.Rand()
		}

		wander := baselineWander(n, rate, cfg.BaselineCutoff, src)
		for i := range signal {
			signal[i] += cfg.Noise * wander[i]
		}
	}

	return signal, nil
}

func rrInterval(beatRate distuv.Normal) float64 {
	bpm := math.Max(beatRate.Rand(), 20)
	return 60 / bpm
}

func addBeat(signal []float64, rate, peak, scale float64) {
	for _, w := range pqrst {
		center := peak + w.offset*scale
		width := w.width * scale
		lo := max(0, int(math.Floor((center-5*width)*rate)))
		hi := min(len(signal)-1, int(math.Ceil((center+5*width)*rate)))
		for i := lo; i <= hi; i++ {
			d := float64(i)/rate - center
			signal[i] += w.amplitude * math.Exp(-d*d/(2*width*width))
		}
	}
}

// baselineWander returns unit-variance noise band-limited to [0, cutoff] Hz
func baselineWander(n int, rate, cutoff float64, src rand.Source) []float64 {
	out := make([]float64, n)
	if cutoff <= 0 {
		return out
	}

	white := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	raw := make([]float64, n)
	for i := range raw {
		raw[i] = white.Rand()
	}

	spectrum := fft.FFTReal(raw)
	for k := range spectrum {
		// bin k and n-k share frequency k*rate/n
		freq := float64(min(k, n-k)) * rate / float64(n)
		if k == 0 || freq > cutoff {
			spectrum[k] = 0
		}
	}

	filtered := fft.IFFT(spectrum)
	for i, c := range filtered {
		out[i] = real(c)
	}

	if std := stat.PopStdDev(out, nil); std > 0 {
		for i := range out {
			out[i] /= std
		}
	}
	return out
}
