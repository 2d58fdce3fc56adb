package simulate

import (
	"context"
	"fmt"
)

// DatasetConfig describes a two-class dataset of ECG recordings that differ
// only in heart rate
type DatasetConfig struct {
	ClassSize  int       `json:"class_size"`
	HeartRate1 float64   `json:"heart_rate1"` // class 0
	HeartRate2 float64   `json:"heart_rate2"` // class 1
	ECG        ECGConfig `json:"ecg"`        // heart rate is overridden per class
}

// DefaultDatasetConfig returns 50 recordings at 80 bpm and 50 at 85 bpm
func DefaultDatasetConfig() DatasetConfig {
	return DatasetConfig{
		ClassSize:  50,
		HeartRate1: 80,
		HeartRate2: 85,
		ECG:        DefaultECGConfig(),
	}
}

// Sample is one labelled recording
type Sample struct {
	ID        int       `json:"id"`
	Signal    []float64 `json:"-"`
	Label     int       `json:"label"`
	HeartRate float64   `json:"heart_rate"`
}

// ClassificationDataset simulates 2*ClassSize recordings: the first half with
// label 0 at HeartRate1, the second half with label 1 at HeartRate2. Each
// recording gets its own seed derived from the base seed and its index.
func ClassificationDataset(ctx context.Context, cfg DatasetConfig) ([]Sample, error) {
	if cfg.ClassSize <= 0 {
		return nil, fmt.Errorf("%w: class size %d", ErrInvalidECGConfig, cfg.ClassSize)
	}

	samples := make([]Sample, 0, 2*cfg.ClassSize)
	for i := range 2 * cfg.ClassSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		label, rate := 0, cfg.HeartRate1
		if i >= cfg.ClassSize {
			label, rate = 1, cfg.HeartRate2
		}

		ecg := cfg.ECG
		ecg.HeartRate = rate
		ecg.Seed = cfg.ECG.Seed + uint64(i)

		signal, err := ECG(ecg)
		if err != nil {
			return nil, fmt.Errorf("recording %d: %w", i, err)
		}
		samples = append(samples, Sample{ID: i, Signal: signal, Label: label, HeartRate: rate})
	}
	return samples, nil
}

// Labels returns the label of every sample in order
func Labels(samples []Sample) []int {
	labels := make([]int, len(samples))
	for i, s := range samples {
		labels[i] = s.Label
	}
	return labels
}
