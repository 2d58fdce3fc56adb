// Package classify trains and scores a scaled logistic regression on feature
// vectors with binary labels.
package classify

import (
	"fmt"

	"github.com/RyanBlaney/sonido-topo/logging"
)

// Config controls TrainAndEvaluate
type Config struct {
	TestFraction  float64 `json:"test_fraction"`
	Seed          uint64  `json:"seed"`
	C             float64 `json:"c"`
	MaxIterations int     `json:"max_iterations"`
}

// DefaultConfig holds out a quarter of the rows and uses C = 1
func DefaultConfig() Config {
	return Config{
		TestFraction:  0.25,
		Seed:          0,
		C:             1,
		MaxIterations: 100,
	}
}

// Pipeline is a fitted scaler followed by a fitted logistic regression
type Pipeline struct {
	Scaler *StandardScaler
	Model  *LogisticRegression
}

// Fit scales x and trains the model on it
func (p *Pipeline) Fit(x [][]float64, y []int) error {
	scaled, err := p.Scaler.FitTransform(x)
	if err != nil {
		return fmt.Errorf("failed to fit scaler: %w", err)
	}
	if err := p.Model.Fit(scaled, y); err != nil {
		return fmt.Errorf("failed to fit model: %w", err)
	}
	return nil
}

// Predict scales x with the fitted scaler and predicts labels
func (p *Pipeline) Predict(x [][]float64) ([]int, error) {
	scaled, err := p.Scaler.Transform(x)
	if err != nil {
		return nil, err
	}
	return p.Model.Predict(scaled)
}

// TrainAndEvaluate splits the rows, fits a pipeline on the training part and
// scores it on the held-out part.
func TrainAndEvaluate(features [][]float64, labels []int, cfg Config) (*Report, *Pipeline, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "classifier",
		"function":  "TrainAndEvaluate",
		"rows":      len(features),
	})

	if len(features) != len(labels) {
		return nil, nil, fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(features), len(labels))
	}

	train, test, err := StratifiedSplit(labels, cfg.TestFraction, cfg.Seed)
	if err != nil {
		logger.Error(err, "Failed to split dataset")
		return nil, nil, err
	}

	pipeline := &Pipeline{
		Scaler: &StandardScaler{},
		Model:  NewLogisticRegression(cfg.C, cfg.MaxIterations),
	}
	if err := pipeline.Fit(Rows(features, train), Rows(labels, train)); err != nil {
		logger.Error(err, "Training failed")
		return nil, nil, err
	}

	predicted, err := pipeline.Predict(Rows(features, test))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to predict test rows: %w", err)
	}
	confusion, err := Confusion(Rows(labels, test), predicted)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{
		Accuracy:  confusion.Accuracy(),
		F1:        confusion.F1(),
		Confusion: confusion,
		TrainSize: len(train),
		TestSize:  len(test),
	}
	logger.Info("Classifier evaluated", logging.Fields{
		"accuracy": report.Accuracy,
		"f1":       report.F1,
	})
	return report, pipeline, nil
}
