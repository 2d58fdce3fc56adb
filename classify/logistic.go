package classify

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-topo/logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// LogisticRegression is a binary L2-regularized logistic regression. It
// minimizes 0.5*|w|^2 + C*sum(log(1 + exp(-y*(w.x + b)))) with y in {-1, 1};
// the intercept b is not penalized.
type LogisticRegression struct {
	C             float64 `json:"c"`
	MaxIterations int     `json:"max_iterations"`

	weights   []float64
	intercept float64
	logger    logging.Logger
}

// NewLogisticRegression creates a model with inverse regularization strength c
func NewLogisticRegression(c float64, maxIterations int) *LogisticRegression {
	return &LogisticRegression{
		C:             c,
		MaxIterations: maxIterations,
		logger: logging.WithFields(logging.Fields{
			"component": "logistic_regression",
		}),
	}
}

// Fit trains on rows x with labels y in {0, 1}
func (m *LogisticRegression) Fit(x [][]float64, y []int) error {
	width, err := matrixWidth(x)
	if err != nil {
		return err
	}
	if len(y) != len(x) {
		return fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(x), len(y))
	}
	if m.C <= 0 {
		return fmt.Errorf("regularization C must be positive: %v", m.C)
	}

	signs := make([]float64, len(y))
	for i, label := range y {
		switch label {
		case 0:
			signs[i] = -1
		case 1:
			signs[i] = 1
		default:
			return fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}

	// params = [w..., b]
	objective := func(params []float64) float64 {
		w, b := params[:width], params[width]
		loss := 0.5 * floats.Dot(w, w)
		for i, row := range x {
			loss += m.C * logOnePlusExp(-signs[i]*(floats.Dot(w, row)+b))
		}
		return loss
	}
	gradient := func(grad, params []float64) {
		w, b := params[:width], params[width]
		copy(grad[:width], w)
		grad[width] = 0
		for i, row := range x {
			z := signs[i] * (floats.Dot(w, row) + b)
			// d/dz log(1+exp(-z)) = -sigmoid(-z)
			coef := -m.C * signs[i] * sigmoid(-z)
			floats.AddScaled(grad[:width], coef, row)
			grad[width] += coef
		}
	}

	settings := &optimize.Settings{
		GradientThreshold: 1e-6,
		MajorIterations:   m.MaxIterations,
	}
	result, err := optimize.Minimize(
		optimize.Problem{Func: objective, Grad: gradient},
		make([]float64, width+1),
		settings,
		&optimize.LBFGS{},
	)
	if result == nil {
		return fmt.Errorf("logistic regression optimization failed: %w", err)
	}
	if err != nil {
		logger := m.logger
		if logger == nil {
			logger = logging.GetGlobalLogger()
		}
		logger.Warn("Optimizer stopped before convergence", logging.Fields{
			"status":     result.Status.String(),
			"iterations": result.Stats.MajorIterations,
			"reason":     err.Error(),
		})
	}

	m.weights = append([]float64(nil), result.X[:width]...)
	m.intercept = result.X[width]
	return nil
}

// Weights returns a copy of the fitted coefficients and the intercept
func (m *LogisticRegression) Weights() ([]float64, float64) {
	return append([]float64(nil), m.weights...), m.intercept
}

// PredictProba returns P(y = 1) for every row
func (m *LogisticRegression) PredictProba(x [][]float64) ([]float64, error) {
	if m.weights == nil {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(m.weights) {
			return nil, fmt.Errorf("%w: row %d has %d columns, model has %d",
				ErrShapeMismatch, i, len(row), len(m.weights))
		}
		out[i] = sigmoid(floats.Dot(m.weights, row) + m.intercept)
	}
	return out, nil
}

// Predict returns the most likely label of every row
func (m *LogisticRegression) Predict(x [][]float64) ([]int, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(proba))
	for i, p := range proba {
		if p > 0.5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// logOnePlusExp computes log(1 + exp(z)) without overflow
func logOnePlusExp(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
