package classify

import (
	"fmt"
	"strings"
)

// ConfusionMatrix counts [true label][predicted label] for labels 0 and 1
type ConfusionMatrix [2][2]int

func (c ConfusionMatrix) String() string {
	return fmt.Sprintf("[[%d %d]\n [%d %d]]", c[0][0], c[0][1], c[1][0], c[1][1])
}

// Confusion builds the confusion matrix of binary predictions
func Confusion(truth, predicted []int) (ConfusionMatrix, error) {
	var c ConfusionMatrix
	if len(truth) != len(predicted) {
		return c, fmt.Errorf("%w: %d labels, %d predictions", ErrShapeMismatch, len(truth), len(predicted))
	}
	for i := range truth {
		t, p := truth[i], predicted[i]
		if t < 0 || t > 1 || p < 0 || p > 1 {
			return c, fmt.Errorf("row %d is not binary: truth %d, predicted %d", i, t, p)
		}
		c[t][p]++
	}
	return c, nil
}

// Accuracy is the share of correct predictions
func (c ConfusionMatrix) Accuracy() float64 {
	total := c[0][0] + c[0][1] + c[1][0] + c[1][1]
	if total == 0 {
		return 0
	}
	return float64(c[0][0]+c[1][1]) / float64(total)
}

// F1 is the harmonic mean of precision and recall for label 1. It is 0 when
// label 1 is neither present nor predicted.
func (c ConfusionMatrix) F1() float64 {
	tp, fp, fn := c[1][1], c[0][1], c[1][0]
	if 2*tp+fp+fn == 0 {
		return 0
	}
	return float64(2*tp) / float64(2*tp+fp+fn)
}

// Report summarizes a held-out evaluation
type Report struct {
	Accuracy  float64         `json:"accuracy"`
	F1        float64         `json:"f1"`
	Confusion ConfusionMatrix `json:"confusion"`
	TrainSize int             `json:"train_size"`
	TestSize  int             `json:"test_size"`
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Test accuracy: %.4f\n", r.Accuracy)
	fmt.Fprintf(&b, "Test f1_score: %.4f\n", r.F1)
	fmt.Fprintf(&b, "Test confusion matrix:\n%s\n", r.Confusion)
	return b.String()
}
