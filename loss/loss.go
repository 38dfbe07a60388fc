// Package loss provides the loss functions used by the optim training engine.
//
// A Loss returns the per-sample derivative with respect to the predictions,
// ∂L/∂ŷ, not a gradient in parameter space. The optimizer maps it onto the
// model parameters itself.
package loss

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// Loss is a differentiable loss over a batch of predictions.
// Implementations are stateless and safe for concurrent use.
type Loss interface {
	// Compute returns the scalar loss. yTrue and yPred must have the same length.
	Compute(yTrue, yPred mat.Vector) (float64, error)

	// Gradient returns ∂loss/∂yPred, one entry per sample.
	Gradient(yTrue, yPred mat.Vector) (*mat.VecDense, error)

	Name() string
	Description() string
	Formula() string
	GradientFormula() string
}

// checkInputs validates that both vectors have the same non-zero length and
// returns it.
func checkInputs(op string, yTrue, yPred mat.Vector) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "y_true and y_pred must not be nil")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	if n == 0 {
		return 0, errors.NewValueError(op, "y_true and y_pred must not be empty")
	}
	return n, nil
}
