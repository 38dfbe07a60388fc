package loss

import (
	"gonum.org/v1/gonum/mat"
)

// MeanSquaredError is the regression loss
//
//	MSE = (1/n) * Σ(y_true - y_pred)²
type MeanSquaredError struct{}

// NewMeanSquaredError returns a MeanSquaredError loss.
func NewMeanSquaredError() MeanSquaredError { return MeanSquaredError{} }

// Compute implements Loss.
func (MeanSquaredError) Compute(yTrue, yPred mat.Vector) (float64, error) {
	n, err := checkInputs("MeanSquaredError.Compute", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var diff mat.VecDense
	diff.SubVec(yTrue, yPred)
	return mat.Dot(&diff, &diff) / float64(n), nil
}

// Gradient implements Loss: 2*(y_pred - y_true)/n.
func (MeanSquaredError) Gradient(yTrue, yPred mat.Vector) (*mat.VecDense, error) {
	n, err := checkInputs("MeanSquaredError.Gradient", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	grad := mat.NewVecDense(n, nil)
	grad.SubVec(yPred, yTrue)
	grad.ScaleVec(2/float64(n), grad)
	return grad, nil
}

func (MeanSquaredError) Name() string { return "Mean Squared Error" }

func (MeanSquaredError) Description() string {
	return "Mean Squared Error (MSE) is the average squared difference between the predicted and the true values. It is the standard loss for regression."
}

func (MeanSquaredError) Formula() string { return "MSE = (1/n) * Σ(y_true - y_pred)^2" }

func (MeanSquaredError) GradientFormula() string {
	return "∂MSE/∂y_pred = (2/n) * (y_pred - y_true)"
}
