package loss

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// CrossEntropy is the classification loss
//
//	CE = -(1/n) * Σ y_true * log(y_pred)
//
// y_pred is used as is: a prediction of exactly 0 yields ±Inf or NaN, which
// the optimizer treats as a numerically unstable batch and skips. Use
// BinaryCrossEntropy for a clipped variant.
type CrossEntropy struct{}

// NewCrossEntropy returns a CrossEntropy loss.
func NewCrossEntropy() CrossEntropy { return CrossEntropy{} }

// Compute implements Loss.
func (CrossEntropy) Compute(yTrue, yPred mat.Vector) (float64, error) {
	n, err := checkInputs("CrossEntropy.Compute", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += yTrue.AtVec(i) * math.Log(yPred.AtVec(i))
	}
	return -sum / float64(n), nil
}

// Gradient implements Loss: -(y_true / y_pred)/n.
func (CrossEntropy) Gradient(yTrue, yPred mat.Vector) (*mat.VecDense, error) {
	n, err := checkInputs("CrossEntropy.Gradient", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	grad := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		grad.SetVec(i, -(yTrue.AtVec(i)/yPred.AtVec(i))/float64(n))
	}
	return grad, nil
}

func (CrossEntropy) Name() string { return "Cross Entropy" }

func (CrossEntropy) Description() string {
	return "Cross Entropy measures the dissimilarity between the true distribution and the predicted distribution. It is commonly used for classification."
}

func (CrossEntropy) Formula() string { return "CE = -(1/n) * Σ(y_true * log(y_pred))" }

func (CrossEntropy) GradientFormula() string {
	return "∂CE/∂y_pred = -(1/n) * (y_true / y_pred)"
}

// DefaultEpsilon is the probability clipping bound used by BinaryCrossEntropy.
const DefaultEpsilon = 1e-12

// BinaryCrossEntropy is the two-class log loss
//
//	BCE = -(1/n) * Σ [y log(p) + (1-y) log(1-p)]
//
// with p clipped to [ε, 1-ε] so that saturated predictions stay finite.
type BinaryCrossEntropy struct {
	Epsilon float64
}

// NewBinaryCrossEntropy returns a BinaryCrossEntropy with the given epsilon.
// A non-positive eps selects DefaultEpsilon.
func NewBinaryCrossEntropy(eps float64) BinaryCrossEntropy {
	if eps <= 0 || eps >= 0.5 {
		eps = DefaultEpsilon
	}
	return BinaryCrossEntropy{Epsilon: eps}
}

func (b BinaryCrossEntropy) clip(p float64) float64 {
	eps := b.Epsilon
	if eps <= 0 || eps >= 0.5 {
		eps = DefaultEpsilon
	}
	return math.Min(math.Max(p, eps), 1-eps)
}

// Compute implements Loss.
func (b BinaryCrossEntropy) Compute(yTrue, yPred mat.Vector) (float64, error) {
	n, err := checkInputs("BinaryCrossEntropy.Compute", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		y, p := yTrue.AtVec(i), b.clip(yPred.AtVec(i))
		sum += y*math.Log(p) + (1-y)*math.Log(1-p)
	}
	return -sum / float64(n), nil
}

// Gradient implements Loss: (p - y) / (p(1-p)) / n.
func (b BinaryCrossEntropy) Gradient(yTrue, yPred mat.Vector) (*mat.VecDense, error) {
	n, err := checkInputs("BinaryCrossEntropy.Gradient", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	grad := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		y, p := yTrue.AtVec(i), b.clip(yPred.AtVec(i))
		grad.SetVec(i, (p-y)/(p*(1-p))/float64(n))
	}
	return grad, nil
}

func (BinaryCrossEntropy) Name() string { return "Binary Cross Entropy" }

func (BinaryCrossEntropy) Description() string {
	return "Binary Cross Entropy (log loss) compares predicted probabilities of the positive class with 0/1 labels. Predictions are clipped away from 0 and 1."
}

func (BinaryCrossEntropy) Formula() string {
	return "BCE = -(1/n) * Σ(y * log(p) + (1 - y) * log(1 - p))"
}

func (BinaryCrossEntropy) GradientFormula() string {
	return "∂BCE/∂p = (1/n) * (p - y) / (p * (1 - p))"
}
