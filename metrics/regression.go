// Package metrics provides evaluation metrics for regression and binary
// classification on gonum vectors.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// check は入力の長さを検証し、要素数を返す
func check(op string, yTrue, yPred mat.Vector) (int, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
//
//	MSE = (1/n) * Σ(yTrue - yPred)²
func MSE(yTrue, yPred mat.Vector) (float64, error) {
	n, err := check("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred mat.Vector) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
//
//	MAE = (1/n) * Σ|yTrue - yPred|
func MAE(yTrue, yPred mat.Vector) (float64, error) {
	n, err := check("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2Score は決定係数（R²）を計算する
//
//	R² = 1 - RSS/TSS
//
// yTrue の分散が0の場合 R² は定義されないため、UndefinedMetricWarning を発行して 0 を返す。
func R2Score(yTrue, yPred mat.Vector) (float64, error) {
	n, err := check("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	yMean := mat.Sum(yTrue) / float64(n)
	var tss, rss float64
	for i := 0; i < n; i++ {
		t, p := yTrue.AtVec(i), yPred.AtVec(i)
		tss += (t - yMean) * (t - yMean)
		rss += (t - p) * (t - p)
	}

	if tss == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("R2Score", "no variance in y_true", 0))
		return 0, nil
	}
	return 1 - rss/tss, nil
}

// RegressionReport bundles the regression metrics reported by the CLI.
type RegressionReport struct {
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// Regression computes every metric of RegressionReport.
func Regression(yTrue, yPred mat.Vector) (RegressionReport, error) {
	var r RegressionReport
	var err error
	if r.MSE, err = MSE(yTrue, yPred); err != nil {
		return r, err
	}
	r.RMSE = math.Sqrt(r.MSE)
	if r.MAE, err = MAE(yTrue, yPred); err != nil {
		return r, err
	}
	if r.R2, err = R2Score(yTrue, yPred); err != nil {
		return r, err
	}
	return r, nil
}
