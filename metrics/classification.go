package metrics

import (
	"gonum.org/v1/gonum/mat"
)

// Accuracy は確率（またはスコア）を threshold で 0/1 に変換し、正解率を計算する。
// yTrue は 0/1 ラベル。
func Accuracy(yTrue, yScore mat.Vector, threshold float64) (float64, error) {
	n, err := check("Accuracy", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		pred := 0.0
		if yScore.AtVec(i) >= threshold {
			pred = 1
		}
		if pred == yTrue.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// AccuracyScore は予測ラベルと正解ラベルの完全一致率を計算する（多クラス対応）。
func AccuracyScore(yTrue, yPred mat.Vector) (float64, error) {
	n, err := check("AccuracyScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}
