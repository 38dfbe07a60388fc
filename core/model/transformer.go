package model

import "gonum.org/v1/gonum/mat"

// Transformer はデータ変換のインターフェース（スケーラー、PCA）
type Transformer interface {
	// Transform はデータを変換する
	Transform(X mat.Matrix) (*mat.Dense, error)

	// InverseTransform は変換を元に戻す
	InverseTransform(X mat.Matrix) (*mat.Dense, error)
}
