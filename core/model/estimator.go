// Package model defines the contracts shared by every sgdkit model and the
// training engine, plus fitted-state tracking and weight persistence.
package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/dataset"
)

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は X の各行に対して1つの予測値を返す。未学習なら NotFittedError。
	Predict(X mat.Matrix) (*mat.VecDense, error)
}

// ParameterUpdater は勾配でパラメータを更新できるモデルのインターフェース
type ParameterUpdater interface {
	// UpdateParameters は長さ NFeatures+1 の勾配 [重み勾配..., バイアス勾配] と
	// 学習率 rate でパラメータをその場で更新する。
	// 学習可能なパラメータを持たないモデルは UnsupportedOperationError を返す。
	UpdateParameters(gradient mat.Vector, rate float64) error
}

// Describer はモデルの説明情報（ドキュメント用途のみ）
type Describer interface {
	Name() string
	Description() string
	Formula() string
	GradientFormula() string
}

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(ds *dataset.Dataset) error
}

// Trainable is what the optimizer needs from a model.
type Trainable interface {
	Predictor
	ParameterUpdater
}

// NilReporter is implemented by pointer-backed models so the optimizer can
// reject a typed-nil model before calling into it.
type NilReporter interface {
	IsNil() bool
}

// Model は全モデル共通のインターフェース
type Model interface {
	Trainable
	Describer
	Fitter
}

// Scorer is implemented by models that can evaluate themselves on a dataset
// (R² for regressors, accuracy for classifiers).
type Scorer interface {
	Score(ds *dataset.Dataset) (float64, error)
}

// LinearModel は線形モデルのインターフェース
type LinearModel interface {
	Model
	Scorer
	// Weights は学習された重み（係数）を返す
	Weights() []float64
	// Intercept は学習された切片を返す
	Intercept() float64
}

// WeightExporter is implemented by models whose parameters can be persisted
// as ModelWeights.
type WeightExporter interface {
	ExportWeights() (*ModelWeights, error)
	ImportWeights(w *ModelWeights) error
}
