// Package linear provides gradient-trained linear models: least-squares
// regression and binary logistic regression.
package linear

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/core/model"
	"github.com/YuminosukeSato/sgdkit/core/parallel"
	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/loss"
	"github.com/YuminosukeSato/sgdkit/metrics"
	"github.com/YuminosukeSato/sgdkit/optim"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
	"github.com/YuminosukeSato/sgdkit/pkg/log"
	"github.com/YuminosukeSato/sgdkit/schedule"
)

// MaxParameter bounds every weight and the bias of a LinearRegression after
// each gradient step.
const MaxParameter = 10.0

// 並列処理の閾値（この値以下の行数では逐次処理を使用）
const parallelThreshold = 1000

// LinearRegression は線形回帰モデル y = Xw + b
//
// デフォルトではミニバッチ SGD（MeanSquaredError + ExponentialDecay）で学習し、
// WithSolver(SolverNormal) で正規方程式による閉形式解を使う。
type LinearRegression struct {
	state *model.StateManager
	cfg   config

	weights   *mat.VecDense // 重み（係数）
	intercept float64       // 切片
	features  []string
	history   *optim.History
}

var (
	_ model.LinearModel    = (*LinearRegression)(nil)
	_ model.WeightExporter = (*LinearRegression)(nil)
	_ model.NilReporter    = (*LinearRegression)(nil)
)

// NewLinearRegression は新しい線形回帰モデルを作成する
//
// デフォルト: 学習率 0.001, 1000 エポック, バッチサイズ 32, 減衰率 0.01
func NewLinearRegression(opts ...Option) (*LinearRegression, error) {
	cfg, err := newConfig(config{
		learningRate: 0.001,
		epochs:       1000,
		batchSize:    32,
		decayRate:    0.01,
		shuffle:      true,
		solver:       SolverSGD,
		threshold:    0.5,
	}, opts)
	if err != nil {
		return nil, err
	}
	return &LinearRegression{
		state:   model.NewStateManager(),
		cfg:     cfg,
		history: optim.NewHistory(),
	}, nil
}

// Initialize は重みを nFeatures 個のゼロ、切片を 0 に初期化する。
// Fit を経由せずにオプティマイザへ直接渡す場合に使う。
func (lr *LinearRegression) Initialize(nFeatures int) error {
	if nFeatures <= 0 {
		return errors.NewValidationError("n_features", "must be positive", nFeatures)
	}
	lr.weights = mat.NewVecDense(nFeatures, nil)
	lr.intercept = 0
	lr.features = nil
	lr.state.SetDimensions(nFeatures, 0)
	lr.state.SetFitted()
	return nil
}

// Fit はモデルを訓練データで学習させる
func (lr *LinearRegression) Fit(ds *dataset.Dataset) (err error) {
	defer errors.Recover(&err, "LinearRegression.Fit")

	if ds == nil || ds.Rows() == 0 || ds.NumFeatures() == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}

	logger := lr.cfg.logger.With(
		log.OperationKey, log.OperationFit,
		log.ModelNameKey, "LinearRegression",
	)
	logger.Info("Starting model training",
		log.SamplesKey, ds.Rows(),
		log.FeaturesKey, ds.NumFeatures(),
		"solver", lr.cfg.solver,
	)
	start := time.Now()

	if lr.cfg.solver == SolverNormal {
		err = lr.fitNormal(ds)
	} else {
		err = lr.fitSGD(ds, logger)
	}
	if err != nil {
		lr.state.Reset()
		lr.weights = nil
		logger.Error("Model training failed", err)
		return err
	}
	lr.features = ds.FeatureNames()
	lr.state.SetDimensions(ds.NumFeatures(), ds.Rows())

	fields := []any{log.DurationMsKey, time.Since(start).Milliseconds()}
	if last, ok := lr.history.Last(); ok {
		fields = append(fields, log.LossKey, last.Loss)
	}
	logger.Info("Model training completed", fields...)
	return nil
}

func (lr *LinearRegression) fitSGD(ds *dataset.Dataset, logger log.Logger) error {
	if err := lr.Initialize(ds.NumFeatures()); err != nil {
		return err
	}
	lr.history.Reset()

	gd, err := optim.NewGradientDescent(
		optim.WithInitialRate(lr.cfg.learningRate),
		optim.WithShuffle(lr.cfg.shuffle),
		optim.WithVerbose(lr.cfg.verbose),
		optim.WithLogger(logger),
		optim.WithEpochCallback(lr.history.Record),
	)
	if err != nil {
		return err
	}

	batchSize := min(lr.cfg.batchSize, ds.Rows())
	sched := schedule.NewExponentialDecay(lr.cfg.learningRate, lr.cfg.decayRate)
	return gd.Optimize(lr, ds, loss.NewMeanSquaredError(), sched, lr.cfg.epochs, batchSize)
}

// fitNormal は正規方程式 w = (X^T * X)^(-1) * X^T * y を解く
func (lr *LinearRegression) fitNormal(ds *dataset.Dataset) error {
	r, c := ds.Rows(), ds.NumFeatures()
	lr.history.Reset()

	// 切片項のために X に 1 の列を追加
	// X_with_intercept = [1, X]
	XWithIntercept := mat.NewDense(r, c+1, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			XWithIntercept.Set(i, 0, 1.0)
			for j := 0; j < c; j++ {
				XWithIntercept.Set(i, j+1, ds.At(i, j))
			}
		}
	})

	var XTX mat.Dense
	XTX.Mul(XWithIntercept.T(), XWithIntercept)

	var XTXInv mat.Dense
	if err := XTXInv.Inverse(&XTX); err != nil {
		return errors.NewModelError("LinearRegression.Fit", "singular matrix", errors.ErrSingularMatrix)
	}

	var XTy mat.VecDense
	XTy.MulVec(XWithIntercept.T(), ds.Targets())

	theta := mat.NewVecDense(c+1, nil)
	theta.MulVec(&XTXInv, &XTy)

	// 切片と重みを分離
	lr.intercept = theta.AtVec(0)
	lr.weights = mat.NewVecDense(c, nil)
	for j := 0; j < c; j++ {
		lr.weights.SetVec(j, theta.AtVec(j+1))
	}
	lr.state.SetFitted()
	return nil
}

// Predict は入力データに対する予測 y = Xw + b を返す
func (lr *LinearRegression) Predict(X mat.Matrix) (*mat.VecDense, error) {
	if err := lr.state.RequireFitted("LinearRegression", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := lr.state.RequireFeatures("LinearRegression.Predict", c); err != nil {
		return nil, err
	}
	if r == 0 {
		return nil, errors.NewValueError("LinearRegression.Predict", "no rows to predict")
	}

	predictions := mat.NewVecDense(r, nil)
	predictions.MulVec(X, lr.weights)
	for i := 0; i < r; i++ {
		predictions.SetVec(i, predictions.AtVec(i)+lr.intercept)
	}
	return predictions, nil
}

// UpdateParameters は w -= rate*g[:d], b -= rate*g[d] を適用し、
// 全パラメータを [-MaxParameter, MaxParameter] にクリップする
func (lr *LinearRegression) UpdateParameters(gradient mat.Vector, rate float64) error {
	if err := lr.state.RequireFitted("LinearRegression", "UpdateParameters"); err != nil {
		return err
	}
	d := lr.weights.Len()
	if gradient.Len() != d+1 {
		return errors.NewDimensionError("LinearRegression.UpdateParameters", d+1, gradient.Len(), 0)
	}
	for j := 0; j < d; j++ {
		w := lr.weights.AtVec(j) - rate*gradient.AtVec(j)
		lr.weights.SetVec(j, errors.ClipValue(w, -MaxParameter, MaxParameter))
	}
	lr.intercept = errors.ClipValue(lr.intercept-rate*gradient.AtVec(d), -MaxParameter, MaxParameter)
	return nil
}

// Weights は学習された重み（係数）のコピーを返す
func (lr *LinearRegression) Weights() []float64 {
	if lr.weights == nil {
		return nil
	}
	return append([]float64(nil), lr.weights.RawVector().Data...)
}

// Intercept は学習された切片を返す
func (lr *LinearRegression) Intercept() float64 {
	if !lr.state.IsFitted() {
		return 0
	}
	return lr.intercept
}

// Score はモデルの決定係数（R²）を計算する
func (lr *LinearRegression) Score(ds *dataset.Dataset) (float64, error) {
	if err := lr.state.RequireFitted("LinearRegression", "Score"); err != nil {
		return 0, err
	}
	yPred, err := lr.Predict(ds.Features())
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(ds.Targets(), yPred)
}

// LossHistory returns the epoch losses of the last SGD Fit. It is empty after
// a normal-equation fit.
func (lr *LinearRegression) LossHistory() []float64 {
	return lr.history.Losses()
}

// IsFitted reports whether the parameters have been initialised.
func (lr *LinearRegression) IsFitted() bool { return lr.state.IsFitted() }

// IsNil reports whether the receiver is a nil pointer.
func (lr *LinearRegression) IsNil() bool { return lr == nil }

// ExportWeights はモデルの重みを ModelWeights として返す
func (lr *LinearRegression) ExportWeights() (*model.ModelWeights, error) {
	mw := &model.ModelWeights{
		ModelType:       "LinearRegression",
		Version:         model.WeightsVersion,
		Hyperparameters: lr.cfg.hyperparameters(),
	}
	st := lr.state.GetState()
	mw.IsFitted = st.Fitted
	if !mw.IsFitted {
		return mw, nil
	}
	mw.Coefficients = lr.Weights()
	mw.Intercept = lr.intercept
	mw.Features = append([]string(nil), lr.features...)
	mw.Metadata = map[string]interface{}{"n_samples": st.NSamples}
	if last, ok := lr.history.Last(); ok {
		mw.Metadata["final_loss"] = last.Loss
		mw.Metadata["epochs_run"] = lr.history.Len()
	}
	return mw, nil
}

// ImportWeights はエクスポートされた重みをモデルに設定する
func (lr *LinearRegression) ImportWeights(mw *model.ModelWeights) error {
	if mw == nil {
		return errors.NewValueError("LinearRegression.ImportWeights", "weights must not be nil")
	}
	if err := mw.Validate(); err != nil {
		return err
	}
	if mw.ModelType != "LinearRegression" {
		return errors.NewValidationError("model_type", "expected LinearRegression", mw.ModelType)
	}
	lr.history.Reset()
	if !mw.IsFitted {
		lr.state.Reset()
		lr.weights = nil
		lr.intercept = 0
		return nil
	}
	lr.weights = mat.NewVecDense(len(mw.Coefficients), append([]float64(nil), mw.Coefficients...))
	lr.intercept = mw.Intercept
	lr.features = append([]string(nil), mw.Features...)
	lr.state.SetState(model.ModelState{Fitted: true, NFeatures: len(mw.Coefficients)})
	return nil
}

func (lr *LinearRegression) Name() string { return "Linear Regression" }

func (lr *LinearRegression) Description() string { return "A simple linear regression model." }

func (lr *LinearRegression) Formula() string { return "y = Xw + b" }

func (lr *LinearRegression) GradientFormula() string { return "∇L = -2/n * X^T(y - Xw)" }
