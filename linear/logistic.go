package linear

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/core/model"
	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/loss"
	"github.com/YuminosukeSato/sgdkit/metrics"
	"github.com/YuminosukeSato/sgdkit/optim"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
	"github.com/YuminosukeSato/sgdkit/pkg/log"
	"github.com/YuminosukeSato/sgdkit/schedule"
)

// LogisticRegression は二値分類のロジスティック回帰モデル
//
//	P(y=1|x) = σ(wᵀx + b)
//
// Fit はサンプル単位の SGD で学習する。エンジン経由で学習する場合は
// FitWithOptimizer を使う。
type LogisticRegression struct {
	state *model.StateManager
	cfg   config

	weights   *mat.VecDense
	intercept float64
	features  []string
	history   *optim.History
}

var (
	_ model.LinearModel    = (*LogisticRegression)(nil)
	_ model.WeightExporter = (*LogisticRegression)(nil)
	_ model.NilReporter    = (*LogisticRegression)(nil)
)

// NewLogisticRegression creates a logistic regression model.
//
// Defaults: learning rate 0.01, 1000 epochs, batch size 32, threshold 0.5.
func NewLogisticRegression(opts ...Option) (*LogisticRegression, error) {
	cfg, err := newConfig(config{
		learningRate: 0.01,
		epochs:       1000,
		batchSize:    32,
		shuffle:      true,
		solver:       SolverSGD,
		threshold:    0.5,
	}, opts)
	if err != nil {
		return nil, err
	}
	return &LogisticRegression{
		state:   model.NewStateManager(),
		cfg:     cfg,
		history: optim.NewHistory(),
	}, nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + errors.StabilizeExp(-z))
}

// Initialize は重みと切片をゼロで初期化する
func (lg *LogisticRegression) Initialize(nFeatures int) error {
	if nFeatures <= 0 {
		return errors.NewValidationError("n_features", "must be positive", nFeatures)
	}
	lg.weights = mat.NewVecDense(nFeatures, nil)
	lg.intercept = 0
	lg.features = nil
	lg.state.SetDimensions(nFeatures, 0)
	lg.state.SetFitted()
	return nil
}

// Fit は各エポックで全サンプルを順に1つずつ訪れ、
//
//	w -= lr * (σ(z) - y) * x
//	b -= lr * (σ(z) - y)
//
// で更新する。エポックごとの損失（BinaryCrossEntropy）を LossHistory に記録する。
func (lg *LogisticRegression) Fit(ds *dataset.Dataset) (err error) {
	defer errors.Recover(&err, "LogisticRegression.Fit")

	if ds == nil || ds.Rows() == 0 || ds.NumFeatures() == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}

	logger := lg.cfg.logger.With(
		log.OperationKey, log.OperationFit,
		log.ModelNameKey, "LogisticRegression",
	)
	logger.Info("Starting model training",
		log.SamplesKey, ds.Rows(),
		log.FeaturesKey, ds.NumFeatures(),
		log.EpochsKey, lg.cfg.epochs,
	)
	start := time.Now()

	if err := lg.Initialize(ds.NumFeatures()); err != nil {
		return err
	}
	lg.history.Reset()

	n, d := ds.Rows(), ds.NumFeatures()
	bce := loss.NewBinaryCrossEntropy(loss.DefaultEpsilon)
	y := ds.Targets()
	w := lg.weights.RawVector().Data
	rate := lg.cfg.learningRate

	for epoch := 0; epoch < lg.cfg.epochs; epoch++ {
		for i := 0; i < n; i++ {
			z := lg.intercept
			for j := 0; j < d; j++ {
				z += w[j] * ds.At(i, j)
			}
			residual := sigmoid(z) - y.AtVec(i)
			for j := 0; j < d; j++ {
				w[j] -= rate * residual * ds.At(i, j)
			}
			lg.intercept -= rate * residual
		}

		proba, err := lg.Predict(ds.Features())
		if err != nil {
			return err
		}
		epochLoss, err := bce.Compute(y, proba)
		if err != nil {
			return err
		}
		lg.history.Record(optim.EpochResult{Epoch: epoch, Loss: epochLoss, Rate: rate})

		level := log.LevelDebug
		if lg.cfg.verbose {
			level = log.LevelInfo
		}
		if logger.Enabled(context.Background(), level) {
			fields := []any{log.EpochKey, epoch, log.LossKey, epochLoss}
			if lg.cfg.verbose {
				logger.Info("Epoch finished", fields...)
			} else {
				logger.Debug("Epoch finished", fields...)
			}
		}
	}

	lg.features = ds.FeatureNames()
	lg.state.SetDimensions(d, n)
	last, _ := lg.history.Last()
	logger.Info("Model training completed",
		log.LossKey, last.Loss,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// FitWithOptimizer は重みをゼロ初期化し、opt で学習する。
// opt が nil の場合はモデルの設定から GradientDescent を作る。
// l が nil なら BinaryCrossEntropy、s が nil なら Constant(learning rate) を使う。
// LossHistory は opt が nil の場合のみ記録される。
func (lg *LogisticRegression) FitWithOptimizer(ds *dataset.Dataset, opt optim.Optimizer, l loss.Loss, s schedule.Scheduler, epochs, batchSize int) error {
	if ds == nil || ds.Rows() == 0 || ds.NumFeatures() == 0 {
		return errors.NewModelError("LogisticRegression.FitWithOptimizer", "empty data", errors.ErrEmptyData)
	}
	lg.history.Reset()
	if opt == nil {
		gd, err := optim.NewGradientDescent(
			optim.WithInitialRate(lg.cfg.learningRate),
			optim.WithShuffle(lg.cfg.shuffle),
			optim.WithVerbose(lg.cfg.verbose),
			optim.WithLogger(lg.cfg.logger),
			optim.WithEpochCallback(lg.history.Record),
		)
		if err != nil {
			return err
		}
		opt = gd
	}
	if l == nil {
		l = loss.NewBinaryCrossEntropy(loss.DefaultEpsilon)
	}
	if s == nil {
		s = schedule.NewConstant(lg.cfg.learningRate)
	}

	if err := lg.Initialize(ds.NumFeatures()); err != nil {
		return err
	}
	if err := opt.Optimize(lg, ds, l, s, epochs, batchSize); err != nil {
		lg.state.Reset()
		lg.weights = nil
		return err
	}
	lg.features = ds.FeatureNames()
	lg.state.SetDimensions(ds.NumFeatures(), ds.Rows())
	return nil
}

// Predict は各行について P(y=1) を返す
func (lg *LogisticRegression) Predict(X mat.Matrix) (*mat.VecDense, error) {
	if err := lg.state.RequireFitted("LogisticRegression", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := lg.state.RequireFeatures("LogisticRegression.Predict", c); err != nil {
		return nil, err
	}
	if r == 0 {
		return nil, errors.NewValueError("LogisticRegression.Predict", "no rows to predict")
	}

	proba := mat.NewVecDense(r, nil)
	proba.MulVec(X, lg.weights)
	for i := 0; i < r; i++ {
		proba.SetVec(i, sigmoid(proba.AtVec(i)+lg.intercept))
	}
	return proba, nil
}

// PredictClass は確率を閾値で 0/1 のラベルに変換する
func (lg *LogisticRegression) PredictClass(X mat.Matrix) (*mat.VecDense, error) {
	proba, err := lg.Predict(X)
	if err != nil {
		return nil, err
	}
	for i := 0; i < proba.Len(); i++ {
		label := 0.0
		if proba.AtVec(i) >= lg.cfg.threshold {
			label = 1
		}
		proba.SetVec(i, label)
	}
	return proba, nil
}

// UpdateParameters は w -= rate*g[:d], b -= rate*g[d] を適用する（クリップなし）
func (lg *LogisticRegression) UpdateParameters(gradient mat.Vector, rate float64) error {
	if err := lg.state.RequireFitted("LogisticRegression", "UpdateParameters"); err != nil {
		return err
	}
	d := lg.weights.Len()
	if gradient.Len() != d+1 {
		return errors.NewDimensionError("LogisticRegression.UpdateParameters", d+1, gradient.Len(), 0)
	}
	for j := 0; j < d; j++ {
		lg.weights.SetVec(j, lg.weights.AtVec(j)-rate*gradient.AtVec(j))
	}
	lg.intercept -= rate * gradient.AtVec(d)
	return nil
}

// Score は閾値での正解率を返す
func (lg *LogisticRegression) Score(ds *dataset.Dataset) (float64, error) {
	if err := lg.state.RequireFitted("LogisticRegression", "Score"); err != nil {
		return 0, err
	}
	proba, err := lg.Predict(ds.Features())
	if err != nil {
		return 0, err
	}
	return metrics.Accuracy(ds.Targets(), proba, lg.cfg.threshold)
}

// Weights は学習された重みのコピーを返す
func (lg *LogisticRegression) Weights() []float64 {
	if lg.weights == nil {
		return nil
	}
	return append([]float64(nil), lg.weights.RawVector().Data...)
}

// Intercept は学習された切片を返す
func (lg *LogisticRegression) Intercept() float64 {
	if !lg.state.IsFitted() {
		return 0
	}
	return lg.intercept
}

// Threshold returns the classification cut-off.
func (lg *LogisticRegression) Threshold() float64 { return lg.cfg.threshold }

// LossHistory returns the per-epoch binary cross-entropy of the last Fit.
func (lg *LogisticRegression) LossHistory() []float64 {
	return lg.history.Losses()
}

// IsFitted reports whether the parameters have been initialised.
func (lg *LogisticRegression) IsFitted() bool { return lg.state.IsFitted() }

// IsNil reports whether the receiver is a nil pointer.
func (lg *LogisticRegression) IsNil() bool { return lg == nil }

// ExportWeights はモデルの重みを ModelWeights として返す
func (lg *LogisticRegression) ExportWeights() (*model.ModelWeights, error) {
	mw := &model.ModelWeights{
		ModelType:       "LogisticRegression",
		Version:         model.WeightsVersion,
		Hyperparameters: lg.cfg.hyperparameters(),
	}
	st := lg.state.GetState()
	mw.IsFitted = st.Fitted
	if !mw.IsFitted {
		return mw, nil
	}
	mw.Coefficients = lg.Weights()
	mw.Intercept = lg.intercept
	mw.Features = append([]string(nil), lg.features...)
	mw.Metadata = map[string]interface{}{"n_samples": st.NSamples}
	if last, ok := lg.history.Last(); ok {
		mw.Metadata["final_loss"] = last.Loss
		mw.Metadata["epochs_run"] = lg.history.Len()
	}
	return mw, nil
}

// ImportWeights はエクスポートされた重みをモデルに設定する
func (lg *LogisticRegression) ImportWeights(mw *model.ModelWeights) error {
	if mw == nil {
		return errors.NewValueError("LogisticRegression.ImportWeights", "weights must not be nil")
	}
	if err := mw.Validate(); err != nil {
		return err
	}
	if mw.ModelType != "LogisticRegression" {
		return errors.NewValidationError("model_type", "expected LogisticRegression", mw.ModelType)
	}
	lg.history.Reset()
	if !mw.IsFitted {
		lg.state.Reset()
		lg.weights = nil
		lg.intercept = 0
		return nil
	}
	lg.weights = mat.NewVecDense(len(mw.Coefficients), append([]float64(nil), mw.Coefficients...))
	lg.intercept = mw.Intercept
	lg.features = append([]string(nil), mw.Features...)
	lg.state.SetState(model.ModelState{Fitted: true, NFeatures: len(mw.Coefficients)})
	return nil
}

func (lg *LogisticRegression) Name() string { return "Logistic Regression" }

func (lg *LogisticRegression) Description() string {
	return "Logistic Regression model for binary classification."
}

func (lg *LogisticRegression) Formula() string {
	return "P(y=1|X) = 1 / (1 + exp(-z)), where z = w^T * X + b"
}

func (lg *LogisticRegression) GradientFormula() string {
	return "∂L/∂w = (P(y=1|X) - y) * X, ∂L/∂b = P(y=1|X) - y"
}
