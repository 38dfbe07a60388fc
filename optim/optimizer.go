// Package optim implements the mini-batch gradient descent engine that trains
// any model exposing the core/model Trainable contract.
//
// The engine owns the mapping from per-sample loss derivatives to parameter
// space: for a batch (X_b, y_b) it computes ∂L/∂ŷ with the Loss, forms
// ∇w = X_bᵀ·∂L/∂ŷ and ∇b = Σ∂L/∂ŷ, clips both to unit magnitude and hands the
// combined vector [∇w..., ∇b] to Model.UpdateParameters.
//
// 使用例:
//
//	gd, err := optim.NewGradientDescent(optim.WithShuffle(false))
//	if err != nil {
//	    return err
//	}
//	err = gd.Optimize(model, ds, loss.NewMeanSquaredError(), schedule.NewConstant(0.1), 200, 4)
package optim

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/core/model"
	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/loss"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
	"github.com/YuminosukeSato/sgdkit/pkg/log"
	"github.com/YuminosukeSato/sgdkit/schedule"
)

const (
	// DefaultInitialRate is the nominal learning rate n0.
	DefaultInitialRate = 0.01
	// DefaultFallbackRate replaces an invalid scheduler rate.
	DefaultFallbackRate = 0.001
	// MaxGradNorm bounds ‖∇w‖ and |∇b| for every batch.
	MaxGradNorm = 1.0
)

// Optimizer trains a model in place.
type Optimizer interface {
	// Optimize runs epochs passes over ds in batches of batchSize rows,
	// mutating m's parameters. It blocks until training finishes or a
	// collaborator fails.
	Optimize(m model.Trainable, ds *dataset.Dataset, l loss.Loss, s schedule.Scheduler, epochs, batchSize int) error
}

// GradientDescent は勾配クリッピング付きのミニバッチ確率的勾配降下法です。
// 1回の Optimize 呼び出しは完全に逐次的で、その間モデルを排他的に所有します。
// 異なるモデルに対する同時呼び出しは安全です。
type GradientDescent struct {
	initialRate    float64
	shuffle        bool
	fallbackRate   float64
	verbose        bool
	logger         log.Logger
	epochCallbacks []func(EpochResult)
	batchCallbacks []func(BatchResult)
}

var _ Optimizer = (*GradientDescent)(nil)

// NewGradientDescent creates a GradientDescent. A non-positive initial or
// fallback rate is rejected with a ValidationError. Disabling shuffling emits
// a ShuffleDisabledWarning.
func NewGradientDescent(opts ...Option) (*GradientDescent, error) {
	gd := &GradientDescent{
		initialRate:  DefaultInitialRate,
		shuffle:      true,
		fallbackRate: DefaultFallbackRate,
		verbose:      true,
	}
	for _, opt := range opts {
		opt(gd)
	}
	if gd.logger == nil {
		gd.logger = log.GetLoggerWithName("optim")
	}

	if gd.initialRate <= 0 || !errors.IsFinite(gd.initialRate) {
		return nil, errors.NewValidationError("initial_rate", "learning rate must be positive", gd.initialRate)
	}
	if gd.fallbackRate <= 0 || !errors.IsFinite(gd.fallbackRate) {
		return nil, errors.NewValidationError("fallback_rate", "learning rate must be positive", gd.fallbackRate)
	}
	if !gd.shuffle {
		errors.Warn(errors.NewShuffleDisabledWarning("GradientDescent"))
	}
	return gd, nil
}

// InitialRate returns the configured nominal rate n0.
func (gd *GradientDescent) InitialRate() float64 { return gd.initialRate }

// Shuffle reports whether rows are reshuffled every epoch.
func (gd *GradientDescent) Shuffle() bool { return gd.shuffle }

// FallbackRate returns the rate substituted for invalid scheduler output.
func (gd *GradientDescent) FallbackRate() float64 { return gd.fallbackRate }

// Optimize implements Optimizer.
//
// Epoch e uses ds.Shuffle(e) when shuffling is enabled, so runs with equal
// inputs produce identical parameters. Invalid arguments are rejected before
// the model is touched. A batch whose predictions or gradients are not finite
// is skipped and logged; errors from the model or the loss abort training,
// wrapped with the epoch and batch position.
func (gd *GradientDescent) Optimize(m model.Trainable, ds *dataset.Dataset, l loss.Loss, s schedule.Scheduler, epochs, batchSize int) (err error) {
	defer errors.Recover(&err, "GradientDescent.Optimize")

	if err := validateArgs(m, ds, l, s, epochs, batchSize); err != nil {
		return err
	}

	rows := ds.Rows()
	batches := Batches(rows, batchSize)
	logger := gd.logger.With(
		log.OperationKey, log.OperationOptimize,
		log.ModelNameKey, modelName(m),
	)
	logger.Debug("Optimization started",
		log.SamplesKey, rows,
		log.FeaturesKey, ds.NumFeatures(),
		log.EpochsKey, epochs,
		log.BatchSizeKey, batchSize,
		log.ShuffleKey, gd.shuffle,
		log.LossFunctionKey, l.Name(),
		log.SchedulerKey, s.Name(),
	)

	for e := 0; e < epochs; e++ {
		view := ds
		if gd.shuffle {
			view = ds.Shuffle(int64(e))
		}

		result, err := gd.runEpoch(m, view, l, s, e, batches, logger)
		if err != nil {
			logger.Error("Optimization aborted", err, log.EpochKey, e)
			return err
		}

		level := log.LevelDebug
		if gd.verbose {
			level = log.LevelInfo
		}
		if logger.Enabled(context.Background(), level) {
			fields := []any{
				log.EpochKey, e,
				log.EpochsKey, epochs,
				log.LossKey, result.Loss,
				log.LearningRateKey, result.Rate,
				log.SkippedBatchesKey, result.SkippedBatches,
			}
			if gd.verbose {
				logger.Info("Epoch finished", fields...)
			} else {
				logger.Debug("Epoch finished", fields...)
			}
		}
		for _, fn := range gd.epochCallbacks {
			fn(result)
		}
	}
	return nil
}

func (gd *GradientDescent) runEpoch(m model.Trainable, view *dataset.Dataset, l loss.Loss, s schedule.Scheduler,
	epoch int, batches []Batch, logger log.Logger) (EpochResult, error) {

	rows := view.Rows()
	d := view.NumFeatures()
	result := EpochResult{Epoch: epoch, Rate: gd.rate(s, epoch)}

	for _, b := range batches {
		Xb, yb := view.Slice(b.Start, b.End)
		where := func(err error, step string) error {
			return errors.Wrapf(err, "epoch %d, batch %d [%d:%d]: %s", epoch, b.Index, b.Start, b.End, step)
		}

		yPred, err := m.Predict(Xb)
		if err != nil {
			return result, where(err, "predict")
		}
		batchLoss, err := l.Compute(yb, yPred)
		if err != nil {
			return result, where(err, "loss")
		}
		result.Loss += batchLoss * float64(b.Size()) / float64(rows)

		predGrad, err := l.Gradient(yb, yPred)
		if err != nil {
			return result, where(err, "loss gradient")
		}

		ctx := map[string]interface{}{log.BatchKey: b.Index, "start": b.Start, "end": b.End}
		if diag := firstInstability(epoch, ctx, checked{"predict", yPred}, checked{"loss_gradient", predGrad}); diag != nil {
			result.SkippedBatches++
			logger.Warn("Non-finite values in batch, skipping update",
				"diagnostic", diag,
				log.EpochKey, epoch,
				log.BatchKey, b.Index,
			)
			gd.notifyBatch(BatchResult{Epoch: epoch, Batch: b.Index, Start: b.Start, End: b.End,
				Loss: batchLoss, Rate: result.Rate, Skipped: true})
			continue
		}

		// ∇w = X_bᵀ · ∂L/∂ŷ, ∇b = Σ ∂L/∂ŷ
		combined := make([]float64, d+1)
		weightGrad := mat.NewVecDense(d, combined[:d])
		weightGrad.MulVec(Xb.T(), predGrad)
		biasGrad := mat.Sum(predGrad)

		gradNorm := errors.ClipNorm(combined[:d], MaxGradNorm)
		combined[d] = errors.ClampAbs(biasGrad, MaxGradNorm)

		gradient := mat.NewVecDense(d+1, combined)
		if diag := firstInstability(epoch, ctx, checked{"batch_gradient", gradient}); diag != nil {
			// 特徴量自体に非有限値が含まれる場合
			result.SkippedBatches++
			logger.Warn("Non-finite parameter gradient, skipping update",
				"diagnostic", diag,
				log.EpochKey, epoch,
				log.BatchKey, b.Index,
			)
			gd.notifyBatch(BatchResult{Epoch: epoch, Batch: b.Index, Start: b.Start, End: b.End,
				Loss: batchLoss, Rate: result.Rate, Skipped: true})
			continue
		}

		rate := gd.checkedRate(s, epoch, b.Index, logger)
		if err := m.UpdateParameters(gradient, rate); err != nil {
			return result, where(err, "update parameters")
		}

		if logger.Enabled(context.Background(), log.LevelDebug) {
			logger.Debug("Batch update",
				log.EpochKey, epoch,
				log.BatchKey, b.Index,
				log.LossKey, batchLoss,
				log.GradNormKey, gradNorm,
			)
		}
		gd.notifyBatch(BatchResult{Epoch: epoch, Batch: b.Index, Start: b.Start, End: b.End,
			Loss: batchLoss, Gradient: append([]float64(nil), combined...), Rate: rate})
	}
	return result, nil
}

// rate returns the scheduler rate for epoch with fallback substitution, without logging.
func (gd *GradientDescent) rate(s schedule.Scheduler, epoch int) float64 {
	r := s.Rate(epoch)
	if r <= 0 || !errors.IsFinite(r) {
		return gd.fallbackRate
	}
	return r
}

// checkedRate is rate plus a diagnostic for every substitution.
func (gd *GradientDescent) checkedRate(s schedule.Scheduler, epoch, batch int, logger log.Logger) float64 {
	r := s.Rate(epoch)
	if r > 0 && errors.IsFinite(r) {
		return r
	}
	diag := errors.NewNumericalInstabilityErrorWithContext("learning_rate", []float64{r}, epoch,
		map[string]interface{}{log.BatchKey: batch, "fallback": gd.fallbackRate, log.SchedulerKey: s.Name()})
	logger.Warn("Invalid learning rate from scheduler, using fallback",
		"diagnostic", diag,
		log.EpochKey, epoch,
		log.LearningRateKey, gd.fallbackRate,
	)
	return gd.fallbackRate
}

func (gd *GradientDescent) notifyBatch(r BatchResult) {
	for _, fn := range gd.batchCallbacks {
		fn(r)
	}
}

type checked struct {
	op string
	v  mat.Vector
}

// firstInstability returns the diagnostic for the first vector holding a
// non-finite value, or nil.
func firstInstability(epoch int, ctx map[string]interface{}, vs ...checked) error {
	for _, c := range vs {
		if err := errors.CheckVector(c.op, c.v, epoch, ctx); err != nil {
			return err
		}
	}
	return nil
}

func validateArgs(m model.Trainable, ds *dataset.Dataset, l loss.Loss, s schedule.Scheduler, epochs, batchSize int) error {
	switch {
	case m == nil:
		return errors.NewValidationError("model", "must not be nil", nil)
	case isNilModel(m):
		return errors.NewValidationError("model", "must not be a nil pointer", fmt.Sprintf("%T", m))
	case ds == nil:
		return errors.NewValidationError("dataset", "must not be nil", nil)
	case l == nil:
		return errors.NewValidationError("loss", "must not be nil", nil)
	case s == nil:
		return errors.NewValidationError("scheduler", "must not be nil", nil)
	}
	if epochs <= 0 {
		return errors.NewValidationError("epochs", "number of epochs must be positive", epochs)
	}
	if ds.Rows() == 0 || ds.NumFeatures() == 0 {
		return errors.NewValidationError("dataset",
			fmt.Sprintf("dataset is empty (%d rows, %d features)", ds.Rows(), ds.NumFeatures()), ds.Rows())
	}
	if batchSize <= 0 || batchSize > ds.Rows() {
		return errors.NewValidationError("batch_size",
			fmt.Sprintf("must be positive and at most the number of samples (%d)", ds.Rows()), batchSize)
	}
	return nil
}

// isNilModel は型付き nil を検出する。NilReporter を実装しないモデルは
// 呼び出し側が非 nil を保証する。
func isNilModel(m model.Trainable) bool {
	n, ok := m.(model.NilReporter)
	return ok && n.IsNil()
}

func modelName(m model.Trainable) string {
	if d, ok := m.(model.Describer); ok {
		return d.Name()
	}
	return fmt.Sprintf("%T", m)
}

func (gd *GradientDescent) Name() string { return "Gradient Descent" }

func (gd *GradientDescent) Description() string {
	return "Mini-batch stochastic gradient descent with per-epoch shuffling and unit-norm gradient clipping."
}

func (gd *GradientDescent) Formula() string {
	return "θ ← θ - η(epoch) * clip([X_bᵀ·∂L/∂ŷ, Σ∂L/∂ŷ])"
}

func (gd *GradientDescent) GradientFormula() string {
	return "∇w = X_bᵀ · ∂L/∂ŷ, ∇b = Σ ∂L/∂ŷ, ‖∇w‖ ≤ 1, |∇b| ≤ 1"
}
