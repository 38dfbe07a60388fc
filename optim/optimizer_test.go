package optim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/core/model"
	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/loss"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
	"github.com/YuminosukeSato/sgdkit/pkg/log"
	"github.com/YuminosukeSato/sgdkit/schedule"
)

// sentinel marks rows for which stubLinear predicts NaN.
const sentinel = 999

// stubLinear is a minimal linear model ŷ = Xw + b with unclipped updates.
type stubLinear struct {
	w            []float64
	b            float64
	predictCalls int
	updates      int
	nanSentinel  bool
}

func newStub(d int) *stubLinear { return &stubLinear{w: make([]float64, d)} }

func (s *stubLinear) Predict(X mat.Matrix) (*mat.VecDense, error) {
	s.predictCalls++
	r, c := X.Dims()
	if c != len(s.w) {
		return nil, errors.NewDimensionError("stubLinear.Predict", len(s.w), c, 1)
	}
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		if s.nanSentinel && X.At(i, 0) == sentinel {
			out.SetVec(i, math.NaN())
			continue
		}
		v := s.b
		for j := 0; j < c; j++ {
			v += X.At(i, j) * s.w[j]
		}
		out.SetVec(i, v)
	}
	return out, nil
}

func (s *stubLinear) UpdateParameters(g mat.Vector, rate float64) error {
	if g.Len() != len(s.w)+1 {
		return errors.NewDimensionError("stubLinear.UpdateParameters", len(s.w)+1, g.Len(), 0)
	}
	s.updates++
	for j := range s.w {
		s.w[j] -= rate * g.AtVec(j)
	}
	s.b -= rate * g.AtVec(len(s.w))
	return nil
}

func (s *stubLinear) IsNil() bool { return s == nil }

// constModel predicts a constant and ignores updates.
type constModel struct {
	value float64
	d     int
}

func (c *constModel) Predict(X mat.Matrix) (*mat.VecDense, error) {
	r, _ := X.Dims()
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, c.value)
	}
	return out, nil
}

func (c *constModel) UpdateParameters(mat.Vector, float64) error { return nil }

// badModel exercises the fatal paths.
type badModel struct {
	shortPredict bool
	unsupported  bool
	panics       bool
}

func (b *badModel) Predict(X mat.Matrix) (*mat.VecDense, error) {
	if b.panics {
		var m mat.Dense
		m.Mul(mat.NewDense(2, 3, nil), mat.NewDense(2, 3, nil)) // shape panic
	}
	r, _ := X.Dims()
	if b.shortPredict {
		r--
	}
	return mat.NewVecDense(r, nil), nil
}

func (b *badModel) UpdateParameters(mat.Vector, float64) error {
	if b.unsupported {
		return errors.NewUnsupportedOperationError("badModel", "UpdateParameters")
	}
	return nil
}

func mustDataset(t *testing.T, rows [][]float64, y []float64) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromRows(rows, y)
	require.NoError(t, err)
	return ds
}

func sumDataset(t *testing.T) *dataset.Dataset {
	// y = x0 + x1
	return mustDataset(t, [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}}, []float64{0, 1, 1, 2})
}

func quietOptimizer(t *testing.T, opts ...Option) (*GradientDescent, *log.TestLogger) {
	t.Helper()
	errors.SetWarningHandler(func(error) {})
	t.Cleanup(func() { errors.SetWarningHandler(nil) })

	logger, _ := log.NewTestLogger(log.LevelDebug)
	gd, err := NewGradientDescent(append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return gd, logger
}

func TestNewGradientDescent(t *testing.T) {
	gd, err := NewGradientDescent()
	require.NoError(t, err)
	assert.Equal(t, DefaultInitialRate, gd.InitialRate())
	assert.Equal(t, DefaultFallbackRate, gd.FallbackRate())
	assert.True(t, gd.Shuffle())

	for _, opt := range []Option{WithInitialRate(0), WithInitialRate(-1), WithInitialRate(math.NaN()), WithFallbackRate(0)} {
		_, err := NewGradientDescent(opt)
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	}
}

func TestShuffleDisabledWarns(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	_, err := NewGradientDescent(WithShuffle(false))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	var sw *errors.ShuffleDisabledWarning
	assert.True(t, errors.As(warnings[0], &sw))
}

func TestBatches(t *testing.T) {
	sizes := func(bs []Batch) []int {
		out := make([]int, len(bs))
		for i, b := range bs {
			out[i] = b.Size()
		}
		return out
	}
	assert.Equal(t, []int{3, 3, 3, 1}, sizes(Batches(10, 3)))
	assert.Equal(t, []int{4}, sizes(Batches(4, 4)))
	assert.Equal(t, []int{1, 1}, sizes(Batches(2, 1)))
	assert.Nil(t, Batches(0, 3))
	assert.Nil(t, Batches(3, 0))

	bs := Batches(10, 3)
	assert.Equal(t, Batch{Index: 3, Start: 9, End: 10}, bs[3])
}

func TestEndToEndConvergence(t *testing.T) {
	history := NewHistory()
	gd, _ := quietOptimizer(t, WithShuffle(false), WithEpochCallback(history.Record))
	m := newStub(2)

	err := gd.Optimize(m, sumDataset(t), loss.NewMeanSquaredError(), schedule.NewConstant(0.1), 200, 4)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.w[0], 0.05)
	assert.InDelta(t, 1.0, m.w[1], 0.05)
	assert.InDelta(t, 0.0, m.b, 0.05)

	losses := history.Losses()
	require.Len(t, losses, 200)
	assert.Less(t, losses[199], 1e-3)
	assert.Less(t, losses[199], losses[0])
	assert.Equal(t, 200, m.updates)
}

func TestSizeWeightedEpochLoss(t *testing.T) {
	rows := make([][]float64, 10)
	y := make([]float64, 10)
	for i := range rows {
		rows[i] = []float64{float64(i)}
		y[i] = 1
	}
	y[9] = 10 // the lone row of the last batch

	var results []EpochResult
	gd, _ := quietOptimizer(t, WithShuffle(false), WithEpochCallback(func(r EpochResult) { results = append(results, r) }))

	err := gd.Optimize(&constModel{}, mustDataset(t, rows, y), loss.NewMeanSquaredError(), schedule.NewConstant(0.1), 1, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// 3 batches of loss 1 weighted 3/10 each, one batch of loss 100 weighted 1/10.
	assert.InDelta(t, 10.9, results[0].Loss, 1e-12)
}

func TestCombinedGradientAndClipping(t *testing.T) {
	rows := [][]float64{{10, -20, 5}, {3, 4, 100}, {-7, 8, 9}, {50, 60, 70}, {1, 1, 1}}
	y := []float64{1000, -2000, 3000, 500, 42}

	var grads [][]float64
	gd, _ := quietOptimizer(t, WithBatchCallback(func(r BatchResult) {
		if !r.Skipped {
			grads = append(grads, r.Gradient)
		}
	}))
	m := newStub(3)
	require.NoError(t, gd.Optimize(m, mustDataset(t, rows, y), loss.NewMeanSquaredError(), schedule.NewConstant(0.5), 5, 2))

	require.Len(t, grads, 15)
	for _, g := range grads {
		require.Len(t, g, 4)
		assert.LessOrEqual(t, floats.Norm(g[:3], 2), 1.0+1e-12)
		assert.LessOrEqual(t, math.Abs(g[3]), 1.0+1e-12)
	}
}

func TestDeterminism(t *testing.T) {
	rows := make([][]float64, 17)
	y := make([]float64, 17)
	for i := range rows {
		rows[i] = []float64{float64(i%5) - 2, float64(i%3) * 0.5}
		y[i] = 3*rows[i][0] - rows[i][1] + 0.1*float64(i%2)
	}
	ds := mustDataset(t, rows, y)

	run := func() *stubLinear {
		gd, _ := quietOptimizer(t)
		m := newStub(2)
		require.NoError(t, gd.Optimize(m, ds, loss.NewMeanSquaredError(), schedule.NewExponentialDecay(0.2, 0.01), 30, 4))
		return m
	}
	a, b := run(), run()
	assert.Equal(t, a.w, b.w)
	assert.Equal(t, a.b, b.b)
}

func TestNaNBatchEqualsOmittedBatch(t *testing.T) {
	full := mustDataset(t,
		[][]float64{{1, 2}, {2, 1}, {sentinel, 0}, {3, 3}, {0, 1}, {1, 0}},
		[]float64{3, 3, 1, 6, 1, 1})
	// the batch [2:4) holds the sentinel row and is skipped as a whole
	omitted := mustDataset(t,
		[][]float64{{1, 2}, {2, 1}, {0, 1}, {1, 0}},
		[]float64{3, 3, 1, 1})

	var skipped int
	gd, logger := quietOptimizer(t, WithShuffle(false), WithEpochCallback(func(r EpochResult) { skipped += r.SkippedBatches }))
	withNaN := newStub(2)
	withNaN.nanSentinel = true
	require.NoError(t, gd.Optimize(withNaN, full, loss.NewMeanSquaredError(), schedule.NewConstant(0.05), 5, 2))

	gd2, _ := quietOptimizer(t, WithShuffle(false))
	reference := newStub(2)
	require.NoError(t, gd2.Optimize(reference, omitted, loss.NewMeanSquaredError(), schedule.NewConstant(0.05), 5, 2))

	assert.Equal(t, reference.w, withNaN.w)
	assert.Equal(t, reference.b, withNaN.b)
	assert.Equal(t, 5, skipped)
	assert.Equal(t, 5, logger.CountLevel(log.LevelWarn))
	assert.True(t, logger.ContainsMessage("numerical instability"))
}

func TestCrossEntropyZeroPredictionIsSkipped(t *testing.T) {
	ds := mustDataset(t, [][]float64{{1}, {2}}, []float64{1, 0})
	gd, _ := quietOptimizer(t, WithShuffle(false))
	m := newStub(1) // zero weights predict exactly 0

	require.NoError(t, gd.Optimize(m, ds, loss.NewCrossEntropy(), schedule.NewConstant(0.1), 3, 2))
	assert.Equal(t, 0, m.updates)
	assert.Equal(t, []float64{0}, m.w)
}

func TestInvalidSchedulerRateFallsBack(t *testing.T) {
	for _, rate := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		var used []float64
		gd, logger := quietOptimizer(t, WithShuffle(false), WithBatchCallback(func(r BatchResult) { used = append(used, r.Rate) }))
		err := gd.Optimize(newStub(2), sumDataset(t), loss.NewMeanSquaredError(), schedule.NewConstant(rate), 2, 2)
		require.NoError(t, err)

		require.Len(t, used, 4)
		for _, r := range used {
			assert.Equal(t, DefaultFallbackRate, r)
		}
		assert.Equal(t, 4, logger.CountLevel(log.LevelWarn), "rate %v", rate)
	}
}

func TestPreconditionsRejectWithoutMutation(t *testing.T) {
	ds := sumDataset(t)
	empty, err := dataset.New(&mat.Dense{}, &mat.VecDense{})
	require.NoError(t, err)
	mse := loss.NewMeanSquaredError()
	sched := schedule.NewConstant(0.1)

	tests := []struct {
		name      string
		ds        *dataset.Dataset
		loss      loss.Loss
		sched     schedule.Scheduler
		epochs    int
		batchSize int
		nilModel  bool
	}{
		{"zero epochs", ds, mse, sched, 0, 2, false},
		{"negative epochs", ds, mse, sched, -3, 2, false},
		{"zero batch", ds, mse, sched, 10, 0, false},
		{"batch larger than rows", ds, mse, sched, 10, 5, false},
		{"empty dataset", empty, mse, sched, 10, 1, false},
		{"nil dataset", nil, mse, sched, 10, 1, false},
		{"nil loss", ds, nil, sched, 10, 1, false},
		{"nil scheduler", ds, mse, nil, 10, 1, false},
		{"nil model", ds, mse, sched, 10, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gd, _ := quietOptimizer(t)
			m := newStub(2)
			m.w = []float64{0.5, -0.5}
			m.b = 0.25

			var target model.Trainable = m
			if tt.nilModel {
				target = (*stubLinear)(nil)
			}
			err := gd.Optimize(target, tt.ds, tt.loss, tt.sched, tt.epochs, tt.batchSize)
			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)

			assert.Equal(t, []float64{0.5, -0.5}, m.w)
			assert.Equal(t, 0.25, m.b)
			assert.Zero(t, m.predictCalls)
			assert.Zero(t, m.updates)
		})
	}
}

func TestFatalErrorsCarryPosition(t *testing.T) {
	ds := sumDataset(t)
	gd, logger := quietOptimizer(t, WithShuffle(false))

	err := gd.Optimize(&badModel{shortPredict: true}, ds, loss.NewMeanSquaredError(), schedule.NewConstant(0.1), 3, 2)
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de), "expected DimensionError, got %v", err)
	assert.Contains(t, err.Error(), "epoch 0, batch 0")
	assert.Equal(t, 1, logger.CountLevel(log.LevelError))

	err = gd.Optimize(&badModel{unsupported: true}, ds, loss.NewMeanSquaredError(), schedule.NewConstant(0.1), 3, 2)
	var ue *errors.UnsupportedOperationError
	require.True(t, errors.As(err, &ue), "expected UnsupportedOperationError, got %v", err)

	err = gd.Optimize(&badModel{panics: true}, ds, loss.NewMeanSquaredError(), schedule.NewConstant(0.1), 3, 2)
	var pe *errors.PanicError
	require.True(t, errors.As(err, &pe), "expected PanicError, got %v", err)
}

func TestEpochSummaryLevel(t *testing.T) {
	gd, logger := quietOptimizer(t, WithShuffle(false))
	require.NoError(t, gd.Optimize(newStub(2), sumDataset(t), loss.NewMeanSquaredError(), schedule.NewConstant(0.1), 3, 4))
	assert.Equal(t, 3, logger.CountLevel(log.LevelInfo))

	quiet, logger := quietOptimizer(t, WithShuffle(false), WithVerbose(false))
	require.NoError(t, quiet.Optimize(newStub(2), sumDataset(t), loss.NewMeanSquaredError(), schedule.NewConstant(0.1), 3, 4))
	assert.Zero(t, logger.CountLevel(log.LevelInfo))
	assert.True(t, logger.ContainsMessage("Epoch finished"))
}

func TestHistory(t *testing.T) {
	h := NewHistory()
	_, ok := h.Last()
	assert.False(t, ok)

	h.Record(EpochResult{Epoch: 0, Loss: 2, Rate: 0.1})
	h.Record(EpochResult{Epoch: 1, Loss: 1, Rate: 0.05})
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, []float64{2, 1}, h.Losses())
	assert.Equal(t, []float64{0.1, 0.05}, h.Rates())
	last, ok := h.Last()
	assert.True(t, ok)
	assert.Equal(t, 1, last.Epoch)

	h.Reset()
	assert.Zero(t, h.Len())
}

func TestInitialRateDoesNotDriveUpdates(t *testing.T) {
	ds := sumDataset(t)
	train := func(n0 float64) *stubLinear {
		gd, _ := quietOptimizer(t, WithShuffle(false), WithInitialRate(n0))
		m := newStub(2)
		require.NoError(t, gd.Optimize(m, ds, loss.NewMeanSquaredError(), schedule.NewConstant(0.1), 5, 2))
		return m
	}

	a, b := train(0.01), train(5)
	assert.Equal(t, a.w, b.w)
	assert.Equal(t, a.b, b.b)
}
