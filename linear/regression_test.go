package linear

import (
	"bytes"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/core/model"
	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/loss"
	"github.com/YuminosukeSato/sgdkit/optim"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
	"github.com/YuminosukeSato/sgdkit/pkg/log"
	"github.com/YuminosukeSato/sgdkit/schedule"
)

func silenceWarnings(t *testing.T) {
	t.Helper()
	errors.SetWarningHandler(func(error) {})
	t.Cleanup(func() { errors.SetWarningHandler(nil) })
}

func mustRows(t *testing.T, rows [][]float64, y []float64) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromRows(rows, y)
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	return ds
}

func TestNewLinearRegressionValidation(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"zero learning rate", []Option{WithLearningRate(0)}},
		{"negative learning rate", []Option{WithLearningRate(-0.1)}},
		{"zero epochs", []Option{WithEpochs(0)}},
		{"zero batch size", []Option{WithBatchSize(0)}},
		{"negative decay", []Option{WithDecayRate(-1)}},
		{"unknown solver", []Option{WithSolver("qr")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLinearRegression(tt.opts...)
			var ve *errors.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}

	if _, err := NewLinearRegression(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}

func TestLinearRegressionSGD(t *testing.T) {
	silenceWarnings(t)
	logger, _ := log.NewTestLogger(log.LevelDebug)

	// y = x0 + x1
	ds := mustRows(t, [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}}, []float64{0, 1, 1, 2})
	lr, err := NewLinearRegression(
		WithLearningRate(0.1),
		WithEpochs(200),
		WithBatchSize(4),
		WithDecayRate(0),
		WithShuffle(false),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := lr.Fit(ds); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	w := lr.Weights()
	if len(w) != 2 {
		t.Fatalf("expected 2 weights, got %d", len(w))
	}
	for j, v := range w {
		if math.Abs(v-1) > 0.05 {
			t.Errorf("weight[%d] = %v, want ~1", j, v)
		}
	}
	if math.Abs(lr.Intercept()) > 0.05 {
		t.Errorf("intercept = %v, want ~0", lr.Intercept())
	}

	losses := lr.LossHistory()
	if len(losses) != 200 {
		t.Fatalf("expected 200 epoch losses, got %d", len(losses))
	}
	if losses[199] >= 1e-3 {
		t.Errorf("final loss %v not below 1e-3", losses[199])
	}

	score, err := lr.Score(ds)
	if err != nil {
		t.Fatal(err)
	}
	if score < 0.99 {
		t.Errorf("R² = %v, want > 0.99", score)
	}

	if !logger.ContainsMessage("Model training completed") {
		t.Error("expected completion log")
	}
	if logger.CountLevel(log.LevelInfo) != 2 {
		t.Errorf("expected only start/completion at Info, got %d", logger.CountLevel(log.LevelInfo))
	}
}

func TestLinearRegressionBatchSizeClamped(t *testing.T) {
	silenceWarnings(t)
	ds := mustRows(t, [][]float64{{1}, {2}, {3}}, []float64{2, 4, 6})
	lr, err := NewLinearRegression(WithBatchSize(64), WithEpochs(5), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if err := lr.Fit(ds); err != nil {
		t.Fatalf("batch size larger than rows should be clamped: %v", err)
	}
}

func TestLinearRegressionNormalEquation(t *testing.T) {
	// y = 2x + 1
	ds := mustRows(t, [][]float64{{1}, {2}, {3}, {4}}, []float64{3, 5, 7, 9})
	lr, err := NewLinearRegression(WithSolver(SolverNormal), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if err := lr.Fit(ds); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if math.Abs(lr.Weights()[0]-2) > 1e-9 || math.Abs(lr.Intercept()-1) > 1e-9 {
		t.Errorf("got w=%v b=%v, want w=2 b=1", lr.Weights(), lr.Intercept())
	}

	pred, err := lr.Predict(mat.NewDense(2, 1, []float64{5, 6}))
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []float64{11, 13} {
		if math.Abs(pred.AtVec(i)-want) > 1e-9 {
			t.Errorf("pred[%d] = %v, want %v", i, pred.AtVec(i), want)
		}
	}
	if len(lr.LossHistory()) != 0 {
		t.Error("normal equation should not record an SGD loss history")
	}
}

func TestLinearRegressionSingular(t *testing.T) {
	ds := mustRows(t, [][]float64{{1, 1}, {2, 2}, {3, 3}}, []float64{1, 2, 3})
	lr, _ := NewLinearRegression(WithSolver(SolverNormal), WithLogger(quietLogger()))

	err := lr.Fit(ds)
	if !errors.Is(err, errors.ErrSingularMatrix) {
		t.Fatalf("expected ErrSingularMatrix, got %v", err)
	}
	if lr.IsFitted() {
		t.Error("model should not be fitted after a failed Fit")
	}
}

func TestLinearRegressionNotFitted(t *testing.T) {
	lr, _ := NewLinearRegression()

	var nf *errors.NotFittedError
	if _, err := lr.Predict(mat.NewDense(1, 1, []float64{1})); !errors.As(err, &nf) {
		t.Errorf("Predict: expected NotFittedError, got %v", err)
	}
	if err := lr.UpdateParameters(mat.NewVecDense(2, nil), 0.1); !errors.As(err, &nf) {
		t.Errorf("UpdateParameters: expected NotFittedError, got %v", err)
	}
	if lr.Weights() != nil || lr.Intercept() != 0 {
		t.Error("unfitted model should have no parameters")
	}

	if err := lr.Fit(nil); !errors.Is(err, errors.ErrEmptyData) {
		t.Errorf("Fit(nil): expected ErrEmptyData, got %v", err)
	}
}

func TestLinearRegressionUpdateParameters(t *testing.T) {
	lr, _ := NewLinearRegression()
	if err := lr.Initialize(2); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		gradient  []float64
		rate      float64
		wantW     []float64
		wantB     float64
		wantDimErr bool
	}{
		{"plain step", []float64{1, -2, 0.5}, 0.1, []float64{-0.1, 0.2}, -0.05, false},
		{"clipped to bounds", []float64{-1000, 1000, -1000}, 1, []float64{10, -10}, 10, false},
		{"wrong length", []float64{1, 2}, 0.1, nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := lr.Initialize(2); err != nil {
				t.Fatal(err)
			}
			err := lr.UpdateParameters(mat.NewVecDense(len(tt.gradient), tt.gradient), tt.rate)
			if tt.wantDimErr {
				var de *errors.DimensionError
				if !errors.As(err, &de) {
					t.Fatalf("expected DimensionError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			for j, want := range tt.wantW {
				if math.Abs(lr.Weights()[j]-want) > 1e-12 {
					t.Errorf("w[%d] = %v, want %v", j, lr.Weights()[j], want)
				}
			}
			if math.Abs(lr.Intercept()-tt.wantB) > 1e-12 {
				t.Errorf("b = %v, want %v", lr.Intercept(), tt.wantB)
			}
		})
	}
}

func TestLinearRegressionPredictDimension(t *testing.T) {
	lr, _ := NewLinearRegression()
	_ = lr.Initialize(2)

	_, err := lr.Predict(mat.NewDense(1, 3, []float64{1, 2, 3}))
	var de *errors.DimensionError
	if !errors.As(err, &de) {
		t.Errorf("expected DimensionError, got %v", err)
	}
}

func TestLinearRegressionWeightsRoundTrip(t *testing.T) {
	ds := mustRows(t, [][]float64{{1}, {2}, {3}, {4}}, []float64{3, 5, 7, 9})
	lr, _ := NewLinearRegression(WithSolver(SolverNormal), WithLogger(quietLogger()))
	if err := lr.Fit(ds); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := model.WriteWeights(lr, &buf); err != nil {
		t.Fatal(err)
	}

	restored, _ := NewLinearRegression()
	if err := model.ReadWeights(restored, &buf); err != nil {
		t.Fatal(err)
	}
	if !restored.IsFitted() {
		t.Fatal("restored model should be fitted")
	}
	if restored.Intercept() != lr.Intercept() || restored.Weights()[0] != lr.Weights()[0] {
		t.Errorf("restored parameters differ: %v/%v vs %v/%v",
			restored.Weights(), restored.Intercept(), lr.Weights(), lr.Intercept())
	}

	// 復元したモデルは学習時の特徴量数を要求する
	var de *errors.DimensionError
	if _, err := restored.Predict(mat.NewDense(1, 2, []float64{1, 2})); !errors.As(err, &de) {
		t.Errorf("expected DimensionError from restored model, got %v", err)
	}

	mw, _ := lr.ExportWeights()
	if mw.Features[0] != "X0" || mw.Hyperparameters["solver"] != SolverNormal {
		t.Errorf("unexpected export %+v", mw)
	}
	if mw.Metadata["n_samples"] != 4 {
		t.Errorf("n_samples = %v, want 4", mw.Metadata["n_samples"])
	}

	mw.ModelType = "LogisticRegression"
	var ve *errors.ValidationError
	if err := restored.ImportWeights(mw); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for wrong model type, got %v", err)
	}
}

func TestOptimizeRejectsNilModel(t *testing.T) {
	ds := mustRows(t, [][]float64{{1}, {2}}, []float64{1, 2})
	gd, err := optim.NewGradientDescent(optim.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}

	var lr *LinearRegression
	var lg *LogisticRegression
	for _, m := range []model.Trainable{lr, lg} {
		err := gd.Optimize(m, ds, loss.NewMeanSquaredError(), schedule.NewConstant(0.1), 1, 1)
		var ve *errors.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%T: expected ValidationError, got %v", m, err)
		}
	}
}
