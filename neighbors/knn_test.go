package neighbors

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/loss"
	"github.com/YuminosukeSato/sgdkit/optim"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
	"github.com/YuminosukeSato/sgdkit/pkg/log"
	"github.com/YuminosukeSato/sgdkit/schedule"
)

func lineDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromRows([][]float64{{0}, {1}, {2}, {10}}, []float64{0, 10, 20, 100})
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestKNearestNeighborsPredict(t *testing.T) {
	tests := []struct {
		name  string
		k     int
		query float64
		want  float64
	}{
		{"k=1 exact", 1, 1, 10},
		{"k=2", 2, 0.4, 5},
		{"k=3", 3, 9, (100 + 20 + 10) / 3.0},
		{"k larger than rows averages all", 10, 5, 32.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			knn, err := NewKNearestNeighbors(tt.k)
			if err != nil {
				t.Fatal(err)
			}
			if err := knn.Fit(lineDataset(t)); err != nil {
				t.Fatal(err)
			}
			pred, err := knn.Predict(mat.NewDense(1, 1, []float64{tt.query}))
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(pred.AtVec(0)-tt.want) > 1e-12 {
				t.Errorf("Predict(%v) = %v, want %v", tt.query, pred.AtVec(0), tt.want)
			}
		})
	}
}

func TestKNearestNeighborsParallelMatchesSequential(t *testing.T) {
	knn, _ := NewKNearestNeighbors(2)
	if err := knn.Fit(lineDataset(t)); err != nil {
		t.Fatal(err)
	}

	// 閾値を超える行数で並列経路を通す
	n := parallelThreshold * 4
	X := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i%12))
	}
	got, err := knn.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		want := knn.predictRow([]float64{X.At(i, 0)})
		if got.AtVec(i) != want {
			t.Fatalf("row %d: parallel %v != sequential %v", i, got.AtVec(i), want)
		}
	}
}

func TestKNearestNeighborsErrors(t *testing.T) {
	var ve *errors.ValidationError
	if _, err := NewKNearestNeighbors(0); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	knn, _ := NewKNearestNeighbors(1)
	var nf *errors.NotFittedError
	if _, err := knn.Predict(mat.NewDense(1, 1, nil)); !errors.As(err, &nf) {
		t.Errorf("expected NotFittedError, got %v", err)
	}

	_ = knn.Fit(lineDataset(t))
	var de *errors.DimensionError
	if _, err := knn.Predict(mat.NewDense(1, 2, nil)); !errors.As(err, &de) {
		t.Errorf("expected DimensionError, got %v", err)
	}
}

func TestKNearestNeighborsRejectsOptimizer(t *testing.T) {
	knn, _ := NewKNearestNeighbors(1)
	ds := lineDataset(t)
	if err := knn.Fit(ds); err != nil {
		t.Fatal(err)
	}

	logger, _ := log.NewTestLogger(log.LevelError)
	gd, err := optim.NewGradientDescent(optim.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	err = gd.Optimize(knn, ds, loss.NewMeanSquaredError(), schedule.NewConstant(0.1), 1, 2)

	var uo *errors.UnsupportedOperationError
	if !errors.As(err, &uo) {
		t.Fatalf("expected UnsupportedOperationError, got %v", err)
	}
}
