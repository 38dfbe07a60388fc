package cluster

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

func blobs(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromRows(
		[][]float64{{0, 0}, {0, 1}, {1, 0}, {10, 10}, {10, 11}, {11, 10}},
		make([]float64, 6),
	)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	for _, init := range []string{InitRandom, InitKMeansPP} {
		t.Run(init, func(t *testing.T) {
			km, err := NewKMeans(WithNClusters(2), WithInit(init), WithRandomState(42))
			if err != nil {
				t.Fatal(err)
			}
			if err := km.Fit(blobs(t)); err != nil {
				t.Fatal(err)
			}

			labels := km.Labels()
			if labels[0] != labels[1] || labels[1] != labels[2] {
				t.Errorf("first blob split: %v", labels)
			}
			if labels[3] != labels[4] || labels[4] != labels[5] {
				t.Errorf("second blob split: %v", labels)
			}
			if labels[0] == labels[3] {
				t.Errorf("blobs merged: %v", labels)
			}

			// 各ブロブの平方和誤差は 4/3
			if math.Abs(km.Inertia()-8.0/3.0) > 1e-9 {
				t.Errorf("Inertia() = %v, want 8/3", km.Inertia())
			}
			if r, c := km.Centroids().Dims(); r != 2 || c != 2 {
				t.Errorf("Centroids() dims = %dx%d", r, c)
			}
			if km.NIter() < 1 || km.NIter() > 100 {
				t.Errorf("NIter() = %d", km.NIter())
			}

			pred, err := km.Predict(mat.NewDense(2, 2, []float64{0.2, 0.2, 10.5, 10.5}))
			if err != nil {
				t.Fatal(err)
			}
			if int(pred.AtVec(0)) != labels[0] || int(pred.AtVec(1)) != labels[3] {
				t.Errorf("Predict() = %v, labels %v", pred.RawVector().Data, labels)
			}
		})
	}
}

func TestKMeansDeterministicWithSeed(t *testing.T) {
	fit := func() *mat.Dense {
		km, _ := NewKMeans(WithNClusters(3), WithInit(InitKMeansPP), WithRandomState(7))
		if err := km.Fit(blobs(t)); err != nil {
			t.Fatal(err)
		}
		return km.Centroids()
	}
	if a, b := fit(), fit(); !mat.Equal(a, b) {
		t.Errorf("same seed produced different centroids:\n%v\n%v", mat.Formatted(a), mat.Formatted(b))
	}
}

func TestKMeansErrors(t *testing.T) {
	var ve *errors.ValidationError
	for _, opt := range []Option{WithNClusters(0), WithMaxIter(0), WithInit("forgy"), WithTol(-1)} {
		if _, err := NewKMeans(opt); !errors.As(err, &ve) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	}

	km, _ := NewKMeans(WithNClusters(10))
	if err := km.Fit(blobs(t)); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError when rows < k, got %v", err)
	}

	var nf *errors.NotFittedError
	if _, err := km.Predict(mat.NewDense(1, 2, nil)); !errors.As(err, &nf) {
		t.Errorf("expected NotFittedError, got %v", err)
	}

	var uo *errors.UnsupportedOperationError
	if err := km.UpdateParameters(mat.NewVecDense(3, nil), 0.1); !errors.As(err, &uo) {
		t.Errorf("expected UnsupportedOperationError, got %v", err)
	}
}
