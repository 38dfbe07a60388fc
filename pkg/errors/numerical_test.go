package errors

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestHasNonFinite(t *testing.T) {
	tests := []struct {
		name string
		data []float64
		want bool
	}{
		{"clean", []float64{1, -2, 0}, false},
		{"nan", []float64{1, math.NaN()}, true},
		{"inf", []float64{math.Inf(-1), 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasNonFinite(mat.NewVecDense(len(tt.data), tt.data)); got != tt.want {
				t.Errorf("HasNonFinite() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckVector(t *testing.T) {
	v := mat.NewVecDense(3, []float64{1, math.NaN(), math.Inf(1)})
	err := CheckVector("predictions", v, 2, map[string]interface{}{"batch": 1})
	if err == nil {
		t.Fatal("expected instability error")
	}
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("unexpected type %T", err)
	}
	if len(numErr.Values) != 2 || numErr.Iteration != 2 {
		t.Errorf("unexpected error contents: %+v", numErr)
	}

	if err := CheckVector("predictions", mat.NewVecDense(2, []float64{1, 2}), 0, nil); err != nil {
		t.Errorf("clean vector should pass, got %v", err)
	}
}

func TestCheckScalar(t *testing.T) {
	if err := CheckScalar("rate", 0.1, 0); err != nil {
		t.Errorf("finite scalar should pass: %v", err)
	}
	if err := CheckScalar("rate", math.NaN(), 0); err == nil {
		t.Error("NaN should fail")
	}
	if err := CheckNumericalStability("loss", []float64{1, math.Inf(1)}, 4); err == nil {
		t.Error("Inf should fail")
	}
}

func TestClipNorm(t *testing.T) {
	g := []float64{3, 4}
	norm := ClipNorm(g, 1.0)
	if norm != 5 {
		t.Errorf("pre-clip norm = %v, want 5", norm)
	}
	if math.Abs(floats.Norm(g, 2)-1) > 1e-12 {
		t.Errorf("clipped norm = %v, want 1", floats.Norm(g, 2))
	}
	if math.Abs(g[0]-0.6) > 1e-12 || math.Abs(g[1]-0.8) > 1e-12 {
		t.Errorf("direction not preserved: %v", g)
	}

	small := []float64{0.1, 0.2}
	ClipNorm(small, 1.0)
	if small[0] != 0.1 || small[1] != 0.2 {
		t.Errorf("vectors under the bound must be untouched: %v", small)
	}
}

func TestClampAbs(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0.5, 0.5}, {3, 1}, {-7, -1}, {-1, -1},
	}
	for _, tt := range tests {
		if got := ClampAbs(tt.in, 1); got != tt.want {
			t.Errorf("ClampAbs(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := ClipValue(12, -10, 10); got != 10 {
		t.Errorf("ClipValue = %v", got)
	}
}

func TestStabilizeExp(t *testing.T) {
	if math.IsInf(StabilizeExp(1e6), 1) {
		t.Error("StabilizeExp should not overflow")
	}
	if StabilizeExp(-1e6) != 0 {
		t.Error("StabilizeExp should underflow to 0")
	}
	if StabilizeExp(1) != math.E {
		t.Error("StabilizeExp(1) should equal e")
	}
}
