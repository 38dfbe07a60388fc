package errors

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// HasNonFinite reports whether any element of v is NaN or ±Inf.
func HasNonFinite(v mat.Vector) bool {
	for i := 0; i < v.Len(); i++ {
		if !IsFinite(v.AtVec(i)) {
			return true
		}
	}
	return false
}

// CheckNumericalStability checks if values contain NaN or Inf
// and returns an error if numerical instability is detected.
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	for _, v := range values {
		if !IsFinite(v) {
			return NewNumericalInstabilityError(operation, values, iteration)
		}
	}
	return nil
}

// CheckScalar checks a single scalar value for numerical instability.
func CheckScalar(operation string, value float64, iteration int) error {
	if !IsFinite(value) {
		return NewNumericalInstabilityError(operation, []float64{value}, iteration)
	}
	return nil
}

// CheckVector collects the first non-finite entries of v (at most 10) into a
// NumericalInstabilityError. Returns nil when v is clean.
func CheckVector(operation string, v mat.Vector, iteration int, ctx map[string]interface{}) error {
	var unstable []float64
	for i := 0; i < v.Len() && len(unstable) < 10; i++ {
		if x := v.AtVec(i); !IsFinite(x) {
			unstable = append(unstable, x)
		}
	}
	if len(unstable) == 0 {
		return nil
	}
	return NewNumericalInstabilityErrorWithContext(operation, unstable, iteration, ctx)
}

// ClipValue clips a value to the range [min, max].
func ClipValue(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampAbs limits |value| to maxAbs, keeping the sign.
func ClampAbs(value, maxAbs float64) float64 {
	if math.Abs(value) > maxAbs {
		return math.Copysign(maxAbs, value)
	}
	return value
}

// ClipNorm rescales g in place so that its L2 norm does not exceed maxNorm.
// It returns the norm before clipping.
func ClipNorm(g []float64, maxNorm float64) float64 {
	norm := floats.Norm(g, 2)
	if norm > maxNorm {
		floats.Scale(maxNorm/norm, g)
	}
	return norm
}

// StabilizeExp computes exp with protection against overflow.
// Clips the input to prevent exp from returning Inf.
func StabilizeExp(value float64) float64 {
	const maxExp = 700.0 // exp(700) is close to the maximum float64
	if value > maxExp {
		return math.Exp(maxExp)
	}
	if value < -maxExp {
		return 0
	}
	return math.Exp(value)
}
