package errors

import "math"

// zeroDivisionEps below which a denominator counts as zero.
const zeroDivisionEps = 1e-10

// CheckNumericalStability returns a NumericalInstabilityError listing the
// NaN and Inf entries of values, or nil when every value is finite.
// iteration is reported as-is; pass 0 outside iterative solvers.
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	var bad []float64
	for _, v := range values {
		if !isFinite(v) {
			bad = append(bad, v)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return NewNumericalInstabilityError(operation, bad, iteration)
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// SafeDivide returns numerator/denominator, or 0 when the denominator is
// (numerically) zero. Metrics use it for the zero_division=0 convention:
// precision of a never-predicted class, recall of an absent one.
func SafeDivide(numerator, denominator float64) float64 {
	if math.Abs(denominator) < zeroDivisionEps {
		return 0
	}
	return numerator / denominator
}

// ClipValue clamps value into [lo, hi].
func ClipValue(value, lo, hi float64) float64 {
	return math.Min(math.Max(value, lo), hi)
}
