package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FlatTolerance is the spread, relative to the largest magnitude, at or below
// which a series is treated as constant. Correlation against a constant
// series is undefined.
const FlatTolerance = 1e-12

// Pearson returns the Pearson correlation coefficient between x and y.
//
// References:
//   - Pearson, K. (1895). "Notes on regression and inheritance in the case of
//     two parents". Proceedings of the Royal Society of London, 58, 240-242
//
// The second return value is false when the coefficient is undefined: the
// series differ in length, are empty, or either one has (numerically) zero
// variance. Callers must not use the coefficient in that case.
func Pearson(x, y []float64) (float64, bool) {
	if len(x) != len(y) || len(x) < 2 {
		return math.NaN(), false
	}

	if isFlat(x) || isFlat(y) {
		return math.NaN(), false
	}

	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return math.NaN(), false
	}

	// rounding can push a perfect match a hair outside [-1, 1]
	return math.Max(-1, math.Min(1, r)), true
}

// isFlat reports whether x is constant up to rounding or holds non-finite
// values. The test is relative so that scaling a series never changes it.
func isFlat(x []float64) bool {
	if floats.HasNaN(x) {
		return true
	}
	hi, lo := floats.Max(x), floats.Min(x)
	if math.IsInf(hi, 0) || math.IsInf(lo, 0) {
		return true
	}
	return hi-lo <= FlatTolerance*math.Max(math.Abs(hi), math.Abs(lo))
}
