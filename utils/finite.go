package utils

import "math"

// IsFinite は NaN と ±Inf 以外なら true を返します。
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func FiniteVec(x, y float64) bool {
	return IsFinite(x) && IsFinite(y)
}

// FiniteOr は f が有限でなければ fallback を返します。
func FiniteOr(f, fallback float64) float64 {
	if !IsFinite(f) {
		return fallback
	}
	return f
}
