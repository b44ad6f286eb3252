// Package indicator provides float64 series primitives used by the signal,
// sizing and performance stages. Every function returns a new slice aligned
// to its input; inputs are never modified.
package indicator

import "math"

// SafeDiv divides num by den. It reports false, and returns 0, when den is
// zero or either operand is not finite.
func SafeDiv(num, den float64) (float64, bool) {
	if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) || math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, false
	}
	return num / den, true
}

// RollingMean is a trailing mean over window observations with a minimum of
// one period: before the window fills, the mean covers every observation
// seen so far, so the result has no leading gaps. A window of identical
// values yields that value exactly, so equal series give equal means
// whatever the window.
func RollingMean(x []float64, window int) []float64 {
	if window <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	run := 0 // length of the run of values equal to x[i] ending at i
	for i := range x {
		if i > 0 && x[i] == x[i-1] {
			run++
		} else {
			run = 1
		}

		lo := max(0, i-window+1)
		n := i + 1 - lo
		if run >= n {
			out[i] = x[i]
			continue
		}
		var sum float64
		for _, v := range x[lo : i+1] {
			sum += v
		}
		out[i] = sum / float64(n)
	}
	return out
}

// RollingMax is the trailing maximum over a full window; NaN during warmup.
func RollingMax(x []float64, window int) []float64 {
	return rollingExtreme(x, window, math.Max)
}

// RollingMin is the trailing minimum over a full window; NaN during warmup.
func RollingMin(x []float64, window int) []float64 {
	return rollingExtreme(x, window, math.Min)
}

func rollingExtreme(x []float64, window int, pick func(a, b float64) float64) []float64 {
	if window <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	for i := range x {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		v := x[i-window+1]
		for _, w := range x[i-window+2 : i+1] {
			v = pick(v, w)
		}
		out[i] = v
	}
	return out
}

// BackFill replaces each NaN with the next defined value after it. ok is
// false when the series has no defined value at all, in which case the
// returned slice is a NaN-free copy filled with zeros.
func BackFill(x []float64) (out []float64, ok bool) {
	out = make([]float64, len(x))
	next := math.NaN()
	for i := len(x) - 1; i >= 0; i-- {
		if !math.IsNaN(x[i]) {
			next = x[i]
			ok = true
		}
		out[i] = next
	}
	if !ok {
		for i := range out {
			out[i] = 0
		}
	}
	return out, ok
}

// Diff returns x[t] - x[t-1], with 0 at t = 0.
func Diff(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		out[i] = x[i] - x[i-1]
	}
	return out
}

// EquityReturns is the daily percent change of an account value series,
// x[t]/x[t-1] - 1, with 0 at t = 0. An account at or below zero has no
// percent change, so a non-positive base yields 0. A fall from a positive
// value to zero or below loses everything and is clamped to -1. The
// compounded returns therefore stay at or above zero once the account is
// ruined instead of changing sign.
func EquityReturns(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		prev := x[i-1]
		if prev <= 0 || math.IsNaN(prev) {
			continue
		}
		if x[i] <= 0 {
			out[i] = -1
			continue
		}
		if r, ok := SafeDiv(x[i], prev); ok {
			out[i] = r - 1
		}
	}
	return out
}

// CumProd returns the running product.
func CumProd(x []float64) []float64 {
	out := make([]float64, len(x))
	acc := 1.0
	for i, v := range x {
		acc *= v
		out[i] = acc
	}
	return out
}

// CumMax returns the running maximum.
func CumMax(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if i == 0 || v > out[i-1] {
			out[i] = v
			continue
		}
		out[i] = out[i-1]
	}
	return out
}

// Mean is the arithmetic mean; 0 for an empty series.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// SampleStd is the standard deviation with one delta degree of freedom.
// Fewer than two observations yield 0.
func SampleStd(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	m := Mean(x)
	var ss float64
	for _, v := range x {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(x)-1))
}

// Min returns the smallest value; 0 for an empty series.
func Min(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := x[0]
	for _, v := range x[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
