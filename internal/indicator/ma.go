// Package indicator provides vectorized technical indicators. Every function
// returns a slice aligned to its input with NaN for warm-up rows.
package indicator

import "math"

// SMA over the last p points; NaN until p points are available. Any NaN inside
// the window makes that output NaN. Each window is summed afresh so that equal
// inputs always give bit-identical means.
func SMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	for i := range x {
		if i < p-1 {
			out[i] = math.NaN()
			continue
		}
		var sum float64
		for j := i - p + 1; j <= i; j++ {
			sum += x[j]
		}
		// NaN propagates through the sum.
		out[i] = sum / float64(p)
	}
	return out
}

// RollingStd is the sample standard deviation over the last p points.
func RollingStd(x []float64, p int) []float64 {
	if p <= 1 {
		return nil
	}
	mean := SMA(x, p)
	out := make([]float64, len(x))
	for i := range x {
		if math.IsNaN(mean[i]) {
			out[i] = math.NaN()
			continue
		}
		var ss float64
		for j := i - p + 1; j <= i; j++ {
			d := x[j] - mean[i]
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(p-1))
	}
	return out
}

// Sign returns -1, 0 or +1 for each element, NaN stays NaN.
func Sign(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		switch {
		case math.IsNaN(v):
			out[i] = math.NaN()
		case v > 0:
			out[i] = 1
		case v < 0:
			out[i] = -1
		default:
			out[i] = 0
		}
	}
	return out
}
