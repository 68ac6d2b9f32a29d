// Package indicators implements the rolling indicator library used by the
// regime classifier and the signal generators.
//
// Every function returns a series index-aligned with its input. A value is
// NaN until its rolling window holds enough defined observations, and any
// NaN inside a window makes the output NaN. Division by zero yields NaN,
// never Inf. NaN is the undefined marker throughout; coercion to zero
// happens only at consumer boundaries, never here.
package indicators

import "math"

// TradingDays is the annualization factor for daily series.
const TradingDays = 252

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// safeDiv returns a/b, with a zero denominator mapped to NaN.
func safeDiv(a, b float64) float64 {
	if b == 0 {
		return math.NaN()
	}
	return a / b
}

// rollingMean computes the mean over the trailing window. The output is
// NaN until the window is filled and whenever the window contains a NaN.
func rollingMean(src []float64, window int) []float64 {
	out := nans(len(src))
	if window < 1 {
		return out
	}
	for i := window - 1; i < len(src); i++ {
		sum := 0.0
		defined := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(src[j]) {
				defined = false
				break
			}
			sum += src[j]
		}
		if defined {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// rollingStd computes the trailing-window standard deviation with the
// given delta degrees of freedom (0 for population, 1 for sample).
func rollingStd(src []float64, window, ddof int) []float64 {
	out := nans(len(src))
	if window < 1 || window-ddof < 1 {
		return out
	}
	for i := window - 1; i < len(src); i++ {
		sum := 0.0
		defined := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(src[j]) {
				defined = false
				break
			}
			sum += src[j]
		}
		if !defined {
			continue
		}
		mean := sum / float64(window)
		ss := 0.0
		for j := i - window + 1; j <= i; j++ {
			d := src[j] - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(window-ddof))
	}
	return out
}

// DailyReturns computes simple returns close[t]/close[t-1] - 1. The first
// entry is 0 by definition.
func DailyReturns(closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		out[i] = safeDiv(closes[i]-closes[i-1], closes[i-1])
	}
	return out
}

// SMA computes the simple moving average over the window.
func SMA(values []float64, window int) []float64 {
	return rollingMean(values, window)
}

// RollingStd computes the rolling sample standard deviation over the
// window.
func RollingStd(values []float64, window int) []float64 {
	return rollingStd(values, window, 1)
}

// ZScore computes (x - mean) / std over the trailing window, using the
// population standard deviation. A zero standard deviation makes the score
// undefined.
func ZScore(values []float64, window int) []float64 {
	mean := rollingMean(values, window)
	std := rollingStd(values, window, 0)
	out := nans(len(values))
	for i := range values {
		if math.IsNaN(mean[i]) || math.IsNaN(std[i]) {
			continue
		}
		out[i] = safeDiv(values[i]-mean[i], std[i])
	}
	return out
}

// EMA computes the exponential moving average with the given span, in the
// weighted full-history form, so early values average everything seen so
// far instead of overweighting the first observation. Defined from the
// first element. The input must not contain NaN.
func EMA(values []float64, span int) []float64 {
	out := nans(len(values))
	if span < 1 || len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1)
	num := 0.0
	den := 0.0
	for i, v := range values {
		num = v + (1-alpha)*num
		den = 1 + (1-alpha)*den
		out[i] = num / den
	}
	return out
}

// AnnualizedVol computes the annualized sample standard deviation of the
// last `lookback` entries of a return series. It returns NaN when fewer
// than two defined returns are available.
func AnnualizedVol(returns []float64, lookback int) float64 {
	if lookback < 1 {
		return math.NaN()
	}
	start := len(returns) - lookback
	if start < 0 {
		start = 0
	}
	tail := make([]float64, 0, lookback)
	for _, r := range returns[start:] {
		if !math.IsNaN(r) {
			tail = append(tail, r)
		}
	}
	if len(tail) < 2 {
		return math.NaN()
	}
	mean := 0.0
	for _, r := range tail {
		mean += r
	}
	mean /= float64(len(tail))
	ss := 0.0
	for _, r := range tail {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss/float64(len(tail)-1)) * math.Sqrt(TradingDays)
}
