package indicators

import "math"

// TrueRange computes the bar-to-bar true range. At index 0, where no
// previous close exists, it falls back to high - low.
func TrueRange(highs, lows, closes []float64) []float64 {
	out := nans(len(highs))
	for i := range highs {
		hl := highs[i] - lows[i]
		if i == 0 {
			out[i] = hl
			continue
		}
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR computes the rolling mean of the true range.
func ATR(highs, lows, closes []float64, window int) []float64 {
	return rollingMean(TrueRange(highs, lows, closes), window)
}

// ADX computes the average directional index from rolling means of the raw
// directional movements over the rolling true range. Up and down movements
// are kept independently even when both are positive, and a zero
// directional-index denominator stays undefined through the final rolling
// mean.
func ADX(highs, lows, closes []float64, window int) []float64 {
	n := len(highs)
	tr := TrueRange(highs, lows, closes)

	plusDM := nans(n)
	minusDM := nans(n)
	for i := 1; i < n; i++ {
		plusDM[i] = math.Max(highs[i]-highs[i-1], 0)
		minusDM[i] = math.Max(lows[i-1]-lows[i], 0)
	}

	atr := rollingMean(tr, window)
	plusDI := nans(n)
	minusDI := nans(n)
	for i := 0; i < n; i++ {
		p := rollingMeanAt(plusDM, window, i)
		m := rollingMeanAt(minusDM, window, i)
		if math.IsNaN(p) || math.IsNaN(m) || math.IsNaN(atr[i]) {
			continue
		}
		plusDI[i] = 100 * safeDiv(p, atr[i])
		minusDI[i] = 100 * safeDiv(m, atr[i])
	}

	dx := nans(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(plusDI[i]) || math.IsNaN(minusDI[i]) {
			continue
		}
		dx[i] = 100 * safeDiv(math.Abs(plusDI[i]-minusDI[i]), plusDI[i]+minusDI[i])
	}
	return rollingMean(dx, window)
}

// rollingMeanAt computes the trailing-window mean ending at index i, NaN
// when the window is unfilled or contains a NaN.
func rollingMeanAt(src []float64, window, i int) float64 {
	if window < 1 || i < window-1 {
		return math.NaN()
	}
	sum := 0.0
	for j := i - window + 1; j <= i; j++ {
		if math.IsNaN(src[j]) {
			return math.NaN()
		}
		sum += src[j]
	}
	return sum / float64(window)
}

// RSI computes the relative strength index from rolling means of gains and
// losses. A small epsilon keeps the loss denominator non-zero, so flat or
// all-gain windows score near 100 instead of going undefined.
func RSI(values []float64, window int) []float64 {
	n := len(values)
	gains := nans(n)
	losses := nans(n)
	for i := 1; i < n; i++ {
		d := values[i] - values[i-1]
		gains[i] = math.Max(d, 0)
		losses[i] = math.Max(-d, 0)
	}

	avgGain := rollingMean(gains, window)
	avgLoss := rollingMean(losses, window)
	out := nans(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) {
			continue
		}
		rs := avgGain[i] / (avgLoss[i] + 1e-8)
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACD computes the EMA(fast) - EMA(slow) line and its EMA(signal) line.
// Both are defined from the first element.
func MACD(values []float64, fast, slow, signal int) (macd, signalLine []float64) {
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)
	macd = make([]float64, len(values))
	for i := range values {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	return macd, EMA(macd, signal)
}

// Bollinger computes the middle band (SMA), the upper and lower bands at k
// sample standard deviations, and the relative band width
// (upper-lower)/mid.
func Bollinger(values []float64, window int, k float64) (upper, mid, lower, width []float64) {
	mid = rollingMean(values, window)
	std := rollingStd(values, window, 1)
	n := len(values)
	upper = nans(n)
	lower = nans(n)
	width = nans(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(mid[i]) || math.IsNaN(std[i]) {
			continue
		}
		upper[i] = mid[i] + k*std[i]
		lower[i] = mid[i] - k*std[i]
		width[i] = safeDiv(upper[i]-lower[i], mid[i])
	}
	return upper, mid, lower, width
}
