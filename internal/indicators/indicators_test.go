package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeforge/quant-backend/pkg/types"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestDailyReturns(t *testing.T) {
	rets := DailyReturns([]float64{100, 110, 99})

	if rets[0] != 0 {
		t.Errorf("first return = %v, want 0", rets[0])
	}
	if !almostEqual(rets[1], 0.10, 1e-12) {
		t.Errorf("rets[1] = %v, want 0.10", rets[1])
	}
	if !almostEqual(rets[2], -0.10, 1e-12) {
		t.Errorf("rets[2] = %v, want -0.10", rets[2])
	}
}

func TestSMAWindowFill(t *testing.T) {
	sma := SMA([]float64{1, 2, 3, 4, 5}, 3)

	for i := 0; i < 2; i++ {
		if !math.IsNaN(sma[i]) {
			t.Errorf("sma[%d] = %v, want NaN before the window fills", i, sma[i])
		}
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !almostEqual(sma[i+2], w, 1e-12) {
			t.Errorf("sma[%d] = %v, want %v", i+2, sma[i+2], w)
		}
	}
}

func TestSMAPropagatesUndefined(t *testing.T) {
	src := []float64{1, 2, math.NaN(), 4, 5, 6}
	sma := SMA(src, 2)

	if !math.IsNaN(sma[2]) || !math.IsNaN(sma[3]) {
		t.Errorf("windows containing NaN must be NaN, got sma[2]=%v sma[3]=%v", sma[2], sma[3])
	}
	if !almostEqual(sma[4], 4.5, 1e-12) {
		t.Errorf("sma[4] = %v, want 4.5 once the window clears the NaN", sma[4])
	}
}

func TestZScoreWindowInvariant(t *testing.T) {
	src := make([]float64, 30)
	for i := range src {
		// Non-degenerate series so the window std never collapses to zero.
		src[i] = 100 + float64(i%7) + 0.1*float64(i)
	}
	window := 20
	z := ZScore(src, window)

	for i := 0; i < window-1; i++ {
		if !math.IsNaN(z[i]) {
			t.Errorf("z[%d] = %v, want NaN before index %d", i, z[i], window-1)
		}
	}
	for i := window - 1; i < len(src); i++ {
		if math.IsNaN(z[i]) {
			t.Errorf("z[%d] is NaN, want defined once the window fills", i)
		}
	}
}

func TestZScoreUsesPopulationStd(t *testing.T) {
	z := ZScore([]float64{1, 2, 3}, 3)

	// mean 2, population std sqrt(2/3); (3-2)/0.81650 = 1.22474.
	if !almostEqual(z[2], 1.224744871, 1e-6) {
		t.Errorf("z[2] = %v, want 1.224745", z[2])
	}
}

func TestZScoreZeroVarianceUndefined(t *testing.T) {
	z := ZScore([]float64{5, 5, 5, 5}, 3)

	for i := 2; i < 4; i++ {
		if !math.IsNaN(z[i]) {
			t.Errorf("z[%d] = %v, want NaN when the window std is zero", i, z[i])
		}
	}
}

func TestRollingStdIsSample(t *testing.T) {
	std := RollingStd([]float64{1, 2, 3, 4}, 4)

	// mean 2.5, sum of squares 5, sample std sqrt(5/3).
	if !almostEqual(std[3], math.Sqrt(5.0/3.0), 1e-12) {
		t.Errorf("std[3] = %v, want %v", std[3], math.Sqrt(5.0/3.0))
	}
}

func TestEMAWeightedForm(t *testing.T) {
	ema := EMA([]float64{1, 2}, 2)

	if !almostEqual(ema[0], 1, 1e-12) {
		t.Errorf("ema[0] = %v, want 1", ema[0])
	}
	// span 2: weights 1/3 and 1 over the first two observations.
	if !almostEqual(ema[1], 1.75, 1e-12) {
		t.Errorf("ema[1] = %v, want 1.75", ema[1])
	}
}

func TestRSIBounds(t *testing.T) {
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = float64(i)
	}
	window := 3
	rsi := RSI(rising, window)

	for i := 0; i < window; i++ {
		if !math.IsNaN(rsi[i]) {
			t.Errorf("rsi[%d] = %v, want NaN before index %d", i, rsi[i], window)
		}
	}
	for i := window; i < len(rising); i++ {
		if rsi[i] < 99.9 || rsi[i] > 100 {
			t.Errorf("rsi[%d] = %v, want near 100 on an all-gain series", i, rsi[i])
		}
	}

	falling := make([]float64, 20)
	for i := range falling {
		falling[i] = float64(100 - i)
	}
	rsi = RSI(falling, window)
	for i := window; i < len(falling); i++ {
		if rsi[i] < 0 || rsi[i] > 0.1 {
			t.Errorf("rsi[%d] = %v, want near 0 on an all-loss series", i, rsi[i])
		}
	}
}

func TestTrueRangeFirstBar(t *testing.T) {
	highs := []float64{105, 112}
	lows := []float64{95, 104}
	closes := []float64{100, 110}

	tr := TrueRange(highs, lows, closes)
	if !almostEqual(tr[0], 10, 1e-12) {
		t.Errorf("tr[0] = %v, want high-low fallback 10", tr[0])
	}
	// max(112-104, |112-100|, |104-100|) = 12.
	if !almostEqual(tr[1], 12, 1e-12) {
		t.Errorf("tr[1] = %v, want 12", tr[1])
	}
}

func TestADXSteadyUptrend(t *testing.T) {
	n := 60
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 100 + float64(i)
		highs[i] = closes[i] + 0.5
		lows[i] = closes[i] - 0.5
	}
	adx := ADX(highs, lows, closes, 14)

	// Only upward movement: -DM is zero throughout, so DX and ADX pin at 100.
	last := adx[n-1]
	if math.IsNaN(last) || !almostEqual(last, 100, 1e-9) {
		t.Errorf("adx on a steady uptrend = %v, want 100", last)
	}
}

func TestADXFlatPriceStaysUndefined(t *testing.T) {
	n := 60
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i], lows[i], closes[i] = 100, 100, 100
	}
	adx := ADX(highs, lows, closes, 14)

	// Zero true range means a zero DX denominator; undefined must propagate
	// instead of turning into Inf or a fabricated zero.
	if !math.IsNaN(adx[n-1]) {
		t.Errorf("adx on a flat series = %v, want NaN", adx[n-1])
	}
}

func TestMACDFlatSeries(t *testing.T) {
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 50
	}
	macd, signal := MACD(flat, 12, 26, 9)

	for i := range flat {
		if !almostEqual(macd[i], 0, 1e-9) || !almostEqual(signal[i], 0, 1e-9) {
			t.Fatalf("macd[%d]=%v signal[%d]=%v, want 0 on a flat series", i, macd[i], i, signal[i])
		}
	}
}

func TestBollingerKnownWindow(t *testing.T) {
	upper, mid, lower, width := Bollinger([]float64{1, 2, 3, 4, 5}, 3, 2)

	// Window [1,2,3]: mid 2, sample std 1.
	if !almostEqual(mid[2], 2, 1e-12) {
		t.Errorf("mid[2] = %v, want 2", mid[2])
	}
	if !almostEqual(upper[2], 4, 1e-12) {
		t.Errorf("upper[2] = %v, want 4", upper[2])
	}
	if !almostEqual(lower[2], 0, 1e-12) {
		t.Errorf("lower[2] = %v, want 0", lower[2])
	}
	if !almostEqual(width[2], 2, 1e-12) {
		t.Errorf("width[2] = %v, want 2", width[2])
	}
}

func TestAnnualizedVol(t *testing.T) {
	rets := []float64{0.01, -0.01, 0.01, -0.01}
	got := AnnualizedVol(rets, 4)

	// mean 0, sample variance 4e-4/3.
	want := math.Sqrt(4e-4/3.0) * math.Sqrt(252)
	if !almostEqual(got, want, 1e-9) {
		t.Errorf("vol = %v, want %v", got, want)
	}

	if !math.IsNaN(AnnualizedVol([]float64{0.01}, 4)) {
		t.Error("vol over a single return should be undefined")
	}
}

func sampleBars(n int) *types.BarSeries {
	bars := make([]types.Bar, n)
	base := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := 100 + float64(i)*0.5 + 3*math.Sin(float64(i)/5)
		bars[i] = types.Bar{
			Date:     base.AddDate(0, 0, i),
			Open:     decimal.NewFromFloat(price - 0.2),
			High:     decimal.NewFromFloat(price + 1),
			Low:      decimal.NewFromFloat(price - 1),
			Close:    decimal.NewFromFloat(price),
			AdjClose: decimal.NewFromFloat(price),
			Volume:   decimal.NewFromInt(1_000_000),
		}
	}
	return types.NewBarSeries("TEST", bars)
}

func TestSnapshotIsFinite(t *testing.T) {
	fs := Snapshot(sampleBars(80))

	checks := map[string]float64{
		"close":     fs.Close,
		"sma_20":    fs.SMA20,
		"sma_60":    fs.SMA60,
		"rsi_14":    fs.RSI14,
		"adx_14":    fs.ADX14,
		"atr_14":    fs.ATR14,
		"boll_mid":  fs.BollingerMid,
		"vol":       fs.Volatility,
		"macd_hist": fs.MACDHist,
	}
	for name, v := range checks {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s = %v, want finite", name, v)
		}
	}
	if fs.SMA20 <= 0 || fs.SMA60 <= 0 {
		t.Errorf("moving averages should be positive, got sma20=%v sma60=%v", fs.SMA20, fs.SMA60)
	}
	if fs.RSI14 < 0 || fs.RSI14 > 100 {
		t.Errorf("rsi_14 = %v, want within [0, 100]", fs.RSI14)
	}
}
