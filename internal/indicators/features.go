package indicators

import (
	"math"

	"github.com/tradeforge/quant-backend/pkg/types"
)

// FeatureSet is the last-row value of every library indicator at
// conventional windows, for reports and the analysis API. Undefined values
// are reported as 0 so the snapshot stays JSON-encodable.
type FeatureSet struct {
	Close          float64 `json:"close"`
	Return         float64 `json:"return"`
	SMA20          float64 `json:"sma_20"`
	SMA60          float64 `json:"sma_60"`
	EMA12          float64 `json:"ema_12"`
	ZScore20       float64 `json:"zscore_20"`
	RSI14          float64 `json:"rsi_14"`
	MACD           float64 `json:"macd"`
	MACDSignal     float64 `json:"macd_signal"`
	MACDHist       float64 `json:"macd_hist"`
	ATR14          float64 `json:"atr_14"`
	ADX14          float64 `json:"adx_14"`
	BollingerUpper float64 `json:"bollinger_upper"`
	BollingerMid   float64 `json:"bollinger_mid"`
	BollingerLower float64 `json:"bollinger_lower"`
	BollingerWidth float64 `json:"bollinger_width"`
	Volatility     float64 `json:"volatility"`
}

// Snapshot evaluates the indicator library over the series and returns the
// final row.
func Snapshot(bars *types.BarSeries) *FeatureSet {
	closes := bars.Closes()
	highs := bars.Highs()
	lows := bars.Lows()
	n := len(closes)
	if n == 0 {
		return &FeatureSet{}
	}

	rets := DailyReturns(closes)
	macd, signal := MACD(closes, 12, 26, 9)
	upper, mid, lower, width := Bollinger(closes, 20, 2)

	last := func(series []float64) float64 {
		v := series[n-1]
		if math.IsNaN(v) {
			return 0
		}
		return v
	}
	scalar := func(v float64) float64 {
		if math.IsNaN(v) {
			return 0
		}
		return v
	}

	return &FeatureSet{
		Close:          last(closes),
		Return:         last(rets),
		SMA20:          last(SMA(closes, 20)),
		SMA60:          last(SMA(closes, 60)),
		EMA12:          last(EMA(closes, 12)),
		ZScore20:       last(ZScore(closes, 20)),
		RSI14:          last(RSI(closes, 14)),
		MACD:           last(macd),
		MACDSignal:     last(signal),
		MACDHist:       scalar(macd[n-1] - signal[n-1]),
		ATR14:          last(ATR(highs, lows, closes, 14)),
		ADX14:          last(ADX(highs, lows, closes, 14)),
		BollingerUpper: last(upper),
		BollingerMid:   last(mid),
		BollingerLower: last(lower),
		BollingerWidth: last(width),
		Volatility:     scalar(AnnualizedVol(rets, 20)),
	}
}
