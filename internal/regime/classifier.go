// Package regime classifies the prevailing market regime from daily bars.
package regime

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/tradeforge/quant-backend/internal/indicators"
	"github.com/tradeforge/quant-backend/internal/strategy"
	"github.com/tradeforge/quant-backend/pkg/types"
)

// Regime identifies a market regime.
type Regime string

const (
	TrendingUp     Regime = "trending_up"
	TrendingDown   Regime = "trending_down"
	Ranging        Regime = "ranging"
	HighVolatility Regime = "high_volatility"
	LowVolatility  Regime = "low_volatility"
)

// State is the classified regime with its supporting measurements, all
// taken at the final bar of the series.
type State struct {
	Regime         Regime  `json:"regime"`
	Volatility     float64 `json:"volatility"`
	TrendStrength  float64 `json:"trend_strength"`
	ADX            float64 `json:"adx"`
	ATR            float64 `json:"atr"`
	BollingerWidth float64 `json:"bollinger_width"`
	IsBullish      bool    `json:"is_bullish"`
	IsBearish      bool    `json:"is_bearish"`
}

// Config holds the classifier windows and thresholds.
type Config struct {
	Lookback            int
	ADXWindow           int
	BollingerWindow     int
	BollingerStd        float64
	ShortMAWindow       int
	LongMAWindow        int
	VolatilityThreshold float64
	TrendThreshold      float64
}

// DefaultConfig returns the default classifier settings.
func DefaultConfig() Config {
	return Config{
		Lookback:            20,
		ADXWindow:           14,
		BollingerWindow:     20,
		BollingerStd:        2.0,
		ShortMAWindow:       20,
		LongMAWindow:        60,
		VolatilityThreshold: 0.30,
		TrendThreshold:      0.50,
	}
}

// Classifier classifies market regimes from a bar series.
type Classifier struct {
	logger *zap.Logger
	config Config
}

// NewClassifier creates a regime classifier.
func NewClassifier(logger *zap.Logger, config Config) *Classifier {
	return &Classifier{
		logger: logger.Named("regime"),
		config: config,
	}
}

// MinBars returns the shortest series the classifier accepts, set by its
// longest rolling window.
func (c *Classifier) MinBars() int {
	min := c.config.LongMAWindow
	if v := 2 * c.config.ADXWindow; v > min {
		min = v
	}
	if v := c.config.BollingerWindow; v > min {
		min = v
	}
	if v := c.config.Lookback + 1; v > min {
		min = v
	}
	return min
}

// Classify computes the regime state at the final bar. Series shorter than
// MinBars are rejected rather than classified from unfilled windows.
func (c *Classifier) Classify(bars *types.BarSeries) (*State, error) {
	if bars.Len() < c.MinBars() {
		return nil, fmt.Errorf("%w: regime classification needs %d bars, have %d",
			types.ErrInsufficientData, c.MinBars(), bars.Len())
	}

	closes := bars.Closes()
	highs := bars.Highs()
	lows := bars.Lows()
	n := len(closes)

	rets := indicators.DailyReturns(closes)
	vol := orZero(indicators.AnnualizedVol(rets, c.config.Lookback))
	adx := orZero(lastOf(indicators.ADX(highs, lows, closes, c.config.ADXWindow)))
	atr := orZero(lastOf(indicators.ATR(highs, lows, closes, c.config.ADXWindow)))
	_, _, _, width := indicators.Bollinger(closes, c.config.BollingerWindow, c.config.BollingerStd)

	maShort := lastOf(indicators.SMA(closes, c.config.ShortMAWindow))
	maLong := lastOf(indicators.SMA(closes, c.config.LongMAWindow))
	price := closes[n-1]

	// NaN comparisons are false, so an undefined average never claims a trend.
	isBullish := maShort > maLong && price > maShort
	isBearish := maShort < maLong && price < maShort

	trend := math.Min(adx/25, 1)

	state := &State{
		Regime:         c.decide(trend, vol, isBullish, isBearish),
		Volatility:     vol,
		TrendStrength:  trend,
		ADX:            adx,
		ATR:            atr,
		BollingerWidth: orZero(width[n-1]),
		IsBullish:      isBullish,
		IsBearish:      isBearish,
	}

	c.logger.Debug("classified regime",
		zap.String("symbol", bars.Symbol),
		zap.String("regime", string(state.Regime)),
		zap.Float64("volatility", vol),
		zap.Float64("trend_strength", trend))

	return state, nil
}

func (c *Classifier) decide(trend, vol float64, bullish, bearish bool) Regime {
	if trend > c.config.TrendThreshold {
		switch {
		case bullish:
			return TrendingUp
		case bearish:
			return TrendingDown
		default:
			return Ranging
		}
	}
	if vol > c.config.VolatilityThreshold {
		return HighVolatility
	}
	return LowVolatility
}

// RecommendedStrategy maps a regime to the strategy family suited to it:
// momentum in trends and quiet markets, mean reversion in ranges and
// volatile markets.
func RecommendedStrategy(r Regime) strategy.Kind {
	switch r {
	case TrendingUp, TrendingDown:
		return strategy.KindMomentum
	case Ranging, HighVolatility:
		return strategy.KindMeanReversion
	default:
		return strategy.KindMomentum
	}
}

func lastOf(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// orZero coerces an undefined measurement to zero. This is the documented
// reporting boundary; the indicator library itself never coerces.
func orZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
