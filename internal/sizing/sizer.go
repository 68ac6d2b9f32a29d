// Package sizing implements the position sizing methods.
//
// The methods are stateless functions over evaluation products. Each one
// documents inputs for which it returns 0; those zeros are successful
// outputs meaning "do not size up", never errors.
package sizing

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/tradeforge/quant-backend/internal/indicators"
	"github.com/tradeforge/quant-backend/pkg/types"
)

// Known sizing method names.
const (
	MethodKelly               = "kelly"
	MethodRiskParity          = "risk_parity"
	MethodVolatilityTargeting = "volatility_targeting"
	MethodFixedFractional     = "fixed_fractional"
)

// Kelly sizes by the fractional Kelly criterion. It returns 0 when the
// average loss is zero or the win rate is non-positive; otherwise the raw
// Kelly fraction is clipped to [0, 0.5] and scaled down by the configured
// fraction.
func Kelly(winRate, avgWin, avgLoss, fraction float64) float64 {
	if avgLoss == 0 || winRate <= 0 {
		return 0
	}
	b := avgWin / math.Abs(avgLoss)
	if b <= 0 {
		return 0
	}
	kelly := (winRate*b - (1 - winRate)) / b
	return clip(kelly, 0, 0.5) * fraction
}

// RiskParity sizes inversely to volatility toward the target. It returns 0
// for non-positive volatility.
func RiskParity(volatility, targetVol, maxPosition float64) float64 {
	if volatility <= 0 {
		return 0
	}
	return math.Min(targetVol/volatility, maxPosition)
}

// VolatilityTarget sizes against the realized annualized volatility of the
// trailing lookback returns. It returns 0 when fewer returns than the
// lookback exist or the realized volatility is not positive.
func VolatilityTarget(returns []float64, lookback int, targetVol, maxPosition float64) float64 {
	if len(returns) < lookback {
		return 0
	}
	realized := indicators.AnnualizedVol(returns, lookback)
	if math.IsNaN(realized) || realized <= 0 {
		return 0
	}
	return math.Min(targetVol/realized, maxPosition)
}

// FixedFractional risks a fixed account fraction against the stop
// distance. It returns 0 for a non-positive stop.
func FixedFractional(riskPerTrade, stopLossPct, maxPosition float64) float64 {
	if stopLossPct <= 0 {
		return 0
	}
	return math.Min(riskPerTrade/stopLossPct, maxPosition)
}

// Inputs carries the evaluation products the methods draw on.
type Inputs struct {
	WinRate    float64
	AvgWin     float64
	AvgLoss    float64
	Volatility float64   // annualized, from the regime state
	Returns    []float64 // net daily returns from the simulation
}

// Sizer applies the configured sizing method.
type Sizer struct {
	logger *zap.Logger
	config types.SizingConfig
}

// New resolves the configured method. Unknown names and out-of-domain
// parameters for the chosen method fail here, at parse time.
func New(logger *zap.Logger, config types.SizingConfig) (*Sizer, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return &Sizer{logger: logger.Named("sizing"), config: config}, nil
}

// ValidateConfig checks a sizing selection without building a sizer.
func ValidateConfig(config types.SizingConfig) error {
	switch config.Method {
	case MethodKelly:
		if config.KellyFraction <= 0 || config.KellyFraction > 1 {
			return fmt.Errorf("%w: kelly_fraction must be in (0, 1], got %v",
				types.ErrInvalidConfig, config.KellyFraction)
		}
	case MethodRiskParity:
		if config.TargetVolatility <= 0 {
			return fmt.Errorf("%w: target_volatility must be positive, got %v",
				types.ErrInvalidConfig, config.TargetVolatility)
		}
	case MethodVolatilityTargeting:
		if config.TargetVolatility <= 0 {
			return fmt.Errorf("%w: target_volatility must be positive, got %v",
				types.ErrInvalidConfig, config.TargetVolatility)
		}
		if config.Lookback <= 0 {
			return fmt.Errorf("%w: lookback must be positive, got %d",
				types.ErrInvalidConfig, config.Lookback)
		}
	case MethodFixedFractional:
		// stop_loss_pct <= 0 is covered by the method's documented zero
		// fallback, not rejected here.
		if config.RiskPerTrade <= 0 {
			return fmt.Errorf("%w: risk_per_trade must be positive, got %v",
				types.ErrInvalidConfig, config.RiskPerTrade)
		}
	default:
		return fmt.Errorf("%w: unknown sizing method %q", types.ErrInvalidConfig, config.Method)
	}
	if config.Method != MethodKelly && (config.MaxPosition <= 0 || config.MaxPosition > 1) {
		return fmt.Errorf("%w: max_position must be in (0, 1], got %v",
			types.ErrInvalidConfig, config.MaxPosition)
	}
	return nil
}

// Method returns the configured method name.
func (s *Sizer) Method() string {
	return s.config.Method
}

// Size computes the position fraction for the given inputs.
func (s *Sizer) Size(in Inputs) float64 {
	var size float64
	switch s.config.Method {
	case MethodKelly:
		size = Kelly(in.WinRate, in.AvgWin, in.AvgLoss, s.config.KellyFraction)
	case MethodRiskParity:
		size = RiskParity(in.Volatility, s.config.TargetVolatility, s.config.MaxPosition)
	case MethodVolatilityTargeting:
		size = VolatilityTarget(in.Returns, s.config.Lookback, s.config.TargetVolatility, s.config.MaxPosition)
	case MethodFixedFractional:
		size = FixedFractional(s.config.RiskPerTrade, s.config.StopLossPct, s.config.MaxPosition)
	}

	s.logger.Debug("position size computed",
		zap.String("method", s.config.Method),
		zap.Float64("size", size))
	return size
}

func clip(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
