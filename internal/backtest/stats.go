package backtest

import (
	"fmt"
	"math"

	"github.com/tradeforge/quant-backend/internal/indicators"
	"github.com/tradeforge/quant-backend/pkg/types"
)

// Stats is the named summary-statistics mapping for a simulated run.
type Stats struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualReturn     float64 `json:"annual_return"`
	AnnualVolatility float64 `json:"annual_volatility"`
	Sharpe           float64 `json:"sharpe"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	NumDays          int     `json:"num_days"`
}

// Metric returns a statistic by its mapping name, for optimizer target
// selection.
func (s Stats) Metric(name string) (float64, error) {
	switch name {
	case "total_return":
		return s.TotalReturn, nil
	case "annual_return":
		return s.AnnualReturn, nil
	case "annual_volatility":
		return s.AnnualVolatility, nil
	case "sharpe":
		return s.Sharpe, nil
	case "max_drawdown":
		return s.MaxDrawdown, nil
	default:
		return 0, fmt.Errorf("%w: unknown metric %q", types.ErrInvalidConfig, name)
	}
}

func computeStats(equity, net []float64) Stats {
	n := len(equity)
	st := Stats{NumDays: n}
	if n == 0 {
		return st
	}

	// The single-bar total return is 0 by definition, not a ratio of one
	// point to itself.
	if n > 1 {
		st.TotalReturn = equity[n-1]/equity[0] - 1
	}
	st.AnnualReturn = math.Pow(1+st.TotalReturn, indicators.TradingDays/float64(n)) - 1
	st.AnnualVolatility = sampleStd(net) * math.Sqrt(indicators.TradingDays)
	if st.AnnualVolatility > 0 {
		st.Sharpe = st.AnnualReturn / st.AnnualVolatility
	}
	st.MaxDrawdown = maxDrawdown(equity)
	return st
}

// sampleStd computes the sample standard deviation, 0 when fewer than two
// observations exist.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// maxDrawdown returns the most negative peak-to-trough ratio of the equity
// curve, as a non-positive fraction.
func maxDrawdown(equity []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		dd := e/peak - 1
		if dd < worst {
			worst = dd
		}
	}
	return worst
}
