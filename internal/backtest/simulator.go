// Package backtest implements the vectorized daily simulator, the summary
// statistics, and the trade analyzer.
package backtest

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tradeforge/quant-backend/pkg/types"
)

// Result holds the aligned output series and summary statistics of one
// simulated run.
type Result struct {
	// Targets is the exposure decided at each bar from that bar's signal.
	Targets []float64 `json:"targets"`
	// Positions is the exposure actually held during each bar. Execution
	// lags the signal by one bar, so Positions[t] = Targets[t-1] and the
	// first bar holds nothing.
	Positions []float64 `json:"positions"`
	// NetReturns is the per-bar strategy return after fees.
	NetReturns []float64 `json:"net_returns"`
	// Equity is the compounded equity curve starting from the initial cash.
	Equity []float64 `json:"equity"`
	Stats  Stats     `json:"stats"`
}

// Simulator runs signal series through the daily execution model. Runs are
// pure: the same inputs always produce the same result.
type Simulator struct {
	logger *zap.Logger
	config types.BacktestConfig
}

// NewSimulator creates a simulator with the given execution parameters.
func NewSimulator(logger *zap.Logger, config types.BacktestConfig) *Simulator {
	return &Simulator{
		logger: logger.Named("simulator"),
		config: config,
	}
}

// Run simulates the signal series against the raw daily returns. Both
// series must be index-aligned with the underlying bars. Fees are charged
// on every position change, including the initial entry.
func (s *Simulator) Run(signals, returns []float64) (*Result, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, fmt.Errorf("%w: no bars to simulate", types.ErrInsufficientData)
	}
	if len(signals) != len(returns) {
		return nil, fmt.Errorf("signal length %d does not match return length %d",
			len(signals), len(returns))
	}

	n := len(signals)
	targets := make([]float64, n)
	positions := make([]float64, n)
	net := make([]float64, n)
	equity := make([]float64, n)

	for i := 0; i < n; i++ {
		targets[i] = clip01(signals[i]) * s.config.MaxPosition
	}

	growth := 1.0
	for i := 0; i < n; i++ {
		prev := 0.0
		if i > 0 {
			prev = targets[i-1]
		}
		positions[i] = prev

		turnover := targets[i] - prev
		if turnover < 0 {
			turnover = -turnover
		}

		net[i] = positions[i]*returns[i] - turnover*s.config.FeeRate
		growth *= 1 + net[i]
		equity[i] = s.config.InitialCash * growth
	}

	result := &Result{
		Targets:    targets,
		Positions:  positions,
		NetReturns: net,
		Equity:     equity,
		Stats:      computeStats(equity, net),
	}

	s.logger.Debug("simulation complete",
		zap.Int("bars", n),
		zap.Float64("total_return", result.Stats.TotalReturn),
		zap.Float64("sharpe", result.Stats.Sharpe))

	return result, nil
}

func clip01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
