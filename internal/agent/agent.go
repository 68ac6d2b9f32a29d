// Package agent runs the full evaluation pipeline for one symbol: load the
// bars, classify the regime, resolve the strategy, simulate, and analyze
// the results. Every run is independent and produces a self-contained
// RunResult.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradeforge/quant-backend/internal/advisor"
	"github.com/tradeforge/quant-backend/internal/backtest"
	"github.com/tradeforge/quant-backend/internal/data"
	"github.com/tradeforge/quant-backend/internal/indicators"
	"github.com/tradeforge/quant-backend/internal/regime"
	"github.com/tradeforge/quant-backend/internal/sizing"
	"github.com/tradeforge/quant-backend/internal/strategy"
	"github.com/tradeforge/quant-backend/pkg/types"
)

// TradeRecord is a closed round trip with its bar dates attached.
type TradeRecord struct {
	backtest.Trade
	EntryDate time.Time `json:"entry_date"`
	ExitDate  time.Time `json:"exit_date"`
}

// SizingDecision records the sizing pass: the fraction the configured
// method produced and the statistics of the re-run at that exposure. A
// zero fraction means the method declined to size up; no re-run happens.
type SizingDecision struct {
	Method   string          `json:"method"`
	Fraction float64         `json:"fraction"`
	Stats    *backtest.Stats `json:"stats,omitempty"`
}

// RunResult is the complete output of one evaluation run.
type RunResult struct {
	ID         string                 `json:"id"`
	Symbol     string                 `json:"symbol"`
	Interval   types.Interval         `json:"interval"`
	Bars       int                    `json:"bars"`
	StartedAt  time.Time              `json:"started_at"`
	Elapsed    time.Duration          `json:"elapsed"`
	Strategy   types.StrategyConfig   `json:"strategy"`
	Regime     *regime.State          `json:"regime"`
	Features   *indicators.FeatureSet `json:"features"`
	Stats      backtest.Stats         `json:"stats"`
	TradeStats backtest.TradeStats    `json:"trade_stats"`
	Trades     []TradeRecord          `json:"trades"`
	Equity     []types.EquityPoint    `json:"equity"`
	Sizing     *SizingDecision        `json:"sizing,omitempty"`
	Advice     *advisor.Commentary    `json:"advice,omitempty"`

	// NetReturns feeds follow-up analysis such as Monte Carlo resampling.
	NetReturns []float64 `json:"-"`
}

// Agent wires the pipeline components together.
type Agent struct {
	logger     *zap.Logger
	config     types.Config
	loader     *data.Loader
	classifier *regime.Classifier
	simulator  *backtest.Simulator
	sizer      *sizing.Sizer
	advisor    *advisor.Client
}

// New creates an agent. The advisor may be nil; the sizing pass is enabled
// by configuring a sizing method.
func New(logger *zap.Logger, config types.Config, loader *data.Loader, adv *advisor.Client) (*Agent, error) {
	a := &Agent{
		logger:     logger.Named("agent"),
		config:     config,
		loader:     loader,
		classifier: regime.NewClassifier(logger, regime.DefaultConfig()),
		simulator:  backtest.NewSimulator(logger, config.Backtest),
		advisor:    adv,
	}
	if config.Sizing.Method != "" {
		sizer, err := sizing.New(logger, config.Sizing)
		if err != nil {
			return nil, err
		}
		a.sizer = sizer
	}
	return a, nil
}

// Run executes one evaluation: perceive the market through the loader,
// classify the regime, resolve the strategy, simulate, and evaluate the
// trades. Advisor commentary is best-effort and never fails the run.
func (a *Agent) Run(ctx context.Context) (*RunResult, error) {
	started := time.Now()
	runID := uuid.New().String()
	log := a.logger.With(
		zap.String("run_id", runID),
		zap.String("symbol", a.config.Data.Symbol))

	log.Info("starting evaluation run",
		zap.String("start", a.config.Data.Start),
		zap.String("end", a.config.Data.End))

	bars, err := a.loader.Load(ctx, a.config.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to load market data: %w", err)
	}

	state, err := a.classifier.Classify(bars)
	if err != nil {
		return nil, fmt.Errorf("failed to classify regime: %w", err)
	}

	stratCfg := a.config.Strategy
	if stratCfg.Name == strategy.NameAuto {
		stratCfg.Name = string(regime.RecommendedStrategy(state.Regime))
		log.Info("resolved auto strategy",
			zap.String("regime", string(state.Regime)),
			zap.String("strategy", stratCfg.Name))
	}
	strat, err := strategy.New(stratCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve strategy: %w", err)
	}

	signals := strat.Signals(bars)
	returns := indicators.DailyReturns(bars.Closes())
	result, err := a.simulator.Run(signals, returns)
	if err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}

	trades, tradeStats := backtest.AnalyzeTrades(signals, result.NetReturns)

	dates := bars.Dates()
	equity := make([]types.EquityPoint, len(result.Equity))
	for i, v := range result.Equity {
		equity[i] = types.EquityPoint{Date: dates[i], Equity: v}
	}
	records := make([]TradeRecord, len(trades))
	for i, tr := range trades {
		records[i] = TradeRecord{
			Trade:     tr,
			EntryDate: dates[tr.EntryIndex],
			ExitDate:  dates[tr.ExitIndex],
		}
	}

	run := &RunResult{
		ID:         runID,
		Symbol:     bars.Symbol,
		Interval:   a.config.Data.Interval,
		Bars:       bars.Len(),
		StartedAt:  started,
		Strategy:   stratCfg,
		Regime:     state,
		Features:   indicators.Snapshot(bars),
		Stats:      result.Stats,
		TradeStats: tradeStats,
		Trades:     records,
		Equity:     equity,
		NetReturns: result.NetReturns,
	}

	if a.sizer != nil {
		run.Sizing, err = a.sizePass(signals, returns, state, tradeStats, result)
		if err != nil {
			return nil, err
		}
	}

	if a.advisor != nil && a.advisor.Enabled() {
		commentary, err := a.advisor.Advise(ctx, bars.Symbol, state, result.Stats)
		if err != nil {
			log.Warn("advisor unavailable", zap.Error(err))
		} else {
			run.Advice = commentary
		}
	}

	run.Elapsed = time.Since(started)
	log.Info("run complete",
		zap.String("strategy", stratCfg.Name),
		zap.String("regime", string(state.Regime)),
		zap.Int("trades", tradeStats.NumTrades),
		zap.Float64("total_return", result.Stats.TotalReturn),
		zap.Float64("sharpe", result.Stats.Sharpe),
		zap.Duration("elapsed", run.Elapsed))

	return run, nil
}

// sizePass computes the position fraction from the first pass and, when the
// fraction is positive, re-runs the simulation at that exposure.
func (a *Agent) sizePass(signals, returns []float64, state *regime.State,
	tradeStats backtest.TradeStats, result *backtest.Result) (*SizingDecision, error) {

	size := a.sizer.Size(sizing.Inputs{
		WinRate:    tradeStats.WinRate,
		AvgWin:     tradeStats.AvgWin,
		AvgLoss:    tradeStats.AvgLoss,
		Volatility: state.Volatility,
		Returns:    result.NetReturns,
	})
	if size > a.config.Backtest.MaxPosition {
		size = a.config.Backtest.MaxPosition
	}

	decision := &SizingDecision{Method: a.sizer.Method(), Fraction: size}
	if size <= 0 {
		return decision, nil
	}

	sizedCfg := a.config.Backtest
	sizedCfg.MaxPosition = size
	sized, err := backtest.NewSimulator(a.logger, sizedCfg).Run(signals, returns)
	if err != nil {
		return nil, fmt.Errorf("sized simulation failed: %w", err)
	}
	decision.Stats = &sized.Stats
	return decision, nil
}
