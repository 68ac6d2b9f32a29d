// Package optimize implements grid search over strategy parameters.
//
// Every grid point is an independent simulation over the same bar series,
// so evaluations run concurrently under a worker cap. Combinations the
// strategy rejects, momentum windows in the wrong order for instance, are
// skipped and counted rather than failing the search.
package optimize

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradeforge/quant-backend/internal/backtest"
	"github.com/tradeforge/quant-backend/internal/indicators"
	"github.com/tradeforge/quant-backend/internal/strategy"
	"github.com/tradeforge/quant-backend/pkg/types"
)

// ParamSet is one grid point: parameter name to value.
type ParamSet map[string]float64

// Evaluation is the scored outcome of one grid point.
type Evaluation struct {
	Params ParamSet       `json:"params"`
	Score  float64        `json:"score"`
	Stats  backtest.Stats `json:"stats"`
}

// Result is the outcome of a grid search, with evaluations ranked best
// first by the target metric.
type Result struct {
	TargetMetric string               `json:"target_metric"`
	BestParams   ParamSet             `json:"best_params"`
	BestScore    float64              `json:"best_score"`
	BestStrategy types.StrategyConfig `json:"best_strategy"`
	Evaluations  []Evaluation         `json:"evaluations"`
	Skipped      int                  `json:"skipped"`
	Duration     time.Duration        `json:"duration"`
}

// Optimizer runs grid searches against a fixed execution model.
type Optimizer struct {
	logger     *zap.Logger
	config     types.OptimizerConfig
	simulator  *backtest.Simulator
	onProgress func(done, total int)
}

// NewOptimizer creates a grid search optimizer.
func NewOptimizer(logger *zap.Logger, config types.OptimizerConfig, backtestConfig types.BacktestConfig) *Optimizer {
	return &Optimizer{
		logger:    logger.Named("optimizer"),
		config:    config,
		simulator: backtest.NewSimulator(logger, backtestConfig),
	}
}

// SetOnProgress registers a completion callback. It is invoked from the
// collecting goroutine, once per finished grid point.
func (o *Optimizer) SetOnProgress(fn func(done, total int)) {
	o.onProgress = fn
}

// Optimize evaluates every grid point for the base strategy over the bars.
// An empty configured grid falls back to the built-in grid for the
// strategy family. The base must name a concrete family; resolve "auto"
// against the classified regime before optimizing.
func (o *Optimizer) Optimize(ctx context.Context, bars *types.BarSeries, base types.StrategyConfig) (*Result, error) {
	if base.Name == strategy.NameAuto {
		return nil, fmt.Errorf("%w: grid search needs a concrete strategy, not %q",
			types.ErrInvalidConfig, base.Name)
	}
	if _, err := (backtest.Stats{}).Metric(o.config.TargetMetric); err != nil {
		return nil, err
	}

	grid := o.config.Grid
	if len(grid) == 0 {
		grid = DefaultGrid(strategy.Kind(base.Name))
	}
	combos := combinations(grid)
	if len(combos) == 0 {
		return nil, fmt.Errorf("%w: empty parameter grid", types.ErrInvalidConfig)
	}

	started := time.Now()
	o.logger.Info("starting grid search",
		zap.String("symbol", bars.Symbol),
		zap.String("strategy", base.Name),
		zap.String("metric", o.config.TargetMetric),
		zap.Int("combinations", len(combos)))

	returns := indicators.DailyReturns(bars.Closes())

	outcomes := make(chan *Evaluation, len(combos))
	sem := make(chan struct{}, o.config.MaxConcurrency)
	var wg sync.WaitGroup

	for _, combo := range combos {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		wg.Add(1)
		go func(params ParamSet) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes <- o.evaluate(bars, returns, base, params)
		}(combo)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	result := &Result{
		TargetMetric: o.config.TargetMetric,
		BestScore:    math.Inf(-1),
	}
	done := 0
	for eval := range outcomes {
		done++
		if o.onProgress != nil {
			o.onProgress(done, len(combos))
		}
		if eval == nil {
			result.Skipped++
			continue
		}
		result.Evaluations = append(result.Evaluations, *eval)
		if eval.Score > result.BestScore {
			result.BestScore = eval.Score
			result.BestParams = eval.Params
		}
	}

	if len(result.Evaluations) == 0 {
		return nil, fmt.Errorf("%w: no grid point produced a valid strategy",
			types.ErrInvalidConfig)
	}

	sort.SliceStable(result.Evaluations, func(i, j int) bool {
		return result.Evaluations[i].Score > result.Evaluations[j].Score
	})

	best, err := ApplyParams(base, result.BestParams)
	if err != nil {
		return nil, err
	}
	result.BestStrategy = best
	result.Duration = time.Since(started)

	o.logger.Info("grid search complete",
		zap.Int("evaluated", len(result.Evaluations)),
		zap.Int("skipped", result.Skipped),
		zap.Float64("best_score", result.BestScore),
		zap.Duration("elapsed", result.Duration))

	return result, nil
}

// evaluate scores one grid point. A nil return means the combination was
// skipped.
func (o *Optimizer) evaluate(bars *types.BarSeries, returns []float64,
	base types.StrategyConfig, params ParamSet) *Evaluation {

	candidate, err := ApplyParams(base, params)
	if err != nil {
		o.logger.Debug("skipping grid point", zap.Any("params", params), zap.Error(err))
		return nil
	}
	strat, err := strategy.New(candidate)
	if err != nil {
		o.logger.Debug("skipping grid point", zap.Any("params", params), zap.Error(err))
		return nil
	}

	result, err := o.simulator.Run(strat.Signals(bars), returns)
	if err != nil {
		o.logger.Debug("skipping grid point", zap.Any("params", params), zap.Error(err))
		return nil
	}

	score, err := result.Stats.Metric(o.config.TargetMetric)
	if err != nil {
		return nil
	}
	return &Evaluation{Params: params, Score: score, Stats: result.Stats}
}

// ApplyParams overlays grid values onto a strategy configuration. Window
// parameters are rounded to integers.
func ApplyParams(base types.StrategyConfig, params ParamSet) (types.StrategyConfig, error) {
	out := base
	for name, v := range params {
		switch name {
		case "window":
			out.Window = int(math.Round(v))
		case "threshold":
			out.Threshold = v
		case "short_window":
			out.ShortWindow = int(math.Round(v))
		case "long_window":
			out.LongWindow = int(math.Round(v))
		default:
			return types.StrategyConfig{}, fmt.Errorf("%w: unknown parameter %q",
				types.ErrInvalidConfig, name)
		}
	}
	return out, nil
}

// DefaultGrid returns the built-in search grid for a strategy family.
func DefaultGrid(kind strategy.Kind) map[string][]float64 {
	switch kind {
	case strategy.KindMeanReversion:
		return map[string][]float64{
			"window":    {10, 15, 20, 25, 30},
			"threshold": {0.5, 1.0, 1.5, 2.0},
		}
	case strategy.KindMomentum:
		return map[string][]float64{
			"short_window": {5, 10, 15, 20},
			"long_window":  {30, 40, 50, 60},
		}
	default:
		return nil
	}
}

// combinations expands the grid into its cartesian product. Keys are
// walked in sorted order so the expansion is deterministic.
func combinations(grid map[string][]float64) []ParamSet {
	names := make([]string, 0, len(grid))
	for name := range grid {
		names = append(names, name)
	}
	sort.Strings(names)

	return expand(names, grid, 0, make(ParamSet))
}

func expand(names []string, grid map[string][]float64, idx int, current ParamSet) []ParamSet {
	if idx == len(names) {
		point := make(ParamSet, len(current))
		for k, v := range current {
			point[k] = v
		}
		return []ParamSet{point}
	}

	var out []ParamSet
	for _, v := range grid[names[idx]] {
		current[names[idx]] = v
		out = append(out, expand(names, grid, idx+1, current)...)
	}
	return out
}
