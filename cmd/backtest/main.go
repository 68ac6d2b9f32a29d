// Package main runs one evaluation from the command line and prints a
// report. With --grid it runs a parameter grid search instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tradeforge/quant-backend/internal/advisor"
	"github.com/tradeforge/quant-backend/internal/agent"
	"github.com/tradeforge/quant-backend/internal/backtest"
	"github.com/tradeforge/quant-backend/internal/config"
	"github.com/tradeforge/quant-backend/internal/data"
	"github.com/tradeforge/quant-backend/internal/optimize"
	"github.com/tradeforge/quant-backend/internal/regime"
	"github.com/tradeforge/quant-backend/internal/strategy"
	"github.com/tradeforge/quant-backend/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	symbol := flag.String("symbol", "", "Override the configured symbol")
	strategyName := flag.String("strategy", "", "Override the configured strategy")
	logLevel := flag.String("log-level", "", "Override the configured log level")
	grid := flag.Bool("grid", false, "Run a parameter grid search instead of a single backtest")
	monteCarlo := flag.Bool("montecarlo", false, "Add resampled return bands to the report")
	verbose := flag.Bool("verbose", false, "Include the indicator snapshot in the report")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *symbol != "" {
		cfg.Data.Symbol = *symbol
	}
	if *strategyName != "" {
		cfg.Strategy.Name = *strategyName
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader, err := data.NewLoader(logger, cfg.Data.CacheDir)
	if err != nil {
		logger.Fatal("failed to initialize data loader", zap.Error(err))
	}

	if *grid {
		runGrid(ctx, logger, cfg, loader)
		return
	}
	runOnce(ctx, logger, cfg, loader, *monteCarlo, *verbose)
}

func runOnce(ctx context.Context, logger *zap.Logger, cfg *types.Config, loader *data.Loader, monteCarlo, verbose bool) {
	adv := advisor.NewClient(logger, cfg.Advisor)

	a, err := agent.New(logger, *cfg, loader, adv)
	if err != nil {
		logger.Fatal("failed to initialize agent", zap.Error(err))
	}

	result, err := a.Run(ctx)
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}

	printReport(result, verbose)

	if monteCarlo {
		band := backtest.NewMonteCarlo(logger, cfg.MonteCarlo).Run(result.NetReturns)
		printMonteCarlo(band)
	}
}

func runGrid(ctx context.Context, logger *zap.Logger, cfg *types.Config, loader *data.Loader) {
	bars, err := loader.Load(ctx, cfg.Data)
	if err != nil {
		logger.Fatal("failed to load market data", zap.Error(err))
	}

	stratCfg := cfg.Strategy
	if stratCfg.Name == strategy.NameAuto {
		classifier := regime.NewClassifier(logger, regime.DefaultConfig())
		state, err := classifier.Classify(bars)
		if err != nil {
			logger.Fatal("failed to classify regime", zap.Error(err))
		}
		stratCfg.Name = string(regime.RecommendedStrategy(state.Regime))
		logger.Info("auto strategy resolved",
			zap.String("regime", string(state.Regime)),
			zap.String("strategy", stratCfg.Name))
	}

	opt := optimize.NewOptimizer(logger, cfg.Optimizer, cfg.Backtest)
	result, err := opt.Optimize(ctx, bars, stratCfg)
	if err != nil {
		logger.Fatal("grid search failed", zap.Error(err))
	}

	printGridReport(result)
}

func printReport(r *agent.RunResult, verbose bool) {
	fmt.Printf("Backtest %s\n", r.ID)
	fmt.Printf("  Symbol:     %s (%s), %d bars\n", r.Symbol, r.Interval, r.Bars)
	fmt.Printf("  Strategy:   %s %s\n", r.Strategy.Name, strategyParams(r.Strategy))
	fmt.Printf("  Regime:     %s (trend %.2f, vol %s)\n",
		r.Regime.Regime, r.Regime.TrendStrength, pct(r.Regime.Volatility))
	fmt.Printf("  Elapsed:    %s\n", r.Elapsed)

	fmt.Println("\nPerformance")
	fmt.Printf("  Total return:      %s\n", pct(r.Stats.TotalReturn))
	fmt.Printf("  Annual return:     %s\n", pct(r.Stats.AnnualReturn))
	fmt.Printf("  Annual volatility: %s\n", pct(r.Stats.AnnualVolatility))
	fmt.Printf("  Sharpe:            %.2f\n", r.Stats.Sharpe)
	fmt.Printf("  Max drawdown:      %s\n", pct(r.Stats.MaxDrawdown))

	fmt.Printf("\nTrades (%d)\n", r.TradeStats.NumTrades)
	if r.TradeStats.NumTrades > 0 {
		fmt.Printf("  Win rate %s, avg win %s, avg loss %s\n",
			pct(r.TradeStats.WinRate), pct(r.TradeStats.AvgWin), pct(r.TradeStats.AvgLoss))
		for _, t := range r.Trades {
			fmt.Printf("  %s -> %s  %s\n",
				t.EntryDate.Format("2006-01-02"), t.ExitDate.Format("2006-01-02"), pct(t.Return))
		}
	}

	if r.Sizing != nil {
		fmt.Println("\nSizing")
		fmt.Printf("  Method %s, fraction %.2f\n", r.Sizing.Method, r.Sizing.Fraction)
		if r.Sizing.Stats != nil {
			fmt.Printf("  Sized run: return %s, sharpe %.2f, drawdown %s\n",
				pct(r.Sizing.Stats.TotalReturn), r.Sizing.Stats.Sharpe, pct(r.Sizing.Stats.MaxDrawdown))
		}
	}

	if r.Advice != nil {
		fmt.Println("\nAdvisor")
		fmt.Printf("  [%s] %s: %s\n", r.Advice.Model, r.Advice.Stance, r.Advice.Text)
	}

	if verbose && r.Features != nil {
		f := r.Features
		fmt.Println("\nIndicators (last bar)")
		fmt.Printf("  Close %.2f, SMA20 %.2f, SMA60 %.2f, EMA12 %.2f\n",
			f.Close, f.SMA20, f.SMA60, f.EMA12)
		fmt.Printf("  RSI14 %.1f, z-score %.2f, MACD %.3f (signal %.3f, hist %.3f)\n",
			f.RSI14, f.ZScore20, f.MACD, f.MACDSignal, f.MACDHist)
		fmt.Printf("  ATR14 %.2f, ADX14 %.1f, Bollinger %.2f / %.2f / %.2f (width %.3f)\n",
			f.ATR14, f.ADX14, f.BollingerLower, f.BollingerMid, f.BollingerUpper, f.BollingerWidth)
	}
}

func printMonteCarlo(m *backtest.MonteCarloResult) {
	fmt.Printf("\nMonte Carlo (%d iterations)\n", m.Iterations)
	fmt.Printf("  Median return:       %s\n", pct(m.MedianReturn))
	fmt.Printf("  5th-95th percentile: %s to %s\n", pct(m.P5Return), pct(m.P95Return))
	fmt.Printf("  Probability of loss: %s\n", pct(m.ProbabilityLoss))
	fmt.Printf("  P95 max drawdown:    %s\n", pct(m.MaxDrawdownP95))
}

func printGridReport(r *optimize.Result) {
	fmt.Printf("Grid search (target %s)\n", r.TargetMetric)
	fmt.Printf("  Evaluated %d points (%d skipped) in %s\n",
		len(r.Evaluations), r.Skipped, r.Duration)
	fmt.Printf("  Best: %s -> %.4f\n", formatParams(r.BestParams), r.BestScore)

	top := r.Evaluations
	if len(top) > 5 {
		top = top[:5]
	}
	fmt.Println("\nTop evaluations")
	for i, eval := range top {
		fmt.Printf("  %d. %s  %s %.4f (return %s, sharpe %.2f)\n",
			i+1, formatParams(eval.Params), r.TargetMetric, eval.Score,
			pct(eval.Stats.TotalReturn), eval.Stats.Sharpe)
	}
}

func strategyParams(cfg types.StrategyConfig) string {
	if cfg.Name == string(strategy.KindMomentum) {
		return fmt.Sprintf("(short %d, long %d)", cfg.ShortWindow, cfg.LongWindow)
	}
	return fmt.Sprintf("(window %d, threshold %.2f)", cfg.Window, cfg.Threshold)
}

func formatParams(params optimize.ParamSet) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	out := ""
	for i, name := range names {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%g", name, params[name])
	}
	return out
}

func pct(x float64) string {
	return fmt.Sprintf("%.2f%%", x*100)
}

func setupLogger(level string) *zap.Logger {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	config := zap.Config{
		Level:       atomicLevel,
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		// Logs go to stderr so stdout carries only the report.
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
