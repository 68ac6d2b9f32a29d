// Package types provides configuration types for the quant backend.
package types

import (
	"fmt"
	"time"
)

// DataConfig selects the symbol and date range to evaluate.
type DataConfig struct {
	Symbol   string   `json:"symbol" mapstructure:"symbol"`
	Start    string   `json:"start" mapstructure:"start"`
	End      string   `json:"end" mapstructure:"end"`
	Interval Interval `json:"interval" mapstructure:"interval"`
	CacheDir string   `json:"cache_dir" mapstructure:"cache_dir"`
}

// DefaultDataConfig returns the default data selection.
func DefaultDataConfig() DataConfig {
	return DataConfig{
		Symbol:   "AAPL",
		Start:    "2018-01-01",
		End:      "2023-12-31",
		Interval: IntervalDaily,
		CacheDir: "data_cache",
	}
}

// Window parses the configured date range.
func (c DataConfig) Window() (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", c.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start date %q: %v", ErrInvalidConfig, c.Start, err)
	}
	end, err := time.Parse("2006-01-02", c.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date %q: %v", ErrInvalidConfig, c.End, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date %s not after start date %s", ErrInvalidConfig, c.End, c.Start)
	}
	return start, end, nil
}

// Validate checks the data selection.
func (c DataConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidConfig)
	}
	if _, _, err := c.Window(); err != nil {
		return err
	}
	switch c.Interval {
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
	default:
		return fmt.Errorf("%w: unknown interval %q", ErrInvalidConfig, c.Interval)
	}
	return nil
}

// StrategyConfig selects a strategy family and its parameters. Window and
// Threshold apply to mean reversion; ShortWindow and LongWindow apply to
// momentum. Name "auto" defers the choice to the regime classifier.
type StrategyConfig struct {
	Name        string  `json:"name" mapstructure:"name"`
	Window      int     `json:"window" mapstructure:"window"`
	Threshold   float64 `json:"threshold" mapstructure:"threshold"`
	ShortWindow int     `json:"short_window" mapstructure:"short_window"`
	LongWindow  int     `json:"long_window" mapstructure:"long_window"`
}

// DefaultStrategyConfig returns the default strategy selection.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Name:        "mean_reversion",
		Window:      20,
		Threshold:   1.0,
		ShortWindow: 10,
		LongWindow:  30,
	}
}

// BacktestConfig holds the simulation parameters.
type BacktestConfig struct {
	InitialCash float64 `json:"initial_cash" mapstructure:"initial_cash"`
	MaxPosition float64 `json:"max_position" mapstructure:"max_position"`
	FeeRate     float64 `json:"fee_rate" mapstructure:"fee_rate"`
}

// DefaultBacktestConfig returns the default simulation parameters.
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		InitialCash: 100000,
		MaxPosition: 1.0,
		FeeRate:     0.001,
	}
}

// Validate checks the simulation parameters.
func (c BacktestConfig) Validate() error {
	if c.InitialCash <= 0 {
		return fmt.Errorf("%w: initial_cash must be positive, got %v", ErrInvalidConfig, c.InitialCash)
	}
	if c.MaxPosition <= 0 || c.MaxPosition > 1 {
		return fmt.Errorf("%w: max_position must be in (0, 1], got %v", ErrInvalidConfig, c.MaxPosition)
	}
	if c.FeeRate < 0 {
		return fmt.Errorf("%w: fee_rate must be non-negative, got %v", ErrInvalidConfig, c.FeeRate)
	}
	return nil
}

// SizingConfig selects a position sizing method. An empty method disables
// the sizing pass.
type SizingConfig struct {
	Method           string  `json:"method" mapstructure:"method"`
	KellyFraction    float64 `json:"kelly_fraction" mapstructure:"kelly_fraction"`
	TargetVolatility float64 `json:"target_volatility" mapstructure:"target_volatility"`
	Lookback         int     `json:"lookback" mapstructure:"lookback"`
	RiskPerTrade     float64 `json:"risk_per_trade" mapstructure:"risk_per_trade"`
	StopLossPct      float64 `json:"stop_loss_pct" mapstructure:"stop_loss_pct"`
	MaxPosition      float64 `json:"max_position" mapstructure:"max_position"`
}

// DefaultSizingConfig returns sizing defaults with the pass disabled.
func DefaultSizingConfig() SizingConfig {
	return SizingConfig{
		Method:           "",
		KellyFraction:    0.25,
		TargetVolatility: 0.15,
		Lookback:         20,
		RiskPerTrade:     0.02,
		StopLossPct:      0.05,
		MaxPosition:      1.0,
	}
}

// OptimizerConfig holds the parameter grid for strategy tuning. Grid keys
// are strategy parameter names; an empty grid falls back to a built-in grid
// for the configured strategy.
type OptimizerConfig struct {
	Grid           map[string][]float64 `json:"grid" mapstructure:"grid"`
	TargetMetric   string               `json:"target_metric" mapstructure:"target_metric"`
	MaxConcurrency int                  `json:"max_concurrency" mapstructure:"max_concurrency"`
}

// DefaultOptimizerConfig returns the default tuning parameters.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		TargetMetric:   "sharpe",
		MaxConcurrency: 4,
	}
}

// MonteCarloConfig holds the resampling parameters. Seed 0 draws a random
// seed per run.
type MonteCarloConfig struct {
	Iterations int   `json:"iterations" mapstructure:"iterations"`
	Seed       int64 `json:"seed" mapstructure:"seed"`
}

// DefaultMonteCarloConfig returns the default resampling parameters.
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{Iterations: 1000}
}

// AdvisorConfig configures the optional market commentary client. The
// advisor is disabled unless an API key is set.
type AdvisorConfig struct {
	APIKey  string        `json:"-" mapstructure:"api_key"`
	BaseURL string        `json:"base_url" mapstructure:"base_url"`
	Model   string        `json:"model" mapstructure:"model"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DefaultAdvisorConfig returns the default advisor settings.
func DefaultAdvisorConfig() AdvisorConfig {
	return AdvisorConfig{
		BaseURL: "https://api.perplexity.ai/chat/completions",
		Model:   "llama-3.1-sonar-large-128k-online",
		Timeout: 30 * time.Second,
	}
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host          string        `json:"host" mapstructure:"host"`
	Port          int           `json:"port" mapstructure:"port"`
	ReadTimeout   time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics" mapstructure:"enable_metrics"`
	MetricsPort   int           `json:"metrics_port" mapstructure:"metrics_port"`
}

// DefaultServerConfig returns the default server settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:          "0.0.0.0",
		Port:          8080,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		EnableMetrics: true,
		MetricsPort:   9090,
	}
}

// Config is the root configuration for a run.
type Config struct {
	LogLevel   string           `json:"log_level" mapstructure:"log_level"`
	Data       DataConfig       `json:"data" mapstructure:"data"`
	Strategy   StrategyConfig   `json:"strategy" mapstructure:"strategy"`
	Backtest   BacktestConfig   `json:"backtest" mapstructure:"backtest"`
	Sizing     SizingConfig     `json:"sizing" mapstructure:"sizing"`
	Optimizer  OptimizerConfig  `json:"optimizer" mapstructure:"optimizer"`
	MonteCarlo MonteCarloConfig `json:"monte_carlo" mapstructure:"monte_carlo"`
	Advisor    AdvisorConfig    `json:"advisor" mapstructure:"advisor"`
	Server     ServerConfig     `json:"server" mapstructure:"server"`
}

// DefaultConfig returns the full default configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "info",
		Data:       DefaultDataConfig(),
		Strategy:   DefaultStrategyConfig(),
		Backtest:   DefaultBacktestConfig(),
		Sizing:     DefaultSizingConfig(),
		Optimizer:  DefaultOptimizerConfig(),
		MonteCarlo: DefaultMonteCarloConfig(),
		Advisor:    DefaultAdvisorConfig(),
		Server:     DefaultServerConfig(),
	}
}
