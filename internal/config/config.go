// Package config loads and validates the runtime configuration.
//
// Settings come from three layers, lowest priority first: built-in
// defaults, an optional YAML file, and QUANT_* environment variables
// (QUANT_DATA_SYMBOL overrides data.symbol, and so on). The merged
// result is validated fail-fast, so a bad strategy name or sizing
// method is rejected before any data is fetched.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tradeforge/quant-backend/internal/backtest"
	"github.com/tradeforge/quant-backend/internal/sizing"
	"github.com/tradeforge/quant-backend/internal/strategy"
	"github.com/tradeforge/quant-backend/pkg/types"
)

// Load builds the configuration from defaults, the optional file at
// path, and environment overrides. An empty path skips the file layer.
func Load(path string) (*types.Config, error) {
	v := viper.New()
	setDefaults(v, types.DefaultConfig())

	v.SetEnvPrefix("QUANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides are picked
// up even without a config file.
func setDefaults(v *viper.Viper, def types.Config) {
	v.SetDefault("log_level", def.LogLevel)

	v.SetDefault("data.symbol", def.Data.Symbol)
	v.SetDefault("data.start", def.Data.Start)
	v.SetDefault("data.end", def.Data.End)
	v.SetDefault("data.interval", string(def.Data.Interval))
	v.SetDefault("data.cache_dir", def.Data.CacheDir)

	v.SetDefault("strategy.name", def.Strategy.Name)
	v.SetDefault("strategy.window", def.Strategy.Window)
	v.SetDefault("strategy.threshold", def.Strategy.Threshold)
	v.SetDefault("strategy.short_window", def.Strategy.ShortWindow)
	v.SetDefault("strategy.long_window", def.Strategy.LongWindow)

	v.SetDefault("backtest.initial_cash", def.Backtest.InitialCash)
	v.SetDefault("backtest.max_position", def.Backtest.MaxPosition)
	v.SetDefault("backtest.fee_rate", def.Backtest.FeeRate)

	v.SetDefault("sizing.method", def.Sizing.Method)
	v.SetDefault("sizing.kelly_fraction", def.Sizing.KellyFraction)
	v.SetDefault("sizing.target_volatility", def.Sizing.TargetVolatility)
	v.SetDefault("sizing.lookback", def.Sizing.Lookback)
	v.SetDefault("sizing.risk_per_trade", def.Sizing.RiskPerTrade)
	v.SetDefault("sizing.stop_loss_pct", def.Sizing.StopLossPct)
	v.SetDefault("sizing.max_position", def.Sizing.MaxPosition)

	v.SetDefault("optimizer.target_metric", def.Optimizer.TargetMetric)
	v.SetDefault("optimizer.max_concurrency", def.Optimizer.MaxConcurrency)

	v.SetDefault("monte_carlo.iterations", def.MonteCarlo.Iterations)
	v.SetDefault("monte_carlo.seed", def.MonteCarlo.Seed)

	v.SetDefault("advisor.api_key", "")
	v.SetDefault("advisor.base_url", def.Advisor.BaseURL)
	v.SetDefault("advisor.model", def.Advisor.Model)
	v.SetDefault("advisor.timeout", def.Advisor.Timeout)

	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.read_timeout", def.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", def.Server.WriteTimeout)
	v.SetDefault("server.enable_metrics", def.Server.EnableMetrics)
	v.SetDefault("server.metrics_port", def.Server.MetricsPort)
}

// Validate checks the merged configuration, resolving the strategy and
// sizing selections so unknown names fail at load time rather than on
// the first run.
func Validate(cfg *types.Config) error {
	if _, err := zap.ParseAtomicLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: unknown log level %q", types.ErrInvalidConfig, cfg.LogLevel)
	}
	if err := cfg.Data.Validate(); err != nil {
		return err
	}
	if err := cfg.Backtest.Validate(); err != nil {
		return err
	}

	if cfg.Strategy.Name == strategy.NameAuto {
		// Auto resolves per run, so both families must have usable
		// parameters up front.
		probe := cfg.Strategy
		probe.Name = string(strategy.KindMeanReversion)
		if _, err := strategy.New(probe); err != nil {
			return err
		}
		probe.Name = string(strategy.KindMomentum)
		if _, err := strategy.New(probe); err != nil {
			return err
		}
	} else if _, err := strategy.New(cfg.Strategy); err != nil {
		return err
	}

	if cfg.Sizing.Method != "" {
		if err := sizing.ValidateConfig(cfg.Sizing); err != nil {
			return err
		}
	}

	if _, err := (backtest.Stats{}).Metric(cfg.Optimizer.TargetMetric); err != nil {
		return err
	}
	if cfg.Optimizer.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: optimizer max_concurrency must be positive, got %d",
			types.ErrInvalidConfig, cfg.Optimizer.MaxConcurrency)
	}
	if cfg.MonteCarlo.Iterations < 0 {
		return fmt.Errorf("%w: montecarlo iterations must not be negative, got %d",
			types.ErrInvalidConfig, cfg.MonteCarlo.Iterations)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server port must be in (0, 65535], got %d",
			types.ErrInvalidConfig, cfg.Server.Port)
	}
	return nil
}
