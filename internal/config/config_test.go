package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tradeforge/quant-backend/pkg/types"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Data.Symbol != "AAPL" {
		t.Errorf("default symbol = %q, want AAPL", cfg.Data.Symbol)
	}
	if cfg.Strategy.Name != "mean_reversion" {
		t.Errorf("default strategy = %q, want mean_reversion", cfg.Strategy.Name)
	}
	if cfg.Backtest.InitialCash != 100000 {
		t.Errorf("default initial cash = %v, want 100000", cfg.Backtest.InitialCash)
	}
	if cfg.Sizing.Method != "" {
		t.Errorf("sizing should default to disabled, got %q", cfg.Sizing.Method)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
log_level: debug
data:
  symbol: MSFT
  start: "2020-01-01"
  end: "2021-01-01"
strategy:
  name: momentum
  short_window: 5
  long_window: 40
backtest:
  fee_rate: 0.002
sizing:
  method: kelly
  kelly_fraction: 0.5
`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
	if cfg.Data.Symbol != "MSFT" {
		t.Errorf("symbol = %q, want MSFT", cfg.Data.Symbol)
	}
	if cfg.Strategy.Name != "momentum" || cfg.Strategy.ShortWindow != 5 || cfg.Strategy.LongWindow != 40 {
		t.Errorf("strategy not applied: %+v", cfg.Strategy)
	}
	if cfg.Backtest.FeeRate != 0.002 {
		t.Errorf("fee rate = %v, want 0.002", cfg.Backtest.FeeRate)
	}
	if cfg.Sizing.Method != "kelly" || cfg.Sizing.KellyFraction != 0.5 {
		t.Errorf("sizing not applied: %+v", cfg.Sizing)
	}
	// Keys the file does not mention keep their defaults.
	if cfg.Backtest.InitialCash != 100000 {
		t.Errorf("initial cash = %v, want default 100000", cfg.Backtest.InitialCash)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QUANT_DATA_SYMBOL", "NVDA")
	t.Setenv("QUANT_BACKTEST_MAX_POSITION", "0.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Data.Symbol != "NVDA" {
		t.Errorf("symbol = %q, want NVDA from environment", cfg.Data.Symbol)
	}
	if cfg.Backtest.MaxPosition != 0.5 {
		t.Errorf("max position = %v, want 0.5 from environment", cfg.Backtest.MaxPosition)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*types.Config)
	}{
		{"unknown log level", func(c *types.Config) { c.LogLevel = "loud" }},
		{"unknown strategy", func(c *types.Config) { c.Strategy.Name = "arbitrage" }},
		{"bad threshold", func(c *types.Config) { c.Strategy.Threshold = -1 }},
		{"inverted windows", func(c *types.Config) {
			c.Strategy.Name = "momentum"
			c.Strategy.ShortWindow = 30
			c.Strategy.LongWindow = 10
		}},
		{"auto with bad params", func(c *types.Config) {
			c.Strategy.Name = "auto"
			c.Strategy.Window = 0
		}},
		{"unknown sizing method", func(c *types.Config) { c.Sizing.Method = "martingale" }},
		{"bad max position", func(c *types.Config) { c.Backtest.MaxPosition = 1.5 }},
		{"unknown metric", func(c *types.Config) { c.Optimizer.TargetMetric = "alpha" }},
		{"zero concurrency", func(c *types.Config) { c.Optimizer.MaxConcurrency = 0 }},
		{"bad port", func(c *types.Config) { c.Server.Port = -1 }},
		{"inverted dates", func(c *types.Config) {
			c.Data.Start = "2023-01-01"
			c.Data.End = "2020-01-01"
		}},
	}
	for _, tc := range cases {
		cfg := types.DefaultConfig()
		tc.mutate(&cfg)
		err := Validate(&cfg)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !errors.Is(err, types.ErrInvalidConfig) {
			t.Errorf("%s: error %v should wrap ErrInvalidConfig", tc.name, err)
		}
	}
}

func TestValidateAcceptsAuto(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.Strategy.Name = "auto"
	if err := Validate(&cfg); err != nil {
		t.Fatalf("auto strategy with default parameters should validate: %v", err)
	}
}
