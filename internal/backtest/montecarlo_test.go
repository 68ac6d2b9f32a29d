package backtest

import (
	"testing"

	"go.uber.org/zap"

	"github.com/tradeforge/quant-backend/pkg/types"
)

func TestMonteCarloAllGains(t *testing.T) {
	mc := NewMonteCarlo(zap.NewNop(), types.MonteCarloConfig{Iterations: 200, Seed: 7})

	net := []float64{0.01, 0.005, 0.02, 0.003, 0.007, 0.012}
	res := mc.Run(net)

	if res.Iterations != 200 {
		t.Errorf("iterations = %d, want 200", res.Iterations)
	}
	// Every resample draws only positive returns.
	if res.ProbabilityLoss != 0 {
		t.Errorf("probability_loss = %v, want 0", res.ProbabilityLoss)
	}
	if res.P5Return <= 0 || res.MedianReturn <= 0 {
		t.Errorf("p5=%v median=%v, want positive on an all-gain series", res.P5Return, res.MedianReturn)
	}
	if res.P5Return > res.MedianReturn || res.MedianReturn > res.P95Return {
		t.Errorf("percentiles out of order: p5=%v median=%v p95=%v",
			res.P5Return, res.MedianReturn, res.P95Return)
	}
	if res.MaxDrawdownP95 != 0 {
		t.Errorf("max_drawdown_p95 = %v, want 0 when equity only rises", res.MaxDrawdownP95)
	}
}

func TestMonteCarloSeedReproducible(t *testing.T) {
	cfg := types.MonteCarloConfig{Iterations: 100, Seed: 42}
	net := []float64{0.02, -0.015, 0.01, -0.005, 0.03, -0.02}

	a := NewMonteCarlo(zap.NewNop(), cfg).Run(net)
	b := NewMonteCarlo(zap.NewNop(), cfg).Run(net)

	if *a != *b {
		t.Errorf("same seed produced different bands: %+v vs %+v", a, b)
	}
}

func TestMonteCarloEmptyInput(t *testing.T) {
	mc := NewMonteCarlo(zap.NewNop(), types.MonteCarloConfig{Iterations: 100})

	res := mc.Run(nil)
	if res.Iterations != 0 {
		t.Errorf("iterations = %d, want 0 for empty input", res.Iterations)
	}
}
