package backtest

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tradeforge/quant-backend/pkg/types"
)

// MonteCarloResult holds percentile bands from resampled return paths.
type MonteCarloResult struct {
	Iterations      int     `json:"iterations"`
	MedianReturn    float64 `json:"median_return"`
	P5Return        float64 `json:"p5_return"`
	P95Return       float64 `json:"p95_return"`
	ProbabilityLoss float64 `json:"probability_loss"`
	MaxDrawdownP95  float64 `json:"max_drawdown_p95"`
}

// MonteCarlo bootstraps alternative equity paths from a simulated
// net-return series.
type MonteCarlo struct {
	logger *zap.Logger
	config types.MonteCarloConfig
	rng    *rand.Rand
}

// NewMonteCarlo creates a resampler. A zero seed draws from the clock, so
// set a seed for reproducible bands.
func NewMonteCarlo(logger *zap.Logger, config types.MonteCarloConfig) *MonteCarlo {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MonteCarlo{
		logger: logger.Named("montecarlo"),
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Run resamples the net returns with replacement, compounds each path, and
// reports percentile bands for total return and max drawdown.
func (mc *MonteCarlo) Run(netReturns []float64) *MonteCarloResult {
	if len(netReturns) == 0 {
		return &MonteCarloResult{}
	}

	iterations := mc.config.Iterations
	if iterations <= 0 {
		iterations = 1000
	}

	totals := make([]float64, iterations)
	drawdowns := make([]float64, iterations)
	lossCount := 0

	n := len(netReturns)
	for i := 0; i < iterations; i++ {
		growth := 1.0
		peak := 1.0
		maxDD := 0.0
		for j := 0; j < n; j++ {
			growth *= 1 + netReturns[mc.rng.Intn(n)]
			if growth > peak {
				peak = growth
			}
			if dd := growth/peak - 1; dd < maxDD {
				maxDD = dd
			}
		}
		totals[i] = growth - 1
		drawdowns[i] = maxDD
		if totals[i] < 0 {
			lossCount++
		}
	}

	sort.Float64s(totals)
	sort.Float64s(drawdowns)

	result := &MonteCarloResult{
		Iterations:      iterations,
		MedianReturn:    percentile(totals, 50),
		P5Return:        percentile(totals, 5),
		P95Return:       percentile(totals, 95),
		ProbabilityLoss: float64(lossCount) / float64(iterations),
		// Drawdowns are non-positive, so the worst tail sits at the low end.
		MaxDrawdownP95: percentile(drawdowns, 5),
	}

	mc.logger.Debug("monte carlo complete",
		zap.Int("iterations", iterations),
		zap.Float64("median_return", result.MedianReturn),
		zap.Float64("p5_return", result.P5Return),
		zap.Float64("probability_loss", result.ProbabilityLoss))

	return result
}

// percentile interpolates the pth percentile of sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
