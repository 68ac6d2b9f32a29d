// Package metrics exposes Prometheus instrumentation for the evaluation
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records pipeline activity to Prometheus.
type Recorder struct {
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	gridEvaluations *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	lastSharpe      *prometheus.GaugeVec
	lastReturn      *prometheus.GaugeVec
}

// New creates a recorder registered against reg. Pass
// prometheus.DefaultRegisterer outside tests.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quant_runs_total",
				Help: "Completed evaluation runs",
			},
			[]string{"symbol", "strategy", "regime"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quant_run_duration_seconds",
				Help:    "Evaluation run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		gridEvaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quant_optimizer_evaluations_total",
				Help: "Grid points evaluated by the optimizer",
			},
			[]string{"strategy"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quant_errors_total",
				Help: "Pipeline errors by operation",
			},
			[]string{"operation"},
		),
		lastSharpe: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quant_last_sharpe",
				Help: "Sharpe ratio of the most recent run",
			},
			[]string{"symbol", "strategy"},
		),
		lastReturn: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quant_last_total_return",
				Help: "Total return of the most recent run",
			},
			[]string{"symbol", "strategy"},
		),
	}
}

// RecordRun records a completed evaluation run.
func (r *Recorder) RecordRun(symbol, strategy, regime string, seconds float64) {
	r.runsTotal.WithLabelValues(symbol, strategy, regime).Inc()
	r.runDuration.WithLabelValues(strategy).Observe(seconds)
}

// RecordRunStats publishes the headline statistics of the most recent run.
func (r *Recorder) RecordRunStats(symbol, strategy string, sharpe, totalReturn float64) {
	r.lastSharpe.WithLabelValues(symbol, strategy).Set(sharpe)
	r.lastReturn.WithLabelValues(symbol, strategy).Set(totalReturn)
}

// RecordGridEvaluation records one evaluated grid point.
func (r *Recorder) RecordGridEvaluation(strategy string) {
	r.gridEvaluations.WithLabelValues(strategy).Inc()
}

// RecordError records a failed operation.
func (r *Recorder) RecordError(operation string) {
	r.errorsTotal.WithLabelValues(operation).Inc()
}
