// Package telemetry defines the Prometheus collectors exported by vecbt.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Backtest counter vectors
var (
	BacktestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vecbt",
		Name:      "backtest_runs_total",
		Help:      "Total number of backtest runs by strategy and status",
	}, []string{"strategy", "status"})

	SweepEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vecbt",
		Name:      "sweep_evaluations_total",
		Help:      "Parameter sweep evaluations by strategy and outcome",
	}, []string{"strategy", "outcome"})
)

// Backtest histogram vectors
var (
	BacktestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vecbt",
		Name:      "backtest_duration_seconds",
		Help:      "Wall time of a single backtest run",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"strategy"})
)

// Collectors returns every collector so callers can register them on their
// own registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{BacktestRunsTotal, SweepEvaluationsTotal, BacktestDuration}
}

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun records one backtest run.
func RecordRun(strategy string, err error, elapsed time.Duration) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	BacktestRunsTotal.WithLabelValues(strategy, status).Inc()
	BacktestDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// RecordEvaluation records one sweep candidate. outcome is "scored",
// "undefined" or "skipped".
func RecordEvaluation(strategy, outcome string) {
	SweepEvaluationsTotal.WithLabelValues(strategy, outcome).Inc()
}
