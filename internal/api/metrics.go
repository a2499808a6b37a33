package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the API server. Collectors are
// registered once on the default registry; every server instance shares them.
type Metrics struct {
	RunsStarted      prometheus.Counter
	RunsCompleted    prometheus.Counter
	RunsFailed       prometheus.Counter
	CandlesEvaluated prometheus.Counter
	RunDuration      prometheus.Histogram
}

var sharedMetrics = &Metrics{
	RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "backtest",
		Name:      "runs_started_total",
		Help:      "Number of backtest runs submitted.",
	}),
	RunsCompleted: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "backtest",
		Name:      "runs_completed_total",
		Help:      "Number of backtest runs that completed successfully.",
	}),
	RunsFailed: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "backtest",
		Name:      "runs_failed_total",
		Help:      "Number of backtest runs that failed.",
	}),
	CandlesEvaluated: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "backtest",
		Name:      "candles_evaluated_total",
		Help:      "Number of candles evaluated across all runs.",
	}),
	RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "backtest",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of completed backtest runs.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}),
}

// NewMetrics returns the shared collector set.
func NewMetrics() *Metrics {
	return sharedMetrics
}
