// Package metrics holds the Prometheus instruments for engine runs, output
// parsing, snapshots and workers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EngineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdsrisk_engine_runs_total",
		Help: "Engine executions by terminal state",
	}, []string{"state"})

	EngineRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cdsrisk_engine_run_duration_seconds",
		Help:    "Wall-clock duration of engine executions",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"state"})

	EngineRunsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cdsrisk_engine_runs_in_flight",
		Help: "Engine executions currently running",
	})

	ParseFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdsrisk_output_parse_failures_total",
		Help: "Output families that failed to parse",
	}, []string{"family"})

	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdsrisk_snapshots_total",
		Help: "Market data snapshots captured, by aggregate source",
	}, []string{"source"})

	ValuationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdsrisk_valuations_total",
		Help: "Valuation requests by kind and outcome",
	}, []string{"kind", "outcome"})

	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cdsrisk_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})

	WorkerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdsrisk_worker_runs_total",
		Help: "Background worker iterations by outcome",
	}, []string{"worker", "outcome"})
)
