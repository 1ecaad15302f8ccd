package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DetectorRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftdetect_runs_total",
			Help: "Detector runs by outcome",
		},
		[]string{"detector", "status"},
	)

	DetectorRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftdetect_run_duration_seconds",
			Help:    "Wall time of a detector run, query included",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"detector"},
	)

	DriftRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftdetect_drift_records_total",
			Help: "Drift records produced",
		},
		[]string{"detector", "kind"},
	)

	DetectorLastDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "driftdetect_last_run_drift_records",
			Help: "Drift records produced by the most recent run",
		},
		[]string{"detector"},
	)

	DetectorLastRunTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "driftdetect_last_run_timestamp_seconds",
			Help: "Unix time the most recent run finished",
		},
		[]string{"detector"},
	)

	SinkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftdetect_sink_errors_total",
			Help: "Failures delivering drift records to a sink",
		},
		[]string{"sink"},
	)

	GraphCircuitState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftdetect_graph_circuit_state",
			Help: "Graph circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			DetectorRunsTotal,
			DetectorRunDuration,
			DriftRecordsTotal,
			DetectorLastDrift,
			DetectorLastRunTimestamp,
			SinkErrorsTotal,
			GraphCircuitState,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
