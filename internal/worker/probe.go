package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/cdsrisk/internal/metrics"
	"github.com/mtlprog/cdsrisk/internal/valuation"
)

// Prober checks that the engine starts and exits cleanly.
type Prober interface {
	HealthCheck(ctx context.Context) valuation.HealthStatus
}

// ProbeWorker periodically runs the engine health check.
type ProbeWorker struct {
	prober   Prober
	interval time.Duration
}

// NewProbeWorker creates a new ProbeWorker.
func NewProbeWorker(prober Prober, interval time.Duration) *ProbeWorker {
	return &ProbeWorker{
		prober:   prober,
		interval: interval,
	}
}

func (w *ProbeWorker) probe(ctx context.Context) {
	status := w.prober.HealthCheck(ctx)
	if !status.Healthy {
		metrics.WorkerRunsTotal.WithLabelValues("probe", "error").Inc()
		slog.Error("ProbeWorker: engine unhealthy", "error", status.Error, "duration", status.Duration)
		return
	}
	metrics.WorkerRunsTotal.WithLabelValues("probe", "ok").Inc()
	slog.Debug("ProbeWorker: engine healthy", "duration", status.Duration)
}

// Run starts the probe loop. It blocks until the context is cancelled.
func (w *ProbeWorker) Run(ctx context.Context) {
	slog.Info("ProbeWorker: starting")

	w.probe(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ProbeWorker: shutting down")
			return
		case <-ticker.C:
			w.probe(ctx)
		}
	}
}
