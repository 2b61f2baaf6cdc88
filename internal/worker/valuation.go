package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/cdsrisk/internal/metrics"
	"github.com/mtlprog/cdsrisk/internal/valuation"
)

// ActiveTrades lists the trades due for end-of-day valuation.
type ActiveTrades interface {
	ActiveTradeIDs(ctx context.Context) ([]int64, error)
}

// Calculator runs a valuation over a set of trades.
type Calculator interface {
	Calculate(ctx context.Context, req valuation.CalculationRequest) (*valuation.CalculationResult, error)
}

// AfterRunHook is called after each successful end-of-day run.
type AfterRunHook interface {
	Export(ctx context.Context, result *valuation.CalculationResult) error
}

// ValuationWorker periodically values every active trade.
type ValuationWorker struct {
	trades     ActiveTrades
	calculator Calculator
	interval   time.Duration
	hook       AfterRunHook // optional
}

// NewValuationWorker creates a new ValuationWorker with an optional post-run hook.
func NewValuationWorker(trades ActiveTrades, calculator Calculator, interval time.Duration, hook AfterRunHook) *ValuationWorker {
	return &ValuationWorker{
		trades:     trades,
		calculator: calculator,
		interval:   interval,
		hook:       hook,
	}
}

// runHook calls the post-run hook if one is configured.
func (w *ValuationWorker) runHook(ctx context.Context, result *valuation.CalculationResult) {
	if w.hook == nil {
		return
	}
	if err := w.hook.Export(ctx, result); err != nil {
		slog.Error("ValuationWorker: export hook failed", "error", err)
	} else {
		slog.Info("ValuationWorker: export hook completed")
	}
}

// utcDate returns the current date normalized to midnight UTC.
func utcDate() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (w *ValuationWorker) runOnce(ctx context.Context) {
	ids, err := w.trades.ActiveTradeIDs(ctx)
	if err != nil {
		metrics.WorkerRunsTotal.WithLabelValues("valuation", "error").Inc()
		slog.Error("ValuationWorker: listing active trades failed", "error", err)
		return
	}
	if len(ids) == 0 {
		metrics.WorkerRunsTotal.WithLabelValues("valuation", "skipped").Inc()
		slog.Info("ValuationWorker: no active trades")
		return
	}

	result, err := w.calculator.Calculate(ctx, valuation.CalculationRequest{TradeIDs: ids, ValuationDate: utcDate()})
	if err != nil {
		metrics.WorkerRunsTotal.WithLabelValues("valuation", "error").Inc()
		slog.Error("ValuationWorker: valuation failed", "trades", len(ids), "error", err)
		return
	}
	if result.EngineError != "" {
		metrics.WorkerRunsTotal.WithLabelValues("valuation", "error").Inc()
		slog.Error("ValuationWorker: engine run failed", "runId", result.RunID, "error", result.EngineError)
		return
	}

	metrics.WorkerRunsTotal.WithLabelValues("valuation", "ok").Inc()
	slog.Info("ValuationWorker: valuation completed", "runId", result.RunID, "trades", len(result.Results))
	w.runHook(ctx, result)
}

// Run starts the valuation worker loop. It blocks until the context is cancelled.
func (w *ValuationWorker) Run(ctx context.Context) {
	slog.Info("ValuationWorker: starting")

	// Value immediately on startup
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ValuationWorker: shutting down")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}
