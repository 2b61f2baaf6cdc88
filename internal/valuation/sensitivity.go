package valuation

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/generator"
	"github.com/mtlprog/cdsrisk/internal/request"
)

// SensitivityRequest is a what-if run over named yield-curve shocks.
type SensitivityRequest struct {
	TradeIDs      []int64                    `json:"tradeIds"`
	Trades        []domain.Trade             `json:"trades"`
	ValuationDate time.Time                  `json:"valuationDate"`
	Scenarios     map[string]decimal.Decimal `json:"scenarios"` // key -> absolute shift
	Analytics     *request.AnalyticSet       `json:"analytics,omitempty"`
}

// Sensitivity values the trades with the sensitivity analytic enabled.
func (s *Service) Sensitivity(ctx context.Context, req SensitivityRequest) (*CalculationResult, error) {
	trades, err := s.resolveTrades(ctx, req.TradeIDs, req.Trades)
	if err != nil {
		return nil, err
	}
	date := s.valuationDate(req.ValuationDate)

	ts, err := generator.NewTradeSet(trades)
	if err != nil {
		return nil, err
	}
	analytics := request.DefaultSensitivityAnalytics()
	if req.Analytics != nil {
		analytics = *req.Analytics
	}

	r, err := s.newRun("sensitivity")
	if err != nil {
		return nil, err
	}
	defer s.cleanup(r.dir)

	if err := s.stageMarket(r, ts, date); err != nil {
		return nil, err
	}
	doc, err := s.builder.Sensitivity(request.SensitivityParams{
		ValuationDate: date,
		InputDir:      r.dir.InputDir(),
		OutputDir:     r.dir.OutputDir(),
		Trades:        ts.Trades(),
		Scenarios:     req.Scenarios,
		Analytics:     analytics,
	})
	if err != nil {
		return nil, err
	}
	if err := r.dir.WriteRoot(request.RequestFile, doc); err != nil {
		return nil, err
	}

	slog.Info("starting sensitivity run", "runId", r.id, "trades", len(ts.Trades()), "scenarios", len(req.Scenarios))
	s.execute(ctx, r)

	results, _ := s.measure(r, ts.Trades(), date)
	res := &CalculationResult{
		RunID:         r.id,
		ValuationDate: date,
		Results:       results,
		Snapshot:      s.capture(ctx, r, date),
	}
	if r.err != nil {
		res.EngineError = engineFailure(r.err, r.output)
	}
	s.persist(ctx, r.id, KindSensitivity, results)
	observe(KindSensitivity, results)
	return res, nil
}

// HealthStatus is the outcome of an engine health check.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	CheckedAt time.Time     `json:"checkedAt"`
	Duration  time.Duration `json:"durationNs"`
	Error     string        `json:"error,omitempty"`
}

// HealthCheck runs the engine over a request with no trades and no analytics.
func (s *Service) HealthCheck(ctx context.Context) HealthStatus {
	started := s.now()
	status := HealthStatus{CheckedAt: started.UTC()}

	fail := func(err error) HealthStatus {
		status.Error = err.Error()
		status.Duration = s.now().Sub(started)
		slog.Warn("engine health check failed", "error", err)
		return status
	}

	r, err := s.newRun("health")
	if err != nil {
		return fail(err)
	}
	defer s.cleanup(r.dir)

	doc, err := s.builder.HealthCheck(s.valuationDate(time.Time{}), r.dir.InputDir(), r.dir.OutputDir())
	if err != nil {
		return fail(err)
	}
	if err := r.dir.WriteRoot(request.RequestFile, doc); err != nil {
		return fail(err)
	}

	s.execute(ctx, r)
	if r.err != nil {
		status.Error = engineFailure(r.err, r.output)
		status.Duration = s.now().Sub(started)
		slog.Warn("engine health check failed", "error", status.Error)
		return status
	}

	status.Healthy = true
	status.Duration = s.now().Sub(started)
	slog.Debug("engine health check passed", "duration", status.Duration)
	return status
}
