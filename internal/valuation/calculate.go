package valuation

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/generator"
	"github.com/mtlprog/cdsrisk/internal/metrics"
)

// CalculationRequest selects trades by ID or carries them inline.
type CalculationRequest struct {
	TradeIDs      []int64         `json:"tradeIds"`
	Trades        []domain.Trade  `json:"trades"`
	ValuationDate time.Time       `json:"valuationDate"` // zero means today
	YieldShiftBp  decimal.Decimal `json:"yieldShiftBp"`
}

// CalculationResult is the outcome of one calculation run.
type CalculationResult struct {
	RunID         string                     `json:"runId"`
	ValuationDate time.Time                  `json:"valuationDate"`
	Results       []TradeResult              `json:"results"`
	Snapshot      *domain.MarketDataSnapshot `json:"snapshot,omitempty"`
	EngineError   string                     `json:"engineError,omitempty"`
}

// Calculate values the trades in one engine run. Input generation errors are
// returned; engine and parse failures are reported per trade with zeroed measures.
func (s *Service) Calculate(ctx context.Context, req CalculationRequest) (*CalculationResult, error) {
	trades, err := s.resolveTrades(ctx, req.TradeIDs, req.Trades)
	if err != nil {
		return nil, err
	}
	date := s.valuationDate(req.ValuationDate)

	ts, err := generator.NewTradeSet(trades)
	if err != nil {
		return nil, err
	}

	r, err := s.newRun("calc")
	if err != nil {
		return nil, err
	}
	defer s.cleanup(r.dir)

	var opts []generator.MarketOption
	if !req.YieldShiftBp.IsZero() {
		opts = append(opts, generator.WithYieldShift(req.YieldShiftBp))
	}
	if err := s.prepare(r, ts, date, false, opts...); err != nil {
		return nil, err
	}

	slog.Info("starting calculation", "runId", r.id, "trades", len(ts.Trades()), "valuationDate", date.Format(time.DateOnly))
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
	s.persist(ctx, r.id, KindCalculation, res.Results)
	observe(KindCalculation, res.Results)

	slog.Info("calculation finished", "runId", r.id, "trades", len(res.Results), "engineError", res.EngineError)
	return res, nil
}

func observe(kind string, results []TradeResult) {
	for _, r := range results {
		outcome := "ok"
		if r.Error != "" {
			outcome = "error"
		}
		metrics.ValuationsTotal.WithLabelValues(kind, outcome).Inc()
	}
}

// Stage writes the inputs and request of a calculation into a new working
// directory without running the engine, and returns its path. The directory
// is always kept.
func (s *Service) Stage(ctx context.Context, req CalculationRequest) (string, error) {
	trades, err := s.resolveTrades(ctx, req.TradeIDs, req.Trades)
	if err != nil {
		return "", err
	}
	ts, err := generator.NewTradeSet(trades)
	if err != nil {
		return "", err
	}
	r, err := s.newRun("staged")
	if err != nil {
		return "", err
	}

	var opts []generator.MarketOption
	if !req.YieldShiftBp.IsZero() {
		opts = append(opts, generator.WithYieldShift(req.YieldShiftBp))
	}
	if err := s.prepare(r, ts, s.valuationDate(req.ValuationDate), false, opts...); err != nil {
		if rmErr := r.dir.Remove(); rmErr != nil {
			slog.Warn("failed to remove work dir", "path", r.dir.Path(), "error", rmErr)
		}
		return "", err
	}
	return r.dir.Path(), nil
}
