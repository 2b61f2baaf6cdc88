package valuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/generator"
	"github.com/mtlprog/cdsrisk/internal/request"
)

// Where a scenario NPV came from.
const (
	ScenarioSourceReport = "report" // stress analytic of the base run
	ScenarioSourceRerun  = "rerun"  // separate run over shocked market data
)

// SevereDeltaNPV is the absolute NPV move above which a scenario is severe.
var SevereDeltaNPV = decimal.NewFromInt(100_000)

// ErrBaseRun is returned when the unstressed run produced no usable result.
var ErrBaseRun = errors.New("stress base run failed")

// StressRequest describes the shocks for one trade.
type StressRequest struct {
	TradeID       int64             `json:"tradeId"`
	Trade         *domain.Trade     `json:"trade,omitempty"`
	RecoveryRates []decimal.Decimal `json:"recoveryRates"` // percent targets
	SpreadShifts  []decimal.Decimal `json:"spreadShifts"`  // basis points
	Combined      bool              `json:"combined"`
	ValuationDate time.Time         `json:"valuationDate"`
}

// ScenarioImpact is the effect of one scenario on the trade's NPV.
type ScenarioImpact struct {
	ID             string           `json:"id"`
	SpreadShiftBp  *decimal.Decimal `json:"spreadShiftBp,omitempty"`
	RecoveryTarget *decimal.Decimal `json:"recoveryRate,omitempty"`
	NPV            decimal.Decimal  `json:"npv"`
	DeltaNPV       decimal.Decimal  `json:"deltaNpv"`
	Severe         bool             `json:"severe"`
	Source         string           `json:"source,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// StressResult is the base valuation of a trade and its scenario impacts.
type StressResult struct {
	RunID         string                     `json:"runId"`
	TradeID       int64                      `json:"tradeId"`
	Currency      string                     `json:"currency"`
	ValuationDate time.Time                  `json:"valuationDate"`
	Base          domain.RiskMeasures        `json:"base"`
	ScenarioCount int                        `json:"scenarioCount"`
	Scenarios     []ScenarioImpact           `json:"scenarios"`
	Snapshot      *domain.MarketDataSnapshot `json:"snapshot,omitempty"`
}

// Stress runs the trade once with the stress analytic over the generated
// scenarios. Scenarios the engine did not report are re-run on shocked market
// data, a few at a time. A failed scenario carries zero values and an error.
func (s *Service) Stress(ctx context.Context, req StressRequest) (*StressResult, error) {
	var inline []domain.Trade
	if req.Trade != nil {
		inline = []domain.Trade{*req.Trade}
	}
	var ids []int64
	if req.TradeID != 0 {
		ids = []int64{req.TradeID}
	}
	trades, err := s.resolveTrades(ctx, ids, inline)
	if err != nil {
		return nil, err
	}
	trade := trades[0]
	date := s.valuationDate(req.ValuationDate)

	ts, err := generator.NewTradeSet([]domain.Trade{trade})
	if err != nil {
		return nil, err
	}
	scenarios, stressDoc, err := s.gen.StressTest(trade, generator.StressRequest{
		RecoveryRates: req.RecoveryRates,
		SpreadShifts:  req.SpreadShifts,
		Combined:      req.Combined,
	})
	if err != nil {
		return nil, err
	}

	r, err := s.newRun("stress-base")
	if err != nil {
		return nil, err
	}
	defer s.cleanup(r.dir)

	if err := r.dir.WriteInput(request.StressConfigFile, stressDoc); err != nil {
		return nil, err
	}
	if err := s.prepare(r, ts, date, len(scenarios) > 0); err != nil {
		return nil, err
	}

	slog.Info("starting stress analysis", "runId", r.id, "tradeId", trade.ID, "scenarios", len(scenarios))
	s.execute(ctx, r)

	results, reports := s.measure(r, []domain.Trade{trade}, date)
	base := results[0]
	s.persist(ctx, r.id, KindStress, results)
	observe(KindStress, results)
	if base.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrBaseRun, base.Error)
	}

	impacts := make([]ScenarioImpact, len(scenarios))
	var pending []int
	for i, sc := range scenarios {
		impacts[i] = ScenarioImpact{ID: sc.ID, SpreadShiftBp: sc.SpreadShiftBp, RecoveryTarget: sc.RecoveryTarget}
		if row, ok := reports.ScenarioNPV(trade.ID, sc.ID); ok {
			impacts[i].NPV = domain.RoundMoney(row.ScenarioNPV)
			impacts[i].Source = ScenarioSourceReport
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) > 0 {
		slog.Info("re-running unreported stress scenarios", "runId", r.id, "count", len(pending))
		s.rerunScenarios(ctx, ts, trade, date, scenarios, pending, impacts)
	}

	worstRecovery, widestSpread := extremes(req)
	for i := range impacts {
		im := &impacts[i]
		if im.Error != "" {
			continue
		}
		im.DeltaNPV = im.NPV.Sub(base.Measures.NPV)
		im.Severe = im.DeltaNPV.Abs().GreaterThan(SevereDeltaNPV) ||
			(req.Combined && isCombination(scenarios[i], worstRecovery, widestSpread))
		if im.Severe {
			slog.Warn("severe stress scenario", "runId", r.id, "tradeId", trade.ID, "scenario", im.ID, "deltaNpv", im.DeltaNPV)
		}
	}

	res := &StressResult{
		RunID:         r.id,
		TradeID:       trade.ID,
		Currency:      base.Measures.Currency,
		ValuationDate: date,
		Base:          base.Measures,
		ScenarioCount: len(impacts),
		Scenarios:     impacts,
		Snapshot:      s.capture(ctx, r, date),
	}
	slog.Info("stress analysis finished", "runId", r.id, "tradeId", trade.ID, "scenarios", len(impacts))
	return res, nil
}

// rerunScenarios values each pending scenario in its own working directory
// with the shock applied to the generated market data.
func (s *Service) rerunScenarios(ctx context.Context, ts *generator.TradeSet, trade domain.Trade, date time.Time,
	scenarios []domain.StressScenario, pending []int, impacts []ScenarioImpact) {
	var mu sync.Mutex
	var failed int

	sem := make(chan struct{}, s.cfg.StressConcurrency)
	var wg sync.WaitGroup

	for _, i := range pending {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			npv, err := s.runScenario(ctx, ts, trade, date, scenarios[i])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("stress scenario failed", "tradeId", trade.ID, "scenario", scenarios[i].ID, "error", err)
				impacts[i].Error = err.Error()
				failed++
				return
			}
			impacts[i].NPV = npv
			impacts[i].Source = ScenarioSourceRerun
		}(i)
	}

	wg.Wait()

	if failed > 0 {
		slog.Warn("some stress scenarios failed", "failed", failed, "total", len(pending))
	}
}

func (s *Service) runScenario(ctx context.Context, ts *generator.TradeSet, trade domain.Trade, date time.Time, sc domain.StressScenario) (decimal.Decimal, error) {
	var opts []generator.MarketOption
	if sc.SpreadShiftBp != nil {
		opts = append(opts, generator.WithSpreadShift(*sc.SpreadShiftBp))
	}
	if sc.RecoveryTarget != nil {
		opts = append(opts, generator.WithRecoveryOverride(*sc.RecoveryTarget))
	}

	r, err := s.newRun("stress-" + sc.ID)
	if err != nil {
		return decimal.Zero, err
	}
	defer s.cleanup(r.dir)

	if err := s.prepare(r, ts, date, false, opts...); err != nil {
		return decimal.Zero, err
	}
	s.execute(ctx, r)

	results, _ := s.measure(r, []domain.Trade{trade}, date)
	if results[0].Error != "" {
		return decimal.Zero, errors.New(results[0].Error)
	}
	return results[0].Measures.NPV, nil
}

// extremes returns the lowest requested recovery and the widest spread shift.
func extremes(req StressRequest) (*decimal.Decimal, *decimal.Decimal) {
	var recovery, spread *decimal.Decimal
	if len(req.RecoveryRates) > 0 {
		v := slices.MinFunc(req.RecoveryRates, decimal.Decimal.Cmp)
		recovery = &v
	}
	if len(req.SpreadShifts) > 0 {
		v := slices.MaxFunc(req.SpreadShifts, decimal.Decimal.Cmp)
		spread = &v
	}
	return recovery, spread
}

func isCombination(sc domain.StressScenario, recovery, spread *decimal.Decimal) bool {
	return sc.RecoveryTarget != nil && sc.SpreadShiftBp != nil && recovery != nil && spread != nil &&
		sc.RecoveryTarget.Equal(*recovery) && sc.SpreadShiftBp.Equal(*spread)
}
