// Package export writes valuation results to spreadsheet destinations.
package export

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/riskstore"
	"github.com/mtlprog/cdsrisk/internal/valuation"
)

// RiskRow is one trade's line in the risk report.
type RiskRow struct {
	domain.RiskMeasures
	Error     string
	NPVChange *decimal.Decimal // against the previous day's stored result
}

// CurrencyTotal aggregates the rows of one currency.
type CurrencyTotal struct {
	Currency          string
	Trades            int
	Failed            int
	NPV               decimal.Decimal
	DV01              decimal.Decimal
	VaR95             decimal.Decimal
	ExpectedShortfall decimal.Decimal
}

// History returns previously stored results.
type History interface {
	Latest(ctx context.Context, valuationDate time.Time) ([]riskstore.Record, error)
}

// SheetWriter writes risk rows to a spreadsheet destination.
type SheetWriter interface {
	Write(ctx context.Context, valuationDate time.Time, rows []RiskRow) error
}

// Service turns a valuation result into report rows and delegates writing.
type Service struct {
	history History // optional
	writers []SheetWriter
}

// NewService creates a new export Service. Nil writers are ignored.
func NewService(history History, writers ...SheetWriter) *Service {
	return &Service{
		history: history,
		writers: lo.Filter(writers, func(w SheetWriter, _ int) bool { return w != nil }),
	}
}

// Enabled reports whether any writer is configured.
func (s *Service) Enabled() bool {
	return len(s.writers) > 0
}

// Export builds the report rows with day-over-day NPV changes and writes them
// to every configured writer. Implements worker.AfterRunHook.
func (s *Service) Export(ctx context.Context, result *valuation.CalculationResult) error {
	if result == nil {
		return fmt.Errorf("export: nil result")
	}

	previous := s.fetchPrevious(ctx, result.ValuationDate.AddDate(0, 0, -1))

	rows := make([]RiskRow, 0, len(result.Results))
	for _, r := range result.Results {
		row := RiskRow{RiskMeasures: r.Measures, Error: r.Error}
		if r.Error == "" {
			row.NPVChange = computeChange(r.Measures, previous)
		}
		rows = append(rows, row)
	}

	var errs []error
	for _, w := range s.writers {
		if err := w.Write(ctx, result.ValuationDate, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fetchPrevious returns the stored results of a date keyed by trade id.
func (s *Service) fetchPrevious(ctx context.Context, date time.Time) map[int64]domain.RiskMeasures {
	if s.history == nil {
		return nil
	}
	records, err := s.history.Latest(ctx, date)
	if err != nil {
		slog.Warn("export: previous results unavailable", "date", date.Format(time.DateOnly), "error", err)
		return nil
	}
	ok := lo.Filter(records, func(r riskstore.Record, _ int) bool { return r.EngineError == "" })
	return lo.SliceToMap(ok, func(r riskstore.Record) (int64, domain.RiskMeasures) {
		return r.Measures.TradeID, r.Measures
	})
}

// computeChange returns current NPV minus the previous NPV, or nil if unavailable.
func computeChange(current domain.RiskMeasures, previous map[int64]domain.RiskMeasures) *decimal.Decimal {
	prev, ok := previous[current.TradeID]
	if !ok || prev.Currency != current.Currency {
		return nil
	}
	change := current.NPV.Sub(prev.NPV)
	return &change
}

// summarize totals the rows per currency in currency order. Failed rows count
// towards Failed only.
func summarize(rows []RiskRow) []CurrencyTotal {
	groups := lo.GroupBy(rows, func(r RiskRow) string { return r.Currency })
	totals := make([]CurrencyTotal, 0, len(groups))
	for ccy, group := range groups {
		t := CurrencyTotal{Currency: ccy, Trades: len(group)}
		for _, r := range group {
			if r.Error != "" {
				t.Failed++
				continue
			}
			t.NPV = t.NPV.Add(r.NPV)
			t.DV01 = t.DV01.Add(r.DV01)
			t.VaR95 = t.VaR95.Add(r.VaR95)
			t.ExpectedShortfall = t.ExpectedShortfall.Add(r.ExpectedShortfall)
		}
		totals = append(totals, t)
	}
	slices.SortFunc(totals, func(a, b CurrencyTotal) int { return cmp.Compare(a.Currency, b.Currency) })
	return totals
}

// buildRiskAll builds the RISK_ALL table.
// Columns: Trade | Currency | NPV | NPV Change | DV01 | Gamma | VaR95 | ES |
// Delta | Vega | Theta | Rho | Fair Spread | Protection Leg | Premium Leg | Error
func buildRiskAll(rows []RiskRow) [][]any {
	data := make([][]any, 0, len(rows)+1)
	data = append(data, []any{
		"Trade", "Currency", "NPV", "NPV Change", "DV01", "Gamma", "VaR95", "ES",
		"Delta", "Vega", "Theta", "Rho", "Fair Spread", "Protection Leg", "Premium Leg", "Error",
	})

	for _, r := range rows {
		data = append(data, []any{
			r.TradeID, r.Currency,
			toFloat(r.NPV), ptrFloat(r.NPVChange),
			toFloat(r.DV01), toFloat(r.Gamma), toFloat(r.VaR95), toFloat(r.ExpectedShortfall),
			toFloat(r.Greeks[domain.GreekDelta]), toFloat(r.Greeks[domain.GreekVega]),
			toFloat(r.Greeks[domain.GreekTheta]), toFloat(r.Greeks[domain.GreekRho]),
			ptrFloat(r.FairSpreadClean), ptrFloat(r.ProtectionLegNPV), ptrFloat(r.PremiumLegNPV),
			r.Error,
		})
	}

	return data
}

// buildSummary builds the RISK_SUMMARY table.
// Columns: Currency | Trades | Failed | NPV | DV01 | VaR95 | ES
func buildSummary(rows []RiskRow) [][]any {
	data := [][]any{
		{"Currency", "Trades", "Failed", "NPV", "DV01", "VaR95", "ES"},
	}

	for _, t := range summarize(rows) {
		data = append(data, []any{
			t.Currency, t.Trades, t.Failed,
			toFloat(t.NPV), toFloat(t.DV01), toFloat(t.VaR95), toFloat(t.ExpectedShortfall),
		})
	}

	return data
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func ptrFloat(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return f
}
