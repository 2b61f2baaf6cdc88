// Package riskstore persists per-trade risk results produced by engine runs.
package riskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
)

// Record is one stored trade result of a run.
type Record struct {
	RunID       string              `json:"runId"`
	Kind        string              `json:"kind"`
	Measures    domain.RiskMeasures `json:"measures"`
	EngineError string              `json:"engineError,omitempty"`
}

// details carries the optional report fields stored as JSONB.
type details struct {
	FairSpreadClean  *decimal.Decimal  `json:"fairSpreadClean,omitempty"`
	FairSpreadDirty  *decimal.Decimal  `json:"fairSpreadDirty,omitempty"`
	ProtectionLegNPV *decimal.Decimal  `json:"protectionLegNpv,omitempty"`
	PremiumLegNPV    *decimal.Decimal  `json:"premiumLegNpv,omitempty"`
	AccruedPremium   *decimal.Decimal  `json:"accruedPremium,omitempty"`
	UpfrontPremium   *decimal.Decimal  `json:"upfrontPremium,omitempty"`
	CurrentNotional  *decimal.Decimal  `json:"currentNotional,omitempty"`
	OriginalNotional *decimal.Decimal  `json:"originalNotional,omitempty"`
	Cashflows        []domain.Cashflow `json:"cashflows,omitempty"`
	EngineRuntime    decimal.Decimal   `json:"engineRuntime"`
}

func detailsOf(m domain.RiskMeasures) details {
	return details{
		FairSpreadClean:  m.FairSpreadClean,
		FairSpreadDirty:  m.FairSpreadDirty,
		ProtectionLegNPV: m.ProtectionLegNPV,
		PremiumLegNPV:    m.PremiumLegNPV,
		AccruedPremium:   m.AccruedPremium,
		UpfrontPremium:   m.UpfrontPremium,
		CurrentNotional:  m.CurrentNotional,
		OriginalNotional: m.OriginalNotional,
		Cashflows:        m.Cashflows,
		EngineRuntime:    m.EngineRuntime,
	}
}

func (d details) apply(m *domain.RiskMeasures) {
	m.FairSpreadClean = d.FairSpreadClean
	m.FairSpreadDirty = d.FairSpreadDirty
	m.ProtectionLegNPV = d.ProtectionLegNPV
	m.PremiumLegNPV = d.PremiumLegNPV
	m.AccruedPremium = d.AccruedPremium
	m.UpfrontPremium = d.UpfrontPremium
	m.CurrentNotional = d.CurrentNotional
	m.OriginalNotional = d.OriginalNotional
	m.Cashflows = d.Cashflows
	m.EngineRuntime = d.EngineRuntime
}

// PgStore implements result storage with PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL risk result store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Save writes all records of a run in one transaction.
func (s *PgStore) Save(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, r := range records {
		greeks, err := json.Marshal(r.Measures.Greeks)
		if err != nil {
			return fmt.Errorf("marshaling greeks for trade %d: %w", r.Measures.TradeID, err)
		}
		extra, err := json.Marshal(detailsOf(r.Measures))
		if err != nil {
			return fmt.Errorf("marshaling details for trade %d: %w", r.Measures.TradeID, err)
		}
		m := r.Measures
		if _, err := tx.Exec(ctx,
			`INSERT INTO risk_results (run_id, kind, trade_id, valuation_date, currency, npv, dv01, gamma,
			                           var95, expected_shortfall, greeks, details, engine_error, calculated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12::jsonb, $13, $14)
			 ON CONFLICT (run_id, trade_id) DO UPDATE SET
			   npv = $6, dv01 = $7, gamma = $8, var95 = $9, expected_shortfall = $10,
			   greeks = $11::jsonb, details = $12::jsonb, engine_error = $13, calculated_at = $14`,
			r.RunID, r.Kind, m.TradeID, m.ValuationDate, m.Currency, m.NPV, m.DV01, m.Gamma,
			m.VaR95, m.ExpectedShortfall, greeks, extra, r.EngineError, m.CalculatedAt); err != nil {
			return fmt.Errorf("saving result for trade %d: %w", m.TradeID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing results: %w", err)
	}
	return nil
}

const selectRecord = `SELECT run_id, kind, trade_id, valuation_date, currency, npv, dv01, gamma,
       var95, expected_shortfall, greeks, details, engine_error, calculated_at
FROM risk_results`

// ByRun returns the records of one run ordered by trade id.
func (s *PgStore) ByRun(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, selectRecord+` WHERE run_id = $1 ORDER BY trade_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying results for run %s: %w", runID, err)
	}
	return collect(rows)
}

// Latest returns the most recent record of each trade for the valuation date.
func (s *PgStore) Latest(ctx context.Context, valuationDate time.Time) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT ON (trade_id) * FROM (`+selectRecord+`
		 WHERE valuation_date = $1 AND kind = 'calculation') r
		 ORDER BY trade_id, calculated_at DESC`, valuationDate)
	if err != nil {
		return nil, fmt.Errorf("querying latest results: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var greeks, extra []byte
		m := &r.Measures
		if err := rows.Scan(&r.RunID, &r.Kind, &m.TradeID, &m.ValuationDate, &m.Currency, &m.NPV, &m.DV01,
			&m.Gamma, &m.VaR95, &m.ExpectedShortfall, &greeks, &extra, &r.EngineError, &m.CalculatedAt); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		if err := json.Unmarshal(greeks, &m.Greeks); err != nil {
			return nil, fmt.Errorf("decoding greeks: %w", err)
		}
		var d details
		if err := json.Unmarshal(extra, &d); err != nil {
			return nil, fmt.Errorf("decoding details: %w", err)
		}
		d.apply(m)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return records, nil
}
