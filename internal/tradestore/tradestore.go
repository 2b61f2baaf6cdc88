// Package tradestore loads trade-for-valuation records.
package tradestore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
)

// ErrNotFound indicates that one or more requested trades do not exist.
var ErrNotFound = errors.New("trade not found")

// PgStore reads trades from the cds_trades table.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL trade store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Get returns the trades with the given ids, ordered by id. Missing ids are
// reported with ErrNotFound.
func (s *PgStore) Get(ctx context.Context, ids []int64) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, reference_entity, notional, spread, currency, effective_date, maturity_date,
		        premium_frequency, day_count, direction, payment_calendar, recovery_rate
		 FROM cds_trades
		 WHERE id = ANY($1)
		 ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var direction string
		if err := rows.Scan(&t.ID, &t.ReferenceEntity, &t.Notional, &t.Spread, &t.Currency,
			&t.EffectiveDate, &t.MaturityDate, &t.PremiumFrequency, &t.DayCount, &direction,
			&t.PaymentCalendar, &t.RecoveryRate); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		t.Direction = domain.Direction(direction)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trades: %w", err)
	}
	return trades, checkComplete(ids, trades)
}

// ActiveTradeIDs returns the ids of trades that have not matured as of today.
func (s *PgStore) ActiveTradeIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM cds_trades WHERE status = 'ACTIVE' AND maturity_date > CURRENT_DATE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying active trades: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning trade id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trade ids: %w", err)
	}
	return ids, nil
}

// TradeInput is the JSON layout of a trade in a trades file or request body,
// with dates as YYYY-MM-DD.
type TradeInput struct {
	ID               int64           `json:"id"`
	ReferenceEntity  string          `json:"referenceEntity"`
	Notional         decimal.Decimal `json:"notional"`
	Spread           decimal.Decimal `json:"spread"`
	Currency         string          `json:"currency"`
	EffectiveDate    string          `json:"effectiveDate"`
	MaturityDate     string          `json:"maturityDate"`
	PremiumFrequency string          `json:"premiumFrequency"`
	DayCount         string          `json:"dayCount"`
	Direction        string          `json:"direction"`
	PaymentCalendar  string          `json:"paymentCalendar"`
	RecoveryRate     decimal.Decimal `json:"recoveryRate"`
}

// Trade converts the input into a domain trade.
func (f TradeInput) Trade() (domain.Trade, error) {
	effective, err := time.Parse(time.DateOnly, f.EffectiveDate)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade %d effective date: %w", f.ID, err)
	}
	maturity, err := time.Parse(time.DateOnly, f.MaturityDate)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade %d maturity date: %w", f.ID, err)
	}
	return domain.Trade{
		ID:               f.ID,
		ReferenceEntity:  f.ReferenceEntity,
		Notional:         f.Notional,
		Spread:           f.Spread,
		Currency:         f.Currency,
		EffectiveDate:    effective,
		MaturityDate:     maturity,
		PremiumFrequency: f.PremiumFrequency,
		DayCount:         f.DayCount,
		Direction:        domain.Direction(f.Direction),
		PaymentCalendar:  f.PaymentCalendar,
		RecoveryRate:     f.RecoveryRate,
	}, nil
}

// FileStore serves trades from a JSON array loaded once, for offline runs.
type FileStore struct {
	trades map[int64]domain.Trade
	now    func() time.Time
}

// LoadFile reads a JSON array of trades.
func LoadFile(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trades file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes a JSON array of trades.
func ParseFile(data []byte) (*FileStore, error) {
	var raw []TradeInput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding trades: %w", err)
	}
	trades := make([]domain.Trade, 0, len(raw))
	for _, ft := range raw {
		t, err := ft.Trade()
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return &FileStore{
		trades: lo.KeyBy(trades, func(t domain.Trade) int64 { return t.ID }),
		now:    time.Now,
	}, nil
}

// Get returns the trades with the given ids, ordered by id.
func (s *FileStore) Get(_ context.Context, ids []int64) ([]domain.Trade, error) {
	var trades []domain.Trade
	for _, id := range lo.Uniq(ids) {
		if t, ok := s.trades[id]; ok {
			trades = append(trades, t)
		}
	}
	slices.SortFunc(trades, func(a, b domain.Trade) int { return cmp.Compare(a.ID, b.ID) })
	return trades, checkComplete(ids, trades)
}

// ActiveTradeIDs returns the ids of trades maturing after today.
func (s *FileStore) ActiveTradeIDs(_ context.Context) ([]int64, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	ids := lo.FilterMap(lo.Values(s.trades), func(t domain.Trade, _ int) (int64, bool) {
		return t.ID, t.MaturityDate.After(today)
	})
	slices.Sort(ids)
	return ids, nil
}

// All returns every trade, ordered by id.
func (s *FileStore) All() []domain.Trade {
	trades := lo.Values(s.trades)
	slices.SortFunc(trades, func(a, b domain.Trade) int { return cmp.Compare(a.ID, b.ID) })
	return trades
}

func checkComplete(ids []int64, trades []domain.Trade) error {
	found := lo.SliceToMap(trades, func(t domain.Trade) (int64, struct{}) { return t.ID, struct{}{} })
	missing := lo.Filter(lo.Uniq(ids), func(id int64, _ int) bool {
		_, ok := found[id]
		return !ok
	})
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrNotFound, missing)
	}
	return nil
}
