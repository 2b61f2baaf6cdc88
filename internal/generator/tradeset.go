package generator

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
)

// CreditCurve is one default-curve identity derived from the trade set.
type CreditCurve struct {
	Entity   string
	Currency string
	Spread   decimal.Decimal // decimal form
	Recovery decimal.Decimal // percent
	TradeID  int64           // trade that supplied spread and recovery
}

// TradeSet is a validated, deterministically ordered collection of trades.
type TradeSet struct {
	trades     []domain.Trade
	currencies []string
	curves     []CreditCurve
}

// NewTradeSet validates the trades and derives the distinct currencies and
// credit-curve identities. Identical records under one ID collapse; differing
// records under one ID are rejected with domain.ErrInvalidTrade. For a
// repeated (entity, currency) pair the lowest trade ID wins.
func NewTradeSet(trades []domain.Trade) (*TradeSet, error) {
	if len(trades) == 0 {
		return nil, fmt.Errorf("building trade set: no trades")
	}
	for _, t := range trades {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("building trade set: %w", err)
		}
	}

	byID := make(map[int64]domain.Trade, len(trades))
	for _, t := range trades {
		if seen, ok := byID[t.ID]; ok && !seen.Equal(t) {
			return nil, fmt.Errorf("building trade set: %w %d: conflicting records for one id", domain.ErrInvalidTrade, t.ID)
		}
		byID[t.ID] = t
	}

	sorted := lo.Values(byID)
	slices.SortFunc(sorted, func(a, b domain.Trade) int { return cmp.Compare(a.ID, b.ID) })

	currencies := lo.Uniq(lo.Map(sorted, func(t domain.Trade, _ int) string { return t.Currency }))
	slices.Sort(currencies)

	identities := lo.UniqBy(sorted, func(t domain.Trade) string { return t.ReferenceEntity + "\x00" + t.Currency })
	curves := lo.Map(identities, func(t domain.Trade, _ int) CreditCurve {
		return CreditCurve{
			Entity:   t.ReferenceEntity,
			Currency: t.Currency,
			Spread:   domain.SpreadToDecimal(t.Spread),
			Recovery: t.Recovery(),
			TradeID:  t.ID,
		}
	})
	slices.SortFunc(curves, func(a, b CreditCurve) int {
		return cmp.Or(cmp.Compare(a.Entity, b.Entity), cmp.Compare(a.Currency, b.Currency))
	})

	return &TradeSet{trades: sorted, currencies: currencies, curves: curves}, nil
}

// Trades returns the trades ordered by ID.
func (s *TradeSet) Trades() []domain.Trade {
	return slices.Clone(s.trades)
}

// Currencies returns the distinct trade currencies in lexical order.
func (s *TradeSet) Currencies() []string {
	return slices.Clone(s.currencies)
}

// CreditCurves returns one entry per (entity, currency) ordered by entity then currency.
func (s *TradeSet) CreditCurves() []CreditCurve {
	return slices.Clone(s.curves)
}

// EntityCurves returns one credit curve per entity, the lowest currency winning
// when an entity trades in several currencies.
func (s *TradeSet) EntityCurves() []CreditCurve {
	return lo.UniqBy(s.curves, func(c CreditCurve) string { return c.Entity })
}

// Trade looks up a trade by ID.
func (s *TradeSet) Trade(id int64) (domain.Trade, bool) {
	return lo.Find(s.trades, func(t domain.Trade) bool { return t.ID == id })
}
