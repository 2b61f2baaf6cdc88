package conventions

import (
	"maps"

	"github.com/shopspring/decimal"
)

// MarketTables holds the synthetic per-currency market levels used to build
// market data. It is immutable after construction and safe to share.
type MarketTables struct {
	baseCurrency    string
	baseRates       map[string]decimal.Decimal
	defaultBaseRate decimal.Decimal
	fxRates         map[string]decimal.Decimal
	defaultFXRate   decimal.Decimal
}

// NewMarketTables copies the given tables.
func NewMarketTables(baseCurrency string, baseRates map[string]decimal.Decimal, defaultBaseRate decimal.Decimal,
	fxRates map[string]decimal.Decimal, defaultFXRate decimal.Decimal) *MarketTables {
	return &MarketTables{
		baseCurrency:    baseCurrency,
		baseRates:       maps.Clone(baseRates),
		defaultBaseRate: defaultBaseRate,
		fxRates:         maps.Clone(fxRates),
		defaultFXRate:   defaultFXRate,
	}
}

// DefaultMarketTables returns the standard USD-based levels.
func DefaultMarketTables() *MarketTables {
	return NewMarketTables("USD",
		map[string]decimal.Decimal{
			"USD": decimal.RequireFromString("0.045"),
			"EUR": decimal.RequireFromString("0.035"),
			"GBP": decimal.RequireFromString("0.050"),
			"CHF": decimal.RequireFromString("0.015"),
			"JPY": decimal.RequireFromString("0.001"),
			"AUD": decimal.RequireFromString("0.040"),
			"CAD": decimal.RequireFromString("0.038"),
		},
		decimal.RequireFromString("0.040"),
		map[string]decimal.Decimal{
			"EUR": decimal.RequireFromString("0.92"),
			"GBP": decimal.RequireFromString("0.79"),
			"CHF": decimal.RequireFromString("0.87"),
			"JPY": decimal.RequireFromString("149.5"),
			"AUD": decimal.RequireFromString("1.52"),
			"CAD": decimal.RequireFromString("1.35"),
		},
		decimal.NewFromInt(1),
	)
}

// BaseCurrency is the currency FX quotes are expressed against.
func (t *MarketTables) BaseCurrency() string {
	return t.baseCurrency
}

// BaseRate returns the flat zero-rate level for a currency.
func (t *MarketTables) BaseRate(currency string) decimal.Decimal {
	if r, ok := t.baseRates[currency]; ok {
		return r
	}
	return t.defaultBaseRate
}

// FXRate returns units of currency per unit of base currency.
func (t *MarketTables) FXRate(currency string) decimal.Decimal {
	if currency == t.baseCurrency {
		return decimal.NewFromInt(1)
	}
	if r, ok := t.fxRates[currency]; ok {
		return r
	}
	return t.defaultFXRate
}

// Rebase returns the tables with FX quotes re-expressed against base. The
// receiver is returned when it is already quoted against base.
func (t *MarketTables) Rebase(base string) *MarketTables {
	if base == t.baseCurrency {
		return t
	}
	pivot := t.FXRate(base)
	fx := make(map[string]decimal.Decimal, len(t.fxRates)+1)
	for ccy, r := range t.fxRates {
		if ccy != base {
			fx[ccy] = r.Div(pivot)
		}
	}
	fx[t.baseCurrency] = decimal.NewFromInt(1).Div(pivot)
	return NewMarketTables(base, t.baseRates, t.defaultBaseRate, fx, t.defaultFXRate.Div(pivot))
}
