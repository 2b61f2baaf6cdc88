package generator

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/quotekey"
)

// MarketDateFormat is the date token leading every market-data line.
const MarketDateFormat = "20060102"

// yieldCurveTerm is the term-structure add-on over the currency base rate, per yieldTenors.
var yieldCurveTerm = []decimal.Decimal{
	decimal.RequireFromString("0.002"),
	decimal.RequireFromString("0.005"),
	decimal.RequireFromString("0.008"),
	decimal.RequireFromString("0.010"),
}

type marketOptions struct {
	yieldShiftBp     decimal.Decimal
	spreadShiftBp    decimal.Decimal
	recoveryOverride *decimal.Decimal
}

// MarketOption adjusts generated market levels.
type MarketOption func(*marketOptions)

// WithYieldShift shifts every zero rate in parallel by bp basis points.
func WithYieldShift(bp decimal.Decimal) MarketOption {
	return func(o *marketOptions) { o.yieldShiftBp = bp }
}

// WithSpreadShift widens every credit spread by bp basis points.
func WithSpreadShift(bp decimal.Decimal) MarketOption {
	return func(o *marketOptions) { o.spreadShiftBp = bp }
}

// WithRecoveryOverride replaces every recovery rate with pct percent.
func WithRecoveryOverride(pct decimal.Decimal) MarketOption {
	return func(o *marketOptions) { o.recoveryOverride = &pct }
}

// MarketData renders the line-oriented market-data file: one zero curve per
// currency, FX spots for non-base currencies and credit quotes per curve identity.
func (g *Generator) MarketData(ts *TradeSet, valuationDate time.Time, opts ...MarketOption) (string, error) {
	var o marketOptions
	for _, opt := range opts {
		opt(&o)
	}

	date := valuationDate.Format(MarketDateFormat)
	base := g.BaseCurrency()

	var sb strings.Builder
	sb.WriteString("# Market data for CDS valuation\n")
	fmt.Fprintf(&sb, "# Valuation date: %s\n\n", valuationDate.Format(time.DateOnly))

	sb.WriteString("# Yield Curves\n")
	yieldShift := domain.BasisPoints(o.yieldShiftBp)
	for _, ccy := range ts.Currencies() {
		fmt.Fprintf(&sb, "# %s Yield Curve", ccy)
		if !o.yieldShiftBp.IsZero() {
			fmt.Fprintf(&sb, " (shifted by %s bp)", o.yieldShiftBp)
		}
		sb.WriteByte('\n')

		rate := g.tables.BaseRate(ccy)
		for i, tenor := range yieldTenors {
			if err := writeQuote(&sb, date, quotekey.Zero(ccy, yieldCurveID(ccy), curveDayCounter, tenor),
				rate.Add(yieldCurveTerm[i]).Add(yieldShift)); err != nil {
				return "", err
			}
		}
	}
	sb.WriteByte('\n')

	var fx []string
	for _, ccy := range ts.Currencies() {
		if ccy != base {
			fx = append(fx, ccy)
		}
	}
	if len(fx) > 0 {
		sb.WriteString("# FX Spot Rates\n")
		for _, ccy := range fx {
			if err := writeQuote(&sb, date, quotekey.FX(ccy, base), g.tables.FXRate(ccy)); err != nil {
				return "", err
			}
		}
		sb.WriteByte('\n')
	}

	sb.WriteString("# CDS Default Curves and Recovery Rates\n")
	spreadShift := domain.BasisPoints(o.spreadShiftBp)
	for _, c := range ts.CreditCurves() {
		recovery := c.Recovery
		if o.recoveryOverride != nil {
			recovery = *o.recoveryOverride
		}
		fmt.Fprintf(&sb, "# %s %s (Recovery Rate: %s%%)\n", c.Entity, c.Currency, recovery)
		if err := writeQuote(&sb, date, quotekey.Recovery(c.Entity, seniority, c.Currency),
			domain.PercentToDecimal(recovery)); err != nil {
			return "", err
		}
		spread := c.Spread.Add(spreadShift)
		for _, tenor := range creditTenors {
			if err := writeQuote(&sb, date, quotekey.CDSSpread(c.Entity, seniority, c.Currency, tenor), spread); err != nil {
				return "", err
			}
		}
	}

	return sb.String(), nil
}

func writeQuote(sb *strings.Builder, date string, key quotekey.Key, value decimal.Decimal) error {
	k, err := quotekey.Encode(key)
	if err != nil {
		return fmt.Errorf("market data quote: %w", err)
	}
	fmt.Fprintf(sb, "%s %s %s\n", date, k, value.String())
	return nil
}
