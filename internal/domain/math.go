package domain

import (
	"github.com/shopspring/decimal"
)

const (
	moneyPrecision = 2
	greekPrecision = 6
)

var basisPointsPerUnit = decimal.NewFromInt(10000)

// SafeParse parses a string into a decimal, returning zero for invalid or empty input.
func SafeParse(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SpreadToDecimal converts a quoted spread to decimal form.
// Values above 1 are treated as basis points, anything else is already a decimal.
func SpreadToDecimal(spread decimal.Decimal) decimal.Decimal {
	if spread.GreaterThan(decimal.NewFromInt(1)) {
		return spread.Div(basisPointsPerUnit)
	}
	return spread
}

// BasisPoints converts a basis-point amount into decimal form.
func BasisPoints(bp decimal.Decimal) decimal.Decimal {
	return bp.Div(basisPointsPerUnit)
}

// PercentToDecimal converts a percentage (40) into a fraction (0.4).
func PercentToDecimal(pct decimal.Decimal) decimal.Decimal {
	return pct.Div(decimal.NewFromInt(100))
}

// RoundMoney rounds half-up to two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPrecision)
}

// RoundGreek rounds half-up to six decimal places.
func RoundGreek(d decimal.Decimal) decimal.Decimal {
	return d.Round(greekPrecision)
}
