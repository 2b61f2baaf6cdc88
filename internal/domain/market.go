package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteKind classifies a curve quote.
type QuoteKind string

const (
	QuoteKindZeroRate   QuoteKind = "ZERO_RATE"
	QuoteKindCDSSpread  QuoteKind = "CDS_SPREAD"
	QuoteKindHazardRate QuoteKind = "HAZARD_RATE"
)

// Source records where a snapshot input came from.
type Source string

const (
	SourceLive    Source = "live"
	SourceSample  Source = "sample"
	SourceMissing Source = "missing"
)

// QuoteData is a single curve point.
type QuoteData struct {
	Tenor    string          `json:"tenor"`
	QuoteKey string          `json:"quoteKey"`
	Value    decimal.Decimal `json:"value"`
	Kind     QuoteKind       `json:"kind"`
}

// DiscountCurve groups zero-rate quotes for one currency.
type DiscountCurve struct {
	Currency string      `json:"currency"`
	CurveID  string      `json:"curveId"`
	Quotes   []QuoteData `json:"quotes"`
}

// DefaultCurve groups credit quotes for one reference entity in one currency.
type DefaultCurve struct {
	Entity       string           `json:"entity"`
	Currency     string           `json:"currency"`
	CurveID      string           `json:"curveId"`
	RecoveryRate *decimal.Decimal `json:"recoveryRate,omitempty"`
	Quotes       []QuoteData      `json:"quotes"`
}

// MarketDataSnapshot is the audit record of the market inputs behind an engine run.
type MarketDataSnapshot struct {
	ValuationDate    time.Time                  `json:"valuationDate"`
	BaseCurrency     string                     `json:"baseCurrency"`
	DiscountCurves   []DiscountCurve            `json:"discountCurves"`
	DefaultCurves    []DefaultCurve             `json:"defaultCurves"`
	FXRates          map[string]decimal.Decimal `json:"fxRates"`
	MarketDataFile   string                     `json:"marketDataFile"`
	TodaysMarketFile string                     `json:"todaysMarketFile"`
	CurveConfigFile  string                     `json:"curveConfigFile"`
	Sources          map[string]Source          `json:"sources"`
	Source           Source                     `json:"source"`
	SkippedLines     int                        `json:"skippedLines"`
}

// StressScenario is one generated stress block.
type StressScenario struct {
	ID             string           `json:"id"`
	Entity         string           `json:"entity"`
	SpreadShiftBp  *decimal.Decimal `json:"spreadShiftBp,omitempty"`
	RecoveryTarget *decimal.Decimal `json:"recoveryTarget,omitempty"` // percent
	RecoveryShift  *decimal.Decimal `json:"recoveryShift,omitempty"`  // fraction, target minus base
}
