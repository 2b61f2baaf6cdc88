package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Greek names used as keys in RiskMeasures.Greeks.
const (
	GreekDelta = "delta"
	GreekVega  = "vega"
	GreekTheta = "theta"
	GreekRho   = "rho"
)

// RiskMeasures is the per-trade result extracted from engine output.
// Money fields carry two decimal places, Gamma and Greeks six.
type RiskMeasures struct {
	TradeID           int64                      `json:"tradeId"`
	ValuationDate     time.Time                  `json:"valuationDate"`
	Currency          string                     `json:"currency"`
	NPV               decimal.Decimal            `json:"npv"`
	DV01              decimal.Decimal            `json:"dv01"`
	Gamma             decimal.Decimal            `json:"gamma"`
	VaR95             decimal.Decimal            `json:"var95"`
	ExpectedShortfall decimal.Decimal            `json:"expectedShortfall"`
	Greeks            map[string]decimal.Decimal `json:"greeks"`

	FairSpreadClean  *decimal.Decimal `json:"fairSpreadClean,omitempty"`
	FairSpreadDirty  *decimal.Decimal `json:"fairSpreadDirty,omitempty"`
	ProtectionLegNPV *decimal.Decimal `json:"protectionLegNpv,omitempty"`
	PremiumLegNPV    *decimal.Decimal `json:"premiumLegNpv,omitempty"`
	AccruedPremium   *decimal.Decimal `json:"accruedPremium,omitempty"`
	UpfrontPremium   *decimal.Decimal `json:"upfrontPremium,omitempty"`
	CurrentNotional  *decimal.Decimal `json:"currentNotional,omitempty"`
	OriginalNotional *decimal.Decimal `json:"originalNotional,omitempty"`

	Cashflows     []Cashflow      `json:"cashflows,omitempty"`
	EngineRuntime decimal.Decimal `json:"engineRuntime"`
	CalculatedAt  time.Time       `json:"calculatedAt"`
}

// ZeroRiskMeasures returns a fully zeroed result for the trade.
func ZeroRiskMeasures(tradeID int64, currency string) RiskMeasures {
	return RiskMeasures{
		TradeID:  tradeID,
		Currency: currency,
		Greeks: map[string]decimal.Decimal{
			GreekDelta: decimal.Zero,
			GreekVega:  decimal.Zero,
			GreekTheta: decimal.Zero,
			GreekRho:   decimal.Zero,
		},
	}
}

// Cashflow is one row of the engine's cashflow report.
type Cashflow struct {
	TradeID          string           `json:"tradeId"`
	Type             string           `json:"type"`
	CashflowNo       int              `json:"cashflowNo"`
	LegNo            int              `json:"legNo"`
	PayDate          *time.Time       `json:"payDate,omitempty"`
	FlowType         string           `json:"flowType"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Currency         string           `json:"currency"`
	Coupon           *decimal.Decimal `json:"coupon,omitempty"`
	Accrual          *decimal.Decimal `json:"accrual,omitempty"`
	AccrualStartDate *time.Time       `json:"accrualStartDate,omitempty"`
	AccrualEndDate   *time.Time       `json:"accrualEndDate,omitempty"`
	AccruedAmount    *decimal.Decimal `json:"accruedAmount,omitempty"`
	Notional         *decimal.Decimal `json:"notional,omitempty"`
	DiscountFactor   *decimal.Decimal `json:"discountFactor,omitempty"`
	PresentValue     *decimal.Decimal `json:"presentValue,omitempty"`
	FXRate           *decimal.Decimal `json:"fxRate,omitempty"`
	PresentValueBase *decimal.Decimal `json:"presentValueBase,omitempty"`
}
