package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the protection side of a CDS trade.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// DefaultRecoveryPercent applies when a trade carries no recovery rate.
var DefaultRecoveryPercent = decimal.NewFromInt(40)

// ErrInvalidTrade is wrapped by every trade validation failure.
var ErrInvalidTrade = errors.New("invalid trade")

var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// Trade is the trade-for-valuation record supplied by the upstream trade store.
type Trade struct {
	ID               int64           `json:"id"`
	ReferenceEntity  string          `json:"referenceEntity"`
	Notional         decimal.Decimal `json:"notional"`
	Spread           decimal.Decimal `json:"spread"`
	Currency         string          `json:"currency"`
	EffectiveDate    time.Time       `json:"effectiveDate"`
	MaturityDate     time.Time       `json:"maturityDate"`
	PremiumFrequency string          `json:"premiumFrequency"`
	DayCount         string          `json:"dayCount"`
	Direction        Direction       `json:"direction"`
	PaymentCalendar  string          `json:"paymentCalendar"`
	RecoveryRate     decimal.Decimal `json:"recoveryRate"` // percent, zero means default
}

// Validate checks the fields every generated document depends on.
func (t Trade) Validate() error {
	if t.ReferenceEntity == "" {
		return fmt.Errorf("%w %d: empty reference entity", ErrInvalidTrade, t.ID)
	}
	if strings.ContainsAny(t.ReferenceEntity, "/ \t\r\n") {
		return fmt.Errorf("%w %d: reference entity %q contains '/' or whitespace", ErrInvalidTrade, t.ID, t.ReferenceEntity)
	}
	if !currencyRegex.MatchString(t.Currency) {
		return fmt.Errorf("%w %d: currency %q is not an ISO-4217 code", ErrInvalidTrade, t.ID, t.Currency)
	}
	if !t.Notional.IsPositive() {
		return fmt.Errorf("%w %d: notional must be positive, got %s", ErrInvalidTrade, t.ID, t.Notional)
	}
	if t.Spread.IsNegative() {
		return fmt.Errorf("%w %d: negative spread %s", ErrInvalidTrade, t.ID, t.Spread)
	}
	if !t.MaturityDate.After(t.EffectiveDate) {
		return fmt.Errorf("%w %d: maturity %s not after effective date %s", ErrInvalidTrade, t.ID,
			t.MaturityDate.Format(time.DateOnly), t.EffectiveDate.Format(time.DateOnly))
	}
	if t.Direction != DirectionBuy && t.Direction != DirectionSell {
		return fmt.Errorf("%w %d: unknown direction %q", ErrInvalidTrade, t.ID, t.Direction)
	}
	return nil
}

// Equal reports whether t and o describe the same trade. Decimals and dates
// compare by value.
func (t Trade) Equal(o Trade) bool {
	return t.ID == o.ID &&
		t.ReferenceEntity == o.ReferenceEntity &&
		t.Notional.Equal(o.Notional) &&
		t.Spread.Equal(o.Spread) &&
		t.Currency == o.Currency &&
		t.EffectiveDate.Equal(o.EffectiveDate) &&
		t.MaturityDate.Equal(o.MaturityDate) &&
		t.PremiumFrequency == o.PremiumFrequency &&
		t.DayCount == o.DayCount &&
		t.Direction == o.Direction &&
		t.PaymentCalendar == o.PaymentCalendar &&
		t.Recovery().Equal(o.Recovery())
}

// Recovery returns the recovery rate in percent, falling back to DefaultRecoveryPercent.
func (t Trade) Recovery() decimal.Decimal {
	if t.RecoveryRate.IsZero() {
		return DefaultRecoveryPercent
	}
	return t.RecoveryRate
}

// BuysProtection reports whether the trade pays the fixed leg.
func (t Trade) BuysProtection() bool {
	return t.Direction == DirectionBuy
}

// EngineTradeID is the identifier the trade carries inside engine documents and reports.
func (t Trade) EngineTradeID() string {
	return EngineTradeID(t.ID)
}

// EngineTradeID formats a trade ID the way portfolio documents name trades.
func EngineTradeID(id int64) string {
	return fmt.Sprintf("CDS_%d", id)
}
