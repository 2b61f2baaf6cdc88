package generator

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/mtlprog/cdsrisk/internal/conventions"
	"github.com/mtlprog/cdsrisk/internal/domain"
)

type portfolio struct {
	XMLName xml.Name          `xml:"Portfolio"`
	Trades  []TradeDefinition `xml:"Trade"`
}

// TradeDefinition is the engine product definition of one CDS trade. It is
// embedded both in portfolio files and in sensitivity request documents.
type TradeDefinition struct {
	XMLName   xml.Name `xml:"Trade"`
	ID        string   `xml:"id,attr"`
	TradeType string   `xml:"TradeType"`
	CDS       cdsData  `xml:"CreditDefaultSwapData"`
}

type cdsData struct {
	IssuerID              string  `xml:"IssuerId"`
	CreditCurveID         string  `xml:"CreditCurveId"`
	SettlesAccrual        bool    `xml:"SettlesAccrual"`
	ProtectionPaymentTime string  `xml:"ProtectionPaymentTime"`
	Leg                   legData `xml:"LegData"`
}

type legData struct {
	LegType           string       `xml:"LegType"`
	Payer             bool         `xml:"Payer"`
	Currency          string       `xml:"Currency"`
	PaymentConvention string       `xml:"PaymentConvention"`
	DayCounter        string       `xml:"DayCounter"`
	Notionals         notionals    `xml:"Notionals"`
	Schedule          scheduleRule `xml:"ScheduleData>Rules"`
	Rates             []string     `xml:"FixedLegData>Rates>Rate"`
}

type notionals struct {
	Notional  string    `xml:"Notional"`
	Exchanges exchanges `xml:"Exchanges"`
}

type exchanges struct {
	Initial    bool `xml:"NotionalInitialExchange"`
	Final      bool `xml:"NotionalFinalExchange"`
	Amortizing bool `xml:"NotionalAmortizingExchange"`
}

type scheduleRule struct {
	StartDate      string   `xml:"StartDate"`
	EndDate        string   `xml:"EndDate"`
	Tenor          string   `xml:"Tenor"`
	Calendar       string   `xml:"Calendar"`
	Convention     string   `xml:"Convention"`
	TermConvention string   `xml:"TermConvention"`
	Rule           string   `xml:"Rule"`
	EndOfMonth     struct{} `xml:"EndOfMonth"`
	FirstDate      struct{} `xml:"FirstDate"`
	LastDate       struct{} `xml:"LastDate"`
}

// PortfolioTrade builds the product definition for a single trade.
func (g *Generator) PortfolioTrade(t domain.Trade) (TradeDefinition, error) {
	if err := t.Validate(); err != nil {
		return TradeDefinition{}, fmt.Errorf("portfolio trade: %w", err)
	}

	return TradeDefinition{
		ID:        t.EngineTradeID(),
		TradeType: "CreditDefaultSwap",
		CDS: cdsData{
			IssuerID:              t.ReferenceEntity,
			CreditCurveID:         t.ReferenceEntity,
			SettlesAccrual:        true,
			ProtectionPaymentTime: "atDefault",
			Leg: legData{
				LegType:           "Fixed",
				Payer:             t.BuysProtection(),
				Currency:          t.Currency,
				PaymentConvention: "Following",
				DayCounter:        string(conventions.MapDayCount(t.DayCount)),
				Notionals: notionals{
					Notional: t.Notional.String(),
				},
				Schedule: scheduleRule{
					StartDate:      t.EffectiveDate.Format(time.DateOnly),
					EndDate:        t.MaturityDate.Format(time.DateOnly),
					Tenor:          string(conventions.MapFrequency(t.PremiumFrequency)),
					Calendar:       string(conventions.MapCalendar(t.PaymentCalendar, t.Currency)),
					Convention:     "Following",
					TermConvention: "Unadjusted",
					Rule:           "CDS2015",
				},
				Rates: []string{domain.SpreadToDecimal(t.Spread).String()},
			},
		},
	}, nil
}

// Portfolio renders the portfolio document for every trade in the set.
func (g *Generator) Portfolio(ts *TradeSet) (string, error) {
	doc := portfolio{}
	for _, t := range ts.Trades() {
		def, err := g.PortfolioTrade(t)
		if err != nil {
			return "", err
		}
		doc.Trades = append(doc.Trades, def)
	}
	return marshalDocument(doc)
}
