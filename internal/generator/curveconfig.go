package generator

import (
	"encoding/xml"
	"fmt"

	"github.com/mtlprog/cdsrisk/internal/quotekey"
)

type curveConfiguration struct {
	XMLName       xml.Name             `xml:"CurveConfiguration"`
	YieldCurves   []yieldCurveConfig   `xml:"YieldCurves>YieldCurve"`
	DefaultCurves []defaultCurveConfig `xml:"DefaultCurves>DefaultCurve"`
}

type yieldCurveConfig struct {
	CurveID               string        `xml:"CurveId"`
	CurveDescription      string        `xml:"CurveDescription"`
	Currency              string        `xml:"Currency"`
	DiscountCurve         string        `xml:"DiscountCurve"`
	Segment               directSegment `xml:"Segments>Direct"`
	InterpolationVariable string        `xml:"InterpolationVariable"`
	InterpolationMethod   string        `xml:"InterpolationMethod"`
	YieldCurveDayCounter  string        `xml:"YieldCurveDayCounter"`
}

type directSegment struct {
	Type        string   `xml:"Type"`
	Quotes      []string `xml:"Quotes>Quote"`
	Conventions string   `xml:"Conventions"`
}

type defaultCurveConfig struct {
	CurveID          string   `xml:"CurveId"`
	CurveDescription string   `xml:"CurveDescription"`
	Currency         string   `xml:"Currency"`
	Type             string   `xml:"Type"`
	DiscountCurve    string   `xml:"DiscountCurve"`
	DayCounter       string   `xml:"DayCounter"`
	RecoveryRate     string   `xml:"RecoveryRate"`
	Quotes           []string `xml:"Quotes>Quote"`
	Conventions      string   `xml:"Conventions"`
}

// CurveConfig renders the curve-construction document: one discount curve per
// currency and one default curve per (entity, currency).
func (g *Generator) CurveConfig(ts *TradeSet) (string, error) {
	doc := curveConfiguration{}

	for _, ccy := range ts.Currencies() {
		yc, err := buildYieldCurveConfig(ccy)
		if err != nil {
			return "", fmt.Errorf("curve config for %s: %w", ccy, err)
		}
		doc.YieldCurves = append(doc.YieldCurves, yc)
	}

	for _, c := range ts.CreditCurves() {
		dc, err := buildDefaultCurveConfig(c)
		if err != nil {
			return "", fmt.Errorf("curve config for %s/%s: %w", c.Entity, c.Currency, err)
		}
		doc.DefaultCurves = append(doc.DefaultCurves, dc)
	}

	return marshalDocument(doc)
}

func buildYieldCurveConfig(ccy string) (yieldCurveConfig, error) {
	curveID := yieldCurveID(ccy)
	quotes := make([]string, 0, len(yieldTenors))
	for _, tenor := range yieldTenors {
		q, err := quotekey.Encode(quotekey.Zero(ccy, curveID, curveDayCounter, tenor))
		if err != nil {
			return yieldCurveConfig{}, err
		}
		quotes = append(quotes, q)
	}

	return yieldCurveConfig{
		CurveID:          curveID,
		CurveDescription: ccy + " 6M curve",
		Currency:         ccy,
		DiscountCurve:    curveID,
		Segment: directSegment{
			Type:        "Zero",
			Quotes:      quotes,
			Conventions: ccy + "-ZERO-CONVENTIONS-TENOR-BASED",
		},
		InterpolationVariable: "Discount",
		InterpolationMethod:   "LogLinear",
		YieldCurveDayCounter:  curveDayCounter,
	}, nil
}

func buildDefaultCurveConfig(c CreditCurve) (defaultCurveConfig, error) {
	recovery, err := quotekey.Encode(quotekey.Recovery(c.Entity, seniority, c.Currency))
	if err != nil {
		return defaultCurveConfig{}, err
	}

	quotes := make([]string, 0, len(creditTenors))
	for _, tenor := range creditTenors {
		q, err := quotekey.Encode(quotekey.CDSSpread(c.Entity, seniority, c.Currency, tenor))
		if err != nil {
			return defaultCurveConfig{}, err
		}
		quotes = append(quotes, q)
	}

	return defaultCurveConfig{
		CurveID:          defaultCurveID(c.Entity, c.Currency),
		CurveDescription: fmt.Sprintf("%s %s CDS %s", c.Entity, seniority, c.Currency),
		Currency:         c.Currency,
		Type:             "SpreadCDS",
		DiscountCurve:    YieldCurveSpec(c.Currency),
		DayCounter:       curveDayCounter,
		RecoveryRate:     recovery,
		Quotes:           quotes,
		Conventions:      "CDS-STANDARD-CONVENTIONS",
	}, nil
}
