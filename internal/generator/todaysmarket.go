package generator

import (
	"encoding/xml"
	"fmt"
)

type todaysMarket struct {
	XMLName               xml.Name          `xml:"TodaysMarket"`
	Configuration         marketConfig      `xml:"Configuration"`
	DiscountingCurves     discountingCurves `xml:"DiscountingCurves"`
	IndexForwardingCurves indexCurves       `xml:"IndexForwardingCurves"`
	YieldCurves           yieldCurveRefs    `xml:"YieldCurves"`
	FxSpots               *fxSpots          `xml:"FxSpots,omitempty"`
	DefaultCurves         defaultCurveRefs  `xml:"DefaultCurves"`
}

type marketConfig struct {
	ID                      string `xml:"id,attr"`
	DiscountingCurvesID     string `xml:"DiscountingCurvesId"`
	IndexForwardingCurvesID string `xml:"IndexForwardingCurvesId"`
}

type discountingCurves struct {
	ID     string         `xml:"id,attr"`
	Curves []currencySpec `xml:"DiscountingCurve"`
}

type currencySpec struct {
	Currency string `xml:"currency,attr"`
	Spec     string `xml:",chardata"`
}

type indexCurves struct {
	ID      string      `xml:"id,attr"`
	Indices []namedSpec `xml:"Index"`
}

type yieldCurveRefs struct {
	ID     string      `xml:"id,attr"`
	Curves []namedSpec `xml:"YieldCurve"`
}

type defaultCurveRefs struct {
	ID     string      `xml:"id,attr"`
	Curves []namedSpec `xml:"DefaultCurve"`
}

type namedSpec struct {
	Name string `xml:"name,attr"`
	Spec string `xml:",chardata"`
}

type fxSpots struct {
	ID    string     `xml:"id,attr"`
	Spots []pairSpec `xml:"FxSpot"`
}

type pairSpec struct {
	Pair string `xml:"pair,attr"`
	Spec string `xml:",chardata"`
}

// TodaysMarket renders the market-wiring document binding logical curve names
// to the curve specifications built from the curve configuration.
func (g *Generator) TodaysMarket(ts *TradeSet) (string, error) {
	base := g.BaseCurrency()
	doc := todaysMarket{
		Configuration: marketConfig{
			ID:                      configurationID,
			DiscountingCurvesID:     configurationID,
			IndexForwardingCurvesID: configurationID,
		},
		DiscountingCurves:     discountingCurves{ID: configurationID},
		IndexForwardingCurves: indexCurves{ID: configurationID},
		YieldCurves:           yieldCurveRefs{ID: configurationID},
		DefaultCurves:         defaultCurveRefs{ID: configurationID},
	}

	var spots []pairSpec
	for _, ccy := range ts.Currencies() {
		spec := YieldCurveSpec(ccy)
		doc.DiscountingCurves.Curves = append(doc.DiscountingCurves.Curves, currencySpec{Currency: ccy, Spec: spec})
		doc.IndexForwardingCurves.Indices = append(doc.IndexForwardingCurves.Indices, namedSpec{Name: ccy + "-LIBOR-6M", Spec: spec})
		doc.YieldCurves.Curves = append(doc.YieldCurves.Curves, namedSpec{Name: yieldCurveID(ccy), Spec: spec})
		if ccy != base {
			spots = append(spots, pairSpec{Pair: ccy + base, Spec: fmt.Sprintf("FX/%s/%s", ccy, base)})
		}
	}
	if len(spots) > 0 {
		doc.FxSpots = &fxSpots{ID: configurationID, Spots: spots}
	}

	for _, c := range ts.EntityCurves() {
		doc.DefaultCurves.Curves = append(doc.DefaultCurves.Curves, namedSpec{
			Name: c.Entity,
			Spec: fmt.Sprintf("Default/%s/%s", c.Currency, defaultCurveID(c.Entity, c.Currency)),
		})
	}

	return marshalDocument(doc)
}
