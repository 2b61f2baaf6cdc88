// Package generator renders the engine input documents (curve configuration,
// today's market, market data, stress scenarios and portfolio) for a set of
// CDS trades. Output is a pure function of the trades and the market tables.
package generator

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/mtlprog/cdsrisk/internal/conventions"
)

const (
	seniority       = "SR"
	curveDayCounter = "A365"
	configurationID = "default"
)

var (
	yieldTenors    = []string{"1Y", "3Y", "5Y", "10Y"}
	creditTenors   = []string{"1Y", "3Y", "5Y"}
	survivalTenors = []string{"1Y", "2Y", "3Y", "5Y", "10Y"}
)

// Generator produces engine input documents.
type Generator struct {
	tables *conventions.MarketTables
}

// New creates a Generator backed by the given market tables.
func New(tables *conventions.MarketTables) *Generator {
	if tables == nil {
		panic("generator.New: tables must not be nil")
	}
	return &Generator{tables: tables}
}

// BaseCurrency is the currency FX spots are quoted against.
func (g *Generator) BaseCurrency() string {
	return g.tables.BaseCurrency()
}

func yieldCurveID(currency string) string {
	return currency + "6M"
}

// YieldCurveSpec returns the engine spec of a currency's discount curve, e.g. Yield/USD/USD6M.
func YieldCurveSpec(currency string) string {
	return fmt.Sprintf("Yield/%s/%s", currency, yieldCurveID(currency))
}

func defaultCurveID(entity, currency string) string {
	return fmt.Sprintf("%s_%s_%s", entity, seniority, currency)
}

// marshalDocument renders v as an indented XML document with a declaration.
func marshalDocument(v any) (string, error) {
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling xml: %w", err)
	}
	var sb strings.Builder
	sb.Grow(len(xml.Header) + len(out) + 1)
	sb.WriteString(xml.Header)
	sb.Write(out)
	sb.WriteByte('\n')
	return sb.String(), nil
}
