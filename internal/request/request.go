// Package request builds the top-level engine request documents that point the
// engine at its input files and select which analytics to run.
package request

import (
	"encoding/xml"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/generator"
)

// File names staged in a working directory.
const (
	RequestFile        = "ore.xml"
	MarketDataFile     = "market.txt"
	FixingDataFile     = "fixings.txt"
	CurveConfigFile    = "curveconfig.xml"
	ConventionsFile    = "Conventions.xml"
	TodaysMarketFile   = "todaysmarket.xml"
	PricingEnginesFile = "pricingengine.xml"
	PortfolioFile      = "portfolio.xml"
	StressConfigFile   = "stresstest.xml"

	NPVReportFile        = "npv.csv"
	CashflowReportFile   = "flows.csv"
	AdditionalReportFile = "additional_results.csv"
	StressReportFile     = "stresstest.csv"
)

const (
	asofDateFormat   = "20060102"
	defaultMarketSet = "default"
)

// DefaultSensitivityShift is the absolute zero-rate bump for sensitivity runs.
var DefaultSensitivityShift = decimal.RequireFromString("0.0001")

var sensitivityKeyTenors = []string{"1Y", "2Y", "3Y", "5Y", "7Y", "10Y"}

type document struct {
	XMLName     xml.Name             `xml:"ORE"`
	Setup       []parameter          `xml:"Setup>Parameter"`
	Markets     markets              `xml:"Markets"`
	Portfolio   *tradeBlocks         `xml:"Portfolio,omitempty"`
	Sensitivity *sensitivityAnalysis `xml:"SensitivityAnalysis,omitempty"`
	Analytics   []analytic           `xml:"Analytics>Analytic"`
}

type parameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type markets struct {
	Parameters    []parameter          `xml:"Parameter"`
	Configuration *marketConfiguration `xml:"Configuration,omitempty"`
}

type marketConfiguration struct {
	YieldCurves []marketYieldCurve `xml:"Market>YieldCurves>YieldCurve"`
}

type marketYieldCurve struct {
	CurveID          string `xml:"CurveId"`
	CurveDescription string `xml:"CurveDescription"`
	Currency         string `xml:"Currency"`
	DiscountCurve    string `xml:"DiscountCurve"`
}

type tradeBlocks struct {
	Trades []generator.TradeDefinition `xml:"Trade"`
}

type sensitivityAnalysis struct {
	YieldCurves []sensitivityCurve   `xml:"SensitivityScenarioData>YieldCurves>YieldCurve"`
	Scenarios   []yieldCurveScenario `xml:"SensitivityScenarioData>YieldCurveScenario"`
}

type sensitivityCurve struct {
	Parameter string `xml:"SensitivityParameter"`
	ShiftType string `xml:"ShiftType"`
	ShiftSize string `xml:"ShiftSize"`
	KeyType   string `xml:"KeyType"`
	KeyValues string `xml:"KeyValues"`
}

type yieldCurveScenario struct {
	Key       string `xml:"Key"`
	ShiftSize string `xml:"ShiftSize"`
}

type analytic struct {
	Type       string      `xml:"type,attr"`
	Parameters []parameter `xml:"Parameter"`
}

// AnalyticSet selects the analytics of a sensitivity or what-if run.
type AnalyticSet struct {
	NPV           bool
	Sensitivity   bool
	Stress        bool
	ParametricVaR bool
	Simulation    bool
}

// DefaultSensitivityAnalytics enables NPV and sensitivities only.
func DefaultSensitivityAnalytics() AnalyticSet {
	return AnalyticSet{NPV: true, Sensitivity: true}
}

// CalculationParams configures the primary valuation request.
type CalculationParams struct {
	ValuationDate time.Time // zero means today
	InputDir      string
	OutputDir     string
	WithStress    bool // run the stress analytic over StressConfigFile
}

// SensitivityParams configures a sensitivity or what-if request.
type SensitivityParams struct {
	ValuationDate time.Time // zero means today
	InputDir      string
	OutputDir     string
	Trades        []domain.Trade
	Scenarios     map[string]decimal.Decimal // scenario key -> absolute shift
	Analytics     AnalyticSet
}

// Builder renders request documents.
type Builder struct {
	gen *generator.Generator
	now func() time.Time
}

// NewBuilder creates a Builder that reuses gen for trade blocks.
func NewBuilder(gen *generator.Generator) *Builder {
	return &Builder{gen: gen, now: time.Now}
}

func (b *Builder) resolveDate(d time.Time) time.Time {
	if d.IsZero() {
		return b.now()
	}
	return d
}

// Calculation renders the request for a full valuation run over the staged files.
func (b *Builder) Calculation(p CalculationParams) (string, error) {
	doc := document{
		Setup: []parameter{
			{"asofDate", b.resolveDate(p.ValuationDate).Format(asofDateFormat)},
			{"inputPath", p.InputDir},
			{"outputPath", p.OutputDir},
			{"logFile", "log.txt"},
			{"logMask", "255"},
			{"marketDataFile", MarketDataFile},
			{"fixingDataFile", FixingDataFile},
			{"implyTodaysFixings", "Y"},
			{"curveConfigFile", CurveConfigFile},
			{"conventionsFile", ConventionsFile},
			{"marketConfigFile", TodaysMarketFile},
			{"pricingEnginesFile", PricingEnginesFile},
			{"portfolioFile", PortfolioFile},
			{"observationModel", "Disable"},
		},
		Markets: markets{Parameters: marketParameters()},
		Analytics: []analytic{
			{Type: "npv", Parameters: []parameter{
				{"active", "Y"},
				{"baseCurrency", b.gen.BaseCurrency()},
				{"outputFileName", NPVReportFile},
				{"additionalResults", "Y"},
				{"additionalResultsReportPrecision", "12"},
			}},
			{Type: "cashflow", Parameters: []parameter{
				{"active", "Y"},
				{"outputFileName", CashflowReportFile},
			}},
		},
	}
	if p.WithStress {
		doc.Analytics = append(doc.Analytics, analytic{Type: "stress", Parameters: []parameter{
			{"active", "Y"},
			{"stressConfigFile", StressConfigFile},
			{"pricingEnginesFile", PricingEnginesFile},
			{"scenarioOutputFile", StressReportFile},
			{"threshold", "0.000001"},
		}})
	}
	return marshal(doc)
}

// Sensitivity renders a sensitivity or what-if request carrying the trades
// inline, optional named yield-curve shocks and the selected analytics.
func (b *Builder) Sensitivity(p SensitivityParams) (string, error) {
	if len(p.Trades) == 0 {
		return "", fmt.Errorf("sensitivity request: no trades")
	}

	defs := make([]generator.TradeDefinition, 0, len(p.Trades))
	for _, t := range p.Trades {
		def, err := b.gen.PortfolioTrade(t)
		if err != nil {
			return "", fmt.Errorf("sensitivity request: %w", err)
		}
		defs = append(defs, def)
	}

	currencies := lo.Uniq(lo.Map(p.Trades, func(t domain.Trade, _ int) string { return t.Currency }))
	slices.Sort(currencies)

	cfg := &marketConfiguration{}
	sens := &sensitivityAnalysis{}
	for _, ccy := range currencies {
		cfg.YieldCurves = append(cfg.YieldCurves, marketYieldCurve{
			CurveID:          ccy,
			CurveDescription: ccy + " yield curve",
			Currency:         ccy,
			DiscountCurve:    generator.YieldCurveSpec(ccy),
		})
		sens.YieldCurves = append(sens.YieldCurves, sensitivityCurve{
			Parameter: "YieldCurve/" + ccy,
			ShiftType: "Absolute",
			ShiftSize: DefaultSensitivityShift.String(),
			KeyType:   "Tenor",
			KeyValues: strings.Join(sensitivityKeyTenors, ","),
		})
	}

	keys := lo.Keys(p.Scenarios)
	slices.Sort(keys)
	for _, k := range keys {
		sens.Scenarios = append(sens.Scenarios, yieldCurveScenario{Key: k, ShiftSize: p.Scenarios[k].String()})
	}

	doc := document{
		Setup: []parameter{
			{"asofDate", b.resolveDate(p.ValuationDate).Format(asofDateFormat)},
			{"inputPath", p.InputDir},
			{"outputPath", p.OutputDir},
			{"logMask", "255"},
			{"logLevel", "2"},
		},
		Markets:     markets{Parameters: marketParameters(), Configuration: cfg},
		Portfolio:   &tradeBlocks{Trades: defs},
		Sensitivity: sens,
		Analytics:   analyticToggles(p.Analytics),
	}
	return marshal(doc)
}

// HealthCheck renders a minimal request with no trades and no active analytics,
// used to confirm the engine starts and exits cleanly.
func (b *Builder) HealthCheck(valuationDate time.Time, inputDir, outputDir string) (string, error) {
	doc := document{
		Setup: []parameter{
			{"asofDate", b.resolveDate(valuationDate).Format(asofDateFormat)},
			{"inputPath", inputDir},
			{"outputPath", outputDir},
		},
		Analytics: []analytic{{Type: "npv", Parameters: []parameter{{"active", "N"}}}},
	}
	return marshal(doc)
}

func marketParameters() []parameter {
	return []parameter{
		{"lgmcalibration", defaultMarketSet},
		{"fxcalibration", defaultMarketSet},
		{"pricing", defaultMarketSet},
		{"simulation", defaultMarketSet},
	}
}

func analyticToggles(set AnalyticSet) []analytic {
	toggle := func(name string, on bool) analytic {
		return analytic{Type: name, Parameters: []parameter{{"active", lo.Ternary(on, "Y", "N")}}}
	}
	return []analytic{
		toggle("npv", set.NPV),
		toggle("sensitivity", set.Sensitivity),
		toggle("stress", set.Stress),
		toggle("parametricvar", set.ParametricVaR),
		toggle("simulation", set.Simulation),
	}
}

func marshal(doc document) (string, error) {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	return xml.Header + string(out) + "\n", nil
}
