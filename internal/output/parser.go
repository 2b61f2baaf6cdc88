// Package output extracts risk measures from engine console output and the
// CSV reports the engine writes into its output directory.
package output

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/metrics"
)

// Result families parsed independently.
const (
	FamilyNPV          = "npv"
	FamilySensitivity  = "sensitivity"
	FamilyGamma        = "gamma"
	FamilyVaR          = "var"
	FamilyShortfall    = "expected_shortfall"
	FamilyGreeks       = "greeks"
	yieldCurveFragment = "yieldcurve"
)

// ErrUnparseable is returned when the output is not a result document at all.
var ErrUnparseable = errors.New("engine output is not a result document")

var (
	reportLine  = regexp.MustCompile(`(?im)^.*\b(npv|sensitivity)\s+report\b.*\bok\b`)
	runtimeLine = regexp.MustCompile(`(?i)run time:\s*([0-9.eE+-]+)\s*sec`)
)

var greekElements = map[string]string{
	"Delta": domain.GreekDelta,
	"Vega":  domain.GreekVega,
	"Theta": domain.GreekTheta,
	"Rho":   domain.GreekRho,
}

// Parser reads engine result documents.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser { return &Parser{} }

// Parse extracts the measures for one trade. Each family is parsed on its own:
// a malformed family is reported in the joined error while the other families
// are still returned. Absent families stay zero. An unparseable document
// yields zeroed measures and ErrUnparseable.
func (p *Parser) Parse(tradeID int64, currency, raw string) (domain.RiskMeasures, error) {
	m := domain.ZeroRiskMeasures(tradeID, currency)
	m.EngineRuntime = Runtime(raw)

	root, err := parseTree(raw)
	if err != nil {
		return m, fmt.Errorf("%w: %w", ErrUnparseable, err)
	}

	var errs []error
	for _, f := range []struct {
		family string
		parse  func(*node, *domain.RiskMeasures) error
	}{
		{FamilyNPV, parseNPV},
		{FamilySensitivity, parseDV01},
		{FamilyGamma, valueFamily("Gamma", domain.RoundGreek, func(m *domain.RiskMeasures, v decimal.Decimal) { m.Gamma = v })},
		{FamilyVaR, valueFamily("VaR", domain.RoundMoney, func(m *domain.RiskMeasures, v decimal.Decimal) { m.VaR95 = v })},
		{FamilyShortfall, valueFamily("ExpectedShortfall", domain.RoundMoney, func(m *domain.RiskMeasures, v decimal.Decimal) { m.ExpectedShortfall = v })},
		{FamilyGreeks, parseGreeks},
	} {
		if err := f.parse(root, &m); err != nil {
			metrics.ParseFailuresTotal.WithLabelValues(f.family).Inc()
			slog.Warn("failed to parse result family", "tradeId", tradeID, "family", f.family, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", f.family, err))
		}
	}
	return m, errors.Join(errs...)
}

func parseNPV(root *node, m *domain.RiskMeasures) error {
	n := root.find("NPV")
	if n == nil {
		return nil
	}
	raw, ok := n.childText("Value")
	if !ok {
		raw = n.text
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("value %q: %w", raw, err)
	}
	m.NPV = domain.RoundMoney(v)
	if ccy, ok := n.childText("Currency"); ok && ccy != "" {
		m.Currency = ccy
	}
	return nil
}

// parseDV01 sums the deltas of every sensitivity whose risk factor names a yield curve.
func parseDV01(root *node, m *domain.RiskMeasures) error {
	sum := decimal.Zero
	var errs []error
	for _, s := range root.findAll("Sensitivity") {
		factor, ok := s.childText("RiskFactor")
		if !ok || !strings.Contains(strings.ToLower(factor), yieldCurveFragment) {
			continue
		}
		raw, ok := s.childText("Delta")
		if !ok {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("delta for %s %q: %w", factor, raw, err))
			continue
		}
		sum = sum.Add(v)
	}
	m.DV01 = domain.RoundMoney(sum)
	return errors.Join(errs...)
}

func valueFamily(element string, round func(decimal.Decimal) decimal.Decimal, set func(*domain.RiskMeasures, decimal.Decimal)) func(*node, *domain.RiskMeasures) error {
	return func(root *node, m *domain.RiskMeasures) error {
		n := root.find(element)
		if n == nil {
			return nil
		}
		raw, ok := n.childText("Value")
		if !ok {
			raw = n.text
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("value %q: %w", raw, err)
		}
		set(m, round(v))
		return nil
	}
}

// parseGreeks reads the first Delta, Vega, Theta and Rho that are not part of
// a sensitivity entry.
func parseGreeks(root *node, m *domain.RiskMeasures) error {
	var errs []error
	for element, key := range greekElements {
		for _, n := range root.findAll(element) {
			if n.within("Sensitivity") {
				continue
			}
			v, err := decimal.NewFromString(n.text)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %q: %w", key, n.text, err))
				break
			}
			m.Greeks[key] = domain.RoundGreek(v)
			break
		}
	}
	return errors.Join(errs...)
}

// HasResults reports whether the output carries an NPV or a sensitivity
// section, either as a result element or as a console report line.
func HasResults(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	if root, err := parseTree(raw); err == nil {
		if root.find("NPV") != nil || root.find("Sensitivity") != nil {
			return true
		}
	}
	return reportLine.MatchString(raw)
}

// ExtractError returns a human-readable failure reason from engine output.
func ExtractError(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "empty engine output"
	}

	if root, err := parseTree(raw); err == nil {
		var msgs []string
		for _, n := range root.findAll("Error") {
			if n.text != "" {
				msgs = append(msgs, n.text)
			}
		}
		for _, n := range root.findAll("Warning") {
			if n.text != "" {
				msgs = append(msgs, "Warning: "+n.text)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}

	var lines []string
	for line := range strings.SplitSeq(raw, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "fail") ||
			strings.Contains(lower, "exception") || strings.Contains(lower, "warning") {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	if len(lines) > 0 {
		return strings.Join(lines, " ")
	}
	return "unknown engine error"
}

// Runtime extracts the engine's reported run time in seconds, zero when absent.
func Runtime(raw string) decimal.Decimal {
	match := runtimeLine.FindStringSubmatch(raw)
	if match == nil {
		return decimal.Zero
	}
	return domain.SafeParse(match[1]).Round(6)
}
