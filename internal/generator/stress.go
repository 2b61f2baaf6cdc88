package generator

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
)

// StressRequest lists the shocks to build scenarios for.
type StressRequest struct {
	RecoveryRates []decimal.Decimal // absolute targets, percent
	SpreadShifts  []decimal.Decimal // basis points
	Combined      bool              // add the full recovery x spread cross product
}

type stressTesting struct {
	XMLName xml.Name     `xml:"StressTesting"`
	Tests   []stressTest `xml:"StressTest"`
}

// stressTest declares every risk-factor family exactly once; families the
// scenario leaves untouched render as empty elements.
type stressTest struct {
	ID                    string             `xml:"id,attr"`
	DiscountCurves        struct{}           `xml:"DiscountCurves"`
	IndexCurves           struct{}           `xml:"IndexCurves"`
	YieldCurves           struct{}           `xml:"YieldCurves"`
	FxSpots               struct{}           `xml:"FxSpots"`
	FxVolatilities        struct{}           `xml:"FxVolatilities"`
	SwaptionVolatilities  struct{}           `xml:"SwaptionVolatilities"`
	CapFloorVolatilities  struct{}           `xml:"CapFloorVolatilities"`
	EquitySpots           struct{}           `xml:"EquitySpots"`
	EquityVolatilities    struct{}           `xml:"EquityVolatilities"`
	SecuritySpreads       struct{}           `xml:"SecuritySpreads"`
	RecoveryRates         recoveryRateShifts `xml:"RecoveryRates"`
	SurvivalProbabilities survivalShifts     `xml:"SurvivalProbabilities"`
}

type recoveryRateShifts struct {
	Shifts []recoveryRateShift `xml:"RecoveryRate"`
}

type recoveryRateShift struct {
	Name      string `xml:"name,attr"`
	ShiftType string `xml:"ShiftType"`
	ShiftSize string `xml:"ShiftSize"`
}

type survivalShifts struct {
	Shifts []survivalShift `xml:"SurvivalProbability"`
}

type survivalShift struct {
	Name        string `xml:"name,attr"`
	ShiftType   string `xml:"ShiftType"`
	Shifts      string `xml:"Shifts"`
	ShiftTenors string `xml:"ShiftTenors"`
}

// StressTest renders the declarative stress document for one trade and returns
// the scenarios it contains, in document order: spread blocks, recovery blocks,
// then the cross product when requested.
func (g *Generator) StressTest(trade domain.Trade, req StressRequest) ([]domain.StressScenario, string, error) {
	if err := trade.Validate(); err != nil {
		return nil, "", fmt.Errorf("stress test: %w", err)
	}

	entity := trade.ReferenceEntity
	baseRecovery := trade.Recovery()

	var scenarios []domain.StressScenario
	for _, bp := range req.SpreadShifts {
		scenarios = append(scenarios, spreadScenario(entity, bp))
	}
	for _, pct := range req.RecoveryRates {
		scenarios = append(scenarios, recoveryScenario(entity, pct, baseRecovery))
	}
	if req.Combined {
		for _, pct := range req.RecoveryRates {
			for _, bp := range req.SpreadShifts {
				s := recoveryScenario(entity, pct, baseRecovery)
				s.SpreadShiftBp = spreadScenario(entity, bp).SpreadShiftBp
				s.ID = fmt.Sprintf("combined_recovery%d_spread%dbp", pct.IntPart(), bp.IntPart())
				scenarios = append(scenarios, s)
			}
		}
	}

	doc := stressTesting{Tests: make([]stressTest, 0, len(scenarios))}
	for _, s := range scenarios {
		doc.Tests = append(doc.Tests, buildStressTest(s))
	}

	out, err := marshalDocument(doc)
	if err != nil {
		return nil, "", fmt.Errorf("stress test: %w", err)
	}
	return scenarios, out, nil
}

func spreadScenario(entity string, bp decimal.Decimal) domain.StressScenario {
	return domain.StressScenario{
		ID:            fmt.Sprintf("spread_%dbp", bp.IntPart()),
		Entity:        entity,
		SpreadShiftBp: &bp,
	}
}

func recoveryScenario(entity string, target, base decimal.Decimal) domain.StressScenario {
	shift := domain.PercentToDecimal(target.Sub(base))
	return domain.StressScenario{
		ID:             fmt.Sprintf("recovery_%dpct", target.IntPart()),
		Entity:         entity,
		RecoveryTarget: &target,
		RecoveryShift:  &shift,
	}
}

func buildStressTest(s domain.StressScenario) stressTest {
	t := stressTest{ID: s.ID}
	if s.RecoveryShift != nil {
		t.RecoveryRates.Shifts = []recoveryRateShift{{
			Name:      s.Entity,
			ShiftType: "Absolute",
			ShiftSize: s.RecoveryShift.String(),
		}}
	}
	if s.SpreadShiftBp != nil {
		shift := domain.BasisPoints(*s.SpreadShiftBp).String()
		shifts := make([]string, len(survivalTenors))
		for i := range shifts {
			shifts[i] = shift
		}
		t.SurvivalProbabilities.Shifts = []survivalShift{{
			Name:        s.Entity,
			ShiftType:   "Absolute",
			Shifts:      strings.Join(shifts, ","),
			ShiftTenors: strings.Join(survivalTenors, ","),
		}}
	}
	return t
}
