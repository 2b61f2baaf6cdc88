package riskstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
)

func TestDetailsRoundTripThroughJSON(t *testing.T) {
	spread := decimal.RequireFromString("0.0125")
	pay := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	amount := decimal.RequireFromString("25277.78")

	m := domain.ZeroRiskMeasures(1, "USD")
	m.FairSpreadClean = &spread
	m.EngineRuntime = decimal.RequireFromString("0.038")
	m.Cashflows = []domain.Cashflow{{TradeID: "CDS_1", CashflowNo: 1, PayDate: &pay, Amount: &amount}}

	data, err := json.Marshal(detailsOf(m))
	if err != nil {
		t.Fatal(err)
	}

	var d details
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatal(err)
	}
	restored := domain.ZeroRiskMeasures(1, "USD")
	d.apply(&restored)

	if restored.FairSpreadClean == nil || !restored.FairSpreadClean.Equal(spread) {
		t.Errorf("FairSpreadClean = %v", restored.FairSpreadClean)
	}
	if restored.ProtectionLegNPV != nil {
		t.Errorf("ProtectionLegNPV = %v, want nil", restored.ProtectionLegNPV)
	}
	if len(restored.Cashflows) != 1 || !restored.Cashflows[0].PayDate.Equal(pay) {
		t.Errorf("Cashflows = %+v", restored.Cashflows)
	}
	if !restored.EngineRuntime.Equal(m.EngineRuntime) {
		t.Errorf("EngineRuntime = %s", restored.EngineRuntime)
	}
}
