package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/request"
)

const notAvailable = "#N/A"

var reportDateLayouts = []string{"2006-01-02", "20060102"}

// NPVRow is one line of the NPV report.
type NPVRow struct {
	TradeID  string
	NPV      decimal.Decimal
	Currency string
}

// StressRow is one line of the stress report.
type StressRow struct {
	TradeID     string
	Scenario    string
	BaseNPV     decimal.Decimal
	ScenarioNPV decimal.Decimal
	Delta       decimal.Decimal
}

// Reports holds the CSV reports found in an output directory. Missing reports
// are left empty.
type Reports struct {
	NPV        []NPVRow
	Additional map[string]map[string]string // engine trade id -> result id -> value
	Flows      []domain.Cashflow
	Stress     []StressRow
}

// ReadReports loads npv.csv, additional_results.csv, flows.csv and
// stresstest.csv from outputDir. A missing file is skipped; a file that exists
// but cannot be read is reported in the joined error.
func ReadReports(outputDir string) (*Reports, error) {
	r := &Reports{Additional: make(map[string]map[string]string)}
	var errs []error

	for _, f := range []struct {
		name string
		load func([]map[string]string)
	}{
		{request.NPVReportFile, r.loadNPV},
		{request.AdditionalReportFile, r.loadAdditional},
		{request.CashflowReportFile, r.loadFlows},
		{request.StressReportFile, r.loadStress},
	} {
		rows, err := readCSV(filepath.Join(outputDir, f.name))
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("engine report not found", "file", f.name)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", f.name, err))
			continue
		}
		f.load(rows)
	}
	return r, errors.Join(errs...)
}

// readCSV returns the rows of a report keyed by header name. A leading '#' on
// the first header is dropped.
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "#"))
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *Reports) loadNPV(rows []map[string]string) {
	for _, row := range rows {
		v := parseDecimal(row["NPV"])
		if v == nil {
			continue
		}
		r.NPV = append(r.NPV, NPVRow{
			TradeID:  row["TradeId"],
			NPV:      domain.RoundMoney(*v),
			Currency: row["NpvCurrency"],
		})
	}
}

func (r *Reports) loadAdditional(rows []map[string]string) {
	for _, row := range rows {
		id, key := row["TradeId"], row["ResultId"]
		if id == "" || key == "" {
			continue
		}
		if r.Additional[id] == nil {
			r.Additional[id] = make(map[string]string)
		}
		r.Additional[id][key] = row["ResultValue"]
	}
}

func (r *Reports) loadFlows(rows []map[string]string) {
	for _, row := range rows {
		r.Flows = append(r.Flows, domain.Cashflow{
			TradeID:          row["TradeId"],
			Type:             row["Type"],
			CashflowNo:       parseInt(row["CashflowNo"]),
			LegNo:            parseInt(row["LegNo"]),
			PayDate:          parseDate(row["PayDate"]),
			FlowType:         row["FlowType"],
			Amount:           parseDecimal(row["Amount"]),
			Currency:         row["Currency"],
			Coupon:           parseDecimal(row["Coupon"]),
			Accrual:          parseDecimal(row["Accrual"]),
			AccrualStartDate: parseDate(row["AccrualStartDate"]),
			AccrualEndDate:   parseDate(row["AccrualEndDate"]),
			AccruedAmount:    parseDecimal(row["AccruedAmount"]),
			Notional:         parseDecimal(row["Notional"]),
			DiscountFactor:   parseDecimal(row["DiscountFactor"]),
			PresentValue:     parseDecimal(row["PresentValue"]),
			FXRate:           parseDecimal(row["FXRate"]),
			PresentValueBase: parseDecimal(row["PresentValue(Base)"]),
		})
	}
}

func (r *Reports) loadStress(rows []map[string]string) {
	for _, row := range rows {
		base, scen := parseDecimal(row["Base NPV"]), parseDecimal(row["Scenario NPV"])
		if base == nil || scen == nil {
			continue
		}
		delta := scen.Sub(*base)
		if d := parseDecimal(row["Sensitivity"]); d != nil {
			delta = *d
		}
		r.Stress = append(r.Stress, StressRow{
			TradeID:     row["TradeId"],
			Scenario:    row["ScenarioLabel"],
			BaseNPV:     domain.RoundMoney(*base),
			ScenarioNPV: domain.RoundMoney(*scen),
			Delta:       domain.RoundMoney(delta),
		})
	}
}

// NPVFor returns the reported NPV of a trade. sole reports whether the trade
// is the only one in the run; only then does a single row under another id
// stand in for its value.
func (r *Reports) NPVFor(tradeID int64, sole bool) (NPVRow, bool) {
	id := domain.EngineTradeID(tradeID)
	if row, ok := lo.Find(r.NPV, func(row NPVRow) bool { return row.TradeID == id }); ok {
		return row, true
	}
	if sole && len(r.NPV) == 1 {
		return r.NPV[0], true
	}
	return NPVRow{}, false
}

// ScenarioNPV returns the stressed NPV of a trade under a scenario label.
func (r *Reports) ScenarioNPV(tradeID int64, scenario string) (StressRow, bool) {
	id := domain.EngineTradeID(tradeID)
	return lo.Find(r.Stress, func(row StressRow) bool {
		return row.TradeID == id && row.Scenario == scenario
	})
}

// Apply fills report-only fields of m: the NPV when m has none, the CDS
// additional results and the trade's cashflows. sole is passed to NPVFor.
func (r *Reports) Apply(m *domain.RiskMeasures, sole bool) {
	if m.NPV.IsZero() {
		if row, ok := r.NPVFor(m.TradeID, sole); ok {
			m.NPV = row.NPV
			if row.Currency != "" {
				m.Currency = row.Currency
			}
		}
	}

	id := domain.EngineTradeID(m.TradeID)
	if res, ok := r.Additional[id]; ok {
		m.FairSpreadClean = parseDecimal(res["fairSpreadClean"])
		m.FairSpreadDirty = parseDecimal(res["fairSpreadDirty"])
		m.ProtectionLegNPV = roundedMoney(res["legNPV[1]"])
		m.PremiumLegNPV = roundedMoney(res["legNPV[2]"])
		m.AccruedPremium = roundedMoney(res["accruedPremium"])
		m.UpfrontPremium = roundedMoney(res["upfrontPremium"])
		m.CurrentNotional = roundedMoney(res["currentNotional[1]"])
		m.OriginalNotional = roundedMoney(res["originalNotional[1]"])
	}

	m.Cashflows = lo.Filter(r.Flows, func(cf domain.Cashflow, _ int) bool { return cf.TradeID == id })
}

func roundedMoney(s string) *decimal.Decimal {
	v := parseDecimal(s)
	if v == nil {
		return nil
	}
	rounded := domain.RoundMoney(*v)
	return &rounded
}

// parseDecimal returns nil for empty, "#N/A" or malformed values.
func parseDecimal(s string) *decimal.Decimal {
	if s == "" || s == notAvailable {
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func parseDate(s string) *time.Time {
	for _, layout := range reportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
