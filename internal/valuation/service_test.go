package valuation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/cdsrisk/internal/conventions"
	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/generator"
	"github.com/mtlprog/cdsrisk/internal/process"
	"github.com/mtlprog/cdsrisk/internal/riskstore"
)

type fakeEngine struct {
	mu   sync.Mutex
	dirs []string
	run  func(workDir string) (string, error)
}

func (f *fakeEngine) Run(_ context.Context, workDir, inputFile string) (string, error) {
	f.mu.Lock()
	f.dirs = append(f.dirs, workDir)
	f.mu.Unlock()
	if inputFile != "ore.xml" {
		return "", fmt.Errorf("unexpected input file %s", inputFile)
	}
	return f.run(workDir)
}

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dirs)
}

type mockTrades struct {
	trades map[int64]domain.Trade
}

func (m *mockTrades) Get(_ context.Context, ids []int64) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, id := range ids {
		t, ok := m.trades[id]
		if !ok {
			return nil, fmt.Errorf("trade %d: not found", id)
		}
		out = append(out, t)
	}
	return out, nil
}

type mockResults struct {
	mu      sync.Mutex
	records []riskstore.Record
	err     error
}

func (m *mockResults) Save(_ context.Context, records []riskstore.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return m.err
}

type mockSnapshots struct {
	runIDs []string
}

func (m *mockSnapshots) Capture(_ context.Context, runID, _ string, date time.Time) domain.MarketDataSnapshot {
	m.runIDs = append(m.runIDs, runID)
	return domain.MarketDataSnapshot{ValuationDate: date, Source: domain.SourceLive}
}

type fixture struct {
	svc       *Service
	engine    *fakeEngine
	results   *mockResults
	snapshots *mockSnapshots
	workRoot  string
}

func newFixture(t *testing.T, run func(workDir string) (string, error)) *fixture {
	t.Helper()
	configDir := t.TempDir()
	for _, name := range []string{"Conventions.xml", "pricingengine.xml"} {
		require.NoError(t, os.WriteFile(filepath.Join(configDir, name), []byte("<Root/>"), 0o644))
	}

	f := &fixture{
		engine:    &fakeEngine{run: run},
		results:   &mockResults{},
		snapshots: &mockSnapshots{},
		workRoot:  t.TempDir(),
	}
	trades := &mockTrades{trades: map[int64]domain.Trade{1: sampleTrade(1, "USD"), 2: sampleTrade(2, "EUR")}}
	f.svc = NewService(generator.New(conventions.DefaultMarketTables()), f.engine, trades, f.results, f.snapshots,
		Config{WorkRoot: f.workRoot, EngineConfigDir: configDir})
	f.svc.now = func() time.Time { return time.Date(2025, 6, 30, 18, 0, 0, 0, time.UTC) }
	return f
}

func sampleTrade(id int64, ccy string) domain.Trade {
	return domain.Trade{
		ID:               id,
		ReferenceEntity:  "ACME",
		Notional:         decimal.NewFromInt(10_000_000),
		Spread:           decimal.NewFromInt(100),
		Currency:         ccy,
		EffectiveDate:    time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC),
		MaturityDate:     time.Date(2030, 3, 20, 0, 0, 0, 0, time.UTC),
		PremiumFrequency: "QUARTERLY",
		DayCount:         "ACT/360",
		Direction:        domain.DirectionBuy,
	}
}

func writeOutput(t *testing.T, workDir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "output", name), []byte(content), 0o644))
}

func readFile(workDir string, parts ...string) string {
	b, _ := os.ReadFile(filepath.Join(append([]string{workDir}, parts...)...))
	return string(b)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func assertWorkRootEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "work dirs left behind")
}

const npvHeader = "#TradeId,TradeType,Maturity,MaturityTime,NPV,NpvCurrency,NPV(Base),BaseCurrency\n"

func TestCalculate(t *testing.T) {
	var staged []string
	f := newFixture(t, func(workDir string) (string, error) {
		for _, p := range [][]string{
			{"ore.xml"},
			{"input", "market.txt"},
			{"input", "curveconfig.xml"},
			{"input", "todaysmarket.xml"},
			{"input", "portfolio.xml"},
			{"input", "Conventions.xml"},
			{"input", "pricingengine.xml"},
			{"input", "fixings.txt"},
		} {
			if _, err := os.Stat(filepath.Join(append([]string{workDir}, p...)...)); err == nil {
				staged = append(staged, filepath.Join(p...))
			}
		}
		writeOutput(t, workDir, "npv.csv", npvHeader+
			"CDS_1,CreditDefaultSwap,2030-03-20,4.7,-15234.567,USD,-15234.567,USD\n"+
			"CDS_2,CreditDefaultSwap,2030-03-20,4.7,8100.1,EUR,8805.3,USD\n")
		return "Loading inputs OK\nRun time: 2.5 sec\n", nil
	})

	res, err := f.svc.Calculate(context.Background(), CalculationRequest{TradeIDs: []int64{2, 1}})
	require.NoError(t, err)

	assert.Len(t, staged, 8)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "2025-06-30", res.ValuationDate.Format(time.DateOnly))
	assert.Empty(t, res.EngineError)

	require.Len(t, res.Results, 2)
	assert.Equal(t, int64(1), res.Results[0].Measures.TradeID)
	assertDecimal(t, "-15234.57", res.Results[0].Measures.NPV)
	assertDecimal(t, "2.5", res.Results[0].Measures.EngineRuntime)
	assert.Empty(t, res.Results[0].Error)
	assertDecimal(t, "8100.1", res.Results[1].Measures.NPV)
	assert.Equal(t, "EUR", res.Results[1].Measures.Currency)

	require.NotNil(t, res.Snapshot)
	assert.Equal(t, []string{res.RunID}, f.snapshots.runIDs)

	require.Len(t, f.results.records, 2)
	assert.Equal(t, KindCalculation, f.results.records[0].Kind)
	assert.Equal(t, res.RunID, f.results.records[0].RunID)

	assertWorkRootEmpty(t, f.workRoot)
}

func TestCalculateYieldShift(t *testing.T) {
	var market string
	f := newFixture(t, func(workDir string) (string, error) {
		market = readFile(workDir, "input", "market.txt")
		writeOutput(t, workDir, "npv.csv", npvHeader+"CDS_1,CreditDefaultSwap,2030-03-20,4.7,1,USD,1,USD\n")
		return "", nil
	})
	base := newFixture(t, func(workDir string) (string, error) {
		writeOutput(t, workDir, "npv.csv", npvHeader+"CDS_1,CreditDefaultSwap,2030-03-20,4.7,1,USD,1,USD\n")
		return "", nil
	})

	_, err := f.svc.Calculate(context.Background(), CalculationRequest{
		Trades:       []domain.Trade{sampleTrade(1, "USD")},
		YieldShiftBp: decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	ts, err := generator.NewTradeSet([]domain.Trade{sampleTrade(1, "USD")})
	require.NoError(t, err)
	unshifted, err := base.svc.gen.MarketData(ts, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.NotEmpty(t, market)
	assert.NotEqual(t, unshifted, market)
}

func TestCalculateEngineFailure(t *testing.T) {
	f := newFixture(t, func(string) (string, error) {
		out := "Error: failed to build curve USD\n"
		return out, &process.ExitError{Code: 1, Output: out}
	})

	res, err := f.svc.Calculate(context.Background(), CalculationRequest{TradeIDs: []int64{1}})
	require.NoError(t, err)

	assert.Contains(t, res.EngineError, "engine exited with code 1")
	assert.Contains(t, res.EngineError, "failed to build curve USD")
	require.Len(t, res.Results, 1)
	r := res.Results[0]
	assert.True(t, r.Measures.NPV.IsZero())
	assert.True(t, r.Measures.Greeks[domain.GreekDelta].IsZero())
	assert.Equal(t, res.EngineError, r.Error)

	require.Len(t, f.results.records, 1)
	assert.Equal(t, r.Error, f.results.records[0].EngineError)
}

func TestCalculateNoResults(t *testing.T) {
	f := newFixture(t, func(string) (string, error) {
		return "Warning: market data missing\n", nil
	})

	res, err := f.svc.Calculate(context.Background(), CalculationRequest{TradeIDs: []int64{1}})
	require.NoError(t, err)
	assert.Empty(t, res.EngineError)
	require.Len(t, res.Results, 1)
	assert.NotEmpty(t, res.Results[0].Error)
	assert.True(t, res.Results[0].Measures.NPV.IsZero())
}

func TestCalculateSingleReportRowIsNotShared(t *testing.T) {
	f := newFixture(t, func(workDir string) (string, error) {
		writeOutput(t, workDir, "npv.csv", "#TradeId,TradeType,Maturity,MaturityTime,NPV,NpvCurrency\n"+
			"CDS_1,CreditDefaultSwap,2030-03-20,4.72,12345.67,USD\n")
		return "run complete\n", nil
	})

	res, err := f.svc.Calculate(context.Background(), CalculationRequest{TradeIDs: []int64{1, 2}})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)

	first, second := res.Results[0], res.Results[1]
	assert.Empty(t, first.Error)
	assertDecimal(t, "12345.67", first.Measures.NPV)

	assert.NotEmpty(t, second.Error)
	assert.True(t, second.Measures.NPV.IsZero())
	assert.Equal(t, "EUR", second.Measures.Currency)
}

func TestCalculateRejectsBeforeRunning(t *testing.T) {
	f := newFixture(t, func(string) (string, error) { return "", nil })

	_, err := f.svc.Calculate(context.Background(), CalculationRequest{})
	assert.ErrorIs(t, err, ErrNoTrades)

	bad := sampleTrade(3, "usd")
	_, err = f.svc.Calculate(context.Background(), CalculationRequest{Trades: []domain.Trade{bad}})
	assert.ErrorIs(t, err, domain.ErrInvalidTrade)

	_, err = f.svc.Calculate(context.Background(), CalculationRequest{TradeIDs: []int64{99}})
	assert.Error(t, err)

	assert.Zero(t, f.engine.calls())
	assertWorkRootEmpty(t, f.workRoot)
}

func TestCalculateSaveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, func(workDir string) (string, error) {
		writeOutput(t, workDir, "npv.csv", npvHeader+"CDS_1,CreditDefaultSwap,2030-03-20,4.7,10,USD,10,USD\n")
		return "", nil
	})
	f.results.err = errors.New("connection refused")

	res, err := f.svc.Calculate(context.Background(), CalculationRequest{TradeIDs: []int64{1}})
	require.NoError(t, err)
	assertDecimal(t, "10", res.Results[0].Measures.NPV)
}

func TestKeepWorkDirs(t *testing.T) {
	f := newFixture(t, func(string) (string, error) { return "", nil })
	f.svc.cfg.KeepWorkDirs = true

	_, err := f.svc.Calculate(context.Background(), CalculationRequest{TradeIDs: []int64{1}})
	require.NoError(t, err)

	entries, err := os.ReadDir(f.workRoot)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "ore-work-calc-"))
}

func stressRequest() StressRequest {
	return StressRequest{
		TradeID:       1,
		RecoveryRates: []decimal.Decimal{decimal.NewFromInt(20), decimal.NewFromInt(30)},
		SpreadShifts:  []decimal.Decimal{decimal.NewFromInt(50), decimal.NewFromInt(100)},
		Combined:      true,
	}
}

func TestStressFromReport(t *testing.T) {
	f := newFixture(t, func(workDir string) (string, error) {
		if readFile(workDir, "input", "stresstest.xml") == "" {
			return "", errors.New("stress config not staged")
		}
		writeOutput(t, workDir, "npv.csv", npvHeader+"CDS_1,CreditDefaultSwap,2030-03-20,4.7,1000,USD,1000,USD\n")

		var sb strings.Builder
		sb.WriteString("#TradeId,ScenarioLabel,Base NPV,Scenario NPV,Sensitivity\n")
		for label, npv := range map[string]string{
			"spread_50bp":                     "21000",
			"spread_100bp":                    "151000.005",
			"recovery_20pct":                  "9000",
			"recovery_30pct":                  "5000",
			"combined_recovery20_spread50bp":  "30000",
			"combined_recovery20_spread100bp": "60000",
			"combined_recovery30_spread50bp":  "25000",
			"combined_recovery30_spread100bp": "55000",
		} {
			fmt.Fprintf(&sb, "CDS_1,%s,1000,%s,0\n", label, npv)
		}
		writeOutput(t, workDir, "stresstest.csv", sb.String())
		return "", nil
	})

	res, err := f.svc.Stress(context.Background(), stressRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, f.engine.calls())

	assertDecimal(t, "1000", res.Base.NPV)
	assert.Equal(t, 8, res.ScenarioCount)
	require.Len(t, res.Scenarios, 8)

	byID := make(map[string]ScenarioImpact)
	for _, s := range res.Scenarios {
		assert.Equal(t, ScenarioSourceReport, s.Source)
		assert.Empty(t, s.Error)
		byID[s.ID] = s
	}
	assert.Equal(t, "spread_50bp", res.Scenarios[0].ID)

	assertDecimal(t, "20000", byID["spread_50bp"].DeltaNPV)
	assert.False(t, byID["spread_50bp"].Severe)

	assertDecimal(t, "150000.01", byID["spread_100bp"].DeltaNPV)
	assert.True(t, byID["spread_100bp"].Severe)

	assert.True(t, byID["combined_recovery20_spread100bp"].Severe)
	assert.False(t, byID["combined_recovery30_spread100bp"].Severe)
	assert.False(t, byID["combined_recovery20_spread50bp"].Severe)

	require.Len(t, f.results.records, 1)
	assert.Equal(t, KindStress, f.results.records[0].Kind)
	assertWorkRootEmpty(t, f.workRoot)
}

func TestStressRerunsUnreportedScenarios(t *testing.T) {
	f := newFixture(t, func(workDir string) (string, error) {
		name := filepath.Base(workDir)
		switch {
		case strings.HasPrefix(name, "ore-work-stress-base-"):
			writeOutput(t, workDir, "npv.csv", npvHeader+"CDS_1,CreditDefaultSwap,2030-03-20,4.7,-500,USD,-500,USD\n")
			return "", nil
		case strings.HasPrefix(name, "ore-work-stress-spread_100bp-"):
			return "", &process.TimeoutError{Timeout: time.Minute}
		default:
			writeOutput(t, workDir, "npv.csv", npvHeader+"CDS_1,CreditDefaultSwap,2030-03-20,4.7,-200500,USD,-200500,USD\n")
			return "", nil
		}
	})
	f.svc.cfg.StressConcurrency = 2

	req := stressRequest()
	req.Combined = false
	res, err := f.svc.Stress(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 5, f.engine.calls())
	require.Len(t, res.Scenarios, 4)
	for _, s := range res.Scenarios {
		if s.ID == "spread_100bp" {
			assert.Contains(t, s.Error, "timed out")
			assert.True(t, s.NPV.IsZero())
			assert.True(t, s.DeltaNPV.IsZero())
			assert.False(t, s.Severe)
			continue
		}
		assert.Equal(t, ScenarioSourceRerun, s.Source, s.ID)
		assertDecimal(t, "-200000", s.DeltaNPV)
		assert.True(t, s.Severe, s.ID)
	}
	assertWorkRootEmpty(t, f.workRoot)
}

func TestStressBaseRunFailure(t *testing.T) {
	f := newFixture(t, func(string) (string, error) {
		return "", &process.ExitError{Code: 2}
	})

	_, err := f.svc.Stress(context.Background(), stressRequest())
	assert.ErrorIs(t, err, ErrBaseRun)
	assert.Equal(t, 1, f.engine.calls())
}

func TestStressInlineTrade(t *testing.T) {
	f := newFixture(t, func(workDir string) (string, error) {
		writeOutput(t, workDir, "npv.csv", npvHeader+"CDS_7,CreditDefaultSwap,2030-03-20,4.7,42,GBP,42,USD\n")
		return "", nil
	})
	trade := sampleTrade(7, "GBP")

	res, err := f.svc.Stress(context.Background(), StressRequest{Trade: &trade})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.TradeID)
	assert.Equal(t, "GBP", res.Currency)
	assert.Empty(t, res.Scenarios)
}

func TestSensitivity(t *testing.T) {
	var doc string
	f := newFixture(t, func(workDir string) (string, error) {
		doc = readFile(workDir, "ore.xml")
		writeOutput(t, workDir, "npv.csv", npvHeader+
			"CDS_1,CreditDefaultSwap,2030-03-20,4.7,11,USD,11,USD\n"+
			"CDS_2,CreditDefaultSwap,2030-03-20,4.7,22,EUR,24,USD\n")
		return "", nil
	})

	res, err := f.svc.Sensitivity(context.Background(), SensitivityRequest{
		TradeIDs:  []int64{1, 2},
		Scenarios: map[string]decimal.Decimal{"parallel_up": decimal.RequireFromString("0.01")},
	})
	require.NoError(t, err)

	assert.Contains(t, doc, "<SensitivityAnalysis>")
	assert.Contains(t, doc, "parallel_up")
	assert.Contains(t, doc, `<Trade id="CDS_1">`)
	require.Len(t, res.Results, 2)
	assertDecimal(t, "22", res.Results[1].Measures.NPV)
	assert.Equal(t, KindSensitivity, f.results.records[0].Kind)
}

func TestHealthCheck(t *testing.T) {
	healthy := newFixture(t, func(workDir string) (string, error) {
		if !strings.Contains(readFile(workDir, "ore.xml"), `<Analytic type="npv">`) {
			return "", errors.New("unexpected request")
		}
		return "", nil
	})
	status := healthy.svc.HealthCheck(context.Background())
	assert.True(t, status.Healthy)
	assert.Empty(t, status.Error)
	assert.Equal(t, 1, healthy.engine.calls())

	broken := newFixture(t, func(string) (string, error) {
		return "", fmt.Errorf("%w: no such file", process.ErrLaunch)
	})
	status = broken.svc.HealthCheck(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Error, "no such file")
	assertWorkRootEmpty(t, broken.workRoot)
}

func TestHealthCheckMissingEngineConfig(t *testing.T) {
	f := newFixture(t, func(string) (string, error) { return "", nil })
	f.svc.cfg.EngineConfigDir = filepath.Join(t.TempDir(), "missing")

	status := f.svc.HealthCheck(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Error, "staging engine config")
	assert.Zero(t, f.engine.calls())
}

func TestStageWritesInputsWithoutRunning(t *testing.T) {
	f := newFixture(t, func(string) (string, error) {
		t.Fatal("engine must not run while staging")
		return "", nil
	})

	dir, err := f.svc.Stage(context.Background(), CalculationRequest{TradeIDs: []int64{1}})
	require.NoError(t, err)

	assert.Equal(t, f.workRoot, filepath.Dir(dir))
	assert.Zero(t, f.engine.calls())
	for _, p := range []string{"ore.xml", filepath.Join("input", "market.txt"), filepath.Join("input", "portfolio.xml")} {
		_, err := os.Stat(filepath.Join(dir, p))
		assert.NoError(t, err, p)
	}
	assert.Contains(t, readFile(dir, "input", "market.txt"), "20250630 ")
}

func TestStageRejectsEmptyRequest(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Stage(context.Background(), CalculationRequest{})
	assert.ErrorIs(t, err, ErrNoTrades)

	entries, err := os.ReadDir(f.workRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
