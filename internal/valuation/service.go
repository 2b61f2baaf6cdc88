// Package valuation orchestrates engine runs: it stages generated inputs in a
// working directory, runs the engine, parses its results and records the
// market data snapshot.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/generator"
	"github.com/mtlprog/cdsrisk/internal/output"
	"github.com/mtlprog/cdsrisk/internal/process"
	"github.com/mtlprog/cdsrisk/internal/request"
	"github.com/mtlprog/cdsrisk/internal/riskstore"
	"github.com/mtlprog/cdsrisk/internal/workdir"
)

// Run kinds recorded with stored results.
const (
	KindCalculation = "calculation"
	KindStress      = "stress"
	KindSensitivity = "sensitivity"
)

const defaultStressConcurrency = 3

// ErrNoTrades is returned when a request resolves to an empty trade set.
var ErrNoTrades = errors.New("no trades to value")

// TradeSource provides trade-for-valuation records.
type TradeSource interface {
	Get(ctx context.Context, ids []int64) ([]domain.Trade, error)
}

// ResultStore persists per-trade results.
type ResultStore interface {
	Save(ctx context.Context, records []riskstore.Record) error
}

// SnapshotCapturer records the market data a run used.
type SnapshotCapturer interface {
	Capture(ctx context.Context, runID, workDir string, valuationDate time.Time) domain.MarketDataSnapshot
}

// Engine runs the external valuation binary.
type Engine interface {
	Run(ctx context.Context, workDir, inputFile string) (string, error)
}

// Config holds the filesystem settings of the service.
type Config struct {
	WorkRoot          string // parent of per-run working directories
	EngineConfigDir   string // holds Conventions.xml and pricingengine.xml
	KeepWorkDirs      bool
	StressConcurrency int // engine runs in flight during a stress analysis
}

// Service runs valuations against the engine.
type Service struct {
	gen       *generator.Generator
	builder   *request.Builder
	parser    *output.Parser
	engine    Engine
	trades    TradeSource
	results   ResultStore
	snapshots SnapshotCapturer
	cfg       Config
	now       func() time.Time
}

// NewService creates a Service. results and snapshots may be nil.
func NewService(gen *generator.Generator, engine Engine, trades TradeSource, results ResultStore, snapshots SnapshotCapturer, cfg Config) *Service {
	if cfg.StressConcurrency <= 0 {
		cfg.StressConcurrency = defaultStressConcurrency
	}
	return &Service{
		gen:       gen,
		builder:   request.NewBuilder(gen),
		parser:    output.NewParser(),
		engine:    engine,
		trades:    trades,
		results:   results,
		snapshots: snapshots,
		cfg:       cfg,
		now:       time.Now,
	}
}

// TradeResult is the outcome for one trade. Error is set when the engine or
// the parser could not produce measures; Measures is then zeroed.
type TradeResult struct {
	Measures domain.RiskMeasures `json:"measures"`
	Error    string              `json:"error,omitempty"`
}

func (s *Service) valuationDate(d time.Time) time.Time {
	if d.IsZero() {
		d = s.now()
	}
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func (s *Service) resolveTrades(ctx context.Context, ids []int64, inline []domain.Trade) ([]domain.Trade, error) {
	if len(inline) > 0 {
		return inline, nil
	}
	if len(ids) == 0 {
		return nil, ErrNoTrades
	}
	trades, err := s.trades.Get(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching trades: %w", err)
	}
	if len(trades) == 0 {
		return nil, ErrNoTrades
	}
	return trades, nil
}

// run is one staged working directory and the engine output produced in it.
type run struct {
	id     string
	dir    *workdir.Dir
	output string
	err    error
}

func (s *Service) newRun(label string) (*run, error) {
	dir, err := workdir.New(s.cfg.WorkRoot, label)
	if err != nil {
		return nil, err
	}
	if err := dir.CopyStatic(s.cfg.EngineConfigDir, request.FixingDataFile,
		request.ConventionsFile, request.PricingEnginesFile); err != nil {
		s.cleanup(dir)
		return nil, fmt.Errorf("staging engine config: %w", err)
	}
	return &run{id: uuid.NewString(), dir: dir}, nil
}

func (s *Service) cleanup(dir *workdir.Dir) {
	if s.cfg.KeepWorkDirs {
		slog.Info("keeping work dir", "path", dir.Path())
		return
	}
	if err := dir.Remove(); err != nil {
		slog.Warn("failed to remove work dir", "path", dir.Path(), "error", err)
	}
}

// stageMarket writes the generated curve, market, wiring and portfolio files.
func (s *Service) stageMarket(r *run, ts *generator.TradeSet, date time.Time, opts ...generator.MarketOption) error {
	curveConfig, err := s.gen.CurveConfig(ts)
	if err != nil {
		return err
	}
	todaysMarket, err := s.gen.TodaysMarket(ts)
	if err != nil {
		return err
	}
	market, err := s.gen.MarketData(ts, date, opts...)
	if err != nil {
		return err
	}
	portfolio, err := s.gen.Portfolio(ts)
	if err != nil {
		return err
	}

	for name, content := range map[string]string{
		request.CurveConfigFile:  curveConfig,
		request.TodaysMarketFile: todaysMarket,
		request.MarketDataFile:   market,
		request.PortfolioFile:    portfolio,
	} {
		if err := r.dir.WriteInput(name, content); err != nil {
			return err
		}
	}
	return nil
}

// prepare stages the market files and the calculation request for one run.
func (s *Service) prepare(r *run, ts *generator.TradeSet, date time.Time, withStress bool, opts ...generator.MarketOption) error {
	if err := s.stageMarket(r, ts, date, opts...); err != nil {
		return fmt.Errorf("generating inputs: %w", err)
	}
	doc, err := s.builder.Calculation(request.CalculationParams{
		ValuationDate: date,
		InputDir:      r.dir.InputDir(),
		OutputDir:     r.dir.OutputDir(),
		WithStress:    withStress,
	})
	if err != nil {
		return err
	}
	return r.dir.WriteRoot(request.RequestFile, doc)
}

// execute runs the engine over the request document already staged in r.
func (s *Service) execute(ctx context.Context, r *run) {
	r.output, r.err = s.engine.Run(ctx, r.dir.Path(), request.RequestFile)
}

// measure turns the engine output of r into one result per trade. The reports
// are nil when the engine run failed.
func (s *Service) measure(r *run, trades []domain.Trade, date time.Time) ([]TradeResult, *output.Reports) {
	calculatedAt := s.now().UTC()
	results := make([]TradeResult, 0, len(trades))

	if r.err != nil {
		reason := engineFailure(r.err, r.output)
		for _, t := range trades {
			m := domain.ZeroRiskMeasures(t.ID, t.Currency)
			m.ValuationDate, m.CalculatedAt = date, calculatedAt
			results = append(results, TradeResult{Measures: m, Error: reason})
		}
		return results, nil
	}

	reports, err := output.ReadReports(r.dir.OutputDir())
	if err != nil {
		slog.Warn("failed to read engine reports", "runId", r.id, "error", err)
	}
	hasResults := output.HasResults(r.output)
	sole := len(trades) == 1

	for _, t := range trades {
		m, perr := s.parser.Parse(t.ID, t.Currency, r.output)
		reports.Apply(&m, sole)
		m.ValuationDate, m.CalculatedAt = date, calculatedAt

		_, reported := reports.NPVFor(t.ID, sole)
		res := TradeResult{Measures: m}
		switch {
		case !hasResults && !reported:
			res.Error = output.ExtractError(r.output)
		case perr != nil && !(errors.Is(perr, output.ErrUnparseable) && reported):
			res.Error = perr.Error()
		}
		if res.Error != "" {
			slog.Warn("trade valuation incomplete", "runId", r.id, "tradeId", t.ID, "reason", res.Error)
		}
		results = append(results, res)
	}
	return results, reports
}

func (s *Service) persist(ctx context.Context, runID, kind string, results []TradeResult) {
	if s.results == nil || len(results) == 0 {
		return
	}
	records := make([]riskstore.Record, 0, len(results))
	for _, r := range results {
		records = append(records, riskstore.Record{RunID: runID, Kind: kind, Measures: r.Measures, EngineError: r.Error})
	}
	if err := s.results.Save(ctx, records); err != nil {
		slog.Warn("failed to persist results", "runId", runID, "kind", kind, "error", err)
	}
}

func (s *Service) capture(ctx context.Context, r *run, date time.Time) *domain.MarketDataSnapshot {
	if s.snapshots == nil {
		return nil
	}
	snap := s.snapshots.Capture(ctx, r.id, r.dir.Path(), date)
	return &snap
}

// engineFailure describes a failed engine run for a result's Error field.
func engineFailure(err error, out string) string {
	var exitErr *process.ExitError
	switch {
	case errors.Is(err, process.ErrTimeout):
		return err.Error()
	case errors.As(err, &exitErr):
		return fmt.Sprintf("%s: %s", err, output.ExtractError(exitErr.Output))
	default:
		return err.Error()
	}
}
