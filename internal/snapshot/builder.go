// Package snapshot rebuilds, persists and serves the market data an engine
// run was given.
package snapshot

import (
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/generator"
	"github.com/mtlprog/cdsrisk/internal/quotekey"
	"github.com/mtlprog/cdsrisk/internal/request"
)

//go:embed samples/*
var samples embed.FS

const samplesDir = "samples"

// Builder rebuilds a MarketDataSnapshot from a working directory's input files.
type Builder struct {
	baseCurrency string
	samples      fs.FS
}

// NewBuilder creates a Builder that falls back to the packaged sample files.
func NewBuilder(baseCurrency string) *Builder {
	sub, err := fs.Sub(samples, samplesDir)
	if err != nil {
		panic(err)
	}
	return &Builder{baseCurrency: baseCurrency, samples: sub}
}

// Build reads market.txt, todaysmarket.xml and curveconfig.xml from
// workDir/input, substituting a packaged sample for each missing file. It
// never fails: unparseable market lines are skipped and counted.
func (b *Builder) Build(workDir string, valuationDate time.Time) domain.MarketDataSnapshot {
	snap := domain.MarketDataSnapshot{
		ValuationDate: valuationDate,
		BaseCurrency:  b.baseCurrency,
		FXRates:       make(map[string]decimal.Decimal),
		Sources:       make(map[string]domain.Source, 3),
	}

	inputDir := filepath.Join(workDir, "input")
	var src domain.Source
	snap.MarketDataFile, src = b.read(inputDir, request.MarketDataFile)
	snap.Sources[request.MarketDataFile] = src
	snap.TodaysMarketFile, src = b.read(inputDir, request.TodaysMarketFile)
	snap.Sources[request.TodaysMarketFile] = src
	snap.CurveConfigFile, src = b.read(inputDir, request.CurveConfigFile)
	snap.Sources[request.CurveConfigFile] = src
	snap.Source = aggregateSource(lo.Values(snap.Sources))

	parseMarketData(&snap, snap.MarketDataFile)

	slog.Info("built market data snapshot",
		"source", snap.Source,
		"discountCurves", len(snap.DiscountCurves),
		"defaultCurves", len(snap.DefaultCurves),
		"fxRates", len(snap.FXRates),
		"skippedLines", snap.SkippedLines)
	return snap
}

func (b *Builder) read(inputDir, name string) (string, domain.Source) {
	data, err := os.ReadFile(filepath.Join(inputDir, name))
	if err == nil {
		return string(data), domain.SourceLive
	}
	if !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read snapshot input, using sample", "file", name, "error", err)
	}

	data, err = fs.ReadFile(b.samples, name)
	if err != nil {
		slog.Warn("no sample available for snapshot input", "file", name, "error", err)
		return "", domain.SourceMissing
	}
	return string(data), domain.SourceSample
}

// aggregateSource is live when every file is live, sample when any sample
// was used and missing otherwise.
func aggregateSource(sources []domain.Source) domain.Source {
	switch {
	case len(sources) > 0 && lo.EveryBy(sources, func(s domain.Source) bool { return s == domain.SourceLive }):
		return domain.SourceLive
	case lo.Contains(sources, domain.SourceSample):
		return domain.SourceSample
	default:
		return domain.SourceMissing
	}
}

type curveKey struct{ a, b string }

// parseMarketData rebuilds curve aggregates from "YYYYMMDD key value" lines.
// Curves keep the order in which they first appear.
func parseMarketData(snap *domain.MarketDataSnapshot, content string) {
	discount := make(map[curveKey]int)
	defaults := make(map[curveKey]int)

	defaultCurve := func(k quotekey.Key) *domain.DefaultCurve {
		ck := curveKey{k.Entity, k.Currency}
		i, ok := defaults[ck]
		if !ok {
			i = len(snap.DefaultCurves)
			defaults[ck] = i
			snap.DefaultCurves = append(snap.DefaultCurves, domain.DefaultCurve{
				Entity:   k.Entity,
				Currency: k.Currency,
				CurveID:  k.Entity + "_" + k.Seniority + "_" + k.Currency,
			})
		}
		return &snap.DefaultCurves[i]
	}

	for line := range strings.Lines(content) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			snap.SkippedLines++
			continue
		}
		if _, err := time.Parse(generator.MarketDateFormat, fields[0]); err != nil {
			snap.SkippedLines++
			continue
		}
		key, err := quotekey.Decode(fields[1])
		if err != nil {
			slog.Debug("skipping market data line", "line", line, "error", err)
			snap.SkippedLines++
			continue
		}
		value, err := decimal.NewFromString(fields[2])
		if err != nil {
			snap.SkippedLines++
			continue
		}

		switch key.Family {
		case quotekey.FamilyZeroRate:
			ck := curveKey{key.Currency, key.Index}
			i, ok := discount[ck]
			if !ok {
				i = len(snap.DiscountCurves)
				discount[ck] = i
				snap.DiscountCurves = append(snap.DiscountCurves, domain.DiscountCurve{Currency: key.Currency, CurveID: key.Index})
			}
			snap.DiscountCurves[i].Quotes = append(snap.DiscountCurves[i].Quotes, domain.QuoteData{
				Tenor: key.Tenor, QuoteKey: fields[1], Value: value, Kind: domain.QuoteKindZeroRate,
			})
		case quotekey.FamilyFXSpot:
			snap.FXRates[fields[1]] = value
		case quotekey.FamilyRecovery:
			defaultCurve(key).RecoveryRate = &value
		case quotekey.FamilyCDSSpread:
			c := defaultCurve(key)
			c.Quotes = append(c.Quotes, domain.QuoteData{
				Tenor: key.Tenor, QuoteKey: fields[1], Value: value, Kind: domain.QuoteKindCDSSpread,
			})
		case quotekey.FamilyHazardRate:
			c := defaultCurve(key)
			c.Quotes = append(c.Quotes, domain.QuoteData{
				Tenor: key.Tenor, QuoteKey: fields[1], Value: value, Kind: domain.QuoteKindHazardRate,
			})
		}
	}
}
