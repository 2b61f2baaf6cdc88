package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/cdsrisk/internal/conventions"
	"github.com/mtlprog/cdsrisk/internal/export"
	"github.com/mtlprog/cdsrisk/internal/generator"
	"github.com/mtlprog/cdsrisk/internal/logger"
	"github.com/mtlprog/cdsrisk/internal/process"
	"github.com/mtlprog/cdsrisk/internal/snapshot"
	"github.com/mtlprog/cdsrisk/internal/tradestore"
	"github.com/mtlprog/cdsrisk/internal/valuation"
)

const defaultTimeout = 300 * time.Second

var errUnhealthy = errors.New("engine unhealthy")

func tradesFlag() cli.Flag {
	return &cli.StringFlag{Name: "trades", Aliases: []string{"t"}, Usage: "JSON trades file", Required: true}
}

func dateFlag() cli.Flag {
	return &cli.StringFlag{Name: "date", Usage: "valuation date YYYY-MM-DD (default today)"}
}

func setupLogging(c *cli.Context) error {
	logger.Init(c.String("log-level"))
	return nil
}

// newService builds a valuation service over a trades file. A nil engine is
// allowed for commands that never run it.
func newService(c *cli.Context, trades *tradestore.FileStore, engine valuation.Engine) *valuation.Service {
	var source valuation.TradeSource
	if trades != nil {
		source = trades
	}
	tables := conventions.DefaultMarketTables().Rebase(c.String("base-currency"))
	return valuation.NewService(generator.New(tables), engine, source, nil,
		snapshot.NewService(snapshot.NewBuilder(tables.BaseCurrency()), nil),
		valuation.Config{
			WorkRoot:        c.String("work-root"),
			EngineConfigDir: c.String("engine-config"),
			KeepWorkDirs:    c.Bool("keep"),
		})
}

func newEngine(c *cli.Context) (*process.Manager, error) {
	return process.NewManager(process.Config{
		BinaryPath: c.String("engine"),
		Timeout:    c.Duration("timeout"),
	})
}

func loadTrades(c *cli.Context) (*tradestore.FileStore, error) {
	return tradestore.LoadFile(c.String("trades"))
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

func parseDecimals(values []string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", v, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// calculationRequest selects --ids from the file, or every trade when none are given.
func calculationRequest(c *cli.Context, trades *tradestore.FileStore) (valuation.CalculationRequest, error) {
	date, err := parseDate(c.String("date"))
	if err != nil {
		return valuation.CalculationRequest{}, err
	}
	shift, err := decimal.NewFromString(c.String("yield-shift"))
	if err != nil {
		return valuation.CalculationRequest{}, fmt.Errorf("invalid yield shift: %w", err)
	}
	req := valuation.CalculationRequest{ValuationDate: date, YieldShiftBp: shift, TradeIDs: c.Int64Slice("ids")}
	if len(req.TradeIDs) == 0 {
		req.Trades = trades.All()
	}
	return req, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func calculationFlags() []cli.Flag {
	return []cli.Flag{
		tradesFlag(),
		dateFlag(),
		&cli.Int64SliceFlag{Name: "ids", Usage: "trade ids to value (default all)"},
		&cli.StringFlag{Name: "yield-shift", Value: "0", Usage: "parallel zero-rate shift in basis points"},
	}
}

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "write engine inputs for the trades into a new working directory",
		Flags: calculationFlags(),
		Action: func(c *cli.Context) error {
			trades, err := loadTrades(c)
			if err != nil {
				return err
			}
			req, err := calculationRequest(c, trades)
			if err != nil {
				return err
			}
			dir, err := newService(c, trades, nil).Stage(c.Context, req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, dir)
			return err
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "value the trades and print the results as JSON",
		Flags: append(calculationFlags(),
			&cli.StringFlag{Name: "xlsx", Usage: "also write the risk report to this .xlsx file"}),
		Action: func(c *cli.Context) error {
			trades, err := loadTrades(c)
			if err != nil {
				return err
			}
			req, err := calculationRequest(c, trades)
			if err != nil {
				return err
			}
			engine, err := newEngine(c)
			if err != nil {
				return err
			}
			res, err := newService(c, trades, engine).Calculate(c.Context, req)
			if err != nil {
				return err
			}
			if path := c.String("xlsx"); path != "" {
				if err := export.NewService(nil, export.NewXLSXWriter(path)).Export(c.Context, res); err != nil {
					return fmt.Errorf("writing report: %w", err)
				}
			}
			return writeJSON(c.App.Writer, res)
		},
	}
}

func stressCommand() *cli.Command {
	return &cli.Command{
		Name:  "stress",
		Usage: "run recovery and spread stress scenarios for one trade",
		Flags: []cli.Flag{
			tradesFlag(),
			dateFlag(),
			&cli.Int64Flag{Name: "trade-id", Required: true},
			&cli.StringSliceFlag{Name: "recovery", Usage: "recovery targets in percent"},
			&cli.StringSliceFlag{Name: "spread", Usage: "spread shifts in basis points"},
			&cli.BoolFlag{Name: "combined", Value: true, Usage: "add the worst-case combined scenario"},
		},
		Action: func(c *cli.Context) error {
			trades, err := loadTrades(c)
			if err != nil {
				return err
			}
			date, err := parseDate(c.String("date"))
			if err != nil {
				return err
			}
			recovery, err := parseDecimals(c.StringSlice("recovery"))
			if err != nil {
				return err
			}
			spread, err := parseDecimals(c.StringSlice("spread"))
			if err != nil {
				return err
			}
			engine, err := newEngine(c)
			if err != nil {
				return err
			}
			res, err := newService(c, trades, engine).Stress(c.Context, valuation.StressRequest{
				TradeID:       c.Int64("trade-id"),
				RecoveryRates: recovery,
				SpreadShifts:  spread,
				Combined:      c.Bool("combined"),
				ValuationDate: date,
			})
			if err != nil {
				return err
			}
			return writeJSON(c.App.Writer, res)
		},
	}
}

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:      "snapshot",
		Usage:     "rebuild the market data snapshot of a working directory",
		ArgsUsage: "WORKDIR",
		Flags:     []cli.Flag{dateFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("snapshot needs exactly one working directory")
			}
			date, err := parseDate(c.String("date"))
			if err != nil {
				return err
			}
			if date.IsZero() {
				date = time.Now().UTC().Truncate(24 * time.Hour)
			}
			snap := snapshot.NewBuilder(c.String("base-currency")).Build(c.Args().First(), date)
			return writeJSON(c.App.Writer, snap)
		},
	}
}

func healthcheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "healthcheck",
		Usage: "run the engine health-check document",
		Action: func(c *cli.Context) error {
			engine, err := newEngine(c)
			if err != nil {
				return err
			}
			status := newService(c, nil, engine).HealthCheck(c.Context)
			if err := writeJSON(c.App.Writer, status); err != nil {
				return err
			}
			if !status.Healthy {
				return errUnhealthy
			}
			return nil
		},
	}
}
