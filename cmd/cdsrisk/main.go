package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtlprog/cdsrisk/internal/api"
	"github.com/mtlprog/cdsrisk/internal/config"
	"github.com/mtlprog/cdsrisk/internal/conventions"
	"github.com/mtlprog/cdsrisk/internal/database"
	"github.com/mtlprog/cdsrisk/internal/export"
	"github.com/mtlprog/cdsrisk/internal/generator"
	"github.com/mtlprog/cdsrisk/internal/logger"
	"github.com/mtlprog/cdsrisk/internal/process"
	"github.com/mtlprog/cdsrisk/internal/riskstore"
	"github.com/mtlprog/cdsrisk/internal/snapshot"
	"github.com/mtlprog/cdsrisk/internal/tradestore"
	"github.com/mtlprog/cdsrisk/internal/valuation"
	"github.com/mtlprog/cdsrisk/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", "error", err)
	}
	if cfg.DatabaseURL == "" {
		fatal("DATABASE_URL is required")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("failed to connect to database", "error", err)
	}
	defer pool.Close()

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		fatal("failed to create migrations sub-fs", "error", err)
	}
	if err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
		fatal("failed to run migrations", "error", err)
	}

	engine, err := process.NewManager(process.Config{
		BinaryPath: cfg.EngineBinaryPath,
		Timeout:    cfg.EngineTimeout,
		KillGrace:  cfg.EngineKillGrace,
	})
	if err != nil {
		fatal("engine binary unavailable", "path", cfg.EngineBinaryPath, "error", err)
	}
	slog.Info("engine resolved", "binary", engine.BinaryPath(), "timeout", engine.Timeout())

	tables := conventions.DefaultMarketTables().Rebase(cfg.BaseCurrency)
	gen := generator.New(tables)

	// Stores
	tradeStore := tradestore.NewPgStore(pool)
	riskStore := riskstore.NewPgStore(pool)
	snapshotSvc := snapshot.NewService(snapshot.NewBuilder(tables.BaseCurrency()), snapshot.NewPgRepository(pool))

	valuationSvc := valuation.NewService(gen, engine, tradeStore, riskStore, snapshotSvc, valuation.Config{
		WorkRoot:          cfg.EngineWorkRoot,
		EngineConfigDir:   cfg.EngineConfigPath,
		KeepWorkDirs:      cfg.KeepWorkDirs,
		StressConcurrency: cfg.StressConcurrency,
	})

	// Report writers
	var writers []export.SheetWriter
	if cfg.ReportXLSXPath != "" {
		writers = append(writers, export.NewXLSXWriter(cfg.ReportXLSXPath))
	}
	if cfg.GoogleSheetsID != "" {
		sheetsWriter, err := export.NewSheetsWriter(ctx, cfg.GoogleSheetsID, cfg.GoogleCredentials)
		if err != nil {
			fatal("failed to create Google Sheets writer", "error", err)
		}
		writers = append(writers, sheetsWriter)
	}
	exportSvc := export.NewService(riskStore, writers...)

	var hook worker.AfterRunHook
	if exportSvc.Enabled() {
		hook = exportSvc
	} else {
		slog.Info("no report writers configured, EOD export disabled")
	}

	// Start workers
	valuationWorker := worker.NewValuationWorker(tradeStore, valuationSvc, cfg.EODWorkerInterval, hook)
	go valuationWorker.Run(ctx)

	probeWorker := worker.NewProbeWorker(valuationSvc, cfg.ProbeWorkerInterval)
	go probeWorker.Run(ctx)

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, valuation endpoints are unprotected")
	}

	srv := api.NewServer(cfg.HTTPPort, valuationSvc, snapshotSvc, cfg.AdminAPIKey)

	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
