package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const tradesJSON = `[
  {"id": 7, "referenceEntity": "ACME", "notional": "10000000", "spread": "100", "currency": "USD",
   "effectiveDate": "2025-03-20", "maturityDate": "2030-03-20", "premiumFrequency": "QUARTERLY",
   "dayCount": "ACT/360", "direction": "BUY", "recoveryRate": "40"}
]`

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"cdsriskctl", "--log-level", "error"}, args...))
	return out.String(), err
}

func engineConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"Conventions.xml", "pricingengine.xml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("<Root/>"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestGenerateStagesInputs(t *testing.T) {
	tradesFile := filepath.Join(t.TempDir(), "trades.json")
	if err := os.WriteFile(tradesFile, []byte(tradesJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	workRoot := t.TempDir()

	out, err := runApp(t, "--engine-config", engineConfigDir(t), "--work-root", workRoot,
		"generate", "--trades", tradesFile, "--date", "2025-06-30")
	if err != nil {
		t.Fatalf("generate error: %v (%s)", err, out)
	}

	dir := strings.TrimSpace(out)
	if filepath.Dir(dir) != workRoot {
		t.Fatalf("staged dir %q not under %q", dir, workRoot)
	}
	market, err := os.ReadFile(filepath.Join(dir, "input", "market.txt"))
	if err != nil {
		t.Fatalf("reading market data: %v", err)
	}
	if !strings.Contains(string(market), "20250630 ") {
		t.Errorf("market data not dated 2025-06-30:\n%s", market)
	}
	if _, err := os.Stat(filepath.Join(dir, "ore.xml")); err != nil {
		t.Errorf("request document missing: %v", err)
	}
}

func TestGenerateQuotesFXAgainstBaseCurrency(t *testing.T) {
	tradesFile := filepath.Join(t.TempDir(), "trades.json")
	if err := os.WriteFile(tradesFile, []byte(tradesJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runApp(t, "--engine-config", engineConfigDir(t), "--work-root", t.TempDir(),
		"--base-currency", "EUR", "generate", "--trades", tradesFile, "--date", "2025-06-30")
	if err != nil {
		t.Fatalf("generate error: %v (%s)", err, out)
	}
	market, err := os.ReadFile(filepath.Join(strings.TrimSpace(out), "input", "market.txt"))
	if err != nil {
		t.Fatalf("reading market data: %v", err)
	}
	if !strings.Contains(string(market), "FX/RATE/USD/EUR") {
		t.Errorf("market data has no USD quote against EUR:\n%s", market)
	}
	if strings.Contains(string(market), "/USD/USD") || strings.Contains(string(market), "FX/RATE/EUR/USD") {
		t.Errorf("market data quotes FX against USD:\n%s", market)
	}
}

func TestGenerateRejectsBadDate(t *testing.T) {
	tradesFile := filepath.Join(t.TempDir(), "trades.json")
	if err := os.WriteFile(tradesFile, []byte(tradesJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := runApp(t, "--engine-config", engineConfigDir(t), "--work-root", t.TempDir(),
		"generate", "--trades", tradesFile, "--date", "30.06.2025")
	if err == nil || !strings.Contains(err.Error(), "invalid date") {
		t.Errorf("error = %v, want invalid date", err)
	}
}

func TestGenerateRequiresTrades(t *testing.T) {
	if _, err := runApp(t, "generate"); err == nil {
		t.Error("expected error without --trades")
	}
}

func TestSnapshotFallsBackToSamples(t *testing.T) {
	out, err := runApp(t, "snapshot", "--date", "2025-06-30", t.TempDir())
	if err != nil {
		t.Fatalf("snapshot error: %v (%s)", err, out)
	}

	var snap struct {
		Source       string `json:"source"`
		BaseCurrency string `json:"baseCurrency"`
	}
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decoding snapshot: %v\n%s", err, out)
	}
	if snap.Source != "sample" {
		t.Errorf("source = %q, want sample", snap.Source)
	}
	if snap.BaseCurrency != "USD" {
		t.Errorf("baseCurrency = %q, want USD", snap.BaseCurrency)
	}
}

func TestSnapshotNeedsWorkDir(t *testing.T) {
	if _, err := runApp(t, "snapshot"); err == nil {
		t.Error("expected error without a working directory")
	}
}

func TestHealthcheckMissingEngine(t *testing.T) {
	if _, err := runApp(t, "--engine", "/nonexistent/ore", "healthcheck"); err == nil {
		t.Error("expected error for missing engine binary")
	}
}
