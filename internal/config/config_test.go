package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"ENGINE_BINARY_PATH", "ENGINE_CONFIG_PATH", "ENGINE_TIMEOUT", "ENGINE_KILL_GRACE",
	"ENGINE_WORK_ROOT", "KEEP_WORK_DIRS", "STRESS_CONCURRENCY", "BASE_CURRENCY",
	"DATABASE_URL", "HTTP_PORT", "ADMIN_API_KEY", "LOG_LEVEL", "EOD_WORKER_INTERVAL",
	"PROBE_WORKER_INTERVAL", "REPORT_XLSX_PATH", "GOOGLE_SHEETS_ID", "GOOGLE_CREDENTIALS_JSON",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.EngineBinaryPath != "ore" {
		t.Errorf("EngineBinaryPath = %q, want ore", cfg.EngineBinaryPath)
	}
	if cfg.EngineTimeout != 300*time.Second {
		t.Errorf("EngineTimeout = %v, want 300s", cfg.EngineTimeout)
	}
	if cfg.EngineKillGrace != 5*time.Second {
		t.Errorf("EngineKillGrace = %v, want 5s", cfg.EngineKillGrace)
	}
	if cfg.KeepWorkDirs {
		t.Error("KeepWorkDirs = true, want false")
	}
	if cfg.StressConcurrency != 3 {
		t.Errorf("StressConcurrency = %d, want 3", cfg.StressConcurrency)
	}
	if cfg.BaseCurrency != "USD" {
		t.Errorf("BaseCurrency = %q, want USD", cfg.BaseCurrency)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.HTTPPort)
	}
	if cfg.EODWorkerInterval != 24*time.Hour {
		t.Errorf("EODWorkerInterval = %v, want 24h", cfg.EODWorkerInterval)
	}
	if cfg.ProbeWorkerInterval != 15*time.Minute {
		t.Errorf("ProbeWorkerInterval = %v, want 15m", cfg.ProbeWorkerInterval)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGINE_BINARY_PATH", "/usr/local/bin/ore")
	t.Setenv("ENGINE_TIMEOUT", "90s")
	t.Setenv("KEEP_WORK_DIRS", "true")
	t.Setenv("STRESS_CONCURRENCY", "6")
	t.Setenv("BASE_CURRENCY", "eur")
	t.Setenv("DATABASE_URL", "postgres://localhost/testdb")
	t.Setenv("HTTP_PORT", "9090")

	cfg := Load()

	if cfg.EngineBinaryPath != "/usr/local/bin/ore" {
		t.Errorf("EngineBinaryPath = %q, want override", cfg.EngineBinaryPath)
	}
	if cfg.EngineTimeout != 90*time.Second {
		t.Errorf("EngineTimeout = %v, want 90s", cfg.EngineTimeout)
	}
	if !cfg.KeepWorkDirs {
		t.Error("KeepWorkDirs = false, want true")
	}
	if cfg.StressConcurrency != 6 {
		t.Errorf("StressConcurrency = %d, want 6", cfg.StressConcurrency)
	}
	if cfg.BaseCurrency != "EUR" {
		t.Errorf("BaseCurrency = %q, want EUR", cfg.BaseCurrency)
	}
	if cfg.DatabaseURL != "postgres://localhost/testdb" {
		t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("HTTPPort = %q, want 9090", cfg.HTTPPort)
	}
}

func TestLoadInvalidEnvFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("STRESS_CONCURRENCY", "not-a-number")
	t.Setenv("ENGINE_TIMEOUT", "invalid-duration")
	t.Setenv("KEEP_WORK_DIRS", "maybe")

	cfg := Load()

	if cfg.StressConcurrency != 3 {
		t.Errorf("StressConcurrency = %d, want default 3 on invalid input", cfg.StressConcurrency)
	}
	if cfg.EngineTimeout != 300*time.Second {
		t.Errorf("EngineTimeout = %v, want default 300s on invalid input", cfg.EngineTimeout)
	}
	if cfg.KeepWorkDirs {
		t.Error("KeepWorkDirs = true, want default false on invalid input")
	}
}

func engineConfigDir(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("<Root/>"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestValidate(t *testing.T) {
	valid := Config{
		EngineConfigPath:  engineConfigDir(t, "Conventions.xml", "pricingengine.xml"),
		EngineWorkRoot:    t.TempDir(),
		EngineTimeout:     time.Minute,
		StressConcurrency: 3,
		BaseCurrency:      "USD",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing config dir", func(c *Config) { c.EngineConfigPath = "/nonexistent/ore" }, "ENGINE_CONFIG_PATH"},
		{"missing conventions", func(c *Config) { c.EngineConfigPath = engineConfigDir(t, "pricingengine.xml") }, "Conventions.xml"},
		{"missing pricing engines", func(c *Config) { c.EngineConfigPath = engineConfigDir(t, "Conventions.xml") }, "pricingengine.xml"},
		{"relative work root", func(c *Config) { c.EngineWorkRoot = "work" }, "ENGINE_WORK_ROOT"},
		{"zero timeout", func(c *Config) { c.EngineTimeout = 0 }, "ENGINE_TIMEOUT"},
		{"zero concurrency", func(c *Config) { c.StressConcurrency = 0 }, "STRESS_CONCURRENCY"},
		{"bad currency", func(c *Config) { c.BaseCurrency = "DOLLAR" }, "BASE_CURRENCY"},
		{"sheets without credentials", func(c *Config) { c.GoogleSheetsID = "sheet" }, "GOOGLE_SHEETS_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.want)
			}
		})
	}
}
