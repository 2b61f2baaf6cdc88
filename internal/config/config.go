package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mtlprog/cdsrisk/internal/request"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	EngineBinaryPath    string
	EngineConfigPath    string
	EngineTimeout       time.Duration
	EngineKillGrace     time.Duration
	EngineWorkRoot      string
	KeepWorkDirs        bool
	StressConcurrency   int
	BaseCurrency        string
	DatabaseURL         string
	HTTPPort            string
	AdminAPIKey         string
	LogLevel            string
	EODWorkerInterval   time.Duration
	ProbeWorkerInterval time.Duration
	ReportXLSXPath      string
	GoogleSheetsID      string
	GoogleCredentials   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		EngineBinaryPath:    envOrDefault("ENGINE_BINARY_PATH", "ore"),
		EngineConfigPath:    envOrDefault("ENGINE_CONFIG_PATH", "/opt/ore/config"),
		EngineTimeout:       envOrDefaultDuration("ENGINE_TIMEOUT", 300*time.Second),
		EngineKillGrace:     envOrDefaultDuration("ENGINE_KILL_GRACE", 5*time.Second),
		EngineWorkRoot:      envOrDefault("ENGINE_WORK_ROOT", os.TempDir()),
		KeepWorkDirs:        envOrDefaultBool("KEEP_WORK_DIRS", false),
		StressConcurrency:   envOrDefaultInt("STRESS_CONCURRENCY", 3),
		BaseCurrency:        strings.ToUpper(envOrDefault("BASE_CURRENCY", "USD")),
		DatabaseURL:         envOrDefaultWarn("DATABASE_URL", ""),
		HTTPPort:            envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:         os.Getenv("ADMIN_API_KEY"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		EODWorkerInterval:   envOrDefaultDuration("EOD_WORKER_INTERVAL", 24*time.Hour),
		ProbeWorkerInterval: envOrDefaultDuration("PROBE_WORKER_INTERVAL", 15*time.Minute),
		ReportXLSXPath:      os.Getenv("REPORT_XLSX_PATH"),
		GoogleSheetsID:      os.Getenv("GOOGLE_SHEETS_ID"),
		GoogleCredentials:   os.Getenv("GOOGLE_CREDENTIALS_JSON"),
	}
}

// Validate checks the settings the service cannot start without.
func (c Config) Validate() error {
	var errs []error
	if info, err := os.Stat(c.EngineConfigPath); err != nil || !info.IsDir() {
		errs = append(errs, fmt.Errorf("ENGINE_CONFIG_PATH %q is not a directory", c.EngineConfigPath))
	} else {
		for _, name := range []string{request.ConventionsFile, request.PricingEnginesFile} {
			path := filepath.Join(c.EngineConfigPath, name)
			if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
				errs = append(errs, fmt.Errorf("engine config file %q is missing", path))
			}
		}
	}
	if !filepath.IsAbs(c.EngineWorkRoot) {
		errs = append(errs, fmt.Errorf("ENGINE_WORK_ROOT %q must be absolute", c.EngineWorkRoot))
	}
	if c.EngineTimeout <= 0 {
		errs = append(errs, errors.New("ENGINE_TIMEOUT must be positive"))
	}
	if c.StressConcurrency <= 0 {
		errs = append(errs, errors.New("STRESS_CONCURRENCY must be positive"))
	}
	if len(c.BaseCurrency) != 3 {
		errs = append(errs, fmt.Errorf("BASE_CURRENCY %q is not an ISO code", c.BaseCurrency))
	}
	if (c.GoogleSheetsID == "") != (c.GoogleCredentials == "") {
		errs = append(errs, errors.New("GOOGLE_SHEETS_ID and GOOGLE_CREDENTIALS_JSON must be set together"))
	}
	return errors.Join(errs...)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return b
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}
