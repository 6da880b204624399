// Package config loads the service's runtime configuration from the
// environment (with an optional .env file, grounded on the teacher's
// cmd/main.go godotenv.Load call) and, for the one setting that wants a
// structured list rather than a scalar, an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in spec §6's configuration table.
type Config struct {
	Port int

	DatabaseURL string
	RedisURL    string

	RetentionDays      int
	ExpectedPerDay     int
	CoverageRatio      float64
	TodayTTL           time.Duration
	MaintenanceHour    int
	MaintenanceMinute  int
	WarehouseBudgetBytes int64
	HistoricalFanout   int
	MaxDaysBack        int
	WarmupCountries    []string

	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

// yamlOverrides is the shape of the optional CONFIG_FILE: currently
// only warmup_countries benefits from a structured list longer than an
// env var comfortably holds.
type yamlOverrides struct {
	WarmupCountries []string `yaml:"warmup_countries"`
}

// Load reads configuration from the environment, loading a .env file
// first if present (missing .env is not an error — production runs off
// real environment variables, as in the teacher's main.go).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("../.env")
	}

	cfg := &Config{
		Port:                 envInt("PORT", 8080),
		DatabaseURL:          envString("DATABASE_URL", ""),
		RedisURL:             envString("REDIS_URL", ""),
		RetentionDays:        envInt("RETENTION_DAYS", 7),
		ExpectedPerDay:       envInt("EXPECTED_PER_DAY", 100),
		CoverageRatio:        envFloat("COVERAGE_RATIO", 0.8),
		TodayTTL:             time.Duration(envInt("TODAY_TTL_SECONDS", 900)) * time.Second,
		MaintenanceHour:      envInt("MAINTENANCE_HOUR", 0),
		MaintenanceMinute:    envInt("MAINTENANCE_MINUTE", 0),
		WarehouseBudgetBytes: envInt64("WAREHOUSE_MONTHLY_BUDGET_BYTES", 1<<40), // 1 TiB
		HistoricalFanout:     envInt("HISTORICAL_FANOUT", 4),
		MaxDaysBack:          envInt("MAX_DAYS_BACK", 30),
		WarmupCountries:      envStringList("WARMUP_COUNTRIES", defaultWarmupCountries),
		RateLimitRPS:         envFloat("RATE_LIMIT_RPS", 1000.0/60),
		RateLimitBurst:       envInt("RATE_LIMIT_BURST", 50),
		RequestTimeout:       time.Duration(envInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyYAMLOverrides(path); err != nil {
			return nil, fmt.Errorf("config: loading CONFIG_FILE %q: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyYAMLOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var ov yamlOverrides
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return err
	}
	if len(ov.WarmupCountries) > 0 {
		c.WarmupCountries = ov.WarmupCountries
	}
	return nil
}

// Validate rejects configurations that would violate spec invariants
// (e.g. a coverage ratio outside (0,1], a non-positive fanout).
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.CoverageRatio <= 0 || c.CoverageRatio > 1 {
		return fmt.Errorf("config: COVERAGE_RATIO must be in (0, 1], got %v", c.CoverageRatio)
	}
	if c.ExpectedPerDay <= 0 {
		return fmt.Errorf("config: EXPECTED_PER_DAY must be positive")
	}
	if c.HistoricalFanout <= 0 {
		return fmt.Errorf("config: HISTORICAL_FANOUT must be positive")
	}
	if c.MaxDaysBack <= 0 {
		return fmt.Errorf("config: MAX_DAYS_BACK must be positive")
	}
	if c.MaintenanceHour < 0 || c.MaintenanceHour > 23 {
		return fmt.Errorf("config: MAINTENANCE_HOUR must be 0-23")
	}
	if c.MaintenanceMinute < 0 || c.MaintenanceMinute > 59 {
		return fmt.Errorf("config: MAINTENANCE_MINUTE must be 0-59")
	}
	return nil
}

var defaultWarmupCountries = []string{
	"US", "GB", "FR", "DE", "IN", "BR", "JP", "CA", "AU", "MX",
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envStringList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
