// Package config loads the vecbt YAML configuration, applies environment
// overrides and fills defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"vecbt/internal/optimize"
)

// Price sources for a backtest.
const (
	SourceParquet = "parquet"
	SourceAlpaca  = "alpaca"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for vecbt.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Gather   GatherConfig   `yaml:"gather"`
	Backtest BacktestConfig `yaml:"backtest"`
	Optimize OptimizeConfig `yaml:"optimize"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir" validate:"required"`
	SQLitePath string `yaml:"sqlite_path" validate:"required"`
	Market     string `yaml:"market"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	GRPCPort int    `yaml:"grpc_port" validate:"gte=0,lte=65535"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs. BaseURL is the
// trading API used for the market calendar; DataURL serves bars.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed" validate:"omitempty,oneof=sip iex"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// GatherConfig controls the daily bar download job.
type GatherConfig struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min" validate:"gte=0"`
	MaxRetries      int      `yaml:"max_retries" validate:"gte=0"`
}

// BacktestConfig is the default single-run configuration.
type BacktestConfig struct {
	Source             string             `yaml:"source" validate:"oneof=parquet alpaca"`
	Symbol             string             `yaml:"symbol"`
	Start              string             `yaml:"start"`
	End                string             `yaml:"end"`
	InitialCapital     float64            `yaml:"initial_capital" validate:"gt=0"`
	CostRate           float64            `yaml:"cost_rate" validate:"gte=0,lt=1"`
	Strategy           string             `yaml:"strategy"`
	Params             map[string]float64 `yaml:"params"`
	TradingDaysPerYear float64            `yaml:"trading_days_per_year" validate:"gte=0"`
}

// OptimizeConfig is the default parameter sweep.
type OptimizeConfig struct {
	Metric   string        `yaml:"metric"`
	Minimize bool          `yaml:"minimize"`
	Workers  int           `yaml:"workers" validate:"gte=0"`
	Grid     optimize.Grid `yaml:"grid"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

var validate = validator.New()

// Default returns the configuration used when no file sets a field.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/vecbt.db",
			Market:     "us",
		},
		Server:  Server{Host: "127.0.0.1", Port: 8080, GRPCPort: 9090},
		Alpaca:  Alpaca{Feed: "sip"},
		Logging: Logging{Level: "info", Format: "json"},
		Gather: GatherConfig{
			StartDate:       "2015-01-01",
			RateLimitPerMin: 200,
			MaxRetries:      3,
		},
		Backtest: BacktestConfig{
			Source:             SourceParquet,
			InitialCapital:     10_000,
			TradingDaysPerYear: 252,
		},
		Optimize: OptimizeConfig{Metric: "sharpe"},
	}
}

// Load reads .env (if present), then the YAML file at path over Default(),
// applies environment variable overrides and validates the result. Unknown
// YAML keys are rejected. An empty path skips the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("VECBT_SOURCE"); v != "" {
		cfg.Backtest.Source = v
	}
	if v := os.Getenv("VECBT_COST_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("VECBT_COST_RATE: %w", err)
		}
		cfg.Backtest.CostRate = f
	}
	if v := os.Getenv("VECBT_GATHER_SYMBOLS"); v != "" {
		cfg.Gather.Symbols = strings.Split(v, ",")
	}

	// Standard Alpaca env vars take priority; they are the names the SDK uses.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("APCA_API_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	return nil
}
