// Package config loads the YAML configuration file and applies environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Backtest Backtest `yaml:"backtest"`
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Logging  Logging  `yaml:"logging"`
}

// Backtest holds the simulation parameters for a run.
type Backtest struct {
	InitialCapital float64  `yaml:"initial_capital"`
	CommissionRate float64  `yaml:"commission_rate"`
	CommissionMin  float64  `yaml:"commission_min"`
	SlippageRate   float64  `yaml:"slippage_rate"`
	StartDate      string   `yaml:"start_date"` // YYYY-MM-DD
	EndDate        string   `yaml:"end_date"`   // YYYY-MM-DD
	DataFrequency  string   `yaml:"data_frequency"`
	Symbols        []string `yaml:"symbols"`
	Benchmark      string   `yaml:"benchmark"`
	RiskFreeRate   float64  `yaml:"risk_free_rate"`
	Strategy       Strategy `yaml:"strategy"`
	Risk           Risk     `yaml:"risk"`
	ReportDir      string   `yaml:"report_dir"`
}

// Strategy selects a registered strategy and its parameters.
type Strategy struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// Risk holds position-sizing parameters.
type Risk struct {
	RiskFraction float64 `yaml:"risk_fraction"`
	StopDistance float64 `yaml:"stop_distance"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Period parses the configured date range.
func (b Backtest) Period() (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02", b.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing start_date %q: %w", b.StartDate, err)
	}
	end, err = time.Parse("2006-01-02", b.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing end_date %q: %w", b.EndDate, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date %s before start_date %s", b.EndDate, b.StartDate)
	}
	return start, end, nil
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, fills defaults, and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Backtest.InitialCapital == 0 {
		cfg.Backtest.InitialCapital = 100_000
	}
	if cfg.Backtest.DataFrequency == "" {
		cfg.Backtest.DataFrequency = "daily"
	}
	if cfg.Backtest.Risk.RiskFraction == 0 {
		cfg.Backtest.Risk.RiskFraction = 0.02
	}
	if cfg.Backtest.Risk.StopDistance == 0 {
		cfg.Backtest.Risk.StopDistance = 0.02
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/results.db"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
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
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
