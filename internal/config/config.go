package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"factorlab/internal/broker"
	"factorlab/internal/strategy/builtins"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid config")

// DefaultPath is used when neither --config nor FACTORLAB_CONFIG is set.
const DefaultPath = "config/factorlab.yaml"

// Accounting modes, as named by the broker package.
const (
	ModeDailyDebit = broker.ModeDailyDebit
	ModeTradeOnly  = broker.ModeTradeOnly
)

// Tie-break policies for equal moving averages, as parsed by
// builtins.ParseTieBreak.
const (
	TieBreakShort = builtins.TieBreakNameShort
	TieBreakLong  = builtins.TieBreakNameLong
	TieBreakFlat  = builtins.TieBreakNameFlat
)

// Data sources.
const (
	SourceSample  = "sample"
	SourceAlpaca  = "alpaca"
	SourceParquet = "parquet"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for factorlab.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Data     DataConfig     `yaml:"data"`
	Strategy StrategyConfig `yaml:"strategy"`
	Report   ReportConfig   `yaml:"report"`
}

// Storage holds paths for the bar cache and the run history.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"` // trading API, used for the market calendar
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the process-wide log sink.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// DataConfig selects where bars come from.
type DataConfig struct {
	Source          string `yaml:"source"`
	Symbol          string `yaml:"symbol"`
	StartDate       string `yaml:"start_date"`
	EndDate         string `yaml:"end_date"`
	NumDays         int    `yaml:"num_days"`
	Seed            int64  `yaml:"seed"`
	BatchSize       int    `yaml:"batch_size"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxAttempts     int    `yaml:"max_attempts"`
}

// StrategyConfig holds signal, sizing and accounting parameters.
type StrategyConfig struct {
	Name             string  `yaml:"name"`
	ShortWindow      int     `yaml:"short_window"`
	LongWindow       int     `yaml:"long_window"`
	TieBreak         string  `yaml:"tie_break"`
	ATRWindow        int     `yaml:"atr_window"`
	ATREpsilon       float64 `yaml:"atr_epsilon"`
	RiskPerTrade     float64 `yaml:"risk_per_trade"`
	InitialCapital   float64 `yaml:"initial_capital"`
	MaxPositionPct   float64 `yaml:"max_position_pct"`
	TransactionCosts float64 `yaml:"transaction_costs"`
	AccountingMode   string  `yaml:"accounting_mode"`
}

// ReportConfig controls outputs produced after a run.
type ReportConfig struct {
	PlotPath      string  `yaml:"plot_path"`
	EquityPath    string  `yaml:"equity_path"`
	Precision     int     `yaml:"precision"`
	StatsEpsilon  float64 `yaml:"stats_epsilon"`
	RecordHistory bool    `yaml:"record_history"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is present. The
// strategy values reproduce the reference demo run.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/factorlab.db",
		},
		Alpaca: Alpaca{
			BaseURL: "https://api.alpaca.markets",
			DataURL: "https://data.alpaca.markets",
			Feed:    "iex",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
			File:   "factorlab.log",
		},
		Data: DataConfig{
			Source:          SourceSample,
			Symbol:          "KO",
			StartDate:       "2023-01-01",
			NumDays:         252,
			Seed:            42,
			BatchSize:       100,
			RateLimitPerMin: 200,
			MaxAttempts:     3,
		},
		Strategy: StrategyConfig{
			Name:           "sma-cross",
			ShortWindow:    20,
			LongWindow:     50,
			TieBreak:       TieBreakShort,
			ATRWindow:      14,
			ATREpsilon:     1e-6,
			RiskPerTrade:   0.01,
			InitialCapital: 100000,
			AccountingMode: ModeDailyDebit,
		},
		Report: ReportConfig{
			PlotPath:      "portfolio.png",
			Precision:     6,
			StatsEpsilon:  1e-6,
			RecordHistory: true,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of
// Default(), and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault behaves like Load, except that a missing file yields the
// defaults (with environment overrides) instead of an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return cfg, err
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

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v, ok := os.LookupEnv("LOG_FILE"); ok {
		cfg.Logging.File = v
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

	// Standard Alpaca env vars take priority; they are the names the SDK uses.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks the strategy and data parameters. short_window <
// long_window is expected but deliberately not enforced.
func (c *Config) Validate() error {
	s := c.Strategy
	switch {
	case s.ShortWindow <= 0 || s.LongWindow <= 0:
		return fmt.Errorf("%w: windows must be positive (short=%d long=%d)", ErrInvalid, s.ShortWindow, s.LongWindow)
	case s.ATRWindow <= 0:
		return fmt.Errorf("%w: atr_window must be positive, got %d", ErrInvalid, s.ATRWindow)
	case s.RiskPerTrade <= 0 || s.RiskPerTrade > 1:
		return fmt.Errorf("%w: risk_per_trade must be in (0, 1], got %v", ErrInvalid, s.RiskPerTrade)
	case s.InitialCapital <= 0:
		return fmt.Errorf("%w: initial_capital must be positive, got %v", ErrInvalid, s.InitialCapital)
	case s.TransactionCosts < 0:
		return fmt.Errorf("%w: transaction_costs must not be negative, got %v", ErrInvalid, s.TransactionCosts)
	case s.ATREpsilon < 0:
		return fmt.Errorf("%w: atr_epsilon must not be negative, got %v", ErrInvalid, s.ATREpsilon)
	case s.MaxPositionPct < 0:
		return fmt.Errorf("%w: max_position_pct must not be negative, got %v", ErrInvalid, s.MaxPositionPct)
	}

	switch s.AccountingMode {
	case ModeDailyDebit, ModeTradeOnly:
	default:
		return fmt.Errorf("%w: unknown accounting_mode %q", ErrInvalid, s.AccountingMode)
	}

	if _, err := builtins.ParseTieBreak(s.TieBreak); err != nil {
		return fmt.Errorf("%w: tie_break: %v", ErrInvalid, err)
	}

	switch c.Data.Source {
	case SourceSample, SourceAlpaca, SourceParquet:
	default:
		return fmt.Errorf("%w: unknown data source %q", ErrInvalid, c.Data.Source)
	}

	if c.Data.Source == SourceSample && c.Data.NumDays <= 0 {
		return fmt.Errorf("%w: num_days must be positive, got %d", ErrInvalid, c.Data.NumDays)
	}
	if c.Data.Source != SourceSample && c.Data.Symbol == "" {
		return fmt.Errorf("%w: data.symbol is required for source %q", ErrInvalid, c.Data.Source)
	}
	if _, _, err := c.Data.Range(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Range parses StartDate and EndDate. An empty EndDate means today (UTC).
func (d DataConfig) Range() (start, end time.Time, err error) {
	start, err = time.Parse(time.DateOnly, d.StartDate)
	if err != nil {
		return start, end, fmt.Errorf("parsing start_date %q: %w", d.StartDate, err)
	}
	if d.EndDate == "" {
		now := time.Now().UTC()
		return start, time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	end, err = time.Parse(time.DateOnly, d.EndDate)
	if err != nil {
		return start, end, fmt.Errorf("parsing end_date %q: %w", d.EndDate, err)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("end_date %s is before start_date %s", d.EndDate, d.StartDate)
	}
	return start, end, nil
}
