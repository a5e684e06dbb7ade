package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the immutable top-level configuration passed into every
// component at construction. Malformed configuration is fatal before any
// processing begins; there is no ambient global state.
type Config struct {
	DataSourceConfig DataSourceConfig `json:"data_source"`
	FetcherConfig    FetcherConfig    `json:"fetcher"`
	SentimentConfig  SentimentConfig  `json:"sentiment"`
	ScannerConfig    ScannerConfig    `json:"scanner"`
	PredictionConfig PredictionConfig `json:"prediction"`
	SimulatorConfig  SimulatorConfig  `json:"simulator"`
	PipelineConfig   PipelineConfig   `json:"pipeline"`
	ServerConfig     ServerConfig     `json:"server"`
	RedisConfig      RedisConfig      `json:"redis"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	LoggingConfig    LoggingConfig    `json:"logging"`
}

// DataSourceConfig selects and configures the market data vendor
type DataSourceConfig struct {
	Provider           string `json:"provider"` // "yahoo", "alphavantage", "mock"
	AlphaVantageAPIKey string `json:"alpha_vantage_api_key"`
}

// FetcherConfig controls retry/backoff and request spacing
type FetcherConfig struct {
	MaxRetries          int     `json:"max_retries"`           // attempts on transient errors
	BackoffBaseSeconds  float64 `json:"backoff_base_seconds"`  // sleep = base * attempt
	MinRequestInterval  float64 `json:"min_request_interval"`  // seconds between any two requests
	BreakerMaxRequests  uint32  `json:"breaker_max_requests"`  // half-open probe budget
	BreakerResetSeconds int     `json:"breaker_reset_seconds"` // open -> half-open timeout
}

// SentimentConfig drives the overnight gap estimator
type SentimentConfig struct {
	ReferenceIndex    string             `json:"reference_index"`    // e.g. "^AXJO"
	CorrelatedMarkets map[string]float64 `json:"correlated_markets"` // symbol -> weight
	CorrelationFactor float64            `json:"correlation_factor"` // gap = weighted change * factor
	ScoreScaling      float64            `json:"score_scaling"`      // score = 50 + gap * scaling
}

// ScannerConfig controls universe scanning
type ScannerConfig struct {
	UniverseFile     string  `json:"universe_file"`     // YAML sector universe
	HistoryPeriod    string  `json:"history_period"`    // e.g. "3mo"
	MinHistoryDays   int     `json:"min_history_days"`  // skip tickers with less
	MinAvgVolume     float64 `json:"min_avg_volume"`    // 20-day average volume floor
	TopNPerSector    int     `json:"top_n_per_sector"`  //
	ThrottleSeconds  float64 `json:"throttle_seconds"`  // sleep between tickers
	MaxOpportunities int     `json:"max_opportunities"` // nightly report cap
	PredictTopN      int     `json:"predict_top_n"`     // run the prediction engine on top N
}

// PredictionConfig holds the ensemble tuning parameters. These constants are
// empirically chosen, not derived; the optimizer exists to re-derive them
// per instrument.
type PredictionConfig struct {
	TrendWeight       float64 `json:"trend_weight"`
	TechnicalWeight   float64 `json:"technical_weight"`
	MomentumWeight    float64 `json:"momentum_weight"`
	SignalThreshold   float64 `json:"signal_threshold"`   // BUY/SELL cut on [-1,1] scores
	MomentumThreshold float64 `json:"momentum_threshold"` // BUY/SELL cut on raw-return scale
}

// SimulatorConfig holds trading simulation defaults
type SimulatorConfig struct {
	InitialCapital float64 `json:"initial_capital"`
	CommissionRate float64 `json:"commission_rate"` // fraction per side
	SlippageRate   float64 `json:"slippage_rate"`   // fraction per side
	MaxPositionPct float64 `json:"max_position_pct"`
	StartOffset    int     `json:"start_offset"` // warmup bars before first signal
}

// PipelineConfig holds opportunity ranking weights
type PipelineConfig struct {
	ScannerWeight    float64 `json:"scanner_weight"`
	PredictionWeight float64 `json:"prediction_weight"`
	SentimentWeight  float64 `json:"sentiment_weight"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// RedisConfig holds cache settings
type RedisConfig struct {
	Enabled         bool   `json:"enabled"`
	Address         string `json:"address"`
	Password        string `json:"password"`
	DB              int    `json:"db"`
	PoolSize        int    `json:"pool_size"`
	HistoryTTLHours int    `json:"history_ttl_hours"`
	QuoteTTLSeconds int    `json:"quote_ttl_seconds"`
}

// DatabaseConfig holds PostgreSQL settings; persistence is optional
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level      string `json:"level"`
	JSONFormat bool   `json:"json_format"`
	Output     string `json:"output"`
}

// Load reads configuration from a JSON file, then applies environment
// overrides for secrets and connection details.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.DataSourceConfig.AlphaVantageAPIKey = getEnv("ALPHA_VANTAGE_API_KEY", cfg.DataSourceConfig.AlphaVantageAPIKey)
	cfg.RedisConfig.Address = getEnv("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnv("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.DatabaseConfig.Host = getEnv("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvInt("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnv("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnv("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnv("DB_NAME", cfg.DatabaseConfig.Database)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the baseline configuration tuned for an ASX overnight run.
func Default() *Config {
	return &Config{
		DataSourceConfig: DataSourceConfig{Provider: "yahoo"},
		FetcherConfig: FetcherConfig{
			MaxRetries:          3,
			BackoffBaseSeconds:  2.0,
			MinRequestInterval:  0.5,
			BreakerMaxRequests:  2,
			BreakerResetSeconds: 60,
		},
		SentimentConfig: SentimentConfig{
			ReferenceIndex: "^AXJO",
			CorrelatedMarkets: map[string]float64{
				"^GSPC": 0.40, // S&P 500
				"^IXIC": 0.25, // Nasdaq
			},
			CorrelationFactor: 0.65,
			ScoreScaling:      20.0,
		},
		ScannerConfig: ScannerConfig{
			UniverseFile:     "universe.yaml",
			HistoryPeriod:    "3mo",
			MinHistoryDays:   60,
			MinAvgVolume:     100_000,
			TopNPerSector:    5,
			ThrottleSeconds:  0.5,
			MaxOpportunities: 20,
			PredictTopN:      10,
		},
		PredictionConfig: PredictionConfig{
			TrendWeight:       0.40,
			TechnicalWeight:   0.35,
			MomentumWeight:    0.25,
			SignalThreshold:   0.3,
			MomentumThreshold: 0.003,
		},
		SimulatorConfig: SimulatorConfig{
			InitialCapital: 10_000,
			CommissionRate: 0.001,
			SlippageRate:   0.0005,
			MaxPositionPct: 0.95,
			StartOffset:    60,
		},
		PipelineConfig: PipelineConfig{
			ScannerWeight:    0.45,
			PredictionWeight: 0.35,
			SentimentWeight:  0.20,
		},
		ServerConfig: ServerConfig{Enabled: true, Host: "0.0.0.0", Port: 8090},
		RedisConfig:  RedisConfig{Address: "localhost:6379", PoolSize: 10, HistoryTTLHours: 12, QuoteTTLSeconds: 60},
		DatabaseConfig: DatabaseConfig{
			Host: "localhost", Port: 5432, User: "screener",
			Database: "screener", SSLMode: "disable",
		},
		LoggingConfig: LoggingConfig{Level: "info"},
	}
}

// Validate rejects configuration no run can recover from.
func (c *Config) Validate() error {
	switch c.DataSourceConfig.Provider {
	case "yahoo", "mock":
	case "alphavantage":
		if c.DataSourceConfig.AlphaVantageAPIKey == "" {
			return fmt.Errorf("alphavantage provider requires an API key")
		}
	default:
		return fmt.Errorf("unknown data source provider %q", c.DataSourceConfig.Provider)
	}

	if c.FetcherConfig.MaxRetries < 1 {
		return fmt.Errorf("fetcher max_retries must be >= 1, got %d", c.FetcherConfig.MaxRetries)
	}
	if c.FetcherConfig.MinRequestInterval < 0 {
		return fmt.Errorf("fetcher min_request_interval must be >= 0")
	}
	if c.SentimentConfig.ReferenceIndex == "" {
		return fmt.Errorf("sentiment reference_index is required")
	}
	if len(c.SentimentConfig.CorrelatedMarkets) == 0 {
		return fmt.Errorf("sentiment correlated_markets must not be empty")
	}
	for symbol, weight := range c.SentimentConfig.CorrelatedMarkets {
		if weight <= 0 {
			return fmt.Errorf("sentiment weight for %s must be positive, got %v", symbol, weight)
		}
	}
	if c.ScannerConfig.MinHistoryDays < 51 {
		return fmt.Errorf("scanner min_history_days must cover the 50-day moving average, got %d", c.ScannerConfig.MinHistoryDays)
	}
	w := c.PredictionConfig.TrendWeight + c.PredictionConfig.TechnicalWeight + c.PredictionConfig.MomentumWeight
	if w <= 0 {
		return fmt.Errorf("prediction model weights must sum to a positive value")
	}
	if c.SimulatorConfig.InitialCapital <= 0 {
		return fmt.Errorf("simulator initial_capital must be positive")
	}
	if c.SimulatorConfig.MaxPositionPct <= 0 || c.SimulatorConfig.MaxPositionPct > 1 {
		return fmt.Errorf("simulator max_position_pct must be in (0,1], got %v", c.SimulatorConfig.MaxPositionPct)
	}
	return nil
}

// BackoffBase returns the backoff base as a duration.
func (f FetcherConfig) BackoffBase() time.Duration {
	return time.Duration(f.BackoffBaseSeconds * float64(time.Second))
}

// RequestInterval returns the inter-request spacing as a duration.
func (f FetcherConfig) RequestInterval() time.Duration {
	return time.Duration(f.MinRequestInterval * float64(time.Second))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
