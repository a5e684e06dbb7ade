package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FetcherConfig.MaxRetries != 3 {
		t.Errorf("max retries = %d, want default 3", cfg.FetcherConfig.MaxRetries)
	}
	if cfg.SentimentConfig.ReferenceIndex != "^AXJO" {
		t.Errorf("reference index = %s, want default ^AXJO", cfg.SentimentConfig.ReferenceIndex)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.json"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"fetcher": {"max_retries": 5, "backoff_base_seconds": 1.0, "min_request_interval": 0.2},
		"sentiment": {
			"reference_index": "^GSPTSE",
			"correlated_markets": {"^GSPC": 0.5},
			"correlation_factor": 0.5,
			"score_scaling": 10
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FetcherConfig.MaxRetries != 5 {
		t.Errorf("max retries = %d, want 5 from file", cfg.FetcherConfig.MaxRetries)
	}
	if cfg.SentimentConfig.ReferenceIndex != "^GSPTSE" {
		t.Errorf("reference index = %s, want file override", cfg.SentimentConfig.ReferenceIndex)
	}
	// Untouched sections keep their defaults.
	if cfg.SimulatorConfig.InitialCapital != 10_000 {
		t.Errorf("initial capital = %f, want default 10000", cfg.SimulatorConfig.InitialCapital)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ALPHA_VANTAGE_API_KEY", "test-key")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "55432")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataSourceConfig.AlphaVantageAPIKey != "test-key" {
		t.Error("ALPHA_VANTAGE_API_KEY not applied")
	}
	if cfg.DatabaseConfig.Host != "db.internal" || cfg.DatabaseConfig.Port != 55432 {
		t.Errorf("db overrides not applied: %s:%d", cfg.DatabaseConfig.Host, cfg.DatabaseConfig.Port)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.DataSourceConfig.Provider = "bloomberg" }},
		{"alphavantage without key", func(c *Config) { c.DataSourceConfig.Provider = "alphavantage" }},
		{"zero retries", func(c *Config) { c.FetcherConfig.MaxRetries = 0 }},
		{"negative interval", func(c *Config) { c.FetcherConfig.MinRequestInterval = -1 }},
		{"empty reference index", func(c *Config) { c.SentimentConfig.ReferenceIndex = "" }},
		{"no correlated markets", func(c *Config) { c.SentimentConfig.CorrelatedMarkets = nil }},
		{"negative market weight", func(c *Config) { c.SentimentConfig.CorrelatedMarkets = map[string]float64{"^GSPC": -1} }},
		{"history shorter than ma50", func(c *Config) { c.ScannerConfig.MinHistoryDays = 30 }},
		{"zero model weights", func(c *Config) {
			c.PredictionConfig.TrendWeight = 0
			c.PredictionConfig.TechnicalWeight = 0
			c.PredictionConfig.MomentumWeight = 0
		}},
		{"zero capital", func(c *Config) { c.SimulatorConfig.InitialCapital = 0 }},
		{"oversized position pct", func(c *Config) { c.SimulatorConfig.MaxPositionPct = 2 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestDurationHelpers(t *testing.T) {
	f := FetcherConfig{BackoffBaseSeconds: 2.0, MinRequestInterval: 0.5}
	if got := f.BackoffBase(); got != 2*time.Second {
		t.Errorf("backoff base = %v, want 2s", got)
	}
	if got := f.RequestInterval(); got != 500*time.Millisecond {
		t.Errorf("request interval = %v, want 500ms", got)
	}
}
