// Package database persists nightly reports and backtest results to
// PostgreSQL. The core pipeline runs fine without it.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"overnight-trading-bot/config"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection pool and verifies connectivity.
func NewDB(cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Migrate creates the schema if it does not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS nightly_reports (
			run_id       UUID PRIMARY KEY,
			started_at   TIMESTAMPTZ NOT NULL,
			finished_at  TIMESTAMPTZ,
			cancelled    BOOLEAN NOT NULL DEFAULT FALSE,
			sentiment    JSONB,
			scan_summary JSONB,
			fetch_stats  JSONB,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS opportunities (
			id              BIGSERIAL PRIMARY KEY,
			run_id          UUID NOT NULL REFERENCES nightly_reports(run_id) ON DELETE CASCADE,
			rank            INT NOT NULL,
			symbol          TEXT NOT NULL,
			sector          TEXT NOT NULL,
			price           DOUBLE PRECISION NOT NULL,
			rsi             DOUBLE PRECISION NOT NULL,
			scan_score      DOUBLE PRECISION NOT NULL,
			signal          TEXT NOT NULL,
			confidence      DOUBLE PRECISION NOT NULL,
			composite_score DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS backtest_results (
			id               BIGSERIAL PRIMARY KEY,
			symbol           TEXT NOT NULL,
			period           TEXT NOT NULL,
			initial_capital  DOUBLE PRECISION NOT NULL,
			final_equity     DOUBLE PRECISION NOT NULL,
			total_return_pct DOUBLE PRECISION NOT NULL,
			max_drawdown_pct DOUBLE PRECISION NOT NULL,
			sharpe_ratio     DOUBLE PRECISION NOT NULL,
			win_rate         DOUBLE PRECISION NOT NULL,
			total_trades     INT NOT NULL,
			trades           JSONB,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_run ON opportunities(run_id, rank)`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_symbol ON backtest_results(symbol, created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}
