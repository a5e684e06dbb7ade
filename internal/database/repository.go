package database

import (
	"context"
	"encoding/json"
	"fmt"

	"overnight-trading-bot/internal/backtest"
	"overnight-trading-bot/internal/pipeline"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// SaveReport persists a nightly report and its ranked opportunities.
func (r *Repository) SaveReport(ctx context.Context, report *pipeline.Report) error {
	sentimentJSON, err := json.Marshal(report.Sentiment)
	if err != nil {
		return fmt.Errorf("marshal sentiment: %w", err)
	}
	summaryJSON, err := json.Marshal(report.ScanSummary)
	if err != nil {
		return fmt.Errorf("marshal scan summary: %w", err)
	}
	statsJSON, err := json.Marshal(report.FetchStats)
	if err != nil {
		return fmt.Errorf("marshal fetch stats: %w", err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO nightly_reports (run_id, started_at, finished_at, cancelled, sentiment, scan_summary, fetch_stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, query,
		report.RunID, report.StartedAt, report.FinishedAt, report.Cancelled,
		sentimentJSON, summaryJSON, statsJSON,
	); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	oppQuery := `
		INSERT INTO opportunities (run_id, rank, symbol, sector, price, rsi, scan_score, signal, confidence, composite_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for i, opp := range report.Opportunities {
		if _, err := tx.Exec(ctx, oppQuery,
			report.RunID, i+1, opp.Symbol, opp.Sector, opp.Price, opp.RSI,
			opp.ScanScore, string(opp.Signal), opp.Confidence, opp.CompositeScore,
		); err != nil {
			return fmt.Errorf("insert opportunity %s: %w", opp.Symbol, err)
		}
	}

	return tx.Commit(ctx)
}

// SaveBacktestResult persists a completed backtest.
func (r *Repository) SaveBacktestResult(ctx context.Context, period string, result *backtest.Result) error {
	tradesJSON, err := json.Marshal(result.Trades)
	if err != nil {
		return fmt.Errorf("marshal trades: %w", err)
	}

	query := `
		INSERT INTO backtest_results
			(symbol, period, initial_capital, final_equity, total_return_pct, max_drawdown_pct, sharpe_ratio, win_rate, total_trades, trades)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		result.Symbol, period, result.InitialCapital, result.FinalEquity,
		result.TotalReturnPct, result.MaxDrawdownPct, result.SharpeRatio,
		result.WinRate, result.TotalTrades, tradesJSON,
	)
	if err != nil {
		return fmt.Errorf("insert backtest result: %w", err)
	}
	return nil
}

// LatestReportID returns the run_id of the most recent nightly report.
func (r *Repository) LatestReportID(ctx context.Context) (string, error) {
	var runID string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT run_id FROM nightly_reports ORDER BY started_at DESC LIMIT 1`,
	).Scan(&runID)
	if err != nil {
		return "", fmt.Errorf("latest report: %w", err)
	}
	return runID, nil
}
