package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"overnight-trading-bot/config"
	"overnight-trading-bot/internal/api"
	"overnight-trading-bot/internal/backtest"
	"overnight-trading-bot/internal/database"
	"overnight-trading-bot/internal/fetcher"
	"overnight-trading-bot/internal/logging"
	"overnight-trading-bot/internal/marketdata"
	"overnight-trading-bot/internal/metrics"
	"overnight-trading-bot/internal/optimizer"
	"overnight-trading-bot/internal/pipeline"
	"overnight-trading-bot/internal/prediction"
	"overnight-trading-bot/internal/scanner"
	"overnight-trading-bot/internal/sentiment"
)

var configPath string

func main() {
	// .env is optional; environment overrides still apply without it
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "overnight-trading-bot",
		Short: "Overnight stock screening and backtesting pipeline",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to JSON config file")

	root.AddCommand(newNightlyCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newSentimentCmd())
	root.AddCommand(newBacktestCmd())
	root.AddCommand(newOptimizeCmd())
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the wired component graph shared by every subcommand.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	rec       *metrics.Recorder
	fetcher   *fetcher.Fetcher
	estimator *sentiment.Estimator
	scanner   *scanner.Scanner
	optimizer *optimizer.Optimizer
	db        *database.DB // nil when persistence is disabled
	repo      *database.Repository
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Output:     cfg.LoggingConfig.Output,
	})

	source, err := buildSource(cfg, log)
	if err != nil {
		return nil, err
	}

	rec := metrics.New()
	f := fetcher.New(source, cfg.FetcherConfig, log, rec)
	estimator := sentiment.NewEstimator(f, cfg.SentimentConfig, log)

	universe, err := config.LoadUniverse(cfg.ScannerConfig.UniverseFile)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}
	sc := scanner.New(f, universe, cfg.ScannerConfig, log, rec)

	simCfg := backtest.SimConfig{
		InitialCapital: cfg.SimulatorConfig.InitialCapital,
		CommissionRate: cfg.SimulatorConfig.CommissionRate,
		SlippageRate:   cfg.SimulatorConfig.SlippageRate,
		MaxPositionPct: cfg.SimulatorConfig.MaxPositionPct,
	}
	opt := optimizer.New(cfg.PredictionConfig, simCfg, log)

	a := &app{
		cfg:       cfg,
		log:       log,
		rec:       rec,
		fetcher:   f,
		estimator: estimator,
		scanner:   sc,
		optimizer: opt,
	}

	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(cfg.DatabaseConfig)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		a.db = db
		a.repo = database.NewRepository(db)
	}
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func buildSource(cfg *config.Config, log zerolog.Logger) (marketdata.Source, error) {
	var source marketdata.Source
	switch cfg.DataSourceConfig.Provider {
	case "yahoo", "":
		source = marketdata.NewYahooSource()
	case "alphavantage":
		if cfg.DataSourceConfig.AlphaVantageAPIKey == "" {
			return nil, fmt.Errorf("alphavantage provider requires an API key")
		}
		source = marketdata.NewAlphaVantageSource(cfg.DataSourceConfig.AlphaVantageAPIKey)
	case "mock":
		source = marketdata.NewMockSource()
	default:
		return nil, fmt.Errorf("unknown data source provider %q", cfg.DataSourceConfig.Provider)
	}

	if cfg.RedisConfig.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		source = marketdata.NewCachedSource(
			source,
			client,
			time.Duration(cfg.RedisConfig.HistoryTTLHours)*time.Hour,
			time.Duration(cfg.RedisConfig.QuoteTTLSeconds)*time.Second,
			log,
		)
	}
	return source, nil
}

func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	ensemble, err := prediction.NewDefaultEnsemble(a.cfg.PredictionConfig)
	if err != nil {
		return nil, err
	}
	var store pipeline.Store
	if a.repo != nil {
		store = a.repo
	}
	return pipeline.New(
		a.fetcher, a.estimator, a.scanner, ensemble,
		a.cfg.ScannerConfig, a.cfg.PipelineConfig,
		store, a.log, a.rec,
	), nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newNightlyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nightly",
		Short: "Run the full overnight pipeline and print ranked opportunities",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			pl, err := a.newPipeline()
			if err != nil {
				return err
			}
			report, runErr := pl.RunNightly(ctx)
			if report != nil {
				if err := printJSON(report); err != nil {
					return err
				}
			}
			return runErr
		},
	}
}

func newScanCmd() *cobra.Command {
	var sector string
	var topN int
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the sector universe for screening candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var (
				results []scanner.ScanResult
				summary scanner.Summary
			)
			if sector != "" {
				results, summary, err = a.scanner.ScanSector(ctx, sector, topN)
			} else {
				results, summary, err = a.scanner.ScanAll(ctx, topN)
			}
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"results": results,
				"summary": summary,
			})
		},
	}
	cmd.Flags().StringVar(&sector, "sector", "", "scan only this sector")
	cmd.Flags().IntVar(&topN, "top", 0, "keep top N per sector (0 = config default)")
	return cmd
}

func newSentimentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sentiment",
		Short: "Estimate the overnight gap from correlated market moves",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			return printJSON(a.estimator.Estimate(ctx))
		},
	}
}

func newBacktestCmd() *cobra.Command {
	var (
		symbol  string
		period  string
		model   string
		capital float64
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Walk-forward backtest a prediction model on one symbol",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			p := marketdata.Period(period)
			if err := marketdata.ValidatePeriod(p); err != nil {
				return err
			}
			m, err := prediction.NewModel(model, a.cfg.PredictionConfig)
			if err != nil {
				return err
			}

			series, ok := a.fetcher.History(ctx, symbol, p)
			if !ok {
				return fmt.Errorf("no data available for %s", symbol)
			}
			startOffset := a.cfg.SimulatorConfig.StartOffset
			signals, err := backtest.WalkForward(ctx, series, m, startOffset)
			if err != nil {
				return err
			}

			simCfg := backtest.SimConfig{
				InitialCapital: a.cfg.SimulatorConfig.InitialCapital,
				CommissionRate: a.cfg.SimulatorConfig.CommissionRate,
				SlippageRate:   a.cfg.SimulatorConfig.SlippageRate,
				MaxPositionPct: a.cfg.SimulatorConfig.MaxPositionPct,
			}
			if capital > 0 {
				simCfg.InitialCapital = capital
			}
			result, err := backtest.Simulate(symbol, series, signals, startOffset, simCfg)
			if err != nil {
				return err
			}
			if a.repo != nil {
				if err := a.repo.SaveBacktestResult(ctx, period, result); err != nil {
					a.log.Error().Err(err).Msg("failed to persist backtest result")
				}
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "ticker symbol")
	cmd.Flags().StringVar(&period, "period", "1y", "history period (1mo, 3mo, 6mo, 1y, 2y)")
	cmd.Flags().StringVar(&model, "model", "ensemble", "model: trend, technical, momentum or ensemble")
	cmd.Flags().Float64Var(&capital, "capital", 0, "initial capital (0 = config default)")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

func newOptimizeCmd() *cobra.Command {
	var (
		symbol   string
		period   string
		gridJSON string
		method   string
		metric   string
		samples  int
		split    float64
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search prediction parameters with a train/test split",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			p := marketdata.Period(period)
			if err := marketdata.ValidatePeriod(p); err != nil {
				return err
			}
			var grid optimizer.Grid
			if err := json.Unmarshal([]byte(gridJSON), &grid); err != nil {
				return fmt.Errorf("parse grid: %w", err)
			}

			series, ok := a.fetcher.History(ctx, symbol, p)
			if !ok {
				return fmt.Errorf("no data available for %s", symbol)
			}
			result, err := a.optimizer.Optimize(ctx, series, optimizer.Request{
				Symbol:      symbol,
				Grid:        grid,
				SplitRatio:  split,
				Method:      optimizer.Method(method),
				Metric:      optimizer.Metric(metric),
				Samples:     samples,
				TopK:        10,
				StartOffset: a.cfg.SimulatorConfig.StartOffset,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "ticker symbol")
	cmd.Flags().StringVar(&period, "period", "2y", "history period")
	cmd.Flags().StringVar(&gridJSON, "grid", `{"signal_threshold":[0.2,0.3,0.4]}`, "JSON parameter grid")
	cmd.Flags().StringVar(&method, "method", "grid", "search method: grid or random")
	cmd.Flags().StringVar(&metric, "metric", "return", "ranking metric: return, sharpe or drawdown")
	cmd.Flags().IntVar(&samples, "samples", 25, "random search sample count")
	cmd.Flags().Float64Var(&split, "split", 0.75, "train fraction of the series")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			pl, err := a.newPipeline()
			if err != nil {
				return err
			}
			srv := api.NewServer(a.cfg, a.fetcher, a.estimator, a.scanner, pl, a.optimizer, a.repo, a.log)
			return srv.Start(ctx)
		},
	}
}
