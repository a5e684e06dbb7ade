// Package fetcher wraps a market data source with bounded retry, backoff
// and request spacing. Every component that touches the external data
// source goes through this single abstraction.
package fetcher

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"overnight-trading-bot/config"
	"overnight-trading-bot/internal/marketdata"
	"overnight-trading-bot/internal/metrics"
)

// Stats summarizes fetch outcomes for the run summary.
type Stats struct {
	Fetched          int64 `json:"fetched"`
	Retries          int64 `json:"retries"`
	SkippedTransient int64 `json:"skipped_transient"`
	SkippedPermanent int64 `json:"skipped_permanent"`
}

// Fetcher issues rate-limit-aware requests against a market data source.
// Exhausted retries surface as ok=false, never as an error: batch callers
// treat that as "no data for this ticker right now" and continue.
type Fetcher struct {
	source  marketdata.Source
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cfg     config.FetcherConfig
	log     zerolog.Logger
	rec     *metrics.Recorder
	sleep   func(ctx context.Context, d time.Duration) error

	fetched          atomic.Int64
	retries          atomic.Int64
	skippedTransient atomic.Int64
	skippedPermanent atomic.Int64
}

// New creates a Fetcher. rec may be nil when metrics are not wired.
func New(source marketdata.Source, cfg config.FetcherConfig, log zerolog.Logger, rec *metrics.Recorder) *Fetcher {
	interval := cfg.RequestInterval()
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "marketdata",
		MaxRequests: cfg.BreakerMaxRequests,
		Timeout:     time.Duration(cfg.BreakerResetSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Fetcher{
		source:  source,
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
		cfg:     cfg,
		log:     log.With().Str("component", "fetcher").Logger(),
		rec:     rec,
		sleep:   sleepCtx,
	}
}

// History fetches normalized daily history. ok is false when the ticker
// must be skipped this run.
func (f *Fetcher) History(ctx context.Context, symbol string, period marketdata.Period) (marketdata.PriceSeries, bool) {
	v, ok := f.withRetry(ctx, symbol, func(ctx context.Context) (interface{}, error) {
		return f.source.GetHistory(ctx, symbol, period)
	})
	if !ok {
		return nil, false
	}
	return v.(marketdata.PriceSeries), true
}

// LatestQuote fetches the latest quote. ok is false when the symbol must
// be skipped this run.
func (f *Fetcher) LatestQuote(ctx context.Context, symbol string) (*marketdata.Quote, bool) {
	v, ok := f.withRetry(ctx, symbol, func(ctx context.Context) (interface{}, error) {
		return f.source.GetLatestQuote(ctx, symbol)
	})
	if !ok {
		return nil, false
	}
	return v.(*marketdata.Quote), true
}

// withRetry runs op with request spacing, circuit breaking and bounded
// retry on transient errors. Backoff grows linearly: base, 2*base, 3*base.
func (f *Fetcher) withRetry(ctx context.Context, symbol string, op func(ctx context.Context) (interface{}, error)) (interface{}, bool) {
	started := time.Now()
	defer func() {
		if f.rec != nil {
			f.rec.ObserveFetch(time.Since(started).Seconds())
		}
	}()

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, false
		}

		v, err := f.breaker.Execute(func() (interface{}, error) {
			return op(ctx)
		})
		if err == nil {
			f.fetched.Add(1)
			return v, true
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false
		}
		if !retryable(err) {
			f.skippedPermanent.Add(1)
			f.log.Warn().Str("symbol", symbol).Err(err).Msg("permanent fetch failure, skipping")
			return nil, false
		}

		if attempt < f.cfg.MaxRetries {
			f.retries.Add(1)
			if f.rec != nil {
				f.rec.RecordFetchRetry()
			}
			backoff := time.Duration(attempt) * f.cfg.BackoffBase()
			f.log.Debug().Str("symbol", symbol).Int("attempt", attempt).
				Dur("backoff", backoff).Msg("transient fetch failure, backing off")
			if err := f.sleep(ctx, backoff); err != nil {
				return nil, false
			}
		}
	}

	f.skippedTransient.Add(1)
	if f.rec != nil {
		f.rec.RecordSkippedTransient()
	}
	f.log.Warn().Str("symbol", symbol).Int("attempts", f.cfg.MaxRetries).
		Err(lastErr).Msg("retries exhausted, skipping ticker this run")
	return nil, false
}

// retryable treats breaker rejections like transient source errors: the
// caller skips now and the breaker recovers on its own timeout.
func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	return marketdata.IsTransient(err)
}

// Stats returns a snapshot of fetch outcome counters.
func (f *Fetcher) Stats() Stats {
	return Stats{
		Fetched:          f.fetched.Load(),
		Retries:          f.retries.Load(),
		SkippedTransient: f.skippedTransient.Load(),
		SkippedPermanent: f.skippedPermanent.Load(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
