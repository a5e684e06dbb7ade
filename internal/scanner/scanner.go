// Package scanner iterates a configured sector universe, validating and
// technically scoring each ticker. Processing is sequential and throttled
// on purpose: the design trades throughput for staying under the external
// data source's rate limits.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"overnight-trading-bot/config"
	"overnight-trading-bot/internal/fetcher"
	"overnight-trading-bot/internal/indicators"
	"overnight-trading-bot/internal/marketdata"
	"overnight-trading-bot/internal/metrics"
)

// Scanner scans the sector universe for technically interesting tickers.
type Scanner struct {
	fetcher  *fetcher.Fetcher
	universe *config.Universe
	cfg      config.ScannerConfig
	log      zerolog.Logger
	rec      *metrics.Recorder
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// New creates a scanner. rec may be nil.
func New(f *fetcher.Fetcher, universe *config.Universe, cfg config.ScannerConfig, log zerolog.Logger, rec *metrics.Recorder) *Scanner {
	return &Scanner{
		fetcher:  f,
		universe: universe,
		cfg:      cfg,
		log:      log.With().Str("component", "scanner").Logger(),
		rec:      rec,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// ScanSector scans one sector and returns its top-N results by score.
// Per-ticker failures are skipped and counted; one bad ticker never aborts
// the sector. Cancellation returns whatever was accumulated so far.
func (s *Scanner) ScanSector(ctx context.Context, sectorName string, topN int) ([]ScanResult, Summary, error) {
	sector, ok := s.universe.Sector(sectorName)
	if !ok {
		return nil, Summary{}, fmt.Errorf("unknown sector %q", sectorName)
	}
	if topN <= 0 {
		topN = s.cfg.TopNPerSector
	}
	if sector.TopN > 0 {
		topN = sector.TopN
	}

	results := make([]ScanResult, 0, len(sector.Tickers))
	var summary Summary

	for i, symbol := range sector.Tickers {
		if ctx.Err() != nil {
			s.log.Warn().Str("sector", sectorName).Int("remaining", len(sector.Tickers)-i).
				Msg("scan cancelled, returning partial results")
			break
		}
		summary.Scanned++

		result, skip := s.scanTicker(ctx, symbol, sectorName)
		switch skip {
		case skipNone:
			results = append(results, *result)
			summary.Processed++
			if s.rec != nil {
				s.rec.RecordProcessed()
			}
		case skipTransient:
			summary.SkippedTransient++
		case skipValidation:
			summary.SkippedValidation++
			if s.rec != nil {
				s.rec.RecordSkippedValidation()
			}
		}

		if i < len(sector.Tickers)-1 {
			if err := s.sleep(ctx, s.throttle()); err != nil {
				break
			}
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Symbol < results[j].Symbol
	})
	if len(results) > topN {
		results = results[:topN]
	}

	s.log.Info().Str("sector", sectorName).Int("scanned", summary.Scanned).
		Int("processed", summary.Processed).
		Int("skipped_transient", summary.SkippedTransient).
		Int("skipped_validation", summary.SkippedValidation).
		Msg("sector scan complete")
	return results, summary, nil
}

// ScanAll scans every sector in deterministic order, returning all top-N
// results merged and ranked by score.
func (s *Scanner) ScanAll(ctx context.Context, topNPerSector int) ([]ScanResult, Summary, error) {
	var all []ScanResult
	var total Summary

	for _, name := range s.universe.SectorNames() {
		results, summary, err := s.ScanSector(ctx, name, topNPerSector)
		if err != nil {
			return nil, total, err
		}
		all = append(all, results...)
		total.Scanned += summary.Scanned
		total.Processed += summary.Processed
		total.SkippedTransient += summary.SkippedTransient
		total.SkippedValidation += summary.SkippedValidation

		if ctx.Err() != nil {
			break
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].Symbol < all[j].Symbol
	})
	return all, total, nil
}

type skipReason int

const (
	skipNone skipReason = iota
	skipTransient
	skipValidation
)

// scanTicker fetches, validates and scores a single ticker.
func (s *Scanner) scanTicker(ctx context.Context, symbol, sectorName string) (*ScanResult, skipReason) {
	series, ok := s.fetcher.History(ctx, symbol, marketdata.Period(s.cfg.HistoryPeriod))
	if !ok {
		return nil, skipTransient
	}

	if len(series) < s.cfg.MinHistoryDays {
		s.log.Debug().Str("symbol", symbol).Int("bars", len(series)).
			Msg("insufficient history, skipping")
		return nil, skipValidation
	}

	last, _ := series.Last()
	avgVolume := series.AvgVolume(20)
	if last.Close <= 0 || avgVolume < s.cfg.MinAvgVolume {
		s.log.Debug().Str("symbol", symbol).Float64("price", last.Close).
			Float64("avg_volume", avgVolume).Msg("failed liquidity validation, skipping")
		return nil, skipValidation
	}

	rsi := indicators.RSI(series, 14)
	ma20 := indicators.SMA(series, 20)
	ma50 := indicators.SMA(series, 50)
	if ma20 <= 0 || ma50 <= 0 {
		return nil, skipValidation
	}

	return &ScanResult{
		Symbol:    symbol,
		Sector:    sectorName,
		Price:     last.Close,
		Volume:    avgVolume,
		RSI:       rsi,
		MA20:      ma20,
		MA50:      ma50,
		Score:     compositeScore(series, last.Close, rsi, ma20, ma50),
		Timestamp: s.now().UTC(),
	}, skipNone
}

// compositeScore derives a 0-100 score from the RSI zone, the price's
// relationship to its moving averages, and recent volatility. Identical
// input data always yields an identical score.
func compositeScore(series marketdata.PriceSeries, price, rsi, ma20, ma50 float64) float64 {
	score := 50.0

	// RSI zone: oversold names score as potential entries, overbought against.
	switch {
	case rsi < 30:
		score += 20
	case rsi < 45:
		score += 10
	case rsi > 70:
		score -= 20
	case rsi > 55:
		score -= 5
	}

	// Trend alignment against the moving averages.
	if price > ma20 {
		score += 10
	} else {
		score -= 5
	}
	if price > ma50 {
		score += 10
	} else {
		score -= 5
	}
	if ma20 > ma50 {
		score += 5
	}

	// Dampen names whipsawing too hard for an overnight hold.
	vol := indicators.Volatility(series, 20)
	switch {
	case vol > 0.04:
		score -= 15
	case vol > 0.025:
		score -= 5
	case vol < 0.01:
		score += 5
	}

	return clamp(score, 0, 100)
}

func (s *Scanner) throttle() time.Duration {
	return time.Duration(s.cfg.ThrottleSeconds * float64(time.Second))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
