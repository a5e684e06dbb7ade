// Package sentiment estimates overnight market sentiment for a reference
// index from correlated external markets that trade while the local
// exchange is closed.
package sentiment

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"overnight-trading-bot/config"
	"overnight-trading-bot/internal/fetcher"
)

// Direction classifies the predicted overnight gap.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Neutral Direction = "NEUTRAL"
)

// Gap thresholds in percent: inside ±0.1% the call is NEUTRAL.
const directionThresholdPct = 0.1

// Snapshot is the immutable result of one sentiment estimate.
type Snapshot struct {
	Score           float64            `json:"score"` // 0-100, 50 is neutral
	PredictedGapPct float64            `json:"predicted_gap_pct"`
	Direction       Direction          `json:"direction"`
	ReferenceIndex  string             `json:"reference_index"`
	ReferenceClose  float64            `json:"reference_close"`
	MarketChanges   map[string]float64 `json:"market_changes"` // symbol -> change %
	Fallback        bool               `json:"fallback"`       // true when degraded to neutral
	Timestamp       time.Time          `json:"timestamp"`
}

// Estimator computes gap sentiment snapshots.
type Estimator struct {
	fetcher *fetcher.Fetcher
	cfg     config.SentimentConfig
	log     zerolog.Logger
}

// NewEstimator creates a sentiment estimator.
func NewEstimator(f *fetcher.Fetcher, cfg config.SentimentConfig, log zerolog.Logger) *Estimator {
	return &Estimator{
		fetcher: f,
		cfg:     cfg,
		log:     log.With().Str("component", "sentiment").Logger(),
	}
}

// Estimate builds a sentiment snapshot. Any fetch failure degrades to the
// neutral snapshot rather than failing the run: a missing sentiment read
// must never abort the nightly pipeline.
func (e *Estimator) Estimate(ctx context.Context) *Snapshot {
	refQuote, ok := e.fetcher.LatestQuote(ctx, e.cfg.ReferenceIndex)
	if !ok {
		e.log.Warn().Str("index", e.cfg.ReferenceIndex).
			Msg("reference index unavailable, using neutral sentiment")
		return e.neutral()
	}

	refClose := refQuote.PreviousClose
	if refClose <= 0 {
		refClose = refQuote.Price
	}

	// Deterministic iteration keeps repeated runs and logs stable.
	symbols := make([]string, 0, len(e.cfg.CorrelatedMarkets))
	for symbol := range e.cfg.CorrelatedMarkets {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	changes := make(map[string]float64, len(symbols))
	weightedSum, totalWeight := 0.0, 0.0
	for _, symbol := range symbols {
		q, ok := e.fetcher.LatestQuote(ctx, symbol)
		if !ok {
			e.log.Warn().Str("market", symbol).
				Msg("correlated market unavailable, using neutral sentiment")
			return e.neutral()
		}
		weight := e.cfg.CorrelatedMarkets[symbol]
		changes[symbol] = q.ChangePercent
		weightedSum += q.ChangePercent * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return e.neutral()
	}

	weightedChange := weightedSum / totalWeight
	gap := weightedChange * e.cfg.CorrelationFactor

	direction := Neutral
	switch {
	case gap > directionThresholdPct:
		direction = Bullish
	case gap < -directionThresholdPct:
		direction = Bearish
	}

	score := clamp(50+gap*e.cfg.ScoreScaling, 0, 100)

	e.log.Info().Float64("gap_pct", gap).Float64("score", score).
		Str("direction", string(direction)).Msg("overnight sentiment estimated")

	return &Snapshot{
		Score:           score,
		PredictedGapPct: gap,
		Direction:       direction,
		ReferenceIndex:  e.cfg.ReferenceIndex,
		ReferenceClose:  refClose,
		MarketChanges:   changes,
		Timestamp:       time.Now().UTC(),
	}
}

// neutral is the documented degrade-gracefully snapshot, not an error state.
func (e *Estimator) neutral() *Snapshot {
	return &Snapshot{
		Score:          50,
		Direction:      Neutral,
		ReferenceIndex: e.cfg.ReferenceIndex,
		MarketChanges:  map[string]float64{},
		Fallback:       true,
		Timestamp:      time.Now().UTC(),
	}
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
