// Package pipeline orchestrates the overnight run: sentiment estimation,
// universe scanning, per-candidate prediction and opportunity ranking.
package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"overnight-trading-bot/config"
	"overnight-trading-bot/internal/fetcher"
	"overnight-trading-bot/internal/marketdata"
	"overnight-trading-bot/internal/metrics"
	"overnight-trading-bot/internal/prediction"
	"overnight-trading-bot/internal/scanner"
	"overnight-trading-bot/internal/sentiment"
)

// Opportunity is one ranked entry in the nightly report.
type Opportunity struct {
	Symbol         string            `json:"symbol"`
	Sector         string            `json:"sector"`
	Price          float64           `json:"price"`
	RSI            float64           `json:"rsi"`
	ScanScore      float64           `json:"scan_score"`
	Signal         prediction.Action `json:"signal"`
	SignalScore    float64           `json:"signal_score"`
	Confidence     float64           `json:"confidence"`
	CompositeScore float64           `json:"composite_score"`
}

// Report is the finished output of one nightly run: plain data handed to
// whatever renders or delivers it.
type Report struct {
	RunID         string              `json:"run_id"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    time.Time           `json:"finished_at"`
	Sentiment     *sentiment.Snapshot `json:"sentiment"`
	Opportunities []Opportunity       `json:"opportunities"`
	ScanSummary   scanner.Summary     `json:"scan_summary"`
	FetchStats    fetcher.Stats       `json:"fetch_stats"`
	Cancelled     bool                `json:"cancelled"`
}

// Store persists finished reports. Persistence is optional; a nil Store
// leaves results in memory only.
type Store interface {
	SaveReport(ctx context.Context, report *Report) error
}

// Pipeline wires the nightly phases together.
type Pipeline struct {
	fetcher   *fetcher.Fetcher
	estimator *sentiment.Estimator
	scanner   *scanner.Scanner
	ensemble  *prediction.Ensemble
	scanCfg   config.ScannerConfig
	weights   config.PipelineConfig
	store     Store
	log       zerolog.Logger
	rec       *metrics.Recorder
}

// New creates a pipeline. store and rec may be nil.
func New(
	f *fetcher.Fetcher,
	estimator *sentiment.Estimator,
	sc *scanner.Scanner,
	ensemble *prediction.Ensemble,
	scanCfg config.ScannerConfig,
	weights config.PipelineConfig,
	store Store,
	log zerolog.Logger,
	rec *metrics.Recorder,
) *Pipeline {
	return &Pipeline{
		fetcher:   f,
		estimator: estimator,
		scanner:   sc,
		ensemble:  ensemble,
		scanCfg:   scanCfg,
		weights:   weights,
		store:     store,
		log:       log.With().Str("component", "pipeline").Logger(),
		rec:       rec,
	}
}

// RunNightly executes the full overnight run. On cancellation the partial
// results accumulated so far are ranked, reported and persisted rather
// than discarded.
func (p *Pipeline) RunNightly(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	p.log.Info().Str("run_id", report.RunID).Msg("nightly run starting")

	// Phase 1: overnight sentiment. Degrades to neutral, never fails.
	phaseStart := time.Now()
	report.Sentiment = p.estimator.Estimate(ctx)
	p.observePhase("sentiment", phaseStart)
	if p.rec != nil {
		p.rec.SetSentimentScore(report.Sentiment.Score)
	}

	// Phase 2: scan the full universe.
	phaseStart = time.Now()
	results, summary, err := p.scanner.ScanAll(ctx, p.scanCfg.TopNPerSector)
	p.observePhase("scan", phaseStart)
	report.ScanSummary = summary
	if err != nil {
		report.FetchStats = p.fetcher.Stats()
		return report, err
	}

	// Phase 3: prediction on the top-ranked candidates.
	phaseStart = time.Now()
	report.Opportunities = p.scoreOpportunities(ctx, results, report.Sentiment)
	p.observePhase("predict", phaseStart)

	report.Cancelled = ctx.Err() != nil
	report.FinishedAt = time.Now().UTC()
	report.FetchStats = p.fetcher.Stats()

	p.log.Info().Str("run_id", report.RunID).
		Int("opportunities", len(report.Opportunities)).
		Int("processed", summary.Processed).
		Int("skipped_transient", summary.SkippedTransient).
		Int("skipped_validation", summary.SkippedValidation).
		Bool("cancelled", report.Cancelled).
		Msg("nightly run finished")

	if p.store != nil {
		// Persist even partial runs so cancelled work is not lost.
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.store.SaveReport(saveCtx, report); err != nil {
			p.log.Error().Err(err).Msg("failed to persist nightly report")
		}
	}
	return report, nil
}

// scoreOpportunities runs the ensemble on the best scan results and ranks
// by the composite of scanner score, prediction and sentiment.
func (p *Pipeline) scoreOpportunities(ctx context.Context, results []scanner.ScanResult, snap *sentiment.Snapshot) []Opportunity {
	topN := p.scanCfg.PredictTopN
	if topN > len(results) {
		topN = len(results)
	}

	opportunities := make([]Opportunity, 0, topN)
	for _, r := range results[:topN] {
		if ctx.Err() != nil {
			p.log.Warn().Int("scored", len(opportunities)).
				Msg("prediction phase cancelled, keeping partial ranking")
			break
		}

		opp := Opportunity{
			Symbol:    r.Symbol,
			Sector:    r.Sector,
			Price:     r.Price,
			RSI:       r.RSI,
			ScanScore: r.Score,
			Signal:    prediction.Hold,
		}

		// History is usually still warm in the source cache from the scan.
		series, ok := p.fetcher.History(ctx, r.Symbol, marketdata.Period(p.scanCfg.HistoryPeriod))
		if ok && len(series) > 0 {
			if sig, err := p.ensemble.Predict(series, len(series)-1); err == nil {
				opp.Signal = sig.Action
				opp.SignalScore = sig.NormScore
				opp.Confidence = sig.Confidence
			}
		}

		opp.CompositeScore = p.composite(opp, snap)
		opportunities = append(opportunities, opp)
	}

	sort.Slice(opportunities, func(i, j int) bool {
		if opportunities[i].CompositeScore != opportunities[j].CompositeScore {
			return opportunities[i].CompositeScore > opportunities[j].CompositeScore
		}
		return opportunities[i].Symbol < opportunities[j].Symbol
	})
	if max := p.scanCfg.MaxOpportunities; max > 0 && len(opportunities) > max {
		opportunities = opportunities[:max]
	}
	return opportunities
}

// composite blends the three inputs on a common 0-100 scale. The signal
// component is direction-aware: a confident SELL read pushes a candidate
// down, not up.
func (p *Pipeline) composite(opp Opportunity, snap *sentiment.Snapshot) float64 {
	signalComponent := 50 + opp.SignalScore*50
	score := p.weights.ScannerWeight*opp.ScanScore +
		p.weights.PredictionWeight*signalComponent +
		p.weights.SentimentWeight*snap.Score

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (p *Pipeline) observePhase(phase string, start time.Time) {
	if p.rec != nil {
		p.rec.ObservePhase(phase, time.Since(start).Seconds())
	}
}
