// Package metrics exposes Prometheus instrumentation for pipeline runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder wraps the Prometheus collectors used by the pipeline.
type Recorder struct {
	tickersProcessed  prometheus.Counter
	skippedTransient  prometheus.Counter
	skippedValidation prometheus.Counter
	fetchRetries      prometheus.Counter
	fetchDuration     prometheus.Histogram
	runDuration       *prometheus.HistogramVec
	sentimentScore    prometheus.Gauge
}

// New registers and returns the pipeline metric collectors.
func New() *Recorder {
	return &Recorder{
		tickersProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "screener_tickers_processed_total",
			Help: "Tickers that produced a scan result",
		}),
		skippedTransient: promauto.NewCounter(prometheus.CounterOpts{
			Name: "screener_tickers_skipped_transient_total",
			Help: "Tickers skipped after retry exhaustion on transient fetch errors",
		}),
		skippedValidation: promauto.NewCounter(prometheus.CounterOpts{
			Name: "screener_tickers_skipped_validation_total",
			Help: "Tickers skipped on data validation (bad price, thin volume, short history)",
		}),
		fetchRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "screener_fetch_retries_total",
			Help: "Retry attempts issued against the market data source",
		}),
		fetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_fetch_duration_seconds",
			Help:    "Duration of market data fetches including retries",
			Buckets: prometheus.DefBuckets,
		}),
		runDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screener_run_duration_seconds",
			Help:    "Duration of pipeline phases",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		}, []string{"phase"}),
		sentimentScore: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "screener_sentiment_score",
			Help: "Most recent overnight sentiment score (0-100)",
		}),
	}
}

// RecordProcessed counts a successfully scanned ticker.
func (r *Recorder) RecordProcessed() { r.tickersProcessed.Inc() }

// RecordSkippedTransient counts a ticker skipped after retry exhaustion.
func (r *Recorder) RecordSkippedTransient() { r.skippedTransient.Inc() }

// RecordSkippedValidation counts a ticker rejected by validation.
func (r *Recorder) RecordSkippedValidation() { r.skippedValidation.Inc() }

// RecordFetchRetry counts one retry attempt.
func (r *Recorder) RecordFetchRetry() { r.fetchRetries.Inc() }

// ObserveFetch records the total duration of one fetch.
func (r *Recorder) ObserveFetch(seconds float64) { r.fetchDuration.Observe(seconds) }

// ObservePhase records the duration of a named pipeline phase.
func (r *Recorder) ObservePhase(phase string, seconds float64) {
	r.runDuration.WithLabelValues(phase).Observe(seconds)
}

// SetSentimentScore publishes the latest sentiment score.
func (r *Recorder) SetSentimentScore(score float64) { r.sentimentScore.Set(score) }
