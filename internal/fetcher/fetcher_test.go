package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"overnight-trading-bot/config"
	"overnight-trading-bot/internal/marketdata"
)

func testConfig() config.FetcherConfig {
	return config.FetcherConfig{
		MaxRetries:          3,
		BackoffBaseSeconds:  2.0,
		MinRequestInterval:  0, // no spacing in tests
		BreakerMaxRequests:  2,
		BreakerResetSeconds: 60,
	}
}

// newTestFetcher wires a fetcher whose backoff sleeps are recorded instead
// of executed.
func newTestFetcher(source marketdata.Source, cfg config.FetcherConfig) (*Fetcher, *[]time.Duration) {
	f := New(source, cfg, zerolog.Nop(), nil)
	var slept []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return f, &slept
}

func TestHistorySuccess(t *testing.T) {
	mock := marketdata.NewMockSource()
	f, _ := newTestFetcher(mock, testConfig())

	series, ok := f.History(context.Background(), "BHP.AX", marketdata.Period3Mo)
	if !ok {
		t.Fatal("expected ok on healthy source")
	}
	if len(series) == 0 {
		t.Fatal("expected non-empty series")
	}

	stats := f.Stats()
	if stats.Fetched != 1 || stats.Retries != 0 {
		t.Errorf("stats = %+v, want 1 fetch and no retries", stats)
	}
}

func TestHistoryRetriesThenSucceeds(t *testing.T) {
	mock := marketdata.NewMockSource()
	mock.FailWith("BHP.AX", marketdata.ErrTransient, marketdata.ErrRateLimited)
	f, slept := newTestFetcher(mock, testConfig())

	_, ok := f.History(context.Background(), "BHP.AX", marketdata.Period3Mo)
	if !ok {
		t.Fatal("expected success on the third attempt")
	}

	// Linear backoff: base, then 2*base.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("backoff[%d] = %v, want %v", i, (*slept)[i], d)
		}
	}

	stats := f.Stats()
	if stats.Retries != 2 {
		t.Errorf("retries = %d, want 2", stats.Retries)
	}
	if stats.SkippedTransient != 0 {
		t.Errorf("skipped transient = %d, want 0", stats.SkippedTransient)
	}
}

func TestHistoryExhaustsRetries(t *testing.T) {
	mock := marketdata.NewMockSource()
	mock.FailWith("BHP.AX", marketdata.ErrTransient, marketdata.ErrTransient, marketdata.ErrTransient)
	f, _ := newTestFetcher(mock, testConfig())

	_, ok := f.History(context.Background(), "BHP.AX", marketdata.Period3Mo)
	if ok {
		t.Fatal("expected skip after exhausting retries")
	}

	stats := f.Stats()
	if stats.SkippedTransient != 1 {
		t.Errorf("skipped transient = %d, want 1", stats.SkippedTransient)
	}
	if stats.Retries != 2 {
		t.Errorf("retries = %d, want 2 (no backoff after the final attempt)", stats.Retries)
	}
	if mock.HistoryCalls() != 3 {
		t.Errorf("source calls = %d, want exactly MaxRetries", mock.HistoryCalls())
	}
}

func TestHistoryPermanentFailureSkipsImmediately(t *testing.T) {
	mock := marketdata.NewMockSource()
	mock.FailWith("GONE.AX", marketdata.ErrNotFound)
	f, slept := newTestFetcher(mock, testConfig())

	_, ok := f.History(context.Background(), "GONE.AX", marketdata.Period3Mo)
	if ok {
		t.Fatal("expected skip on permanent failure")
	}
	if len(*slept) != 0 {
		t.Errorf("permanent failure must not back off, slept %v", *slept)
	}
	if mock.HistoryCalls() != 1 {
		t.Errorf("source calls = %d, want 1 (no retry on permanent errors)", mock.HistoryCalls())
	}

	stats := f.Stats()
	if stats.SkippedPermanent != 1 || stats.SkippedTransient != 0 {
		t.Errorf("stats = %+v, want one permanent skip", stats)
	}
}

func TestHistoryCancelledContext(t *testing.T) {
	mock := marketdata.NewMockSource()
	f, _ := newTestFetcher(mock, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := f.History(ctx, "BHP.AX", marketdata.Period3Mo)
	if ok {
		t.Fatal("expected skip when context is already cancelled")
	}
}

func TestLatestQuote(t *testing.T) {
	mock := marketdata.NewMockSource()
	mock.SetQuote("CBA.AX", &marketdata.Quote{
		Symbol: "CBA.AX", Price: 110, PreviousClose: 108,
		ChangePercent: 1.85, Timestamp: time.Now(),
	})
	f, _ := newTestFetcher(mock, testConfig())

	q, ok := f.LatestQuote(context.Background(), "CBA.AX")
	if !ok {
		t.Fatal("expected quote")
	}
	if q.Price != 110 {
		t.Errorf("price = %f, want 110", q.Price)
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{marketdata.ErrTransient, true},
		{marketdata.ErrRateLimited, true},
		{gobreaker.ErrOpenState, true},
		{gobreaker.ErrTooManyRequests, true},
		{marketdata.ErrNotFound, false},
	}
	for _, tc := range cases {
		if got := retryable(tc.err); got != tc.want {
			t.Errorf("retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
