package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"overnight-trading-bot/config"
	"overnight-trading-bot/internal/backtest"
	"overnight-trading-bot/internal/marketdata"
)

func testPredictionConfig() config.PredictionConfig {
	return config.PredictionConfig{
		TrendWeight:       0.40,
		TechnicalWeight:   0.35,
		MomentumWeight:    0.25,
		SignalThreshold:   0.3,
		MomentumThreshold: 0.003,
	}
}

func testSimConfig() backtest.SimConfig {
	return backtest.SimConfig{
		InitialCapital: 10_000,
		CommissionRate: 0.001,
		SlippageRate:   0.0005,
		MaxPositionPct: 0.95,
	}
}

func newTestOptimizer() *Optimizer {
	return New(testPredictionConfig(), testSimConfig(), zerolog.Nop())
}

// trendingSeries compounds a constant daily return over n bars.
func trendingSeries(n int, dailyReturn float64) marketdata.PriceSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make(marketdata.PriceSeries, n)
	price := 100.0
	for i := range series {
		series[i] = marketdata.PricePoint{
			Timestamp: start.AddDate(0, 0, i),
			Open:      price, High: price, Low: price, Close: price,
			Volume: 1_000_000,
		}
		price *= 1 + dailyReturn
	}
	return series
}

// concat joins segments into one continuous series.
func concat(segments ...marketdata.PriceSeries) marketdata.PriceSeries {
	var out marketdata.PriceSeries
	for _, s := range segments {
		out = append(out, s...)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i].Timestamp = start.AddDate(0, 0, i)
	}
	return out
}

func baseRequest() Request {
	return Request{
		Symbol:      "BHP.AX",
		Grid:        Grid{ParamSignalThreshold: {0.3}},
		SplitRatio:  0.5,
		Method:      MethodGrid,
		Metric:      MetricReturn,
		StartOffset: 10,
	}
}

func TestOptimizeRejectsEmptyGrid(t *testing.T) {
	req := baseRequest()
	req.Grid = Grid{}
	if _, err := newTestOptimizer().Optimize(context.Background(), trendingSeries(200, 0.005), req); err == nil {
		t.Fatal("expected error for empty grid")
	}
}

func TestOptimizeRejectsUnknownParam(t *testing.T) {
	req := baseRequest()
	req.Grid = Grid{"learning_rate": {0.1}}
	if _, err := newTestOptimizer().Optimize(context.Background(), trendingSeries(200, 0.005), req); err == nil {
		t.Fatal("expected error for unknown parameter")
	}
}

func TestOptimizeRejectsBadSplit(t *testing.T) {
	for _, split := range []float64{0, 1, -0.5, 1.5} {
		req := baseRequest()
		req.SplitRatio = split
		if _, err := newTestOptimizer().Optimize(context.Background(), trendingSeries(200, 0.005), req); err == nil {
			t.Errorf("expected error for split ratio %v", split)
		}
	}
}

func TestOptimizeRejectsShortSeries(t *testing.T) {
	req := baseRequest()
	if _, err := newTestOptimizer().Optimize(context.Background(), trendingSeries(30, 0.005), req); err == nil {
		t.Fatal("expected error when segments are too short for the start offset")
	}
}

func TestOptimizeGridCandidateCount(t *testing.T) {
	req := baseRequest()
	req.Grid = Grid{
		ParamSignalThreshold:   {0.2, 0.3, 0.4},
		ParamMomentumThreshold: {0.002, 0.003},
	}

	result, err := newTestOptimizer().Optimize(context.Background(), trendingSeries(200, 0.005), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Trials) != 6 {
		t.Errorf("trials = %d, want the full 3x2 cartesian product", len(result.Trials))
	}
}

func TestOptimizeRandomSampleCount(t *testing.T) {
	req := baseRequest()
	req.Method = MethodRandom
	req.Samples = 7
	req.Grid = Grid{
		ParamSignalThreshold: {0.2, 0.3, 0.4},
		ParamTrendWeight:     {0.3, 0.4, 0.5},
	}

	result, err := newTestOptimizer().Optimize(context.Background(), trendingSeries(200, 0.005), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Trials) != 7 {
		t.Errorf("trials = %d, want the requested 7 samples", len(result.Trials))
	}
	for _, trial := range result.Trials {
		if len(trial.Params) != 2 {
			t.Errorf("sampled params %v missing a dimension", trial.Params)
		}
	}
}

func TestOptimizeRandomRequiresSamples(t *testing.T) {
	req := baseRequest()
	req.Method = MethodRandom
	req.Samples = 0
	if _, err := newTestOptimizer().Optimize(context.Background(), trendingSeries(200, 0.005), req); err == nil {
		t.Fatal("expected error for random search without a sample count")
	}
}

func TestOptimizeRanksByTestMetric(t *testing.T) {
	// Uptrend in both segments. A workable threshold trades profitably
	// out of sample; an unreachable one never trades at all.
	req := baseRequest()
	req.Grid = Grid{ParamSignalThreshold: {5.0, 0.3}}

	result, err := newTestOptimizer().Optimize(context.Background(), trendingSeries(240, 0.008), req)
	if err != nil {
		t.Fatal(err)
	}
	if got := result.BestParams[ParamSignalThreshold]; got != 0.3 {
		t.Errorf("best signal threshold = %v, want the tradeable 0.3", got)
	}
	if result.Trials[0].Test.ReturnPct <= result.Trials[1].Test.ReturnPct {
		t.Error("trials not ranked by out-of-sample return")
	}
}

func TestOptimizeFlagsOverfitParams(t *testing.T) {
	// Strong uptrend in the train half, steady decline in the test half:
	// whatever the train segment rewards cannot generalize.
	series := concat(trendingSeries(100, 0.010), trendingSeries(100, -0.010))

	req := baseRequest()
	result, err := newTestOptimizer().Optimize(context.Background(), series, req)
	if err != nil {
		t.Fatal(err)
	}

	trial := result.Trials[0]
	if trial.Train.ReturnPct <= 0 {
		t.Fatalf("train return = %f, fixture expected an in-sample profit", trial.Train.ReturnPct)
	}
	if trial.Test.ReturnPct >= trial.Train.ReturnPct {
		t.Fatalf("test return %f not degraded vs train %f", trial.Test.ReturnPct, trial.Train.ReturnPct)
	}
	if trial.OverfitScore <= 0.5 {
		t.Errorf("overfit score = %f, want > 0.5 for in-sample-only performance", trial.OverfitScore)
	}
	if result.LowOverfitCount != 0 {
		t.Errorf("low overfit count = %d, want 0", result.LowOverfitCount)
	}
}

func TestOptimizeTopKTrimsTrials(t *testing.T) {
	req := baseRequest()
	req.Grid = Grid{ParamSignalThreshold: {0.1, 0.2, 0.3, 0.4, 0.5}}
	req.TopK = 2

	result, err := newTestOptimizer().Optimize(context.Background(), trendingSeries(200, 0.005), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Trials) != 2 {
		t.Errorf("trials = %d, want TopK 2", len(result.Trials))
	}
	// BestParams still reflects the overall winner, not the trimmed list.
	if result.BestParams == nil {
		t.Error("best params missing after trim")
	}
}

func TestOverfitScore(t *testing.T) {
	cases := []struct {
		train, test, want float64
	}{
		{10, 10, 0},    // generalizes perfectly
		{10, 0, 1},     // all in-sample
		{10, 5, 0.5},   // half the edge survives
		{0, 5, 0},      // no train evidence, no verdict
		{10, 15, -0.5}, // better out of sample
	}
	for _, tc := range cases {
		if got := overfitScore(tc.train, tc.test); got != tc.want {
			t.Errorf("overfitScore(%v, %v) = %v, want %v", tc.train, tc.test, got, tc.want)
		}
	}
}

func TestCandidatesDeterministic(t *testing.T) {
	req := baseRequest()
	req.Method = MethodRandom
	req.Samples = 5
	req.Grid = Grid{
		ParamSignalThreshold: {0.2, 0.3, 0.4},
		ParamTrendWeight:     {0.3, 0.4},
	}

	a := New(testPredictionConfig(), testSimConfig(), zerolog.Nop()).candidates(req)
	b := New(testPredictionConfig(), testSimConfig(), zerolog.Nop()).candidates(req)
	if len(a) != len(b) {
		t.Fatalf("candidate counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		for name, v := range a[i] {
			if b[i][name] != v {
				t.Errorf("candidate %d differs at %s: %v vs %v", i, name, b[i][name], v)
			}
		}
	}
}
