package backtest

import (
	"math"
	"testing"
	"time"

	"overnight-trading-bot/internal/marketdata"
	"overnight-trading-bot/internal/prediction"
)

func seriesWithCloses(closes []float64) marketdata.PriceSeries {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make(marketdata.PriceSeries, len(closes))
	for i, c := range closes {
		series[i] = marketdata.PricePoint{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1_000_000,
		}
	}
	return series
}

func signalsFor(actions ...prediction.Action) []prediction.Signal {
	signals := make([]prediction.Signal, len(actions))
	for i, a := range actions {
		signals[i] = prediction.Signal{Action: a}
	}
	return signals
}

func defaultSimConfig() SimConfig {
	return SimConfig{
		InitialCapital: 10_000,
		CommissionRate: 0.001,
		SlippageRate:   0.0005,
		MaxPositionPct: 0.95,
	}
}

func TestSimulateValidation(t *testing.T) {
	series := seriesWithCloses([]float64{100, 101, 102})
	signals := signalsFor(prediction.Hold, prediction.Hold, prediction.Hold)

	bad := defaultSimConfig()
	bad.InitialCapital = 0
	if _, err := Simulate("X", series, signals, 0, bad); err == nil {
		t.Error("expected error for zero capital")
	}

	bad = defaultSimConfig()
	bad.MaxPositionPct = 1.5
	if _, err := Simulate("X", series, signals, 0, bad); err == nil {
		t.Error("expected error for max position pct > 1")
	}

	if _, err := Simulate("X", series, signals, 1, defaultSimConfig()); err == nil {
		t.Error("expected error when signals overrun the series")
	}
}

func TestSimulateWinningRoundTrip(t *testing.T) {
	series := seriesWithCloses([]float64{100, 100, 110, 110})
	signals := signalsFor(prediction.Buy, prediction.Hold, prediction.Sell, prediction.Hold)
	cfg := defaultSimConfig()

	result, err := Simulate("BHP.AX", series, signals, 0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1", result.TotalTrades)
	}

	trade := result.Trades[0]
	if trade.EntryPrice != 100 || trade.ExitPrice != 110 {
		t.Errorf("trade prices = %f -> %f, want 100 -> 110", trade.EntryPrice, trade.ExitPrice)
	}
	if trade.ExitReason != "signal" {
		t.Errorf("exit reason = %q, want signal", trade.ExitReason)
	}

	// The PnL identity must hold to the cent and beyond.
	identity := (trade.ExitPrice-trade.EntryPrice)*trade.Quantity - trade.Commission - trade.Slippage
	if math.Abs(trade.PnL-identity) > 1e-9 {
		t.Errorf("PnL %f != identity %f", trade.PnL, identity)
	}
	if trade.PnL <= 0 {
		t.Errorf("PnL = %f, want a profit on a 10%% move", trade.PnL)
	}

	// The ledger must agree with the trade record.
	if math.Abs(result.FinalEquity-(cfg.InitialCapital+trade.PnL)) > 1e-9 {
		t.Errorf("final equity %f != capital + PnL %f", result.FinalEquity, cfg.InitialCapital+trade.PnL)
	}
	if result.WinningTrades != 1 || result.WinRate != 100 {
		t.Errorf("win stats = %d/%f, want 1 win at 100%%", result.WinningTrades, result.WinRate)
	}
}

func TestSimulateLosingRoundTrip(t *testing.T) {
	series := seriesWithCloses([]float64{100, 90, 90})
	signals := signalsFor(prediction.Buy, prediction.Sell, prediction.Hold)
	cfg := defaultSimConfig()

	result, err := Simulate("BHP.AX", series, signals, 0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	trade := result.Trades[0]

	identity := (trade.ExitPrice-trade.EntryPrice)*trade.Quantity - trade.Commission - trade.Slippage
	if math.Abs(trade.PnL-identity) > 1e-9 {
		t.Errorf("PnL %f != identity %f", trade.PnL, identity)
	}
	if trade.PnL >= 0 {
		t.Errorf("PnL = %f, want a loss on a 10%% drop", trade.PnL)
	}
	if math.Abs(result.FinalEquity-(cfg.InitialCapital+trade.PnL)) > 1e-9 {
		t.Errorf("final equity %f != capital + PnL", result.FinalEquity)
	}
	if result.LosingTrades != 1 || result.WinRate != 0 {
		t.Errorf("loss stats = %d/%f, want 1 loss at 0%%", result.LosingTrades, result.WinRate)
	}
}

func TestSimulateCashNeverNegative(t *testing.T) {
	// Full-allocation config on a volatile series with churny signals.
	cfg := defaultSimConfig()
	cfg.MaxPositionPct = 1.0

	series := seriesWithCloses([]float64{100, 50, 200, 25, 400, 10, 100})
	signals := signalsFor(
		prediction.Buy, prediction.Sell, prediction.Buy,
		prediction.Sell, prediction.Buy, prediction.Sell, prediction.Buy,
	)

	result, err := Simulate("WILD.AX", series, signals, 0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range result.EquityCurve {
		if p.Equity < 0 {
			t.Errorf("equity went negative at %v: %f", p.Timestamp, p.Equity)
		}
	}
	if result.FinalEquity < 0 {
		t.Errorf("final equity negative: %f", result.FinalEquity)
	}
}

func TestSimulateEndOfBacktestLiquidation(t *testing.T) {
	series := seriesWithCloses([]float64{100, 105, 110})
	signals := signalsFor(prediction.Buy, prediction.Hold, prediction.Hold)
	cfg := defaultSimConfig()

	result, err := Simulate("BHP.AX", series, signals, 0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalTrades != 1 {
		t.Fatalf("trades = %d, want forced liquidation to close the position", result.TotalTrades)
	}
	trade := result.Trades[0]
	if trade.ExitReason != "end_of_backtest" {
		t.Errorf("exit reason = %q, want end_of_backtest", trade.ExitReason)
	}
	if trade.ExitPrice != 110 {
		t.Errorf("exit price = %f, want the final close 110", trade.ExitPrice)
	}

	// The last curve point reflects the post-liquidation cash, so the
	// curve and FinalEquity agree.
	last := result.EquityCurve[len(result.EquityCurve)-1]
	if math.Abs(last.Equity-result.FinalEquity) > 1e-9 {
		t.Errorf("last curve point %f != final equity %f", last.Equity, result.FinalEquity)
	}
}

func TestSimulateIgnoresRedundantSignals(t *testing.T) {
	series := seriesWithCloses([]float64{100, 101, 102, 103})
	// Second BUY while holding and SELL while flat must both be no-ops.
	signals := signalsFor(prediction.Sell, prediction.Buy, prediction.Buy, prediction.Sell)

	result, err := Simulate("BHP.AX", series, signals, 0, defaultSimConfig())
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalTrades != 1 {
		t.Errorf("trades = %d, want exactly one round trip", result.TotalTrades)
	}
	if result.Trades[0].EntryPrice != 101 {
		t.Errorf("entry price = %f, want 101 from the first actionable BUY", result.Trades[0].EntryPrice)
	}
}

func TestSimulatePositionSizingRespectsMaxPct(t *testing.T) {
	cfg := defaultSimConfig()
	cfg.MaxPositionPct = 0.5

	series := seriesWithCloses([]float64{100, 100})
	signals := signalsFor(prediction.Buy, prediction.Hold)

	result, err := Simulate("BHP.AX", series, signals, 0, cfg)
	if err != nil {
		t.Fatal(err)
	}
	// Half the capital stays in cash, so equity at the first bar cannot
	// be below the uninvested half.
	first := result.EquityCurve[0]
	if first.Equity < cfg.InitialCapital*0.5 {
		t.Errorf("equity %f dipped below the uninvested cash floor", first.Equity)
	}
}

func TestSimulateStartOffset(t *testing.T) {
	series := seriesWithCloses([]float64{1, 2, 3, 100, 110})
	// Signals align to series[3:] only.
	signals := signalsFor(prediction.Buy, prediction.Sell)

	result, err := Simulate("BHP.AX", series, signals, 3, defaultSimConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.EquityCurve) != 2 {
		t.Fatalf("curve length = %d, want one point per signal", len(result.EquityCurve))
	}
	if result.Trades[0].EntryPrice != 100 {
		t.Errorf("entry price = %f, want 100 (offset bar)", result.Trades[0].EntryPrice)
	}
}

func TestMaxDrawdown(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	curve := []EquityPoint{
		{Timestamp: ts, Equity: 100},
		{Timestamp: ts.AddDate(0, 0, 1), Equity: 120},
		{Timestamp: ts.AddDate(0, 0, 2), Equity: 90},
		{Timestamp: ts.AddDate(0, 0, 3), Equity: 130},
	}
	// Peak 120 to trough 90 is a 25% drawdown.
	if got := maxDrawdownPct(curve); math.Abs(got-25) > 1e-9 {
		t.Errorf("max drawdown = %f, want 25", got)
	}
	if got := maxDrawdownPct(nil); got != 0 {
		t.Errorf("max drawdown of empty curve = %f, want 0", got)
	}
}

func TestSharpeRatioGuards(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	flat := make([]EquityPoint, 10)
	for i := range flat {
		flat[i] = EquityPoint{Timestamp: ts.AddDate(0, 0, i), Equity: 100}
	}
	if got := sharpeRatio(flat); got != 0 {
		t.Errorf("sharpe of flat curve = %f, want 0 (zero variance)", got)
	}
	if got := sharpeRatio(flat[:2]); got != 0 {
		t.Errorf("sharpe of tiny curve = %f, want 0", got)
	}

	// Mostly-up curve with some noise: positive and finite.
	noisy := []EquityPoint{}
	values := []float64{100, 102, 101, 104, 103, 107, 106, 110}
	for i, v := range values {
		noisy = append(noisy, EquityPoint{Timestamp: ts.AddDate(0, 0, i), Equity: v})
	}
	got := sharpeRatio(noisy)
	if got <= 0 {
		t.Errorf("sharpe of rising noisy curve = %f, want positive", got)
	}
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Errorf("sharpe is non-finite: %f", got)
	}
}
