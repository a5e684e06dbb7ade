package backtest

import (
	"fmt"
	"math"
	"time"

	"overnight-trading-bot/internal/marketdata"
	"overnight-trading-bot/internal/prediction"
)

// SimConfig parameterizes one simulation run.
type SimConfig struct {
	InitialCapital float64
	CommissionRate float64 // fraction of notional per side
	SlippageRate   float64 // fraction of notional per side
	MaxPositionPct float64 // fraction of equity a single position may use
}

// Position is an open holding in the simulator's ledger.
type Position struct {
	Symbol     string    `json:"symbol"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
}

// Trade is a completed round trip, immutable once recorded.
// PnL always equals (ExitPrice-EntryPrice)*Quantity - Commission - Slippage.
type Trade struct {
	Symbol     string    `json:"symbol"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	PnL        float64   `json:"pnl"`
	Commission float64   `json:"commission"`
	Slippage   float64   `json:"slippage"`
	ExitReason string    `json:"exit_reason"` // "signal" or "end_of_backtest"
}

// EquityPoint is the mark-to-market account value at one time step.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result is the full outcome of one simulation.
type Result struct {
	Symbol         string        `json:"symbol"`
	InitialCapital float64       `json:"initial_capital"`
	FinalEquity    float64       `json:"final_equity"`
	TotalReturnPct float64       `json:"total_return_pct"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
	SharpeRatio    float64       `json:"sharpe_ratio"`
	WinRate        float64       `json:"win_rate"`
	TotalTrades    int           `json:"total_trades"`
	WinningTrades  int           `json:"winning_trades"`
	LosingTrades   int           `json:"losing_trades"`
	TotalPnL       float64       `json:"total_pnl"`
	TotalFees      float64       `json:"total_fees"`
	Trades         []Trade       `json:"trades"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
}

// Simulate executes a signal stream against a cash/position ledger.
// signals[k] corresponds to series[startOffset+k]. BUY opens a position
// sized within MaxPositionPct of current equity and available cash, SELL
// closes it, HOLD is a no-op, and any open position is liquidated at the
// final close. Cash can never go negative: a BUY that would exceed
// available cash is sized down, and skipped entirely when nothing
// meaningful can be bought.
func Simulate(symbol string, series marketdata.PriceSeries, signals []prediction.Signal, startOffset int, cfg SimConfig) (*Result, error) {
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %v", cfg.InitialCapital)
	}
	if cfg.MaxPositionPct <= 0 || cfg.MaxPositionPct > 1 {
		return nil, fmt.Errorf("max position pct must be in (0,1], got %v", cfg.MaxPositionPct)
	}
	if startOffset < 0 || startOffset+len(signals) > len(series) {
		return nil, fmt.Errorf("signal stream [%d..%d) does not fit series of %d", startOffset, startOffset+len(signals), len(series))
	}

	cash := cfg.InitialCapital
	var position *Position
	trades := make([]Trade, 0)
	curve := make([]EquityPoint, 0, len(signals))

	// Round-trip costs are split per side: commission and slippage are
	// both charged on the raw-price notional so the Trade PnL identity
	// holds exactly.
	perSideRate := cfg.CommissionRate + cfg.SlippageRate

	for k, sig := range signals {
		bar := series[startOffset+k]
		price := bar.Close

		switch {
		case sig.Action == prediction.Buy && position == nil && price > 0:
			equity := cash // flat, so equity is all cash
			budget := math.Min(cfg.MaxPositionPct*equity, cash)
			qty := budget / (price * (1 + perSideRate))
			if qty > 0 {
				notional := qty * price
				cash -= notional + notional*perSideRate
				position = &Position{
					Symbol:     symbol,
					Quantity:   qty,
					EntryPrice: price,
					EntryTime:  bar.Timestamp,
				}
			}

		case sig.Action == prediction.Sell && position != nil && price > 0:
			trade := closePosition(position, price, bar.Timestamp, cfg, "signal")
			cash += position.Quantity*price - position.Quantity*price*perSideRate
			trades = append(trades, trade)
			position = nil
		}

		equity := cash
		if position != nil {
			equity += position.Quantity * price
		}
		curve = append(curve, EquityPoint{Timestamp: bar.Timestamp, Equity: equity})
	}

	// End-of-series liquidation of any open position.
	if position != nil {
		last := series[len(series)-1]
		trade := closePosition(position, last.Close, last.Timestamp, cfg, "end_of_backtest")
		cash += position.Quantity*last.Close - position.Quantity*last.Close*(cfg.CommissionRate+cfg.SlippageRate)
		trades = append(trades, trade)
		position = nil
		if n := len(curve); n > 0 {
			curve[n-1].Equity = cash
		}
	}

	result := &Result{
		Symbol:         symbol,
		InitialCapital: cfg.InitialCapital,
		FinalEquity:    cash,
		Trades:         trades,
		EquityCurve:    curve,
	}
	fillMetrics(result)
	return result, nil
}

// closePosition builds the immutable round-trip record. Entry and exit
// prices are the signal-bar closes; execution friction shows up as the
// explicit Commission and Slippage fields.
func closePosition(p *Position, exitPrice float64, exitTime time.Time, cfg SimConfig, reason string) Trade {
	entryNotional := p.Quantity * p.EntryPrice
	exitNotional := p.Quantity * exitPrice
	commission := (entryNotional + exitNotional) * cfg.CommissionRate
	slippage := (entryNotional + exitNotional) * cfg.SlippageRate

	return Trade{
		Symbol:     p.Symbol,
		EntryTime:  p.EntryTime,
		ExitTime:   exitTime,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   p.Quantity,
		PnL:        (exitPrice-p.EntryPrice)*p.Quantity - commission - slippage,
		Commission: commission,
		Slippage:   slippage,
		ExitReason: reason,
	}
}

func fillMetrics(r *Result) {
	r.TotalReturnPct = (r.FinalEquity - r.InitialCapital) / r.InitialCapital * 100
	r.TotalTrades = len(r.Trades)

	for _, t := range r.Trades {
		r.TotalPnL += t.PnL
		r.TotalFees += t.Commission + t.Slippage
		if t.PnL > 0 {
			r.WinningTrades++
		} else {
			r.LosingTrades++
		}
	}
	if r.TotalTrades > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades) * 100
	}

	r.MaxDrawdownPct = maxDrawdownPct(r.EquityCurve)
	r.SharpeRatio = sharpeRatio(r.EquityCurve)
}

// maxDrawdownPct returns the largest peak-to-trough equity decline in percent.
func maxDrawdownPct(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	maxDD := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpeRatio computes the annualized Sharpe ratio of daily equity returns
// with a zero risk-free rate.
func sharpeRatio(curve []EquityPoint) float64 {
	if len(curve) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev > 0 {
			returns = append(returns, (curve[i].Equity-prev)/prev)
		}
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(len(returns)-1))
	if sd == 0 {
		return 0
	}
	sharpe := mean / sd * math.Sqrt(252)
	if math.IsNaN(sharpe) || math.IsInf(sharpe, 0) {
		return 0
	}
	return sharpe
}
