// Package backtest replays prediction models over historical data and
// simulates the resulting trades against a cash ledger.
package backtest

import (
	"context"
	"fmt"

	"overnight-trading-bot/internal/marketdata"
	"overnight-trading-bot/internal/prediction"
)

// WalkForward replays model day by day from startOffset to the end of the
// series. The model only ever sees the prefix [0..i]: signals are provably
// unaffected by data after their own index, which is what makes the
// simulated results honest.
//
// A failed prediction at one step degrades to HOLD for that step and the
// replay continues; cancellation returns the signals produced so far.
func WalkForward(ctx context.Context, series marketdata.PriceSeries, model prediction.Model, startOffset int) ([]prediction.Signal, error) {
	if startOffset < 0 {
		return nil, fmt.Errorf("start offset must be >= 0, got %d", startOffset)
	}
	if startOffset >= len(series) {
		return nil, fmt.Errorf("start offset %d beyond series length %d", startOffset, len(series))
	}

	signals := make([]prediction.Signal, 0, len(series)-startOffset)
	for i := startOffset; i < len(series); i++ {
		if ctx.Err() != nil {
			return signals, ctx.Err()
		}

		sig, err := model.Predict(series[:i+1], i)
		if err != nil {
			sig = prediction.Signal{
				Timestamp: series[i].Timestamp,
				Action:    prediction.Hold,
				Model:     model.Name(),
			}
		}
		signals = append(signals, sig)
	}
	return signals, nil
}
