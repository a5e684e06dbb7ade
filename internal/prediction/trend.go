package prediction

import (
	"fmt"

	"overnight-trading-bot/internal/indicators"
	"overnight-trading-bot/internal/marketdata"
)

// TrendModel combines short/medium moving-average crossover direction with
// multi-horizon momentum (5 and 20 day returns), weighted 60/40. Scores
// live on [-1,1].
type TrendModel struct {
	ShortPeriod int
	MedPeriod   int
	Threshold   float64 // BUY above, SELL below negated
}

// NewTrendModel creates a trend model with the given signal threshold.
func NewTrendModel(threshold float64) *TrendModel {
	return &TrendModel{ShortPeriod: 10, MedPeriod: 30, Threshold: threshold}
}

// Name returns the model kind.
func (m *TrendModel) Name() ModelKind { return ModelTrend }

// Predict evaluates the trend model at index i using only series[:i+1].
func (m *TrendModel) Predict(series marketdata.PriceSeries, i int) (Signal, error) {
	if i < 0 || i >= len(series) {
		return Signal{}, fmt.Errorf("index %d out of range for series of %d", i, len(series))
	}
	prefix := series[:i+1]
	if len(prefix) < m.MedPeriod+1 {
		return holdSignal(prefix, ModelTrend), nil
	}

	maShort := indicators.SMA(prefix, m.ShortPeriod)
	maMed := indicators.SMA(prefix, m.MedPeriod)
	if maMed <= 0 {
		return holdSignal(prefix, ModelTrend), nil
	}

	// Crossover spread relative to the medium MA, stretched onto [-1,1].
	// A 4% spread saturates the trend component.
	trendComponent := clampUnit((maShort - maMed) / maMed * 25)

	r5 := indicators.Return(prefix, 5)
	r20 := indicators.Return(prefix, 20)
	// Fractional returns saturate around ±5%.
	momentumComponent := clampUnit((r5*0.6 + r20*0.4) * 20)

	score := trendComponent*0.6 + momentumComponent*0.4
	action := classify(score, m.Threshold)

	return Signal{
		Timestamp:  prefix[len(prefix)-1].Timestamp,
		Action:     action,
		Confidence: clampUnitPos(abs(score)),
		Score:      score,
		NormScore:  score,
		Model:      ModelTrend,
	}, nil
}

func holdSignal(prefix marketdata.PriceSeries, kind ModelKind) Signal {
	ts := prefix[len(prefix)-1].Timestamp
	return Signal{Timestamp: ts, Action: Hold, Confidence: 0, Model: kind}
}

func classify(score, threshold float64) Action {
	switch {
	case score > threshold:
		return Buy
	case score < -threshold:
		return Sell
	default:
		return Hold
	}
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func clampUnitPos(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
