package prediction

import (
	"fmt"

	"overnight-trading-bot/internal/indicators"
	"overnight-trading-bot/internal/marketdata"
)

// TechnicalModel accumulates a score on [-1,1] from RSI zones, the MACD
// histogram sign, Bollinger band position and moving-average alignment.
type TechnicalModel struct {
	Threshold float64
}

// NewTechnicalModel creates a technical model with the given threshold.
func NewTechnicalModel(threshold float64) *TechnicalModel {
	return &TechnicalModel{Threshold: threshold}
}

// Name returns the model kind.
func (m *TechnicalModel) Name() ModelKind { return ModelTechnical }

// Predict evaluates the technical model at index i using only series[:i+1].
func (m *TechnicalModel) Predict(series marketdata.PriceSeries, i int) (Signal, error) {
	if i < 0 || i >= len(series) {
		return Signal{}, fmt.Errorf("index %d out of range for series of %d", i, len(series))
	}
	prefix := series[:i+1]
	if len(prefix) < 35 { // slow MACD period + signal period
		return holdSignal(prefix, ModelTechnical), nil
	}

	price := prefix[len(prefix)-1].Close
	score := 0.0

	rsi := indicators.RSI(prefix, 14)
	switch {
	case rsi < 30:
		score += 0.3
	case rsi > 70:
		score -= 0.3
	}

	macd := indicators.MACD(prefix, 12, 26, 9)
	switch {
	case macd.Histogram > 0:
		score += 0.2
	case macd.Histogram < 0:
		score -= 0.2
	}

	upper, _, lower := indicators.Bollinger(prefix, 20, 2.0)
	if band := upper - lower; band > 0 {
		// Position within the band: 0 at the lower band, 1 at the upper.
		pos := (price - lower) / band
		switch {
		case pos < 0.2:
			score += 0.25
		case pos > 0.8:
			score -= 0.25
		}
	}

	ma20 := indicators.SMA(prefix, 20)
	ma50 := indicators.SMA(prefix, 50)
	if ma20 > 0 && ma50 > 0 {
		switch {
		case price > ma20 && ma20 > ma50:
			score += 0.25
		case price < ma20 && ma20 < ma50:
			score -= 0.25
		}
	}

	score = clampUnit(score)
	return Signal{
		Timestamp:  prefix[len(prefix)-1].Timestamp,
		Action:     classify(score, m.Threshold),
		Confidence: clampUnitPos(abs(score)),
		Score:      score,
		NormScore:  score,
		Model:      ModelTechnical,
	}, nil
}
