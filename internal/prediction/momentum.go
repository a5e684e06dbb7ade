package prediction

import (
	"fmt"

	"overnight-trading-bot/internal/indicators"
	"overnight-trading-bot/internal/marketdata"
)

// momentumNormScale maps the raw-return score domain (typically ±0.01)
// onto [-1,1] for ensemble combination and confidence.
const momentumNormScale = 0.01

// MomentumModel scores a weighted combination of short-term return (35%),
// medium-term return (25%), linear-regression trend strength (20%), 20-day
// rate of change (15%) and return acceleration (5%).
//
// The components are fractional returns with typical magnitude 0.001-0.01,
// so the BUY/SELL threshold must live on that same scale (default ±0.003).
// A [-1,1]-scale threshold here would make the model degenerate to
// always-HOLD.
type MomentumModel struct {
	Threshold float64 // on the raw-return scale
}

// NewMomentumModel creates a momentum model with the given raw-scale threshold.
func NewMomentumModel(threshold float64) *MomentumModel {
	return &MomentumModel{Threshold: threshold}
}

// Name returns the model kind.
func (m *MomentumModel) Name() ModelKind { return ModelMomentum }

// Predict evaluates the momentum model at index i using only series[:i+1].
func (m *MomentumModel) Predict(series marketdata.PriceSeries, i int) (Signal, error) {
	if i < 0 || i >= len(series) {
		return Signal{}, fmt.Errorf("index %d out of range for series of %d", i, len(series))
	}
	prefix := series[:i+1]
	if len(prefix) < 31 {
		return holdSignal(prefix, ModelMomentum), nil
	}

	r5 := indicators.Return(prefix, 5)
	r20 := indicators.Return(prefix, 20)
	slope := indicators.LinRegSlope(prefix, 20)
	roc20 := indicators.ROC(prefix, 20)

	// Acceleration: how the 5-day return changed versus five bars ago.
	prevR5 := indicators.Return(prefix[:len(prefix)-5], 5)
	accel := r5 - prevR5

	score := r5*0.35 + r20*0.25 + slope*0.20 + roc20*0.15 + accel*0.05
	norm := clampUnit(score / momentumNormScale)

	return Signal{
		Timestamp:  prefix[len(prefix)-1].Timestamp,
		Action:     classify(score, m.Threshold),
		Confidence: clampUnitPos(abs(norm)),
		Score:      score,
		NormScore:  norm,
		Model:      ModelMomentum,
	}, nil
}
