package prediction

import (
	"time"

	"overnight-trading-bot/internal/marketdata"
)

// Action is a trading decision.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// ModelKind identifies which model produced a signal.
type ModelKind string

const (
	ModelTrend     ModelKind = "TREND"
	ModelTechnical ModelKind = "TECHNICAL"
	ModelMomentum  ModelKind = "MOMENTUM"
	ModelEnsemble  ModelKind = "ENSEMBLE"
)

// Signal is one model decision at one time step.
//
// Score is on the model's native domain: [-1,1] for the trend and
// technical models, raw fractional returns (typically ±0.01) for the
// momentum model. NormScore rescales every model onto [-1,1] so the
// ensemble can combine them; mixing native domains directly would let the
// [-1,1] models drown out the momentum model entirely.
type Signal struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"` // 0-1
	Score      float64   `json:"score"`
	NormScore  float64   `json:"norm_score"`
	Model      ModelKind `json:"model"`
}

// Model predicts a signal from a price series using only data up to and
// including index i. No implementation may read past i: walk-forward
// backtest validity depends on it.
type Model interface {
	Name() ModelKind
	Predict(series marketdata.PriceSeries, i int) (Signal, error)
}
