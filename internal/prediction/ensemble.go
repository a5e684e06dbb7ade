package prediction

import (
	"fmt"

	"overnight-trading-bot/config"
	"overnight-trading-bot/internal/marketdata"
)

// Consensus bonus applied when all component models agree on direction.
const (
	consensusConfidenceBoost = 1.15
	consensusScoreBoost      = 1.10
)

// Ensemble combines whatever component models are configured through a
// weighted average of their normalized scores, classified with the same
// threshold logic as the technical model. Holding a list of models rather
// than branching on availability keeps the capability set explicit.
type Ensemble struct {
	models    []Model
	weights   map[ModelKind]float64
	threshold float64
}

// NewEnsemble builds an ensemble over the given models.
func NewEnsemble(models []Model, weights map[ModelKind]float64, threshold float64) (*Ensemble, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("ensemble requires at least one model")
	}
	total := 0.0
	for _, m := range models {
		w, ok := weights[m.Name()]
		if !ok || w <= 0 {
			return nil, fmt.Errorf("missing or non-positive weight for model %s", m.Name())
		}
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("ensemble weights must sum to a positive value")
	}
	return &Ensemble{models: models, weights: weights, threshold: threshold}, nil
}

// NewDefaultEnsemble wires the trend/technical/momentum stack from config.
func NewDefaultEnsemble(cfg config.PredictionConfig) (*Ensemble, error) {
	models := []Model{
		NewTrendModel(cfg.SignalThreshold),
		NewTechnicalModel(cfg.SignalThreshold),
		NewMomentumModel(cfg.MomentumThreshold),
	}
	weights := map[ModelKind]float64{
		ModelTrend:     cfg.TrendWeight,
		ModelTechnical: cfg.TechnicalWeight,
		ModelMomentum:  cfg.MomentumWeight,
	}
	return NewEnsemble(models, weights, cfg.SignalThreshold)
}

// Name returns the model kind.
func (e *Ensemble) Name() ModelKind { return ModelEnsemble }

// Predict combines the component model signals at index i. Component
// signals are computed from series[:i+1] only.
func (e *Ensemble) Predict(series marketdata.PriceSeries, i int) (Signal, error) {
	components, err := e.Components(series, i)
	if err != nil {
		return Signal{}, err
	}
	return e.Combine(components), nil
}

// Components runs every component model at index i.
func (e *Ensemble) Components(series marketdata.PriceSeries, i int) ([]Signal, error) {
	out := make([]Signal, 0, len(e.models))
	for _, m := range e.models {
		sig, err := m.Predict(series, i)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Name(), err)
		}
		out = append(out, sig)
	}
	return out, nil
}

// Combine folds component signals into the ensemble signal, applying the
// consensus bonus before final classification: when independent models
// agree on direction the combined read deserves more trust.
func (e *Ensemble) Combine(components []Signal) Signal {
	var weightedScore, weightedConf, totalWeight float64
	for _, sig := range components {
		w := e.weights[sig.Model]
		weightedScore += sig.NormScore * w
		weightedConf += sig.Confidence * w
		totalWeight += w
	}
	if totalWeight > 0 {
		weightedScore /= totalWeight
		weightedConf /= totalWeight
	}

	if consensus(components, Buy) || consensus(components, Sell) {
		weightedConf = clampUnitPos(weightedConf * consensusConfidenceBoost)
		weightedScore = clampUnit(weightedScore * consensusScoreBoost)
	}

	var ts = components[0].Timestamp
	for _, sig := range components[1:] {
		if sig.Timestamp.After(ts) {
			ts = sig.Timestamp
		}
	}

	return Signal{
		Timestamp:  ts,
		Action:     classify(weightedScore, e.threshold),
		Confidence: weightedConf,
		Score:      weightedScore,
		NormScore:  weightedScore,
		Model:      ModelEnsemble,
	}
}

func consensus(components []Signal, action Action) bool {
	if len(components) < 2 {
		return false
	}
	for _, sig := range components {
		if sig.Action != action {
			return false
		}
	}
	return true
}
