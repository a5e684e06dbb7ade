package prediction

import (
	"fmt"
	"strings"

	"overnight-trading-bot/config"
)

// NewModel builds a model by name. Used by the backtest and optimize
// entry points where the caller selects the model to replay.
func NewModel(name string, cfg config.PredictionConfig) (Model, error) {
	switch ModelKind(strings.ToUpper(name)) {
	case ModelTrend:
		return NewTrendModel(cfg.SignalThreshold), nil
	case ModelTechnical:
		return NewTechnicalModel(cfg.SignalThreshold), nil
	case ModelMomentum:
		return NewMomentumModel(cfg.MomentumThreshold), nil
	case ModelEnsemble, "":
		return NewDefaultEnsemble(cfg)
	default:
		return nil, fmt.Errorf("unknown model %q", name)
	}
}
