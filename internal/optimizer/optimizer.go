// Package optimizer searches prediction parameters against chronological
// train/test splits and flags parameter sets that only work in-sample.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"overnight-trading-bot/config"
	"overnight-trading-bot/internal/backtest"
	"overnight-trading-bot/internal/marketdata"
	"overnight-trading-bot/internal/prediction"
)

// Method selects the search strategy.
type Method string

const (
	MethodGrid   Method = "grid"   // full cartesian product
	MethodRandom Method = "random" // N uniform samples from the grid
)

// Metric selects the objective computed on the test segment.
type Metric string

const (
	MetricReturn   Metric = "return"
	MetricSharpe   Metric = "sharpe"
	MetricDrawdown Metric = "drawdown"
)

// A trial is overfit-flagged below this score; kept as the reporting cut
// for "configurations that generalized".
const lowOverfitCutoff = 0.20

// Parameter names accepted in a grid.
const (
	ParamSignalThreshold   = "signal_threshold"
	ParamMomentumThreshold = "momentum_threshold"
	ParamTrendWeight       = "trend_weight"
	ParamTechnicalWeight   = "technical_weight"
	ParamMomentumWeight    = "momentum_weight"
)

// Grid maps parameter names to candidate values.
type Grid map[string][]float64

// SegmentMetrics captures one segment's simulation outcome.
type SegmentMetrics struct {
	ReturnPct   float64 `json:"return_pct"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	DrawdownPct float64 `json:"drawdown_pct"`
	Trades      int     `json:"trades"`
}

// Trial is one evaluated parameter set.
type Trial struct {
	Params       map[string]float64 `json:"params"`
	Train        SegmentMetrics     `json:"train"`
	Test         SegmentMetrics     `json:"test"`
	OverfitScore float64            `json:"overfit_score"`
}

// Result is the ranked outcome of one optimization run.
type Result struct {
	Symbol          string  `json:"symbol"`
	Method          Method  `json:"method"`
	Metric          Metric  `json:"metric"`
	Trials          []Trial `json:"trials"` // ranked best-first by test metric
	BestParams      map[string]float64 `json:"best_params"`
	MeanTrainReturn float64 `json:"mean_train_return"`
	MeanTestReturn  float64 `json:"mean_test_return"`
	BestTrainReturn float64 `json:"best_train_return"`
	BestTestReturn  float64 `json:"best_test_return"`
	LowOverfitCount int     `json:"low_overfit_count"`
	TrainBars       int     `json:"train_bars"`
	TestBars        int     `json:"test_bars"`
}

// Request parameterizes one optimization run.
type Request struct {
	Symbol      string
	Grid        Grid
	SplitRatio  float64 // train fraction, e.g. 0.75
	Method      Method
	Metric      Metric
	Samples     int // random method only
	TopK        int // trials kept in the result; 0 keeps all
	StartOffset int // warmup bars within each segment
}

// Optimizer runs parameter searches.
type Optimizer struct {
	baseCfg config.PredictionConfig
	simCfg  backtest.SimConfig
	log     zerolog.Logger
	rng     *rand.Rand
}

// New creates an optimizer seeded deterministically so random searches are
// reproducible across runs.
func New(baseCfg config.PredictionConfig, simCfg backtest.SimConfig, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		baseCfg: baseCfg,
		simCfg:  simCfg,
		log:     log.With().Str("component", "optimizer").Logger(),
		rng:     rand.New(rand.NewSource(1)),
	}
}

// Optimize evaluates candidate parameter sets on the train segment, then
// independently on the test segment, and ranks by the out-of-sample
// metric. Selecting on train metrics would itself be a form of
// overfitting introduced by the optimizer.
func (o *Optimizer) Optimize(ctx context.Context, series marketdata.PriceSeries, req Request) (*Result, error) {
	if len(req.Grid) == 0 {
		return nil, fmt.Errorf("parameter grid must not be empty")
	}
	for name, values := range req.Grid {
		if !knownParam(name) {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("parameter %q has no candidate values", name)
		}
	}
	if req.SplitRatio <= 0 || req.SplitRatio >= 1 {
		return nil, fmt.Errorf("split ratio must be in (0,1), got %v", req.SplitRatio)
	}
	if req.Method == MethodRandom && req.Samples < 1 {
		return nil, fmt.Errorf("random search requires samples >= 1")
	}

	// Chronological split: time-series order matters, never shuffle.
	splitIdx := int(float64(len(series)) * req.SplitRatio)
	train := series[:splitIdx]
	test := series[splitIdx:]

	minBars := req.StartOffset + 10
	if len(train) < minBars || len(test) < minBars {
		return nil, fmt.Errorf("series too short for split: train=%d test=%d, need >= %d each", len(train), len(test), minBars)
	}

	candidates := o.candidates(req)
	o.log.Info().Str("symbol", req.Symbol).Int("candidates", len(candidates)).
		Str("method", string(req.Method)).Msg("starting parameter search")

	trials := make([]Trial, 0, len(candidates))
	for _, params := range candidates {
		if ctx.Err() != nil {
			o.log.Warn().Int("completed", len(trials)).Msg("optimization cancelled, ranking partial trials")
			break
		}

		trial, err := o.evaluate(ctx, train, test, params, req.StartOffset)
		if err != nil {
			o.log.Debug().Err(err).Interface("params", params).Msg("trial failed, skipping")
			continue
		}
		trials = append(trials, trial)
	}
	if len(trials) == 0 {
		return nil, fmt.Errorf("no trials completed")
	}

	rank(trials, req.Metric)

	result := &Result{
		Symbol:     req.Symbol,
		Method:     req.Method,
		Metric:     req.Metric,
		BestParams: trials[0].Params,
		TrainBars:  len(train),
		TestBars:   len(test),
	}
	aggregate(result, trials)

	if req.TopK > 0 && len(trials) > req.TopK {
		trials = trials[:req.TopK]
	}
	result.Trials = trials
	return result, nil
}

// evaluate runs walk-forward simulation on train and test with the same
// parameters.
func (o *Optimizer) evaluate(ctx context.Context, train, test marketdata.PriceSeries, params map[string]float64, startOffset int) (Trial, error) {
	cfg := applyParams(o.baseCfg, params)
	ensemble, err := prediction.NewDefaultEnsemble(cfg)
	if err != nil {
		return Trial{}, err
	}

	trainMetrics, err := o.simulate(ctx, train, ensemble, startOffset)
	if err != nil {
		return Trial{}, fmt.Errorf("train segment: %w", err)
	}
	testMetrics, err := o.simulate(ctx, test, ensemble, startOffset)
	if err != nil {
		return Trial{}, fmt.Errorf("test segment: %w", err)
	}

	return Trial{
		Params:       params,
		Train:        trainMetrics,
		Test:         testMetrics,
		OverfitScore: overfitScore(trainMetrics.ReturnPct, testMetrics.ReturnPct),
	}, nil
}

func (o *Optimizer) simulate(ctx context.Context, series marketdata.PriceSeries, model prediction.Model, startOffset int) (SegmentMetrics, error) {
	signals, err := backtest.WalkForward(ctx, series, model, startOffset)
	if err != nil {
		return SegmentMetrics{}, err
	}
	result, err := backtest.Simulate("", series, signals, startOffset, o.simCfg)
	if err != nil {
		return SegmentMetrics{}, err
	}
	return SegmentMetrics{
		ReturnPct:   result.TotalReturnPct,
		SharpeRatio: result.SharpeRatio,
		DrawdownPct: result.MaxDrawdownPct,
		Trades:      result.TotalTrades,
	}, nil
}

// overfitScore measures train-vs-test degradation. A train return near
// zero carries no evidence either way, so it scores zero rather than
// dividing by it.
func overfitScore(trainReturn, testReturn float64) float64 {
	if math.Abs(trainReturn) < 1e-6 {
		return 0
	}
	score := (trainReturn - testReturn) / trainReturn
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return score
}

// candidates expands the grid per the requested method.
func (o *Optimizer) candidates(req Request) []map[string]float64 {
	names := make([]string, 0, len(req.Grid))
	for name := range req.Grid {
		names = append(names, name)
	}
	sort.Strings(names)

	if req.Method == MethodRandom {
		out := make([]map[string]float64, req.Samples)
		for i := range out {
			params := make(map[string]float64, len(names))
			for _, name := range names {
				values := req.Grid[name]
				params[name] = values[o.rng.Intn(len(values))]
			}
			out[i] = params
		}
		return out
	}

	// Full cartesian product.
	out := []map[string]float64{{}}
	for _, name := range names {
		next := make([]map[string]float64, 0, len(out)*len(req.Grid[name]))
		for _, partial := range out {
			for _, v := range req.Grid[name] {
				params := make(map[string]float64, len(partial)+1)
				for k, pv := range partial {
					params[k] = pv
				}
				params[name] = v
				next = append(next, params)
			}
		}
		out = next
	}
	return out
}

func applyParams(base config.PredictionConfig, params map[string]float64) config.PredictionConfig {
	cfg := base
	for name, v := range params {
		switch name {
		case ParamSignalThreshold:
			cfg.SignalThreshold = v
		case ParamMomentumThreshold:
			cfg.MomentumThreshold = v
		case ParamTrendWeight:
			cfg.TrendWeight = v
		case ParamTechnicalWeight:
			cfg.TechnicalWeight = v
		case ParamMomentumWeight:
			cfg.MomentumWeight = v
		}
	}
	return cfg
}

func knownParam(name string) bool {
	switch name {
	case ParamSignalThreshold, ParamMomentumThreshold, ParamTrendWeight, ParamTechnicalWeight, ParamMomentumWeight:
		return true
	default:
		return false
	}
}

// rank orders trials best-first by the out-of-sample objective.
func rank(trials []Trial, metric Metric) {
	sort.SliceStable(trials, func(i, j int) bool {
		switch metric {
		case MetricSharpe:
			return trials[i].Test.SharpeRatio > trials[j].Test.SharpeRatio
		case MetricDrawdown:
			return trials[i].Test.DrawdownPct < trials[j].Test.DrawdownPct
		default:
			return trials[i].Test.ReturnPct > trials[j].Test.ReturnPct
		}
	})
}

func aggregate(result *Result, trials []Trial) {
	best := func(cur, v float64) float64 { return math.Max(cur, v) }
	result.BestTrainReturn = trials[0].Train.ReturnPct
	result.BestTestReturn = trials[0].Test.ReturnPct

	var sumTrain, sumTest float64
	for _, t := range trials {
		sumTrain += t.Train.ReturnPct
		sumTest += t.Test.ReturnPct
		result.BestTrainReturn = best(result.BestTrainReturn, t.Train.ReturnPct)
		result.BestTestReturn = best(result.BestTestReturn, t.Test.ReturnPct)
		if t.OverfitScore < lowOverfitCutoff {
			result.LowOverfitCount++
		}
	}
	result.MeanTrainReturn = sumTrain / float64(len(trials))
	result.MeanTestReturn = sumTest / float64(len(trials))
}
