package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"overnight-trading-bot/internal/backtest"
	"overnight-trading-bot/internal/marketdata"
	"overnight-trading-bot/internal/optimizer"
	"overnight-trading-bot/internal/prediction"
)

// handleHealth reports process and dependency health
// GET /health
func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{"status": "ok"}
	if s.repo != nil {
		if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
			health["status"] = "degraded"
			health["database"] = err.Error()
		} else {
			health["database"] = "ok"
		}
	}
	c.JSON(http.StatusOK, health)
}

// handleSentiment computes a fresh sentiment snapshot
// GET /api/sentiment
func (s *Server) handleSentiment(c *gin.Context) {
	snapshot := s.estimator.Estimate(c.Request.Context())
	successResponse(c, snapshot)
}

// handleScan scans one sector, or the whole universe when none is named
// POST /api/scan
// Body: {"sector": "mining", "top_n": 5}
func (s *Server) handleScan(c *gin.Context) {
	var req struct {
		Sector string `json:"sector"`
		TopN   int    `json:"top_n"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	if req.Sector != "" {
		results, summary, err := s.scanner.ScanSector(ctx, req.Sector, req.TopN)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		successResponse(c, gin.H{"results": results, "summary": summary})
		return
	}

	results, summary, err := s.scanner.ScanAll(ctx, req.TopN)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, gin.H{"results": results, "summary": summary})
}

// handleNightly triggers a full nightly pipeline run inline
// POST /api/nightly
func (s *Server) handleNightly(c *gin.Context) {
	report, err := s.pipeline.RunNightly(c.Request.Context())
	if report != nil {
		s.SetLastReport(report)
	}
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, report)
}

// handleBacktest replays a model over history and simulates the trades
// POST /api/backtest
// Body: {"symbol": "BHP.AX", "period": "1y", "model": "ensemble", "initial_capital": 10000}
func (s *Server) handleBacktest(c *gin.Context) {
	var req struct {
		Symbol         string  `json:"symbol" binding:"required"`
		Period         string  `json:"period"`
		Model          string  `json:"model"`
		InitialCapital float64 `json:"initial_capital"`
		CommissionRate float64 `json:"commission_rate"`
		SlippageRate   float64 `json:"slippage_rate"`
		MaxPositionPct float64 `json:"max_position_pct"`
		StartOffset    int     `json:"start_offset"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	period := marketdata.Period(req.Period)
	if req.Period == "" {
		period = marketdata.Period1Y
	}
	if err := marketdata.ValidatePeriod(period); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	model, err := prediction.NewModel(req.Model, s.cfg.PredictionConfig)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	simCfg := s.simConfig(req.InitialCapital, req.CommissionRate, req.SlippageRate, req.MaxPositionPct)
	startOffset := req.StartOffset
	if startOffset <= 0 {
		startOffset = s.cfg.SimulatorConfig.StartOffset
	}

	ctx := c.Request.Context()
	series, ok := s.fetcher.History(ctx, req.Symbol, period)
	if !ok {
		errorResponse(c, http.StatusServiceUnavailable, "no data available for "+req.Symbol+" right now")
		return
	}
	if startOffset >= len(series) {
		errorResponse(c, http.StatusBadRequest, "not enough history for the requested start offset")
		return
	}

	signals, err := backtest.WalkForward(ctx, series, model, startOffset)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	result, err := backtest.Simulate(req.Symbol, series, signals, startOffset, simCfg)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	if s.repo != nil {
		if err := s.repo.SaveBacktestResult(ctx, string(period), result); err != nil {
			s.log.Error().Err(err).Str("symbol", req.Symbol).Msg("failed to persist backtest result")
		}
	}
	successResponse(c, result)
}

// handleOptimize grid/random-searches prediction parameters
// POST /api/optimize
// Body: {"symbol": "BHP.AX", "period": "2y", "grid": {"signal_threshold": [0.2, 0.3, 0.4]},
//        "split_ratio": 0.75, "method": "grid", "metric": "return"}
func (s *Server) handleOptimize(c *gin.Context) {
	var req struct {
		Symbol     string               `json:"symbol" binding:"required"`
		Period     string               `json:"period"`
		Grid       map[string][]float64 `json:"grid" binding:"required"`
		SplitRatio float64              `json:"split_ratio"`
		Method     string               `json:"method"`
		Metric     string               `json:"metric"`
		Samples    int                  `json:"samples"`
		TopK       int                  `json:"top_k"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	period := marketdata.Period(req.Period)
	if req.Period == "" {
		period = marketdata.Period2Y
	}
	if err := marketdata.ValidatePeriod(period); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	optReq := optimizer.Request{
		Symbol:      req.Symbol,
		Grid:        optimizer.Grid(req.Grid),
		SplitRatio:  req.SplitRatio,
		Method:      optimizer.Method(req.Method),
		Metric:      optimizer.Metric(req.Metric),
		Samples:     req.Samples,
		TopK:        req.TopK,
		StartOffset: s.cfg.SimulatorConfig.StartOffset,
	}
	if optReq.SplitRatio == 0 {
		optReq.SplitRatio = 0.75
	}
	if optReq.Method == "" {
		optReq.Method = optimizer.MethodGrid
	}
	if optReq.Metric == "" {
		optReq.Metric = optimizer.MetricReturn
	}
	if optReq.TopK == 0 {
		optReq.TopK = 10
	}

	ctx := c.Request.Context()
	series, ok := s.fetcher.History(ctx, req.Symbol, period)
	if !ok {
		errorResponse(c, http.StatusServiceUnavailable, "no data available for "+req.Symbol+" right now")
		return
	}

	result, err := s.optimizer.Optimize(ctx, series, optReq)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	successResponse(c, result)
}

// handleLatestReport serves the most recent nightly report
// GET /api/reports/latest
func (s *Server) handleLatestReport(c *gin.Context) {
	report := s.getLastReport()
	if report == nil {
		errorResponse(c, http.StatusNotFound, "no nightly run has completed yet")
		return
	}
	successResponse(c, report)
}

func (s *Server) simConfig(capital, commission, slippage, maxPct float64) backtest.SimConfig {
	cfg := backtest.SimConfig{
		InitialCapital: s.cfg.SimulatorConfig.InitialCapital,
		CommissionRate: s.cfg.SimulatorConfig.CommissionRate,
		SlippageRate:   s.cfg.SimulatorConfig.SlippageRate,
		MaxPositionPct: s.cfg.SimulatorConfig.MaxPositionPct,
	}
	if capital > 0 {
		cfg.InitialCapital = capital
	}
	if commission > 0 {
		cfg.CommissionRate = commission
	}
	if slippage > 0 {
		cfg.SlippageRate = slippage
	}
	if maxPct > 0 && maxPct <= 1 {
		cfg.MaxPositionPct = maxPct
	}
	return cfg
}
