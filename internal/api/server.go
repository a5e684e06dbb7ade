// Package api exposes the pipeline invocation surface over HTTP. It hands
// out plain data structures; rendering and delivery belong to whatever
// consumes them.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"overnight-trading-bot/config"
	"overnight-trading-bot/internal/database"
	"overnight-trading-bot/internal/fetcher"
	"overnight-trading-bot/internal/optimizer"
	"overnight-trading-bot/internal/pipeline"
	"overnight-trading-bot/internal/scanner"
	"overnight-trading-bot/internal/sentiment"
)

// Server hosts the HTTP API.
type Server struct {
	cfg       *config.Config
	fetcher   *fetcher.Fetcher
	estimator *sentiment.Estimator
	scanner   *scanner.Scanner
	pipeline  *pipeline.Pipeline
	optimizer *optimizer.Optimizer
	repo      *database.Repository // nil when persistence is disabled
	log       zerolog.Logger

	mu         sync.RWMutex
	lastReport *pipeline.Report

	httpServer *http.Server
}

// NewServer wires the API over the pipeline components. repo may be nil.
func NewServer(
	cfg *config.Config,
	f *fetcher.Fetcher,
	estimator *sentiment.Estimator,
	sc *scanner.Scanner,
	pl *pipeline.Pipeline,
	opt *optimizer.Optimizer,
	repo *database.Repository,
	log zerolog.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		fetcher:   f,
		estimator: estimator,
		scanner:   sc,
		pipeline:  pl,
		optimizer: opt,
		repo:      repo,
		log:       log.With().Str("component", "api").Logger(),
	}
}

// SetLastReport records the most recent nightly report for serving.
func (s *Server) SetLastReport(report *pipeline.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReport = report
}

func (s *Server) getLastReport() *pipeline.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/sentiment", s.handleSentiment)
		apiGroup.POST("/scan", s.handleScan)
		apiGroup.POST("/nightly", s.handleNightly)
		apiGroup.POST("/backtest", s.handleBacktest)
		apiGroup.POST("/optimize", s.handleOptimize)
		apiGroup.GET("/reports/latest", s.handleLatestReport)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.ServerConfig.Host, s.cfg.ServerConfig.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // backtests and optimizations run inline
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}
