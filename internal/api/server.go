// Package api implements the operator HTTP surface (spec §6): the
// chi-router JSON API an operator or ops tool drives the control plane
// through. Grounded on internal/dashboard/server.go's chi.Mux + middleware
// stack + bearer-token idiom — the teacher's HTML templates and embedded
// static assets have no equivalent here, since spec's surface is JSON-only.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/spotctl/internal/backtest"
	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/executor"
	"github.com/eddiefleurent/spotctl/internal/orchestrator"
	"github.com/eddiefleurent/spotctl/internal/proposal"
	"github.com/eddiefleurent/spotctl/internal/reconcile"
	"github.com/eddiefleurent/spotctl/internal/store"
)

// DailyReporter is the subset of *orchestrator.Orchestrator the report
// endpoint needs, named separately so tests can fake it without building a
// whole Orchestrator.
type DailyReporter interface {
	RunDailyReportNow(ctx context.Context)
}

// Config carries everything the Server needs to wire its handlers.
type Config struct {
	Addr          string
	SharedSecret  string
	Store         *store.Store
	Broker        broker.BrokerCtx
	Engine        *proposal.Engine
	Executor      *executor.Executor
	Reconciler    *reconcile.Reconciler
	Backtester    *backtest.Runner
	Switches      *orchestrator.Switches
	DailyReporter DailyReporter
	PresetPath    string
	Logger        *logrus.Logger
}

// Server is the operator HTTP surface.
type Server struct {
	cfg    Config
	router *chi.Mux
	http   *http.Server
	logger *logrus.Logger
}

// NewServer constructs a Server and wires its routes.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{cfg: cfg, router: chi.NewRouter(), logger: logger}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		MaxAge:           300,
	}))

	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/proposals", s.handleListProposals)
		r.Post("/proposals", s.handleCreateProposal)
		r.Get("/proposals/{id}", s.handleGetProposal)
		r.Patch("/proposals/{id}", s.handlePatchProposal)

		r.Post("/execute", s.handleExecute)

		r.Get("/portfolio", s.handlePortfolio)

		r.Get("/klines/{symbol}", s.handleGetKlines)
		r.Post("/klines/backfill", s.handleBackfillKlines)
		r.Get("/klines/status/all", s.handleKlinesStatus)

		r.Get("/indicators/{symbol}", s.handleIndicators)
		r.Get("/indicators/{symbol}/stored", s.handleIndicators)
		r.Get("/analysis/{symbol}", s.handleAnalysis)
		r.Get("/analysis/{symbol}/entropy", s.handleAnalysisEntropy)

		r.Post("/backtest/run", s.handleBacktestRun)
		r.Get("/backtest/results", s.handleBacktestResults)
		r.Get("/backtest/results/{id}", s.handleBacktestResult)
		r.Get("/backtest/strategies", s.handleBacktestStrategies)
		r.Get("/backtest/presets", s.handleBacktestPresets)
		r.Post("/backtest/benchmark", s.handleBacktestBenchmark)

		r.Get("/quant/status", s.handleQuantStatus)
		r.Get("/quant/performance", s.handleQuantPerformance)
		r.Get("/quant/health", s.handleQuantHealth)
		r.Get("/quant/snapshot/{symbol}", s.handleQuantSnapshot)

		r.Get("/dead-letters", s.handleListDeadLetters)
		r.Post("/dead-letters/{id}/retry", s.handleRetryDeadLetter)
		r.Post("/dead-letters/{id}/cancel", s.handleCancelDeadLetter)

		r.Post("/reconciliation/run", s.handleReconciliationRun)
		r.Get("/reconciliation/latest", s.handleReconciliationLatest)
		r.Get("/reconciliation/history", s.handleReconciliationHistory)
		r.Post("/reports/daily", s.handleReportsDaily)
	})
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.Status(),
			"duration": time.Since(start),
		}).Info("http request")
	})
}

// authMiddleware enforces a bearer shared-secret on every route it guards,
// generalized from dashboard/server.go's X-Auth-Token header check to the
// standard Authorization: Bearer convention.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if !s.isValidToken(token) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func (s *Server) isValidToken(token string) bool {
	secret := s.cfg.SharedSecret
	if len(token) != len(secret) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// Start runs the HTTP server, blocking until it exits or Shutdown is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Infof("starting operator API on %s", s.cfg.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
