package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eddiefleurent/spotctl/internal/backtest"
	"github.com/eddiefleurent/spotctl/internal/config"
	"github.com/eddiefleurent/spotctl/internal/store"
)

type backtestRunRequest struct {
	Strategy string `json:"strategy"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	FastN    int    `json:"fast_n,omitempty"`
	SlowN    int    `json:"slow_n,omitempty"`
}

// handleBacktestRun proxies to the one real Backtester implementation — a
// simple vectorized replay over stored klines, the external-collaborator
// level spec §1's non-goals permit.
func (s *Server) handleBacktestRun(w http.ResponseWriter, r *http.Request) {
	var req backtestRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.cfg.Backtester.Run(backtest.RunRequest{
		Strategy: req.Strategy, Symbol: req.Symbol, Interval: req.Interval,
		FastN: req.FastN, SlowN: req.SlowN,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleBacktestResults lists every stored backtest result.
func (s *Server) handleBacktestResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.cfg.Backtester.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleBacktestResult fetches one stored result by id.
func (s *Server) handleBacktestResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.cfg.Backtester.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "backtest result not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleBacktestStrategies lists the vectorized replay strategies available.
func (s *Server) handleBacktestStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, backtest.Strategies)
}

// handleBacktestPresets serves the optional on-disk strategy presets (spec
// §6's backtester surface) — an empty list, not an error, when no preset
// file is configured.
func (s *Server) handleBacktestPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := config.LoadPresets(s.cfg.PresetPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, presets.Presets)
}

type backtestBenchmarkRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// handleBacktestBenchmark runs the buy_and_hold strategy as the benchmark
// every other strategy's result is compared against.
func (s *Server) handleBacktestBenchmark(w http.ResponseWriter, r *http.Request) {
	var req backtestBenchmarkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.cfg.Backtester.Run(backtest.RunRequest{
		Strategy: "buy_and_hold", Symbol: req.Symbol, Interval: req.Interval,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
