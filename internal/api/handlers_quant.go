package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type quantStatusResponse struct {
	TradingEnabled bool `json:"trading_enabled"`
	QuantEnabled   bool `json:"quant_enabled"`
}

// handleQuantStatus reports the orchestrator's live kill-switch state.
func (s *Server) handleQuantStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, quantStatusResponse{
		TradingEnabled: s.cfg.Switches.TradingEnabled(),
		QuantEnabled:   s.cfg.Switches.QuantEnabled(),
	})
}

// handleQuantPerformance returns every stored rolling performance metric.
func (s *Server) handleQuantPerformance(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.cfg.Store.ListPerformanceMetrics()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// handleQuantHealth is a narrower health check scoped to the quant
// subsystem: whether the feature pipeline is enabled and whether a
// reconciliation run has completed recently.
func (s *Server) handleQuantHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"quant_enabled": s.cfg.Switches.QuantEnabled(),
	}
	if run, ok := s.cfg.Store.LatestReconciliationRun(); ok {
		resp["last_reconciliation_status"] = run.Status
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleQuantSnapshot bundles one symbol's indicators, entropy, regime, and
// sizing recommendation — the full feature-pipeline output for that symbol.
func (s *Server) handleQuantSnapshot(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}

	snapshot := map[string]interface{}{}
	if v, ok := s.cfg.Store.GetIndicators(symbol, interval); ok {
		snapshot["indicators"] = v
	}
	if v, ok := s.cfg.Store.GetEntropy(symbol, interval); ok {
		snapshot["entropy"] = v
	}
	if v, ok := s.cfg.Store.GetRegime(symbol, interval); ok {
		snapshot["regime"] = v
	}
	if v, ok := s.cfg.Store.GetSizing(symbol); ok {
		snapshot["sizing"] = v
	}
	writeJSON(w, http.StatusOK, snapshot)
}
