package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleIndicators returns the latest stored technical-indicator snapshot
// for a symbol, backing both /indicators/{sym} and /indicators/{sym}/stored
// (the feature pipeline always stores before the main loop reads, so there
// is no separate "live" vs. "stored" computation path to distinguish here).
func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}
	indicators, ok := s.cfg.Store.GetIndicators(symbol, interval)
	if !ok {
		writeError(w, http.StatusNotFound, "no indicators stored for symbol/interval")
		return
	}
	writeJSON(w, http.StatusOK, indicators)
}

type analysisResponse struct {
	Regime *struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	} `json:"regime,omitempty"`
	SupportLevels    []string `json:"support_levels,omitempty"`
	ResistanceLevels []string `json:"resistance_levels,omitempty"`
}

// handleAnalysis returns the regime classification and S/R levels for a
// symbol — the non-entropy half of the feature pipeline's output.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}

	var resp analysisResponse
	if regime, ok := s.cfg.Store.GetRegime(symbol, interval); ok {
		confidence, _ := regime.Confidence.Float64()
		resp.Regime = &struct {
			Label      string  `json:"label"`
			Confidence float64 `json:"confidence"`
		}{Label: string(regime.Label), Confidence: confidence}
	}
	if levels, ok := s.cfg.Store.GetSRLevels(symbol, interval); ok {
		for _, v := range levels.Support {
			resp.SupportLevels = append(resp.SupportLevels, v.String())
		}
		for _, v := range levels.Resistance {
			resp.ResistanceLevels = append(resp.ResistanceLevels, v.String())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAnalysisEntropy returns the entropy-gate reading for a symbol.
func (s *Server) handleAnalysisEntropy(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}
	entropy, ok := s.cfg.Store.GetEntropy(symbol, interval)
	if !ok {
		writeError(w, http.StatusNotFound, "no entropy reading stored for symbol/interval")
		return
	}
	writeJSON(w, http.StatusOK, entropy)
}
