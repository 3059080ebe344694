package api

import (
	"net/http"
	"time"

	"github.com/eddiefleurent/spotctl/internal/models"
)

type portfolioResponse struct {
	Positions []*models.Position     `json:"positions"`
	Account   *models.AccountSnapshot `json:"account,omitempty"`
}

// handlePortfolio returns the latest marked-to-market snapshot: every open
// position plus today's account rollup, both written by the orchestrator's
// portfolio-refresh main-loop step.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	positions, err := s.cfg.Store.ListOpenPositions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := portfolioResponse{Positions: positions}
	today := time.Now().UTC().Format("2006-01-02")
	if snap, ok := s.cfg.Store.GetAccountSnapshot(today); ok {
		resp.Account = snap
	}
	writeJSON(w, http.StatusOK, resp)
}
