package api

import (
	"net/http"
	"time"

	"github.com/eddiefleurent/spotctl/internal/models"
)

type healthResponse struct {
	Status             string  `json:"status"`
	AccountBalanceUSDT string  `json:"account_balance_usdt,omitempty"`
	DailyPnL           string  `json:"daily_pnl,omitempty"`
	DeadLetterCount    int     `json:"dead_letter_count"`
	LastReconAgeSecs   float64 `json:"last_reconciliation_age_seconds,omitempty"`
	BrokerReachable    bool    `json:"broker_reachable"`
}

// handleHealth reports component checks plus the key metrics spec §6
// names: balance, daily P&L, dead-letter count, last-recon staleness. It
// never requires auth and degrades gracefully — a broker outage is
// reported as a field, not a 5xx, since /health must stay up to diagnose
// exactly that outage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	if deadLetters, err := s.cfg.Store.ListProposalsByStatus(models.ProposalDeadLetter); err == nil {
		resp.DeadLetterCount = len(deadLetters)
	}

	today := time.Now().UTC().Format("2006-01-02")
	if snap, ok := s.cfg.Store.GetAccountSnapshot(today); ok {
		resp.AccountBalanceUSDT = snap.TotalBalance.StringFixed(2)
		resp.DailyPnL = snap.DailyPnL.StringFixed(2)
	}

	if run, ok := s.cfg.Store.LatestReconciliationRun(); ok && run.FinishedAt != nil {
		resp.LastReconAgeSecs = time.Since(*run.FinishedAt).Seconds()
	}

	if s.cfg.Broker != nil {
		if _, err := s.cfg.Broker.GetAccountCtx(r.Context()); err == nil {
			resp.BrokerReachable = true
		}
	}
	if !resp.BrokerReachable {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}
