package api

import (
	"net/http"
	"strconv"
)

// handleReconciliationRun triggers a reconciliation pass on demand, outside
// the main loop's regular cadence.
func (s *Server) handleReconciliationRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.cfg.Reconciler.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleReconciliationLatest returns the most recent reconciliation run.
func (s *Server) handleReconciliationLatest(w http.ResponseWriter, r *http.Request) {
	run, ok := s.cfg.Store.LatestReconciliationRun()
	if !ok {
		writeError(w, http.StatusNotFound, "no reconciliation runs recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleReconciliationHistory lists recent reconciliation runs, newest
// first, bounded by an optional ?limit= (default 20).
func (s *Server) handleReconciliationHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.cfg.Store.ListReconciliationRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleReportsDaily triggers the daily report immediately, the same
// summary the cron schedule produces once per UTC day.
func (s *Server) handleReportsDaily(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DailyReporter == nil {
		writeError(w, http.StatusServiceUnavailable, "daily reporter not configured")
		return
	}
	s.cfg.DailyReporter.RunDailyReportNow(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
}
