package api

import (
	"net/http"

	"github.com/eddiefleurent/spotctl/internal/executor"
)

type executeRequest struct {
	ProposalID string `json:"proposal_id,omitempty"`
}

type executeResponse struct {
	Results []executor.Result `json:"results"`
}

// handleExecute executes one proposal by id, or every approved proposal
// when no id is given (spec §6's "execute one by id, or all approved").
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if req.ProposalID != "" {
		result := s.cfg.Executor.Execute(r.Context(), req.ProposalID)
		writeJSON(w, http.StatusOK, executeResponse{Results: []executor.Result{result}})
		return
	}

	results, err := s.cfg.Executor.ExecuteAllApproved(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Results: results})
}
