package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/store"
)

// handleListDeadLetters lists every proposal currently in dead_letter.
func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.cfg.Store.ListProposalsByStatus(models.ProposalDeadLetter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, proposals)
}

// handleRetryDeadLetter resets a dead-lettered proposal back to approved
// (retry_count=0, error cleared per spec §4.5) and immediately invokes the
// executor, matching the spec's dead-letter-retry edge case.
func (s *Server) handleRetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	updated, err := s.cfg.Engine.Retry(id)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusConflict, "proposal is not in dead_letter")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "proposal not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.cfg.Executor.Execute(r.Context(), updated.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"proposal": updated, "execution": result})
}

// handleCancelDeadLetter moves a dead-lettered proposal to cancelled,
// removing it from the retry pool permanently.
func (s *Server) handleCancelDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	updated, err := s.cfg.Engine.Cancel(id)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusConflict, "proposal is not in dead_letter")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "proposal not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
