package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/proposal"
	"github.com/eddiefleurent/spotctl/internal/store"
)

// handleListProposals returns every proposal, or only those in the status
// named by ?status= when that query parameter is given.
func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" {
		proposals, err := s.cfg.Store.ListProposalsByStatus(models.ProposalStatus(status))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, proposals)
		return
	}
	proposals, err := s.cfg.Store.ListAllProposals()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, proposals)
}

type createProposalRequest struct {
	Side      string `json:"side"`
	Symbol    string `json:"symbol"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price,omitempty"`
	OrderType string `json:"order_type"`
	Notional  string `json:"notional"`
	Strategy  string `json:"strategy"`
	Reasoning string `json:"reasoning"`
	Interval  string `json:"interval"`
}

// handleCreateProposal manually creates a proposal — the same entry point
// the signal generator uses, exposed for an operator's own trade ideas.
func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quantity")
		return
	}
	notional, err := decimal.NewFromString(req.Notional)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notional")
		return
	}
	var price *decimal.Decimal
	if req.Price != "" {
		p, err := decimal.NewFromString(req.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid price")
			return
		}
		price = &p
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = "manual"
	}

	created, err := s.cfg.Engine.Create(proposal.CreateInput{
		Side:      models.Side(req.Side),
		Symbol:    req.Symbol,
		Quantity:  quantity,
		Price:     price,
		OrderType: models.OrderType(req.OrderType),
		Notional:  notional,
		Strategy:  strategy,
		Reasoning: req.Reasoning,
		Interval:  req.Interval,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetProposal inspects one proposal by id.
func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.cfg.Store.GetProposal(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "proposal not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type patchProposalRequest struct {
	Action string `json:"action"` // "approve" or "reject"
	Reason string `json:"reason,omitempty"`
}

// handlePatchProposal is the manual approve/reject operator action spec
// §6's `/proposals/{id}` PATCH row names.
func (s *Server) handlePatchProposal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req patchProposalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		updated *models.Proposal
		err     error
	)
	switch req.Action {
	case "approve":
		updated, err = s.cfg.Engine.Approve(id)
	case "reject":
		updated, err = s.cfg.Engine.Reject(id, req.Reason)
	default:
		writeError(w, http.StatusBadRequest, "action must be \"approve\" or \"reject\"")
		return
	}
	if errors.Is(err, proposal.ErrNotValidated) {
		writeError(w, http.StatusConflict, err.Error())
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
