// Package proposal implements the Proposal Engine (C5): the orchestration
// around models.ProposalStateMachine that turns a proposed trade into a
// validated, approved-or-rejected record, and exposes the explicit operator
// actions (approve/reject/retry/cancel) spec §4.5 requires.
package proposal

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/risk"
	"github.com/eddiefleurent/spotctl/internal/store"
)

// ErrNotValidated is returned when Approve/Reject is called on a proposal
// that never went through validation.
var ErrNotValidated = errors.New("proposal: not in validated status")

// Engine is the Proposal Engine (C5).
type Engine struct {
	store *store.Store
	gate  *risk.Gate
}

// NewEngine constructs an Engine.
func NewEngine(s *store.Store, gate *risk.Gate) *Engine {
	return &Engine{store: s, gate: gate}
}

// CreateInput is what a caller supplies to propose a new trade.
type CreateInput struct {
	Side      models.Side
	Symbol    string
	Quantity  decimal.Decimal
	Price     *decimal.Decimal
	OrderType models.OrderType
	Notional  decimal.Decimal
	Strategy  string
	Reasoning string
	Interval  string
}

// Create inserts a new draft proposal, then immediately validates it — spec
// §4.5 treats draft as a transient state, not one a caller stops at.
func (e *Engine) Create(in CreateInput) (*models.Proposal, error) {
	p := &models.Proposal{
		Side:      in.Side,
		Symbol:    in.Symbol,
		Quantity:  in.Quantity,
		Price:     in.Price,
		OrderType: in.OrderType,
		Notional:  in.Notional,
		Status:    models.ProposalDraft,
		Strategy:  in.Strategy,
		Reasoning: in.Reasoning,
	}
	inserted, err := e.store.InsertProposal(p)
	if err != nil {
		return nil, err
	}
	return e.Validate(inserted.ID, in.Interval)
}

// Validate runs the Risk Gate against a draft proposal, records the checks
// and risk_score, and transitions it to validated, then immediately to
// approved or rejected depending on the verdict — mirroring the Risk
// Gate's all-in-one validate_proposal call in the python original, which
// never leaves a proposal sitting in a bare "validated but undecided" state.
func (e *Engine) Validate(id, interval string) (*models.Proposal, error) {
	current, err := e.store.GetProposal(id)
	if err != nil {
		return nil, err
	}

	notional, _ := current.Notional.Float64()
	price, _ := current.Quantity.Float64()
	result, err := e.gate.Validate(risk.Input{
		Symbol:       current.Symbol,
		Side:         string(current.Side),
		Quantity:     price,
		Notional:     notional,
		CurrentPrice: notional / maxOne(price),
		ProposalID:   current.ID,
		Interval:     interval,
	})
	if err != nil {
		return nil, err
	}

	updated, err := e.store.UpdateProposal(id, models.ProposalDraft, func(p *models.Proposal) error {
		if err := p.Transition(models.ProposalValidated, "validated"); err != nil {
			return err
		}
		p.Checks = toCheckResults(result.Checks)
		p.RiskScore = decimal.NewFromFloat(result.RiskScore)
		p.AutoApproved = result.AutoApproved

		if result.Approved {
			condition := "manual_approve"
			if result.AutoApproved {
				condition = "auto_approved"
			}
			if err := p.Transition(models.ProposalApproved, condition); err != nil {
				return err
			}
			now := time.Now().UTC()
			p.ApprovedAt = &now
		} else {
			if err := p.Transition(models.ProposalRejected, "risk_gate_failed"); err != nil {
				return err
			}
			p.RejectReason = result.RejectionReason
			now := time.Now().UTC()
			p.RejectedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Approve manually approves a proposal whose status is validated — spec
// §4.5's "operator approved" edge. A proposal the gate rejected is in
// rejected status and cannot be approved (ErrNotValidated).
func (e *Engine) Approve(id string) (*models.Proposal, error) {
	updated, err := e.store.UpdateProposal(id, models.ProposalValidated, func(p *models.Proposal) error {
		if err := p.Transition(models.ProposalApproved, "manual_approve"); err != nil {
			return err
		}
		now := time.Now().UTC()
		p.ApprovedAt = &now
		return nil
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrNotValidated
	}
	return updated, err
}

// Reject manually rejects a validated proposal.
func (e *Engine) Reject(id, reason string) (*models.Proposal, error) {
	updated, err := e.store.UpdateProposal(id, models.ProposalValidated, func(p *models.Proposal) error {
		if err := p.Transition(models.ProposalRejected, "manual_reject"); err != nil {
			return err
		}
		p.RejectReason = reason
		now := time.Now().UTC()
		p.RejectedAt = &now
		return nil
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrNotValidated
	}
	return updated, err
}

// Retry moves a dead-lettered proposal back to approved for re-execution,
// resetting the retry budget and clearing the prior error (spec §4.5's
// dead-letter-retry edge case).
func (e *Engine) Retry(id string) (*models.Proposal, error) {
	return e.store.UpdateProposal(id, models.ProposalDeadLetter, func(p *models.Proposal) error {
		if err := p.Transition(models.ProposalApproved, "manual_retry"); err != nil {
			return err
		}
		p.RetryCount = 0
		p.ErrorMessage = ""
		return nil
	})
}

// Cancel moves a dead-lettered proposal to cancelled, taking it out of the
// retry pool permanently.
func (e *Engine) Cancel(id string) (*models.Proposal, error) {
	return e.store.UpdateProposal(id, models.ProposalDeadLetter, func(p *models.Proposal) error {
		return p.Transition(models.ProposalCancelled, "manual_cancel")
	})
}

// MarkExecuted transitions an approved proposal to executed, recording the
// broker fill. Called by the Executor after a successful order.
func (e *Engine) MarkExecuted(id, brokerOrderID string, executedPrice, executedQty decimal.Decimal, commission decimal.Decimal, commissionAsset string) (*models.Proposal, error) {
	now := time.Now().UTC()
	return e.store.UpdateProposal(id, models.ProposalApproved, func(p *models.Proposal) error {
		if err := p.Transition(models.ProposalExecuted, "order_filled"); err != nil {
			return err
		}
		p.BrokerOrderID = brokerOrderID
		p.ExecutedPrice = &executedPrice
		p.ExecutedQuantity = &executedQty
		p.Commission = commission
		p.CommissionAsset = commissionAsset
		p.ExecutedAt = &now
		return nil
	})
}

// MarkErrored transitions an approved proposal to error after a failed
// execution attempt. If retries are exhausted per the state machine's
// configured limit, the caller should follow up with Escalate.
func (e *Engine) MarkErrored(id, errMsg string) (*models.Proposal, error) {
	return e.store.UpdateProposal(id, models.ProposalApproved, func(p *models.Proposal) error {
		if err := p.Transition(models.ProposalError, "execution_failed"); err != nil {
			return err
		}
		p.ErrorMessage = errMsg
		p.RetryCount++
		return nil
	})
}

// Escalate moves an errored proposal to dead_letter, either because the
// retry budget (default 3, spec §7) is exhausted or an operator escalated
// explicitly.
func (e *Engine) Escalate(id string, exhausted bool) (*models.Proposal, error) {
	condition := "escalated"
	if exhausted {
		condition = "retry_exhausted"
	}
	return e.store.UpdateProposal(id, models.ProposalError, func(p *models.Proposal) error {
		return p.Transition(models.ProposalDeadLetter, condition)
	})
}

func toCheckResults(checks []risk.RiskCheck) []models.CheckResult {
	out := make([]models.CheckResult, len(checks))
	for i, c := range checks {
		v := decimal.NewFromFloat(c.Value)
		l := decimal.NewFromFloat(c.Limit)
		out[i] = models.CheckResult{
			Name:    c.Name,
			Passed:  c.Passed,
			Message: c.Message,
			Value:   &v,
			Limit:   &l,
		}
	}
	return out
}

func maxOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
