package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/spotctl/internal/models"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = fmt.Errorf("store: not found")

// ErrConflict is returned when an update's optimistic-concurrency guard does
// not match the stored row.
var ErrConflict = fmt.Errorf("store: conflict")

// InsertProposal inserts p, assigning an id and timestamps, and returns the
// inserted copy.
func (s *Store) InsertProposal(p *models.Proposal) (*models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := p.Copy()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	s.proposals[cp.ID] = cp.Copy()
	if err := s.persist("trade_proposals", s.proposals); err != nil {
		return nil, err
	}
	return cp.Copy(), nil
}

// GetProposal returns a deep copy of the proposal with the given id.
func (s *Store) GetProposal(id string) (*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Copy(), nil
}

// ListProposalsByStatus returns proposals matching status, ordered by
// CreatedAt ascending (the order spec's execute_all_approved relies on).
func (s *Store) ListProposalsByStatus(status models.ProposalStatus) ([]*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Proposal
	for _, p := range s.proposals {
		if p.Status == status {
			out = append(out, p.Copy())
		}
	}
	sortProposalsByCreatedAt(out)
	return out, nil
}

// ListAllProposals returns every proposal regardless of status, ordered by
// CreatedAt ascending — backs the operator HTTP surface's GET /proposals
// list-all view.
func (s *Store) ListAllProposals() ([]*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		out = append(out, p.Copy())
	}
	sortProposalsByCreatedAt(out)
	return out, nil
}

// ListProposalsWithBrokerOrder returns proposals that have a non-empty
// BrokerOrderID and a status in the given set — used by the reconciler to
// build its local-id map (spec §4.7 step 3).
func (s *Store) ListProposalsWithBrokerOrder(statuses ...models.ProposalStatus) ([]*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[models.ProposalStatus]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}
	var out []*models.Proposal
	for _, p := range s.proposals {
		if p.BrokerOrderID != "" && allowed[p.Status] {
			out = append(out, p.Copy())
		}
	}
	sortProposalsByCreatedAt(out)
	return out, nil
}

// UpdateProposal applies mutate to the stored proposal if its current status
// equals expectedStatus (optimistic concurrency per spec §4.5), persists the
// result, and returns the updated copy. If the stored status has moved on,
// ErrConflict is returned and the row is left untouched.
func (s *Store) UpdateProposal(id string, expectedStatus models.ProposalStatus, mutate func(*models.Proposal) error) (*models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != expectedStatus {
		return nil, fmt.Errorf("%w: proposal %s is %s, expected %s", ErrConflict, id, p.Status, expectedStatus)
	}

	cp := p.Copy()
	if err := mutate(cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now().UTC()

	s.proposals[id] = cp.Copy()
	if err := s.persist("trade_proposals", s.proposals); err != nil {
		return nil, err
	}
	return cp.Copy(), nil
}

func sortProposalsByCreatedAt(ps []*models.Proposal) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].CreatedAt.Before(ps[j].CreatedAt) })
}
