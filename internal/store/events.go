package store

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/spotctl/internal/models"
)

// AppendRiskEvent appends an audit entry. Risk events are append-only: there
// is no update or delete path.
func (s *Store) AppendRiskEvent(e models.RiskEvent) (models.RiskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()
	s.riskEvents = append(s.riskEvents, &e)
	if err := s.persist("risk_events", s.riskEvents); err != nil {
		return models.RiskEvent{}, err
	}
	return e, nil
}

// ListRiskEvents returns the most recent `limit` risk events, newest first,
// or all of them if limit <= 0.
func (s *Store) ListRiskEvents(limit int) ([]models.RiskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.RiskEvent, len(s.riskEvents))
	for i, e := range s.riskEvents {
		out[i] = *e
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InsertReconciliationRun inserts a new run in status=running and returns it
// with an assigned id.
func (s *Store) InsertReconciliationRun(r models.ReconciliationRun) (models.ReconciliationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.reconRuns[r.ID] = &r
	if err := s.persist("reconciliation_runs", s.reconRuns); err != nil {
		return models.ReconciliationRun{}, err
	}
	return r, nil
}

// UpdateReconciliationRun overwrites the stored run (used once, at run
// completion, to attach counts/divergences/status/duration).
func (s *Store) UpdateReconciliationRun(r models.ReconciliationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reconRuns[r.ID]; !ok {
		return ErrNotFound
	}
	s.reconRuns[r.ID] = &r
	return s.persist("reconciliation_runs", s.reconRuns)
}

// GetReconciliationRun returns one run by id.
func (s *Store) GetReconciliationRun(id string) (*models.ReconciliationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reconRuns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// LatestReconciliationRun returns the most recently started run, or
// (nil, false) if none has ever run.
func (s *Store) LatestReconciliationRun() (*models.ReconciliationRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.ReconciliationRun
	for _, r := range s.reconRuns {
		if latest == nil || r.StartedAt.After(latest.StartedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, false
	}
	cp := *latest
	return &cp, true
}

// ListReconciliationRuns returns the most recent `limit` runs, newest first.
func (s *Store) ListReconciliationRuns(limit int) ([]models.ReconciliationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ReconciliationRun, 0, len(s.reconRuns))
	for _, r := range s.reconRuns {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InsertBacktestResult stores one backtester run result (external
// collaborator per spec §1).
func (s *Store) InsertBacktestResult(r models.BacktestResult) (models.BacktestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()
	s.backtests[r.ID] = &r
	if err := s.persist("backtest_results", s.backtests); err != nil {
		return models.BacktestResult{}, err
	}
	return r, nil
}

// GetBacktestResult returns one stored backtest result by id.
func (s *Store) GetBacktestResult(id string) (*models.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.backtests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ListBacktestResults returns all stored results, newest first.
func (s *Store) ListBacktestResults() ([]models.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BacktestResult, 0, len(s.backtests))
	for _, r := range s.backtests {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
