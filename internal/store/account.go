package store

import "github.com/eddiefleurent/spotctl/internal/models"

// UpsertAccountSnapshot upserts today's snapshot, keyed by SnapshotDate — one
// row per day per spec §3.
func (s *Store) UpsertAccountSnapshot(v models.AccountSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := v
	s.snapshots[v.SnapshotDate] = &cp
	return s.persist("account_snapshots", s.snapshots)
}

// GetAccountSnapshot returns the snapshot for a given date (YYYY-MM-DD, UTC).
func (s *Store) GetAccountSnapshot(date string) (*models.AccountSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.snapshots[date]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}
