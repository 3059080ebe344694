package store

import (
	"sort"

	"github.com/eddiefleurent/spotctl/internal/models"
)

// UpsertKline inserts or overwrites the kline at its natural key
// (symbol, interval, open_time), so re-ingesting the same candle is
// idempotent per spec §8.
func (s *Store) UpsertKline(k models.Kline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := k.Key()
	cp := k
	s.klines[key] = &cp
	return s.persistKlines()
}

// UpsertKlines upserts a batch in one persist, for backfill efficiency.
func (s *Store) UpsertKlines(ks []models.Kline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range ks {
		cp := k
		s.klines[k.Key()] = &cp
	}
	return s.persistKlines()
}

// klineFileEntry is the on-disk representation of one kline row: Kline's
// natural key is a struct, which encoding/json cannot use as a map key, so
// the table round-trips through a flat slice instead of a map.
type klineFileEntry struct {
	Kline models.Kline `json:"kline"`
}

func (s *Store) persistKlines() error {
	entries := make([]klineFileEntry, 0, len(s.klines))
	for _, k := range s.klines {
		entries = append(entries, klineFileEntry{Kline: *k})
	}
	return s.persist("klines_ohlcv", entries)
}

// ListKlines returns the most recent `limit` klines for (symbol, interval),
// oldest-first, or all of them if limit <= 0.
func (s *Store) ListKlines(symbol, interval string, limit int) ([]models.Kline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Kline
	for key, k := range s.klines {
		if key.Symbol == symbol && key.Interval == interval {
			out = append(out, *k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// CountKlines reports how many candles are stored for (symbol, interval),
// used by backfill-idempotence checks.
func (s *Store) CountKlines(symbol, interval string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key := range s.klines {
		if key.Symbol == symbol && key.Interval == interval {
			n++
		}
	}
	return n, nil
}
