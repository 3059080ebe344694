package store

import "github.com/eddiefleurent/spotctl/internal/models"

// UpsertIndicators upserts the technical-indicator snapshot keyed by
// (symbol, interval) only: each call replaces the previous snapshot for that
// pair, so candle_time is not part of the key and earlier snapshots are not
// kept.
func (s *Store) UpsertIndicators(v models.IndicatorSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := v
	s.indicators[featureKey{v.Symbol, v.Interval}] = &cp
	return s.persist("technical_indicators", valuesOf(s.indicators))
}

// GetIndicators returns the latest indicator snapshot for (symbol, interval).
func (s *Store) GetIndicators(symbol, interval string) (*models.IndicatorSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.indicators[featureKey{symbol, interval}]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}

// UpsertEntropy upserts the entropy reading for (symbol, interval).
func (s *Store) UpsertEntropy(v models.EntropyReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := v
	s.entropy[featureKey{v.Symbol, v.Interval}] = &cp
	return s.persist("entropy_readings", valuesOf(s.entropy))
}

// GetEntropy returns the latest entropy reading for (symbol, interval).
func (s *Store) GetEntropy(symbol, interval string) (*models.EntropyReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entropy[featureKey{symbol, interval}]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}

// UpsertRegime upserts the regime classification for (symbol, interval).
func (s *Store) UpsertRegime(v models.Regime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := v
	s.regimes[featureKey{v.Symbol, v.Interval}] = &cp
	return s.persist("market_regimes", valuesOf(s.regimes))
}

// GetRegime returns the latest regime for (symbol, interval).
func (s *Store) GetRegime(symbol, interval string) (*models.Regime, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.regimes[featureKey{symbol, interval}]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}

// UpsertSRLevels upserts the support/resistance level set for
// (symbol, interval).
func (s *Store) UpsertSRLevels(v models.SRLevels) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := v
	s.srLevels[featureKey{v.Symbol, v.Interval}] = &cp
	return s.persist("support_resistance_levels", valuesOf(s.srLevels))
}

// GetSRLevels returns the latest S/R levels for (symbol, interval).
func (s *Store) GetSRLevels(symbol, interval string) (*models.SRLevels, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.srLevels[featureKey{symbol, interval}]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}

// UpsertSizing upserts the position-sizing recommendation for a symbol.
func (s *Store) UpsertSizing(v models.SizingRecommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := v
	s.sizing[v.Symbol] = &cp
	return s.persist("position_sizing", s.sizing)
}

// GetSizing returns the latest sizing recommendation for a symbol.
func (s *Store) GetSizing(symbol string) (*models.SizingRecommendation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.sizing[symbol]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}

// UpsertPerformanceMetric upserts a rolling metric keyed by MetricType.
func (s *Store) UpsertPerformanceMetric(v models.PerformanceMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := v
	s.perfMetrics[v.MetricType] = &cp
	return s.persist("performance_metrics", s.perfMetrics)
}

// ListPerformanceMetrics returns all stored metrics.
func (s *Store) ListPerformanceMetrics() ([]models.PerformanceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PerformanceMetric, 0, len(s.perfMetrics))
	for _, v := range s.perfMetrics {
		out = append(out, *v)
	}
	return out, nil
}

// valuesOf flattens a featureKey-keyed map to a slice for JSON persistence —
// encoding/json cannot use a struct as a map key, and the natural key here
// (symbol, interval) is already carried on each value, so round-tripping
// through a slice loses nothing.
func valuesOf[T any](m map[featureKey]*T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, *v)
	}
	return out
}
