package store

import (
	"fmt"

	"github.com/eddiefleurent/spotctl/internal/models"
)

// loadAll reads every table file that exists under baseDir. Missing files
// are not an error — a fresh store starts with empty tables.
func (s *Store) loadAll() error {
	stringKeyed := []struct {
		table string
		dest  interface{}
	}{
		{"trade_proposals", &s.proposals},
		{"positions", &s.positions},
		{"position_sizing", &s.sizing},
		{"account_snapshots", &s.snapshots},
		{"risk_events", &s.riskEvents},
		{"reconciliation_runs", &s.reconRuns},
		{"performance_metrics", &s.perfMetrics},
		{"backtest_results", &s.backtests},
	}
	for _, l := range stringKeyed {
		if _, err := readJSONIfExists(s.tablePath(l.table), l.dest); err != nil {
			return fmt.Errorf("store: load %s: %w", l.table, err)
		}
	}

	// Tables keyed by a struct natural key round-trip through a flat slice
	// file (see features.go's valuesOf and klines.go's klineFileEntry),
	// since encoding/json cannot decode a map with a non-string key.
	var indicators []models.IndicatorSnapshot
	if _, err := readJSONIfExists(s.tablePath("technical_indicators"), &indicators); err != nil {
		return fmt.Errorf("store: load technical_indicators: %w", err)
	}
	for _, v := range indicators {
		cp := v
		s.indicators[featureKey{v.Symbol, v.Interval}] = &cp
	}

	var entropy []models.EntropyReading
	if _, err := readJSONIfExists(s.tablePath("entropy_readings"), &entropy); err != nil {
		return fmt.Errorf("store: load entropy_readings: %w", err)
	}
	for _, v := range entropy {
		cp := v
		s.entropy[featureKey{v.Symbol, v.Interval}] = &cp
	}

	var regimes []models.Regime
	if _, err := readJSONIfExists(s.tablePath("market_regimes"), &regimes); err != nil {
		return fmt.Errorf("store: load market_regimes: %w", err)
	}
	for _, v := range regimes {
		cp := v
		s.regimes[featureKey{v.Symbol, v.Interval}] = &cp
	}

	var sr []models.SRLevels
	if _, err := readJSONIfExists(s.tablePath("support_resistance_levels"), &sr); err != nil {
		return fmt.Errorf("store: load support_resistance_levels: %w", err)
	}
	for _, v := range sr {
		cp := v
		s.srLevels[featureKey{v.Symbol, v.Interval}] = &cp
	}

	var klines []klineFileEntry
	if _, err := readJSONIfExists(s.tablePath("klines_ohlcv"), &klines); err != nil {
		return fmt.Errorf("store: load klines_ohlcv: %w", err)
	}
	for _, e := range klines {
		k := e.Kline
		s.klines[k.Key()] = &k
	}

	return nil
}
