// Package store is the State Store (C2): a transactional, per-table record
// store backing the control plane. Tables are guarded in-memory maps, each
// persisted to its own JSON file using an atomic write (temp file + fsync +
// rename), the same durability discipline the teacher's JSONStorage uses for
// a single position file.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/eddiefleurent/spotctl/internal/models"
)

// Store is the canonical in-memory + on-disk record store. The zero value is
// not usable; construct with New or NewInMemory.
type Store struct {
	baseDir string // empty ⇒ in-memory only, no persistence (used by tests)

	mu sync.RWMutex

	proposals   map[string]*models.Proposal
	positions   map[string]*models.Position
	klines      map[models.KlineKey]*models.Kline
	indicators  map[featureKey]*models.IndicatorSnapshot
	entropy     map[featureKey]*models.EntropyReading
	regimes     map[featureKey]*models.Regime
	srLevels    map[featureKey]*models.SRLevels
	sizing      map[string]*models.SizingRecommendation
	snapshots   map[string]*models.AccountSnapshot // keyed by snapshot_date
	riskEvents  []*models.RiskEvent
	reconRuns   map[string]*models.ReconciliationRun
	perfMetrics map[string]*models.PerformanceMetric
	backtests   map[string]*models.BacktestResult
}

// featureKey is the (symbol, interval) natural key shared by the derived
// feature tables.
type featureKey struct {
	Symbol   string
	Interval string
}

var (
	singletonOnce  sync.Once
	singletonStore *Store
	singletonErr   error
	sfGroup        singleflight.Group
)

// Singleton lazily constructs the process-wide Store the first time it is
// called, per spec §5 ("one state-store client, singleton, lazily
// constructed"). Concurrent first-callers are coalesced onto one
// construction via singleflight so only one New runs even under a race.
func Singleton(baseDir string) (*Store, error) {
	v, err, _ := sfGroup.Do("store-singleton", func() (interface{}, error) {
		singletonOnce.Do(func() {
			singletonStore, singletonErr = New(baseDir)
		})
		return singletonStore, singletonErr
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// New constructs a Store backed by JSON files under baseDir, loading any
// existing table files.
func New(baseDir string) (*Store, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("store: baseDir must not be empty")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("store: create base dir: %w", err)
	}
	s := newEmpty(baseDir)
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewInMemory constructs a Store with no on-disk persistence, for tests.
func NewInMemory() *Store {
	return newEmpty("")
}

func newEmpty(baseDir string) *Store {
	return &Store{
		baseDir:     baseDir,
		proposals:   make(map[string]*models.Proposal),
		positions:   make(map[string]*models.Position),
		klines:      make(map[models.KlineKey]*models.Kline),
		indicators:  make(map[featureKey]*models.IndicatorSnapshot),
		entropy:     make(map[featureKey]*models.EntropyReading),
		regimes:     make(map[featureKey]*models.Regime),
		srLevels:    make(map[featureKey]*models.SRLevels),
		sizing:      make(map[string]*models.SizingRecommendation),
		snapshots:   make(map[string]*models.AccountSnapshot),
		reconRuns:   make(map[string]*models.ReconciliationRun),
		perfMetrics: make(map[string]*models.PerformanceMetric),
		backtests:   make(map[string]*models.BacktestResult),
	}
}

func (s *Store) tablePath(name string) string {
	return filepath.Join(s.baseDir, name+".json")
}

// persist is a no-op when the store is in-memory only.
func (s *Store) persist(table string, v interface{}) error {
	if s.baseDir == "" {
		return nil
	}
	return atomicWriteJSON(s.tablePath(table), v)
}
