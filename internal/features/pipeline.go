package features

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/store"
)

// decimalFromString parses a wire-protocol decimal string, defaulting to
// zero for an empty field rather than erroring (the exchange occasionally
// omits optional numeric fields).
func decimalFromString(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Per-tick cadence per spec §4.3: every tick is one main-loop iteration
// (60s). Multi-interval klines and the heavier analyzers run on a modulus
// of the tick counter rather than every tick, to keep per-tick cost bounded.
const (
	multiIntervalEveryNTicks = 5
	entropyEveryNTicks       = 5
	regimeEveryNTicks        = 15
	srLevelsEveryNTicks      = 60
	perfMetricsEveryNTicks   = 360
)

// recentKlinesCount is how many freshest candles the fast per-tick
// refresh pulls, versus a full backfill window for the slower analyzers.
const (
	recentKlinesCount = 3
	analysisWindow    = 200
)

var multiIntervals = []string{"5m", "15m", "4h", "1d"}

// Pipeline is the Feature Pipeline (C3): it drives one scheduling tick
// across a configured symbol set, fanning out analyzers concurrently per
// symbol and caching their outputs for the tick's duration so multiple
// consumers (risk gate, proposal engine, API) don't recompute the same
// analyzer twice. Grounded on internal/strategy/strangle.go's pure-function
// analyzer shape, generalized from one strategy to the pluggable set here.
type Pipeline struct {
	broker  broker.BrokerCtx
	store   *store.Store
	symbols []string
	interval string

	entropyThreshold float64

	mu    sync.Mutex
	tick  int64
	cache *ttlCache

	errMu  sync.Mutex
	errBuf []error
}

// Config configures a Pipeline.
type Config struct {
	Broker           broker.BrokerCtx
	Store            *store.Store
	Symbols          []string
	Interval         string // primary interval, e.g. "1m"
	EntropyThreshold float64
	CacheCapacity    int
	CacheTTL         time.Duration
}

// NewPipeline constructs a Pipeline. CacheTTL defaults to 90s if zero,
// which sits inside the spec's 60-120s per-consumer TTL window.
func NewPipeline(cfg Config) *Pipeline {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	capacity := cfg.CacheCapacity
	if capacity <= 0 {
		capacity = 1024
	}
	threshold := cfg.EntropyThreshold
	if threshold <= 0 {
		threshold = 0.85
	}
	return &Pipeline{
		broker:           cfg.Broker,
		store:            cfg.Store,
		symbols:          cfg.Symbols,
		interval:         cfg.Interval,
		entropyThreshold: threshold,
		cache:            newTTLCache(capacity, ttl),
	}
}

// Tick runs one scheduling pass: for every configured symbol, it refreshes
// recent klines, computes indicators every tick, and computes the heavier
// analyzers (entropy, regime, S/R levels) on their configured cadence. Tick
// computes no performance metrics; perfMetricsEveryNTicks is not used by
// it. Per-symbol work runs concurrently via errgroup; one symbol's
// analyzer failure is captured and does not abort the others.
func (p *Pipeline) Tick(ctx context.Context) error {
	p.mu.Lock()
	p.tick++
	tick := p.tick
	p.mu.Unlock()

	p.errMu.Lock()
	p.errBuf = nil
	p.errMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range p.symbols {
		symbol := symbol
		g.Go(func() error {
			p.runSymbol(gctx, symbol, tick)
			return nil
		})
	}
	return g.Wait()
}

// Errors returns the analyzer failures captured during the most recent
// Tick, for the orchestrator to log without aborting the loop.
func (p *Pipeline) Errors() []error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	out := make([]error, len(p.errBuf))
	copy(out, p.errBuf)
	return out
}

func (p *Pipeline) runSymbol(ctx context.Context, symbol string, tick int64) {
	klines, err := p.refreshKlines(ctx, symbol, p.interval, recentKlinesCount, analysisWindow)
	if err != nil {
		p.recordErr(fmt.Errorf("features: refresh klines %s/%s: %w", symbol, p.interval, err))
		return
	}

	if tick%multiIntervalEveryNTicks == 0 {
		for _, interval := range multiIntervals {
			if _, err := p.refreshKlines(ctx, symbol, interval, recentKlinesCount, analysisWindow); err != nil {
				p.recordErr(fmt.Errorf("features: refresh klines %s/%s: %w", symbol, interval, err))
			}
		}
	}

	if snap, err := p.cachedIndicators(symbol, p.interval, klines); err != nil {
		p.recordErr(err)
	} else if err := p.store.UpsertIndicators(*snap); err != nil {
		p.recordErr(err)
	}

	if tick%entropyEveryNTicks == 0 {
		if reading, err := p.cachedEntropy(symbol, p.interval, klines); err != nil {
			p.recordErr(err)
		} else if err := p.store.UpsertEntropy(*reading); err != nil {
			p.recordErr(err)
		}
	}

	if tick%regimeEveryNTicks == 0 {
		if regime, err := p.cachedRegime(symbol, p.interval, klines); err != nil {
			p.recordErr(err)
		} else if err := p.store.UpsertRegime(*regime); err != nil {
			p.recordErr(err)
		}
	}

	if tick%srLevelsEveryNTicks == 0 {
		if levels, err := p.cachedSRLevels(symbol, p.interval, klines); err != nil {
			p.recordErr(err)
		} else if err := p.store.UpsertSRLevels(*levels); err != nil {
			p.recordErr(err)
		}
	}
}

func (p *Pipeline) recordErr(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	p.errBuf = append(p.errBuf, err)
}

// refreshKlines pulls the freshest `recent` candles from the broker,
// upserts them (idempotent by natural key), and returns the trailing
// `window` candles from the store for analyzer input.
func (p *Pipeline) refreshKlines(ctx context.Context, symbol, interval string, recent, window int) ([]models.Kline, error) {
	wireKlines, err := p.broker.GetKlinesCtx(ctx, symbol, interval, recent, 0, 0)
	if err != nil {
		return nil, err
	}
	converted := make([]models.Kline, 0, len(wireKlines))
	for _, wk := range wireKlines {
		mk, err := toModelKline(symbol, interval, wk)
		if err != nil {
			return nil, err
		}
		converted = append(converted, mk)
	}
	if len(converted) > 0 {
		if err := p.store.UpsertKlines(converted); err != nil {
			return nil, err
		}
	}
	return p.store.ListKlines(symbol, interval, window)
}

func (p *Pipeline) cachedIndicators(symbol, interval string, klines []models.Kline) (*models.IndicatorSnapshot, error) {
	key := "indicators:" + symbol + ":" + interval
	if v, ok := p.cache.get(key); ok {
		snap := v.(models.IndicatorSnapshot)
		return &snap, nil
	}
	snap, err := computeIndicators(symbol, interval, klines)
	if err != nil {
		return nil, err
	}
	p.cache.set(key, *snap)
	return snap, nil
}

func (p *Pipeline) cachedEntropy(symbol, interval string, klines []models.Kline) (*models.EntropyReading, error) {
	key := "entropy:" + symbol + ":" + interval
	if v, ok := p.cache.get(key); ok {
		reading := v.(models.EntropyReading)
		return &reading, nil
	}
	reading, err := computeEntropy(symbol, interval, klines, p.entropyThreshold)
	if err != nil {
		return nil, err
	}
	p.cache.set(key, *reading)
	return reading, nil
}

func (p *Pipeline) cachedRegime(symbol, interval string, klines []models.Kline) (*models.Regime, error) {
	key := "regime:" + symbol + ":" + interval
	if v, ok := p.cache.get(key); ok {
		regime := v.(models.Regime)
		return &regime, nil
	}
	regime, err := computeRegime(symbol, interval, klines)
	if err != nil {
		return nil, err
	}
	p.cache.set(key, *regime)
	return regime, nil
}

func (p *Pipeline) cachedSRLevels(symbol, interval string, klines []models.Kline) (*models.SRLevels, error) {
	key := "srlevels:" + symbol + ":" + interval
	if v, ok := p.cache.get(key); ok {
		levels := v.(models.SRLevels)
		return &levels, nil
	}
	levels, err := computeSRLevels(symbol, interval, klines)
	if err != nil {
		return nil, err
	}
	p.cache.set(key, *levels)
	return levels, nil
}

// Sizing computes a position-sizing recommendation on demand (called by
// the proposal engine, not on the tick cadence) and persists it.
func (p *Pipeline) Sizing(in SizingInputs) (*models.SizingRecommendation, error) {
	rec := computeSizing(in)
	if err := p.store.UpsertSizing(*rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func toModelKline(symbol, interval string, wk broker.Kline) (models.Kline, error) {
	open, err := decimalFromString(wk.Open)
	if err != nil {
		return models.Kline{}, fmt.Errorf("open: %w", err)
	}
	high, err := decimalFromString(wk.High)
	if err != nil {
		return models.Kline{}, fmt.Errorf("high: %w", err)
	}
	low, err := decimalFromString(wk.Low)
	if err != nil {
		return models.Kline{}, fmt.Errorf("low: %w", err)
	}
	closePrice, err := decimalFromString(wk.Close)
	if err != nil {
		return models.Kline{}, fmt.Errorf("close: %w", err)
	}
	volume, err := decimalFromString(wk.Volume)
	if err != nil {
		return models.Kline{}, fmt.Errorf("volume: %w", err)
	}
	quoteVolume, err := decimalFromString(wk.QuoteVolume)
	if err != nil {
		return models.Kline{}, fmt.Errorf("quote_volume: %w", err)
	}
	takerBase, err := decimalFromString(wk.TakerBuyBase)
	if err != nil {
		return models.Kline{}, fmt.Errorf("taker_buy_base: %w", err)
	}
	takerQuote, err := decimalFromString(wk.TakerBuyQuote)
	if err != nil {
		return models.Kline{}, fmt.Errorf("taker_buy_quote: %w", err)
	}

	return models.Kline{
		Symbol:        symbol,
		Interval:      interval,
		OpenTime:      time.UnixMilli(wk.OpenTime).UTC(),
		Open:          open,
		High:          high,
		Low:           low,
		Close:         closePrice,
		Volume:        volume,
		CloseTime:     time.UnixMilli(wk.CloseTime).UTC(),
		QuoteVolume:   quoteVolume,
		Trades:        wk.Trades,
		TakerBuyBase:  takerBase,
		TakerBuyQuote: takerQuote,
	}, nil
}
