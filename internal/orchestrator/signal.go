package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/proposal"
	"github.com/eddiefleurent/spotctl/internal/store"
)

// SignalThresholds are the Signal Generator's buy/sell criteria (spec
// §4.8), supplemented from original_source/backend/app/services/
// signal_generator.py's module constants and made configurable rather
// than hardcoded.
type SignalThresholds struct {
	BuyRSIMax        float64
	BuyMACDHistMin   float64
	BuyADXMin        float64
	BuyEntropyMin    float64
	SellRSIMin       float64
	SellMACDHistMax  float64
	MaxOpenPositions int
	Cooldown         time.Duration
}

// SignalGenerator evaluates each configured symbol's latest indicators and
// entropy reading and emits buy/sell proposals through the Proposal
// Engine. It lives inside the orchestrator rather than its own top-level
// package, per spec §4.8: the operation is an input to the main loop, not
// a standalone component with its own lifecycle.
//
// Grounded on signal_generator.py's generate_signals/_evaluate_symbol: a
// per-symbol, per-side cooldown map keyed "SYMBOL:SIDE" substitutes for
// the python original's _last_signal_time dict, since spec §5 keeps this
// state in-process and accessed only from the main loop's single turn, no
// locking required under the cooperative model — the mutex here is a
// concession to tests and the operator HTTP surface reading it concurrently.
type SignalGenerator struct {
	broker     broker.BrokerCtx
	store      *store.Store
	engine     *proposal.Engine
	thresholds SignalThresholds
	interval   string

	mu           sync.Mutex
	lastSignalAt map[string]time.Time
}

// NewSignalGenerator constructs a SignalGenerator.
func NewSignalGenerator(b broker.BrokerCtx, s *store.Store, engine *proposal.Engine, thresholds SignalThresholds, interval string) *SignalGenerator {
	return &SignalGenerator{
		broker:       b,
		store:        s,
		engine:       engine,
		thresholds:   thresholds,
		interval:     interval,
		lastSignalAt: make(map[string]time.Time),
	}
}

// Evaluate runs the signal criteria for one symbol and, if a signal fires,
// creates and validates a proposal through the engine. It returns the
// created proposal (nil if no signal fired) and isolates its own errors
// from the caller's iteration over the symbol list, mirroring
// signal_generator.py's per-symbol try/except in generate_signals.
func (g *SignalGenerator) Evaluate(ctx context.Context, symbol string) (*models.Proposal, error) {
	symbol = strings.ToUpper(symbol)

	indicators, ok := g.store.GetIndicators(symbol, g.interval)
	if !ok {
		return nil, nil // insufficient_data per spec §7 — not an error, just nothing to evaluate yet
	}
	entropy, ok := g.store.GetEntropy(symbol, g.interval)
	entropyRatio := 0.7 // signal_generator.py's default when a reading is missing
	if ok {
		if v, _ := entropy.EntropyRatio.Float64(); v > 0 {
			entropyRatio = v
		}
	}

	open, err := g.store.ListOpenPositionsBySymbol(symbol)
	if err != nil {
		return nil, err
	}

	rsi, _ := indicators.RSI.Float64()
	macdHist, _ := indicators.MACDHist.Float64()
	adx, _ := indicators.ADX.Float64()

	if len(open) > 0 {
		return g.maybeSell(symbol, open[0], rsi, macdHist)
	}
	return g.maybeBuy(ctx, symbol, rsi, macdHist, adx, entropyRatio)
}

func (g *SignalGenerator) maybeSell(symbol string, pos *models.Position, rsi, macdHist float64) (*models.Proposal, error) {
	if rsi <= g.thresholds.SellRSIMin || macdHist >= g.thresholds.SellMACDHistMax {
		return nil, nil
	}
	if !g.cooldownElapsed(symbol, "sell") {
		return nil, nil
	}

	p, err := g.engine.Create(proposal.CreateInput{
		Side:      models.SideSell,
		Symbol:    symbol,
		Quantity:  pos.CurrentQuantity,
		OrderType: models.OrderTypeMarket,
		Notional:  pos.CurrentQuantity.Mul(pos.CurrentPrice),
		Strategy:  "signal_generator",
		Reasoning: fmt.Sprintf("[AUTO] RSI=%.1f>%.1f MACD_hist=%.2f<%.2f", rsi, g.thresholds.SellRSIMin, macdHist, g.thresholds.SellMACDHistMax),
		Interval:  g.interval,
	})
	if err != nil {
		return nil, err
	}
	g.recordSignal(symbol, "sell")
	return p, nil
}

func (g *SignalGenerator) maybeBuy(ctx context.Context, symbol string, rsi, macdHist, adx, entropyRatio float64) (*models.Proposal, error) {
	if rsi >= g.thresholds.BuyRSIMax || macdHist <= g.thresholds.BuyMACDHistMin ||
		adx <= g.thresholds.BuyADXMin || entropyRatio <= g.thresholds.BuyEntropyMin {
		return nil, nil
	}
	if !g.cooldownElapsed(symbol, "buy") {
		return nil, nil
	}

	cap := g.thresholds.MaxOpenPositions
	if cap > 0 {
		total, err := g.totalOpenPositions()
		if err != nil {
			return nil, err
		}
		if total >= cap {
			return nil, nil
		}
	}

	sizing, hasSizing := g.store.GetSizing(symbol)
	notional := decimal.NewFromFloat(100) // conservative default absent a sizing recommendation
	if hasSizing && sizing.RecommendedSize.IsPositive() {
		notional = sizing.RecommendedSize
	}

	ticker, err := g.broker.GetPriceCtx(ctx, symbol)
	if err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(ticker.Price)
	if err != nil || !price.IsPositive() {
		return nil, fmt.Errorf("signal generator: invalid price %q for %s", ticker.Price, symbol)
	}
	quantity := notional.Div(price) // signal_generator.py's quantity = notional / price

	p, err := g.engine.Create(proposal.CreateInput{
		Side:      models.SideBuy,
		Symbol:    symbol,
		Quantity:  quantity,
		OrderType: models.OrderTypeMarket,
		Notional:  notional,
		Strategy:  "signal_generator",
		Reasoning: fmt.Sprintf("[AUTO] RSI=%.1f<%.1f MACD_hist=%.2f>%.2f ADX=%.1f>%.1f entropy=%.2f>%.2f",
			rsi, g.thresholds.BuyRSIMax, macdHist, g.thresholds.BuyMACDHistMin,
			adx, g.thresholds.BuyADXMin, entropyRatio, g.thresholds.BuyEntropyMin),
		Interval: g.interval,
	})
	if err != nil {
		return nil, err
	}
	g.recordSignal(symbol, "buy")
	return p, nil
}

func (g *SignalGenerator) totalOpenPositions() (int, error) {
	open, err := g.store.ListOpenPositions()
	if err != nil {
		return 0, err
	}
	return len(open), nil
}

func (g *SignalGenerator) cooldownElapsed(symbol, side string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastSignalAt[symbol+":"+side]
	if !ok {
		return true
	}
	return time.Since(last) >= g.thresholds.Cooldown
}

func (g *SignalGenerator) recordSignal(symbol, side string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSignalAt[symbol+":"+side] = time.Now().UTC()
}
