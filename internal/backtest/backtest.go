// Package backtest implements the one real Backtester the operator HTTP
// surface proxies to (spec §6's /backtest/* routes). Per spec §1's
// non-goals, a full backtesting engine is out of scope — this is a simple
// vectorized replay over already-stored klines, the "external collaborator"
// level spec §9 calls for, grounded on the teacher's own habit of computing
// a rolling performance metric from closed positions
// (`cmd/bot/trading_cycle.go`'s equity-curve bookkeeping) rather than on
// any backtesting library, since none of the retrieved repos ships one.
package backtest

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/store"
)

// Strategies lists the vectorized replay strategies this Runner supports.
var Strategies = []string{"sma_crossover", "buy_and_hold"}

// Runner is the Backtester interface's single implementation.
type Runner struct {
	store *store.Store
}

// New constructs a Runner.
func New(s *store.Store) *Runner {
	return &Runner{store: s}
}

// RunRequest parameterizes one backtest pass.
type RunRequest struct {
	Strategy string
	Symbol   string
	Interval string
	FastN    int // SMA crossover fast window, default 10
	SlowN    int // SMA crossover slow window, default 30
}

// Run replays req.Strategy over every stored kline for (Symbol, Interval)
// and persists the resulting models.BacktestResult.
func (r *Runner) Run(req RunRequest) (*models.BacktestResult, error) {
	klines, err := r.store.ListKlines(req.Symbol, req.Interval, 0)
	if err != nil {
		return nil, fmt.Errorf("backtest: load klines: %w", err)
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("backtest: no stored klines for %s/%s", req.Symbol, req.Interval)
	}

	var pnl, winRate decimal.Decimal
	var trades int
	switch req.Strategy {
	case "buy_and_hold":
		pnl, trades = buyAndHold(klines)
		if pnl.IsPositive() {
			winRate = decimal.NewFromInt(100)
		}
	case "sma_crossover", "":
		fastN, slowN := req.FastN, req.SlowN
		if fastN <= 0 {
			fastN = 10
		}
		if slowN <= 0 {
			slowN = 30
		}
		pnl, trades, winRate = smaCrossover(klines, fastN, slowN)
	default:
		return nil, fmt.Errorf("backtest: unknown strategy %q", req.Strategy)
	}

	result := models.BacktestResult{
		ID:          uuid.NewString(),
		Strategy:    req.Strategy,
		Symbol:      req.Symbol,
		Params:      map[string]interface{}{"fast_n": req.FastN, "slow_n": req.SlowN},
		PnL:         pnl,
		WinRate:     winRate,
		TotalTrades: trades,
		CreatedAt:   time.Now().UTC(),
	}
	return insertResult(r.store, result)
}

func insertResult(s *store.Store, r models.BacktestResult) (*models.BacktestResult, error) {
	inserted, err := s.InsertBacktestResult(r)
	if err != nil {
		return nil, err
	}
	return &inserted, nil
}

// buyAndHold returns the percentage return of entering at the first close
// and exiting at the last ((last-first)/first*100), and the trade count: 1,
// or 0 with a zero return when the first close is zero.
func buyAndHold(klines []models.Kline) (decimal.Decimal, int) {
	entry := klines[0].Close
	exit := klines[len(klines)-1].Close
	if entry.IsZero() {
		return decimal.Zero, 0
	}
	return exit.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100)), 1
}

// smaCrossover is a long-only simple-moving-average crossover replay: enter
// when the fast SMA crosses above the slow SMA, exit on the reverse cross.
// Returns cumulative PnL percent, trade count, and win rate percent.
func smaCrossover(klines []models.Kline, fastN, slowN int) (decimal.Decimal, int, decimal.Decimal) {
	if len(klines) <= slowN {
		return decimal.Zero, 0, decimal.Zero
	}

	closes := make([]decimal.Decimal, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}

	var inPosition bool
	var entryPrice decimal.Decimal
	var trades, wins int
	cumulative := decimal.Zero

	for i := slowN; i < len(closes); i++ {
		fast := sma(closes, i, fastN)
		slow := sma(closes, i, slowN)
		prevFast := sma(closes, i-1, fastN)
		prevSlow := sma(closes, i-1, slowN)

		crossedUp := prevFast.LessThanOrEqual(prevSlow) && fast.GreaterThan(slow)
		crossedDown := prevFast.GreaterThanOrEqual(prevSlow) && fast.LessThan(slow)

		switch {
		case !inPosition && crossedUp:
			inPosition = true
			entryPrice = closes[i]
		case inPosition && crossedDown:
			pnl := closes[i].Sub(entryPrice).Div(entryPrice).Mul(decimal.NewFromInt(100))
			cumulative = cumulative.Add(pnl)
			trades++
			if pnl.IsPositive() {
				wins++
			}
			inPosition = false
		}
	}
	// close any still-open position at the last candle
	if inPosition {
		last := closes[len(closes)-1]
		pnl := last.Sub(entryPrice).Div(entryPrice).Mul(decimal.NewFromInt(100))
		cumulative = cumulative.Add(pnl)
		trades++
		if pnl.IsPositive() {
			wins++
		}
	}

	winRate := decimal.Zero
	if trades > 0 {
		winRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(trades))).Mul(decimal.NewFromInt(100))
	}
	return cumulative, trades, winRate
}

func sma(closes []decimal.Decimal, idx, n int) decimal.Decimal {
	start := idx - n + 1
	if start < 0 {
		start = 0
	}
	sum := decimal.Zero
	count := 0
	for i := start; i <= idx; i++ {
		sum = sum.Add(closes[i])
		count++
	}
	if count == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(count)))
}

// List returns every stored backtest result.
func (r *Runner) List() ([]models.BacktestResult, error) {
	return r.store.ListBacktestResults()
}

// Get returns one stored backtest result by id.
func (r *Runner) Get(id string) (*models.BacktestResult, error) {
	return r.store.GetBacktestResult(id)
}
