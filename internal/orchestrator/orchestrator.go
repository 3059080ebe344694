// Package orchestrator implements the Orchestrator (C8): the dual-cadence
// control loop that wires every other component together. Grounded on
// cmd/bot/main.go's Bot struct and signal.Notify/context-cancellation
// shutdown pattern, and cmd/bot/trading_cycle.go's ordered, per-step
// error-isolated cycle shape — generalized from one strangle-strategy
// cycle to the fast-loop/main-loop split spec §4.8 and §5 describe.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/executor"
	"github.com/eddiefleurent/spotctl/internal/features"
	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/proposal"
	"github.com/eddiefleurent/spotctl/internal/reconcile"
	"github.com/eddiefleurent/spotctl/internal/risk"
	"github.com/eddiefleurent/spotctl/internal/store"
)

// Switches is the orchestrator's live kill-switch state. A pointer to one
// shared instance is handed to the HTTP API so an operator toggling
// trading_enabled takes effect on the very next loop tick, matching the
// python original's module-level globals without a package-level var.
type Switches struct {
	mu             sync.RWMutex
	tradingEnabled bool
	quantEnabled   bool
}

// NewSwitches constructs a Switches seeded from startup config.
func NewSwitches(tradingEnabled, quantEnabled bool) *Switches {
	return &Switches{tradingEnabled: tradingEnabled, quantEnabled: quantEnabled}
}

// TradingEnabled reports whether order placement is currently permitted.
func (s *Switches) TradingEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tradingEnabled
}

// SetTradingEnabled flips the kill switch.
func (s *Switches) SetTradingEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradingEnabled = v
}

// QuantEnabled reports whether the main loop runs the feature pipeline tick
// (kline refresh, indicators and analyzers alike).
func (s *Switches) QuantEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quantEnabled
}

// SetQuantEnabled toggles whether the main loop runs the feature pipeline
// tick.
func (s *Switches) SetQuantEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quantEnabled = v
}

// Notifier is the alert sink daily reports and reconciliation alerts are
// sent to. Same shape as reconcile.Notifier so a single implementation
// (e.g. a Telegram or webhook sender) backs both.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Config carries everything Orchestrator needs to wire its subsystems.
type Config struct {
	Broker      broker.BrokerCtx
	Store       *store.Store
	Pipeline    *features.Pipeline
	Gate        *risk.Gate
	Engine      *proposal.Engine
	Executor    *executor.Executor
	Reconciler  *reconcile.Reconciler
	Notifier    Notifier
	Switches    *Switches
	Symbols     []string
	Signal      SignalThresholds
	Interval    string
	FastLoop    time.Duration
	MainLoop    time.Duration
	Logger      *log.Logger
}

// Orchestrator is the Orchestrator (C8).
type Orchestrator struct {
	cfg    Config
	signal *SignalGenerator
	logger *log.Logger

	cron *cron.Cron

	tick int64

	stop   chan struct{}
	done   chan struct{}
	stopOnce sync.Once
}

// New constructs an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "orchestrator: ", log.LstdFlags)
	}
	return &Orchestrator{
		cfg:    cfg,
		signal: NewSignalGenerator(cfg.Broker, cfg.Store, cfg.Engine, cfg.Signal, cfg.Interval),
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run starts the fast loop, main loop, and daily-report cron, and blocks
// until ctx is cancelled or Stop is called. Per spec §5's cancellation
// policy, Run awaits completion of whatever iteration is in flight before
// returning rather than tearing a loop down mid-step.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.cron = cron.New(cron.WithLocation(time.UTC))
	if _, err := o.cron.AddFunc("1 0 * * *", func() { o.runDailyReport(ctx) }); err != nil {
		return fmt.Errorf("scheduling daily report: %w", err)
	}
	o.cron.Start()
	defer o.cron.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.runLoop(ctx, "fast", o.cfg.FastLoop, o.runFastIteration)
	}()
	go func() {
		defer wg.Done()
		o.runLoop(ctx, "main", o.cfg.MainLoop, o.runMainIteration)
	}()
	wg.Wait()
	close(o.done)
	return nil
}

// Stop signals both loops to exit after their current iteration.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
}

// Wait blocks until Run has fully returned.
func (o *Orchestrator) Wait() {
	<-o.done
}

func (o *Orchestrator) runLoop(ctx context.Context, name string, interval time.Duration, iterate func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case <-ticker.C:
			iterate(ctx)
		}
	}
}

// runFastIteration is the fast loop's only job (spec §4.8 step list for
// the fast loop): evaluate every open position's stop-loss/take-profit
// unconditionally and place the resulting close order only if trading is
// enabled. ScanStopLossTakeProfit itself performs the gating — the
// orchestrator always calls it so a suppressed trigger is still recorded
// as a risk event even with the kill switch off (SPEC_FULL's resolution
// of the stop-loss/kill-switch interaction).
func (o *Orchestrator) runFastIteration(ctx context.Context) {
	results, err := o.cfg.Executor.ScanStopLossTakeProfit(ctx, o.cfg.Switches.TradingEnabled())
	if err != nil {
		o.logger.Printf("fast loop: SL/TP scan failed: %v", err)
		return
	}
	for _, r := range results {
		if !r.Success {
			o.logger.Printf("fast loop: SL/TP close failed for proposal %s: %s", r.ProposalID, r.Error)
		}
	}
}

// runMainIteration runs the main loop's four ordered, error-isolated steps:
// feature pipeline tick, signal-and-execute, portfolio refresh and
// reconciliation. The daily report is not one of them; it runs from the
// cron schedule set up in Run. Each step is wrapped so a failure in one does not
// abort the others, mirroring trading_cycle.go's step-by-step structure
// and spec §7's "Orchestrator: each main-loop step is wrapped" policy.
func (o *Orchestrator) runMainIteration(ctx context.Context) {
	o.tick++

	o.step("feature_pipeline", func() error {
		if !o.cfg.Switches.QuantEnabled() {
			return nil
		}
		return o.cfg.Pipeline.Tick(ctx)
	})

	o.step("signal_and_execute", func() error {
		if !o.cfg.Switches.TradingEnabled() {
			return nil
		}
		for _, symbol := range o.cfg.Symbols {
			if _, err := o.signal.Evaluate(ctx, symbol); err != nil {
				o.logger.Printf("main loop: signal evaluation failed for %s: %v", symbol, err)
			}
		}
		_, err := o.cfg.Executor.ExecuteAllApproved(ctx)
		return err
	})

	o.step("portfolio_refresh", func() error { return o.refreshPortfolio(ctx) })

	o.step("reconcile", func() error {
		_, err := o.cfg.Reconciler.Run(ctx)
		return err
	})
}

func (o *Orchestrator) step(name string, fn func() error) {
	if err := fn(); err != nil {
		o.logger.Printf("main loop step %q failed: %v", name, err)
	}
}

// refreshPortfolio marks every open position to market and rolls up a
// per-day account snapshot — the first real caller of
// store.UpdatePositionPrice, which exists for exactly this high-frequency
// mark-to-market path (see internal/store/positions.go).
func (o *Orchestrator) refreshPortfolio(ctx context.Context) error {
	open, err := o.cfg.Store.ListOpenPositions()
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}

	var inPositions = newDecimalAccumulator()
	var unrealizedToday = newDecimalAccumulator()
	for _, pos := range open {
		ticker, err := o.cfg.Broker.GetPriceCtx(ctx, pos.Symbol)
		if err != nil {
			o.logger.Printf("portfolio refresh: price lookup failed for %s: %v", pos.Symbol, err)
			continue
		}
		price, err := parseDecimal(ticker.Price)
		if err != nil {
			continue
		}
		// Positions are always long (spec §1's non-goals exclude margin/short),
		// so unrealized P&L is simply (mark - entry) * quantity.
		unrealized := price.Sub(pos.EntryPrice).Mul(pos.CurrentQuantity)
		var pct float64
		if !pos.EntryNotional.IsZero() {
			pctDec, _ := unrealized.Div(pos.EntryNotional).Float64()
			pct = pctDec * 100
		}
		if _, err := o.cfg.Store.UpdatePositionPrice(pos.ID, price, unrealized, decimalFromFloat(pct)); err != nil {
			o.logger.Printf("portfolio refresh: failed to mark %s to market: %v", pos.ID, err)
			continue
		}
		inPositions.add(pos.CurrentQuantity.Mul(price))
		unrealizedToday.add(unrealized)
	}

	account, err := o.cfg.Broker.GetAccountCtx(ctx)
	if err != nil {
		return fmt.Errorf("fetch account: %w", err)
	}
	available := findBalance(account, "USDT")

	total := available.Add(inPositions.sum())
	today := time.Now().UTC().Format("2006-01-02")

	// daily_pnl is today's realized P&L (positions closed since UTC
	// midnight) plus the unrealized P&L of everything still open, the same
	// accumulation the teacher's storage.go keeps per-day for its own P&L
	// rollup, generalized from a running total to a sum-on-refresh.
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	closedToday, err := o.cfg.Store.ListClosedSince(midnight)
	if err != nil {
		return fmt.Errorf("list closed positions: %w", err)
	}
	realizedToday := newDecimalAccumulator()
	for _, pos := range closedToday {
		realizedToday.add(pos.RealizedPnL)
	}
	dailyPnL := realizedToday.sum().Add(unrealizedToday.sum())

	snapshot := models.AccountSnapshot{
		SnapshotDate:     today,
		TotalBalance:     total,
		AvailableBalance: available,
		OpenPositions:    len(open),
		DailyPnL:         dailyPnL,
		UpdatedAt:        time.Now().UTC(),
	}
	if prev, ok := o.cfg.Store.GetAccountSnapshot(today); ok {
		snapshot.PeakBalance = maxDecimal(prev.PeakBalance, total)
	} else {
		snapshot.PeakBalance = total
	}
	if snapshot.PeakBalance.IsPositive() {
		snapshot.CurrentDrawdown = snapshot.PeakBalance.Sub(total).Div(snapshot.PeakBalance)
	}
	return o.cfg.Store.UpsertAccountSnapshot(snapshot)
}

// RunDailyReportNow runs the daily report immediately, outside the cron
// schedule — backs POST /reports/daily, the operator's on-demand trigger.
func (o *Orchestrator) RunDailyReportNow(ctx context.Context) {
	o.runDailyReport(ctx)
}

// runDailyReport fires once per UTC day in the first two minutes (spec
// §4.8 step 5), summarizing the day's closed positions and notifying the
// configured sink. The HTTP API's POST /reports/daily triggers the same
// logic on demand.
func (o *Orchestrator) runDailyReport(ctx context.Context) {
	since := time.Now().UTC().Truncate(24 * time.Hour)
	closed, err := o.cfg.Store.ListClosedSince(since)
	if err != nil {
		o.logger.Printf("daily report: failed to list closed positions: %v", err)
		return
	}

	realized := newDecimalAccumulator()
	wins := 0
	for _, p := range closed {
		realized.add(p.RealizedPnL)
		if p.RealizedPnL.IsPositive() {
			wins++
		}
	}

	msg := fmt.Sprintf("DAILY REPORT %s\nclosed=%d realized_pnl=%s wins=%d\n",
		since.Format("2006-01-02"), len(closed), realized.sum().StringFixed(2), wins)
	o.logger.Print(msg)
	if o.cfg.Notifier != nil {
		if err := o.cfg.Notifier.Notify(ctx, msg); err != nil {
			o.logger.Printf("daily report: notify failed: %v", err)
		}
	}
}
