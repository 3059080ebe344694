// Package reconcile implements the Reconciler (C7): diffs local proposal
// state against the broker's open-order book and classifies the mismatches
// it finds. Grounded on cmd/bot/reconciler.go's set-difference-by-symbol
// approach to spotting drift, but — per spec §4.7 — auto-healing is
// removed: the teacher's phantom-cleanup and orphan-recovery mutate
// storage directly, where this package only detects and records. Healing
// is an operator action taken through the dead-letter/proposal endpoints.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/store"
)

// activeProposalStatuses are the statuses under which a proposal's
// broker_order_id is expected to still correspond to live (or
// just-settled) exchange state — spec §4.7 step 3.
var activeProposalStatuses = []models.ProposalStatus{
	models.ProposalApproved,
	models.ProposalExecuted,
}

// terminalExchangeStatuses are the Binance order states that confirm an
// order has left the book — spec §4.7 step 5.
var terminalExchangeStatuses = map[string]bool{
	"FILLED":   true,
	"CANCELED": true,
	"EXPIRED":  true,
	"REJECTED": true,
}

// Notifier is the alert sink a Reconciler emits to when a run finds
// divergences. Kept as a narrow interface so the orchestrator can wire in
// whatever channel it uses (spec §7's notification sink) without this
// package depending on it directly.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Reconciler diffs local trade_proposals against the broker's open orders
// and records what it finds. It never mutates a proposal or a position.
type Reconciler struct {
	broker   broker.BrokerCtx
	store    *store.Store
	notifier Notifier
	logger   *log.Logger
}

// New constructs a Reconciler. notifier may be nil, in which case alerts
// are logged but not sent anywhere.
func New(b broker.BrokerCtx, s *store.Store, notifier Notifier, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{broker: b, store: s, notifier: notifier, logger: logger}
}

// Run executes one reconciliation pass (spec §4.7) and returns the
// completed run record. A run is recorded in status=running before any
// broker call, then finalized to success or error so a failed pass still
// leaves an audit trail behind.
func (r *Reconciler) Run(ctx context.Context) (models.ReconciliationRun, error) {
	started := time.Now().UTC()
	run, err := r.store.InsertReconciliationRun(models.ReconciliationRun{
		StartedAt: started,
		Status:    models.ReconRunRunning,
	})
	if err != nil {
		return models.ReconciliationRun{}, err
	}

	divergences, ordersSynced, positionsSynced, balanceSnapshot, runErr := r.diff(ctx)

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.OrdersSynced = ordersSynced
	run.PositionsSynced = positionsSynced
	run.DivergencesFound = len(divergences)
	run.Divergences = divergences
	run.BalanceSnapshot = balanceSnapshot
	run.DurationMS = finished.Sub(started).Milliseconds()

	if runErr != nil {
		run.Status = models.ReconRunError
		run.Error = runErr.Error()
		r.logger.Printf("reconciliation run %s errored: %v", run.ID, runErr)
	} else {
		run.Status = models.ReconRunSuccess
		if len(divergences) > 0 {
			r.logger.Printf("reconciliation run %s found %d divergences", run.ID, len(divergences))
			r.alert(ctx, run.ID, divergences)
		} else {
			r.logger.Printf("reconciliation run %s OK (%dms, %d orders, %d positions)",
				run.ID, run.DurationMS, ordersSynced, positionsSynced)
		}
	}

	if err := r.store.UpdateReconciliationRun(run); err != nil {
		return run, err
	}
	return run, runErr
}

// diff performs steps 2-6 of spec §4.7 and returns whatever it managed to
// collect even when an error aborts the pass partway through, so a failed
// run record still carries useful partial counts.
func (r *Reconciler) diff(ctx context.Context) (divergences []models.Divergence, ordersSynced, positionsSynced int, balanceSnapshot map[string]decimal.Decimal, err error) {
	exchangeOrders, err := r.broker.GetOpenOrdersCtx(ctx, "")
	if err != nil {
		return nil, 0, 0, nil, fmt.Errorf("fetch open orders: %w", err)
	}
	exchangeByID := make(map[int64]broker.Order, len(exchangeOrders))
	for _, o := range exchangeOrders {
		exchangeByID[o.OrderID] = o
	}

	dbProposals, err := r.store.ListProposalsWithBrokerOrder(activeProposalStatuses...)
	if err != nil {
		return nil, 0, 0, nil, fmt.Errorf("list tracked proposals: %w", err)
	}
	dbByOrderID := make(map[int64]*models.Proposal, len(dbProposals))
	for _, p := range dbProposals {
		oid, perr := parseOrderID(p.BrokerOrderID)
		if perr != nil {
			continue
		}
		dbByOrderID[oid] = p
	}

	// Orphans: on the exchange, untracked locally.
	for oid, eo := range exchangeByID {
		if _, ok := dbByOrderID[oid]; ok {
			continue
		}
		divergences = append(divergences, models.Divergence{
			Type:    models.DivergenceOrphan,
			Symbol:  eo.Symbol,
			OrderID: fmt.Sprintf("%d", oid),
			Detail:  "order exists on exchange but has no matching proposal",
		})
	}

	// Stale: tracked as approved, missing from the exchange's open-order
	// set, and confirmed terminal when asked directly.
	for oid, p := range dbByOrderID {
		ordersSynced++
		if _, stillOpen := exchangeByID[oid]; stillOpen {
			continue
		}
		if p.Status != models.ProposalApproved {
			continue
		}
		order, oerr := r.broker.GetOrderCtx(ctx, p.Symbol, oid)
		if oerr != nil {
			r.logger.Printf("reconciliation: could not check order %d: %v", oid, oerr)
			continue
		}
		if terminalExchangeStatuses[order.Status] {
			divergences = append(divergences, models.Divergence{
				Type:           models.DivergenceStale,
				Symbol:         p.Symbol,
				OrderID:        fmt.Sprintf("%d", oid),
				ProposalID:     p.ID,
				ExchangeStatus: order.Status,
				Detail:         fmt.Sprintf("proposal is %s but exchange order is %s", p.Status, order.Status),
			})
		}
	}

	open, err := r.store.ListOpenPositions()
	if err != nil {
		return divergences, ordersSynced, 0, nil, fmt.Errorf("list open positions: %w", err)
	}
	positionsSynced = len(open)

	balanceSnapshot = map[string]decimal.Decimal{}
	account, aerr := r.broker.GetAccountCtx(ctx)
	if aerr != nil {
		r.logger.Printf("reconciliation: could not fetch balance snapshot: %v", aerr)
	} else {
		for _, b := range account.Balances {
			free, ferr := decimal.NewFromString(b.Free)
			if ferr != nil {
				continue
			}
			locked, lerr := decimal.NewFromString(b.Locked)
			if lerr != nil {
				locked = decimal.Zero
			}
			if free.IsPositive() || locked.IsPositive() {
				balanceSnapshot[b.Asset] = free.Add(locked)
			}
		}
	}

	return divergences, ordersSynced, positionsSynced, balanceSnapshot, nil
}

// alert emits a notification summarizing the divergences found, mirroring
// original_source/backend/app/services/reconciliation.py's top-5-then-
// "and N more" Telegram message shape.
func (r *Reconciler) alert(ctx context.Context, runID string, divergences []models.Divergence) {
	if r.notifier == nil {
		return
	}
	msg := fmt.Sprintf("RECONCILIATION ALERT\nrun=%s divergences=%d\n", runID, len(divergences))
	shown := divergences
	const maxShown = 5
	if len(shown) > maxShown {
		shown = shown[:maxShown]
	}
	for _, d := range shown {
		msg += fmt.Sprintf("- [%s] %s: %s\n", d.Type, d.Symbol, d.Detail)
	}
	if len(divergences) > maxShown {
		msg += fmt.Sprintf("... and %d more\n", len(divergences)-maxShown)
	}
	if err := r.notifier.Notify(ctx, msg); err != nil {
		r.logger.Printf("reconciliation: failed to send alert: %v", err)
	}
}

func parseOrderID(brokerOrderID string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(brokerOrderID, "%d", &id)
	return id, err
}
