// Package executor implements the Executor (C6): turns an approved
// proposal into a broker order, then folds the fill into the position
// book. Grounded on internal/orders/manager.go's poll/fill-handling shape
// and original_source/backend/app/services/executor.py's exact flow
// (fill-price fallback chain, commission aggregation, open/close formulas).
package executor

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/proposal"
	"github.com/eddiefleurent/spotctl/internal/retry"
	"github.com/eddiefleurent/spotctl/internal/store"
	"github.com/eddiefleurent/spotctl/internal/util"
)

// Default PRICE_FILTER/LOT_SIZE increments for symbols with no
// SetTickSizes override, matching internal/config.Default{Tick,Step}Size.
const (
	defaultTickSize = 0.01
	defaultStepSize = 0.0001
)

// Executor places broker orders for approved proposals and updates the
// position book from the resulting fills.
type Executor struct {
	broker    broker.BrokerCtx
	retry     *retry.Client
	store     *store.Store
	engine    *proposal.Engine
	logger    *log.Logger
	tickSizes map[string]float64 // PRICE_FILTER.tickSize per symbol
	stepSizes map[string]float64 // LOT_SIZE.stepSize per symbol
}

// New constructs an Executor. logger defaults to os.Stderr-backed if nil.
func New(b broker.BrokerCtx, s *store.Store, engine *proposal.Engine, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.New(os.Stderr, "executor: ", log.LstdFlags)
	}
	return &Executor{
		broker: b,
		retry:  retry.NewClient(b, logger),
		store:  s,
		engine: engine,
		logger: logger,
	}
}

// SetTickSizes installs per-symbol PRICE_FILTER/LOT_SIZE increments
// (internal/config.TradingConfig.TickSizes/StepSizes). Symbols absent from
// either map round against defaultTickSize/defaultStepSize.
func (e *Executor) SetTickSizes(tickSizes, stepSizes map[string]float64) {
	e.tickSizes = tickSizes
	e.stepSizes = stepSizes
}

// roundOrder snaps quantity down to the symbol's lot step (never order more
// than the proposal sized, which would demand more balance than approved)
// and price to its tick size, rounding a buy debit up and a sell credit
// down so the broker never rejects the order for exceeding its own filter.
func (e *Executor) roundOrder(symbol string, side models.Side, quantity decimal.Decimal, price *decimal.Decimal) (decimal.Decimal, *decimal.Decimal) {
	step := defaultStepSize
	if v, ok := e.stepSizes[symbol]; ok {
		step = v
	}
	qtyFloat, _ := quantity.Float64()
	roundedQty := decimal.NewFromFloat(util.FloorToTick(qtyFloat, step))

	if price == nil {
		return roundedQty, nil
	}
	tick := defaultTickSize
	if v, ok := e.tickSizes[symbol]; ok {
		tick = v
	}
	priceFloat, _ := price.Float64()
	var roundedPrice decimal.Decimal
	if side == models.SideBuy {
		roundedPrice = decimal.NewFromFloat(util.CeilToTick(priceFloat, tick))
	} else {
		roundedPrice = decimal.NewFromFloat(util.FloorToTick(priceFloat, tick))
	}
	return roundedQty, &roundedPrice
}

// Result is the outcome of executing one proposal, mirroring the shape
// execute_proposal returns in the python original.
type Result struct {
	ProposalID      string
	Success         bool
	Error           string
	OrderID         string
	ExecutedPrice   decimal.Decimal
	ExecutedQty     decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
}

// Execute places the order for an approved proposal and updates the
// position book. Non-approved proposals are rejected without touching the
// broker (spec §4.6 step 1).
func (e *Executor) Execute(ctx context.Context, proposalID string) Result {
	p, err := e.store.GetProposal(proposalID)
	if err != nil {
		return Result{ProposalID: proposalID, Error: fmt.Sprintf("proposal not found: %v", err)}
	}
	if p.Status != models.ProposalApproved {
		return Result{ProposalID: proposalID, Error: fmt.Sprintf("proposal status is %q, must be approved", p.Status)}
	}

	side := "BUY"
	if p.Side == models.SideSell {
		side = "SELL"
	}
	orderType := string(p.OrderType)
	if orderType == "" {
		orderType = "MARKET"
	}

	roundedQty, roundedPrice := e.roundOrder(p.Symbol, p.Side, p.Quantity, p.Price)
	priceStr := ""
	if roundedPrice != nil {
		priceStr = roundedPrice.String()
	}

	order, err := e.retry.PlaceOrderWithRetry(ctx, p.Symbol, side, orderType, roundedQty.String(), priceStr)
	if err != nil {
		return e.fail(proposalID, err)
	}

	executedPrice, executedQty, commission, commissionAsset := fillDetails(order, roundedQty)
	if executedPrice.IsZero() {
		if ticker, tErr := e.broker.GetPriceCtx(ctx, p.Symbol); tErr == nil {
			if v, pErr := decimal.NewFromString(ticker.Price); pErr == nil {
				executedPrice = v
			}
		}
	}

	updated, err := e.engine.MarkExecuted(proposalID, strconv.FormatInt(order.OrderID, 10), executedPrice, executedQty, commission, commissionAsset)
	if err != nil {
		return e.fail(proposalID, fmt.Errorf("order filled but proposal update failed: %w", err))
	}

	if p.Side == models.SideBuy {
		if err := e.openPosition(ctx, updated, executedPrice, executedQty, commission, commissionAsset); err != nil {
			e.logger.Printf("failed to open position for proposal %s: %v", proposalID, err)
		}
	} else {
		if err := e.closePosition(updated, executedPrice, executedQty, commission); err != nil {
			e.logger.Printf("failed to close position for proposal %s: %v", proposalID, err)
		}
	}

	_, _ = e.store.AppendRiskEvent(models.RiskEvent{
		Type:       "order_executed",
		Severity:   models.SeverityInfo,
		Message:    fmt.Sprintf("Order executed successfully: %s %s %s @ %s", side, executedQty, p.Symbol, executedPrice),
		ProposalID: proposalID,
		Details: map[string]interface{}{
			"order_id": order.OrderID,
			"price":    executedPrice.String(),
			"qty":      executedQty.String(),
		},
	})

	return Result{
		ProposalID:      proposalID,
		Success:         true,
		OrderID:         strconv.FormatInt(order.OrderID, 10),
		ExecutedPrice:   executedPrice,
		ExecutedQty:     executedQty,
		Commission:      commission,
		CommissionAsset: commissionAsset,
	}
}

// ExecuteAllApproved runs Execute over every approved proposal in
// creation-order (oldest first), pacing calls 100ms apart to match the
// rate-limit-friendly cadence of execute_all_approved in the python
// original. Returns every per-proposal result, even failures.
func (e *Executor) ExecuteAllApproved(ctx context.Context) ([]Result, error) {
	proposals, err := e.store.ListProposalsByStatus(models.ProposalApproved)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(proposals))
	for i, p := range proposals {
		results = append(results, e.Execute(ctx, p.ID))
		if i < len(proposals)-1 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
	return results, nil
}

// ScanStopLossTakeProfit is the fast loop's SL/TP step (spec §4.8):
// evaluate every open position's stop-loss/take-profit price against the
// current broker price unconditionally, but only place the resulting close
// order when tradingEnabled is true — otherwise record a suppressed-stop
// risk event and leave the position untouched, per the stop-loss-under-
// kill-switch resolution in SPEC_FULL.md's Open Questions.
func (e *Executor) ScanStopLossTakeProfit(ctx context.Context, tradingEnabled bool) ([]Result, error) {
	open, err := e.store.ListOpenPositions()
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, pos := range open {
		if pos.StopLossPrice == nil && pos.TakeProfitPrice == nil {
			continue
		}

		ticker, err := e.broker.GetPriceCtx(ctx, pos.Symbol)
		if err != nil {
			e.logger.Printf("SL/TP scan: failed to fetch price for %s: %v", pos.Symbol, err)
			continue
		}
		price, err := decimal.NewFromString(ticker.Price)
		if err != nil {
			continue
		}

		var reason string
		switch {
		case pos.StopLossPrice != nil && price.LessThanOrEqual(*pos.StopLossPrice):
			reason = fmt.Sprintf("[STOP_LOSS] @ %s", price)
		case pos.TakeProfitPrice != nil && price.GreaterThanOrEqual(*pos.TakeProfitPrice):
			reason = fmt.Sprintf("[TAKE_PROFIT] @ %s", price)
		default:
			continue
		}

		if !tradingEnabled {
			_, _ = e.store.AppendRiskEvent(models.RiskEvent{
				Type:       "stop_loss_suppressed",
				Severity:   models.SeverityCritical,
				Message:    fmt.Sprintf("%s triggered for %s but trading is disabled", reason, pos.Symbol),
				PositionID: pos.ID,
			})
			continue
		}

		p, err := e.store.InsertProposal(&models.Proposal{
			Side:      models.SideSell,
			Symbol:    pos.Symbol,
			Quantity:  pos.CurrentQuantity,
			Notional:  price.Mul(pos.CurrentQuantity),
			OrderType: models.OrderTypeMarket,
			Status:    models.ProposalApproved,
			Reasoning: reason,
		})
		if err != nil {
			e.logger.Printf("SL/TP scan: failed to synthesize proposal for %s: %v", pos.Symbol, err)
			continue
		}
		results = append(results, e.Execute(ctx, p.ID))
	}
	return results, nil
}

func (e *Executor) fail(proposalID string, cause error) Result {
	if _, err := e.engine.MarkErrored(proposalID, cause.Error()); err != nil {
		e.logger.Printf("failed to mark proposal %s errored: %v", proposalID, err)
	}
	_, _ = e.store.AppendRiskEvent(models.RiskEvent{
		Type:       "execution_error",
		Severity:   models.SeverityCritical,
		Message:    fmt.Sprintf("Execution failed: %v", cause),
		ProposalID: proposalID,
	})
	return Result{ProposalID: proposalID, Error: cause.Error()}
}

// fillDetails extracts the executed price/qty/commission from an order's
// fills, falling back to the order's own price/origQty fields, matching
// executor.py's fallback chain: fills[0].price → order.price → (caller
// falls back further to a fresh ticker read).
func fillDetails(order *broker.Order, requestedQty decimal.Decimal) (price, qty, commission decimal.Decimal, commissionAsset string) {
	qty = requestedQty
	if v, err := decimal.NewFromString(order.ExecutedQty); err == nil && !v.IsZero() {
		qty = v
	}

	commissionAsset = "BNB"
	if len(order.Fills) > 0 {
		if v, err := decimal.NewFromString(order.Fills[0].Price); err == nil {
			price = v
		}
		if order.Fills[0].CommissionAsset != "" {
			commissionAsset = order.Fills[0].CommissionAsset
		}
		for _, f := range order.Fills {
			if c, err := decimal.NewFromString(f.Commission); err == nil {
				commission = commission.Add(c)
			}
		}
	}
	if price.IsZero() {
		if v, err := decimal.NewFromString(order.Price); err == nil {
			price = v
		}
	}
	return price, qty, commission, commissionAsset
}

// openPosition inserts a new open position for a buy fill, grounded on
// executor.py's _open_position: unrealized P&L uses the current ticker
// price when available, falling back to the fill price itself.
func (e *Executor) openPosition(ctx context.Context, p *models.Proposal, price, qty, commission decimal.Decimal, commissionAsset string) error {
	currentPrice := price
	if ticker, err := e.broker.GetPriceCtx(ctx, p.Symbol); err == nil {
		if v, pErr := decimal.NewFromString(ticker.Price); pErr == nil {
			currentPrice = v
		}
	}

	notional := price.Mul(qty)
	unrealizedPnL := currentPrice.Sub(price).Mul(qty).Sub(commission)
	unrealizedPnLPct := decimal.Zero
	if notional.IsPositive() {
		unrealizedPnLPct = unrealizedPnL.Div(notional).Mul(decimal.NewFromInt(100))
	}

	_, err := e.store.InsertPosition(&models.Position{
		Symbol:           p.Symbol,
		Side:             models.SideBuy,
		EntryPrice:       price,
		EntryQuantity:    qty,
		EntryNotional:    notional,
		EntryOrderID:     p.BrokerOrderID,
		EntryProposalID:  p.ID,
		CurrentPrice:     currentPrice,
		CurrentQuantity:  qty,
		UnrealizedPnL:    unrealizedPnL,
		UnrealizedPnLPct: unrealizedPnLPct,
		TotalCommission:  commission,
		CommissionAsset:  commissionAsset,
		Status:           models.PositionOpen,
		Strategy:         p.Strategy,
	})
	if err != nil {
		return err
	}

	_, _ = e.store.AppendRiskEvent(models.RiskEvent{
		Type:       "position_opened",
		Severity:   models.SeverityInfo,
		Message:    fmt.Sprintf("Opened LONG %s %s @ %s", qty, p.Symbol, price),
		ProposalID: p.ID,
	})
	return nil
}

// closePosition closes (or partially closes) the oldest open position for
// the sold symbol, grounded on executor.py's _close_position: realized P&L
// nets the exit proceeds against entry cost and cumulative commission, and
// any remainder above a dust threshold keeps the position partially_closed.
func (e *Executor) closePosition(p *models.Proposal, exitPrice, exitQty, commission decimal.Decimal) error {
	open, err := e.store.ListOpenPositionsBySymbol(p.Symbol)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		e.logger.Printf("no open position found for %s to close", p.Symbol)
		return nil
	}
	pos := open[0]

	_, err = e.store.UpdatePosition(pos.ID, []models.PositionStatus{models.PositionOpen, models.PositionPartiallyClose}, func(cp *models.Position) error {
		// realized_pnl accumulates across partial closes: each close event
		// contributes (exit-entry)*qty minus that event's own commission,
		// never the running total, or a later close would subtract the
		// earlier closes' commission all over again.
		exitNotional := exitPrice.Mul(exitQty)
		entryCostBasis := cp.EntryPrice.Mul(exitQty)
		realizedPnL := exitNotional.Sub(entryCostBasis).Sub(commission)

		remaining := cp.CurrentQuantity.Sub(exitQty)
		const dust = "0.0001"
		dustThreshold, _ := decimal.NewFromString(dust)

		cp.TotalCommission = cp.TotalCommission.Add(commission)
		cp.RealizedPnL = cp.RealizedPnL.Add(realizedPnL)
		if cp.EntryNotional.IsPositive() {
			cp.RealizedPnLPct = cp.RealizedPnL.Div(cp.EntryNotional).Mul(decimal.NewFromInt(100))
		}

		if remaining.LessThanOrEqual(dustThreshold) {
			cp.Status = models.PositionClosed
			cp.CurrentQuantity = decimal.Zero
			now := time.Now().UTC()
			cp.ClosedAt = &now
		} else {
			cp.Status = models.PositionPartiallyClose
			cp.CurrentQuantity = remaining
		}
		return nil
	})
	if err != nil {
		return err
	}

	_, _ = e.store.AppendRiskEvent(models.RiskEvent{
		Type:       "position_closed",
		Severity:   models.SeverityInfo,
		Message:    fmt.Sprintf("Closed %s %s @ %s", exitQty, p.Symbol, exitPrice),
		ProposalID: p.ID,
	})
	return nil
}
