// Package models provides the record types shared across the control plane:
// proposals, positions, klines, derived feature snapshots, reconciliation
// runs, and risk events.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a proposal or position.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the broker order type requested for a proposal.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ProposalStatus is the lifecycle state of a Proposal. See ProposalStateMachine.
type ProposalStatus string

const (
	ProposalDraft      ProposalStatus = "draft"
	ProposalValidated  ProposalStatus = "validated"
	ProposalApproved   ProposalStatus = "approved"
	ProposalRejected   ProposalStatus = "rejected"
	ProposalExecuted   ProposalStatus = "executed"
	ProposalError      ProposalStatus = "error"
	ProposalDeadLetter ProposalStatus = "dead_letter"
	ProposalCancelled  ProposalStatus = "cancelled"
)

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	PositionOpen           PositionStatus = "open"
	PositionPartiallyClose PositionStatus = "partially_closed"
	PositionClosed         PositionStatus = "closed"
)

// Severity grades a RiskEvent.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// RegimeLabel classifies recent market behavior.
type RegimeLabel string

const (
	RegimeTrendingUp   RegimeLabel = "trending_up"
	RegimeTrendingDown RegimeLabel = "trending_down"
	RegimeRanging      RegimeLabel = "ranging"
	RegimeVolatile     RegimeLabel = "volatile"
	RegimeLowLiquidity RegimeLabel = "low_liquidity"
)

// DivergenceType classifies a reconciliation mismatch.
type DivergenceType string

const (
	DivergenceOrphan DivergenceType = "orphan"
	DivergenceStale  DivergenceType = "stale"
)

// ReconRunStatus is the lifecycle of a ReconciliationRun.
type ReconRunStatus string

const (
	ReconRunRunning ReconRunStatus = "running"
	ReconRunSuccess ReconRunStatus = "success"
	ReconRunError   ReconRunStatus = "error"
)

// CheckResult is one named outcome from the risk gate.
type CheckResult struct {
	Name    string           `json:"name"`
	Passed  bool             `json:"passed"`
	Message string           `json:"message"`
	Value   *decimal.Decimal `json:"value,omitempty"`
	Limit   *decimal.Decimal `json:"limit,omitempty"`
}

// Proposal is a record of one intended trade.
//
// Invariants: status transitions follow ProposalStateMachine's graph; once
// Status is ProposalExecuted, BrokerOrderID and the Executed* fields are set
// and must not change again; RetryCount only increases, except that a manual
// retry out of dead_letter resets it to 0.
type Proposal struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Side      Side            `json:"side"`
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"` // limit price, optional
	OrderType OrderType       `json:"order_type"`
	Notional  decimal.Decimal `json:"notional"`

	Status ProposalStatus `json:"status"`

	RiskScore      decimal.Decimal `json:"risk_score"`
	Checks         []CheckResult   `json:"checks"`
	AutoApproved   bool            `json:"auto_approved"`
	RejectReason   string          `json:"rejection_reason,omitempty"`

	BrokerOrderID    string           `json:"broker_order_id,omitempty"`
	ExecutedPrice    *decimal.Decimal `json:"executed_price,omitempty"`
	ExecutedQuantity *decimal.Decimal `json:"executed_quantity,omitempty"`
	Commission       decimal.Decimal  `json:"commission"`
	CommissionAsset  string           `json:"commission_asset,omitempty"`

	RetryCount   int    `json:"retry_count"`
	ErrorMessage string `json:"error_message,omitempty"`

	Strategy  string `json:"strategy,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`

	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`

	sm *ProposalStateMachine
}

// StateMachine returns the proposal's state machine, constructing one
// initialized to the current Status if it has not been attached yet (e.g.
// after loading a row back from the store).
func (p *Proposal) StateMachine() *ProposalStateMachine {
	if p.sm == nil {
		p.sm = NewProposalStateMachineFromStatus(p.Status)
	}
	return p.sm
}

// Transition moves the proposal to a new status through its state machine,
// and on success keeps the cached Status field in sync.
func (p *Proposal) Transition(to ProposalStatus, condition string) error {
	if err := p.StateMachine().Transition(to, condition); err != nil {
		return err
	}
	p.Status = to
	return nil
}

// Copy returns a deep copy of the proposal, safe to hand to callers that
// must not observe later mutation.
func (p *Proposal) Copy() *Proposal {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Checks = append([]CheckResult(nil), p.Checks...)
	if p.Price != nil {
		v := *p.Price
		cp.Price = &v
	}
	if p.ExecutedPrice != nil {
		v := *p.ExecutedPrice
		cp.ExecutedPrice = &v
	}
	if p.ExecutedQuantity != nil {
		v := *p.ExecutedQuantity
		cp.ExecutedQuantity = &v
	}
	cp.sm = p.sm.Copy()
	return &cp
}

// Position is an open or historical exposure to a symbol.
//
// Invariants: Status==open ⇒ CurrentQuantity > 0; Status==closed ⇒
// CurrentQuantity is ≈0 and ClosedAt is set; RealizedPnL accumulates across
// partial closes using EntryPrice as the cost basis.
type Position struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Side     Side   `json:"side"` // always "buy" (long) per spec scope

	EntryPrice    decimal.Decimal `json:"entry_price"`
	EntryQuantity decimal.Decimal `json:"entry_quantity"`
	EntryNotional decimal.Decimal `json:"entry_notional"`
	EntryOrderID  string          `json:"entry_order_id,omitempty"`
	EntryProposalID string        `json:"entry_proposal_id,omitempty"`

	CurrentPrice    decimal.Decimal `json:"current_price"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`

	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPct decimal.Decimal `json:"unrealized_pnl_pct"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	RealizedPnLPct   decimal.Decimal `json:"realized_pnl_pct"`
	TotalCommission  decimal.Decimal `json:"total_commission"`
	CommissionAsset  string          `json:"commission_asset,omitempty"`

	Status PositionStatus `json:"status"`

	StopLossPrice   *decimal.Decimal `json:"stop_loss_price,omitempty"`
	TakeProfitPrice *decimal.Decimal `json:"take_profit_price,omitempty"`

	Strategy string `json:"strategy,omitempty"`

	OpenedAt time.Time  `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// Copy returns a deep copy of the position.
func (p *Position) Copy() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	if p.StopLossPrice != nil {
		v := *p.StopLossPrice
		cp.StopLossPrice = &v
	}
	if p.TakeProfitPrice != nil {
		v := *p.TakeProfitPrice
		cp.TakeProfitPrice = &v
	}
	if p.ClosedAt != nil {
		v := *p.ClosedAt
		cp.ClosedAt = &v
	}
	return &cp
}

// Kline is one OHLCV candle. Unique on (Symbol, Interval, OpenTime).
type Kline struct {
	Symbol   string          `json:"symbol"`
	Interval string          `json:"interval"`
	OpenTime time.Time       `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
	CloseTime time.Time      `json:"close_time"`
	QuoteVolume decimal.Decimal `json:"quote_volume"`
	Trades      int64           `json:"trades"`
	TakerBuyBase  decimal.Decimal `json:"taker_buy_base"`
	TakerBuyQuote decimal.Decimal `json:"taker_buy_quote"`
}

// Key returns the natural key used for upsert.
func (k Kline) Key() KlineKey {
	return KlineKey{Symbol: k.Symbol, Interval: k.Interval, OpenTime: k.OpenTime}
}

// KlineKey is the natural key (symbol, interval, open_time).
type KlineKey struct {
	Symbol   string
	Interval string
	OpenTime time.Time
}

// IndicatorSnapshot is a derived technical-indicator record keyed by
// (symbol, interval), refreshed every feature-pipeline tick.
type IndicatorSnapshot struct {
	Symbol      string          `json:"symbol"`
	Interval    string          `json:"interval"`
	CandleTime  time.Time       `json:"candle_time"`
	RSI         decimal.Decimal `json:"rsi"`
	MACD        decimal.Decimal `json:"macd"`
	MACDHist    decimal.Decimal `json:"macd_hist"`
	ADX         decimal.Decimal `json:"adx"`
	ATR         decimal.Decimal `json:"atr"`
	BollingerUp decimal.Decimal `json:"bollinger_upper"`
	BollingerLo decimal.Decimal `json:"bollinger_lower"`
	ComputedAt  time.Time       `json:"computed_at"`
}

// EntropyReading is the Shannon-entropy gate input for (symbol, interval).
type EntropyReading struct {
	Symbol       string          `json:"symbol"`
	Interval     string          `json:"interval"`
	EntropyRatio decimal.Decimal `json:"entropy_ratio"`
	IsTradable   bool            `json:"is_tradable"`
	ComputedAt   time.Time       `json:"computed_at"`
}

// Regime is the market-regime classification for (symbol, interval).
type Regime struct {
	Symbol     string      `json:"symbol"`
	Interval   string      `json:"interval"`
	Label      RegimeLabel `json:"label"`
	Confidence decimal.Decimal `json:"confidence"` // 0-100
	ComputedAt time.Time   `json:"computed_at"`
}

// SRLevels is a support/resistance level set for (symbol, interval).
type SRLevels struct {
	Symbol     string            `json:"symbol"`
	Interval   string            `json:"interval"`
	Support    []decimal.Decimal `json:"support"`
	Resistance []decimal.Decimal `json:"resistance"`
	ComputedAt time.Time         `json:"computed_at"`
}

// SizingRecommendation is the position-sizing analyzer's output for a symbol.
type SizingRecommendation struct {
	Symbol          string          `json:"symbol"`
	RecommendedSize decimal.Decimal `json:"recommended_size"`
	HardCap         decimal.Decimal `json:"hard_cap"`
	ComputedAt      time.Time       `json:"computed_at"`
}

// AccountSnapshot is a one-per-day rollup of balances and daily P&L.
type AccountSnapshot struct {
	SnapshotDate    string          `json:"snapshot_date"` // YYYY-MM-DD (UTC)
	TotalBalance    decimal.Decimal `json:"total_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	LockedBalance   decimal.Decimal `json:"locked_balance"`
	OpenPositions   int             `json:"open_positions"`
	DailyPnL        decimal.Decimal `json:"daily_pnl"`
	CurrentDrawdown decimal.Decimal `json:"current_drawdown"`
	PeakBalance     decimal.Decimal `json:"peak_balance"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Divergence is one mismatch found during reconciliation.
type Divergence struct {
	Type           DivergenceType `json:"type"`
	Symbol         string         `json:"symbol,omitempty"`
	OrderID        string         `json:"order_id,omitempty"`
	ProposalID     string         `json:"proposal_id,omitempty"`
	ExchangeStatus string         `json:"exchange_status,omitempty"`
	Detail         string         `json:"detail,omitempty"`
}

// ReconciliationRun is a time-stamped audit record of one reconciliation pass.
type ReconciliationRun struct {
	ID               string                     `json:"id"`
	StartedAt        time.Time                  `json:"started_at"`
	FinishedAt       *time.Time                 `json:"finished_at,omitempty"`
	OrdersSynced     int                        `json:"orders_synced"`
	PositionsSynced  int                        `json:"positions_synced"`
	DivergencesFound int                        `json:"divergences_found"`
	Divergences      []Divergence               `json:"divergences"`
	ActionsTaken     []string                   `json:"actions_taken"`
	BalanceSnapshot  map[string]decimal.Decimal `json:"balance_snapshot,omitempty"`
	Status           ReconRunStatus             `json:"status"`
	DurationMS       int64                      `json:"duration_ms"`
	Error            string                     `json:"error,omitempty"`
}

// RiskEvent is an append-only audit entry.
type RiskEvent struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Severity   Severity               `json:"severity"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	ProposalID string                 `json:"proposal_id,omitempty"`
	PositionID string                 `json:"position_id,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// PerformanceMetric is a named rolling metric, upserted by metric_type.
type PerformanceMetric struct {
	MetricType string          `json:"metric_type"`
	Value      decimal.Decimal `json:"value"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// BacktestResult is one stored backtester run (external collaborator, §1).
type BacktestResult struct {
	ID         string                 `json:"id"`
	Strategy   string                 `json:"strategy"`
	Symbol     string                 `json:"symbol"`
	Params     map[string]interface{} `json:"params,omitempty"`
	PnL        decimal.Decimal        `json:"pnl"`
	WinRate    decimal.Decimal        `json:"win_rate"`
	TotalTrades int                   `json:"total_trades"`
	CreatedAt  time.Time              `json:"created_at"`
}
