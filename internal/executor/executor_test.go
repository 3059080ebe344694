package executor

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/proposal"
	"github.com/eddiefleurent/spotctl/internal/risk"
	"github.com/eddiefleurent/spotctl/internal/store"
)

type fakeBroker struct {
	order *broker.Order
	err   error
	price string

	lastQuantity string
	lastPrice    string
}

func (f *fakeBroker) GetPriceCtx(ctx context.Context, symbol string) (*broker.PriceTicker, error) {
	p := f.price
	if p == "" {
		p = "30000"
	}
	return &broker.PriceTicker{Symbol: symbol, Price: p}, nil
}
func (f *fakeBroker) GetTicker24hrCtx(ctx context.Context, symbol string) (*broker.Ticker24hr, error) {
	return nil, nil
}
func (f *fakeBroker) GetKlinesCtx(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]broker.Kline, error) {
	return nil, nil
}
func (f *fakeBroker) GetAccountCtx(ctx context.Context) (*broker.AccountInfo, error) {
	return &broker.AccountInfo{Balances: []broker.Balance{{Asset: "USDT", Free: "5000"}}}, nil
}
func (f *fakeBroker) PlaceOrderCtx(ctx context.Context, symbol, side, orderType, quantity, price string) (*broker.Order, error) {
	f.lastQuantity = quantity
	f.lastPrice = price
	if f.err != nil {
		return nil, f.err
	}
	if f.order != nil {
		return f.order, nil
	}
	return &broker.Order{
		Symbol: symbol, OrderID: 555, Status: "FILLED",
		ExecutedQty: quantity,
		Fills:       []broker.Fill{{Price: "30000", Qty: quantity, Commission: "0.003", CommissionAsset: "BNB"}},
	}, nil
}
func (f *fakeBroker) GetOrderCtx(ctx context.Context, symbol string, orderID int64) (*broker.Order, error) {
	return nil, nil
}
func (f *fakeBroker) GetOpenOrdersCtx(ctx context.Context, symbol string) ([]broker.Order, error) {
	return nil, nil
}
func (f *fakeBroker) CancelOrderCtx(ctx context.Context, symbol string, orderID int64) (*broker.Order, error) {
	return nil, nil
}

var _ broker.BrokerCtx = (*fakeBroker)(nil)

type nonCtxBroker struct{ *fakeBroker }

func (n *nonCtxBroker) GetPrice(symbol string) (*broker.PriceTicker, error) {
	return n.fakeBroker.GetPriceCtx(context.Background(), symbol)
}
func (n *nonCtxBroker) GetTicker24hr(symbol string) (*broker.Ticker24hr, error) { return nil, nil }
func (n *nonCtxBroker) GetKlines(symbol, interval string, limit int, startTime, endTime int64) ([]broker.Kline, error) {
	return nil, nil
}
func (n *nonCtxBroker) GetAccount() (*broker.AccountInfo, error) {
	return n.fakeBroker.GetAccountCtx(context.Background())
}
func (n *nonCtxBroker) PlaceOrder(symbol, side, orderType, quantity, price string) (*broker.Order, error) {
	return n.fakeBroker.PlaceOrderCtx(context.Background(), symbol, side, orderType, quantity, price)
}
func (n *nonCtxBroker) GetOrder(symbol string, orderID int64) (*broker.Order, error) { return nil, nil }
func (n *nonCtxBroker) GetOpenOrders(symbol string) ([]broker.Order, error)          { return nil, nil }
func (n *nonCtxBroker) CancelOrder(symbol string, orderID int64) (*broker.Order, error) {
	return nil, nil
}

var _ broker.Broker = (*nonCtxBroker)(nil)

func newExecutor(fb *fakeBroker) (*Executor, *store.Store, *proposal.Engine) {
	s := store.NewInMemory()
	gate := risk.NewGate(s, &nonCtxBroker{fb}, risk.DefaultLimits())
	engine := proposal.NewEngine(s, gate)
	return New(fb, s, engine, nil), s, engine
}

func TestExecutor_Execute_BuyOpensPosition(t *testing.T) {
	fb := &fakeBroker{}
	e, s, engine := newExecutor(fb)

	p, err := engine.Create(proposal.CreateInput{
		Side: models.SideBuy, Symbol: "BTCUSDT",
		Quantity: decimal.NewFromFloat(0.01), Notional: decimal.NewFromFloat(60),
		Interval: "1m",
	})
	require.NoError(t, err)
	require.Equal(t, models.ProposalApproved, p.Status)

	result := e.Execute(context.Background(), p.ID)
	assert.True(t, result.Success)
	assert.Equal(t, "555", result.OrderID)

	executed, err := s.GetProposal(p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalExecuted, executed.Status)

	open, err := s.ListOpenPositionsBySymbol("BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].EntryQuantity.Equal(decimal.NewFromFloat(0.01)))
}

func TestExecutor_Execute_RoundsOrderToTickAndStepSize(t *testing.T) {
	fb := &fakeBroker{}
	e, _, engine := newExecutor(fb)
	e.SetTickSizes(map[string]float64{"BTCUSDT": 0.5}, map[string]float64{"BTCUSDT": 0.001})

	limitPrice := decimal.NewFromFloat(30000.37)
	p, err := engine.Create(proposal.CreateInput{
		Side: models.SideBuy, Symbol: "BTCUSDT",
		Quantity: decimal.NewFromFloat(0.0123), Notional: decimal.NewFromFloat(369),
		Price:    &limitPrice,
		Interval: "1m",
	})
	require.NoError(t, err)
	require.Equal(t, models.ProposalApproved, p.Status)

	result := e.Execute(context.Background(), p.ID)
	assert.True(t, result.Success)

	// step 0.001: 0.0123 floors to 0.012. tick 0.5, buy debit rounds up:
	// 30000.37 -> 30000.5.
	assert.Equal(t, "0.012", fb.lastQuantity)
	assert.Equal(t, "30000.5", fb.lastPrice)
}

func TestExecutor_Execute_RejectsNonApprovedProposal(t *testing.T) {
	fb := &fakeBroker{}
	e, s, _ := newExecutor(fb)

	p, err := s.InsertProposal(&models.Proposal{
		Side: models.SideBuy, Symbol: "BTCUSDT",
		Quantity: decimal.NewFromFloat(0.01), Notional: decimal.NewFromFloat(60),
		Status: models.ProposalDraft,
	})
	require.NoError(t, err)

	result := e.Execute(context.Background(), p.ID)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "must be approved")
}

func TestExecutor_Execute_BrokerErrorMarksErrored(t *testing.T) {
	fb := &fakeBroker{err: assertError{"exchange unreachable"}}
	e, s, engine := newExecutor(fb)

	p, err := engine.Create(proposal.CreateInput{
		Side: models.SideBuy, Symbol: "BTCUSDT",
		Quantity: decimal.NewFromFloat(0.01), Notional: decimal.NewFromFloat(60),
		Interval: "1m",
	})
	require.NoError(t, err)
	require.Equal(t, models.ProposalApproved, p.Status)

	result := e.Execute(context.Background(), p.ID)
	assert.False(t, result.Success)

	errored, err := s.GetProposal(p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalError, errored.Status)
}

func TestExecutor_Execute_SellClosesPosition(t *testing.T) {
	fb := &fakeBroker{}
	e, s, engine := newExecutor(fb)

	_, err := s.InsertPosition(&models.Position{
		Symbol: "BTCUSDT", Side: models.SideBuy,
		EntryPrice: decimal.NewFromFloat(29000), EntryQuantity: decimal.NewFromFloat(0.01),
		EntryNotional: decimal.NewFromFloat(290), CurrentQuantity: decimal.NewFromFloat(0.01),
		Status: models.PositionOpen,
	})
	require.NoError(t, err)

	sellP, err := s.InsertProposal(&models.Proposal{
		Side: models.SideSell, Symbol: "BTCUSDT",
		Quantity: decimal.NewFromFloat(0.01), Notional: decimal.NewFromFloat(300),
		Status: models.ProposalApproved,
	})
	require.NoError(t, err)
	_ = engine

	result := e.Execute(context.Background(), sellP.ID)
	assert.True(t, result.Success)

	closed, err := s.ListAllClosed()
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.True(t, closed[0].RealizedPnL.IsPositive())
}

func TestExecutor_Execute_MultiplePartialClosesAccumulateRealizedPnL(t *testing.T) {
	fb := &fakeBroker{}
	e, s, _ := newExecutor(fb)

	_, err := s.InsertPosition(&models.Position{
		Symbol: "BTCUSDT", Side: models.SideBuy,
		EntryPrice: decimal.NewFromFloat(100), EntryQuantity: decimal.NewFromFloat(10),
		EntryNotional: decimal.NewFromFloat(1000), CurrentQuantity: decimal.NewFromFloat(10),
		Status: models.PositionOpen,
	})
	require.NoError(t, err)

	sell := func(qty float64) {
		p, err := s.InsertProposal(&models.Proposal{
			Side: models.SideSell, Symbol: "BTCUSDT",
			Quantity: decimal.NewFromFloat(qty), Notional: decimal.NewFromFloat(qty * 30000),
			Status: models.ProposalApproved,
		})
		require.NoError(t, err)
		result := e.Execute(context.Background(), p.ID)
		require.True(t, result.Success)
	}

	// First partial close: 4 of 10 units, leaving the position
	// partially_closed rather than closed.
	sell(4)
	partial, err := s.ListOpenPositionsBySymbol("BTCUSDT")
	require.NoError(t, err)
	require.Len(t, partial, 1)
	require.Equal(t, models.PositionPartiallyClose, partial[0].Status)
	firstClose := partial[0].RealizedPnL

	// Second close: the remaining 6 units, closing the position entirely.
	sell(6)
	closed, err := s.ListAllClosed()
	require.NoError(t, err)
	require.Len(t, closed, 1)

	commission := decimal.RequireFromString("0.003")
	expectedFirst := decimal.NewFromFloat(30000 * 4).Sub(decimal.NewFromFloat(100 * 4)).Sub(commission)
	expectedSecond := decimal.NewFromFloat(30000 * 6).Sub(decimal.NewFromFloat(100 * 6)).Sub(commission)

	assert.True(t, firstClose.Equal(expectedFirst), "first close realized_pnl: got %s want %s", firstClose, expectedFirst)
	assert.True(t, closed[0].RealizedPnL.Equal(expectedFirst.Add(expectedSecond)),
		"realized_pnl must accumulate across partial closes: got %s want %s",
		closed[0].RealizedPnL, expectedFirst.Add(expectedSecond))
}

func TestExecuteAllApproved_RunsEveryApprovedProposal(t *testing.T) {
	fb := &fakeBroker{}
	e, _, engine := newExecutor(fb)

	for i := 0; i < 2; i++ {
		_, err := engine.Create(proposal.CreateInput{
			Side: models.SideBuy, Symbol: "ETHUSDT",
			Quantity: decimal.NewFromFloat(0.01), Notional: decimal.NewFromFloat(50),
			Interval: "1m",
		})
		require.NoError(t, err)
	}

	results, err := e.ExecuteAllApproved(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
	}
}

func TestExecutor_ScanStopLossTakeProfit_TriggersOnBreach(t *testing.T) {
	fb := &fakeBroker{price: "48900"}
	e, s, _ := newExecutor(fb)

	sl := decimal.NewFromFloat(49000)
	_, err := s.InsertPosition(&models.Position{
		Symbol: "BTCUSDT", Side: models.SideBuy,
		EntryPrice: decimal.NewFromFloat(50000), EntryQuantity: decimal.NewFromFloat(0.002),
		EntryNotional: decimal.NewFromFloat(100), CurrentQuantity: decimal.NewFromFloat(0.002),
		Status:        models.PositionOpen,
		StopLossPrice: &sl,
	})
	require.NoError(t, err)

	results, err := e.ScanStopLossTakeProfit(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	closed, err := s.ListAllClosed()
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.True(t, closed[0].RealizedPnL.IsNegative())
}

func TestExecutor_ScanStopLossTakeProfit_SuppressedWhenTradingDisabled(t *testing.T) {
	fb := &fakeBroker{price: "48900"}
	e, s, _ := newExecutor(fb)

	sl := decimal.NewFromFloat(49000)
	_, err := s.InsertPosition(&models.Position{
		Symbol: "BTCUSDT", Side: models.SideBuy,
		EntryPrice: decimal.NewFromFloat(50000), EntryQuantity: decimal.NewFromFloat(0.002),
		EntryNotional: decimal.NewFromFloat(100), CurrentQuantity: decimal.NewFromFloat(0.002),
		Status:        models.PositionOpen,
		StopLossPrice: &sl,
	})
	require.NoError(t, err)

	results, err := e.ScanStopLossTakeProfit(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, results, 0)

	open, err := s.ListOpenPositions()
	require.NoError(t, err)
	require.Len(t, open, 1)

	events, err := s.ListRiskEvents(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "stop_loss_suppressed", events[0].Type)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
