package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/store"
)

type fakeBroker struct {
	openOrders []broker.Order
	orderByID  map[int64]*broker.Order
	account    *broker.AccountInfo
	err        error
}

func (f *fakeBroker) GetPriceCtx(ctx context.Context, symbol string) (*broker.PriceTicker, error) {
	return &broker.PriceTicker{Symbol: symbol, Price: "0"}, nil
}
func (f *fakeBroker) GetTicker24hrCtx(ctx context.Context, symbol string) (*broker.Ticker24hr, error) {
	return nil, nil
}
func (f *fakeBroker) GetKlinesCtx(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]broker.Kline, error) {
	return nil, nil
}
func (f *fakeBroker) GetAccountCtx(ctx context.Context) (*broker.AccountInfo, error) {
	if f.account == nil {
		return &broker.AccountInfo{}, nil
	}
	return f.account, nil
}
func (f *fakeBroker) PlaceOrderCtx(ctx context.Context, symbol, side, orderType, quantity, price string) (*broker.Order, error) {
	return nil, nil
}
func (f *fakeBroker) GetOrderCtx(ctx context.Context, symbol string, orderID int64) (*broker.Order, error) {
	if o, ok := f.orderByID[orderID]; ok {
		return o, nil
	}
	return nil, errors.New("not found")
}
func (f *fakeBroker) GetOpenOrdersCtx(ctx context.Context, symbol string) ([]broker.Order, error) {
	return f.openOrders, f.err
}
func (f *fakeBroker) CancelOrderCtx(ctx context.Context, symbol string, orderID int64) (*broker.Order, error) {
	return nil, nil
}

var _ broker.BrokerCtx = (*fakeBroker)(nil)

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Notify(ctx context.Context, message string) error {
	n.messages = append(n.messages, message)
	return nil
}

func TestReconciler_Run_NoDivergencesOnExactMatch(t *testing.T) {
	s := store.NewInMemory()
	_, err := s.InsertProposal(&models.Proposal{
		Side: models.SideBuy, Symbol: "BTCUSDT",
		Quantity: decimal.NewFromFloat(0.01), Notional: decimal.NewFromFloat(300),
		Status:        models.ProposalApproved,
		BrokerOrderID: "42",
	})
	require.NoError(t, err)

	fb := &fakeBroker{openOrders: []broker.Order{{OrderID: 42, Symbol: "BTCUSDT", Status: "NEW"}}}
	n := &fakeNotifier{}
	r := New(fb, s, n, nil)

	run, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ReconRunSuccess, run.Status)
	assert.Equal(t, 0, run.DivergencesFound)
	assert.Empty(t, n.messages)
}

func TestReconciler_Run_DetectsOrphanOrder(t *testing.T) {
	s := store.NewInMemory()
	fb := &fakeBroker{openOrders: []broker.Order{{OrderID: 42, Symbol: "BTCUSDT", Status: "NEW"}}}
	n := &fakeNotifier{}
	r := New(fb, s, n, nil)

	run, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, run.Divergences, 1)
	assert.Equal(t, models.DivergenceOrphan, run.Divergences[0].Type)
	assert.Equal(t, "42", run.Divergences[0].OrderID)
	assert.Len(t, n.messages, 1)
}

func TestReconciler_Run_DetectsStaleApprovedProposal(t *testing.T) {
	s := store.NewInMemory()
	p, err := s.InsertProposal(&models.Proposal{
		Side: models.SideBuy, Symbol: "BTCUSDT",
		Quantity: decimal.NewFromFloat(0.01), Notional: decimal.NewFromFloat(300),
		Status:        models.ProposalApproved,
		BrokerOrderID: "99",
	})
	require.NoError(t, err)

	fb := &fakeBroker{
		orderByID: map[int64]*broker.Order{
			99: {OrderID: 99, Symbol: "BTCUSDT", Status: "FILLED"},
		},
	}
	r := New(fb, s, nil, nil)

	run, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, run.Divergences, 1)
	assert.Equal(t, models.DivergenceStale, run.Divergences[0].Type)
	assert.Equal(t, p.ID, run.Divergences[0].ProposalID)
	assert.Equal(t, "FILLED", run.Divergences[0].ExchangeStatus)
}

func TestReconciler_Run_IgnoresStaleCheckForExecutedProposals(t *testing.T) {
	// Executed proposals aren't re-checked against the exchange even if
	// their order has left the open-orders set — they settled already.
	s := store.NewInMemory()
	_, err := s.InsertProposal(&models.Proposal{
		Side: models.SideBuy, Symbol: "BTCUSDT",
		Quantity: decimal.NewFromFloat(0.01), Notional: decimal.NewFromFloat(300),
		Status:        models.ProposalExecuted,
		BrokerOrderID: "7",
	})
	require.NoError(t, err)

	fb := &fakeBroker{}
	r := New(fb, s, nil, nil)

	run, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, run.DivergencesFound)
}

func TestReconciler_Run_ErrorsWhenOpenOrdersFetchFails(t *testing.T) {
	s := store.NewInMemory()
	fb := &fakeBroker{err: errors.New("exchange unreachable")}
	r := New(fb, s, nil, nil)

	run, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.ReconRunError, run.Status)
	assert.NotEmpty(t, run.Error)

	stored, err := s.GetReconciliationRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReconRunError, stored.Status)
}

func TestReconciler_Run_CapturesBalanceSnapshot(t *testing.T) {
	s := store.NewInMemory()
	fb := &fakeBroker{
		account: &broker.AccountInfo{Balances: []broker.Balance{
			{Asset: "USDT", Free: "100.5", Locked: "0"},
			{Asset: "BNB", Free: "0", Locked: "0"},
		}},
	}
	r := New(fb, s, nil, nil)

	run, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, run.BalanceSnapshot, "USDT")
	assert.True(t, run.BalanceSnapshot["USDT"].Equal(decimal.NewFromFloat(100.5)))
	assert.NotContains(t, run.BalanceSnapshot, "BNB")
}

func TestReconciler_Run_DoesNotMutateProposalsOrPositions(t *testing.T) {
	s := store.NewInMemory()
	p, err := s.InsertProposal(&models.Proposal{
		Side: models.SideBuy, Symbol: "BTCUSDT",
		Quantity: decimal.NewFromFloat(0.01), Notional: decimal.NewFromFloat(300),
		Status:        models.ProposalApproved,
		BrokerOrderID: "99",
	})
	require.NoError(t, err)

	fb := &fakeBroker{
		orderByID: map[int64]*broker.Order{
			99: {OrderID: 99, Symbol: "BTCUSDT", Status: "FILLED"},
		},
	}
	r := New(fb, s, nil, nil)

	_, err = r.Run(context.Background())
	require.NoError(t, err)

	unchanged, err := s.GetProposal(p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalApproved, unchanged.Status)
}
