package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBroker lets tests flip failure behavior without standing up HTTP.
type stubBroker struct {
	calls      int
	shouldFail bool
	failAfter  int
}

func (s *stubBroker) fail() bool {
	s.calls++
	return s.shouldFail && s.calls > s.failAfter
}

func (s *stubBroker) GetPrice(symbol string) (*PriceTicker, error) {
	if s.fail() {
		return nil, errors.New("stub broker error")
	}
	return &PriceTicker{Symbol: symbol, Price: "100.0"}, nil
}
func (s *stubBroker) GetTicker24hr(symbol string) (*Ticker24hr, error) {
	if s.fail() {
		return nil, errors.New("stub broker error")
	}
	return &Ticker24hr{Symbol: symbol}, nil
}
func (s *stubBroker) GetKlines(symbol, interval string, limit int, startTime, endTime int64) ([]Kline, error) {
	if s.fail() {
		return nil, errors.New("stub broker error")
	}
	return []Kline{}, nil
}
func (s *stubBroker) GetAccount() (*AccountInfo, error) {
	if s.fail() {
		return nil, errors.New("stub broker error")
	}
	return &AccountInfo{}, nil
}
func (s *stubBroker) PlaceOrder(symbol, side, orderType, quantity, price string) (*Order, error) {
	if s.fail() {
		return nil, errors.New("stub broker error")
	}
	return &Order{Symbol: symbol, OrderID: 1}, nil
}
func (s *stubBroker) GetOrder(symbol string, orderID int64) (*Order, error) {
	if s.fail() {
		return nil, errors.New("stub broker error")
	}
	return &Order{Symbol: symbol, OrderID: orderID}, nil
}
func (s *stubBroker) GetOpenOrders(symbol string) ([]Order, error) {
	if s.fail() {
		return nil, errors.New("stub broker error")
	}
	return []Order{}, nil
}
func (s *stubBroker) CancelOrder(symbol string, orderID int64) (*Order, error) {
	if s.fail() {
		return nil, errors.New("stub broker error")
	}
	return &Order{Symbol: symbol, OrderID: orderID}, nil
}

func (s *stubBroker) GetPriceCtx(ctx context.Context, symbol string) (*PriceTicker, error) {
	return s.GetPrice(symbol)
}
func (s *stubBroker) GetTicker24hrCtx(ctx context.Context, symbol string) (*Ticker24hr, error) {
	return s.GetTicker24hr(symbol)
}
func (s *stubBroker) GetKlinesCtx(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]Kline, error) {
	return s.GetKlines(symbol, interval, limit, startTime, endTime)
}
func (s *stubBroker) GetAccountCtx(ctx context.Context) (*AccountInfo, error) {
	return s.GetAccount()
}
func (s *stubBroker) PlaceOrderCtx(ctx context.Context, symbol, side, orderType, quantity, price string) (*Order, error) {
	return s.PlaceOrder(symbol, side, orderType, quantity, price)
}
func (s *stubBroker) GetOrderCtx(ctx context.Context, symbol string, orderID int64) (*Order, error) {
	return s.GetOrder(symbol, orderID)
}
func (s *stubBroker) GetOpenOrdersCtx(ctx context.Context, symbol string) ([]Order, error) {
	return s.GetOpenOrders(symbol)
}
func (s *stubBroker) CancelOrderCtx(ctx context.Context, symbol string, orderID int64) (*Order, error) {
	return s.CancelOrder(symbol, orderID)
}

func TestNewCircuitBreakerBroker(t *testing.T) {
	stub := &stubBroker{}
	cb := NewCircuitBreakerBroker(stub)
	require.NotNil(t, cb)
	assert.Same(t, stub, cb.broker)
	assert.NotNil(t, cb.breaker)
}

func TestCircuitBreakerBroker_SuccessfulCalls(t *testing.T) {
	cb := NewCircuitBreakerBroker(&stubBroker{})

	price, err := cb.GetPrice("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", price.Symbol)

	order, err := cb.PlaceOrder("BTCUSDT", "buy", "MARKET", "0.01", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.OrderID)
}

func TestCircuitBreakerBroker_TripsOpenOnSustainedFailure(t *testing.T) {
	stub := &stubBroker{shouldFail: true, failAfter: 0}
	settings := CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     10 * time.Millisecond,
		Timeout:      20 * time.Millisecond,
		MinRequests:  1,
		FailureRatio: 0.5,
	}
	cb := NewCircuitBreakerBrokerWithSettings(stub, settings)

	_, err := cb.GetPrice("BTCUSDT")
	require.Error(t, err)
	_, err = cb.GetPrice("BTCUSDT")
	require.Error(t, err)

	assert.Equal(t, gobreaker.StateOpen, cb.breaker.State())

	_, err = cb.GetPrice("BTCUSDT")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState, "once open, calls fail fast without reaching the broker")
}

func TestCircuitBreakerBroker_CtxCallsShareBreakerState(t *testing.T) {
	cb := NewCircuitBreakerBroker(&stubBroker{})
	ctx := context.Background()

	price, err := cb.GetPriceCtx(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", price.Symbol)

	order, err := cb.PlaceOrderCtx(ctx, "BTCUSDT", "buy", "MARKET", "0.01", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.OrderID)
}

func TestCircuitBreakerBroker_CtxCallsTripOpenWithNonCtxCalls(t *testing.T) {
	stub := &stubBroker{shouldFail: true, failAfter: 0}
	settings := CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     10 * time.Millisecond,
		Timeout:      20 * time.Millisecond,
		MinRequests:  1,
		FailureRatio: 0.5,
	}
	cb := NewCircuitBreakerBrokerWithSettings(stub, settings)
	ctx := context.Background()

	_, err := cb.GetPriceCtx(ctx, "BTCUSDT")
	require.Error(t, err)
	_, err = cb.GetPrice("BTCUSDT")
	require.Error(t, err)

	assert.Equal(t, gobreaker.StateOpen, cb.breaker.State())

	_, err = cb.GetPriceCtx(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState, "ctx and non-ctx calls share one breaker, so either path trips it for both")
}
