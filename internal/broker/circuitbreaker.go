package broker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// ctxCapableBroker is satisfied by anything implementing both Broker and
// BrokerCtx — in practice, *Client. CircuitBreakerBroker requires both so
// it can guard every call path a caller might use, ctx or not, with the
// same breaker state.
type ctxCapableBroker interface {
	Broker
	BrokerCtx
}

// CircuitBreakerSettings configures the gobreaker.CircuitBreaker wrapping a
// Broker. Field names and shape are carried over from the teacher's own
// test file (internal/broker/interface_test.go), which specifies this
// struct even though the teacher never implements it.
type CircuitBreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultCircuitBreakerSettings trips once at least half of at least 5 calls
// in a 60s window fail, and probes again after 30s.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.5,
	}
}

// CircuitBreakerBroker wraps a Broker with a gobreaker.CircuitBreaker,
// tripping open once a configured fraction of calls fail within a window
// and rejecting calls fast until the cooldown elapses.
type CircuitBreakerBroker struct {
	broker  ctxCapableBroker
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerBroker wraps broker with DefaultCircuitBreakerSettings.
func NewCircuitBreakerBroker(broker ctxCapableBroker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, DefaultCircuitBreakerSettings())
}

// NewCircuitBreakerBrokerWithSettings wraps broker with explicit settings.
func NewCircuitBreakerBrokerWithSettings(broker ctxCapableBroker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	st := gobreaker.Settings{
		Name:        "broker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= settings.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
	}
	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

func (c *CircuitBreakerBroker) GetPrice(symbol string) (*PriceTicker, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) { return c.broker.GetPrice(symbol) })
	if err != nil {
		return nil, err
	}
	return v.(*PriceTicker), nil
}

func (c *CircuitBreakerBroker) GetTicker24hr(symbol string) (*Ticker24hr, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) { return c.broker.GetTicker24hr(symbol) })
	if err != nil {
		return nil, err
	}
	return v.(*Ticker24hr), nil
}

func (c *CircuitBreakerBroker) GetKlines(symbol, interval string, limit int, startTime, endTime int64) ([]Kline, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.broker.GetKlines(symbol, interval, limit, startTime, endTime)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Kline), nil
}

func (c *CircuitBreakerBroker) GetAccount() (*AccountInfo, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) { return c.broker.GetAccount() })
	if err != nil {
		return nil, err
	}
	return v.(*AccountInfo), nil
}

func (c *CircuitBreakerBroker) PlaceOrder(symbol, side, orderType, quantity, price string) (*Order, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.broker.PlaceOrder(symbol, side, orderType, quantity, price)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Order), nil
}

func (c *CircuitBreakerBroker) GetOrder(symbol string, orderID int64) (*Order, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) { return c.broker.GetOrder(symbol, orderID) })
	if err != nil {
		return nil, err
	}
	return v.(*Order), nil
}

func (c *CircuitBreakerBroker) GetOpenOrders(symbol string) ([]Order, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) { return c.broker.GetOpenOrders(symbol) })
	if err != nil {
		return nil, err
	}
	return v.([]Order), nil
}

func (c *CircuitBreakerBroker) CancelOrder(symbol string, orderID int64) (*Order, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) { return c.broker.CancelOrder(symbol, orderID) })
	if err != nil {
		return nil, err
	}
	return v.(*Order), nil
}

func (c *CircuitBreakerBroker) GetPriceCtx(ctx context.Context, symbol string) (*PriceTicker, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) { return c.broker.GetPriceCtx(ctx, symbol) })
	if err != nil {
		return nil, err
	}
	return v.(*PriceTicker), nil
}

func (c *CircuitBreakerBroker) GetTicker24hrCtx(ctx context.Context, symbol string) (*Ticker24hr, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) { return c.broker.GetTicker24hrCtx(ctx, symbol) })
	if err != nil {
		return nil, err
	}
	return v.(*Ticker24hr), nil
}

func (c *CircuitBreakerBroker) GetKlinesCtx(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]Kline, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.broker.GetKlinesCtx(ctx, symbol, interval, limit, startTime, endTime)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Kline), nil
}

func (c *CircuitBreakerBroker) GetAccountCtx(ctx context.Context) (*AccountInfo, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) { return c.broker.GetAccountCtx(ctx) })
	if err != nil {
		return nil, err
	}
	return v.(*AccountInfo), nil
}

func (c *CircuitBreakerBroker) PlaceOrderCtx(ctx context.Context, symbol, side, orderType, quantity, price string) (*Order, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.broker.PlaceOrderCtx(ctx, symbol, side, orderType, quantity, price)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Order), nil
}

func (c *CircuitBreakerBroker) GetOrderCtx(ctx context.Context, symbol string, orderID int64) (*Order, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) { return c.broker.GetOrderCtx(ctx, symbol, orderID) })
	if err != nil {
		return nil, err
	}
	return v.(*Order), nil
}

func (c *CircuitBreakerBroker) GetOpenOrdersCtx(ctx context.Context, symbol string) ([]Order, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) { return c.broker.GetOpenOrdersCtx(ctx, symbol) })
	if err != nil {
		return nil, err
	}
	return v.([]Order), nil
}

func (c *CircuitBreakerBroker) CancelOrderCtx(ctx context.Context, symbol string, orderID int64) (*Order, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) { return c.broker.CancelOrderCtx(ctx, symbol, orderID) })
	if err != nil {
		return nil, err
	}
	return v.(*Order), nil
}

var _ Broker = (*CircuitBreakerBroker)(nil)
var _ BrokerCtx = (*CircuitBreakerBroker)(nil)
