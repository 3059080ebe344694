package broker

import "context"

// Broker is the exchange surface the rest of the control plane depends on —
// the Binance-spot-shaped generalization of the teacher's Broker interface
// (internal/broker/interface.go).
type Broker interface {
	GetPrice(symbol string) (*PriceTicker, error)
	GetTicker24hr(symbol string) (*Ticker24hr, error)
	GetKlines(symbol, interval string, limit int, startTime, endTime int64) ([]Kline, error)
	GetAccount() (*AccountInfo, error)
	PlaceOrder(symbol, side, orderType, quantity, price string) (*Order, error)
	GetOrder(symbol string, orderID int64) (*Order, error)
	GetOpenOrders(symbol string) ([]Order, error)
	CancelOrder(symbol string, orderID int64) (*Order, error)
}

var _ Broker = (*Client)(nil)

// BrokerCtx is the context-aware counterpart used by components that carry
// a context through to the wire call (the Executor and Feature Pipeline).
type BrokerCtx interface {
	GetPriceCtx(ctx context.Context, symbol string) (*PriceTicker, error)
	GetTicker24hrCtx(ctx context.Context, symbol string) (*Ticker24hr, error)
	GetKlinesCtx(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]Kline, error)
	GetAccountCtx(ctx context.Context) (*AccountInfo, error)
	PlaceOrderCtx(ctx context.Context, symbol, side, orderType, quantity, price string) (*Order, error)
	GetOrderCtx(ctx context.Context, symbol string, orderID int64) (*Order, error)
	GetOpenOrdersCtx(ctx context.Context, symbol string) ([]Order, error)
	CancelOrderCtx(ctx context.Context, symbol string, orderID int64) (*Order, error)
}

var _ BrokerCtx = (*Client)(nil)
