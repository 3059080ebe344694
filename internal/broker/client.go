// Package broker talks to a Binance-like spot exchange: signed and
// unsigned HTTP/JSON over REST, with a proxy-with-fallback routing policy
// and per-endpoint timeouts, grounded on the teacher's TradierAPI client
// (internal/broker/tradier.go) and generalized to the exchange surface in
// original_source/backend/app/services/binance_client.py.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Timeouts holds the per-endpoint-category durations spec §4.1 calls for:
// reads 10-15s, order placement 20s.
type Timeouts struct {
	Price  time.Duration // ticker/price, ticker/24hr
	Klines time.Duration
	Read   time.Duration // account, get_order, get_open_orders
	Place  time.Duration // place_order, cancel_order
}

// DefaultTimeouts matches spec §4.1's stated ranges.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Price:  10 * time.Second,
		Klines: 15 * time.Second,
		Read:   10 * time.Second,
		Place:  20 * time.Second,
	}
}

// Client is the Binance-like spot wire client. The zero value is not
// usable; construct with NewClient.
type Client struct {
	httpClient *http.Client

	baseURL     string // e.g. https://api.binance.com
	proxyURL    string // e.g. https://proxy.example.com; "" disables proxy routing
	proxySecret string // bearer credential for the proxy

	apiKey    string // X-MBX-APIKEY, sent on direct signed calls
	apiSecret string // HMAC signing key

	timeouts Timeouts
}

// Config carries everything needed to construct a Client.
type Config struct {
	BaseURL     string
	ProxyURL    string
	ProxySecret string
	APIKey      string
	APISecret   string
	HTTPClient  *http.Client
	Timeouts    *Timeouts
}

// NewClient constructs a Client from Config, defaulting BaseURL to the
// production Binance spot endpoint and filling in DefaultTimeouts.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.ProxyURL = strings.TrimRight(cfg.ProxyURL, "/")

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	timeouts := DefaultTimeouts()
	if cfg.Timeouts != nil {
		timeouts = *cfg.Timeouts
	}

	return &Client{
		httpClient:  client,
		baseURL:     cfg.BaseURL,
		proxyURL:    cfg.ProxyURL,
		proxySecret: cfg.ProxySecret,
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		timeouts:    timeouts,
	}
}

// GetPrice returns the latest trade price for symbol.
func (c *Client) GetPrice(symbol string) (*PriceTicker, error) {
	return c.GetPriceCtx(context.Background(), symbol)
}

// GetPriceCtx is the context-aware form of GetPrice.
func (c *Client) GetPriceCtx(ctx context.Context, symbol string) (*PriceTicker, error) {
	var p orderedParams
	p.add("symbol", symbol)
	var out PriceTicker
	if err := c.call(ctx, http.MethodGet, "/api/v3/ticker/price", p, false, c.timeouts.Price, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTicker24hr returns the rolling 24-hour stats for symbol.
func (c *Client) GetTicker24hr(symbol string) (*Ticker24hr, error) {
	return c.GetTicker24hrCtx(context.Background(), symbol)
}

// GetTicker24hrCtx is the context-aware form of GetTicker24hr.
func (c *Client) GetTicker24hrCtx(ctx context.Context, symbol string) (*Ticker24hr, error) {
	var p orderedParams
	p.add("symbol", symbol)
	var out Ticker24hr
	if err := c.call(ctx, http.MethodGet, "/api/v3/ticker/24hr", p, false, c.timeouts.Price, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetKlines returns up to limit candles for (symbol, interval), optionally
// bounded by [startTime, endTime] (unix milliseconds; zero means unbounded).
func (c *Client) GetKlines(symbol, interval string, limit int, startTime, endTime int64) ([]Kline, error) {
	return c.GetKlinesCtx(context.Background(), symbol, interval, limit, startTime, endTime)
}

// GetKlinesCtx is the context-aware form of GetKlines.
func (c *Client) GetKlinesCtx(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]Kline, error) {
	var p orderedParams
	p.add("symbol", symbol)
	p.add("interval", interval)
	if limit > 0 {
		p.addInt("limit", int64(limit))
	}
	if startTime > 0 {
		p.addInt("startTime", startTime)
	}
	if endTime > 0 {
		p.addInt("endTime", endTime)
	}
	var out []Kline
	if err := c.call(ctx, http.MethodGet, "/api/v3/klines", p, false, c.timeouts.Klines, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccount returns balances and trading permissions for the account.
func (c *Client) GetAccount() (*AccountInfo, error) {
	return c.GetAccountCtx(context.Background())
}

// GetAccountCtx is the context-aware form of GetAccount.
func (c *Client) GetAccountCtx(ctx context.Context) (*AccountInfo, error) {
	var p orderedParams
	var out AccountInfo
	if err := c.call(ctx, http.MethodGet, "/api/v3/account", p, true, c.timeouts.Read, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PlaceOrder submits a new order. price is ignored unless orderType is
// "LIMIT", in which case it is required and the order is sent GTC.
func (c *Client) PlaceOrder(symbol, side, orderType string, quantity string, price string) (*Order, error) {
	return c.PlaceOrderCtx(context.Background(), symbol, side, orderType, quantity, price)
}

// PlaceOrderCtx is the context-aware form of PlaceOrder.
func (c *Client) PlaceOrderCtx(ctx context.Context, symbol, side, orderType string, quantity, price string) (*Order, error) {
	var p orderedParams
	p.add("symbol", symbol)
	p.add("side", strings.ToUpper(side))
	p.add("type", strings.ToUpper(orderType))
	p.add("quantity", quantity)
	if strings.ToUpper(orderType) == "LIMIT" && price != "" {
		p.add("price", price)
		p.add("timeInForce", "GTC")
	}
	var out Order
	if err := c.call(ctx, http.MethodPost, "/api/v3/order", p, true, c.timeouts.Place, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder retrieves one order's current status.
func (c *Client) GetOrder(symbol string, orderID int64) (*Order, error) {
	return c.GetOrderCtx(context.Background(), symbol, orderID)
}

// GetOrderCtx is the context-aware form of GetOrder.
func (c *Client) GetOrderCtx(ctx context.Context, symbol string, orderID int64) (*Order, error) {
	var p orderedParams
	p.add("symbol", symbol)
	p.addInt("orderId", orderID)
	var out Order
	if err := c.call(ctx, http.MethodGet, "/api/v3/order", p, true, c.timeouts.Read, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOpenOrders lists open orders, optionally scoped to one symbol
// (symbol == "" means all symbols).
func (c *Client) GetOpenOrders(symbol string) ([]Order, error) {
	return c.GetOpenOrdersCtx(context.Background(), symbol)
}

// GetOpenOrdersCtx is the context-aware form of GetOpenOrders.
func (c *Client) GetOpenOrdersCtx(ctx context.Context, symbol string) ([]Order, error) {
	var p orderedParams
	if symbol != "" {
		p.add("symbol", symbol)
	}
	var out []Order
	if err := c.call(ctx, http.MethodGet, "/api/v3/openOrders", p, true, c.timeouts.Read, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CancelOrder cancels one order.
func (c *Client) CancelOrder(symbol string, orderID int64) (*Order, error) {
	return c.CancelOrderCtx(context.Background(), symbol, orderID)
}

// CancelOrderCtx is the context-aware form of CancelOrder.
func (c *Client) CancelOrderCtx(ctx context.Context, symbol string, orderID int64) (*Order, error) {
	var p orderedParams
	p.add("symbol", symbol)
	p.addInt("orderId", orderID)
	var out Order
	if err := c.call(ctx, http.MethodDelete, "/api/v3/order", p, true, c.timeouts.Place, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call implements the routing policy from spec §4.1: if a proxy is
// configured, try it first; on connection failure or 401/403, retry once
// against the direct exchange endpoint. The retry is stateless — neither
// outcome is remembered across calls.
func (c *Client) call(ctx context.Context, method, path string, params orderedParams, signed bool, timeout time.Duration, out interface{}) error {
	if signed {
		params.addInt("timestamp", time.Now().UnixMilli())
		params.add("signature", params.sign(c.apiSecret))
	}

	if c.proxyURL != "" {
		err := c.doRequest(ctx, c.proxyURL+"/binance"+path, method, params, timeout, c.proxyHeaders(), out)
		if err == nil {
			return nil
		}
		if !isFallbackEligible(err) {
			return err
		}
	}

	headers := map[string]string{}
	if signed {
		headers["X-MBX-APIKEY"] = c.apiKey
	}
	return c.doRequest(ctx, c.baseURL+path, method, params, timeout, headers, out)
}

func (c *Client) proxyHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.proxySecret}
}

// isFallbackEligible reports whether err justifies retrying against the
// direct endpoint: a connection-level failure, or an auth rejection from
// the proxy itself (401/403).
func isFallbackEligible(err error) bool {
	be, ok := err.(*BrokerError)
	if !ok {
		return false
	}
	return be.Kind == ErrKindNetwork || be.Kind == ErrKindAuth
}

func (c *Client) doRequest(ctx context.Context, rawURL, method string, params orderedParams, timeout time.Duration, headers map[string]string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var req *http.Request
	var err error
	if method == http.MethodGet || method == http.MethodDelete {
		full := rawURL
		if q := params.encode(); q != "" {
			full += "?" + q
		}
		req, err = http.NewRequestWithContext(ctx, method, full, http.NoBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, rawURL, strings.NewReader(params.encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return &BrokerError{Kind: ErrKindNetwork, Message: err.Error()}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &BrokerError{Kind: ErrKindTimeout, Message: err.Error()}
		}
		return &BrokerError{Kind: ErrKindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return &BrokerError{Kind: ErrKindNetwork, Message: err.Error()}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &BrokerError{Kind: ErrKindAuth, Code: strconv.Itoa(resp.StatusCode), Message: string(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &BrokerError{Kind: ErrKindExchange, Code: strconv.Itoa(resp.StatusCode), Message: string(body)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &BrokerError{Kind: ErrKindExchange, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}
