package broker

import (
	"encoding/json"
	"fmt"
)

// PriceTicker is the response from GET /api/v3/ticker/price.
type PriceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Ticker24hr is the response from GET /api/v3/ticker/24hr.
type Ticker24hr struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	OpenTime           int64  `json:"openTime"`
	CloseTime          int64  `json:"closeTime"`
	Count              int64  `json:"count"`
}

// Kline is one OHLCV candle as returned by GET /api/v3/klines, parsed from
// the exchange's positional array: {0 open_time, 1 open, 2 high, 3 low,
// 4 close, 5 volume, 6 close_time, 7 quote_volume, 8 trades,
// 9 taker_buy_base, 10 taker_buy_quote, 11 ignore}.
type Kline struct {
	OpenTime      int64
	Open          string
	High          string
	Low           string
	Close         string
	Volume        string
	CloseTime     int64
	QuoteVolume   string
	Trades        int64
	TakerBuyBase  string
	TakerBuyQuote string
}

// UnmarshalJSON decodes a Kline from its positional-array wire form.
func (k *Kline) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) < 11 {
		return fmt.Errorf("broker: kline array has %d fields, want at least 11", len(raw))
	}
	fields := []interface{}{
		&k.OpenTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume,
		&k.CloseTime, &k.QuoteVolume, &k.Trades, &k.TakerBuyBase, &k.TakerBuyQuote,
	}
	for i, f := range fields {
		if err := json.Unmarshal(raw[i], f); err != nil {
			return fmt.Errorf("broker: kline field %d: %w", i, err)
		}
	}
	return nil
}

// Balance is one asset line from GET /api/v3/account.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// AccountInfo is the response from GET /api/v3/account.
type AccountInfo struct {
	MakerCommission  int64     `json:"makerCommission"`
	TakerCommission  int64     `json:"takerCommission"`
	CanTrade         bool      `json:"canTrade"`
	CanWithdraw      bool      `json:"canWithdraw"`
	CanDeposit       bool      `json:"canDeposit"`
	Balances         []Balance `json:"balances"`
	UpdateTime       int64     `json:"updateTime"`
}

// Fill is one execution report nested in an Order response.
type Fill struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	TradeID         int64  `json:"tradeId"`
}

// Order is the response shape for place_order, get_order, get_open_orders,
// and cancel_order.
type Order struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CumulativeQuoteQty  string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	TimeInForce         string `json:"timeInForce"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	Fills               []Fill `json:"fills,omitempty"`
}
