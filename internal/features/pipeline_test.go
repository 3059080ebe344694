package features

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/store"
)

// fakeBrokerCtx is a minimal broker.BrokerCtx stub that serves a fixed
// synthetic candle series, enough klines deep to clear every analyzer's
// minimum window.
type fakeBrokerCtx struct{}

func (f *fakeBrokerCtx) GetPriceCtx(ctx context.Context, symbol string) (*broker.PriceTicker, error) {
	return &broker.PriceTicker{Symbol: symbol, Price: "30000"}, nil
}
func (f *fakeBrokerCtx) GetTicker24hrCtx(ctx context.Context, symbol string) (*broker.Ticker24hr, error) {
	return &broker.Ticker24hr{Symbol: symbol}, nil
}
func (f *fakeBrokerCtx) GetKlinesCtx(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]broker.Kline, error) {
	n := 150
	out := make([]broker.Kline, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	price := 30000.0
	for i := 0; i < n; i++ {
		price += 1
		out[i] = broker.Kline{
			OpenTime:      base + int64(i)*60000,
			Open:          fmt.Sprintf("%.2f", price-1),
			High:          fmt.Sprintf("%.2f", price+5),
			Low:           fmt.Sprintf("%.2f", price-5),
			Close:         fmt.Sprintf("%.2f", price),
			Volume:        "10",
			CloseTime:     base + int64(i)*60000 + 59999,
			QuoteVolume:   "300000",
			Trades:        100,
			TakerBuyBase:  "5",
			TakerBuyQuote: "150000",
		}
	}
	return out, nil
}
func (f *fakeBrokerCtx) GetAccountCtx(ctx context.Context) (*broker.AccountInfo, error) {
	return &broker.AccountInfo{}, nil
}
func (f *fakeBrokerCtx) PlaceOrderCtx(ctx context.Context, symbol, side, orderType, quantity, price string) (*broker.Order, error) {
	return &broker.Order{Symbol: symbol}, nil
}
func (f *fakeBrokerCtx) GetOrderCtx(ctx context.Context, symbol string, orderID int64) (*broker.Order, error) {
	return &broker.Order{Symbol: symbol, OrderID: orderID}, nil
}
func (f *fakeBrokerCtx) GetOpenOrdersCtx(ctx context.Context, symbol string) ([]broker.Order, error) {
	return nil, nil
}
func (f *fakeBrokerCtx) CancelOrderCtx(ctx context.Context, symbol string, orderID int64) (*broker.Order, error) {
	return &broker.Order{Symbol: symbol, OrderID: orderID}, nil
}

var _ broker.BrokerCtx = (*fakeBrokerCtx)(nil)

func TestPipeline_TickPopulatesIndicatorsEveryTick(t *testing.T) {
	s := store.NewInMemory()
	p := NewPipeline(Config{
		Broker:   &fakeBrokerCtx{},
		Store:    s,
		Symbols:  []string{"BTCUSDT"},
		Interval: "1m",
	})

	err := p.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p.Errors())

	snap, ok := s.GetIndicators("BTCUSDT", "1m")
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
}

func TestPipeline_TickRunsRegimeOnlyOnCadence(t *testing.T) {
	s := store.NewInMemory()
	p := NewPipeline(Config{
		Broker:   &fakeBrokerCtx{},
		Store:    s,
		Symbols:  []string{"BTCUSDT"},
		Interval: "1m",
	})

	for i := 0; i < regimeEveryNTicks-1; i++ {
		require.NoError(t, p.Tick(context.Background()))
	}
	_, ok := s.GetRegime("BTCUSDT", "1m")
	assert.False(t, ok, "regime should not populate before its cadence tick")

	require.NoError(t, p.Tick(context.Background()))
	_, ok = s.GetRegime("BTCUSDT", "1m")
	assert.True(t, ok, "regime should populate exactly on its cadence tick")
}

func TestPipeline_SizingPersistsRecommendation(t *testing.T) {
	s := store.NewInMemory()
	p := NewPipeline(Config{
		Broker:   &fakeBrokerCtx{},
		Store:    s,
		Symbols:  []string{"BTCUSDT"},
		Interval: "1m",
	})

	rec, err := p.Sizing(SizingInputs{
		Symbol:          "BTCUSDT",
		AccountBalance:  10000,
		WinRate:         0.6,
		WinLossRatio:    2,
		ATR:             50,
		Price:           30000,
		RiskPerTradePct: 0.01,
		ATRMultiplier:   2,
		MaxPositionUSD:  500,
	})
	require.NoError(t, err)

	got, ok := s.GetSizing("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, rec.RecommendedSize.String(), got.RecommendedSize.String())
}
