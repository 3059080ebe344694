package features

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/models"
)

// syntheticKlines builds n candles starting at a base price and advancing
// one minute per candle, applying drift (per-candle log-return) plus a
// small deterministic oscillation so indicators see real variance.
func syntheticKlines(n int, basePrice, drift float64) []models.Kline {
	out := make([]models.Kline, n)
	price := basePrice
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		wobble := math.Sin(float64(i)/3.0) * basePrice * 0.002
		price = price*math.Exp(drift) + wobble
		high := price * 1.004
		low := price * 0.996
		open := price * 0.999
		out[i] = models.Kline{
			Symbol:   "BTCUSDT",
			Interval: "1m",
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     decimal.NewFromFloat(open),
			High:     decimal.NewFromFloat(high),
			Low:      decimal.NewFromFloat(low),
			Close:    decimal.NewFromFloat(price),
			Volume:   decimal.NewFromFloat(10 + float64(i%5)),
			CloseTime: start.Add(time.Duration(i)*time.Minute + time.Minute - time.Second),
		}
	}
	return out
}
