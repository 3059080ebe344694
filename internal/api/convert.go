package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/models"
)

// brokerKlineToModel converts the exchange's positional-array kline shape
// (broker.Kline, all string/int64 fields per the wire format) into the
// store's decimal-typed models.Kline.
func brokerKlineToModel(symbol, interval string, k broker.Kline) (models.Kline, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return models.Kline{}, fmt.Errorf("parse open: %w", err)
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return models.Kline{}, fmt.Errorf("parse high: %w", err)
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return models.Kline{}, fmt.Errorf("parse low: %w", err)
	}
	closePrice, err := decimal.NewFromString(k.Close)
	if err != nil {
		return models.Kline{}, fmt.Errorf("parse close: %w", err)
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return models.Kline{}, fmt.Errorf("parse volume: %w", err)
	}
	quoteVolume, _ := decimal.NewFromString(k.QuoteVolume)
	takerBuyBase, _ := decimal.NewFromString(k.TakerBuyBase)
	takerBuyQuote, _ := decimal.NewFromString(k.TakerBuyQuote)

	return models.Kline{
		Symbol:        symbol,
		Interval:      interval,
		OpenTime:      time.UnixMilli(k.OpenTime).UTC(),
		Open:          open,
		High:          high,
		Low:           low,
		Close:         closePrice,
		Volume:        volume,
		CloseTime:     time.UnixMilli(k.CloseTime).UTC(),
		QuoteVolume:   quoteVolume,
		Trades:        k.Trades,
		TakerBuyBase:  takerBuyBase,
		TakerBuyQuote: takerBuyQuote,
	}, nil
}
