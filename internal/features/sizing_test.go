package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSizing_RespectsHardCap(t *testing.T) {
	rec := computeSizing(SizingInputs{
		Symbol:          "BTCUSDT",
		AccountBalance:  1_000_000,
		WinRate:         0.9,
		WinLossRatio:    3.0,
		ATR:             1,
		Price:           30000,
		RiskPerTradePct: 0.5,
		ATRMultiplier:   0.01,
		MaxPositionUSD:  500,
	})

	size, _ := rec.RecommendedSize.Float64()
	assert.LessOrEqual(t, size, 500.0)
}

func TestComputeSizing_NegativeEdgeProducesZero(t *testing.T) {
	rec := computeSizing(SizingInputs{
		Symbol:          "BTCUSDT",
		AccountBalance:  10000,
		WinRate:         0.1,
		WinLossRatio:    1.0,
		ATR:             50,
		Price:           30000,
		RiskPerTradePct: 0.01,
		ATRMultiplier:   2.0,
		MaxPositionUSD:  500,
	})
	size, _ := rec.RecommendedSize.Float64()
	assert.Equal(t, 0.0, size)
}

func TestComputeSizing_DefaultsHardCapTo500(t *testing.T) {
	rec := computeSizing(SizingInputs{
		Symbol:          "BTCUSDT",
		AccountBalance:  10000,
		WinRate:         0.6,
		WinLossRatio:    2.0,
		ATR:             50,
		Price:           30000,
		RiskPerTradePct: 0.01,
		ATRMultiplier:   2.0,
	})
	cap, _ := rec.HardCap.Float64()
	assert.Equal(t, 500.0, cap)
}
