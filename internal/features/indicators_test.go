package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIndicators_ReturnsSnapshotWithinBounds(t *testing.T) {
	klines := syntheticKlines(100, 30000, 0.0005)

	snap, err := computeIndicators("BTCUSDT", "1m", klines)
	require.NoError(t, err)

	rsi, _ := snap.RSI.Float64()
	assert.GreaterOrEqual(t, rsi, 0.0)
	assert.LessOrEqual(t, rsi, 100.0)

	atr, _ := snap.ATR.Float64()
	assert.Greater(t, atr, 0.0)

	upper, _ := snap.BollingerUp.Float64()
	lower, _ := snap.BollingerLo.Float64()
	assert.Greater(t, upper, lower)
}

func TestComputeIndicators_ErrorsBelowMinimumWindow(t *testing.T) {
	klines := syntheticKlines(5, 30000, 0)
	_, err := computeIndicators("BTCUSDT", "1m", klines)
	assert.Error(t, err)
}

func TestRSI14_AllGainsSaturatesAtHundred(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	assert.Equal(t, 100.0, rsi14(closes))
}

func TestBollinger_UpperAboveLowerAroundMean(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	closes[29] = 110
	upper, lower := bollinger(closes, 20, 2.0)
	assert.Greater(t, upper, lower)
}
