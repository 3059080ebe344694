package features

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeEntropy_RandomSeriesIsNotTradable(t *testing.T) {
	klines := syntheticKlines(60, 30000, 0)
	// Inject high-entropy noise by alternating wobble amplitude per candle.
	jitter := decimal.NewFromFloat(1.05)
	for i := range klines {
		if i%2 == 0 {
			klines[i].Close = klines[i].Close.Mul(jitter)
		}
	}

	reading, err := computeEntropy("BTCUSDT", "1m", klines, 0.3)
	require.NoError(t, err)
	assert.False(t, reading.IsTradable, "a noisy alternating series should read as high-entropy and untradable at a strict threshold")
}

func TestComputeEntropy_FlatSeriesIsLowEntropy(t *testing.T) {
	klines := syntheticKlines(60, 30000, 0.01) // steady drift, no noise
	reading, err := computeEntropy("BTCUSDT", "1m", klines, 0.95)
	require.NoError(t, err)
	assert.True(t, reading.IsTradable)
}

func TestComputeEntropy_ErrorsBelowMinimumWindow(t *testing.T) {
	klines := syntheticKlines(5, 30000, 0)
	_, err := computeEntropy("BTCUSDT", "1m", klines, 0.5)
	assert.Error(t, err)
}

func TestEntropyRatio_ConstantSeriesIsZero(t *testing.T) {
	returns := make([]float64, 20)
	assert.Equal(t, 0.0, entropyRatio(returns, 10))
}
