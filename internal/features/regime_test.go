package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/spotctl/internal/models"
)

func TestComputeRegime_StrongDriftClassifiesAsTrending(t *testing.T) {
	klines := syntheticKlines(120, 30000, 0.01)
	regime, err := computeRegime("BTCUSDT", "1m", klines)
	require.NoError(t, err)
	assert.Contains(t, []models.RegimeLabel{models.RegimeTrendingUp, models.RegimeTrendingDown}, regime.Label)
}

func TestComputeRegime_ErrorsBelowMinimumWindow(t *testing.T) {
	klines := syntheticKlines(10, 30000, 0)
	_, err := computeRegime("BTCUSDT", "1m", klines)
	assert.Error(t, err)
}

func TestHurstExponent_TrendingSeriesExceedsHalf(t *testing.T) {
	closes := make([]float64, 60)
	price := 100.0
	for i := range closes {
		price += 1.0
		closes[i] = price
	}
	h := hurstExponent(closes)
	assert.Greater(t, h, 0.5)
	assert.LessOrEqual(t, h, 1.0)
}

func TestLinearRegression_FitsExactLine(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	ys := []float64{2, 4, 6, 8}
	slope, intercept := linearRegression(xs, ys)
	assert.InDelta(t, 2.0, slope, 1e-9)
	assert.InDelta(t, 0.0, intercept, 1e-9)
}
