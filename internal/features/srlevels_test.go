package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSRLevels_ReturnsOrderedNonEmptyLevels(t *testing.T) {
	klines := syntheticKlines(80, 30000, 0)
	levels, err := computeSRLevels("BTCUSDT", "1m", klines)
	require.NoError(t, err)

	for i := 1; i < len(levels.Support); i++ {
		prev, _ := levels.Support[i-1].Float64()
		cur, _ := levels.Support[i].Float64()
		assert.LessOrEqual(t, prev, cur)
	}
	for i := 1; i < len(levels.Resistance); i++ {
		prev, _ := levels.Resistance[i-1].Float64()
		cur, _ := levels.Resistance[i].Float64()
		assert.LessOrEqual(t, prev, cur)
	}
}

func TestComputeSRLevels_ErrorsBelowMinimumWindow(t *testing.T) {
	klines := syntheticKlines(5, 30000, 0)
	_, err := computeSRLevels("BTCUSDT", "1m", klines)
	assert.Error(t, err)
}

func TestClusterLevels_MergesNearbyValues(t *testing.T) {
	values := []float64{100.0, 100.05, 100.1, 200.0}
	clustered := clusterLevels(values, 0.01)
	require.Len(t, clustered, 2)
}

func TestLocalExtrema_FindsSinglePeak(t *testing.T) {
	values := []float64{1, 2, 5, 2, 1}
	peaks := localExtrema(values, true)
	require.Len(t, peaks, 1)
	assert.Equal(t, 5.0, peaks[0])
}
