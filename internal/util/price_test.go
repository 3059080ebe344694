package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name     string
		x, tick  float64
		expected float64
	}{
		{"rounds down within half a tick", 1.2345, 0.01, 1.23},
		{"rounds up within half a tick", 1.236, 0.01, 1.24},
		{"zero tick returns input unchanged", 100.5, 0, 100.5},
		{"negative tick uses its magnitude", 1.2345, -0.01, 1.23},
		{"NaN tick returns input unchanged", 1.5, math.NaN(), 1.5},
		{"NaN input returns input unchanged", math.NaN(), 0.01, math.NaN()},
		{"infinite input returns input unchanged", math.Inf(1), 0.01, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToTick(tt.x, tt.tick)
			if math.IsNaN(tt.expected) {
				assert.True(t, math.IsNaN(got))
				return
			}
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestFloorToTick(t *testing.T) {
	tests := []struct {
		name     string
		x, tick  float64
		expected float64
	}{
		{"floors to the tick below", 1.2399, 0.01, 1.23},
		{"exact multiple is unchanged", 1.20, 0.01, 1.20},
		{"zero tick returns input unchanged", 5.55, 0, 5.55},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, FloorToTick(tt.x, tt.tick), 1e-9)
		})
	}
}

func TestCeilToTick(t *testing.T) {
	tests := []struct {
		name     string
		x, tick  float64
		expected float64
	}{
		{"ceils to the tick above", 1.2301, 0.01, 1.24},
		{"exact multiple is unchanged", 1.20, 0.01, 1.20},
		{"zero tick returns input unchanged", 5.55, 0, 5.55},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CeilToTick(tt.x, tt.tick), 1e-9)
		})
	}
}
