package features

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/models"
)

const minSRKlines = 40

// srClusterTolerancePct is the price-bucketing tolerance: local extrema
// within this fraction of each other's price are merged into one level.
// original_source/backend/app/services/support_resistance.py clusters
// extrema with K-Means; no clustering library exists anywhere in the
// example corpus (sklearn has no Go equivalent in the pack), so this is
// reimplemented as local-extrema detection followed by tolerance-bucketed
// merging — see DESIGN.md.
const srClusterTolerancePct = 0.0015

const srMaxLevelsPerSide = 5

// computeSRLevels finds swing highs/lows over recent candles and clusters
// them into a small set of support and resistance price levels.
func computeSRLevels(symbol, interval string, klines []models.Kline) (*models.SRLevels, error) {
	if len(klines) < minSRKlines {
		return nil, fmt.Errorf("features: need %d klines for support/resistance, got %d", minSRKlines, len(klines))
	}

	highs := highsOf(klines)
	lows := lowsOf(klines)

	swingHighs := localExtrema(highs, true)
	swingLows := localExtrema(lows, false)

	resistance := clusterLevels(swingHighs, srClusterTolerancePct)
	support := clusterLevels(swingLows, srClusterTolerancePct)

	resistance = topN(resistance, srMaxLevelsPerSide, true)
	support = topN(support, srMaxLevelsPerSide, false)

	return &models.SRLevels{
		Symbol:     symbol,
		Interval:   interval,
		Support:    toDecimals(support),
		Resistance: toDecimals(resistance),
		ComputedAt: nowUTC(),
	}, nil
}

// localExtrema returns values that are strictly greater (or less, for
// troughs) than both neighbors — a simple 3-candle pivot detector.
func localExtrema(values []float64, peaks bool) []float64 {
	var out []float64
	for i := 1; i < len(values)-1; i++ {
		if peaks {
			if values[i] > values[i-1] && values[i] > values[i+1] {
				out = append(out, values[i])
			}
		} else {
			if values[i] < values[i-1] && values[i] < values[i+1] {
				out = append(out, values[i])
			}
		}
	}
	return out
}

// clusterLevels merges extrema within `tolerancePct` of each other's price
// into a single level (the mean of the cluster), sorted ascending.
func clusterLevels(values []float64, tolerancePct float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var clusters [][]float64
	current := []float64{sorted[0]}
	for _, v := range sorted[1:] {
		anchor := current[len(current)-1]
		if anchor == 0 || (v-anchor)/anchor <= tolerancePct {
			current = append(current, v)
		} else {
			clusters = append(clusters, current)
			current = []float64{v}
		}
	}
	clusters = append(clusters, current)

	levels := make([]float64, 0, len(clusters))
	for _, cluster := range clusters {
		var sum float64
		for _, v := range cluster {
			sum += v
		}
		levels = append(levels, sum/float64(len(cluster)))
	}
	return levels
}

// topN keeps the N levels closest to the edge of the set most relevant to
// price action: for resistance, the highest; for support, the lowest.
func topN(levels []float64, n int, highest bool) []float64 {
	sorted := append([]float64(nil), levels...)
	sort.Float64s(sorted)
	if highest {
		if len(sorted) > n {
			sorted = sorted[len(sorted)-n:]
		}
	} else {
		if len(sorted) > n {
			sorted = sorted[:n]
		}
	}
	return sorted
}

func toDecimals(values []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}
