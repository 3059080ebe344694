package features

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/models"
)

// minEntropyKlines is the smallest candle window entropy is computed over.
const minEntropyKlines = 30

// entropyHistogramBins is the bucket count for the log-return histogram,
// matching the original service's default.
const entropyHistogramBins = 10

// computeEntropy is the Shannon-entropy gate analyzer: log-returns of
// closes, binned into a histogram, reduced to H/Hmax and compared against
// a tradability threshold. Grounded on
// original_source/backend/app/services/entropy_filter.py.
func computeEntropy(symbol, interval string, klines []models.Kline, threshold float64) (*models.EntropyReading, error) {
	if len(klines) < minEntropyKlines {
		return nil, fmt.Errorf("features: need %d klines for entropy, got %d", minEntropyKlines, len(klines))
	}

	closes := closesOf(klines)
	returns := logReturns(closes)
	ratio := entropyRatio(returns, entropyHistogramBins)

	return &models.EntropyReading{
		Symbol:       symbol,
		Interval:     interval,
		EntropyRatio: decimal.NewFromFloat(ratio),
		IsTradable:   ratio < threshold,
		ComputedAt:   nowUTC(),
	}, nil
}

func logReturns(closes []float64) []float64 {
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}

// entropyRatio bins returns into `bins` equal-width buckets over their
// observed range, computes Shannon entropy H = -Σp·log2(p) over the
// resulting distribution, and normalizes by the maximum possible entropy
// log2(bins) so the result sits in [0, 1].
func entropyRatio(returns []float64, bins int) float64 {
	if len(returns) == 0 || bins < 2 {
		return 0
	}

	lo, hi := returns[0], returns[0]
	for _, r := range returns {
		if r < lo {
			lo = r
		}
		if r > hi {
			hi = r
		}
	}
	if hi == lo {
		return 0
	}

	counts := make([]int, bins)
	width := (hi - lo) / float64(bins)
	for _, r := range returns {
		idx := int((r - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}

	var h float64
	n := float64(len(returns))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}

	hMax := math.Log2(float64(bins))
	if hMax == 0 {
		return 0
	}
	return h / hMax
}
