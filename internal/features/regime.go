package features

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/models"
)

const minRegimeKlines = 60

// Regime decision-tree thresholds, grounded on
// original_source/backend/app/services/regime_detector.py's constants.
const (
	regimeADXTrendThreshold    = 25.0
	regimeBBWidthRangeMax      = 0.04
	regimeATRRatioVolatile     = 0.03
	regimeHurstTrendThreshold  = 0.55
	regimeHurstRangeThreshold  = 0.45
	regimeLowLiquidityATRRatio = 0.002
)

// computeRegime classifies the current market regime for (symbol, interval)
// from a decision tree over ADX, Bollinger bandwidth, the ATR/close ratio,
// and the Hurst exponent. Grounded on
// original_source/backend/app/services/regime_detector.py.
func computeRegime(symbol, interval string, klines []models.Kline) (*models.Regime, error) {
	if len(klines) < minRegimeKlines {
		return nil, fmt.Errorf("features: need %d klines for regime, got %d", minRegimeKlines, len(klines))
	}

	closes := closesOf(klines)
	highs := highsOf(klines)
	lows := lowsOf(klines)

	adx := adx14(highs, lows, closes)
	bbUp, bbLo := bollinger(closes, 20, 2.0)
	mean := sma(closes, 20)
	bbWidth := 0.0
	if mean != 0 {
		bbWidth = (bbUp - bbLo) / mean
	}
	atr := atr14(highs, lows, closes)
	lastClose := closes[len(closes)-1]
	atrRatio := 0.0
	if lastClose != 0 {
		atrRatio = atr / lastClose
	}
	hurst := hurstExponent(closes)
	direction := closes[len(closes)-1] - closes[0]

	label, confidence := classifyRegime(adx, bbWidth, atrRatio, hurst, direction)

	return &models.Regime{
		Symbol:     symbol,
		Interval:   interval,
		Label:      label,
		Confidence: decimal.NewFromFloat(confidence * 100),
		ComputedAt: nowUTC(),
	}, nil
}

// classifyRegime walks the decision tree: low-liquidity (tiny ATR) first,
// then volatile (large ATR/close), then trend-vs-range by ADX confirmed by
// the Hurst exponent.
func classifyRegime(adx, bbWidth, atrRatio, hurst, direction float64) (models.RegimeLabel, float64) {
	if atrRatio < regimeLowLiquidityATRRatio {
		return models.RegimeLowLiquidity, clamp01(1 - atrRatio/regimeLowLiquidityATRRatio)
	}
	if atrRatio > regimeATRRatioVolatile {
		return models.RegimeVolatile, clamp01(atrRatio / (2 * regimeATRRatioVolatile))
	}
	if adx >= regimeADXTrendThreshold && hurst >= regimeHurstTrendThreshold {
		confidence := clamp01((adx-regimeADXTrendThreshold)/50 + (hurst - regimeHurstTrendThreshold))
		if direction >= 0 {
			return models.RegimeTrendingUp, confidence
		}
		return models.RegimeTrendingDown, confidence
	}
	if bbWidth <= regimeBBWidthRangeMax && hurst <= regimeHurstRangeThreshold {
		return models.RegimeRanging, clamp01(1 - hurst/regimeHurstRangeThreshold)
	}
	return models.RegimeRanging, 0.5
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// hurstExponent estimates the Hurst exponent of a price series via
// rescaled-range (R/S) analysis over a handful of sub-period lags: >0.5
// signals trending/persistent behavior, <0.5 mean-reverting, ~0.5 a random
// walk. Grounded on regime_detector.py's _calculate_hurst_exponent.
func hurstExponent(closes []float64) float64 {
	n := len(closes)
	if n < 20 {
		return 0.5
	}

	lags := []int{2, 4, 8, 16}
	var logLags, logRS []float64
	for _, lag := range lags {
		if lag*2 > n {
			continue
		}
		rs := rescaledRange(closes, lag)
		if rs <= 0 {
			continue
		}
		logLags = append(logLags, math.Log(float64(lag)))
		logRS = append(logRS, math.Log(rs))
	}
	if len(logLags) < 2 {
		return 0.5
	}

	slope, _ := linearRegression(logLags, logRS)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0.5
	}
	return clamp01(slope)
}

// rescaledRange computes the mean R/S statistic over non-overlapping
// windows of the given lag length.
func rescaledRange(closes []float64, lag int) float64 {
	var sumRS float64
	windows := 0
	for start := 0; start+lag <= len(closes); start += lag {
		window := closes[start : start+lag]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(len(window))

		var cumDev, maxDev, minDev float64
		var sumSq float64
		for i, v := range window {
			dev := v - mean
			cumDev += dev
			sumSq += dev * dev
			if i == 0 || cumDev > maxDev {
				maxDev = cumDev
			}
			if i == 0 || cumDev < minDev {
				minDev = cumDev
			}
		}
		r := maxDev - minDev
		s := math.Sqrt(sumSq / float64(len(window)))
		if s == 0 {
			continue
		}
		sumRS += r / s
		windows++
	}
	if windows == 0 {
		return 0
	}
	return sumRS / float64(windows)
}

// linearRegression fits y = slope*x + intercept by ordinary least squares.
func linearRegression(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}
