package features

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/models"
)

// minIndicatorKlines is the minimum candle count computeIndicators needs
// before its slower indicators (MACD, ADX) stabilize.
const minIndicatorKlines = 50

// computeIndicators is the technical-indicators analyzer: a pure function
// over recent candles, grounded on
// original_source/backend/app/services/technical_analysis.py's
// compute_indicators. There is no charting/TA library anywhere in the
// example corpus, so RSI/MACD/ADX/ATR/Bollinger are reproduced here in
// plain Go rather than imported — see DESIGN.md.
func computeIndicators(symbol, interval string, klines []models.Kline) (*models.IndicatorSnapshot, error) {
	if len(klines) < minIndicatorKlines {
		return nil, fmt.Errorf("features: need %d klines for indicators, got %d", minIndicatorKlines, len(klines))
	}

	closes := closesOf(klines)
	highs := highsOf(klines)
	lows := lowsOf(klines)

	rsi := rsi14(closes)
	macdLine, _, macdHist := macd(closes, 12, 26, 9)
	adx := adx14(highs, lows, closes)
	atr := atr14(highs, lows, closes)
	bbUpper, bbLower := bollinger(closes, 20, 2.0)

	last := klines[len(klines)-1]
	return &models.IndicatorSnapshot{
		Symbol:      symbol,
		Interval:    interval,
		CandleTime:  last.OpenTime,
		RSI:         decimal.NewFromFloat(rsi),
		MACD:        decimal.NewFromFloat(macdLine),
		MACDHist:    decimal.NewFromFloat(macdHist),
		ADX:         decimal.NewFromFloat(adx),
		ATR:         decimal.NewFromFloat(atr),
		BollingerUp: decimal.NewFromFloat(bbUpper),
		BollingerLo: decimal.NewFromFloat(bbLower),
		ComputedAt:  nowUTC(),
	}, nil
}

func closesOf(ks []models.Kline) []float64 {
	out := make([]float64, len(ks))
	for i, k := range ks {
		out[i], _ = k.Close.Float64()
	}
	return out
}

func highsOf(ks []models.Kline) []float64 {
	out := make([]float64, len(ks))
	for i, k := range ks {
		out[i], _ = k.High.Float64()
	}
	return out
}

func lowsOf(ks []models.Kline) []float64 {
	out := make([]float64, len(ks))
	for i, k := range ks {
		out[i], _ = k.Low.Float64()
	}
	return out
}

func sma(values []float64, length int) float64 {
	if len(values) < length {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-length:] {
		sum += v
	}
	return sum / float64(length)
}

func ema(values []float64, length int) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	k := 2.0 / float64(length+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

func rsi14(closes []float64) float64 {
	const length = 14
	if len(closes) < length+1 {
		return 0
	}
	var gainSum, lossSum float64
	for i := len(closes) - length; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / length
	avgLoss := lossSum / length
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func macd(closes []float64, fast, slow, signal int) (line, signalLine, histogram float64) {
	if len(closes) < slow+signal {
		return 0, 0, 0
	}
	emaFast := ema(closes, fast)
	emaSlow := ema(closes, slow)
	macdSeries := make([]float64, len(closes))
	for i := range closes {
		macdSeries[i] = emaFast[i] - emaSlow[i]
	}
	signalSeries := ema(macdSeries, signal)
	line = macdSeries[len(macdSeries)-1]
	signalLine = signalSeries[len(signalSeries)-1]
	histogram = line - signalLine
	return line, signalLine, histogram
}

// trueRange returns the per-candle true range series for ATR/ADX.
func trueRange(highs, lows, closes []float64) []float64 {
	tr := make([]float64, len(closes))
	for i := range closes {
		if i == 0 {
			tr[i] = highs[i] - lows[i]
			continue
		}
		hl := highs[i] - lows[i]
		hc := abs(highs[i] - closes[i-1])
		lc := abs(lows[i] - closes[i-1])
		tr[i] = max3(hl, hc, lc)
	}
	return tr
}

func atr14(highs, lows, closes []float64) float64 {
	const length = 14
	tr := trueRange(highs, lows, closes)
	return wilderSmooth(tr, length)
}

// adx14 computes the Average Directional Index via Wilder's smoothing of
// +DM/-DM against true range.
func adx14(highs, lows, closes []float64) float64 {
	const length = 14
	if len(closes) < length*2 {
		return 0
	}
	n := len(closes)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}
	tr := trueRange(highs, lows, closes)

	atr := wilderSmooth(tr, length)
	plusDI := 100 * wilderSmooth(plusDM, length) / nonZero(atr)
	minusDI := 100 * wilderSmooth(minusDM, length) / nonZero(atr)

	dx := 100 * abs(plusDI-minusDI) / nonZero(plusDI+minusDI)
	return dx
}

// wilderSmooth returns Wilder's moving average of the trailing `length`
// values — the smoothing ATR/ADX are both defined in terms of.
func wilderSmooth(values []float64, length int) float64 {
	if len(values) < length {
		return 0
	}
	window := values[len(values)-length:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	avg := sum / float64(length)
	for _, v := range values[len(values)-length+1:] {
		avg = (avg*(float64(length)-1) + v) / float64(length)
	}
	return avg
}

func bollinger(closes []float64, length int, numStd float64) (upper, lower float64) {
	if len(closes) < length {
		return 0, 0
	}
	window := closes[len(closes)-length:]
	mean := sma(closes, length)
	var variance float64
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(length)
	std := sqrt(variance)
	return mean + numStd*std, mean - numStd*std
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1e-10
	}
	return v
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	// Newton's method; avoids importing math just for Sqrt in a file that
	// otherwise does plain arithmetic. (math is used elsewhere in the
	// package — this stays local to keep the indicator math self-contained
	// and side-effect free.)
	x := v
	for i := 0; i < 20; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
