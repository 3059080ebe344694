package features

import (
	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/models"
)

// SizingInputs bundles the statistics computeSizing needs; win/loss stats
// come from the trade history the Orchestrator maintains per symbol.
type SizingInputs struct {
	Symbol          string
	AccountBalance  float64
	WinRate         float64 // p, fraction of historical wins in [0, 1]
	WinLossRatio    float64 // b, average win size / average loss size
	ATR             float64
	Price           float64
	RiskPerTradePct float64 // fraction of account risked per trade, e.g. 0.01
	ATRMultiplier   float64 // stop distance in ATR units, e.g. 2.0
	MaxPositionUSD  float64 // hard cap, spec default 500
}

// kellyDampening dampens full Kelly to half-Kelly and hard-caps the
// resulting fraction of account equity (kellyCapFrac), per
// original_source/backend/app/services/position_sizer.py.
const (
	kellyDampening = 0.5
	kellyCapFrac   = 0.25
)

// computeSizing takes the smaller of a half-Kelly position size and an
// ATR-based volatility size, then clamps to the account's hard USD cap. Grounded on
// original_source/backend/app/services/position_sizer.py's
// calculate_position_size.
func computeSizing(in SizingInputs) *models.SizingRecommendation {
	kellySize := kellyPositionUSD(in)
	atrSize := atrPositionUSD(in)

	hardCap := in.MaxPositionUSD
	if hardCap <= 0 {
		hardCap = 500
	}

	size := minFloat(kellySize, atrSize)
	size = minFloat(size, hardCap)
	if size < 0 {
		size = 0
	}

	return &models.SizingRecommendation{
		Symbol:          in.Symbol,
		RecommendedSize: decimal.NewFromFloat(size),
		HardCap:         decimal.NewFromFloat(hardCap),
		ComputedAt:      nowUTC(),
	}
}

// kellyPositionUSD computes f* = (p*b - q) / b, dampens to half-Kelly, caps
// the fraction at kellyCapFrac, and converts to a USD notional.
func kellyPositionUSD(in SizingInputs) float64 {
	if in.WinLossRatio <= 0 {
		return 0
	}
	p := in.WinRate
	q := 1 - p
	fStar := (p*in.WinLossRatio - q) / in.WinLossRatio
	if fStar <= 0 {
		return 0
	}
	fStar *= kellyDampening
	if fStar > kellyCapFrac {
		fStar = kellyCapFrac
	}
	return fStar * in.AccountBalance
}

// atrPositionUSD sizes so that a stop at ATRMultiplier*ATR away from entry
// loses exactly RiskPerTradePct of the account.
func atrPositionUSD(in SizingInputs) float64 {
	if in.ATR <= 0 || in.ATRMultiplier <= 0 || in.Price <= 0 {
		return 0
	}
	riskAmount := in.AccountBalance * in.RiskPerTradePct
	stopDistance := in.ATRMultiplier * in.ATR
	if stopDistance <= 0 {
		return 0
	}
	quantity := riskAmount / stopDistance
	return quantity * in.Price
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
