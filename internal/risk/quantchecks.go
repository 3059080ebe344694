package risk

import (
	"fmt"

	"github.com/eddiefleurent/spotctl/internal/models"
)

// checkEntropyGate is quant check 6: blocks trading when the Feature
// Pipeline's latest entropy reading says the market is too noisy. Reads the
// Pipeline's cached reading rather than recomputing it, since C3 already
// owns that cadence (spec §4.3); a missing reading degrades to a passing
// skip, matching quant_risk.py's "insufficient data" behavior.
func (g *Gate) checkEntropyGate(in Input) []RiskCheck {
	reading, ok := g.store.GetEntropy(in.Symbol, in.Interval)
	if !ok {
		return []RiskCheck{{Name: "entropy_gate", Passed: true, Message: "Entropy check skipped (insufficient data)"}}
	}
	ratio, _ := reading.EntropyRatio.Float64()
	cmp := ">="
	if reading.IsTradable {
		cmp = "<"
	}
	return []RiskCheck{{
		Name:    "entropy_gate",
		Passed:  reading.IsTradable,
		Message: fmt.Sprintf("Entropy ratio %.3f (%s %.3f)", ratio, cmp, g.limits.EntropyThreshold),
		Value:   ratio,
		Limit:   g.limits.EntropyThreshold,
	}}
}

// checkRegime is quant check 7: blocks all trades in a confidently volatile
// regime, and blocks contra-trend trades against a confident strong trend.
func (g *Gate) checkRegime(in Input) []RiskCheck {
	regime, ok := g.store.GetRegime(in.Symbol, in.Interval)
	if !ok {
		return []RiskCheck{{Name: "regime_check", Passed: true, Message: "Regime check skipped (insufficient data)"}}
	}
	confidence, _ := regime.Confidence.Float64()
	passed := true
	msg := fmt.Sprintf("Regime: %s (confidence: %.1f%%)", regime.Label, confidence)

	switch {
	case regime.Label == models.RegimeVolatile && confidence > 60:
		passed = false
		msg = fmt.Sprintf("Regime volatile with %.1f%% confidence - trading blocked", confidence)
	case regime.Label == models.RegimeTrendingUp && in.Side == string(models.SideSell) && confidence > 70:
		passed = false
		msg = fmt.Sprintf("Selling against strong uptrend (%.1f%%) - blocked", confidence)
	case regime.Label == models.RegimeTrendingDown && in.Side == string(models.SideBuy) && confidence > 70:
		passed = false
		msg = fmt.Sprintf("Buying against strong downtrend (%.1f%%) - blocked", confidence)
	}

	return []RiskCheck{{
		Name:    "regime_check",
		Passed:  passed,
		Message: msg,
		Value:   confidence,
	}}
}

// checkQuantSizing is quant check 8: the proposed notional must not exceed
// QuantSizeToleranceMult times the sizing analyzer's recommendation.
func (g *Gate) checkQuantSizing(in Input) []RiskCheck {
	sizing, ok := g.store.GetSizing(in.Symbol)
	if !ok {
		return []RiskCheck{{Name: "quant_size_validation", Passed: true, Message: "Size validation skipped (no sizing data)"}}
	}
	recommended, _ := sizing.RecommendedSize.Float64()
	maxAllowed := recommended * g.limits.QuantSizeToleranceMult
	ok2 := in.Notional <= maxAllowed
	return []RiskCheck{{
		Name:    "quant_size_validation",
		Passed:  ok2,
		Message: fmt.Sprintf("Notional $%.2f vs recommended $%.2f (max $%.2f)", in.Notional, recommended, maxAllowed),
		Value:   in.Notional,
		Limit:   maxAllowed,
	}}
}
