package risk

// Limits holds the thresholds the Risk Gate's checks are evaluated
// against. Defaults mirror
// original_source/backend/app/services/risk_manager.py's module-level
// constants.
type Limits struct {
	MinPositionUSD        float64
	MaxPositionUSD         float64
	MaxDailyLossUSD        float64
	MaxDrawdownUSD         float64
	MaxOpenPositions       int
	MaxPositionsPerSymbol  int
	MinAccountBalanceUSD   float64
	MaxAccountUtilization  float64
	AutoApprovalThreshold  float64
	EntropyThreshold       float64
	QuantSizeToleranceMult float64 // "1.5x recommended" in quant_risk.py
	QuantEnabled           bool
}

// DefaultLimits reproduces risk_manager.py's constants plus
// quant_risk.py's entropy threshold and 1.5x sizing tolerance.
func DefaultLimits() Limits {
	return Limits{
		MinPositionUSD:         10.0,
		MaxPositionUSD:         500.0,
		MaxDailyLossUSD:        200.0,
		MaxDrawdownUSD:         1000.0,
		MaxOpenPositions:       3,
		MaxPositionsPerSymbol:  1,
		MinAccountBalanceUSD:   1000.0,
		MaxAccountUtilization:  0.8,
		AutoApprovalThreshold:  100.0,
		EntropyThreshold:       0.85,
		QuantSizeToleranceMult: 1.5,
		QuantEnabled:           true,
	}
}
