package orchestrator

import (
	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/spotctl/internal/broker"
)

type decimalAccumulator struct {
	total decimal.Decimal
}

func newDecimalAccumulator() *decimalAccumulator {
	return &decimalAccumulator{total: decimal.Zero}
}

func (a *decimalAccumulator) add(v decimal.Decimal) {
	a.total = a.total.Add(v)
}

func (a *decimalAccumulator) sum() decimal.Decimal {
	return a.total
}

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// findBalance returns the free balance for asset, or zero if absent.
func findBalance(account *broker.AccountInfo, asset string) decimal.Decimal {
	if account == nil {
		return decimal.Zero
	}
	for _, b := range account.Balances {
		if b.Asset == asset {
			v, err := decimal.NewFromString(b.Free)
			if err != nil {
				return decimal.Zero
			}
			return v
		}
	}
	return decimal.Zero
}
