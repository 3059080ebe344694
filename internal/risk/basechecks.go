package risk

import (
	"fmt"
	"strconv"
	"time"

	"github.com/eddiefleurent/spotctl/internal/models"
)

// parseFloatOrZero parses a wire-protocol decimal string, treating a
// malformed or empty value as zero rather than failing the whole check.
func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// checkPositionSize is base check 1: notional must sit within
// [MinPositionUSD, MaxPositionUSD].
func (g *Gate) checkPositionSize(in Input) []RiskCheck {
	ok := in.Notional >= g.limits.MinPositionUSD && in.Notional <= g.limits.MaxPositionUSD
	msg := fmt.Sprintf("Position size $%.2f ok", in.Notional)
	if !ok {
		msg = fmt.Sprintf("Position size $%.2f must be $%.2f-$%.2f", in.Notional, g.limits.MinPositionUSD, g.limits.MaxPositionUSD)
	}
	return []RiskCheck{{
		Name:    "position_size",
		Passed:  ok,
		Message: msg,
		Value:   in.Notional,
		Limit:   g.limits.MaxPositionUSD,
	}}
}

// checkOpenPositions is base check 2: total open positions across all
// symbols must stay under MaxOpenPositions.
func (g *Gate) checkOpenPositions(in Input) []RiskCheck {
	open, err := g.store.ListOpenPositions()
	if err != nil {
		return []RiskCheck{{Name: "max_open_positions", Passed: true, Message: "Open-position check skipped (store error)"}}
	}
	count := len(open)
	ok := count < g.limits.MaxOpenPositions
	return []RiskCheck{{
		Name:    "max_open_positions",
		Passed:  ok,
		Message: fmt.Sprintf("%d/%d open positions", count, g.limits.MaxOpenPositions),
		Value:   float64(count),
		Limit:   float64(g.limits.MaxOpenPositions),
	}}
}

// checkSymbolConcentration is base check 3: buys may not open a second
// position in a symbol that already has one open. Sells don't open new
// exposure, so the python original skips this check for them.
func (g *Gate) checkSymbolConcentration(in Input) []RiskCheck {
	if in.Side != string(models.SideBuy) {
		return nil
	}
	count, err := g.store.CountOpenPositions(in.Symbol)
	if err != nil {
		return []RiskCheck{{Name: "symbol_concentration", Passed: true, Message: "Symbol concentration check skipped (store error)"}}
	}
	ok := count < g.limits.MaxPositionsPerSymbol
	msg := fmt.Sprintf("No existing position in %s", in.Symbol)
	if !ok {
		msg = fmt.Sprintf("Already have position in %s", in.Symbol)
	}
	return []RiskCheck{{
		Name:    "symbol_concentration",
		Passed:  ok,
		Message: msg,
		Value:   float64(count),
		Limit:   float64(g.limits.MaxPositionsPerSymbol),
	}}
}

// checkAccountBalanceAndUtilization is base check 4: the free USDT balance
// must cover the proposed notional, and the fraction of equity already tied
// up in open positions must stay under MaxAccountUtilization. Both degrade
// to a passing "skipped" check if the broker call fails, matching the
// python original's behavior when the proxy is unavailable.
func (g *Gate) checkAccountBalanceAndUtilization(in Input) []RiskCheck {
	account, err := g.broker.GetAccount()
	if err != nil {
		return []RiskCheck{{Name: "account_balance", Passed: true, Message: "Balance check skipped (proxy unavailable)"}}
	}

	var usdtFree float64
	for _, b := range account.Balances {
		if b.Asset == "USDT" {
			usdtFree = parseFloatOrZero(b.Free)
			break
		}
	}

	balanceOK := usdtFree >= in.Notional
	balanceCheck := RiskCheck{
		Name:    "account_balance",
		Passed:  balanceOK,
		Message: fmt.Sprintf("USDT available: $%.2f, need $%.2f", usdtFree, in.Notional),
		Value:   usdtFree,
		Limit:   in.Notional,
	}

	open, err := g.store.ListOpenPositions()
	if err != nil {
		return []RiskCheck{balanceCheck, {Name: "account_utilization", Passed: true, Message: "Utilization check skipped (store error)"}}
	}
	var inPositions float64
	for _, p := range open {
		v, _ := p.EntryNotional.Float64()
		inPositions += v
	}
	totalBalance := usdtFree + inPositions
	utilization := 0.0
	if totalBalance > 0 {
		utilization = inPositions / totalBalance
	}
	utilOK := utilization < g.limits.MaxAccountUtilization
	utilCheck := RiskCheck{
		Name:    "account_utilization",
		Passed:  utilOK,
		Message: fmt.Sprintf("Utilization %.1f%% (max %.0f%%)", utilization*100, g.limits.MaxAccountUtilization*100),
		Value:   utilization,
		Limit:   g.limits.MaxAccountUtilization,
	}

	return []RiskCheck{balanceCheck, utilCheck}
}

// checkDailyLoss is base check 5: today's realized P&L must not have
// breached -MaxDailyLossUSD.
func (g *Gate) checkDailyLoss(in Input) []RiskCheck {
	today := time.Now().UTC().Format("2006-01-02")
	snap, ok := g.store.GetAccountSnapshot(today)
	if !ok {
		return []RiskCheck{{Name: "daily_loss_limit", Passed: true, Message: "Daily loss check skipped (no snapshot yet)"}}
	}
	dailyPnL, _ := snap.DailyPnL.Float64()
	lossOK := dailyPnL > -g.limits.MaxDailyLossUSD
	return []RiskCheck{{
		Name:    "daily_loss_limit",
		Passed:  lossOK,
		Message: fmt.Sprintf("Daily PnL: $%.2f (limit: -$%.2f)", dailyPnL, g.limits.MaxDailyLossUSD),
		Value:   dailyPnL,
		Limit:   -g.limits.MaxDailyLossUSD,
	}}
}
