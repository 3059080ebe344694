// audit is an operator CLI that cross-checks the control plane's own view
// of the world against itself: open positions, today's account snapshot,
// and anything stuck in the dead-letter queue, all pulled through the
// operator API rather than by touching the store directly. Adapted from
// the teacher's scripts/audit_positions, which spoke Tradier REST directly
// against a single account; this version speaks to the control plane's
// own /portfolio and /dead-letters endpoints instead, since a spot
// control plane's source of truth is its own API, not the exchange.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/eddiefleurent/spotctl/internal/models"
)

type auditReport struct {
	Positions   []*models.Position      `json:"positions"`
	Account     *models.AccountSnapshot `json:"account,omitempty"`
	DeadLetters []*models.Proposal      `json:"dead_letters"`
}

func main() {
	var (
		addr       = flag.String("addr", "http://localhost:8090", "Operator API base URL")
		secret     = flag.String("secret", "", "Operator API shared secret (or set AUDIT_API_SECRET)")
		jsonOutput = flag.Bool("json", false, "Output results as JSON")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if *secret == "" {
		if env := os.Getenv("AUDIT_API_SECRET"); env != "" {
			*secret = env
		} else {
			log.Fatalf("Missing -secret (or AUDIT_API_SECRET)")
		}
	}

	client := &http.Client{Timeout: 15 * time.Second}

	if *verbose {
		fmt.Printf("Auditing control plane at: %s\n\n", *addr)
	}

	report, err := fetchReport(client, *addr, *secret)
	if err != nil {
		log.Fatalf("Failed to fetch audit report: %v", err)
	}

	if *jsonOutput {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal JSON: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	printReport(report)

	fmt.Printf("=== ANALYSIS ===\n")
	issues := analyzeReport(report)
	if len(issues) > 0 {
		fmt.Printf("POTENTIAL ISSUES FOUND:\n")
		for i, issue := range issues {
			fmt.Printf("  %d. %s\n", i+1, issue)
		}
	} else {
		fmt.Printf("No obvious issues detected.\n")
	}
}

func fetchReport(client *http.Client, addr, secret string) (*auditReport, error) {
	var report auditReport

	var portfolio struct {
		Positions []*models.Position      `json:"positions"`
		Account   *models.AccountSnapshot `json:"account,omitempty"`
	}
	if err := getJSON(client, addr+"/portfolio", secret, &portfolio); err != nil {
		return nil, fmt.Errorf("fetch portfolio: %w", err)
	}
	report.Positions = portfolio.Positions
	report.Account = portfolio.Account

	var deadLetters []*models.Proposal
	if err := getJSON(client, addr+"/dead-letters", secret, &deadLetters); err != nil {
		return nil, fmt.Errorf("fetch dead letters: %w", err)
	}
	report.DeadLetters = deadLetters

	return &report, nil
}

func getJSON(client *http.Client, url, secret string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printReport(report *auditReport) {
	fmt.Printf("=== PORTFOLIO AUDIT ===\n")
	if report.Account != nil {
		a := report.Account
		fmt.Printf("Account snapshot (%s): balance=%s available=%s locked=%s daily_pnl=%s drawdown=%s\n",
			a.SnapshotDate, a.TotalBalance, a.AvailableBalance, a.LockedBalance, a.DailyPnL, a.CurrentDrawdown)
	} else {
		fmt.Printf("No account snapshot recorded yet for today.\n")
	}

	fmt.Printf("\nOpen positions: %d\n", len(report.Positions))
	for _, p := range report.Positions {
		fmt.Printf("  %s %s qty=%s entry=%s current=%s unrealized_pnl=%s (%s)\n",
			p.Symbol, p.Side, p.CurrentQuantity, p.EntryPrice, p.CurrentPrice, p.UnrealizedPnL, p.Status)
	}

	fmt.Printf("\nDead-lettered proposals: %d\n", len(report.DeadLetters))
	for _, dl := range report.DeadLetters {
		fmt.Printf("  %s %s %s qty=%s retry_count=%d error=%q\n",
			dl.ID, dl.Symbol, dl.Side, dl.Quantity, dl.RetryCount, dl.ErrorMessage)
	}
	fmt.Printf("\n")
}

// analyzeReport performs basic heuristic checks, mirroring the teacher
// script's own analyzeAuditResults but against spot-position fields
// instead of strangle-leg counts.
func analyzeReport(report *auditReport) []string {
	var issues []string

	if len(report.DeadLetters) > 0 {
		issues = append(issues, fmt.Sprintf("%d proposal(s) stuck in dead_letter — review and retry or cancel", len(report.DeadLetters)))
	}

	for _, p := range report.Positions {
		if p.CurrentQuantity.IsZero() && p.Status == models.PositionOpen {
			issues = append(issues, fmt.Sprintf("position %s is open but current_quantity is zero", p.ID))
		}
	}

	if report.Account != nil && report.Account.CurrentDrawdown.IsPositive() {
		issues = append(issues, fmt.Sprintf("account is in a %s drawdown", report.Account.CurrentDrawdown))
	}

	if report.Account == nil && len(report.Positions) > 0 {
		issues = append(issues, "have open positions but no account snapshot — mark-to-market may not have run yet")
	}

	return issues
}
