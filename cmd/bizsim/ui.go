package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"bizsim/internal/game"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func renderRoom(r game.Room) {
	accent.Printf("\n== ROOM %s: %s ==\n", r.Code, truncate(r.Name, 40))
	fmt.Printf("Status: %s   Round: %d (%s)   Teams: %d\n", r.Status, r.CurrentRound, r.RoundStatus, r.TotalTeams)
	fmt.Printf("Cycle: %s   Market demand: %s   Interest: %.1f%%\n", r.Market.Cycle, money(r.MarketDemand), r.Market.InterestRate*100)
	if r.RoundEndsAt != nil {
		fmt.Printf("Round closes: %s\n", r.RoundEndsAt.Local().Format("2006-01-02 15:04:05"))
	}
	if r.Market.NewsHeadline != "" {
		warn.Printf("NEWS: %s\n", r.Market.NewsHeadline)
	}
	if len(r.Leaderboard) > 0 {
		renderLeaderboard(r.Leaderboard)
	}
	fmt.Println()
}

func renderMarket(m game.MarketConfig) {
	accent.Printf("\n== ROUND %d MARKET ==\n", m.Round)
	fmt.Printf("Cycle: %s\n", m.Cycle)
	fmt.Printf("Interest rate: %.1f%%\n", m.InterestRate*100)
	fmt.Printf("Demand multiplier: %.2f (diesel %.2f)\n", m.DemandMultiplier, m.DieselDemandMultiplier)
	vehicles := make([]string, 0, len(m.UnlockedVehicles))
	for _, v := range m.UnlockedVehicles {
		vehicles = append(vehicles, string(v))
	}
	fmt.Printf("Vehicles: %s\n", strings.Join(vehicles, ", "))
	tech := make([]string, 0, len(m.UnlockedTech))
	for _, t := range m.UnlockedTech {
		tech = append(tech, strconv.Itoa(t))
	}
	fmt.Printf("Process tiers: %s\n", strings.Join(tech, ", "))
	if m.NewsHeadline != "" {
		warn.Printf("\n%s\n", m.NewsHeadline)
		fmt.Println(m.NewsDetails)
	}
	fmt.Println()
}

func renderLeaderboard(rows []game.LeaderboardEntry) {
	accent.Println("\n== LEADERBOARD ==")
	if len(rows) == 0 {
		printInfo("No leaderboard rows yet.")
		return
	}
	fmt.Printf("%-6s %-18s %14s %14s %14s\n", "RANK", "TEAM", "NET PROFIT", "ASSETS", "SCORE")
	for _, row := range rows {
		fmt.Printf("%-6d %-18s %14s %14s %14s\n",
			row.Rank,
			truncate(row.TeamName, 18),
			colorize(row.CumulativeNetProfit),
			money(row.TotalAssetValue),
			money(row.Score),
		)
	}
}

func renderTeamResults(results map[string]game.RoundResults) {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	accent.Println("\n== TEAM RESULTS ==")
	fmt.Printf("%-10s %12s %12s %12s %12s\n", "TEAM", "REVENUE", "OP PROFIT", "NET", "CASH")
	for _, id := range ids {
		r := results[id]
		fmt.Printf("%-10s %12s %12s %12s %12s\n",
			truncate(id, 10),
			money(r.Revenue),
			colorize(r.OperatingProfit),
			colorize(r.NetProfit),
			money(r.UpdatedAssets.Cash),
		)
	}
	fmt.Println()
}

func renderResults(teamID string, r game.RoundResults) {
	accent.Printf("\n== RESULTS %s ==\n", teamID)
	lines := []struct {
		label string
		v     float64
	}{
		{"Revenue", r.Revenue},
		{"Variable cost", r.VariableCost},
		{"  Materials", r.MaterialCost},
		{"  Sales & admin", r.SalesAdminCost},
		{"  Failures", r.FailureCost},
		{"Fixed cost", r.FixedCost},
		{"  Labor", r.LaborCost},
		{"  Maintenance", r.MaintenanceCost},
		{"  Depreciation", r.DepreciationCost},
		{"  Interest", r.InterestCost},
		{"  General admin", r.GeneralAdminCost},
	}
	for _, l := range lines {
		fmt.Printf("%-18s %14s\n", l.label, money(l.v))
	}
	fmt.Printf("%-18s %14s\n", "Operating profit", colorize(r.OperatingProfit))
	fmt.Printf("%-18s %14s\n", "Tax", money(r.TaxAmount))
	fmt.Printf("%-18s %14s\n", "Net profit", colorize(r.NetProfit))
	a := r.UpdatedAssets
	fmt.Printf("\nCash %s   Loan %s   Capital %s\n", money(a.Cash), money(a.Loan), money(a.Capital))
	fmt.Printf("Tech: process %d  design %d  safety %d\n", a.TechLevel.Process, a.TechLevel.Design, a.TechLevel.Safety)
	fmt.Printf("Staff: unskilled %d  skilled %d  master %d\n", a.Employees.Unskilled, a.Employees.Skilled, a.Employees.Master)
	fmt.Println()
}

func renderDecisions(d game.RoundDecisions) {
	state := warn.Sprint("open")
	if d.IsSubmitted {
		state = success.Sprint("submitted")
	}
	accent.Printf("\n== DECISIONS (%s) ==\n", state)
	fmt.Printf("Loan +%s / -%s\n", money(d.Finance.LoanRequest), money(d.Finance.LoanRepay))
	fmt.Printf("Process target: %d   Safety R&D: %t\n", d.Production.ProcessTechLevel, d.RnD.SafetyInvestment)
	fmt.Printf("%-10s %10s %10s %8s %10s\n", "VEHICLE", "MATERIALS", "EXPAND", "DESIGN", "BID")
	for _, v := range game.VehicleTypes {
		fmt.Printf("%-10s %10d %10d %8t %10s\n",
			v,
			d.Production.MaterialPurchase.Get(v),
			d.Production.FacilityExpansion.Get(v),
			d.RnD.DesignInvestments.Get(v),
			money(d.Marketing.BidPrices.Get(v)),
		)
	}
	fmt.Printf("Hires %d   Train u->s %d   Train s->m %d\n", d.HR.NewHires, d.HR.TrainingUnskilledToSkilled, d.HR.TrainingSkilledToMaster)
	if d.CEOStrategy != "" {
		fmt.Printf("Strategy: %s\n", truncate(d.CEOStrategy, 72))
	}
	fmt.Println()
}

func renderCashFlow(teamID string, cf game.CashFlow) {
	accent.Printf("\n== CASH FLOW %s ==\n", teamID)
	fmt.Printf("%-18s %14s\n", "Cash after loans", money(cf.CurrentCash))
	fmt.Printf("%-18s %14s\n", "Planned spend", money(cf.PlannedExpenses))
	fmt.Printf("%-18s %14s\n", "Available", colorize(cf.AvailableCash))
	if cf.AvailableCash < 0 {
		printWarn("Plan overdraws cash.")
	}
	fmt.Println()
}

func colorize(v float64) string {
	text := money(v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func money(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := int64(game.Round2(v)*100 + 0.5)
	return fmt.Sprintf("%s%s.%02d", sign, comma(cents/100), cents%100)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
