package game

import (
	"reflect"
	"testing"
)

func settleSnapshot(t *testing.T) RoundSnapshot {
	t.Helper()
	rules := DefaultRules()
	cfg, err := rules.Market(1)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	seller := sellTwoGasoline(1000)
	seller.IsSubmitted = true
	return RoundSnapshot{
		RoomCode:   "ABCD",
		Round:      1,
		TotalTeams: 2,
		Market:     cfg,
		Teams: []TeamSnapshot{
			{
				Team:      Team{ID: TeamID(1), Seq: 1, Name: TeamName(1), Assets: rules.InitialAssets, CumulativeNetProfit: 100},
				Decisions: &seller,
			},
			{
				Team: Team{ID: TeamID(2), Seq: 2, Name: TeamName(2), Assets: rules.InitialAssets},
			},
		},
	}
}

func TestSettle(t *testing.T) {
	rules := DefaultRules()
	out := rules.Settle(settleSnapshot(t))

	if out.RoomCode != "ABCD" || out.Round != 1 || out.TotalDemand != 4 {
		t.Fatalf("header got=%+v", out)
	}
	if out.DemandPerVehicle.Gasoline != 2 || out.DemandPerVehicle.Diesel != 2 {
		t.Fatalf("demand split got=%+v", out.DemandPerVehicle)
	}
	if len(out.Teams) != 2 {
		t.Fatalf("got %d teams", len(out.Teams))
	}

	seller, idle := out.Teams[0], out.Teams[1]
	if seller.ForcedSubmit || !idle.ForcedSubmit {
		t.Fatalf("forced flags seller=%t idle=%t", seller.ForcedSubmit, idle.ForcedSubmit)
	}
	if !idle.Decisions.IsSubmitted || idle.Decisions.Production.ProcessTechLevel != 1 {
		t.Fatalf("idle team must be frozen with defaults, got %+v", idle.Decisions)
	}
	if seller.Allocated.Gasoline != 2 || idle.Allocated.Gasoline != 0 {
		t.Fatalf("allocation seller=%+v idle=%+v", seller.Allocated, idle.Allocated)
	}

	if !approx(seller.Results.NetProfit, -1297.4) || !approx(seller.CumulativeNetProfit, -1197.4) {
		t.Fatalf("seller net=%.2f cumulative=%.2f", seller.Results.NetProfit, seller.CumulativeNetProfit)
	}
	if !approx(idle.Results.NetProfit, -797.4) || !approx(idle.Results.UpdatedAssets.Cash, 6022.6) {
		t.Fatalf("idle results got=%+v", idle.Results)
	}

	if len(out.Leaderboard) != 2 {
		t.Fatalf("leaderboard rows=%d", len(out.Leaderboard))
	}
	top, second := out.Leaderboard[0], out.Leaderboard[1]
	if top.TeamID != TeamID(2) || top.Rank != 1 || !approx(top.Score, 6225.2) {
		t.Fatalf("top got=%+v", top)
	}
	if second.TeamID != TeamID(1) || second.Rank != 2 || !approx(second.Score, 5325.2) {
		t.Fatalf("second got=%+v", second)
	}

	if got := out.TeamResults(); len(got) != 2 || got[TeamID(1)].Revenue != 2000 {
		t.Fatalf("team results got=%+v", got)
	}
}

func TestSettleIsDeterministic(t *testing.T) {
	rules := DefaultRules()
	snap := settleSnapshot(t)
	before := *snap.Teams[0].Decisions

	a := rules.Settle(snap)
	b := rules.Settle(snap)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same snapshot settled differently:\n%+v\n%+v", a, b)
	}
	if !reflect.DeepEqual(before, *snap.Teams[0].Decisions) {
		t.Fatalf("settle mutated the snapshot decisions")
	}
	if snap.Teams[1].Decisions != nil {
		t.Fatalf("settle filled a nil record in the snapshot")
	}
}

func TestSettleFreezesOpenDraft(t *testing.T) {
	rules := DefaultRules()
	submitted := rules.Settle(settleSnapshot(t))

	snap := settleSnapshot(t)
	draft := sellTwoGasoline(1000)
	snap.Teams[0].Decisions = &draft
	out := rules.Settle(snap)

	got := out.Teams[0]
	if !got.ForcedSubmit || !got.Decisions.IsSubmitted {
		t.Fatalf("open draft must be force submitted, got forced=%t submitted=%t", got.ForcedSubmit, got.Decisions.IsSubmitted)
	}
	if got.Decisions.Production.MaterialPurchase.Gasoline != 2 || got.Decisions.Marketing.BidPrices.Gasoline != 1000 {
		t.Fatalf("frozen draft lost its values: %+v", got.Decisions)
	}
	if got.Allocated.Gasoline != 2 || got.Results.Revenue != 2000 {
		t.Fatalf("draft allocation=%+v revenue=%.2f", got.Allocated, got.Results.Revenue)
	}
	if !reflect.DeepEqual(got.Results, submitted.Teams[0].Results) {
		t.Fatalf("draft settled differently from the submitted record:\n%+v\n%+v", got.Results, submitted.Teams[0].Results)
	}
	if draft.IsSubmitted {
		t.Fatalf("settle mutated the caller's draft")
	}
}
