package game

// TeamSnapshot is one team's state as collected at round close. Decisions is
// nil when the team never got a record for the round.
type TeamSnapshot struct {
	Team      Team
	Decisions *RoundDecisions
}

type RoundSnapshot struct {
	RoomCode   string
	Round      RoundNumber
	TotalTeams int
	Market     MarketConfig
	Teams      []TeamSnapshot
}

type SettledTeam struct {
	TeamID              string             `json:"teamId"`
	TeamName            string             `json:"teamName"`
	ForcedSubmit        bool               `json:"forcedSubmit"`
	Decisions           RoundDecisions     `json:"decisions"`
	Allocated           ByVehicle[float64] `json:"allocatedDemand"`
	Results             RoundResults       `json:"results"`
	CumulativeNetProfit float64            `json:"cumulativeNetProfit"`
}

type Settlement struct {
	ID               string             `json:"settlementId"`
	IdempotencyKey   string             `json:"idempotencyKey,omitempty"`
	RoomCode         string             `json:"roomCode"`
	Round            RoundNumber        `json:"round"`
	TotalDemand      float64            `json:"totalDemand"`
	DemandPerVehicle ByVehicle[float64] `json:"demandPerVehicle"`
	Teams            []SettledTeam      `json:"teams"`
	Leaderboard      []LeaderboardEntry `json:"leaderboard"`
}

func (s Settlement) TeamResults() map[string]RoundResults {
	out := make(map[string]RoundResults, len(s.Teams))
	for _, t := range s.Teams {
		out[t.TeamID] = t.Results
	}
	return out
}

// Settle runs freeze, demand, allocation, per-team accounting and ranking over
// a complete snapshot. It performs no I/O and is deterministic for a given
// snapshot; the caller assigns Settlement.ID.
func (r Rules) Settle(snap RoundSnapshot) Settlement {
	frozen := make([]RoundDecisions, len(snap.Teams))
	forced := make([]bool, len(snap.Teams))
	for i, t := range snap.Teams {
		d := DefaultDecisions(t.Team.Assets.TechLevel.Process)
		if t.Decisions != nil {
			d = *t.Decisions
		}
		forced[i] = !d.IsSubmitted
		frozen[i] = d.Freeze()
	}

	total := r.TotalDemand(snap.TotalTeams, snap.Market)
	perVehicle := r.DemandPerVehicle(total, snap.Market)

	allocations := make(map[string]ByVehicle[float64], len(snap.Teams))
	for _, vt := range VehicleTypes {
		bids := make([]TeamBid, 0, len(snap.Teams))
		for i, t := range snap.Teams {
			bids = append(bids, TeamBid{
				TeamID:             t.Team.ID,
				BidPrice:           frozen[i].Marketing.BidPrices.Get(vt),
				ProductionCapacity: r.Capacity(t.Team.Assets, frozen[i], vt),
			})
		}
		for _, share := range r.AllocateMarketShare(bids, perVehicle.Get(vt)) {
			a := allocations[share.TeamID]
			a.Set(vt, share.AllocatedDemand)
			allocations[share.TeamID] = a
		}
	}

	out := Settlement{
		RoomCode:         snap.RoomCode,
		Round:            snap.Round,
		TotalDemand:      total,
		DemandPerVehicle: perVehicle,
		Teams:            make([]SettledTeam, 0, len(snap.Teams)),
	}
	standings := make([]TeamStanding, 0, len(snap.Teams))
	for i, t := range snap.Teams {
		alloc := allocations[t.Team.ID]
		res := r.CalculateRoundResults(t.Team.Assets, frozen[i], alloc, snap.Market)
		cumulative := Round2(t.Team.CumulativeNetProfit + res.NetProfit)
		out.Teams = append(out.Teams, SettledTeam{
			TeamID:              t.Team.ID,
			TeamName:            t.Team.Name,
			ForcedSubmit:        forced[i],
			Decisions:           frozen[i],
			Allocated:           alloc,
			Results:             res,
			CumulativeNetProfit: cumulative,
		})
		standings = append(standings, TeamStanding{
			TeamID:              t.Team.ID,
			TeamName:            t.Team.Name,
			CumulativeNetProfit: cumulative,
			Assets:              res.UpdatedAssets,
		})
	}
	out.Leaderboard = r.Leaderboard(standings)
	return out
}
