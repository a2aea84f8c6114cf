package game

import "sort"

func (r Rules) AssetValue(a TeamAssets) float64 {
	v := r.Valuation
	facilityValue := float64(a.TotalFacilities()) * r.FacilityBuildCost * v.FacilitySalvage
	techValue := float64(a.TechLevel.Design-1)*v.DesignLevel +
		float64(a.TechLevel.Safety-1)*v.SafetyLevel +
		float64(a.TechLevel.Process-1)*v.ProcessLevel
	humanCapital := float64(a.Employees.Skilled)*v.Skilled + float64(a.Employees.Master)*v.Master
	return Round2(a.Cash + facilityValue + techValue + humanCapital)
}

type TeamStanding struct {
	TeamID              string
	TeamName            string
	CumulativeNetProfit float64
	Assets              TeamAssets
}

// Leaderboard scores every team from scratch and ranks by descending score.
// Equal scores keep their input order.
func (r Rules) Leaderboard(teams []TeamStanding) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(teams))
	for _, t := range teams {
		value := r.AssetValue(t.Assets)
		out = append(out, LeaderboardEntry{
			TeamID:              t.TeamID,
			TeamName:            t.TeamName,
			CumulativeNetProfit: t.CumulativeNetProfit,
			TotalAssetValue:     value,
			Score:               Round2(t.CumulativeNetProfit + value),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
