package game

import (
	"math"
	"sort"
)

type TeamBid struct {
	TeamID             string  `json:"teamId"`
	BidPrice           float64 `json:"bidPrice"`
	ProductionCapacity float64 `json:"productionCapacity"`
}

type MarketAllocation struct {
	TeamID          string  `json:"teamId"`
	Ratio           float64 `json:"ratio"`
	AllocatedDemand float64 `json:"allocatedDemand"`
}

// AllocateMarketShare ranks eligible bids by ascending price and hands each
// team a share of demand scaled from the bonus (cheapest) down to the penalty
// (most expensive), capped by what the team can produce.
func (r Rules) AllocateMarketShare(bids []TeamBid, totalDemand float64) []MarketAllocation {
	if len(bids) == 0 || totalDemand <= 0 {
		return nil
	}
	active := make([]TeamBid, 0, len(bids))
	for _, b := range bids {
		if b.BidPrice > 0 && b.ProductionCapacity > 0 {
			active = append(active, b)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].BidPrice < active[j].BidPrice
	})

	base := totalDemand / float64(len(active))
	// Shares round to the nearest cent, so the pool is floored to keep the
	// total at or below demand.
	remaining := Floor2(totalDemand)
	out := make([]MarketAllocation, 0, len(active))
	for i, b := range active {
		ratio := r.shareRatio(i, len(active))
		allocated := math.Min(Round2(base*ratio), b.ProductionCapacity)
		if allocated > remaining {
			allocated = remaining
		}
		remaining = Round2(remaining - allocated)
		out = append(out, MarketAllocation{
			TeamID:          b.TeamID,
			Ratio:           ratio,
			AllocatedDemand: allocated,
		})
	}
	return out
}

func (r Rules) shareRatio(rank, n int) float64 {
	if n <= 1 {
		return 1.0
	}
	return r.MarketShareBonus - (float64(rank)/float64(n-1))*(r.MarketShareBonus-r.MarketSharePenalty)
}

// Capacity is what a team can put on the market for one vehicle type this
// round: new facility total times line output, limited by materials bought.
func (r Rules) Capacity(assets TeamAssets, d RoundDecisions, vt VehicleType) float64 {
	lines := assets.Facilities.Get(vt) + d.Production.FacilityExpansion.Get(vt)
	return math.Min(float64(lines*r.ProductionPerLine), float64(d.Production.MaterialPurchase.Get(vt)))
}
