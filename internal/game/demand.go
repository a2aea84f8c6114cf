package game

func (r Rules) TotalDemand(teamCount int, cfg MarketConfig) float64 {
	return r.BaseDemandPerTeam * float64(teamCount) * cfg.DemandMultiplier
}

// DemandPerVehicle splits total demand evenly over the unlocked types. The
// diesel share is scaled on top of the split and is not renormalized, so the
// shares only sum to total when the diesel multiplier is 1.
func (r Rules) DemandPerVehicle(total float64, cfg MarketConfig) ByVehicle[float64] {
	var out ByVehicle[float64]
	if len(cfg.UnlockedVehicles) == 0 {
		return out
	}
	base := total / float64(len(cfg.UnlockedVehicles))
	for _, vt := range VehicleTypes {
		if !cfg.VehicleUnlocked(vt) {
			continue
		}
		share := base
		if vt == Diesel {
			share *= cfg.DieselDemandMultiplier
		}
		out.Set(vt, share)
	}
	return out
}
