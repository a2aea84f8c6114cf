package game

import "math"

// CalculateRoundResults settles one team for one round. It reads the prior
// assets and the frozen decision record and never mutates either.
func (r Rules) CalculateRoundResults(assets TeamAssets, d RoundDecisions, allocated ByVehicle[float64], cfg MarketConfig) RoundResults {
	var (
		lines      ByVehicle[int]
		production ByVehicle[float64]
		sales      ByVehicle[float64]
		revenueBy  ByVehicle[float64]
		revenue    float64
		lineCount  int
	)

	// capacity and sales
	for _, vt := range VehicleTypes {
		n := assets.Facilities.Get(vt) + d.Production.FacilityExpansion.Get(vt)
		lines.Set(vt, n)
		lineCount += n

		made := r.Capacity(assets, d, vt)
		production.Set(vt, made)

		sold := math.Min(made, allocated.Get(vt))
		sales.Set(vt, sold)

		rev := sold * d.Marketing.BidPrices.Get(vt)
		revenueBy.Set(vt, rev)
		revenue += rev
	}

	// variable costs
	var materialCost float64
	for _, vt := range VehicleTypes {
		unit := r.MaterialCost.Get(vt)
		if vt == Diesel {
			unit *= cfg.DieselDemandMultiplier
		}
		materialCost += float64(d.Production.MaterialPurchase.Get(vt)) * unit
	}
	salesAdminCost := revenue * r.SalesAdminRate
	failureCost := revenue * r.SafetyFailureRate[assets.TechLevel.Safety]
	variableCost := materialCost + salesAdminCost + failureCost

	// fixed costs
	laborCost := r.laborCost(assets.Employees, d)
	maintenanceCost := float64(lineCount) * r.FacilityMaintenanceRate
	depreciationCost := float64(lineCount) * r.FacilityDepreciationRate
	loanAfter := assets.Loan + d.Finance.LoanRequest - d.Finance.LoanRepay
	interestCost := math.Max(0, loanAfter) * cfg.InterestRate
	generalAdminCost := revenue * r.GeneralAdminRate
	fixedCost := laborCost + maintenanceCost + depreciationCost + interestCost + generalAdminCost

	operatingProfit := revenue - (variableCost + fixedCost)
	var taxAmount float64
	if operatingProfit > 0 {
		taxAmount = operatingProfit * r.TaxRate
	}
	const nonOperatingIncome = 0
	netProfit := operatingProfit + nonOperatingIncome - taxAmount

	facilityInvestment, rndInvestment, processTechCost := r.capitalSpend(assets, d)

	// Material and labor leave cash once, through capex; the remaining expense
	// lines are subtracted individually.
	capex := materialCost + facilityInvestment + rndInvestment + processTechCost + laborCost
	cash := assets.Cash +
		d.Finance.LoanRequest -
		d.Finance.LoanRepay -
		capex +
		revenue -
		salesAdminCost -
		failureCost -
		maintenanceCost -
		depreciationCost -
		interestCost -
		generalAdminCost -
		taxAmount

	updated := TeamAssets{
		Cash:       Round2(cash),
		Loan:       Round2(math.Max(0, loanAfter)),
		Capital:    Round2(assets.Capital + netProfit),
		Facilities: lines,
		TechLevel:  r.nextTech(assets.TechLevel, d),
		Employees:  nextEmployees(assets.Employees, d.HR),
	}

	return RoundResults{
		Revenue:            Round2(revenue),
		RevenueByVehicle:   roundVehicles(revenueBy),
		ProductionVolume:   production,
		SalesVolume:        sales,
		VariableCost:       Round2(variableCost),
		MaterialCost:       Round2(materialCost),
		SalesAdminCost:     Round2(salesAdminCost),
		FailureCost:        Round2(failureCost),
		FixedCost:          Round2(fixedCost),
		LaborCost:          Round2(laborCost),
		MaintenanceCost:    Round2(maintenanceCost),
		DepreciationCost:   Round2(depreciationCost),
		InterestCost:       Round2(interestCost),
		GeneralAdminCost:   Round2(generalAdminCost),
		OperatingProfit:    Round2(operatingProfit),
		NonOperatingIncome: nonOperatingIncome,
		TaxAmount:          Round2(taxAmount),
		NetProfit:          Round2(netProfit),
		FacilityInvestment: Round2(facilityInvestment),
		RnDInvestment:      Round2(rndInvestment),
		ProcessTechCost:    Round2(processTechCost),
		UpdatedAssets:      updated,
	}
}

func (r Rules) laborCost(e Employees, d RoundDecisions) float64 {
	if d.Production.ProcessTechLevel >= AutomationLevel {
		return 0
	}
	cost := float64(e.Unskilled)*r.MaintenanceCost.Unskilled +
		float64(e.Skilled)*r.MaintenanceCost.Skilled +
		float64(e.Master)*r.MaintenanceCost.Master
	cost += float64(d.HR.NewHires) * r.HireCostPerGroup
	cost += float64(d.HR.TrainingUnskilledToSkilled) * r.TrainingCost.UnskilledToSkilled
	cost += float64(d.HR.TrainingSkilledToMaster) * r.TrainingCost.SkilledToMaster
	return cost
}

func (r Rules) capitalSpend(assets TeamAssets, d RoundDecisions) (facility, rnd, process float64) {
	for _, vt := range VehicleTypes {
		facility += float64(d.Production.FacilityExpansion.Get(vt)) * r.FacilityBuildCost
	}
	if d.RnD.AnyDesign() {
		rnd += r.DesignRnDCost[assets.TechLevel.Design]
	}
	if d.RnD.SafetyInvestment {
		rnd += r.SafetyRnDCost[assets.TechLevel.Safety]
	}
	if d.Production.ProcessTechLevel > assets.TechLevel.Process {
		process = r.ProcessTechCost[d.Production.ProcessTechLevel]
	}
	return facility, rnd, process
}

func (r Rules) nextTech(t TechLevels, d RoundDecisions) TechLevels {
	next := t
	if d.RnD.AnyDesign() && next.Design < MaxDesignLevel {
		next.Design++
	}
	if d.RnD.SafetyInvestment && next.Safety < MaxSafetyLevel {
		next.Safety++
	}
	if d.Production.ProcessTechLevel >= MinProcessLevel {
		next.Process = d.Production.ProcessTechLevel
	}
	return next
}

func nextEmployees(e Employees, hr HRDecision) Employees {
	return Employees{
		Unskilled: max(0, e.Unskilled+hr.NewHires-hr.TrainingUnskilledToSkilled),
		Skilled:   max(0, e.Skilled+hr.TrainingUnskilledToSkilled-hr.TrainingSkilledToMaster),
		Master:    max(0, e.Master+hr.TrainingSkilledToMaster),
	}
}

func roundVehicles(in ByVehicle[float64]) ByVehicle[float64] {
	var out ByVehicle[float64]
	for _, vt := range VehicleTypes {
		out.Set(vt, Round2(in.Get(vt)))
	}
	return out
}
