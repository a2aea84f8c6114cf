package game

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}

func gasolineOnly() TeamAssets {
	return TeamAssets{
		Cash:       6820,
		Capital:    4000,
		Facilities: ByVehicle[int]{Gasoline: 2},
		TechLevel:  TechLevels{Process: 1, Design: 1, Safety: 1},
	}
}

func sellTwoGasoline(price float64) RoundDecisions {
	d := DefaultDecisions(1)
	d.Production.MaterialPurchase.Gasoline = 2
	d.Marketing.BidPrices.Gasoline = price
	return d
}

func TestCalculateRoundResults(t *testing.T) {
	rules := DefaultRules()
	round1, err := rules.Market(1)
	if err != nil {
		t.Fatalf("market: %v", err)
	}

	profitable := gasolineOnly()
	profitable.TechLevel.Safety = 5

	tests := []struct {
		name   string
		assets TeamAssets
		d      RoundDecisions
		want   map[string]float64
	}{
		{
			name:   "loss at material cost",
			assets: gasolineOnly(),
			d:      sellTwoGasoline(900),
			want: map[string]float64{
				"revenue": 1800, "material": 1800, "salesAdmin": 90, "failure": 360,
				"fixed": 380, "operating": -830, "tax": 0, "net": -830,
				"cash": 5990, "capital": 3170,
			},
		},
		{
			name:   "starting assets carry labor and interest",
			assets: rules.InitialAssets,
			d:      sellTwoGasoline(900),
			want: map[string]float64{
				"revenue": 1800, "labor": 200, "interest": 197.4, "fixed": 977.4,
				"net": -1427.4, "cash": 5392.6, "capital": 2572.6, "loan": 2820,
			},
		},
		{
			name:   "profit is taxed",
			assets: profitable,
			d:      sellTwoGasoline(3000),
			want: map[string]float64{
				"revenue": 6000, "failure": 0, "operating": 3100, "tax": 310, "net": 2790,
			},
		},
	}

	for _, tc := range tests {
		res := rules.CalculateRoundResults(tc.assets, tc.d, ByVehicle[float64]{Gasoline: 2}, round1)
		got := map[string]float64{
			"revenue":    res.Revenue,
			"material":   res.MaterialCost,
			"salesAdmin": res.SalesAdminCost,
			"failure":    res.FailureCost,
			"labor":      res.LaborCost,
			"interest":   res.InterestCost,
			"fixed":      res.FixedCost,
			"operating":  res.OperatingProfit,
			"tax":        res.TaxAmount,
			"net":        res.NetProfit,
			"cash":       res.UpdatedAssets.Cash,
			"capital":    res.UpdatedAssets.Capital,
			"loan":       res.UpdatedAssets.Loan,
		}
		for field, w := range tc.want {
			if !approx(got[field], w) {
				t.Fatalf("%s: %s got=%.2f want=%.2f", tc.name, field, got[field], w)
			}
		}
	}
}

func TestCalculateRoundResultsDoesNotMutateInputs(t *testing.T) {
	rules := DefaultRules()
	cfg, _ := rules.Market(1)
	assets := rules.InitialAssets
	d := sellTwoGasoline(1500)
	d.HR.NewHires = 2
	d.RnD.SafetyInvestment = true

	before := assets
	rules.CalculateRoundResults(assets, d, ByVehicle[float64]{Gasoline: 2}, cfg)
	if assets != before {
		t.Fatalf("assets mutated: %+v", assets)
	}
}

func TestAutomationDropsLabor(t *testing.T) {
	rules := DefaultRules()
	cfg, _ := rules.Market(4)
	assets := rules.InitialAssets
	assets.TechLevel.Process = 3

	d := DefaultDecisions(3)
	d.Production.ProcessTechLevel = AutomationLevel
	d.HR.NewHires = 3

	res := rules.CalculateRoundResults(assets, d, ByVehicle[float64]{}, cfg)
	if res.LaborCost != 0 {
		t.Fatalf("labor got=%.2f want=0", res.LaborCost)
	}
	if res.ProcessTechCost != 700 {
		t.Fatalf("process cost got=%.2f want=700", res.ProcessTechCost)
	}
	if res.UpdatedAssets.TechLevel.Process != AutomationLevel {
		t.Fatalf("process level got=%d", res.UpdatedAssets.TechLevel.Process)
	}
	if res.UpdatedAssets.Employees.Unskilled != 7 {
		t.Fatalf("hires still join the roster: got=%d want=7", res.UpdatedAssets.Employees.Unskilled)
	}
}

func TestTechAndStaffProgression(t *testing.T) {
	rules := DefaultRules()
	cfg, _ := rules.Market(1)
	assets := rules.InitialAssets
	assets.TechLevel.Safety = MaxSafetyLevel
	assets.Employees = Employees{Unskilled: 4, Skilled: 1}

	d := DefaultDecisions(1)
	d.RnD.DesignInvestments.Gasoline = true
	d.RnD.SafetyInvestment = true
	d.HR.TrainingUnskilledToSkilled = 2
	d.HR.TrainingSkilledToMaster = 1
	d.Production.FacilityExpansion.Diesel = 1

	res := rules.CalculateRoundResults(assets, d, ByVehicle[float64]{}, cfg)
	next := res.UpdatedAssets
	if next.TechLevel.Design != 2 {
		t.Fatalf("design got=%d want=2", next.TechLevel.Design)
	}
	if next.TechLevel.Safety != MaxSafetyLevel {
		t.Fatalf("safety must stay capped, got=%d", next.TechLevel.Safety)
	}
	if next.Employees != (Employees{Unskilled: 2, Skilled: 2, Master: 1}) {
		t.Fatalf("employees got=%+v", next.Employees)
	}
	if next.Facilities.Diesel != 3 {
		t.Fatalf("diesel lines got=%d want=3", next.Facilities.Diesel)
	}
	// design from level 1 plus safety at cap (no table entry)
	if res.RnDInvestment != 400 {
		t.Fatalf("rnd got=%.2f want=400", res.RnDInvestment)
	}
	if res.FacilityInvestment != 500 {
		t.Fatalf("facility got=%.2f want=500", res.FacilityInvestment)
	}
}

func TestLoanRepaymentClampsAtZero(t *testing.T) {
	rules := DefaultRules()
	cfg, _ := rules.Market(1)
	assets := rules.InitialAssets

	d := DefaultDecisions(1)
	d.Finance.LoanRepay = assets.Loan

	res := rules.CalculateRoundResults(assets, d, ByVehicle[float64]{}, cfg)
	if res.InterestCost != 0 || res.UpdatedAssets.Loan != 0 {
		t.Fatalf("interest=%.2f loan=%.2f", res.InterestCost, res.UpdatedAssets.Loan)
	}
}

func TestDieselMaterialScalesWithMarket(t *testing.T) {
	rules := DefaultRules()
	cfg, _ := rules.Market(2)
	d := DefaultDecisions(1)
	d.Production.MaterialPurchase.Diesel = 1

	res := rules.CalculateRoundResults(rules.InitialAssets, d, ByVehicle[float64]{}, cfg)
	if res.MaterialCost != 2400 {
		t.Fatalf("material got=%.2f want=2400", res.MaterialCost)
	}
}
