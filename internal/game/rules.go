package game

import "fmt"

type EmployeeCosts struct {
	Unskilled float64 `yaml:"unskilled"`
	Skilled   float64 `yaml:"skilled"`
	Master    float64 `yaml:"master"`
}

type TrainingCosts struct {
	UnskilledToSkilled float64 `yaml:"unskilled_to_skilled"`
	SkilledToMaster    float64 `yaml:"skilled_to_master"`
}

type ValuationRates struct {
	FacilitySalvage float64 `yaml:"facility_salvage"`
	DesignLevel     float64 `yaml:"design_level"`
	SafetyLevel     float64 `yaml:"safety_level"`
	ProcessLevel    float64 `yaml:"process_level"`
	Skilled         float64 `yaml:"skilled"`
	Master          float64 `yaml:"master"`
}

// Rules is the complete set of static tables the engine reads. A Rules value
// is never modified after construction; the maps inside are shared by copies.
type Rules struct {
	InitialAssets TeamAssets `yaml:"initial_assets"`

	MaterialCost ByVehicle[float64] `yaml:"material_cost"`

	// R&D tables are keyed by the level being upgraded from.
	DesignRnDCost     map[int]float64 `yaml:"design_rnd_cost"`
	SafetyRnDCost     map[int]float64 `yaml:"safety_rnd_cost"`
	SafetyFailureRate map[int]float64 `yaml:"safety_failure_rate"`
	// ProcessTechCost is keyed by the target level.
	ProcessTechCost map[int]float64 `yaml:"process_tech_cost"`

	HireCostPerGroup float64       `yaml:"hire_cost_per_group"`
	MaintenanceCost  EmployeeCosts `yaml:"maintenance_cost"`
	TrainingCost     TrainingCosts `yaml:"training_cost"`

	FacilityBuildCost        float64 `yaml:"facility_build_cost"`
	FacilityMaintenanceRate  float64 `yaml:"facility_maintenance_rate"`
	FacilityDepreciationRate float64 `yaml:"facility_depreciation_rate"`
	ProductionPerLine        int     `yaml:"production_per_line"`

	BaseDemandPerTeam  float64 `yaml:"base_demand_per_team"`
	MarketShareBonus   float64 `yaml:"market_share_bonus"`
	MarketSharePenalty float64 `yaml:"market_share_penalty"`

	TaxRate          float64 `yaml:"tax_rate"`
	SalesAdminRate   float64 `yaml:"sales_admin_rate"`
	GeneralAdminRate float64 `yaml:"general_admin_rate"`

	Valuation ValuationRates `yaml:"valuation"`

	Rounds map[RoundNumber]MarketConfig `yaml:"rounds"`
}

func DefaultRules() Rules {
	return Rules{
		InitialAssets: TeamAssets{
			Cash:       6820,
			Loan:       2820,
			Capital:    4000,
			Facilities: ByVehicle[int]{Gasoline: 2, Diesel: 2},
			TechLevel:  TechLevels{Process: 1, Design: 1, Safety: 1},
			Employees:  Employees{Unskilled: 4},
		},
		MaterialCost: ByVehicle[float64]{
			Gasoline: 900,
			Diesel:   1200,
			Hybrid:   1500,
			EV:       2000,
			Hydrogen: 2500,
		},
		DesignRnDCost:     map[int]float64{1: 400, 2: 600, 3: 800, 4: 1000},
		SafetyRnDCost:     map[int]float64{1: 200, 2: 300, 3: 400, 4: 500},
		SafetyFailureRate: map[int]float64{1: 0.20, 2: 0.15, 3: 0.10, 4: 0.03, 5: 0.00},
		ProcessTechCost:   map[int]float64{2: 300, 3: 500, 4: 700},

		HireCostPerGroup: 60,
		MaintenanceCost:  EmployeeCosts{Unskilled: 50, Skilled: 60, Master: 80},
		TrainingCost:     TrainingCosts{UnskilledToSkilled: 20, SkilledToMaster: 30},

		FacilityBuildCost:        500,
		FacilityMaintenanceRate:  50,
		FacilityDepreciationRate: 50,
		ProductionPerLine:        1,

		BaseDemandPerTeam:  2,
		MarketShareBonus:   1.2,
		MarketSharePenalty: 0.8,

		TaxRate:          0.10,
		SalesAdminRate:   0.05,
		GeneralAdminRate: 0.10,

		Valuation: ValuationRates{
			FacilitySalvage: 0.5,
			DesignLevel:     300,
			SafetyLevel:     200,
			ProcessLevel:    250,
			Skilled:         100,
			Master:          200,
		},

		Rounds: map[RoundNumber]MarketConfig{
			1: {
				Round:                  1,
				Cycle:                  "recovery",
				InterestRate:           0.07,
				DemandMultiplier:       1.0,
				DieselDemandMultiplier: 1.0,
				UnlockedVehicles:       []VehicleType{Gasoline, Diesel},
				UnlockedTech:           []int{1, 2},
				NewsHeadline:           "Round 1: Recovery - a balanced market",
				NewsDetails:            "Interest 7%. Gasoline and diesel demand are balanced. Build steady growth.",
			},
			2: {
				Round:                  2,
				Cycle:                  "boom",
				InterestRate:           0.05,
				DemandMultiplier:       1.75,
				DieselDemandMultiplier: 2.0,
				UnlockedVehicles:       []VehicleType{Gasoline, Diesel},
				UnlockedTech:           []int{1, 2, 3},
				NewsHeadline:           "Round 2: Boom - demand explodes",
				NewsDetails:            "Interest 5%. Total demand +75%, diesel demand +100%. Capacity expansion pays off.",
			},
			3: {
				Round:                  3,
				Cycle:                  "recession",
				InterestRate:           0.15,
				DemandMultiplier:       0.67,
				DieselDemandMultiplier: 0.25,
				UnlockedVehicles:       []VehicleType{Gasoline, Diesel, Hybrid},
				UnlockedTech:           []int{1, 2, 3},
				NewsHeadline:           "Round 3: Recession - manage the downturn",
				NewsDetails:            "Interest 15%. Total demand -33%, diesel demand -75%. The hybrid market opens.",
			},
			4: {
				Round:                  4,
				Cycle:                  "green_growth",
				InterestRate:           0.07,
				DemandMultiplier:       1.55,
				DieselDemandMultiplier: 1.0,
				UnlockedVehicles:       []VehicleType{Gasoline, Diesel, Hybrid, EV},
				UnlockedTech:           []int{1, 2, 3, 4},
				NewsHeadline:           "Round 4: Green growth - toward the future",
				NewsDetails:            "Interest 7%. Demand +55%. Electric vehicles and AI automation (level 4) unlock.",
			},
		},
	}
}

func (r Rules) Market(round RoundNumber) (MarketConfig, error) {
	if err := ValidateRound(round); err != nil {
		return MarketConfig{}, err
	}
	cfg, ok := r.Rounds[round]
	if !ok {
		return MarketConfig{}, fmt.Errorf("no market config for round %d", round)
	}
	return cfg, nil
}

func (r Rules) Validate() error {
	for round := MinRound; round <= MaxRound; round++ {
		cfg, ok := r.Rounds[round]
		if !ok {
			return fmt.Errorf("rules: missing round %d", round)
		}
		if len(cfg.UnlockedVehicles) == 0 {
			return fmt.Errorf("rules: round %d unlocks no vehicle types", round)
		}
		if len(cfg.UnlockedTech) == 0 {
			return fmt.Errorf("rules: round %d unlocks no process levels", round)
		}
		if cfg.InterestRate < 0 || cfg.DemandMultiplier < 0 || cfg.DieselDemandMultiplier < 0 {
			return fmt.Errorf("rules: round %d has a negative rate", round)
		}
	}
	if r.ProductionPerLine <= 0 {
		return fmt.Errorf("rules: production_per_line must be > 0")
	}
	if r.MarketShareBonus < r.MarketSharePenalty {
		return fmt.Errorf("rules: market_share_bonus must be >= market_share_penalty")
	}
	for level := 1; level <= MaxSafetyLevel; level++ {
		if _, ok := r.SafetyFailureRate[level]; !ok {
			return fmt.Errorf("rules: missing safety failure rate for level %d", level)
		}
	}
	return nil
}
