package game

import "time"

type VehicleType string

const (
	Gasoline VehicleType = "gasoline"
	Diesel   VehicleType = "diesel"
	Hybrid   VehicleType = "hybrid"
	EV       VehicleType = "ev"
	Hydrogen VehicleType = "hydrogen"
)

var VehicleTypes = []VehicleType{Gasoline, Diesel, Hybrid, EV, Hydrogen}

type RoundNumber int

type Role string

const (
	RoleCEO Role = "ceo"
	RoleCFO Role = "cfo"
	RoleCPO Role = "cpo"
	RoleCRO Role = "cro"
	RoleCMO Role = "cmo"
	RoleCHO Role = "cho"
)

type RoomStatus string

const (
	RoomWaiting  RoomStatus = "WAITING"
	RoomPlaying  RoomStatus = "PLAYING"
	RoomFinished RoomStatus = "FINISHED"
)

type RoundStatus string

const (
	RoundOpen    RoundStatus = "OPEN"
	RoundSettled RoundStatus = "SETTLED"
)

// ByVehicle holds one value per product line. It is a plain value type so
// copies never alias.
type ByVehicle[T any] struct {
	Gasoline T `json:"gasoline" yaml:"gasoline"`
	Diesel   T `json:"diesel" yaml:"diesel"`
	Hybrid   T `json:"hybrid" yaml:"hybrid"`
	EV       T `json:"ev" yaml:"ev"`
	Hydrogen T `json:"hydrogen" yaml:"hydrogen"`
}

func (b ByVehicle[T]) Get(v VehicleType) T {
	switch v {
	case Gasoline:
		return b.Gasoline
	case Diesel:
		return b.Diesel
	case Hybrid:
		return b.Hybrid
	case EV:
		return b.EV
	case Hydrogen:
		return b.Hydrogen
	}
	var zero T
	return zero
}

func (b *ByVehicle[T]) Set(v VehicleType, x T) {
	switch v {
	case Gasoline:
		b.Gasoline = x
	case Diesel:
		b.Diesel = x
	case Hybrid:
		b.Hybrid = x
	case EV:
		b.EV = x
	case Hydrogen:
		b.Hydrogen = x
	}
}

type TechLevels struct {
	Process int `json:"process" yaml:"process"`
	Design  int `json:"design" yaml:"design"`
	Safety  int `json:"safety" yaml:"safety"`
}

// Employees counts headcount in groups of 20.
type Employees struct {
	Unskilled int `json:"unskilled" yaml:"unskilled"`
	Skilled   int `json:"skilled" yaml:"skilled"`
	Master    int `json:"master" yaml:"master"`
}

type TeamAssets struct {
	Cash       float64        `json:"cash" yaml:"cash"`
	Loan       float64        `json:"loan" yaml:"loan"`
	Capital    float64        `json:"capital" yaml:"capital"`
	Facilities ByVehicle[int] `json:"facilities" yaml:"facilities"`
	TechLevel  TechLevels     `json:"techLevel" yaml:"tech_level"`
	Employees  Employees      `json:"employees" yaml:"employees"`
}

func (a TeamAssets) TotalFacilities() int {
	total := 0
	for _, vt := range VehicleTypes {
		total += a.Facilities.Get(vt)
	}
	return total
}

type MarketConfig struct {
	Round                  RoundNumber   `json:"round" yaml:"round"`
	Cycle                  string        `json:"cycle" yaml:"cycle"`
	InterestRate           float64       `json:"interestRate" yaml:"interest_rate"`
	DemandMultiplier       float64       `json:"demandMultiplier" yaml:"demand_multiplier"`
	DieselDemandMultiplier float64       `json:"dieselDemandMultiplier" yaml:"diesel_demand_multiplier"`
	UnlockedVehicles       []VehicleType `json:"unlockedVehicles" yaml:"unlocked_vehicles"`
	UnlockedTech           []int         `json:"unlockedTech" yaml:"unlocked_tech"`
	NewsHeadline           string        `json:"newsHeadline" yaml:"news_headline"`
	NewsDetails            string        `json:"newsDetails" yaml:"news_details"`
}

func (m MarketConfig) VehicleUnlocked(v VehicleType) bool {
	for _, u := range m.UnlockedVehicles {
		if u == v {
			return true
		}
	}
	return false
}

func (m MarketConfig) TechUnlocked(level int) bool {
	for _, u := range m.UnlockedTech {
		if u == level {
			return true
		}
	}
	return false
}

type Approvals struct {
	CFO bool `json:"cfo"`
	CPO bool `json:"cpo"`
	CRO bool `json:"cro"`
	CMO bool `json:"cmo"`
	CHO bool `json:"cho"`
}

func (a Approvals) All() bool {
	return a.CFO && a.CPO && a.CRO && a.CMO && a.CHO
}

type FinanceDecision struct {
	LoanRequest float64 `json:"loanRequest"`
	LoanRepay   float64 `json:"loanRepay"`
}

type ProductionDecision struct {
	MaterialPurchase  ByVehicle[int] `json:"materialPurchase"`
	FacilityExpansion ByVehicle[int] `json:"facilityExpansion"`
	ProcessTechLevel  int            `json:"processTechLevel"`
}

type RnDDecision struct {
	DesignInvestments ByVehicle[bool] `json:"designInvestments"`
	SafetyInvestment  bool            `json:"safetyInvestment"`
}

func (r RnDDecision) AnyDesign() bool {
	for _, vt := range VehicleTypes {
		if r.DesignInvestments.Get(vt) {
			return true
		}
	}
	return false
}

type MarketingDecision struct {
	BidPrices ByVehicle[float64] `json:"bidPrices"`
}

type HRDecision struct {
	NewHires                   int `json:"newHires"`
	TrainingUnskilledToSkilled int `json:"trainingUnskilledToSkilled"`
	TrainingSkilledToMaster    int `json:"trainingSkilledToMaster"`
}

type RoundDecisions struct {
	IsSubmitted bool               `json:"isSubmitted"`
	Approvals   Approvals          `json:"approvals"`
	Finance     FinanceDecision    `json:"finance"`
	Production  ProductionDecision `json:"production"`
	RnD         RnDDecision        `json:"rnd"`
	Marketing   MarketingDecision  `json:"marketing"`
	HR          HRDecision         `json:"hr"`
	CEOStrategy string             `json:"ceoStrategy"`
}

type RoundResults struct {
	Revenue            float64            `json:"revenue"`
	RevenueByVehicle   ByVehicle[float64] `json:"revenueByVehicle"`
	ProductionVolume   ByVehicle[float64] `json:"productionVolume"`
	SalesVolume        ByVehicle[float64] `json:"salesVolume"`
	VariableCost       float64            `json:"variableCost"`
	MaterialCost       float64            `json:"materialCost"`
	SalesAdminCost     float64            `json:"salesAdminCost"`
	FailureCost        float64            `json:"failureCost"`
	FixedCost          float64            `json:"fixedCost"`
	LaborCost          float64            `json:"laborCost"`
	MaintenanceCost    float64            `json:"maintenanceCost"`
	DepreciationCost   float64            `json:"depreciationCost"`
	InterestCost       float64            `json:"interestCost"`
	GeneralAdminCost   float64            `json:"generalAdminCost"`
	OperatingProfit    float64            `json:"operatingProfit"`
	NonOperatingIncome float64            `json:"nonOperatingIncome"`
	TaxAmount          float64            `json:"taxAmount"`
	NetProfit          float64            `json:"netProfit"`
	FacilityInvestment float64            `json:"facilityInvestment"`
	RnDInvestment      float64            `json:"rndInvestment"`
	ProcessTechCost    float64            `json:"processTechCost"`
	UpdatedAssets      TeamAssets         `json:"updatedAssets"`
}

type LeaderboardEntry struct {
	TeamID              string  `json:"teamId"`
	TeamName            string  `json:"teamName"`
	CumulativeNetProfit float64 `json:"cumulativeNetProfit"`
	TotalAssetValue     float64 `json:"totalAssetValue"`
	Score               float64 `json:"score"`
	Rank                int     `json:"rank"`
}

type Room struct {
	Code         string             `json:"roomCode"`
	Name         string             `json:"roomName"`
	Status       RoomStatus         `json:"status"`
	CurrentRound RoundNumber        `json:"currentRound"`
	RoundStatus  RoundStatus        `json:"roundStatus"`
	TotalTeams   int                `json:"totalTeams"`
	MarketDemand float64            `json:"marketDemand"`
	Market       MarketConfig       `json:"marketConfig"`
	RoundEndsAt  *time.Time         `json:"roundEndsAt,omitempty"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
}

type Team struct {
	ID                  string     `json:"teamId"`
	Seq                 int        `json:"seq"`
	Name                string     `json:"teamName"`
	Assets              TeamAssets `json:"assets"`
	CumulativeNetProfit float64    `json:"cumulativeNetProfit"`
}

type RoundRecord struct {
	TeamID    string         `json:"teamId"`
	Round     RoundNumber    `json:"round"`
	Decisions RoundDecisions `json:"decisions"`
	Results   *RoundResults  `json:"results,omitempty"`
}

type CashFlow struct {
	CurrentCash     float64 `json:"currentCash"`
	PlannedExpenses float64 `json:"plannedExpenses"`
	AvailableCash   float64 `json:"availableCash"`
}
