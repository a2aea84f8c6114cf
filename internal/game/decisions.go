package game

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

type Section string

const (
	SectionFinance    Section = "finance"
	SectionProduction Section = "production"
	SectionRnD        Section = "rnd"
	SectionMarketing  Section = "marketing"
	SectionHR         Section = "hr"
	SectionApprovals  Section = "approvals"
	SectionStrategy   Section = "strategy"
)

var Sections = []Section{
	SectionFinance,
	SectionProduction,
	SectionRnD,
	SectionMarketing,
	SectionHR,
	SectionApprovals,
	SectionStrategy,
}

func ParseSection(s string) (Section, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, sec := range Sections {
		if string(sec) == s {
			return sec, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSection, s)
}

// Owner is the role that edits the section on the team dashboard.
func (s Section) Owner() Role {
	switch s {
	case SectionFinance:
		return RoleCFO
	case SectionProduction:
		return RoleCPO
	case SectionRnD:
		return RoleCRO
	case SectionMarketing:
		return RoleCMO
	case SectionHR:
		return RoleCHO
	default:
		return RoleCEO
	}
}

// DefaultDecisions is the OPEN record issued when a round starts. Everything
// is zero except the process target, which holds the team's current level.
// Earlier versions of the game reset the target to 1 every round instead, which
// read as a downgrade request on any team already past level 1.
func DefaultDecisions(processLevel int) RoundDecisions {
	if processLevel < MinProcessLevel {
		processLevel = MinProcessLevel
	}
	return RoundDecisions{
		Production: ProductionDecision{ProcessTechLevel: processLevel},
	}
}

func (d RoundDecisions) Submit() (RoundDecisions, error) {
	if d.IsSubmitted {
		return d, ErrRoundSubmitted
	}
	d.IsSubmitted = true
	return d, nil
}

// Freeze force-submits a record with whatever was last saved.
func (d RoundDecisions) Freeze() RoundDecisions {
	d.IsSubmitted = true
	return d
}

// ApplySection decodes raw into the named section of d.
func (d *RoundDecisions) ApplySection(s Section, raw []byte) error {
	if d.IsSubmitted {
		return ErrRoundSubmitted
	}
	var target any
	switch s {
	case SectionFinance:
		target = &d.Finance
	case SectionProduction:
		target = &d.Production
	case SectionRnD:
		target = &d.RnD
	case SectionMarketing:
		target = &d.Marketing
	case SectionHR:
		target = &d.HR
	case SectionApprovals:
		target = &d.Approvals
	case SectionStrategy:
		var in struct {
			CEOStrategy string `json:"ceoStrategy"`
		}
		if err := decodeStrict(raw, &in); err != nil {
			return err
		}
		d.CEOStrategy = in.CEOStrategy
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSection, s)
	}
	return decodeStrict(raw, target)
}

func decodeStrict(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDecisions, err)
	}
	return nil
}

// ValidateDecisions rejects records the engine must never see.
func ValidateDecisions(d RoundDecisions, assets TeamAssets, cfg MarketConfig) error {
	f := d.Finance
	if !finite(f.LoanRequest) || f.LoanRequest < 0 || f.LoanRequest > MaxLoanRequest {
		return invalidf("loanRequest must be between 0 and %d", MaxLoanRequest)
	}
	if !finite(f.LoanRepay) || f.LoanRepay < 0 {
		return invalidf("loanRepay must be >= 0")
	}
	if f.LoanRepay > assets.Loan+f.LoanRequest {
		return invalidf("loanRepay %.2f exceeds outstanding loan %.2f", f.LoanRepay, assets.Loan+f.LoanRequest)
	}

	p := d.Production
	if p.ProcessTechLevel < MinProcessLevel || p.ProcessTechLevel > MaxProcessLevel {
		return invalidf("processTechLevel must be between %d and %d", MinProcessLevel, MaxProcessLevel)
	}
	if p.ProcessTechLevel < assets.TechLevel.Process {
		return invalidf("processTechLevel %d is below current level %d", p.ProcessTechLevel, assets.TechLevel.Process)
	}
	if p.ProcessTechLevel != assets.TechLevel.Process && !cfg.TechUnlocked(p.ProcessTechLevel) {
		return invalidf("processTechLevel %d is not unlocked this round", p.ProcessTechLevel)
	}

	for _, vt := range VehicleTypes {
		materials := p.MaterialPurchase.Get(vt)
		expansion := p.FacilityExpansion.Get(vt)
		price := d.Marketing.BidPrices.Get(vt)
		if materials < 0 || expansion < 0 {
			return invalidf("%s production counts must be >= 0", vt)
		}
		if !finite(price) || price < 0 {
			return invalidf("%s bid price must be >= 0", vt)
		}
		if cfg.VehicleUnlocked(vt) {
			continue
		}
		if materials != 0 || expansion != 0 || price != 0 || d.RnD.DesignInvestments.Get(vt) {
			return invalidf("%s is not unlocked this round", vt)
		}
	}

	hr := d.HR
	if hr.NewHires < 0 || hr.NewHires > MaxNewHires {
		return invalidf("newHires must be between 0 and %d", MaxNewHires)
	}
	if hr.TrainingUnskilledToSkilled < 0 || hr.TrainingSkilledToMaster < 0 {
		return invalidf("training counts must be >= 0")
	}
	if hr.TrainingUnskilledToSkilled > assets.Employees.Unskilled {
		return invalidf("cannot train %d unskilled groups, have %d", hr.TrainingUnskilledToSkilled, assets.Employees.Unskilled)
	}
	if hr.TrainingSkilledToMaster > assets.Employees.Skilled {
		return invalidf("cannot train %d skilled groups, have %d", hr.TrainingSkilledToMaster, assets.Employees.Skilled)
	}

	if utf8.RuneCountInString(d.CEOStrategy) > MaxStrategyLen {
		return invalidf("ceoStrategy is limited to %d characters", MaxStrategyLen)
	}
	return nil
}

// PlanCashFlow previews the cash a team has left after this round's spend,
// before any revenue.
func (r Rules) PlanCashFlow(assets TeamAssets, d RoundDecisions) CashFlow {
	var planned float64
	for _, vt := range VehicleTypes {
		planned += float64(d.Production.MaterialPurchase.Get(vt)) * r.MaterialCost.Get(vt)
		planned += float64(d.Production.FacilityExpansion.Get(vt)) * r.FacilityBuildCost
	}
	planned += float64(d.HR.NewHires) * r.HireCostPerGroup
	planned += float64(d.HR.TrainingUnskilledToSkilled) * r.TrainingCost.UnskilledToSkilled
	planned += float64(d.HR.TrainingSkilledToMaster) * r.TrainingCost.SkilledToMaster
	_, rnd, process := r.capitalSpend(assets, d)
	planned += rnd + process

	current := assets.Cash + d.Finance.LoanRequest - d.Finance.LoanRepay
	return CashFlow{
		CurrentCash:     Round2(current),
		PlannedExpenses: Round2(planned),
		AvailableCash:   Round2(current - planned),
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
