package game

import (
	"errors"
	"strings"
	"testing"
)

func TestApplySection(t *testing.T) {
	d := DefaultDecisions(2)

	if err := d.ApplySection(SectionFinance, []byte(`{"loanRequest":500}`)); err != nil {
		t.Fatalf("finance: %v", err)
	}
	if err := d.ApplySection(SectionMarketing, []byte(`{"bidPrices":{"gasoline":1200}}`)); err != nil {
		t.Fatalf("marketing: %v", err)
	}
	if err := d.ApplySection(SectionStrategy, []byte(`{"ceoStrategy":"win on price"}`)); err != nil {
		t.Fatalf("strategy: %v", err)
	}
	if d.Finance.LoanRequest != 500 || d.Marketing.BidPrices.Gasoline != 1200 || d.CEOStrategy != "win on price" {
		t.Fatalf("sections not applied: %+v", d)
	}
	if d.Production.ProcessTechLevel != 2 {
		t.Fatalf("untouched section changed: %+v", d.Production)
	}

	if err := d.ApplySection(SectionHR, []byte(`{"newHires":1,"bogus":2}`)); !errors.Is(err, ErrInvalidDecisions) {
		t.Fatalf("unknown field should fail, got %v", err)
	}
	if err := d.ApplySection(Section("payroll"), []byte(`{}`)); !errors.Is(err, ErrInvalidSection) {
		t.Fatalf("unknown section should fail, got %v", err)
	}

	submitted, err := d.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := submitted.ApplySection(SectionFinance, []byte(`{"loanRequest":1}`)); !errors.Is(err, ErrRoundSubmitted) {
		t.Fatalf("submitted record must be immutable, got %v", err)
	}
	if _, err := submitted.Submit(); !errors.Is(err, ErrRoundSubmitted) {
		t.Fatalf("double submit should fail, got %v", err)
	}
}

func TestParseSection(t *testing.T) {
	for _, s := range Sections {
		got, err := ParseSection(" " + strings.ToUpper(string(s)) + " ")
		if err != nil || got != s {
			t.Fatalf("ParseSection(%q) got=%q err=%v", s, got, err)
		}
	}
	if _, err := ParseSection("payroll"); !errors.Is(err, ErrInvalidSection) {
		t.Fatalf("expected ErrInvalidSection, got %v", err)
	}
	if SectionFinance.Owner() != RoleCFO || SectionStrategy.Owner() != RoleCEO || SectionRnD.Owner() != RoleCRO {
		t.Fatalf("section owners wrong")
	}
}

func TestDefaultDecisions(t *testing.T) {
	d := DefaultDecisions(0)
	if d.Production.ProcessTechLevel != MinProcessLevel || d.IsSubmitted {
		t.Fatalf("got %+v", d)
	}
	if DefaultDecisions(3).Production.ProcessTechLevel != 3 {
		t.Fatalf("default must carry the current process level")
	}
	frozen := DefaultDecisions(1).Freeze()
	if !frozen.IsSubmitted {
		t.Fatalf("freeze must submit")
	}
}

func TestValidateDecisions(t *testing.T) {
	rules := DefaultRules()
	round1, _ := rules.Market(1)
	round4, _ := rules.Market(4)
	assets := rules.InitialAssets

	tests := []struct {
		name  string
		cfg   MarketConfig
		edit  func(*RoundDecisions)
		valid bool
	}{
		{name: "defaults", cfg: round1, edit: func(*RoundDecisions) {}, valid: true},
		{name: "loan at max", cfg: round1, edit: func(d *RoundDecisions) { d.Finance.LoanRequest = MaxLoanRequest }, valid: true},
		{name: "loan over max", cfg: round1, edit: func(d *RoundDecisions) { d.Finance.LoanRequest = MaxLoanRequest + 1 }},
		{name: "negative loan", cfg: round1, edit: func(d *RoundDecisions) { d.Finance.LoanRequest = -1 }},
		{name: "repay whole loan", cfg: round1, edit: func(d *RoundDecisions) { d.Finance.LoanRepay = assets.Loan }, valid: true},
		{name: "repay more than owed", cfg: round1, edit: func(d *RoundDecisions) { d.Finance.LoanRepay = assets.Loan + 1 }},
		{name: "process zero", cfg: round1, edit: func(d *RoundDecisions) { d.Production.ProcessTechLevel = 0 }},
		{name: "process unlocked", cfg: round1, edit: func(d *RoundDecisions) { d.Production.ProcessTechLevel = 2 }, valid: true},
		{name: "process locked", cfg: round1, edit: func(d *RoundDecisions) { d.Production.ProcessTechLevel = 3 }},
		{name: "automation in round 4", cfg: round4, edit: func(d *RoundDecisions) { d.Production.ProcessTechLevel = 4 }, valid: true},
		{name: "negative materials", cfg: round1, edit: func(d *RoundDecisions) { d.Production.MaterialPurchase.Gasoline = -1 }},
		{name: "locked vehicle materials", cfg: round1, edit: func(d *RoundDecisions) { d.Production.MaterialPurchase.EV = 1 }},
		{name: "locked vehicle design", cfg: round1, edit: func(d *RoundDecisions) { d.RnD.DesignInvestments.Hybrid = true }},
		{name: "unlocked ev in round 4", cfg: round4, edit: func(d *RoundDecisions) { d.Marketing.BidPrices.EV = 4000 }, valid: true},
		{name: "negative price", cfg: round1, edit: func(d *RoundDecisions) { d.Marketing.BidPrices.Diesel = -5 }},
		{name: "hires at max", cfg: round1, edit: func(d *RoundDecisions) { d.HR.NewHires = MaxNewHires }, valid: true},
		{name: "too many hires", cfg: round1, edit: func(d *RoundDecisions) { d.HR.NewHires = MaxNewHires + 1 }},
		{name: "train all unskilled", cfg: round1, edit: func(d *RoundDecisions) { d.HR.TrainingUnskilledToSkilled = 4 }, valid: true},
		{name: "train missing unskilled", cfg: round1, edit: func(d *RoundDecisions) { d.HR.TrainingUnskilledToSkilled = 5 }},
		{name: "train missing skilled", cfg: round1, edit: func(d *RoundDecisions) { d.HR.TrainingSkilledToMaster = 1 }},
		{name: "long strategy", cfg: round1, edit: func(d *RoundDecisions) { d.CEOStrategy = strings.Repeat("x", MaxStrategyLen+1) }},
	}
	for _, tc := range tests {
		d := DefaultDecisions(assets.TechLevel.Process)
		tc.edit(&d)
		err := ValidateDecisions(d, assets, tc.cfg)
		if tc.valid && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.valid && !errors.Is(err, ErrInvalidDecisions) {
			t.Fatalf("%s: expected ErrInvalidDecisions, got %v", tc.name, err)
		}
	}
}

func TestValidateDecisionsRejectsDowngrade(t *testing.T) {
	rules := DefaultRules()
	cfg, _ := rules.Market(3)
	assets := rules.InitialAssets
	assets.TechLevel.Process = 3

	d := DefaultDecisions(3)
	if err := ValidateDecisions(d, assets, cfg); err != nil {
		t.Fatalf("holding level: %v", err)
	}
	d.Production.ProcessTechLevel = 2
	if err := ValidateDecisions(d, assets, cfg); !errors.Is(err, ErrInvalidDecisions) {
		t.Fatalf("downgrade should fail, got %v", err)
	}
}

func TestPlanCashFlow(t *testing.T) {
	rules := DefaultRules()
	d := DefaultDecisions(1)
	d.Finance.LoanRequest = 1000
	d.Finance.LoanRepay = 200
	d.Production.MaterialPurchase.Gasoline = 2
	d.Production.FacilityExpansion.Diesel = 1
	d.HR.NewHires = 2
	d.RnD.SafetyInvestment = true
	d.Production.ProcessTechLevel = 2

	got := rules.PlanCashFlow(rules.InitialAssets, d)
	// 1800 materials + 500 build + 120 hires + 200 safety + 300 process
	want := CashFlow{CurrentCash: 7620, PlannedExpenses: 2920, AvailableCash: 4700}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}
