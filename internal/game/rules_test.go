package game

import (
	"errors"
	"testing"
)

func TestDefaultRulesValidate(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("default rules invalid: %v", err)
	}
}

func TestRulesValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Rules)
	}{
		{"missing round", func(r *Rules) { delete(r.Rounds, 3) }},
		{"no vehicles", func(r *Rules) {
			cfg := r.Rounds[2]
			cfg.UnlockedVehicles = nil
			r.Rounds[2] = cfg
		}},
		{"negative interest", func(r *Rules) {
			cfg := r.Rounds[1]
			cfg.InterestRate = -0.01
			r.Rounds[1] = cfg
		}},
		{"zero line output", func(r *Rules) { r.ProductionPerLine = 0 }},
		{"bonus below penalty", func(r *Rules) { r.MarketShareBonus = 0.5 }},
		{"missing failure rate", func(r *Rules) { delete(r.SafetyFailureRate, 5) }},
	}
	for _, tc := range tests {
		r := DefaultRules()
		tc.edit(&r)
		if err := r.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestMarket(t *testing.T) {
	rules := DefaultRules()
	cfg, err := rules.Market(2)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if cfg.Cycle != "boom" || cfg.InterestRate != 0.05 || !cfg.TechUnlocked(3) || cfg.VehicleUnlocked(Hybrid) {
		t.Fatalf("round 2 got=%+v", cfg)
	}
	for _, round := range []RoundNumber{0, 5} {
		if _, err := rules.Market(round); !errors.Is(err, ErrInvalidRound) {
			t.Fatalf("round %d: expected ErrInvalidRound, got %v", round, err)
		}
	}
}
