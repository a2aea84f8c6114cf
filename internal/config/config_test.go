package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseRulesOverlay(t *testing.T) {
	raw := []byte(`
tax_rate: 0.2
design_rnd_cost:
  1: 450
rounds:
  2:
    round: 2
    cycle: overheated
    interest_rate: 0.09
    demand_multiplier: 2
    diesel_demand_multiplier: 1
    unlocked_vehicles: [gasoline]
    unlocked_tech: [1, 2]
`)
	rules, err := ParseRules(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rules.TaxRate != 0.2 {
		t.Fatalf("tax rate got=%v", rules.TaxRate)
	}
	if rules.DesignRnDCost[1] != 450 || rules.DesignRnDCost[2] != 600 {
		t.Fatalf("design costs got=%v", rules.DesignRnDCost)
	}
	r2 := rules.Rounds[2]
	if r2.Cycle != "overheated" || r2.NewsHeadline != "" || len(r2.UnlockedVehicles) != 1 {
		t.Fatalf("round 2 should be replaced whole, got=%+v", r2)
	}
	if rules.Rounds[1].Cycle != "recovery" || rules.SalesAdminRate != 0.05 {
		t.Fatalf("untouched values changed")
	}
}

func TestParseRulesRejects(t *testing.T) {
	tests := map[string]string{
		"unknown field":    "tax_rat: 0.1\n",
		"bad type":         "production_per_line: many\n",
		"fails validation": "production_per_line: 0\n",
	}
	for name, raw := range tests {
		if _, err := ParseRules([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := ParseRules(nil); err != nil {
		t.Fatalf("empty document should give defaults: %v", err)
	}
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil || rules.InitialAssets.Cash != 6820 {
		t.Fatalf("defaults got=%+v err=%v", rules.InitialAssets, err)
	}

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("facility_build_cost: 650\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rules, err = LoadRules(path)
	if err != nil || rules.FacilityBuildCost != 650 {
		t.Fatalf("file got=%v err=%v", rules.FacilityBuildCost, err)
	}
	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadAPIFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BIZSIM_SQLITE_PATH", "")
	t.Setenv("BIZSIM_ROUND_DURATION", "90s")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.RoundDuration != 90*time.Second || cfg.Store.SQLitePath != "data/bizsim.db" {
		t.Fatalf("got=%+v", cfg)
	}

	t.Setenv("BIZSIM_ROUND_DURATION", "-1m")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected error for negative duration")
	}
	t.Setenv("BIZSIM_ROUND_DURATION", "")

	tests := []struct {
		env     string
		want    int
		wantErr bool
	}{
		{env: "", want: 0},
		{env: "4", want: 4},
		{env: "lots", want: 0},
		{env: "-2", wantErr: true},
	}
	for _, tc := range tests {
		t.Setenv("BIZSIM_DB_MAX_CONNS", tc.env)
		cfg, err := LoadAPIFromEnv()
		if tc.wantErr {
			if err == nil || !strings.Contains(err.Error(), "BIZSIM_DB_MAX_CONNS") {
				t.Fatalf("max conns %q: expected error, got %v", tc.env, err)
			}
			continue
		}
		if err != nil || cfg.Store.MaxConns != tc.want {
			t.Fatalf("max conns %q got=%d err=%v", tc.env, cfg.Store.MaxConns, err)
		}
	}
}

func TestLoadWorkerFromEnv(t *testing.T) {
	t.Setenv("BIZSIM_SWEEP_SPEC", "")
	t.Setenv("BIZSIM_WORKER_RUN_ONCE", "")
	cfg, err := LoadWorkerFromEnv()
	if err != nil || cfg.SweepSpec != "@every 15s" || cfg.RunOnce {
		t.Fatalf("defaults got=%+v err=%v", cfg, err)
	}

	t.Setenv("BIZSIM_SWEEP_SPEC", "*/5 * * * *")
	if _, err := LoadWorkerFromEnv(); err != nil {
		t.Fatalf("5-field spec: %v", err)
	}
	t.Setenv("BIZSIM_SWEEP_SPEC", "every minute")
	if _, err := LoadWorkerFromEnv(); err == nil || !strings.Contains(err.Error(), "BIZSIM_SWEEP_SPEC") {
		t.Fatalf("expected spec error, got %v", err)
	}
	t.Setenv("BIZSIM_WORKER_RUN_ONCE", "true")
	if _, err := LoadWorkerFromEnv(); err != nil {
		t.Fatalf("run once ignores spec: %v", err)
	}
}

func TestLoadCLIFromEnv(t *testing.T) {
	t.Setenv("BIZSIM_API_BASE_URL", "http://sim.example:8080/")
	if got := LoadCLIFromEnv().APIBaseURL; got != "http://sim.example:8080" {
		t.Fatalf("got %q", got)
	}
}
