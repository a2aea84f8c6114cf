package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"bizsim/internal/game"

	"gopkg.in/yaml.v3"
)

// StoreConfig selects the backing store. DatabaseURL wins when both are set.
type StoreConfig struct {
	DatabaseURL string
	SQLitePath  string
	// MaxConns caps the Postgres pool; zero uses db.DefaultMaxConns.
	MaxConns    int
}

type APIConfig struct {
	Addr          string
	Store         StoreConfig
	RulesFile     string
	RoundDuration time.Duration
	ArchiveDir    string
}

type WorkerConfig struct {
	Store      StoreConfig
	RulesFile  string
	ArchiveDir string
	SweepSpec  string
	RunOnce    bool
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("BIZSIM_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:          addr,
		Store:         loadStore(),
		RulesFile:     strings.TrimSpace(os.Getenv("BIZSIM_RULES_FILE")),
		RoundDuration: envDurationDefault("BIZSIM_ROUND_DURATION", 0),
		ArchiveDir:    strings.TrimSpace(os.Getenv("BIZSIM_ARCHIVE_DIR")),
	}
	if cfg.RoundDuration < 0 {
		return cfg, fmt.Errorf("BIZSIM_ROUND_DURATION must not be negative")
	}
	return cfg, cfg.Store.validate()
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		Store:      loadStore(),
		RulesFile:  strings.TrimSpace(os.Getenv("BIZSIM_RULES_FILE")),
		ArchiveDir: strings.TrimSpace(os.Getenv("BIZSIM_ARCHIVE_DIR")),
		SweepSpec:  envDefault("BIZSIM_SWEEP_SPEC", "@every 15s"),
		RunOnce:    envBoolDefault("BIZSIM_WORKER_RUN_ONCE", false),
	}
	if !cfg.RunOnce && !strings.HasPrefix(cfg.SweepSpec, "@") && len(strings.Fields(cfg.SweepSpec)) != 5 {
		return cfg, fmt.Errorf("BIZSIM_SWEEP_SPEC must be a 5-field cron spec or @descriptor, got %q", cfg.SweepSpec)
	}
	return cfg, cfg.Store.validate()
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("BIZSIM_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func loadStore() StoreConfig {
	return StoreConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:  envDefault("BIZSIM_SQLITE_PATH", "data/bizsim.db"),
		MaxConns:    envIntDefault("BIZSIM_DB_MAX_CONNS", 0),
	}
}

func (c StoreConfig) validate() error {
	if c.MaxConns < 0 {
		return fmt.Errorf("BIZSIM_DB_MAX_CONNS must not be negative")
	}
	return nil
}

// LoadRules returns the built-in rules, overlaid with the YAML file at path
// when path is non-empty. A round listed in the file replaces that round's
// config whole.
func LoadRules(path string) (game.Rules, error) {
	rules := game.DefaultRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return game.Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(raw)
}

func ParseRules(raw []byte) (game.Rules, error) {
	rules := game.DefaultRules()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return game.Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return game.Rules{}, fmt.Errorf("validate rules: %w", err)
	}
	return rules, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
