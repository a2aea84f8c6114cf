package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig sizes the Postgres pool. Zero fields keep the defaults.
type PoolConfig struct {
	MaxConns         int32
	StatementTimeout time.Duration
}

const (
	DefaultMaxConns         = 10
	DefaultStatementTimeout = 15 * time.Second
)

// OpenPostgres connects a pool to databaseURL and pings it once.
func OpenPostgres(ctx context.Context, databaseURL string, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := postgresConfig(databaseURL, pc)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reach postgres at %s: %w", cfg.ConnConfig.Host, err)
	}
	return pool, nil
}

func postgresConfig(databaseURL string, pc PoolConfig) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		// The URL carries credentials, so it stays out of the message.
		return nil, fmt.Errorf("DATABASE_URL is not a valid postgres url")
	}
	maxConns := pc.MaxConns
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	timeout := pc.StatementTimeout
	if timeout <= 0 {
		timeout = DefaultStatementTimeout
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute
	cfg.ConnConfig.RuntimeParams["application_name"] = "bizsim"
	// A settlement that outlives this is rolled back as a whole.
	cfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(timeout.Milliseconds(), 10)
	return cfg, nil
}
