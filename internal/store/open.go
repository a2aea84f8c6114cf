package store

import (
	"context"
	"log/slog"

	"bizsim/internal/config"
	"bizsim/internal/db"
	"bizsim/internal/game"
)

// Open connects the store named by cfg: Postgres when a database URL is set,
// otherwise the SQLite file.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (game.Store, error) {
	if cfg.DatabaseURL != "" {
		pool, err := db.OpenPostgres(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: int32(cfg.MaxConns)})
		if err != nil {
			return nil, err
		}
		s, err := NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("store ready", "driver", "postgres", "max_conns", pool.Config().MaxConns)
		return s, nil
	}
	conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLite(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info("store ready", "driver", "sqlite", "path", cfg.SQLitePath)
	return s, nil
}
