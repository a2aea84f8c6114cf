package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bizsim/internal/game"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	p := &Postgres{db: pool}
	if err := p.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return p, nil
}

func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS bizsim`,
		`CREATE TABLE IF NOT EXISTS bizsim.rooms (
			code          text PRIMARY KEY,
			name          text NOT NULL,
			status        text NOT NULL,
			current_round integer NOT NULL,
			round_status  text NOT NULL,
			total_teams   integer NOT NULL,
			market_demand double precision NOT NULL,
			market_config jsonb NOT NULL,
			round_ends_at timestamptz,
			leaderboard   jsonb,
			created_at    timestamptz NOT NULL DEFAULT now(),
			updated_at    timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS rooms_due_idx ON bizsim.rooms (round_ends_at) WHERE round_status = 'OPEN'`,
		`CREATE TABLE IF NOT EXISTS bizsim.teams (
			room_code             text NOT NULL REFERENCES bizsim.rooms(code) ON DELETE CASCADE,
			team_id               text NOT NULL,
			seq                   integer NOT NULL,
			name                  text NOT NULL,
			assets                jsonb NOT NULL,
			cumulative_net_profit double precision NOT NULL DEFAULT 0,
			PRIMARY KEY (room_code, team_id)
		)`,
		`CREATE TABLE IF NOT EXISTS bizsim.rounds (
			room_code     text NOT NULL,
			team_id       text NOT NULL,
			round         integer NOT NULL,
			decisions     jsonb NOT NULL,
			is_submitted  boolean NOT NULL DEFAULT false,
			results       jsonb,
			settlement_id text,
			updated_at    timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (room_code, team_id, round),
			FOREIGN KEY (room_code, team_id) REFERENCES bizsim.teams(room_code, team_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS bizsim.idempotency_keys (
			room_code  text NOT NULL REFERENCES bizsim.rooms(code) ON DELETE CASCADE,
			key        text NOT NULL,
			action     text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (room_code, key)
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.Exec(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:min(len(s), 40)], err)
		}
	}
	return nil
}

func (p *Postgres) CreateRoom(ctx context.Context, room game.Room, teams []game.Team, decisions []game.RoundDecisions) error {
	if len(teams) != len(decisions) {
		return fmt.Errorf("create room: %d teams but %d decision records", len(teams), len(decisions))
	}
	market, err := encodeJSON(room.Market)
	if err != nil {
		return err
	}
	return p.withTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO bizsim.rooms (code, name, status, current_round, round_status, total_teams, market_demand, market_config, round_ends_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, room.Code, room.Name, room.Status, int(room.CurrentRound), room.RoundStatus, room.TotalTeams, room.MarketDemand, market, room.RoundEndsAt, room.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return game.ErrRoomExists
			}
			return err
		}
		for i, t := range teams {
			assets, err := encodeJSON(t.Assets)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO bizsim.teams (room_code, team_id, seq, name, assets, cumulative_net_profit)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, room.Code, t.ID, t.Seq, t.Name, assets, t.CumulativeNetProfit); err != nil {
				return err
			}
			d, err := encodeJSON(decisions[i])
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO bizsim.rounds (room_code, team_id, round, decisions, is_submitted)
				VALUES ($1, $2, $3, $4, $5)
			`, room.Code, t.ID, int(room.CurrentRound), d, decisions[i].IsSubmitted); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) Room(ctx context.Context, code string) (game.Room, error) {
	return scanRoom(p.db.QueryRow(ctx, `
		SELECT code, name, status, current_round, round_status, total_teams, market_demand, market_config, round_ends_at, leaderboard, created_at
		FROM bizsim.rooms
		WHERE code = $1
	`, code))
}

func (p *Postgres) Teams(ctx context.Context, code string) ([]game.Team, error) {
	rows, err := p.db.Query(ctx, `
		SELECT team_id, seq, name, assets, cumulative_net_profit
		FROM bizsim.teams
		WHERE room_code = $1
		ORDER BY seq
	`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Team
	for rows.Next() {
		var r teamRow
		if err := rows.Scan(&r.TeamID, &r.Seq, &r.Name, &r.Assets, &r.CumulativeNetProfit); err != nil {
			return nil, err
		}
		t, err := r.team()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		if _, err := p.Room(ctx, code); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Postgres) RoundRecord(ctx context.Context, code, teamID string, round game.RoundNumber) (game.RoundRecord, error) {
	r := roundRow{TeamID: teamID, Round: int(round)}
	err := p.db.QueryRow(ctx, `
		SELECT decisions, results
		FROM bizsim.rounds
		WHERE room_code = $1 AND team_id = $2 AND round = $3
	`, code, teamID, int(round)).Scan(&r.Decisions, &r.Results)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.RoundRecord{}, game.ErrRoundNotFound
	}
	if err != nil {
		return game.RoundRecord{}, err
	}
	return r.record()
}

func (p *Postgres) UpdateDecisions(ctx context.Context, code, teamID string, round game.RoundNumber, idem string, fn func(*game.RoundDecisions) error) (game.RoundDecisions, error) {
	var out game.RoundDecisions
	err := p.withTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		r := roundRow{TeamID: teamID, Round: int(round)}
		err := tx.QueryRow(ctx, `
			SELECT decisions
			FROM bizsim.rounds
			WHERE room_code = $1 AND team_id = $2 AND round = $3
			FOR UPDATE
		`, code, teamID, int(round)).Scan(&r.Decisions)
		if errors.Is(err, pgx.ErrNoRows) {
			return game.ErrRoundNotFound
		}
		if err != nil {
			return err
		}
		if err := claimIdempotency(ctx, tx, code, idem, "update_decisions"); err != nil {
			return err
		}
		rec, err := r.record()
		if err != nil {
			return err
		}
		d := rec.Decisions
		if err := fn(&d); err != nil {
			return err
		}
		raw, err := encodeJSON(d)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE bizsim.rounds
			SET decisions = $1, is_submitted = $2, updated_at = now()
			WHERE room_code = $3 AND team_id = $4 AND round = $5
		`, raw, d.IsSubmitted, code, teamID, int(round)); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

func (p *Postgres) OpenRound(ctx context.Context, code string, o game.RoundOpening) error {
	market, err := encodeJSON(o.Market)
	if err != nil {
		return err
	}
	return p.withTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE bizsim.rooms
			SET current_round = $1, market_config = $2, market_demand = $3, round_ends_at = $4,
			    status = $5, round_status = $6, updated_at = now()
			WHERE code = $7
		`, int(o.Round), market, o.MarketDemand, o.EndsAt, game.RoomPlaying, game.RoundOpen, code)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return game.ErrRoomNotFound
		}
		if err := claimIdempotency(ctx, tx, code, o.IdempotencyKey, "start_round"); err != nil {
			return err
		}
		teams, err := teamsTx(ctx, tx, code)
		if err != nil {
			return err
		}
		for _, t := range teams {
			d := o.Reset(t)
			raw, err := encodeJSON(d)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO bizsim.rounds (room_code, team_id, round, decisions, is_submitted)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (room_code, team_id, round)
				DO UPDATE SET decisions = EXCLUDED.decisions, is_submitted = EXCLUDED.is_submitted,
				              results = NULL, settlement_id = NULL, updated_at = now()
			`, code, t.ID, int(o.Round), raw, d.IsSubmitted); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) CommitSettlement(ctx context.Context, s game.Settlement) error {
	board, err := encodeJSON(s.Leaderboard)
	if err != nil {
		return err
	}
	return p.withTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		var round int
		var status string
		err := tx.QueryRow(ctx, `
			SELECT current_round, round_status
			FROM bizsim.rooms
			WHERE code = $1
			FOR UPDATE
		`, s.RoomCode).Scan(&round, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return game.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		if game.RoundNumber(round) != s.Round || game.RoundStatus(status) != game.RoundOpen {
			return game.ErrRoundSettled
		}
		if err := claimIdempotency(ctx, tx, s.RoomCode, s.IdempotencyKey, "end_round"); err != nil {
			return err
		}

		for _, t := range s.Teams {
			decisions, err := encodeJSON(t.Decisions)
			if err != nil {
				return err
			}
			results, err := encodeJSON(t.Results)
			if err != nil {
				return err
			}
			assets, err := encodeJSON(t.Results.UpdatedAssets)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO bizsim.rounds (room_code, team_id, round, decisions, is_submitted, results, settlement_id)
				VALUES ($1, $2, $3, $4, true, $5, $6)
				ON CONFLICT (room_code, team_id, round)
				DO UPDATE SET decisions = EXCLUDED.decisions, is_submitted = true, results = EXCLUDED.results,
				              settlement_id = EXCLUDED.settlement_id, updated_at = now()
			`, s.RoomCode, t.TeamID, int(s.Round), decisions, results, s.ID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				UPDATE bizsim.teams
				SET assets = $1, cumulative_net_profit = $2
				WHERE room_code = $3 AND team_id = $4
			`, assets, t.CumulativeNetProfit, s.RoomCode, t.TeamID); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE bizsim.rooms
			SET leaderboard = $1, round_status = $2, status = $3, round_ends_at = NULL, updated_at = now()
			WHERE code = $4
		`, board, game.RoundSettled, finalStatus(s.Round), s.RoomCode)
		return err
	})
}

func (p *Postgres) DueRooms(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := p.db.Query(ctx, `
		SELECT code
		FROM bizsim.rooms
		WHERE status = $1 AND round_status = $2 AND round_ends_at IS NOT NULL AND round_ends_at <= $3
		ORDER BY round_ends_at
	`, game.RoomPlaying, game.RoundOpen, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

// withTx retries serialization failures with backoff before giving up with
// game.ErrTxConflict.
func (p *Postgres) withTx(ctx context.Context, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return game.ErrTxConflict
}

func teamsTx(ctx context.Context, tx pgx.Tx, code string) ([]game.Team, error) {
	rows, err := tx.Query(ctx, `
		SELECT team_id, seq, name, assets, cumulative_net_profit
		FROM bizsim.teams
		WHERE room_code = $1
		ORDER BY seq
	`, code)
	if err != nil {
		return nil, err
	}
	var out []game.Team
	for rows.Next() {
		var r teamRow
		if err := rows.Scan(&r.TeamID, &r.Seq, &r.Name, &r.Assets, &r.CumulativeNetProfit); err != nil {
			rows.Close()
			return nil, err
		}
		t, err := r.team()
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, t)
	}
	rows.Close()
	return out, rows.Err()
}

// claimIdempotency records key for the room. An empty key claims nothing.
func claimIdempotency(ctx context.Context, tx pgx.Tx, code, key, action string) error {
	if key == "" {
		return nil
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO bizsim.idempotency_keys (room_code, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (room_code, key) DO NOTHING
	`, code, key, action)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}

func scanRoom(row pgx.Row) (game.Room, error) {
	var r roomRow
	err := row.Scan(&r.Code, &r.Name, &r.Status, &r.CurrentRound, &r.RoundStatus, &r.TotalTeams,
		&r.MarketDemand, &r.MarketConfig, &r.RoundEndsAt, &r.Leaderboard, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Room{}, game.ErrRoomNotFound
	}
	if err != nil {
		return game.Room{}, err
	}
	return r.room()
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
