package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizsim/internal/game"

	"github.com/jmoiron/sqlx"
)

// SQLite runs every read-modify-write inside one transaction on a single
// connection. Callers must not touch s.db while a tx is open.
type SQLite struct {
	db *sqlx.DB
}

func NewSQLite(ctx context.Context, conn *sqlx.DB) (*SQLite, error) {
	s := &SQLite{db: conn}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			code          TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			status        TEXT NOT NULL,
			current_round INTEGER NOT NULL,
			round_status  TEXT NOT NULL,
			total_teams   INTEGER NOT NULL,
			market_demand REAL NOT NULL,
			market_config TEXT NOT NULL,
			round_ends_at TIMESTAMP,
			leaderboard   TEXT,
			created_at    TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS teams (
			room_code             TEXT NOT NULL REFERENCES rooms(code) ON DELETE CASCADE,
			team_id               TEXT NOT NULL,
			seq                   INTEGER NOT NULL,
			name                  TEXT NOT NULL,
			assets                TEXT NOT NULL,
			cumulative_net_profit REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (room_code, team_id)
		)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			room_code     TEXT NOT NULL,
			team_id       TEXT NOT NULL,
			round         INTEGER NOT NULL,
			decisions     TEXT NOT NULL,
			is_submitted  INTEGER NOT NULL DEFAULT 0,
			results       TEXT,
			settlement_id TEXT,
			PRIMARY KEY (room_code, team_id, round),
			FOREIGN KEY (room_code, team_id) REFERENCES teams(room_code, team_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			room_code  TEXT NOT NULL REFERENCES rooms(code) ON DELETE CASCADE,
			key        TEXT NOT NULL,
			action     TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (room_code, key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) CreateRoom(ctx context.Context, room game.Room, teams []game.Team, decisions []game.RoundDecisions) error {
	if len(teams) != len(decisions) {
		return fmt.Errorf("create room: %d teams but %d decision records", len(teams), len(decisions))
	}
	market, err := encodeJSON(room.Market)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rooms (code, name, status, current_round, round_status, total_teams, market_demand, market_config, round_ends_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, room.Code, room.Name, string(room.Status), int(room.CurrentRound), string(room.RoundStatus), room.TotalTeams,
			room.MarketDemand, string(market), room.RoundEndsAt, room.CreatedAt.UTC())
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return game.ErrRoomExists
			}
			return err
		}
		for i, t := range teams {
			assets, err := encodeJSON(t.Assets)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO teams (room_code, team_id, seq, name, assets, cumulative_net_profit)
				VALUES (?, ?, ?, ?, ?, ?)
			`, room.Code, t.ID, t.Seq, t.Name, string(assets), t.CumulativeNetProfit); err != nil {
				return err
			}
			if err := upsertRound(ctx, tx, room.Code, t.ID, room.CurrentRound, decisions[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) Room(ctx context.Context, code string) (game.Room, error) {
	return roomQ(ctx, s.db, code)
}

func (s *SQLite) Teams(ctx context.Context, code string) ([]game.Team, error) {
	var out []game.Team
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := roomQ(ctx, tx, code); err != nil {
			return err
		}
		teams, err := teamsQ(ctx, tx, code)
		out = teams
		return err
	})
	return out, err
}

func (s *SQLite) RoundRecord(ctx context.Context, code, teamID string, round game.RoundNumber) (game.RoundRecord, error) {
	return roundQ(ctx, s.db, code, teamID, round)
}

func (s *SQLite) UpdateDecisions(ctx context.Context, code, teamID string, round game.RoundNumber, idem string, fn func(*game.RoundDecisions) error) (game.RoundDecisions, error) {
	var out game.RoundDecisions
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		rec, err := roundQ(ctx, tx, code, teamID, round)
		if err != nil {
			return err
		}
		if err := claimKey(ctx, tx, code, idem, "update_decisions"); err != nil {
			return err
		}
		d := rec.Decisions
		if err := fn(&d); err != nil {
			return err
		}
		if err := upsertRound(ctx, tx, code, teamID, round, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

func (s *SQLite) OpenRound(ctx context.Context, code string, o game.RoundOpening) error {
	market, err := encodeJSON(o.Market)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var endsAt any
		if o.EndsAt != nil {
			endsAt = o.EndsAt.UTC()
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE rooms
			SET current_round = ?, market_config = ?, market_demand = ?, round_ends_at = ?, status = ?, round_status = ?
			WHERE code = ?
		`, int(o.Round), string(market), o.MarketDemand, endsAt, string(game.RoomPlaying), string(game.RoundOpen), code)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return game.ErrRoomNotFound
		}
		if err := claimKey(ctx, tx, code, o.IdempotencyKey, "start_round"); err != nil {
			return err
		}
		teams, err := teamsQ(ctx, tx, code)
		if err != nil {
			return err
		}
		for _, t := range teams {
			if err := upsertRound(ctx, tx, code, t.ID, o.Round, o.Reset(t)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) CommitSettlement(ctx context.Context, st game.Settlement) error {
	board, err := encodeJSON(st.Leaderboard)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		room, err := roomQ(ctx, tx, st.RoomCode)
		if err != nil {
			return err
		}
		if room.CurrentRound != st.Round || room.RoundStatus != game.RoundOpen {
			return game.ErrRoundSettled
		}
		if err := claimKey(ctx, tx, st.RoomCode, st.IdempotencyKey, "end_round"); err != nil {
			return err
		}
		for _, t := range st.Teams {
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
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO rounds (room_code, team_id, round, decisions, is_submitted, results, settlement_id)
				VALUES (?, ?, ?, ?, 1, ?, ?)
				ON CONFLICT (room_code, team_id, round)
				DO UPDATE SET decisions = excluded.decisions, is_submitted = 1, results = excluded.results, settlement_id = excluded.settlement_id
			`, st.RoomCode, t.TeamID, int(st.Round), string(decisions), string(results), st.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE teams SET assets = ?, cumulative_net_profit = ? WHERE room_code = ? AND team_id = ?
			`, string(assets), t.CumulativeNetProfit, st.RoomCode, t.TeamID); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE rooms SET leaderboard = ?, round_status = ?, status = ?, round_ends_at = NULL WHERE code = ?
		`, string(board), string(game.RoundSettled), string(finalStatus(st.Round)), st.RoomCode)
		return err
	})
}

// DueRooms compares deadlines in Go; SQLite stores timestamps as text.
func (s *SQLite) DueRooms(ctx context.Context, now time.Time) ([]string, error) {
	var rows []struct {
		Code        string     `db:"code"`
		RoundEndsAt *time.Time `db:"round_ends_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT code, round_ends_at FROM rooms
		WHERE status = ? AND round_status = ? AND round_ends_at IS NOT NULL
	`, string(game.RoomPlaying), string(game.RoundOpen)); err != nil {
		return nil, err
	}
	var out []string
	for _, r := range rows {
		if r.RoundEndsAt != nil && !r.RoundEndsAt.After(now) {
			out = append(out, r.Code)
		}
	}
	return out, nil
}

func (s *SQLite) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type queryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

func roomQ(ctx context.Context, q queryer, code string) (game.Room, error) {
	var r roomRow
	err := q.GetContext(ctx, &r, `
		SELECT code, name, status, current_round, round_status, total_teams, market_demand,
		       market_config, round_ends_at, leaderboard, created_at
		FROM rooms WHERE code = ?
	`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Room{}, game.ErrRoomNotFound
	}
	if err != nil {
		return game.Room{}, err
	}
	return r.room()
}

func teamsQ(ctx context.Context, q queryer, code string) ([]game.Team, error) {
	var rows []teamRow
	if err := q.SelectContext(ctx, &rows, `
		SELECT team_id, seq, name, assets, cumulative_net_profit
		FROM teams WHERE room_code = ? ORDER BY seq
	`, code); err != nil {
		return nil, err
	}
	out := make([]game.Team, 0, len(rows))
	for _, r := range rows {
		t, err := r.team()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func roundQ(ctx context.Context, q queryer, code, teamID string, round game.RoundNumber) (game.RoundRecord, error) {
	var r roundRow
	err := q.GetContext(ctx, &r, `
		SELECT team_id, round, decisions, results
		FROM rounds WHERE room_code = ? AND team_id = ? AND round = ?
	`, code, teamID, int(round))
	if errors.Is(err, sql.ErrNoRows) {
		return game.RoundRecord{}, game.ErrRoundNotFound
	}
	if err != nil {
		return game.RoundRecord{}, err
	}
	return r.record()
}

// claimKey records key for the room. An empty key claims nothing.
func claimKey(ctx context.Context, tx *sqlx.Tx, code, key, action string) error {
	if key == "" {
		return nil
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (room_code, key, action, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (room_code, key) DO NOTHING
	`, code, key, action, time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}

func upsertRound(ctx context.Context, tx *sqlx.Tx, code, teamID string, round game.RoundNumber, d game.RoundDecisions) error {
	raw, err := encodeJSON(d)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rounds (room_code, team_id, round, decisions, is_submitted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (room_code, team_id, round)
		DO UPDATE SET decisions = excluded.decisions, is_submitted = excluded.is_submitted,
		              results = NULL, settlement_id = NULL
	`, code, teamID, int(round), string(raw), d.IsSubmitted)
	return err
}
