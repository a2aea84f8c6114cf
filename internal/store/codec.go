// Package store persists game state as JSON documents inside relational
// rows. Postgres backs deployments; SQLite backs single-node and test runs.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"bizsim/internal/game"
)

type roomRow struct {
	Code         string     `db:"code"`
	Name         string     `db:"name"`
	Status       string     `db:"status"`
	CurrentRound int        `db:"current_round"`
	RoundStatus  string     `db:"round_status"`
	TotalTeams   int        `db:"total_teams"`
	MarketDemand float64    `db:"market_demand"`
	MarketConfig []byte     `db:"market_config"`
	RoundEndsAt  *time.Time `db:"round_ends_at"`
	Leaderboard  []byte     `db:"leaderboard"`
	CreatedAt    time.Time  `db:"created_at"`
}

func (r roomRow) room() (game.Room, error) {
	out := game.Room{
		Code:         r.Code,
		Name:         r.Name,
		Status:       game.RoomStatus(r.Status),
		CurrentRound: game.RoundNumber(r.CurrentRound),
		RoundStatus:  game.RoundStatus(r.RoundStatus),
		TotalTeams:   r.TotalTeams,
		MarketDemand: r.MarketDemand,
		RoundEndsAt:  r.RoundEndsAt,
		CreatedAt:    r.CreatedAt.UTC(),
	}
	if err := json.Unmarshal(r.MarketConfig, &out.Market); err != nil {
		return game.Room{}, fmt.Errorf("decode market config: %w", err)
	}
	if len(r.Leaderboard) > 0 {
		if err := json.Unmarshal(r.Leaderboard, &out.Leaderboard); err != nil {
			return game.Room{}, fmt.Errorf("decode leaderboard: %w", err)
		}
	}
	return out, nil
}

type teamRow struct {
	TeamID              string  `db:"team_id"`
	Seq                 int     `db:"seq"`
	Name                string  `db:"name"`
	Assets              []byte  `db:"assets"`
	CumulativeNetProfit float64 `db:"cumulative_net_profit"`
}

func (r teamRow) team() (game.Team, error) {
	out := game.Team{
		ID:                  r.TeamID,
		Seq:                 r.Seq,
		Name:                r.Name,
		CumulativeNetProfit: r.CumulativeNetProfit,
	}
	if err := json.Unmarshal(r.Assets, &out.Assets); err != nil {
		return game.Team{}, fmt.Errorf("decode assets for %s: %w", r.TeamID, err)
	}
	return out, nil
}

type roundRow struct {
	TeamID    string `db:"team_id"`
	Round     int    `db:"round"`
	Decisions []byte `db:"decisions"`
	Results   []byte `db:"results"`
}

func (r roundRow) record() (game.RoundRecord, error) {
	out := game.RoundRecord{
		TeamID: r.TeamID,
		Round:  game.RoundNumber(r.Round),
	}
	if err := json.Unmarshal(r.Decisions, &out.Decisions); err != nil {
		return game.RoundRecord{}, fmt.Errorf("decode decisions for %s: %w", r.TeamID, err)
	}
	if len(r.Results) > 0 {
		var res game.RoundResults
		if err := json.Unmarshal(r.Results, &res); err != nil {
			return game.RoundRecord{}, fmt.Errorf("decode results for %s: %w", r.TeamID, err)
		}
		out.Results = &res
	}
	return out, nil
}

func finalStatus(round game.RoundNumber) game.RoomStatus {
	if round >= game.MaxRound {
		return game.RoomFinished
	}
	return game.RoomPlaying
}

func encodeJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return raw, nil
}
