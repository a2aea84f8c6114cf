package game

import (
	"context"
	"time"
)

// RoundOpening is everything the store writes when a round starts.
type RoundOpening struct {
	Round        RoundNumber
	Market       MarketConfig
	MarketDemand float64
	EndsAt       *time.Time
	Reset        func(Team) RoundDecisions

	// IdempotencyKey, when set, is claimed in the same transaction.
	IdempotencyKey string
}

// Store persists rooms, teams and per-round records. Implementations live in
// internal/store.
type Store interface {
	CreateRoom(ctx context.Context, room Room, teams []Team, decisions []RoundDecisions) error
	Room(ctx context.Context, code string) (Room, error)
	Teams(ctx context.Context, code string) ([]Team, error)
	RoundRecord(ctx context.Context, code, teamID string, round RoundNumber) (RoundRecord, error)
	// UpdateDecisions reads, mutates and writes one record atomically. A
	// non-empty idem key already claimed in the room fails with
	// ErrDuplicateIdempotency and writes nothing.
	UpdateDecisions(ctx context.Context, code, teamID string, round RoundNumber, idem string, fn func(*RoundDecisions) error) (RoundDecisions, error)
	OpenRound(ctx context.Context, code string, o RoundOpening) error
	// CommitSettlement writes the whole settlement or nothing. It fails with
	// ErrRoundSettled when the round was already closed and with
	// ErrDuplicateIdempotency when s.IdempotencyKey was already claimed.
	CommitSettlement(ctx context.Context, s Settlement) error
	DueRooms(ctx context.Context, now time.Time) ([]string, error)
	Close() error
}

// Recorder receives every committed settlement.
type Recorder interface {
	Record(s Settlement) error
	Close() error
}

type NoopRecorder struct{}

func (NoopRecorder) Record(Settlement) error { return nil }
func (NoopRecorder) Close() error            { return nil }
