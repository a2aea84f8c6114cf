package game

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MinRound RoundNumber = 1
	MaxRound RoundNumber = 4

	MinProcessLevel = 1
	MaxProcessLevel = 4
	MaxDesignLevel  = 5
	MaxSafetyLevel  = 5

	// AutomationLevel is the process tier at which labor cost drops to zero.
	AutomationLevel = MaxProcessLevel

	MinTeams        = 2
	MaxTeams        = 12
	MaxRoomNameLen  = 50
	RoomCodeLen     = 4
	MaxLoanRequest  = 10_000
	MaxNewHires     = 20
	MaxStrategyLen  = 2_000
	MaxIdemKeyLen   = 128
	teamIDPrefix    = "team_"
	defaultTeamName = "Team %d"
)

var (
	ErrInvalidRound     = errors.New("round must be between 1 and 4")
	ErrInvalidRoomCode  = errors.New("room code must be 4 characters")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomExists       = errors.New("room code already in use")
	ErrTeamNotFound     = errors.New("team not found")
	ErrRoundNotFound    = errors.New("round record not found")
	ErrRoundSubmitted   = errors.New("round decisions already submitted")
	ErrRoundSettled     = errors.New("round already settled")
	ErrRoomNotPlaying   = errors.New("room is not playing")
	ErrInvalidDecisions = errors.New("invalid decisions")
	ErrInvalidSection   = errors.New("unknown decision section")
	ErrInvalidRoom      = errors.New("invalid room")
	ErrTxConflict       = errors.New("transaction conflict, retry")

	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrInvalidIdemKey       = errors.New("invalid idempotency key")
	ErrRoundMismatch        = errors.New("round is not the room's current round")
)

var roomCodeRE = regexp.MustCompile(`^[A-Z0-9]{4}$`)

func ValidateRoomCode(code string) error {
	if !roomCodeRE.MatchString(strings.TrimSpace(code)) {
		return ErrInvalidRoomCode
	}
	return nil
}

func ValidateRound(round RoundNumber) error {
	if round < MinRound || round > MaxRound {
		return ErrInvalidRound
	}
	return nil
}

func TeamID(seq int) string {
	return fmt.Sprintf("%s%d", teamIDPrefix, seq)
}

func TeamName(seq int) string {
	return fmt.Sprintf(defaultTeamName, seq)
}

// Round2 rounds a currency amount half away from zero on a decimal basis.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Floor2 truncates v to whole cents toward negative infinity.
func Floor2(v float64) float64 {
	return decimal.NewFromFloat(v).RoundFloor(2).InexactFloat64()
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDecisions, fmt.Sprintf(format, args...))
}
