package game

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type ServiceOptions struct {
	// RoundDuration sets a deadline on every started round. Zero leaves
	// rounds open until closed by hand.
	RoundDuration time.Duration
	Recorder      Recorder
	Now           func() time.Time
}

type Service struct {
	store         Store
	rules         Rules
	rec           Recorder
	log           *slog.Logger
	now           func() time.Time
	roundDuration time.Duration
}

func NewService(store Store, rules Rules, logger *slog.Logger, opts ServiceOptions) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = NoopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:         store,
		rules:         rules,
		rec:           opts.Recorder,
		log:           logger,
		now:           opts.Now,
		roundDuration: opts.RoundDuration,
	}
}

func (s *Service) Rules() Rules {
	return s.rules
}

func (s *Service) CreateRoom(ctx context.Context, name string, totalTeams int) (Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxRoomNameLen {
		return Room{}, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidRoom, MaxRoomNameLen)
	}
	if totalTeams < MinTeams || totalTeams > MaxTeams {
		return Room{}, fmt.Errorf("%w: teams must be between %d and %d", ErrInvalidRoom, MinTeams, MaxTeams)
	}
	market, err := s.rules.Market(MinRound)
	if err != nil {
		return Room{}, err
	}

	teams := make([]Team, 0, totalTeams)
	decisions := make([]RoundDecisions, 0, totalTeams)
	for i := 1; i <= totalTeams; i++ {
		teams = append(teams, Team{
			ID:     TeamID(i),
			Seq:    i,
			Name:   TeamName(i),
			Assets: s.rules.InitialAssets,
		})
		decisions = append(decisions, DefaultDecisions(s.rules.InitialAssets.TechLevel.Process))
	}

	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := generateRoomCode()
		if err != nil {
			return Room{}, err
		}
		room := Room{
			Code:         code,
			Name:         name,
			Status:       RoomWaiting,
			CurrentRound: MinRound,
			RoundStatus:  RoundOpen,
			TotalTeams:   totalTeams,
			MarketDemand: s.rules.TotalDemand(totalTeams, market),
			Market:       market,
			CreatedAt:    s.now().UTC(),
		}
		err = s.store.CreateRoom(ctx, room, teams, decisions)
		if errors.Is(err, ErrRoomExists) {
			continue
		}
		if err != nil {
			return Room{}, err
		}
		s.log.Info("room created", "room", code, "teams", totalTeams)
		return room, nil
	}
	return Room{}, ErrRoomExists
}

func (s *Service) Room(ctx context.Context, code string) (Room, error) {
	if err := ValidateRoomCode(code); err != nil {
		return Room{}, err
	}
	return s.store.Room(ctx, code)
}

func (s *Service) Leaderboard(ctx context.Context, code string) ([]LeaderboardEntry, error) {
	room, err := s.Room(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.Leaderboard == nil {
		return []LeaderboardEntry{}, nil
	}
	return room.Leaderboard, nil
}

func (s *Service) TeamRound(ctx context.Context, code, teamID string, round RoundNumber) (RoundRecord, error) {
	if err := ValidateRoomCode(code); err != nil {
		return RoundRecord{}, err
	}
	if err := ValidateRound(round); err != nil {
		return RoundRecord{}, err
	}
	return s.store.RoundRecord(ctx, code, teamID, round)
}

func (s *Service) CashFlow(ctx context.Context, code, teamID string) (CashFlow, error) {
	room, team, err := s.roomTeam(ctx, code, teamID)
	if err != nil {
		return CashFlow{}, err
	}
	rec, err := s.store.RoundRecord(ctx, code, teamID, room.CurrentRound)
	if err != nil {
		return CashFlow{}, err
	}
	return s.rules.PlanCashFlow(team.Assets, rec.Decisions), nil
}

// UpdateSection replaces one section of the team's current-round record.
func (s *Service) UpdateSection(ctx context.Context, code, teamID string, section Section, raw []byte, idem string) (RoundDecisions, error) {
	if err := validateIdemKey(idem); err != nil {
		return RoundDecisions{}, err
	}
	room, team, err := s.roomTeam(ctx, code, teamID)
	if err != nil {
		return RoundDecisions{}, err
	}
	if room.RoundStatus == RoundSettled {
		return RoundDecisions{}, ErrRoundSettled
	}
	return s.store.UpdateDecisions(ctx, code, teamID, room.CurrentRound, idem, func(d *RoundDecisions) error {
		next := *d
		if err := next.ApplySection(section, raw); err != nil {
			return err
		}
		if err := ValidateDecisions(next, team.Assets, room.Market); err != nil {
			return err
		}
		*d = next
		return nil
	})
}

func (s *Service) Submit(ctx context.Context, code, teamID, idem string) (RoundDecisions, error) {
	if err := validateIdemKey(idem); err != nil {
		return RoundDecisions{}, err
	}
	room, team, err := s.roomTeam(ctx, code, teamID)
	if err != nil {
		return RoundDecisions{}, err
	}
	if room.RoundStatus == RoundSettled {
		return RoundDecisions{}, ErrRoundSettled
	}
	out, err := s.store.UpdateDecisions(ctx, code, teamID, room.CurrentRound, idem, func(d *RoundDecisions) error {
		if err := ValidateDecisions(*d, team.Assets, room.Market); err != nil {
			return err
		}
		next, err := d.Submit()
		if err != nil {
			return err
		}
		*d = next
		return nil
	})
	if err != nil {
		return out, err
	}
	s.log.Info("round submitted", "room", code, "team", teamID, "round", room.CurrentRound, "all_approved", out.Approvals.All())
	return out, nil
}

// StartRound moves the room to round and resets every team's record. A
// repeated idem key fails with ErrDuplicateIdempotency and resets nothing.
func (s *Service) StartRound(ctx context.Context, code string, round RoundNumber, idem string) (Room, error) {
	if err := ValidateRound(round); err != nil {
		return Room{}, err
	}
	if err := validateIdemKey(idem); err != nil {
		return Room{}, err
	}
	room, err := s.Room(ctx, code)
	if err != nil {
		return Room{}, err
	}
	market, err := s.rules.Market(round)
	if err != nil {
		return Room{}, err
	}
	opening := RoundOpening{
		Round:        round,
		Market:       market,
		MarketDemand: s.rules.TotalDemand(room.TotalTeams, market),
		Reset: func(t Team) RoundDecisions {
			return DefaultDecisions(t.Assets.TechLevel.Process)
		},
		IdempotencyKey: idem,
	}
	if s.roundDuration > 0 {
		endsAt := s.now().UTC().Add(s.roundDuration)
		opening.EndsAt = &endsAt
	}
	if err := s.store.OpenRound(ctx, code, opening); err != nil {
		return Room{}, fmt.Errorf("open round %d: %w", round, err)
	}
	s.log.Info("round started", "room", code, "round", round, "cycle", market.Cycle, "market_demand", opening.MarketDemand)
	return s.store.Room(ctx, code)
}

// EndRound collects every team, freezes open records, settles and commits
// the outcome in one write. Nothing is published when any step fails.
// A non-zero round must be the room's current round; zero closes whatever
// round is open.
func (s *Service) EndRound(ctx context.Context, code string, round RoundNumber, idem string) (Settlement, error) {
	if round != 0 {
		if err := ValidateRound(round); err != nil {
			return Settlement{}, err
		}
	}
	if err := validateIdemKey(idem); err != nil {
		return Settlement{}, err
	}
	room, err := s.Room(ctx, code)
	if err != nil {
		return Settlement{}, err
	}
	if room.Status != RoomPlaying {
		return Settlement{}, ErrRoomNotPlaying
	}
	if round != 0 && round != room.CurrentRound {
		return Settlement{}, fmt.Errorf("%w: asked to close round %d, room is on round %d", ErrRoundMismatch, round, room.CurrentRound)
	}
	if room.RoundStatus == RoundSettled {
		return Settlement{}, ErrRoundSettled
	}

	snap, err := s.collect(ctx, room)
	if err != nil {
		return Settlement{}, err
	}
	out := s.rules.Settle(snap)
	out.ID = uuid.NewString()
	out.IdempotencyKey = idem

	if err := s.store.CommitSettlement(ctx, out); err != nil {
		return Settlement{}, fmt.Errorf("commit settlement: %w", err)
	}

	forced := 0
	for _, t := range out.Teams {
		if t.ForcedSubmit {
			forced++
		}
	}
	s.log.Info("round settled",
		"room", code,
		"round", out.Round,
		"settlement_id", out.ID,
		"teams", len(out.Teams),
		"forced_submits", forced,
		"total_demand", out.TotalDemand,
	)
	if err := s.rec.Record(out); err != nil {
		s.log.Error("record settlement failed", "room", code, "settlement_id", out.ID, "err", err)
	}
	return out, nil
}

// CloseDueRounds settles every room whose round deadline has passed.
func (s *Service) CloseDueRounds(ctx context.Context) (int, error) {
	codes, err := s.store.DueRooms(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	closed := 0
	var errs []error
	for _, code := range codes {
		_, err := s.EndRound(ctx, code, 0, "")
		switch {
		case err == nil:
			closed++
		case errors.Is(err, ErrRoundSettled), errors.Is(err, ErrRoomNotPlaying):
		default:
			s.log.Error("auto close failed", "room", code, "err", err)
			errs = append(errs, fmt.Errorf("room %s: %w", code, err))
		}
	}
	return closed, errors.Join(errs...)
}

func (s *Service) collect(ctx context.Context, room Room) (RoundSnapshot, error) {
	teams, err := s.store.Teams(ctx, room.Code)
	if err != nil {
		return RoundSnapshot{}, err
	}
	snap := RoundSnapshot{
		RoomCode:   room.Code,
		Round:      room.CurrentRound,
		TotalTeams: room.TotalTeams,
		Market:     room.Market,
		Teams:      make([]TeamSnapshot, 0, len(teams)),
	}
	for _, t := range teams {
		ts := TeamSnapshot{Team: t}
		rec, err := s.store.RoundRecord(ctx, room.Code, t.ID, room.CurrentRound)
		switch {
		case err == nil:
			d := rec.Decisions
			ts.Decisions = &d
		case errors.Is(err, ErrRoundNotFound):
		default:
			return RoundSnapshot{}, fmt.Errorf("read round for %s: %w", t.ID, err)
		}
		snap.Teams = append(snap.Teams, ts)
	}
	return snap, nil
}

func (s *Service) roomTeam(ctx context.Context, code, teamID string) (Room, Team, error) {
	room, err := s.Room(ctx, code)
	if err != nil {
		return Room{}, Team{}, err
	}
	teams, err := s.store.Teams(ctx, code)
	if err != nil {
		return Room{}, Team{}, err
	}
	for _, t := range teams {
		if t.ID == teamID {
			return room, t, nil
		}
	}
	return Room{}, Team{}, ErrTeamNotFound
}

func validateIdemKey(key string) error {
	if len(key) > MaxIdemKeyLen {
		return fmt.Errorf("%w: limited to %d bytes", ErrInvalidIdemKey, MaxIdemKeyLen)
	}
	return nil
}

func generateRoomCode() (string, error) {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, RoomCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = letters[int(buf[i])%len(letters)]
	}
	return string(buf), nil
}
