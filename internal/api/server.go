package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bizsim/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 20

type Server struct {
	log     *slog.Logger
	game    *game.Service
	schemas sectionSchemas
	mux     *chi.Mux
}

func New(logger *slog.Logger, gameSvc *game.Service) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schemas, err := compileSectionSchemas()
	if err != nil {
		return nil, err
	}
	s := &Server{
		log:     logger,
		game:    gameSvc,
		schemas: schemas,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/rules/rounds/{round}", s.handleRoundRules)

		r.Post("/rooms", s.handleCreateRoom)
		r.Route("/rooms/{code}", func(r chi.Router) {
			r.Get("/", s.handleRoom)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/teams/{team}/rounds/{round}", s.handleTeamRound)
			r.Get("/teams/{team}/cashflow", s.handleCashFlow)
			r.Put("/teams/{team}/decisions/{section}", s.handleUpdateSection)
			r.Post("/teams/{team}/submit", s.handleSubmit)
		})

		r.Post("/game/start-round", s.handleStartRound)
		r.Post("/game/end-round", s.handleEndRound)
	})
}

func (s *Server) handleRoundRules(w http.ResponseWriter, r *http.Request) {
	round, err := roundParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	cfg, err := s.game.Rules().Market(round)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"marketConfig": cfg})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RoomName   string `json:"roomName"`
		TotalTeams int    `json:"totalTeams"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	room, err := s.game.CreateRoom(r.Context(), in.RoomName, in.TotalTeams)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{"room": room})
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.game.Room(r.Context(), roomCode(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"room": room})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.game.Leaderboard(r.Context(), roomCode(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"leaderboard": board})
}

func (s *Server) handleTeamRound(w http.ResponseWriter, r *http.Request) {
	round, err := roundParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rec, err := s.game.TeamRound(r.Context(), roomCode(r), chi.URLParam(r, "team"), round)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"record": rec})
}

func (s *Server) handleCashFlow(w http.ResponseWriter, r *http.Request) {
	cf, err := s.game.CashFlow(r.Context(), roomCode(r), chi.URLParam(r, "team"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"cashFlow": cf})
}

func (s *Server) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	section, err := game.ParseSection(chi.URLParam(r, "section"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.schemas.validate(section, raw); err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := s.game.UpdateSection(r.Context(), roomCode(r), chi.URLParam(r, "team"), section, raw, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"decisions": out, "owner": section.Owner()})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Submit(r.Context(), roomCode(r), chi.URLParam(r, "team"), idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"decisions": out})
}

func (s *Server) handleStartRound(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RoomCode string `json:"roomCode"`
		Round    int    `json:"round"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	room, err := s.game.StartRound(r.Context(), normalizeCode(in.RoomCode), game.RoundNumber(in.Round), idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"room": room})
}

func (s *Server) handleEndRound(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RoomCode string `json:"roomCode"`
		Round    int    `json:"round"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	code := normalizeCode(in.RoomCode)
	idem := idempotencyKey(r)
	out, err := s.game.EndRound(r.Context(), code, game.RoundNumber(in.Round), idem)
	if err != nil {
		s.log.Warn("end round rejected", "room", code, "round", in.Round, "idempotency_key", idem, "err", err)
		writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"settlementId": out.ID,
		"round":        out.Round,
		"leaderboard":  out.Leaderboard,
		"teamResults":  out.TeamResults(),
	})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrInvalidRound),
		errors.Is(err, game.ErrInvalidRoomCode),
		errors.Is(err, game.ErrInvalidDecisions),
		errors.Is(err, game.ErrInvalidSection),
		errors.Is(err, game.ErrInvalidRoom),
		errors.Is(err, game.ErrInvalidIdemKey):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrRoomNotFound),
		errors.Is(err, game.ErrTeamNotFound),
		errors.Is(err, game.ErrRoundNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrRoundSubmitted),
		errors.Is(err, game.ErrRoundSettled),
		errors.Is(err, game.ErrRoomNotPlaying),
		errors.Is(err, game.ErrRoundMismatch),
		errors.Is(err, game.ErrDuplicateIdempotency),
		errors.Is(err, game.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func roundParam(r *http.Request) (game.RoundNumber, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", game.ErrInvalidRound, chi.URLParam(r, "round"))
	}
	round := game.RoundNumber(n)
	return round, game.ValidateRound(round)
}

func roomCode(r *http.Request) string {
	return normalizeCode(chi.URLParam(r, "code"))
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeOK(w http.ResponseWriter, status int, fields map[string]any) {
	fields["success"] = true
	writeJSON(w, status, fields)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": strings.TrimSpace(message)})
}

// idempotencyKey is the client's Idempotency-Key header. Writes without one
// are not deduplicated.
func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}
