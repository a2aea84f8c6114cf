package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"bizsim/internal/api"
	"bizsim/internal/db"
	"bizsim/internal/game"
	"bizsim/internal/store"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "cli.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st, err := store.NewSQLite(ctx, conn)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	srv, err := api.New(logger, game.NewService(st, game.DefaultRules(), logger, game.ServiceOptions{}))
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL + "/")
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	cfg, err := c.RoundRules(ctx, 4)
	if err != nil || !cfg.VehicleUnlocked(game.EV) {
		t.Fatalf("rules got=%+v err=%v", cfg, err)
	}

	room, err := c.CreateRoom(ctx, "Evening cohort", 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.StartRound(ctx, room.Code, 1, "start-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	team := game.TeamID(2)
	d, err := c.UpdateSection(ctx, room.Code, team, game.SectionHR, map[string]any{"newHires": 3}, "hr-1")
	if err != nil || d.HR.NewHires != 3 {
		t.Fatalf("update got=%+v err=%v", d.HR, err)
	}
	if _, err := c.Submit(ctx, room.Code, team, "submit-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = c.Submit(ctx, room.Code, team, "submit-2")
	if !IsConflict(err) || IsTransport(err) {
		t.Fatalf("expected 409, got %v", err)
	}

	out, err := c.EndRound(ctx, room.Code, 1, "end-1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if out.SettlementID == "" || out.Round != 1 || len(out.TeamResults) != 2 || len(out.Leaderboard) != 2 {
		t.Fatalf("end got=%+v", out)
	}
	if res := out.TeamResults[team]; res.UpdatedAssets.Employees.Unskilled != 7 {
		t.Fatalf("hires not applied: %+v", res.UpdatedAssets.Employees)
	}

	if _, err := c.StartRound(ctx, room.Code, 2, "start-2"); err != nil {
		t.Fatalf("start 2: %v", err)
	}
	// A queued close of round 1 replayed late must not settle round 2.
	if _, err := c.Do(ctx, http.MethodPost, EndRoundPath, EndRoundBody(room.Code, 1), "end-1"); !IsConflict(err) {
		t.Fatalf("replayed end: expected 409, got %v", err)
	}
	if _, err := c.Do(ctx, http.MethodPost, EndRoundPath, map[string]any{"roomCode": room.Code}, "end-1"); !IsConflict(err) {
		t.Fatalf("replayed end without round: expected 409, got %v", err)
	}
	if r, err := c.Room(ctx, room.Code); err != nil || r.CurrentRound != 2 || r.RoundStatus != game.RoundOpen {
		t.Fatalf("round 2 after replays: %+v err=%v", r, err)
	}

	rec, err := c.TeamRound(ctx, room.Code, team, 1)
	if err != nil || rec.Results == nil {
		t.Fatalf("record got=%+v err=%v", rec, err)
	}
	board, err := c.Leaderboard(ctx, room.Code)
	if err != nil || len(board) != 2 {
		t.Fatalf("leaderboard got=%v err=%v", board, err)
	}
	raw, err := c.Do(ctx, http.MethodGet, roomPath(room.Code), nil, "")
	if err != nil || raw["success"] != true {
		t.Fatalf("do got=%v err=%v", raw, err)
	}

	_, err = c.Room(ctx, "ZZZZ")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Message != game.ErrRoomNotFound.Error() {
		t.Fatalf("expected 404 api error, got %v", err)
	}
}

func TestIsTransport(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.Room(context.Background(), "ABCD")
	if !IsTransport(err) || IsConflict(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if IsTransport(nil) || IsTransport(&APIError{Status: 500}) {
		t.Fatalf("nil and api errors are not transport errors")
	}
}

func TestProfile(t *testing.T) {
	t.Setenv("BIZSIM_HOME", t.TempDir())

	p, err := LoadProfile()
	if err != nil || p != (Profile{}) {
		t.Fatalf("empty profile got=%+v err=%v", p, err)
	}
	want := Profile{RoomCode: "ABCD", TeamID: "team_3"}
	if err := SaveProfile(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if p, err = LoadProfile(); err != nil || p != want {
		t.Fatalf("load got=%+v err=%v", p, err)
	}
	if err := ClearProfile(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := ClearProfile(); err != nil {
		t.Fatalf("clear twice: %v", err)
	}
	if p, _ = LoadProfile(); p != (Profile{}) {
		t.Fatalf("profile survived clear: %+v", p)
	}
}
