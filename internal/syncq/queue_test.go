package syncq

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPushDedupsByKey(t *testing.T) {
	t.Setenv("BIZSIM_HOME", t.TempDir())

	cmds := []Command{
		{Method: "POST", Path: "/v1/rooms/ABCD/teams/team_1/submit", IdempotencyKey: "k1"},
		{Method: "POST", Path: "/v1/rooms/ABCD/teams/team_1/submit", IdempotencyKey: "k1"},
		{Method: "PUT", Path: "/v1/rooms/ABCD/teams/team_1/decisions/hr", Body: map[string]any{"newHires": 2.0}, IdempotencyKey: "k2"},
	}
	for _, c := range cmds {
		if err := Push(c); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[1].Body["newHires"] != 2.0 {
		t.Fatalf("got=%+v", got)
	}
}

func TestLoadEmpty(t *testing.T) {
	t.Setenv("BIZSIM_HOME", t.TempDir())
	got, err := Load()
	if err != nil || len(got) != 0 {
		t.Fatalf("got=%v err=%v", got, err)
	}
}

func TestSaveReplacesQueue(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BIZSIM_HOME", home)

	if err := Save([]Command{{Method: "POST", Path: "/v1/game/end-round", IdempotencyKey: "a"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := Save([]Command{}); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	got, err := Load()
	if err != nil || len(got) != 0 {
		t.Fatalf("after clear got=%v err=%v", got, err)
	}
	entries, err := os.ReadDir(home)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".queue-") {
			t.Fatalf("staging file left behind: %s", e.Name())
		}
	}
	info, err := os.Stat(filepath.Join(home, "queue.json"))
	if err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("queue file mode=%v err=%v", info, err)
	}
}

func TestLoadCorruptQueue(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BIZSIM_HOME", home)
	if err := os.WriteFile(filepath.Join(home, "queue.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "decode sync queue") {
		t.Fatalf("expected decode error, got %v", err)
	}
	if err := Push(Command{Method: "POST", Path: "/x", IdempotencyKey: "k"}); err == nil {
		t.Fatalf("push over a corrupt queue must not overwrite it")
	}
}

func TestReplay(t *testing.T) {
	errConflict := errors.New("conflict")
	errDown := errors.New("connection refused")
	cmds := []Command{
		{Path: "/ok", IdempotencyKey: "a"},
		{Path: "/conflict", IdempotencyKey: "b"},
		{Path: "/down", IdempotencyKey: "c"},
	}
	send := func(c Command) error {
		switch c.Path {
		case "/conflict":
			return errConflict
		case "/down":
			return errDown
		}
		return nil
	}
	replayed, remaining, errs := Replay(cmds, send, func(err error) bool { return errors.Is(err, errConflict) })
	if replayed != 2 {
		t.Fatalf("replayed=%d", replayed)
	}
	if len(remaining) != 1 || remaining[0].IdempotencyKey != "c" {
		t.Fatalf("remaining=%+v", remaining)
	}
	if len(errs) != 1 || !errors.Is(errs[0], errDown) {
		t.Fatalf("errs=%v", errs)
	}
}
