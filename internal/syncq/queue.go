// Package syncq keeps CLI writes that could not reach the server so
// `bizsim sync` can replay them later.
package syncq

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"bizsim/internal/cli"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
}

func queuePath() (string, error) {
	dir, err := cli.BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

// Load reads the queued commands. A missing or empty file is an empty queue.
func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return []Command{}, nil
	case err != nil:
		return nil, fmt.Errorf("read sync queue: %w", err)
	}
	out := []Command{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode sync queue %s: %w", path, err)
	}
	return out, nil
}

// Save replaces the queue file. The new content is written beside it and
// renamed into place, so a crash leaves either the old queue or the new one.
func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sync queue: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".queue-*.json")
	if err != nil {
		return fmt.Errorf("stage sync queue: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write sync queue: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write sync queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write sync queue: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace sync queue: %w", err)
	}
	return nil
}

// Push appends cmd unless a command with the same idempotency key is queued.
func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	for _, c := range commands {
		if cmd.IdempotencyKey != "" && c.IdempotencyKey == cmd.IdempotencyKey {
			return nil
		}
	}
	commands = append(commands, cmd)
	return Save(commands)
}

// Replay sends every queued command through send. Commands that fail stay
// queued; conflicts count as applied.
func Replay(commands []Command, send func(Command) error, applied func(error) bool) (replayed int, remaining []Command, errs []error) {
	remaining = make([]Command, 0, len(commands))
	for _, c := range commands {
		err := send(c)
		if err == nil || applied(err) {
			replayed++
			continue
		}
		remaining = append(remaining, c)
		errs = append(errs, err)
	}
	return replayed, remaining, errs
}
