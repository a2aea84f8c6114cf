package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bizsim/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsConflict reports whether err is a 409, which replays treat as already
// applied.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// IsTransport reports whether err happened before any reply arrived.
func IsTransport(err error) bool {
	var apiErr *APIError
	return err != nil && !errors.As(err, &apiErr) && !errors.Is(err, context.Canceled)
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type EndRoundResult struct {
	SettlementID string                       `json:"settlementId"`
	Round        game.RoundNumber             `json:"round"`
	Leaderboard  []game.LeaderboardEntry      `json:"leaderboard"`
	TeamResults  map[string]game.RoundResults `json:"teamResults"`
}

func (c *Client) RoundRules(ctx context.Context, round int) (game.MarketConfig, error) {
	var out struct {
		MarketConfig game.MarketConfig `json:"marketConfig"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/rules/rounds/"+strconv.Itoa(round), nil, &out, "")
	return out.MarketConfig, err
}

func (c *Client) CreateRoom(ctx context.Context, name string, totalTeams int) (game.Room, error) {
	var out struct {
		Room game.Room `json:"room"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/rooms", map[string]any{
		"roomName":   name,
		"totalTeams": totalTeams,
	}, &out, "")
	return out.Room, err
}

func (c *Client) Room(ctx context.Context, code string) (game.Room, error) {
	var out struct {
		Room game.Room `json:"room"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, roomPath(code), nil, &out, "")
	return out.Room, err
}

func (c *Client) Leaderboard(ctx context.Context, code string) ([]game.LeaderboardEntry, error) {
	var out struct {
		Leaderboard []game.LeaderboardEntry `json:"leaderboard"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, roomPath(code)+"/leaderboard", nil, &out, "")
	return out.Leaderboard, err
}

func (c *Client) TeamRound(ctx context.Context, code, teamID string, round int) (game.RoundRecord, error) {
	var out struct {
		Record game.RoundRecord `json:"record"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, TeamPath(code, teamID)+"/rounds/"+strconv.Itoa(round), nil, &out, "")
	return out.Record, err
}

func (c *Client) CashFlow(ctx context.Context, code, teamID string) (game.CashFlow, error) {
	var out struct {
		CashFlow game.CashFlow `json:"cashFlow"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, TeamPath(code, teamID)+"/cashflow", nil, &out, "")
	return out.CashFlow, err
}

func (c *Client) UpdateSection(ctx context.Context, code, teamID string, section game.Section, body map[string]any, idem string) (game.RoundDecisions, error) {
	var out struct {
		Decisions game.RoundDecisions `json:"decisions"`
	}
	err := c.jsonRequest(ctx, http.MethodPut, SectionPath(code, teamID, section), body, &out, idem)
	return out.Decisions, err
}

func (c *Client) Submit(ctx context.Context, code, teamID, idem string) (game.RoundDecisions, error) {
	var out struct {
		Decisions game.RoundDecisions `json:"decisions"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, TeamPath(code, teamID)+"/submit", map[string]any{}, &out, idem)
	return out.Decisions, err
}

func (c *Client) StartRound(ctx context.Context, code string, round int, idem string) (game.Room, error) {
	var out struct {
		Room game.Room `json:"room"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, StartRoundPath, StartRoundBody(code, round), &out, idem)
	return out.Room, err
}

func (c *Client) EndRound(ctx context.Context, code string, round int, idem string) (EndRoundResult, error) {
	var out EndRoundResult
	err := c.jsonRequest(ctx, http.MethodPost, EndRoundPath, EndRoundBody(code, round), &out, idem)
	return out, err
}

func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, body, &out, idem)
	return out, err
}

const (
	StartRoundPath = "/v1/game/start-round"
	EndRoundPath   = "/v1/game/end-round"
)

func StartRoundBody(code string, round int) map[string]any {
	return map[string]any{"roomCode": code, "round": round}
}

// EndRoundBody names the round being closed so a late replay cannot settle
// a later round.
func EndRoundBody(code string, round int) map[string]any {
	return map[string]any{"roomCode": code, "round": round}
}

func roomPath(code string) string {
	return "/v1/rooms/" + url.PathEscape(code)
}

func TeamPath(code, teamID string) string {
	return roomPath(code) + "/teams/" + url.PathEscape(teamID)
}

func SectionPath(code, teamID string, section game.Section) string {
	return TeamPath(code, teamID) + "/decisions/" + url.PathEscape(string(section))
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != "" {
		return env.Error
	}
	return strings.TrimSpace(string(raw))
}
