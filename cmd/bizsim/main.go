package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"bizsim/internal/archive"
	cl "bizsim/internal/cli"
	"bizsim/internal/config"
	"bizsim/internal/game"
	"bizsim/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "bizsim",
		Short:        "Business simulation admin client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newUseCmd(),
		newRoomCmd(&apiBase),
		newRoundCmd(&apiBase),
		newDecideCmd(&apiBase),
		newSubmitCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newResultsCmd(&apiBase),
		newCashFlowCmd(&apiBase),
		newRulesCmd(&apiBase),
		newSyncCmd(&apiBase),
		newArchiveCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use ROOM [TEAM]",
		Short: "Set the default room and team",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := strings.ToUpper(strings.TrimSpace(args[0]))
			if err := game.ValidateRoomCode(code); err != nil {
				return err
			}
			p := cl.Profile{RoomCode: code}
			if len(args) == 2 {
				p.TeamID = strings.TrimSpace(args[1])
			}
			if err := cl.SaveProfile(p); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Using room %s %s", p.RoomCode, p.TeamID))
			return nil
		},
	}
}

func newRoomCmd(apiBase *string) *cobra.Command {
	room := &cobra.Command{
		Use:   "room",
		Short: "Room commands",
	}

	var name string
	var teams int
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a room with N teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" {
				v, err := promptRequired("Room name")
				if err != nil {
					return err
				}
				name = v
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).CreateRoom(ctx, name, teams)
			if err != nil {
				return err
			}
			if err := cl.SaveProfile(cl.Profile{RoomCode: out.Code}); err != nil {
				printWarn(fmt.Sprintf("Could not save profile: %v", err))
			}
			printSuccess(fmt.Sprintf("Room %s created.", out.Code))
			renderRoom(out)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "room name")
	create.Flags().IntVar(&teams, "teams", game.MinTeams, "number of teams")

	var code string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show room state",
		RunE: func(cmd *cobra.Command, args []string) error {
			roomCode, err := resolveRoom(code)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Room(ctx, roomCode)
			if err != nil {
				return err
			}
			renderRoom(out)
			return nil
		},
	}
	show.Flags().StringVar(&code, "room", "", "room code")

	room.AddCommand(create, show)
	return room
}

func newRoundCmd(apiBase *string) *cobra.Command {
	round := &cobra.Command{
		Use:   "round",
		Short: "Start and close rounds",
	}

	var startRoom string
	start := &cobra.Command{
		Use:   "start ROUND",
		Short: "Open a round for every team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseRound(args[0])
			if err != nil {
				return err
			}
			code, err := resolveRoom(startRoom)
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).StartRound(ctx, code, n, idem)
			if err != nil {
				return queueOnTransport(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           cl.StartRoundPath,
					Body:           cl.StartRoundBody(code, n),
					IdempotencyKey: idem,
				})
			}
			printSuccess(fmt.Sprintf("Round %d started.", n))
			renderRoom(out)
			return nil
		},
	}
	start.Flags().StringVar(&startRoom, "room", "", "room code")

	var endRoom string
	end := &cobra.Command{
		Use:   "end ROUND",
		Short: "Settle an open round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseRound(args[0])
			if err != nil {
				return err
			}
			code, err := resolveRoom(endRoom)
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			out, err := newClient(apiBase).EndRound(ctx, code, n, idem)
			if err != nil {
				return queueOnTransport(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           cl.EndRoundPath,
					Body:           cl.EndRoundBody(code, n),
					IdempotencyKey: idem,
				})
			}
			printSuccess(fmt.Sprintf("Round %d settled (%s).", out.Round, out.SettlementID))
			renderLeaderboard(out.Leaderboard)
			renderTeamResults(out.TeamResults)
			return nil
		},
	}
	end.Flags().StringVar(&endRoom, "room", "", "room code")

	round.AddCommand(start, end)
	return round
}

func newDecideCmd(apiBase *string) *cobra.Command {
	var room, team, payload string
	cmd := &cobra.Command{
		Use:   "decide SECTION",
		Short: "Save one decision section (finance, production, rnd, marketing, hr, approvals, strategy)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, err := game.ParseSection(args[0])
			if err != nil {
				return err
			}
			code, teamID, err := resolveTeam(room, team)
			if err != nil {
				return err
			}
			if strings.TrimSpace(payload) == "" {
				payload, err = promptRequired(fmt.Sprintf("%s JSON (%s)", section, section.Owner()))
				if err != nil {
					return err
				}
			}
			var body map[string]any
			if err := json.Unmarshal([]byte(payload), &body); err != nil {
				return fmt.Errorf("payload must be a JSON object: %w", err)
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).UpdateSection(ctx, code, teamID, section, body, idem)
			if err != nil {
				return queueOnTransport(err, syncq.Command{
					Method:         http.MethodPut,
					Path:           cl.SectionPath(code, teamID, section),
					Body:           body,
					IdempotencyKey: idem,
				})
			}
			printSuccess(fmt.Sprintf("Saved %s for %s.", section, teamID))
			renderDecisions(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room code")
	cmd.Flags().StringVar(&team, "team", "", "team id")
	cmd.Flags().StringVar(&payload, "json", "", "section payload as JSON")
	return cmd
}

func newSubmitCmd(apiBase *string) *cobra.Command {
	var room, team string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Lock the team's decisions for the current round",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, teamID, err := resolveTeam(room, team)
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Submit(ctx, code, teamID, idem)
			if err != nil {
				return queueOnTransport(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           cl.TeamPath(code, teamID) + "/submit",
					Body:           map[string]any{},
					IdempotencyKey: idem,
				})
			}
			if !out.Approvals.All() {
				printWarn("Submitted without every officer's approval.")
			}
			printSuccess(fmt.Sprintf("%s submitted.", teamID))
			return nil
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room code")
	cmd.Flags().StringVar(&team, "team", "", "team id")
	return cmd
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	var room string
	cmd := &cobra.Command{
		Use:     "leaderboard",
		Short:   "Show the latest published leaderboard",
		Aliases: []string{"lb"},
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := resolveRoom(room)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Leaderboard(ctx, code)
			if err != nil {
				return err
			}
			renderLeaderboard(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room code")
	return cmd
}

func newResultsCmd(apiBase *string) *cobra.Command {
	var room, team string
	cmd := &cobra.Command{
		Use:   "results ROUND",
		Short: "Show a team's decisions and results for a round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseRound(args[0])
			if err != nil {
				return err
			}
			code, teamID, err := resolveTeam(room, team)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rec, err := newClient(apiBase).TeamRound(ctx, code, teamID, n)
			if err != nil {
				return err
			}
			renderDecisions(rec.Decisions)
			if rec.Results == nil {
				printInfo("Round not settled yet.")
				return nil
			}
			renderResults(teamID, *rec.Results)
			return nil
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room code")
	cmd.Flags().StringVar(&team, "team", "", "team id")
	return cmd
}

func newCashFlowCmd(apiBase *string) *cobra.Command {
	var room, team string
	cmd := &cobra.Command{
		Use:   "cashflow",
		Short: "Preview the cash left after the team's current plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, teamID, err := resolveTeam(room, team)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).CashFlow(ctx, code, teamID)
			if err != nil {
				return err
			}
			renderCashFlow(teamID, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room code")
	cmd.Flags().StringVar(&team, "team", "", "team id")
	return cmd
}

func newRulesCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rules ROUND",
		Short: "Show the market configuration for a round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseRound(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).RoundRules(ctx, n)
			if err != nil {
				return err
			}
			renderMarket(out)
			return nil
		},
	}
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay locally queued writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			replayed, remaining, errs := syncq.Replay(queue, func(q syncq.Command) error {
				_, err := client.Do(ctx, q.Method, q.Path, q.Body, q.IdempotencyKey)
				return err
			}, cl.IsConflict)
			for i, err := range errs {
				printError(fmt.Sprintf("Sync failed for %s %s: %v", remaining[i].Method, remaining[i].Path, err))
			}
			if err := syncq.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}

func newArchiveCmd() *cobra.Command {
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect settlement archive files",
	}
	archiveCmd.AddCommand(&cobra.Command{
		Use:   "cat FILE",
		Short: "Print every settlement in a .jsonl.zst archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := archive.ReadSettlements(args[0])
			if err != nil {
				return err
			}
			for _, s := range out {
				accent.Printf("\n== %s ROUND %d (%s) ==\n", s.RoomCode, s.Round, s.ID)
				fmt.Printf("Total demand: %s\n", money(s.TotalDemand))
				renderLeaderboard(s.Leaderboard)
			}
			return nil
		},
	})
	return archiveCmd
}

func queueOnTransport(err error, c syncq.Command) error {
	if !cl.IsTransport(err) {
		return err
	}
	if qerr := syncq.Push(c); qerr != nil {
		return fmt.Errorf("%w (queue failed: %v)", err, qerr)
	}
	printWarn(fmt.Sprintf("Server unreachable; queued %s %s. Run `bizsim sync` later.", c.Method, c.Path))
	return nil
}

func resolveRoom(flag string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(flag))
	if code == "" {
		p, err := cl.LoadProfile()
		if err != nil {
			return "", err
		}
		code = p.RoomCode
	}
	if code == "" {
		return "", fmt.Errorf("no room selected: pass --room or run `bizsim use ROOM`")
	}
	return code, game.ValidateRoomCode(code)
}

func resolveTeam(roomFlag, teamFlag string) (string, string, error) {
	code, err := resolveRoom(roomFlag)
	if err != nil {
		return "", "", err
	}
	team := strings.TrimSpace(teamFlag)
	if team == "" {
		p, err := cl.LoadProfile()
		if err != nil {
			return "", "", err
		}
		team = p.TeamID
	}
	if team == "" {
		return "", "", fmt.Errorf("no team selected: pass --team or run `bizsim use ROOM TEAM`")
	}
	return code, team, nil
}

func parseRound(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, game.ErrInvalidRound
	}
	return n, game.ValidateRound(game.RoundNumber(n))
}
