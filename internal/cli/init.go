package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clubkeeper/quarterbook/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Database string
	MatchID  string
	Team1    string
	Team2    string
	Players  []string
}

// InitResult holds the init command output.
type InitResult struct {
	MatchID     string `json:"match_id"`
	Team1       string `json:"team1"`
	Team2       string `json:"team2"`
	PlayerCount int    `json:"player_count"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a match in a local database",
		Long: `Create a match row and its selectable player pools in a local
SQLite database, ready for a recording session.

Players are declared as team:userId[:name[:pool]], where team is 1 or 2
and pool is one of registered, unregistered, virtual, unassigned
(default registered).

Examples:
  quarterbook init --db ./match.db --match m-1 --team1 t-falcons --team2 t-otters \
    --player 1:alice --player 1:bob:"Bob Ames" --player 2:noah:Noah:virtual`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.MatchID, "match", "", "match id (required)")
	_ = cmd.MarkFlagRequired("match")
	cmd.Flags().StringVar(&opts.Team1, "team1", "", "team id for side A (required)")
	_ = cmd.MarkFlagRequired("team1")
	cmd.Flags().StringVar(&opts.Team2, "team2", "", "team id for side B (required)")
	_ = cmd.MarkFlagRequired("team2")
	cmd.Flags().StringArrayVar(&opts.Players, "player", nil, "selectable player as team:userId[:name[:pool]] (repeatable)")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, "failed to open database", err.Error())
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	rec := store.NewRecorder(st)
	if err := rec.CreateMatch(ctx, opts.MatchID, opts.Team1, opts.Team2); err != nil {
		_ = formatter.Error(ErrCodeDatabase, "failed to create match", err.Error())
		return WrapExitError(ExitCommandError, "failed to create match", err)
	}

	count := 0
	for _, spec := range opts.Players {
		team, userID, name, pool, err := parsePlayerSpec(spec)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		teamID := opts.Team1
		if team == 2 {
			teamID = opts.Team2
		}
		if err := rec.AddSelectablePlayer(ctx, opts.MatchID, teamID, pool, userID, name); err != nil {
			_ = formatter.Error(ErrCodeDatabase, "failed to add player", err.Error())
			return WrapExitError(ExitCommandError, "failed to add player", err)
		}
		formatter.VerboseLog("Added player %s to team %d (%s pool)", userID, team, pool)
		count++
	}

	result := InitResult{
		MatchID:     opts.MatchID,
		Team1:       opts.Team1,
		Team2:       opts.Team2,
		PlayerCount: count,
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "Created match %s (%s vs %s) with %d selectable player(s)\n",
		result.MatchID, result.Team1, result.Team2, result.PlayerCount)
	return nil
}

// parsePlayerSpec parses team:userId[:name[:pool]].
func parsePlayerSpec(spec string) (team int, userID, name, pool string, err error) {
	parts := strings.SplitN(spec, ":", 4)
	if len(parts) < 2 {
		return 0, "", "", "", fmt.Errorf("invalid player spec %q: want team:userId[:name[:pool]]", spec)
	}

	switch parts[0] {
	case "1":
		team = 1
	case "2":
		team = 2
	default:
		return 0, "", "", "", fmt.Errorf("invalid player spec %q: team must be 1 or 2", spec)
	}

	userID = parts[1]
	if userID == "" {
		return 0, "", "", "", fmt.Errorf("invalid player spec %q: empty userId", spec)
	}

	name = userID
	if len(parts) >= 3 && parts[2] != "" {
		name = parts[2]
	}

	pool = "registered"
	if len(parts) == 4 {
		switch parts[3] {
		case "registered", "unregistered", "virtual", "unassigned":
			pool = parts[3]
		default:
			return 0, "", "", "", fmt.Errorf("invalid player spec %q: unknown pool %q", spec, parts[3])
		}
	}

	return team, userID, name, pool, nil
}
