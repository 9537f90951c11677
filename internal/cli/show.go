package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clubkeeper/quarterbook/internal/match"
	"github.com/clubkeeper/quarterbook/internal/rules"
	"github.com/clubkeeper/quarterbook/internal/scoring"
	"github.com/clubkeeper/quarterbook/internal/session"
	"github.com/clubkeeper/quarterbook/internal/store"
	"github.com/clubkeeper/quarterbook/internal/testutil"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	MatchID  string
	Rules    string
	Quarter  int // optional - filter events to one quarter
}

// QuarterRow is one quarter in the show output.
type QuarterRow struct {
	Number      int    `json:"number"`
	Team1Goals  int    `json:"team1_goals"`
	Team2Goals  int    `json:"team2_goals"`
	Team1Points int    `json:"team1_points"`
	Team2Points int    `json:"team2_points"`
	Summary     string `json:"summary,omitempty"`
	IsCompleted bool   `json:"is_completed"`
}

// TotalsRow is the aggregate section of the show output.
type TotalsRow struct {
	Team1Points int  `json:"team1_points"`
	Team2Points int  `json:"team2_points"`
	Team1Goals  int  `json:"team1_goals"`
	Team2Goals  int  `json:"team2_goals"`
	Decided     bool `json:"decided"`
	Tie         bool `json:"tie"`
}

// ShowResult holds the complete show output.
type ShowResult struct {
	MatchID      string                      `json:"match_id"`
	Quarters     []QuarterRow                `json:"quarters"`
	Totals       TotalsRow                   `json:"totals"`
	Events       []session.PersistedEvent    `json:"events"`
	Shootout     *session.ShootoutPayload    `json:"shootout,omitempty"`
	Participants *session.ParticipantsResult `json:"participants,omitempty"`
	ResumePhase  string                      `json:"resume_phase,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Inspect recorded match state",
		Long: `Show the recorded state of a match: quarter tallies, derived
points and aggregate totals, the surviving event ledger, penalty shootout
data, and confirmed participants.

Points are recomputed from the rule set at display time; they are never
stored.

Examples:
  quarterbook show --db ./match.db --match m-1
  quarterbook show --db ./match.db --match m-1 --quarter 3 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.MatchID, "match", "", "match id (required)")
	_ = cmd.MarkFlagRequired("match")
	cmd.Flags().StringVar(&opts.Rules, "rules", "", "path to CUE rule set (default: embedded rules)")
	cmd.Flags().IntVar(&opts.Quarter, "quarter", 0, "filter events to one quarter")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ruleSet := rules.Default()
	if opts.Rules != "" {
		var err error
		if ruleSet, err = rules.Load(opts.Rules); err != nil {
			_ = formatter.Error(ErrCodeRules, "failed to load rules", err.Error())
			return WrapExitError(ExitCommandError, "failed to load rules", err)
		}
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, "failed to open database", err.Error())
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	rec := store.NewRecorder(st)
	detail, err := rec.GetQuarterDetail(ctx, opts.MatchID)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, "failed to read match", err.Error())
		return WrapExitError(ExitCommandError, "failed to read match", err)
	}

	result := buildShowResult(opts.MatchID, ruleSet, detail)
	if opts.Quarter > 0 {
		filtered := result.Events[:0]
		for _, e := range result.Events {
			if e.QuarterNumber == opts.Quarter {
				filtered = append(filtered, e)
			}
		}
		result.Events = filtered
	}

	if participants, err := rec.GetParticipants(ctx, opts.MatchID); err == nil &&
		(len(participants.Team1) > 0 || len(participants.Team2) > 0) {
		result.Participants = &participants
	}

	// Best effort: the phase an interrupted session would resume into.
	if team1, team2, err := rec.MatchTeams(ctx, opts.MatchID); err == nil {
		sess, err := session.Resume(ctx, session.Config{
			MatchID:  opts.MatchID,
			TeamAID:  team1,
			TeamBID:  team2,
			Rules:    ruleSet,
			Recorder: rec,
			Logger:   testutil.SilentLogger(),
		})
		if err == nil {
			result.ResumePhase = sess.Phase().String()
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	printShowText(formatter, result)
	return nil
}

// buildShowResult derives points and totals from the stored tallies.
func buildShowResult(matchID string, rs scoring.RuleSet, detail session.QuarterDetail) ShowResult {
	result := ShowResult{
		MatchID:  matchID,
		Events:   detail.Events,
		Shootout: detail.PenaltyShootout,
	}

	quarters := make([]match.Quarter, rs.Quarters)
	for i := range quarters {
		quarters[i] = match.Quarter{Index: i + 1}
	}
	for _, row := range detail.Quarters {
		if row.QuarterNumber < 1 || row.QuarterNumber > rs.Quarters {
			continue
		}
		q := &quarters[row.QuarterNumber-1]
		q.GoalsA = row.Team1Goals
		q.GoalsB = row.Team2Goals
		q.Summary = row.Summary
		q.Completed = row.IsCompleted
	}

	for i := range quarters {
		rs.Rescore(&quarters[i])
		result.Quarters = append(result.Quarters, QuarterRow{
			Number:      quarters[i].Index,
			Team1Goals:  quarters[i].GoalsA,
			Team2Goals:  quarters[i].GoalsB,
			Team1Points: quarters[i].PointsA,
			Team2Points: quarters[i].PointsB,
			Summary:     quarters[i].Summary,
			IsCompleted: quarters[i].Completed,
		})
	}

	totals := scoring.Aggregate(rs, quarters)
	result.Totals = TotalsRow{
		Team1Points: totals.PointsA,
		Team2Points: totals.PointsB,
		Team1Goals:  totals.GoalsA,
		Team2Goals:  totals.GoalsB,
		Decided:     totals.Decided,
		Tie:         totals.Tie,
	}
	return result
}

// printShowText renders the show output as plain text.
func printShowText(formatter *OutputFormatter, result ShowResult) {
	w := formatter.Writer
	fmt.Fprintf(w, "Match %s\n\n", result.MatchID)

	for _, q := range result.Quarters {
		status := "open"
		if q.IsCompleted {
			status = "completed"
		}
		fmt.Fprintf(w, "  Q%d  %d-%d  (%d-%d pts)  %s\n",
			q.Number, q.Team1Goals, q.Team2Goals, q.Team1Points, q.Team2Points, status)
	}

	fmt.Fprintf(w, "\nTotals: points %d-%d, goals %d-%d",
		result.Totals.Team1Points, result.Totals.Team2Points,
		result.Totals.Team1Goals, result.Totals.Team2Goals)
	switch {
	case result.Totals.Tie:
		fmt.Fprintln(w, " (tied)")
	case !result.Totals.Decided:
		fmt.Fprintln(w, " (in progress)")
	default:
		fmt.Fprintln(w)
	}

	if result.ResumePhase != "" {
		fmt.Fprintf(w, "Resumes at: %s\n", result.ResumePhase)
	}

	if result.Shootout != nil {
		fmt.Fprintf(w, "Shootout: %d-%d, winner %s\n",
			result.Shootout.Team1PenaltyScore, result.Shootout.Team2PenaltyScore,
			result.Shootout.PenaltyWinnerTeamID)
	}

	if len(result.Events) > 0 {
		fmt.Fprintf(w, "\nEvents (%d):\n", len(result.Events))
		for _, e := range result.Events {
			line := fmt.Sprintf("  Q%d %3d'  %-12s %s %s", e.QuarterNumber, e.Minute, e.EventType, e.TeamID, e.UserID)
			if e.EventSubtype != "" {
				line += "  (" + e.EventSubtype + ")"
			}
			fmt.Fprintln(w, line)
		}
	}

	if result.Participants != nil {
		fmt.Fprintf(w, "\nParticipants: %d + %d confirmed\n",
			len(result.Participants.Team1), len(result.Participants.Team2))
	}
}
