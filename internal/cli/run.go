package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/clubkeeper/quarterbook/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a recording scenario",
		Long: `Run a YAML recording scenario against a store-backed session and
print the resulting phase trace.

The scenario seeds its own match; by default it runs against a throwaway
database. Pass --db to keep the recorded state for inspection with show.

Examples:
  quarterbook run scenarios/tiebreak.yaml
  quarterbook run scenarios/tiebreak.yaml --db ./match.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: throwaway)")

	return cmd
}

func runRun(opts *RunOptions, scenarioPath string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := harness.LoadScenario(scenarioPath)
	if err != nil {
		_ = formatter.Error(ErrCodeScenario, "failed to load scenario", err.Error())
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	dbPath := opts.Database
	if dbPath == "" {
		dir, err := os.MkdirTemp("", "quarterbook-run-")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create temp dir", err)
		}
		defer os.RemoveAll(dir)
		dbPath = filepath.Join(dir, scenario.Name+".db")
	}
	formatter.VerboseLog("Running scenario %s against %s", scenario.Name, dbPath)

	result, err := harness.Run(ctx, scenario, dbPath)
	if err != nil {
		_ = formatter.Error(ErrCodeScenario, "scenario failed", err.Error())
		return WrapExitError(ExitFailure, "scenario failed", err)
	}

	if formatter.Format == "json" {
		data, err := harness.TraceJSON(result)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to render trace", err)
		}
		fmt.Fprintf(formatter.Writer, "%s\n", data)
		return nil
	}

	fmt.Fprintf(formatter.Writer, "Scenario %s: %d step(s)\n\n", scenario.Name, len(result.Trace))
	for _, entry := range result.Trace {
		line := fmt.Sprintf("  %2d  %-18s -> %s", entry.Step, entry.Action, entry.Phase)
		if entry.Err != "" {
			line += fmt.Sprintf("  [%s]", entry.Err)
		}
		fmt.Fprintln(formatter.Writer, line)
	}

	totals := result.Session.Totals()
	fmt.Fprintf(formatter.Writer, "\nFinal: phase=%s points=%d-%d goals=%d-%d\n",
		result.Session.Phase(), totals.PointsA, totals.PointsB, totals.GoalsA, totals.GoalsB)
	if shootout, ok := result.Session.Shootout(); ok {
		fmt.Fprintf(formatter.Writer, "Shootout: %d-%d winner=%s\n",
			shootout.ScoreA, shootout.ScoreB, shootout.Winner)
	}
	return nil
}
