package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/clubkeeper/quarterbook/internal/match"
)

// TraceJSON renders a run as canonical JSON: the step trace plus the final
// session state. Canonical form (sorted keys, no insignificant whitespace)
// keeps golden files stable across Go versions.
func TraceJSON(r *Result) ([]byte, error) {
	trace := make([]any, 0, len(r.Trace))
	for _, entry := range r.Trace {
		m := map[string]any{
			"step":   entry.Step,
			"action": entry.Action,
			"phase":  entry.Phase,
		}
		if entry.Err != "" {
			m["error"] = entry.Err
		}
		trace = append(trace, m)
	}

	totals := r.Session.Totals()
	final := map[string]any{
		"phase":        r.Session.Phase().String(),
		"points_team1": totals.PointsA,
		"points_team2": totals.PointsB,
		"goals_team1":  totals.GoalsA,
		"goals_team2":  totals.GoalsB,
		"tie":          totals.Tie,
		"submitted":    r.Session.Submitted(),
	}
	if shootout, ok := r.Session.Shootout(); ok {
		final["shootout"] = map[string]any{
			"score_team1": shootout.ScoreA,
			"score_team2": shootout.ScoreB,
			"winner":      shootout.Winner.String(),
		}
	}

	return match.MarshalCanonical(map[string]any{
		"scenario": r.Scenario.Name,
		"trace":    trace,
		"final":    final,
	})
}

// RunGolden executes the scenario at path and compares its trace against
// testdata/golden/<name>.golden. Regenerate with go test -update.
func RunGolden(t *testing.T, scenarioPath string) {
	t.Helper()

	scenario, err := LoadScenario(scenarioPath)
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), scenario.Name+".db")
	result, err := Run(context.Background(), scenario, dbPath)
	require.NoError(t, err)

	data, err := TraceJSON(result)
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir(filepath.Join("testdata", "golden")))
	g.Assert(t, scenario.Name, data)
}
