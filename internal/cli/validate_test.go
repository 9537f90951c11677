package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.cue")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateValidRules(t *testing.T) {
	path := writeRules(t, `
rules: {
	quarters:           4
	regular_win_points: 1
	final_win_points:   2
	draw_points:        0
}
`)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Rule set valid")
	assert.Contains(t, out, "4 quarters")
}

func TestValidateValidRulesJSON(t *testing.T) {
	path := writeRules(t, `
rules: {
	quarters:           2
	regular_win_points: 3
	final_win_points:   5
	draw_points:        1
}
`)

	out, err := execute(t, "--format", "json", "validate", path)
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestValidateMissingField(t *testing.T) {
	path := writeRules(t, `
rules: {
	quarters:           4
	regular_win_points: 1
	final_win_points:   2
}
`)

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "draw_points")
	assert.Contains(t, out, "field is required")
}

func TestValidateNonIntegerField(t *testing.T) {
	path := writeRules(t, `
rules: {
	quarters:           4
	regular_win_points: "one"
	final_win_points:   2
	draw_points:        0
}
`)

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "regular_win_points")
}

func TestValidateStructuralViolation(t *testing.T) {
	// Final win below regular win breaks the rule-set invariant.
	path := writeRules(t, `
rules: {
	quarters:           4
	regular_win_points: 2
	final_win_points:   1
	draw_points:        0
}
`)

	_, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidateMissingFile(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
