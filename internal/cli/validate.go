package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clubkeeper/quarterbook/internal/rules"
)

// RuleError is one rule-set validation failure.
type RuleError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds rule-set validation results.
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Errors []RuleError  `json:"errors,omitempty"`
	Rules  *RuleSummary `json:"rules,omitempty"`
}

// RuleSummary echoes the compiled rule set on success.
type RuleSummary struct {
	Quarters         int `json:"quarters"`
	RegularWinPoints int `json:"regular_win_points"`
	FinalWinPoints   int `json:"final_win_points"`
	DrawPoints       int `json:"draw_points"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules.cue>",
		Short: "Validate a CUE scoring rule set",
		Long: `Compile and validate a CUE scoring rule set without running a
session against it.

Checks field types, the 1-8 quarter range, non-negative point values, and
that the final-quarter win is worth at least a regular win.

Examples:
  quarterbook validate rules/club.cue
  quarterbook validate rules/club.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateRules(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidateRules(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	formatter.VerboseLog("Compiling rule set %s", path)

	ruleSet, err := rules.Load(path)
	if err != nil {
		return outputRuleErrors(formatter, err)
	}

	summary := &RuleSummary{
		Quarters:         ruleSet.Quarters,
		RegularWinPoints: ruleSet.RegularWinPoints,
		FinalWinPoints:   ruleSet.FinalWinPoints,
		DrawPoints:       ruleSet.DrawPoints,
	}
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Rules: summary})
	}
	fmt.Fprintf(formatter.Writer, "✓ Rule set valid: %d quarters, %d/%d/%d points (regular/final/draw)\n",
		summary.Quarters, summary.RegularWinPoints, summary.FinalWinPoints, summary.DrawPoints)
	return nil
}

// outputRuleErrors renders a failed compilation. Compile errors are domain
// failures (exit 1); anything else is a command error (exit 2).
func outputRuleErrors(formatter *OutputFormatter, err error) error {
	var compileErr *rules.CompileError
	if !errors.As(err, &compileErr) {
		_ = formatter.Error(ErrCodeRules, "failed to load rules", err.Error())
		return WrapExitError(ExitCommandError, "failed to load rules", err)
	}

	ruleErr := RuleError{Field: compileErr.Field, Message: compileErr.Message}
	if compileErr.Pos.IsValid() {
		ruleErr.Line = compileErr.Pos.Line()
	}

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: []RuleError{ruleErr}},
			Error:  &CLIError{Code: ErrCodeRules, Message: compileErr.Message},
		}
		enc := json.NewEncoder(formatter.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "rule set invalid")
	}

	fmt.Fprintln(formatter.Writer, "✗ Rule set invalid")
	if ruleErr.Line > 0 {
		fmt.Fprintf(formatter.Writer, "  line %d\n", ruleErr.Line)
	}
	fmt.Fprintf(formatter.Writer, "  %s: %s\n", ruleErr.Field, ruleErr.Message)
	return NewExitError(ExitFailure, "rule set invalid")
}
