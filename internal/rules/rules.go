// Package rules loads competition rule sets from CUE definitions.
//
// Rule sets are configuration, not code: clubs tweak point weights per
// season without touching the engine. The embedded default reproduces the
// standard four-quarter rules with a double-weighted final quarter.
package rules

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/clubkeeper/quarterbook/internal/scoring"
)

//go:embed default.cue
var defaultCUE []byte

// CompileError reports a problem in a rule-set definition, with the CUE
// source position when available.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the embedded standard rule set.
// Panics if the embedded definition is invalid - that is a build defect,
// not a runtime condition.
func Default() scoring.RuleSet {
	rs, err := compileBytes("default.cue", defaultCUE)
	if err != nil {
		panic(fmt.Sprintf("embedded default rule set invalid: %v", err))
	}
	return rs
}

// Load reads and compiles a rule-set definition from a CUE file.
func Load(path string) (scoring.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scoring.RuleSet{}, fmt.Errorf("load rule set: %w", err)
	}
	return compileBytes(path, data)
}

func compileBytes(filename string, data []byte) (scoring.RuleSet, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return scoring.RuleSet{}, formatCUEError(err)
	}
	return Compile(v.LookupPath(cue.ParsePath("rules")))
}

// Compile parses a CUE value into a validated rule set.
// The value should be the rules struct itself:
//
//	rules: {
//		quarters:           4
//		regular_win_points: 1
//		final_win_points:   2
//		draw_points:        0
//	}
func Compile(v cue.Value) (scoring.RuleSet, error) {
	if !v.Exists() {
		return scoring.RuleSet{}, &CompileError{
			Field:   "rules",
			Message: "rules struct is required",
		}
	}
	if err := v.Err(); err != nil {
		return scoring.RuleSet{}, formatCUEError(err)
	}

	var rs scoring.RuleSet
	fields := []struct {
		name string
		dst  *int
	}{
		{"quarters", &rs.Quarters},
		{"regular_win_points", &rs.RegularWinPoints},
		{"final_win_points", &rs.FinalWinPoints},
		{"draw_points", &rs.DrawPoints},
	}
	for _, f := range fields {
		fv := v.LookupPath(cue.ParsePath(f.name))
		if !fv.Exists() {
			return scoring.RuleSet{}, &CompileError{
				Field:   f.name,
				Message: "field is required",
				Pos:     v.Pos(),
			}
		}
		n, err := fv.Int64()
		if err != nil {
			return scoring.RuleSet{}, &CompileError{
				Field:   f.name,
				Message: "must be an integer",
				Pos:     fv.Pos(),
			}
		}
		*f.dst = int(n)
	}

	if err := rs.Validate(); err != nil {
		return scoring.RuleSet{}, &CompileError{
			Field:   "rules",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return rs, nil
}

// formatCUEError converts a CUE error into a CompileError with position.
func formatCUEError(err error) error {
	var pos token.Pos
	if cueErrs := cueerrors.Errors(err); len(cueErrs) > 0 {
		pos = cueErrs[0].Position()
	}
	return &CompileError{
		Field:   "rules",
		Message: cueerrors.Details(err, nil),
		Pos:     pos,
	}
}
