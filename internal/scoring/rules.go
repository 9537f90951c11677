// Package scoring derives quarter points and match totals from goal tallies.
//
// Points are never user input: every value here is a pure function of the
// goal counts and the active rule set, recomputed after each ledger
// mutation.
package scoring

import (
	"fmt"

	"github.com/clubkeeper/quarterbook/internal/match"
)

// RuleSet defines how a competition converts quarter goal tallies into
// points. The standard club rules weight the final quarter double.
type RuleSet struct {
	// Quarters is the number of quarters in a match.
	Quarters int

	// RegularWinPoints is awarded to the strict winner of quarters
	// 1..Quarters-1.
	RegularWinPoints int

	// FinalWinPoints is awarded to the strict winner of the last quarter.
	FinalWinPoints int

	// DrawPoints is awarded to both sides on a drawn quarter.
	DrawPoints int
}

// DefaultRuleSet returns the standard four-quarter club rules:
// 1 point for winning quarters 1-3, 2 points for winning quarter 4,
// nothing on a draw.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Quarters:         4,
		RegularWinPoints: 1,
		FinalWinPoints:   2,
		DrawPoints:       0,
	}
}

// Validate checks structural constraints on the rule set.
func (rs RuleSet) Validate() error {
	if rs.Quarters < 1 || rs.Quarters > 8 {
		return fmt.Errorf("quarters must be between 1 and 8, got %d", rs.Quarters)
	}
	if rs.RegularWinPoints < 0 {
		return fmt.Errorf("regular win points must be non-negative, got %d", rs.RegularWinPoints)
	}
	if rs.FinalWinPoints < rs.RegularWinPoints {
		return fmt.Errorf("final win points (%d) must be at least regular win points (%d)",
			rs.FinalWinPoints, rs.RegularWinPoints)
	}
	if rs.DrawPoints < 0 {
		return fmt.Errorf("draw points must be non-negative, got %d", rs.DrawPoints)
	}
	return nil
}

// PointsFor maps a quarter's goal tally to points for each side.
// Deterministic and side-effect free; called after every mutation that
// touches the quarter's goals.
func (rs RuleSet) PointsFor(quarterIndex, goalsA, goalsB int) (pointsA, pointsB int) {
	win := rs.RegularWinPoints
	if quarterIndex == rs.Quarters {
		win = rs.FinalWinPoints
	}

	switch {
	case goalsA > goalsB:
		return win, 0
	case goalsB > goalsA:
		return 0, win
	default:
		return rs.DrawPoints, rs.DrawPoints
	}
}

// Rescore recomputes a quarter's points in place from its goal tally.
func (rs RuleSet) Rescore(q *match.Quarter) {
	q.PointsA, q.PointsB = rs.PointsFor(q.Index, q.GoalsA, q.GoalsB)
}
