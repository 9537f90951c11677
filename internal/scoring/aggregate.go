package scoring

import "github.com/clubkeeper/quarterbook/internal/match"

// Totals is the match-level aggregate of quarter points and goals.
//
// Tie is meaningful only when Decided is true (all quarters completed);
// the sequencer must not act on Tie while Decided is false.
type Totals struct {
	PointsA int
	PointsB int
	GoalsA  int
	GoalsB  int

	// Decided is true once every quarter is marked completed.
	Decided bool

	// Tie is true when Decided and the point totals are equal.
	Tie bool
}

// Aggregate sums quarter points and goals into match totals and evaluates
// the tie condition. Quarter points are recomputed from the rule set rather
// than trusted from the input, so a stale Quarter value cannot skew totals.
func Aggregate(rs RuleSet, quarters []match.Quarter) Totals {
	var t Totals
	t.Decided = len(quarters) > 0

	for _, q := range quarters {
		pa, pb := rs.PointsFor(q.Index, q.GoalsA, q.GoalsB)
		t.PointsA += pa
		t.PointsB += pb
		t.GoalsA += q.GoalsA
		t.GoalsB += q.GoalsB
		if !q.Completed {
			t.Decided = false
		}
	}

	t.Tie = t.Decided && t.PointsA == t.PointsB
	return t
}

// Leader returns the side with more points, or zero on a tie or while the
// match is undecided.
func (t Totals) Leader() match.Side {
	if !t.Decided {
		return 0
	}
	switch {
	case t.PointsA > t.PointsB:
		return match.SideA
	case t.PointsB > t.PointsA:
		return match.SideB
	default:
		return 0
	}
}
