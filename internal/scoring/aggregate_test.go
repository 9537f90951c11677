package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clubkeeper/quarterbook/internal/match"
)

func quartersFromTallies(tallies [][2]int, completed bool) []match.Quarter {
	quarters := make([]match.Quarter, len(tallies))
	for i, tally := range tallies {
		quarters[i] = match.Quarter{
			Index:     i + 1,
			GoalsA:    tally[0],
			GoalsB:    tally[1],
			Completed: completed,
		}
	}
	return quarters
}

func TestAggregateRegulationWinner(t *testing.T) {
	// Quarter tallies 2-1, 0-0, 1-1, 1-2: one point for the quarter 1 win,
	// two for the final quarter win, draws score nothing.
	rs := DefaultRuleSet()
	quarters := quartersFromTallies([][2]int{{2, 1}, {0, 0}, {1, 1}, {1, 2}}, true)

	totals := Aggregate(rs, quarters)
	assert.Equal(t, 1, totals.PointsA)
	assert.Equal(t, 2, totals.PointsB)
	assert.Equal(t, 4, totals.GoalsA)
	assert.Equal(t, 4, totals.GoalsB)
	assert.True(t, totals.Decided)
	assert.False(t, totals.Tie)
	assert.Equal(t, match.SideB, totals.Leader())
}

func TestAggregateTiedPoints(t *testing.T) {
	// 1-0, 0-1, 1-1, 0-0 gives one point each.
	rs := DefaultRuleSet()
	quarters := quartersFromTallies([][2]int{{1, 0}, {0, 1}, {1, 1}, {0, 0}}, true)

	totals := Aggregate(rs, quarters)
	assert.Equal(t, 1, totals.PointsA)
	assert.Equal(t, 1, totals.PointsB)
	assert.True(t, totals.Decided)
	assert.True(t, totals.Tie)
	assert.Equal(t, match.Side(0), totals.Leader())
}

func TestAggregateEqualGoalsUnequalPoints(t *testing.T) {
	// Equal goal totals do not imply a tie; only points decide.
	rs := DefaultRuleSet()
	quarters := quartersFromTallies([][2]int{{3, 0}, {0, 1}, {0, 1}, {0, 1}}, true)

	totals := Aggregate(rs, quarters)
	assert.Equal(t, totals.GoalsA, totals.GoalsB)
	assert.Equal(t, 1, totals.PointsA)
	assert.Equal(t, 4, totals.PointsB)
	assert.False(t, totals.Tie)
}

func TestAggregateUndecidedWhileQuartersOpen(t *testing.T) {
	rs := DefaultRuleSet()
	quarters := quartersFromTallies([][2]int{{1, 1}, {0, 0}, {0, 0}, {0, 0}}, true)
	quarters[3].Completed = false

	totals := Aggregate(rs, quarters)
	assert.False(t, totals.Decided)
	// Equal points, but Tie must stay false until all quarters complete.
	assert.Equal(t, totals.PointsA, totals.PointsB)
	assert.False(t, totals.Tie)
	assert.Equal(t, match.Side(0), totals.Leader())
}

func TestAggregateRecomputesStalePoints(t *testing.T) {
	// Pre-filled point fields on the input are ignored.
	rs := DefaultRuleSet()
	quarters := quartersFromTallies([][2]int{{1, 0}, {0, 0}, {0, 0}, {0, 0}}, true)
	quarters[0].PointsA = 99

	totals := Aggregate(rs, quarters)
	assert.Equal(t, 1, totals.PointsA)
	assert.Equal(t, 0, totals.PointsB)
}

func TestAggregateEmpty(t *testing.T) {
	totals := Aggregate(DefaultRuleSet(), nil)
	assert.False(t, totals.Decided)
	assert.False(t, totals.Tie)
	assert.Zero(t, totals.PointsA)
	assert.Zero(t, totals.PointsB)
}
