package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubkeeper/quarterbook/internal/match"
)

func goalEvent(id string, quarter, minute int, side match.Side) match.Event {
	return match.Event{
		ID:           id,
		QuarterIndex: quarter,
		Type:         match.EventGoal,
		Minute:       minute,
		Side:         side,
		Primary:      match.PlayerID("player-" + id),
	}
}

func TestAppendKeepsMinuteOrder(t *testing.T) {
	l := New(4)

	require.NoError(t, l.Append(goalEvent("a", 1, 30, match.SideA)))
	require.NoError(t, l.Append(goalEvent("b", 1, 10, match.SideA)))
	require.NoError(t, l.Append(goalEvent("c", 1, 20, match.SideB)))

	events := l.Events(1)
	require.Len(t, events, 3)
	assert.Equal(t, "b", events[0].ID)
	assert.Equal(t, "c", events[1].ID)
	assert.Equal(t, "a", events[2].ID)
}

func TestAppendStableOnEqualMinutes(t *testing.T) {
	// Events at the same minute keep insertion order.
	l := New(4)

	require.NoError(t, l.Append(goalEvent("first", 2, 15, match.SideA)))
	require.NoError(t, l.Append(goalEvent("second", 2, 15, match.SideB)))
	require.NoError(t, l.Append(goalEvent("third", 2, 15, match.SideA)))

	events := l.Events(2)
	require.Len(t, events, 3)
	assert.Equal(t, "first", events[0].ID)
	assert.Equal(t, "second", events[1].ID)
	assert.Equal(t, "third", events[2].ID)
}

func TestValidateFieldNames(t *testing.T) {
	valid := goalEvent("ok", 1, 10, match.SideA)

	tests := []struct {
		name      string
		mutate    func(*match.Event)
		wantField string
	}{
		{name: "quarter zero", mutate: func(e *match.Event) { e.QuarterIndex = 0 }, wantField: "quarterNumber"},
		{name: "quarter out of range", mutate: func(e *match.Event) { e.QuarterIndex = 5 }, wantField: "quarterNumber"},
		{name: "unknown type", mutate: func(e *match.Event) { e.Type = "corner" }, wantField: "eventType"},
		{name: "negative minute", mutate: func(e *match.Event) { e.Minute = -1 }, wantField: "minute"},
		{name: "missing side", mutate: func(e *match.Event) { e.Side = 0 }, wantField: "teamId"},
		{name: "missing player", mutate: func(e *match.Event) { e.Primary = "" }, wantField: "userId"},
		{name: "substitution without replacement", mutate: func(e *match.Event) {
			e.Type = match.EventSubstitution
			e.Secondary = ""
		}, wantField: "assistUserId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := Validate(e, 4)
			require.Error(t, err)

			var ve *match.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestAppendRejectsInvalidEvent(t *testing.T) {
	l := New(4)
	e := goalEvent("bad", 1, 10, match.SideA)
	e.Minute = -5

	require.Error(t, l.Append(e))
	assert.Zero(t, l.Len(1))
}

func TestMinuteZeroIsValid(t *testing.T) {
	l := New(4)
	require.NoError(t, l.Append(goalEvent("kickoff", 1, 0, match.SideA)))
}

func TestRemove(t *testing.T) {
	l := New(4)
	require.NoError(t, l.Append(goalEvent("a", 1, 10, match.SideA)))
	require.NoError(t, l.Append(goalEvent("b", 1, 20, match.SideB)))

	removed, err := l.Remove("a")
	require.NoError(t, err)
	assert.Equal(t, "a", removed.ID)
	assert.Equal(t, 1, l.Len(1))

	_, err = l.Remove("a")
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestReplaceNeverDuplicates(t *testing.T) {
	l := New(4)
	require.NoError(t, l.Append(goalEvent("old", 1, 10, match.SideA)))

	// Valid replace: old gone, new present, count unchanged.
	require.NoError(t, l.Replace("old", goalEvent("new", 1, 12, match.SideA)))
	assert.Equal(t, 1, l.Len(1))
	_, found := l.Find("old")
	assert.False(t, found)
	_, found = l.Find("new")
	assert.True(t, found)

	// Invalid replacement leaves the ledger untouched.
	bad := goalEvent("worse", 1, 12, match.SideA)
	bad.Primary = ""
	require.Error(t, l.Replace("new", bad))
	assert.Equal(t, 1, l.Len(1))
	_, found = l.Find("new")
	assert.True(t, found)
}

func TestReplaceUnknownID(t *testing.T) {
	l := New(4)
	err := l.Replace("ghost", goalEvent("new", 1, 10, match.SideA))
	require.ErrorIs(t, err, ErrEventNotFound)
	assert.Zero(t, l.Len(1))
}

func TestRebind(t *testing.T) {
	l := New(4)
	require.NoError(t, l.Append(goalEvent("tok-1", 3, 35, match.SideB)))
	require.NoError(t, l.Append(goalEvent("tok-2", 3, 40, match.SideA)))

	require.NoError(t, l.Rebind("tok-1", "evt-9"))

	events := l.Events(3)
	assert.Equal(t, "evt-9", events[0].ID)
	assert.True(t, events[0].Persisted)
	assert.Equal(t, "tok-2", events[1].ID)
	assert.False(t, events[1].Persisted)

	require.ErrorIs(t, l.Rebind("tok-1", "evt-10"), ErrEventNotFound)
}

func TestTallyCountsGoalsPerBenefitingSide(t *testing.T) {
	l := New(4)
	require.NoError(t, l.Append(goalEvent("g1", 1, 5, match.SideA)))
	require.NoError(t, l.Append(goalEvent("g2", 1, 9, match.SideB)))

	// An own goal carries the side it counts FOR.
	ownGoal := goalEvent("og", 1, 12, match.SideA)
	ownGoal.OwnGoal = true
	require.NoError(t, l.Append(ownGoal))

	// Non-goal events never move the tally.
	save := goalEvent("s1", 1, 15, match.SideB)
	save.Type = match.EventSave
	require.NoError(t, l.Append(save))

	goalsA, goalsB := l.Tally(1)
	assert.Equal(t, 2, goalsA)
	assert.Equal(t, 1, goalsB)
}

func TestTallyIdempotent(t *testing.T) {
	l := New(4)
	require.NoError(t, l.Append(goalEvent("g1", 2, 20, match.SideA)))

	a1, b1 := l.Tally(2)
	a2, b2 := l.Tally(2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}

func TestPending(t *testing.T) {
	l := New(4)
	require.NoError(t, l.Append(goalEvent("tok-1", 1, 5, match.SideA)))

	persisted := goalEvent("evt-1", 1, 9, match.SideB)
	persisted.Persisted = true
	require.NoError(t, l.Append(persisted))

	pending := l.Pending(1)
	require.Len(t, pending, 1)
	assert.Equal(t, "tok-1", pending[0].ID)
}

func TestQuartersIsolated(t *testing.T) {
	l := New(4)
	require.NoError(t, l.Append(goalEvent("a", 1, 10, match.SideA)))
	require.NoError(t, l.Append(goalEvent("b", 2, 10, match.SideA)))

	assert.Equal(t, 1, l.Len(1))
	assert.Equal(t, 1, l.Len(2))

	goalsA, _ := l.Tally(1)
	assert.Equal(t, 1, goalsA)
}
