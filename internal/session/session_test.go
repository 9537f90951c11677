package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubkeeper/quarterbook/internal/match"
	"github.com/clubkeeper/quarterbook/internal/scoring"
	"github.com/clubkeeper/quarterbook/internal/testutil"
)

// fakeRecorder is an in-memory recording backend. It assigns sequential
// server ids, echoes client tokens, and can be told to fail calls.
type fakeRecorder struct {
	nextID int
	events map[int][]PersistedEvent

	failSaves        int // fail the next N SaveQuarter calls
	failParticipants bool
	failSupplement   bool
	dropTokenEcho    bool

	saveRequests []SaveQuarterRequest
	participants *ParticipantsRequest
	supplements  []SupplementRequest

	detail     QuarterDetail
	saved      ParticipantsResult
	selectable map[string]SelectablePlayers
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{events: make(map[int][]PersistedEvent)}
}

func (f *fakeRecorder) SaveQuarter(ctx context.Context, matchID string, req SaveQuarterRequest) (SaveQuarterResult, error) {
	if f.failSaves > 0 {
		f.failSaves--
		return SaveQuarterResult{}, errors.New("backend unavailable")
	}
	f.saveRequests = append(f.saveRequests, req)

	for _, payload := range req.Events {
		f.nextID++
		pe := PersistedEvent{
			ID:            fmt.Sprintf("evt-%d", f.nextID),
			QuarterNumber: req.QuarterNumber,
			EventPayload:  payload,
		}
		if f.dropTokenEcho {
			pe.ClientToken = ""
		}
		f.events[req.QuarterNumber] = append(f.events[req.QuarterNumber], pe)
	}

	if req.Mode == SaveModeAuto {
		for _, id := range req.DeleteEventIDs {
			kept := f.events[req.QuarterNumber][:0]
			for _, pe := range f.events[req.QuarterNumber] {
				if pe.ID != id {
					kept = append(kept, pe)
				}
			}
			f.events[req.QuarterNumber] = kept
		}
	}

	result := SaveQuarterResult{Events: make([]PersistedEvent, len(f.events[req.QuarterNumber]))}
	copy(result.Events, f.events[req.QuarterNumber])
	return result, nil
}

func (f *fakeRecorder) GetQuarterDetail(ctx context.Context, matchID string) (QuarterDetail, error) {
	return f.detail, nil
}

func (f *fakeRecorder) SetParticipants(ctx context.Context, matchID string, req ParticipantsRequest) error {
	if f.failParticipants {
		return errors.New("backend unavailable")
	}
	f.participants = &req
	return nil
}

func (f *fakeRecorder) GetParticipants(ctx context.Context, matchID string) (ParticipantsResult, error) {
	return f.saved, nil
}

func (f *fakeRecorder) SupplementResult(ctx context.Context, matchID string, req SupplementRequest) error {
	if f.failSupplement {
		return errors.New("backend unavailable")
	}
	f.supplements = append(f.supplements, req)
	return nil
}

func (f *fakeRecorder) GetSelectablePlayers(ctx context.Context, matchID, teamID string) (SelectablePlayers, error) {
	return f.selectable[teamID], nil
}

func testConfig(rec Recorder) Config {
	return Config{
		MatchID:  "m-1",
		TeamAID:  "t-home",
		TeamBID:  "t-away",
		Rules:    scoring.DefaultRuleSet(),
		Recorder: rec,
		Tokens:   &testutil.SequenceGenerator{},
		Logger:   testutil.SilentLogger(),
	}
}

func newTestSession(t *testing.T, rec Recorder) *Session {
	t.Helper()
	s, err := New(testConfig(rec))
	require.NoError(t, err)
	return s
}

func goal(quarter, minute int, side match.Side, player string) match.Event {
	return match.Event{
		QuarterIndex: quarter,
		Type:         match.EventGoal,
		Minute:       minute,
		Side:         side,
		Primary:      match.PlayerID(player),
	}
}

// advanceThroughQuarters drives a fresh session from basics through all
// four quarters, recording the given tallies and confirming scoreless
// quarters along the way.
func advanceThroughQuarters(t *testing.T, s *Session, tallies [][2]int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Advance(ctx)) // basics -> quarter1

	for q, tally := range tallies {
		quarter := q + 1
		minute := quarter * 10
		for i := 0; i < tally[0]; i++ {
			require.NoError(t, s.RecordEvent(ctx, goal(quarter, minute+i, match.SideA, "alice")))
		}
		for i := 0; i < tally[1]; i++ {
			require.NoError(t, s.RecordEvent(ctx, goal(quarter, minute+5+i, match.SideB, "noah")))
		}
		if tally[0] == 0 && tally[1] == 0 {
			s.ConfirmScoreless(quarter)
		}
		require.NoError(t, s.Advance(ctx))
	}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{MatchID: "m-1"})
	require.Error(t, err)

	cfg := testConfig(newFakeRecorder())
	cfg.Rules.Quarters = 0
	_, err = New(cfg)
	require.Error(t, err)
}

func TestNewStartsAtBasics(t *testing.T) {
	s := newTestSession(t, newFakeRecorder())
	assert.Equal(t, PhaseBasics, s.Phase())
	assert.Len(t, s.Phases(), 7)
	_, present := s.Shootout()
	assert.False(t, present)
}

func TestRecordEventDerivesScores(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Advance(ctx))

	require.NoError(t, s.RecordEvent(ctx, goal(1, 5, match.SideA, "alice")))
	require.NoError(t, s.RecordEvent(ctx, goal(1, 9, match.SideB, "noah")))
	require.NoError(t, s.RecordEvent(ctx, goal(1, 30, match.SideA, "bob")))

	q, err := s.Quarter(1)
	require.NoError(t, err)
	assert.Equal(t, 2, q.GoalsA)
	assert.Equal(t, 1, q.GoalsB)
	assert.Equal(t, 1, q.PointsA)
	assert.Equal(t, 0, q.PointsB)

	// Each event was eagerly saved in append mode and reconciled.
	events := s.Events(1)
	require.Len(t, events, 3)
	for _, e := range events {
		assert.True(t, e.Persisted, e.ID)
		assert.Contains(t, e.ID, "evt-")
	}
	for _, req := range rec.saveRequests {
		assert.Equal(t, SaveModeAppend, req.Mode)
	}
}

func TestRecordEventOwnGoalCreditsBenefitingSide(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Advance(ctx))

	ownGoal := goal(1, 12, match.SideA, "noah")
	ownGoal.OwnGoal = true
	require.NoError(t, s.RecordEvent(ctx, ownGoal))

	q, err := s.Quarter(1)
	require.NoError(t, err)
	assert.Equal(t, 1, q.GoalsA)
	assert.Equal(t, 0, q.GoalsB)

	// The wire payload carries the own-goal subtype.
	require.Len(t, rec.saveRequests, 1)
	require.Len(t, rec.saveRequests[0].Events, 1)
	assert.Equal(t, "own_goal", rec.saveRequests[0].Events[0].EventSubtype)
	assert.Equal(t, "t-home", rec.saveRequests[0].Events[0].TeamID)
}

func TestRecordEventValidation(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Advance(ctx))

	bad := goal(1, 10, match.SideA, "alice")
	bad.Minute = -1
	err := s.RecordEvent(ctx, bad)
	require.Error(t, err)
	assert.True(t, match.IsValidationError(err))
	assert.Empty(t, rec.saveRequests)
	assert.Zero(t, len(s.Events(1)))
}

func TestRecordEventRejectedOnCompletedQuarter(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newFakeRecorder())
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordEvent(ctx, goal(1, 5, match.SideA, "alice")))
	require.NoError(t, s.Advance(ctx)) // closes quarter 1

	err := s.RecordEvent(ctx, goal(1, 11, match.SideA, "bob"))
	require.Error(t, err)
	assert.True(t, match.IsValidationError(err))
}

func TestScorelessQuarterGate(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newFakeRecorder())
	require.NoError(t, s.Advance(ctx))

	err := s.Advance(ctx)
	require.Error(t, err)
	assert.True(t, IsScorelessError(err))
	assert.Equal(t, PhaseQuarter1, s.Phase())

	s.ConfirmScoreless(1)
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, PhaseQuarter2, s.Phase())
}

func TestEagerSaveFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Advance(ctx))

	rec.failSaves = 1
	err := s.RecordEvent(ctx, goal(1, 5, match.SideA, "alice"))
	require.Error(t, err)
	assert.True(t, IsPersistenceError(err))

	// The event stays in the ledger, unpersisted, still counted.
	events := s.Events(1)
	require.Len(t, events, 1)
	assert.False(t, events[0].Persisted)
	q, _ := s.Quarter(1)
	assert.Equal(t, 1, q.GoalsA)

	// It rides along with the quarter advance.
	require.NoError(t, s.Advance(ctx))
	events = s.Events(1)
	require.Len(t, events, 1)
	assert.True(t, events[0].Persisted)
}

func TestAdvancePersistFailureKeepsPhase(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordEvent(ctx, goal(1, 5, match.SideA, "alice")))

	rec.failSaves = 1
	err := s.Advance(ctx)
	require.Error(t, err)
	assert.True(t, IsPersistenceError(err))
	assert.Equal(t, PhaseQuarter1, s.Phase())
	q, _ := s.Quarter(1)
	assert.False(t, q.Completed)

	// Retrying the same advance succeeds.
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, PhaseQuarter2, s.Phase())
	q, _ = s.Quarter(1)
	assert.True(t, q.Completed)
}

func TestTieInsertsShootoutPhase(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newFakeRecorder())
	advanceThroughQuarters(t, s, [][2]int{{1, 0}, {0, 1}, {0, 0}, {1, 1}})

	assert.Equal(t, PhaseShootout, s.Phase())
	assert.Len(t, s.Phases(), 8)

	totals := s.Totals()
	assert.True(t, totals.Tie)
	assert.Equal(t, 1, totals.PointsA)
	assert.Equal(t, 1, totals.PointsB)

	// Undecided shootout blocks the advance.
	err := s.Advance(ctx)
	require.Error(t, err)
	assert.True(t, match.IsValidationError(err))

	require.Error(t, s.SetShootoutScore(-1, 2))
	require.NoError(t, s.SetShootoutScore(4, 3))

	shootout, present := s.Shootout()
	require.True(t, present)
	assert.True(t, shootout.Enabled)
	assert.Equal(t, match.SideA, shootout.Winner)

	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, PhaseAttendance, s.Phase())
}

func TestNoTieNoShootoutPhase(t *testing.T) {
	s := newTestSession(t, newFakeRecorder())
	advanceThroughQuarters(t, s, [][2]int{{2, 1}, {0, 0}, {1, 1}, {1, 2}})

	assert.Equal(t, PhaseAttendance, s.Phase())
	assert.Len(t, s.Phases(), 7)
	_, present := s.Shootout()
	assert.False(t, present)
}

func TestSetShootoutScoreWithoutTiePhase(t *testing.T) {
	s := newTestSession(t, newFakeRecorder())
	err := s.SetShootoutScore(3, 2)
	require.Error(t, err)
	assert.True(t, match.IsValidationError(err))
}

func TestShootoutAdvancePersistsPenaltyDataEarly(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	s := newTestSession(t, rec)
	advanceThroughQuarters(t, s, [][2]int{{1, 0}, {0, 1}, {0, 0}, {0, 0}})
	require.Equal(t, PhaseShootout, s.Phase())

	require.NoError(t, s.SetShootoutScore(2, 4))
	require.NoError(t, s.Advance(ctx))

	require.Len(t, rec.supplements, 1)
	supplement := rec.supplements[0]
	assert.Nil(t, supplement.MVPUserIDs)
	require.NotNil(t, supplement.PenaltyShootout)
	assert.Equal(t, 2, supplement.PenaltyShootout.Team1PenaltyScore)
	assert.Equal(t, 4, supplement.PenaltyShootout.Team2PenaltyScore)
	assert.Equal(t, "t-away", supplement.PenaltyShootout.PenaltyWinnerTeamID)
}

func TestTieDissolvedByRemoval(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newFakeRecorder())
	advanceThroughQuarters(t, s, [][2]int{{1, 0}, {0, 1}, {0, 0}, {1, 1}})
	require.Equal(t, PhaseShootout, s.Phase())

	// Back into quarter 4, drop the equalizer, re-advance.
	require.NoError(t, s.Retreat())
	require.Equal(t, PhaseQuarter4, s.Phase())

	var equalizer string
	for _, e := range s.Events(4) {
		if e.Side == match.SideB {
			equalizer = e.ID
		}
	}
	require.NotEmpty(t, equalizer)
	require.NoError(t, s.RemoveEvent(ctx, equalizer))

	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, PhaseAttendance, s.Phase())
	assert.Len(t, s.Phases(), 7)
	_, present := s.Shootout()
	assert.False(t, present)

	totals := s.Totals()
	assert.Equal(t, 3, totals.PointsA)
	assert.Equal(t, 1, totals.PointsB)
}

func TestRemoveEventQueuesServerRetraction(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordEvent(ctx, goal(1, 5, match.SideA, "alice")))
	require.NoError(t, s.RecordEvent(ctx, goal(1, 9, match.SideA, "bob")))

	serverID := s.Events(1)[0].ID
	require.NoError(t, s.RemoveEvent(ctx, serverID))

	q, _ := s.Quarter(1)
	assert.Equal(t, 1, q.GoalsA)

	require.NoError(t, s.Advance(ctx))

	closing := rec.saveRequests[len(rec.saveRequests)-1]
	assert.Equal(t, SaveModeAuto, closing.Mode)
	assert.Equal(t, []string{serverID}, closing.DeleteEventIDs)
	assert.True(t, closing.IsCompleted)
	require.Len(t, rec.events[1], 1)
}

func TestRemoveUnpersistedEventSkipsRetraction(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Advance(ctx))

	rec.failSaves = 1
	_ = s.RecordEvent(ctx, goal(1, 5, match.SideA, "alice"))
	localID := s.Events(1)[0].ID

	require.NoError(t, s.RemoveEvent(ctx, localID))
	s.ConfirmScoreless(1)
	require.NoError(t, s.Advance(ctx))

	closing := rec.saveRequests[len(rec.saveRequests)-1]
	assert.Empty(t, closing.DeleteEventIDs)
}

func TestReplaceEventNeverDuplicates(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	s := newTestSession(t, rec)
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordEvent(ctx, goal(1, 5, match.SideA, "alice")))

	oldID := s.Events(1)[0].ID
	require.NoError(t, s.ReplaceEvent(ctx, oldID, goal(1, 7, match.SideA, "alice")))

	events := s.Events(1)
	require.Len(t, events, 1)
	assert.Equal(t, 7, events[0].Minute)
	assert.NotEqual(t, oldID, events[0].ID)

	// The old server id is retracted with the closing save.
	require.NoError(t, s.Advance(ctx))
	closing := rec.saveRequests[len(rec.saveRequests)-1]
	assert.Equal(t, []string{oldID}, closing.DeleteEventIDs)
}

func TestReplaceEventValidatesBeforeRemoving(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newFakeRecorder())
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordEvent(ctx, goal(1, 5, match.SideA, "alice")))

	oldID := s.Events(1)[0].ID
	bad := goal(1, 7, match.SideA, "")
	require.Error(t, s.ReplaceEvent(ctx, oldID, bad))

	events := s.Events(1)
	require.Len(t, events, 1)
	assert.Equal(t, oldID, events[0].ID)
}

func TestAttendanceRequiresParticipants(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newFakeRecorder())
	advanceThroughQuarters(t, s, [][2]int{{2, 1}, {0, 0}, {1, 1}, {1, 2}})
	require.Equal(t, PhaseAttendance, s.Phase())

	err := s.Advance(ctx)
	require.Error(t, err)
	assert.True(t, match.IsValidationError(err))

	require.NoError(t, s.SetParticipants(Participants{
		SideA: []match.PlayerID{"alice"},
		SideB: []match.PlayerID{"noah"},
	}))
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, PhaseMVP, s.Phase())
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	s := newTestSession(t, rec)
	advanceThroughQuarters(t, s, [][2]int{{2, 1}, {0, 0}, {1, 1}, {1, 2}})

	require.NoError(t, s.SetParticipants(Participants{
		SideA: []match.PlayerID{"alice"},
		SideB: []match.PlayerID{"noah"},
	}))
	require.NoError(t, s.Advance(ctx))

	s.SetSummary("tight one")
	s.AddPhoto("photos/final.jpg")
	require.NoError(t, s.SetMVP([]match.PlayerID{"noah"}))
	require.NoError(t, s.Submit(ctx))

	assert.True(t, s.Submitted())
	require.Len(t, rec.supplements, 1)
	supplement := rec.supplements[0]
	assert.Equal(t, []string{"noah"}, supplement.MVPUserIDs)
	require.NotNil(t, supplement.Summary)
	assert.Equal(t, "tight one", *supplement.Summary)
	assert.Equal(t, []string{"photos/final.jpg"}, supplement.PhotoRefs)
	assert.Nil(t, supplement.PenaltyShootout)

	// Everything after submission is rejected.
	assert.ErrorIs(t, s.RecordEvent(ctx, goal(1, 5, match.SideA, "alice")), ErrSubmitted)
	assert.ErrorIs(t, s.Advance(ctx), ErrSubmitted)
	assert.ErrorIs(t, s.Retreat(), ErrSubmitted)
	assert.ErrorIs(t, s.Submit(ctx), ErrSubmitted)
}

func TestSubmitRequiresMVPPhase(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newFakeRecorder())
	err := s.Submit(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not mvp")
}

func TestSubmitFailureKeepsSessionOpen(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	s := newTestSession(t, rec)
	advanceThroughQuarters(t, s, [][2]int{{2, 1}, {0, 0}, {1, 1}, {1, 2}})
	require.NoError(t, s.SetParticipants(Participants{SideA: []match.PlayerID{"alice"}}))
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.SetMVP([]match.PlayerID{"alice"}))

	rec.failSupplement = true
	err := s.Submit(ctx)
	require.Error(t, err)
	assert.True(t, IsPersistenceError(err))
	assert.False(t, s.Submitted())

	rec.failSupplement = false
	require.NoError(t, s.Submit(ctx))
	assert.True(t, s.Submitted())
}

func TestSetMVPOutsideAttendeesRejected(t *testing.T) {
	s := newTestSession(t, newFakeRecorder())
	require.NoError(t, s.SetParticipants(Participants{SideA: []match.PlayerID{"alice"}}))

	err := s.SetMVP([]match.PlayerID{"stranger"})
	require.Error(t, err)
	assert.True(t, match.IsValidationError(err))
}

func TestAdvanceAtMVPDirectsToSubmit(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newFakeRecorder())
	advanceThroughQuarters(t, s, [][2]int{{2, 1}, {0, 0}, {1, 1}, {1, 2}})
	require.NoError(t, s.SetParticipants(Participants{SideA: []match.PlayerID{"alice"}}))
	require.NoError(t, s.Advance(ctx))

	err := s.Advance(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Submit")
}

func TestRetreat(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newFakeRecorder())

	require.Error(t, s.Retreat()) // nothing before basics

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.Retreat())
	assert.Equal(t, PhaseBasics, s.Phase())
}

func TestQuarterOutOfRange(t *testing.T) {
	s := newTestSession(t, newFakeRecorder())
	_, err := s.Quarter(0)
	require.Error(t, err)
	_, err = s.Quarter(5)
	require.Error(t, err)

	require.Error(t, s.SetQuarterSummary(0, "x"))
	require.NoError(t, s.SetQuarterSummary(2, "windy"))
}

func TestReconcileWithoutTokenEchoUsesFingerprints(t *testing.T) {
	ctx := context.Background()
	rec := newFakeRecorder()
	rec.dropTokenEcho = true
	s := newTestSession(t, rec)
	require.NoError(t, s.Advance(ctx))

	require.NoError(t, s.RecordEvent(ctx, goal(1, 5, match.SideA, "alice")))

	events := s.Events(1)
	require.Len(t, events, 1)
	assert.True(t, events[0].Persisted)
	assert.Contains(t, events[0].ID, "evt-")
}
