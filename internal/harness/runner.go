package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/clubkeeper/quarterbook/internal/match"
	"github.com/clubkeeper/quarterbook/internal/rules"
	"github.com/clubkeeper/quarterbook/internal/session"
	"github.com/clubkeeper/quarterbook/internal/store"
	"github.com/clubkeeper/quarterbook/internal/testutil"
)

// TraceEntry records the outcome of one scenario step: the action taken,
// the phase the session ended the step in, and the error category when the
// step was expected to fail.
type TraceEntry struct {
	Step   int
	Action string
	Phase  string
	Err    string
}

// Result holds everything a scenario run produced.
type Result struct {
	Scenario *Scenario
	Session  *session.Session
	Trace    []TraceEntry
}

// Run executes a scenario against a fresh store-backed session. The SQLite
// database is created at dbPath; pass a path under t.TempDir() in tests.
//
// A step failing without a matching expect_error, or succeeding despite
// one, aborts the run. Assertions are checked after the last step.
func Run(ctx context.Context, scenario *Scenario, dbPath string) (*Result, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	defer st.Close()

	rec := store.NewRecorder(st)
	if err := seedMatch(ctx, rec, scenario); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	ruleSet := rules.Default()
	if scenario.Rules != "" {
		if ruleSet, err = rules.Load(scenario.Rules); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
	}

	cfg := session.Config{
		MatchID:  scenario.MatchID,
		TeamAID:  scenario.Team1,
		TeamBID:  scenario.Team2,
		Rules:    ruleSet,
		Recorder: rec,
		Tokens:   &testutil.SequenceGenerator{},
		Logger:   testutil.SilentLogger(),
	}
	if seeded(scenario) {
		roster, err := session.LoadRoster(ctx, rec, scenario.MatchID, scenario.Team1, scenario.Team2)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		cfg.Roster = roster
	}

	sess, err := session.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := &Result{Scenario: scenario, Session: sess}
	labels := make(map[string]*EventStep)

	for i, step := range scenario.Steps {
		entry, err := runStep(ctx, sess, i+1, &step, labels)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		result.Trace = append(result.Trace, entry)
	}

	if err := checkAssertions(scenario, sess); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	return result, nil
}

// seeded reports whether the scenario declares any selectable players.
func seeded(s *Scenario) bool {
	return len(s.Players.Team1) > 0 || len(s.Players.Team2) > 0
}

// seedMatch creates the match row and the selectable-player pools.
func seedMatch(ctx context.Context, rec *store.Recorder, s *Scenario) error {
	if err := rec.CreateMatch(ctx, s.MatchID, s.Team1, s.Team2); err != nil {
		return err
	}
	seed := func(teamID string, players []SeedPlayer) error {
		for _, p := range players {
			pool := p.Pool
			if pool == "" {
				pool = "registered"
			}
			name := p.Name
			if name == "" {
				name = p.UserID
			}
			if err := rec.AddSelectablePlayer(ctx, s.MatchID, teamID, pool, p.UserID, name); err != nil {
				return err
			}
		}
		return nil
	}
	if err := seed(s.Team1, s.Players.Team1); err != nil {
		return err
	}
	return seed(s.Team2, s.Players.Team2)
}

// runStep executes one action and reconciles its outcome against the
// step's expectations.
func runStep(ctx context.Context, sess *session.Session, num int, step *Step, labels map[string]*EventStep) (TraceEntry, error) {
	var (
		action      string
		expectErr   string
		expectPhase string
		err         error
	)

	switch {
	case step.Event != nil:
		action, expectErr = "event", step.Event.ExpectError
		err = sess.RecordEvent(ctx, eventFromStep(step.Event))
		if err == nil && step.Event.Label != "" {
			labels[step.Event.Label] = step.Event
		}

	case step.RemoveEvent != nil:
		action = "remove_event"
		var id string
		id, err = resolveLabel(sess, labels, step.RemoveEvent.Label)
		if err == nil {
			err = sess.RemoveEvent(ctx, id)
		}

	case step.Advance != nil:
		action, expectErr, expectPhase = "advance", step.Advance.ExpectError, step.Advance.ExpectPhase
		err = sess.Advance(ctx)

	case step.Retreat != nil:
		action = "retreat"
		err = sess.Retreat()

	case step.ConfirmScoreless != nil:
		action = "confirm_scoreless"
		sess.ConfirmScoreless(step.ConfirmScoreless.Quarter)

	case step.Shootout != nil:
		action = "shootout"
		err = sess.SetShootoutScore(step.Shootout.Team1, step.Shootout.Team2)

	case step.Participants != nil:
		action = "participants"
		err = sess.SetParticipants(participantsFromStep(step.Participants))

	case step.MVP != nil:
		action, expectErr = "mvp", step.MVP.ExpectError
		ids := make([]match.PlayerID, len(step.MVP.Players))
		for i, p := range step.MVP.Players {
			ids[i] = match.PlayerID(p)
		}
		err = sess.SetMVP(ids)

	case step.Submit != nil:
		action, expectErr, expectPhase = "submit", step.Submit.ExpectError, step.Submit.ExpectPhase
		err = sess.Submit(ctx)
	}

	entry := TraceEntry{Step: num, Action: action, Phase: sess.Phase().String()}

	switch {
	case err != nil && expectErr == "":
		return entry, fmt.Errorf("step %d (%s): unexpected error: %w", num, action, err)
	case err == nil && expectErr != "":
		return entry, fmt.Errorf("step %d (%s): expected %q error, step succeeded", num, action, expectErr)
	case err != nil:
		category := errCategory(err)
		if category != expectErr {
			return entry, fmt.Errorf("step %d (%s): expected %q error, got %q (%v)", num, action, expectErr, category, err)
		}
		entry.Err = category
	}

	if expectPhase != "" && entry.Phase != expectPhase {
		return entry, fmt.Errorf("step %d (%s): expected phase %s, got %s", num, action, expectPhase, entry.Phase)
	}
	return entry, nil
}

// errCategory maps a step error to the expect_error vocabulary:
// "scoreless" for the 0-0 gate, the field name for validation errors, and
// "persistence" / "submitted" / "error" otherwise.
func errCategory(err error) string {
	var se *session.ScorelessError
	if errors.As(err, &se) {
		return "scoreless"
	}
	var ve *match.ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	if session.IsPersistenceError(err) {
		return "persistence"
	}
	if errors.Is(err, session.ErrSubmitted) {
		return "submitted"
	}
	return "error"
}

// eventFromStep converts an event step to a ledger event. The token is
// assigned by the session.
func eventFromStep(es *EventStep) match.Event {
	side := match.SideA
	if es.Team == 2 {
		side = match.SideB
	}
	e := match.Event{
		QuarterIndex: es.Quarter,
		Type:         match.EventType(es.Type),
		Minute:       es.Minute,
		Side:         side,
		OwnGoal:      es.OwnGoal,
		Primary:      match.PlayerID(es.Player),
		Notes:        es.Notes,
	}
	if es.Assist != "" {
		e.Secondary = match.PlayerID(es.Assist)
	}
	return e
}

// resolveLabel finds the current ledger id of the event recorded under a
// label. Reconciliation may have rebound the event to its server id, so the
// lookup matches on content rather than the original token.
func resolveLabel(sess *session.Session, labels map[string]*EventStep, label string) (string, error) {
	es, ok := labels[label]
	if !ok {
		return "", fmt.Errorf("remove_event: unknown label %q", label)
	}

	want := eventFromStep(es)
	var id string
	for _, e := range sess.Events(es.Quarter) {
		if e.Type == want.Type && e.Minute == want.Minute && e.Side == want.Side && e.Primary == want.Primary {
			if id != "" {
				return "", fmt.Errorf("remove_event: label %q is ambiguous", label)
			}
			id = e.ID
		}
	}
	if id == "" {
		return "", fmt.Errorf("remove_event: no ledger event matches label %q", label)
	}
	return id, nil
}

// participantsFromStep converts a participants step.
func participantsFromStep(ps *ParticipantsStep) session.Participants {
	var p session.Participants
	for _, id := range ps.Team1 {
		p.SideA = append(p.SideA, match.PlayerID(id))
	}
	for _, id := range ps.Team2 {
		p.SideB = append(p.SideB, match.PlayerID(id))
	}
	return p
}

// checkAssertions validates the final session state.
func checkAssertions(s *Scenario, sess *session.Session) error {
	for i, a := range s.Assertions {
		switch a.Type {
		case AssertFinalPhase:
			if got := sess.Phase().String(); got != a.Phase {
				return fmt.Errorf("assertions[%d]: final phase %s, want %s", i, got, a.Phase)
			}

		case AssertTotals:
			totals := sess.Totals()
			got := [4]int{totals.PointsA, totals.PointsB, totals.GoalsA, totals.GoalsB}
			want := [4]int{a.PointsTeam1, a.PointsTeam2, a.GoalsTeam1, a.GoalsTeam2}
			if got != want {
				return fmt.Errorf("assertions[%d]: totals %v, want %v", i, got, want)
			}

		case AssertTally:
			q, err := sess.Quarter(a.Quarter)
			if err != nil {
				return fmt.Errorf("assertions[%d]: %w", i, err)
			}
			if q.GoalsA != a.Team1 || q.GoalsB != a.Team2 {
				return fmt.Errorf("assertions[%d]: quarter %d tally %d-%d, want %d-%d",
					i, a.Quarter, q.GoalsA, q.GoalsB, a.Team1, a.Team2)
			}

		case AssertShootout:
			_, present := sess.Shootout()
			if present != a.Present {
				return fmt.Errorf("assertions[%d]: shootout present=%v, want %v", i, present, a.Present)
			}
		}
	}
	return nil
}
