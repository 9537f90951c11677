package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clubkeeper/quarterbook/internal/ledger"
	"github.com/clubkeeper/quarterbook/internal/match"
	"github.com/clubkeeper/quarterbook/internal/scoring"
)

// Config assembles a recording session's collaborators.
type Config struct {
	MatchID string

	// TeamAID and TeamBID are the backend team ids for the two sides.
	TeamAID string
	TeamBID string

	Rules    scoring.RuleSet
	Recorder Recorder

	// Tokens generates client event tokens. Defaults to UUIDv7.
	Tokens match.TokenGenerator

	// Roster is the read-only selectable-player snapshot. Optional; when
	// nil, participant selection is only checked for non-emptiness.
	Roster *Roster

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session is the aggregate root of one match recording workflow.
//
// A session is a single logical thread of control: all phase transitions
// and ledger mutations are sequential and user-driven. Persistence calls
// are issued synchronously; the in-flight guard exists to reject re-entrant
// calls from UI callbacks while a save is settling.
//
// Derived state (quarter points, match totals, tie status) is recomputed
// synchronously within the mutation that invalidated it.
type Session struct {
	matchID string
	teamA   string
	teamB   string
	rules   scoring.RuleSet
	rec     Recorder
	tokens  match.TokenGenerator
	roster  *Roster
	log     *slog.Logger

	ledger *ledger.Ledger
	recon  *ledger.Reconciler

	quarters []match.Quarter
	shootout *match.Shootout

	participants      Participants
	participantsSaved bool
	mvp               []match.PlayerID
	summary           string
	photos            []match.PhotoRef

	phase Phase

	// scorelessOK records quarters the user confirmed as genuine 0-0.
	scorelessOK map[int]bool

	// pendingDeletes holds server event ids to retract with the quarter's
	// next auto-mode save.
	pendingDeletes map[int][]string

	// saving is the explicit in-flight state: true while a persistence
	// call issued by this session has not settled.
	saving bool

	submitted bool
}

// New creates a session at the basics phase with four zeroed quarters.
func New(cfg Config) (*Session, error) {
	if cfg.MatchID == "" {
		return nil, fmt.Errorf("new session: match id is required")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("new session: recorder is required")
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	if cfg.Tokens == nil {
		cfg.Tokens = match.UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	quarters := make([]match.Quarter, cfg.Rules.Quarters)
	for i := range quarters {
		quarters[i] = match.Quarter{Index: i + 1}
	}

	return &Session{
		matchID:        cfg.MatchID,
		teamA:          cfg.TeamAID,
		teamB:          cfg.TeamBID,
		rules:          cfg.Rules,
		rec:            cfg.Recorder,
		tokens:         cfg.Tokens,
		roster:         cfg.Roster,
		log:            cfg.Logger,
		ledger:         ledger.New(cfg.Rules.Quarters),
		recon:          ledger.NewReconciler(),
		quarters:       quarters,
		phase:          PhaseBasics,
		scorelessOK:    make(map[int]bool),
		pendingDeletes: make(map[int][]string),
	}, nil
}

// Phase returns the current workflow phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// Phases returns the active phase list. It is a pure function of shootout
// presence: the tie-break phase is in the list exactly while a Shootout
// value exists on the session.
func (s *Session) Phases() []Phase {
	return ActivePhases(s.shootout != nil)
}

// Quarter returns a copy of the 1-based quarter.
func (s *Session) Quarter(index int) (match.Quarter, error) {
	if index < 1 || index > len(s.quarters) {
		return match.Quarter{}, fmt.Errorf("quarter %d out of range", index)
	}
	return s.quarters[index-1], nil
}

// Events returns a quarter's ledger events in order.
func (s *Session) Events(quarter int) []match.Event {
	return s.ledger.Events(quarter)
}

// Totals returns the current match aggregate.
func (s *Session) Totals() scoring.Totals {
	return scoring.Aggregate(s.rules, s.quarters)
}

// Shootout returns a copy of the shootout state and whether one exists.
func (s *Session) Shootout() (match.Shootout, bool) {
	if s.shootout == nil {
		return match.Shootout{}, false
	}
	return *s.shootout, true
}

// Participants returns the current attendee selection.
func (s *Session) Participants() Participants {
	return s.participants
}

// MVP returns the current MVP selection.
func (s *Session) MVP() []match.PlayerID {
	out := make([]match.PlayerID, len(s.mvp))
	copy(out, s.mvp)
	return out
}

// Submitted reports whether the session has been finally submitted.
func (s *Session) Submitted() bool {
	return s.submitted
}

// SetSummary sets the match summary text.
func (s *Session) SetSummary(text string) {
	s.summary = text
}

// SetQuarterSummary sets a quarter's summary text.
func (s *Session) SetQuarterSummary(quarter int, text string) error {
	if quarter < 1 || quarter > len(s.quarters) {
		return fmt.Errorf("quarter %d out of range", quarter)
	}
	s.quarters[quarter-1].Summary = text
	return nil
}

// AddPhoto appends an uploaded photo reference to the session.
func (s *Session) AddPhoto(ref match.PhotoRef) {
	s.photos = append(s.photos, ref)
}

// guard rejects mutations after submission or while a save is in flight.
func (s *Session) guard() error {
	if s.submitted {
		return ErrSubmitted
	}
	if s.saving {
		return ErrSaveInFlight
	}
	return nil
}

// RecordEvent validates and appends an event to its quarter's ledger,
// recomputes the derived scores, and eagerly persists the event in append
// mode.
//
// On persistence failure the event stays in the ledger unpersisted and the
// returned PersistenceError is retryable: the event rides along with the
// quarter's next save.
func (s *Session) RecordEvent(ctx context.Context, e match.Event) error {
	if err := s.guard(); err != nil {
		return err
	}
	if e.QuarterIndex >= 1 && e.QuarterIndex <= len(s.quarters) &&
		s.quarters[e.QuarterIndex-1].Completed {
		return match.NewValidationError("quarterNumber",
			fmt.Sprintf("quarter %d is already completed", e.QuarterIndex))
	}

	if e.ID == "" {
		e.ID = s.tokens.Generate()
	}
	e.Persisted = false

	if err := s.ledger.Append(e); err != nil {
		return err
	}
	s.rescore(e.QuarterIndex)

	s.log.Debug("event recorded",
		"match", s.matchID,
		"quarter", e.QuarterIndex,
		"type", string(e.Type),
		"minute", e.Minute,
		"token", e.ID,
	)

	return s.saveEvents(ctx, e.QuarterIndex, []match.Event{e})
}

// RemoveEvent deletes an event, recomputes the derived scores, and, for an
// already-persisted event, queues the server id for retraction with the
// quarter's next auto-mode save.
func (s *Session) RemoveEvent(ctx context.Context, eventID string) error {
	if err := s.guard(); err != nil {
		return err
	}

	removed, err := s.ledger.Remove(eventID)
	if err != nil {
		return err
	}
	if removed.Persisted {
		q := removed.QuarterIndex
		s.pendingDeletes[q] = append(s.pendingDeletes[q], removed.ID)
	}
	s.rescore(removed.QuarterIndex)

	s.log.Debug("event removed",
		"match", s.matchID,
		"quarter", removed.QuarterIndex,
		"id", eventID,
		"persisted", removed.Persisted,
	)
	return nil
}

// ReplaceEvent edits an event as delete-old + insert-new. The replacement
// gets a fresh client token; the old event's server id, if any, is queued
// for retraction. The ledger never holds both versions at once.
func (s *Session) ReplaceEvent(ctx context.Context, oldID string, e match.Event) error {
	if err := s.guard(); err != nil {
		return err
	}

	old, ok := s.ledger.Find(oldID)
	if !ok {
		return fmt.Errorf("replace %q: %w", oldID, ledger.ErrEventNotFound)
	}
	if err := ledger.Validate(e, s.rules.Quarters); err != nil {
		return err
	}

	if _, err := s.ledger.Remove(oldID); err != nil {
		return err
	}
	if old.Persisted {
		s.pendingDeletes[old.QuarterIndex] = append(s.pendingDeletes[old.QuarterIndex], old.ID)
	}

	e.ID = s.tokens.Generate()
	e.Persisted = false
	if err := s.ledger.Append(e); err != nil {
		return err
	}
	s.rescore(old.QuarterIndex)
	if e.QuarterIndex != old.QuarterIndex {
		s.rescore(e.QuarterIndex)
	}

	return s.saveEvents(ctx, e.QuarterIndex, []match.Event{e})
}

// ConfirmScoreless records the user's confirmation that a quarter really
// ended 0-0 with no events, clearing the advance gate for it.
func (s *Session) ConfirmScoreless(quarter int) {
	s.scorelessOK[quarter] = true
}

// SetShootoutScore enters the penalty shootout scores. Valid only while
// the tie-break phase is active.
func (s *Session) SetShootoutScore(scoreA, scoreB int) error {
	if err := s.guard(); err != nil {
		return err
	}
	if s.shootout == nil {
		return match.NewValidationError("penaltyShootout", "no tie-break phase is active")
	}
	if scoreA < 0 || scoreB < 0 {
		return match.NewValidationError("penaltyShootout", "scores must be non-negative")
	}
	s.shootout.ScoreA = scoreA
	s.shootout.ScoreB = scoreB
	s.shootout.Decide()
	return nil
}

// SetParticipants stores the attendee selection locally; it is persisted
// when the attendance phase advances.
func (s *Session) SetParticipants(p Participants) error {
	if err := s.guard(); err != nil {
		return err
	}
	if s.roster != nil {
		if err := s.roster.ValidateParticipants(p); err != nil {
			return err
		}
	} else if p.Empty() {
		return match.NewValidationError("participants", "at least one attendee is required")
	}
	s.participants = p
	return nil
}

// SetMVP stores the MVP selection. Picks outside the confirmed attendee
// set are rejected.
func (s *Session) SetMVP(ids []match.PlayerID) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := ValidateMVP(ids, s.participants); err != nil {
		return err
	}
	s.mvp = append([]match.PlayerID(nil), ids...)
	return nil
}

// Advance persists the current phase's data and moves to the next phase in
// the active list. After the final quarter it re-evaluates the tie
// condition and inserts or removes the shootout phase.
//
// On persistence failure the phase does not change and in-memory state is
// kept; the same Advance can be retried.
func (s *Session) Advance(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}

	switch {
	case s.phase == PhaseBasics:
		// Nothing backend-shaped to persist yet; the summary travels with
		// quarter saves and final submission.
		s.moveTo(PhaseQuarter1)
		return nil

	case s.phase.QuarterIndex() > 0:
		return s.advanceQuarter(ctx, s.phase.QuarterIndex())

	case s.phase == PhaseShootout:
		return s.advanceShootout(ctx)

	case s.phase == PhaseAttendance:
		return s.advanceAttendance(ctx)

	case s.phase == PhaseMVP:
		return fmt.Errorf("mvp is the terminal phase; call Submit")

	default:
		return fmt.Errorf("advance: unknown phase %s", s.phase)
	}
}

// Retreat moves to the previous phase in the active list without deleting
// any already-persisted data.
func (s *Session) Retreat() error {
	if err := s.guard(); err != nil {
		return err
	}
	phases := s.Phases()
	idx := phaseIndex(phases, s.phase)
	if idx <= 0 {
		return fmt.Errorf("cannot retreat from %s", s.phase)
	}
	s.moveTo(phases[idx-1])
	return nil
}

// Submit finalizes the session: MVP, summary, photos, and any decided
// shootout go to the backend in one supplement call. One-way; the session
// rejects every mutation afterwards.
func (s *Session) Submit(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	if s.phase != PhaseMVP {
		return fmt.Errorf("submit: session is at %s, not %s", s.phase, PhaseMVP)
	}
	if err := ValidateMVP(s.mvp, s.participants); err != nil {
		return err
	}

	req := SupplementRequest{}
	for _, id := range s.mvp {
		req.MVPUserIDs = append(req.MVPUserIDs, string(id))
	}
	if s.summary != "" {
		summary := s.summary
		req.Summary = &summary
	}
	if s.shootout != nil && s.shootout.Enabled {
		req.PenaltyShootout = s.shootoutPayload()
	}
	for _, ref := range s.photos {
		req.PhotoRefs = append(req.PhotoRefs, string(ref))
	}

	if err := s.persist(ctx, func(ctx context.Context) error {
		return s.rec.SupplementResult(ctx, s.matchID, req)
	}); err != nil {
		return &PersistenceError{Phase: s.phase, Err: err}
	}

	s.submitted = true
	s.log.Info("session submitted", "match", s.matchID, "mvp_count", len(s.mvp))
	return nil
}

// advanceQuarter closes a quarter: retries any unpersisted events in
// append mode, then issues the auto-mode save that recomputes server-side
// scores, applies queued retractions, and marks the quarter completed.
func (s *Session) advanceQuarter(ctx context.Context, quarter int) error {
	goalsA, goalsB := s.ledger.Tally(quarter)
	if goalsA == 0 && goalsB == 0 && s.ledger.Len(quarter) == 0 && !s.scorelessOK[quarter] {
		return &ScorelessError{Quarter: quarter}
	}

	// Eager saves that failed earlier must settle before the quarter
	// closes, so the append retry races nothing.
	if pending := s.ledger.Pending(quarter); len(pending) > 0 {
		if err := s.saveEvents(ctx, quarter, pending); err != nil {
			return err
		}
	}

	q := &s.quarters[quarter-1]
	req := SaveQuarterRequest{
		QuarterNumber:  quarter,
		Mode:           SaveModeAuto,
		Team1Goals:     q.GoalsA,
		Team2Goals:     q.GoalsB,
		Summary:        q.Summary,
		DeleteEventIDs: s.pendingDeletes[quarter],
		IsCompleted:    true,
	}

	var result SaveQuarterResult
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.rec.SaveQuarter(ctx, s.matchID, req)
		return err
	})
	if err != nil {
		return &PersistenceError{Phase: s.phase, Quarter: quarter, Err: err}
	}

	delete(s.pendingDeletes, quarter)
	q.Completed = true
	s.reconcile(quarter, result.Events)

	s.log.Info("quarter completed",
		"match", s.matchID,
		"quarter", quarter,
		"goals_a", q.GoalsA,
		"goals_b", q.GoalsB,
		"points_a", q.PointsA,
		"points_b", q.PointsB,
	)

	if quarter == s.rules.Quarters {
		return s.afterFinalQuarter()
	}
	s.moveTo(QuarterPhase(quarter + 1))
	return nil
}

// afterFinalQuarter applies the tie rule: insert the shootout phase on a
// tie, drop it when a previously tied match no longer ties, otherwise
// continue down the active list.
func (s *Session) afterFinalQuarter() error {
	totals := s.Totals()

	switch {
	case totals.Tie && s.shootout == nil:
		s.shootout = &match.Shootout{}
		s.log.Info("aggregate tied, inserting tie-break phase",
			"match", s.matchID,
			"points_a", totals.PointsA,
			"points_b", totals.PointsB,
		)
		s.moveTo(PhaseShootout)

	case !totals.Tie && s.shootout != nil:
		s.shootout = nil
		s.log.Info("aggregate no longer tied, removing tie-break phase",
			"match", s.matchID,
			"points_a", totals.PointsA,
			"points_b", totals.PointsB,
		)
		s.moveTo(PhaseAttendance)

	default:
		phases := s.Phases()
		idx := phaseIndex(phases, s.phase)
		s.moveTo(phases[idx+1])
	}
	return nil
}

// advanceShootout persists the penalty result early (supplement with
// penalty data alone) and moves on to attendance.
func (s *Session) advanceShootout(ctx context.Context) error {
	if s.shootout == nil || !s.shootout.Enabled {
		return match.NewValidationError("penaltyShootout",
			"both scores must be entered and differ before advancing")
	}

	req := SupplementRequest{PenaltyShootout: s.shootoutPayload()}
	if err := s.persist(ctx, func(ctx context.Context) error {
		return s.rec.SupplementResult(ctx, s.matchID, req)
	}); err != nil {
		return &PersistenceError{Phase: s.phase, Err: err}
	}

	s.moveTo(PhaseAttendance)
	return nil
}

// advanceAttendance persists the attendee selection and moves to mvp.
func (s *Session) advanceAttendance(ctx context.Context) error {
	if s.roster != nil {
		if err := s.roster.ValidateParticipants(s.participants); err != nil {
			return err
		}
	} else if s.participants.Empty() {
		return match.NewValidationError("participants", "at least one attendee is required")
	}

	req := ParticipantsRequest{}
	for _, id := range s.participants.SideA {
		req.Team1 = append(req.Team1, string(id))
	}
	for _, id := range s.participants.SideB {
		req.Team2 = append(req.Team2, string(id))
	}

	if err := s.persist(ctx, func(ctx context.Context) error {
		return s.rec.SetParticipants(ctx, s.matchID, req)
	}); err != nil {
		return &PersistenceError{Phase: s.phase, Err: err}
	}

	s.participantsSaved = true
	s.moveTo(PhaseMVP)
	return nil
}

// saveEvents persists ledger events in append mode and reconciles the
// returned server ids.
func (s *Session) saveEvents(ctx context.Context, quarter int, events []match.Event) error {
	req := SaveQuarterRequest{
		QuarterNumber: quarter,
		Mode:          SaveModeAppend,
	}
	for _, e := range events {
		req.Events = append(req.Events, s.payloadFor(e))
	}

	q := s.quarters[quarter-1]
	req.Team1Goals = q.GoalsA
	req.Team2Goals = q.GoalsB
	req.Summary = q.Summary

	var result SaveQuarterResult
	err := s.persist(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.rec.SaveQuarter(ctx, s.matchID, req)
		return err
	})
	if err != nil {
		return &PersistenceError{Phase: s.phase, Quarter: quarter, Err: err}
	}

	s.reconcile(quarter, result.Events)
	return nil
}

// reconcile unifies the quarter's unpersisted ledger events with the
// backend's returned set. Conflicts are warnings, never failures: the
// local copy stays authoritative until the next successful reload.
func (s *Session) reconcile(quarter int, returned []PersistedEvent) {
	serverEvents := make([]ledger.ServerEvent, 0, len(returned))
	for _, pe := range returned {
		if pe.QuarterNumber != quarter {
			continue
		}
		se := ledger.ServerEvent{ID: pe.ID, ClientToken: pe.ClientToken}
		if ev, err := s.eventFromPersisted(pe); err == nil {
			if fp, err := match.Fingerprint(ev); err == nil {
				se.Fingerprint = fp
			}
		}
		serverEvents = append(serverEvents, se)
	}

	conflicts, err := s.recon.Apply(s.ledger, quarter, serverEvents)
	if err != nil {
		s.log.Error("reconciliation failed", "match", s.matchID, "quarter", quarter, "error", err)
		return
	}
	for i := range conflicts {
		s.log.Warn("reconciliation conflict",
			"match", s.matchID,
			"quarter", conflicts[i].Quarter,
			"client_token", conflicts[i].ClientToken,
		)
	}
}

// rescore recounts a quarter's goals from the ledger and recomputes its
// points.
func (s *Session) rescore(quarter int) {
	q := &s.quarters[quarter-1]
	q.GoalsA, q.GoalsB = s.ledger.Tally(quarter)
	s.rules.Rescore(q)
}

// persist runs one persistence call under the in-flight guard.
func (s *Session) persist(ctx context.Context, call func(context.Context) error) error {
	s.saving = true
	defer func() { s.saving = false }()
	return call(ctx)
}

// moveTo changes phase with a transition log line.
func (s *Session) moveTo(next Phase) {
	s.log.Debug("phase transition", "match", s.matchID, "from", s.phase.String(), "to", next.String())
	s.phase = next
}

// teamID maps a side to its backend team id.
func (s *Session) teamID(side match.Side) string {
	if side == match.SideA {
		return s.teamA
	}
	return s.teamB
}

// sideForTeam maps a backend team id to a side, zero if unknown.
func (s *Session) sideForTeam(teamID string) match.Side {
	switch teamID {
	case s.teamA:
		return match.SideA
	case s.teamB:
		return match.SideB
	default:
		return 0
	}
}

// payloadFor converts a ledger event to its wire shape.
func (s *Session) payloadFor(e match.Event) EventPayload {
	p := EventPayload{
		TeamID:      s.teamID(e.Side),
		UserID:      string(e.Primary),
		EventType:   string(e.Type),
		Minute:      e.Minute,
		Notes:       e.Notes,
		ClientToken: e.ID,
	}
	if e.OwnGoal {
		p.EventSubtype = "own_goal"
	}
	if e.Secondary != "" {
		assist := string(e.Secondary)
		p.AssistUserID = &assist
	}
	return p
}

// eventFromPersisted converts a backend event row to a ledger event.
func (s *Session) eventFromPersisted(pe PersistedEvent) (match.Event, error) {
	side := s.sideForTeam(pe.TeamID)
	if side == 0 {
		return match.Event{}, fmt.Errorf("event %s references unknown team %s", pe.ID, pe.TeamID)
	}

	e := match.Event{
		ID:           pe.ID,
		QuarterIndex: pe.QuarterNumber,
		Type:         match.EventType(pe.EventType),
		Minute:       pe.Minute,
		Side:         side,
		OwnGoal:      pe.EventSubtype == "own_goal",
		Primary:      match.PlayerID(pe.UserID),
		Notes:        pe.Notes,
		Persisted:    true,
	}
	if pe.AssistUserID != nil {
		e.Secondary = match.PlayerID(*pe.AssistUserID)
	}
	return e, nil
}

// shootoutPayload converts the shootout state to its wire shape.
func (s *Session) shootoutPayload() *ShootoutPayload {
	return &ShootoutPayload{
		Team1PenaltyScore:   s.shootout.ScoreA,
		Team2PenaltyScore:   s.shootout.ScoreB,
		PenaltyWinnerTeamID: s.teamID(s.shootout.Winner),
	}
}
