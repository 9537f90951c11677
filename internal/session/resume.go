package session

import (
	"context"
	"fmt"

	"github.com/clubkeeper/quarterbook/internal/match"
)

// Resume reconstructs a session from whatever fragment of the match a
// previous session persisted: quarter rows, the event ledger, saved
// participants, and any saved penalty data.
//
// The resume phase is computed against the seven-phase list first, then
// the tie rule is re-applied: a tied aggregate re-inserts the tie-break
// phase, and an undecided shootout pulls the resume position back to it.
func Resume(ctx context.Context, cfg Config) (*Session, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}

	detail, err := s.rec.GetQuarterDetail(ctx, s.matchID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", s.matchID, err)
	}

	if err := s.restoreQuarters(detail); err != nil {
		return nil, fmt.Errorf("resume %s: %w", s.matchID, err)
	}

	saved, err := s.rec.GetParticipants(ctx, s.matchID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", s.matchID, err)
	}
	s.restoreParticipants(saved)

	s.phase = s.resumePhase(detail)

	s.log.Info("session resumed",
		"match", s.matchID,
		"quarters_completed", detail.QuartersCompleted,
		"participants_saved", s.participantsSaved,
		"phase", s.phase.String(),
	)
	return s, nil
}

// restoreQuarters rebuilds the quarter array and event ledger exactly as
// persisted. Goal tallies and points are recounted from the ledger rather
// than trusted from the stored rows, keeping the derivation invariant.
func (s *Session) restoreQuarters(detail QuarterDetail) error {
	for _, pq := range detail.Quarters {
		if pq.QuarterNumber < 1 || pq.QuarterNumber > len(s.quarters) {
			return fmt.Errorf("persisted quarter %d out of range", pq.QuarterNumber)
		}
		q := &s.quarters[pq.QuarterNumber-1]
		q.Summary = pq.Summary
		q.Completed = pq.IsCompleted
	}

	for _, pe := range detail.Events {
		e, err := s.eventFromPersisted(pe)
		if err != nil {
			return err
		}
		if err := s.ledger.Append(e); err != nil {
			return fmt.Errorf("restore event %s: %w", pe.ID, err)
		}
	}
	for i := range s.quarters {
		s.rescore(i + 1)
	}

	return nil
}

// restoreParticipants seeds the attendee selection from saved data.
func (s *Session) restoreParticipants(saved ParticipantsResult) {
	for _, p := range saved.Team1 {
		s.participants.SideA = append(s.participants.SideA, match.PlayerID(p.UserID))
	}
	for _, p := range saved.Team2 {
		s.participants.SideB = append(s.participants.SideB, match.PlayerID(p.UserID))
	}
	s.participantsSaved = !s.participants.Empty()
}

// resumePhase computes the phase to resume into.
//
// Base rule, always against the seven-phase list: fewer than four quarters
// completed resumes at the first incomplete quarter (or basics when
// nothing at all was recorded); four completed quarters resume at
// attendance until participants are saved, then mvp.
//
// The tie rule then re-applies on top: a tied aggregate recreates the
// Shootout value (from saved penalty data when present), and an undecided
// shootout becomes the resume phase itself - attendance and mvp keep their
// position in the now eight-phase list otherwise.
func (s *Session) resumePhase(detail QuarterDetail) Phase {
	qc := detail.QuartersCompleted
	if qc > len(s.quarters) {
		qc = len(s.quarters)
	}

	var base Phase
	switch {
	case qc == 0 && s.ledger.Len(1) == 0:
		base = PhaseBasics
	case qc < len(s.quarters):
		base = QuarterPhase(qc + 1)
	case !s.participantsSaved:
		base = PhaseAttendance
	default:
		base = PhaseMVP
	}

	totals := s.Totals()
	if !totals.Tie {
		return base
	}

	s.shootout = &match.Shootout{}
	if detail.PenaltyShootout != nil {
		s.shootout.ScoreA = detail.PenaltyShootout.Team1PenaltyScore
		s.shootout.ScoreB = detail.PenaltyShootout.Team2PenaltyScore
		s.shootout.Decide()
	}
	if !s.shootout.Enabled {
		return PhaseShootout
	}
	return base
}
