package session

import (
	"context"
	"fmt"

	"github.com/clubkeeper/quarterbook/internal/match"
)

// Participants holds the confirmed attendee selection per side.
type Participants struct {
	SideA []match.PlayerID
	SideB []match.PlayerID
}

// Empty reports whether no attendee has been selected on either side.
func (p Participants) Empty() bool {
	return len(p.SideA) == 0 && len(p.SideB) == 0
}

// Union returns the set of all confirmed attendees across both sides.
func (p Participants) Union() map[match.PlayerID]bool {
	set := make(map[match.PlayerID]bool, len(p.SideA)+len(p.SideB))
	for _, id := range p.SideA {
		set[id] = true
	}
	for _, id := range p.SideB {
		set[id] = true
	}
	return set
}

// Roster is a read-only snapshot of the selectable-player pools for both
// sides, taken at session start. The workflow never reads live roster
// caches, so tests can construct a Roster directly.
type Roster struct {
	sideA SelectablePlayers
	sideB SelectablePlayers
}

// NewRoster builds a roster snapshot from per-side pools.
func NewRoster(sideA, sideB SelectablePlayers) (*Roster, error) {
	r := &Roster{sideA: sideA, sideB: sideB}
	if err := r.checkPools(match.SideA, sideA); err != nil {
		return nil, err
	}
	if err := r.checkPools(match.SideB, sideB); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadRoster fetches both sides' selectable pools from the roster
// collaborator and snapshots them.
func LoadRoster(ctx context.Context, rec Recorder, matchID, teamAID, teamBID string) (*Roster, error) {
	sideA, err := rec.GetSelectablePlayers(ctx, matchID, teamAID)
	if err != nil {
		return nil, fmt.Errorf("load roster for %s: %w", teamAID, err)
	}
	sideB, err := rec.GetSelectablePlayers(ctx, matchID, teamBID)
	if err != nil {
		return nil, fmt.Errorf("load roster for %s: %w", teamBID, err)
	}
	return NewRoster(sideA, sideB)
}

// checkPools enforces that a player appears in at most one pool per side.
func (r *Roster) checkPools(side match.Side, pools SelectablePlayers) error {
	seen := make(map[string]string)
	check := func(pool string, players []SelectablePlayer) error {
		for _, p := range players {
			if prev, ok := seen[p.UserID]; ok {
				return fmt.Errorf("%s: player %s appears in both %s and %s pools",
					side, p.UserID, prev, pool)
			}
			seen[p.UserID] = pool
		}
		return nil
	}

	if err := check("registered", pools.RegisteredPlayers); err != nil {
		return err
	}
	if err := check("unregistered", pools.UnregisteredPlayers); err != nil {
		return err
	}
	if err := check("virtual", pools.VirtualPlayers); err != nil {
		return err
	}
	return check("unassigned", pools.UnassignedPlayers)
}

// Contains reports whether a player is selectable for the given side.
func (r *Roster) Contains(side match.Side, id match.PlayerID) bool {
	pools := r.sideA
	if side == match.SideB {
		pools = r.sideB
	}
	for _, group := range [][]SelectablePlayer{
		pools.RegisteredPlayers,
		pools.UnregisteredPlayers,
		pools.VirtualPlayers,
		pools.UnassignedPlayers,
	} {
		for _, p := range group {
			if p.UserID == string(id) {
				return true
			}
		}
	}
	return false
}

// ValidateParticipants checks an attendee selection against the roster
// snapshot. At least one attendee across both sides is required before the
// session may leave the attendance phase.
func (r *Roster) ValidateParticipants(p Participants) error {
	if p.Empty() {
		return match.NewValidationError("participants", "at least one attendee is required")
	}
	for _, id := range p.SideA {
		if !r.Contains(match.SideA, id) {
			return match.NewValidationError("team1",
				fmt.Sprintf("player %s is not selectable for this side", id))
		}
	}
	for _, id := range p.SideB {
		if !r.Contains(match.SideB, id) {
			return match.NewValidationError("team2",
				fmt.Sprintf("player %s is not selectable for this side", id))
		}
	}
	return nil
}

// ValidateMVP checks that every MVP pick is drawn from the confirmed
// attendees as finalized in the attendance phase.
func ValidateMVP(mvp []match.PlayerID, p Participants) error {
	attendees := p.Union()
	for _, id := range mvp {
		if !attendees[id] {
			return match.NewValidationError("mvpUserIds",
				fmt.Sprintf("player %s is not a confirmed attendee", id))
		}
	}
	return nil
}
