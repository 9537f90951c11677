package match

import "fmt"

// Side identifies one of the two teams in a recorded match.
//
// Events always carry the side that benefits from them: an own goal is
// recorded against the side it counts FOR, with OwnGoal set for narrative
// purposes only. This keeps tally derivation a pure count over goal events.
type Side int

const (
	// SideA is the first (home) team of the match sheet.
	SideA Side = iota + 1
	// SideB is the second (away) team of the match sheet.
	SideB
)

// Valid reports whether the side is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// String returns the side as a stable wire label.
func (s Side) String() string {
	switch s {
	case SideA:
		return "side_a"
	case SideB:
		return "side_b"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// PlayerID identifies a player. The id space is owned by the roster
// collaborator; virtual (walk-in) players get ids from the same space.
type PlayerID string

// EventType classifies an in-match occurrence.
type EventType string

const (
	EventGoal         EventType = "goal"
	EventSave         EventType = "save"
	EventYellowCard   EventType = "yellow_card"
	EventRedCard      EventType = "red_card"
	EventSubstitution EventType = "substitution"
)

// Valid reports whether the event type is one of the known kinds.
func (t EventType) Valid() bool {
	switch t {
	case EventGoal, EventSave, EventYellowCard, EventRedCard, EventSubstitution:
		return true
	default:
		return false
	}
}

// Event is a single ledger entry within a quarter.
//
// Identity: an event is created client-side with a temporary token
// (ID == token, Persisted == false). Once the backend echoes the token with
// a server-assigned id, the reconciler swaps ID in place and marks the
// event persisted. Edits of persisted events are modeled as remove+append,
// never in-place mutation.
type Event struct {
	// ID is the client token until reconciliation, then the server id.
	ID string

	// QuarterIndex is 1-based (1..4).
	QuarterIndex int

	Type   EventType
	Minute int
	Side   Side

	// OwnGoal marks a goal scored by the opposing team's player.
	// It does not change which side's tally the goal counts toward.
	OwnGoal bool

	// Primary is the acting player: scorer, keeper, carded player, or the
	// player leaving the pitch on a substitution.
	Primary PlayerID

	// Secondary is the assist provider (goals) or the player coming on
	// (substitutions). Empty otherwise.
	Secondary PlayerID

	Notes string

	// Persisted is true once the backend has assigned ID.
	Persisted bool
}

// Quarter is one of the four fixed segments of a match. Goals and points
// are derived values: goals from the ledger's goal events, points from the
// scoring rules. Neither is ever set by direct user input.
type Quarter struct {
	// Index is 1-based (1..4).
	Index int

	GoalsA int
	GoalsB int

	PointsA int
	PointsB int

	Summary string

	// Completed is set only when the user explicitly advances past the
	// quarter's phase.
	Completed bool
}

// Goals returns the quarter's goal tally for the given side.
func (q Quarter) Goals(s Side) int {
	if s == SideA {
		return q.GoalsA
	}
	return q.GoalsB
}

// Shootout holds penalty shootout state. A Shootout value exists only while
// the tie-break phase is part of the session; its absence (nil pointer at
// the session level) is what drives the phase list.
type Shootout struct {
	// Enabled becomes true once both scores are entered and differ.
	Enabled bool

	ScoreA int
	ScoreB int

	// Winner is the side with the higher shootout score, zero until decided.
	Winner Side
}

// Decide recomputes Enabled and Winner from the scores.
// Equal scores leave the shootout undecided.
func (s *Shootout) Decide() {
	switch {
	case s.ScoreA > s.ScoreB:
		s.Enabled = true
		s.Winner = SideA
	case s.ScoreB > s.ScoreA:
		s.Enabled = true
		s.Winner = SideB
	default:
		s.Enabled = false
		s.Winner = 0
	}
}

// PhotoRef points at an uploaded match photo. Upload itself is handled by
// an external collaborator; the session only carries the references through
// to final submission.
type PhotoRef string
