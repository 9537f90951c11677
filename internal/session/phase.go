// Package session drives the match result recording workflow: an ordered
// list of phases over a single match, with scores derived from the event
// ledger, an optional penalty shootout phase inserted on tied aggregate
// points, and resumption from partially persisted progress.
package session

import "fmt"

// Phase is one step of the recording workflow.
type Phase int

const (
	// PhaseBasics collects the match sheet header (summary, photos).
	PhaseBasics Phase = iota + 1
	PhaseQuarter1
	PhaseQuarter2
	PhaseQuarter3
	PhaseQuarter4
	// PhaseShootout is present only while aggregate points are tied after
	// four completed quarters.
	PhaseShootout
	PhaseAttendance
	// PhaseMVP is terminal; it is exited only by final submission.
	PhaseMVP
)

// String returns the phase as a stable wire label.
func (p Phase) String() string {
	switch p {
	case PhaseBasics:
		return "basics"
	case PhaseQuarter1:
		return "quarter1"
	case PhaseQuarter2:
		return "quarter2"
	case PhaseQuarter3:
		return "quarter3"
	case PhaseQuarter4:
		return "quarter4"
	case PhaseShootout:
		return "penalty_shootout"
	case PhaseAttendance:
		return "attendance"
	case PhaseMVP:
		return "mvp"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// QuarterIndex returns the 1-based quarter number for quarter phases, or 0.
func (p Phase) QuarterIndex() int {
	if p >= PhaseQuarter1 && p <= PhaseQuarter4 {
		return int(p-PhaseQuarter1) + 1
	}
	return 0
}

// QuarterPhase returns the phase for a 1-based quarter index.
func QuarterPhase(quarter int) Phase {
	return PhaseQuarter1 + Phase(quarter-1)
}

// ActivePhases returns the phase list for the session. The list is a pure
// function of the tie flag: seven phases normally, eight with the shootout
// phase between quarter4 and attendance when aggregate points are tied.
func ActivePhases(tie bool) []Phase {
	if tie {
		return []Phase{
			PhaseBasics,
			PhaseQuarter1, PhaseQuarter2, PhaseQuarter3, PhaseQuarter4,
			PhaseShootout,
			PhaseAttendance,
			PhaseMVP,
		}
	}
	return []Phase{
		PhaseBasics,
		PhaseQuarter1, PhaseQuarter2, PhaseQuarter3, PhaseQuarter4,
		PhaseAttendance,
		PhaseMVP,
	}
}

// phaseIndex returns the position of p in phases, or -1.
func phaseIndex(phases []Phase, p Phase) int {
	for i, candidate := range phases {
		if candidate == p {
			return i
		}
	}
	return -1
}
