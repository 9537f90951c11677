// Package ledger keeps the ordered record of in-match events per quarter.
//
// The ledger is the source of truth for goal tallies: scores are never
// edited directly, they are recounted from goal events after every
// mutation. Edits of persisted events are remove+append, never in-place.
package ledger

import (
	"errors"
	"fmt"

	"github.com/clubkeeper/quarterbook/internal/match"
)

// ErrEventNotFound is returned when removing or replacing an unknown event.
var ErrEventNotFound = errors.New("event not found in ledger")

// Ledger holds match events grouped by quarter, each quarter's slice kept
// sorted by minute ascending with insertion order preserved on equal
// minutes.
//
// Thread-safety: none. A recording session is a single logical thread of
// control; the session serializes all mutations.
type Ledger struct {
	quarters int
	events   map[int][]match.Event
}

// New creates an empty ledger for the given number of quarters.
func New(quarters int) *Ledger {
	return &Ledger{
		quarters: quarters,
		events:   make(map[int][]match.Event, quarters),
	}
}

// Quarters returns the number of quarters the ledger covers.
func (l *Ledger) Quarters() int {
	return l.quarters
}

// Append validates the event and inserts it into its quarter, placed after
// any existing event with the same or an earlier minute.
// Returns a match.ValidationError naming the missing field on violation;
// the event is not appended.
func (l *Ledger) Append(e match.Event) error {
	if err := Validate(e, l.quarters); err != nil {
		return err
	}

	qs := l.events[e.QuarterIndex]
	pos := len(qs)
	for i, existing := range qs {
		if existing.Minute > e.Minute {
			pos = i
			break
		}
	}

	qs = append(qs, match.Event{})
	copy(qs[pos+1:], qs[pos:])
	qs[pos] = e
	l.events[e.QuarterIndex] = qs
	return nil
}

// Remove deletes the event with the given id and returns it.
// Returns ErrEventNotFound if no quarter holds the id.
func (l *Ledger) Remove(eventID string) (match.Event, error) {
	for q, qs := range l.events {
		for i, e := range qs {
			if e.ID == eventID {
				l.events[q] = append(qs[:i], qs[i+1:]...)
				return e, nil
			}
		}
	}
	return match.Event{}, fmt.Errorf("remove %q: %w", eventID, ErrEventNotFound)
}

// Replace models an edit as delete-old + insert-new. The new event is
// validated before the old one is removed, so a failed replace leaves the
// ledger untouched.
func (l *Ledger) Replace(oldID string, e match.Event) error {
	if err := Validate(e, l.quarters); err != nil {
		return err
	}
	if _, err := l.Remove(oldID); err != nil {
		return fmt.Errorf("replace %q: %w", oldID, ErrEventNotFound)
	}
	return l.Append(e)
}

// Rebind swaps an event's id in place, keeping its ledger position.
// Used by the reconciler to unify a client token with the server id.
func (l *Ledger) Rebind(oldID, newID string) error {
	for q, qs := range l.events {
		for i, e := range qs {
			if e.ID == oldID {
				qs[i].ID = newID
				qs[i].Persisted = true
				l.events[q] = qs
				return nil
			}
		}
	}
	return fmt.Errorf("rebind %q: %w", oldID, ErrEventNotFound)
}

// Find returns the event with the given id.
func (l *Ledger) Find(eventID string) (match.Event, bool) {
	for _, qs := range l.events {
		for _, e := range qs {
			if e.ID == eventID {
				return e, true
			}
		}
	}
	return match.Event{}, false
}

// Events returns a copy of a quarter's events in ledger order.
func (l *Ledger) Events(quarter int) []match.Event {
	qs := l.events[quarter]
	out := make([]match.Event, len(qs))
	copy(out, qs)
	return out
}

// Pending returns the events of a quarter that have not been reconciled
// with a server id yet.
func (l *Ledger) Pending(quarter int) []match.Event {
	var out []match.Event
	for _, e := range l.events[quarter] {
		if !e.Persisted {
			out = append(out, e)
		}
	}
	return out
}

// Tally counts the goal events of a quarter per credited side.
// Own goals count toward the side recorded on the event - Side always
// denotes the benefiting side.
func (l *Ledger) Tally(quarter int) (goalsA, goalsB int) {
	for _, e := range l.events[quarter] {
		if e.Type != match.EventGoal {
			continue
		}
		if e.Side == match.SideA {
			goalsA++
		} else {
			goalsB++
		}
	}
	return goalsA, goalsB
}

// Len returns the number of events recorded for a quarter.
func (l *Ledger) Len(quarter int) int {
	return len(l.events[quarter])
}

// Validate checks the required wire fields for an event.
// Field names in errors use wire naming so messages can be attached to the
// matching form input.
func Validate(e match.Event, quarters int) error {
	if e.QuarterIndex < 1 || e.QuarterIndex > quarters {
		return match.NewValidationError("quarterNumber",
			fmt.Sprintf("must be between 1 and %d", quarters))
	}
	if !e.Type.Valid() {
		return match.NewValidationError("eventType", fmt.Sprintf("unknown event type %q", e.Type))
	}
	if e.Minute < 0 {
		return match.NewValidationError("minute", "minute is required and must be non-negative")
	}
	if !e.Side.Valid() {
		return match.NewValidationError("teamId", "a side is required")
	}
	if e.Primary == "" {
		if e.Type == match.EventSubstitution {
			return match.NewValidationError("userId", "the player leaving the pitch is required")
		}
		return match.NewValidationError("userId", "a player is required")
	}
	if e.Type == match.EventSubstitution && e.Secondary == "" {
		return match.NewValidationError("assistUserId", "the player coming on is required")
	}
	return nil
}
