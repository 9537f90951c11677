package session

import (
	"errors"
	"fmt"
)

// ErrSaveInFlight is returned when a phase transition or ledger mutation is
// requested while a persistence call is still settling. The caller retries
// once the pending call resolves; session state is unchanged.
var ErrSaveInFlight = errors.New("a save is already in flight")

// ErrSubmitted is returned for any mutation attempted after final
// submission. Submission is a one-way transition out of the session.
var ErrSubmitted = errors.New("session already submitted")

// PersistenceError wraps a failed save behind a phase advance or an eager
// event save. The phase does not change and the affected quarter or event
// stays in local-only state; the next Advance retries the same save.
type PersistenceError struct {
	// Phase is the phase whose save failed.
	Phase Phase

	// Quarter is the 1-based quarter index for quarter saves, 0 otherwise.
	Quarter int

	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	if e.Quarter > 0 {
		return fmt.Sprintf("persist %s (quarter %d): %v", e.Phase, e.Quarter, e.Err)
	}
	return fmt.Sprintf("persist %s: %v", e.Phase, e.Err)
}

// Unwrap returns the underlying persistence failure.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err is (or wraps) a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// ScorelessError is the confirmation gate for advancing past a quarter
// with no goals and no events. Not a hard block: the caller confirms via
// ConfirmScoreless and retries the advance.
type ScorelessError struct {
	Quarter int
}

// Error implements the error interface.
func (e *ScorelessError) Error() string {
	return fmt.Sprintf("quarter %d has no goals and no events; confirm before advancing", e.Quarter)
}

// IsScorelessError reports whether err is (or wraps) a ScorelessError.
func IsScorelessError(err error) bool {
	var se *ScorelessError
	return errors.As(err, &se)
}
