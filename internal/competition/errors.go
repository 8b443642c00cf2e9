package competition

import (
	"errors"
	"fmt"
)

// ErrNoActiveParticipants is returned by SelectNext when no Active
// participants remain. It is a normal end-state, not a crash.
var ErrNoActiveParticipants = errors.New("no active participants remain")

// ErrContentTimeout marks a participant no-show: the content generator did
// not return within the turn budget. The turn is recorded as a forfeit.
var ErrContentTimeout = errors.New("content generation exceeded turn budget")

// StalledCompetitionError is the stagnation signal raised when consecutive
// orbiting turns exceed the configured maximum. It is handled by a forced
// phase advance and is never fatal.
type StalledCompetitionError struct {
	StagnationTurns int
	OrbitingScore   float64
}

func (e *StalledCompetitionError) Error() string {
	return fmt.Sprintf("competition stalled: %d consecutive orbiting turns (mean similarity %.2f)",
		e.StagnationTurns, e.OrbitingScore)
}

// InvalidTransitionError indicates a phase edge outside the fixed order.
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition: %s -> %s", e.From, e.To)
}
