package sim

import "errors"

// Sentinel errors for the sim package.
// Use errors.Is to check: errors.Is(err, sim.ErrRunComplete)
var (
	ErrEmptyPool          = errors.New("sim: candidate pool is empty")
	ErrRunComplete        = errors.New("sim: run already in results phase")
	ErrObservationPhase   = errors.New("sim: selection not permitted during observation")
	ErrEmptyCriterion     = errors.New("sim: criterion name is empty")
	ErrDuplicateCriterion = errors.New("sim: criterion already present")
	ErrDefaultCriterion   = errors.New("sim: default criteria cannot be removed")
	ErrUnknownCriterion   = errors.New("sim: unknown criterion")
)
